package observability

import (
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/utils"
	"go.uber.org/zap"
)

// UnmatchedRoute labels requests that only passed through middleware.
const UnmatchedRoute = "unmatched"

// RouteLabel returns the registered route pattern for metric labels. Raw paths are
// never used: they are unbounded and fiber reuses their backing buffers.
func RouteLabel(c *fiber.Ctx) string {
	route := c.Route().Path
	if route == "" || route == "/" || strings.Contains(route, "*") {
		return UnmatchedRoute
	}
	return utils.CopyString(route)
}

// RequestLogger logs one line per request and feeds request metrics.
func RequestLogger(logger *zap.Logger, metrics *Metrics) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()
		elapsed := time.Since(start)

		status := c.Response().StatusCode()
		method := utils.CopyString(c.Method())
		metrics.RecordRequest(RouteLabel(c), method, status, elapsed)

		logger.Info("request",
			zap.String("method", method),
			zap.String("path", utils.CopyString(c.Path())),
			zap.Int("status", status),
			zap.Duration("latency", elapsed),
			zap.String("ip", c.IP()),
		)
		return err
	}
}
