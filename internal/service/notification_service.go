package service

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/spec-kit/storefront-auth/internal/config"
	"github.com/spec-kit/storefront-auth/internal/events"
)

// NotificationService writes the authentication audit trail and hands reset links to
// the delivery channel.
type NotificationService struct {
	dispatcher events.Dispatcher
	logger     *zap.Logger
	cfg        config.NotificationConfig
}

// NewNotificationService creates the service.
func NewNotificationService(dispatcher events.Dispatcher, logger *zap.Logger, cfg config.NotificationConfig) *NotificationService {
	return &NotificationService{
		dispatcher: dispatcher,
		logger:     logger,
		cfg:        cfg,
	}
}

// RegisterHandlers subscribes to events.
func (n *NotificationService) RegisterHandlers() {
	if n.dispatcher == nil {
		return
	}
	for _, t := range []events.EventType{
		events.EventSessionCreated,
		events.EventSessionRevoked,
		events.EventSessionsRevokedAll,
		events.EventLoginFailed,
		events.EventUserRegistered,
		events.EventPasswordResetCompleted,
	} {
		n.dispatcher.Subscribe(t, n.handleAudit)
	}
	n.dispatcher.Subscribe(events.EventPasswordResetRequested, n.handleAudit)
	n.dispatcher.Subscribe(events.EventPasswordResetRequested, n.handlePasswordResetRequested)
}

func (n *NotificationService) handleAudit(_ context.Context, event events.Event) error {
	n.logger.Info("auth audit",
		zap.String("event", string(event.Type)),
		zap.String("event_id", event.ID),
		zap.String("user_id", event.UserID),
		zap.Time("at", event.Timestamp),
		zap.Any("payload", event.Payload))
	return nil
}

func (n *NotificationService) handlePasswordResetRequested(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.PasswordResetRequestedPayload)
	if !ok {
		return nil
	}
	n.sendEmailNotificationStub(ctx, payload)
	return nil
}

// sendEmailNotificationStub stands in for the mail integration. The link is logged with
// the token redacted.
func (n *NotificationService) sendEmailNotificationStub(_ context.Context, payload events.PasswordResetRequestedPayload) {
	if strings.TrimSpace(n.cfg.EmailFrom) == "" {
		return
	}
	n.logger.Debug("sendEmailNotificationStub",
		zap.String("from", n.cfg.EmailFrom),
		zap.String("to", payload.Email),
		zap.String("link", n.resetLink("REDACTED")),
		zap.Time("expires_at", payload.ExpiresAt))
}

func (n *NotificationService) resetLink(token string) string {
	base := n.cfg.ResetPageURL
	if base == "" {
		base = "/redefinir-senha"
	}
	sep := "?"
	if strings.Contains(base, "?") {
		sep = "&"
	}
	return base + sep + "token=" + token
}
