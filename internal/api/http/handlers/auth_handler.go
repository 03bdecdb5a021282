package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/spec-kit/storefront-auth/internal/api/dto"
	"github.com/spec-kit/storefront-auth/internal/auth"
	"github.com/spec-kit/storefront-auth/internal/repository"
	"github.com/spec-kit/storefront-auth/internal/service"
	apperrors "github.com/spec-kit/storefront-auth/pkg/util/errorutil"
)

// RevocationCache is the local cache that must forget revoked tokens.
type RevocationCache interface {
	Forget(token string)
	ForgetAll()
}

// AuthHandler exposes the /api/auth endpoints.
type AuthHandler struct {
	auth   *service.AuthService
	cookie auth.CookieSettings
	cache  RevocationCache
	logger *zap.Logger
}

// NewAuthHandler constructs handler. cache may be nil.
func NewAuthHandler(authService *service.AuthService, cookie auth.CookieSettings, cache RevocationCache, logger *zap.Logger) *AuthHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthHandler{auth: authService, cookie: cookie, cache: cache, logger: logger}
}

// Login handles POST /api/auth/login.
func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var req dto.LoginRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}

	result, err := h.auth.Login(c.UserContext(), service.LoginInput{
		Email:     req.Email,
		Password:  req.Senha,
		UserAgent: c.Get(fiber.HeaderUserAgent),
		ClientIP:  c.IP(),
	})
	switch {
	case errors.Is(err, service.ErrInvalidCredentials):
		return c.Status(http.StatusUnauthorized).JSON(dto.LoginResponse{
			Sucesso:  false,
			Mensagem: service.InvalidCredentialsMessage,
		})
	case errors.Is(err, service.ErrPersistenceTimeout), errors.Is(err, service.ErrStoreUnavailable):
		return apperrors.NewPersistenceFailure(err)
	case err != nil:
		return apperrors.NewInternalError(err)
	}

	h.cookie.Set(c, result.Token, result.Claims.ExpiresAt)
	return c.JSON(dto.LoginResponse{
		Sucesso: true,
		Token:   result.Token,
		Usuario: dto.UsuarioFromUser(result.User),
	})
}

// Logout handles POST /api/auth/logout. The cookie is cleared even when the store
// cannot be reached.
func (h *AuthHandler) Logout(c *fiber.Ctx) error {
	token := h.cookie.Read(c)
	h.cookie.Clear(c)
	if h.cache != nil && token != "" {
		h.cache.Forget(token)
	}

	if err := h.auth.Logout(c.UserContext(), token); err != nil {
		h.logger.Warn("logout could not revoke session", zap.String("event", "session_revoke_failed"), zap.Error(err))
		return apperrors.NewPersistenceFailure(err)
	}
	return c.JSON(dto.StatusResponse{Sucesso: true})
}

// LogoutAll handles POST /api/auth/logout-todos.
func (h *AuthHandler) LogoutAll(c *fiber.Ctx) error {
	claims, ok := auth.ClaimsFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}

	if err := h.auth.LogoutEverywhere(c.UserContext(), claims.Subject); err != nil {
		return apperrors.NewPersistenceFailure(err)
	}
	if h.cache != nil {
		h.cache.ForgetAll()
	}
	h.cookie.Clear(c)
	return c.JSON(dto.StatusResponse{Sucesso: true})
}

// Session handles GET /api/auth/session.
func (h *AuthHandler) Session(c *fiber.Ctx) error {
	claims, ok := h.auth.CurrentSession(c.UserContext(), h.cookie.Read(c))
	if !ok {
		return c.JSON(dto.SessionResponse{Autenticado: false})
	}
	return c.JSON(dto.SessionResponse{Autenticado: true, Usuario: dto.UsuarioFromClaims(claims)})
}

// Register handles POST /api/auth/cadastro.
func (h *AuthHandler) Register(c *fiber.Ctx) error {
	var req dto.RegisterRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}

	user, err := h.auth.Register(c.UserContext(), service.RegisterInput{
		Name:     req.Nome,
		Email:    req.Email,
		Password: req.Senha,
	})
	switch {
	case errors.Is(err, service.ErrInvalidInput):
		return apperrors.NewValidationError("nome, email e senha (mínimo 8 caracteres) são obrigatórios", nil)
	case errors.Is(err, repository.ErrEmailTaken):
		return apperrors.NewConflict("e-mail já cadastrado", nil)
	case errors.Is(err, service.ErrStoreUnavailable):
		return apperrors.NewPersistenceFailure(err)
	case err != nil:
		return apperrors.NewInternalError(err)
	}

	return c.Status(http.StatusCreated).JSON(fiber.Map{
		"sucesso": true,
		"usuario": dto.UsuarioFromUser(user),
	})
}

// RequestPasswordReset handles POST /api/auth/senha/esqueci. The answer never reveals
// whether the email exists.
func (h *AuthHandler) RequestPasswordReset(c *fiber.Ctx) error {
	var req dto.PasswordResetRequest
	if err := c.BodyParser(&req); err != nil || strings.TrimSpace(req.Email) == "" {
		return apperrors.NewValidationError("email required", nil)
	}

	if err := h.auth.RequestPasswordReset(c.UserContext(), req.Email); err != nil {
		h.logger.Error("password reset request failed", zap.Error(err))
	}
	return c.Status(http.StatusAccepted).JSON(dto.StatusResponse{Sucesso: true})
}

// ConfirmPasswordReset handles POST /api/auth/senha/redefinir.
func (h *AuthHandler) ConfirmPasswordReset(c *fiber.Ctx) error {
	var req dto.PasswordResetConfirmRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}

	err := h.auth.ConfirmPasswordReset(c.UserContext(), req.Token, req.Senha)
	switch {
	case errors.Is(err, service.ErrInvalidInput):
		return apperrors.NewValidationError("a senha deve ter no mínimo 8 caracteres", nil)
	case errors.Is(err, service.ErrResetTokenInvalid):
		return apperrors.NewValidationError("link de redefinição inválido ou expirado", nil)
	case err != nil:
		return apperrors.NewPersistenceFailure(err)
	}

	if h.cache != nil {
		h.cache.ForgetAll()
	}
	return c.JSON(dto.StatusResponse{Sucesso: true})
}
