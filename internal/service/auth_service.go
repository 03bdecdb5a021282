package service

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/storefront-auth/internal/auth"
	"github.com/spec-kit/storefront-auth/internal/domain"
	"github.com/spec-kit/storefront-auth/internal/events"
	"github.com/spec-kit/storefront-auth/internal/observability"
	"github.com/spec-kit/storefront-auth/internal/repository"
)

// InvalidCredentialsMessage is shown for every failed login, whatever the cause.
const InvalidCredentialsMessage = "E-mail ou senha inválidos"

// MinPasswordLength applies to registration and password reset.
const MinPasswordLength = 8

var (
	// ErrInvalidCredentials covers both an unknown email and a wrong password.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrPersistenceTimeout means the session store did not answer in time; the
	// login is refused rather than handing out an unrecorded token.
	ErrPersistenceTimeout = errors.New("session store timed out")
	// ErrStoreUnavailable wraps failures of the user directory.
	ErrStoreUnavailable = errors.New("user store unavailable")
	// ErrResetTokenInvalid covers malformed, expired and already used reset tokens.
	ErrResetTokenInvalid = errors.New("password reset token invalid or already used")
	// ErrInvalidInput is returned for missing or unusable fields.
	ErrInvalidInput = errors.New("invalid input")
)

// LoginInput carries one login attempt.
type LoginInput struct {
	Email     string
	Password  string
	UserAgent string
	ClientIP  string
}

// LoginResult is what a successful login hands back to the transport layer.
type LoginResult struct {
	Token  string
	Claims domain.SessionClaims
	User   *domain.User
	// Persisted is false when the session record could not be written; the token is
	// still valid but cannot be revoked individually.
	Persisted bool
}

// RegisterInput carries a new customer account.
type RegisterInput struct {
	Name     string
	Email    string
	Password string
}

// AuthService coordinates login, logout, registration and password reset flows.
type AuthService struct {
	users        repository.UserRepository
	sessions     repository.SessionRepository
	resets       repository.PasswordResetRepository
	hasher       *auth.PasswordHasher
	tokens       *auth.TokenManager
	checker      auth.SessionChecker
	dispatcher   events.Dispatcher
	logger       *zap.Logger
	metrics      *observability.Metrics
	storeTimeout time.Duration
	dummyHash    string
}

// AuthDependencies encapsulates collaborators for the auth service.
type AuthDependencies struct {
	UserRepo          repository.UserRepository
	SessionRepo       repository.SessionRepository
	PasswordResetRepo repository.PasswordResetRepository
	Hasher            *auth.PasswordHasher
	Tokens            *auth.TokenManager
	// SessionChecker, when set, makes CurrentSession confirm the server-side record.
	SessionChecker auth.SessionChecker
	Dispatcher     events.Dispatcher
	Logger         *zap.Logger
	Metrics        *observability.Metrics
	StoreTimeout   time.Duration
}

// NewAuthService builds the service. It hashes a throwaway password up front so that
// lookups for unknown emails can spend the same verification time as real ones.
func NewAuthService(ctx context.Context, deps AuthDependencies) (*AuthService, error) {
	if deps.UserRepo == nil || deps.SessionRepo == nil || deps.Hasher == nil || deps.Tokens == nil {
		return nil, errors.New("auth service: users, sessions, hasher and tokens are required")
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Dispatcher == nil {
		deps.Dispatcher = events.NewInMemoryDispatcher()
	}

	dummy, err := deps.Hasher.Hash(ctx, uuid.NewString())
	if err != nil {
		return nil, fmt.Errorf("prepare dummy hash: %w", err)
	}

	return &AuthService{
		users:        deps.UserRepo,
		sessions:     deps.SessionRepo,
		resets:       deps.PasswordResetRepo,
		hasher:       deps.Hasher,
		tokens:       deps.Tokens,
		checker:      deps.SessionChecker,
		dispatcher:   deps.Dispatcher,
		logger:       deps.Logger,
		metrics:      deps.Metrics,
		storeTimeout: deps.StoreTimeout,
		dummyHash:    dummy,
	}, nil
}

// Login checks the credentials, issues a session token and records the session.
func (s *AuthService) Login(ctx context.Context, in LoginInput) (*LoginResult, error) {
	email := repository.NormalizeEmail(in.Email)
	if email == "" || in.Password == "" {
		s.loginFailed(ctx, in)
		return nil, ErrInvalidCredentials
	}

	user, err := s.users.GetByEmail(ctx, email)
	if errors.Is(err, repository.ErrUserNotFound) {
		s.hasher.Verify(ctx, s.dummyHash, in.Password)
		s.loginFailed(ctx, in)
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		s.metrics.RecordLogin("error")
		return nil, fmt.Errorf("lookup user: %w: %w", ErrStoreUnavailable, err)
	}

	if !s.hasher.Verify(ctx, user.PasswordHash, in.Password) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		s.loginFailed(ctx, in)
		return nil, ErrInvalidCredentials
	}

	token, claims, err := s.tokens.Issue(domain.ClaimsForUser(user))
	if err != nil {
		s.metrics.RecordLogin("error")
		return nil, fmt.Errorf("issue token: %w", err)
	}

	session := &domain.Session{
		UserID:    user.ID,
		UserAgent: in.UserAgent,
		ClientIP:  in.ClientIP,
		CreatedAt: claims.IssuedAt,
		ExpiresAt: claims.ExpiresAt,
	}

	persisted := true
	storeCtx, cancel := s.storeContext(ctx)
	err = s.sessions.Create(storeCtx, token, session)
	cancel()
	if err != nil {
		s.metrics.RecordStoreFailure("create")
		if isTimeout(err) {
			s.logger.Error("session persist timed out",
				zap.String("event", "session_persist_failed"),
				zap.String("user_id", user.ID),
				zap.Bool("timeout", true),
				zap.Error(err))
			s.metrics.RecordLogin("error")
			return nil, ErrPersistenceTimeout
		}
		persisted = false
		s.logger.Error("session persist failed",
			zap.String("event", "session_persist_failed"),
			zap.String("user_id", user.ID),
			zap.Error(err))
	}

	s.metrics.RecordLogin("success")
	s.publish(ctx, events.Event{
		Type:   events.EventSessionCreated,
		UserID: user.ID,
		Payload: events.SessionCreatedPayload{
			Role:      user.Role,
			UserAgent: in.UserAgent,
			ClientIP:  in.ClientIP,
			ExpiresAt: claims.ExpiresAt,
			Persisted: persisted,
		},
	})

	return &LoginResult{Token: token, Claims: claims, User: user, Persisted: persisted}, nil
}

// Logout revokes the session behind token. An empty token is a no-op.
func (s *AuthService) Logout(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}

	storeCtx, cancel := s.storeContext(ctx)
	defer cancel()
	if err := s.sessions.Revoke(storeCtx, token); err != nil {
		s.metrics.RecordStoreFailure("revoke")
		return fmt.Errorf("revoke session: %w", err)
	}

	userID := ""
	if result := s.tokens.Verify(token); result.Valid {
		userID = result.Claims.Subject
	}
	s.publish(ctx, events.Event{Type: events.EventSessionRevoked, UserID: userID})
	return nil
}

// LogoutEverywhere revokes every session of userID.
func (s *AuthService) LogoutEverywhere(ctx context.Context, userID string) error {
	if userID == "" {
		return ErrInvalidInput
	}

	storeCtx, cancel := s.storeContext(ctx)
	defer cancel()
	if err := s.sessions.RevokeAll(storeCtx, userID); err != nil {
		s.metrics.RecordStoreFailure("revoke_all")
		return fmt.Errorf("revoke sessions: %w", err)
	}

	s.publish(ctx, events.Event{Type: events.EventSessionsRevokedAll, UserID: userID})
	return nil
}

// CurrentSession resolves token to its claims. A store failure while confirming the
// session counts as no session.
func (s *AuthService) CurrentSession(ctx context.Context, token string) (*domain.SessionClaims, bool) {
	if token == "" {
		return nil, false
	}
	result := s.tokens.Verify(token)
	if !result.Valid {
		return nil, false
	}
	if s.checker != nil {
		storeCtx, cancel := s.storeContext(ctx)
		defer cancel()
		exists, err := s.checker.Exists(storeCtx, token)
		if err != nil {
			s.metrics.RecordStoreFailure("exists")
			s.logger.Warn("session check failed", zap.String("event", "session_check_failed"), zap.Error(err))
			return nil, false
		}
		if !exists {
			return nil, false
		}
	}
	return result.Claims, true
}

// Register creates a customer account. Other roles are assigned out of band.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*domain.User, error) {
	name := strings.TrimSpace(in.Name)
	email := repository.NormalizeEmail(in.Email)
	if name == "" || !strings.Contains(email, "@") || len(in.Password) < MinPasswordLength {
		return nil, ErrInvalidInput
	}

	hash, err := s.hasher.Hash(ctx, in.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user := &domain.User{
		Name:         name,
		Email:        email,
		PasswordHash: hash,
		Role:         domain.RoleCustomer,
	}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrEmailTaken) {
			return nil, err
		}
		return nil, fmt.Errorf("create user: %w: %w", ErrStoreUnavailable, err)
	}

	s.publish(ctx, events.Event{Type: events.EventUserRegistered, UserID: user.ID})
	return user, nil
}

// RequestPasswordReset issues a reset token for email and hands it to the delivery
// subscribers. An unknown email is silently ignored so callers cannot probe accounts.
func (s *AuthService) RequestPasswordReset(ctx context.Context, email string) error {
	email = repository.NormalizeEmail(email)
	if email == "" {
		return nil
	}

	user, err := s.users.GetByEmail(ctx, email)
	if errors.Is(err, repository.ErrUserNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("lookup user: %w", err)
	}

	token, claims, err := s.tokens.IssuePasswordReset(user.ID, user.Email)
	if err != nil {
		return fmt.Errorf("issue reset token: %w", err)
	}

	s.publish(ctx, events.Event{
		Type:   events.EventPasswordResetRequested,
		UserID: user.ID,
		Payload: events.PasswordResetRequestedPayload{
			Email:     user.Email,
			Token:     token,
			ExpiresAt: claims.ExpiresAt,
		},
	})
	return nil
}

// ConfirmPasswordReset redeems a reset token, stores the new password and revokes
// every existing session of the account.
func (s *AuthService) ConfirmPasswordReset(ctx context.Context, token, newPassword string) error {
	if len(newPassword) < MinPasswordLength {
		return ErrInvalidInput
	}

	claims, err := s.tokens.VerifyPasswordReset(token)
	if err != nil {
		return ErrResetTokenInvalid
	}

	if s.resets != nil {
		storeCtx, cancel := s.storeContext(ctx)
		fresh, err := s.resets.MarkUsed(storeCtx, claims.TokenID, time.Until(claims.ExpiresAt))
		cancel()
		if err != nil {
			s.metrics.RecordStoreFailure("reset_mark_used")
			return fmt.Errorf("mark reset token used: %w", err)
		}
		if !fresh {
			return ErrResetTokenInvalid
		}
	}

	hash, err := s.hasher.Hash(ctx, newPassword)
	if err != nil {
		s.releaseResetToken(ctx, claims.TokenID)
		return fmt.Errorf("hash password: %w", err)
	}
	if err := s.users.UpdatePasswordHash(ctx, claims.UserID, hash); err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return ErrResetTokenInvalid
		}
		s.releaseResetToken(ctx, claims.TokenID)
		return fmt.Errorf("update password: %w", err)
	}

	if err := s.LogoutEverywhere(ctx, claims.UserID); err != nil {
		s.logger.Error("revoke sessions after password reset failed",
			zap.String("event", "session_revoke_failed"),
			zap.String("user_id", claims.UserID),
			zap.Error(err))
	}

	s.publish(ctx, events.Event{Type: events.EventPasswordResetCompleted, UserID: claims.UserID})
	return nil
}

// releaseResetToken lets the link be used again after a failed update. It runs
// detached from ctx so a cancelled request still frees the marker.
func (s *AuthService) releaseResetToken(ctx context.Context, tokenID string) {
	if s.resets == nil {
		return
	}
	storeCtx, cancel := s.storeContext(context.WithoutCancel(ctx))
	defer cancel()
	if err := s.resets.Release(storeCtx, tokenID); err != nil {
		s.metrics.RecordStoreFailure("reset_release")
		s.logger.Warn("release reset token failed",
			zap.String("event", "reset_release_failed"),
			zap.Error(err))
	}
}

// TokenManager exposes the underlying token manager for middleware usage.
func (s *AuthService) TokenManager() *auth.TokenManager {
	return s.tokens
}

func (s *AuthService) loginFailed(ctx context.Context, in LoginInput) {
	s.metrics.RecordLogin("invalid_credentials")
	s.publish(ctx, events.Event{
		Type:    events.EventLoginFailed,
		Payload: events.LoginFailedPayload{ClientIP: in.ClientIP},
	})
}

func (s *AuthService) publish(ctx context.Context, event events.Event) {
	if err := s.dispatcher.Publish(ctx, event); err != nil {
		s.logger.Warn("event handler failed", zap.String("event", string(event.Type)), zap.Error(err))
	}
}

func (s *AuthService) storeContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.storeTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.storeTimeout)
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
