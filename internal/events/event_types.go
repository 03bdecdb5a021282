package events

import (
	"time"

	"go.uber.org/zap/zapcore"

	"github.com/spec-kit/storefront-auth/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventSessionCreated         EventType = "session_created"
	EventSessionRevoked         EventType = "session_revoked"
	EventSessionsRevokedAll     EventType = "sessions_revoked_all"
	EventLoginFailed            EventType = "login_failed"
	EventUserRegistered         EventType = "user_registered"
	EventPasswordResetRequested EventType = "password_reset_requested"
	EventPasswordResetCompleted EventType = "password_reset_completed"
)

// Event represents an authentication event emitted by services.
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	UserID    string      `json:"user_id,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload,omitempty"`
}

// SessionCreatedPayload payload.
type SessionCreatedPayload struct {
	Role      domain.Role `json:"role"`
	UserAgent string      `json:"user_agent,omitempty"`
	ClientIP  string      `json:"client_ip,omitempty"`
	ExpiresAt time.Time   `json:"expires_at"`
	// Persisted is false when the session record could not be written.
	Persisted bool `json:"persisted"`
}

// LoginFailedPayload payload. The email is never paired with the failure cause.
type LoginFailedPayload struct {
	ClientIP string `json:"client_ip,omitempty"`
}

// PasswordResetRequestedPayload carries what a delivery channel needs.
type PasswordResetRequestedPayload struct {
	Email     string    `json:"email"`
	Token     string    `json:"-"`
	ExpiresAt time.Time `json:"expires_at"`
}

// MarshalLogObject keeps the token out of logs.
func (p PasswordResetRequestedPayload) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	enc.AddString("email", p.Email)
	enc.AddTime("expires_at", p.ExpiresAt)
	return nil
}
