package auth

import (
	"errors"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/spec-kit/storefront-auth/internal/domain"
)

// SessionLifetime is the fixed horizon of every session token.
const SessionLifetime = 30 * 24 * time.Hour

const defaultPasswordResetTTL = 30 * time.Minute

var (
	// ErrTokenMalformed covers bad structure, bad signature, wrong algorithm and wrong purpose.
	ErrTokenMalformed = errors.New("token malformed")
	// ErrTokenExpired means the signature checked out but exp has passed.
	ErrTokenExpired = errors.New("token expired")
	// ErrEmptySecret is returned when a TokenManager is built without a signing key.
	ErrEmptySecret = errors.New("token signing secret is empty")
)

// TokenManager handles issuing and validating HS256 JWTs.
type TokenManager struct {
	secret   []byte
	now      func() time.Time
	resetTTL time.Duration
}

// TokenOption customizes a TokenManager.
type TokenOption func(*TokenManager)

// WithClock replaces time.Now for issuing and validating tokens.
func WithClock(now func() time.Time) TokenOption {
	return func(tm *TokenManager) {
		if now != nil {
			tm.now = now
		}
	}
}

// WithPasswordResetTTL sets the lifetime of password reset tokens.
func WithPasswordResetTTL(ttl time.Duration) TokenOption {
	return func(tm *TokenManager) {
		if ttl > 0 {
			tm.resetTTL = ttl
		}
	}
}

// NewTokenManager builds a new manager. Rotating secret invalidates every issued token.
func NewTokenManager(secret string, opts ...TokenOption) (*TokenManager, error) {
	if secret == "" {
		return nil, ErrEmptySecret
	}
	tm := &TokenManager{secret: []byte(secret), now: time.Now, resetTTL: defaultPasswordResetTTL}
	for _, opt := range opts {
		opt(tm)
	}
	return tm, nil
}

// Claims describes JWT payload.
type Claims struct {
	Name    string              `json:"name,omitempty"`
	Email   string              `json:"email,omitempty"`
	Role    domain.Role         `json:"role,omitempty"`
	Purpose domain.TokenPurpose `json:"purpose"`
	jwt.RegisteredClaims
}

// Verification is the outcome of checking a session token.
type Verification struct {
	Valid   bool
	Expired bool
	Claims  *domain.SessionClaims
}

// Err maps the outcome onto ErrTokenMalformed / ErrTokenExpired, or nil when valid.
func (v Verification) Err() error {
	switch {
	case v.Valid:
		return nil
	case v.Expired:
		return ErrTokenExpired
	default:
		return ErrTokenMalformed
	}
}

// PasswordResetClaims identifies the account a reset token was issued for.
type PasswordResetClaims struct {
	TokenID   string
	UserID    string
	Email     string
	ExpiresAt time.Time
}

// Issue signs a session token for claims. The returned claims carry the token id and
// the issued/expiry instants actually embedded in the token.
func (tm *TokenManager) Issue(claims domain.SessionClaims) (string, domain.SessionClaims, error) {
	issuedAt := tm.now().Truncate(time.Second)
	claims.TokenID = uuid.NewString()
	claims.IssuedAt = issuedAt
	claims.ExpiresAt = issuedAt.Add(SessionLifetime)

	token, err := tm.sign(&Claims{
		Name:    claims.Name,
		Email:   claims.Email,
		Role:    claims.Role,
		Purpose: domain.TokenPurposeSession,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        claims.TokenID,
			Subject:   claims.Subject,
			IssuedAt:  jwt.NewNumericDate(claims.IssuedAt),
			ExpiresAt: jwt.NewNumericDate(claims.ExpiresAt),
		},
	})
	if err != nil {
		return "", domain.SessionClaims{}, err
	}
	return token, claims, nil
}

// Verify checks signature, algorithm, purpose and expiry of a session token. It never
// returns an error; malformed input simply yields an invalid, non-expired result.
func (tm *TokenManager) Verify(tokenStr string) Verification {
	claims, err := tm.parse(tokenStr, domain.TokenPurposeSession)
	switch {
	case err == nil:
	case errors.Is(err, ErrTokenExpired):
		return Verification{Expired: true}
	default:
		return Verification{}
	}

	role, err := domain.ParseRole(string(claims.Role))
	if err != nil || claims.Subject == "" {
		return Verification{}
	}
	return Verification{
		Valid: true,
		Claims: &domain.SessionClaims{
			TokenID:   claims.ID,
			Subject:   claims.Subject,
			Name:      claims.Name,
			Email:     claims.Email,
			Role:      role,
			IssuedAt:  claims.IssuedAt.Time,
			ExpiresAt: claims.ExpiresAt.Time,
		},
	}
}

// IssuePasswordReset signs a short-lived token usable only for resetting a password.
func (tm *TokenManager) IssuePasswordReset(userID, email string) (string, PasswordResetClaims, error) {
	issuedAt := tm.now().Truncate(time.Second)
	reset := PasswordResetClaims{
		TokenID:   uuid.NewString(),
		UserID:    userID,
		Email:     email,
		ExpiresAt: issuedAt.Add(tm.resetTTL),
	}
	token, err := tm.sign(&Claims{
		Email:   email,
		Purpose: domain.TokenPurposePasswordReset,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        reset.TokenID,
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(reset.ExpiresAt),
		},
	})
	if err != nil {
		return "", PasswordResetClaims{}, err
	}
	return token, reset, nil
}

// VerifyPasswordReset validates a reset token and returns ErrTokenMalformed or
// ErrTokenExpired on failure. Session tokens are rejected.
func (tm *TokenManager) VerifyPasswordReset(tokenStr string) (*PasswordResetClaims, error) {
	claims, err := tm.parse(tokenStr, domain.TokenPurposePasswordReset)
	if err != nil {
		return nil, err
	}
	if claims.Subject == "" || claims.ID == "" {
		return nil, ErrTokenMalformed
	}
	return &PasswordResetClaims{
		TokenID:   claims.ID,
		UserID:    claims.Subject,
		Email:     claims.Email,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}

func (tm *TokenManager) sign(claims *Claims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(tm.secret)
}

// parse verifies the signature before looking at exp, so ErrTokenExpired is only ever
// reported for tokens this service signed.
func (tm *TokenManager) parse(tokenStr string, purpose domain.TokenPurpose) (*Claims, error) {
	if tokenStr == "" {
		return nil, ErrTokenMalformed
	}

	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing method")
		}
		return tm.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(tm.now),
		jwt.WithExpirationRequired(),
		jwt.WithStrictDecoding(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) && claims.Purpose == purpose {
			return nil, ErrTokenExpired
		}
		return nil, ErrTokenMalformed
	}
	if !parsed.Valid || claims.Purpose != purpose {
		return nil, ErrTokenMalformed
	}
	return claims, nil
}
