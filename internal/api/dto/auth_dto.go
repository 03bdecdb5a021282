package dto

import "github.com/spec-kit/storefront-auth/internal/domain"

// LoginRequest payload for POST /api/auth/login.
type LoginRequest struct {
	Email string `json:"email"`
	Senha string `json:"senha"`
}

// RegisterRequest payload for POST /api/auth/cadastro.
type RegisterRequest struct {
	Nome  string `json:"nome"`
	Email string `json:"email"`
	Senha string `json:"senha"`
}

// PasswordResetRequest payload for POST /api/auth/senha/esqueci.
type PasswordResetRequest struct {
	Email string `json:"email"`
}

// PasswordResetConfirmRequest payload for POST /api/auth/senha/redefinir.
type PasswordResetConfirmRequest struct {
	Token string `json:"token"`
	Senha string `json:"senha"`
}

// Usuario is the public view of an account.
type Usuario struct {
	ID    string      `json:"id"`
	Nome  string      `json:"nome"`
	Email string      `json:"email"`
	Role  domain.Role `json:"role"`
}

// LoginResponse answers POST /api/auth/login.
type LoginResponse struct {
	Sucesso  bool     `json:"sucesso"`
	Token    string   `json:"token,omitempty"`
	Usuario  *Usuario `json:"usuario,omitempty"`
	Mensagem string   `json:"mensagem,omitempty"`
}

// SessionResponse answers GET /api/auth/session.
type SessionResponse struct {
	Autenticado bool     `json:"autenticado"`
	Usuario     *Usuario `json:"usuario,omitempty"`
}

// StatusResponse is the minimal acknowledgement body.
type StatusResponse struct {
	Sucesso  bool   `json:"sucesso"`
	Mensagem string `json:"mensagem,omitempty"`
}

// UsuarioFromUser maps a stored account.
func UsuarioFromUser(user *domain.User) *Usuario {
	if user == nil {
		return nil
	}
	return &Usuario{ID: user.ID, Nome: user.Name, Email: user.Email, Role: user.Role}
}

// UsuarioFromClaims maps the identity carried by a session token.
func UsuarioFromClaims(claims *domain.SessionClaims) *Usuario {
	if claims == nil {
		return nil
	}
	return &Usuario{ID: claims.Subject, Nome: claims.Name, Email: claims.Email, Role: claims.Role}
}
