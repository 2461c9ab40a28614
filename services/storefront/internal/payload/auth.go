package payload

import "strings"

type SignupRequest struct {
	Email           string `json:"email"            validate:"required,email"`
	Password        string `json:"password"         validate:"required"`
	ConfirmPassword string `json:"confirm_password" validate:"required"`
}

func (r *SignupRequest) Normalize() {
	r.Email = strings.TrimSpace(r.Email)
}

type SignupResponse struct {
	AccountID string `json:"account_id"`
	Email     string `json:"email"`
}

type LoginRequest struct {
	Email    string `json:"email"    validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

func (r *LoginRequest) Normalize() {
	r.Email = strings.TrimSpace(r.Email)
}

type LoginResponse struct {
	AccountID string `json:"account_id"`
}

type SessionResponse struct {
	IsAuthenticated bool   `json:"is_authenticated"`
	AccountID       string `json:"account_id,omitempty"`
	Email           string `json:"email,omitempty"`
}

type MessageResponse struct {
	Message string `json:"message"`
}

type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

type ErrorBody struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}
