package payload

import "strings"

type ResetRequest struct {
	Email string `json:"email" validate:"required,email"`
}

func (r *ResetRequest) Normalize() {
	r.Email = strings.TrimSpace(r.Email)
}

type ResetTokenResponse struct {
	AccountID string `json:"account_id"`
	Token     string `json:"token"`
}

type NewPasswordRequest struct {
	AccountID       string `json:"account_id"       validate:"required"`
	Token           string `json:"token"            validate:"required"`
	NewPassword     string `json:"new_password"     validate:"required"`
	ConfirmPassword string `json:"confirm_password" validate:"required"`
}
