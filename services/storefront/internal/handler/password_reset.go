package handler

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/vasapolrittideah/storefront/services/storefront/internal/payload"
	"github.com/vasapolrittideah/storefront/services/storefront/internal/usecase"
)

const checkEmailMessage = "If an account exists for that email, a password reset link is on its way."

func (h *storefrontHTTPHandler) RequestPasswordReset(w http.ResponseWriter, r *http.Request) {
	var req payload.ResetRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	err := h.passwordResetUsecase.RequestPasswordReset(r.Context(), req.Email)
	if err != nil && !errors.Is(err, usecase.ErrAccountNotFound) {
		h.writeUsecaseError(w, err, "failed to request password reset")
		return
	}

	// Unknown emails get the same answer so the endpoint cannot be used to probe for accounts.
	writeJSON(w, http.StatusAccepted, payload.MessageResponse{Message: checkEmailMessage})
}

func (h *storefrontHTTPHandler) CheckEmail(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, payload.MessageResponse{Message: checkEmailMessage})
}

func (h *storefrontHTTPHandler) GetNewPassword(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")

	account, err := h.passwordResetUsecase.ValidatePasswordResetToken(r.Context(), usecase.ValidateResetTokenParams{
		Token: token,
	})
	if err != nil {
		h.writeUsecaseError(w, err, "failed to validate password reset token")
		return
	}

	writeJSON(w, http.StatusOK, payload.ResetTokenResponse{
		AccountID: account.ID.Hex(),
		Token:     token,
	})
}

func (h *storefrontHTTPHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req payload.NewPasswordRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	err := h.passwordResetUsecase.ResetPassword(r.Context(), usecase.ResetPasswordParams{
		AccountID:       req.AccountID,
		Token:           req.Token,
		NewPassword:     req.NewPassword,
		ConfirmPassword: req.ConfirmPassword,
	})
	if err != nil {
		h.writeUsecaseError(w, err, "failed to reset password")
		return
	}

	writeJSON(w, http.StatusOK, payload.MessageResponse{Message: "Password updated. Please log in."})
}
