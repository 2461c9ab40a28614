package handler

import (
	"errors"
	"net/http"

	"github.com/vasapolrittideah/storefront/services/storefront/internal/payload"
	"github.com/vasapolrittideah/storefront/services/storefront/internal/usecase"
)

func (h *storefrontHTTPHandler) Healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *storefrontHTTPHandler) Signup(w http.ResponseWriter, r *http.Request) {
	var req payload.SignupRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	account, err := h.authUsecase.Register(r.Context(), usecase.RegisterParams{
		Email:           req.Email,
		Password:        req.Password,
		ConfirmPassword: req.ConfirmPassword,
	})
	if err != nil {
		h.writeUsecaseError(w, err, "failed to register")
		return
	}

	writeJSON(w, http.StatusCreated, payload.SignupResponse{
		AccountID: account.ID.Hex(),
		Email:     account.Email,
	})
}

func (h *storefrontHTTPHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req payload.LoginRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	grant, err := h.authUsecase.Login(r.Context(), sessionFromContext(r.Context()), usecase.LoginParams{
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		h.writeUsecaseError(w, err, "failed to login")
		return
	}

	if err := h.setSessionCookie(w, grant.Session); err != nil {
		h.logger.Error().Err(err).Msg("failed to sign session cookie")
		writeError(w, http.StatusInternalServerError, "internal", "something went wrong")
		return
	}

	writeJSON(w, http.StatusOK, payload.LoginResponse{AccountID: grant.AccountID})
}

func (h *storefrontHTTPHandler) Logout(w http.ResponseWriter, r *http.Request) {
	// The cookie goes regardless of whether the store delete succeeded.
	h.clearSessionCookie(w)

	if err := h.authUsecase.Logout(r.Context(), sessionFromContext(r.Context())); err != nil {
		h.writeUsecaseError(w, err, "failed to logout")
		return
	}

	writeJSON(w, http.StatusOK, payload.MessageResponse{Message: "Logged out."})
}

func (h *storefrontHTTPHandler) Session(w http.ResponseWriter, r *http.Request) {
	session := sessionFromContext(r.Context())

	account, err := h.authUsecase.CurrentAccount(r.Context(), session)
	if err != nil {
		if errors.Is(err, usecase.ErrAccountNotFound) {
			writeJSON(w, http.StatusOK, payload.SessionResponse{IsAuthenticated: false})
			return
		}

		h.writeUsecaseError(w, err, "failed to resolve session account")
		return
	}

	writeJSON(w, http.StatusOK, payload.SessionResponse{
		IsAuthenticated: true,
		AccountID:       account.ID.Hex(),
		Email:           account.Email,
	})
}
