package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/vasapolrittideah/storefront/services/storefront/internal/payload"
	"github.com/vasapolrittideah/storefront/services/storefront/internal/usecase"
)

const maxBodyBytes = 1 << 20

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, payload.ErrorResponse{
		Error: payload.ErrorBody{Code: code, Message: message},
	})
}

// decodeAndValidate reads a JSON body into dst and runs the payload validator.
// It writes the error response itself and reports whether the handler may continue.
func (h *storefrontHTTPHandler) decodeAndValidate(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "request body must be valid JSON")
		return false
	}

	if err := h.validator.Validate(dst); err != nil {
		var verr *payload.ValidationError
		if errors.As(err, &verr) {
			writeJSON(w, http.StatusUnprocessableEntity, payload.ErrorResponse{
				Error: payload.ErrorBody{Code: "validation_failed", Message: verr.Error(), Fields: verr.Fields},
			})
			return false
		}

		h.logger.Error().Err(err).Msg("failed to validate request")
		writeError(w, http.StatusInternalServerError, "internal", "something went wrong")
		return false
	}

	return true
}

// writeUsecaseError maps a usecase error to its HTTP status. Unexpected errors are logged with msg.
func (h *storefrontHTTPHandler) writeUsecaseError(w http.ResponseWriter, err error, msg string) {
	switch {
	case errors.Is(err, usecase.ErrPasswordMismatch):
		writeError(w, http.StatusUnprocessableEntity, "password_mismatch", "Password and confirmed password are different.")
	case errors.Is(err, usecase.ErrWeakPassword):
		writeError(w, http.StatusUnprocessableEntity, "weak_password", "Password minimum length is 6.")
	case errors.Is(err, usecase.ErrDuplicateEmail):
		writeError(w, http.StatusConflict, "duplicate_email", "Email exists already. Please pick a different one.")
	case errors.Is(err, usecase.ErrTokenInvalid):
		writeError(w, http.StatusBadRequest, "token_invalid", "Token is invalid!")
	case errors.Is(err, usecase.ErrTokenExpired):
		writeError(w, http.StatusBadRequest, "token_expired", "Token is expired!")
	case errors.Is(err, usecase.ErrAccountNotFound), errors.Is(err, usecase.ErrCredentialMismatch):
		writeError(w, http.StatusUnauthorized, "invalid_credentials", "Invalid email or password.")
	default:
		h.logger.Error().Err(err).Msg(msg)
		writeError(w, http.StatusInternalServerError, "internal", "something went wrong")
	}
}
