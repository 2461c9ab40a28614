package handler

import (
	"context"
	"errors"
	"net"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/v2/mongo"

	"github.com/vasapolrittideah/storefront/services/storefront/internal/model"
)

type contextKey struct{}

var sessionKey = contextKey{}

func sessionFromContext(ctx context.Context) model.Session {
	session, ok := ctx.Value(sessionKey).(model.Session)
	if !ok {
		return model.Session{}
	}
	return session
}

// logRequests logs one line per response. The level follows the status class:
// 5xx is logged as error, 4xx as warn and everything else as info.
func (h *storefrontHTTPHandler) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}

		var event *zerolog.Event
		switch {
		case status >= http.StatusInternalServerError:
			event = h.logger.Error()
		case status >= http.StatusBadRequest:
			event = h.logger.Warn()
		default:
			event = h.logger.Info()
		}

		// The route pattern is logged instead of the raw path so reset tokens never reach the logs.
		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}

		event.
			Str("request_id", middleware.GetReqID(r.Context())).
			Str("method", r.Method).
			Str("route", route).
			Int("status", status).
			Int("bytes", ww.BytesWritten()).
			Dur("duration", time.Since(start)).
			Msg("response")
	})
}

func (h *storefrontHTTPHandler) recoverPanics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if p := recover(); p != nil {
				if p == http.ErrAbortHandler {
					panic(p)
				}

				h.logger.Error().
					Str("request_id", middleware.GetReqID(r.Context())).
					Interface("panic", p).
					Bytes("stack", debug.Stack()).
					Msg("request panic")

				writeError(w, http.StatusInternalServerError, "internal", "something went wrong")
			}
		}()

		next.ServeHTTP(w, r)
	})
}

// loadSession resolves the session cookie into a model.Session stored on the request context.
// Missing, forged, expired or unknown cookies yield a fresh anonymous session that is not persisted.
func (h *storefrontHTTPHandler) loadSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		session := h.resolveSession(r)
		ctx := context.WithValue(r.Context(), sessionKey, session)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (h *storefrontHTTPHandler) resolveSession(r *http.Request) model.Session {
	if cookie, err := r.Cookie(h.cfg.Session.CookieName); err == nil {
		if sessionID, err := h.jwtAuth.ParseSessionToken(cookie.Value); err == nil {
			session, err := h.sessionRepo.GetSession(r.Context(), sessionID)
			if err == nil {
				return *session
			}
			if !errors.Is(err, mongo.ErrNoDocuments) {
				h.logger.Warn().Err(err).Msg("failed to load session")
			}
		}
	}

	return model.NewAnonymousSession(uuid.NewString(), h.cfg.Session.TTL)
}

func (h *storefrontHTTPHandler) rateLimit(next http.Handler) http.Handler {
	if h.limiter == nil {
		return next
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !h.limiter.Allow(r.Context(), clientIP(r)+" "+r.URL.Path) {
			writeError(w, http.StatusTooManyRequests, "too_many_requests", "Too many requests, please try again later.")
			return
		}

		next.ServeHTTP(w, r)
	})
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func (h *storefrontHTTPHandler) setSessionCookie(w http.ResponseWriter, session model.Session) error {
	value, err := h.jwtAuth.GenerateSessionToken(session.ID, time.Until(session.ExpiresAt))
	if err != nil {
		return err
	}

	http.SetCookie(w, &http.Cookie{
		Name:     h.cfg.Session.CookieName,
		Value:    value,
		Path:     "/",
		Expires:  session.ExpiresAt,
		HttpOnly: true,
		Secure:   h.cfg.Session.Secure,
		SameSite: http.SameSiteLaxMode,
	})

	return nil
}

func (h *storefrontHTTPHandler) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     h.cfg.Session.CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
		HttpOnly: true,
		Secure:   h.cfg.Session.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}
