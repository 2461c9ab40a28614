package handler

import (
	"github.com/felixgeelhaar/fortify/ratelimit"
	"github.com/rs/zerolog"

	"github.com/vasapolrittideah/storefront/services/storefront/internal/config"
	"github.com/vasapolrittideah/storefront/services/storefront/internal/payload"
	"github.com/vasapolrittideah/storefront/services/storefront/internal/repository"
	"github.com/vasapolrittideah/storefront/services/storefront/internal/usecase"
	"github.com/vasapolrittideah/storefront/shared/auth"
)

type storefrontHTTPHandler struct {
	logger               *zerolog.Logger
	authUsecase          usecase.AuthUsecase
	passwordResetUsecase usecase.PasswordResetUsecase
	sessionRepo          repository.SessionRepository
	jwtAuth              auth.JWTAuthenticator
	validator            *payload.Validator
	limiter              ratelimit.RateLimiter
	cfg                  *config.StorefrontConfig
}

// Dependencies groups everything the HTTP surface needs. Limiter may be nil to disable rate limiting.
type Dependencies struct {
	Logger               *zerolog.Logger
	AuthUsecase          usecase.AuthUsecase
	PasswordResetUsecase usecase.PasswordResetUsecase
	SessionRepo          repository.SessionRepository
	JWTAuth              auth.JWTAuthenticator
	Validator            *payload.Validator
	Limiter              ratelimit.RateLimiter
	Config               *config.StorefrontConfig
}

func newStorefrontHTTPHandler(deps Dependencies) *storefrontHTTPHandler {
	return &storefrontHTTPHandler{
		logger:               deps.Logger,
		authUsecase:          deps.AuthUsecase,
		passwordResetUsecase: deps.PasswordResetUsecase,
		sessionRepo:          deps.SessionRepo,
		jwtAuth:              deps.JWTAuth,
		validator:            deps.Validator,
		limiter:              deps.Limiter,
		cfg:                  deps.Config,
	}
}
