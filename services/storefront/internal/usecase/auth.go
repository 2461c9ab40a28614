package usecase

import (
	"context"
	"errors"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/v2/mongo"

	"github.com/vasapolrittideah/storefront/services/storefront/internal/config"
	"github.com/vasapolrittideah/storefront/services/storefront/internal/model"
	"github.com/vasapolrittideah/storefront/services/storefront/internal/repository"
	"github.com/vasapolrittideah/storefront/shared/notifier"
	"github.com/vasapolrittideah/storefront/shared/security"
)

// AuthUsecase defines the interface for authentication-related use cases.
type AuthUsecase interface {
	// Login verifies the credentials and binds a rotated copy of session to the account.
	Login(ctx context.Context, session model.Session, params LoginParams) (*SessionGrant, error)

	// Register creates an account with an empty cart and queues a welcome email.
	Register(ctx context.Context, params RegisterParams) (*model.Account, error)

	// Logout destroys the session. On error the caller must still treat the session as gone.
	Logout(ctx context.Context, session model.Session) error

	// CurrentAccount resolves the account an authenticated session points at.
	CurrentAccount(ctx context.Context, session model.Session) (*model.Account, error)
}

// LoginParams defines the parameters for account login.
type LoginParams struct {
	Email    string
	Password string
}

// RegisterParams defines the parameters for account registration.
type RegisterParams struct {
	Email           string
	Password        string
	ConfirmPassword string
}

// SessionGrant is the outcome of a successful login.
type SessionGrant struct {
	AccountID string
	Session   model.Session
}

const (
	welcomeSubject = "Signup succeeded!"
	welcomeBody    = "<h1>You successfully signed up!</h1>"

	dummyPassword = "storefront-timing-equalizer"
)

type authUsecase struct {
	logger      *zerolog.Logger
	accountRepo repository.AccountRepository
	sessionRepo repository.SessionRepository
	hasher      *security.Hasher
	dispatcher  notifier.Dispatcher
	cfg         *config.StorefrontConfig
	now         func() time.Time

	dummyOnce sync.Once
	dummyHash string
}

func NewAuthUsecase(
	logger *zerolog.Logger,
	accountRepo repository.AccountRepository,
	sessionRepo repository.SessionRepository,
	hasher *security.Hasher,
	dispatcher notifier.Dispatcher,
	cfg *config.StorefrontConfig,
) AuthUsecase {
	return &authUsecase{
		logger:      logger,
		accountRepo: accountRepo,
		sessionRepo: sessionRepo,
		hasher:      hasher,
		dispatcher:  dispatcher,
		cfg:         cfg,
		now:         time.Now,
	}
}

func (u *authUsecase) Login(ctx context.Context, session model.Session, params LoginParams) (*SessionGrant, error) {
	account, err := u.accountRepo.GetAccountByEmail(ctx, NormalizeEmail(params.Email))
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			u.equalizeTiming(params.Password)
			return nil, ErrAccountNotFound
		}

		return nil, storeError(err)
	}

	if ok, err := u.hasher.Verify(params.Password, account.PasswordHash); err != nil {
		return nil, err
	} else if !ok {
		return nil, ErrCredentialMismatch
	}

	sessionID, err := security.GenerateToken()
	if err != nil {
		return nil, err
	}

	now := u.now()
	granted := session
	granted.ID = sessionID
	granted.AccountID = account.ID.Hex()
	granted.IsAuthenticated = true
	granted.ExpiresAt = now.Add(u.cfg.Session.TTL)
	granted.CreatedAt = now
	granted.UpdatedAt = now

	if err := u.sessionRepo.SaveSession(ctx, &granted); err != nil {
		return nil, storeError(err)
	}

	if session.IsPersisted() {
		if err := u.sessionRepo.DeleteSession(ctx, session.ID); err != nil {
			// The old id is no longer referenced by the client; the TTL index will collect it.
			u.logger.Warn().Err(err).Msg("failed to delete rotated session")
		}
	}

	return &SessionGrant{
		AccountID: granted.AccountID,
		Session:   granted,
	}, nil
}

func (u *authUsecase) Register(ctx context.Context, params RegisterParams) (*model.Account, error) {
	if params.Password != params.ConfirmPassword {
		return nil, ErrPasswordMismatch
	}

	if utf8.RuneCountInString(params.Password) < MinPasswordLength {
		return nil, ErrWeakPassword
	}

	email := NormalizeEmail(params.Email)

	_, err := u.accountRepo.GetAccountByEmail(ctx, email)
	if err == nil {
		return nil, ErrDuplicateEmail
	} else if !errors.Is(err, mongo.ErrNoDocuments) {
		return nil, storeError(err)
	}

	passwordHash, err := u.hasher.Hash(params.Password)
	if err != nil {
		return nil, err
	}

	account, err := u.accountRepo.CreateAccount(ctx, &model.Account{
		Email:        email,
		PasswordHash: passwordHash,
		Cart:         model.Cart{Items: []model.CartItem{}},
	})
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, ErrDuplicateEmail
		}

		return nil, storeError(err)
	}

	u.notify(ctx, notifier.Message{
		To:       account.Email,
		Subject:  welcomeSubject,
		HTMLBody: welcomeBody,
	})

	return account, nil
}

func (u *authUsecase) Logout(ctx context.Context, session model.Session) error {
	if session.ID == "" {
		return nil
	}

	if err := u.sessionRepo.DeleteSession(ctx, session.ID); err != nil {
		return storeError(err)
	}

	return nil
}

func (u *authUsecase) CurrentAccount(ctx context.Context, session model.Session) (*model.Account, error) {
	if !session.IsAuthenticated || session.AccountID == "" {
		return nil, ErrAccountNotFound
	}

	account, err := u.accountRepo.GetAccount(ctx, session.AccountID)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) || errors.Is(err, repository.ErrInvalidID) {
			return nil, ErrAccountNotFound
		}

		return nil, storeError(err)
	}

	return account, nil
}

// equalizeTiming runs one password verification so unknown emails cost as much as wrong passwords.
func (u *authUsecase) equalizeTiming(password string) {
	u.dummyOnce.Do(func() {
		hash, err := u.hasher.Hash(dummyPassword)
		if err != nil {
			u.logger.Error().Err(err).Msg("failed to prepare dummy password hash")
			return
		}
		u.dummyHash = hash
	})

	if u.dummyHash != "" {
		_, _ = u.hasher.Verify(password, u.dummyHash)
	}
}

func (u *authUsecase) notify(ctx context.Context, msg notifier.Message) {
	if err := u.dispatcher.Dispatch(ctx, msg); err != nil {
		u.logger.Error().Err(err).Str("subject", msg.Subject).Msg("failed to dispatch notification")
	}
}
