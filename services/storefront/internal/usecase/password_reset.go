package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
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

// PasswordResetUsecase defines the business logic for password reset token operations.
type PasswordResetUsecase interface {
	// RequestPasswordReset issues a reset token for the account and emails the reset link.
	RequestPasswordReset(ctx context.Context, email string) error

	// ValidatePasswordResetToken checks that the token exists and has not expired.
	ValidatePasswordResetToken(ctx context.Context, params ValidateResetTokenParams) (*model.Account, error)

	// ResetPassword replaces the password and consumes the token in one step.
	ResetPassword(ctx context.Context, params ResetPasswordParams) error

	// PurgeExpiredTokens clears reset tokens that expired longer ago than the retention period.
	PurgeExpiredTokens(ctx context.Context) (int64, error)
}

// ValidateResetTokenParams defines the parameters for token validation.
// AccountID is optional; when set the token must belong to that account.
type ValidateResetTokenParams struct {
	AccountID string
	Token     string
}

// ResetPasswordParams defines the parameters for completing a reset.
type ResetPasswordParams struct {
	AccountID       string
	Token           string
	NewPassword     string
	ConfirmPassword string
}

const resetSubject = "Password reset"

type passwordResetUsecase struct {
	logger      *zerolog.Logger
	accountRepo repository.AccountRepository
	hasher      *security.Hasher
	dispatcher  notifier.Dispatcher
	cfg         *config.StorefrontConfig
	now         func() time.Time
}

// NewPasswordResetUsecase creates a new instance of PasswordResetUsecase.
func NewPasswordResetUsecase(
	logger *zerolog.Logger,
	accountRepo repository.AccountRepository,
	hasher *security.Hasher,
	dispatcher notifier.Dispatcher,
	cfg *config.StorefrontConfig,
) PasswordResetUsecase {
	return &passwordResetUsecase{
		logger:      logger,
		accountRepo: accountRepo,
		hasher:      hasher,
		dispatcher:  dispatcher,
		cfg:         cfg,
		now:         time.Now,
	}
}

func (u *passwordResetUsecase) RequestPasswordReset(ctx context.Context, email string) error {
	account, err := u.accountRepo.GetAccountByEmail(ctx, NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return ErrAccountNotFound
		}
		return storeError(err)
	}

	token, err := security.GenerateToken()
	if err != nil {
		return err
	}

	// A newer request overwrites the previous token.
	account, err = u.accountRepo.SetResetToken(ctx, account.ID.Hex(), repository.SetResetTokenParams{
		TokenHash: security.HashToken(token),
		ExpiresAt: u.now().Add(u.cfg.Token.PasswordResetTokenExpiresIn),
	})
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return ErrAccountNotFound
		}
		return storeError(err)
	}

	resetLink := fmt.Sprintf("%s/%s", strings.TrimRight(u.cfg.AppPasswordResetURL, "/"), token)
	htmlBody := fmt.Sprintf(`
		<p>You requested a password reset.</p>
		<p>Click the <a href="%s">link</a> to set a new password.</p>
		<p>This link will expire in %s.</p>
	`, resetLink, u.cfg.Token.PasswordResetTokenExpiresIn)

	if err := u.dispatcher.Dispatch(ctx, notifier.Message{
		To:       account.Email,
		Subject:  resetSubject,
		HTMLBody: htmlBody,
	}); err != nil {
		u.logger.Error().Err(err).Str("subject", resetSubject).Msg("failed to dispatch notification")
	}

	return nil
}

func (u *passwordResetUsecase) ValidatePasswordResetToken(
	ctx context.Context,
	params ValidateResetTokenParams,
) (*model.Account, error) {
	if params.Token == "" {
		return nil, ErrTokenInvalid
	}

	account, err := u.accountRepo.GetAccountByResetToken(ctx, security.HashToken(params.Token))
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrTokenInvalid
		}
		return nil, storeError(err)
	}

	if params.AccountID != "" && params.AccountID != account.ID.Hex() {
		return nil, ErrTokenInvalid
	}

	if !account.HasResetToken() {
		return nil, ErrTokenInvalid
	}

	if account.ResetTokenExpired(u.now()) {
		return nil, ErrTokenExpired
	}

	return account, nil
}

func (u *passwordResetUsecase) ResetPassword(ctx context.Context, params ResetPasswordParams) error {
	if params.AccountID == "" {
		return ErrTokenInvalid
	}

	account, err := u.ValidatePasswordResetToken(ctx, ValidateResetTokenParams{
		AccountID: params.AccountID,
		Token:     params.Token,
	})
	if err != nil {
		return err
	}

	if params.NewPassword != params.ConfirmPassword {
		return ErrPasswordMismatch
	}

	if utf8.RuneCountInString(params.NewPassword) < MinPasswordLength {
		return ErrWeakPassword
	}

	passwordHash, err := u.hasher.Hash(params.NewPassword)
	if err != nil {
		return err
	}

	tokenHash := security.HashToken(params.Token)

	_, err = u.accountRepo.ConsumeResetToken(ctx, account.ID.Hex(), repository.ConsumeResetTokenParams{
		TokenHash:    tokenHash,
		PasswordHash: passwordHash,
		Now:          u.now(),
	})
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return u.classifyLostRace(ctx, account.ID.Hex(), tokenHash)
		}
		return storeError(err)
	}

	return nil
}

// classifyLostRace explains why the conditional reset write matched nothing.
func (u *passwordResetUsecase) classifyLostRace(ctx context.Context, accountID, tokenHash string) error {
	account, err := u.accountRepo.GetAccount(ctx, accountID)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return ErrTokenInvalid
		}
		return storeError(err)
	}

	if !account.HasResetToken() || account.ResetTokenHash != tokenHash {
		return ErrTokenInvalid
	}

	if account.ResetTokenExpired(u.now()) {
		return ErrTokenExpired
	}

	return ErrTokenInvalid
}

func (u *passwordResetUsecase) PurgeExpiredTokens(ctx context.Context) (int64, error) {
	// Tokens inside the retention window must keep answering ErrTokenExpired.
	cutoff := u.now().Add(-u.cfg.Token.PurgeRetention)

	n, err := u.accountRepo.ClearExpiredResetTokens(ctx, cutoff)
	if err != nil {
		return 0, storeError(err)
	}

	return n, nil
}
