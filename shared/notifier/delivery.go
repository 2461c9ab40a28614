package notifier

import (
	"context"
	"errors"
	"time"

	"github.com/felixgeelhaar/fortify/retry"
	"github.com/rs/zerolog"
)

// RetryConfig configures delivery retries.
type RetryConfig struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
}

// DefaultRetryConfig returns the delivery retry defaults.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:  3,
		InitialDelay: time.Second,
		MaxDelay:     30 * time.Second,
	}
}

type deliverer struct {
	sender  Sender
	retrier retry.Retry[struct{}]
	logger  *zerolog.Logger
}

func newDeliverer(logger *zerolog.Logger, sender Sender, cfg RetryConfig) *deliverer {
	def := DefaultRetryConfig()
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if cfg.InitialDelay <= 0 {
		cfg.InitialDelay = def.InitialDelay
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = def.MaxDelay
	}

	return &deliverer{
		sender: sender,
		retrier: retry.New[struct{}](retry.Config{
			MaxAttempts:   cfg.MaxAttempts,
			InitialDelay:  cfg.InitialDelay,
			MaxDelay:      cfg.MaxDelay,
			Multiplier:    2.0,
			BackoffPolicy: retry.BackoffExponential,
			Jitter:        true,
			IsRetryable: func(err error) bool {
				return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
			},
		}),
		logger: logger,
	}
}

func (d *deliverer) deliver(ctx context.Context, msg Message) error {
	start := time.Now()

	_, err := d.retrier.Do(ctx, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, d.sender.Send(msg.Email())
	})
	if err != nil {
		d.logger.Error().
			Err(err).
			Str("message_id", msg.ID.String()).
			Str("subject", msg.Subject).
			Msg("failed to deliver notification")
		return err
	}

	d.logger.Debug().
		Str("message_id", msg.ID.String()).
		Str("subject", msg.Subject).
		Dur("duration", time.Since(start)).
		Msg("notification delivered")

	return nil
}
