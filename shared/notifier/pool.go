package notifier

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// PoolConfig configures the in-process dispatcher.
type PoolConfig struct {
	Workers         int
	QueueSize       int
	DeliveryTimeout time.Duration
	Retry           RetryConfig
}

// DefaultPoolConfig returns sensible defaults.
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		Workers:         2,
		QueueSize:       256,
		DeliveryTimeout: 2 * time.Minute,
		Retry:           DefaultRetryConfig(),
	}
}

// Pool is an in-process Dispatcher backed by a bounded channel and a fixed set of workers.
type Pool struct {
	logger    *zerolog.Logger
	deliverer *deliverer
	jobs      chan Message
	workers   int
	timeout   time.Duration

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

// NewPool creates a new worker pool. Call Start to begin delivering.
func NewPool(logger *zerolog.Logger, sender Sender, cfg PoolConfig) *Pool {
	def := DefaultPoolConfig()
	if cfg.Workers <= 0 {
		cfg.Workers = def.Workers
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = def.QueueSize
	}
	if cfg.DeliveryTimeout <= 0 {
		cfg.DeliveryTimeout = def.DeliveryTimeout
	}

	return &Pool{
		logger:    logger,
		deliverer: newDeliverer(logger, sender, cfg.Retry),
		jobs:      make(chan Message, cfg.QueueSize),
		workers:   cfg.Workers,
		timeout:   cfg.DeliveryTimeout,
	}
}

// Start launches the workers. They run until Shutdown closes the queue.
func (p *Pool) Start(ctx context.Context) {
	p.logger.Info().Int("workers", p.workers).Msg("starting notification workers")

	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker(ctx, i)
	}
}

// Dispatch enqueues msg without blocking.
func (p *Pool) Dispatch(_ context.Context, msg Message) error {
	msg.prepare()

	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return ErrDispatcherClosed
	}

	select {
	case p.jobs <- msg:
		return nil
	default:
		return ErrQueueFull
	}
}

// Shutdown stops accepting messages and waits for queued ones to be delivered.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.jobs)
	}
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Pool) worker(ctx context.Context, id int) {
	defer p.wg.Done()

	for msg := range p.jobs {
		deliverCtx, cancel := context.WithTimeout(ctx, p.timeout)
		_ = p.deliverer.deliver(deliverCtx, msg)
		cancel()
	}

	p.logger.Debug().Int("worker_id", id).Msg("notification worker stopped")
}
