// Package worker runs the background sweep that promotes scheduled batches and
// expires idempotency tokens.
package worker

import (
	"context"
	"log/slog"
	"time"

	"prodflow/internal/lifecycle"
)

// Sweeps is the part of the lifecycle service the sweeper drives.
type Sweeps interface {
	PromoteDue(ctx context.Context, limit int) (lifecycle.SweepResult, error)
	ExpireTokens(ctx context.Context, retention time.Duration) (int64, error)
}

// Config holds configuration for the sweeper.
type Config struct {
	ID           string
	PollInterval time.Duration
	MaxBackoff   time.Duration // Maximum backoff when nothing is due (default: 1m)
	BatchSize    int

	TokenRetention     time.Duration // Zero disables token expiry
	TokenSweepInterval time.Duration // Interval between token expiry passes (default: 1h)
}

// Sweeper is the polling loop behind the worker binary.
type Sweeper struct {
	svc    Sweeps
	config Config
	logger *slog.Logger
	done   chan struct{}
}

// New creates a sweeper.
func New(svc Sweeps, config Config, logger *slog.Logger) *Sweeper {
	if config.PollInterval <= 0 {
		config.PollInterval = 5 * time.Second
	}
	if config.MaxBackoff < config.PollInterval {
		config.MaxBackoff = time.Minute
		if config.MaxBackoff < config.PollInterval {
			config.MaxBackoff = config.PollInterval
		}
	}
	if config.BatchSize <= 0 {
		config.BatchSize = 100
	}
	if config.TokenSweepInterval <= 0 {
		config.TokenSweepInterval = time.Hour
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Sweeper{
		svc:    svc,
		config: config,
		logger: logger.With("sweeper", config.ID),
		done:   make(chan struct{}),
	}
}

// Run polls until ctx is cancelled. Passes run detached from ctx, so one that is
// in flight when the context ends finishes before Run returns.
func (s *Sweeper) Run(ctx context.Context) error {
	s.logger.Info("sweeper starting",
		"poll_interval", s.config.PollInterval, "max_backoff", s.config.MaxBackoff, "batch_size", s.config.BatchSize)

	pollNow := make(chan struct{}, 1)
	currentBackoff := s.config.PollInterval

	triggerPoll := func() {
		select {
		case pollNow <- struct{}{}:
		default:
		}
	}

	tokenTicker := time.NewTicker(s.config.TokenSweepInterval)
	defer tokenTicker.Stop()

	triggerPoll()
	s.expireTokens(ctx)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("sweeper stopped")
			close(s.done)
			return ctx.Err()

		case <-time.After(currentBackoff):
			triggerPoll()

		case <-tokenTicker.C:
			s.expireTokens(ctx)

		case <-pollNow:
			res, err := s.svc.PromoteDue(context.WithoutCancel(ctx), s.config.BatchSize)
			if err != nil {
				s.logger.Error("promote due batches failed", "error", err)
				currentBackoff = nextBackoff(currentBackoff, s.config.MaxBackoff)
				continue
			}

			if res.Promoted == 0 {
				currentBackoff = nextBackoff(currentBackoff, s.config.MaxBackoff)
				continue
			}
			currentBackoff = s.config.PollInterval

			// A full batch means more may be due right now.
			if res.Promoted >= s.config.BatchSize {
				triggerPoll()
			}
		}
	}
}

func (s *Sweeper) expireTokens(ctx context.Context) {
	if s.config.TokenRetention <= 0 {
		return
	}
	n, err := s.svc.ExpireTokens(context.WithoutCancel(ctx), s.config.TokenRetention)
	if err != nil {
		s.logger.Error("expire idempotency tokens failed", "error", err)
		return
	}
	if n > 0 {
		s.logger.Info("expired idempotency tokens", "count", n)
	}
}

// Done returns a channel that is closed when the sweeper has fully stopped.
func (s *Sweeper) Done() <-chan struct{} {
	return s.done
}

// nextBackoff doubles current, capped at max.
func nextBackoff(current, max time.Duration) time.Duration {
	current *= 2
	if current > max {
		current = max
	}
	return current
}
