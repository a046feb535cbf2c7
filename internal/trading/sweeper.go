package trading

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// Sweeper periodically releases idempotency keys past their replay window
// so clients may reuse them.
type Sweeper struct {
	db       *Database
	interval time.Duration
	now      func() time.Time
}

func NewSweeper(db *Database, interval time.Duration) *Sweeper {
	return &Sweeper{
		db:       db,
		interval: interval,
		now:      time.Now,
	}
}

// Start runs the sweep loop until ctx is done
func (s *Sweeper) Start(ctx context.Context) {
	logger := log.With().Str("component", "idempotency_sweeper").Logger()
	logger.Info().Dur("interval", s.interval).Msg("starting idempotency sweeper")

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("shutting down idempotency sweeper")
			return
		case <-ticker.C:
			if _, err := s.Sweep(ctx); err != nil {
				logger.Error().Err(err).Msg("failed to release expired idempotency keys")
			}
		}
	}
}

func (s *Sweeper) Sweep(ctx context.Context) (int64, error) {
	released, err := s.db.ReleaseExpiredKeys(ctx, s.now())
	if err != nil {
		return 0, err
	}
	if released > 0 {
		log.Debug().
			Str("component", "idempotency_sweeper").
			Int64("released", released).
			Msg("released expired idempotency keys")
	}
	return released, nil
}
