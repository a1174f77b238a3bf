package auth

import (
	"context"
	"log/slog"
	"time"
)

// RevocationSweeper periodically drops revocation records whose token has
// expired. An expired token is rejected by verification anyway, so the
// record no longer changes any outcome.
type RevocationSweeper struct {
	store    RevocationStore
	interval time.Duration
	logger   *slog.Logger
	now      func() time.Time

	// OnSweep, when set, observes every sweep result.
	OnSweep func(removed int64, err error)
}

// NewRevocationSweeper creates a sweeper. A non-positive interval disables
// the background loop; Sweep can still be called directly.
func NewRevocationSweeper(store RevocationStore, interval time.Duration, logger *slog.Logger) *RevocationSweeper {
	if logger == nil {
		logger = slog.Default()
	}
	return &RevocationSweeper{
		store:    store,
		interval: interval,
		logger:   logger,
		now:      time.Now,
	}
}

// Sweep prunes expired records once.
func (s *RevocationSweeper) Sweep(ctx context.Context) (int64, error) {
	n, err := s.store.PruneExpired(ctx, s.now())
	if s.OnSweep != nil {
		s.OnSweep(n, err)
	}
	if err != nil {
		s.logger.Error("revocation sweep failed", "error", err)
		return 0, err
	}
	if n > 0 {
		s.logger.Debug("revocation sweep removed expired records", "removed", n)
	}
	return n, nil
}

// Run sweeps on every tick until ctx is cancelled.
func (s *RevocationSweeper) Run(ctx context.Context) {
	if s.interval <= 0 {
		return
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep(ctx) //nolint:errcheck // logged inside Sweep
		}
	}
}
