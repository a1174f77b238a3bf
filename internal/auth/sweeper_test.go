package auth

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"
)

type failingRevocations struct {
	err error
}

func (f failingRevocations) Record(context.Context, string, time.Time) error { return f.err }
func (f failingRevocations) IsRevoked(context.Context, string) (bool, error) {
	return false, f.err
}
func (f failingRevocations) PruneExpired(context.Context, time.Time) (int64, error) {
	return 0, f.err
}

func TestRevocationSweeper_Sweep(t *testing.T) {
	store := NewMemoryRevocationStore()
	ctx := context.Background()
	now := time.Unix(1_780_000_000, 0)

	store.Record(ctx, "old", now.Add(-time.Minute)) //nolint:errcheck // memory store never fails
	store.Record(ctx, "new", now.Add(time.Minute))  //nolint:errcheck // memory store never fails

	sweeper := NewRevocationSweeper(store, 0, slog.Default())
	sweeper.now = func() time.Time { return now }

	var observed int64
	sweeper.OnSweep = func(n int64, _ error) { observed = n }

	n, err := sweeper.Sweep(ctx)
	if err != nil {
		t.Fatalf("Sweep() error = %v", err)
	}
	if n != 1 || observed != 1 {
		t.Errorf("Sweep() = %d (observed %d), want 1", n, observed)
	}
	if store.Len() != 1 {
		t.Errorf("Len() = %d, want 1", store.Len())
	}
}

func TestRevocationSweeper_SweepError(t *testing.T) {
	boom := errors.New("store down")
	sweeper := NewRevocationSweeper(failingRevocations{err: boom}, 0, nil)

	var observedErr error
	sweeper.OnSweep = func(_ int64, err error) { observedErr = err }

	if _, err := sweeper.Sweep(context.Background()); !errors.Is(err, boom) {
		t.Errorf("Sweep() error = %v, want %v", err, boom)
	}
	if !errors.Is(observedErr, boom) {
		t.Errorf("OnSweep error = %v, want %v", observedErr, boom)
	}
}

func TestRevocationSweeper_RunStopsOnCancel(t *testing.T) {
	sweeper := NewRevocationSweeper(NewMemoryRevocationStore(), 5*time.Millisecond, nil)

	var sweeps atomic.Int64
	sweeper.OnSweep = func(int64, error) { sweeps.Add(1) }

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		sweeper.Run(ctx)
		close(done)
	}()

	deadline := time.After(2 * time.Second)
	for sweeps.Load() < 2 {
		select {
		case <-deadline:
			t.Fatal("sweeper did not tick")
		case <-time.After(time.Millisecond):
		}
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestRevocationSweeper_DisabledInterval(t *testing.T) {
	sweeper := NewRevocationSweeper(NewMemoryRevocationStore(), 0, nil)

	done := make(chan struct{})
	go func() {
		sweeper.Run(context.Background())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run with zero interval should return immediately")
	}
}
