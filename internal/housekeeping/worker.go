// Package housekeeping periodically removes tokens that can never be used
// again.
package housekeeping

import (
	"context"
	"log/slog"
	"time"

	"github.com/Skotchmaster/userauth/internal/clock"
)

type Store interface {
	DeleteStaleRefresh(ctx context.Context, now time.Time) (int64, error)
	DeleteStaleActivations(ctx context.Context, now time.Time) (int64, error)
}

type Worker struct {
	Store    Store
	Clock    clock.Clock
	Interval time.Duration
	Logger   *slog.Logger
}

type Stats struct {
	Refresh     int64
	Activations int64
}

// Sweep runs one cleanup pass.
func (w *Worker) Sweep(ctx context.Context) (Stats, error) {
	now := w.Clock.Now()

	var st Stats
	n, err := w.Store.DeleteStaleActivations(ctx, now)
	if err != nil {
		return st, err
	}
	st.Activations = n

	n, err = w.Store.DeleteStaleRefresh(ctx, now)
	if err != nil {
		return st, err
	}
	st.Refresh = n
	return st, nil
}

// Run sweeps once immediately and then every Interval until ctx is done.
func (w *Worker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.Interval)
	defer ticker.Stop()

	for {
		w.sweepAndLog(ctx)
		select {
		case <-ticker.C:
		case <-ctx.Done():
			return
		}
	}
}

func (w *Worker) sweepAndLog(ctx context.Context) {
	sweepCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	st, err := w.Sweep(sweepCtx)
	if err != nil {
		if ctx.Err() == nil {
			w.Logger.Error("housekeeping_failed", "error", err)
		}
		return
	}
	if st.Refresh > 0 || st.Activations > 0 {
		w.Logger.Info("housekeeping_done", "refresh_deleted", st.Refresh, "activations_deleted", st.Activations)
	}
}
