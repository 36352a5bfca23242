package quiz

import (
	"context"
	"log/slog"
	"time"
)

const sweepBatch = 100

// SweepExpired eagerly times out in-progress attempts past their deadline.
// It returns how many attempts this call finalized.
func (e *Engine) SweepExpired(ctx context.Context) (int, error) {
	ids, err := e.store.ListExpired(ctx, e.now(), sweepBatch)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, id := range ids {
		expired, err := e.ExpireAttempt(ctx, id)
		if err != nil {
			return n, err
		}
		if expired {
			n++
		}
	}
	return n, nil
}

// Sweeper runs SweepExpired on a fixed interval until its context ends.
type Sweeper struct {
	Engine   *Engine
	Interval time.Duration
	Logger   *slog.Logger
}

func (s *Sweeper) Run(ctx context.Context) {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	t := time.NewTicker(s.Interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			n, err := s.Engine.SweepExpired(ctx)
			if err != nil {
				logger.Error("sweep expired attempts", "err", err)
				continue
			}
			if n > 0 {
				logger.Info("swept expired attempts", "count", n)
			}
		}
	}
}
