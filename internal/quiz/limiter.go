package quiz

import (
	"context"
	"fmt"
	"time"
)

// Limits caps attempts per (quiz, user). Zero disables a cap.
type Limits struct {
	MaxAttempts       int
	MaxAttemptsPerDay int
}

// limitsFor applies per-quiz overrides on top of the defaults.
func limitsFor(def Limits, q Quiz) Limits {
	l := def
	if q.MaxAttempts > 0 {
		l.MaxAttempts = q.MaxAttempts
	}
	if q.MaxAttemptsPerDay > 0 {
		l.MaxAttemptsPerDay = q.MaxAttemptsPerDay
	}
	return l
}

// Limiter checks attempt history at call time; it keeps no counters.
type Limiter struct {
	store AttemptStore
	loc   *time.Location
}

func NewLimiter(store AttemptStore, loc *time.Location) *Limiter {
	if loc == nil {
		loc = time.Local
	}
	return &Limiter{store: store, loc: loc}
}

// CheckAllowed returns ErrAttemptLimitExceeded if either cap is reached.
func (l *Limiter) CheckAllowed(ctx context.Context, quizID, userID string, limits Limits, now time.Time) error {
	if limits.MaxAttempts > 0 {
		n, err := l.store.CountAttempts(ctx, quizID, userID)
		if err != nil {
			return fmt.Errorf("count attempts: %w", err)
		}
		if n >= limits.MaxAttempts {
			return fmt.Errorf("%w: %d of %d attempts used", ErrAttemptLimitExceeded, n, limits.MaxAttempts)
		}
	}
	if limits.MaxAttemptsPerDay > 0 {
		from, to := DayWindow(now, l.loc)
		n, err := l.store.CountAttemptsInWindow(ctx, quizID, userID, from, to)
		if err != nil {
			return fmt.Errorf("count attempts in window: %w", err)
		}
		if n >= limits.MaxAttemptsPerDay {
			return fmt.Errorf("%w: %d of %d attempts used today", ErrAttemptLimitExceeded, n, limits.MaxAttemptsPerDay)
		}
	}
	return nil
}

// DayWindow returns [local midnight, next local midnight) around now.
func DayWindow(now time.Time, loc *time.Location) (time.Time, time.Time) {
	t := now.In(loc)
	from := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
	return from, from.AddDate(0, 0, 1)
}
