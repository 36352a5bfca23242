package events

import (
	"context"
	"errors"

	"github.com/mind-engage/mindengage-training/internal/quiz"
)

// Multi fans an event out to every sink and joins their errors.
type Multi []quiz.EventSink

func (m Multi) Publish(ctx context.Context, e quiz.Event) error {
	var errs []error
	for _, s := range m {
		if err := s.Publish(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
