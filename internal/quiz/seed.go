package quiz

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"
)

// SeedTarget is implemented by MemoryStore and SQLStore.
type SeedTarget interface {
	PutQuiz(ctx context.Context, q Quiz) error
	LinkLesson(ctx context.Context, lessonID, quizID string) error
}

type seedQuiz struct {
	Quiz
	TimeLimitSec int64 `json:"time_limit_sec"`
}

type seedFile struct {
	Quizzes []seedQuiz        `json:"quizzes"`
	Lessons map[string]string `json:"lessons"` // lesson id -> quiz id
}

// LoadSeed reads a JSON fixture of quizzes and lesson links into dst and
// returns the number of quizzes written.
func LoadSeed(ctx context.Context, r io.Reader, dst SeedTarget) (int, error) {
	var f seedFile
	if err := json.NewDecoder(r).Decode(&f); err != nil {
		return 0, fmt.Errorf("decode seed: %w", err)
	}
	for _, sq := range f.Quizzes {
		q := sq.Quiz
		if sq.TimeLimitSec > 0 {
			q.TimeLimit = time.Duration(sq.TimeLimitSec) * time.Second
		}
		if q.ID == "" {
			return 0, fmt.Errorf("seed quiz %q has no id", q.Title)
		}
		if err := dst.PutQuiz(ctx, q); err != nil {
			return 0, fmt.Errorf("seed quiz %s: %w", q.ID, err)
		}
	}
	for lesson, quizID := range f.Lessons {
		if err := dst.LinkLesson(ctx, lesson, quizID); err != nil {
			return 0, fmt.Errorf("seed lesson %s: %w", lesson, err)
		}
	}
	return len(f.Quizzes), nil
}
