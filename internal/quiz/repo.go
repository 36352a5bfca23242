package quiz

import (
	"context"
	"time"
)

// QuizSource loads quiz definitions. Returns ErrQuizNotFound or ErrQuizInactive.
type QuizSource interface {
	GetActiveQuizWithQuestions(ctx context.Context, quizID string) (Quiz, error)
}

type LessonResolver interface {
	GetQuizIDForLesson(ctx context.Context, lessonID string) (string, error)
}

// Finalization is the single terminal write of an attempt.
type Finalization struct {
	AttemptID   string
	Status      Status
	Score       float64
	SubmittedAt time.Time
	Answers     []UserAnswer
}

type AttemptListOpts struct {
	QuizID string
	UserID string
	Limit  int
}

type AttemptStore interface {
	CountAttempts(ctx context.Context, quizID, userID string) (int, error)
	// CountAttemptsInWindow counts attempts started in [from, to).
	CountAttemptsInWindow(ctx context.Context, quizID, userID string, from, to time.Time) (int, error)
	// InsertAttempt returns ErrAttemptAlreadyInProgress if the user already
	// has an in-progress attempt for the quiz.
	InsertAttempt(ctx context.Context, a Attempt) error
	LoadAttempt(ctx context.Context, attemptID string) (Attempt, error)
	FindInProgress(ctx context.Context, quizID, userID string) (Attempt, error)
	ListAttempts(ctx context.Context, opts AttemptListOpts) ([]Attempt, error)
	// ListExpired returns ids of in-progress attempts whose deadline is before now.
	ListExpired(ctx context.Context, now time.Time, limit int) ([]string, error)
	// FinalizeAttempt updates the attempt status and inserts its answers
	// atomically. Returns ErrAttemptAlreadyFinalized if the attempt has
	// already left in_progress.
	FinalizeAttempt(ctx context.Context, f Finalization) error
}

type AnswerStore interface {
	LoadAnswers(ctx context.Context, attemptID string) ([]UserAnswer, error)
}

// Store is everything the engine persists through.
type Store interface {
	AttemptStore
	AnswerStore
}

// Locker serializes critical sections by key, across goroutines and,
// depending on the implementation, across processes.
type Locker interface {
	Lock(ctx context.Context, key string) (unlock func(), err error)
}

type SeedSource interface {
	Seed() (uint64, error)
}

type Event struct {
	ID         string    `json:"id"`
	Type       string    `json:"type"`
	AttemptID  string    `json:"attempt_id"`
	QuizID     string    `json:"quiz_id"`
	UserID     string    `json:"user_id"`
	Score      *float64  `json:"score,omitempty"`
	MaxScore   float64   `json:"max_score"`
	OccurredAt time.Time `json:"occurred_at"`
}

const (
	EventAttemptStarted   = "attempt.started"
	EventAttemptCompleted = "attempt.completed"
	EventAttemptTimedOut  = "attempt.timed_out"
)

// EventSink receives attempt lifecycle events after the state change commits.
type EventSink interface {
	Publish(ctx context.Context, e Event) error
}
