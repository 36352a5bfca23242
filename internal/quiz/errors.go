package quiz

import "errors"

var (
	ErrQuizNotFound             = errors.New("quiz not found")
	ErrQuizInactive             = errors.New("quiz inactive")
	ErrLessonNotFound           = errors.New("lesson not found")
	ErrAttemptLimitExceeded     = errors.New("attempt limit exceeded")
	ErrAttemptAlreadyInProgress = errors.New("attempt already in progress")
	ErrAttemptNotFound          = errors.New("attempt not found")
	ErrAttemptNotOwned          = errors.New("attempt not owned by user")
	ErrAttemptAlreadyFinalized  = errors.New("attempt already finalized")
	ErrAttemptNotFinalized      = errors.New("attempt not finalized")
	ErrInvalidAnswerPayload     = errors.New("invalid answer payload")

	// ErrAttemptTimedOut signals that the attempt has been finalized as
	// timed out. It is a definitive terminal state, not a transient failure.
	ErrAttemptTimedOut = errors.New("attempt timed out")
)
