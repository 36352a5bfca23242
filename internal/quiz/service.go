package quiz

import "context"

// Service is the entry point used by the surrounding application. It
// resolves lessons to quizzes and otherwise forwards to the Engine.
type Service struct {
	engine  *Engine
	lessons LessonResolver
}

func NewService(engine *Engine, lessons LessonResolver) *Service {
	return &Service{engine: engine, lessons: lessons}
}

func (s *Service) StartAttempt(ctx context.Context, quizID, userID string) (StartResult, error) {
	return s.engine.StartAttempt(ctx, quizID, userID)
}

func (s *Service) StartForLesson(ctx context.Context, lessonID, userID string) (StartResult, error) {
	quizID, err := s.lessons.GetQuizIDForLesson(ctx, lessonID)
	if err != nil {
		return StartResult{}, err
	}
	return s.engine.StartAttempt(ctx, quizID, userID)
}

func (s *Service) GetAttemptView(ctx context.Context, attemptID, userID string) (AttemptView, error) {
	return s.engine.GetAttemptView(ctx, attemptID, userID)
}

func (s *Service) SubmitAttempt(ctx context.Context, attemptID, userID string, answers []SubmittedAnswer) (AttemptResult, error) {
	return s.engine.SubmitAttempt(ctx, attemptID, userID, answers)
}

func (s *Service) GetResult(ctx context.Context, attemptID, userID string) (AttemptResult, error) {
	return s.engine.GetResult(ctx, attemptID, userID)
}

func (s *Service) ListAttempts(ctx context.Context, quizID, userID string) ([]Attempt, error) {
	return s.engine.ListAttempts(ctx, quizID, userID)
}
