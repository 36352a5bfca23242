package quiz

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore keeps quizzes, lessons, attempts and answers in process. It
// satisfies QuizSource, LessonResolver and Store, and is used for tests and
// single-node development.
type MemoryStore struct {
	mu       sync.RWMutex
	quizzes  map[string]Quiz
	lessons  map[string]string
	attempts map[string]Attempt
	answers  map[string][]UserAnswer
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		quizzes:  map[string]Quiz{},
		lessons:  map[string]string{},
		attempts: map[string]Attempt{},
		answers:  map[string][]UserAnswer{},
	}
}

func (m *MemoryStore) PutQuiz(_ context.Context, q Quiz) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	q.Questions = cloneQuestions(q.Questions)
	m.quizzes[q.ID] = q
	return nil
}

func (m *MemoryStore) LinkLesson(_ context.Context, lessonID, quizID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lessons[lessonID] = quizID
	return nil
}

func (m *MemoryStore) GetActiveQuizWithQuestions(_ context.Context, quizID string) (Quiz, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	q, ok := m.quizzes[quizID]
	if !ok {
		return Quiz{}, ErrQuizNotFound
	}
	if !q.Active {
		return Quiz{}, ErrQuizInactive
	}
	q.Questions = cloneQuestions(q.Questions)
	return q, nil
}

func (m *MemoryStore) GetQuizIDForLesson(_ context.Context, lessonID string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.lessons[lessonID]
	if !ok {
		return "", ErrLessonNotFound
	}
	return id, nil
}

func (m *MemoryStore) CountAttempts(_ context.Context, quizID, userID string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, a := range m.attempts {
		if a.QuizID == quizID && a.UserID == userID {
			n++
		}
	}
	return n, nil
}

func (m *MemoryStore) CountAttemptsInWindow(_ context.Context, quizID, userID string, from, to time.Time) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, a := range m.attempts {
		if a.QuizID == quizID && a.UserID == userID && !a.StartedAt.Before(from) && a.StartedAt.Before(to) {
			n++
		}
	}
	return n, nil
}

func (m *MemoryStore) InsertAttempt(ctx context.Context, a Attempt) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, cur := range m.attempts {
		if cur.QuizID == a.QuizID && cur.UserID == a.UserID && cur.Status == StatusInProgress {
			return ErrAttemptAlreadyInProgress
		}
	}
	a.Snapshot = cloneQuestions(a.Snapshot)
	m.attempts[a.ID] = a
	return nil
}

func (m *MemoryStore) LoadAttempt(_ context.Context, attemptID string) (Attempt, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.attempts[attemptID]
	if !ok {
		return Attempt{}, ErrAttemptNotFound
	}
	return a, nil
}

func (m *MemoryStore) FindInProgress(_ context.Context, quizID, userID string) (Attempt, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, a := range m.attempts {
		if a.QuizID == quizID && a.UserID == userID && a.Status == StatusInProgress {
			return a, nil
		}
	}
	return Attempt{}, ErrAttemptNotFound
}

func (m *MemoryStore) ListAttempts(_ context.Context, opts AttemptListOpts) ([]Attempt, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []Attempt{}
	for _, a := range m.attempts {
		if opts.QuizID != "" && a.QuizID != opts.QuizID {
			continue
		}
		if opts.UserID != "" && a.UserID != opts.UserID {
			continue
		}
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].StartedAt.After(out[j].StartedAt)
	})
	if opts.Limit > 0 && len(out) > opts.Limit {
		out = out[:opts.Limit]
	}
	return out, nil
}

func (m *MemoryStore) ListExpired(_ context.Context, now time.Time, limit int) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var ids []string
	for _, a := range m.attempts {
		if a.Status == StatusInProgress && a.Expired(now) {
			ids = append(ids, a.ID)
		}
	}
	sort.Strings(ids)
	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}
	return ids, nil
}

func (m *MemoryStore) FinalizeAttempt(ctx context.Context, f Finalization) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.attempts[f.AttemptID]
	if !ok {
		return ErrAttemptNotFound
	}
	if a.Status != StatusInProgress {
		return ErrAttemptAlreadyFinalized
	}
	m.attempts[f.AttemptID] = applyFinalization(a, f)
	m.answers[f.AttemptID] = append([]UserAnswer(nil), f.Answers...)
	return nil
}

func (m *MemoryStore) LoadAnswers(_ context.Context, attemptID string) ([]UserAnswer, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]UserAnswer(nil), m.answers[attemptID]...), nil
}
