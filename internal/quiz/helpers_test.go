package quiz_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/mind-engage/mindengage-training/internal/quiz"
)

var t0 = time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock(t time.Time) *fakeClock { return &fakeClock{now: t} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type recordingSink struct {
	mu     sync.Mutex
	events []quiz.Event
}

func (s *recordingSink) Publish(_ context.Context, e quiz.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
	return nil
}

func (s *recordingSink) types() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.events))
	for _, e := range s.events {
		out = append(out, e.Type)
	}
	return out
}

// twoQuestionQuiz has two multiple-choice questions worth 5 points each
// whose correct choices are A and C.
func twoQuestionQuiz() quiz.Quiz {
	abc := func(correct string) []quiz.Choice {
		var cs []quiz.Choice
		for _, id := range []string{"A", "B", "C"} {
			cs = append(cs, quiz.Choice{ID: id, Text: "option " + id, IsCorrect: id == correct})
		}
		return cs
	}
	return quiz.Quiz{
		ID:        "fire-safety",
		Title:     "Fire safety basics",
		TimeLimit: 10 * time.Minute,
		Active:    true,
		Questions: []quiz.Question{
			{ID: "q1", Type: quiz.TypeMultipleChoice, Prompt: "Which extinguisher?", Choices: abc("A"), Points: 5},
			{ID: "q2", Type: quiz.TypeMultipleChoice, Prompt: "Where is the exit?", Choices: abc("C"), Points: 5},
		},
	}
}

type fixture struct {
	engine *quiz.Engine
	store  *quiz.MemoryStore
	clock  *fakeClock
	events *recordingSink
}

func newFixture(t *testing.T, cfg quiz.Config, quizzes ...quiz.Quiz) fixture {
	t.Helper()
	store := quiz.NewMemoryStore()
	if len(quizzes) == 0 {
		quizzes = []quiz.Quiz{twoQuestionQuiz()}
	}
	for _, q := range quizzes {
		require.NoError(t, store.PutQuiz(context.Background(), q))
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	clock := newClock(t0)
	sink := &recordingSink{}
	e := quiz.NewEngine(store, store, cfg,
		quiz.WithClock(clock.Now),
		quiz.WithSeedSource(quiz.FixedSeed(42)),
		quiz.WithEventSink(sink),
	)
	return fixture{engine: e, store: store, clock: clock, events: sink}
}

func answers(q1, q2 string) []quiz.SubmittedAnswer {
	var out []quiz.SubmittedAnswer
	if q1 != "" {
		out = append(out, quiz.SubmittedAnswer{QuestionID: "q1", ChoiceIDs: []string{q1}})
	}
	if q2 != "" {
		out = append(out, quiz.SubmittedAnswer{QuestionID: "q2", ChoiceIDs: []string{q2}})
	}
	return out
}
