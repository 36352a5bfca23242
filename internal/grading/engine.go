package grading

import "math"

const (
	TypeMultipleChoice = "multiple_choice"
	TypeTrueFalse      = "true_false"
	TypeEssay          = "essay"
)

// Q is a minimal view of a question needed for grading.
// AnswerKey holds the ids of the correct choices.
type Q struct {
	ID        string
	Type      string
	Points    float64
	AnswerKey []string
}

// Response is what the learner submitted for one question.
type Response struct {
	ChoiceIDs []string
	Text      string
}

// Result is the outcome of grading a single question response.
type Result struct {
	AutoPoints  float64 // points awarded automatically
	MaxPoints   float64 // the question's max points
	Correct     *bool   // nil when the question is not auto-gradable
	NeedsManual bool    // true if instructor review is required
	Feedback    []string
}

// Strategy grades a single question. A nil response means unanswered.
type Strategy interface {
	Grade(q Q, resp *Response) Result
}

// Grader routes by question type to the correct Strategy.
type Grader interface {
	Grade(q Q, resp *Response) Result
}

type defaultGrader struct {
	strategies map[string]Strategy
}

func (g *defaultGrader) Grade(q Q, resp *Response) Result {
	s, ok := g.strategies[q.Type]
	if !ok {
		return Result{MaxPoints: q.Points, NeedsManual: true, Feedback: []string{"no strategy available"}}
	}
	return s.Grade(q, resp)
}

// Engine options

type Option func(*config)

type config struct {
	AllowPartialMulti bool // partial credit for multi-select without false positives
}

func WithPartialMulti(b bool) Option { return func(c *config) { c.AllowPartialMulti = b } }

// NewDefaultGrader installs built-in strategies. Multi-select questions are
// all-or-nothing unless WithPartialMulti(true) is given.
func NewDefaultGrader(opts ...Option) Grader {
	cfg := &config{}
	for _, o := range opts {
		o(cfg)
	}
	return &defaultGrader{
		strategies: map[string]Strategy{
			TypeMultipleChoice: choiceStrategy{allowPartial: cfg.AllowPartialMulti},
			TypeTrueFalse:      choiceStrategy{},
			TypeEssay:          essayStrategy{},
		},
	}
}

// --- Strategies ---

type choiceStrategy struct{ allowPartial bool }

func (s choiceStrategy) Grade(q Q, resp *Response) Result {
	res := Result{MaxPoints: q.Points, Correct: boolPtr(false)}
	if resp == nil || len(resp.ChoiceIDs) == 0 {
		return res
	}
	correct := toSet(q.AnswerKey)
	picked := toSet(resp.ChoiceIDs)

	if setEqual(correct, picked) {
		res.AutoPoints = q.Points
		res.Correct = boolPtr(true)
		return res
	}
	if !s.allowPartial || len(correct) < 2 {
		return res
	}
	inter := 0
	for k := range picked {
		if _, ok := correct[k]; !ok {
			// any wrong pick forfeits partial credit
			return res
		}
		inter++
	}
	res.AutoPoints = roundPoints(q.Points * (float64(inter) / float64(len(correct))))
	res.Feedback = append(res.Feedback, "partial credit")
	return res
}

type essayStrategy struct{}

func (essayStrategy) Grade(q Q, resp *Response) Result {
	res := Result{MaxPoints: q.Points}
	if resp != nil && resp.Text != "" {
		res.NeedsManual = true
		res.Feedback = []string{"manual grading required"}
	}
	return res
}

// helpers

func boolPtr(b bool) *bool { return &b }

func toSet(arr []string) map[string]struct{} {
	m := make(map[string]struct{}, len(arr))
	for _, s := range arr {
		m[s] = struct{}{}
	}
	return m
}

func setEqual(a, b map[string]struct{}) bool {
	if len(a) != len(b) {
		return false
	}
	for k := range a {
		if _, ok := b[k]; !ok {
			return false
		}
	}
	return true
}

func roundPoints(f float64) float64 {
	return math.Round(f*100) / 100
}
