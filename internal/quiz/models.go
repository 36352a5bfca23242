package quiz

import (
	"time"

	"github.com/mind-engage/mindengage-training/internal/grading"
)

const (
	TypeMultipleChoice = grading.TypeMultipleChoice
	TypeTrueFalse      = grading.TypeTrueFalse
	TypeEssay          = grading.TypeEssay
)

type Status string

const (
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusTimedOut   Status = "timed_out"
)

func (s Status) Terminal() bool { return s == StatusCompleted || s == StatusTimedOut }

type Choice struct {
	ID        string `json:"id"`
	Text      string `json:"text"`
	IsCorrect bool   `json:"is_correct"`
}

type Question struct {
	ID      string   `json:"id"`
	Type    string   `json:"type"` // multiple_choice, true_false, essay
	Prompt  string   `json:"prompt"`
	Choices []Choice `json:"choices,omitempty"`
	Points  float64  `json:"points"`
}

// AnswerKey returns the ids of the correct choices.
func (q Question) AnswerKey() []string {
	var key []string
	for _, c := range q.Choices {
		if c.IsCorrect {
			key = append(key, c.ID)
		}
	}
	return key
}

func (q Question) hasChoice(id string) bool {
	for _, c := range q.Choices {
		if c.ID == id {
			return true
		}
	}
	return false
}

type Quiz struct {
	ID               string        `json:"id"`
	Title            string        `json:"title"`
	TimeLimit        time.Duration `json:"-"` // 0 = untimed; seed files use time_limit_sec
	Active           bool          `json:"active"`
	ShuffleQuestions bool          `json:"shuffle_questions"`
	ShuffleChoices   bool          `json:"shuffle_choices"`

	// Per-quiz overrides of the engine limits; 0 keeps the default.
	MaxAttempts       int `json:"max_attempts,omitempty"`
	MaxAttemptsPerDay int `json:"max_attempts_per_day,omitempty"`

	Questions []Question `json:"questions"`
}

type Attempt struct {
	ID          string     `json:"id"`
	QuizID      string     `json:"quiz_id"`
	UserID      string     `json:"user_id"`
	Status      Status     `json:"status"`
	StartedAt   time.Time  `json:"started_at"`
	Deadline    time.Time  `json:"deadline"` // zero when untimed
	SubmittedAt *time.Time `json:"submitted_at,omitempty"`
	Score       *float64   `json:"score,omitempty"`
	MaxScore    float64    `json:"max_score"`
	ShuffleSeed uint64     `json:"-"`

	// Policy and questions captured at start; never re-read from the quiz.
	ShuffleQuestions bool       `json:"-"`
	ShuffleChoices   bool       `json:"-"`
	Snapshot         []Question `json:"-"`
}

// Expired reports whether now is past the attempt deadline.
func (a Attempt) Expired(now time.Time) bool {
	return !a.Deadline.IsZero() && now.After(a.Deadline)
}

type UserAnswer struct {
	AttemptID          string   `json:"attempt_id"`
	QuestionID         string   `json:"question_id"`
	ChoiceIDs          []string `json:"choice_ids,omitempty"`
	Text               string   `json:"text,omitempty"`
	IsCorrect          *bool    `json:"is_correct"` // nil for essays
	AwardedPoints      float64  `json:"awarded_points"`
	NeedsManualGrading bool     `json:"needs_manual_grading,omitempty"`
}

// SubmittedAnswer is one learner answer, keyed by stable question id.
type SubmittedAnswer struct {
	QuestionID string   `json:"question_id"`
	ChoiceIDs  []string `json:"choice_ids,omitempty"`
	Text       string   `json:"text,omitempty"`
}

// ---- learner-facing view ----

type ChoiceView struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

type QuestionView struct {
	ID      string       `json:"id"`
	Type    string       `json:"type"`
	Prompt  string       `json:"prompt"`
	Points  float64      `json:"points"`
	Choices []ChoiceView `json:"choices,omitempty"`
}

type AttemptView struct {
	AttemptID string         `json:"attempt_id"`
	QuizID    string         `json:"quiz_id"`
	StartedAt time.Time      `json:"started_at"`
	Deadline  time.Time      `json:"deadline"`
	MaxScore  float64        `json:"max_score"`
	Questions []QuestionView `json:"questions"`
}

type StartResult struct {
	AttemptID string      `json:"attempt_id"`
	Deadline  time.Time   `json:"deadline"`
	View      AttemptView `json:"view"`
}

type AttemptResult struct {
	AttemptID   string       `json:"attempt_id"`
	Status      Status       `json:"status"`
	Score       float64      `json:"score"`
	MaxScore    float64      `json:"max_score"`
	SubmittedAt *time.Time   `json:"submitted_at,omitempty"`
	Breakdown   []UserAnswer `json:"breakdown"`
}
