package quiz

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/mind-engage/mindengage-training/internal/grading"
	"github.com/mind-engage/mindengage-training/internal/lock"
)

// LatePolicy decides how a submission that arrives after the deadline is scored.
type LatePolicy string

const (
	LateScoreZero    LatePolicy = "zero"    // discard the late answers
	LateScorePartial LatePolicy = "partial" // score whatever arrived
)

// Config is the engine's explicit configuration.
type Config struct {
	Limits       Limits
	Location     *time.Location // day-window time zone
	LatePolicy   LatePolicy
	PartialMulti bool // partial credit for multi-select questions
}

type Engine struct {
	quizzes QuizSource
	store   Store
	limiter *Limiter
	grader  grading.Grader
	cfg     Config

	locker Locker
	seeds  SeedSource
	events EventSink
	now    func() time.Time
	newID  func() string
	logger *slog.Logger
}

type Option func(*Engine)

func WithLocker(l Locker) Option         { return func(e *Engine) { e.locker = l } }
func WithSeedSource(s SeedSource) Option { return func(e *Engine) { e.seeds = s } }
func WithEventSink(s EventSink) Option   { return func(e *Engine) { e.events = s } }
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}
func WithLogger(l *slog.Logger) Option { return func(e *Engine) { e.logger = l } }

func NewEngine(quizzes QuizSource, store Store, cfg Config, opts ...Option) *Engine {
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if cfg.LatePolicy == "" {
		cfg.LatePolicy = LateScoreZero
	}
	e := &Engine{
		quizzes: quizzes,
		store:   store,
		limiter: NewLimiter(store, cfg.Location),
		grader:  grading.NewDefaultGrader(grading.WithPartialMulti(cfg.PartialMulti)),
		cfg:     cfg,
		locker:  lock.NewLocal(),
		seeds:   CryptoSeed{},
		now:     time.Now,
		newID:   uuid.NewString,
		logger:  slog.Default(),
	}
	for _, o := range opts {
		o(e)
	}
	// stores keep unix milliseconds; a finer clock would move deadlines on reload
	clock := e.now
	e.now = func() time.Time { return clock().Truncate(time.Millisecond) }
	return e
}

func startKey(quizID, userID string) string { return "quiz-start:" + quizID + ":" + userID }
func attemptKey(attemptID string) string    { return "attempt:" + attemptID }

// StartAttempt creates a new in-progress attempt for userID.
func (e *Engine) StartAttempt(ctx context.Context, quizID, userID string) (StartResult, error) {
	q, err := e.quizzes.GetActiveQuizWithQuestions(ctx, quizID)
	if err != nil {
		return StartResult{}, err
	}

	unlock, err := e.locker.Lock(ctx, startKey(quizID, userID))
	if err != nil {
		return StartResult{}, err
	}
	defer unlock()

	now := e.now()
	cur, err := e.store.FindInProgress(ctx, quizID, userID)
	switch {
	case err == nil:
		if !cur.Expired(now) {
			return StartResult{}, fmt.Errorf("%w: %s", ErrAttemptAlreadyInProgress, cur.ID)
		}
		if _, err := e.ExpireAttempt(ctx, cur.ID); err != nil {
			return StartResult{}, err
		}
	case !errors.Is(err, ErrAttemptNotFound):
		return StartResult{}, err
	}

	if err := e.limiter.CheckAllowed(ctx, quizID, userID, limitsFor(e.cfg.Limits, q), now); err != nil {
		return StartResult{}, err
	}

	seed, err := e.seeds.Seed()
	if err != nil {
		return StartResult{}, err
	}
	a := Attempt{
		ID:               e.newID(),
		QuizID:           q.ID,
		UserID:           userID,
		Status:           StatusInProgress,
		StartedAt:        now,
		MaxScore:         grading.MaxScore(gradingKey(q.Questions)),
		ShuffleSeed:      seed,
		ShuffleQuestions: q.ShuffleQuestions,
		ShuffleChoices:   q.ShuffleChoices,
		Snapshot:         cloneQuestions(q.Questions),
	}
	if q.TimeLimit > 0 {
		a.Deadline = now.Add(q.TimeLimit)
	}
	if err := e.store.InsertAttempt(ctx, a); err != nil {
		return StartResult{}, err
	}

	e.logger.Info("attempt started", "attempt_id", a.ID, "quiz_id", a.QuizID, "user_id", userID)
	e.publish(ctx, EventAttemptStarted, a)
	return StartResult{AttemptID: a.ID, Deadline: a.Deadline, View: buildView(a)}, nil
}

// GetAttemptView rebuilds the learner view of an in-progress attempt. An
// attempt past its deadline is finalized as timed out and ErrAttemptTimedOut
// is returned instead of the view.
func (e *Engine) GetAttemptView(ctx context.Context, attemptID, userID string) (AttemptView, error) {
	a, err := e.loadOwned(ctx, attemptID, userID)
	if err != nil {
		return AttemptView{}, err
	}
	if a.Status.Terminal() {
		return AttemptView{}, ErrAttemptAlreadyFinalized
	}
	if a.Expired(e.now()) {
		expired, err := e.ExpireAttempt(ctx, a.ID)
		if err != nil {
			return AttemptView{}, err
		}
		if !expired {
			return AttemptView{}, ErrAttemptAlreadyFinalized
		}
		return AttemptView{}, ErrAttemptTimedOut
	}
	return buildView(a), nil
}

// SubmitAttempt scores answers and finalizes the attempt. It succeeds at
// most once per attempt. A late submission is finalized as timed out and
// returns its result together with ErrAttemptTimedOut.
func (e *Engine) SubmitAttempt(ctx context.Context, attemptID, userID string, answers []SubmittedAnswer) (AttemptResult, error) {
	unlock, err := e.locker.Lock(ctx, attemptKey(attemptID))
	if err != nil {
		return AttemptResult{}, err
	}
	defer unlock()

	a, err := e.loadOwned(ctx, attemptID, userID)
	if err != nil {
		return AttemptResult{}, err
	}
	if a.Status.Terminal() {
		return AttemptResult{}, ErrAttemptAlreadyFinalized
	}

	now := e.now()
	responses, verr := validateAnswers(a.Snapshot, answers)

	if a.Expired(now) {
		var res AttemptResult
		if e.cfg.LatePolicy == LateScorePartial && verr == nil {
			res, err = e.finalize(ctx, a, StatusTimedOut, responses, now)
		} else {
			res, err = e.finalizeEmpty(ctx, a, now)
		}
		if err != nil {
			return AttemptResult{}, err
		}
		return res, fmt.Errorf("%w: deadline was %s", ErrAttemptTimedOut, a.Deadline.Format(time.RFC3339))
	}
	if verr != nil {
		return AttemptResult{}, verr
	}
	return e.finalize(ctx, a, StatusCompleted, responses, now)
}

// GetResult returns the stored outcome of a finalized attempt.
func (e *Engine) GetResult(ctx context.Context, attemptID, userID string) (AttemptResult, error) {
	a, err := e.loadOwned(ctx, attemptID, userID)
	if err != nil {
		return AttemptResult{}, err
	}
	if !a.Status.Terminal() {
		if !a.Expired(e.now()) {
			return AttemptResult{}, ErrAttemptNotFinalized
		}
		if _, err := e.ExpireAttempt(ctx, a.ID); err != nil {
			return AttemptResult{}, err
		}
		if a, err = e.store.LoadAttempt(ctx, a.ID); err != nil {
			return AttemptResult{}, err
		}
	}
	answers, err := e.store.LoadAnswers(ctx, a.ID)
	if err != nil {
		return AttemptResult{}, err
	}
	return resultOf(a, inQuizOrder(a.Snapshot, answers)), nil
}

func (e *Engine) ListAttempts(ctx context.Context, quizID, userID string) ([]Attempt, error) {
	return e.store.ListAttempts(ctx, AttemptListOpts{QuizID: quizID, UserID: userID})
}

// ExpireAttempt finalizes an in-progress attempt as timed out if its
// deadline has passed. It reports whether this call did the transition.
// Lazy expiry on read and the sweeper both go through here.
func (e *Engine) ExpireAttempt(ctx context.Context, attemptID string) (bool, error) {
	unlock, err := e.locker.Lock(ctx, attemptKey(attemptID))
	if err != nil {
		return false, err
	}
	defer unlock()

	a, err := e.store.LoadAttempt(ctx, attemptID)
	if err != nil {
		return false, err
	}
	now := e.now()
	if a.Status.Terminal() || !a.Expired(now) {
		return false, nil
	}
	if _, err := e.finalizeEmpty(ctx, a, now); err != nil {
		if errors.Is(err, ErrAttemptAlreadyFinalized) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (e *Engine) finalizeEmpty(ctx context.Context, a Attempt, now time.Time) (AttemptResult, error) {
	f := Finalization{AttemptID: a.ID, Status: StatusTimedOut, Score: 0, SubmittedAt: now}
	if err := e.store.FinalizeAttempt(ctx, f); err != nil {
		return AttemptResult{}, err
	}
	e.logger.Info("attempt timed out", "attempt_id", a.ID, "quiz_id", a.QuizID, "user_id", a.UserID)
	a = applyFinalization(a, f)
	e.publish(ctx, EventAttemptTimedOut, a)
	return resultOf(a, nil), nil
}

func (e *Engine) finalize(ctx context.Context, a Attempt, status Status, responses map[string]grading.Response, now time.Time) (AttemptResult, error) {
	sheet := grading.Score(e.grader, gradingKey(a.Snapshot), responses)
	answers := make([]UserAnswer, 0, len(sheet.Items))
	for _, it := range sheet.Items {
		resp := responses[it.QuestionID]
		answers = append(answers, UserAnswer{
			AttemptID:          a.ID,
			QuestionID:         it.QuestionID,
			ChoiceIDs:          resp.ChoiceIDs,
			Text:               resp.Text,
			IsCorrect:          it.Correct,
			AwardedPoints:      it.AutoPoints,
			NeedsManualGrading: it.NeedsManual,
		})
	}

	f := Finalization{AttemptID: a.ID, Status: status, Score: sheet.Score, SubmittedAt: now, Answers: answers}
	if err := e.store.FinalizeAttempt(ctx, f); err != nil {
		return AttemptResult{}, err
	}
	e.logger.Info("attempt finalized", "attempt_id", a.ID, "status", status, "score", sheet.Score, "max_score", a.MaxScore)

	a = applyFinalization(a, f)
	typ := EventAttemptCompleted
	if status == StatusTimedOut {
		typ = EventAttemptTimedOut
	}
	e.publish(ctx, typ, a)
	return resultOf(a, answers), nil
}

func (e *Engine) loadOwned(ctx context.Context, attemptID, userID string) (Attempt, error) {
	a, err := e.store.LoadAttempt(ctx, attemptID)
	if err != nil {
		return Attempt{}, err
	}
	if a.UserID != userID {
		return Attempt{}, ErrAttemptNotOwned
	}
	return a, nil
}

func (e *Engine) publish(ctx context.Context, typ string, a Attempt) {
	if e.events == nil {
		return
	}
	ev := Event{
		ID:         uuid.NewString(),
		Type:       typ,
		AttemptID:  a.ID,
		QuizID:     a.QuizID,
		UserID:     a.UserID,
		Score:      a.Score,
		MaxScore:   a.MaxScore,
		OccurredAt: e.now(),
	}
	if err := e.events.Publish(ctx, ev); err != nil {
		e.logger.Warn("publish attempt event", "type", typ, "attempt_id", a.ID, "err", err)
	}
}

// validateAnswers checks every answer against the snapshot and indexes the
// valid ones by question id.
func validateAnswers(snapshot []Question, answers []SubmittedAnswer) (map[string]grading.Response, error) {
	byID := make(map[string]Question, len(snapshot))
	for _, q := range snapshot {
		byID[q.ID] = q
	}
	out := make(map[string]grading.Response, len(answers))
	for _, ans := range answers {
		q, ok := byID[ans.QuestionID]
		if !ok {
			return nil, fmt.Errorf("%w: question %q is not part of this quiz", ErrInvalidAnswerPayload, ans.QuestionID)
		}
		if _, dup := out[q.ID]; dup {
			return nil, fmt.Errorf("%w: question %q answered twice", ErrInvalidAnswerPayload, q.ID)
		}
		if q.Type == TypeEssay {
			if len(ans.ChoiceIDs) > 0 {
				return nil, fmt.Errorf("%w: essay %q takes text, not choices", ErrInvalidAnswerPayload, q.ID)
			}
			out[q.ID] = grading.Response{Text: ans.Text}
			continue
		}
		picked := make([]string, 0, len(ans.ChoiceIDs))
		seen := make(map[string]struct{}, len(ans.ChoiceIDs))
		for _, cid := range ans.ChoiceIDs {
			if !q.hasChoice(cid) {
				return nil, fmt.Errorf("%w: choice %q is not an option of question %q", ErrInvalidAnswerPayload, cid, q.ID)
			}
			if _, ok := seen[cid]; ok {
				continue
			}
			seen[cid] = struct{}{}
			picked = append(picked, cid)
		}
		if q.Type == TypeTrueFalse && len(picked) > 1 {
			return nil, fmt.Errorf("%w: question %q takes a single choice", ErrInvalidAnswerPayload, q.ID)
		}
		out[q.ID] = grading.Response{ChoiceIDs: picked}
	}
	return out, nil
}

func gradingKey(questions []Question) []grading.Q {
	key := make([]grading.Q, 0, len(questions))
	for _, q := range questions {
		key = append(key, grading.Q{ID: q.ID, Type: q.Type, Points: q.Points, AnswerKey: q.AnswerKey()})
	}
	return key
}

// inQuizOrder sorts answers into the authoritative question order.
func inQuizOrder(snapshot []Question, answers []UserAnswer) []UserAnswer {
	pos := make(map[string]int, len(snapshot))
	for i, q := range snapshot {
		pos[q.ID] = i
	}
	sort.SliceStable(answers, func(i, j int) bool {
		return pos[answers[i].QuestionID] < pos[answers[j].QuestionID]
	})
	return answers
}

func cloneQuestions(in []Question) []Question {
	out := make([]Question, len(in))
	for i, q := range in {
		q.Choices = append([]Choice(nil), q.Choices...)
		out[i] = q
	}
	return out
}

func applyFinalization(a Attempt, f Finalization) Attempt {
	score := f.Score
	at := f.SubmittedAt
	a.Status = f.Status
	a.Score = &score
	a.SubmittedAt = &at
	return a
}

func resultOf(a Attempt, answers []UserAnswer) AttemptResult {
	res := AttemptResult{
		AttemptID:   a.ID,
		Status:      a.Status,
		MaxScore:    a.MaxScore,
		SubmittedAt: a.SubmittedAt,
		Breakdown:   answers,
	}
	if a.Score != nil {
		res.Score = *a.Score
	}
	if res.Breakdown == nil {
		res.Breakdown = []UserAnswer{}
	}
	return res
}
