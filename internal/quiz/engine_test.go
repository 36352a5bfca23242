package quiz_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/mind-engage/mindengage-training/internal/quiz"
)

func TestStartAttempt_ViewHidesKeyAndSetsDeadline(t *testing.T) {
	f := newFixture(t, quiz.Config{})
	ctx := context.Background()

	res, err := f.engine.StartAttempt(ctx, "fire-safety", "alice")
	require.NoError(t, err)
	require.NotEmpty(t, res.AttemptID)
	require.Equal(t, t0.Add(10*time.Minute), res.Deadline)
	require.Equal(t, 10.0, res.View.MaxScore)
	require.Len(t, res.View.Questions, 2)
	for _, q := range res.View.Questions {
		require.Len(t, q.Choices, 3)
	}

	a, err := f.store.LoadAttempt(ctx, res.AttemptID)
	require.NoError(t, err)
	require.Equal(t, quiz.StatusInProgress, a.Status)
	require.Equal(t, uint64(42), a.ShuffleSeed)
	require.Nil(t, a.Score)
	require.Nil(t, a.SubmittedAt)
}

func TestStartAttempt_MaxScoreIndependentOfSeed(t *testing.T) {
	q := twoQuestionQuiz()
	q.ShuffleQuestions, q.ShuffleChoices = true, true
	q.Questions = append(q.Questions, quiz.Question{ID: "q3", Type: quiz.TypeEssay, Prompt: "Explain", Points: 7.5})

	for _, seed := range []uint64{0, 1, 7, 1 << 40, ^uint64(0)} {
		store := quiz.NewMemoryStore()
		require.NoError(t, store.PutQuiz(context.Background(), q))
		e := quiz.NewEngine(store, store, quiz.Config{}, quiz.WithSeedSource(quiz.FixedSeed(seed)))

		res, err := e.StartAttempt(context.Background(), q.ID, "bob")
		require.NoError(t, err)
		require.Equal(t, 17.5, res.View.MaxScore, "seed %d", seed)
	}
}

func TestSubmitAttempt_Scenarios(t *testing.T) {
	cases := []struct {
		name    string
		answers []quiz.SubmittedAnswer
		want    float64
	}{
		{"A and C", answers("A", "C"), 10},
		{"A and B", answers("A", "B"), 5},
		{"nothing", nil, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t, quiz.Config{})
			ctx := context.Background()
			start, err := f.engine.StartAttempt(ctx, "fire-safety", "alice")
			require.NoError(t, err)

			res, err := f.engine.SubmitAttempt(ctx, start.AttemptID, "alice", tc.answers)
			require.NoError(t, err)
			require.Equal(t, quiz.StatusCompleted, res.Status)
			require.Equal(t, tc.want, res.Score)
			require.Equal(t, 10.0, res.MaxScore)
			require.Len(t, res.Breakdown, 2)
			require.Equal(t, "q1", res.Breakdown[0].QuestionID)
		})
	}
}

func TestSubmitAttempt_SecondSubmissionRejected(t *testing.T) {
	f := newFixture(t, quiz.Config{})
	ctx := context.Background()
	start, err := f.engine.StartAttempt(ctx, "fire-safety", "alice")
	require.NoError(t, err)

	first, err := f.engine.SubmitAttempt(ctx, start.AttemptID, "alice", answers("A", "B"))
	require.NoError(t, err)

	f.clock.Advance(time.Minute)
	_, err = f.engine.SubmitAttempt(ctx, start.AttemptID, "alice", answers("A", "C"))
	require.ErrorIs(t, err, quiz.ErrAttemptAlreadyFinalized)

	stored, err := f.engine.GetResult(ctx, start.AttemptID, "alice")
	require.NoError(t, err)
	require.Equal(t, first.Score, stored.Score)
	require.Equal(t, first.SubmittedAt, stored.SubmittedAt)
	require.Equal(t, first.Breakdown, stored.Breakdown)
}

func TestSubmitAttempt_ConcurrentSubmissionsFinalizeOnce(t *testing.T) {
	f := newFixture(t, quiz.Config{})
	ctx := context.Background()
	start, err := f.engine.StartAttempt(ctx, "fire-safety", "alice")
	require.NoError(t, err)

	const n = 8
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.engine.SubmitAttempt(ctx, start.AttemptID, "alice", answers("A", "C"))
		}(i)
	}
	wg.Wait()

	ok := 0
	for _, err := range errs {
		if err == nil {
			ok++
			continue
		}
		require.ErrorIs(t, err, quiz.ErrAttemptAlreadyFinalized)
	}
	require.Equal(t, 1, ok)
}

func TestTimeout_ViewAfterDeadlineThenSubmit(t *testing.T) {
	f := newFixture(t, quiz.Config{})
	ctx := context.Background()
	start, err := f.engine.StartAttempt(ctx, "fire-safety", "alice")
	require.NoError(t, err)

	f.clock.Advance(11 * time.Minute)
	_, err = f.engine.GetAttemptView(ctx, start.AttemptID, "alice")
	require.ErrorIs(t, err, quiz.ErrAttemptTimedOut)

	_, err = f.engine.SubmitAttempt(ctx, start.AttemptID, "alice", answers("A", "C"))
	require.ErrorIs(t, err, quiz.ErrAttemptAlreadyFinalized)

	res, err := f.engine.GetResult(ctx, start.AttemptID, "alice")
	require.NoError(t, err)
	require.Equal(t, quiz.StatusTimedOut, res.Status)
	require.Zero(t, res.Score)
	require.Equal(t, 10.0, res.MaxScore)
	require.Empty(t, res.Breakdown)
	require.Contains(t, f.events.types(), quiz.EventAttemptTimedOut)
}

func TestLateSubmission_ZeroPolicy(t *testing.T) {
	f := newFixture(t, quiz.Config{})
	ctx := context.Background()
	start, err := f.engine.StartAttempt(ctx, "fire-safety", "alice")
	require.NoError(t, err)

	f.clock.Advance(10*time.Minute + time.Second)
	res, err := f.engine.SubmitAttempt(ctx, start.AttemptID, "alice", answers("A", "C"))
	require.ErrorIs(t, err, quiz.ErrAttemptTimedOut)
	require.Equal(t, quiz.StatusTimedOut, res.Status)
	require.Zero(t, res.Score)

	_, err = f.engine.SubmitAttempt(ctx, start.AttemptID, "alice", answers("A", "C"))
	require.ErrorIs(t, err, quiz.ErrAttemptAlreadyFinalized)
}

func TestLateSubmission_PartialPolicy(t *testing.T) {
	f := newFixture(t, quiz.Config{LatePolicy: quiz.LateScorePartial})
	ctx := context.Background()
	start, err := f.engine.StartAttempt(ctx, "fire-safety", "alice")
	require.NoError(t, err)

	f.clock.Advance(20 * time.Minute)
	res, err := f.engine.SubmitAttempt(ctx, start.AttemptID, "alice", answers("A", "B"))
	require.ErrorIs(t, err, quiz.ErrAttemptTimedOut)
	require.Equal(t, quiz.StatusTimedOut, res.Status)
	require.Equal(t, 5.0, res.Score)

	stored, err := f.engine.GetResult(ctx, start.AttemptID, "alice")
	require.NoError(t, err)
	require.Equal(t, 5.0, stored.Score)
	require.Len(t, stored.Breakdown, 2)
}

func TestSubmitAtExactDeadlineIsOnTime(t *testing.T) {
	f := newFixture(t, quiz.Config{})
	ctx := context.Background()
	start, err := f.engine.StartAttempt(ctx, "fire-safety", "alice")
	require.NoError(t, err)

	f.clock.Advance(10 * time.Minute)
	res, err := f.engine.SubmitAttempt(ctx, start.AttemptID, "alice", answers("A", "C"))
	require.NoError(t, err)
	require.Equal(t, quiz.StatusCompleted, res.Status)
}

func TestUntimedQuizNeverExpires(t *testing.T) {
	q := twoQuestionQuiz()
	q.TimeLimit = 0
	f := newFixture(t, quiz.Config{}, q)
	ctx := context.Background()

	start, err := f.engine.StartAttempt(ctx, q.ID, "alice")
	require.NoError(t, err)
	require.True(t, start.Deadline.IsZero())

	f.clock.Advance(72 * time.Hour)
	_, err = f.engine.GetAttemptView(ctx, start.AttemptID, "alice")
	require.NoError(t, err)
}

func TestGetAttemptView_StableAcrossCalls(t *testing.T) {
	q := twoQuestionQuiz()
	q.ShuffleQuestions, q.ShuffleChoices = true, true
	f := newFixture(t, quiz.Config{}, q)
	ctx := context.Background()

	start, err := f.engine.StartAttempt(ctx, q.ID, "alice")
	require.NoError(t, err)

	v1, err := f.engine.GetAttemptView(ctx, start.AttemptID, "alice")
	require.NoError(t, err)
	v2, err := f.engine.GetAttemptView(ctx, start.AttemptID, "alice")
	require.NoError(t, err)
	require.Equal(t, start.View, v1)
	require.Equal(t, v1, v2)
}

func TestOwnershipAndLookupErrors(t *testing.T) {
	f := newFixture(t, quiz.Config{})
	ctx := context.Background()
	start, err := f.engine.StartAttempt(ctx, "fire-safety", "alice")
	require.NoError(t, err)

	_, err = f.engine.GetAttemptView(ctx, start.AttemptID, "mallory")
	require.ErrorIs(t, err, quiz.ErrAttemptNotOwned)
	_, err = f.engine.SubmitAttempt(ctx, start.AttemptID, "mallory", nil)
	require.ErrorIs(t, err, quiz.ErrAttemptNotOwned)
	_, err = f.engine.GetResult(ctx, start.AttemptID, "mallory")
	require.ErrorIs(t, err, quiz.ErrAttemptNotOwned)

	_, err = f.engine.GetAttemptView(ctx, "missing", "alice")
	require.ErrorIs(t, err, quiz.ErrAttemptNotFound)

	_, err = f.engine.GetResult(ctx, start.AttemptID, "alice")
	require.ErrorIs(t, err, quiz.ErrAttemptNotFinalized)

	_, err = f.engine.SubmitAttempt(ctx, start.AttemptID, "alice", nil)
	require.NoError(t, err)
	_, err = f.engine.GetAttemptView(ctx, start.AttemptID, "alice")
	require.ErrorIs(t, err, quiz.ErrAttemptAlreadyFinalized)
}

func TestStartAttempt_QuizErrors(t *testing.T) {
	inactive := twoQuestionQuiz()
	inactive.ID, inactive.Active = "retired", false
	f := newFixture(t, quiz.Config{}, twoQuestionQuiz(), inactive)

	_, err := f.engine.StartAttempt(context.Background(), "nope", "alice")
	require.ErrorIs(t, err, quiz.ErrQuizNotFound)
	_, err = f.engine.StartAttempt(context.Background(), "retired", "alice")
	require.ErrorIs(t, err, quiz.ErrQuizInactive)
}

func TestSubmitAttempt_InvalidPayloadLeavesAttemptOpen(t *testing.T) {
	f := newFixture(t, quiz.Config{})
	ctx := context.Background()
	start, err := f.engine.StartAttempt(ctx, "fire-safety", "alice")
	require.NoError(t, err)

	bad := [][]quiz.SubmittedAnswer{
		{{QuestionID: "q9", ChoiceIDs: []string{"A"}}},
		{{QuestionID: "q1", ChoiceIDs: []string{"Z"}}},
		{{QuestionID: "q1", ChoiceIDs: []string{"A"}}, {QuestionID: "q1", ChoiceIDs: []string{"B"}}},
	}
	for _, payload := range bad {
		_, err = f.engine.SubmitAttempt(ctx, start.AttemptID, "alice", payload)
		require.ErrorIs(t, err, quiz.ErrInvalidAnswerPayload)
	}

	a, err := f.store.LoadAttempt(ctx, start.AttemptID)
	require.NoError(t, err)
	require.Equal(t, quiz.StatusInProgress, a.Status)

	res, err := f.engine.SubmitAttempt(ctx, start.AttemptID, "alice", answers("A", "C"))
	require.NoError(t, err)
	require.Equal(t, 10.0, res.Score)
}

func TestSubmitAttempt_EssayFlaggedForManualGrading(t *testing.T) {
	q := twoQuestionQuiz()
	q.Questions = append(q.Questions, quiz.Question{ID: "q3", Type: quiz.TypeEssay, Prompt: "Describe the drill", Points: 10})
	f := newFixture(t, quiz.Config{}, q)
	ctx := context.Background()
	start, err := f.engine.StartAttempt(ctx, q.ID, "alice")
	require.NoError(t, err)

	payload := append(answers("A", "C"), quiz.SubmittedAnswer{QuestionID: "q3", Text: "Walk, do not run."})
	res, err := f.engine.SubmitAttempt(ctx, start.AttemptID, "alice", payload)
	require.NoError(t, err)
	require.Equal(t, 10.0, res.Score)
	require.Equal(t, 20.0, res.MaxScore)

	essay := res.Breakdown[2]
	require.Nil(t, essay.IsCorrect)
	require.True(t, essay.NeedsManualGrading)
	require.Zero(t, essay.AwardedPoints)
	require.Equal(t, "Walk, do not run.", essay.Text)
}

func TestSnapshotIsolatesInFlightAttempt(t *testing.T) {
	f := newFixture(t, quiz.Config{})
	ctx := context.Background()
	start, err := f.engine.StartAttempt(ctx, "fire-safety", "alice")
	require.NoError(t, err)

	// the quiz is edited after the attempt started: q1's key moves to B
	edited := twoQuestionQuiz()
	edited.Questions[0].Choices[0].IsCorrect = false
	edited.Questions[0].Choices[1].IsCorrect = true
	edited.Questions[0].Points = 50
	require.NoError(t, f.store.PutQuiz(ctx, edited))

	res, err := f.engine.SubmitAttempt(ctx, start.AttemptID, "alice", answers("A", "C"))
	require.NoError(t, err)
	require.Equal(t, 10.0, res.Score)
	require.Equal(t, 10.0, res.MaxScore)
}

func TestLimiter_LifetimeCap(t *testing.T) {
	f := newFixture(t, quiz.Config{Limits: quiz.Limits{MaxAttempts: 3}})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		start, err := f.engine.StartAttempt(ctx, "fire-safety", "alice")
		require.NoError(t, err)
		_, err = f.engine.SubmitAttempt(ctx, start.AttemptID, "alice", answers("A", "C"))
		require.NoError(t, err)
		f.clock.Advance(24 * time.Hour)
	}
	_, err := f.engine.StartAttempt(ctx, "fire-safety", "alice")
	require.ErrorIs(t, err, quiz.ErrAttemptLimitExceeded)

	// other learners are unaffected
	_, err = f.engine.StartAttempt(ctx, "fire-safety", "bob")
	require.NoError(t, err)
}

func TestLimiter_DailyCap(t *testing.T) {
	f := newFixture(t, quiz.Config{Limits: quiz.Limits{MaxAttempts: 10, MaxAttemptsPerDay: 1}})
	ctx := context.Background()

	start, err := f.engine.StartAttempt(ctx, "fire-safety", "alice")
	require.NoError(t, err)
	_, err = f.engine.SubmitAttempt(ctx, start.AttemptID, "alice", nil)
	require.NoError(t, err)

	f.clock.Advance(2 * time.Hour)
	_, err = f.engine.StartAttempt(ctx, "fire-safety", "alice")
	require.ErrorIs(t, err, quiz.ErrAttemptLimitExceeded)

	// 09:00 + 15h is midnight UTC: a new day
	f.clock.Advance(13 * time.Hour)
	_, err = f.engine.StartAttempt(ctx, "fire-safety", "alice")
	require.NoError(t, err)
}

func TestLimiter_PerQuizOverride(t *testing.T) {
	q := twoQuestionQuiz()
	q.MaxAttempts = 1
	f := newFixture(t, quiz.Config{Limits: quiz.Limits{MaxAttempts: 5}}, q)
	ctx := context.Background()

	start, err := f.engine.StartAttempt(ctx, q.ID, "alice")
	require.NoError(t, err)
	_, err = f.engine.SubmitAttempt(ctx, start.AttemptID, "alice", nil)
	require.NoError(t, err)

	_, err = f.engine.StartAttempt(ctx, q.ID, "alice")
	require.ErrorIs(t, err, quiz.ErrAttemptLimitExceeded)
}

func TestStartAttempt_RejectsSecondWhileInProgress(t *testing.T) {
	f := newFixture(t, quiz.Config{})
	ctx := context.Background()
	_, err := f.engine.StartAttempt(ctx, "fire-safety", "alice")
	require.NoError(t, err)

	_, err = f.engine.StartAttempt(ctx, "fire-safety", "alice")
	require.ErrorIs(t, err, quiz.ErrAttemptAlreadyInProgress)
}

func TestStartAttempt_ConcurrentRace(t *testing.T) {
	f := newFixture(t, quiz.Config{Limits: quiz.Limits{MaxAttempts: 3}})
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.engine.StartAttempt(ctx, "fire-safety", "alice")
		}(i)
	}
	wg.Wait()

	ok, dup := 0, 0
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, quiz.ErrAttemptAlreadyInProgress):
			dup++
		}
	}
	require.Equal(t, 1, ok)
	require.Equal(t, 1, dup)

	n, err := f.store.CountAttempts(ctx, "fire-safety", "alice")
	require.NoError(t, err)
	require.Equal(t, 1, n)
}

func TestStartAttempt_ConcurrentRaceAcrossEngines(t *testing.T) {
	// two engines with separate in-process locks share one store, as two
	// server instances would; the store's guard still admits only one
	store := quiz.NewMemoryStore()
	require.NoError(t, store.PutQuiz(context.Background(), twoQuestionQuiz()))
	engines := []*quiz.Engine{
		quiz.NewEngine(store, store, quiz.Config{}),
		quiz.NewEngine(store, store, quiz.Config{}),
	}

	var wg sync.WaitGroup
	errs := make([]error, len(engines))
	for i, e := range engines {
		wg.Add(1)
		go func(i int, e *quiz.Engine) {
			defer wg.Done()
			_, errs[i] = e.StartAttempt(context.Background(), "fire-safety", "alice")
		}(i, e)
	}
	wg.Wait()

	ok := 0
	for _, err := range errs {
		if err == nil {
			ok++
		} else {
			require.ErrorIs(t, err, quiz.ErrAttemptAlreadyInProgress)
		}
	}
	require.Equal(t, 1, ok)
}

func TestStartAttempt_ExpiresStaleAttemptFirst(t *testing.T) {
	f := newFixture(t, quiz.Config{})
	ctx := context.Background()
	first, err := f.engine.StartAttempt(ctx, "fire-safety", "alice")
	require.NoError(t, err)

	f.clock.Advance(30 * time.Minute)
	second, err := f.engine.StartAttempt(ctx, "fire-safety", "alice")
	require.NoError(t, err)
	require.NotEqual(t, first.AttemptID, second.AttemptID)

	a, err := f.store.LoadAttempt(ctx, first.AttemptID)
	require.NoError(t, err)
	require.Equal(t, quiz.StatusTimedOut, a.Status)
}

func TestSweepExpired(t *testing.T) {
	f := newFixture(t, quiz.Config{})
	ctx := context.Background()
	for _, user := range []string{"alice", "bob", "carol"} {
		_, err := f.engine.StartAttempt(ctx, "fire-safety", user)
		require.NoError(t, err)
	}
	f.clock.Advance(5 * time.Minute)
	n, err := f.engine.SweepExpired(ctx)
	require.NoError(t, err)
	require.Zero(t, n)

	f.clock.Advance(6 * time.Minute)
	n, err = f.engine.SweepExpired(ctx)
	require.NoError(t, err)
	require.Equal(t, 3, n)

	n, err = f.engine.SweepExpired(ctx)
	require.NoError(t, err)
	require.Zero(t, n)
}

func TestExpireAttempt_NotBeforeDeadline(t *testing.T) {
	f := newFixture(t, quiz.Config{})
	ctx := context.Background()
	start, err := f.engine.StartAttempt(ctx, "fire-safety", "alice")
	require.NoError(t, err)

	expired, err := f.engine.ExpireAttempt(ctx, start.AttemptID)
	require.NoError(t, err)
	require.False(t, expired)
}

func TestEventsPublishedOnTransitions(t *testing.T) {
	f := newFixture(t, quiz.Config{})
	ctx := context.Background()
	start, err := f.engine.StartAttempt(ctx, "fire-safety", "alice")
	require.NoError(t, err)
	_, err = f.engine.SubmitAttempt(ctx, start.AttemptID, "alice", answers("A", "C"))
	require.NoError(t, err)

	require.Equal(t, []string{quiz.EventAttemptStarted, quiz.EventAttemptCompleted}, f.events.types())
	last := f.events.events[1]
	require.NotNil(t, last.Score)
	require.Equal(t, 10.0, *last.Score)
}

func TestListAttemptsNewestFirst(t *testing.T) {
	f := newFixture(t, quiz.Config{})
	ctx := context.Background()
	var ids []string
	for i := 0; i < 2; i++ {
		start, err := f.engine.StartAttempt(ctx, "fire-safety", "alice")
		require.NoError(t, err)
		_, err = f.engine.SubmitAttempt(ctx, start.AttemptID, "alice", nil)
		require.NoError(t, err)
		ids = append(ids, start.AttemptID)
		f.clock.Advance(time.Hour)
	}
	list, err := f.engine.ListAttempts(ctx, "fire-safety", "alice")
	require.NoError(t, err)
	require.Len(t, list, 2)
	require.Equal(t, ids[1], list[0].ID)
}

func TestSweeperRunExpiresInBackground(t *testing.T) {
	f := newFixture(t, quiz.Config{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	start, err := f.engine.StartAttempt(ctx, "fire-safety", "alice")
	require.NoError(t, err)
	f.clock.Advance(11 * time.Minute)

	done := make(chan struct{})
	go func() {
		(&quiz.Sweeper{Engine: f.engine, Interval: 5 * time.Millisecond}).Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		a, err := f.store.LoadAttempt(context.Background(), start.AttemptID)
		return err == nil && a.Status == quiz.StatusTimedOut
	}, 2*time.Second, 5*time.Millisecond)

	cancel()
	<-done
}
