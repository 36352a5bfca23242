package quiz

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"hash/fnv"
	mrand "math/rand/v2"
)

// Shuffle returns a permutation of ids that depends only on (seed, key).
// It is a Fisher–Yates shuffle driven by a PCG stream, so the same inputs
// always produce the same order.
func Shuffle(seed uint64, key string, ids []string) []string {
	out := make([]string, len(ids))
	copy(out, ids)

	h := fnv.New64a()
	_, _ = h.Write([]byte(key))
	r := mrand.New(mrand.NewPCG(seed, h.Sum64()))
	for i := len(out) - 1; i > 0; i-- {
		j := r.IntN(i + 1)
		out[i], out[j] = out[j], out[i]
	}
	return out
}

// buildView renders the learner-facing view of an attempt from its stored
// seed and snapshot. Correctness markers never leave this function.
func buildView(a Attempt) AttemptView {
	byID := make(map[string]Question, len(a.Snapshot))
	order := make([]string, 0, len(a.Snapshot))
	for _, q := range a.Snapshot {
		byID[q.ID] = q
		order = append(order, q.ID)
	}
	if a.ShuffleQuestions {
		order = Shuffle(a.ShuffleSeed, a.QuizID, order)
	}

	view := AttemptView{
		AttemptID: a.ID,
		QuizID:    a.QuizID,
		StartedAt: a.StartedAt,
		Deadline:  a.Deadline,
		MaxScore:  a.MaxScore,
		Questions: make([]QuestionView, 0, len(order)),
	}
	for _, qid := range order {
		q := byID[qid]
		choices := make(map[string]Choice, len(q.Choices))
		corder := make([]string, 0, len(q.Choices))
		for _, c := range q.Choices {
			choices[c.ID] = c
			corder = append(corder, c.ID)
		}
		if a.ShuffleChoices {
			corder = Shuffle(a.ShuffleSeed, q.ID, corder)
		}
		qv := QuestionView{ID: q.ID, Type: q.Type, Prompt: q.Prompt, Points: q.Points}
		for _, cid := range corder {
			qv.Choices = append(qv.Choices, ChoiceView{ID: cid, Text: choices[cid].Text})
		}
		view.Questions = append(view.Questions, qv)
	}
	return view
}

// CryptoSeed draws seeds from crypto/rand.
type CryptoSeed struct{}

func (CryptoSeed) Seed() (uint64, error) {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		return 0, fmt.Errorf("read seed: %w", err)
	}
	return binary.BigEndian.Uint64(b[:]), nil
}

// FixedSeed always returns the same seed.
type FixedSeed uint64

func (s FixedSeed) Seed() (uint64, error) { return uint64(s), nil }
