package grading

// Item is the graded outcome of one question in a Sheet.
type Item struct {
	QuestionID string
	Result
}

// Sheet is the outcome of grading a whole answer set.
type Sheet struct {
	Score    float64
	MaxScore float64
	Items    []Item // one per question, in key order
}

// Score grades responses (keyed by question id) against the authoritative
// key. Every question contributes to MaxScore; unanswered questions and
// questions needing manual grading contribute nothing to Score.
func Score(g Grader, key []Q, responses map[string]Response) Sheet {
	sheet := Sheet{Items: make([]Item, 0, len(key))}
	for _, q := range key {
		var resp *Response
		if r, ok := responses[q.ID]; ok {
			resp = &r
		}
		res := g.Grade(q, resp)
		sheet.MaxScore += q.Points
		sheet.Score += res.AutoPoints
		sheet.Items = append(sheet.Items, Item{QuestionID: q.ID, Result: res})
	}
	sheet.Score = roundPoints(sheet.Score)
	sheet.MaxScore = roundPoints(sheet.MaxScore)
	return sheet
}

// MaxScore sums the points of every question, essays included.
func MaxScore(key []Q) float64 {
	total := 0.0
	for _, q := range key {
		total += q.Points
	}
	return roundPoints(total)
}
