package quiz

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// SQLStore persists quizzes, lesson links, attempts and answers in
// sqlite or postgres. Statements use $N placeholders, accepted by both.
type SQLStore struct {
	db     *sql.DB
	driver string // "sqlite" or "postgres"
}

func NewSQLStore(db *sql.DB, driver string) *SQLStore {
	return &SQLStore{db: db, driver: driver}
}

func (s *SQLStore) PutQuiz(ctx context.Context, q Quiz) error {
	qj, err := json.Marshal(q.Questions)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO quizzes
		(id,title,time_limit_sec,active,shuffle_questions,shuffle_choices,max_attempts,max_attempts_per_day,questions_json,created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		ON CONFLICT (id) DO UPDATE SET title=EXCLUDED.title, time_limit_sec=EXCLUDED.time_limit_sec,
			active=EXCLUDED.active, shuffle_questions=EXCLUDED.shuffle_questions, shuffle_choices=EXCLUDED.shuffle_choices,
			max_attempts=EXCLUDED.max_attempts, max_attempts_per_day=EXCLUDED.max_attempts_per_day,
			questions_json=EXCLUDED.questions_json`,
		q.ID, q.Title, int64(q.TimeLimit/time.Second), boolInt(q.Active), boolInt(q.ShuffleQuestions),
		boolInt(q.ShuffleChoices), q.MaxAttempts, q.MaxAttemptsPerDay, string(qj), time.Now().UnixMilli())
	return err
}

func (s *SQLStore) LinkLesson(ctx context.Context, lessonID, quizID string) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO lesson_quizzes (lesson_id, quiz_id) VALUES ($1,$2)
		ON CONFLICT (lesson_id) DO UPDATE SET quiz_id=EXCLUDED.quiz_id`, lessonID, quizID)
	return err
}

func (s *SQLStore) GetActiveQuizWithQuestions(ctx context.Context, quizID string) (Quiz, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id,title,time_limit_sec,active,shuffle_questions,shuffle_choices,
		max_attempts,max_attempts_per_day,questions_json FROM quizzes WHERE id=$1`, quizID)
	var (
		q     Quiz
		secs  int64
		qjson string
	)
	err := row.Scan(&q.ID, &q.Title, &secs, &q.Active, &q.ShuffleQuestions, &q.ShuffleChoices,
		&q.MaxAttempts, &q.MaxAttemptsPerDay, &qjson)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Quiz{}, ErrQuizNotFound
		}
		return Quiz{}, err
	}
	if !q.Active {
		return Quiz{}, ErrQuizInactive
	}
	q.TimeLimit = time.Duration(secs) * time.Second
	if err := json.Unmarshal([]byte(qjson), &q.Questions); err != nil {
		return Quiz{}, fmt.Errorf("decode questions of quiz %s: %w", quizID, err)
	}
	return q, nil
}

func (s *SQLStore) GetQuizIDForLesson(ctx context.Context, lessonID string) (string, error) {
	var quizID string
	err := s.db.QueryRowContext(ctx, `SELECT quiz_id FROM lesson_quizzes WHERE lesson_id=$1`, lessonID).Scan(&quizID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrLessonNotFound
	}
	return quizID, err
}

func (s *SQLStore) CountAttempts(ctx context.Context, quizID, userID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM attempts WHERE quiz_id=$1 AND user_id=$2`,
		quizID, userID).Scan(&n)
	return n, err
}

func (s *SQLStore) CountAttemptsInWindow(ctx context.Context, quizID, userID string, from, to time.Time) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM attempts
		WHERE quiz_id=$1 AND user_id=$2 AND started_at >= $3 AND started_at < $4`,
		quizID, userID, from.UnixMilli(), to.UnixMilli()).Scan(&n)
	return n, err
}

func (s *SQLStore) InsertAttempt(ctx context.Context, a Attempt) error {
	snap, err := json.Marshal(a.Snapshot)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO attempts
		(id,quiz_id,user_id,status,max_score,shuffle_seed,shuffle_questions,shuffle_choices,snapshot_json,started_at,deadline)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
		a.ID, a.QuizID, a.UserID, string(a.Status), a.MaxScore, int64(a.ShuffleSeed),
		boolInt(a.ShuffleQuestions), boolInt(a.ShuffleChoices), string(snap),
		a.StartedAt.UnixMilli(), nullMillis(a.Deadline))
	if isUniqueViolation(err) {
		return ErrAttemptAlreadyInProgress
	}
	return err
}

const attemptColumns = `id,quiz_id,user_id,status,score,max_score,shuffle_seed,shuffle_questions,shuffle_choices,
	snapshot_json,started_at,deadline,submitted_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAttempt(row rowScanner) (Attempt, error) {
	var (
		a         Attempt
		status    string
		score     sql.NullFloat64
		seed      int64
		snap      string
		started   int64
		deadline  sql.NullInt64
		submitted sql.NullInt64
	)
	if err := row.Scan(&a.ID, &a.QuizID, &a.UserID, &status, &score, &a.MaxScore, &seed,
		&a.ShuffleQuestions, &a.ShuffleChoices, &snap, &started, &deadline, &submitted); err != nil {
		return Attempt{}, err
	}
	a.Status = Status(status)
	a.ShuffleSeed = uint64(seed)
	a.StartedAt = time.UnixMilli(started).UTC()
	if score.Valid {
		v := score.Float64
		a.Score = &v
	}
	if deadline.Valid {
		a.Deadline = time.UnixMilli(deadline.Int64).UTC()
	}
	if submitted.Valid {
		t := time.UnixMilli(submitted.Int64).UTC()
		a.SubmittedAt = &t
	}
	if err := json.Unmarshal([]byte(snap), &a.Snapshot); err != nil {
		return Attempt{}, fmt.Errorf("decode snapshot of attempt %s: %w", a.ID, err)
	}
	return a, nil
}

func (s *SQLStore) LoadAttempt(ctx context.Context, attemptID string) (Attempt, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+attemptColumns+` FROM attempts WHERE id=$1`, attemptID)
	a, err := scanAttempt(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Attempt{}, ErrAttemptNotFound
	}
	return a, err
}

func (s *SQLStore) FindInProgress(ctx context.Context, quizID, userID string) (Attempt, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+attemptColumns+` FROM attempts
		WHERE quiz_id=$1 AND user_id=$2 AND status='in_progress'`, quizID, userID)
	a, err := scanAttempt(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Attempt{}, ErrAttemptNotFound
	}
	return a, err
}

func (s *SQLStore) ListAttempts(ctx context.Context, opts AttemptListOpts) ([]Attempt, error) {
	var (
		where []string
		args  []any
	)
	if opts.QuizID != "" {
		args = append(args, opts.QuizID)
		where = append(where, fmt.Sprintf("quiz_id=$%d", len(args)))
	}
	if opts.UserID != "" {
		args = append(args, opts.UserID)
		where = append(where, fmt.Sprintf("user_id=$%d", len(args)))
	}
	q := `SELECT ` + attemptColumns + ` FROM attempts`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY started_at DESC, id"
	if opts.Limit > 0 {
		args = append(args, opts.Limit)
		q += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []Attempt{}
	for rows.Next() {
		a, err := scanAttempt(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *SQLStore) ListExpired(ctx context.Context, now time.Time, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM attempts
		WHERE status='in_progress' AND deadline IS NOT NULL AND deadline < $1
		ORDER BY deadline LIMIT $2`, now.UnixMilli(), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// FinalizeAttempt runs the status update and the answer inserts in one
// transaction; a cancelled context rolls the whole thing back.
func (s *SQLStore) FinalizeAttempt(ctx context.Context, f Finalization) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if err := updateAttemptStatus(ctx, tx, f); err != nil {
		return err
	}
	if err := insertAnswers(ctx, tx, f.AttemptID, f.Answers); err != nil {
		return err
	}
	return tx.Commit()
}

func updateAttemptStatus(ctx context.Context, tx *sql.Tx, f Finalization) error {
	res, err := tx.ExecContext(ctx, `UPDATE attempts SET status=$1, score=$2, submitted_at=$3
		WHERE id=$4 AND status='in_progress'`,
		string(f.Status), f.Score, f.SubmittedAt.UnixMilli(), f.AttemptID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 1 {
		return nil
	}
	var exists int
	err = tx.QueryRowContext(ctx, `SELECT 1 FROM attempts WHERE id=$1`, f.AttemptID).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrAttemptNotFound
	}
	if err != nil {
		return err
	}
	return ErrAttemptAlreadyFinalized
}

func insertAnswers(ctx context.Context, tx *sql.Tx, attemptID string, answers []UserAnswer) error {
	for _, ans := range answers {
		ids := ans.ChoiceIDs
		if ids == nil {
			ids = []string{}
		}
		cj, err := json.Marshal(ids)
		if err != nil {
			return err
		}
		var correct any
		if ans.IsCorrect != nil {
			correct = boolInt(*ans.IsCorrect)
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO user_answers
			(attempt_id,question_id,choice_ids_json,answer_text,is_correct,awarded_points,needs_manual)
			VALUES ($1,$2,$3,$4,$5,$6,$7)`,
			attemptID, ans.QuestionID, string(cj), ans.Text, correct, ans.AwardedPoints, boolInt(ans.NeedsManualGrading)); err != nil {
			return fmt.Errorf("insert answer %s/%s: %w", attemptID, ans.QuestionID, err)
		}
	}
	return nil
}

func (s *SQLStore) LoadAnswers(ctx context.Context, attemptID string) ([]UserAnswer, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT question_id,choice_ids_json,answer_text,is_correct,awarded_points,needs_manual
		FROM user_answers WHERE attempt_id=$1 ORDER BY question_id`, attemptID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []UserAnswer
	for rows.Next() {
		var (
			ans     = UserAnswer{AttemptID: attemptID}
			cj      string
			correct sql.NullInt64
		)
		if err := rows.Scan(&ans.QuestionID, &cj, &ans.Text, &correct, &ans.AwardedPoints, &ans.NeedsManualGrading); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(cj), &ans.ChoiceIDs); err != nil {
			return nil, fmt.Errorf("decode choices of %s/%s: %w", attemptID, ans.QuestionID, err)
		}
		if len(ans.ChoiceIDs) == 0 {
			ans.ChoiceIDs = nil
		}
		if correct.Valid {
			b := correct.Int64 == 1
			ans.IsCorrect = &b
		}
		out = append(out, ans)
	}
	return out, rows.Err()
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	var sqErr *sqlite.Error
	if errors.As(err, &sqErr) {
		return sqErr.Code()&0xff == sqlite3.SQLITE_CONSTRAINT && strings.Contains(sqErr.Error(), "UNIQUE")
	}
	return false
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullMillis(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UnixMilli()
}
