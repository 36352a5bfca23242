package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/mind-engage/mindengage-training/internal/quiz"
)

// Record is one row of the append-only event_log table.
type Record struct {
	Seq       int64  `json:"seq"`
	Type      string `json:"type"`
	Key       string `json:"key"` // attempt id
	DataJSON  string `json:"data"`
	CreatedAt int64  `json:"created_at"` // unix ms
}

// Log appends attempt lifecycle events to event_log. It satisfies
// quiz.EventSink.
type Log struct{ db *sql.DB }

func NewLog(db *sql.DB) *Log { return &Log{db: db} }

func (l *Log) Append(ctx context.Context, r Record) error {
	if r.CreatedAt == 0 {
		r.CreatedAt = time.Now().UnixMilli()
	}
	_, err := l.db.ExecContext(ctx,
		`INSERT INTO event_log (typ, key, data, created_at) VALUES ($1,$2,$3,$4)`,
		r.Type, r.Key, r.DataJSON, r.CreatedAt)
	return err
}

func (l *Log) Publish(ctx context.Context, e quiz.Event) error {
	data, err := json.Marshal(e)
	if err != nil {
		return err
	}
	return l.Append(ctx, Record{
		Type:      e.Type,
		Key:       e.AttemptID,
		DataJSON:  string(data),
		CreatedAt: e.OccurredAt.UnixMilli(),
	})
}

// Since returns up to limit records with seq > after, oldest first.
func (l *Log) Since(ctx context.Context, after int64, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := l.db.QueryContext(ctx,
		`SELECT seq, typ, key, data, created_at FROM event_log WHERE seq > $1 ORDER BY seq LIMIT $2`,
		after, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Record
	for rows.Next() {
		var r Record
		if err := rows.Scan(&r.Seq, &r.Type, &r.Key, &r.DataJSON, &r.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
