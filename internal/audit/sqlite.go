package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

// entryModel maps the audit_entries table. Timestamps are stored as Unix
// nanoseconds so range filters compare numbers, not formatted strings.
type entryModel struct {
	bun.BaseModel `bun:"table:audit_entries"`

	ID          string `bun:"id,pk"`
	TimestampNS int64  `bun:"ts_ns,notnull"`
	Operation   string `bun:"operation,notnull"`
	TaskID      string `bun:"task_id"`
	Status      string `bun:"status,notnull"`
	Provider    string `bun:"provider"`
	Peer        string `bun:"peer"`
	DurationNS  int64  `bun:"duration_ns"`
	Metadata    string `bun:"metadata"`
}

// SQLiteSink stores entries in a SQLite database.
type SQLiteSink struct {
	db *bun.DB
}

// OpenSQLite opens (creating if needed) the audit database at dsn. Use
// ":memory:" for a throwaway database.
func OpenSQLite(ctx context.Context, dsn string) (*SQLiteSink, error) {
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open audit database: %w", err)
	}
	// One connection: SQLite has a single writer and ":memory:" databases
	// are per connection.
	sqlDB.SetMaxOpenConns(1)

	db := bun.NewDB(sqlDB, sqlitedialect.New())
	if _, err := db.NewCreateTable().Model((*entryModel)(nil)).IfNotExists().Exec(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create audit table: %w", err)
	}
	if _, err := db.NewCreateIndex().
		Model((*entryModel)(nil)).
		Index("audit_entries_ts_idx").
		IfNotExists().
		Column("ts_ns").
		Exec(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create audit index: %w", err)
	}
	return &SQLiteSink{db: db}, nil
}

func (s *SQLiteSink) Write(ctx context.Context, e Entry) error {
	meta := ""
	if len(e.Metadata) > 0 {
		b, err := json.Marshal(e.Metadata)
		if err != nil {
			return fmt.Errorf("marshal metadata: %w", err)
		}
		meta = string(b)
	}

	m := &entryModel{
		ID:          e.ID,
		TimestampNS: e.Timestamp.UnixNano(),
		Operation:   e.Operation,
		TaskID:      e.TaskID,
		Status:      e.Status,
		Provider:    e.Provider,
		Peer:        e.Peer,
		DurationNS:  int64(e.Duration),
		Metadata:    meta,
	}
	if _, err := s.db.NewInsert().Model(m).Exec(ctx); err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}

func (s *SQLiteSink) Query(ctx context.Context, f Filter) ([]Entry, error) {
	var rows []entryModel
	q := s.db.NewSelect().Model(&rows).OrderExpr("ts_ns DESC, id DESC")
	if f.Operation != "" {
		q = q.Where("operation = ?", f.Operation)
	}
	if f.TaskID != "" {
		q = q.Where("task_id = ?", f.TaskID)
	}
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	if !f.Start.IsZero() {
		q = q.Where("ts_ns >= ?", f.Start.UnixNano())
	}
	if !f.End.IsZero() {
		q = q.Where("ts_ns <= ?", f.End.UnixNano())
	}
	if f.Limit > 0 {
		q = q.Limit(f.Limit)
	}
	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("query audit entries: %w", err)
	}

	out := make([]Entry, 0, len(rows))
	for _, r := range rows {
		e := Entry{
			ID:        r.ID,
			Timestamp: time.Unix(0, r.TimestampNS),
			Operation: r.Operation,
			TaskID:    r.TaskID,
			Status:    r.Status,
			Provider:  r.Provider,
			Peer:      r.Peer,
			Duration:  time.Duration(r.DurationNS),
		}
		if r.Metadata != "" {
			if err := json.Unmarshal([]byte(r.Metadata), &e.Metadata); err != nil {
				return nil, fmt.Errorf("unmarshal metadata of %s: %w", r.ID, err)
			}
		}
		out = append(out, e)
	}
	return out, nil
}

func (s *SQLiteSink) Close() error {
	return s.db.Close()
}
