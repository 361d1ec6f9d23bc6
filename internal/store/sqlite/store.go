package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"freight_auction/internal/domain"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS items (
	id TEXT PRIMARY KEY,
	size INTEGER NOT NULL,
	pos_x REAL NOT NULL,
	pos_y REAL NOT NULL,
	price INTEGER NOT NULL,
	tick INTEGER NOT NULL,
	created_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS auction_events (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	task_id TEXT NOT NULL,
	kind TEXT NOT NULL,
	actor TEXT NOT NULL,
	price INTEGER NOT NULL,
	deadline INTEGER NOT NULL,
	tick INTEGER NOT NULL,
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_auction_events_task ON auction_events(task_id, id);

CREATE TABLE IF NOT EXISTS settlements (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	task_id TEXT NOT NULL,
	contractor TEXT NOT NULL,
	pay INTEGER NOT NULL,
	refund INTEGER NOT NULL,
	tick INTEGER NOT NULL,
	created_at INTEGER NOT NULL,
	UNIQUE(task_id)
);
`

// Store is the orchestrator's append-only journal of market activity.
// The auction core never touches it; it exists so a run can be audited
// after the fact.
type Store struct {
	db *sql.DB
}

func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	db.SetMaxOpenConns(1)
	return &Store{db: db}, nil
}

func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) RecordItem(ctx context.Context, item domain.Item, tick int64) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO items (id, size, pos_x, pos_y, price, tick, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		item.ID, item.Size, item.Pos.X, item.Pos.Y, item.Price, tick, time.Now().UTC().Unix(),
	)
	if err != nil {
		return fmt.Errorf("record item %s: %w", item.ID, err)
	}
	return nil
}

func (s *Store) RecordEvent(ctx context.Context, ev domain.TaskEvent) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO auction_events (task_id, kind, actor, price, deadline, tick, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		ev.TaskID, string(ev.Kind), ev.Actor, ev.Price, ev.Deadline, ev.Tick, time.Now().UTC().Unix(),
	)
	if err != nil {
		return fmt.Errorf("record event %s/%s: %w", ev.TaskID, ev.Kind, err)
	}
	return nil
}

// RecordSettlement journals a settlement exactly once per task; a
// duplicate (at-least-once delivery from the sweep) is ignored.
func (s *Store) RecordSettlement(ctx context.Context, st domain.Settlement) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO settlements (task_id, contractor, pay, refund, tick, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		st.TaskID, st.Contractor, st.Pay, st.Refund, st.Tick, time.Now().UTC().Unix(),
	)
	if err != nil {
		return fmt.Errorf("record settlement %s: %w", st.TaskID, err)
	}
	return nil
}

func (s *Store) ListTaskEvents(ctx context.Context, taskID string, limit int) ([]domain.TaskEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, task_id, kind, actor, price, deadline, tick, created_at
		 FROM auction_events WHERE task_id = ? ORDER BY id ASC LIMIT ?`,
		taskID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list events for %s: %w", taskID, err)
	}
	defer rows.Close()

	var out []domain.TaskEvent
	for rows.Next() {
		var ev domain.TaskEvent
		var kind string
		var createdAt int64
		if err := rows.Scan(&ev.ID, &ev.TaskID, &kind, &ev.Actor, &ev.Price, &ev.Deadline, &ev.Tick, &createdAt); err != nil {
			return nil, fmt.Errorf("scan event row: %w", err)
		}
		ev.Kind = domain.EventKind(kind)
		ev.CreatedAt = time.Unix(createdAt, 0).UTC()
		out = append(out, ev)
	}
	return out, rows.Err()
}

func (s *Store) ListSettlements(ctx context.Context, limit int) ([]domain.Settlement, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, task_id, contractor, pay, refund, tick, created_at
		 FROM settlements ORDER BY id ASC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list settlements: %w", err)
	}
	defer rows.Close()

	var out []domain.Settlement
	for rows.Next() {
		var st domain.Settlement
		var createdAt int64
		if err := rows.Scan(&st.ID, &st.TaskID, &st.Contractor, &st.Pay, &st.Refund, &st.Tick, &createdAt); err != nil {
			return nil, fmt.Errorf("scan settlement row: %w", err)
		}
		st.CreatedAt = time.Unix(createdAt, 0).UTC()
		out = append(out, st)
	}
	return out, rows.Err()
}

func (s *Store) CountEvents(ctx context.Context, kind domain.EventKind) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM auction_events WHERE kind = ?`, string(kind),
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count %s events: %w", kind, err)
	}
	return n, nil
}
