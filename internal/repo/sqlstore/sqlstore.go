// Package sqlstore keeps outcome history in MySQL or SQLite through
// database/sql. Queries are built with squirrel so one code path serves both.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	_ "github.com/go-sql-driver/mysql"
	_ "modernc.org/sqlite"

	"github.com/hamed0406/uptimemon/internal/domain"
)

const table = "check_outcomes"

var columns = []string{
	"monitor_id", "checked_at_ns", "success", "status_code", "duration_ns", "error_kind", "message",
}

var schemas = map[string][]string{
	"sqlite": {
		`CREATE TABLE IF NOT EXISTS check_outcomes (
  id            INTEGER PRIMARY KEY AUTOINCREMENT,
  monitor_id    TEXT NOT NULL,
  checked_at_ns INTEGER NOT NULL,
  success       INTEGER NOT NULL,
  status_code   INTEGER NULL,
  duration_ns   INTEGER NOT NULL,
  error_kind    TEXT NOT NULL,
  message       TEXT NOT NULL
)`,
		`CREATE INDEX IF NOT EXISTS idx_check_outcomes_monitor ON check_outcomes (monitor_id, id)`,
	},
	"mysql": {
		`CREATE TABLE IF NOT EXISTS check_outcomes (
  id            BIGINT NOT NULL AUTO_INCREMENT PRIMARY KEY,
  monitor_id    VARCHAR(255) NOT NULL,
  checked_at_ns BIGINT NOT NULL,
  success       BOOLEAN NOT NULL,
  status_code   INT NULL,
  duration_ns   BIGINT NOT NULL,
  error_kind    VARCHAR(64) NOT NULL,
  message       TEXT NOT NULL,
  INDEX idx_check_outcomes_monitor (monitor_id, id)
)`,
	},
}

type Store struct {
	db    *sql.DB
	sb    sq.StatementBuilderType
	limit int
}

// Open connects with driver ("mysql" or "sqlite") and applies the schema.
func Open(ctx context.Context, driver, dsn string, limit int) (*Store, error) {
	stmts, ok := schemas[driver]
	if !ok {
		return nil, fmt.Errorf("sqlstore: unsupported driver %q", driver)
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}
	if driver == "sqlite" {
		// sqlite allows a single writer
		db.SetMaxOpenConns(1)
	}
	ctxPing, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctxPing); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("apply schema: %w", err)
		}
	}
	return &Store{
		db:    db,
		sb:    sq.StatementBuilder.PlaceholderFormat(sq.Question),
		limit: limit,
	}, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) Append(ctx context.Context, o domain.CheckOutcome) error {
	var status any
	if o.StatusCode != nil {
		status = *o.StatusCode
	}
	q, args, err := s.sb.Insert(table).Columns(columns...).
		Values(string(o.MonitorID), o.Timestamp.UnixNano(), o.Success, status,
			int64(o.Duration), string(o.ErrorKind), o.Message).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
		return fmt.Errorf("insert outcome: %w", err)
	}
	return s.prune(ctx, o.MonitorID)
}

// prune deletes everything older than the newest limit rows of id.
func (s *Store) prune(ctx context.Context, id domain.MonitorID) error {
	if s.limit <= 0 {
		return nil
	}
	q, args, err := s.sb.Select("id").From(table).
		Where(sq.Eq{"monitor_id": string(id)}).
		OrderBy("id DESC").
		Limit(1).Offset(uint64(s.limit)).
		ToSql()
	if err != nil {
		return fmt.Errorf("build prune: %w", err)
	}
	var cutoff int64
	if err := s.db.QueryRowContext(ctx, q, args...).Scan(&cutoff); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		return fmt.Errorf("prune cutoff: %w", err)
	}
	q, args, err = s.sb.Delete(table).
		Where(sq.Eq{"monitor_id": string(id)}).
		Where(sq.LtOrEq{"id": cutoff}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build prune: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
		return fmt.Errorf("prune outcomes: %w", err)
	}
	return nil
}

func (s *Store) Recent(ctx context.Context, id domain.MonitorID, limit int) ([]domain.CheckOutcome, error) {
	if limit <= 0 {
		limit = s.limit
	}
	b := s.sb.Select(columns...).From(table).
		Where(sq.Eq{"monitor_id": string(id)}).
		OrderBy("id DESC")
	if limit > 0 {
		b = b.Limit(uint64(limit))
	}
	return s.query(ctx, b)
}

func (s *Store) Latest(ctx context.Context) ([]domain.CheckOutcome, error) {
	qualified := make([]string, len(columns))
	for i, c := range columns {
		qualified[i] = "o." + c
	}
	b := s.sb.Select(qualified...).
		From(table + " o").
		Join("(SELECT monitor_id, MAX(id) AS id FROM " + table + " GROUP BY monitor_id) m ON m.id = o.id").
		OrderBy("o.monitor_id")
	return s.query(ctx, b)
}

func (s *Store) query(ctx context.Context, b sq.SelectBuilder) ([]domain.CheckOutcome, error) {
	q, args, err := b.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("select outcomes: %w", err)
	}
	defer rows.Close()

	var out []domain.CheckOutcome
	for rows.Next() {
		var (
			o      domain.CheckOutcome
			id     string
			atNS   int64
			status sql.NullInt64
			durNS  int64
			kind   string
		)
		if err := rows.Scan(&id, &atNS, &o.Success, &status, &durNS, &kind, &o.Message); err != nil {
			return nil, fmt.Errorf("scan outcome: %w", err)
		}
		o.MonitorID = domain.MonitorID(id)
		o.Timestamp = time.Unix(0, atNS).UTC()
		o.Duration = time.Duration(durNS)
		o.ErrorKind = domain.ErrorKind(kind)
		if status.Valid {
			o.StatusCode = domain.StatusCode(int(status.Int64))
		}
		out = append(out, o)
	}
	return out, rows.Err()
}
