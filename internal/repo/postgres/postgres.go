package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/hamed0406/uptimemon/internal/domain"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS check_outcomes (
  id          BIGSERIAL PRIMARY KEY,
  monitor_id  TEXT NOT NULL,
  checked_at  TIMESTAMPTZ NOT NULL,
  success     BOOLEAN NOT NULL,
  status_code INTEGER NULL,
  duration_ns BIGINT NOT NULL,
  error_kind  TEXT NOT NULL,
  message     TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_check_outcomes_monitor ON check_outcomes (monitor_id, id DESC);
`

type Store struct {
	pool  *pgxpool.Pool
	log   *zap.Logger
	limit int
}

// New connects, applies the schema and keeps at most limit rows per monitor.
func New(ctx context.Context, dsn string, limit int, log *zap.Logger) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("pgxpool.New: %w", err)
	}
	ctxPing, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(ctxPing); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	if _, err := pool.Exec(ctx, schemaSQL); err != nil {
		pool.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Store{pool: pool, log: log, limit: limit}, nil
}

func (s *Store) Close() error {
	if s.pool != nil {
		s.pool.Close()
	}
	return nil
}

func (s *Store) Append(ctx context.Context, o domain.CheckOutcome) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO check_outcomes
		   (monitor_id, checked_at, success, status_code, duration_ns, error_kind, message)
		 VALUES
		   ($1, $2, $3, $4, $5, $6, $7)`,
		string(o.MonitorID), o.Timestamp.UTC(), o.Success, o.StatusCode,
		int64(o.Duration), string(o.ErrorKind), o.Message,
	)
	if err != nil {
		return fmt.Errorf("insert outcome: %w", err)
	}
	if s.limit <= 0 {
		return nil
	}
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM check_outcomes
		  WHERE monitor_id = $1
		    AND id <= (SELECT id FROM check_outcomes
		                WHERE monitor_id = $1
		                ORDER BY id DESC
		                OFFSET $2 LIMIT 1)`,
		string(o.MonitorID), s.limit,
	)
	if err != nil {
		return fmt.Errorf("prune outcomes: %w", err)
	}
	if n := tag.RowsAffected(); n > 0 {
		s.log.Debug("history_pruned", zap.String("monitor_id", string(o.MonitorID)), zap.Int64("rows", n))
	}
	return nil
}

func (s *Store) Recent(ctx context.Context, id domain.MonitorID, limit int) ([]domain.CheckOutcome, error) {
	if limit <= 0 {
		limit = s.limit
	}
	rows, err := s.pool.Query(ctx,
		`SELECT monitor_id, checked_at, success, status_code, duration_ns, error_kind, message
		   FROM check_outcomes
		  WHERE monitor_id = $1
		  ORDER BY id DESC
		  LIMIT $2`, string(id), limit)
	if err != nil {
		return nil, fmt.Errorf("recent: %w", err)
	}
	return collect(rows)
}

func (s *Store) Latest(ctx context.Context) ([]domain.CheckOutcome, error) {
	rows, err := s.pool.Query(ctx, `
SELECT DISTINCT ON (monitor_id)
       monitor_id, checked_at, success, status_code, duration_ns, error_kind, message
  FROM check_outcomes
 ORDER BY monitor_id, id DESC`)
	if err != nil {
		return nil, fmt.Errorf("latest: %w", err)
	}
	return collect(rows)
}

func collect(rows pgx.Rows) ([]domain.CheckOutcome, error) {
	defer rows.Close()
	var out []domain.CheckOutcome
	for rows.Next() {
		var (
			id        string
			checkedAt time.Time
			o         domain.CheckOutcome
			status    *int32
			durNS     int64
			kind      string
		)
		if err := rows.Scan(&id, &checkedAt, &o.Success, &status, &durNS, &kind, &o.Message); err != nil {
			return nil, fmt.Errorf("scan outcome: %w", err)
		}
		o.MonitorID = domain.MonitorID(id)
		o.Timestamp = checkedAt.UTC()
		o.Duration = time.Duration(durNS)
		o.ErrorKind = domain.ErrorKind(kind)
		if status != nil {
			o.StatusCode = domain.StatusCode(int(*status))
		}
		out = append(out, o)
	}
	return out, rows.Err()
}
