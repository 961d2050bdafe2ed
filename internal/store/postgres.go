package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/insight-api/internal/model"
)

// Pool is the subset of pgxpool.Pool the store uses. pgxmock satisfies it.
type Pool interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
}

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32
	MinConns int32
}

// preparedStatements lists queries to prepare on each new connection for
// faster execution of the hot store operations.
var preparedStatements = map[string]string{
	"save_analysis": `INSERT INTO analyses (key, status, pages, links, chunks, insights, created_at, archived_at)
	 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	 ON CONFLICT (key) DO UPDATE SET
	   status = EXCLUDED.status, pages = EXCLUDED.pages, links = EXCLUDED.links,
	   chunks = EXCLUDED.chunks, insights = EXCLUDED.insights,
	   created_at = EXCLUDED.created_at, archived_at = EXCLUDED.archived_at`,
	"get_analysis": `SELECT key, status, pages, links, chunks, insights, created_at, archived_at
	 FROM analyses WHERE key = $1`,
	"delete_expired": `DELETE FROM analyses WHERE archived_at < $1`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	// Prepare the hot statements on each new connection.
	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS analyses (
	key         TEXT PRIMARY KEY,
	status      TEXT NOT NULL,
	pages       JSONB NOT NULL,
	links       JSONB NOT NULL,
	chunks      JSONB NOT NULL,
	insights    JSONB NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL,
	archived_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_analyses_status ON analyses(status);
CREATE INDEX IF NOT EXISTS idx_analyses_archived_at ON analyses(archived_at DESC);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) SaveAnalysis(ctx context.Context, snap *model.AnalysisSnapshot) error {
	if snap == nil || snap.Key == "" {
		return eris.New("postgres: snapshot missing key")
	}

	sj, err := marshalSnapshot(snap)
	if err != nil {
		return err
	}
	archivedAt := snap.ArchivedAt
	if archivedAt.IsZero() {
		archivedAt = time.Now().UTC()
	}

	_, err = s.pool.Exec(ctx,
		preparedStatements["save_analysis"],
		snap.Key, string(snap.Status), sj.pages, sj.links, sj.chunks, sj.insights,
		snap.CreatedAt, archivedAt,
	)
	return eris.Wrapf(err, "postgres: save analysis %s", snap.Key)
}

func (s *PostgresStore) GetAnalysis(ctx context.Context, key string) (*model.AnalysisSnapshot, error) {
	var snap model.AnalysisSnapshot
	var sj snapshotJSON

	err := s.pool.QueryRow(ctx,
		preparedStatements["get_analysis"],
		key,
	).Scan(&snap.Key, &snap.Status, &sj.pages, &sj.links, &sj.chunks, &sj.insights,
		&snap.CreatedAt, &snap.ArchivedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "postgres: get analysis %s", key)
	}
	if err := unmarshalSnapshot(&snap, sj); err != nil {
		return nil, err
	}
	return &snap, nil
}

func (s *PostgresStore) ListAnalyses(ctx context.Context, filter Filter) ([]model.AnalysisSnapshot, error) {
	query := `SELECT key, status, pages, links, chunks, insights, created_at, archived_at
	          FROM analyses WHERE true`
	args := []any{}
	argIdx := 1

	if filter.Status != "" {
		query += fmt.Sprintf(` AND status = $%d`, argIdx)
		args = append(args, string(filter.Status))
		argIdx++
	}
	query += ` ORDER BY archived_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, limit)
	argIdx++

	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list analyses")
	}
	defer rows.Close()

	var snaps []model.AnalysisSnapshot
	for rows.Next() {
		var snap model.AnalysisSnapshot
		var sj snapshotJSON
		if err := rows.Scan(&snap.Key, &snap.Status, &sj.pages, &sj.links, &sj.chunks, &sj.insights,
			&snap.CreatedAt, &snap.ArchivedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan analysis")
		}
		if err := unmarshalSnapshot(&snap, sj); err != nil {
			return nil, err
		}
		snaps = append(snaps, snap)
	}
	return snaps, eris.Wrap(rows.Err(), "postgres: list analyses iterate")
}

func (s *PostgresStore) DeleteExpired(ctx context.Context, olderThan time.Time) (int, error) {
	tag, err := s.pool.Exec(ctx,
		preparedStatements["delete_expired"],
		olderThan,
	)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: delete expired")
	}
	return int(tag.RowsAffected()), nil
}
