package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/insight-api/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS analyses (
	key         TEXT PRIMARY KEY,
	status      TEXT NOT NULL,
	pages       TEXT NOT NULL,
	links       TEXT NOT NULL,
	chunks      TEXT NOT NULL,
	insights    TEXT NOT NULL,
	created_at  DATETIME NOT NULL,
	archived_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_analyses_status ON analyses(status);
CREATE INDEX IF NOT EXISTS idx_analyses_archived_at ON analyses(archived_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) SaveAnalysis(ctx context.Context, snap *model.AnalysisSnapshot) error {
	if snap == nil || snap.Key == "" {
		return eris.New("sqlite: snapshot missing key")
	}

	sj, err := marshalSnapshot(snap)
	if err != nil {
		return err
	}
	archivedAt := snap.ArchivedAt
	if archivedAt.IsZero() {
		archivedAt = time.Now().UTC()
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO analyses (key, status, pages, links, chunks, insights, created_at, archived_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET
		   status = excluded.status, pages = excluded.pages, links = excluded.links,
		   chunks = excluded.chunks, insights = excluded.insights,
		   created_at = excluded.created_at, archived_at = excluded.archived_at`,
		snap.Key, string(snap.Status), string(sj.pages), string(sj.links),
		string(sj.chunks), string(sj.insights), snap.CreatedAt, archivedAt,
	)
	return eris.Wrapf(err, "sqlite: save analysis %s", snap.Key)
}

func (s *SQLiteStore) GetAnalysis(ctx context.Context, key string) (*model.AnalysisSnapshot, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT key, status, pages, links, chunks, insights, created_at, archived_at
		 FROM analyses WHERE key = ?`,
		key,
	)

	var snap model.AnalysisSnapshot
	var sj snapshotJSON
	err := row.Scan(&snap.Key, &snap.Status, &sj.pages, &sj.links, &sj.chunks, &sj.insights,
		&snap.CreatedAt, &snap.ArchivedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get analysis %s", key)
	}
	if err := unmarshalSnapshot(&snap, sj); err != nil {
		return nil, err
	}
	return &snap, nil
}

func (s *SQLiteStore) ListAnalyses(ctx context.Context, filter Filter) ([]model.AnalysisSnapshot, error) {
	query := `SELECT key, status, pages, links, chunks, insights, created_at, archived_at
	          FROM analyses WHERE 1=1`
	var args []any

	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	query += ` ORDER BY archived_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list analyses")
	}
	defer rows.Close()

	var snaps []model.AnalysisSnapshot
	for rows.Next() {
		var snap model.AnalysisSnapshot
		var sj snapshotJSON
		if err := rows.Scan(&snap.Key, &snap.Status, &sj.pages, &sj.links, &sj.chunks, &sj.insights,
			&snap.CreatedAt, &snap.ArchivedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan analysis")
		}
		if err := unmarshalSnapshot(&snap, sj); err != nil {
			return nil, err
		}
		snaps = append(snaps, snap)
	}
	return snaps, eris.Wrap(rows.Err(), "sqlite: list analyses iterate")
}

func (s *SQLiteStore) DeleteExpired(ctx context.Context, olderThan time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM analyses WHERE archived_at < ?`,
		olderThan,
	)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: delete expired")
	}
	n, err := res.RowsAffected()
	return int(n), eris.Wrap(err, "sqlite: rows affected")
}
