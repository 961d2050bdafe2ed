// Package store archives completed analyses outside the in-process cache so
// they survive restarts and feed the export CLI. Two backends implement the
// same interface; no configured backend means the archive is off.
package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/insight-api/internal/cache"
	"github.com/sells-group/insight-api/internal/config"
	"github.com/sells-group/insight-api/internal/model"
)

// Filter narrows ListAnalyses. A zero filter lists the most recent archives.
type Filter struct {
	Status model.AnalysisStatus `json:"status,omitempty"`
	Limit  int                  `json:"limit,omitempty"`
	Offset int                  `json:"offset,omitempty"`
}

// Store persists analysis snapshots keyed by canonical URL.
type Store interface {
	SaveAnalysis(ctx context.Context, snap *model.AnalysisSnapshot) error
	// GetAnalysis returns (nil, nil) when the key was never archived.
	GetAnalysis(ctx context.Context, key string) (*model.AnalysisSnapshot, error)
	ListAnalyses(ctx context.Context, filter Filter) ([]model.AnalysisSnapshot, error)
	DeleteExpired(ctx context.Context, olderThan time.Time) (int, error)
	Migrate(ctx context.Context) error
	Close() error
}

// Open builds the configured backend. An empty driver returns (nil, nil),
// meaning the archive is off; callers must treat a nil Store as absent.
func Open(ctx context.Context, cfg config.StoreConfig) (Store, error) {
	switch cfg.Driver {
	case "":
		return nil, nil
	case "sqlite":
		return NewSQLite(cfg.Path)
	case "postgres":
		return NewPostgres(ctx, cfg.DatabaseURL, &PoolConfig{
			MaxConns: cfg.MaxConns,
			MinConns: cfg.MinConns,
		})
	default:
		return nil, eris.Errorf("store: unknown driver %q", cfg.Driver)
	}
}

// WarmStart seeds the cache with the most recent archived READY analyses.
// Chunk vectors are not archived, so warmed records score lexically until
// re-analyzed. Returns how many records were seeded.
func WarmStart(ctx context.Context, s Store, analyses *cache.Cache, limit int) (int, error) {
	snaps, err := s.ListAnalyses(ctx, Filter{Status: model.StatusReady, Limit: limit})
	if err != nil {
		return 0, eris.Wrap(err, "store: warm start list")
	}

	seeded := 0
	for i := range snaps {
		if analyses.Seed(snaps[i].Record()) {
			seeded++
		}
	}
	if seeded > 0 {
		zap.L().Info("store: cache warmed from archive",
			zap.Int("records", seeded),
			zap.Int("archived", len(snaps)))
	}
	return seeded, nil
}

// snapshotJSON holds the serialized document columns of one snapshot.
type snapshotJSON struct {
	pages    []byte
	links    []byte
	chunks   []byte
	insights []byte
}

func marshalSnapshot(snap *model.AnalysisSnapshot) (snapshotJSON, error) {
	var sj snapshotJSON
	var err error
	if sj.pages, err = json.Marshal(snap.Pages); err != nil {
		return sj, eris.Wrap(err, "store: marshal pages")
	}
	if sj.links, err = json.Marshal(snap.Links); err != nil {
		return sj, eris.Wrap(err, "store: marshal links")
	}
	if sj.chunks, err = json.Marshal(snap.Chunks); err != nil {
		return sj, eris.Wrap(err, "store: marshal chunks")
	}
	if sj.insights, err = json.Marshal(snap.Insights); err != nil {
		return sj, eris.Wrap(err, "store: marshal insights")
	}
	return sj, nil
}

func unmarshalSnapshot(snap *model.AnalysisSnapshot, sj snapshotJSON) error {
	if err := json.Unmarshal(sj.pages, &snap.Pages); err != nil {
		return eris.Wrap(err, "store: unmarshal pages")
	}
	if err := json.Unmarshal(sj.links, &snap.Links); err != nil {
		return eris.Wrap(err, "store: unmarshal links")
	}
	if err := json.Unmarshal(sj.chunks, &snap.Chunks); err != nil {
		return eris.Wrap(err, "store: unmarshal chunks")
	}
	if err := json.Unmarshal(sj.insights, &snap.Insights); err != nil {
		return eris.Wrap(err, "store: unmarshal insights")
	}
	return nil
}
