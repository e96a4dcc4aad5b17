// Package aggregator persists analytics snapshots in PostgreSQL so the
// running totals survive restarts of the analytics service.
package aggregator

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/promptvault/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/promptvault/pkg/postgres"
)

// Store keeps the newest retain rows of analytics_snapshots.
type Store struct {
	db     *postgres.Client
	retain int
	logger *slog.Logger
}

func NewStore(db *postgres.Client, retain int) *Store {
	return &Store{
		db:     db,
		retain: retain,
		logger: slog.Default().With("component", "analytics-store"),
	}
}

// SaveSnapshot writes stats and prunes rows beyond the retention count in
// the same transaction.
func (s *Store) SaveSnapshot(ctx context.Context, stats analytics.AggregatedStats) error {
	data, err := json.Marshal(stats)
	if err != nil {
		return fmt.Errorf("encoding snapshot: %w", err)
	}
	var pruned int64
	err = s.db.InTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO analytics_snapshots (data) VALUES ($1)`, data); err != nil {
			return fmt.Errorf("inserting snapshot: %w", err)
		}
		if s.retain <= 0 {
			return nil
		}
		res, err := tx.ExecContext(ctx,
			`DELETE FROM analytics_snapshots WHERE id NOT IN (
				SELECT id FROM analytics_snapshots ORDER BY captured_at DESC, id DESC LIMIT $1)`, s.retain)
		if err != nil {
			return fmt.Errorf("pruning snapshots: %w", err)
		}
		pruned, _ = res.RowsAffected()
		return nil
	})
	if err != nil {
		return err
	}
	s.logger.Debug("analytics snapshot saved",
		"total_searches", stats.TotalSearches,
		"total_copies", stats.TotalCopies,
		"pruned", pruned,
	)
	return nil
}

// ListSnapshots returns up to limit snapshots, newest first. Rows that no
// longer decode are skipped.
func (s *Store) ListSnapshots(ctx context.Context, limit int) ([]analytics.Snapshot, error) {
	rows, err := s.db.DB.QueryContext(ctx,
		`SELECT id, captured_at, data FROM analytics_snapshots
		ORDER BY captured_at DESC, id DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing snapshots: %w", err)
	}
	defer rows.Close()

	out := make([]analytics.Snapshot, 0, limit)
	for rows.Next() {
		var (
			snap analytics.Snapshot
			data []byte
		)
		if err := rows.Scan(&snap.ID, &snap.CapturedAt, &data); err != nil {
			return nil, fmt.Errorf("scanning snapshot: %w", err)
		}
		if err := json.Unmarshal(data, &snap.Stats); err != nil {
			s.logger.Warn("skipping undecodable snapshot", "id", snap.ID, "error", err)
			continue
		}
		out = append(out, snap)
	}
	return out, rows.Err()
}

// Restore seeds agg from the newest snapshot, if any.
func (s *Store) Restore(ctx context.Context, agg *analytics.Aggregator) error {
	latest, err := s.ListSnapshots(ctx, 1)
	if err != nil {
		return err
	}
	if len(latest) == 0 {
		s.logger.Info("no analytics snapshot to restore")
		return nil
	}
	agg.Restore(latest[0].Stats)
	s.logger.Info("analytics restored from snapshot",
		"captured_at", latest[0].CapturedAt,
		"total_searches", latest[0].Stats.TotalSearches,
	)
	return nil
}

// Saver is the write side of a snapshot store.
type Saver interface {
	SaveSnapshot(ctx context.Context, stats analytics.AggregatedStats) error
}

// Source produces the stats to snapshot.
type Source interface {
	Stats() analytics.AggregatedStats
}

// RunPeriodic saves a snapshot every interval while the counters move, and
// once more after ctx ends. The returned channel closes after that final
// save.
func RunPeriodic(ctx context.Context, saver Saver, src Source, interval time.Duration) <-chan struct{} {
	done := make(chan struct{})
	logger := slog.Default().With("component", "analytics-snapshots")
	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		var last counters
		save := func(ctx context.Context, force bool) {
			stats := src.Stats()
			now := countersOf(stats)
			if !force && now == last {
				return
			}
			if err := saver.SaveSnapshot(ctx, stats); err != nil {
				logger.Error("snapshot failed", "error", err)
				return
			}
			last = now
		}
		for {
			select {
			case <-ticker.C:
				save(ctx, false)
			case <-ctx.Done():
				finalCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				save(finalCtx, true)
				cancel()
				return
			}
		}
	}()
	logger.Info("periodic snapshots started", "interval", interval)
	return done
}

type counters struct {
	searches, copies, created, deleted int64
}

func countersOf(s analytics.AggregatedStats) counters {
	return counters{s.TotalSearches, s.TotalCopies, s.PromptsCreated, s.PromptsDeleted}
}
