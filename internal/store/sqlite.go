// Package store persists the merged pool dataset to a local SQLite file.
// The store is a cache of the published JSON, fully purged and rewritten on
// every ingestion run; it carries no independent state.
package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"

	"github.com/yourorg/stablecoin-prime-rate/internal/model"
)

// PoolPoint is one (date, pool) observation in long form.
type PoolPoint struct {
	Date   string
	PoolID string
	APY    float64
	TVLUsd float64
}

// Store wraps the SQLite handle.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the SQLite database at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("error opening database %s: %w", path, err)
	}
	// A single writer rewrites the whole dataset; no pooling needed.
	db.SetMaxOpenConns(1)
	return &Store{db: db}, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Rewrite purges all tables and writes the full dataset in one transaction.
func (s *Store) Rewrite(ctx context.Context, points []PoolPoint, rates []model.RatePoint, meta []model.PoolMeta) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("error starting transaction: %w", err)
	}
	defer tx.Rollback()

	stmts := []string{
		`DROP TABLE IF EXISTS pool_points`,
		`DROP TABLE IF EXISTS daily_rates`,
		`DROP TABLE IF EXISTS pool_metadata`,
		`CREATE TABLE pool_points (
			date    TEXT NOT NULL,
			pool_id TEXT NOT NULL,
			apy     REAL NOT NULL,
			tvl_usd REAL NOT NULL,
			PRIMARY KEY (date, pool_id)
		)`,
		`CREATE TABLE daily_rates (
			date         TEXT PRIMARY KEY,
			weighted_apy REAL NOT NULL,
			ma_apy_14d   REAL NOT NULL
		)`,
		`CREATE TABLE pool_metadata (
			pool_id      TEXT PRIMARY KEY,
			name         TEXT NOT NULL,
			project      TEXT NOT NULL,
			chain        TEXT NOT NULL,
			symbol       TEXT NOT NULL,
			current_tvl  REAL NOT NULL,
			current_apy  REAL NOT NULL,
			last_updated TEXT NOT NULL
		)`,
	}
	for _, stmt := range stmts {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("error preparing schema: %w", err)
		}
	}

	insertPoint, err := tx.PrepareContext(ctx,
		`INSERT INTO pool_points (date, pool_id, apy, tvl_usd) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("error preparing insert: %w", err)
	}
	defer insertPoint.Close()
	for _, p := range points {
		if _, err := insertPoint.ExecContext(ctx, p.Date, p.PoolID, p.APY, p.TVLUsd); err != nil {
			return fmt.Errorf("error inserting point %s/%s: %w", p.Date, p.PoolID, err)
		}
	}

	insertRate, err := tx.PrepareContext(ctx,
		`INSERT INTO daily_rates (date, weighted_apy, ma_apy_14d) VALUES (?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("error preparing insert: %w", err)
	}
	defer insertRate.Close()
	for _, r := range rates {
		if _, err := insertRate.ExecContext(ctx, r.Date, r.WeightedAPY, r.MAAPY14d); err != nil {
			return fmt.Errorf("error inserting rate %s: %w", r.Date, err)
		}
	}

	insertMeta, err := tx.PrepareContext(ctx,
		`INSERT INTO pool_metadata (pool_id, name, project, chain, symbol, current_tvl, current_apy, last_updated)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("error preparing insert: %w", err)
	}
	defer insertMeta.Close()
	for _, m := range meta {
		if _, err := insertMeta.ExecContext(ctx, m.PoolID, m.Name, m.Project, m.Chain, m.Symbol,
			m.CurrentTVL, m.CurrentAPY, m.LastUpdated); err != nil {
			return fmt.Errorf("error inserting metadata %s: %w", m.PoolID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("error committing rewrite: %w", err)
	}

	// Reclaim space from the dropped tables. Best effort.
	if _, err := s.db.ExecContext(ctx, `VACUUM`); err != nil {
		logrus.Warnf("Could not vacuum database: %v", err)
	}

	logrus.WithFields(logrus.Fields{
		"points": len(points),
		"rates":  len(rates),
		"pools":  len(meta),
	}).Info("Store rewritten")
	return nil
}

// LoadRates returns the full daily rate series in date order.
func (s *Store) LoadRates(ctx context.Context) ([]model.RatePoint, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT date, weighted_apy, ma_apy_14d FROM daily_rates ORDER BY date`)
	if err != nil {
		return nil, fmt.Errorf("error loading rates: %w", err)
	}
	defer rows.Close()

	var rates []model.RatePoint
	for rows.Next() {
		var r model.RatePoint
		if err := rows.Scan(&r.Date, &r.WeightedAPY, &r.MAAPY14d); err != nil {
			return nil, fmt.Errorf("error scanning rate row: %w", err)
		}
		rates = append(rates, r)
	}
	return rates, rows.Err()
}

// LoadMetadata returns metadata for all pools in the current dataset.
func (s *Store) LoadMetadata(ctx context.Context) ([]model.PoolMeta, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT pool_id, name, project, chain, symbol, current_tvl, current_apy, last_updated
		 FROM pool_metadata ORDER BY current_tvl DESC`)
	if err != nil {
		return nil, fmt.Errorf("error loading metadata: %w", err)
	}
	defer rows.Close()

	var meta []model.PoolMeta
	for rows.Next() {
		var m model.PoolMeta
		if err := rows.Scan(&m.PoolID, &m.Name, &m.Project, &m.Chain, &m.Symbol,
			&m.CurrentTVL, &m.CurrentAPY, &m.LastUpdated); err != nil {
			return nil, fmt.Errorf("error scanning metadata row: %w", err)
		}
		meta = append(meta, m)
	}
	return meta, rows.Err()
}

// LoadSnapshots reconstructs the dated snapshot set, joining pool points with
// metadata so grouping keys are available to the aggregators.
func (s *Store) LoadSnapshots(ctx context.Context) (model.DatedSnapshots, error) {
	meta, err := s.LoadMetadata(ctx)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]model.PoolMeta, len(meta))
	for _, m := range meta {
		byID[m.PoolID] = m
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT date, pool_id, apy, tvl_usd FROM pool_points ORDER BY date, pool_id`)
	if err != nil {
		return nil, fmt.Errorf("error loading points: %w", err)
	}
	defer rows.Close()

	snaps := make(model.DatedSnapshots)
	for rows.Next() {
		var p PoolPoint
		if err := rows.Scan(&p.Date, &p.PoolID, &p.APY, &p.TVLUsd); err != nil {
			return nil, fmt.Errorf("error scanning point row: %w", err)
		}
		snap := model.PoolSnapshot{
			PoolID: p.PoolID,
			TVL:    p.TVLUsd,
			APY:    p.APY,
		}
		if m, ok := byID[p.PoolID]; ok {
			snap.Chain = m.Chain
			snap.Project = m.Project
			snap.Symbol = m.Symbol
		}
		snaps[p.Date] = append(snaps[p.Date], snap)
	}
	return snaps, rows.Err()
}
