package main

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/yourorg/stablecoin-prime-rate/internal/config"
	"github.com/yourorg/stablecoin-prime-rate/internal/export"
	"github.com/yourorg/stablecoin-prime-rate/internal/model"
	"github.com/yourorg/stablecoin-prime-rate/internal/store"
)

// dataset is one coherent view of the published data.
type dataset struct {
	snaps model.DatedSnapshots
	rates []model.RatePoint
	meta  []model.PoolMeta
}

// datasetCache serves the latest published dataset, re-reading it from disk
// at most once per TTL. The export documents are the primary source; the
// SQLite store is the fallback when they are absent.
type datasetCache struct {
	cfg config.Config
	ttl time.Duration

	// Invoked with each freshly loaded dataset.
	onRefresh func(dataset)

	mu       sync.Mutex
	current  dataset
	loadedAt time.Time
}

func newDatasetCache(cfg config.Config, ttl time.Duration) *datasetCache {
	return &datasetCache{cfg: cfg, ttl: ttl}
}

// get returns the cached dataset, refreshing it from disk when stale. A
// stale cache is served as-is if the refresh fails but a previous load
// succeeded.
func (c *datasetCache) get(ctx context.Context) (dataset, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.loadedAt.IsZero() && time.Since(c.loadedAt) < c.ttl {
		return c.current, nil
	}

	ds, err := c.load(ctx)
	if err != nil {
		if !c.loadedAt.IsZero() {
			logrus.Warnf("Dataset refresh failed, serving stale data: %v", err)
			return c.current, nil
		}
		return dataset{}, err
	}

	c.current = ds
	c.loadedAt = time.Now()
	if c.onRefresh != nil {
		c.onRefresh(ds)
	}
	return ds, nil
}

func (c *datasetCache) load(ctx context.Context) (dataset, error) {
	ds, err := c.loadFromExports()
	if err == nil {
		return ds, nil
	}
	if !errors.Is(err, export.ErrNoDocument) {
		logrus.Warnf("Could not read export documents: %v", err)
	}
	return c.loadFromStore(ctx)
}

func (c *datasetCache) loadFromExports() (dataset, error) {
	dataDoc, err := export.LoadDataDocument(c.cfg.DataDir + "/" + export.DataFileName)
	if err != nil {
		return dataset{}, err
	}
	metaDoc, err := export.LoadMetadataDocument(c.cfg.DataDir + "/" + export.MetadataFileName)
	if err != nil {
		return dataset{}, err
	}
	return dataset{
		snaps: dataDoc.Snapshots(metaDoc.PoolMetadata),
		rates: dataDoc.Rates(),
		meta:  metaDoc.PoolMetadata,
	}, nil
}

func (c *datasetCache) loadFromStore(ctx context.Context) (dataset, error) {
	db, err := store.Open(c.cfg.DBPath)
	if err != nil {
		return dataset{}, err
	}
	defer db.Close()

	snaps, err := db.LoadSnapshots(ctx)
	if err != nil {
		return dataset{}, err
	}
	rates, err := db.LoadRates(ctx)
	if err != nil {
		return dataset{}, err
	}
	meta, err := db.LoadMetadata(ctx)
	if err != nil {
		return dataset{}, err
	}
	return dataset{snaps: snaps, rates: rates, meta: meta}, nil
}
