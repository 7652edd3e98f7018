// Package main is the entry point for the ingestion run: it pulls the
// stablecoin pool universe and per-pool histories from the upstream yields
// API, computes the daily prime rate series, and publishes the store and
// JSON export documents.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/yourorg/stablecoin-prime-rate/internal/aggregate"
	"github.com/yourorg/stablecoin-prime-rate/internal/config"
	"github.com/yourorg/stablecoin-prime-rate/internal/export"
	"github.com/yourorg/stablecoin-prime-rate/internal/fetch"
	"github.com/yourorg/stablecoin-prime-rate/internal/guard"
	"github.com/yourorg/stablecoin-prime-rate/internal/integrity"
	"github.com/yourorg/stablecoin-prime-rate/internal/model"
	"github.com/yourorg/stablecoin-prime-rate/internal/otel"
	"github.com/yourorg/stablecoin-prime-rate/internal/store"
	"github.com/yourorg/stablecoin-prime-rate/internal/validation"
)

func main() {
	setupLogging()
	cfg := config.Load()

	shutdown := otel.InitTracer(cfg)
	defer shutdown()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		logrus.Fatalf("Ingestion failed: %v", err)
	}
}

func run(ctx context.Context, cfg config.Config) error {
	client := fetch.NewLlamaClient(cfg)

	raws, err := client.Pools(ctx)
	if err != nil {
		return fmt.Errorf("error fetching pool universe: %w", err)
	}

	pools := validation.FilterPools(raws, validation.DefaultOptions())
	top := validation.TopByTVL(pools, cfg.TopPools)
	if len(top) == 0 {
		return fmt.Errorf("no stablecoin pools survived filtering")
	}
	logrus.Infof("Selected top %d of %d stablecoin pools by TVL", len(top), len(pools))

	// Pools are published under rank-stable Pool_<i> names; the metadata
	// document carries the mapping back to upstream ids.
	candidate := make(model.DatedSnapshots)
	var (
		points  []store.PoolPoint
		exports []export.Point
		meta    []model.PoolMeta
	)
	for i, pool := range top {
		name := fmt.Sprintf("Pool_%d", i)

		chart, err := client.Chart(ctx, pool.PoolID)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			logrus.Warnf("Skipping pool %s (%s): %v", name, pool.PoolID, err)
			continue
		}

		for _, pt := range chart {
			candidate[pt.Date] = append(candidate[pt.Date], model.PoolSnapshot{
				PoolID:  pool.PoolID,
				Chain:   pool.Chain,
				Project: pool.Project,
				Symbol:  pool.Symbol,
				TVL:     pt.TVLUsd,
				APY:     pt.APY,
			})
			points = append(points, store.PoolPoint{
				Date:   pt.Date,
				PoolID: pool.PoolID,
				APY:    pt.APY,
				TVLUsd: pt.TVLUsd,
			})
			exports = append(exports, export.Point{
				Date:   pt.Date,
				Name:   name,
				APY:    pt.APY,
				TVLUsd: pt.TVLUsd,
			})
		}
		meta = append(meta, model.NewPoolMeta(name, pool))
		logrus.Infof("Fetched %d chart points for %s (%s/%s)", len(chart), name, pool.Project, pool.Symbol)
	}
	if len(candidate) == 0 {
		return fmt.Errorf("no historical data fetched for any pool")
	}

	rates := computeRates(candidate)

	previous := loadPreviousDataset(cfg)
	g := guard.New(guard.Thresholds{
		MaxRate:      cfg.MaxRate,
		MaxTVLChange: cfg.MaxTVLChange,
		MinPoolCount: cfg.MinPoolCount,
	})
	if err := g.Check(candidate, previous); err != nil {
		return fmt.Errorf("refusing to publish, keeping last good export: %w", err)
	}

	db, err := store.Open(cfg.DBPath)
	if err != nil {
		return err
	}
	defer db.Close()
	if err := db.Rewrite(ctx, points, rates, meta); err != nil {
		return err
	}

	if err := publishExports(cfg, exports, rates, meta); err != nil {
		return err
	}

	latest := rates[len(rates)-1]
	logrus.WithFields(logrus.Fields{
		"date":   latest.Date,
		"rate":   latest.WeightedAPY,
		"ma_14d": latest.MAAPY14d,
		"pools":  len(meta),
		"dates":  len(rates),
	}).Info("Ingestion complete")
	return nil
}

// computeRates derives the daily weighted rate series and its 14-day moving
// average from the merged dataset.
func computeRates(snaps model.DatedSnapshots) []model.RatePoint {
	dates := snaps.Dates()
	daily := make([]float64, len(dates))
	for i, date := range dates {
		daily[i] = aggregate.WeightedRate(snaps[date])
	}
	ma := aggregate.MovingAverage(daily, 14)

	rates := make([]model.RatePoint, len(dates))
	for i, date := range dates {
		rates[i] = model.RatePoint{Date: date, WeightedAPY: daily[i], MAAPY14d: ma[i]}
	}
	return rates
}

// loadPreviousDataset reads the last published export for the guard's swing
// comparison. Missing documents are normal on the first run.
func loadPreviousDataset(cfg config.Config) model.DatedSnapshots {
	doc, err := export.LoadDataDocument(cfg.DataDir + "/" + export.DataFileName)
	if err != nil {
		if !errors.Is(err, export.ErrNoDocument) {
			logrus.Warnf("Could not read previous export: %v", err)
		}
		return nil
	}
	var meta []model.PoolMeta
	if mdoc, err := export.LoadMetadataDocument(cfg.DataDir + "/" + export.MetadataFileName); err == nil {
		meta = mdoc.PoolMetadata
	}
	return doc.Snapshots(meta)
}

// publishExports writes the two JSON documents, signing them when configured.
func publishExports(cfg config.Config, exports []export.Point, rates []model.RatePoint, meta []model.PoolMeta) error {
	dataDoc := export.BuildDataDocument(exports, rates)
	metaDoc := export.BuildMetadataDocument(meta)

	var dataOut, metaOut any = dataDoc, metaDoc
	if cfg.SignExports {
		signer, err := integrity.NewSigner(cfg.SignKey)
		if err != nil {
			return err
		}
		if dataOut, err = signer.Wrap(dataDoc); err != nil {
			return err
		}
		if metaOut, err = signer.Wrap(metaDoc); err != nil {
			return err
		}
	}

	if err := export.Write(cfg.DataDir+"/"+export.DataFileName, dataOut); err != nil {
		return err
	}
	return export.Write(cfg.DataDir+"/"+export.MetadataFileName, metaOut)
}

// setupLogging configures the logging for the application
func setupLogging() {
	switch strings.ToLower(os.Getenv("LOG_FORMAT")) {
	case "json":
		logrus.SetFormatter(&logrus.JSONFormatter{})
	default:
		logrus.SetFormatter(&logrus.TextFormatter{
			FullTimestamp: true,
		})
	}

	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "debug":
		logrus.SetLevel(logrus.DebugLevel)
	case "warn", "warning":
		logrus.SetLevel(logrus.WarnLevel)
	case "error":
		logrus.SetLevel(logrus.ErrorLevel)
	default:
		logrus.SetLevel(logrus.InfoLevel)
	}
}
