// Package main is the entry point for the daily Telegram notifier. It reads
// the published export documents and posts the current prime rate with its
// day-over-day changes.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/yourorg/stablecoin-prime-rate/internal/config"
	"github.com/yourorg/stablecoin-prime-rate/internal/export"
	"github.com/yourorg/stablecoin-prime-rate/internal/notify"
	"github.com/yourorg/stablecoin-prime-rate/internal/otel"
)

func main() {
	setupLogging()
	cfg := config.Load()

	shutdown := otel.InitTracer(cfg)
	defer shutdown()

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	if err := run(ctx, cfg); err != nil {
		logrus.Fatalf("Notification failed: %v", err)
	}
}

func run(ctx context.Context, cfg config.Config) error {
	dataDoc, err := export.LoadDataDocument(cfg.DataDir + "/" + export.DataFileName)
	if err != nil {
		return fmt.Errorf("error loading data document: %w", err)
	}

	stats, err := notify.ComputeDailyStats(dataDoc.Rates())
	if err != nil {
		return err
	}

	// Pool count comes from the metadata document when available; the
	// message falls back to the number of dated points otherwise.
	poolCount := stats.DataPoints
	metaDoc, err := export.LoadMetadataDocument(cfg.DataDir + "/" + export.MetadataFileName)
	if err != nil {
		if !errors.Is(err, export.ErrNoDocument) {
			logrus.Warnf("Could not read metadata document: %v", err)
		}
	} else {
		poolCount = len(metaDoc.PoolMetadata)
	}

	message := notify.DailyMessage(stats, poolCount, cfg.SiteURL)

	client := notify.NewClient(cfg)
	if err := client.SendMessage(ctx, message); err != nil {
		return err
	}

	logrus.WithFields(logrus.Fields{
		"date":   stats.Date,
		"rate":   stats.CurrentPrimeRate,
		"change": stats.PrimeRateChange,
	}).Info("Daily update sent")
	return nil
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
