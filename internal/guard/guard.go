// Package guard protects the published exports from erroneous upstream data.
// A candidate dataset that fails the sanity thresholds is rejected before it
// can overwrite the last known good documents.
package guard

import (
	"errors"
	"fmt"
	"math"

	"github.com/sirupsen/logrus"

	"github.com/yourorg/stablecoin-prime-rate/internal/aggregate"
	"github.com/yourorg/stablecoin-prime-rate/internal/model"
)

// ErrTripped is wrapped by every rejection so callers can distinguish guard
// trips from ordinary failures.
var ErrTripped = errors.New("publish guard tripped")

// Thresholds defines the limits that block a publish.
type Thresholds struct {
	// Maximum plausible aggregate rate in percent.
	MaxRate float64 `json:"max_rate"`

	// Maximum allowed relative total-TVL change against the previous day
	// and against the last published dataset (0.5 means 50%).
	MaxTVLChange float64 `json:"max_tvl_change"`

	// Minimum number of pools required on the latest date.
	MinPoolCount int `json:"min_pool_count"`
}

// Guard evaluates candidate datasets against the thresholds.
type Guard struct {
	thresholds Thresholds

	// Called with the rejection reason when a check trips.
	onTrip func(reason string)
}

// New creates a Guard with the provided thresholds.
func New(t Thresholds) *Guard {
	return &Guard{thresholds: t}
}

// WithTripCallback sets a callback invoked on every rejection.
func (g *Guard) WithTripCallback(callback func(reason string)) *Guard {
	g.onTrip = callback
	return g
}

// Check validates a candidate dataset. previous is the last published dataset
// and may be nil on the first run. A nil return means the candidate is safe
// to publish.
func (g *Guard) Check(candidate, previous model.DatedSnapshots) error {
	dates := candidate.Dates()
	if len(dates) == 0 {
		return g.trip("candidate dataset is empty")
	}
	latest := dates[len(dates)-1]
	pools := candidate[latest]

	if len(pools) < g.thresholds.MinPoolCount {
		return g.trip(fmt.Sprintf("insufficient pool count on %s: got %d, need %d",
			latest, len(pools), g.thresholds.MinPoolCount))
	}

	rate := aggregate.WeightedRate(pools)
	if rate < 0 || rate > g.thresholds.MaxRate {
		return g.trip(fmt.Sprintf("aggregate rate out of bounds on %s: %.4f (max %.4f)",
			latest, rate, g.thresholds.MaxRate))
	}

	latestTVL := candidate.TotalTVL(latest)
	if len(dates) > 1 {
		if err := g.checkSwing(latestTVL, candidate.TotalTVL(dates[len(dates)-2]), "previous day"); err != nil {
			return err
		}
	}
	if previous != nil {
		if prevDates := previous.Dates(); len(prevDates) > 0 {
			if err := g.checkSwing(latestTVL, previous.TotalTVL(prevDates[len(prevDates)-1]), "last published dataset"); err != nil {
				return err
			}
		}
	}

	logrus.WithFields(logrus.Fields{
		"date":  latest,
		"pools": len(pools),
		"rate":  rate,
	}).Debug("Publish guard checks passed")
	return nil
}

// checkSwing rejects drastic total-TVL changes against a reference value.
// References at or below 1 USD are skipped to avoid small-number noise.
func (g *Guard) checkSwing(current, reference float64, against string) error {
	if reference <= 1.0 {
		return nil
	}
	ratio := math.Abs(current-reference) / reference
	if ratio > g.thresholds.MaxTVLChange {
		return g.trip(fmt.Sprintf("TVL change vs %s too drastic: %.2f%% (threshold %.2f%%)",
			against, ratio*100, g.thresholds.MaxTVLChange*100))
	}
	return nil
}

func (g *Guard) trip(reason string) error {
	logrus.Warnf("Publish guard tripped: %s", reason)
	if g.onTrip != nil {
		g.onTrip(reason)
	}
	return fmt.Errorf("%w: %s", ErrTripped, reason)
}
