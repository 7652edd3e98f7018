// Package validation decides which upstream pools are admitted into the
// prime rate universe.
package validation

import (
	"sort"

	"github.com/sirupsen/logrus"
	"github.com/yourorg/stablecoin-prime-rate/internal/model"
)

// Options holds configuration for pool admission.
type Options struct {
	// StablecoinOnly restricts the universe to pools flagged as stablecoin
	StablecoinOnly bool

	// MinTVL is the minimum TVL in USD required for admission
	MinTVL float64

	// MaxAPY is the maximum plausible APY in percent; higher values are
	// treated as data errors
	MaxAPY float64

	// EnableOutlierDetection enables IQR-based APY outlier rejection
	EnableOutlierDetection bool

	// OutlierIQRMultiplier sets the outlier sensitivity (1.5 is standard)
	OutlierIQRMultiplier float64
}

// DefaultOptions returns sensible defaults for the stablecoin universe.
func DefaultOptions() Options {
	return Options{
		StablecoinOnly:         true,
		MinTVL:                 0,
		MaxAPY:                 1000,
		EnableOutlierDetection: false,
		OutlierIQRMultiplier:   1.5,
	}
}

// FilterPools removes raw entries that fail admission and returns the
// survivors normalized. This is the main entrypoint for the package.
func FilterPools(raws []model.RawPool, opts Options) []model.PoolSnapshot {
	admitted := make([]model.PoolSnapshot, 0, len(raws))
	for _, raw := range raws {
		if !isAdmissible(raw, opts) {
			logrus.WithFields(logrus.Fields{
				"pool":    raw.PoolID,
				"project": raw.Project,
			}).Debug("Filtered pool")
			continue
		}
		admitted = append(admitted, model.Normalize(raw))
	}

	if opts.EnableOutlierDetection && len(admitted) > 3 {
		return filterOutliers(admitted, opts.OutlierIQRMultiplier)
	}
	return admitted
}

// TopByTVL sorts pools descending by TVL and truncates to limit. The sort is
// stable so equal-TVL pools keep their upstream order.
func TopByTVL(pools []model.PoolSnapshot, limit int) []model.PoolSnapshot {
	sorted := make([]model.PoolSnapshot, len(pools))
	copy(sorted, pools)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].TVL > sorted[j].TVL
	})
	if limit > 0 && limit < len(sorted) {
		sorted = sorted[:limit]
	}
	return sorted
}

// isAdmissible checks a single raw entry against the admission rules.
func isAdmissible(raw model.RawPool, opts Options) bool {
	if opts.StablecoinOnly && !raw.Stablecoin {
		return false
	}
	if raw.TVLUsd == nil || *raw.TVLUsd <= opts.MinTVL {
		return false
	}
	if raw.APY != nil && (*raw.APY < 0 || *raw.APY > opts.MaxAPY) {
		return false
	}
	return true
}

// filterOutliers removes statistical APY outliers using the IQR method.
func filterOutliers(pools []model.PoolSnapshot, iqrMultiplier float64) []model.PoolSnapshot {
	apys := make([]float64, len(pools))
	for i, p := range pools {
		apys[i] = p.APY
	}
	sort.Float64s(apys)

	q1 := apys[len(apys)/4]
	q3 := apys[len(apys)*3/4]
	iqr := q3 - q1
	lower := q1 - iqrMultiplier*iqr
	upper := q3 + iqrMultiplier*iqr

	valid := make([]model.PoolSnapshot, 0, len(pools))
	for _, p := range pools {
		if p.APY >= lower && p.APY <= upper {
			valid = append(valid, p)
		} else {
			logrus.WithFields(logrus.Fields{
				"pool": p.PoolID,
				"apy":  p.APY,
			}).Info("Filtered outlier pool")
		}
	}

	logrus.WithFields(logrus.Fields{
		"total":    len(pools),
		"filtered": len(pools) - len(valid),
	}).Debug("Outlier filtering complete")

	return valid
}
