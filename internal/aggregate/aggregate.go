// Package aggregate computes the TVL-weighted prime rate and the grouped
// contribution breakdowns that the chart and notification layers consume.
package aggregate

import (
	"errors"
	"math"
	"sort"

	"github.com/yourorg/stablecoin-prime-rate/internal/model"
)

// ErrNoData signals that an aggregation had no positive contribution to work
// with. It is the distinguished "no data" result, never a divide-by-zero fault.
var ErrNoData = errors.New("aggregate: no data")

// KeyFunc extracts the grouping key from a pool snapshot.
type KeyFunc func(model.PoolSnapshot) string

// ByChain groups pools by blockchain.
func ByChain(p model.PoolSnapshot) string { return p.Chain }

// ByProject groups pools by protocol.
func ByProject(p model.PoolSnapshot) string { return p.Project }

// ByPool groups each pool by itself.
func ByPool(p model.PoolSnapshot) string { return p.PoolID }

// WeightedRate computes the TVL-weighted average APY over a pool set:
// sum(apy*tvl) / sum(tvl). A zero total TVL yields 0, never NaN, so
// degenerate inputs cannot poison downstream charts.
func WeightedRate(pools []model.PoolSnapshot) float64 {
	var totalTVL, weighted float64
	for _, p := range pools {
		totalTVL += p.TVL
		weighted += p.APY * p.TVL
	}
	if totalTVL <= 0 || math.IsNaN(weighted) {
		return 0
	}
	return weighted / totalTVL
}

// GroupContribution is one ranked entry of a contribution breakdown.
type GroupContribution struct {
	// Key is the grouping key (chain, project or pool id)
	Key string `json:"key"`

	// Contribution is the raw weighted-average numerator sum(apy*tvl) over
	// the group's pools. A ranking proxy, not a rate.
	Contribution float64 `json:"contribution"`

	// Percentage is the group's share of the total contribution, 0-100
	Percentage float64 `json:"percentage"`

	// TVL is the group's total value locked in USD
	TVL float64 `json:"total_tvl"`

	// AvgAPY is contribution/TVL, i.e. the group's own weighted rate.
	// NaN when the group TVL is zero; callers must handle.
	AvgAPY float64 `json:"avg_apy"`

	// PoolCount is the number of pools in the group
	PoolCount int `json:"pool_count"`

	// Chains lists the distinct chains the group spans, in encounter order
	Chains []string `json:"chains,omitempty"`
}

// Aggregate partitions pools by keyFn and ranks each group by its share of
// the total weighted contribution. Groups with non-positive contribution are
// dropped before percentages are normalized; surviving percentages sum to
// 100 up to floating-point tolerance. The sort is stable, so identical input
// ordering yields identical output. Returns ErrNoData when no group has a
// positive contribution.
func Aggregate(pools []model.PoolSnapshot, keyFn KeyFunc) ([]GroupContribution, error) {
	if len(pools) == 0 {
		return nil, ErrNoData
	}

	index := make(map[string]int, len(pools))
	groups := make([]GroupContribution, 0, len(pools))
	chainSeen := make(map[string]map[string]bool)

	for _, p := range pools {
		key := keyFn(p)
		i, ok := index[key]
		if !ok {
			i = len(groups)
			index[key] = i
			groups = append(groups, GroupContribution{Key: key})
			chainSeen[key] = make(map[string]bool)
		}
		groups[i].Contribution += p.APY * p.TVL
		groups[i].TVL += p.TVL
		groups[i].PoolCount++
		if p.Chain != "" && !chainSeen[key][p.Chain] {
			chainSeen[key][p.Chain] = true
			groups[i].Chains = append(groups[i].Chains, p.Chain)
		}
	}

	var total float64
	survivors := groups[:0]
	for _, g := range groups {
		if g.Contribution <= 0 {
			continue
		}
		total += g.Contribution
		survivors = append(survivors, g)
	}
	if total <= 0 {
		return nil, ErrNoData
	}

	for i := range survivors {
		survivors[i].Percentage = survivors[i].Contribution / total * 100
		if survivors[i].TVL > 0 {
			survivors[i].AvgAPY = survivors[i].Contribution / survivors[i].TVL
		} else {
			survivors[i].AvgAPY = math.NaN()
		}
	}

	sort.SliceStable(survivors, func(i, j int) bool {
		return survivors[i].Contribution > survivors[j].Contribution
	})

	return survivors, nil
}

// Projection is the stacked time-series output: one aligned value slice per
// selected group plus an "other" remainder, all indexed against Dates.
type Projection struct {
	// Dates is the shared ordered date axis
	Dates []string `json:"dates"`

	// Order lists the selected group keys, best mean contribution first
	Order []string `json:"order"`

	// Series maps each selected key to its per-date contribution percentage
	Series map[string][]float64 `json:"series"`

	// Other is 100 minus the sum of the selected series at each date, so
	// the stack totals exactly 100 everywhere
	Other []float64 `json:"other"`
}

// ProjectOverTime runs the contribution aggregation across dated snapshots
// and keeps the topN groups by mean contribution. A pool contributes at a
// date only when its apy, its tvl and the date's overall weighted rate are
// all non-zero; otherwise it counts 0 for that date but stays index-aligned.
// The per-date formula is (apy*tvl)/(weightedRate*totalTVL)*100, already a
// share of the rate in percent terms; anything non-finite is coerced to 0.
// Groups are ranked by the mean of their strictly positive dates. Fewer than
// topN qualifying groups returns all of them; zero returns ErrNoData.
func ProjectOverTime(snaps model.DatedSnapshots, keyFn KeyFunc, topN int) (Projection, error) {
	dates := snaps.Dates()
	if len(dates) == 0 || topN <= 0 {
		return Projection{}, ErrNoData
	}

	var order []string
	seen := make(map[string]bool)
	series := make(map[string][]float64)

	for di, date := range dates {
		pools := snaps[date]
		rate := WeightedRate(pools)
		totalTVL := snaps.TotalTVL(date)

		for _, p := range pools {
			key := keyFn(p)
			if !seen[key] {
				seen[key] = true
				order = append(order, key)
				series[key] = make([]float64, len(dates))
			}
			if p.APY == 0 || p.TVL == 0 || rate == 0 {
				continue
			}
			share := (p.APY * p.TVL) / (rate * totalTVL) * 100
			if math.IsNaN(share) || math.IsInf(share, 0) {
				share = 0
			}
			series[key][di] += share
		}
	}

	type ranked struct {
		key  string
		mean float64
	}
	var candidates []ranked
	for _, key := range order {
		var sum float64
		var n int
		for _, v := range series[key] {
			if v > 0 {
				sum += v
				n++
			}
		}
		if n == 0 {
			continue
		}
		candidates = append(candidates, ranked{key: key, mean: sum / float64(n)})
	}
	if len(candidates) == 0 {
		return Projection{}, ErrNoData
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].mean > candidates[j].mean
	})
	if topN < len(candidates) {
		candidates = candidates[:topN]
	}

	proj := Projection{
		Dates:  dates,
		Series: make(map[string][]float64, len(candidates)),
		Other:  make([]float64, len(dates)),
	}
	for _, c := range candidates {
		proj.Order = append(proj.Order, c.key)
		proj.Series[c.key] = series[c.key]
	}
	for di := range dates {
		var stacked float64
		for _, c := range candidates {
			stacked += series[c.key][di]
		}
		proj.Other[di] = 100 - stacked
	}

	return proj, nil
}

// MovingAverage computes a trailing mean with the given window. Early values
// average over the points available so far, so the result has no warm-up gap.
func MovingAverage(values []float64, window int) []float64 {
	if window < 1 {
		window = 1
	}
	out := make([]float64, len(values))
	var sum float64
	for i, v := range values {
		sum += v
		if i >= window {
			sum -= values[i-window]
		}
		n := i + 1
		if n > window {
			n = window
		}
		out[i] = sum / float64(n)
	}
	return out
}

// DailyChange returns the first differences of a series. The first entry is 0.
func DailyChange(values []float64) []float64 {
	out := make([]float64, len(values))
	for i := 1; i < len(values); i++ {
		out[i] = values[i] - values[i-1]
	}
	return out
}
