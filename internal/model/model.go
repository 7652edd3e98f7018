// Package model defines the core data structures for the stablecoin prime rate pipeline.
package model

import (
	"sort"
	"time"
)

// PoolSnapshot is one pool's state at one point in time.
// This is the canonical record that flows through the entire pipeline.
type PoolSnapshot struct {
	// PoolID is the stable identifier assigned by the upstream API
	PoolID string `json:"pool_id"`

	// Chain is the blockchain the pool lives on
	Chain string `json:"chain,omitempty"`

	// Project is the protocol operating the pool
	Project string `json:"project,omitempty"`

	// Symbol is the pool's token symbol
	Symbol string `json:"symbol,omitempty"`

	// TVL is the total value locked in USD
	TVL float64 `json:"tvl"`

	// APY is the annual percentage yield, in percent per annum
	APY float64 `json:"apy"`
}

// RawPool mirrors one entry of the upstream pool listing. Numeric fields are
// pointers because the API omits or nulls them for pools without data.
type RawPool struct {
	PoolID     string   `json:"pool"`
	Name       string   `json:"name,omitempty"`
	Chain      string   `json:"chain"`
	Project    string   `json:"project"`
	Symbol     string   `json:"symbol"`
	TVLUsd     *float64 `json:"tvlUsd"`
	APY        *float64 `json:"apy"`
	Stablecoin bool     `json:"stablecoin"`
}

// Normalize turns a raw upstream entry into a canonical PoolSnapshot.
// Missing tvl/apy coerce to 0, never to NaN or a nil downstream. Categorical
// keys pass through as-is; callers filter beforehand if empty keys are
// undesirable. Normalize cannot fail.
func Normalize(raw RawPool) PoolSnapshot {
	s := PoolSnapshot{
		PoolID:  raw.PoolID,
		Chain:   raw.Chain,
		Project: raw.Project,
		Symbol:  raw.Symbol,
	}
	if raw.TVLUsd != nil {
		s.TVL = *raw.TVLUsd
	}
	if raw.APY != nil {
		s.APY = *raw.APY
	}
	return s
}

// DatedSnapshots maps an ISO date string (YYYY-MM-DD) to the pool snapshots
// observed on that date. The mapping is sparse: a pool may be absent on a
// given date. ISO dates compare lexicographically in chronological order.
type DatedSnapshots map[string][]PoolSnapshot

// Dates returns the snapshot dates in ascending order.
func (d DatedSnapshots) Dates() []string {
	dates := make([]string, 0, len(d))
	for date := range d {
		dates = append(dates, date)
	}
	sort.Strings(dates)
	return dates
}

// TotalTVL sums the TVL of all pools present on the given date. It is the
// normalization denominator for per-date contribution shares.
func (d DatedSnapshots) TotalTVL(date string) float64 {
	var total float64
	for _, p := range d[date] {
		total += p.TVL
	}
	return total
}

// PoolMeta describes one pool in the published metadata document.
type PoolMeta struct {
	PoolID      string  `json:"pool_id"`
	Name        string  `json:"name"`
	Project     string  `json:"project"`
	Chain       string  `json:"chain"`
	Symbol      string  `json:"symbol"`
	CurrentTVL  float64 `json:"current_tvl"`
	CurrentAPY  float64 `json:"current_apy"`
	LastUpdated string  `json:"last_updated"`
}

// NewPoolMeta builds metadata for a pool from its normalized snapshot,
// stamping the current time.
func NewPoolMeta(name string, s PoolSnapshot) PoolMeta {
	return PoolMeta{
		PoolID:      s.PoolID,
		Name:        name,
		Project:     s.Project,
		Chain:       s.Chain,
		Symbol:      s.Symbol,
		CurrentTVL:  s.TVL,
		CurrentAPY:  s.APY,
		LastUpdated: time.Now().UTC().Format(time.RFC3339),
	}
}

// RatePoint is one date of the published prime rate series.
type RatePoint struct {
	Date        string  `json:"date"`
	WeightedAPY float64 `json:"weighted_apy"`
	MAAPY14d    float64 `json:"ma_apy_14d"`
}
