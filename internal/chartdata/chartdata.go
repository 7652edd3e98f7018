// Package chartdata adapts aggregation results into the shapes the chart
// renderers consume: labeled pie slices with hover text and index-aligned
// stacked series.
package chartdata

import (
	"fmt"

	"github.com/yourorg/stablecoin-prime-rate/internal/aggregate"
)

// PieSlice is one labeled segment of a breakdown pie chart.
type PieSlice struct {
	Label      string  `json:"label"`
	Value      float64 `json:"value"`
	Percentage float64 `json:"percentage"`
	TVL        float64 `json:"tvl"`
	PoolCount  int     `json:"pool_count"`
	Hover      string  `json:"hover"`
}

// NamedSeries is one stacked-area band.
type NamedSeries struct {
	Name   string    `json:"name"`
	Values []float64 `json:"values"`
}

// StackedSeries is the stacked-area payload. Series order is the ranking
// order; Other closes every date's stack to exactly 100.
type StackedSeries struct {
	Dates  []string      `json:"dates"`
	Series []NamedSeries `json:"series"`
	Other  []float64     `json:"other"`
}

// Pie converts a ranked breakdown into pie slices, applying display-name
// overrides and composing the hover text.
func Pie(breakdown []aggregate.GroupContribution, displayNames map[string]string) []PieSlice {
	slices := make([]PieSlice, 0, len(breakdown))
	for _, g := range breakdown {
		label := displayName(g.Key, displayNames)
		hover := fmt.Sprintf("%s: %.2f%% of total | Avg APY %.2f%% | TVL %s | %d pools",
			label, g.Percentage, g.AvgAPY, FormatUSD(g.TVL), g.PoolCount)
		if n := len(g.Chains); n > 1 {
			hover += fmt.Sprintf(" across %d chains", n)
		}
		slices = append(slices, PieSlice{
			Label:      label,
			Value:      g.Contribution,
			Percentage: g.Percentage,
			TVL:        g.TVL,
			PoolCount:  g.PoolCount,
			Hover:      hover,
		})
	}
	return slices
}

// Stacked converts a projection into the stacked-area payload, applying
// display-name overrides to the band names.
func Stacked(p aggregate.Projection, displayNames map[string]string) StackedSeries {
	out := StackedSeries{
		Dates:  p.Dates,
		Series: make([]NamedSeries, 0, len(p.Order)),
		Other:  p.Other,
	}
	for _, key := range p.Order {
		out.Series = append(out.Series, NamedSeries{
			Name:   displayName(key, displayNames),
			Values: p.Series[key],
		})
	}
	return out
}

// FormatUSD renders a dollar amount in the compact form used in hover text
// ($1.2B, $345.6M, $12.3K).
func FormatUSD(v float64) string {
	switch {
	case v >= 1e9:
		return fmt.Sprintf("$%.1fB", v/1e9)
	case v >= 1e6:
		return fmt.Sprintf("$%.1fM", v/1e6)
	case v >= 1e3:
		return fmt.Sprintf("$%.1fK", v/1e3)
	default:
		return fmt.Sprintf("$%.0f", v)
	}
}

func displayName(key string, names map[string]string) string {
	if name, ok := names[key]; ok {
		return name
	}
	return key
}
