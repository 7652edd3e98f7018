package aggregate

import (
	"errors"
	"math"
	"testing"

	"github.com/yourorg/stablecoin-prime-rate/internal/model"
)

func TestWeightedRate(t *testing.T) {
	tests := []struct {
		name     string
		pools    []model.PoolSnapshot
		expected float64
	}{
		{
			name: "single pool",
			pools: []model.PoolSnapshot{
				{PoolID: "a", TVL: 1000, APY: 5.0},
			},
			expected: 5.0,
		},
		{
			name: "multiple pools weighted by tvl",
			pools: []model.PoolSnapshot{
				{PoolID: "a", TVL: 1000, APY: 5.0},
				{PoolID: "b", TVL: 2000, APY: 10.0},
			},
			expected: 8.333333333333334, // (5*1000 + 10*2000)/3000
		},
		{
			name: "zero total tvl yields zero, not NaN",
			pools: []model.PoolSnapshot{
				{PoolID: "a", TVL: 0, APY: 5.0},
				{PoolID: "b", TVL: 0, APY: 10.0},
			},
			expected: 0,
		},
		{
			name:     "empty input",
			pools:    []model.PoolSnapshot{},
			expected: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := WeightedRate(tt.pools)
			if got != tt.expected {
				t.Errorf("WeightedRate() = %v, want %v", got, tt.expected)
			}
			if math.IsNaN(got) {
				t.Error("WeightedRate() returned NaN")
			}
		})
	}
}

func TestAggregateByChain(t *testing.T) {
	pools := []model.PoolSnapshot{
		{PoolID: "a", Chain: "Ethereum", TVL: 100, APY: 10},
		{PoolID: "b", Chain: "Ethereum", TVL: 50, APY: 20},
		{PoolID: "c", Chain: "Solana", TVL: 200, APY: 5},
	}

	got, err := Aggregate(pools, ByChain)
	if err != nil {
		t.Fatalf("Aggregate() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("Aggregate() returned %d groups, want 2", len(got))
	}

	// Ethereum: 10*100 + 20*50 = 2000, Solana: 5*200 = 1000
	eth := got[0]
	if eth.Key != "Ethereum" {
		t.Errorf("top group = %q, want Ethereum", eth.Key)
	}
	if eth.Contribution != 2000 {
		t.Errorf("Ethereum contribution = %v, want 2000", eth.Contribution)
	}
	if math.Abs(eth.Percentage-66.66666666666667) > 1e-9 {
		t.Errorf("Ethereum percentage = %v, want ~66.67", eth.Percentage)
	}
	if eth.TVL != 150 {
		t.Errorf("Ethereum TVL = %v, want 150", eth.TVL)
	}
	if eth.PoolCount != 2 {
		t.Errorf("Ethereum pool count = %d, want 2", eth.PoolCount)
	}
	if math.Abs(eth.AvgAPY-2000.0/150.0) > 1e-9 {
		t.Errorf("Ethereum avg APY = %v, want %v", eth.AvgAPY, 2000.0/150.0)
	}

	sol := got[1]
	if sol.Key != "Solana" {
		t.Errorf("second group = %q, want Solana", sol.Key)
	}
	if sol.Contribution != 1000 {
		t.Errorf("Solana contribution = %v, want 1000", sol.Contribution)
	}

	var totalPct float64
	for _, g := range got {
		totalPct += g.Percentage
	}
	if math.Abs(totalPct-100) > 1e-6 {
		t.Errorf("percentages sum to %v, want 100", totalPct)
	}
}

func TestAggregateDropsNonPositiveGroups(t *testing.T) {
	pools := []model.PoolSnapshot{
		{PoolID: "a", Project: "alpha", TVL: 100, APY: 10},
		{PoolID: "b", Project: "beta", TVL: 100, APY: 0},
		{PoolID: "c", Project: "gamma", TVL: 0, APY: 50},
	}

	got, err := Aggregate(pools, ByProject)
	if err != nil {
		t.Fatalf("Aggregate() error = %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("Aggregate() returned %d groups, want 1", len(got))
	}
	if got[0].Key != "alpha" {
		t.Errorf("surviving group = %q, want alpha", got[0].Key)
	}
	if got[0].Percentage != 100 {
		t.Errorf("sole survivor percentage = %v, want 100", got[0].Percentage)
	}
}

func TestAggregateNoData(t *testing.T) {
	tests := []struct {
		name  string
		pools []model.PoolSnapshot
	}{
		{name: "empty input", pools: nil},
		{
			name: "all zero tvl",
			pools: []model.PoolSnapshot{
				{PoolID: "a", Chain: "Ethereum", TVL: 0, APY: 5},
				{PoolID: "b", Chain: "Solana", TVL: 0, APY: 10},
			},
		},
		{
			name: "all zero apy",
			pools: []model.PoolSnapshot{
				{PoolID: "a", Chain: "Ethereum", TVL: 100, APY: 0},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Aggregate(tt.pools, ByChain)
			if !errors.Is(err, ErrNoData) {
				t.Errorf("Aggregate() error = %v, want ErrNoData", err)
			}
		})
	}
}

func TestAggregateDeterministicOrder(t *testing.T) {
	// Two groups with identical contributions must keep encounter order
	// across repeated runs.
	pools := []model.PoolSnapshot{
		{PoolID: "a", Project: "alpha", TVL: 100, APY: 10},
		{PoolID: "b", Project: "beta", TVL: 200, APY: 5},
		{PoolID: "c", Project: "gamma", TVL: 50, APY: 20},
	}

	first, err := Aggregate(pools, ByProject)
	if err != nil {
		t.Fatalf("Aggregate() error = %v", err)
	}
	for i := 0; i < 10; i++ {
		again, err := Aggregate(pools, ByProject)
		if err != nil {
			t.Fatalf("Aggregate() error = %v", err)
		}
		for j := range first {
			if again[j].Key != first[j].Key {
				t.Fatalf("run %d: group %d = %q, want %q", i, j, again[j].Key, first[j].Key)
			}
		}
	}
}

func TestAggregateTracksChains(t *testing.T) {
	pools := []model.PoolSnapshot{
		{PoolID: "a", Project: "alpha", Chain: "Ethereum", TVL: 100, APY: 10},
		{PoolID: "b", Project: "alpha", Chain: "Arbitrum", TVL: 100, APY: 10},
		{PoolID: "c", Project: "alpha", Chain: "Ethereum", TVL: 100, APY: 10},
	}

	got, err := Aggregate(pools, ByProject)
	if err != nil {
		t.Fatalf("Aggregate() error = %v", err)
	}
	if len(got[0].Chains) != 2 {
		t.Errorf("chains = %v, want 2 distinct entries", got[0].Chains)
	}
	if got[0].Chains[0] != "Ethereum" || got[0].Chains[1] != "Arbitrum" {
		t.Errorf("chains = %v, want encounter order [Ethereum Arbitrum]", got[0].Chains)
	}
}

func TestProjectOverTime(t *testing.T) {
	snaps := model.DatedSnapshots{
		"2026-08-01": {
			{PoolID: "a", Project: "alpha", TVL: 100, APY: 10},
			{PoolID: "b", Project: "beta", TVL: 100, APY: 5},
			{PoolID: "c", Project: "gamma", TVL: 100, APY: 1},
		},
		"2026-08-02": {
			{PoolID: "a", Project: "alpha", TVL: 200, APY: 12},
			{PoolID: "b", Project: "beta", TVL: 100, APY: 4},
			{PoolID: "c", Project: "gamma", TVL: 100, APY: 2},
		},
	}

	proj, err := ProjectOverTime(snaps, ByProject, 1)
	if err != nil {
		t.Fatalf("ProjectOverTime() error = %v", err)
	}

	if len(proj.Dates) != 2 || proj.Dates[0] != "2026-08-01" || proj.Dates[1] != "2026-08-02" {
		t.Fatalf("dates = %v, want sorted [2026-08-01 2026-08-02]", proj.Dates)
	}
	if len(proj.Order) != 1 {
		t.Fatalf("order = %v, want exactly 1 group", proj.Order)
	}
	if proj.Order[0] != "alpha" {
		t.Errorf("top group = %q, want alpha", proj.Order[0])
	}

	series := proj.Series["alpha"]
	if len(series) != len(proj.Dates) || len(proj.Other) != len(proj.Dates) {
		t.Fatal("series not index-aligned with dates")
	}
	for di := range proj.Dates {
		stack := series[di] + proj.Other[di]
		if math.Abs(stack-100) > 1e-9 {
			t.Errorf("date %s: stack = %v, want 100", proj.Dates[di], stack)
		}
	}
}

func TestProjectOverTimeSkipsZeroDates(t *testing.T) {
	snaps := model.DatedSnapshots{
		"2026-08-01": {
			{PoolID: "a", Project: "alpha", TVL: 100, APY: 0},
			{PoolID: "b", Project: "beta", TVL: 100, APY: 5},
		},
	}

	proj, err := ProjectOverTime(snaps, ByProject, 5)
	if err != nil {
		t.Fatalf("ProjectOverTime() error = %v", err)
	}

	// alpha has apy 0 on its only date: no positive value, so it cannot rank.
	if len(proj.Order) != 1 || proj.Order[0] != "beta" {
		t.Errorf("order = %v, want [beta]", proj.Order)
	}
}

func TestProjectOverTimeNoData(t *testing.T) {
	tests := []struct {
		name  string
		snaps model.DatedSnapshots
		topN  int
	}{
		{name: "empty snapshots", snaps: model.DatedSnapshots{}, topN: 5},
		{
			name: "zero topN",
			snaps: model.DatedSnapshots{
				"2026-08-01": {{PoolID: "a", Project: "alpha", TVL: 100, APY: 10}},
			},
			topN: 0,
		},
		{
			name: "all zero rates",
			snaps: model.DatedSnapshots{
				"2026-08-01": {{PoolID: "a", Project: "alpha", TVL: 0, APY: 0}},
			},
			topN: 5,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ProjectOverTime(tt.snaps, ByProject, tt.topN)
			if !errors.Is(err, ErrNoData) {
				t.Errorf("ProjectOverTime() error = %v, want ErrNoData", err)
			}
		})
	}
}

func TestMovingAverage(t *testing.T) {
	tests := []struct {
		name     string
		values   []float64
		window   int
		expected []float64
	}{
		{
			name:     "window larger than series",
			values:   []float64{2, 4, 6},
			window:   14,
			expected: []float64{2, 3, 4},
		},
		{
			name:     "trailing window",
			values:   []float64{1, 2, 3, 4, 5},
			window:   2,
			expected: []float64{1, 1.5, 2.5, 3.5, 4.5},
		},
		{
			name:     "window one is identity",
			values:   []float64{7, 8, 9},
			window:   1,
			expected: []float64{7, 8, 9},
		},
		{
			name:     "empty series",
			values:   nil,
			window:   14,
			expected: []float64{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MovingAverage(tt.values, tt.window)
			if len(got) != len(tt.expected) {
				t.Fatalf("MovingAverage() length = %d, want %d", len(got), len(tt.expected))
			}
			for i := range got {
				if math.Abs(got[i]-tt.expected[i]) > 1e-9 {
					t.Errorf("MovingAverage()[%d] = %v, want %v", i, got[i], tt.expected[i])
				}
			}
		})
	}
}

func TestDailyChange(t *testing.T) {
	got := DailyChange([]float64{5, 7, 4, 4})
	expected := []float64{0, 2, -3, 0}
	for i := range expected {
		if got[i] != expected[i] {
			t.Errorf("DailyChange()[%d] = %v, want %v", i, got[i], expected[i])
		}
	}
}
