package model

import "testing"

func fptr(v float64) *float64 { return &v }

func TestNormalize(t *testing.T) {
	tests := []struct {
		name     string
		raw      RawPool
		expected PoolSnapshot
	}{
		{
			name: "complete entry",
			raw: RawPool{
				PoolID:     "abc",
				Chain:      "Ethereum",
				Project:    "aave-v3",
				Symbol:     "USDC",
				TVLUsd:     fptr(1_000_000),
				APY:        fptr(4.2),
				Stablecoin: true,
			},
			expected: PoolSnapshot{
				PoolID:  "abc",
				Chain:   "Ethereum",
				Project: "aave-v3",
				Symbol:  "USDC",
				TVL:     1_000_000,
				APY:     4.2,
			},
		},
		{
			name: "nil numerics coerce to zero",
			raw:  RawPool{PoolID: "abc", Chain: "Ethereum"},
			expected: PoolSnapshot{
				PoolID: "abc",
				Chain:  "Ethereum",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Normalize(tt.raw)
			if got != tt.expected {
				t.Errorf("Normalize() = %+v, want %+v", got, tt.expected)
			}
		})
	}
}

func TestDatedSnapshotsDates(t *testing.T) {
	snaps := DatedSnapshots{
		"2026-08-03": nil,
		"2026-08-01": nil,
		"2026-08-02": nil,
	}
	got := snaps.Dates()
	expected := []string{"2026-08-01", "2026-08-02", "2026-08-03"}
	for i := range expected {
		if got[i] != expected[i] {
			t.Fatalf("Dates() = %v, want %v", got, expected)
		}
	}
}

func TestTotalTVL(t *testing.T) {
	snaps := DatedSnapshots{
		"2026-08-01": {
			{PoolID: "a", TVL: 100},
			{PoolID: "b", TVL: 250},
		},
	}
	if got := snaps.TotalTVL("2026-08-01"); got != 350 {
		t.Errorf("TotalTVL() = %v, want 350", got)
	}
	if got := snaps.TotalTVL("2026-08-02"); got != 0 {
		t.Errorf("TotalTVL() for missing date = %v, want 0", got)
	}
}

func TestNewPoolMeta(t *testing.T) {
	snap := PoolSnapshot{
		PoolID:  "abc",
		Chain:   "Ethereum",
		Project: "aave-v3",
		Symbol:  "USDC",
		TVL:     5000,
		APY:     3.5,
	}
	meta := NewPoolMeta("Pool_0", snap)

	if meta.Name != "Pool_0" {
		t.Errorf("Name = %q, want Pool_0", meta.Name)
	}
	if meta.PoolID != "abc" || meta.Chain != "Ethereum" || meta.Project != "aave-v3" {
		t.Errorf("identity fields not carried over: %+v", meta)
	}
	if meta.CurrentTVL != 5000 || meta.CurrentAPY != 3.5 {
		t.Errorf("current values not carried over: %+v", meta)
	}
	if meta.LastUpdated == "" {
		t.Error("LastUpdated not stamped")
	}
}
