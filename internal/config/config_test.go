package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	if cfg.YieldsURL != "https://yields.llama.fi/pools" {
		t.Errorf("YieldsURL = %q", cfg.YieldsURL)
	}
	if cfg.TopPools != 100 {
		t.Errorf("TopPools = %d, want 100", cfg.TopPools)
	}
	if cfg.FetchDays != 360 {
		t.Errorf("FetchDays = %d, want 360", cfg.FetchDays)
	}
	if cfg.ChartRequestInterval != 2*time.Second {
		t.Errorf("ChartRequestInterval = %v, want 2s", cfg.ChartRequestInterval)
	}
	if cfg.GroupKey != GroupByProject {
		t.Errorf("GroupKey = %q, want %q", cfg.GroupKey, GroupByProject)
	}
	if cfg.SignExports {
		t.Error("SignExports should default to false")
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("TOP_POOLS", "25")
	t.Setenv("GROUP_KEY", "CHAIN")
	t.Setenv("RETRY_DELAY", "500ms")
	t.Setenv("MAX_RATE", "30.5")
	t.Setenv("SIGN_EXPORTS", "true")
	t.Setenv("DISPLAY_NAMES", `{"Pool_0":"Ethena sUSDe"}`)

	cfg := Load()

	if cfg.TopPools != 25 {
		t.Errorf("TopPools = %d, want 25", cfg.TopPools)
	}
	if cfg.GroupKey != GroupByChain {
		t.Errorf("GroupKey = %q, want lowercased %q", cfg.GroupKey, GroupByChain)
	}
	if cfg.RetryDelay != 500*time.Millisecond {
		t.Errorf("RetryDelay = %v, want 500ms", cfg.RetryDelay)
	}
	if cfg.MaxRate != 30.5 {
		t.Errorf("MaxRate = %v, want 30.5", cfg.MaxRate)
	}
	if !cfg.SignExports {
		t.Error("SignExports should be true")
	}
	if cfg.DisplayNames["Pool_0"] != "Ethena sUSDe" {
		t.Errorf("DisplayNames = %v", cfg.DisplayNames)
	}
}

func TestInvalidValuesFallBack(t *testing.T) {
	t.Setenv("TOP_POOLS", "not-a-number")
	t.Setenv("RETRY_DELAY", "soon")

	cfg := Load()
	if cfg.TopPools != 100 {
		t.Errorf("TopPools = %d, want default 100", cfg.TopPools)
	}
	if cfg.RetryDelay != time.Second {
		t.Errorf("RetryDelay = %v, want default 1s", cfg.RetryDelay)
	}
}
