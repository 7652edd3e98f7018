package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourorg/stablecoin-prime-rate/internal/config"
	"github.com/yourorg/stablecoin-prime-rate/internal/model"
)

func testClient(apiURL string) *Client {
	return NewClient(config.Config{
		TelegramAPIURL: apiURL,
		TelegramToken:  "test-token",
		TelegramChatID: "12345",
		RetryCount:     0,
		RetryDelay:     time.Millisecond,
	})
}

func TestSendMessage(t *testing.T) {
	var gotPath string
	var gotPayload map[string]string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotPayload))
		fmt.Fprint(w, `{"ok":true}`)
	}))
	defer srv.Close()

	client := testClient(srv.URL)
	require.NoError(t, client.SendMessage(context.Background(), "<b>hello</b>"))

	assert.Equal(t, "/bottest-token/sendMessage", gotPath)
	assert.Equal(t, "12345", gotPayload["chat_id"])
	assert.Equal(t, "<b>hello</b>", gotPayload["text"])
	assert.Equal(t, "HTML", gotPayload["parse_mode"])
}

func TestSendMessageRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"ok":false,"description":"chat not found"}`)
	}))
	defer srv.Close()

	client := testClient(srv.URL)
	err := client.SendMessage(context.Background(), "hello")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "chat not found")
}

func TestSendMessageUnconfigured(t *testing.T) {
	client := NewClient(config.Config{TelegramAPIURL: "https://api.telegram.org"})
	assert.Error(t, client.SendMessage(context.Background(), "hello"))
}

func TestComputeDailyStats(t *testing.T) {
	rates := []model.RatePoint{
		{Date: "2026-08-20", WeightedAPY: 4.0, MAAPY14d: 4.1},
		{Date: "2026-08-21", WeightedAPY: 4.5, MAAPY14d: 4.2},
		{Date: "2026-08-22", WeightedAPY: 4.2, MAAPY14d: 4.25},
	}

	stats, err := ComputeDailyStats(rates)
	require.NoError(t, err)

	assert.Equal(t, "2026-08-22", stats.Date)
	assert.Equal(t, "2026-08-21", stats.PreviousDate)
	assert.Equal(t, 4.2, stats.CurrentPrimeRate)
	assert.Equal(t, 4.25, stats.CurrentMA14d)
	assert.InDelta(t, -0.3, stats.PrimeRateChange, 1e-9)
	assert.InDelta(t, 0.05, stats.MA14dChange, 1e-9)
	assert.Equal(t, 3, stats.DataPoints)
}

func TestComputeDailyStatsInsufficient(t *testing.T) {
	_, err := ComputeDailyStats([]model.RatePoint{{Date: "2026-08-22"}})
	assert.True(t, errors.Is(err, ErrInsufficientData))
}

func TestFormatChange(t *testing.T) {
	tests := []struct {
		value    float64
		expected string
	}{
		{0.123, "📈 +0.123%"},
		{-0.045, "📉 -0.045%"},
		{0, "➡️ 0.000%"},
	}
	for _, tt := range tests {
		if got := FormatChange(tt.value); got != tt.expected {
			t.Errorf("FormatChange(%v) = %q, want %q", tt.value, got, tt.expected)
		}
	}
}

func TestDailyMessage(t *testing.T) {
	stats := DailyStats{
		Date:             "2026-08-22",
		PreviousDate:     "2026-08-21",
		CurrentPrimeRate: 4.212,
		CurrentMA14d:     4.251,
		PrimeRateChange:  -0.3,
		MA14dChange:      0.05,
		DataPoints:       360,
	}

	msg := DailyMessage(stats, 100, "https://512m.io")

	assert.True(t, strings.Contains(msg, "August 22, 2026"))
	assert.True(t, strings.Contains(msg, "4.212%"))
	assert.True(t, strings.Contains(msg, "4.251%"))
	assert.True(t, strings.Contains(msg, "📉 -0.300%"))
	assert.True(t, strings.Contains(msg, "📈 +0.050%"))
	assert.True(t, strings.Contains(msg, `<a href="https://512m.io">512m.io</a>`))
	assert.True(t, strings.Contains(msg, "100 stablecoin pools"))
}
