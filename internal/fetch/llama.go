package fetch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/yourorg/stablecoin-prime-rate/internal/config"
	"github.com/yourorg/stablecoin-prime-rate/internal/model"
)

// ChartPoint is one dated observation from a pool's historical chart.
type ChartPoint struct {
	Date   string
	APY    float64
	TVLUsd float64
}

// LlamaClient fetches the pool universe and per-pool histories from the
// DeFiLlama yields API.
type LlamaClient struct {
	yieldsURL  string
	chartURL   string
	fetchDays  int
	httpClient *http.Client

	// limiter paces per-pool chart requests against the free tier
	limiter *rate.Limiter
}

// NewLlamaClient creates a client from configuration.
func NewLlamaClient(cfg config.Config) *LlamaClient {
	return &LlamaClient{
		yieldsURL:  cfg.YieldsURL,
		chartURL:   strings.TrimSuffix(cfg.ChartURL, "/") + "/",
		fetchDays:  cfg.FetchDays,
		httpClient: newRetryClient(cfg.RetryCount, cfg.RetryDelay),
		limiter:    rate.NewLimiter(rate.Every(cfg.ChartRequestInterval), 1),
	}
}

// Pools retrieves the full current pool listing.
func (c *LlamaClient) Pools(ctx context.Context) ([]model.RawPool, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", c.yieldsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("error creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	logrus.Debugf("Fetching pool listing from %s", c.yieldsURL)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("error fetching pool listing: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("yields API error: status %d, body: %s", resp.StatusCode, string(body))
	}

	var response struct {
		Data []model.RawPool `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("error decoding pool listing: %w", err)
	}
	if len(response.Data) == 0 {
		return nil, fmt.Errorf("no pools returned from yields API")
	}

	logrus.Debugf("Received %d pools", len(response.Data))
	return response.Data, nil
}

// Chart retrieves the historical APY/TVL series for one pool, collapsed to
// one point per day (mean over intra-day observations) and truncated to the
// configured history window. Blocks on the shared rate limiter first.
func (c *LlamaClient) Chart(ctx context.Context, poolID string) ([]ChartPoint, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	url := c.chartURL + poolID
	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return nil, fmt.Errorf("error creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("error fetching chart for pool %s: %w", poolID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("chart API error for pool %s: status %d, body: %s", poolID, resp.StatusCode, string(body))
	}

	var response struct {
		Data []struct {
			Timestamp flexTime `json:"timestamp"`
			APY       *float64 `json:"apy"`
			TVLUsd    *float64 `json:"tvlUsd"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("error decoding chart for pool %s: %w", poolID, err)
	}

	cutoff := time.Now().UTC().AddDate(0, 0, -c.fetchDays).Format("2006-01-02")

	type acc struct {
		apy, tvl float64
		n        int
	}
	byDate := make(map[string]*acc)
	for _, pt := range response.Data {
		if pt.Timestamp.IsZero() {
			continue
		}
		date := pt.Timestamp.Time.UTC().Format("2006-01-02")
		if date < cutoff {
			continue
		}
		a, ok := byDate[date]
		if !ok {
			a = &acc{}
			byDate[date] = a
		}
		if pt.APY != nil {
			a.apy += *pt.APY
		}
		if pt.TVLUsd != nil {
			a.tvl += *pt.TVLUsd
		}
		a.n++
	}

	dates := make([]string, 0, len(byDate))
	for d := range byDate {
		dates = append(dates, d)
	}
	sort.Strings(dates)

	points := make([]ChartPoint, 0, len(dates))
	for _, d := range dates {
		a := byDate[d]
		points = append(points, ChartPoint{
			Date:   d,
			APY:    a.apy / float64(a.n),
			TVLUsd: a.tvl / float64(a.n),
		})
	}

	logrus.Debugf("Received %d chart points for pool %s", len(points), poolID)
	return points, nil
}

// flexTime accepts the two timestamp encodings the chart API has shipped:
// unix seconds and RFC3339 strings.
type flexTime struct {
	time.Time
}

func (t *flexTime) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "null" || s == "" {
		return nil
	}
	if secs, err := strconv.ParseInt(s, 10, 64); err == nil {
		t.Time = time.Unix(secs, 0)
		return nil
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05.000Z", "2006-01-02"} {
		if parsed, err := time.Parse(layout, s); err == nil {
			t.Time = parsed
			return nil
		}
	}
	return fmt.Errorf("unrecognized timestamp %q", s)
}
