// Package notify posts daily rate updates to a Telegram chat.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/sirupsen/logrus"

	"github.com/yourorg/stablecoin-prime-rate/internal/config"
	"github.com/yourorg/stablecoin-prime-rate/internal/model"
)

// ErrInsufficientData signals that the rate series is too short to compute
// a daily change.
var ErrInsufficientData = errors.New("notify: need at least two dated rates")

// Client sends messages through the Telegram bot API.
type Client struct {
	apiURL     string
	token      string
	chatID     string
	httpClient *http.Client
}

// NewClient creates a Telegram client from configuration.
func NewClient(cfg config.Config) *Client {
	rc := retryablehttp.NewClient()
	rc.RetryMax = cfg.RetryCount
	rc.RetryWaitMin = cfg.RetryDelay
	rc.RetryWaitMax = cfg.RetryDelay
	rc.Logger = nil
	return &Client{
		apiURL:     cfg.TelegramAPIURL,
		token:      cfg.TelegramToken,
		chatID:     cfg.TelegramChatID,
		httpClient: rc.StandardClient(),
	}
}

// SendMessage posts an HTML-formatted message to the configured chat.
func (c *Client) SendMessage(ctx context.Context, text string) error {
	if c.token == "" || c.chatID == "" {
		return fmt.Errorf("telegram token or chat id not configured")
	}

	payload, err := json.Marshal(map[string]string{
		"chat_id":    c.chatID,
		"text":       text,
		"parse_mode": "HTML",
	})
	if err != nil {
		return fmt.Errorf("error marshaling message: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", c.apiURL, c.token)
	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("error creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("error sending telegram message: %w", err)
	}
	defer resp.Body.Close()

	var result struct {
		OK          bool   `json:"ok"`
		Description string `json:"description"`
	}
	body, _ := io.ReadAll(resp.Body)
	if err := json.Unmarshal(body, &result); err != nil {
		return fmt.Errorf("telegram API error: status %d, body: %s", resp.StatusCode, string(body))
	}
	if !result.OK {
		return fmt.Errorf("telegram API rejected message: %s", result.Description)
	}

	logrus.Info("Telegram message sent")
	return nil
}

// DailyStats is the latest rate snapshot and its change against the
// preceding date.
type DailyStats struct {
	Date             string
	PreviousDate     string
	CurrentPrimeRate float64
	CurrentMA14d     float64
	PrimeRateChange  float64
	MA14dChange      float64
	DataPoints       int
}

// ComputeDailyStats derives the daily update from a date-ordered rate series.
func ComputeDailyStats(rates []model.RatePoint) (DailyStats, error) {
	if len(rates) < 2 {
		return DailyStats{}, ErrInsufficientData
	}
	latest := rates[len(rates)-1]
	previous := rates[len(rates)-2]
	return DailyStats{
		Date:             latest.Date,
		PreviousDate:     previous.Date,
		CurrentPrimeRate: latest.WeightedAPY,
		CurrentMA14d:     latest.MAAPY14d,
		PrimeRateChange:  latest.WeightedAPY - previous.WeightedAPY,
		MA14dChange:      latest.MAAPY14d - previous.MAAPY14d,
		DataPoints:       len(rates),
	}, nil
}

// FormatChange renders a delta with direction emoji and explicit plus sign
// for increases.
func FormatChange(value float64) string {
	switch {
	case value > 0:
		return fmt.Sprintf("📈 +%.3f%%", value)
	case value < 0:
		return fmt.Sprintf("📉 %.3f%%", value)
	default:
		return fmt.Sprintf("➡️ %.3f%%", value)
	}
}

// DailyMessage composes the HTML notification body.
func DailyMessage(stats DailyStats, poolCount int, siteURL string) string {
	formattedDate := stats.Date
	if d, err := time.Parse("2006-01-02", stats.Date); err == nil {
		formattedDate = d.Format("January 2, 2006")
	}

	return fmt.Sprintf(`<b>🏦 Stablecoin Prime Rate Daily Update</b>

📊 <b>Data for %s</b>

💰 <b>Current Prime Rate:</b> %.3f%%
📅 <b>14-Day Moving Average:</b> %.3f%%

📈 <b>Daily Changes:</b>
• Prime Rate: %s
• 14-Day MA: %s

🔗 Check out the full analytics on <a href="%s">%s</a>!

<i>Data from %d stablecoin pools</i>`,
		formattedDate,
		stats.CurrentPrimeRate,
		stats.CurrentMA14d,
		FormatChange(stats.PrimeRateChange),
		FormatChange(stats.MA14dChange),
		siteURL, trimScheme(siteURL), poolCount)
}

func trimScheme(url string) string {
	for _, p := range []string{"https://", "http://"} {
		if len(url) > len(p) && url[:len(p)] == p {
			return url[len(p):]
		}
	}
	return url
}
