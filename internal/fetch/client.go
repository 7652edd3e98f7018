// Package fetch provides the client for the upstream yields API.
package fetch

import (
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"
)

// newRetryClient creates an HTTP client with bounded retry logic. The wait
// is fixed (min == max) so retries are evenly spaced; 429 responses honor
// the Retry-After header via retryablehttp's default backoff.
func newRetryClient(retryMax int, retryWait time.Duration) *http.Client {
	c := retryablehttp.NewClient()
	c.RetryMax = retryMax
	c.RetryWaitMin = retryWait
	c.RetryWaitMax = retryWait
	c.Logger = nil
	return c.StandardClient()
}
