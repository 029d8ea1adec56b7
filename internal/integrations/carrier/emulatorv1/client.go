package emulatorv1

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/BearBump/GuideBox/internal/integrations/carrier"
	"github.com/BearBump/GuideBox/internal/models"
	"github.com/pkg/errors"
)

// Client talks to the carrier emulator's v1 HTTP API.
type Client struct {
	baseURL string
	apiKey  string
	httpc   *http.Client
}

func New(baseURL, apiKey string) *Client {
	if baseURL == "" {
		baseURL = "http://localhost:9000"
	}
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpc: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

type respBody struct {
	TrackingNumber string     `json:"tracking_number"`
	Status         string     `json:"status"`
	StatusRaw      string     `json:"status_raw"`
	StatusAt       *time.Time `json:"status_at,omitempty"`
}

func (c *Client) CheckGuide(ctx context.Context, trackingNumber string) (carrier.CheckResult, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return carrier.CheckResult{}, errors.Wrap(err, "parse base url")
	}
	u.Path = fmt.Sprintf("/v1/guides/%s", url.PathEscape(trackingNumber))
	q := u.Query()
	if c.apiKey != "" {
		q.Set("apiKey", c.apiKey)
	}
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return carrier.CheckResult{}, errors.Wrap(err, "new request")
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return carrier.CheckResult{}, errors.Wrap(err, "do request")
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return carrier.CheckResult{}, fmt.Errorf("carrier emulator rate limit (429)")
	}
	if resp.StatusCode/100 != 2 {
		return carrier.CheckResult{}, fmt.Errorf("carrier emulator http %d", resp.StatusCode)
	}

	var rb respBody
	if err := json.NewDecoder(resp.Body).Decode(&rb); err != nil {
		return carrier.CheckResult{}, errors.Wrap(err, "decode")
	}

	raw := rb.StatusRaw
	if raw == "" {
		raw = rb.Status
	}
	status := rb.Status
	if !isCanonical(status) {
		// emulator may answer with carrier wording only
		status = models.NormalizeStatus(raw)
	}

	return carrier.CheckResult{
		Status:    status,
		StatusRaw: raw,
		StatusAt:  rb.StatusAt,
	}, nil
}

func isCanonical(s string) bool {
	switch s {
	case models.StatusPending, models.StatusInProgress, models.StatusDone, models.StatusError, models.StatusCancelled:
		return true
	}
	return false
}
