package enrich

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/mbd888/drivesim/internal/telemetry"
)

// DefaultChicagoTrafficURL is the Chicago Traffic Tracker congestion dataset.
const DefaultChicagoTrafficURL = "https://data.cityofchicago.org/resource/77hq-huss.json"

// ChicagoTraffic resolves congestion from the City of Chicago Socrata API.
type ChicagoTraffic struct {
	BaseURL  string
	AppToken string
	Radius   int // meters
	client   *http.Client
}

// NewChicagoTraffic creates a traffic client. An empty baseURL uses the public dataset.
func NewChicagoTraffic(baseURL, appToken string, client *http.Client) *ChicagoTraffic {
	if baseURL == "" {
		baseURL = DefaultChicagoTrafficURL
	}
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &ChicagoTraffic{BaseURL: baseURL, AppToken: appToken, Radius: 2000, client: client}
}

func (c *ChicagoTraffic) Name() string { return "chicago_traffic" }

type socrataSegment struct {
	CurrentSpeed    string `json:"current_speed"`
	HistoricalSpeed string `json:"historical_speed"`
}

// Traffic returns the congestion level of the nearest segment reported in the
// hour before at.
func (c *ChicagoTraffic) Traffic(ctx context.Context, lat, lon float64, at time.Time) (telemetry.TrafficLevel, error) {
	at = at.UTC()
	q := url.Values{}
	q.Set("$select", "current_speed,historical_speed")
	q.Set("$where", fmt.Sprintf("within_circle(location, %s, %s, %d) AND last_updated between '%s' and '%s'",
		strconv.FormatFloat(lat, 'f', 6, 64), strconv.FormatFloat(lon, 'f', 6, 64), c.Radius,
		at.Add(-time.Hour).Format("2006-01-02T15:04:05"), at.Format("2006-01-02T15:04:05")))
	q.Set("$order", "last_updated DESC")
	q.Set("$limit", "1")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"?"+q.Encode(), nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	if c.AppToken != "" {
		req.Header.Set("X-App-Token", c.AppToken)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to fetch traffic: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: traffic API returned status %d", ErrBadResponse, resp.StatusCode)
	}

	var rows []socrataSegment
	if err := json.NewDecoder(resp.Body).Decode(&rows); err != nil {
		return "", fmt.Errorf("failed to decode traffic response: %w", err)
	}
	if len(rows) == 0 {
		return "", ErrNoData
	}

	current, err1 := strconv.ParseFloat(rows[0].CurrentSpeed, 64)
	historical, err2 := strconv.ParseFloat(rows[0].HistoricalSpeed, 64)
	if err1 != nil || err2 != nil || historical <= 0 || current < 0 {
		return "", fmt.Errorf("%w: speeds %q/%q", ErrBadResponse, rows[0].CurrentSpeed, rows[0].HistoricalSpeed)
	}
	return TrafficFromCongestion(1 - min(current/historical, 1)), nil
}

// TrafficFromCongestion buckets a congestion score in [0,1].
func TrafficFromCongestion(score float64) telemetry.TrafficLevel {
	switch {
	case score <= 0.3:
		return telemetry.TrafficLight
	case score <= 0.6:
		return telemetry.TrafficModerate
	default:
		return telemetry.TrafficHeavy
	}
}
