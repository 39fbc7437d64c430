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

// DefaultOpenMeteoURL is the Open-Meteo historical archive endpoint.
const DefaultOpenMeteoURL = "https://archive-api.open-meteo.com/v1/archive"

// OpenMeteo resolves hourly weather from the Open-Meteo archive API.
type OpenMeteo struct {
	BaseURL string
	client  *http.Client
}

// NewOpenMeteo creates an Open-Meteo client. An empty baseURL uses the public archive.
func NewOpenMeteo(baseURL string, client *http.Client) *OpenMeteo {
	if baseURL == "" {
		baseURL = DefaultOpenMeteoURL
	}
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &OpenMeteo{BaseURL: baseURL, client: client}
}

func (o *OpenMeteo) Name() string { return "open_meteo" }

type openMeteoResponse struct {
	Hourly struct {
		Time          []string   `json:"time"`
		WeatherCode   []*int     `json:"weather_code"`
		Temperature2m []*float64 `json:"temperature_2m"`
	} `json:"hourly"`
}

// Weather fetches the hour containing at (UTC).
func (o *OpenMeteo) Weather(ctx context.Context, lat, lon float64, at time.Time) (Weather, error) {
	at = at.UTC()
	day := at.Format("2006-01-02")
	q := url.Values{}
	q.Set("latitude", strconv.FormatFloat(lat, 'f', 4, 64))
	q.Set("longitude", strconv.FormatFloat(lon, 'f', 4, 64))
	q.Set("start_date", day)
	q.Set("end_date", day)
	q.Set("hourly", "weather_code,temperature_2m")
	q.Set("temperature_unit", "fahrenheit")
	q.Set("timezone", "UTC")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.BaseURL+"?"+q.Encode(), nil)
	if err != nil {
		return Weather{}, fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := o.client.Do(req)
	if err != nil {
		return Weather{}, fmt.Errorf("failed to fetch weather: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Weather{}, fmt.Errorf("%w: weather API returned status %d", ErrBadResponse, resp.StatusCode)
	}

	var result openMeteoResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return Weather{}, fmt.Errorf("failed to decode weather response: %w", err)
	}

	want := at.Truncate(time.Hour).Format("2006-01-02T15:04")
	h := result.Hourly
	for i, ts := range h.Time {
		if ts != want || i >= len(h.WeatherCode) || i >= len(h.Temperature2m) {
			continue
		}
		if h.WeatherCode[i] == nil || h.Temperature2m[i] == nil {
			return Weather{}, ErrNoData
		}
		return Weather{Condition: WeatherFromWMO(*h.WeatherCode[i]), TemperatureF: *h.Temperature2m[i]}, nil
	}
	return Weather{}, ErrNoData
}

// WeatherFromWMO maps a WMO weather interpretation code to a condition.
func WeatherFromWMO(code int) telemetry.WeatherCondition {
	switch {
	case code == 0:
		return telemetry.WeatherClear
	case code >= 1 && code <= 3:
		return telemetry.WeatherCloudy
	case code == 45 || code == 48:
		return telemetry.WeatherFog
	case (code >= 51 && code <= 67) || (code >= 80 && code <= 82):
		return telemetry.WeatherRain
	case (code >= 71 && code <= 77) || code == 85 || code == 86:
		return telemetry.WeatherSnow
	default:
		return telemetry.WeatherOther
	}
}
