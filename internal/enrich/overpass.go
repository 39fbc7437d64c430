package enrich

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/mbd888/drivesim/internal/telemetry"
)

// DefaultOverpassURL is the public Overpass interpreter.
const DefaultOverpassURL = "https://overpass-api.de/api/interpreter"

// Overpass resolves posted limits from OpenStreetMap ways near a point.
type Overpass struct {
	BaseURL string
	Radius  int // meters
	client  *http.Client
}

// NewOverpass creates an Overpass client. An empty baseURL uses the public interpreter.
func NewOverpass(baseURL string, client *http.Client) *Overpass {
	if baseURL == "" {
		baseURL = DefaultOverpassURL
	}
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return &Overpass{BaseURL: baseURL, Radius: 50, client: client}
}

func (o *Overpass) Name() string { return "overpass" }

type overpassResponse struct {
	Elements []struct {
		Type string            `json:"type"`
		Tags map[string]string `json:"tags"`
	} `json:"elements"`
}

// SpeedLimit returns the first tagged maxspeed near the point, falling back
// to the typical limit of the nearest way's highway class.
func (o *Overpass) SpeedLimit(ctx context.Context, lat, lon float64) (SpeedLimit, error) {
	query := fmt.Sprintf(`[out:json][timeout:10];way(around:%d,%s,%s)["highway"];out tags;`,
		o.Radius, strconv.FormatFloat(lat, 'f', 6, 64), strconv.FormatFloat(lon, 'f', 6, 64))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.BaseURL,
		strings.NewReader(url.Values{"data": {query}}.Encode()))
	if err != nil {
		return SpeedLimit{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := o.client.Do(req)
	if err != nil {
		return SpeedLimit{}, fmt.Errorf("failed to query overpass: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return SpeedLimit{}, fmt.Errorf("%w: overpass returned status %d", ErrBadResponse, resp.StatusCode)
	}

	var result overpassResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return SpeedLimit{}, fmt.Errorf("failed to decode overpass response: %w", err)
	}

	var fallback *SpeedLimit
	for _, el := range result.Elements {
		if el.Type != "way" {
			continue
		}
		road := RoadFromHighway(el.Tags["highway"])
		if mph, ok := ParseMaxSpeed(el.Tags["maxspeed"]); ok {
			return SpeedLimit{LimitMPH: mph, Road: road}, nil
		}
		if fallback == nil {
			fallback = &SpeedLimit{LimitMPH: typicalLimit(road), Road: road}
		}
	}
	if fallback != nil {
		return *fallback, nil
	}
	return SpeedLimit{}, ErrNoData
}

// ParseMaxSpeed parses an OSM maxspeed tag. Bare numbers are mph.
func ParseMaxSpeed(raw string) (float64, bool) {
	s := strings.ToLower(strings.TrimSpace(raw))
	if s == "" {
		return 0, false
	}
	factor := 1.0
	switch {
	case strings.Contains(s, "mph"):
		s = strings.ReplaceAll(s, "mph", "")
	case strings.Contains(s, "km/h"), strings.Contains(s, "kmh"):
		s = strings.ReplaceAll(strings.ReplaceAll(s, "km/h", ""), "kmh", "")
		factor = 0.621371
	}
	v, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || v <= 0 {
		return 0, false
	}
	return float64(int(float64(v) * factor)), true
}

// RoadFromHighway maps an OSM highway class to a road type.
func RoadFromHighway(class string) telemetry.RoadType {
	switch strings.ToLower(class) {
	case "motorway", "motorway_link", "trunk", "trunk_link":
		return telemetry.RoadHighway
	case "primary", "primary_link", "secondary", "secondary_link":
		return telemetry.RoadArterial
	case "tertiary", "tertiary_link", "unclassified":
		return telemetry.RoadUrban
	default:
		return telemetry.RoadResidential
	}
}

func typicalLimit(r telemetry.RoadType) float64 {
	switch r {
	case telemetry.RoadHighway:
		return 55
	case telemetry.RoadArterial:
		return 35
	case telemetry.RoadUrban:
		return 30
	case telemetry.RoadResidential:
		return 25
	}
	return 25
}
