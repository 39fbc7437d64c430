package enrich

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mbd888/drivesim/internal/telemetry"
)

func TestOpenMeteo_Weather(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "2024-01-15", r.URL.Query().Get("start_date"))
		assert.Equal(t, "fahrenheit", r.URL.Query().Get("temperature_unit"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"hourly":{
			"time":["2024-01-15T07:00","2024-01-15T08:00","2024-01-15T09:00"],
			"weather_code":[0,73,null],
			"temperature_2m":[18.5,21.2,null]}}`))
	}))
	defer srv.Close()

	om := NewOpenMeteo(srv.URL, srv.Client())

	w, err := om.Weather(context.Background(), 41.88, -87.63, time.Date(2024, 1, 15, 8, 42, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, telemetry.WeatherSnow, w.Condition)
	assert.InDelta(t, 21.2, w.TemperatureF, 1e-9)

	_, err = om.Weather(context.Background(), 41.88, -87.63, time.Date(2024, 1, 15, 9, 0, 0, 0, time.UTC))
	assert.ErrorIs(t, err, ErrNoData)

	_, err = om.Weather(context.Background(), 41.88, -87.63, time.Date(2024, 1, 15, 23, 0, 0, 0, time.UTC))
	assert.ErrorIs(t, err, ErrNoData)
}

func TestOpenMeteo_BadStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := NewOpenMeteo(srv.URL, srv.Client()).Weather(context.Background(), 41.88, -87.63, time.Now())
	assert.ErrorIs(t, err, ErrBadResponse)
}

func TestWeatherFromWMO(t *testing.T) {
	tests := []struct {
		code int
		want telemetry.WeatherCondition
	}{
		{0, telemetry.WeatherClear},
		{2, telemetry.WeatherCloudy},
		{45, telemetry.WeatherFog},
		{48, telemetry.WeatherFog},
		{61, telemetry.WeatherRain},
		{81, telemetry.WeatherRain},
		{75, telemetry.WeatherSnow},
		{86, telemetry.WeatherSnow},
		{95, telemetry.WeatherOther},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, WeatherFromWMO(tt.code), "code %d", tt.code)
	}
}

func TestOverpass_SpeedLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, r.ParseForm())
		assert.Contains(t, r.PostForm.Get("data"), "way(around:50,41.880000,-87.630000)")
		_, _ = w.Write([]byte(`{"elements":[
			{"type":"node","tags":{}},
			{"type":"way","tags":{"highway":"residential"}},
			{"type":"way","tags":{"highway":"primary","maxspeed":"35 mph"}}]}`))
	}))
	defer srv.Close()

	sl, err := NewOverpass(srv.URL, srv.Client()).SpeedLimit(context.Background(), 41.88, -87.63)
	require.NoError(t, err)
	assert.Equal(t, SpeedLimit{LimitMPH: 35, Road: telemetry.RoadArterial}, sl)
}

func TestOverpass_FallsBackToHighwayClass(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"elements":[{"type":"way","tags":{"highway":"motorway"}}]}`))
	}))
	defer srv.Close()

	sl, err := NewOverpass(srv.URL, srv.Client()).SpeedLimit(context.Background(), 41.88, -87.63)
	require.NoError(t, err)
	assert.Equal(t, SpeedLimit{LimitMPH: 55, Road: telemetry.RoadHighway}, sl)
}

func TestOverpass_NoWays(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"elements":[]}`))
	}))
	defer srv.Close()

	_, err := NewOverpass(srv.URL, srv.Client()).SpeedLimit(context.Background(), 41.88, -87.63)
	assert.ErrorIs(t, err, ErrNoData)
}

func TestParseMaxSpeed(t *testing.T) {
	tests := []struct {
		raw  string
		want float64
		ok   bool
	}{
		{"30 mph", 30, true},
		{"45mph", 45, true},
		{"50 km/h", 31, true},
		{"100 kmh", 62, true},
		{"25", 25, true},
		{"", 0, false},
		{"signals", 0, false},
		{"none", 0, false},
	}
	for _, tt := range tests {
		got, ok := ParseMaxSpeed(tt.raw)
		assert.Equal(t, tt.ok, ok, tt.raw)
		assert.Equal(t, tt.want, got, tt.raw)
	}
}

func TestRoadFromHighway(t *testing.T) {
	assert.Equal(t, telemetry.RoadHighway, RoadFromHighway("motorway"))
	assert.Equal(t, telemetry.RoadHighway, RoadFromHighway("trunk_link"))
	assert.Equal(t, telemetry.RoadArterial, RoadFromHighway("secondary"))
	assert.Equal(t, telemetry.RoadUrban, RoadFromHighway("tertiary"))
	assert.Equal(t, telemetry.RoadResidential, RoadFromHighway("living_street"))
}

func TestChicagoTraffic(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "token", r.Header.Get("X-App-Token"))
		assert.Equal(t, "1", r.URL.Query().Get("$limit"))
		_, _ = w.Write([]byte(`[{"current_speed":"15","historical_speed":"30"}]`))
	}))
	defer srv.Close()

	lvl, err := NewChicagoTraffic(srv.URL, "token", srv.Client()).
		Traffic(context.Background(), 41.88, -87.63, time.Date(2024, 5, 1, 17, 30, 0, 0, time.UTC))
	require.NoError(t, err)
	// 1 - 15/30 = 0.5
	assert.Equal(t, telemetry.TrafficModerate, lvl)
}

func TestChicagoTraffic_EmptyAndMalformed(t *testing.T) {
	tests := []struct {
		body string
		want error
	}{
		{`[]`, ErrNoData},
		{`[{"current_speed":"-1","historical_speed":"0"}]`, ErrBadResponse},
		{`[{"current_speed":"n/a","historical_speed":"30"}]`, ErrBadResponse},
	}
	for _, tt := range tests {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(tt.body))
		}))
		_, err := NewChicagoTraffic(srv.URL, "", srv.Client()).Traffic(context.Background(), 41.88, -87.63, time.Now())
		assert.ErrorIs(t, err, tt.want, tt.body)
		srv.Close()
	}
}

func TestTrafficFromCongestion(t *testing.T) {
	assert.Equal(t, telemetry.TrafficLight, TrafficFromCongestion(0))
	assert.Equal(t, telemetry.TrafficLight, TrafficFromCongestion(0.3))
	assert.Equal(t, telemetry.TrafficModerate, TrafficFromCongestion(0.45))
	assert.Equal(t, telemetry.TrafficHeavy, TrafficFromCongestion(0.9))
}

func TestEnrich_WithHTTPProviderOutage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, speed, traffic := Simulated(5, Fault{})
	e := New(NewOpenMeteo(srv.URL, srv.Client()), speed, traffic)

	samples, err := e.Enrich(context.Background(), testTrip(20))
	require.NoError(t, err)
	for _, cs := range samples {
		assert.False(t, cs.WeatherResolved)
		assert.True(t, cs.SpeedLimitResolved)
		assert.True(t, cs.TrafficResolved)
	}
}
