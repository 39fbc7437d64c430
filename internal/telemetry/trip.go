package telemetry

import (
	"fmt"
	"math"
	"sort"
	"time"
)

// GPSPoint is one positional fix.
type GPSPoint struct {
	Timestamp  time.Time `json:"timestamp"`
	Lat        float64   `json:"lat"`
	Lon        float64   `json:"lon"`
	AltitudeFt float64   `json:"altitude_ft"`
	AccuracyM  float64   `json:"accuracy_m"`
	SpeedMPH   float64   `json:"speed_mph"`
	Heading    float64   `json:"heading"`
}

// IMUReading is one accelerometer (g) and gyroscope (deg/s) sample.
type IMUReading struct {
	Timestamp time.Time `json:"timestamp"`
	AccelX    float64   `json:"accel_x"`
	AccelY    float64   `json:"accel_y"`
	AccelZ    float64   `json:"accel_z"`
	GyroX     float64   `json:"gyro_x"`
	GyroY     float64   `json:"gyro_y"`
	GyroZ     float64   `json:"gyro_z"`
}

// BehavioralEvent is a discrete driving incident.
type BehavioralEvent struct {
	Timestamp         time.Time     `json:"timestamp"`
	Type              EventType     `json:"type"`
	Severity          float64       `json:"severity"`
	Duration          time.Duration `json:"duration"`
	GForce            float64       `json:"g_force"`
	SpeedMPH          float64       `json:"speed_mph"`
	SpeedOverLimitMPH float64       `json:"speed_over_limit_mph,omitempty"`
}

// ContextSample is the environment resolved at one sampled GPS point.
// Fields whose Resolved flag is false hold neutral defaults.
type ContextSample struct {
	Timestamp     time.Time        `json:"timestamp"`
	Lat           float64          `json:"lat"`
	Lon           float64          `json:"lon"`
	PointSpeedMPH float64          `json:"point_speed_mph"`
	SpeedLimitMPH float64          `json:"speed_limit_mph"`
	RoadType      RoadType         `json:"road_type"`
	Weather       WeatherCondition `json:"weather"`
	TemperatureF  float64          `json:"temperature_f"`
	Traffic       TrafficLevel     `json:"traffic"`

	WeatherResolved    bool `json:"weather_resolved"`
	SpeedLimitResolved bool `json:"speed_limit_resolved"`
	TrafficResolved    bool `json:"traffic_resolved"`
}

// OverLimitMPH returns how far the observed speed exceeded the posted limit, or 0.
func (c ContextSample) OverLimitMPH() float64 {
	if c.SpeedLimitMPH <= 0 {
		return 0
	}
	return math.Max(0, c.PointSpeedMPH-c.SpeedLimitMPH)
}

// TripProfile is a scheduled trip before synthesis.
type TripProfile struct {
	ID             string        `json:"id"`
	DriverID       string        `json:"driver_id"`
	Start          time.Time     `json:"start"`
	Duration       time.Duration `json:"duration"`
	Type           TripType      `json:"type"`
	OriginLat      float64       `json:"origin_lat"`
	OriginLon      float64       `json:"origin_lon"`
	DestLat        float64       `json:"dest_lat"`
	DestLon        float64       `json:"dest_lon"`
	TargetSpeedMPH float64       `json:"target_speed_mph"`
}

// End returns the scheduled end time.
func (p TripProfile) End() time.Time {
	return p.Start.Add(p.Duration)
}

// PhoneUsage is per-trip handset interaction.
type PhoneUsage struct {
	ScreenOn       time.Duration `json:"screen_on"`
	Call           time.Duration `json:"call"`
	Handheld       time.Duration `json:"handheld"`
	HandheldEvents int           `json:"handheld_events"`
}

// Quality is per-trip data quality.
type Quality struct {
	GPSAccuracyM    float64 `json:"gps_accuracy_m"`
	CompletenessPct float64 `json:"completeness_pct"`
	Confidence      float64 `json:"confidence"`
}

// Trip is one fully simulated trip. It is consumed by aggregation and not retained.
type Trip struct {
	ID       string    `json:"id"`
	DriverID string    `json:"driver_id"`
	Type     TripType  `json:"type"`
	Start    time.Time `json:"start"`
	End      time.Time `json:"end"`

	GPS     []GPSPoint        `json:"gps"`
	IMU     []IMUReading      `json:"imu"`
	Events  []BehavioralEvent `json:"events"`
	Context []ContextSample   `json:"context"`

	DistanceMiles float64    `json:"distance_miles"`
	AvgSpeedMPH   float64    `json:"avg_speed_mph"`
	MaxSpeedMPH   float64    `json:"max_speed_mph"`
	Phone         PhoneUsage `json:"phone"`
	Quality       Quality    `json:"quality"`
}

// TripID formats the ID of a driver's seq-th trip.
func TripID(driverID string, seq int) string {
	return fmt.Sprintf("%s_trip_%04d", driverID, seq)
}

// Duration returns End - Start.
func (t *Trip) Duration() time.Duration {
	return t.End.Sub(t.Start)
}

// EventCount returns the number of events of the given type.
func (t *Trip) EventCount(typ EventType) int {
	n := 0
	for _, e := range t.Events {
		if e.Type == typ {
			n++
		}
	}
	return n
}

// JerkRate is a smoothness proxy: 10 x the RMS deviation of horizontal acceleration (g).
func (t *Trip) JerkRate() float64 {
	if len(t.IMU) < 2 {
		return 0
	}
	var sx, sy float64
	for _, r := range t.IMU {
		sx += r.AccelX
		sy += r.AccelY
	}
	n := float64(len(t.IMU))
	mx, my := sx/n, sy/n

	var vx, vy float64
	for _, r := range t.IMU {
		vx += (r.AccelX - mx) * (r.AccelX - mx)
		vy += (r.AccelY - my) * (r.AccelY - my)
	}
	return 10 * math.Sqrt(vx/n+vy/n)
}

// NearestGPS returns the GPS point closest in time to ts. GPS must be non-empty and sorted.
func (t *Trip) NearestGPS(ts time.Time) GPSPoint {
	i := sort.Search(len(t.GPS), func(i int) bool { return !t.GPS[i].Timestamp.Before(ts) })
	switch {
	case i == 0:
		return t.GPS[0]
	case i == len(t.GPS):
		return t.GPS[len(t.GPS)-1]
	}
	before, after := t.GPS[i-1], t.GPS[i]
	if ts.Sub(before.Timestamp) <= after.Timestamp.Sub(ts) {
		return before
	}
	return after
}

// MaxOverLimitMPH returns the largest speed-over-limit seen in context samples or speeding events.
func (t *Trip) MaxOverLimitMPH() float64 {
	var m float64
	for _, c := range t.Context {
		m = math.Max(m, c.OverLimitMPH())
	}
	for _, e := range t.Events {
		if e.Type == EventSpeeding {
			m = math.Max(m, e.SpeedOverLimitMPH)
		}
	}
	return m
}
