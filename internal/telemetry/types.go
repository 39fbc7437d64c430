// Package telemetry defines the trip-level data model shared by the generators,
// the context enricher and the monthly aggregator.
package telemetry

// TripType classifies a trip by purpose.
type TripType string

const (
	TripCommute      TripType = "commute"
	TripErrand       TripType = "errand"
	TripLeisure      TripType = "leisure"
	TripLongDistance TripType = "long_distance"
)

// Valid reports whether t is a known trip type.
func (t TripType) Valid() bool {
	switch t {
	case TripCommute, TripErrand, TripLeisure, TripLongDistance:
		return true
	}
	return false
}

// EventType is a detected driving behavior.
type EventType string

const (
	EventHardBrake   EventType = "hard_brake"
	EventRapidAccel  EventType = "rapid_accel"
	EventHarshCorner EventType = "harsh_corner"
	EventSwerving    EventType = "swerving"
	EventSpeeding    EventType = "speeding"
)

// EventTypes lists every event type in a stable order.
var EventTypes = []EventType{EventHardBrake, EventRapidAccel, EventHarshCorner, EventSwerving, EventSpeeding}

// Valid reports whether e is a known event type.
func (e EventType) Valid() bool {
	switch e {
	case EventHardBrake, EventRapidAccel, EventHarshCorner, EventSwerving, EventSpeeding:
		return true
	}
	return false
}

// DataSource is how a driver's telemetry is collected.
type DataSource string

const (
	SourcePhoneOnly       DataSource = "phone_only"
	SourcePhonePlusDevice DataSource = "phone_plus_device"
)

// Valid reports whether s is a known data source.
func (s DataSource) Valid() bool {
	switch s {
	case SourcePhoneOnly, SourcePhonePlusDevice:
		return true
	}
	return false
}

// WeatherCondition is the coarse weather at a context sample.
type WeatherCondition string

const (
	WeatherClear  WeatherCondition = "clear"
	WeatherCloudy WeatherCondition = "cloudy"
	WeatherRain   WeatherCondition = "rain"
	WeatherSnow   WeatherCondition = "snow"
	WeatherFog    WeatherCondition = "fog"
	WeatherOther  WeatherCondition = "other"
)

// Valid reports whether w is a known condition.
func (w WeatherCondition) Valid() bool {
	switch w {
	case WeatherClear, WeatherCloudy, WeatherRain, WeatherSnow, WeatherFog, WeatherOther:
		return true
	}
	return false
}

// Precipitating reports rain or snow.
func (w WeatherCondition) Precipitating() bool {
	switch w {
	case WeatherRain, WeatherSnow:
		return true
	case WeatherClear, WeatherCloudy, WeatherFog, WeatherOther:
		return false
	}
	return false
}

// RoadType is the road class at a context sample.
type RoadType string

const (
	RoadHighway     RoadType = "highway"
	RoadArterial    RoadType = "arterial"
	RoadUrban       RoadType = "urban"
	RoadResidential RoadType = "residential"
)

// Valid reports whether r is a known road type.
func (r RoadType) Valid() bool {
	switch r {
	case RoadHighway, RoadArterial, RoadUrban, RoadResidential:
		return true
	}
	return false
}

// Urban reports whether the road counts toward urban mileage.
func (r RoadType) Urban() bool {
	switch r {
	case RoadUrban, RoadArterial, RoadResidential:
		return true
	case RoadHighway:
		return false
	}
	return false
}

// RoadTypeForLimit classifies a road by its posted limit.
func RoadTypeForLimit(mph float64) RoadType {
	switch {
	case mph >= 55:
		return RoadHighway
	case mph >= 35:
		return RoadArterial
	default:
		return RoadResidential
	}
}

// TrafficLevel is the congestion level at a context sample.
type TrafficLevel string

const (
	TrafficLight    TrafficLevel = "light"
	TrafficModerate TrafficLevel = "moderate"
	TrafficHeavy    TrafficLevel = "heavy"
)

// Valid reports whether l is a known traffic level.
func (l TrafficLevel) Valid() bool {
	switch l {
	case TrafficLight, TrafficModerate, TrafficHeavy:
		return true
	}
	return false
}
