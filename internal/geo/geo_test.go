package geo

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDistanceMiles_KnownPair(t *testing.T) {
	// Downtown Loop to O'Hare, about 15 miles as the crow flies.
	d := DistanceMiles(41.8789, -87.6359, 41.9742, -87.9073)
	assert.InDelta(t, 15.4, d, 1.0)
}

func TestDistance_SamePointIsZero(t *testing.T) {
	assert.InDelta(t, 0, DistanceMeters(41.9, -87.6, 41.9, -87.6), 1e-9)
}

func TestBearing_Cardinal(t *testing.T) {
	assert.InDelta(t, 0, Bearing(41.0, -87.0, 42.0, -87.0), 0.01)
	assert.InDelta(t, 180, Bearing(42.0, -87.0, 41.0, -87.0), 0.01)
	assert.InDelta(t, 90, Bearing(0, 0, 0, 1), 0.01)
}

func TestDestination_RoundTrip(t *testing.T) {
	lat, lon := Destination(41.85, -87.65, 45, 10000)
	assert.InDelta(t, 10000, DistanceMeters(41.85, -87.65, lat, lon), 1.0)
	assert.InDelta(t, 45, Bearing(41.85, -87.65, lat, lon), 0.1)
}

func TestInterpolate_Endpoints(t *testing.T) {
	lat, lon := Interpolate(41.7, -87.8, 42.0, -87.4, 0)
	assert.InDelta(t, 41.7, lat, 1e-9)
	assert.InDelta(t, -87.8, lon, 1e-9)

	lat, lon = Interpolate(41.7, -87.8, 42.0, -87.4, 1)
	assert.InDelta(t, 42.0, lat, 1e-9)
	assert.InDelta(t, -87.4, lon, 1e-9)

	lat, lon = Interpolate(41.7, -87.8, 42.0, -87.4, 0.5)
	assert.InDelta(t, DistanceMeters(41.7, -87.8, lat, lon), DistanceMeters(lat, lon, 42.0, -87.4), 1.0)
}

func TestBounds_ClampAndContains(t *testing.T) {
	assert.True(t, Chicago.Contains(41.88, -87.63))
	assert.False(t, Chicago.Contains(43.0, -87.63))

	lat, lon := Chicago.Clamp(43.0, -86.0)
	assert.Equal(t, 42.1, lat)
	assert.Equal(t, -87.3, lon)
}

func TestValid(t *testing.T) {
	assert.True(t, Valid(41.9, -87.6))
	assert.False(t, Valid(91, 0))
	assert.False(t, Valid(0, 181))
	assert.False(t, Valid(math.NaN(), 0))
}

func TestCellKey(t *testing.T) {
	a1, b1 := CellKey(41.88012, -87.63004, 0.001)
	a2, b2 := CellKey(41.88031, -87.62981, 0.001)
	assert.Equal(t, a1, a2)
	assert.Equal(t, b1, b2)
}
