package persona

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mbd888/drivesim/internal/simrand"
	"github.com/mbd888/drivesim/internal/telemetry"
)

func TestParseType(t *testing.T) {
	got, err := ParseType("risky")
	require.NoError(t, err)
	assert.Equal(t, Risky, got)

	_, err = ParseType("reckless")
	assert.Error(t, err)
}

func TestCatalog_CoversEveryType(t *testing.T) {
	for _, typ := range Types {
		p, ok := Lookup(typ)
		require.True(t, ok, "missing profile for %s", typ)
		assert.Equal(t, typ, p.Type)
		assert.Len(t, p.VehicleModels, len(p.VehicleMakes))
	}
}

func TestCatalog_OrderedByRisk(t *testing.T) {
	safe, avg, risky := MustLookup(Safe), MustLookup(Average), MustLookup(Risky)
	assert.Less(t, safe.BaseClaimRate, avg.BaseClaimRate)
	assert.Less(t, avg.BaseClaimRate, risky.BaseClaimRate)
	assert.LessOrEqual(t, safe.HardBrakeRate.Max, avg.HardBrakeRate.Min)
	assert.LessOrEqual(t, avg.HardBrakeRate.Max, risky.HardBrakeRate.Min)
	assert.Greater(t, safe.BadWeatherAvoidance, risky.BadWeatherAvoidance)
}

func TestSample_WithinVariedBounds(t *testing.T) {
	rng := simrand.New(11, 0)
	for _, typ := range Types {
		prof := MustLookup(typ)
		for i := 0; i < 200; i++ {
			p := prof.Sample(rng)
			assert.Equal(t, typ, p.Type)
			assert.GreaterOrEqual(t, p.HardBrakeRate, prof.HardBrakeRate.Min*0.9)
			assert.LessOrEqual(t, p.HardBrakeRate, prof.HardBrakeRate.Max*1.1)
			assert.GreaterOrEqual(t, p.SpeedMultiplier, prof.SpeedMultiplier.Min)
			assert.LessOrEqual(t, p.SpeedMultiplier, prof.SpeedMultiplier.Max)
			assert.GreaterOrEqual(t, p.PhoneUsage, prof.PhoneUsage.Min)
			assert.LessOrEqual(t, p.PhoneUsage, prof.PhoneUsage.Max)
		}
	}
}

func TestSample_Deterministic(t *testing.T) {
	a := MustLookup(Average).Sample(simrand.New(5, 5))
	b := MustLookup(Average).Sample(simrand.New(5, 5))
	assert.Equal(t, a, b)
}

func TestParams_EventRate(t *testing.T) {
	p := Params{HardBrakeRate: 1, RapidAccelRate: 2, HarshCornerRate: 3, SwervingRate: 4, SpeedingRate: 5}
	assert.Equal(t, 1.0, p.EventRate(telemetry.EventHardBrake))
	assert.Equal(t, 2.0, p.EventRate(telemetry.EventRapidAccel))
	assert.Equal(t, 3.0, p.EventRate(telemetry.EventHarshCorner))
	assert.Equal(t, 4.0, p.EventRate(telemetry.EventSwerving))
	assert.Equal(t, 5.0, p.EventRate(telemetry.EventSpeeding))
}
