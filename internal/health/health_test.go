package health

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mbd888/drivesim/internal/circuitbreaker"
)

func TestCheckAll_NoCheckers(t *testing.T) {
	healthy, statuses := NewRegistry().CheckAll(context.Background())
	assert.True(t, healthy)
	assert.Empty(t, statuses)
}

func TestCheckAll_KeepsRegistrationOrder(t *testing.T) {
	r := NewRegistry()
	r.Register("feature_store", PingChecker("feature_store", fakePinger{}))
	r.Register("providers", func(context.Context) Status {
		time.Sleep(5 * time.Millisecond)
		return Status{Healthy: true}
	})
	r.Register("output", func(context.Context) Status {
		return Status{Name: "output", Healthy: false, Detail: "read-only file system"}
	})

	healthy, statuses := r.CheckAll(context.Background())
	assert.False(t, healthy)
	require.Len(t, statuses, 3)
	assert.Equal(t, []string{"feature_store", "providers", "output"},
		[]string{statuses[0].Name, statuses[1].Name, statuses[2].Name})
	assert.Equal(t, "read-only file system", statuses[2].Detail)
}

func TestRegistry_RegisterWhileChecking(t *testing.T) {
	r := NewRegistry()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			r.Register("store", PingChecker("store", fakePinger{}))
		}()
		go func() {
			defer wg.Done()
			r.CheckAll(context.Background())
		}()
	}
	wg.Wait()

	healthy, statuses := r.CheckAll(context.Background())
	assert.True(t, healthy)
	assert.Len(t, statuses, 8)
}

func TestRegistryCheckTimeout(t *testing.T) {
	r := NewRegistry().WithTimeout(10 * time.Millisecond)
	r.Register("slow", func(ctx context.Context) Status {
		<-ctx.Done()
		return Status{Healthy: false, Detail: ctx.Err().Error()}
	})

	healthy, statuses := r.CheckAll(context.Background())
	assert.False(t, healthy)
	require.Len(t, statuses, 1)
	assert.Equal(t, "slow", statuses[0].Name)
	assert.Equal(t, context.DeadlineExceeded.Error(), statuses[0].Detail)
}

type fakePinger struct{ err error }

func (f fakePinger) Ping(context.Context) error { return f.err }

func TestPingChecker(t *testing.T) {
	st := PingChecker("feature_store", fakePinger{})(context.Background())
	assert.Equal(t, Status{Name: "feature_store", Healthy: true}, st)

	st = PingChecker("feature_store", fakePinger{err: errors.New("dial tcp: refused")})(context.Background())
	assert.False(t, st.Healthy)
	assert.Equal(t, "dial tcp: refused", st.Detail)
}

func TestBreakerChecker(t *testing.T) {
	b := circuitbreaker.New(1, time.Minute)
	check := BreakerChecker("providers", b)

	st := check(context.Background())
	assert.True(t, st.Healthy)
	assert.False(t, st.Degraded)

	b.RecordFailure("weather")
	st = check(context.Background())
	assert.True(t, st.Healthy)
	assert.True(t, st.Degraded)
	assert.Equal(t, "weather=open", st.Detail)

	r := NewRegistry()
	r.Register("providers", check)
	healthy, _ := r.CheckAll(context.Background())
	assert.True(t, healthy)
}
