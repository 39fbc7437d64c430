package health

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/mbd888/drivesim/internal/circuitbreaker"
)

// Pinger is anything that can report reachability, e.g. a feature store.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingChecker reports p unhealthy when Ping fails.
func PingChecker(name string, p Pinger) Checker {
	return func(ctx context.Context) Status {
		if err := p.Ping(ctx); err != nil {
			return Status{Name: name, Healthy: false, Detail: err.Error()}
		}
		return Status{Name: name, Healthy: true}
	}
}

// BreakerChecker reports which provider circuits are not closed. Open
// circuits degrade enrichment to neutral defaults but never fail a run.
func BreakerChecker(name string, b *circuitbreaker.Breaker) Checker {
	return func(context.Context) Status {
		var tripped []string
		for key, st := range b.Snapshot() {
			if st != circuitbreaker.StateClosed {
				tripped = append(tripped, fmt.Sprintf("%s=%s", key, st))
			}
		}
		if len(tripped) == 0 {
			return Status{Name: name, Healthy: true}
		}
		sort.Strings(tripped)
		return Status{Name: name, Healthy: true, Degraded: true, Detail: strings.Join(tripped, ",")}
	}
}
