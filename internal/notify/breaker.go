package notify

import (
	"context"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/fjod/storefront/internal/logger"
)

// Breaker stops calling a failing remote publisher for a while so that
// catalog writes do not wait on a dead broker.
type Breaker struct {
	next Publisher
	cb   *gobreaker.CircuitBreaker[struct{}]
}

func NewBreaker(name string, next Publisher, log *logger.Logger) *Breaker {
	log = log.With("component", "Breaker", "name", name)
	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("publisher breaker state changed", "from", from.String(), "to", to.String())
		},
	}
	return &Breaker{
		next: next,
		cb:   gobreaker.NewCircuitBreaker[struct{}](settings),
	}
}

func (b *Breaker) Publish(ctx context.Context, ev Event) error {
	_, err := b.cb.Execute(func() (struct{}, error) {
		return struct{}{}, b.next.Publish(ctx, ev)
	})
	return err
}

// State exposes the breaker state for health reporting.
func (b *Breaker) State() gobreaker.State {
	return b.cb.State()
}
