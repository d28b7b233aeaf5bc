package ai

import (
	"context"
	"time"

	"github.com/sony/gobreaker"
)

type BreakerConfig struct {
	Name        string
	MaxFailures uint32
	OpenTimeout time.Duration
}

// BreakerGenerator stops calling a provider after consecutive failures and
// tries it again once OpenTimeout has passed.
type BreakerGenerator struct {
	next    TextGenerator
	breaker *gobreaker.CircuitBreaker
}

func NewBreakerGenerator(next TextGenerator, config BreakerConfig) *BreakerGenerator {
	if config.MaxFailures == 0 {
		config.MaxFailures = 5
	}
	if config.OpenTimeout <= 0 {
		config.OpenTimeout = 30 * time.Second
	}
	if config.Name == "" {
		config.Name = "text-generator"
	}
	maxFailures := config.MaxFailures
	return &BreakerGenerator{
		next: next,
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        config.Name,
			MaxRequests: 1,
			Timeout:     config.OpenTimeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= maxFailures
			},
		}),
	}
}

func (g *BreakerGenerator) Available() bool {
	return g.next != nil && g.next.Available()
}

func (g *BreakerGenerator) Generate(ctx context.Context, request GenerateRequest) (GenerateResult, error) {
	value, err := g.breaker.Execute(func() (interface{}, error) {
		return g.next.Generate(ctx, request)
	})
	if err != nil {
		return GenerateResult{}, err
	}
	return value.(GenerateResult), nil
}

// State reports the breaker state name, for health output.
func (g *BreakerGenerator) State() string {
	return g.breaker.State().String()
}
