package ai

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type scriptedGenerator struct {
	calls int
	err   error
}

func (g *scriptedGenerator) Available() bool { return true }

func (g *scriptedGenerator) Generate(_ context.Context, request GenerateRequest) (GenerateResult, error) {
	g.calls++
	if g.err != nil {
		return GenerateResult{}, g.err
	}
	return GenerateResult{Text: "ok", ModelID: request.Model}, nil
}

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	next := &scriptedGenerator{err: errors.New("anthropic status 503: overloaded")}
	breaker := NewBreakerGenerator(next, BreakerConfig{MaxFailures: 2, OpenTimeout: time.Minute})

	for i := 0; i < 2; i++ {
		_, err := breaker.Generate(context.Background(), GenerateRequest{Model: "m", Input: "x"})
		require.Error(t, err)
	}
	_, err := breaker.Generate(context.Background(), GenerateRequest{Model: "m", Input: "x"})
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.Equal(t, 2, next.calls)
	assert.Equal(t, "open", breaker.State())
}

func TestBreakerPassesResultsThrough(t *testing.T) {
	breaker := NewBreakerGenerator(&scriptedGenerator{}, BreakerConfig{})
	result, err := breaker.Generate(context.Background(), GenerateRequest{Model: "m", Input: "x"})
	require.NoError(t, err)
	assert.Equal(t, "ok", result.Text)
	assert.Equal(t, "m", result.ModelID)
	assert.True(t, breaker.Available())
	assert.Equal(t, "closed", breaker.State())
}

func TestModelRouterDefaultsPerProvider(t *testing.T) {
	router := NewModelRouter(ModelRouterConfig{Provider: "openai", SlidesPrimary: "custom"})
	assert.Equal(t, "gpt-4.1", router.Select(StageAnalysis).PrimaryModel)
	assert.Equal(t, "custom", router.Select(StageSlides).PrimaryModel)
	assert.Equal(t, 16000, router.Select(StageSlides).MaxOutputTokens)

	fallback := NewModelRouter(ModelRouterConfig{Provider: "unknown"})
	assert.Equal(t, "claude-sonnet-4-20250514", fallback.Select(StageNarrative).PrimaryModel)
}
