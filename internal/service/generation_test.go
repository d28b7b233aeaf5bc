package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/iago/pptx-generator-back/internal/ai"
	"github.com/iago/pptx-generator-back/internal/cache"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeGenerator struct {
	mu        sync.Mutex
	responses map[string][]string
	failModel string
	calls     []ai.GenerateRequest
}

func (f *fakeGenerator) Available() bool { return true }

func (f *fakeGenerator) Generate(_ context.Context, request ai.GenerateRequest) (ai.GenerateResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, request)
	if request.Model == f.failModel {
		return ai.GenerateResult{}, errors.New("upstream 503")
	}
	queue := f.responses[request.Model]
	if len(queue) == 0 {
		return ai.GenerateResult{}, errors.New("no scripted response")
	}
	f.responses[request.Model] = queue[1:]
	return ai.GenerateResult{Text: queue[0], ModelID: request.Model}, nil
}

func newTestGeneration(t *testing.T, gen ai.TextGenerator, responseCache *cache.ResponseCache) *GenerationService {
	t.Helper()
	return NewGenerationService(GenerationDependencies{
		Router: ai.NewModelRouter(ai.ModelRouterConfig{
			Provider:          "anthropic",
			AnalysisPrimary:   "analysis-main",
			AnalysisFallback:  "analysis-backup",
			NarrativePrimary:  "narrative-main",
			NarrativeFallback: "narrative-backup",
			SlidesPrimary:     "slides-main",
			SlidesFallback:    "slides-backup",
		}),
		Client: gen,
		Cache:  responseCache,
		Logger: zerolog.Nop(),
	})
}

func TestAnalyzeWrapsNonJSONOutput(t *testing.T) {
	gen := &fakeGenerator{responses: map[string][]string{
		"analysis-main": {"The thesis is that routing matters."},
	}}
	svc := newTestGeneration(t, gen, nil)

	analysis, err := svc.Analyze(context.Background(), "# Title\n\nBody text")
	require.NoError(t, err)

	var decoded map[string]string
	require.NoError(t, json.Unmarshal(analysis, &decoded))
	assert.Equal(t, "The thesis is that routing matters.", decoded["rawAnalysis"])
	require.Len(t, gen.calls, 1)
	assert.Contains(t, gen.calls[0].Input, "Body text")
	assert.Contains(t, gen.calls[0].Instructions, "Core thesis")
}

func TestAnalyzeAcceptsFencedJSON(t *testing.T) {
	gen := &fakeGenerator{responses: map[string][]string{
		"analysis-main": {"```json\n{\"thesis\":\"Edges win\"}\n```"},
	}}
	svc := newTestGeneration(t, gen, nil)

	analysis, err := svc.Analyze(context.Background(), "content")
	require.NoError(t, err)
	assert.JSONEq(t, `{"thesis":"Edges win"}`, string(analysis))
}

func TestEngineerNarrativeFailsOnNonJSON(t *testing.T) {
	gen := &fakeGenerator{responses: map[string][]string{
		"narrative-main": {"Sorry, I cannot help with that."},
	}}
	svc := newTestGeneration(t, gen, nil)

	_, err := svc.EngineerNarrative(context.Background(), json.RawMessage(`{"thesis":"x"}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse narrative response")
}

func TestEngineerNarrativeUsesFallbackModel(t *testing.T) {
	gen := &fakeGenerator{
		failModel: "narrative-main",
		responses: map[string][]string{
			"narrative-backup": {`Here you go: {"title":"  Edge   Routing ","slides":[{"headline":"Gateways fail at scale"}]}`},
		},
	}
	svc := newTestGeneration(t, gen, nil)

	narrative, err := svc.EngineerNarrative(context.Background(), json.RawMessage(`{"thesis":"x"}`))
	require.NoError(t, err)
	assert.Equal(t, "Edge Routing", narrative.Title)
	require.Len(t, narrative.Slides, 1)
	assert.Equal(t, 1, narrative.Slides[0].SlideNumber)
	require.Len(t, gen.calls, 2)
	assert.Equal(t, "narrative-backup", gen.calls[1].Model)
}

func TestGenerateSlidesParsesFragments(t *testing.T) {
	gen := &fakeGenerator{responses: map[string][]string{
		"slides-main": {`{"slides":[
			{"slideNumber":1,"filename":"slide01.html","html":"<h1>One</h1>"},
			{"slideNumber":2,"html":"<h1>Two</h1>"}
		]}`},
	}}
	svc := newTestGeneration(t, gen, nil)

	fragments, err := svc.GenerateSlides(context.Background(), sampleNarrative(), "")
	require.NoError(t, err)
	require.Len(t, fragments, 2)
	assert.Equal(t, "slide01.html", fragments[0].Filename)
	assert.Equal(t, 2, fragments[1].Ordinal)
	assert.Equal(t, "<h1>Two</h1>", fragments[1].Markup)
	assert.Contains(t, gen.calls[0].Instructions, "960x540px")
	assert.Contains(t, gen.calls[0].Instructions, "#050A22")
}

func TestGenerateSlidesRejectsBadShapes(t *testing.T) {
	for name, reply := range map[string]string{
		"not json":      "here are your slides",
		"missing field": `{"pages":[]}`,
	} {
		t.Run(name, func(t *testing.T) {
			gen := &fakeGenerator{responses: map[string][]string{"slides-main": {reply}}}
			svc := newTestGeneration(t, gen, nil)

			_, err := svc.GenerateSlides(context.Background(), sampleNarrative(), "traefik")
			require.Error(t, err)
			assert.Contains(t, err.Error(), "parse slide generation response")
		})
	}
}

func TestGenerateSlidesRejectsUnknownBrand(t *testing.T) {
	svc := newTestGeneration(t, &fakeGenerator{}, nil)

	_, err := svc.GenerateSlides(context.Background(), sampleNarrative(), "acme")
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestStagesAreServedFromCache(t *testing.T) {
	responseCache, err := cache.NewResponseCache(cache.Config{TTL: time.Minute, MaxEntries: 8})
	require.NoError(t, err)
	gen := &fakeGenerator{responses: map[string][]string{
		"analysis-main": {`{"thesis":"cached"}`},
	}}
	svc := newTestGeneration(t, gen, responseCache)

	first, err := svc.Analyze(context.Background(), "same content")
	require.NoError(t, err)
	second, err := svc.Analyze(context.Background(), "same content")
	require.NoError(t, err)

	assert.JSONEq(t, string(first), string(second))
	assert.Len(t, gen.calls, 1)
}

func TestUnavailableProvider(t *testing.T) {
	svc := newTestGeneration(t, nil, nil)

	_, err := svc.Analyze(context.Background(), "content")
	assert.ErrorIs(t, err, ai.ErrProviderUnavailable)
}

func TestExtractJSON(t *testing.T) {
	raw, err := extractJSON("prefix {\"a\":1} suffix")
	require.NoError(t, err)
	assert.Equal(t, `{"a":1}`, string(raw))

	_, err = extractJSON("[1,2,3]")
	assert.Error(t, err)

	_, err = extractJSON("   ")
	assert.Error(t, err)
	assert.False(t, strings.Contains(stripCodeFence("```json\n{}\n```"), "`"))
}
