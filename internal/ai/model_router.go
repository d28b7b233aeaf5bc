package ai

import "strings"

// Stage is one generation step of the pipeline.
type Stage string

const (
	StageAnalysis  Stage = "analysis"
	StageNarrative Stage = "narrative"
	StageSlides    Stage = "slides"
)

type ModelProfile struct {
	PrimaryModel    string
	FallbackModel   string
	Temperature     float64
	MaxOutputTokens int
}

type ModelRouterConfig struct {
	Provider string

	AnalysisPrimary  string
	AnalysisFallback string

	NarrativePrimary  string
	NarrativeFallback string

	SlidesPrimary  string
	SlidesFallback string
}

type ModelRouter struct {
	config ModelRouterConfig
}

// defaultModels holds primary and fallback per provider.
var defaultModels = map[string][2]string{
	"anthropic":  {"claude-sonnet-4-20250514", "claude-3-5-haiku-20241022"},
	"openai":     {"gpt-4.1", "gpt-4.1-mini"},
	"openrouter": {"anthropic/claude-sonnet-4", "openai/gpt-4.1"},
}

func NewModelRouter(config ModelRouterConfig) *ModelRouter {
	defaults, ok := defaultModels[strings.ToLower(strings.TrimSpace(config.Provider))]
	if !ok {
		defaults = defaultModels["anthropic"]
	}
	fill := func(value *string, fallback string) {
		if strings.TrimSpace(*value) == "" {
			*value = fallback
		}
	}
	fill(&config.AnalysisPrimary, defaults[0])
	fill(&config.AnalysisFallback, defaults[1])
	fill(&config.NarrativePrimary, defaults[0])
	fill(&config.NarrativeFallback, defaults[1])
	fill(&config.SlidesPrimary, defaults[0])
	fill(&config.SlidesFallback, defaults[1])

	return &ModelRouter{config: config}
}

func (r *ModelRouter) Select(stage Stage) ModelProfile {
	switch stage {
	case StageNarrative:
		return ModelProfile{
			PrimaryModel:    r.config.NarrativePrimary,
			FallbackModel:   r.config.NarrativeFallback,
			Temperature:     0.4,
			MaxOutputTokens: 4096,
		}
	case StageSlides:
		return ModelProfile{
			PrimaryModel:    r.config.SlidesPrimary,
			FallbackModel:   r.config.SlidesFallback,
			Temperature:     0.3,
			MaxOutputTokens: 16000,
		}
	default:
		return ModelProfile{
			PrimaryModel:    r.config.AnalysisPrimary,
			FallbackModel:   r.config.AnalysisFallback,
			Temperature:     0.2,
			MaxOutputTokens: 4096,
		}
	}
}
