package service

import (
	"bytes"
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"sync"
	"text/template"

	"github.com/iago/pptx-generator-back/internal/ai"
	"github.com/iago/pptx-generator-back/internal/cache"
	"github.com/iago/pptx-generator-back/internal/deck"
	"github.com/iago/pptx-generator-back/internal/domain"
	"github.com/iago/pptx-generator-back/internal/quality"
	"github.com/rs/zerolog"
)

//go:embed prompts/*.tmpl
var embeddedPrompts embed.FS

const (
	analysisPrompt  = "analysis_v1.tmpl"
	narrativePrompt = "narrative_v1.tmpl"
	slidesPrompt    = "slides_v1.tmpl"

	jsonOnlyInstruction = "Return only valid JSON. Do not use markdown code fences."
)

type GenerationDependencies struct {
	Router     *ai.ModelRouter
	Client     ai.TextGenerator
	Cache      *cache.ResponseCache
	Validator  *quality.OutputValidator
	PromptsDir string
	Logger     zerolog.Logger
}

// GenerationService runs the three model stages of the pipeline and parses
// each answer into the shape the next phase expects.
type GenerationService struct {
	router    *ai.ModelRouter
	client    ai.TextGenerator
	cache     *cache.ResponseCache
	validator *quality.OutputValidator
	prompts   fs.FS
	logger    zerolog.Logger

	tmplMu    sync.RWMutex
	templates map[string]*template.Template
}

func NewGenerationService(deps GenerationDependencies) *GenerationService {
	var prompts fs.FS
	if dir := strings.TrimSpace(deps.PromptsDir); dir != "" {
		prompts = os.DirFS(dir)
	} else {
		sub, err := fs.Sub(embeddedPrompts, "prompts")
		if err != nil {
			panic(err)
		}
		prompts = sub
	}
	if deps.Router == nil {
		deps.Router = ai.NewModelRouter(ai.ModelRouterConfig{})
	}
	if deps.Validator == nil {
		deps.Validator = quality.NewOutputValidator()
	}

	return &GenerationService{
		router:    deps.Router,
		client:    deps.Client,
		cache:     deps.Cache,
		validator: deps.Validator,
		prompts:   prompts,
		logger:    deps.Logger.With().Str("component", "generation").Logger(),
		templates: make(map[string]*template.Template),
	}
}

// Analyze extracts the thesis and key points of the content. A reply that
// is not JSON is kept as {"rawAnalysis": text} for the narrative stage.
func (s *GenerationService) Analyze(ctx context.Context, content string) (json.RawMessage, error) {
	instructions, err := s.renderPrompt(analysisPrompt, nil)
	if err != nil {
		return nil, err
	}
	input := "Analyze this content for presentation creation:\n\n" + content

	text, err := s.generateCached(ctx, ai.StageAnalysis, analysisPrompt, instructions, input)
	if err != nil {
		return nil, fmt.Errorf("content analysis: %w", err)
	}

	rawJSON, parseErr := extractJSON(text)
	if parseErr != nil {
		s.logger.Debug().Err(parseErr).Msg("analysis is not json, keeping raw text")
		wrapped, err := json.Marshal(map[string]string{"rawAnalysis": strings.TrimSpace(text)})
		if err != nil {
			return nil, fmt.Errorf("encode raw analysis: %w", err)
		}
		return wrapped, nil
	}
	return rawJSON, nil
}

// EngineerNarrative turns the analysis into a title and slide plan.
func (s *GenerationService) EngineerNarrative(ctx context.Context, analysis json.RawMessage) (domain.Narrative, error) {
	instructions, err := s.renderPrompt(narrativePrompt, map[string]any{
		"MinSlides": 5,
		"MaxSlides": 12,
	})
	if err != nil {
		return domain.Narrative{}, err
	}
	input := "Create headlines from this analysis:\n\n" + indentJSON(analysis)

	text, err := s.generateCached(ctx, ai.StageNarrative, narrativePrompt, instructions, input)
	if err != nil {
		return domain.Narrative{}, fmt.Errorf("narrative engineering: %w", err)
	}

	rawJSON, err := extractJSON(text)
	if err != nil {
		return domain.Narrative{}, fmt.Errorf("parse narrative response: %w", err)
	}
	var narrative domain.Narrative
	if err := json.Unmarshal(rawJSON, &narrative); err != nil {
		return domain.Narrative{}, fmt.Errorf("parse narrative response: %w", err)
	}

	validated, err := s.validator.ValidateNarrative(narrative)
	if err != nil {
		return domain.Narrative{}, fmt.Errorf("validate narrative: %w", err)
	}
	return validated, nil
}

// GenerateSlides asks for one HTML document per narrative slide.
func (s *GenerationService) GenerateSlides(ctx context.Context, narrative domain.Narrative, brand string) ([]domain.SlideFragment, error) {
	palette, ok := deck.PaletteFor(brand)
	if !ok {
		return nil, fmt.Errorf("%w: unknown brand %q", ErrInvalidInput, brand)
	}
	if strings.TrimSpace(brand) == "" {
		brand = deck.DefaultBrand
	}

	instructions, err := s.renderPrompt(slidesPrompt, map[string]any{
		"Width":   int(deck.CanvasWidth),
		"Height":  int(deck.CanvasHeight),
		"Brand":   brand,
		"Palette": palette,
	})
	if err != nil {
		return nil, err
	}
	encoded, err := json.MarshalIndent(narrative, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode narrative: %w", err)
	}
	input := "Generate HTML slides for this presentation:\n\n" + string(encoded)

	text, err := s.generateCached(ctx, ai.StageSlides, slidesPrompt, instructions, input)
	if err != nil {
		return nil, fmt.Errorf("slide generation: %w", err)
	}

	fragments, err := parseSlideFragments(text)
	if err != nil {
		return nil, fmt.Errorf("parse slide generation response: %w", err)
	}

	validated, err := s.validator.ValidateFragments(fragments)
	if err != nil {
		return nil, fmt.Errorf("validate slides: %w", err)
	}
	return validated, nil
}

// generateCached serves a stage from the response cache when the same
// prompt and input were answered before.
func (s *GenerationService) generateCached(
	ctx context.Context,
	stage ai.Stage,
	promptVersion string,
	instructions string,
	input string,
) (string, error) {
	signature := cache.BuildSignature(string(stage), promptVersion, instructions, input)
	if s.cache != nil {
		if cached, ok := s.cache.Get(signature); ok {
			var text string
			if err := json.Unmarshal(cached.Value, &text); err == nil {
				s.logger.Debug().Str("stage", string(stage)).Str("model_id", cached.ModelID).Msg("stage served from cache")
				return text, nil
			}
		}
	}

	text, modelID, err := s.generateText(ctx, s.router.Select(stage), instructions, input)
	if err != nil {
		return "", err
	}
	s.logger.Info().Str("stage", string(stage)).Str("model_id", modelID).Int("output_len", len(text)).Msg("stage generated")

	if s.cache != nil {
		if encoded, err := json.Marshal(text); err == nil {
			s.cache.Set(signature, cache.Entry{
				Value:         encoded,
				ModelID:       modelID,
				PromptVersion: promptVersion,
			})
		}
	}
	return text, nil
}

func (s *GenerationService) generateText(
	ctx context.Context,
	profile ai.ModelProfile,
	instructions string,
	input string,
) (string, string, error) {
	if s.client == nil || !s.client.Available() {
		return "", "", ai.ErrProviderUnavailable
	}

	primaryResult, err := s.client.Generate(ctx, ai.GenerateRequest{
		Model:           profile.PrimaryModel,
		Instructions:    instructions + "\n\n" + jsonOnlyInstruction,
		Input:           input,
		Temperature:     profile.Temperature,
		MaxOutputTokens: profile.MaxOutputTokens,
	})
	if err == nil {
		return primaryResult.Text, firstNonEmpty(primaryResult.ModelID, profile.PrimaryModel), nil
	}

	if strings.TrimSpace(profile.FallbackModel) == "" || profile.FallbackModel == profile.PrimaryModel {
		return "", "", err
	}
	s.logger.Warn().Err(err).Str("model", profile.PrimaryModel).Msg("primary model failed, trying fallback")

	fallbackResult, fallbackErr := s.client.Generate(ctx, ai.GenerateRequest{
		Model:           profile.FallbackModel,
		Instructions:    instructions + "\n\n" + jsonOnlyInstruction,
		Input:           input,
		Temperature:     profile.Temperature,
		MaxOutputTokens: profile.MaxOutputTokens,
	})
	if fallbackErr != nil {
		return "", "", fmt.Errorf("primary model failed: %v; fallback failed: %w", err, fallbackErr)
	}
	return fallbackResult.Text, firstNonEmpty(fallbackResult.ModelID, profile.FallbackModel), nil
}

func (s *GenerationService) renderPrompt(fileName string, data any) (string, error) {
	tmpl, err := s.loadTemplate(fileName)
	if err != nil {
		return "", err
	}

	buffer := bytes.NewBuffer(nil)
	if err := tmpl.Execute(buffer, data); err != nil {
		return "", fmt.Errorf("execute template %s: %w", fileName, err)
	}
	return buffer.String(), nil
}

func (s *GenerationService) loadTemplate(fileName string) (*template.Template, error) {
	s.tmplMu.RLock()
	if tmpl, ok := s.templates[fileName]; ok {
		s.tmplMu.RUnlock()
		return tmpl, nil
	}
	s.tmplMu.RUnlock()

	content, err := fs.ReadFile(s.prompts, fileName)
	if err != nil {
		return nil, fmt.Errorf("read prompt template %s: %w", fileName, err)
	}

	tmpl, err := template.New(fileName).Option("missingkey=error").Parse(string(content))
	if err != nil {
		return nil, fmt.Errorf("parse prompt template %s: %w", fileName, err)
	}

	s.tmplMu.Lock()
	s.templates[fileName] = tmpl
	s.tmplMu.Unlock()

	return tmpl, nil
}

func parseSlideFragments(text string) ([]domain.SlideFragment, error) {
	rawJSON, err := extractJSON(text)
	if err != nil {
		return nil, err
	}

	var envelope struct {
		Slides []struct {
			SlideNumber int    `json:"slideNumber"`
			Filename    string `json:"filename"`
			HTML        string `json:"html"`
		} `json:"slides"`
	}
	if err := json.Unmarshal(rawJSON, &envelope); err != nil {
		return nil, fmt.Errorf("decode slides json: %w", err)
	}
	if envelope.Slides == nil {
		return nil, errors.New("slides field is missing")
	}

	fragments := make([]domain.SlideFragment, 0, len(envelope.Slides))
	for _, slide := range envelope.Slides {
		fragments = append(fragments, domain.SlideFragment{
			Ordinal:  slide.SlideNumber,
			Filename: slide.Filename,
			Markup:   slide.HTML,
		})
	}
	return fragments, nil
}

func extractJSON(text string) ([]byte, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil, errors.New("empty model output")
	}

	if strings.HasPrefix(trimmed, "```") {
		trimmed = stripCodeFence(trimmed)
	}

	var decoded map[string]any
	if err := json.Unmarshal([]byte(trimmed), &decoded); err == nil {
		return []byte(trimmed), nil
	}

	start := strings.Index(trimmed, "{")
	end := strings.LastIndex(trimmed, "}")
	if start >= 0 && end > start {
		candidate := trimmed[start : end+1]
		if err := json.Unmarshal([]byte(candidate), &decoded); err == nil {
			return []byte(candidate), nil
		}
	}

	return nil, errors.New("model output is not a JSON object")
}

func stripCodeFence(text string) string {
	trimmed := strings.TrimSpace(text)
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimPrefix(trimmed, "json")
	trimmed = strings.TrimSuffix(trimmed, "```")
	return strings.TrimSpace(trimmed)
}

func indentJSON(raw json.RawMessage) string {
	var buffer bytes.Buffer
	if err := json.Indent(&buffer, raw, "", "  "); err != nil {
		return string(raw)
	}
	return buffer.String()
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		trimmed := strings.TrimSpace(value)
		if trimmed != "" {
			return trimmed
		}
	}
	return ""
}
