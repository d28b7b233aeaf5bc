package deck

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"os"
	"path/filepath"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"golang.org/x/net/html"
)

// ErrMalformedFragment marks a fragment that cannot become a slide.
var ErrMalformedFragment = errors.New("malformed slide fragment")

const defaultMaxFragmentBytes = 2 << 20

type Config struct {
	Layout           LayoutConfig
	MaxFragmentBytes int64
	Author           string
	Now              func() time.Time
}

// RenderRequest lists the persisted fragments in slide order.
type RenderRequest struct {
	Fragments  []string
	OutputPath string
	LogoPath   string
	Brand      string
	Title      string
}

type SlideIssue struct {
	Path string
	Err  error
}

// Report describes one render. Layouts holds the rendered slides in order.
type Report struct {
	OutputPath     string
	SlidesRendered int
	Skipped        []SlideIssue
	Layouts        []SlideLayout
}

// Engine turns HTML fragments into a single .pptx deck.
type Engine struct {
	cfg    Config
	logger zerolog.Logger
}

func NewEngine(cfg Config, logger zerolog.Logger) *Engine {
	cfg.Layout = cfg.Layout.normalized()
	if cfg.MaxFragmentBytes <= 0 {
		cfg.MaxFragmentBytes = defaultMaxFragmentBytes
	}
	if cfg.Now == nil {
		cfg.Now = func() time.Time { return time.Now().UTC() }
	}
	return &Engine{cfg: cfg, logger: logger.With().Str("component", "deck").Logger()}
}

// Render lays out every fragment and writes one deck to req.OutputPath.
// A fragment that cannot be read or parsed is logged and skipped; only
// the final write (or an unknown brand) fails the render.
func (e *Engine) Render(ctx context.Context, req RenderRequest) (Report, error) {
	palette, ok := PaletteFor(req.Brand)
	if !ok {
		return Report{}, fmt.Errorf("unknown brand %q", req.Brand)
	}
	e.logger.Info().Int("fragments", len(req.Fragments)).Str("output", req.OutputPath).Msg("converting fragments to pptx")

	writer := NewWriter(DeckMeta{Title: req.Title, Author: e.cfg.Author, Created: e.cfg.Now()}, palette)
	logo := e.loadLogo(req.LogoPath, writer)

	report := Report{OutputPath: req.OutputPath}
	for _, path := range req.Fragments {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		doc, err := readFragment(path, e.cfg.MaxFragmentBytes)
		if err != nil {
			e.logger.Error().Err(err).Str("fragment", path).Msg("skip slide")
			report.Skipped = append(report.Skipped, SlideIssue{Path: path, Err: err})
			continue
		}
		layout := SlideLayout{
			Source:     path,
			Primitives: LayoutSlide(doc, logo, palette, e.cfg.Layout),
		}
		writer.AddSlide(layout)
		report.Layouts = append(report.Layouts, layout)
		e.logger.Debug().Str("fragment", filepath.Base(path)).Int("primitives", len(layout.Primitives)).Msg("slide processed")
	}

	if err := writer.WriteFile(req.OutputPath); err != nil {
		return report, fmt.Errorf("write presentation: %w", err)
	}
	report.SlidesRendered = writer.SlideCount()
	e.logger.Info().Str("output", req.OutputPath).Int("slides", report.SlidesRendered).Msg("pptx saved")
	return report, nil
}

// loadLogo reads the watermark. A missing file, or one that is not PNG, JPEG
// or GIF (SVG, WebP), disables it.
func (e *Engine) loadLogo(path string, writer *Writer) *Logo {
	if path == "" {
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			e.logger.Warn().Err(err).Str("logo", path).Msg("read logo")
		}
		return nil
	}
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil || cfg.Height == 0 {
		e.logger.Warn().Err(err).Str("logo", path).Msg("decode logo")
		return nil
	}
	writer.AddImage(path, format, data)
	return &Logo{Path: path, Width: cfg.Width, Height: cfg.Height}
}

func readFragment(path string, maxBytes int64) (*html.Node, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open fragment: %w", err)
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read fragment: %w", err)
	}
	switch {
	case int64(len(data)) > maxBytes:
		return nil, fmt.Errorf("%w: larger than %d bytes", ErrMalformedFragment, maxBytes)
	case len(bytes.TrimSpace(data)) == 0:
		return nil, fmt.Errorf("%w: empty", ErrMalformedFragment)
	case bytes.IndexByte(data, 0) >= 0:
		return nil, fmt.Errorf("%w: contains NUL byte", ErrMalformedFragment)
	case !utf8.Valid(data):
		return nil, fmt.Errorf("%w: invalid UTF-8", ErrMalformedFragment)
	}

	doc, err := html.Parse(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedFragment, err)
	}
	return doc, nil
}
