package retrieval

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"github.com/andybalholm/cascadia"
	readability "github.com/go-shiori/go-readability"
	"github.com/iago/pptx-generator-back/internal/domain"
	"github.com/rs/zerolog"
	"golang.org/x/net/html"
)

var (
	ErrEmptySource       = errors.New("source content is empty")
	ErrUnsupportedSource = errors.New("unsupported source kind")
	ErrNoReadableContent = errors.New("could not extract article content")
)

const userAgent = "Mozilla/5.0 (compatible; PPTXGenerator/1.0)"

var noiseSelector = cascadia.MustCompile("script, style, nav, footer, aside, noscript, iframe, form")

type Config struct {
	Timeout  time.Duration
	MaxBytes int64
	// MaxTokens bounds the returned text; see Condense.
	MaxTokens int
	Client    *http.Client
}

// Retriever turns a job source into markdown text.
type Retriever struct {
	client    *http.Client
	maxBytes  int64
	maxTokens int
	logger    zerolog.Logger
}

func NewRetriever(cfg Config, logger zerolog.Logger) *Retriever {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 20 * time.Second
	}
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = 10 << 20
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = DefaultMaxTokens
	}
	client := cfg.Client
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	return &Retriever{
		client:    client,
		maxBytes:  cfg.MaxBytes,
		maxTokens: cfg.MaxTokens,
		logger:    logger.With().Str("component", "retrieval").Logger(),
	}
}

// Retrieve returns raw sources as-is and fetches reference sources. Text
// over the token budget is condensed.
func (r *Retriever) Retrieve(ctx context.Context, locator string, kind domain.SourceKind) (string, error) {
	var (
		content string
		err     error
	)
	switch kind {
	case domain.SourceKindRaw:
		if strings.TrimSpace(locator) == "" {
			return "", ErrEmptySource
		}
		content = locator
	case domain.SourceKindReference:
		content, err = r.fetch(ctx, strings.TrimSpace(locator))
		if err != nil {
			return "", err
		}
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedSource, kind)
	}

	condensed, tokens := Condense(content, r.maxTokens)
	if len(condensed) != len(content) {
		r.logger.Info().
			Int("estimated_tokens", estimateTokens(content)).
			Int("kept_tokens", tokens).
			Msg("source condensed to token budget")
	}
	return condensed, nil
}

func (r *Retriever) fetch(ctx context.Context, locator string) (string, error) {
	if locator == "" {
		return "", ErrEmptySource
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, locator, nil)
	if err != nil {
		return "", fmt.Errorf("build fetch request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml;q=0.9,*/*;q=0.8")

	started := time.Now()
	resp, err := r.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch %s: %w", locator, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("fetch %s: unexpected status %d", locator, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, r.maxBytes+1))
	if err != nil {
		return "", fmt.Errorf("read %s: %w", locator, err)
	}
	if int64(len(body)) > r.maxBytes {
		return "", fmt.Errorf("fetch %s: body exceeds %d bytes", locator, r.maxBytes)
	}

	content, err := ExtractMarkdown(body, locator)
	if err != nil {
		return "", fmt.Errorf("extract %s: %w", locator, err)
	}

	r.logger.Debug().
		Str("url", locator).
		Int("bytes", len(body)).
		Int("markdown_len", len(content)).
		Dur("duration", time.Since(started)).
		Msg("reference fetched")
	return content, nil
}

// ExtractMarkdown runs Readability over an HTML page, strips leftover page
// chrome and converts the article to markdown prefixed by its title.
// Pages where Readability finds no article yield ErrNoReadableContent.
func ExtractMarkdown(page []byte, pageURL string) (string, error) {
	base, err := url.Parse(pageURL)
	if err != nil {
		base = &url.URL{}
	}
	article, err := readability.FromReader(bytes.NewReader(page), base)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrNoReadableContent, err)
	}
	if strings.TrimSpace(article.TextContent) == "" || strings.TrimSpace(article.Content) == "" {
		return "", ErrNoReadableContent
	}

	doc, err := html.Parse(strings.NewReader(article.Content))
	if err != nil {
		return "", fmt.Errorf("parse article: %w", err)
	}
	for _, node := range cascadia.QueryAll(doc, noiseSelector) {
		if node.Parent != nil {
			node.Parent.RemoveChild(node)
		}
	}
	var rendered bytes.Buffer
	if err := html.Render(&rendered, doc); err != nil {
		return "", fmt.Errorf("render article: %w", err)
	}

	markdown, err := htmltomarkdown.ConvertString(rendered.String())
	if err != nil {
		return "", fmt.Errorf("convert to markdown: %w", err)
	}
	markdown = strings.TrimSpace(markdown)
	if markdown == "" {
		return "", ErrNoReadableContent
	}

	title := strings.Join(strings.Fields(article.Title), " ")
	if title != "" && !strings.HasPrefix(markdown, "#") {
		markdown = "# " + title + "\n\n" + markdown
	}
	return markdown, nil
}
