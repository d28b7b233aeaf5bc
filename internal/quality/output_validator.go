package quality

import (
	"errors"
	"fmt"
	"strings"

	"github.com/iago/pptx-generator-back/internal/domain"
)

var ErrQualityRejected = errors.New("output failed quality checks")

const (
	maxTitleLen    = 160
	maxHeadlineLen = 140
	maxSlides      = 40
)

// OutputValidator checks the shape of parsed stage outputs before they move
// to the next phase.
type OutputValidator struct{}

func NewOutputValidator() *OutputValidator {
	return &OutputValidator{}
}

// ValidateNarrative requires a title and at least one slide descriptor.
// Text fields are whitespace-normalized and missing slide numbers filled in.
func (v *OutputValidator) ValidateNarrative(narrative domain.Narrative) (domain.Narrative, error) {
	title := truncateAtWord(normalizeText(narrative.Title), maxTitleLen)
	if title == "" {
		return domain.Narrative{}, fmt.Errorf("%w: narrative title is empty", ErrQualityRejected)
	}
	if len(narrative.Slides) == 0 {
		return domain.Narrative{}, fmt.Errorf("%w: narrative has no slides", ErrQualityRejected)
	}
	if len(narrative.Slides) > maxSlides {
		return domain.Narrative{}, fmt.Errorf("%w: narrative has %d slides, limit is %d", ErrQualityRejected, len(narrative.Slides), maxSlides)
	}

	slides := make([]domain.SlideDescriptor, 0, len(narrative.Slides))
	for i, slide := range narrative.Slides {
		slide.Headline = truncateAtWord(normalizeText(slide.Headline), maxHeadlineLen)
		slide.Subheadline = normalizeText(slide.Subheadline)
		if slide.SlideNumber <= 0 {
			slide.SlideNumber = i + 1
		}
		points := make([]string, 0, len(slide.KeyPoints))
		for _, point := range slide.KeyPoints {
			if normalized := normalizeText(point); normalized != "" {
				points = append(points, normalized)
			}
		}
		slide.KeyPoints = points
		slides = append(slides, slide)
	}

	return domain.Narrative{
		Title:    title,
		Subtitle: normalizeText(narrative.Subtitle),
		Slides:   slides,
	}, nil
}

// ValidateFragments requires a non-empty list. Order is kept; missing
// ordinals become the 1-based position.
func (v *OutputValidator) ValidateFragments(fragments []domain.SlideFragment) ([]domain.SlideFragment, error) {
	if len(fragments) == 0 {
		return nil, fmt.Errorf("%w: slide generation returned no slides", ErrQualityRejected)
	}
	if len(fragments) > maxSlides {
		return nil, fmt.Errorf("%w: %d slides exceeds limit %d", ErrQualityRejected, len(fragments), maxSlides)
	}

	output := make([]domain.SlideFragment, 0, len(fragments))
	for i, fragment := range fragments {
		if fragment.Ordinal <= 0 {
			fragment.Ordinal = i + 1
		}
		fragment.Filename = strings.TrimSpace(fragment.Filename)
		output = append(output, fragment)
	}
	return output, nil
}

func normalizeText(value string) string {
	return strings.Join(strings.Fields(value), " ")
}

func truncateAtWord(value string, maxLen int) string {
	if len(value) <= maxLen || maxLen <= 0 {
		return value
	}
	cut := value[:maxLen]
	lastSpace := strings.LastIndex(cut, " ")
	if lastSpace > maxLen/2 {
		cut = cut[:lastSpace]
	}
	return strings.TrimSpace(cut)
}
