package retrieval

import (
	"strings"
)

// DefaultMaxTokens bounds the source text handed to the analysis prompt.
const DefaultMaxTokens = 24000

type section struct {
	text   string
	tokens int
}

// Condense keeps whole markdown sections, in document order, until the
// estimated token count would pass maxTokens. Sections repeated verbatim
// (cookie banners, share blocks) are kept once. Text already within the
// budget is returned unchanged.
func Condense(markdown string, maxTokens int) (string, int) {
	total := estimateTokens(markdown)
	if maxTokens <= 0 || total <= maxTokens {
		return markdown, total
	}

	sections := dedupeSections(splitSections(markdown))
	selected := make([]string, 0, len(sections))
	used := 0
	for _, s := range sections {
		if s.tokens == 0 {
			continue
		}
		if used+s.tokens > maxTokens {
			if len(selected) == 0 {
				// a single oversized leading section is cut rather than lost
				cut := truncateRunes(s.text, maxTokens*4)
				selected = append(selected, cut)
				used = estimateTokens(cut)
			}
			break
		}
		selected = append(selected, s.text)
		used += s.tokens
	}
	return strings.Join(selected, "\n\n"), used
}

func splitSections(markdown string) []section {
	var (
		sections []section
		current  strings.Builder
	)
	flush := func() {
		text := strings.TrimSpace(current.String())
		current.Reset()
		if text != "" {
			sections = append(sections, section{text: text, tokens: estimateTokens(text)})
		}
	}
	for _, line := range strings.Split(markdown, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), "#") {
			flush()
		}
		current.WriteString(line)
		current.WriteByte('\n')
	}
	flush()
	return sections
}

func dedupeSections(sections []section) []section {
	if len(sections) <= 1 {
		return sections
	}
	seen := make(map[string]struct{}, len(sections))
	result := make([]section, 0, len(sections))
	for _, s := range sections {
		key := strings.ToLower(strings.Join(strings.Fields(s.text), " "))
		if _, exists := seen[key]; exists {
			continue
		}
		seen[key] = struct{}{}
		result = append(result, s)
	}
	return result
}

func truncateRunes(text string, limit int) string {
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return strings.TrimSpace(string(runes[:limit]))
}

// estimateTokens approximates four characters per token.
func estimateTokens(text string) int {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return 0
	}
	count := len([]rune(trimmed)) / 4
	if count < 1 {
		count = 1
	}
	return count
}
