package slides

import (
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/iago/pptx-generator-back/internal/deck"
	"github.com/iago/pptx-generator-back/internal/domain"
	"github.com/rs/zerolog"
)

// FileWriter stores bytes under a root-relative key and returns the file path.
type FileWriter interface {
	Write(ctx context.Context, key string, data []byte) (string, error)
}

// Persister writes generated fragments as standalone HTML documents.
type Persister struct {
	files  FileWriter
	logger zerolog.Logger
}

func NewPersister(files FileWriter, logger zerolog.Logger) *Persister {
	return &Persister{files: files, logger: logger}
}

// Persist writes fragments in order under the job directory and returns the
// written paths in the same order. The first failed write aborts the call.
func (p *Persister) Persist(
	ctx context.Context,
	jobID string,
	brand string,
	fragments []domain.SlideFragment,
) ([]string, error) {
	palette, ok := deck.PaletteFor(brand)
	if !ok {
		return nil, fmt.Errorf("unknown brand %q", brand)
	}
	p.logger.Info().Str("job_id", jobID).Int("slides", len(fragments)).Msg("saving slides")

	used := make(map[string]bool, len(fragments))
	paths := make([]string, 0, len(fragments))
	for i, fragment := range fragments {
		name := fragmentFilename(fragment, i)
		ext := path.Ext(name)
		stem := strings.TrimSuffix(name, ext)
		for n := 2; used[name]; n++ {
			name = fmt.Sprintf("%s-%d%s", stem, n, ext)
		}
		used[name] = true

		written, err := p.files.Write(ctx, jobID+"/"+name, []byte(EnsureDocument(fragment.Markup, palette)))
		if err != nil {
			return nil, fmt.Errorf("persist slide %s: %w", name, err)
		}
		paths = append(paths, written)
		p.logger.Debug().Str("job_id", jobID).Str("file", name).Msg("saved slide")
	}
	return paths, nil
}

// fragmentFilename keeps a supplied name only when it is a plain file name.
func fragmentFilename(fragment domain.SlideFragment, position int) string {
	name := strings.TrimSpace(fragment.Filename)
	if name == "" || strings.ContainsAny(name, `/\`) || name != path.Base(name) || strings.HasPrefix(name, ".") {
		return defaultFilename(fragment, position)
	}
	return name
}

func defaultFilename(fragment domain.SlideFragment, position int) string {
	ordinal := fragment.Ordinal
	if ordinal <= 0 {
		ordinal = position + 1
	}
	return fmt.Sprintf("slide%02d.html", ordinal)
}

// EnsureDocument returns markup unchanged when it is already a full
// document, otherwise wraps it verbatim in a 960x540 page shell.
func EnsureDocument(markup string, palette deck.Palette) string {
	if strings.Contains(markup, "<!DOCTYPE") || strings.Contains(markup, "<html") {
		return markup
	}
	return fmt.Sprintf(documentShell, palette.Background, palette.TextPrimary, markup)
}

const documentShell = `<!DOCTYPE html>
<html>
<head>
  <meta charset="UTF-8">
  <style>
    * { margin: 0; padding: 0; box-sizing: border-box; }
    body {
      width: 960px;
      height: 540px;
      font-family: 'Rubik', Arial, sans-serif;
      background: #%s;
      color: #%s;
      overflow: hidden;
    }
  </style>
</head>
<body>
%s
</body>
</html>`
