package slides

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/iago/pptx-generator-back/internal/deck"
	"github.com/iago/pptx-generator-back/internal/domain"
	"github.com/iago/pptx-generator-back/internal/storage"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/html"
)

func newPersister(t *testing.T) (*Persister, string) {
	t.Helper()
	root := t.TempDir()
	files, err := storage.NewFileStore(root)
	require.NoError(t, err)
	return NewPersister(files, zerolog.Nop()), root
}

func TestPersistWrapsBareMarkup(t *testing.T) {
	persister, root := newPersister(t)
	bare := `<h1>Hello % world</h1><p style="color:#BB64F9">sub</p>`

	paths, err := persister.Persist(context.Background(), "job-1", "traefik", []domain.SlideFragment{
		{Ordinal: 1, Markup: bare},
	})
	require.NoError(t, err)
	require.Equal(t, []string{filepath.Join(root, "job-1", "slide01.html")}, paths)

	content, err := os.ReadFile(paths[0])
	require.NoError(t, err)
	text := string(content)
	assert.True(t, strings.HasPrefix(text, "<!DOCTYPE html>"))
	assert.Contains(t, text, "<body>\n"+bare+"\n</body>")
	assert.Contains(t, text, "background: #050A22;")
	assert.Contains(t, text, "width: 960px;")

	doc, err := html.Parse(strings.NewReader(text))
	require.NoError(t, err)
	assert.Equal(t, "html", doc.LastChild.Data)
}

func TestPersistKeepsCompleteDocumentsByteIdentical(t *testing.T) {
	persister, _ := newPersister(t)
	docs := []string{
		"<!DOCTYPE html>\n<html><body><h1>A</h1></body></html>",
		"<html lang=\"en\"><body>B</body></html>",
	}

	paths, err := persister.Persist(context.Background(), "job-2", "", []domain.SlideFragment{
		{Ordinal: 1, Markup: docs[0]},
		{Ordinal: 2, Filename: "custom.html", Markup: docs[1]},
	})
	require.NoError(t, err)
	require.Len(t, paths, 2)
	assert.Equal(t, "custom.html", filepath.Base(paths[1]))

	for i, path := range paths {
		content, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Equal(t, docs[i], string(content))
	}
}

func TestPersistPreservesOrderAndSanitizesNames(t *testing.T) {
	persister, _ := newPersister(t)
	paths, err := persister.Persist(context.Background(), "job-3", "traefik", []domain.SlideFragment{
		{Ordinal: 3, Markup: "<p>c</p>"},
		{Ordinal: 1, Filename: "../escape.html", Markup: "<p>a</p>"},
		{Markup: "<p>third position</p>"},
		{Ordinal: 9, Filename: "slide03.html", Markup: "<p>dup</p>"},
	})
	require.NoError(t, err)

	names := make([]string, 0, len(paths))
	for _, p := range paths {
		names = append(names, filepath.Base(p))
	}
	assert.Equal(t, []string{"slide03.html", "slide01.html", "slide03-2.html", "slide03-3.html"}, names)
}

type failingWriter struct {
	calls  int
	failAt int
}

func (w *failingWriter) Write(_ context.Context, key string, _ []byte) (string, error) {
	w.calls++
	if w.calls == w.failAt {
		return "", errors.New("disk full")
	}
	return key, nil
}

func TestPersistAbortsOnFirstWriteError(t *testing.T) {
	writer := &failingWriter{failAt: 2}
	persister := NewPersister(writer, zerolog.Nop())

	_, err := persister.Persist(context.Background(), "job-4", "traefik", []domain.SlideFragment{
		{Ordinal: 1, Markup: "a"},
		{Ordinal: 2, Markup: "b"},
		{Ordinal: 3, Markup: "c"},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "slide02.html")
	assert.Equal(t, 2, writer.calls)
}

func TestPersistRejectsUnknownBrand(t *testing.T) {
	persister, _ := newPersister(t)
	_, err := persister.Persist(context.Background(), "job-5", "acme", []domain.SlideFragment{{Markup: "x"}})
	assert.Error(t, err)
}

func TestEnsureDocumentUsesPalette(t *testing.T) {
	palette, ok := deck.PaletteFor("traefik")
	require.True(t, ok)
	wrapped := EnsureDocument("<p>x</p>", palette)
	assert.Contains(t, wrapped, "color: #FFFFFF;")
}
