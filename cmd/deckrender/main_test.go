package main

import (
	"archive/zip"
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFragments(t *testing.T, dir string, fragments map[string]string) {
	t.Helper()
	for name, markup := range fragments {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(markup), 0o644))
	}
}

func TestCollectFragmentsSortsAndFilters(t *testing.T) {
	dir := t.TempDir()
	writeFragments(t, dir, map[string]string{
		"slide02.html": "<h1>Two</h1>",
		"slide01.HTML": "<h1>One</h1>",
		"notes.txt":    "ignored",
	})
	require.NoError(t, os.Mkdir(filepath.Join(dir, "nested.html"), 0o755))

	fragments, err := collectFragments(dir)
	require.NoError(t, err)
	require.Len(t, fragments, 2)
	assert.Equal(t, "slide01.HTML", filepath.Base(fragments[0]))
	assert.Equal(t, "slide02.html", filepath.Base(fragments[1]))
}

func TestRenderCommandWritesDeck(t *testing.T) {
	dir := t.TempDir()
	writeFragments(t, dir, map[string]string{
		"slide01.html": "<h1>Opening</h1><p>Why we are here</p>",
		"slide02.html": "<h1>Plan</h1><ul><li>Ship</li><li>Measure</li></ul>",
	})
	output := filepath.Join(t.TempDir(), "deck.pptx")

	var stdout, stderr bytes.Buffer
	cmd := newRootCommand()
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs([]string{"render", dir, "--output", output, "--log-level", "error"})

	require.NoError(t, cmd.Execute())
	assert.Contains(t, stdout.String(), "2 of 2 slides rendered")

	archive, err := zip.OpenReader(output)
	require.NoError(t, err)
	defer archive.Close()
	names := make([]string, 0, len(archive.File))
	for _, file := range archive.File {
		names = append(names, file.Name)
	}
	assert.Contains(t, names, "ppt/slides/slide2.xml")
}

func TestRenderCommandRejectsUnknownBrand(t *testing.T) {
	dir := t.TempDir()
	writeFragments(t, dir, map[string]string{"slide01.html": "<h1>One</h1>"})

	cmd := newRootCommand()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"render", dir, "--brand", "acme", "--output", filepath.Join(t.TempDir(), "x.pptx")})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown brand")
}

func TestRenderCommandRequiresFragments(t *testing.T) {
	cmd := newRootCommand()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"render", t.TempDir()})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no .html fragments")
}

func TestBrandsCommandListsPalettes(t *testing.T) {
	var stdout bytes.Buffer
	cmd := newRootCommand()
	cmd.SetOut(&stdout)
	cmd.SetArgs([]string{"brands"})

	require.NoError(t, cmd.Execute())
	assert.Contains(t, strings.Fields(stdout.String()), "traefik")
}
