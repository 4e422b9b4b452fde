package sitegen

import (
	"context"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"testing/fstest"

	"github.com/pb33f/pagecycle/manifest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateInMemory_ManifestMatchesPages(t *testing.T) {
	site, err := GenerateInMemory(GenerateOptions{
		PageCount:      5,
		SubPageCount:   2,
		OwnTimingEvery: 2,
		Paragraphs:     2,
		DictionaryPath: "/nonexistent/words",
		Seed:           42,
	})
	require.NoError(t, err)
	require.Len(t, site.Pages, 7)

	files := fstest.MapFS{}
	for name, data := range site.Files {
		files[name] = &fstest.MapFile{Data: data}
	}

	pages, err := manifest.Parse(context.Background(), "file:///"+site.Manifest, manifest.FSLoader{FS: files})
	require.NoError(t, err)
	require.Len(t, pages, len(site.Pages))

	for i, p := range pages {
		assert.Equal(t, "file:///"+site.Pages[i].Path, p.Name())
		assert.Equal(t, site.Pages[i].OwnTiming, p.OwnTiming, p.Name())
	}

	// the include sits between the two halves of the root list
	assert.True(t, strings.HasPrefix(site.Pages[3].Path, "sub/"))
	assert.True(t, strings.HasPrefix(site.Pages[4].Path, "sub/"))
	assert.Contains(t, string(site.Files[ManifestName]), "include "+SubManifestName)
}

func TestGenerateInMemory_OwnTimingPagesReport(t *testing.T) {
	site, err := GenerateInMemory(GenerateOptions{PageCount: 3, OwnTimingEvery: 3, Seed: 1})
	require.NoError(t, err)

	for _, p := range site.Pages {
		html := string(site.Files[p.Path])
		assert.Equal(t, p.OwnTiming, strings.Contains(html, "tpRecordTime"), p.Path)
		assert.Contains(t, html, "<h1>")
	}
	assert.True(t, site.Pages[2].OwnTiming)
	assert.NotContains(t, site.Files, SubManifestName)
}

func TestGenerateInMemory_Reproducible(t *testing.T) {
	opts := GenerateOptions{PageCount: 2, SubPageCount: 1, Seed: 7}

	a, err := GenerateInMemory(opts)
	require.NoError(t, err)
	b, err := GenerateInMemory(opts)
	require.NoError(t, err)

	assert.Equal(t, a.Files, b.Files)
}

func TestGenerateInMemory_InvalidCount(t *testing.T) {
	_, err := GenerateInMemory(GenerateOptions{PageCount: 0})
	assert.Error(t, err)
}

func TestGenerateToDir(t *testing.T) {
	dir := t.TempDir()

	site, manifestPath, err := GenerateToDir(dir, GenerateOptions{PageCount: 2, SubPageCount: 1, Seed: 3})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, ManifestName), manifestPath)

	pages, err := manifest.Parse(context.Background(), manifestPath, nil)
	require.NoError(t, err)
	require.Len(t, pages, 3)

	for _, p := range site.Pages {
		_, err := os.Stat(filepath.Join(dir, filepath.FromSlash(p.Path)))
		assert.NoError(t, err)
	}
}

func TestDictionary(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "words")
	require.NoError(t, os.WriteFile(path, []byte("Alpha\nbe\nbeta1\ngamma\n"), 0644))

	dict, err := LoadDictionary(path)
	require.NoError(t, err)
	assert.Equal(t, 2, dict.Size())

	rng := rand.New(rand.NewSource(1))
	s := dict.Sentence(3, rng)
	assert.True(t, strings.HasSuffix(s, "."))
	assert.Len(t, strings.Fields(s), 3)
	assert.Equal(t, "", dict.Sentence(0, rng))

	empty := filepath.Join(dir, "empty")
	require.NoError(t, os.WriteFile(empty, []byte("1\n2\n"), 0644))
	_, err = LoadDictionary(empty)
	assert.Error(t, err)

	fallback, err := LoadDictionary(filepath.Join(dir, "missing"))
	require.NoError(t, err)
	assert.Equal(t, len(fallbackWords), fallback.Size())
}
