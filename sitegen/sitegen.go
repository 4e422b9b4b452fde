// Package sitegen writes fixture sites for benchmarking: pages of dictionary
// text, some of which time themselves, listed by a manifest that pulls part
// of the site in through an include.
package sitegen

import (
	"bytes"
	"fmt"
	"html/template"
	"math/rand"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/pb33f/pagecycle/manifest"
)

const (
	ManifestName    = "pages.manifest"
	SubManifestName = "sub/pages.manifest"
)

// GenerateOptions configures site generation
type GenerateOptions struct {
	PageCount      int    // pages listed directly by the root manifest
	SubPageCount   int    // pages listed by the included manifest (0 = no include)
	OwnTimingEvery int    // every n-th page reports its own time (0 = none)
	Paragraphs     int    // paragraphs per page
	DictionaryPath string // path to word dictionary (default: /usr/share/dict/words)
	Seed           int64  // random seed for reproducibility (0 = use time)
}

// DefaultGenerateOptions provides sensible defaults
var DefaultGenerateOptions = GenerateOptions{
	PageCount:      6,
	SubPageCount:   2,
	OwnTimingEvery: 3,
	Paragraphs:     8,
	DictionaryPath: "/usr/share/dict/words",
}

// Page is one generated page, by its path relative to the site root.
type Page struct {
	Path      string
	Title     string
	OwnTiming bool
}

// Site is a generated site held in memory. Files are keyed by slash
// separated path and Pages are in the order the manifest loads them.
type Site struct {
	Files    map[string][]byte
	Pages    []Page
	Manifest string
}

var pageTemplate = template.Must(template.New("page").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
{{- if .OwnTiming}}
<script>
var pcStart = Date.now();
var pcT0 = performance.now();
window.addEventListener("load", function () {
  setTimeout(function () {
    if (window.tpRecordTime) {
      window.tpRecordTime(performance.now() - pcT0, pcStart);
    }
  }, 0);
});
</script>
{{- end}}
</head>
<body>
<h1>{{.Title}}</h1>
{{- range .Paragraphs}}
<p>{{.}}</p>
{{- end}}
</body>
</html>
`))

type pageData struct {
	Title      string
	OwnTiming  bool
	Paragraphs []string
}

// GenerateInMemory builds the site without touching disk.
func GenerateInMemory(opts GenerateOptions) (*Site, error) {
	if opts.DictionaryPath == "" {
		opts.DictionaryPath = DefaultGenerateOptions.DictionaryPath
	}
	if opts.Paragraphs <= 0 {
		opts.Paragraphs = DefaultGenerateOptions.Paragraphs
	}
	if opts.PageCount < 1 {
		return nil, fmt.Errorf("page count must be at least 1, got %d", opts.PageCount)
	}

	// create local rng (avoid mutating global rand)
	seed := opts.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(seed))

	dict, err := LoadDictionary(opts.DictionaryPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load dictionary: %w", err)
	}

	site := &Site{Files: make(map[string][]byte), Manifest: ManifestName}
	n := 0
	add := func(dir string) (string, error) {
		n++
		p := Page{
			Path:      path.Join(dir, fmt.Sprintf("page-%03d.html", n)),
			Title:     dict.Sentence(3, rng),
			OwnTiming: opts.OwnTimingEvery > 0 && n%opts.OwnTimingEvery == 0,
		}

		data := pageData{Title: p.Title, OwnTiming: p.OwnTiming}
		for i := 0; i < opts.Paragraphs; i++ {
			data.Paragraphs = append(data.Paragraphs, dict.Sentence(8+rng.Intn(24), rng))
		}

		var buf bytes.Buffer
		if err := pageTemplate.Execute(&buf, data); err != nil {
			return "", fmt.Errorf("failed to render %s: %w", p.Path, err)
		}
		site.Files[p.Path] = buf.Bytes()
		site.Pages = append(site.Pages, p)
		return manifestLine(path.Base(p.Path), p.OwnTiming), nil
	}

	var root []string
	root = append(root, "# generated by pagecycle")

	// the include sits in the middle of the root list
	half := (opts.PageCount + 1) / 2
	for i := 0; i < half; i++ {
		line, err := add("")
		if err != nil {
			return nil, err
		}
		root = append(root, line)
	}

	if opts.SubPageCount > 0 {
		sub := []string{"# included from " + ManifestName}
		for i := 0; i < opts.SubPageCount; i++ {
			line, err := add("sub")
			if err != nil {
				return nil, err
			}
			sub = append(sub, line)
		}
		root = append(root, "include "+SubManifestName)
		site.Files[SubManifestName] = []byte(strings.Join(sub, "\n") + "\n")
	}

	for i := half; i < opts.PageCount; i++ {
		line, err := add("")
		if err != nil {
			return nil, err
		}
		root = append(root, line)
	}

	site.Files[ManifestName] = []byte(strings.Join(root, "\n") + "\n")
	return site, nil
}

func manifestLine(ref string, ownTiming bool) string {
	if ownTiming {
		return string(manifest.OwnTimingMarker) + " " + ref
	}
	return ref
}

// WriteTo writes every file of the site under dir.
func (s *Site) WriteTo(dir string) error {
	names := make([]string, 0, len(s.Files))
	for name := range s.Files {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		target := filepath.Join(dir, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
		if err := os.WriteFile(target, s.Files[name], 0644); err != nil {
			return fmt.Errorf("failed to write %s: %w", name, err)
		}
	}
	return nil
}

// GenerateToDir generates a site and writes it under dir, returning the path
// of its manifest.
func GenerateToDir(dir string, opts GenerateOptions) (*Site, string, error) {
	site, err := GenerateInMemory(opts)
	if err != nil {
		return nil, "", err
	}
	if err := site.WriteTo(dir); err != nil {
		return nil, "", err
	}
	return site, filepath.Join(dir, ManifestName), nil
}
