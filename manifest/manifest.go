package manifest

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
)

// OwnTimingMarker flags a page that reports its own load time when it appears
// in the first of two tokens on a manifest line.
const OwnTimingMarker = '%'

// MaxIncludeDepth bounds how deeply include directives may nest.
const MaxIncludeDepth = 32

// MaxLineLength is the longest manifest line the parser accepts, in bytes.
const MaxLineLength = 1 << 20

const includeDirective = "include"

// Page is one entry of a resolved manifest. Pages are immutable once parsed.
type Page struct {
	URL       *url.URL
	OwnTiming bool
}

// Name is the key a page's samples are recorded under.
func (p Page) Name() string {
	if p.URL == nil {
		return ""
	}
	return p.URL.String()
}

func (p Page) String() string {
	if p.OwnTiming {
		return string(OwnTimingMarker) + " " + p.Name()
	}
	return p.Name()
}

// Parse resolves the manifest at source into an ordered page list. Includes are
// expanded depth-first at the point they appear, and every relative URL is
// resolved against the manifest that declared it.
func Parse(ctx context.Context, source string, loader Loader) ([]Page, error) {
	root, err := ResolveSource(source)
	if err != nil {
		return nil, err
	}
	if loader == nil {
		loader = DefaultLoader{}
	}

	p := &parser{ctx: ctx, loader: loader}
	return p.parse(root)
}

// ResolveSource turns a manifest location into a URL. Bare paths become file
// URLs relative to the working directory.
func ResolveSource(source string) (*url.URL, error) {
	source = strings.TrimSpace(source)
	if source == "" {
		return nil, &ParseError{Msg: "manifest location is required"}
	}

	if strings.Contains(source, "://") {
		u, err := url.Parse(source)
		if err != nil {
			return nil, &ParseError{Manifest: source, Msg: "invalid manifest URI", Err: err}
		}
		return u, nil
	}

	abs, err := filepath.Abs(source)
	if err != nil {
		return nil, &ParseError{Manifest: source, Msg: "cannot resolve manifest path", Err: err}
	}
	return &url.URL{Scheme: "file", Path: filepath.ToSlash(abs)}, nil
}

type parser struct {
	ctx    context.Context
	loader Loader
	stack  []string
}

func (p *parser) parse(manifestURL *url.URL) ([]Page, error) {
	if err := p.ctx.Err(); err != nil {
		return nil, err
	}

	name := manifestURL.String()
	p.stack = append(p.stack, name)
	defer func() { p.stack = p.stack[:len(p.stack)-1] }()

	rc, err := p.loader.Open(p.ctx, manifestURL)
	if err != nil {
		return nil, &ParseError{Manifest: name, Msg: "cannot open manifest", Err: err}
	}
	defer rc.Close()

	var pages []Page
	scanner := bufio.NewScanner(rc)
	scanner.Buffer(make([]byte, 0, 64*1024), MaxLineLength)
	lineNo := 0

	for scanner.Scan() {
		lineNo++

		line := scanner.Text()
		if i := strings.IndexByte(line, '#'); i >= 0 {
			line = line[:i]
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		items := strings.Fields(line)

		if items[0] == includeDirective {
			if len(items) != 2 {
				return nil, &ParseError{Manifest: name, Line: lineNo,
					Msg: "include must be followed by the manifest to include"}
			}

			sub, err := manifestURL.Parse(items[1])
			if err != nil {
				return nil, &ParseError{Manifest: name, Line: lineNo,
					Msg: fmt.Sprintf("invalid URI %q", items[1]), Err: err}
			}
			if err := p.checkInclude(name, lineNo, sub); err != nil {
				return nil, err
			}

			subPages, err := p.parse(sub)
			if err != nil {
				return nil, err
			}
			pages = append(pages, subPages...)
			continue
		}

		var flags, spec string
		switch len(items) {
		case 1:
			spec = items[0]
		case 2:
			flags, spec = items[0], items[1]
		default:
			return nil, &ParseError{Manifest: name, Line: lineNo, Msg: "whitespace must be %-escaped"}
		}

		pageURL, err := manifestURL.Parse(spec)
		if err != nil {
			return nil, &ParseError{Manifest: name, Line: lineNo,
				Msg: fmt.Sprintf("invalid URI %q", spec), Err: err}
		}

		pages = append(pages, Page{
			URL:       pageURL,
			OwnTiming: strings.ContainsRune(flags, OwnTimingMarker),
		})
	}

	if err := scanner.Err(); err != nil {
		if errors.Is(err, bufio.ErrTooLong) {
			return nil, &ParseError{Manifest: name, Line: lineNo + 1,
				Msg: fmt.Sprintf("line exceeds %d bytes", MaxLineLength)}
		}
		return nil, &ParseError{Manifest: name, Line: lineNo, Msg: "failed to read manifest", Err: err}
	}

	return pages, nil
}

// checkInclude rejects include cycles and runaway nesting before the
// included manifest is opened.
func (p *parser) checkInclude(parent string, lineNo int, sub *url.URL) error {
	target := sub.String()
	for i, seen := range p.stack {
		if seen == target {
			chain := append(append([]string{}, p.stack[i:]...), target)
			return &ParseError{Manifest: parent, Line: lineNo,
				Msg: "include cycle: " + strings.Join(chain, " -> ")}
		}
	}
	if len(p.stack) >= MaxIncludeDepth {
		return &ParseError{Manifest: parent, Line: lineNo,
			Msg: fmt.Sprintf("includes nested deeper than %d", MaxIncludeDepth)}
	}
	return nil
}
