package manifest

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// Loader opens the manifest document a URL points at.
type Loader interface {
	Open(ctx context.Context, u *url.URL) (io.ReadCloser, error)
}

// DefaultLoader reads file URLs from disk and fetches http(s) URLs.
type DefaultLoader struct {
	Client *http.Client
}

func (l DefaultLoader) Open(ctx context.Context, u *url.URL) (io.ReadCloser, error) {
	switch u.Scheme {
	case "file":
		return os.Open(filepath.FromSlash(u.Path))

	case "http", "https":
		client := l.Client
		if client == nil {
			client = http.DefaultClient
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
		if err != nil {
			return nil, err
		}
		resp, err := client.Do(req)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			resp.Body.Close()
			return nil, fmt.Errorf("unexpected status %s", resp.Status)
		}
		return resp.Body, nil

	default:
		return nil, fmt.Errorf("unsupported manifest scheme %q", u.Scheme)
	}
}

// FSLoader serves file URLs out of a file system, with the URL path taken
// relative to the file system root.
type FSLoader struct {
	FS fs.FS
}

func (l FSLoader) Open(_ context.Context, u *url.URL) (io.ReadCloser, error) {
	if u.Scheme != "file" {
		return nil, fmt.Errorf("unsupported manifest scheme %q", u.Scheme)
	}
	name := strings.TrimPrefix(path.Clean(u.Path), "/")
	return l.FS.Open(name)
}
