package media

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"mwlister/internal/xerrors"
)

// Fetcher downloads a single media resource to a local file.
type Fetcher interface {
	Fetch(ctx context.Context, srcURL, destDir, baseName string) (string, error)
}

type HTTPFetcher struct {
	client    *http.Client
	userAgent string
}

func NewHTTPFetcher(client *http.Client, userAgent string) *HTTPFetcher {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPFetcher{client: client, userAgent: userAgent}
}

// Fetch streams srcURL into destDir and returns the local path. The file
// name is derived from the URL; baseName disambiguates collisions across
// listings and assets.
func (f *HTTPFetcher) Fetch(ctx context.Context, srcURL, destDir, baseName string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srcURL, nil)
	if err != nil {
		return "", xerrors.MediaFetch(err, srcURL)
	}
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return "", xerrors.MediaFetch(err, srcURL)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", xerrors.MediaFetch(fmt.Errorf("unexpected status code: %d", resp.StatusCode), srcURL)
	}

	dest := filepath.Join(destDir, fileName(srcURL, baseName))
	out, err := os.Create(dest)
	if err != nil {
		return "", xerrors.MediaFetch(err, srcURL)
	}
	defer out.Close()

	if _, err := io.Copy(out, resp.Body); err != nil {
		os.Remove(dest)
		return "", xerrors.MediaFetch(err, srcURL)
	}

	return dest, nil
}

func fileName(srcURL, baseName string) string {
	name := ""
	if u, err := url.Parse(srcURL); err == nil {
		name = path.Base(u.Path)
	}
	name = sanitize(name)
	if name == "" || name == "." || name == "/" {
		name = uuid.NewString() + ".bin"
	}
	if baseName != "" {
		return baseName + "_" + name
	}
	return name
}

func sanitize(name string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '.' || r == '-' || r == '_':
			return r
		default:
			return '_'
		}
	}, name)
}
