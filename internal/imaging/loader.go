package imaging

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp" // Register WebP format decoder
)

// DefaultMaxImageBytes caps the size of a fetched image body.
const DefaultMaxImageBytes = 32 << 20

// ProxyPath is the path of the same-origin image proxy endpoint.
const ProxyPath = "/proxy"

var (
	// ErrCrossOrigin is returned for remote image references when the loader
	// has no proxy to route them through.
	ErrCrossOrigin = errors.New("remote image requires a proxy")

	// ErrImageTooLarge is returned when an image body exceeds the size limit.
	ErrImageTooLarge = errors.New("image exceeds size limit")

	// ErrFetchStatus is returned when the proxy answers with a non-2xx status.
	ErrFetchStatus = errors.New("image fetch failed")

	// ErrEmptyReference is returned for an empty image reference.
	ErrEmptyReference = errors.New("empty image reference")

	// ErrLocalFile is returned for file references the loader may not read.
	ErrLocalFile = errors.New("local image file not allowed")
)

// Loader turns image references into decoded images that are safe to draw
// and read back.
//
// Supported references:
//   - data URIs ("data:image/png;base64,...") are decoded inline
//   - http(s) URLs are fetched through the proxy: GET {proxy}/proxy?url=<escaped>
//   - URLs on the proxy's own origin are fetched directly
//   - rooted paths ("/saved/x.png") resolve against the proxy origin
//   - anything else is a file inside the base directory; without a base
//     directory local files are refused
//
// A remote URL is never fetched directly; without a proxy it fails with
// ErrCrossOrigin.
type Loader struct {
	proxyBase *url.URL
	client    *http.Client
	cache     *ImageCache
	maxBytes  int64
	baseDir   string
}

// LoaderOption configures a Loader.
type LoaderOption func(*Loader)

// WithHTTPClient sets the client used for proxy fetches.
func WithHTTPClient(c *http.Client) LoaderOption {
	return func(l *Loader) { l.client = c }
}

// WithMaxBytes sets the maximum accepted image body size.
func WithMaxBytes(n int64) LoaderOption {
	return func(l *Loader) {
		if n > 0 {
			l.maxBytes = n
		}
	}
}

// WithBaseDir sets the directory relative file references resolve against.
// References that would leave it (absolute paths, "..") are refused.
func WithBaseDir(dir string) LoaderOption {
	return func(l *Loader) { l.baseDir = dir }
}

// WithCache replaces the loader's image cache.
func WithCache(c *ImageCache) LoaderOption {
	return func(l *Loader) { l.cache = c }
}

// NewLoader creates a Loader that routes remote references through the proxy
// at proxyBase (scheme and host, e.g. "http://localhost:8080"). An empty
// proxyBase yields a loader that only accepts data URIs and, with
// WithBaseDir, files from the base directory.
func NewLoader(proxyBase string, opts ...LoaderOption) (*Loader, error) {
	l := &Loader{
		client:   &http.Client{Timeout: 30 * time.Second},
		cache:    NewImageCache(),
		maxBytes: DefaultMaxImageBytes,
	}
	if proxyBase != "" {
		u, err := url.Parse(proxyBase)
		if err != nil {
			return nil, fmt.Errorf("invalid proxy base %q: %w", proxyBase, err)
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			return nil, fmt.Errorf("invalid proxy base %q: scheme must be http or https", proxyBase)
		}
		l.proxyBase = u
	}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// Cache returns the loader's image cache.
func (l *Loader) Cache() *ImageCache {
	return l.cache
}

// ProxyURL returns the same-origin proxy URL for a remote image URL.
func (l *Loader) ProxyURL(remote string) (string, error) {
	if l.proxyBase == nil {
		return "", ErrCrossOrigin
	}
	u := *l.proxyBase
	u.Path = strings.TrimSuffix(u.Path, "/") + ProxyPath
	u.RawQuery = url.Values{"url": {remote}}.Encode()
	return u.String(), nil
}

// LoadDrawable resolves ref to a decoded image. Every remote image that ends
// up on a canvas must come through here.
//
// Parameters:
//   - ctx: bounds the proxy or same-origin fetch
//   - ref: a data URI, an http(s) URL, a rooted same-origin path, or a file
//     name relative to the loader's base directory
//
// Returns the decoded image. Decoded remote images and files are cached by
// reference; use LoadFresh for references whose content can change.
//
// # Errors
//
//   - ErrEmptyReference for a blank ref
//   - ErrInvalidDataURL for malformed data URIs
//   - ErrCrossOrigin for remote URLs when no proxy is configured
//   - ErrFetchStatus and ErrImageTooLarge for failed or oversized fetches
//   - ErrLocalFile for file references outside the base directory, or when
//     no base directory is configured
func (l *Loader) LoadDrawable(ctx context.Context, ref string) (image.Image, error) {
	return l.load(ctx, ref, true)
}

// LoadFresh resolves ref like LoadDrawable but never answers from the cache
// and never stores the result. Any entry already cached under ref is
// dropped, so later LoadDrawable calls see the new content too.
//
// Remote edit results go through here: a backend may answer two edits with
// the same URL while the content behind it changes.
func (l *Loader) LoadFresh(ctx context.Context, ref string) (image.Image, error) {
	return l.load(ctx, ref, false)
}

func (l *Loader) load(ctx context.Context, ref string, useCache bool) (image.Image, error) {
	ref = strings.TrimSpace(ref)
	switch {
	case ref == "":
		return nil, ErrEmptyReference

	case strings.HasPrefix(ref, "data:"):
		return DecodeDataURL(ref)

	case isRemote(ref):
		target := ref
		if !l.sameOrigin(ref) {
			proxied, err := l.ProxyURL(ref)
			if err != nil {
				return nil, fmt.Errorf("load %s: %w", ref, err)
			}
			target = proxied
		}
		return l.cached(ref, useCache, func() (image.Image, error) {
			return l.fetch(ctx, target)
		})

	case strings.HasPrefix(ref, "/") && l.proxyBase != nil:
		target := l.proxyBase.ResolveReference(&url.URL{Path: ref}).String()
		return l.cached(target, useCache, func() (image.Image, error) {
			return l.fetch(ctx, target)
		})

	default:
		if l.baseDir == "" {
			return nil, fmt.Errorf("%w: %s (no image directory configured)", ErrLocalFile, ref)
		}
		if !filepath.IsLocal(ref) {
			return nil, fmt.Errorf("%w: %s is outside the image directory", ErrLocalFile, ref)
		}
		return l.cached(filepath.Join(l.baseDir, ref), useCache, func() (image.Image, error) {
			return l.readFile(ref)
		})
	}
}

func (l *Loader) cached(key string, useCache bool, load func() (image.Image, error)) (image.Image, error) {
	if !useCache {
		l.cache.Evict(key)
		return load()
	}
	return l.cache.GetOrLoad(key, load)
}

// readFile decodes name from the base directory. os.OpenInRoot also refuses
// symlinks that lead out of the directory.
func (l *Loader) readFile(name string) (image.Image, error) {
	f, err := os.OpenInRoot(l.baseDir, name)
	if err != nil {
		return nil, fmt.Errorf("failed to open image: %w", err)
	}
	defer f.Close()
	return Decode(f)
}

func (l *Loader) sameOrigin(ref string) bool {
	if l.proxyBase == nil {
		return false
	}
	u, err := url.Parse(ref)
	if err != nil {
		return false
	}
	return u.Scheme == l.proxyBase.Scheme && u.Host == l.proxyBase.Host
}

func (l *Loader) fetch(ctx context.Context, target string) (image.Image, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	resp, err := l.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: %s returned %d", ErrFetchStatus, target, resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, l.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read image: %w", err)
	}
	if int64(len(data)) > l.maxBytes {
		return nil, fmt.Errorf("%w: more than %d bytes", ErrImageTooLarge, l.maxBytes)
	}
	return Decode(bytes.NewReader(data))
}

// Decode decodes a PNG, JPEG, GIF, BMP, TIFF or WebP image, applying EXIF
// orientation.
func Decode(r io.Reader) (image.Image, error) {
	img, err := imaging.Decode(r, imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	return img, nil
}

func isRemote(ref string) bool {
	return strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://")
}
