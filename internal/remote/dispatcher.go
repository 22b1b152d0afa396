package remote

import (
	"context"
	"fmt"
	"image"
	"net/http"
	"sort"
	"time"

	"github.com/rs/zerolog"
)

// Loader resolves an image reference through the same-origin proxy.
// LoadFresh must bypass any cache: backends may reuse a result URL for
// different content.
type Loader interface {
	LoadFresh(ctx context.Context, ref string) (image.Image, error)
}

// Dispatcher routes edit requests to the configured backends.
type Dispatcher struct {
	backends map[Kind]*Backend
	fallback Kind
	loader   Loader
	client   *http.Client
	logger   zerolog.Logger
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithBackend registers an endpoint for kind.
func WithBackend(kind Kind, endpoint string) Option {
	return func(d *Dispatcher) {
		if endpoint != "" {
			d.backends[kind] = &Backend{Kind: kind, Endpoint: endpoint}
		}
	}
}

// WithHTTPClient sets the client used for backend requests.
func WithHTTPClient(c *http.Client) Option {
	return func(d *Dispatcher) { d.client = c }
}

// WithLogger sets the dispatcher's logger.
func WithLogger(l zerolog.Logger) Option {
	return func(d *Dispatcher) { d.logger = l }
}

// NewDispatcher creates a dispatcher that uses fallback when a request names
// no backend and loads results through loader.
func NewDispatcher(loader Loader, fallback Kind, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		backends: make(map[Kind]*Backend),
		fallback: fallback,
		loader:   loader,
		client:   &http.Client{Timeout: 120 * time.Second},
		logger:   zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	for _, b := range d.backends {
		b.client = d.client
	}
	return d
}

// Default returns the backend used when a request names none.
func (d *Dispatcher) Default() Kind {
	return d.fallback
}

// Backends returns the configured backend kinds in name order.
func (d *Dispatcher) Backends() []Kind {
	kinds := make([]Kind, 0, len(d.backends))
	for k := range d.backends {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}

// Edit submits req to the kind backend (or the default) and returns the
// decoded result.
//
// Parameters:
//   - ctx: bounds both the backend request and the result download
//   - kind: the backend to use; empty selects the dispatcher's default
//   - req: prompt, page image, optional mask and optional reference image
//
// Returns the result image as served by the backend, not yet redrawn at the
// canvas's logical size. The result is always downloaded again, never taken
// from the loader's cache, so a backend that overwrites one result URL
// still yields the latest image.
//
// # Errors
//
// Nothing is returned on any failure, so callers can leave their canvas
// untouched. Failures wrap ErrUnknownBackend, ErrMaskRequired,
// ErrBackendStatus, ErrMalformedResponse, or the loader's error for the
// result download. There is no automatic retry.
func (d *Dispatcher) Edit(ctx context.Context, kind Kind, req Request) (image.Image, error) {
	if kind == "" {
		kind = d.fallback
	}
	b, ok := d.backends[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, kind)
	}

	start := time.Now()
	log := d.logger.With().Str("backend", string(kind)).Bool("mask", req.Mask != nil && kind.MaskPolicy() != MaskUnused).Logger()
	log.Debug().Msg("submitting edit")

	ref, err := b.Submit(ctx, req)
	if err != nil {
		log.Warn().Err(err).Dur("duration", time.Since(start)).Msg("edit failed")
		return nil, err
	}

	img, err := d.loader.LoadFresh(ctx, ref)
	if err != nil {
		log.Warn().Err(err).Str("result", ref).Msg("edit result could not be loaded")
		return nil, fmt.Errorf("load edit result: %w", err)
	}

	log.Info().Str("result", ref).Dur("duration", time.Since(start)).Msg("edit complete")
	return img, nil
}
