// Package templates is the card template registry.
//
// A Registry is built once per process around a Store. MemoryStore serves
// tests and single-process use; SQLStore persists templates in SQLite,
// PostgreSQL or MySQL. A directory of JSON template files can seed the
// registry and keep it in sync while the server runs (see Watcher).
package templates

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ironsheep/card-canvas/internal/design"
)

var (
	// ErrNotFound is returned for an unknown template id.
	ErrNotFound = errors.New("template not found")

	// ErrInvalidTemplate is returned when a template fails validation.
	ErrInvalidTemplate = errors.New("invalid template")
)

// Template is a card layout users start a design from.
type Template struct {
	ID        string        `json:"id"`
	Name      string        `json:"name"`
	Category  string        `json:"category"`
	Thumbnail string        `json:"thumbnail,omitempty"`
	Pages     []design.Page `json:"pages"`
	UpdatedAt time.Time     `json:"updatedAt"`
}

// Validate checks the fields every stored template must have.
func (t Template) Validate() error {
	switch {
	case strings.TrimSpace(t.ID) == "":
		return fmt.Errorf("%w: id is required", ErrInvalidTemplate)
	case len(t.ID) > 191:
		return fmt.Errorf("%w: id longer than 191 bytes", ErrInvalidTemplate)
	case strings.TrimSpace(t.Name) == "":
		return fmt.Errorf("%w: name is required", ErrInvalidTemplate)
	case len(t.Pages) == 0:
		return fmt.Errorf("%w: at least one page is required", ErrInvalidTemplate)
	}
	return nil
}

// Category is a template category with the number of templates in it.
type Category struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// Store persists templates.
type Store interface {
	Get(ctx context.Context, id string) (Template, error)
	List(ctx context.Context) ([]Template, error)
	Put(ctx context.Context, t Template) error
	Delete(ctx context.Context, id string) error
	Close() error
}

// Registry is the template service.
type Registry struct {
	store  Store
	now    func() time.Time
	logger zerolog.Logger
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithLogger sets the registry's logger.
func WithLogger(l zerolog.Logger) RegistryOption {
	return func(r *Registry) { r.logger = l }
}

// WithClock overrides the time source used for UpdatedAt.
func WithClock(now func() time.Time) RegistryOption {
	return func(r *Registry) { r.now = now }
}

// NewRegistry creates a registry over store.
func NewRegistry(store Store, opts ...RegistryOption) *Registry {
	r := &Registry{store: store, now: time.Now, logger: zerolog.Nop()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Get returns the template with the given id.
func (r *Registry) Get(ctx context.Context, id string) (Template, error) {
	return r.store.Get(ctx, id)
}

// List returns templates sorted by name. A non-empty category filters the
// result, ignoring case.
func (r *Registry) List(ctx context.Context, category string) ([]Template, error) {
	all, err := r.store.List(ctx)
	if err != nil {
		return nil, err
	}
	out := all[:0]
	for _, t := range all {
		if category == "" || strings.EqualFold(t.Category, category) {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// Upsert stores t, assigning an id when it has none and stamping UpdatedAt.
func (r *Registry) Upsert(ctx context.Context, t Template) (Template, error) {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	t.Category = strings.TrimSpace(t.Category)
	t.UpdatedAt = r.now().UTC().Truncate(time.Millisecond)
	if err := t.Validate(); err != nil {
		return Template{}, err
	}
	if err := r.store.Put(ctx, t); err != nil {
		return Template{}, fmt.Errorf("store template %s: %w", t.ID, err)
	}
	r.logger.Debug().Str("template", t.ID).Str("category", t.Category).Msg("template stored")
	return t, nil
}

// Remove deletes the template with the given id.
func (r *Registry) Remove(ctx context.Context, id string) error {
	if err := r.store.Delete(ctx, id); err != nil {
		return err
	}
	r.logger.Debug().Str("template", id).Msg("template removed")
	return nil
}

// Categories returns every category in use, sorted by name.
func (r *Registry) Categories(ctx context.Context) ([]Category, error) {
	all, err := r.store.List(ctx)
	if err != nil {
		return nil, err
	}
	counts := make(map[string]int)
	for _, t := range all {
		if t.Category != "" {
			counts[t.Category]++
		}
	}
	out := make([]Category, 0, len(counts))
	for name, n := range counts {
		out = append(out, Category{Name: name, Count: n})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// NewDesign starts a design from a template.
func (r *Registry) NewDesign(ctx context.Context, templateID string) (*design.Design, error) {
	t, err := r.Get(ctx, templateID)
	if err != nil {
		return nil, err
	}
	return design.New(uuid.NewString(), t.Name, t.Pages), nil
}

// Close closes the underlying store.
func (r *Registry) Close() error {
	return r.store.Close()
}
