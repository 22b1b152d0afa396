// Package session ties one card page to an editor canvas and serializes
// everything that happens to it: pointer input, filters, remote edits and
// saves.
//
// A session allows a single outstanding remote request. A second Dispatch
// or Save while one is in flight fails with ErrDispatchInFlight instead of
// racing it. Once a session is closed, a late response is dropped and the
// canvas is left as it was.
package session

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/ironsheep/card-canvas/internal/canvas"
	"github.com/ironsheep/card-canvas/internal/design"
	"github.com/ironsheep/card-canvas/internal/imaging"
	"github.com/ironsheep/card-canvas/internal/remote"
)

var (
	// ErrDispatchInFlight is returned when a remote request is already
	// outstanding for the session.
	ErrDispatchInFlight = errors.New("a remote request is already in flight")

	// ErrSessionClosed is returned by every operation on a closed session.
	ErrSessionClosed = errors.New("session closed")

	// ErrNotFound is returned for an unknown session id.
	ErrNotFound = errors.New("session not found")

	// ErrNoBackend is returned when a session has no editor or saver.
	ErrNoBackend = errors.New("no backend configured")
)

// Loader resolves image references to drawable images.
type Loader interface {
	LoadDrawable(ctx context.Context, ref string) (image.Image, error)
}

// Editor performs a remote edit.
type Editor interface {
	Edit(ctx context.Context, kind remote.Kind, req remote.Request) (image.Image, error)
}

// Saver stores a flattened page and returns where it was stored.
type Saver interface {
	Save(ctx context.Context, dataURL string) (string, error)
}

// PointerKind is the type of a pointer event.
type PointerKind string

const (
	PointerDown  PointerKind = "down"
	PointerMove  PointerKind = "move"
	PointerUp    PointerKind = "up"
	PointerLeave PointerKind = "leave"
)

// PointerEvent is one pointer event. When Rect is set, X and Y are client
// coordinates relative to the displayed canvas box; otherwise they are
// logical canvas coordinates.
type PointerEvent struct {
	Kind PointerKind        `json:"type"`
	X    float64            `json:"x"`
	Y    float64            `json:"y"`
	Rect *canvas.ClientRect `json:"rect,omitempty"`
}

// DispatchRequest asks for a remote edit of the working canvas.
type DispatchRequest struct {
	Prompt     string
	Backend    remote.Kind // empty selects the default backend
	ExtraImage image.Image
	// WholeImage skips the mask even when something was erased.
	WholeImage bool
}

// Snapshot describes the session state.
type Snapshot struct {
	ID             string         `json:"id"`
	DesignID       string         `json:"designId"`
	Page           int            `json:"page"`
	Size           canvas.Size    `json:"size"`
	Tool           string         `json:"tool"`
	Gesture        string         `json:"gesture"`
	Filters        canvas.Filters `json:"filters"`
	PendingText    string         `json:"pendingText,omitempty"`
	HasAnnotations bool           `json:"hasAnnotations"`
	Dispatching    bool           `json:"dispatching"`
}

// Config describes the page a session edits and its collaborators.
type Config struct {
	ID     string
	Design *design.Design
	Page   int
	Size   canvas.Size
	Editor Editor
	Saver  Saver
	Logger zerolog.Logger
	Now    func() time.Time

	guard *dispatchGuard
}

// Session is one page open in the editor.
type Session struct {
	id     string
	design *design.Design
	page   int
	editor Editor
	saver  Saver
	guard  *dispatchGuard
	logger zerolog.Logger
	now    func() time.Time

	mu       sync.Mutex
	doc      *canvas.Document
	engine   *canvas.Engine
	closed   bool
	lastUsed time.Time
}

// Open loads the page's current image (its edited image when there is one)
// through loader and returns a session editing it.
func Open(ctx context.Context, loader Loader, cfg Config) (*Session, error) {
	if cfg.Design == nil {
		return nil, errors.New("design is required")
	}
	if cfg.Size == (canvas.Size{}) {
		cfg.Size = canvas.DefaultLogicalSize
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.guard == nil {
		cfg.guard = &dispatchGuard{}
	}

	ref, err := cfg.Design.ResolvedImage(cfg.Page)
	if err != nil {
		return nil, err
	}
	img, err := loader.LoadDrawable(ctx, ref)
	if err != nil {
		return nil, fmt.Errorf("load page %d: %w", cfg.Page, err)
	}
	doc, err := canvas.NewDocument(img, cfg.Size)
	if err != nil {
		return nil, err
	}

	return &Session{
		id:       cfg.ID,
		design:   cfg.Design,
		page:     cfg.Page,
		editor:   cfg.Editor,
		saver:    cfg.Saver,
		guard:    cfg.guard,
		logger:   cfg.Logger.With().Str("session", cfg.ID).Int("page", cfg.Page).Logger(),
		now:      cfg.Now,
		doc:      doc,
		engine:   canvas.NewEngine(doc),
		lastUsed: cfg.Now(),
	}, nil
}

// ID returns the session id.
func (s *Session) ID() string { return s.id }

// Design returns the design the page belongs to.
func (s *Session) Design() *design.Design { return s.design }

// Page returns the index of the page being edited.
func (s *Session) Page() int { return s.page }

// with runs fn under the session lock after checking the session is open.
func (s *Session) with(fn func() error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSessionClosed
	}
	s.lastUsed = s.now()
	return fn()
}

// Pointer feeds one pointer event to the stroke engine. Events against a
// display box that has no size yet fail with canvas.ErrCanvasNotReady and
// change nothing.
func (s *Session) Pointer(ev PointerEvent) error {
	return s.with(func() error {
		p := canvas.Point{X: ev.X, Y: ev.Y}
		if ev.Rect != nil {
			mapped, err := canvas.MapPoint(ev.X, ev.Y, *ev.Rect, s.doc.Size())
			if err != nil {
				return err
			}
			p = mapped
		}
		switch ev.Kind {
		case PointerDown:
			return s.engine.PointerDown(p)
		case PointerMove:
			s.engine.PointerMove(p)
		case PointerUp:
			s.engine.PointerUp()
		case PointerLeave:
			s.engine.PointerLeave()
		default:
			return fmt.Errorf("unknown pointer event %q", ev.Kind)
		}
		return nil
	})
}

// SetTool selects the active tool.
func (s *Session) SetTool(t canvas.Tool) error {
	return s.with(func() error {
		s.engine.SetTool(t)
		return nil
	})
}

// SetInk sets the handwriting colour and width.
func (s *Session) SetInk(style canvas.InkStyle) error {
	return s.with(func() error { return s.engine.SetInk(style) })
}

// SetPendingText stages text for the next click with the text tool.
func (s *Session) SetPendingText(style canvas.TextStyle, text string) error {
	return s.with(func() error { return s.engine.SetPendingText(style, text) })
}

// EraseRegion cuts a rectangle out of the working canvas.
func (s *Session) EraseRegion(r image.Rectangle) error {
	return s.with(func() error {
		s.doc.EraseRegion(r)
		return nil
	})
}

// SetFilters redraws the page with new filter values.
func (s *Session) SetFilters(f canvas.Filters) error {
	return s.with(func() error { return s.doc.SetFilters(f) })
}

// ResetFilters restores neutral filters, keeping annotations.
func (s *Session) ResetFilters() error {
	return s.with(func() error {
		s.doc.ResetFilters()
		return nil
	})
}

// ResetAll drops filters, annotations and pending text.
func (s *Session) ResetAll() error {
	return s.with(func() error {
		s.engine.Cancel()
		s.doc.ResetAll()
		return nil
	})
}

// Working returns the flattened working canvas.
func (s *Session) Working() (*image.RGBA, error) {
	var out *image.RGBA
	err := s.with(func() error {
		out = s.doc.Working()
		return nil
	})
	return out, err
}

// Mask builds the inpainting mask for the current canvas.
func (s *Session) Mask() (*canvas.Mask, error) {
	var out *canvas.Mask
	err := s.with(func() error {
		out = s.doc.BuildMask()
		return nil
	})
	return out, err
}

// SampleColor reads one pixel of the working canvas.
func (s *Session) SampleColor(x, y int) (*imaging.ColorResult, error) {
	var out *imaging.ColorResult
	err := s.with(func() error {
		var err error
		out, err = imaging.SampleColor(s.doc.Working(), x, y)
		return err
	})
	return out, err
}

// Snapshot returns the session state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	text, _ := s.engine.PendingText()
	return Snapshot{
		ID:             s.id,
		DesignID:       s.design.ID,
		Page:           s.page,
		Size:           s.doc.Size(),
		Tool:           s.engine.Tool().String(),
		Gesture:        s.engine.State().String(),
		Filters:        s.doc.Filters(),
		PendingText:    text,
		HasAnnotations: s.doc.HasAnnotations(),
		Dispatching:    s.guard.Busy(s.id),
	}
}

// Dispatch sends the working canvas, and the mask when something was
// erased, to a remote editor. On success the result becomes the new page
// source. On failure, or when the session was closed while waiting, the
// canvas is unchanged.
func (s *Session) Dispatch(ctx context.Context, req DispatchRequest) error {
	if s.editor == nil {
		return fmt.Errorf("%w: editor", ErrNoBackend)
	}
	if s.Closed() {
		return ErrSessionClosed
	}
	if err := s.guard.TryLock(s.id); err != nil {
		return err
	}
	defer s.guard.Unlock(s.id)

	var editReq remote.Request
	err := s.with(func() error {
		editReq = remote.Request{Prompt: req.Prompt, Image: s.doc.Working(), ExtraImage: req.ExtraImage}
		if !req.WholeImage {
			if m := s.doc.BuildMask(); m.HasTransparency {
				editReq.Mask = m.Image
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	start := s.now()
	img, err := s.editor.Edit(ctx, req.Backend, editReq)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		s.logger.Info().Msg("discarding edit result for closed session")
		return ErrSessionClosed
	}
	s.engine.Cancel()
	s.doc.ReplaceSource(img)
	s.lastUsed = s.now()
	s.logger.Info().Dur("duration", s.now().Sub(start)).Bool("masked", editReq.Mask != nil).Msg("edit applied")
	return nil
}

// Save flattens the canvas, stores it and records the stored image as the
// page's edited image in the design.
func (s *Session) Save(ctx context.Context) (string, error) {
	if s.saver == nil {
		return "", fmt.Errorf("%w: saver", ErrNoBackend)
	}
	if s.Closed() {
		return "", ErrSessionClosed
	}
	if err := s.guard.TryLock(s.id); err != nil {
		return "", err
	}
	defer s.guard.Unlock(s.id)

	working, err := s.Working()
	if err != nil {
		return "", err
	}
	dataURL, err := imaging.EncodeDataURL(working)
	if err != nil {
		return "", err
	}
	path, err := s.saver.Save(ctx, dataURL)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return "", ErrSessionClosed
	}
	if err := s.design.CommitPageEdit(s.page, path); err != nil {
		return "", err
	}
	s.logger.Info().Str("path", path).Msg("page saved")
	return path, nil
}

// Close ends the session. It is safe to call more than once.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
}

// Closed reports whether Close has been called.
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// LastUsed returns the time of the last operation on the session.
func (s *Session) LastUsed() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastUsed
}
