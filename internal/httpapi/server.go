// Package httpapi is the HTTP surface of card-canvas: the image proxy and
// save-image endpoints the editing pipeline depends on, a JSON API over
// editing sessions, and the template registry.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/ironsheep/card-canvas/internal/canvas"
	"github.com/ironsheep/card-canvas/internal/design"
	"github.com/ironsheep/card-canvas/internal/imaging"
	"github.com/ironsheep/card-canvas/internal/remote"
	"github.com/ironsheep/card-canvas/internal/session"
	"github.com/ironsheep/card-canvas/internal/templates"
)

// maxBodyBytes bounds JSON request bodies. Save requests carry a whole page
// as a data URL, so this is generous.
const maxBodyBytes = 64 << 20

// errBadRequest marks request decoding and validation failures.
var errBadRequest = errors.New("bad request")

// Config holds the collaborators of a Server. Nil Sessions or Templates
// leave the matching routes unregistered.
type Config struct {
	Sessions  *session.Manager
	Templates *templates.Registry
	Files     *FileStore
	Proxy     *Proxy
	Loader    session.Loader
	Logger    zerolog.Logger
}

// Server routes HTTP requests.
type Server struct {
	sessions  *session.Manager
	templates *templates.Registry
	files     *FileStore
	proxy     *Proxy
	loader    session.Loader
	logger    zerolog.Logger
	mux       *http.ServeMux
}

// New creates a server and registers its routes.
func New(cfg Config) *Server {
	s := &Server{
		sessions:  cfg.Sessions,
		templates: cfg.Templates,
		files:     cfg.Files,
		proxy:     cfg.Proxy,
		loader:    cfg.Loader,
		logger:    cfg.Logger,
		mux:       http.NewServeMux(),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /healthz", s.handleHealth)
	if s.proxy != nil {
		s.mux.Handle("GET "+imaging.ProxyPath, s.proxy)
	}
	if s.files != nil {
		s.mux.HandleFunc("POST /save-image", s.handleSaveImage)
		s.mux.HandleFunc("GET "+SavedPath+"{name}", s.handleSaved)
	}
	if s.sessions != nil {
		s.sessionRoutes()
	}
	if s.templates != nil {
		s.templateRoutes()
	}
}

// Handler returns the root handler with request logging.
func (s *Server) Handler() http.Handler {
	return s.logRequests(s.mux)
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", addr).Msg("http server listening")
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{"status": "ok"}
	if s.sessions != nil {
		resp["sessions"] = len(s.sessions.IDs())
	}
	writeJSON(w, http.StatusOK, resp)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rec.status).
			Dur("duration", time.Since(start)).
			Msg("request")
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError answers with {"error": ...} and a status derived from err.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status >= 500 {
		s.logger.Error().Err(err).Int("status", status).Msg("request failed")
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, errBadRequest),
		errors.Is(err, canvas.ErrCanvasNotReady),
		errors.Is(err, canvas.ErrFilterRange),
		errors.Is(err, canvas.ErrUnknownFont),
		errors.Is(err, design.ErrPageIndex),
		errors.Is(err, imaging.ErrInvalidDataURL),
		errors.Is(err, imaging.ErrEmptyReference),
		errors.Is(err, remote.ErrUnknownBackend),
		errors.Is(err, remote.ErrMaskRequired),
		errors.Is(err, remote.ErrEmptyPrompt),
		errors.Is(err, templates.ErrInvalidTemplate):
		return http.StatusBadRequest
	case errors.Is(err, session.ErrNotFound),
		errors.Is(err, templates.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, session.ErrDispatchInFlight):
		return http.StatusConflict
	case errors.Is(err, session.ErrSessionClosed):
		return http.StatusGone
	case errors.Is(err, imaging.ErrImageTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, remote.ErrBackendStatus),
		errors.Is(err, remote.ErrMalformedResponse),
		errors.Is(err, imaging.ErrFetchStatus),
		errors.Is(err, imaging.ErrCrossOrigin):
		return http.StatusBadGateway
	case errors.Is(err, session.ErrNoBackend):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}

// decodeJSON reads a JSON body into v. An empty body leaves v untouched.
func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("%w: %v", errBadRequest, err)
	}
	return nil
}

func badRequest(err error) error {
	return fmt.Errorf("%w: %v", errBadRequest, err)
}
