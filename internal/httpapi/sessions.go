package httpapi

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/color"
	"net/http"
	"strconv"

	"github.com/ironsheep/card-canvas/internal/canvas"
	"github.com/ironsheep/card-canvas/internal/design"
	"github.com/ironsheep/card-canvas/internal/imaging"
	"github.com/ironsheep/card-canvas/internal/remote"
	"github.com/ironsheep/card-canvas/internal/session"
)

func (s *Server) sessionRoutes() {
	s.mux.HandleFunc("POST /sessions", s.handleOpenSession)
	s.mux.HandleFunc("GET /sessions", s.handleListSessions)
	s.mux.HandleFunc("GET /sessions/{id}", s.withSession(s.handleSnapshot))
	s.mux.HandleFunc("DELETE /sessions/{id}", s.handleCloseSession)
	s.mux.HandleFunc("GET /sessions/{id}/design", s.withSession(s.handleSessionDesign))
	s.mux.HandleFunc("POST /sessions/{id}/pointer", s.withSession(s.handlePointer))
	s.mux.HandleFunc("POST /sessions/{id}/tool", s.withSession(s.handleTool))
	s.mux.HandleFunc("POST /sessions/{id}/text", s.withSession(s.handleText))
	s.mux.HandleFunc("POST /sessions/{id}/erase", s.withSession(s.handleEraseRect))
	s.mux.HandleFunc("POST /sessions/{id}/filters", s.withSession(s.handleFilters))
	s.mux.HandleFunc("POST /sessions/{id}/filters/reset", s.withSession(s.handleResetFilters))
	s.mux.HandleFunc("POST /sessions/{id}/reset", s.withSession(s.handleResetAll))
	s.mux.HandleFunc("POST /sessions/{id}/edit", s.withSession(s.handleEdit))
	s.mux.HandleFunc("POST /sessions/{id}/save", s.withSession(s.handleSave))
	s.mux.HandleFunc("GET /sessions/{id}/image", s.withSession(s.handleImage))
	s.mux.HandleFunc("GET /sessions/{id}/mask", s.withSession(s.handleMask))
	s.mux.HandleFunc("GET /sessions/{id}/color", s.withSession(s.handleColor))
}

type sessionHandler func(w http.ResponseWriter, r *http.Request, sess *session.Session)

func (s *Server) withSession(h sessionHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, err := s.sessions.Get(r.PathValue("id"))
		if err != nil {
			s.writeError(w, err)
			return
		}
		h(w, r, sess)
	}
}

// openRequest starts a session from an inline design or a template.
type openRequest struct {
	Design     *design.Design `json:"design,omitempty"`
	TemplateID string         `json:"templateId,omitempty"`
	Page       int            `json:"page"`
}

func (s *Server) handleOpenSession(w http.ResponseWriter, r *http.Request) {
	var req openRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, err)
		return
	}

	d := req.Design
	switch {
	case d != nil:
	case req.TemplateID != "" && s.templates != nil:
		var err error
		if d, err = s.templates.NewDesign(r.Context(), req.TemplateID); err != nil {
			s.writeError(w, err)
			return
		}
	default:
		s.writeError(w, badRequest(fmt.Errorf("design or templateId is required")))
		return
	}

	sess, err := s.sessions.Open(r.Context(), d, req.Page)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, sess.Snapshot())
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]string{"sessions": s.sessions.IDs()})
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	writeJSON(w, http.StatusOK, sess.Snapshot())
}

func (s *Server) handleCloseSession(w http.ResponseWriter, r *http.Request) {
	if err := s.sessions.Close(r.PathValue("id")); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSessionDesign(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	writeJSON(w, http.StatusOK, sess.Design())
}

// handlePointer accepts one event object or an array of events. Events are
// applied in order; the first failure stops the batch.
func (s *Server) handlePointer(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	var raw json.RawMessage
	if err := decodeJSON(r, &raw); err != nil {
		s.writeError(w, err)
		return
	}

	var events []session.PointerEvent
	trimmed := bytes.TrimSpace(raw)
	switch {
	case len(trimmed) == 0:
	case trimmed[0] == '[':
		if err := json.Unmarshal(trimmed, &events); err != nil {
			s.writeError(w, badRequest(err))
			return
		}
	default:
		var ev session.PointerEvent
		if err := json.Unmarshal(trimmed, &ev); err != nil {
			s.writeError(w, badRequest(err))
			return
		}
		events = append(events, ev)
	}

	for i, ev := range events {
		if err := sess.Pointer(ev); err != nil {
			s.writeError(w, fmt.Errorf("event %d: %w", i, err))
			return
		}
	}
	writeJSON(w, http.StatusOK, sess.Snapshot())
}

type toolRequest struct {
	Tool  string  `json:"tool"`
	Color string  `json:"color,omitempty"`
	Width float64 `json:"width,omitempty"`
}

func (s *Server) handleTool(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	var req toolRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	tool, err := canvas.ParseTool(req.Tool)
	if err != nil {
		s.writeError(w, badRequest(err))
		return
	}
	if req.Color != "" || req.Width != 0 {
		style, err := inkStyle(req.Color, req.Width)
		if err != nil {
			s.writeError(w, err)
			return
		}
		if err := sess.SetInk(style); err != nil {
			s.writeError(w, badRequest(err))
			return
		}
	}
	if err := sess.SetTool(tool); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess.Snapshot())
}

// inkStyle builds a handwriting style, defaulting to black at
// canvas.DefaultInkWidth.
func inkStyle(hex string, width float64) (canvas.InkStyle, error) {
	style := canvas.InkStyle{Color: color.NRGBA{A: 0xff}, Width: canvas.DefaultInkWidth}
	if hex != "" {
		c, err := imaging.ParseHexColor(hex)
		if err != nil {
			return style, badRequest(err)
		}
		style.Color = c
	}
	if width != 0 {
		style.Width = width
	}
	return style, nil
}

type textRequest struct {
	canvas.TextStyle
	Text string `json:"text"`
}

// handleText stages text for the next pointer-down and selects the text
// tool.
func (s *Server) handleText(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	var req textRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	if err := sess.SetPendingText(req.TextStyle, req.Text); err != nil {
		s.writeError(w, err)
		return
	}
	if err := sess.SetTool(canvas.ToolText); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess.Snapshot())
}

type rectRequest struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

func (s *Server) handleEraseRect(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	var req rectRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	if req.Width <= 0 || req.Height <= 0 {
		s.writeError(w, badRequest(fmt.Errorf("width and height must be positive")))
		return
	}
	if err := sess.EraseRegion(image.Rect(req.X, req.Y, req.X+req.Width, req.Y+req.Height)); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess.Snapshot())
}

func (s *Server) handleFilters(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	f := canvas.NeutralFilters
	if err := decodeJSON(r, &f); err != nil {
		s.writeError(w, err)
		return
	}
	if err := sess.SetFilters(f); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess.Snapshot())
}

func (s *Server) handleResetFilters(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	if err := sess.ResetFilters(); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess.Snapshot())
}

func (s *Server) handleResetAll(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	if err := sess.ResetAll(); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess.Snapshot())
}

type editRequest struct {
	Prompt     string `json:"prompt"`
	Backend    string `json:"backend,omitempty"`
	ExtraImage string `json:"extraImage,omitempty"`
	WholeImage bool   `json:"wholeImage,omitempty"`
}

func (s *Server) handleEdit(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	var req editRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, err)
		return
	}

	dr := session.DispatchRequest{Prompt: req.Prompt, WholeImage: req.WholeImage}
	if req.Backend != "" {
		kind, err := remote.ParseKind(req.Backend)
		if err != nil {
			s.writeError(w, err)
			return
		}
		dr.Backend = kind
	}
	if req.ExtraImage != "" {
		if s.loader == nil {
			s.writeError(w, badRequest(fmt.Errorf("extraImage is not supported")))
			return
		}
		img, err := s.loader.LoadDrawable(r.Context(), req.ExtraImage)
		if err != nil {
			s.writeError(w, err)
			return
		}
		dr.ExtraImage = img
	}

	if err := sess.Dispatch(r.Context(), dr); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess.Snapshot())
}

func (s *Server) handleSave(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	p, err := sess.Save(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, remote.SaveResponse{FilePath: p})
}

func (s *Server) handleImage(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	img, err := sess.Working()
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writePNG(w, img)
}

// handleMask serves the inpainting mask. X-Mask-Transparent tells the client
// whether anything was erased.
func (s *Server) handleMask(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	mask, err := sess.Mask()
	if err != nil {
		s.writeError(w, err)
		return
	}
	w.Header().Set("X-Mask-Transparent", strconv.FormatBool(mask.HasTransparency))
	s.writePNG(w, mask.Image)
}

func (s *Server) handleColor(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	x, errX := strconv.Atoi(r.URL.Query().Get("x"))
	y, errY := strconv.Atoi(r.URL.Query().Get("y"))
	if errX != nil || errY != nil {
		s.writeError(w, badRequest(fmt.Errorf("integer x and y are required")))
		return
	}
	c, err := sess.SampleColor(x, y)
	if err != nil {
		if !errors.Is(err, session.ErrSessionClosed) {
			err = badRequest(err)
		}
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (s *Server) writePNG(w http.ResponseWriter, img image.Image) {
	data, err := imaging.EncodePNG(img)
	if err != nil {
		s.writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	_, _ = w.Write(data)
}
