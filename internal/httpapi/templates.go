package httpapi

import (
	"net/http"

	"github.com/ironsheep/card-canvas/internal/templates"
)

func (s *Server) templateRoutes() {
	s.mux.HandleFunc("GET /templates", s.handleListTemplates)
	s.mux.HandleFunc("GET /templates/{id}", s.handleGetTemplate)
	s.mux.HandleFunc("PUT /templates/{id}", s.handlePutTemplate)
	s.mux.HandleFunc("DELETE /templates/{id}", s.handleDeleteTemplate)
	s.mux.HandleFunc("GET /templates/{id}/design", s.handleTemplateDesign)
	s.mux.HandleFunc("GET /categories", s.handleCategories)
}

func (s *Server) handleListTemplates(w http.ResponseWriter, r *http.Request) {
	list, err := s.templates.List(r.Context(), r.URL.Query().Get("category"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	if list == nil {
		list = []templates.Template{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleGetTemplate(w http.ResponseWriter, r *http.Request) {
	t, err := s.templates.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

// handlePutTemplate creates or replaces a template. The id in the path wins
// over any id in the body.
func (s *Server) handlePutTemplate(w http.ResponseWriter, r *http.Request) {
	var t templates.Template
	if err := decodeJSON(r, &t); err != nil {
		s.writeError(w, err)
		return
	}
	t.ID = r.PathValue("id")

	saved, err := s.templates.Upsert(r.Context(), t)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, saved)
}

func (s *Server) handleDeleteTemplate(w http.ResponseWriter, r *http.Request) {
	if err := s.templates.Remove(r.Context(), r.PathValue("id")); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleTemplateDesign(w http.ResponseWriter, r *http.Request) {
	d, err := s.templates.NewDesign(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (s *Server) handleCategories(w http.ResponseWriter, r *http.Request) {
	cats, err := s.templates.Categories(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	if cats == nil {
		cats = []templates.Category{}
	}
	writeJSON(w, http.StatusOK, cats)
}
