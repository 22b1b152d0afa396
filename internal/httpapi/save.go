package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/ironsheep/card-canvas/internal/imaging"
	"github.com/ironsheep/card-canvas/internal/remote"
)

// SavedPath is the URL prefix saved pages are served under.
const SavedPath = "/saved/"

// FileStore writes flattened pages to a directory as PNG files with random
// names. It satisfies session.Saver, so sessions in the same process save
// without a round trip through POST /save-image.
type FileStore struct {
	dir string
}

// NewFileStore creates dir if needed and returns a store writing into it.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create save dir: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

// Dir returns the directory files are written to.
func (f *FileStore) Dir() string {
	return f.dir
}

// Save decodes an image data URL, writes it as PNG and returns the path it
// is served under.
func (f *FileStore) Save(_ context.Context, dataURL string) (string, error) {
	img, err := imaging.DecodeDataURL(dataURL)
	if err != nil {
		return "", err
	}
	data, err := imaging.EncodePNG(img)
	if err != nil {
		return "", err
	}

	name := uuid.NewString() + ".png"
	if err := os.WriteFile(filepath.Join(f.dir, name), data, 0o644); err != nil {
		return "", fmt.Errorf("write %s: %w", name, err)
	}
	return path.Join(SavedPath, name), nil
}

// Open returns the file for a name previously returned by Save.
func (f *FileStore) Open(name string) (*os.File, error) {
	if name == "" || name != filepath.Base(name) || strings.HasPrefix(name, ".") || !strings.HasSuffix(name, ".png") {
		return nil, os.ErrNotExist
	}
	return os.Open(filepath.Join(f.dir, name))
}

func (s *Server) handleSaveImage(w http.ResponseWriter, r *http.Request) {
	var req remote.SaveRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	if req.ImageURL == "" {
		s.writeError(w, badRequest(fmt.Errorf("imageUrl is required")))
		return
	}

	p, err := s.files.Save(r.Context(), req.ImageURL)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.logger.Info().Str("path", p).Msg("image saved")
	writeJSON(w, http.StatusOK, remote.SaveResponse{FilePath: p})
}

func (s *Server) handleSaved(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	file, err := s.files.Open(name)
	if err != nil {
		http.NotFound(w, r)
		return
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	http.ServeContent(w, r, name, info.ModTime(), file)
}
