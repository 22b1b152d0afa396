package remote

import (
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"testing"
)

func solidImage(width, height int, c color.Color) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

// received records what an edit endpoint saw.
type received struct {
	prompt string
	parts  map[string]image.Image
	types  map[string]string
}

// newEditServer answers every request with status and body after parsing
// the multipart form into rec.
func newEditServer(t *testing.T, status int, body string, rec *received) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method: got %s, want POST", r.Method)
		}
		if err := r.ParseMultipartForm(32 << 20); err != nil {
			t.Errorf("ParseMultipartForm failed: %v", err)
		}
		if rec != nil {
			rec.prompt = r.FormValue("prompt")
			rec.parts = map[string]image.Image{}
			rec.types = map[string]string{}
			for field, headers := range r.MultipartForm.File {
				f, err := headers[0].Open()
				if err != nil {
					t.Errorf("open %s: %v", field, err)
					continue
				}
				img, err := png.Decode(f)
				f.Close()
				if err != nil {
					t.Errorf("%s is not a PNG: %v", field, err)
					continue
				}
				rec.parts[field] = img
				rec.types[field] = headers[0].Header.Get("Content-Type")
			}
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestParseKind(t *testing.T) {
	tests := []struct {
		in   string
		want Kind
	}{
		{"gemini", KindGemini},
		{"openai-mask", KindOpenAIMask},
		{"openai-with-mask", KindOpenAIMask},
		{"OpenAI-Prompt-Only", KindOpenAIPrompt},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseKind(tt.in)
			if err != nil {
				t.Fatalf("ParseKind failed: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %s, want %s", got, tt.want)
			}
		})
	}
	if _, err := ParseKind("dalle"); !errors.Is(err, ErrUnknownBackend) {
		t.Errorf("expected ErrUnknownBackend, got %v", err)
	}
}

func TestKind_MaskPolicy(t *testing.T) {
	if KindGemini.MaskPolicy() != MaskOptional {
		t.Error("gemini mask should be optional")
	}
	if KindOpenAIMask.MaskPolicy() != MaskRequired {
		t.Error("openai-mask mask should be required")
	}
	if KindOpenAIPrompt.MaskPolicy() != MaskUnused {
		t.Error("openai-prompt mask should be unused")
	}
}

func TestBackend_Submit_FormFields(t *testing.T) {
	img := solidImage(8, 8, color.RGBA{255, 0, 0, 255})
	mask := solidImage(8, 8, color.RGBA{})
	extra := solidImage(4, 4, color.RGBA{0, 0, 255, 255})

	tests := []struct {
		name      string
		kind      Kind
		withMask  bool
		wantParts []string
	}{
		{"gemini with mask", KindGemini, true, []string{"image", "mask", "extraImage"}},
		{"gemini without mask", KindGemini, false, []string{"image", "extraImage"}},
		{"openai mask", KindOpenAIMask, true, []string{"image", "mask", "extraImage"}},
		{"openai prompt drops mask", KindOpenAIPrompt, true, []string{"image", "extraImage"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var rec received
			srv := newEditServer(t, http.StatusOK, `{"imageUrl":"https://cdn.example.com/out.png"}`, &rec)
			b := NewBackend(tt.kind, srv.URL, srv.Client())

			req := Request{Prompt: "add balloons", Image: img, ExtraImage: extra}
			if tt.withMask {
				req.Mask = mask
			}
			ref, err := b.Submit(context.Background(), req)
			if err != nil {
				t.Fatalf("Submit failed: %v", err)
			}
			if ref != "https://cdn.example.com/out.png" {
				t.Errorf("ref: got %s", ref)
			}
			if rec.prompt != "add balloons" {
				t.Errorf("prompt: got %q", rec.prompt)
			}
			if len(rec.parts) != len(tt.wantParts) {
				t.Errorf("parts: got %d, want %v", len(rec.parts), tt.wantParts)
			}
			for _, p := range tt.wantParts {
				if _, ok := rec.parts[p]; !ok {
					t.Errorf("missing part %q", p)
				}
				if rec.types[p] != "image/png" {
					t.Errorf("part %q content type: got %q", p, rec.types[p])
				}
			}
			if got := rec.parts["image"].Bounds(); got != img.Bounds() {
				t.Errorf("image bounds: got %v", got)
			}
		})
	}
}

func TestBackend_Submit_MaskRequired(t *testing.T) {
	b := NewBackend(KindOpenAIMask, "http://127.0.0.1:0", nil)
	_, err := b.Submit(context.Background(), Request{Prompt: "x", Image: solidImage(2, 2, color.White)})
	if !errors.Is(err, ErrMaskRequired) {
		t.Fatalf("expected ErrMaskRequired, got %v", err)
	}
}

func TestBackend_Submit_Responses(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantRef string
		wantErr error
	}{
		{"url field", http.StatusOK, `{"url":"/saved/a.png"}`, "/saved/a.png", nil},
		{"imageUrl wins", http.StatusOK, `{"imageUrl":"a","url":"b"}`, "a", nil},
		{"created", http.StatusCreated, `{"imageUrl":"c"}`, "c", nil},
		{"missing field", http.StatusOK, `{"status":"ok"}`, "", ErrMalformedResponse},
		{"error field", http.StatusOK, `{"error":"quota"}`, "", ErrMalformedResponse},
		{"not json", http.StatusOK, `<html>`, "", ErrMalformedResponse},
		{"server error", http.StatusInternalServerError, `{"error":"boom"}`, "", ErrBackendStatus},
		{"bad request", http.StatusBadRequest, `nope`, "", ErrBackendStatus},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newEditServer(t, tt.status, tt.body, nil)
			b := NewBackend(KindGemini, srv.URL, srv.Client())
			ref, err := b.Submit(context.Background(), Request{Prompt: "p", Image: solidImage(2, 2, color.White)})
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Submit failed: %v", err)
			}
			if ref != tt.wantRef {
				t.Errorf("ref: got %q, want %q", ref, tt.wantRef)
			}
		})
	}
}

func TestBackend_Submit_Validation(t *testing.T) {
	b := NewBackend(KindGemini, "http://127.0.0.1:0", nil)
	if _, err := b.Submit(context.Background(), Request{Prompt: "  ", Image: solidImage(1, 1, color.White)}); !errors.Is(err, ErrEmptyPrompt) {
		t.Errorf("expected ErrEmptyPrompt, got %v", err)
	}
	if _, err := b.Submit(context.Background(), Request{Prompt: "x"}); err == nil {
		t.Error("expected error for missing image")
	}
}

func TestBackend_Submit_NetworkError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	b := NewBackend(KindGemini, url, nil)
	if _, err := b.Submit(context.Background(), Request{Prompt: "x", Image: solidImage(1, 1, color.White)}); err == nil {
		t.Error("expected error for unreachable backend")
	}
}
