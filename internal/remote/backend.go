package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"

	"github.com/ironsheep/card-canvas/internal/imaging"
)

// maxResponseBytes bounds the JSON body read from a backend.
const maxResponseBytes = 1 << 20

var (
	// ErrUnknownBackend is returned for a backend kind that is not configured.
	ErrUnknownBackend = errors.New("unknown edit backend")

	// ErrMaskRequired is returned when a mask-only backend gets no mask.
	ErrMaskRequired = errors.New("backend requires a mask")

	// ErrBackendStatus is returned for a non-2xx answer.
	ErrBackendStatus = errors.New("edit backend returned an error status")

	// ErrMalformedResponse is returned for a 2xx answer without a usable
	// image URL.
	ErrMalformedResponse = errors.New("malformed edit response")

	// ErrEmptyPrompt is returned when no prompt is given.
	ErrEmptyPrompt = errors.New("prompt is required")
)

// Kind names an edit backend.
type Kind string

const (
	KindGemini       Kind = "gemini"
	KindOpenAIMask   Kind = "openai-mask"
	KindOpenAIPrompt Kind = "openai-prompt"
)

// Kinds lists every known backend kind.
var Kinds = []Kind{KindGemini, KindOpenAIMask, KindOpenAIPrompt}

// ParseKind parses a backend name.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "gemini":
		return KindGemini, nil
	case "openai-mask", "openai-with-mask", "openai":
		return KindOpenAIMask, nil
	case "openai-prompt", "openai-prompt-only":
		return KindOpenAIPrompt, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownBackend, s)
}

// MaskPolicy says how a backend treats the mask.
type MaskPolicy int

const (
	MaskOptional MaskPolicy = iota
	MaskRequired
	MaskUnused
)

func (p MaskPolicy) String() string {
	switch p {
	case MaskRequired:
		return "required"
	case MaskUnused:
		return "unused"
	}
	return "optional"
}

// MaskPolicy returns the mask policy of k.
func (k Kind) MaskPolicy() MaskPolicy {
	switch k {
	case KindOpenAIMask:
		return MaskRequired
	case KindOpenAIPrompt:
		return MaskUnused
	}
	return MaskOptional
}

// Request is one edit submission.
type Request struct {
	Prompt     string
	Image      image.Image
	Mask       image.Image // nil requests a whole-image edit
	ExtraImage image.Image // optional reference picture
}

// editResponse accepts both response shapes.
type editResponse struct {
	ImageURL string `json:"imageUrl"`
	URL      string `json:"url"`
	Error    string `json:"error"`
}

// Backend is one configured edit endpoint.
type Backend struct {
	Kind     Kind
	Endpoint string
	client   *http.Client
}

// NewBackend creates a backend posting to endpoint. A nil client uses
// http.DefaultClient.
func NewBackend(kind Kind, endpoint string, client *http.Client) *Backend {
	if client == nil {
		client = http.DefaultClient
	}
	return &Backend{Kind: kind, Endpoint: endpoint, client: client}
}

// Submit sends req to the backend as a multipart form and returns the
// reference of the edited image.
//
// Parameters:
//   - ctx: Bounds the request; cancelling it aborts the upload.
//   - req: Prompt and images. The mask is dropped for backends that do not
//     use one.
//
// Returns:
//   - string: The "imageUrl" field of the response, or "url" when the backend
//     uses the older name. It may be relative to the endpoint.
//   - error: See below.
//
// # Errors
//
// ErrEmptyPrompt for a blank prompt, ErrMaskRequired when a mask-only backend
// gets none, ErrBackendStatus for a non-2xx answer and ErrMalformedResponse
// when the body carries no image reference. Transport failures are wrapped
// with the backend kind.
func (b *Backend) Submit(ctx context.Context, req Request) (string, error) {
	if strings.TrimSpace(req.Prompt) == "" {
		return "", ErrEmptyPrompt
	}
	if req.Image == nil {
		return "", errors.New("image is required")
	}

	mask := req.Mask
	switch b.Kind.MaskPolicy() {
	case MaskRequired:
		if mask == nil {
			return "", fmt.Errorf("%s: %w", b.Kind, ErrMaskRequired)
		}
	case MaskUnused:
		mask = nil
	}

	body, contentType, err := buildForm(req.Prompt, req.Image, mask, req.ExtraImage)
	if err != nil {
		return "", err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, b.Endpoint, body)
	if err != nil {
		return "", fmt.Errorf("failed to build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", contentType)
	httpReq.Header.Set("Accept", "application/json")

	resp, err := b.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("%s request failed: %w", b.Kind, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return "", fmt.Errorf("failed to read %s response: %w", b.Kind, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("%w: %s answered %d: %s", ErrBackendStatus, b.Kind, resp.StatusCode, snippet(data))
	}

	var out editResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	ref := out.ImageURL
	if ref == "" {
		ref = out.URL
	}
	if ref == "" {
		if out.Error != "" {
			return "", fmt.Errorf("%w: %s", ErrMalformedResponse, out.Error)
		}
		return "", fmt.Errorf("%w: no imageUrl or url field", ErrMalformedResponse)
	}
	return ref, nil
}

func buildForm(prompt string, img, mask, extra image.Image) (io.Reader, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	if err := w.WriteField("prompt", prompt); err != nil {
		return nil, "", err
	}
	parts := []struct {
		field, filename string
		img             image.Image
	}{
		{"image", "image.png", img},
		{"mask", "mask.png", mask},
		{"extraImage", "extra.png", extra},
	}
	for _, p := range parts {
		if p.img == nil {
			continue
		}
		data, err := imaging.EncodePNG(p.img)
		if err != nil {
			return nil, "", fmt.Errorf("%s: %w", p.field, err)
		}
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, p.field, p.filename))
		h.Set("Content-Type", "image/png")
		fw, err := w.CreatePart(h)
		if err != nil {
			return nil, "", err
		}
		if _, err := fw.Write(data); err != nil {
			return nil, "", err
		}
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return &buf, w.FormDataContentType(), nil
}

func snippet(data []byte) string {
	s := strings.TrimSpace(string(data))
	if len(s) > 200 {
		s = s[:200] + "..."
	}
	return s
}
