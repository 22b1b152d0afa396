package httpapi

import (
	"bytes"
	"errors"
	"net"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/rs/zerolog"
)

func newUpstream(t *testing.T) *httptest.Server {
	t.Helper()
	var pngData bytes.Buffer
	if err := png.Encode(&pngData, createInMemoryImage(3, 3, color.RGBA{255, 0, 0, 255})); err != nil {
		t.Fatalf("encode: %v", err)
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/card.png":
			w.Header().Set("Content-Type", "image/png")
			_, _ = w.Write(pngData.Bytes())
		case "/page.html":
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			_, _ = w.Write([]byte("<html></html>"))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func proxyGet(p *Proxy, target string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/proxy?url="+url.QueryEscape(target), nil)
	p.ServeHTTP(rec, req)
	return rec
}

func TestProxy_ServesImage(t *testing.T) {
	upstream := newUpstream(t)
	p := NewProxy(nil, 0, zerolog.Nop(), AllowPrivateHosts())

	rec := proxyGet(p, upstream.URL+"/card.png")
	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d, body %s", rec.Code, rec.Body)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "image/png" {
		t.Errorf("Content-Type: got %s", ct)
	}
	img, err := png.Decode(rec.Body)
	if err != nil {
		t.Fatalf("body is not a PNG: %v", err)
	}
	if img.Bounds().Dx() != 3 {
		t.Errorf("width: got %d, want 3", img.Bounds().Dx())
	}
}

func TestProxy_Rejects(t *testing.T) {
	upstream := newUpstream(t)

	tests := []struct {
		name     string
		target   string
		maxBytes int64
		want     int
	}{
		{"missing url", "", 0, http.StatusBadRequest},
		{"file scheme", "file:///etc/passwd", 0, http.StatusBadRequest},
		{"no host", "http:///x.png", 0, http.StatusBadRequest},
		{"not an image", upstream.URL + "/page.html", 0, http.StatusUnsupportedMediaType},
		{"upstream 404", upstream.URL + "/missing.png", 0, http.StatusBadGateway},
		{"too large", upstream.URL + "/card.png", 16, http.StatusRequestEntityTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewProxy(nil, tt.maxBytes, zerolog.Nop(), AllowPrivateHosts())
			rec := proxyGet(p, tt.target)
			if rec.Code != tt.want {
				t.Errorf("status: got %d, want %d (%s)", rec.Code, tt.want, rec.Body)
			}
		})
	}
}

func TestProxy_RefusesPrivateHosts(t *testing.T) {
	upstream := newUpstream(t)
	p := NewProxy(nil, 0, zerolog.Nop())

	for _, target := range []string{
		upstream.URL + "/card.png",
		"http://localhost/card.png",
		"http://app.localhost/card.png",
		"http://169.254.169.254/latest/meta-data",
		"http://10.1.2.3/card.png",
		"http://[::1]/card.png",
		"http://0.0.0.0/card.png",
	} {
		t.Run(target, func(t *testing.T) {
			rec := proxyGet(p, target)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("status: got %d, want 400 (%s)", rec.Code, rec.Body)
			}
		})
	}
}

func TestPublicOnlyClient_DialRefusesLoopback(t *testing.T) {
	upstream := newUpstream(t)
	client := publicOnlyClient(http.DefaultClient)

	_, err := client.Get(upstream.URL + "/card.png")
	if !errors.Is(err, errPrivateHost) {
		t.Fatalf("expected errPrivateHost, got %v", err)
	}
	if http.DefaultClient.Transport != nil {
		t.Error("the shared client must not be modified")
	}
}

func TestIsPublicIP(t *testing.T) {
	tests := []struct {
		ip   string
		want bool
	}{
		{"93.184.216.34", true},
		{"2606:2800:220:1::", true},
		{"127.0.0.1", false},
		{"10.0.0.8", false},
		{"192.168.1.1", false},
		{"172.16.5.4", false},
		{"169.254.169.254", false},
		{"::1", false},
		{"fe80::1", false},
		{"fd00::1", false},
		{"0.0.0.0", false},
	}
	for _, tt := range tests {
		if got := isPublicIP(net.ParseIP(tt.ip)); got != tt.want {
			t.Errorf("isPublicIP(%s): got %v, want %v", tt.ip, got, tt.want)
		}
	}
}
