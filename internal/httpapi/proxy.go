package httpapi

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/ironsheep/card-canvas/internal/imaging"
)

// Proxy fetches remote images on behalf of the canvas so they can be
// decoded without cross-origin restrictions. Only http and https targets
// are fetched, bodies are capped, and the upstream must answer with an
// image content type.
//
// # Private Addresses
//
// Unless AllowPrivateHosts is set, the proxy refuses targets on loopback,
// private, link-local and unspecified addresses. Literal hosts are refused
// up front with 400; names are checked after DNS resolution, at dial time,
// and refused with 403.
type Proxy struct {
	client       *http.Client
	maxBytes     int64
	logger       zerolog.Logger
	allowPrivate bool
}

// ProxyOption configures a Proxy.
type ProxyOption func(*Proxy)

// AllowPrivateHosts lets the proxy fetch from non-public addresses.
func AllowPrivateHosts() ProxyOption {
	return func(p *Proxy) { p.allowPrivate = true }
}

// errPrivateHost is returned by the guarded dialer for non-public addresses.
var errPrivateHost = errors.New("address is not public")

// NewProxy creates a proxy. A nil client uses http.DefaultClient and a
// non-positive maxBytes uses imaging.DefaultMaxImageBytes. client is not
// modified; the proxy dials through its own copy.
func NewProxy(client *http.Client, maxBytes int64, logger zerolog.Logger, opts ...ProxyOption) *Proxy {
	if client == nil {
		client = http.DefaultClient
	}
	if maxBytes <= 0 {
		maxBytes = imaging.DefaultMaxImageBytes
	}
	p := &Proxy{client: client, maxBytes: maxBytes, logger: logger}
	for _, opt := range opts {
		opt(p)
	}
	if !p.allowPrivate {
		p.client = publicOnlyClient(client)
	}
	return p
}

// publicOnlyClient copies c with a transport whose dialer refuses
// non-public addresses. Environment proxies are not used, since the check
// would only see the proxy's address.
func publicOnlyClient(c *http.Client) *http.Client {
	base, ok := c.Transport.(*http.Transport)
	if !ok || base == nil {
		base = http.DefaultTransport.(*http.Transport)
	}
	t := base.Clone()
	t.Proxy = nil
	dialer := &net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
		Control: func(network, address string, _ syscall.RawConn) error {
			host, _, err := net.SplitHostPort(address)
			if err != nil {
				return err
			}
			if ip := net.ParseIP(host); ip == nil || !isPublicIP(ip) {
				return fmt.Errorf("%w: %s", errPrivateHost, host)
			}
			return nil
		},
	}
	t.DialContext = dialer.DialContext

	guarded := *c
	guarded.Transport = t
	return &guarded
}

func isPublicIP(ip net.IP) bool {
	return !(ip.IsLoopback() || ip.IsPrivate() || ip.IsUnspecified() ||
		ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() ||
		ip.IsInterfaceLocalMulticast() || ip.IsMulticast())
}

func (p *Proxy) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	target, err := proxyTarget(r.URL.Query().Get("url"), p.allowPrivate)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	req, err := http.NewRequestWithContext(r.Context(), http.MethodGet, target.String(), nil)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	resp, err := p.client.Do(req)
	if errors.Is(err, errPrivateHost) {
		http.Error(w, "target host is not allowed", http.StatusForbidden)
		return
	}
	if err != nil {
		p.logger.Warn().Err(err).Str("url", target.Redacted()).Msg("proxy fetch failed")
		http.Error(w, "upstream fetch failed", http.StatusBadGateway)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		http.Error(w, fmt.Sprintf("upstream answered %d", resp.StatusCode), http.StatusBadGateway)
		return
	}
	contentType := resp.Header.Get("Content-Type")
	if mediaType, _, err := mime.ParseMediaType(contentType); err != nil || !strings.HasPrefix(mediaType, "image/") {
		http.Error(w, fmt.Sprintf("upstream content type %q is not an image", contentType), http.StatusUnsupportedMediaType)
		return
	}
	if resp.ContentLength > p.maxBytes {
		http.Error(w, "image too large", http.StatusRequestEntityTooLarge)
		return
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, p.maxBytes+1))
	if err != nil {
		http.Error(w, "upstream read failed", http.StatusBadGateway)
		return
	}
	if int64(len(data)) > p.maxBytes {
		http.Error(w, "image too large", http.StatusRequestEntityTooLarge)
		return
	}

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Header().Set("Cache-Control", "public, max-age=3600")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	_, _ = w.Write(data)
}

func proxyTarget(raw string, allowPrivate bool) (*url.URL, error) {
	if raw == "" {
		return nil, fmt.Errorf("url parameter is required")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid url: %v", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("scheme %q is not allowed", u.Scheme)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("url has no host")
	}
	if !allowPrivate {
		host := u.Hostname()
		if strings.EqualFold(host, "localhost") || strings.HasSuffix(strings.ToLower(host), ".localhost") {
			return nil, fmt.Errorf("host %q is not allowed", host)
		}
		if ip := net.ParseIP(host); ip != nil && !isPublicIP(ip) {
			return nil, fmt.Errorf("host %q is not allowed", host)
		}
	}
	return u, nil
}
