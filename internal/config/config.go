// Package config reads card-canvas settings from the environment.
package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ironsheep/card-canvas/internal/canvas"
	"github.com/ironsheep/card-canvas/internal/imaging"
	"github.com/ironsheep/card-canvas/internal/remote"
	"github.com/ironsheep/card-canvas/internal/session"
	"github.com/ironsheep/card-canvas/internal/templates"
)

// Prefix is prepended to every variable name.
const Prefix = "CARD_CANVAS_"

// legacyLogLevel is honoured when CARD_CANVAS_LOG_LEVEL is unset.
const legacyLogLevel = "IMAGE_MCP_LOG_LEVEL"

// Config holds the process settings.
type Config struct {
	Addr      string
	ProxyBase string
	SaveDir   string
	LogLevel  string

	// ImageDir is the only directory page images may be read from as local
	// files. Empty refuses local file references.
	ImageDir          string
	ImageCacheBytes   int64
	ProxyAllowPrivate bool

	LogicalSize canvas.Size

	Backend          remote.Kind
	GeminiURL        string
	OpenAIMaskURL    string
	OpenAIPromptURL  string
	SaveURL          string
	HTTPTimeout      time.Duration
	MaxImageBytes    int64
	SessionIdle      time.Duration
	ReapEvery        time.Duration
	TemplateDSN      string
	TemplateDir      string
	TemplateDebounce time.Duration
}

// Default returns the settings used when nothing is set.
func Default() Config {
	return Config{
		Addr:             ":8080",
		SaveDir:          "saved",
		LogLevel:         "info",
		LogicalSize:      canvas.DefaultLogicalSize,
		Backend:          remote.KindGemini,
		HTTPTimeout:      120 * time.Second,
		MaxImageBytes:    imaging.DefaultMaxImageBytes,
		ImageCacheBytes:  imaging.DefaultCacheBytes,
		SessionIdle:      session.DefaultIdleTimeout,
		ReapEvery:        time.Minute,
		TemplateDebounce: templates.DefaultDebounce,
	}
}

// FromEnv reads the process environment.
func FromEnv() (Config, error) {
	return Load(os.LookupEnv)
}

// Load builds a Config from lookup, which has the signature of
// os.LookupEnv. Unset or empty variables keep their defaults.
func Load(lookup func(string) (string, bool)) (Config, error) {
	cfg := Default()
	get := func(name string) string {
		v, _ := lookup(Prefix + name)
		return strings.TrimSpace(v)
	}

	setString(&cfg.Addr, get("ADDR"))
	setString(&cfg.ProxyBase, get("PROXY_BASE"))
	setString(&cfg.SaveDir, get("SAVE_DIR"))
	setString(&cfg.GeminiURL, get("GEMINI_URL"))
	setString(&cfg.OpenAIMaskURL, get("OPENAI_MASK_URL"))
	setString(&cfg.OpenAIPromptURL, get("OPENAI_PROMPT_URL"))
	setString(&cfg.SaveURL, get("SAVE_URL"))
	setString(&cfg.TemplateDSN, get("TEMPLATE_DSN"))
	setString(&cfg.TemplateDir, get("TEMPLATE_DIR"))
	setString(&cfg.ImageDir, get("IMAGE_DIR"))

	level := get("LOG_LEVEL")
	if level == "" {
		if v, ok := lookup(legacyLogLevel); ok {
			level = strings.TrimSpace(v)
		}
	}
	setString(&cfg.LogLevel, strings.ToLower(level))

	if v := get("BACKEND"); v != "" {
		kind, err := remote.ParseKind(v)
		if err != nil {
			return cfg, fmt.Errorf("%sBACKEND: %w", Prefix, err)
		}
		cfg.Backend = kind
	}

	var err error
	if cfg.LogicalSize.W, err = intVar(get, "LOGICAL_WIDTH", cfg.LogicalSize.W); err != nil {
		return cfg, err
	}
	if cfg.LogicalSize.H, err = intVar(get, "LOGICAL_HEIGHT", cfg.LogicalSize.H); err != nil {
		return cfg, err
	}
	if cfg.LogicalSize.W <= 0 || cfg.LogicalSize.H <= 0 {
		return cfg, fmt.Errorf("logical size must be positive, got %dx%d", cfg.LogicalSize.W, cfg.LogicalSize.H)
	}

	maxBytes, err := intVar(get, "MAX_IMAGE_BYTES", int(cfg.MaxImageBytes))
	if err != nil {
		return cfg, err
	}
	cfg.MaxImageBytes = int64(maxBytes)

	cacheBytes, err := intVar(get, "IMAGE_CACHE_BYTES", int(cfg.ImageCacheBytes))
	if err != nil {
		return cfg, err
	}
	cfg.ImageCacheBytes = int64(cacheBytes)

	if cfg.ProxyAllowPrivate, err = boolVar(get, "PROXY_ALLOW_PRIVATE", cfg.ProxyAllowPrivate); err != nil {
		return cfg, err
	}

	for _, d := range []struct {
		name string
		dst  *time.Duration
	}{
		{"HTTP_TIMEOUT", &cfg.HTTPTimeout},
		{"SESSION_IDLE_TIMEOUT", &cfg.SessionIdle},
		{"REAP_EVERY", &cfg.ReapEvery},
		{"TEMPLATE_DEBOUNCE", &cfg.TemplateDebounce},
	} {
		if *d.dst, err = durationVar(get, d.name, *d.dst); err != nil {
			return cfg, err
		}
	}
	return cfg, nil
}

// Endpoints returns the configured backend endpoints by kind.
func (c Config) Endpoints() map[remote.Kind]string {
	return map[remote.Kind]string{
		remote.KindGemini:       c.GeminiURL,
		remote.KindOpenAIMask:   c.OpenAIMaskURL,
		remote.KindOpenAIPrompt: c.OpenAIPromptURL,
	}
}

// ProxyURL returns the base URL images are proxied through: ProxyBase when
// set, otherwise this process's own listener on the loopback interface.
func (c Config) ProxyURL() string {
	if c.ProxyBase != "" {
		return c.ProxyBase
	}
	host, port, err := net.SplitHostPort(c.Addr)
	if err != nil {
		return ""
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "127.0.0.1"
	}
	return "http://" + net.JoinHostPort(host, port)
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func intVar(get func(string) string, name string, def int) (int, error) {
	v := get(name)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def, fmt.Errorf("%s%s: %w", Prefix, name, err)
	}
	return n, nil
}

func boolVar(get func(string) string, name string, def bool) (bool, error) {
	v := get(name)
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def, fmt.Errorf("%s%s: %w", Prefix, name, err)
	}
	return b, nil
}

// durationVar accepts Go durations ("90s") or a bare number of seconds.
func durationVar(get func(string) string, name string, def time.Duration) (time.Duration, error) {
	v := get(name)
	if v == "" {
		return def, nil
	}
	var d time.Duration
	if n, err := strconv.Atoi(v); err == nil {
		d = time.Duration(n) * time.Second
	} else if d, err = time.ParseDuration(v); err != nil {
		return def, fmt.Errorf("%s%s: %w", Prefix, name, err)
	}
	if d <= 0 {
		return def, fmt.Errorf("%s%s must be positive", Prefix, name)
	}
	return d, nil
}
