package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/ironsheep/card-canvas/internal/config"
	"github.com/ironsheep/card-canvas/internal/httpapi"
	"github.com/ironsheep/card-canvas/internal/imaging"
	"github.com/ironsheep/card-canvas/internal/logging"
	"github.com/ironsheep/card-canvas/internal/remote"
	"github.com/ironsheep/card-canvas/internal/server"
	"github.com/ironsheep/card-canvas/internal/session"
	"github.com/ironsheep/card-canvas/internal/templates"
)

// Version information - set by ldflags during build
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	mode := "serve"
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "--version", "-v", "version":
			fmt.Printf("card-canvas %s\n", Version)
			fmt.Printf("  Build time: %s\n", BuildTime)
			fmt.Printf("  Git commit: %s\n", GitCommit)
			return
		case "--help", "-h", "help":
			printHelp()
			return
		case "serve", "mcp":
			mode = os.Args[1]
		default:
			fmt.Fprintf(os.Stderr, "unknown command %q\n\n", os.Args[1])
			printHelp()
			os.Exit(2)
		}
	}

	cfg, err := config.FromEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(2)
	}

	// stdout is for the MCP protocol
	logger := logging.Stderr(cfg.LogLevel, "card-canvas")
	logger.Info().Str("version", Version).Str("commit", GitCommit).Str("mode", mode).Msg("starting")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, mode, cfg, logger); err != nil {
		logger.Error().Err(err).Msg("exiting")
		os.Exit(1)
	}
}

func run(ctx context.Context, mode string, cfg config.Config, logger zerolog.Logger) error {
	client := &http.Client{Timeout: cfg.HTTPTimeout}

	loaderOpts := []imaging.LoaderOption{
		imaging.WithHTTPClient(client),
		imaging.WithMaxBytes(cfg.MaxImageBytes),
		imaging.WithCache(imaging.NewImageCacheBytes(cfg.ImageCacheBytes)),
	}
	if cfg.ImageDir != "" {
		loaderOpts = append(loaderOpts, imaging.WithBaseDir(cfg.ImageDir))
	}
	loader, err := imaging.NewLoader(cfg.ProxyURL(), loaderOpts...)
	if err != nil {
		return err
	}

	dispatcherOpts := []remote.Option{
		remote.WithHTTPClient(client),
		remote.WithLogger(logging.Component(logger, "remote")),
	}
	for kind, endpoint := range cfg.Endpoints() {
		dispatcherOpts = append(dispatcherOpts, remote.WithBackend(kind, endpoint))
	}
	dispatcher := remote.NewDispatcher(loader, cfg.Backend, dispatcherOpts...)
	if len(dispatcher.Backends()) == 0 {
		logger.Warn().Msg("no edit backend endpoints configured; remote edits will fail")
	}

	files, err := httpapi.NewFileStore(cfg.SaveDir)
	if err != nil {
		return err
	}
	var saver session.Saver = files
	if cfg.SaveURL != "" {
		saver = remote.NewSaveClient(cfg.SaveURL, client)
	}

	registry, err := openRegistry(ctx, cfg, logging.Component(logger, "templates"))
	if err != nil {
		return err
	}
	defer registry.Close()

	manager := session.NewManager(session.ManagerConfig{
		Loader:      loader,
		Editor:      dispatcher,
		Saver:       saver,
		Size:        cfg.LogicalSize,
		IdleTimeout: cfg.SessionIdle,
		Logger:      logging.Component(logger, "session"),
	})
	if err := manager.StartReaper(cfg.ReapEvery); err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		manager.Shutdown(shutdownCtx)
	}()

	api := httpapi.New(httpapi.Config{
		Sessions:  manager,
		Templates: registry,
		Files:     files,
		Proxy:     newProxy(cfg, client, logging.Component(logger, "proxy")),
		Loader:    loader,
		Logger:    logging.Component(logger, "http"),
	})

	if mode == "serve" {
		return api.ListenAndServe(ctx, cfg.Addr)
	}

	// MCP sessions still load remote images through the proxy and serve
	// saved pages, so the HTTP listener runs alongside stdio.
	go func() {
		if err := api.ListenAndServe(ctx, cfg.Addr); err != nil {
			logger.Error().Err(err).Msg("http server stopped")
		}
	}()
	mcp := server.New(server.Deps{
		Sessions:  manager,
		Templates: registry,
		Loader:    loader,
		Logger:    logging.Component(logger, "mcp"),
		Version:   Version,
	})
	return mcp.Run()
}

// openRegistry opens the template store named by the DSN (memory when
// empty) and seeds it from the template directory when one is set.
func openRegistry(ctx context.Context, cfg config.Config, logger zerolog.Logger) (*templates.Registry, error) {
	var store templates.Store = templates.NewMemoryStore()
	if cfg.TemplateDSN != "" {
		sqlStore, err := templates.OpenSQL(cfg.TemplateDSN)
		if err != nil {
			return nil, err
		}
		store = sqlStore
	}
	registry := templates.NewRegistry(store, templates.WithLogger(logger))

	if cfg.TemplateDir != "" {
		if _, err := registry.Watch(ctx, cfg.TemplateDir, cfg.TemplateDebounce); err != nil {
			registry.Close()
			return nil, err
		}
	}
	return registry, nil
}

func printHelp() {
	fmt.Println("card-canvas - greeting card page editor")
	fmt.Println()
	fmt.Println("Usage: card-canvas [command]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  serve            Run the HTTP API (default)")
	fmt.Println("  mcp              Run the MCP server on stdin/stdout, with the HTTP API alongside")
	fmt.Println("  version, -v      Print version information")
	fmt.Println("  help, -h         Print this help message")
	fmt.Println()
	fmt.Println("Environment variables:")
	fmt.Println("  CARD_CANVAS_ADDR=:8080                 HTTP listen address")
	fmt.Println("  CARD_CANVAS_PROXY_BASE=                Base URL of the image proxy (default: this server)")
	fmt.Println("  CARD_CANVAS_SAVE_DIR=saved             Directory for saved pages")
	fmt.Println("  CARD_CANVAS_SAVE_URL=                  External save-image endpoint (default: in-process)")
	fmt.Println("  CARD_CANVAS_LOGICAL_WIDTH=2550         Logical canvas width")
	fmt.Println("  CARD_CANVAS_LOGICAL_HEIGHT=3300        Logical canvas height")
	fmt.Println("  CARD_CANVAS_BACKEND=gemini             Default edit backend (gemini, openai-mask, openai-prompt)")
	fmt.Println("  CARD_CANVAS_GEMINI_URL=                Gemini edit endpoint")
	fmt.Println("  CARD_CANVAS_OPENAI_MASK_URL=           OpenAI masked edit endpoint")
	fmt.Println("  CARD_CANVAS_OPENAI_PROMPT_URL=         OpenAI prompt-only edit endpoint")
	fmt.Println("  CARD_CANVAS_HTTP_TIMEOUT=120s          Timeout for outgoing requests")
	fmt.Println("  CARD_CANVAS_MAX_IMAGE_BYTES=33554432   Largest image fetched or proxied")
	fmt.Println("  CARD_CANVAS_IMAGE_CACHE_BYTES=268435456 Decoded size budget of the image cache")
	fmt.Println("  CARD_CANVAS_IMAGE_DIR=                 Directory local page images may be read from (default: none)")
	fmt.Println("  CARD_CANVAS_PROXY_ALLOW_PRIVATE=false  Let the proxy fetch loopback and private addresses")
	fmt.Println("  CARD_CANVAS_TEMPLATE_DSN=              sqlite:<path>, postgres://..., mysql:<dsn> (default: memory)")
	fmt.Println("  CARD_CANVAS_TEMPLATE_DIR=              Directory of JSON templates to load and watch")
	fmt.Println("  CARD_CANVAS_TEMPLATE_DEBOUNCE=500ms    Quiet period before a changed template is reloaded")
	fmt.Println("  CARD_CANVAS_SESSION_IDLE_TIMEOUT=30m   Idle time before a session is closed")
	fmt.Println("  CARD_CANVAS_REAP_EVERY=1m              How often idle sessions are checked")
	fmt.Println("  CARD_CANVAS_LOG_LEVEL=info             debug, info, warn, error (IMAGE_MCP_LOG_LEVEL also read)")
}

func newProxy(cfg config.Config, client *http.Client, logger zerolog.Logger) *httpapi.Proxy {
	var opts []httpapi.ProxyOption
	if cfg.ProxyAllowPrivate {
		opts = append(opts, httpapi.AllowPrivateHosts())
	}
	return httpapi.NewProxy(client, cfg.MaxImageBytes, logger, opts...)
}
