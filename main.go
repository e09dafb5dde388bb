// Package main bootstraps the card catalog server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/rs/zerolog"

	"tcg_catalog/auth"
	"tcg_catalog/catalog"
	"tcg_catalog/collection"
	"tcg_catalog/config"
	"tcg_catalog/events"
	"tcg_catalog/handlers"
	"tcg_catalog/monitor"
	"tcg_catalog/notifiers"
	"tcg_catalog/notifiers/gotify"
	"tcg_catalog/server"
	"tcg_catalog/tcgapi"
	"tcg_catalog/websocket"
)

func main() {
	configPath := flag.String("config", "catalog.json", "Path to the configuration file")
	envPath := flag.String("env", ".env", "Path to an optional .env file")
	flag.Parse()

	log := newLogger("info")

	if err := config.LoadEnv(*envPath); err != nil {
		log.Fatal().Err(err).Msg("Failed to load environment file")
	}

	cfg, err := loadConfig(*configPath, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	log = newLogger(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Fatal().Err(err).Msg("Server failed")
	}
}

// newLogger builds the console logger. Unknown levels fall back to info.
func newLogger(level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		Level(lvl).
		With().Timestamp().Logger()
}

// loadConfig reads the config file, falling back to defaults when it does
// not exist, then applies environment overrides and validates.
func loadConfig(path string, log zerolog.Logger) (*config.Config, error) {
	cfg, err := config.Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		log.Warn().Str("path", path).Msg("Config file not found, using defaults")
		cfg = config.Default()
	} else if err != nil {
		return nil, err
	}

	cfg.ApplyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// app holds the wired components of a running server.
type app struct {
	log     zerolog.Logger
	server  *server.Server
	closers []func()
}

// run wires the components together and serves until ctx is cancelled.
func run(ctx context.Context, cfg *config.Config, log zerolog.Logger) error {
	a, err := newApp(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.close()
	return a.serve(ctx)
}

// newApp builds every component. On error the components built so far are
// released.
func newApp(ctx context.Context, cfg *config.Config, log zerolog.Logger) (_ *app, err error) {
	a := &app{log: log}
	defer func() {
		if err != nil {
			a.close()
		}
	}()

	staticFS, err := getStaticFS()
	if err != nil {
		return nil, fmt.Errorf("failed to load static files: %w", err)
	}
	docsFS, err := getDocsFS()
	if err != nil {
		return nil, fmt.Errorf("failed to load docs: %w", err)
	}

	bus := events.NewBus(true)
	a.onClose(bus.Wait)

	cat := catalog.New(cfg.DataPath, log)
	api := &handlers.API{
		Catalog:  cat,
		Upstream: tcgapi.New(cfg.TCGAPI, log),
		Docs:     docsFS,
		User:     auth.UserID,
		Log:      log.With().Str("component", "handlers").Logger(),
	}

	if cfg.Database.IsEnabled() {
		db, err := collection.Open(ctx, cfg.Database)
		if err != nil {
			return nil, err
		}
		a.onClose(func() { db.Close() })

		store := collection.NewStore(db, bus, log)
		if err := store.Migrate(ctx); err != nil {
			return nil, err
		}
		api.Collections = store
		log.Info().Str("driver", cfg.Database.Driver).Msg("Collection database ready")
	} else {
		log.Warn().Msg("No database configured, collections are disabled")
	}

	notifications := notifiers.NewManager(bus, log)
	a.onClose(func() { notifications.Close() })
	if n := gotify.New(cfg.Gotify, log); n != nil {
		n.SetCardNamer(cat.CardName)
		notifications.Register(n)
	}

	mon := monitor.New(cfg.DataPath, cat, bus, monitor.WithLogger(log))
	mon.Start(ctx)
	a.onClose(mon.Stop)

	hub := websocket.NewHub(bus, log)
	hub.Start()
	a.onClose(hub.Stop)

	srvCfg := &server.Config{
		Listen:       cfg.Listen,
		StaticFS:     staticFS,
		Auth:         auth.Local{},
		WebSocketHub: hub,
		API:          api,
		Log:          log,
	}
	if cfg.OIDC != nil {
		provider, err := auth.NewProvider(ctx, cfg.OIDC, log)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize OIDC: %w", err)
		}
		a.onClose(provider.Close)
		srvCfg.Auth = provider
		srvCfg.Provider = provider
		srvCfg.CallbackPath = cfg.OIDC.Callback
		log.Info().Str("issuer", cfg.OIDC.ConfigURL).Msg("OIDC authentication enabled")
	}

	a.server = server.New(srvCfg)
	return a, nil
}

func (a *app) onClose(fn func()) {
	a.closers = append(a.closers, fn)
}

// close releases components in reverse order of creation.
func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

// serve listens, reports readiness to systemd and serves until ctx is
// cancelled.
func (a *app) serve(ctx context.Context) error {
	ln, err := a.server.Listen()
	if err != nil {
		return err
	}

	if sent, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		a.log.Warn().Err(err).Msg("Failed to notify systemd")
	} else if sent {
		a.log.Debug().Msg("Notified systemd of readiness")
	}

	err = a.server.Serve(ctx, ln)
	daemon.SdNotify(false, daemon.SdNotifyStopping)
	return err
}
