// Package server provides HTTP server setup and routing.
package server

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"tcg_catalog/auth"
	"tcg_catalog/config"
	"tcg_catalog/handlers"
	"tcg_catalog/websocket"
)

// shutdownTimeout bounds how long Run waits for in-flight requests.
const shutdownTimeout = 10 * time.Second

// Config holds server configuration options.
type Config struct {
	Listen       string
	StaticFS     fs.FS              // Embedded browser client
	Auth         auth.Authenticator // Local when nil
	Provider     *auth.Provider     // OIDC login routes (nil if auth disabled)
	CallbackPath string
	WebSocketHub *websocket.Hub
	API          *handlers.API
	Log          zerolog.Logger
}

// DefaultConfig returns the default server configuration.
func DefaultConfig() *Config {
	return &Config{
		Listen:       ":9001",
		Auth:         auth.Local{},
		CallbackPath: config.DefaultOIDCCallback,
		Log:          zerolog.Nop(),
	}
}

// Server represents the HTTP server.
type Server struct {
	config *Config
	mux    *http.ServeMux
	log    zerolog.Logger
}

// New creates a new Server with the given configuration.
func New(cfg *Config) *Server {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.Auth == nil {
		cfg.Auth = auth.Local{}
	}
	if cfg.CallbackPath == "" {
		cfg.CallbackPath = config.DefaultOIDCCallback
	}

	s := &Server{
		config: cfg,
		mux:    http.NewServeMux(),
		log:    cfg.Log.With().Str("component", "server").Logger(),
	}

	s.setupRoutes()
	return s
}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() {
	authn := s.config.Auth

	// Public: card data and search. Identify still attaches the session
	// user so the client can show collection state.
	public := func(h http.HandlerFunc) http.Handler {
		return authn.Identify(h)
	}
	protect := func(h http.HandlerFunc) http.Handler {
		return authn.Require(h)
	}

	if s.config.StaticFS != nil {
		static := http.FileServer(http.FS(s.config.StaticFS))
		s.mux.Handle("GET /static/", http.StripPrefix("/static/", static))
		s.mux.Handle("GET /{$}", public(s.indexHandler))
	}

	if p := s.config.Provider; p != nil {
		s.mux.HandleFunc("GET /login", p.LoginHandler)
		s.mux.HandleFunc("GET "+s.config.CallbackPath, p.CallbackHandler)
		s.mux.HandleFunc("GET /logout", p.LogoutHandler)
	}
	s.mux.HandleFunc("GET /api/auth/status", authn.StatusHandler)

	if api := s.config.API; api != nil {
		if api.User == nil {
			api.User = auth.UserID
		}

		s.mux.Handle("GET /api/local/sets", public(api.SetsHandler))
		s.mux.Handle("GET /api/local/sets/{id}", public(api.SetHandler))
		s.mux.Handle("GET /api/local/cards", public(api.CardsHandler))
		s.mux.Handle("GET /api/local/cards/{id}", public(api.CardHandler))
		s.mux.Handle("POST /api/local/cards/batch", public(api.CardsBatchHandler))

		s.mux.Handle("GET /api/pokemon/cards", public(api.PokemonCardsHandler))
		s.mux.Handle("GET /api/pokemon/cards/{id}", public(api.PokemonCardHandler))

		s.mux.Handle("GET /api/search/parse", public(api.SearchParseHandler))
		s.mux.Handle("POST /api/search/build", public(api.SearchBuildHandler))
		s.mux.Handle("GET /api/search/modifiers", public(api.SearchModifiersHandler))
		s.mux.Handle("GET /api/docs/search", public(api.SearchDocsHandler))

		s.mux.Handle("GET /api/collection", protect(api.CollectionHandler))
		s.mux.Handle("POST /api/collection/owned/{id}", protect(api.ToggleOwnedHandler))
		s.mux.Handle("POST /api/collection/wishlist/{id}", protect(api.ToggleWishlistHandler))
		s.mux.Handle("PUT /api/collection/quantity/{id}", protect(api.UpdateQuantityHandler))
	}

	if s.config.WebSocketHub != nil {
		s.mux.Handle("GET /ws", public(s.config.WebSocketHub.Handler(auth.UserID)))
	}
}

// indexHandler serves the browser client's index.html.
func (s *Server) indexHandler(w http.ResponseWriter, r *http.Request) {
	content, err := fs.ReadFile(s.config.StaticFS, "index.html")
	if err != nil {
		http.Error(w, "index.html not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(content)
}

// Handler returns the HTTP handler for the server.
func (s *Server) Handler() http.Handler {
	return s.logRequests(s.mux)
}

// logRequests logs each request at debug level.
func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Dur("elapsed", time.Since(start)).
			Msg("Request")
	})
}

// Listen binds the configured address. Split from Serve so callers can
// report readiness once the socket is open.
func (s *Server) Listen() (net.Listener, error) {
	ln, err := net.Listen("tcp", s.config.Listen)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", s.config.Listen, err)
	}
	return ln, nil
}

// Serve serves HTTP on ln until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", ln.Addr().String()).Msg("Starting server")
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.log.Info().Msg("Shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down server: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// ListenAndServe starts the HTTP server and blocks until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := s.Listen()
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}
