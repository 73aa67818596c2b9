// Package server is the composition root: it builds every repository,
// service and handler from the configuration, wires them to routes and
// runs the HTTP server until it is told to stop.
//
// DEPENDENCY INJECTION FLOW:
// cmd/server/main.go creates:
//
//	config.Config + *slog.Logger → server.New
//
// server.New creates:
//
//	sqldb.DB (migrated) ─┬─ Session/Account/Edge/Post/Catalog services → handlers
//	limiter.Store ───────┴─ rate-limit middleware on /auth/login and /signup
//	metrics.Metrics ─────── edge/session counters + HTTP middleware + /metrics
//
// Nothing below this package constructs its own dependencies; each one is
// handed in through a constructor. Tests use the same NewRouter with a
// temp-file database and an in-memory limiter store.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/ulule/limiter/v3"

	"github.com/sakif/cocktail-club/internal/auth"
	"github.com/sakif/cocktail-club/internal/config"
	"github.com/sakif/cocktail-club/internal/handler"
	"github.com/sakif/cocktail-club/internal/metrics"
	"github.com/sakif/cocktail-club/internal/middleware"
	"github.com/sakif/cocktail-club/internal/model"
	"github.com/sakif/cocktail-club/internal/repository/sqldb"
	"github.com/sakif/cocktail-club/internal/service"
)

// Server owns the database pool and the limiter store; Start closes both
// on shutdown.
//
// RESOURCE MANAGEMENT:
// Whoever opens a resource closes it. New opens the pool and (optionally)
// the Redis client, so Start's deferred calls close them once the HTTP
// server has drained. If New fails halfway it closes what it already
// opened before returning.
type Server struct {
	router     http.Handler   // chi router with every route and middleware
	config     *config.Config // port, shutdown timeout, env
	logger     *slog.Logger
	db         *sqldb.DB    // closed by Start
	closeStore func() error // releases the Redis client; no-op for memory
}

// New opens the database (running migrations), connects the rate-limit
// store and builds the router.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Server, error) {
	dialect, err := sqldb.ParseDialect(cfg.DBDriver)
	if err != nil {
		return nil, err
	}
	db, err := sqldb.Open(ctx, dialect, cfg.DBDSN)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	store, closeStore, err := middleware.NewLimiterStore(ctx, cfg.RedisURL, logger)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating rate limiter store: %w", err)
	}

	router, err := NewRouter(Deps{
		Config:  cfg,
		DB:      db,
		Store:   store,
		Metrics: metrics.New(),
		Logger:  logger,
	})
	if err != nil {
		closeStore()
		db.Close()
		return nil, err
	}

	return &Server{
		router:     router,
		config:     cfg,
		logger:     logger,
		db:         db,
		closeStore: closeStore,
	}, nil
}

// Deps is everything NewRouter needs. Tests build it around an in-memory
// database and limiter store.
type Deps struct {
	Config  *config.Config
	DB      *sqldb.DB
	Store   limiter.Store
	Metrics *metrics.Metrics
	Logger  *slog.Logger
}

// NewRouter wires services, handlers and routes.
//
//	GET    /healthz                         liveness + database ping
//	GET    /metrics                         Prometheus exposition
//	POST   /signup                          create a password account (rate limited)
//	POST   /auth/login                      password login (rate limited)
//	POST   /auth/refresh                    new access cookie from the refresh cookie
//	POST   /auth/logout                     revoke and clear cookies
//	GET    /auth/me                         current user (auth)
//	GET    /oauth/{provider}                redirect to provider consent
//	GET    /oauth/{provider}/callback       provider callback
//	GET    /posts, /posts/latest, /posts/{id}
//	POST   /posts, DELETE /posts/{id}       (auth)
//	GET    /posts/{id}/comments
//	POST   /posts/{id}/comments             (auth)
//	DELETE /comments/{id}                   (auth)
//	GET    /cocktails, /cocktails/{id}
//	GET    /cities
//	GET    /bars?city=, /bars/hot, /bars/mine (auth)
//	GET|POST|DELETE /posts/{id}/like, /cocktails/{id}/like, /bars/{id}/bookmark
func NewRouter(d Deps) (http.Handler, error) {
	cfg := d.Config

	tokens, err := auth.NewTokenService(auth.TokenConfig{
		Secret:     cfg.JWTSecret,
		Issuer:     cfg.JWTIssuer,
		AccessTTL:  cfg.AccessTokenTTL,
		RefreshTTL: cfg.RefreshTokenTTL,
	})
	if err != nil {
		return nil, fmt.Errorf("creating token service: %w", err)
	}
	passwords, err := auth.NewPasswordService(cfg.BcryptCost)
	if err != nil {
		return nil, fmt.Errorf("creating password service: %w", err)
	}

	creds := make(map[string]auth.ProviderConfig, len(cfg.OAuth))
	for name, c := range cfg.OAuth {
		creds[name] = auth.ProviderConfig{
			ClientID:     c.ClientID,
			ClientSecret: c.ClientSecret,
			RedirectURL:  c.RedirectURL,
		}
	}
	providers := auth.NewProviders(cfg.OAuthCallbackBase, creds)
	for name := range providers {
		d.Logger.Info("oauth provider enabled", slog.String("provider", name))
	}

	loginLimit, err := middleware.RateLimit("login", cfg.LoginRateLimit, d.Store, d.Logger)
	if err != nil {
		return nil, err
	}
	signupLimit, err := middleware.RateLimit("signup", cfg.LoginRateLimit, d.Store, d.Logger)
	if err != nil {
		return nil, err
	}

	// === SERVICES ===
	sessions := service.NewSessionService(service.SessionDeps{
		Users:           d.DB,
		Links:           d.DB,
		Tokens:          tokens,
		Passwords:       passwords,
		Providers:       providers,
		Metrics:         d.Metrics,
		Logger:          d.Logger,
		RotateOnRefresh: cfg.RotateRefreshOnUse,
	})
	accounts := service.NewAccountService(d.DB, passwords, d.Logger)
	edges := service.NewEdgeService(d.DB, d.Metrics, d.Logger)
	posts := service.NewPostService(d.DB, d.DB, d.Logger)
	catalog := service.NewCatalogService(d.DB, d.Logger)

	// === HANDLERS ===
	cookies := handler.NewCookies(cfg.IsProduction())
	authH := handler.NewAuthHandler(sessions, accounts, cookies, d.Logger)
	oauthH := handler.NewOAuthHandler(sessions, cookies, cfg.FrontendURL, d.Logger)
	edgeH := handler.NewEdgeHandler(edges, d.Logger)
	postH := handler.NewPostHandler(posts, d.Logger)
	catalogH := handler.NewCatalogHandler(catalog, d.Logger)

	requireAuth := auth.RequireAuth(tokens)
	optionalAuth := auth.OptionalAuth(tokens)

	// MIDDLEWARE ORDER MATTERS:
	// Middleware runs in the order added, outermost first:
	//   RequestID  → every later log line can carry the id
	//   RealIP     → rate limiter and logs see the client, not the proxy
	//   Logger     → times the whole request, including panics below it
	//   Recoverer  → turns a handler panic into a 500
	//   Metrics    → records route pattern, status and duration
	//   CORS       → answers preflight requests before any route runs
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logger(d.Logger))
	r.Use(chimiddleware.Recoverer)
	r.Use(d.Metrics.Middleware)
	r.Use(middleware.CORS(cfg.AllowedOrigins))

	r.Get("/healthz", healthz(d.DB))
	r.Handle("/metrics", d.Metrics.Handler())

	r.With(signupLimit).Post("/signup", authH.HandleSignup)
	r.Route("/auth", func(r chi.Router) {
		r.With(loginLimit).Post("/login", authH.HandleLogin)
		r.Post("/refresh", authH.HandleRefresh)
		r.With(optionalAuth).Post("/logout", authH.HandleLogout)
		r.With(requireAuth).Get("/me", authH.HandleMe)
	})
	r.Route("/oauth/{provider}", func(r chi.Router) {
		r.Get("/", oauthH.HandleStart)
		r.Get("/callback", oauthH.HandleCallback)
	})

	// EDGE ROUTES:
	// Likes and bookmarks share one handler type. GET works for anonymous
	// callers (OptionalAuth: no "mine" lookup without an identity); POST and
	// DELETE require a valid access cookie.
	edgeRoutes := func(r chi.Router, path string, kind model.EdgeKind) {
		r.With(optionalAuth).Get(path, edgeH.Status(kind))
		r.With(requireAuth).Post(path, edgeH.Add(kind))
		r.With(requireAuth).Delete(path, edgeH.Remove(kind))
	}

	r.Route("/posts", func(r chi.Router) {
		r.Get("/", postH.HandleList)
		r.Get("/latest", postH.HandleLatest)
		r.With(requireAuth).Post("/", postH.HandleCreate)
		r.Get("/{id}", postH.HandleGet)
		r.With(requireAuth).Delete("/{id}", postH.HandleDelete)
		r.Get("/{id}/comments", postH.HandleComments)
		r.With(requireAuth).Post("/{id}/comments", postH.HandleAddComment)
		edgeRoutes(r, "/{id}/like", model.PostLike)
	})
	r.With(requireAuth).Delete("/comments/{id}", postH.HandleDeleteComment)

	r.Route("/cocktails", func(r chi.Router) {
		r.Get("/", catalogH.HandleCocktails)
		r.Get("/{id}", catalogH.HandleCocktail)
		edgeRoutes(r, "/{id}/like", model.CocktailLike)
	})
	r.Get("/cities", catalogH.HandleCities)
	r.Route("/bars", func(r chi.Router) {
		r.Get("/", catalogH.HandleBars)
		r.Get("/hot", catalogH.HandleHotBars)
		r.With(requireAuth).Get("/mine", catalogH.HandleMyBars)
		edgeRoutes(r, "/{id}/bookmark", model.BarBookmark)
	})

	return r, nil
}

func healthz(db *sqldb.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := db.Ping(ctx); err != nil {
			http.Error(w, "database unavailable", http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Write([]byte("ok"))
	}
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves until ctx is cancelled (main cancels it on SIGINT/SIGTERM),
// then drains in-flight requests and closes the database and limiter store.
//
// GRACEFUL SHUTDOWN:
// ListenAndServe blocks, so it runs in a goroutine and reports its exit on
// serverErrors. The select then waits for whichever comes first:
//   - serverErrors: the listener failed (port taken, bad address)
//   - ctx.Done():   a signal arrived; Shutdown stops accepting new
//     connections and waits up to ShutdownTimeout for in-flight requests
//
// The channel is buffered so the goroutine can always send and exit, even
// when nobody is left to receive.
func (s *Server) Start(ctx context.Context) error {
	defer s.db.Close()
	defer s.closeStore()

	srv := &http.Server{
		Addr:              ":" + s.config.Port,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("server starting",
			slog.String("addr", srv.Addr),
			slog.String("env", s.config.Env),
			slog.String("database", string(s.db.Dialect())),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
	case <-ctx.Done():
		s.logger.Info("shutdown signal received")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
	}
	return nil
}
