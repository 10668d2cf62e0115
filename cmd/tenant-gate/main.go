package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"tenant-gate/internal/adapter/gateway"
	adapterhandler "tenant-gate/internal/adapter/handler"
	"tenant-gate/internal/domain"
	"tenant-gate/internal/infrastructure/store"
	infratoken "tenant-gate/internal/infrastructure/token"
	"tenant-gate/internal/usecase"

	"tenant-gate/config"
	appmiddleware "tenant-gate/middleware"
	"tenant-gate/utils/logger"
	"tenant-gate/utils/otel"

	"github.com/jonboulle/clockwork"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"
	"golang.org/x/sync/errgroup"
)

func main() {
	// Handle healthcheck subcommand (for Docker healthcheck in distroless image)
	if len(os.Args) > 1 && os.Args[1] == "healthcheck" {
		if err := runHealthcheck(); err != nil {
			fmt.Fprintf(os.Stderr, "Healthcheck failed: %v\n", err)
			os.Exit(1)
		}
		os.Exit(0)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	// Initialize OpenTelemetry
	otelCfg := otel.ConfigFromEnv()
	otelShutdown, err := otel.InitProvider(ctx, otelCfg)
	if err != nil {
		slog.Warn("failed to initialize OpenTelemetry, continuing without tracing", "error", err)
		otelCfg.Enabled = false
	}

	// Initialize structured logger
	logger.Init(otelCfg.Enabled)

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.ErrorContext(ctx, "failed to load configuration", "error", err)
		os.Exit(1)
	}

	domains := domain.Domains{LoginLabel: cfg.LoginLabel, Suffix: cfg.DomainSuffix}

	slog.InfoContext(ctx, "configuration loaded",
		"login_domain", domains.LoginURL("http", cfg.Port, "/"),
		"domain_suffix", cfg.DomainSuffix,
		"port", cfg.Port,
		"idle_timeout", cfg.IdleTimeout,
		"handoff_ttl", cfg.HandoffTokenTTL)

	clock := clockwork.NewRealClock()

	// Infrastructure
	sessions := store.NewSessionStore(clock, cfg.SessionMaxAge)
	defer sessions.Stop()
	tokens := store.NewTokenStore(clock)
	defer tokens.Stop()

	accounts := make([]gateway.Account, 0, len(cfg.DemoUsers))
	for _, u := range cfg.DemoUsers {
		accounts = append(accounts, gateway.Account{
			ID:       u.ID,
			Email:    u.Email,
			Name:     u.Name,
			Password: u.Password,
			Tenants:  u.Tenants,
		})
	}
	directory := gateway.NewDirectory(accounts, slog.Default())

	broker := infratoken.NewBroker(tokens, clock, cfg.HandoffTokenTTL, slog.Default())
	jwtIssuer := infratoken.NewJWTIssuer(infratoken.JWTConfig{
		Secret:   cfg.APITokenSecret,
		Issuer:   cfg.APITokenIssuer,
		Audience: cfg.APITokenAudience,
		TTL:      cfg.APITokenTTL,
	}, clock)

	// Usecases
	loginUC := usecase.NewLogin(directory, sessions, slog.Default())
	logoutUC := usecase.NewLogout(sessions, slog.Default())
	validateUC := usecase.NewValidateSession(directory, sessions, jwtIssuer, slog.Default())
	initSessionUC := usecase.NewInitTenantSession(broker, directory, slog.Default())
	verifyUC := usecase.NewVerifyHandoff(broker, directory, sessions, jwtIssuer, slog.Default())

	// Handlers
	authHandler := adapterhandler.NewAuthHandler(loginUC, logoutUC, validateUC, initSessionUC, cfg.CookieMaxAge)
	tenantHandler := adapterhandler.NewTenantHandler(verifyUC, domains, cfg.FrontendPort, cfg.CookieMaxAge, clock)
	healthHandler := adapterhandler.NewHealthHandler()

	// Setup Echo server
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Security middleware
	e.Use(appmiddleware.SecurityHeaders())
	e.Use(appmiddleware.RequestID())

	// OpenTelemetry tracing
	if otelCfg.Enabled {
		e.Use(otelecho.Middleware(otelCfg.ServiceName))
		e.Use(appmiddleware.OTelStatusMiddleware())
	}

	// Request logging
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		Skipper: func(c echo.Context) bool {
			return c.Request().URL.Path == "/health"
		},
		LogStatus:   true,
		LogURI:      true,
		LogError:    true,
		LogMethod:   true,
		LogLatency:  true,
		HandleError: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			rctx := c.Request().Context()
			if v.Error == nil {
				slog.InfoContext(rctx, "request completed",
					"method", v.Method,
					"uri", v.URI,
					"host", c.Request().Host,
					"status", v.Status,
					"latency_ms", v.Latency.Milliseconds())
			} else {
				slog.ErrorContext(rctx, "request failed",
					"method", v.Method,
					"uri", v.URI,
					"host", c.Request().Host,
					"status", v.Status,
					"latency_ms", v.Latency.Milliseconds(),
					"error", v.Error.Error())
			}
			return nil
		},
	}))

	e.Use(middleware.Recover())

	// Browsers call the API from the login and tenant frontends, with cookies.
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOriginFunc: func(origin string) (bool, error) {
			return allowOrigin(origin, cfg.DomainSuffix), nil
		},
		AllowCredentials: true,
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders:     []string{echo.HeaderContentType, echo.HeaderAccept, "X-Requested-With"},
		ExposeHeaders:    []string{"X-Gate-Api-Token"},
	}))

	e.Use(appmiddleware.SessionScope(domains, sessions, cfg.IdleTimeout))

	// Rate limiters per endpoint group
	loginRL := appmiddleware.NewRateLimiter(10.0/60.0, 3) // 10 req/min
	defer loginRL.Stop()
	validateRL := appmiddleware.NewRateLimiter(100.0/60.0, 10) // 100 req/min
	defer validateRL.Stop()
	handoffRL := appmiddleware.NewRateLimiter(30.0/60.0, 5) // 30 req/min
	defer handoffRL.Stop()

	e.GET("/health", healthHandler.Handle)

	api := e.Group("/api")

	auth := api.Group("/auth")
	auth.POST("/login", authHandler.HandleLogin, loginRL.Middleware())
	auth.POST("/logout", authHandler.HandleLogout)
	auth.GET("/validate-session", authHandler.HandleValidateSession, validateRL.Middleware())
	auth.GET("/init-session/:tenantId", authHandler.HandleInitSession, handoffRL.Middleware())

	tenant := api.Group("/tenant")
	tenant.GET("/verify-token/:token", tenantHandler.HandleVerifyToken, handoffRL.Middleware())
	tenant.GET("/dashboard", tenantHandler.HandleDashboard, appmiddleware.RequireAuthenticated())
	tenant.GET("/ping", tenantHandler.HandlePing, appmiddleware.RequireAuthenticated())

	users := api.Group("/users")
	users.GET("/login/me", authHandler.HandleMe, appmiddleware.RequireAuthenticated())
	users.GET("/tenant/me", authHandler.HandleMe, appmiddleware.RequireAuthenticated())

	// Start server with errgroup for graceful shutdown
	address := fmt.Sprintf(":%s", cfg.Port)
	slog.InfoContext(ctx, "starting tenant-gate server", "address", address)

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := e.Start(address); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gCtx.Done()
		slog.Info("shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return e.Shutdown(shutdownCtx)
	})

	g.Go(func() error {
		<-gCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return otelShutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("shutdown error", "error", err)
		os.Exit(1)
	}

	slog.Info("server exited properly")
}

// allowOrigin admits the login frontend and every tenant frontend under the
// configured suffix, with or without a port. Anything else is refused.
func allowOrigin(origin, suffix string) bool {
	rest, ok := strings.CutPrefix(origin, "http://")
	if !ok {
		rest, ok = strings.CutPrefix(origin, "https://")
	}
	if !ok {
		return false
	}

	host := rest
	if i := strings.LastIndex(rest, ":"); i >= 0 {
		host = rest[:i]
	}
	return strings.HasSuffix(strings.ToLower(host), "."+strings.ToLower(suffix))
}

// runHealthcheck performs a health check against the local server.
func runHealthcheck() error {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	client := &http.Client{Timeout: 2 * time.Second}
	resp, err := client.Get(fmt.Sprintf("http://127.0.0.1:%s/health", port))
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health endpoint returned status: %d", resp.StatusCode)
	}
	return nil
}
