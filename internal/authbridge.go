package internal

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"os/signal"
	"syscall"
	"time"

	"github.com/dgellow/authbridge/internal/browserauth"
	"github.com/dgellow/authbridge/internal/config"
	"github.com/dgellow/authbridge/internal/cookie"
	"github.com/dgellow/authbridge/internal/crypto"
	"github.com/dgellow/authbridge/internal/discovery"
	"github.com/dgellow/authbridge/internal/log"
	"github.com/dgellow/authbridge/internal/origin"
	"github.com/dgellow/authbridge/internal/server"
	"golang.org/x/sync/errgroup"
)

// AssetsPath is where the wasm bundles are served.
const AssetsPath = "/assets"

// SessionPath is the origin session endpoint polled by the gate.
const SessionPath = "/api/session"

const (
	shutdownTimeout  = 30 * time.Second
	probeHTTPTimeout = 10 * time.Second
)

// AuthBridge is the HTTP side of the auth bridge: the origin's gate and
// session endpoints, the satellite page, or both.
type AuthBridge struct {
	config     config.Config
	handler    http.Handler
	httpServer *server.HTTPServer
	prober     *discovery.Prober
}

// NewAuthBridge builds the application for cfg.
func NewAuthBridge(cfg config.Config) (*AuthBridge, error) {
	log.LogInfoWithFields("authbridge", "Building auth bridge", map[string]any{
		"baseURL":   cfg.Server.BaseURL,
		"gate":      cfg.Gate != nil,
		"satellite": cfg.Satellite != nil,
	})

	self, err := origin.Parse(cfg.Server.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}

	handler, err := buildHTTPHandler(cfg, self)
	if err != nil {
		return nil, fmt.Errorf("failed to build HTTP handler: %w", err)
	}

	app := &AuthBridge{
		config:     cfg,
		handler:    handler,
		httpServer: server.NewHTTPServer(handler, cfg.Server.Addr),
	}

	if sat := cfg.Satellite; sat != nil {
		if _, err := sat.GateOrigin(); err == nil {
			app.prober = discovery.NewProber(&http.Client{Timeout: probeHTTPTimeout}, sat.GateURL, self, sat.ProbeTimeout)
		}
	}

	return app, nil
}

// Handler returns the root HTTP handler.
func (a *AuthBridge) Handler() http.Handler {
	return a.handler
}

// Run serves until ctx is cancelled or the process receives SIGINT or
// SIGTERM, then shuts down gracefully.
func (a *AuthBridge) Run(ctx context.Context) error {
	log.LogInfoWithFields("authbridge", "Starting auth bridge", map[string]any{
		"addr": a.config.Server.Addr,
	})

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := a.httpServer.Start(); err != nil {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	if a.prober != nil {
		g.Go(func() error {
			return a.prober.Run(gctx)
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		log.LogInfoWithFields("authbridge", "Starting graceful shutdown", map[string]any{
			"reason":  context.Cause(gctx).Error(),
			"timeout": shutdownTimeout.String(),
		})

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return a.httpServer.Stop(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.LogErrorWithFields("authbridge", "Auth bridge stopped with error", map[string]any{
			"error": err.Error(),
		})
		return err
	}

	log.LogInfoWithFields("authbridge", "Application shutdown complete", nil)
	return nil
}

func buildHTTPHandler(cfg config.Config, self origin.Origin) (http.Handler, error) {
	mux := http.NewServeMux()

	nonce := server.NewNonceMiddleware()
	sameOrigin := server.NewSameOriginMiddleware(self)

	mux.Handle("GET /health", server.NewHealthHandler())

	if cfg.Server.AssetsDir != "" {
		mux.Handle("GET "+AssetsPath+"/", server.NewAssetsHandler(AssetsPath, cfg.Server.AssetsDir))
	} else {
		log.LogWarnWithFields("authbridge", "No assetsDir configured, pages will not find their wasm bundles", nil)
	}

	if gate := cfg.Gate; gate != nil {
		allowed, err := gate.AllowList()
		if err != nil {
			return nil, fmt.Errorf("gate allowed origins: %w", err)
		}

		sessionURL, err := url.JoinPath(cfg.Server.BaseURL, SessionPath)
		if err != nil {
			return nil, fmt.Errorf("building session URL: %w", err)
		}
		gateURL, err := url.JoinPath(cfg.Server.BaseURL, gate.Path)
		if err != nil {
			return nil, fmt.Errorf("building gate URL: %w", err)
		}

		key := []byte(gate.SessionSecret)
		sessionHandlers := server.NewSessionHandlers(
			browserauth.NewSessions(key, gate.SessionTTL),
			crypto.NewCSRFProtection(key, cookie.CSRFMaxAge),
		)

		gatePage := server.NewGatePageHandler(allowed, sessionURL, gate.PollInterval, AssetsPath)
		mux.Handle("GET "+gate.Path, server.ChainMiddleware(gatePage, nonce))

		mux.Handle("GET "+SessionPath, server.ChainMiddleware(http.HandlerFunc(sessionHandlers.GetHandler), sameOrigin))
		mux.Handle("POST "+SessionPath, server.ChainMiddleware(http.HandlerFunc(sessionHandlers.PostHandler), sameOrigin))
		mux.Handle("DELETE "+SessionPath, server.ChainMiddleware(http.HandlerFunc(sessionHandlers.DeleteHandler), sameOrigin))
		mux.Handle("GET "+SessionPath+"/csrf", server.ChainMiddleware(http.HandlerFunc(sessionHandlers.CSRFHandler), sameOrigin))

		mux.Handle(discovery.Path, discovery.NewHandler(discovery.NewDocument(gateURL, allowed)))

		log.LogInfoWithFields("authbridge", "Gate enabled", map[string]any{
			"gate_url":        gateURL,
			"allowed_origins": allowed.String(),
			"poll_interval":   gate.PollInterval.String(),
		})
	}

	if sat := cfg.Satellite; sat != nil {
		page := server.NewSatellitePageHandler(server.SatellitePageConfig{
			GateURL:    sat.GateURL,
			TokenURL:   sat.TokenURL,
			RevokeURL:  sat.RevokeURL,
			ClientID:   sat.ClientID,
			AssetsPath: AssetsPath,
		})
		mux.Handle("GET /{$}", server.ChainMiddleware(page, nonce))

		log.LogInfoWithFields("authbridge", "Satellite enabled", map[string]any{
			"gate_url":  sat.GateURL,
			"token_url": sat.TokenURL,
		})
	}

	// First listed runs innermost
	return server.ChainMiddleware(mux,
		server.NewRecoverMiddleware("http"),
		server.NewLoggerMiddleware("http"),
		server.NewSecurityHeadersMiddleware(),
		server.NewRequestIDMiddleware(),
	), nil
}
