// Package api exposes the storefront over HTTP: catalog browsing, the cart,
// checkout, the offline queue and order tracking. It is a thin layer that
// maps requests onto the domain components and their errors onto status
// codes.
package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/time/rate"

	"github.com/itsneelabh/storefront/cart"
	"github.com/itsneelabh/storefront/catalog"
	"github.com/itsneelabh/storefront/checkout"
	"github.com/itsneelabh/storefront/connectivity"
	"github.com/itsneelabh/storefront/core"
	"github.com/itsneelabh/storefront/keysync"
	"github.com/itsneelabh/storefront/queue"
	"github.com/itsneelabh/storefront/tracker"
)

// Deps are the components the API serves. Catalog, Cart, Checkout, Queue
// and Tracker are required; Monitor and Keys are optional.
type Deps struct {
	Catalog  *catalog.Service
	Cart     *cart.Cart
	Checkout *checkout.Flow
	Queue    *queue.Queue
	Tracker  *tracker.Tracker
	Local    core.Memory
	Monitor  *connectivity.Monitor
	Keys     *keysync.Fetcher
}

func (d Deps) validate() error {
	missing := ""
	switch {
	case d.Catalog == nil:
		missing = "catalog"
	case d.Cart == nil:
		missing = "cart"
	case d.Checkout == nil:
		missing = "checkout"
	case d.Queue == nil:
		missing = "queue"
	case d.Tracker == nil:
		missing = "tracker"
	case d.Local == nil:
		missing = "local storage"
	}
	if missing != "" {
		return &core.StoreError{Op: "api.New", Kind: "config", Message: missing + " is required", Err: core.ErrMissingConfiguration}
	}
	return nil
}

// Server is the HTTP surface.
type Server struct {
	cfg    core.HTTPConfig
	deps   Deps
	echo   *echo.Echo
	http   *http.Server
	logger core.Logger
}

// Option configures a Server
type Option func(*Server)

// WithLogger sets the logger
func WithLogger(logger core.Logger) Option {
	return func(s *Server) { s.logger = core.ComponentLogger(logger, "api") }
}

// New builds the router. Nothing listens until Start.
func New(cfg core.HTTPConfig, deps Deps, opts ...Option) (*Server, error) {
	if err := deps.validate(); err != nil {
		return nil, err
	}
	s := &Server{cfg: cfg, deps: deps, logger: &core.NoOpLogger{}}
	for _, opt := range opts {
		opt(s)
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = s.handleError

	e.Use(middleware.Recover())
	e.Use(requestLogger(s.logger, cfg.LogAllRequests))
	if len(cfg.CORSOrigins) > 0 {
		e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
			AllowOrigins: cfg.CORSOrigins,
			AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodOptions},
			AllowHeaders: []string{echo.HeaderContentType},
			MaxAge:       86400,
		}))
	}
	if cfg.RateLimit > 0 {
		e.Use(middleware.RateLimiter(middleware.NewRateLimiterMemoryStore(rate.Limit(cfg.RateLimit))))
	}

	s.echo = e
	s.routes()
	return s, nil
}

func (s *Server) routes() {
	e := s.echo
	e.GET("/health", s.health)

	e.GET("/catalog", s.getCatalog)
	e.POST("/catalog/filters", s.setFilters)

	e.GET("/cart", s.getCart)
	e.POST("/cart/items", s.addItem)
	e.PATCH("/cart/items/:id", s.changeQty)
	e.DELETE("/cart/items/:id", s.removeItem)
	e.DELETE("/cart", s.clearCart)

	e.GET("/checkout/options", s.checkoutOptions)
	e.GET("/checkout/quote", s.quote)
	e.POST("/checkout", s.submit)

	e.POST("/queue/flush", s.flushQueue)

	e.GET("/orders", s.getOrder)
	e.GET("/orders/:id", s.getOrder)

	e.GET("/keys/:field", s.downloadKey)
}

// Handler returns the router wrapped with otel HTTP instrumentation.
func (s *Server) Handler() http.Handler {
	return otelhttp.NewHandler(s.echo, "storefront.api")
}

// Addr is the listen address derived from the configuration.
func (s *Server) Addr() string {
	return net.JoinHostPort(s.cfg.Address, strconv.Itoa(s.cfg.Port))
}

// Start listens until Shutdown. It returns nil after a clean shutdown.
func (s *Server) Start() error {
	s.http = &http.Server{
		Addr:         s.Addr(),
		Handler:      s.Handler(),
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}
	s.logger.Info("HTTP server listening", map[string]interface{}{
		"address": s.http.Addr,
	})
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}
