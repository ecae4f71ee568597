// Package api provides the HTTP API server implementation.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/stock-tracker/internal/circuitbreaker"
	apperrors "github.com/stock-tracker/internal/errors"
	"github.com/stock-tracker/internal/logging"
	"github.com/stock-tracker/internal/models"
	"github.com/stock-tracker/internal/service"
	"github.com/stock-tracker/internal/types"
	"github.com/stock-tracker/internal/worker"
)

// Service interfaces for dependency injection and testing

// PortfolioServiceInterface defines the interface for portfolio service operations
type PortfolioServiceInterface interface {
	AddHolding(ctx context.Context, input *service.AddHoldingInput) (*models.Holding, error)
	RemoveHolding(ctx context.Context, symbol string) (bool, error)
	Snapshot() service.PortfolioState
	DismissWarning(id string) bool
	SelectSymbol(symbol string) (*models.Stock, error)
}

// WatchlistServiceInterface defines the interface for watchlist operations
type WatchlistServiceInterface interface {
	Add(ctx context.Context, symbol, companyName string) (models.WatchlistItem, bool, error)
	Remove(ctx context.Context, symbol string) (bool, error)
	List() []models.WatchlistItem
}

// StockServiceInterface defines the interface for market data lookups
type StockServiceInterface interface {
	GetQuote(ctx context.Context, symbol string) (*models.Quote, error)
	Search(ctx context.Context, query string) ([]models.Stock, error)
	GetChart(ctx context.Context, symbol string, timeframe types.Timeframe) (*service.Chart, error)
}

// DetailViewInterface defines the interface for the selected-symbol view
type DetailViewInterface interface {
	Open(ctx context.Context, symbol string, timeframe types.Timeframe) (service.DetailViewState, error)
	State() service.DetailViewState
}

// RefreshController defines the interface for the refresh scheduler
type RefreshController interface {
	Trigger()
	Stats() worker.RefreshStats
}

// ProviderHealth exposes the quote provider's circuit breaker
type ProviderHealth interface {
	BreakerStats() *circuitbreaker.Stats
}

// Server represents the HTTP API server.
type Server struct {
	router           *mux.Router
	handler          http.Handler
	httpServer       *http.Server
	portfolioService PortfolioServiceInterface
	watchlistService WatchlistServiceInterface
	stockService     StockServiceInterface
	detailView       DetailViewInterface
	refresher        RefreshController
	quoteHealth      ProviderHealth
	logger           *logging.Logger
	config           *ServerConfig
}

// ServerConfig holds server configuration.
type ServerConfig struct {
	Host              string
	Port              string
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	ShutdownTimeout   time.Duration
	RequestsPerSecond int // Per-client request rate
	Burst             int // Per-client burst size
}

// Dependencies groups the services the server routes to
type Dependencies struct {
	Portfolio    PortfolioServiceInterface
	Watchlist    WatchlistServiceInterface
	Stocks       StockServiceInterface
	DetailView   DetailViewInterface
	Refresher    RefreshController
	QuotesHealth ProviderHealth
	Logger       *logging.Logger
}

// NewServer creates a new API server instance.
func NewServer(config *ServerConfig, deps Dependencies) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}

	s := &Server{
		router:           mux.NewRouter(),
		portfolioService: deps.Portfolio,
		watchlistService: deps.Watchlist,
		stockService:     deps.Stocks,
		detailView:       deps.DetailView,
		refresher:        deps.Refresher,
		quoteHealth:      deps.QuotesHealth,
		logger:           logger.WithField("component", "api"),
		config:           config,
	}

	s.setupRouter()

	return s
}

// setupRouter configures the router with middleware and routes
func (s *Server) setupRouter() {
	rateLimiter := NewRateLimiter(s.config.RequestsPerSecond, s.config.Burst)

	// Set up middleware (order matters!)
	s.router.Use(LoggingMiddleware(s.logger))
	s.router.Use(RecoveryMiddleware(s.logger))
	s.router.Use(RateLimitMiddleware(rateLimiter))
	s.router.Use(CompressionMiddleware)

	s.setupRoutes()

	// CORS wraps the router so preflight requests never reach route matching
	s.handler = CORSMiddleware(s.router)

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%s", s.config.Host, s.config.Port),
		Handler:      s.handler,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  s.config.IdleTimeout,
	}
}

// setupRoutes configures all API routes.
func (s *Server) setupRoutes() {
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")

	api := s.router.PathPrefix("/api").Subrouter()

	// Portfolio endpoints
	api.HandleFunc("/portfolio", s.handleGetPortfolio).Methods("GET")
	api.HandleFunc("/portfolio/holdings", s.handleAddHolding).Methods("POST")
	api.HandleFunc("/portfolio/holdings/{symbol}", s.handleSelectHolding).Methods("PUT")
	api.HandleFunc("/portfolio/holdings/{symbol}", s.handleRemoveHolding).Methods("DELETE")
	api.HandleFunc("/portfolio/refresh", s.handleRefresh).Methods("POST")
	api.HandleFunc("/portfolio/warnings/{id}", s.handleDismissWarning).Methods("DELETE")

	// Watchlist endpoints
	api.HandleFunc("/watchlist", s.handleListWatchlist).Methods("GET")
	api.HandleFunc("/watchlist", s.handleAddWatchlist).Methods("POST")
	api.HandleFunc("/watchlist/{symbol}", s.handleRemoveWatchlist).Methods("DELETE")

	// Market data endpoints
	api.HandleFunc("/stocks/search", s.handleSearchStocks).Methods("GET")
	api.HandleFunc("/stocks/{symbol}/quote", s.handleGetQuote).Methods("GET")
	api.HandleFunc("/stocks/{symbol}/chart", s.handleGetChart).Methods("GET")

	// Detail view endpoints
	api.HandleFunc("/detail", s.handleGetDetail).Methods("GET")
	api.HandleFunc("/detail", s.handleOpenDetail).Methods("PUT")

	s.router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		respondCategorized(w, apperrors.NewNotFoundError("route", r.URL.Path))
	})
}

// handleHealth handles health check requests.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	body := map[string]interface{}{
		"status":  "healthy",
		"service": "stock-tracker",
	}
	if s.refresher != nil {
		body["refresh"] = s.refresher.Stats()
	}
	if s.quoteHealth != nil {
		stats := s.quoteHealth.BreakerStats()
		body["quoteProvider"] = stats
		if stats.State == circuitbreaker.StateOpen {
			body["status"] = "degraded"
		}
	}
	respondJSON(w, http.StatusOK, body)
}

// Handler exposes the routed handler, mainly for tests
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.logger.WithField("addr", s.httpServer.Addr).Info("Starting API server")
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down API server")
	return s.httpServer.Shutdown(ctx)
}
