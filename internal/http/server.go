package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"subtrack/internal/cache"
	"subtrack/internal/log"
	"subtrack/internal/middleware/ratelimit"
	"subtrack/internal/middleware/security"
	"subtrack/internal/middleware/trace"
	"subtrack/internal/rates"
	"subtrack/internal/services"
)

const (
	listCacheSize     = 64
	listCacheTTL      = 5 * time.Minute
	cacheCleanupEvery = 10 * time.Minute
)

// RatesProvider is satisfied by *rates.Provider.
type RatesProvider interface {
	Current(ctx context.Context) rates.Table
	Refresh(ctx context.Context) rates.Table
}

// Config wires a Server. Service is required; everything else has a default.
type Config struct {
	Addr    string
	Service *services.SubscriptionService
	// Rates may be nil, in which case the fallback table is served and
	// refresh is unavailable.
	Rates RatesProvider
	// Ready reports backend health for /readyz. Nil means always ready.
	Ready func(ctx context.Context) error
	// RefreshLimit is how many manual rate refreshes a client may make per minute.
	RefreshLimit int
	Logger       *log.Logger
	Now          func() time.Time
}

type Server struct {
	http.Server
	service *services.SubscriptionService
	rates   RatesProvider
	ready   func(ctx context.Context) error
	now     func() time.Time
	logger  *log.Logger

	detector       *security.Detector
	refreshLimiter *ratelimit.Limiter

	// Computed list views keyed by sort criterion and day
	listCache    *cache.LRUCache[[]SubscriptionView]
	cacheManager *cache.Manager

	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run http.Server.
func NewServer(cfg Config) *Server {
	logger := log.OrDefault(cfg.Logger, log.ComponentHTTP)
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	s := &Server{
		service:   cfg.Service,
		rates:     cfg.Rates,
		ready:     cfg.Ready,
		now:       now,
		logger:    logger,
		detector:  security.NewDetector(),
		listCache: cache.NewLRUCache[[]SubscriptionView](listCacheSize, listCacheTTL),
		refreshLimiter: ratelimit.NewLimiter(ratelimit.Config{
			Requests: cfg.RefreshLimit,
			Window:   time.Minute,
		}),
		cacheManager: cache.NewManager(),
	}
	s.cacheManager.Register(s.listCache)
	s.cacheManager.StartCleanup(cacheCleanupEvery)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)

	mux.HandleFunc("GET /api/subscriptions", s.handleListSubscriptions)
	mux.HandleFunc("POST /api/subscriptions", s.handleCreateSubscription)
	mux.HandleFunc("GET /api/subscriptions/{id}", s.handleGetSubscription)
	mux.HandleFunc("PUT /api/subscriptions/{id}", s.handleUpdateSubscription)
	mux.HandleFunc("DELETE /api/subscriptions/{id}", s.handleDeleteSubscription)
	mux.HandleFunc("GET /api/totals", s.handleTotals)

	mux.HandleFunc("GET /api/rates", s.handleRates)
	limitRefresh := s.refreshLimiter.Middleware(s.detector.ExtractClientIP, func(w http.ResponseWriter, r *http.Request) {
		log.FromContext(r.Context()).WarnContext(r.Context(), "Rate refresh limit exceeded",
			log.FieldClientIP, s.detector.ExtractClientIP(r))
		TooManyRequestsError().Write(w)
	})
	mux.Handle("POST /api/rates/refresh", limitRefresh(http.HandlerFunc(s.handleRefreshRates)))

	headers := security.NewHeadersMiddleware(security.DefaultHeadersConfig())

	var handler http.Handler = mux
	handler = s.detector.Middleware(handler)
	handler = headers.Middleware(handler)
	handler = log.Middleware(logger, trace.FromRequest)(handler)
	handler = trace.Middleware(handler)

	s.Server = http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s
}

// Shutdown gracefully shuts down the server and cleanup routines
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error

	s.shutdownOnce.Do(func() {
		s.cacheManager.Stop()
		s.refreshLimiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})

	return shutdownErr
}

// SecurityMetrics exposes the detector and limiter counters.
func (s *Server) SecurityMetrics() (security.DetectionMetrics, ratelimit.Metrics) {
	return s.detector.GetMetrics(), s.refreshLimiter.GetMetrics()
}

func (s *Server) invalidateLists() {
	s.listCache.Clear()
}
