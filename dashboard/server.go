package dashboard

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"signalflow/api"
	"signalflow/config"
	"signalflow/logger"
	"signalflow/metrics"
	"signalflow/store"
	"signalflow/stream"
)

// StreamController is the slice of the stream client the dashboard drives.
type StreamController interface {
	State() stream.ConnState
	Attempts() int
	Subscribe(kind, value string) bool
	Unsubscribe(kind, value string) bool
}

// OHLCFallback supplies candle data when the aggregator's OHLC endpoint is
// unavailable.
type OHLCFallback interface {
	OHLC(ctx context.Context, symbol string, days int) (*api.OHLCResponse, error)
}

// Server hosts the Gin-powered local JSON API for signalflow.
type Server struct {
	cfg             config.DashboardConfig
	log             *logger.Log
	logStore        *logStore
	resourceSampler *resourceSampler
	store           *store.Store
	streamClient    StreamController
	apiClient       *api.Client
	fallback        OHLCFallback
	httpServer      *http.Server
	appName         string
	version         string
	started         time.Time
}

// NewServer constructs a dashboard server when the dashboard feature is
// enabled. When the dashboard is disabled the returned server will be nil.
func NewServer(cfg config.DashboardConfig, log *logger.Log, st *store.Store, sc StreamController, apiClient *api.Client, fallback OHLCFallback) (*Server, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	cfg.Address = normalizeAddress(cfg.Address)

	refresh := cfg.RefreshInterval.Std()
	if refresh <= 0 {
		refresh = 5 * time.Second
	}

	if cfg.LogHistory <= 0 {
		cfg.LogHistory = 200
	}

	logStore := newLogStore(cfg.LogHistory)
	log.AddHook(logStore)

	sampler := newResourceSampler(cfg.LogHistory, refresh, "/", log)

	return &Server{
		cfg:             cfg,
		log:             log,
		logStore:        logStore,
		resourceSampler: sampler,
		store:           st,
		streamClient:    sc,
		apiClient:       apiClient,
		fallback:        fallback,
	}, nil
}

// Run starts the dashboard HTTP server and blocks until the provided context
// is cancelled or the underlying HTTP server exits with an error.
func (s *Server) Run(ctx context.Context, appName, version string) error {
	if s == nil {
		return nil
	}

	defer s.cleanup()

	s.appName = appName
	s.version = version
	s.started = time.Now()

	router, err := s.buildRouter()
	if err != nil {
		return err
	}

	if s.resourceSampler != nil {
		s.resourceSampler.start(ctx)
	}

	s.httpServer = &http.Server{
		Addr:    s.cfg.Address,
		Handler: router,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		<-errCh
		return nil
	case err := <-errCh:
		if err == nil {
			return nil
		}
		return err
	}
}

func (s *Server) cleanup() {
	if s.logStore != nil {
		s.logStore.close()
	}
	if s.resourceSampler != nil {
		s.resourceSampler.stop()
	}
}

// Address reports the network address the dashboard server listens on.
func (s *Server) Address() string {
	if s == nil {
		return ""
	}
	return s.cfg.Address
}

func (s *Server) buildRouter() (*gin.Engine, error) {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	// Don't trust forwarded headers; client IPs come from the socket.
	if err := router.SetTrustedProxies(nil); err != nil {
		return nil, err
	}

	router.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"service": s.appName,
			"version": s.version,
			"status":  "running",
		})
	})

	router.GET("/api/status", s.handleStatus)
	router.GET("/api/signals", s.handleSignals)
	router.GET("/api/market", s.handleMarket)
	router.GET("/api/sentiment", s.handleSentiment)
	router.GET("/api/trending", s.handleTrending)
	router.GET("/api/prices", s.handlePrices)
	router.GET("/api/prices/:symbol", s.handlePriceHistory)
	router.GET("/api/transfers", s.handleTransfers)
	router.GET("/api/messages", s.handleMessages)
	router.GET("/api/ohlc/:symbol", s.handleOHLC)
	router.GET("/api/logs", s.handleLogs)
	router.GET("/api/resources", s.handleResources)
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	router.POST("/api/clear", s.handleClear)
	router.POST("/api/subscribe", s.handleSubscribe(true))
	router.POST("/api/unsubscribe", s.handleSubscribe(false))

	return router, nil
}

func (s *Server) handleStatus(c *gin.Context) {
	state := stream.StateDisconnected
	attempts := 0
	if s.streamClient != nil {
		state = s.streamClient.State()
		attempts = s.streamClient.Attempts()
	}
	c.JSON(http.StatusOK, gin.H{
		"connection":         state.String(),
		"reconnect_attempts": attempts,
		"uptime_seconds":     int(time.Since(s.started).Seconds()),
		"counters":           metrics.Snapshot(),
		"buffered": gin.H{
			"signals":   len(s.store.Signals()),
			"market":    len(s.store.MarketUpdates()),
			"messages":  len(s.store.ChannelMessages()),
			"transfers": len(s.store.Transfers()),
			"prices":    len(s.store.Prices()),
		},
	})
}

func (s *Server) handleSignals(c *gin.Context) {
	signals := s.store.Signals()
	if limit := parseLimit(c.Query("limit")); limit > 0 && limit < len(signals) {
		signals = signals[:limit]
	}
	c.JSON(http.StatusOK, gin.H{"signals": signals, "count": len(signals)})
}

func (s *Server) handleMarket(c *gin.Context) {
	updates := s.store.MarketUpdates()
	c.JSON(http.StatusOK, gin.H{"updates": updates, "count": len(updates)})
}

func (s *Server) handleSentiment(c *gin.Context) {
	snap, ok := s.store.Sentiment()
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "no sentiment snapshot received yet"})
		return
	}
	c.JSON(http.StatusOK, snap)
}

func (s *Server) handleTrending(c *gin.Context) {
	snap, ok := s.store.Trending()
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "no trending snapshot received yet"})
		return
	}
	c.JSON(http.StatusOK, snap)
}

func (s *Server) handlePrices(c *gin.Context) {
	prices := s.store.Prices()
	c.JSON(http.StatusOK, gin.H{"tokens": prices, "count": len(prices)})
}

func (s *Server) handlePriceHistory(c *gin.Context) {
	symbol := strings.ToUpper(c.Param("symbol"))
	price, ok := s.store.Price(symbol)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "symbol not tracked", "symbol": symbol})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"symbol":  symbol,
		"price":   price,
		"history": s.store.PriceHistory(symbol),
	})
}

func (s *Server) handleTransfers(c *gin.Context) {
	transfers := s.store.Transfers()
	c.JSON(http.StatusOK, gin.H{"transfers": transfers, "count": len(transfers)})
}

func (s *Server) handleMessages(c *gin.Context) {
	messages := s.store.ChannelMessages()
	c.JSON(http.StatusOK, gin.H{"messages": messages, "count": len(messages)})
}

func (s *Server) handleOHLC(c *gin.Context) {
	symbol := strings.ToUpper(c.Param("symbol"))
	days := parseLimit(c.Query("days"))
	if days <= 0 {
		days = 7
	}

	ctx := c.Request.Context()

	if s.apiClient != nil {
		if resp, err := s.apiClient.OHLC(ctx, symbol, days); err == nil {
			c.JSON(http.StatusOK, resp)
			return
		} else {
			s.log.WithComponent("dashboard").WithError(err).WithFields(logger.Fields{
				"symbol": symbol,
			}).Debug("ohlc request failed, trying fallback")
		}
	}

	if s.fallback != nil {
		if resp, err := s.fallback.OHLC(ctx, symbol, days); err == nil {
			c.JSON(http.StatusOK, resp)
			return
		} else {
			s.log.WithComponent("dashboard").WithError(err).WithFields(logger.Fields{
				"symbol": symbol,
			}).Debug("ohlc fallback failed")
		}
	}

	c.JSON(http.StatusBadGateway, gin.H{"error": "candle data unavailable", "symbol": symbol})
}

func (s *Server) handleLogs(c *gin.Context) {
	logsSnapshot := s.logStore.snapshot()
	payload := make([]gin.H, 0, len(logsSnapshot))
	for _, l := range logsSnapshot {
		payload = append(payload, gin.H{
			"timestamp": l.Timestamp.Format(time.RFC3339Nano),
			"level":     l.Level,
			"component": l.Component,
			"message":   l.Message,
			"fields":    l.Fields,
		})
	}
	c.JSON(http.StatusOK, gin.H{"logs": payload})
}

func (s *Server) handleResources(c *gin.Context) {
	snapshots := s.resourceSampler.snapshot()
	payload := make([]gin.H, 0, len(snapshots))
	for _, snap := range snapshots {
		payload = append(payload, gin.H{
			"timestamp":      snap.Timestamp.Format(time.RFC3339Nano),
			"cpu_percent":    snap.CPUPercent,
			"memory_used":    snap.MemoryUsed,
			"memory_total":   snap.MemoryTotal,
			"memory_percent": snap.MemoryPct,
			"disk_used":      snap.DiskUsed,
			"disk_total":     snap.DiskTotal,
			"disk_percent":   snap.DiskPct,
		})
	}
	c.JSON(http.StatusOK, gin.H{"resources": payload})
}

func (s *Server) handleClear(c *gin.Context) {
	s.store.Clear()
	if s.apiClient != nil {
		s.apiClient.Cache().Invalidate()
	}
	c.JSON(http.StatusOK, gin.H{"cleared": true})
}

type subscribeRequest struct {
	Type  string `json:"type" binding:"required"`
	Value string `json:"value" binding:"required"`
}

func (s *Server) handleSubscribe(subscribe bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req subscribeRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if s.streamClient == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "stream client not running"})
			return
		}

		var sent bool
		if subscribe {
			sent = s.streamClient.Subscribe(req.Type, req.Value)
		} else {
			sent = s.streamClient.Unsubscribe(req.Type, req.Value)
		}
		if !sent {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "stream not connected, command dropped"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"sent": true, "type": req.Type, "value": req.Value})
	}
}

func parseLimit(raw string) int {
	if raw == "" {
		return 0
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0
	}
	return n
}

func normalizeAddress(addr string) string {
	addr = strings.TrimSpace(addr)

	if addr == "" {
		return "0.0.0.0:8080"
	}

	if strings.Contains(addr, "://") {
		if parsed, err := url.Parse(addr); err == nil {
			if host := parsed.Host; host != "" {
				addr = host
			} else if parsed.Opaque != "" {
				addr = parsed.Opaque
			}
		}
	}

	if strings.HasPrefix(addr, ":") {
		if len(addr) > 1 && addr[1] >= '0' && addr[1] <= '9' {
			return "0.0.0.0" + addr
		}
	}

	host, port, err := net.SplitHostPort(addr)
	if err == nil {
		if host == "" || host == "*" {
			host = "0.0.0.0"
		}
		if port == "" {
			port = "8080"
		}
		return net.JoinHostPort(host, port)
	}

	if ip := net.ParseIP(addr); ip != nil {
		return net.JoinHostPort(addr, "8080")
	}

	if !strings.Contains(addr, ":") {
		return net.JoinHostPort(addr, "8080")
	}

	return addr
}
