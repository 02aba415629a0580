package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"signalflow/logger"
	"signalflow/models"
)

// Client is a typed JSON-over-HTTP client for the aggregator's REST API.
// Requests carry a bearer token when one is configured, pass through a token
// bucket rate limiter, and successful GET responses are cached until the TTL
// expires or the stream invalidates the cache.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	limiter *rate.Limiter
	cache   *Cache
	log     *logger.Log
}

// Config carries the client settings. Zero values get sane defaults.
type Config struct {
	BaseURL           string
	Token             string
	Timeout           time.Duration
	CacheTTL          time.Duration
	RequestsPerSecond float64
	BurstSize         int
}

// NewClient creates a REST client for the given API origin.
func NewClient(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = 5
	}
	if cfg.BurstSize <= 0 {
		cfg.BurstSize = 10
	}

	return &Client{
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		token:   cfg.Token,
		http:    &http.Client{Timeout: cfg.Timeout},
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.BurstSize),
		cache:   NewCache(cfg.CacheTTL),
		log:     logger.GetLogger(),
	}
}

// Cache exposes the response cache so the stream client can invalidate it.
func (c *Client) Cache() *Cache {
	return c.cache
}

// SetToken swaps the bearer token used for subsequent requests.
func (c *Client) SetToken(token string) {
	c.token = token
}

func (c *Client) get(ctx context.Context, path string, query url.Values, out interface{}) error {
	key := path
	if len(query) > 0 {
		key = path + "?" + query.Encode()
	}

	if body, ok := c.cache.Get(key); ok {
		return json.Unmarshal(body, out)
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter wait: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+key, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request %s: %w", path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response %s: %w", path, err)
	}

	if resp.StatusCode != http.StatusOK {
		c.log.WithComponent("api_client").WithFields(logger.Fields{
			"path":   path,
			"status": resp.StatusCode,
		}).Warn("unexpected API status")
		return fmt.Errorf("request %s: unexpected status %d", path, resp.StatusCode)
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode response %s: %w", path, err)
	}

	c.cache.Set(key, body)
	return nil
}

// MarketResponse is the /live/market payload.
type MarketResponse struct {
	Coins     []MarketCoin           `json:"coins"`
	Global    map[string]interface{} `json:"global"`
	Count     int                    `json:"count"`
	Timestamp string                 `json:"timestamp"`
}

// MarketCoin is one market data entry.
type MarketCoin struct {
	Symbol         string    `json:"symbol"`
	Name           string    `json:"name"`
	Price          float64   `json:"price"`
	PriceChange24h float64   `json:"price_change_24h"`
	Volume24h      float64   `json:"volume_24h"`
	MarketCap      float64   `json:"market_cap"`
	Image          string    `json:"image,omitempty"`
	Sparkline      []float64 `json:"sparkline,omitempty"`
}

// Market fetches top coin market data.
func (c *Client) Market(ctx context.Context, limit int) (*MarketResponse, error) {
	query := url.Values{}
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}
	var out MarketResponse
	if err := c.get(ctx, "/live/market", query, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// TrendingResponse is the /live/trending payload.
type TrendingResponse struct {
	Trending           []map[string]interface{} `json:"trending"`
	SignalTrending     []map[string]interface{} `json:"signal_trending"`
	TotalSignals24h    int                      `json:"total_signals_24h"`
	MostActiveChannels []map[string]interface{} `json:"most_active_channels"`
	Timestamp          string                   `json:"timestamp"`
}

// Trending fetches trending tokens over the given window.
func (c *Client) Trending(ctx context.Context, hours int) (*TrendingResponse, error) {
	query := url.Values{}
	if hours > 0 {
		query.Set("hours", strconv.Itoa(hours))
	}
	var out TrendingResponse
	if err := c.get(ctx, "/live/trending", query, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// OHLCResponse is the /live/ohlc/{symbol} payload. Candles are
// [ts, open, high, low, close] rows.
type OHLCResponse struct {
	Symbol    string      `json:"symbol"`
	Candles   [][]float64 `json:"candles"`
	Days      int         `json:"days"`
	Count     int         `json:"count"`
	Timestamp string      `json:"timestamp"`
}

// OHLC fetches candlestick data for a symbol.
func (c *Client) OHLC(ctx context.Context, symbol string, days int) (*OHLCResponse, error) {
	if symbol == "" {
		return nil, fmt.Errorf("symbol is required")
	}
	query := url.Values{}
	if days > 0 {
		query.Set("days", strconv.Itoa(days))
	}
	var out OHLCResponse
	if err := c.get(ctx, "/live/ohlc/"+url.PathEscape(symbol), query, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SentimentResponse is the /live/sentiment payload.
type SentimentResponse struct {
	OverallSentiment string  `json:"overall_sentiment"`
	SentimentScore   float64 `json:"sentiment_score"`
	BullishPercent   float64 `json:"bullish_percent"`
	BearishPercent   float64 `json:"bearish_percent"`
	NeutralPercent   float64 `json:"neutral_percent"`
	FearGreedIndex   float64 `json:"fear_greed_index"`
}

// Sentiment fetches the market sentiment analysis.
func (c *Client) Sentiment(ctx context.Context, hours int) (*SentimentResponse, error) {
	query := url.Values{}
	if hours > 0 {
		query.Set("hours", strconv.Itoa(hours))
	}
	var out SentimentResponse
	if err := c.get(ctx, "/live/sentiment", query, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// StatsResponse is the /live/stats payload.
type StatsResponse struct {
	TotalSignals    int `json:"total_signals"`
	ActiveChannels  int `json:"active_channels"`
	TrackedTokens   int `json:"tracked_tokens"`
	SignalsLastHour int `json:"signals_last_hour"`
	SignalsLast24h  int `json:"signals_last_24h"`
}

// Stats fetches live platform statistics.
func (c *Client) Stats(ctx context.Context) (*StatsResponse, error) {
	var out StatsResponse
	if err := c.get(ctx, "/live/stats", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SignalsResponse is the /signals list payload.
type SignalsResponse struct {
	Signals []models.Signal `json:"signals"`
	Total   int             `json:"total"`
}

// Signals fetches the most recent persisted signals.
func (c *Client) Signals(ctx context.Context, limit int) (*SignalsResponse, error) {
	query := url.Values{}
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}
	var out SignalsResponse
	if err := c.get(ctx, "/signals", query, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// TrackedToken is one entry of the tracking list.
type TrackedToken struct {
	Symbol   string   `json:"symbol"`
	Name     string   `json:"name,omitempty"`
	PriceUSD *float64 `json:"price_usd,omitempty"`
	IsActive bool     `json:"is_active"`
}

// TrackedTokens fetches the user's tracked token list.
func (c *Client) TrackedTokens(ctx context.Context) ([]TrackedToken, error) {
	var out []TrackedToken
	if err := c.get(ctx, "/tracking/tokens", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Notifications fetches pending notifications.
func (c *Client) Notifications(ctx context.Context, limit int) ([]models.Notification, error) {
	query := url.Values{}
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}
	var out []models.Notification
	if err := c.get(ctx, "/notifications", query, &out); err != nil {
		return nil, err
	}
	return out, nil
}
