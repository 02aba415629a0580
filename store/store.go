package store

import (
	"sync"

	"signalflow/models"
)

// Default buffer capacities. Each history buffer keeps its newest entries
// first and never grows past its capacity.
const (
	DefaultSignalCapacity         = 100
	DefaultMarketUpdateCapacity   = 100
	DefaultChannelMessageCapacity = 200
	DefaultTransferCapacity       = 50
	DefaultPriceHistoryCapacity   = 500
)

// Capacities configures the bounded buffers of a Store. Zero or negative
// values fall back to the defaults.
type Capacities struct {
	Signals         int
	MarketUpdates   int
	ChannelMessages int
	Transfers       int
	PriceHistory    int
}

func (c Capacities) normalized() Capacities {
	if c.Signals <= 0 {
		c.Signals = DefaultSignalCapacity
	}
	if c.MarketUpdates <= 0 {
		c.MarketUpdates = DefaultMarketUpdateCapacity
	}
	if c.ChannelMessages <= 0 {
		c.ChannelMessages = DefaultChannelMessageCapacity
	}
	if c.Transfers <= 0 {
		c.Transfers = DefaultTransferCapacity
	}
	if c.PriceHistory <= 0 {
		c.PriceHistory = DefaultPriceHistoryCapacity
	}
	return c
}

// Store holds everything collected from the live stream. It is written only
// by the stream client's dispatch callbacks and read by the dashboard, so a
// single RWMutex is enough. History buffers are newest-first; the per symbol
// price history keeps insertion order.
type Store struct {
	mu   sync.RWMutex
	caps Capacities

	signals         []models.Signal
	marketUpdates   []models.MarketUpdate
	channelMessages []models.ChannelMessage
	transfers       []models.TrackedTransfer

	sentiment *models.SentimentSnapshot
	trending  *models.TrendingSnapshot

	prices       map[string]models.TrackedPrice
	priceHistory map[string][]models.PricePoint
}

// New creates a Store with the provided capacities.
func New(caps Capacities) *Store {
	return &Store{
		caps:         caps.normalized(),
		prices:       make(map[string]models.TrackedPrice),
		priceHistory: make(map[string][]models.PricePoint),
	}
}

// prepend inserts item at the head of buf and trims to cap entries.
func prepend[T any](buf []T, item T, capacity int) []T {
	buf = append(buf, item)
	copy(buf[1:], buf[:len(buf)-1])
	buf[0] = item
	if len(buf) > capacity {
		buf = buf[:capacity]
	}
	return buf
}

// AddSignal records a new signal at the head of the signal buffer.
func (s *Store) AddSignal(sig models.Signal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.signals = prepend(s.signals, sig, s.caps.Signals)
}

// AddMarketUpdate records a market update at the head of its buffer.
func (s *Store) AddMarketUpdate(mu models.MarketUpdate) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.marketUpdates = prepend(s.marketUpdates, mu, s.caps.MarketUpdates)
}

// AddChannelMessage records a monitored channel message.
func (s *Store) AddChannelMessage(msg models.ChannelMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.channelMessages = prepend(s.channelMessages, msg, s.caps.ChannelMessages)
}

// AddTransfer records a tracked on-chain transfer.
func (s *Store) AddTransfer(tr models.TrackedTransfer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transfers = prepend(s.transfers, tr, s.caps.Transfers)
}

// SetSentiment replaces the current sentiment snapshot.
func (s *Store) SetSentiment(snap models.SentimentSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sentiment = &snap
}

// SetTrending replaces the current trending snapshot.
func (s *Store) SetTrending(snap models.TrendingSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.trending = &snap
}

// UpsertPrices merges a tracked price batch into the price map and appends a
// history point per entry that carries a price. Entries without a symbol are
// dropped. History keeps insertion order and drops its oldest points past
// capacity.
func (s *Store) UpsertPrices(batch models.TrackedPriceBatch) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, price := range batch.Tokens {
		if price.Symbol == "" {
			continue
		}
		s.prices[price.Symbol] = price

		if price.PriceUSD == nil {
			continue
		}
		history := append(s.priceHistory[price.Symbol], models.PricePoint{
			Time:  price.UpdatedAt,
			Price: *price.PriceUSD,
		})
		if len(history) > s.caps.PriceHistory {
			history = append([]models.PricePoint(nil), history[len(history)-s.caps.PriceHistory:]...)
		}
		s.priceHistory[price.Symbol] = history
	}
}

// Clear empties the signal, market update and channel message buffers. Price
// state, transfers and snapshots are kept; the connection is not touched.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.signals = nil
	s.marketUpdates = nil
	s.channelMessages = nil
}

// Signals returns the buffered signals, newest first.
func (s *Store) Signals() []models.Signal {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Signal, len(s.signals))
	copy(out, s.signals)
	return out
}

// MarketUpdates returns the buffered market updates, newest first.
func (s *Store) MarketUpdates() []models.MarketUpdate {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.MarketUpdate, len(s.marketUpdates))
	copy(out, s.marketUpdates)
	return out
}

// ChannelMessages returns the buffered channel messages, newest first.
func (s *Store) ChannelMessages() []models.ChannelMessage {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.ChannelMessage, len(s.channelMessages))
	copy(out, s.channelMessages)
	return out
}

// Transfers returns the buffered tracked transfers, newest first.
func (s *Store) Transfers() []models.TrackedTransfer {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.TrackedTransfer, len(s.transfers))
	copy(out, s.transfers)
	return out
}

// Sentiment returns the current sentiment snapshot, if one has arrived.
func (s *Store) Sentiment() (models.SentimentSnapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.sentiment == nil {
		return models.SentimentSnapshot{}, false
	}
	return *s.sentiment, true
}

// Trending returns the current trending snapshot, if one has arrived.
func (s *Store) Trending() (models.TrendingSnapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.trending == nil {
		return models.TrendingSnapshot{}, false
	}
	return *s.trending, true
}

// Price returns the last observed price for a symbol.
func (s *Store) Price(symbol string) (models.TrackedPrice, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.prices[symbol]
	return p, ok
}

// Prices returns the last observed price of every tracked symbol.
func (s *Store) Prices() map[string]models.TrackedPrice {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]models.TrackedPrice, len(s.prices))
	for k, v := range s.prices {
		out[k] = v
	}
	return out
}

// PriceHistory returns the recorded price points for a symbol in insertion
// order, oldest first.
func (s *Store) PriceHistory(symbol string) []models.PricePoint {
	s.mu.RLock()
	defer s.mu.RUnlock()
	history := s.priceHistory[symbol]
	out := make([]models.PricePoint, len(history))
	copy(out, history)
	return out
}
