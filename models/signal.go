package models

// Sentiment classifications used by signals and the market snapshot.
const (
	SentimentBullish = "BULLISH"
	SentimentBearish = "BEARISH"
	SentimentNeutral = "NEUTRAL"
)

// Signal is a trading relevant event detected in a source channel. Mirrors the
// aggregator's signal schema; optional price fields stay pointers so absent
// values survive round trips.
type Signal struct {
	ID              int64    `json:"id"`
	ChannelID       int64    `json:"channel_id"`
	ChannelName     string   `json:"channel_name"`
	TokenSymbol     string   `json:"token_symbol"`
	TokenName       string   `json:"token_name"`
	SignalType      string   `json:"signal_type"` // full_signal | contract_detection | token_mention
	PriceAtSignal   *float64 `json:"price_at_signal,omitempty"`
	CurrentPrice    *float64 `json:"current_price,omitempty"`
	ContractAddress []string `json:"contract_addresses,omitempty"`
	Chain           string   `json:"chain,omitempty"`
	Sentiment       string   `json:"sentiment"`
	MessageText     string   `json:"message_text"`
	ConfidenceScore float64  `json:"confidence_score"`
	Tags            []string `json:"tags,omitempty"`
	CreatedAt       string   `json:"created_at,omitempty"`
}

// MarketUpdate is a generic market event pushed over the stream.
type MarketUpdate struct {
	Symbol         string  `json:"symbol"`
	Price          float64 `json:"price"`
	PriceChange24h float64 `json:"price_change_24h"`
	Volume24h      float64 `json:"volume_24h"`
	MarketCap      float64 `json:"market_cap,omitempty"`
	Timestamp      string  `json:"timestamp,omitempty"`
}

// SentimentSnapshot is the periodic market mood classification.
type SentimentSnapshot struct {
	Overall string  `json:"overall"`
	Score   float64 `json:"score"`
}

// TrendingToken is one entry of the trending snapshot.
type TrendingToken struct {
	Symbol string   `json:"symbol"`
	Count  int      `json:"count"`
	Change float64  `json:"change"`
	Price  *float64 `json:"price,omitempty"`
}

// TrendingSnapshot is the periodic trending token list.
type TrendingSnapshot struct {
	TopTokens []TrendingToken `json:"top_tokens"`
}

// TrackedPrice is the last observed price of a user tracked token.
type TrackedPrice struct {
	Symbol         string   `json:"symbol"`
	PriceUSD       *float64 `json:"price_usd"`
	PriceChange24h *float64 `json:"price_change_24h,omitempty"`
	MarketCap      *float64 `json:"market_cap,omitempty"`
	Volume24h      *float64 `json:"volume_24h,omitempty"`
	UpdatedAt      string   `json:"updated_at,omitempty"`
}

// TrackedPriceBatch carries one tracked_price_update payload. The backend
// sends the tracked tokens as a list, each entry naming its own symbol.
type TrackedPriceBatch struct {
	Tokens []TrackedPrice `json:"tokens"`
}

// PricePoint is one sample of a tracked token's price history.
type PricePoint struct {
	Time  string  `json:"t"`
	Price float64 `json:"p"`
}

// TrackedTransfer is an on-chain transfer event for a tracked token.
// Value is the decimals-adjusted amount as a decimal string, and the
// block fields are strings because the webhook source emits them that way.
type TrackedTransfer struct {
	Symbol         string `json:"symbol"`
	ChainID        string `json:"chain_id,omitempty"`
	Address        string `json:"address,omitempty"`
	From           string `json:"from,omitempty"`
	To             string `json:"to,omitempty"`
	Value          string `json:"value,omitempty"`
	TokenName      string `json:"token_name,omitempty"`
	TokenSymbol    string `json:"token_symbol,omitempty"`
	TxHash         string `json:"tx_hash,omitempty"`
	Confirmed      bool   `json:"confirmed,omitempty"`
	BlockNumber    string `json:"block_number,omitempty"`
	BlockTimestamp string `json:"block_timestamp,omitempty"`
	Timestamp      string `json:"timestamp,omitempty"`
}

// ChannelMessage is a raw message observed in a monitored channel.
type ChannelMessage struct {
	ChannelName string `json:"channel_name"`
	MessageID   int64  `json:"message_id,omitempty"`
	Text        string `json:"text"`
	Sender      string `json:"sender,omitempty"`
	Timestamp   string `json:"timestamp,omitempty"`
}

// Notification is a user facing alert pushed over the stream. The client does
// not buffer these; they only invalidate cached REST responses.
type Notification struct {
	ID      int64  `json:"id,omitempty"`
	Type    string `json:"notif_type,omitempty"`
	Title   string `json:"title,omitempty"`
	Message string `json:"message,omitempty"`
}
