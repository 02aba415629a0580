package models

import "encoding/json"

// Inbound message types emitted by the aggregator's live stream. The server
// discriminates every payload with a top level "type" field.
const (
	TypeConnected        = "connected"
	TypeSubscribed       = "subscribed"
	TypeUnsubscribed     = "unsubscribed"
	TypeNewSignal        = "new_signal"
	TypeMarketUpdate     = "MARKET_UPDATE"
	TypeSentimentUpdate  = "sentiment_update"
	TypeTrendingUpdate   = "trending_update"
	TypeTrackedPrice     = "tracked_price_update"
	TypeTrackedTransfer  = "tracked_transfer"
	TypeNotification     = "notification"
	TypeChannelMessage   = "channel_message"
	TypeMonitoringStatus = "monitoring_status"
	TypePong             = "pong"
	TypeError            = "error"
)

// Envelope is the outer frame of every inbound stream message. Data is left
// raw so each dispatcher arm can decode only the variant it handles.
type Envelope struct {
	Type      string          `json:"type"`
	Message   string          `json:"message,omitempty"`
	Timestamp string          `json:"timestamp,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// Outbound command actions and subscription kinds.
const (
	ActionSubscribe   = "subscribe"
	ActionUnsubscribe = "unsubscribe"
	ActionPing        = "ping"

	KindToken   = "token"
	KindChannel = "channel"
)

// Command is the outbound message format understood by the stream endpoint.
// Commands are fire and forget; the server may echo a subscribed/unsubscribed
// acknowledgement but nothing tracks it.
type Command struct {
	Action string `json:"action"`
	Type   string `json:"type,omitempty"`
	Value  string `json:"value,omitempty"`
}

// SubscribeCommand builds a subscribe command for a token or channel.
func SubscribeCommand(kind, value string) Command {
	return Command{Action: ActionSubscribe, Type: kind, Value: value}
}

// UnsubscribeCommand builds an unsubscribe command for a token or channel.
func UnsubscribeCommand(kind, value string) Command {
	return Command{Action: ActionUnsubscribe, Type: kind, Value: value}
}

// PingCommand builds the heartbeat command.
func PingCommand() Command {
	return Command{Action: ActionPing}
}
