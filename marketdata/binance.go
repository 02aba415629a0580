// Package marketdata supplies candle data from Binance spot markets when the
// aggregator's own OHLC endpoint cannot serve a symbol.
package marketdata

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/adshao/go-binance/v2"

	"signalflow/api"
	"signalflow/logger"
)

const maxDays = 365

// Client fetches daily klines for symbols quoted against a fixed asset.
type Client struct {
	spot       *binance.Client
	quoteAsset string
	log        *logger.Log
}

// fetchKlines is a variable so tests can substitute canned candle data.
var fetchKlines = func(ctx context.Context, spot *binance.Client, pair string, limit int) ([]*binance.Kline, error) {
	return spot.NewKlinesService().
		Symbol(pair).
		Interval("1d").
		Limit(limit).
		Do(ctx)
}

// NewClient builds an unauthenticated spot client. Kline endpoints are public
// so no API keys are needed.
func NewClient(quoteAsset string) *Client {
	if quoteAsset == "" {
		quoteAsset = "USDT"
	}
	return &Client{
		spot:       binance.NewClient("", ""),
		quoteAsset: strings.ToUpper(quoteAsset),
		log:        logger.GetLogger(),
	}
}

// OHLC returns up to days daily candles for symbol, shaped like the
// aggregator's own OHLC response so callers can serve either interchangeably.
func (c *Client) OHLC(ctx context.Context, symbol string, days int) (*api.OHLCResponse, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return nil, fmt.Errorf("symbol is required")
	}
	if days <= 0 {
		days = 7
	}
	if days > maxDays {
		days = maxDays
	}

	pair := symbol + c.quoteAsset

	klines, err := fetchKlines(ctx, c.spot, pair, days)
	if err != nil {
		return nil, fmt.Errorf("fetch klines for %s: %w", pair, err)
	}
	if len(klines) == 0 {
		return nil, fmt.Errorf("no klines returned for %s", pair)
	}

	candles := make([][]float64, 0, len(klines))
	for _, k := range klines {
		candle, err := toCandle(k)
		if err != nil {
			c.log.WithComponent("marketdata").WithError(err).WithFields(logger.Fields{
				"pair": pair,
			}).Debug("skipping malformed kline")
			continue
		}
		candles = append(candles, candle)
	}
	if len(candles) == 0 {
		return nil, fmt.Errorf("no usable klines for %s", pair)
	}

	return &api.OHLCResponse{
		Symbol:    symbol,
		Candles:   candles,
		Days:      days,
		Count:     len(candles),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}, nil
}

// toCandle converts a kline into [open_time_ms, open, high, low, close, volume].
func toCandle(k *binance.Kline) ([]float64, error) {
	out := []float64{float64(k.OpenTime)}
	for _, raw := range []string{k.Open, k.High, k.Low, k.Close, k.Volume} {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, fmt.Errorf("parse kline field %q: %w", raw, err)
		}
		out = append(out, v)
	}
	return out, nil
}
