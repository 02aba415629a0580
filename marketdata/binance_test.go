package marketdata

import (
	"context"
	"fmt"
	"testing"

	"github.com/adshao/go-binance/v2"
)

func stubKlines(t *testing.T, klines []*binance.Kline, err error) *string {
	t.Helper()

	var gotPair string
	original := fetchKlines
	t.Cleanup(func() { fetchKlines = original })
	fetchKlines = func(ctx context.Context, spot *binance.Client, pair string, limit int) ([]*binance.Kline, error) {
		gotPair = pair
		return klines, err
	}
	return &gotPair
}

func TestOHLCConvertsKlines(t *testing.T) {
	pair := stubKlines(t, []*binance.Kline{
		{OpenTime: 1700000000000, Open: "100", High: "110", Low: "95", Close: "105", Volume: "1234.5"},
		{OpenTime: 1700086400000, Open: "105", High: "120", Low: "104", Close: "118", Volume: "2000"},
	}, nil)

	c := NewClient("USDT")
	resp, err := c.OHLC(context.Background(), "sol", 7)
	if err != nil {
		t.Fatalf("OHLC returned error: %v", err)
	}

	if *pair != "SOLUSDT" {
		t.Errorf("expected pair SOLUSDT, got %q", *pair)
	}
	if resp.Symbol != "SOL" || resp.Days != 7 || resp.Count != 2 {
		t.Errorf("unexpected response metadata: %+v", resp)
	}
	want := []float64{1700000000000, 100, 110, 95, 105, 1234.5}
	for i, v := range want {
		if resp.Candles[0][i] != v {
			t.Fatalf("candle[0][%d] = %v, want %v", i, resp.Candles[0][i], v)
		}
	}
}

func TestOHLCSkipsMalformedKlines(t *testing.T) {
	stubKlines(t, []*binance.Kline{
		{OpenTime: 1, Open: "not-a-number", High: "1", Low: "1", Close: "1", Volume: "1"},
		{OpenTime: 2, Open: "2", High: "3", Low: "1", Close: "2.5", Volume: "10"},
	}, nil)

	c := NewClient("")
	resp, err := c.OHLC(context.Background(), "BTC", 1)
	if err != nil {
		t.Fatalf("OHLC returned error: %v", err)
	}
	if resp.Count != 1 {
		t.Fatalf("expected malformed kline to be dropped, got %d candles", resp.Count)
	}
}

func TestOHLCPropagatesFetchError(t *testing.T) {
	stubKlines(t, nil, fmt.Errorf("upstream down"))

	c := NewClient("USDT")
	if _, err := c.OHLC(context.Background(), "BTC", 7); err == nil {
		t.Fatal("expected error when kline fetch fails")
	}
}

func TestOHLCEmptySymbol(t *testing.T) {
	c := NewClient("USDT")
	if _, err := c.OHLC(context.Background(), "  ", 7); err == nil {
		t.Fatal("expected error for empty symbol")
	}
}
