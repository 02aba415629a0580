package store

import (
	"fmt"
	"testing"

	"signalflow/models"
)

func TestSignalBufferCapacityNewestFirst(t *testing.T) {
	s := New(Capacities{Signals: 100})

	for i := 1; i <= 150; i++ {
		s.AddSignal(models.Signal{ID: int64(i)})
	}

	signals := s.Signals()
	if len(signals) != 100 {
		t.Fatalf("buffer length = %d, want 100", len(signals))
	}
	// ids 150 down to 51, newest first
	for i, sig := range signals {
		want := int64(150 - i)
		if sig.ID != want {
			t.Fatalf("signals[%d].ID = %d, want %d", i, sig.ID, want)
		}
	}
}

func TestBufferCapacities(t *testing.T) {
	s := New(Capacities{
		Signals:         5,
		MarketUpdates:   4,
		ChannelMessages: 3,
		Transfers:       2,
	})

	for i := 0; i < 10; i++ {
		s.AddSignal(models.Signal{ID: int64(i)})
		s.AddMarketUpdate(models.MarketUpdate{Symbol: fmt.Sprintf("S%d", i)})
		s.AddChannelMessage(models.ChannelMessage{MessageID: int64(i)})
		s.AddTransfer(models.TrackedTransfer{TxHash: fmt.Sprintf("h%d", i)})
	}

	if got := len(s.Signals()); got != 5 {
		t.Errorf("signals len = %d, want 5", got)
	}
	if got := len(s.MarketUpdates()); got != 4 {
		t.Errorf("market updates len = %d, want 4", got)
	}
	if got := len(s.ChannelMessages()); got != 3 {
		t.Errorf("channel messages len = %d, want 3", got)
	}
	if got := len(s.Transfers()); got != 2 {
		t.Errorf("transfers len = %d, want 2", got)
	}

	if s.MarketUpdates()[0].Symbol != "S9" {
		t.Errorf("market updates not newest first: %+v", s.MarketUpdates())
	}
	if s.Transfers()[0].TxHash != "h9" {
		t.Errorf("transfers not newest first: %+v", s.Transfers())
	}
}

func TestDefaultCapacities(t *testing.T) {
	caps := Capacities{}.normalized()
	if caps.Signals != 100 || caps.ChannelMessages != 200 || caps.Transfers != 50 || caps.PriceHistory != 500 {
		t.Errorf("unexpected defaults: %+v", caps)
	}
}

func TestUpsertPrices(t *testing.T) {
	s := New(Capacities{PriceHistory: 3})

	price := func(v float64) models.TrackedPrice {
		return models.TrackedPrice{Symbol: "BTC", PriceUSD: &v}
	}

	for _, v := range []float64{1, 2, 3, 4, 5} {
		s.UpsertPrices(models.TrackedPriceBatch{
			Tokens: []models.TrackedPrice{price(v)},
		})
	}

	p, ok := s.Price("BTC")
	if !ok || *p.PriceUSD != 5 {
		t.Fatalf("expected last price 5, got %+v", p)
	}

	history := s.PriceHistory("BTC")
	if len(history) != 3 {
		t.Fatalf("history len = %d, want 3", len(history))
	}
	// oldest entries drop first, insertion order preserved
	for i, want := range []float64{3, 4, 5} {
		if history[i].Price != want {
			t.Errorf("history[%d] = %v, want %v", i, history[i].Price, want)
		}
	}
}

func TestUpsertPricesNilPriceSkipsHistory(t *testing.T) {
	s := New(Capacities{})

	s.UpsertPrices(models.TrackedPriceBatch{
		Tokens: []models.TrackedPrice{{Symbol: "XRP"}},
	})

	if _, ok := s.Price("XRP"); !ok {
		t.Fatal("expected price entry for XRP")
	}
	if got := len(s.PriceHistory("XRP")); got != 0 {
		t.Errorf("history len = %d, want 0 for nil price", got)
	}
}

func TestUpsertPricesDropsUnnamedEntries(t *testing.T) {
	s := New(Capacities{})

	v := 2.5
	s.UpsertPrices(models.TrackedPriceBatch{
		Tokens: []models.TrackedPrice{{PriceUSD: &v}, {Symbol: "SOL", PriceUSD: &v}},
	})

	if got := len(s.Prices()); got != 1 {
		t.Fatalf("prices len = %d, want 1", got)
	}
	if _, ok := s.Price("SOL"); !ok {
		t.Error("expected the named entry to survive")
	}
}

func TestClear(t *testing.T) {
	s := New(Capacities{})

	v := 1.0
	s.AddSignal(models.Signal{ID: 1})
	s.AddMarketUpdate(models.MarketUpdate{Symbol: "BTC"})
	s.AddChannelMessage(models.ChannelMessage{Text: "hi"})
	s.AddTransfer(models.TrackedTransfer{TxHash: "h"})
	s.SetSentiment(models.SentimentSnapshot{Overall: "BULLISH"})
	s.UpsertPrices(models.TrackedPriceBatch{
		Tokens: []models.TrackedPrice{{Symbol: "BTC", PriceUSD: &v}},
	})

	s.Clear()

	if len(s.Signals()) != 0 || len(s.MarketUpdates()) != 0 || len(s.ChannelMessages()) != 0 {
		t.Error("clear must empty signal, market and channel message buffers")
	}
	if len(s.Transfers()) != 1 {
		t.Error("clear must keep transfers")
	}
	if _, ok := s.Sentiment(); !ok {
		t.Error("clear must keep the sentiment snapshot")
	}
	if _, ok := s.Price("BTC"); !ok {
		t.Error("clear must keep tracked prices")
	}
}

func TestSnapshotsAreCopies(t *testing.T) {
	s := New(Capacities{})
	s.AddSignal(models.Signal{ID: 1})

	out := s.Signals()
	out[0].ID = 99

	if s.Signals()[0].ID != 1 {
		t.Error("mutating a snapshot must not affect the store")
	}
}
