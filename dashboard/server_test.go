package dashboard

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"signalflow/api"
	"signalflow/config"
	"signalflow/logger"
	"signalflow/models"
	"signalflow/store"
	"signalflow/stream"
)

func TestNormalizeAddress(t *testing.T) {
	cases := map[string]string{
		"":                           "0.0.0.0:8080",
		"  :9090  ":                  "0.0.0.0:9090",
		"localhost":                  "localhost:8080",
		"0.0.0.0:80":                 "0.0.0.0:80",
		"[::1]:443":                  "[::1]:443",
		"::1":                        "[::1]:8080",
		"*:8080":                     "0.0.0.0:8080",
		"http://13.200.112.203:8080": "13.200.112.203:8080",
		"https://13.200.112.203":     "13.200.112.203:8080",
		"http://:7070":               "0.0.0.0:7070",
		"tcp://localhost:5050":       "localhost:5050",
	}

	for input, want := range cases {
		if got := normalizeAddress(input); got != want {
			t.Fatalf("normalizeAddress(%q) = %q, want %q", input, got, want)
		}
	}
}

type fakeStream struct {
	state       stream.ConnState
	attempts    int
	subscribed  []string
	sendSucceed bool
}

func (f *fakeStream) State() stream.ConnState { return f.state }
func (f *fakeStream) Attempts() int           { return f.attempts }

func (f *fakeStream) Subscribe(kind, value string) bool {
	f.subscribed = append(f.subscribed, "sub:"+kind+":"+value)
	return f.sendSucceed
}

func (f *fakeStream) Unsubscribe(kind, value string) bool {
	f.subscribed = append(f.subscribed, "unsub:"+kind+":"+value)
	return f.sendSucceed
}

type fakeFallback struct {
	called bool
	fail   bool
}

func (f *fakeFallback) OHLC(ctx context.Context, symbol string, days int) (*api.OHLCResponse, error) {
	f.called = true
	if f.fail {
		return nil, fmt.Errorf("fallback unavailable")
	}
	return &api.OHLCResponse{
		Symbol:  symbol,
		Candles: [][]float64{{1700000000000, 1, 2, 0.5, 1.5, 100}},
		Days:    days,
		Count:   1,
	}, nil
}

func newTestServer(t *testing.T, st *store.Store, sc StreamController, apiClient *api.Client, fallback OHLCFallback) *Server {
	t.Helper()

	cfg := config.DashboardConfig{Enabled: true, Address: ":0"}
	srv, err := NewServer(cfg, logger.Logger(), st, sc, apiClient, fallback)
	if err != nil {
		t.Fatalf("NewServer returned error: %v", err)
	}
	if srv == nil {
		t.Fatal("expected dashboard server, got nil")
	}
	t.Cleanup(srv.cleanup)
	return srv
}

func doRequest(t *testing.T, srv *Server, method, path string, body []byte) *httptest.ResponseRecorder {
	t.Helper()

	router, err := srv.buildRouter()
	if err != nil {
		t.Fatalf("buildRouter returned error: %v", err)
	}

	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestNewServerNormalizesConfiguredAddress(t *testing.T) {
	cfg := config.DashboardConfig{Enabled: true, Address: ":9000"}

	srv, err := NewServer(cfg, logger.Logger(), store.New(store.Capacities{}), nil, nil, nil)
	if err != nil {
		t.Fatalf("NewServer returned error: %v", err)
	}
	if srv == nil {
		t.Fatal("expected dashboard server, got nil")
	}
	if got := srv.Address(); got != "0.0.0.0:9000" {
		t.Fatalf("server address = %q, want %q", got, "0.0.0.0:9000")
	}
	srv.cleanup()
}

func TestNewServerDisabled(t *testing.T) {
	srv, err := NewServer(config.DashboardConfig{Enabled: false}, logger.Logger(), nil, nil, nil, nil)
	if err != nil {
		t.Fatalf("NewServer returned error: %v", err)
	}
	if srv != nil {
		t.Fatal("expected nil server when dashboard is disabled")
	}
}

func TestStatusEndpoint(t *testing.T) {
	st := store.New(store.Capacities{})
	st.AddSignal(models.Signal{ID: 1, TokenSymbol: "BTC"})
	sc := &fakeStream{state: stream.StateConnected, attempts: 0}

	srv := newTestServer(t, st, sc, nil, nil)
	rec := doRequest(t, srv, http.MethodGet, "/api/status", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var payload struct {
		Connection string `json:"connection"`
		Buffered   struct {
			Signals int `json:"signals"`
		} `json:"buffered"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("failed to decode status payload: %v", err)
	}
	if payload.Connection != "connected" {
		t.Errorf("expected connection 'connected', got %q", payload.Connection)
	}
	if payload.Buffered.Signals != 1 {
		t.Errorf("expected 1 buffered signal, got %d", payload.Buffered.Signals)
	}
}

func TestSignalsEndpointLimit(t *testing.T) {
	st := store.New(store.Capacities{})
	for i := 1; i <= 10; i++ {
		st.AddSignal(models.Signal{ID: int64(i), TokenSymbol: "BTC"})
	}

	srv := newTestServer(t, st, nil, nil, nil)
	rec := doRequest(t, srv, http.MethodGet, "/api/signals?limit=3", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var payload struct {
		Signals []models.Signal `json:"signals"`
		Count   int             `json:"count"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("failed to decode signals payload: %v", err)
	}
	if payload.Count != 3 {
		t.Fatalf("expected 3 signals, got %d", payload.Count)
	}
	// newest first
	if payload.Signals[0].ID != 10 {
		t.Errorf("expected newest signal first, got id %d", payload.Signals[0].ID)
	}
}

func TestSentimentEndpointNotReady(t *testing.T) {
	srv := newTestServer(t, store.New(store.Capacities{}), nil, nil, nil)
	rec := doRequest(t, srv, http.MethodGet, "/api/sentiment", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 before first snapshot, got %d", rec.Code)
	}
}

func TestPriceHistoryEndpoint(t *testing.T) {
	st := store.New(store.Capacities{})
	price := 65000.0
	st.UpsertPrices(models.TrackedPriceBatch{Tokens: []models.TrackedPrice{
		{Symbol: "BTC", PriceUSD: &price},
	}})

	srv := newTestServer(t, st, nil, nil, nil)

	rec := doRequest(t, srv, http.MethodGet, "/api/prices/btc", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for tracked symbol, got %d", rec.Code)
	}

	rec = doRequest(t, srv, http.MethodGet, "/api/prices/DOGE", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for untracked symbol, got %d", rec.Code)
	}
}

func TestOHLCFallback(t *testing.T) {
	fallback := &fakeFallback{}
	srv := newTestServer(t, store.New(store.Capacities{}), nil, nil, fallback)

	rec := doRequest(t, srv, http.MethodGet, "/api/ohlc/sol?days=3", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 from fallback, got %d", rec.Code)
	}
	if !fallback.called {
		t.Fatal("expected fallback to be called when primary client is absent")
	}

	var payload api.OHLCResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("failed to decode ohlc payload: %v", err)
	}
	if payload.Symbol != "SOL" || payload.Days != 3 {
		t.Errorf("unexpected ohlc payload: %+v", payload)
	}
}

func TestOHLCUnavailable(t *testing.T) {
	fallback := &fakeFallback{fail: true}
	srv := newTestServer(t, store.New(store.Capacities{}), nil, nil, fallback)

	rec := doRequest(t, srv, http.MethodGet, "/api/ohlc/SOL", nil)
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("expected 502 when all sources fail, got %d", rec.Code)
	}
}

func TestSubscribeEndpoint(t *testing.T) {
	sc := &fakeStream{state: stream.StateConnected, sendSucceed: true}
	srv := newTestServer(t, store.New(store.Capacities{}), sc, nil, nil)

	body := []byte(`{"type":"token","value":"BTC"}`)
	rec := doRequest(t, srv, http.MethodPost, "/api/subscribe", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if len(sc.subscribed) != 1 || sc.subscribed[0] != "sub:token:BTC" {
		t.Errorf("unexpected subscribe calls: %v", sc.subscribed)
	}
}

func TestSubscribeEndpointValidation(t *testing.T) {
	sc := &fakeStream{sendSucceed: true}
	srv := newTestServer(t, store.New(store.Capacities{}), sc, nil, nil)

	rec := doRequest(t, srv, http.MethodPost, "/api/subscribe", []byte(`{"type":"token"}`))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing value, got %d", rec.Code)
	}
	if len(sc.subscribed) != 0 {
		t.Errorf("no command should be sent on invalid input: %v", sc.subscribed)
	}
}

func TestSubscribeEndpointDisconnected(t *testing.T) {
	sc := &fakeStream{state: stream.StateDisconnected, sendSucceed: false}
	srv := newTestServer(t, store.New(store.Capacities{}), sc, nil, nil)

	body := []byte(`{"type":"channel","value":"alpha"}`)
	rec := doRequest(t, srv, http.MethodPost, "/api/unsubscribe", body)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 while disconnected, got %d", rec.Code)
	}
}

func TestClearEndpoint(t *testing.T) {
	st := store.New(store.Capacities{})
	st.AddSignal(models.Signal{ID: 1, TokenSymbol: "BTC"})
	st.AddMarketUpdate(models.MarketUpdate{Symbol: "BTC"})

	srv := newTestServer(t, st, nil, nil, nil)
	rec := doRequest(t, srv, http.MethodPost, "/api/clear", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if len(st.Signals()) != 0 || len(st.MarketUpdates()) != 0 {
		t.Error("expected buffers to be emptied")
	}
}
