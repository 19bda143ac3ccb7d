package memstore

import (
	"testing"
	"time"

	"github.com/wpolak/cbotgo/internal/eventbus"
	"github.com/wpolak/cbotgo/pkg/protocol"
)

func TestGetReturnsStoredValue(t *testing.T) {
	s := New(nil)
	s.Add("foo", "bar")
	if got := s.Get("foo", nil); got != "bar" {
		t.Fatalf("got %v, want bar", got)
	}
	if got := s.Get("missing", "default"); got != "default" {
		t.Fatalf("got %v, want default", got)
	}
}

func TestGetTickerAndOHLCVReturnValues(t *testing.T) {
	s := New(nil)
	s.AddTicker("binance", map[string]any{"symbol": "BTC/USDT", "last": 30000.0})
	got := s.GetTicker("binance", "BTC/USDT", nil)
	ticker, ok := got.(map[string]any)
	if !ok {
		t.Fatalf("GetTicker returned %T, want map[string]any (regression: original dropped this return value)", got)
	}
	if ticker["last"] != 30000.0 {
		t.Fatalf("last = %v, want 30000.0", ticker["last"])
	}

	s.AddOHLCV("binance", "BTC/USDT", []float64{1, 2, 3})
	if got := s.GetOHLCV("binance", "BTC/USDT", nil); got == nil {
		t.Fatal("GetOHLCV returned nil, want stored value (regression: original dropped this return value)")
	}
	if got := s.GetOHLCV("binance", "ETH/USDT", "nope"); got != "nope" {
		t.Fatalf("GetOHLCV default = %v, want nope", got)
	}
}

func TestAddTickerEmitsTickerUpdateWithFullMap(t *testing.T) {
	bus := eventbus.New()
	s := New(bus)
	received := make(chan map[string]map[string]any, 1)
	bus.Subscribe(protocol.EventTickerUpdate, func(event string, payload any) {
		received <- payload.(map[string]map[string]any)
	})

	s.AddTicker("binance", map[string]any{"symbol": "BTC/USDT", "last": 1.0})

	select {
	case tickers := <-received:
		if tickers["binance"]["BTC/USDT"] == nil {
			t.Fatal("ticker update payload missing written ticker")
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for TICKER_UPDATE")
	}
}

func TestSavegameRoundTrip(t *testing.T) {
	s := New(nil)
	s.Add("k", "v")
	s.AddSymbols("binance", []string{"BTC/USDT", "ETH/USDT"})
	s.AddTicker("binance", map[string]any{"symbol": "BTC/USDT", "last": 42.0})
	s.AddOHLCV("binance", "BTC/USDT", 7.0)

	snap := s.ToSavegame()

	restored := New(nil)
	restored.FromSavegame(snap)

	if restored.Get("k", nil) != "v" {
		t.Fatal("general data did not round-trip")
	}
	if len(restored.GetSymbols("binance")) != 2 {
		t.Fatal("symbols did not round-trip")
	}
	if restored.GetTicker("binance", "BTC/USDT", nil) == nil {
		t.Fatal("ticker did not round-trip")
	}
	if restored.GetOHLCV("binance", "BTC/USDT", nil) != 7.0 {
		t.Fatal("ohlcv did not round-trip")
	}
}
