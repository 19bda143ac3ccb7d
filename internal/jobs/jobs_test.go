package jobs

import (
	"context"
	"testing"
	"time"

	"github.com/wpolak/cbotgo/internal/eventbus"
	"github.com/wpolak/cbotgo/internal/exchange"
	"github.com/wpolak/cbotgo/internal/memstore"
	"github.com/wpolak/cbotgo/internal/task"
	"github.com/wpolak/cbotgo/pkg/protocol"
)

func TestPingJobProducesThreeLinesThenFinishes(t *testing.T) {
	bus := eventbus.New()
	r := NewRegistry()
	RegisterAll(r, Deps{Store: memstore.New(bus), Bus: bus, Exchanges: exchange.NewRegistry(func(id string) (exchange.Exchange, error) {
		return exchange.NewFake(id), nil
	})})

	factory, ok := r.Get("PING")
	if !ok {
		t.Fatal("ping not registered")
	}

	op := protocol.New("ping", []string{"3"}, map[string]string{"interval": "0.01"})
	tk := task.New(context.Background(), 1, "ping", op, bus, factory.Run, nil)

	deadline := time.Now().Add(2 * time.Second)
	for !tk.IsFinished() && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if !tk.IsFinished() {
		t.Fatal("ping task did not finish in time")
	}

	out := tk.GetOutput(0)
	if len(out) != 3 {
		t.Fatalf("expected 3 output lines, got %d: %v", len(out), out)
	}
	if out[0].Msg != "Ping #1" || out[2].Msg != "Ping #3" {
		t.Fatalf("unexpected output: %v", out)
	}
}

func TestCMCLatestFiltersBySymbolsAndLimit(t *testing.T) {
	bus := eventbus.New()
	store := memstore.New(bus)
	store.AddSymbols("binance", []string{"BTC/USDT"})
	store.Add(cmcLatestFeedKey, []map[string]any{
		{"symbol": "BTC/USDT", "percent_change": 5.0},
		{"symbol": "DOGE/USDT", "percent_change": 50.0},
	})

	r := NewRegistry()
	RegisterAll(r, Deps{Store: store, Bus: bus, Exchanges: exchange.NewRegistry(func(id string) (exchange.Exchange, error) {
		return exchange.NewFake(id), nil
	})})
	factory, _ := r.Get("cmc_latest")

	op := protocol.New("cmc_latest", nil, map[string]string{"exchange": "binance"})
	tk := task.New(context.Background(), 2, "cmc_latest", op, bus, factory.Run, nil)

	deadline := time.Now().Add(time.Second)
	for !tk.IsFinished() && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	out := tk.GetOutput(0)
	if len(out) != 1 {
		t.Fatalf("expected exactly the BTC/USDT entry to survive the symbol filter, got %v", out)
	}
}
