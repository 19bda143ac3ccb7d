package exchange

import (
	"context"
	"fmt"
	"sync"
)

// Fake is a deterministic in-memory Exchange used by tests and by
// operators running without live venue credentials.
type Fake struct {
	id string

	mu      sync.Mutex
	tickers map[string]map[string]any
	balance map[string]Balance
	orderSeq int
}

// NewFake returns a Fake exchange identified by id.
func NewFake(id string) *Fake {
	return &Fake{id: id, tickers: make(map[string]map[string]any), balance: make(map[string]Balance)}
}

func (f *Fake) ID() string { return f.id }

// SetTicker seeds a ticker for tests/demo use.
func (f *Fake) SetTicker(symbol string, last float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tickers[symbol] = map[string]any{"symbol": symbol, "last": last}
}

// SetBalance seeds a balance entry for tests/demo use.
func (f *Fake) SetBalance(asset string, b Balance) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.balance[asset] = b
}

func (f *Fake) LoadMarkets(ctx context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	symbols := make([]string, 0, len(f.tickers))
	for s := range f.tickers {
		symbols = append(symbols, s)
	}
	return symbols, nil
}

func (f *Fake) FetchTicker(ctx context.Context, symbol string) (map[string]any, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tickers[symbol]
	if !ok {
		return nil, fmt.Errorf("exchange: %s: no ticker for %s", f.id, symbol)
	}
	out := make(map[string]any, len(t))
	for k, v := range t {
		out[k] = v
	}
	return out, nil
}

func (f *Fake) FetchTickers(ctx context.Context, symbols []string) (map[string]map[string]any, error) {
	out := make(map[string]map[string]any, len(symbols))
	for _, s := range symbols {
		t, err := f.FetchTicker(ctx, s)
		if err != nil {
			continue
		}
		out[s] = t
	}
	return out, nil
}

func (f *Fake) FetchOHLCV(ctx context.Context, symbol, timeframe string, limit int) ([][]float64, error) {
	f.mu.Lock()
	last, ok := f.tickers[symbol]
	f.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("exchange: %s: no ticker for %s", f.id, symbol)
	}
	price, _ := last["last"].(float64)
	candle := []float64{0, price, price, price, price, 0}
	return [][]float64{candle}, nil
}

func (f *Fake) FetchBalance(ctx context.Context) (map[string]Balance, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]Balance, len(f.balance))
	for k, v := range f.balance {
		out[k] = v
	}
	return out, nil
}

func (f *Fake) CreateOrder(ctx context.Context, symbol, side, orderType string, amount, price float64) (*Order, error) {
	f.mu.Lock()
	f.orderSeq++
	id := fmt.Sprintf("%s-%d", f.id, f.orderSeq)
	f.mu.Unlock()
	return &Order{ID: id, Symbol: symbol, Side: side, Type: orderType, Amount: amount, Price: price, Status: "closed"}, nil
}

func (f *Fake) Price2Prec(symbol string, price float64) string  { return fmt.Sprintf("%.8f", price) }
func (f *Fake) Amount2Prec(symbol string, amount float64) string { return fmt.Sprintf("%.8f", amount) }
func (f *Fake) Cost2Prec(symbol string, cost float64) string    { return fmt.Sprintf("%.8f", cost) }
