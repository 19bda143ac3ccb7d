// Package memstore implements the process-wide key/value store shared by
// every job: a general map plus three reserved sub-mappings (symbols,
// ohlcv, tickers). Writes to tickers publish a TICKER_UPDATE event carrying
// the full tickers map, which the condition scanner and streaming clients
// both consume.
package memstore

import (
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/wpolak/cbotgo/internal/eventbus"
	"github.com/wpolak/cbotgo/pkg/protocol"
)

// ohlcvCacheSize bounds how many exchange/symbol OHLCV entries are kept in
// memory at once, so a long-running process with many symbols can't grow
// this map unboundedly.
const ohlcvCacheSize = 4096

type ohlcvKey struct {
	exchange, symbol string
}

// Store is the shared in-memory key/value map. The zero value is not
// usable; construct with New.
type Store struct {
	mu sync.RWMutex

	data    map[string]any
	symbols map[string][]string
	tickers map[string]map[string]any
	ohlcv   *lru.Cache[ohlcvKey, any]

	bus *eventbus.Bus
}

// New returns an empty Store that publishes TICKER_UPDATE on bus.
func New(bus *eventbus.Bus) *Store {
	cache, err := lru.New[ohlcvKey, any](ohlcvCacheSize)
	if err != nil {
		// Only returns an error for a non-positive size, which ohlcvCacheSize never is.
		panic(err)
	}
	return &Store{
		data:    make(map[string]any),
		symbols: make(map[string][]string),
		tickers: make(map[string]map[string]any),
		ohlcv:   cache,
		bus:     bus,
	}
}

// Add stores value under key in the general section of the map.
func (s *Store) Add(key string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = value
}

// Get returns the value stored under key, or def if absent.
func (s *Store) Get(key string, def any) any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if v, ok := s.data[key]; ok {
		return v
	}
	return def
}

// GetKeys returns the keys currently set in the general section of the map.
func (s *Store) GetKeys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.data))
	for k := range s.data {
		keys = append(keys, k)
	}
	return keys
}

// AddSymbols records the list of tradable symbols loaded for an exchange.
func (s *Store) AddSymbols(exchange string, symbols []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.symbols[exchange] = symbols
}

// GetSymbols returns the symbols recorded for exchange, or nil if none.
func (s *Store) GetSymbols(exchange string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.symbols[exchange]
}

// AddOHLCV records the latest OHLCV value for exchange/symbol.
func (s *Store) AddOHLCV(exchange, symbol string, value any) {
	s.ohlcv.Add(ohlcvKey{exchange, symbol}, value)
}

// GetOHLCV returns the OHLCV value recorded for exchange/symbol, or def if
// absent.
func (s *Store) GetOHLCV(exchange, symbol string, def any) any {
	if v, ok := s.ohlcv.Get(ohlcvKey{exchange, symbol}); ok {
		return v
	}
	return def
}

// AddTicker records ticker under exchange, keyed by ticker["symbol"], and
// publishes TICKER_UPDATE with the entire tickers map (all exchanges) as
// payload — this is the namespace condition expressions evaluate against.
func (s *Store) AddTicker(exchange string, ticker map[string]any) {
	symbol, _ := ticker["symbol"].(string)

	s.mu.Lock()
	bucket, ok := s.tickers[exchange]
	if !ok {
		bucket = make(map[string]any)
		s.tickers[exchange] = bucket
	}
	bucket[symbol] = ticker
	snapshot := s.cloneTickersLocked()
	s.mu.Unlock()

	if s.bus != nil {
		s.bus.Emit(protocol.EventTickerUpdate, snapshot)
	}
}

// GetTicker returns the ticker recorded for exchange/symbol, or def if
// absent.
func (s *Store) GetTicker(exchange, symbol string, def any) any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if bucket, ok := s.tickers[exchange]; ok {
		if v, ok := bucket[symbol]; ok {
			return v
		}
	}
	return def
}

// Tickers returns a snapshot of the full tickers map, exchange -> symbol ->
// ticker. This is the namespace exposed to condition expressions.
func (s *Store) Tickers() map[string]map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cloneTickersLocked()
}

func (s *Store) cloneTickersLocked() map[string]map[string]any {
	out := make(map[string]map[string]any, len(s.tickers))
	for exchange, bucket := range s.tickers {
		inner := make(map[string]any, len(bucket))
		for symbol, ticker := range bucket {
			inner[symbol] = ticker
		}
		out[exchange] = inner
	}
	return out
}

// Contents is the serializable snapshot of a Store, used by the snapshot
// package to round-trip MemStore state.
type Contents struct {
	Data    map[string]any            `json:"data"`
	Symbols map[string][]string       `json:"symbols"`
	Tickers map[string]map[string]any `json:"tickers"`
	OHLCV   []OHLCVEntry              `json:"ohlcv"`
}

// OHLCVEntry is one exchange/symbol/value triple from the OHLCV cache.
type OHLCVEntry struct {
	Exchange string `json:"exchange"`
	Symbol   string `json:"symbol"`
	Value    any    `json:"value"`
}

// ToSavegame returns a serializable snapshot of the whole store. Must not be
// called concurrently with any mutator.
func (s *Store) ToSavegame() Contents {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data := make(map[string]any, len(s.data))
	for k, v := range s.data {
		data[k] = v
	}
	symbols := make(map[string][]string, len(s.symbols))
	for k, v := range s.symbols {
		symbols[k] = v
	}

	var entries []OHLCVEntry
	for _, key := range s.ohlcv.Keys() {
		if v, ok := s.ohlcv.Peek(key); ok {
			entries = append(entries, OHLCVEntry{Exchange: key.exchange, Symbol: key.symbol, Value: v})
		}
	}

	return Contents{
		Data:    data,
		Symbols: symbols,
		Tickers: s.cloneTickersLocked(),
		OHLCV:   entries,
	}
}

// FromSavegame replaces the store's contents wholesale. Must not be called
// concurrently with any mutator or reader.
func (s *Store) FromSavegame(c Contents) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.data = make(map[string]any, len(c.Data))
	for k, v := range c.Data {
		s.data[k] = v
	}
	s.symbols = make(map[string][]string, len(c.Symbols))
	for k, v := range c.Symbols {
		s.symbols[k] = v
	}
	s.tickers = make(map[string]map[string]any, len(c.Tickers))
	for exchange, bucket := range c.Tickers {
		inner := make(map[string]any, len(bucket))
		for symbol, ticker := range bucket {
			inner[symbol] = ticker
		}
		s.tickers[exchange] = inner
	}

	s.ohlcv.Purge()
	for _, e := range c.OHLCV {
		s.ohlcv.Add(ohlcvKey{e.Exchange, e.Symbol}, e.Value)
	}
}
