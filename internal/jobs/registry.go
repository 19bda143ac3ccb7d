// Package jobs is the job host: the registry mapping a command name to a
// job implementation, and the concrete job kinds themselves (ping,
// crypto_ticker, crypto_order, crypto_tsl, crypto_pf, crypto_stats,
// cmc_latest, bin_live). A job is any function callable as job(ctx, task)
// that honors the contract in internal/task: initialize task.Data() on
// first run, observe pause via the periodic driver, and call
// task.SetFinished() on completion or fatal error.
package jobs

import (
	"strings"
	"sync"

	"github.com/wpolak/cbotgo/internal/eventbus"
	"github.com/wpolak/cbotgo/internal/exchange"
	"github.com/wpolak/cbotgo/internal/ledger"
	"github.com/wpolak/cbotgo/internal/mailer"
	"github.com/wpolak/cbotgo/internal/memstore"
	"github.com/wpolak/cbotgo/internal/task"
)

// Deps are the shared collaborators every job closure captures at
// registration time, in place of reaching for module-level globals.
type Deps struct {
	Store     *memstore.Store
	Bus       *eventbus.Bus
	Exchanges *exchange.Registry
	Mail      mailer.Mailer
	Ledger    ledger.Ledger
}

// Factory is what a job registers: a constructor for its zero-valued
// payload (used when restoring a snapshot, or when MapOptions.
// initializes it on first run) and the function that runs it.
type Factory struct {
	NewPayload func() task.Payload
	Run        task.JobFunc
}

// Registry maps a lower-cased command name to a job Factory. Reload
// replaces an entry atomically so already-running tasks are unaffected and
// only subsequent `start` calls pick up the new version.
type Registry struct {
	mu   sync.RWMutex
	jobs map[string]Factory
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{jobs: make(map[string]Factory)}
}

// Register adds or replaces the Factory for name.
func (r *Registry) Register(name string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobs[strings.ToLower(name)] = f
}

// Get resolves name (case-insensitively) to its Factory.
func (r *Registry) Get(name string) (Factory, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.jobs[strings.ToLower(name)]
	return f, ok
}

// Names returns every registered job name, for introspection/help output.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.jobs))
	for n := range r.jobs {
		names = append(names, n)
	}
	return names
}

// builtinFactories are the constructors for every job kind this build
// ships, keyed by name. RegisterOne and RegisterAll both build Factory
// values from this table so a "reload" of a single name re-runs the exact
// same construction a fresh RegisterAll would.
func builtinFactories(deps Deps) map[string]Factory {
	return map[string]Factory{
		"ping":          {NewPayload: func() task.Payload { return &PingData{} }, Run: pingRun(deps)},
		"crypto_ticker": {NewPayload: func() task.Payload { return &CryptoTickerData{} }, Run: cryptoTickerRun(deps)},
		"crypto_order":  {NewPayload: func() task.Payload { return &CryptoOrderData{} }, Run: cryptoOrderRun(deps)},
		"crypto_tsl":    {NewPayload: func() task.Payload { return &CryptoTSLData{} }, Run: cryptoTSLRun(deps)},
		"crypto_pf":     {NewPayload: func() task.Payload { return &CryptoPFData{} }, Run: cryptoPFRun(deps)},
		"crypto_stats":  {NewPayload: func() task.Payload { return &CryptoStatsData{} }, Run: cryptoStatsRun(deps)},
		"cmc_latest":    {NewPayload: func() task.Payload { return &CMCLatestData{} }, Run: cmcLatestRun(deps)},
		"bin_live":      {NewPayload: func() task.Payload { return &BinLiveData{} }, Run: binLiveRun(deps)},
	}
}

// RegisterAll installs every built-in job kind into r.
func RegisterAll(r *Registry, deps Deps) {
	for name, f := range builtinFactories(deps) {
		r.Register(name, f)
	}
}

// RegisterOne re-registers a single built-in job kind by name, as used by
// RELOAD. Reports whether name was recognized.
func RegisterOne(r *Registry, name string, deps Deps) bool {
	f, ok := builtinFactories(deps)[strings.ToLower(name)]
	if !ok {
		return false
	}
	r.Register(name, f)
	return true
}
