package snapshot

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/wpolak/cbotgo/internal/eventbus"
	"github.com/wpolak/cbotgo/internal/exchange"
	"github.com/wpolak/cbotgo/internal/jobs"
	"github.com/wpolak/cbotgo/internal/memstore"
	"github.com/wpolak/cbotgo/internal/taskmanager"
	"github.com/wpolak/cbotgo/pkg/protocol"
)

func newManager(bus *eventbus.Bus, store *memstore.Store) *taskmanager.Manager {
	registry := jobs.NewRegistry()
	deps := jobs.Deps{Store: store, Bus: bus, Exchanges: exchange.NewRegistry(func(id string) (exchange.Exchange, error) {
		return exchange.NewFake(id), nil
	})}
	jobs.RegisterAll(registry, deps)
	return taskmanager.New(bus, store, registry, deps, "test")
}

// TestSaveLoadRoundTripsTaskWithPayload is the regression test for the
// Payload-is-a-non-empty-interface bug: a task that has actually run (and so
// has a non-nil Data) must survive a real save-to-disk, load-from-disk
// cycle, not just an in-memory Snapshot()/Restore() call.
func TestSaveLoadRoundTripsTaskWithPayload(t *testing.T) {
	bus := eventbus.New()
	store := memstore.New(bus)
	manager := newManager(bus, store)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	manager.Run(ctx)

	op := protocol.New("ping", []string{"0"}, map[string]string{"interval": "0.01"})
	tk := manager.Start(op)

	deadline := time.Now().Add(time.Second)
	for len(tk.GetOutput(0)) == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if len(tk.GetOutput(0)) == 0 {
		t.Fatal("ping task never produced output; Data would still be nil")
	}

	path := filepath.Join(t.TempDir(), "cbot-savegame.data")
	savingStore := New(path, store, manager, nil)
	savingStore.Save(context.Background())
	manager.Stop()

	loadBus := eventbus.New()
	loadMemstore := memstore.New(loadBus)
	loadManager := newManager(loadBus, loadMemstore)
	loadingStore := New(path, loadMemstore, loadManager, nil)
	loadingStore.Load(context.Background())

	tasks := loadManager.ListTasks()
	if len(tasks) != 1 {
		t.Fatalf("expected exactly one restored task, got %d: %+v", len(tasks), tasks)
	}

	info, err := loadManager.GetInfo(tasks[0].ID)
	if err != nil {
		t.Fatal(err)
	}
	data, ok := info.Data.(*jobs.PingData)
	if !ok {
		t.Fatalf("expected restored payload to decode as *jobs.PingData, got %T (%+v)", info.Data, info.Data)
	}
	if data.IntervalSeconds != 0.01 {
		t.Fatalf("restored payload lost its fields: %+v", data)
	}
}

func TestLoadMissingDatafileStartsEmpty(t *testing.T) {
	bus := eventbus.New()
	store := memstore.New(bus)
	manager := newManager(bus, store)

	path := filepath.Join(t.TempDir(), "does-not-exist.data")
	s := New(path, store, manager, nil)
	s.Load(context.Background())

	if len(manager.ListTasks()) != 0 {
		t.Fatal("expected no tasks when the datafile does not exist")
	}
}

func TestEmptyPathDisablesSaveAndLoad(t *testing.T) {
	bus := eventbus.New()
	store := memstore.New(bus)
	manager := newManager(bus, store)

	s := New("", store, manager, nil)
	if s.Enabled() {
		t.Fatal("expected an empty path to disable the store")
	}
	s.Save(context.Background())
	s.Load(context.Background())
}
