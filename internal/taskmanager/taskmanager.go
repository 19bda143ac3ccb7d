// Package taskmanager owns the task registry, the cron and condition
// ("IFTTT") lists, and the minute-tick cron loop and ticker-driven
// condition scanner that fire them. It is the single component every
// control command and every scheduled job passes through.
package taskmanager

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/wpolak/cbotgo/internal/condition"
	"github.com/wpolak/cbotgo/internal/cronsched"
	"github.com/wpolak/cbotgo/internal/eventbus"
	"github.com/wpolak/cbotgo/internal/jobs"
	"github.com/wpolak/cbotgo/internal/memstore"
	"github.com/wpolak/cbotgo/internal/periodic"
	"github.com/wpolak/cbotgo/internal/task"
	"github.com/wpolak/cbotgo/pkg/protocol"
)

// CronEntry is a scheduled operation, checked once per wall-clock minute.
type CronEntry struct {
	Schedule string              `json:"cron"`
	Op       *protocol.Operation `json:"op"`
	IsPaused bool                `json:"is_paused"`
}

// ConditionEntry is a one-shot boolean predicate over the live ticker map.
// It fires at most once: removed before its operation is started, or
// removed outright if evaluation ever errors.
type ConditionEntry struct {
	Condition string              `json:"condition"`
	Op        *protocol.Operation `json:"op"`
	IsPaused  bool                `json:"is_paused"`
}

// Manager is the task runtime: registry, schedules, and dispatcher.
type Manager struct {
	bus   *eventbus.Bus
	store *memstore.Store
	jobs  *jobs.Registry
	deps  jobs.Deps

	version   string
	startTime time.Time

	mu                 sync.Mutex
	counter            uint32
	tasks              map[uint32]*task.Task
	order              []uint32
	cronList           []CronEntry
	conditionList      []ConditionEntry
	savegameLastUpdate *time.Time

	cronDriver   *periodic.Driver
	conditionSub eventbus.Subscription
	runCtx       context.Context
}

// New constructs a Manager. version is surfaced by STATS/get_stats.
func New(bus *eventbus.Bus, store *memstore.Store, registry *jobs.Registry, deps jobs.Deps, version string) *Manager {
	return &Manager{
		bus:       bus,
		store:     store,
		jobs:      registry,
		deps:      deps,
		version:   version,
		startTime: time.Now(),
		tasks:     make(map[uint32]*task.Task),
	}
}

// Run starts the cron loop and the condition scanner, both bound to ctx.
// Call once, after any snapshot has been restored.
func (m *Manager) Run(ctx context.Context) {
	m.mu.Lock()
	m.runCtx = ctx
	m.mu.Unlock()

	m.cronDriver = periodic.New(m.cronTick, func() time.Duration { return 60 * time.Second }, nil)
	m.cronDriver.Start(ctx)

	m.conditionSub = m.bus.Subscribe(protocol.EventTickerUpdate, func(event string, payload any) {
		tickers, _ := payload.(map[string]map[string]any)
		m.scanConditions(tickers)
	})
}

// Stop halts the cron loop and condition scanner and kills every task. Used
// by graceful shutdown.
func (m *Manager) Stop() {
	if m.cronDriver != nil {
		m.cronDriver.Stop()
	}
	m.bus.Unsubscribe(m.conditionSub)
	m.KillAll()
}

// nextID returns the next task id and advances the counter.
func (m *Manager) nextID() uint32 {
	m.counter++
	return m.counter
}

// Start dispatches op per the admission precedence: ifttt kwarg first, then
// cron kwarg, then a job lookup by command name. Returns the started task,
// or nil if op was admitted as a cron/condition entry or no job matched.
func (m *Manager) Start(op *protocol.Operation) *task.Task {
	if raw, ok := op.DeleteKwarg("ifttt"); ok {
		m.addConditions(raw, op)
		return nil
	}
	if cronExpr, ok := op.DeleteKwarg("cron"); ok {
		m.addCron(cronExpr, op)
		return nil
	}
	return m.startJob(op)
}

func (m *Manager) addConditions(raw string, op *protocol.Operation) {
	clauses := strings.Split(raw, ";")
	for i := range clauses {
		clauses[i] = strings.TrimSpace(clauses[i])
	}

	m.mu.Lock()
	for _, clause := range clauses {
		if clause == "" {
			continue
		}
		m.conditionList = append(m.conditionList, ConditionEntry{Condition: clause, Op: op.Clone()})
	}
	m.mu.Unlock()

	m.emitTaskManager()
}

func (m *Manager) addCron(expr string, op *protocol.Operation) {
	m.mu.Lock()
	m.cronList = append(m.cronList, CronEntry{Schedule: expr, Op: op.Clone()})
	m.mu.Unlock()

	m.emitTaskManager()
}

func (m *Manager) startJob(op *protocol.Operation) *task.Task {
	factory, ok := m.jobs.Get(op.Cmd)
	if !ok {
		slog.Error("taskmanager: unknown job", "cmd", op.Cmd)
		return nil
	}

	m.mu.Lock()
	id := m.nextID()
	ctx := m.runCtx
	m.mu.Unlock()
	if ctx == nil {
		ctx = context.Background()
	}

	t := task.New(ctx, id, op.Cmd, op.Clone(), m.bus, factory.Run, nil)

	m.mu.Lock()
	m.tasks[id] = t
	m.order = append(m.order, id)
	m.mu.Unlock()

	m.emitTaskManager()
	return t
}

// restoreTask admits an already-constructed Task (from a snapshot restore)
// into the registry without going through the admission precedence.
func (m *Manager) restoreTask(t *task.Task) {
	m.mu.Lock()
	if t.ID() > m.counter {
		m.counter = t.ID()
	}
	m.tasks[t.ID()] = t
	m.order = append(m.order, t.ID())
	m.mu.Unlock()
}

func (m *Manager) emitTaskManager() {
	if m.bus == nil {
		return
	}
	m.bus.Emit(protocol.EventTaskManager, m.Snapshot())
}

// Snapshot is the serializable view of everything the Manager owns,
// emitted on TASK_MANAGER and used by the snapshot package to persist and
// restore runtime state.
type Snapshot struct {
	Counter   uint32           `json:"counter"`
	CronList  []CronEntry      `json:"cron_list"`
	IftttList []ConditionEntry `json:"ifttt_list"`
	Tasks     []task.Snapshot  `json:"tasks"`
}

// Snapshot returns the current registry/schedule state.
func (m *Manager) Snapshot() Snapshot {
	m.mu.Lock()
	cronList := append([]CronEntry(nil), m.cronList...)
	conditionList := append([]ConditionEntry(nil), m.conditionList...)
	counter := m.counter
	order := append([]uint32(nil), m.order...)
	m.mu.Unlock()

	tasks := make([]task.Snapshot, 0, len(order))
	for _, id := range order {
		m.mu.Lock()
		t, ok := m.tasks[id]
		m.mu.Unlock()
		if !ok {
			continue
		}
		tasks = append(tasks, t.ToSnapshot())
	}

	return Snapshot{Counter: counter, CronList: cronList, IftttList: conditionList, Tasks: tasks}
}

// Restore replaces the Manager's registry/schedule state from a snapshot.
// For every non-finished task snapshot, the job function is resolved by
// name and a new Task is constructed bound to it; finished tasks are kept
// for introspection only. Must be called before Run.
func (m *Manager) Restore(ctx context.Context, snap Snapshot) {
	m.mu.Lock()
	m.counter = snap.Counter
	m.cronList = append([]CronEntry(nil), snap.CronList...)
	m.conditionList = append([]ConditionEntry(nil), snap.IftttList...)
	m.tasks = make(map[uint32]*task.Task)
	m.order = nil
	m.mu.Unlock()

	for _, ts := range snap.Tasks {
		ts := ts
		var jobFn task.JobFunc
		if factory, ok := m.jobs.Get(ts.Name); ok {
			jobFn = factory.Run
			if err := ts.DecodeData(factory.NewPayload); err != nil {
				slog.Error("taskmanager: restore: failed to decode task payload, task kept for introspection only", "name", ts.Name, "id", ts.ID, "error", err)
				ts.IsFinished = true
				jobFn = nil
			}
		} else {
			slog.Error("taskmanager: restore: unknown job, task kept for introspection only", "name", ts.Name, "id", ts.ID)
			ts.IsFinished = true
		}
		t := task.New(ctx, ts.ID, ts.Name, ts.Op, m.bus, jobFn, &ts)
		m.restoreTask(t)
	}
}

// cronTick runs once per minute, starting every non-paused entry whose
// schedule matches the current wall-clock minute, in list order.
func (m *Manager) cronTick(ctx context.Context) periodic.Status {
	now := time.Now()

	m.mu.Lock()
	entries := append([]CronEntry(nil), m.cronList...)
	m.mu.Unlock()

	for _, entry := range entries {
		if entry.IsPaused {
			continue
		}
		if cronsched.Due(entry.Schedule, now) {
			m.Start(entry.Op.Clone())
		}
	}
	return periodic.Continue
}

// scanConditions iterates a snapshot of the condition list; a non-paused
// entry that evaluates true is removed and its operation started. A
// raising evaluation is also removed, treated as permanently bad. Never
// matches the same entry twice.
func (m *Manager) scanConditions(tickers map[string]map[string]any) {
	m.mu.Lock()
	snapshot := append([]ConditionEntry(nil), m.conditionList...)
	m.mu.Unlock()

	var toStart []*protocol.Operation
	removed := make(map[int]bool)

	for i, entry := range snapshot {
		if entry.IsPaused {
			continue
		}
		ok, err := condition.Eval(entry.Condition, tickers)
		if err != nil {
			slog.Error("taskmanager: condition evaluation failed, removing", "condition", entry.Condition, "error", err)
			removed[i] = true
			continue
		}
		if ok {
			slog.Info("taskmanager: condition matched", "condition", entry.Condition)
			removed[i] = true
			toStart = append(toStart, entry.Op)
		}
	}

	if len(removed) > 0 {
		m.mu.Lock()
		kept := make([]ConditionEntry, 0, len(m.conditionList))
		for i, entry := range m.conditionList {
			if i < len(snapshot) && removed[i] && entry.Condition == snapshot[i].Condition {
				continue
			}
			kept = append(kept, entry)
		}
		m.conditionList = kept
		m.mu.Unlock()
		m.emitTaskManager()
	}

	for _, op := range toStart {
		m.Start(op)
	}
}

// Kill cancels and finalizes a task by id.
func (m *Manager) Kill(id uint32) error {
	m.mu.Lock()
	t, ok := m.tasks[id]
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("taskmanager: no such task: %d", id)
	}
	t.Kill()
	return nil
}

// KillAll cancels every task.
func (m *Manager) KillAll() {
	m.mu.Lock()
	tasks := make([]*task.Task, 0, len(m.tasks))
	for _, t := range m.tasks {
		tasks = append(tasks, t)
	}
	m.mu.Unlock()
	for _, t := range tasks {
		t.Kill()
	}
}

// PauseTask toggles the paused flag on a task by id, returning "OK".
func (m *Manager) PauseTask(id uint32) (string, error) {
	m.mu.Lock()
	t, ok := m.tasks[id]
	m.mu.Unlock()
	if !ok {
		return "", fmt.Errorf("taskmanager: no such task: %d", id)
	}
	return t.Pause(), nil
}

// Clean removes every finished task from the registry.
func (m *Manager) Clean() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	removed := 0
	var kept []uint32
	for _, id := range m.order {
		t, ok := m.tasks[id]
		if !ok {
			continue
		}
		if t.IsFinished() {
			delete(m.tasks, id)
			removed++
			continue
		}
		kept = append(kept, id)
	}
	m.order = kept
	return removed
}

// GetOutput returns the last n output lines for task id.
func (m *Manager) GetOutput(id uint32, n int) ([]task.LogLine, error) {
	m.mu.Lock()
	t, ok := m.tasks[id]
	m.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("taskmanager: no such task: %d", id)
	}
	return t.GetOutput(n), nil
}

// GetInfo returns the rich introspection payload for task id.
func (m *Manager) GetInfo(id uint32) (task.Info, error) {
	m.mu.Lock()
	t, ok := m.tasks[id]
	m.mu.Unlock()
	if !ok {
		return task.Info{}, fmt.Errorf("taskmanager: no such task: %d", id)
	}
	return t.GetInfo(), nil
}

// GetInfoAll returns the rich introspection payload for every task, in
// admission order.
func (m *Manager) GetInfoAll() []task.Info {
	m.mu.Lock()
	order := append([]uint32(nil), m.order...)
	m.mu.Unlock()

	infos := make([]task.Info, 0, len(order))
	for _, id := range order {
		m.mu.Lock()
		t, ok := m.tasks[id]
		m.mu.Unlock()
		if !ok {
			continue
		}
		infos = append(infos, t.GetInfo())
	}
	return infos
}

// ModifyTaskData replaces task id's kwargs and forwards them to its payload.
func (m *Manager) ModifyTaskData(id uint32, kwargs map[string]string) error {
	m.mu.Lock()
	t, ok := m.tasks[id]
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("taskmanager: no such task: %d", id)
	}
	t.ModifyData(kwargs)
	return nil
}

// Reload re-registers a job's factory under its current build, so
// subsequently started tasks use it; already-running tasks are unaffected.
// Go has no dynamic module reimport, so this re-runs the same static
// registration rather than picking up edited source — see DESIGN.md.
func (m *Manager) Reload(name string) error {
	if !jobs.RegisterOne(m.jobs, name, m.deps) {
		return fmt.Errorf("taskmanager: unknown job: %s", name)
	}
	return nil
}

// PS is a brief listing of every task, in admission order.
type PS struct {
	ID         uint32 `json:"id"`
	Name       string `json:"name"`
	IsPaused   bool   `json:"is_paused"`
	IsFinished bool   `json:"is_finished"`
}

// ListTasks returns the brief PS listing.
func (m *Manager) ListTasks() []PS {
	m.mu.Lock()
	order := append([]uint32(nil), m.order...)
	m.mu.Unlock()

	out := make([]PS, 0, len(order))
	for _, id := range order {
		m.mu.Lock()
		t, ok := m.tasks[id]
		m.mu.Unlock()
		if !ok {
			continue
		}
		out = append(out, PS{ID: t.ID(), Name: t.Name(), IsPaused: t.IsPaused(), IsFinished: t.IsFinished()})
	}
	return out
}

// Stats is the payload returned by STATS/get_stats.
type Stats struct {
	Version            string     `json:"version"`
	StartTime          time.Time  `json:"start_time"`
	StartTimeUnix      int64      `json:"start_time_unix"`
	SavegameLastUpdate *time.Time `json:"savegame_last_update"`
	Uptime             string     `json:"uptime"`
	UptimeSeconds      float64    `json:"uptime_seconds"`
}

// GetStats returns process version, start time, last snapshot time, and
// uptime.
func (m *Manager) GetStats() Stats {
	m.mu.Lock()
	last := m.savegameLastUpdate
	m.mu.Unlock()

	uptime := time.Since(m.startTime)
	return Stats{
		Version:            m.version,
		StartTime:          m.startTime,
		StartTimeUnix:      m.startTime.Unix(),
		SavegameLastUpdate: last,
		Uptime:             uptime.Truncate(time.Second).String(),
		UptimeSeconds:      uptime.Seconds(),
	}
}

// NoteSavegame records the time of the most recent successful snapshot
// write, surfaced by GetStats.
func (m *Manager) NoteSavegame(at time.Time) {
	m.mu.Lock()
	m.savegameLastUpdate = &at
	m.mu.Unlock()
}

// CronList returns a copy of the cron entry list, in registration order.
func (m *Manager) CronList() []CronEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]CronEntry(nil), m.cronList...)
}

// ConditionList returns a copy of the condition entry list, in registration
// order.
func (m *Manager) ConditionList() []ConditionEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]ConditionEntry(nil), m.conditionList...)
}

// RemoveCron removes the cron entry at index i.
func (m *Manager) RemoveCron(i int) error {
	m.mu.Lock()
	if i < 0 || i >= len(m.cronList) {
		m.mu.Unlock()
		return fmt.Errorf("taskmanager: cron index out of range: %d", i)
	}
	m.cronList = append(m.cronList[:i], m.cronList[i+1:]...)
	m.mu.Unlock()
	m.emitTaskManager()
	return nil
}

// PauseCron toggles the paused flag on the cron entry at index i.
func (m *Manager) PauseCron(i int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if i < 0 || i >= len(m.cronList) {
		return fmt.Errorf("taskmanager: cron index out of range: %d", i)
	}
	m.cronList[i].IsPaused = !m.cronList[i].IsPaused
	return nil
}

// ModifyCron replaces the schedule of the cron entry at index i.
func (m *Manager) ModifyCron(i int, schedule string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if i < 0 || i >= len(m.cronList) {
		return fmt.Errorf("taskmanager: cron index out of range: %d", i)
	}
	if !cronsched.Valid(schedule) {
		return fmt.Errorf("taskmanager: invalid cron expression: %q", schedule)
	}
	m.cronList[i].Schedule = schedule
	return nil
}

// RemoveCondition removes the condition entry at index i.
func (m *Manager) RemoveCondition(i int) error {
	m.mu.Lock()
	if i < 0 || i >= len(m.conditionList) {
		m.mu.Unlock()
		return fmt.Errorf("taskmanager: ifttt index out of range: %d", i)
	}
	m.conditionList = append(m.conditionList[:i], m.conditionList[i+1:]...)
	m.mu.Unlock()
	m.emitTaskManager()
	return nil
}

// PauseCondition toggles the paused flag on the condition entry at index i.
func (m *Manager) PauseCondition(i int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if i < 0 || i >= len(m.conditionList) {
		return fmt.Errorf("taskmanager: ifttt index out of range: %d", i)
	}
	m.conditionList[i].IsPaused = !m.conditionList[i].IsPaused
	return nil
}
