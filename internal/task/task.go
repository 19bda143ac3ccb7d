// Package task implements the supervised unit of work the runtime admits
// for every job: identity, lifecycle flags, a bounded output buffer, a
// typed payload, and a cancellation handle.
package task

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/wpolak/cbotgo/internal/eventbus"
	"github.com/wpolak/cbotgo/pkg/protocol"
)

// MaxOutputLines bounds a task's output buffer; the oldest line is evicted
// on the 1001st append.
const MaxOutputLines = 1000

// LogLine is one entry in a task's bounded output buffer.
type LogLine struct {
	Ts     float64 `json:"ts"`
	TaskID uint32  `json:"taskId"`
	Msg    string  `json:"msg"`
}

// Payload is the contract a job's strongly-typed data variant must
// implement to be admissible and snapshot-able. MapOptions mutates the
// payload in place from free-text command inputs, ignoring "desc",
// logging unknown keys, and treating duplicated value-less flags as
// booleans.
type Payload interface {
	MapOptions(args []string, kwargs map[string]string)
}

// IntervalPayload is implemented by payloads that carry their own periodic
// interval (task.data.interval in the original). The periodic driver does not
// consult it; a job passes its payload's interval to periodic.New itself.
type IntervalPayload interface {
	Payload
	Interval() time.Duration
}

// JobFunc is the function a job implementation registers; it runs for the
// lifetime of the task and must call t.SetFinished() on completion.
type JobFunc func(ctx context.Context, t *Task)

// Task is a supervised unit of work.
type Task struct {
	id        uint32
	name      string
	startTime time.Time
	op        *protocol.Operation
	bus       *eventbus.Bus

	mu         sync.Mutex
	isPaused   bool
	isFinished bool
	output     []LogLine
	data       Payload

	cancel context.CancelFunc
}

// New constructs a Task bound to id and launches jobFn as a supervised child
// of ctx; registering the task is left to the caller. If restored is non-nil
// and its IsFinished is true, no job is launched — the task exists only for
// introspection until explicitly cleaned.
func New(ctx context.Context, id uint32, name string, op *protocol.Operation, bus *eventbus.Bus, jobFn JobFunc, restored *Snapshot) *Task {
	t := &Task{
		id:        id,
		name:      name,
		startTime: time.Now(),
		op:        op,
		bus:       bus,
	}

	if restored != nil {
		t.startTime = restored.StartTime
		t.isPaused = restored.IsPaused
		t.isFinished = restored.IsFinished
		t.output = append([]LogLine(nil), restored.Output...)
		t.data = restored.Data
		if restored.IsFinished {
			return t
		}
	}

	runCtx, cancel := context.WithCancel(ctx)
	t.cancel = cancel
	go runSupervised(runCtx, t, jobFn)
	return t
}

func runSupervised(ctx context.Context, t *Task, jobFn JobFunc) {
	defer func() {
		if r := recover(); r != nil {
			t.PrinterError(fmt.Sprintf("panic: %v", r))
			slog.Error("task: job panicked", "task", t.id, "name", t.name, "panic", r)
		}
	}()
	jobFn(ctx, t)
}

// ID returns the task's immutable identifier.
func (t *Task) ID() uint32 { return t.id }

// Name returns the job name this task was started from.
func (t *Task) Name() string { return t.name }

// Op returns the admitted operation. Callers must not mutate Kwargs/Args
// directly; use ModifyData.
func (t *Task) Op() *protocol.Operation { return t.op }

// Data returns the task's payload, or nil if the job has not initialized it
// yet (data is nil on first run, per the job host contract).
func (t *Task) Data() Payload {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.data
}

// SetData initializes the task's payload. A job calls this exactly once, on
// first run, when Data() returns nil.
func (t *Task) SetData(p Payload) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.data = p
}

// IsPaused reports whether the periodic driver should skip invoking this
// task's next step.
func (t *Task) IsPaused() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.isPaused
}

// IsFinished reports whether the task has completed, been killed, or failed
// terminally.
func (t *Task) IsFinished() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.isFinished
}

// Pause toggles the paused flag and always returns "OK".
func (t *Task) Pause() string {
	t.mu.Lock()
	t.isPaused = !t.isPaused
	t.mu.Unlock()
	return "OK"
}

func (t *Task) appendLine(level slog.Level, msg string) string {
	line := LogLine{Ts: float64(time.Now().UnixNano()) / 1e9, TaskID: t.id, Msg: msg}

	t.mu.Lock()
	if !t.isFinished {
		t.output = append(t.output, line)
		if len(t.output) > MaxOutputLines {
			t.output = t.output[len(t.output)-MaxOutputLines:]
		}
	}
	t.mu.Unlock()

	if t.bus != nil {
		t.bus.Emit(protocol.EventLogger, line)
	}
	slog.Log(context.Background(), level, msg, "task", t.id, "name", t.name)
	return msg
}

func joinArgs(args []any) string {
	out := ""
	for i, a := range args {
		if i > 0 {
			out += " "
		}
		out += fmt.Sprint(a)
	}
	return out
}

// Printer formats args space-separated, appends a LogLine, emits LOGGER,
// and writes through to the process log at info level. Returns the
// formatted string (composed into notification emails by callers).
func (t *Task) Printer(args ...any) string {
	return t.appendLine(slog.LevelInfo, joinArgs(args))
}

// PrinterWarning is Printer at warning level.
func (t *Task) PrinterWarning(args ...any) string {
	return t.appendLine(slog.LevelWarn, joinArgs(args))
}

// PrinterError is Printer at error level.
func (t *Task) PrinterError(args ...any) string {
	return t.appendLine(slog.LevelError, joinArgs(args))
}

// GetOutput returns the last n LogLines, or all of them if n <= 0.
func (t *Task) GetOutput(n int) []LogLine {
	t.mu.Lock()
	defer t.mu.Unlock()
	if n <= 0 || n >= len(t.output) {
		out := make([]LogLine, len(t.output))
		copy(out, t.output)
		return out
	}
	out := make([]LogLine, n)
	copy(out, t.output[len(t.output)-n:])
	return out
}

// Info is the rich introspection payload returned by GetInfo.
type Info struct {
	ID         uint32              `json:"id"`
	Name       string              `json:"name"`
	StartTime  time.Time           `json:"start_time"`
	IsPaused   bool                `json:"is_paused"`
	IsFinished bool                `json:"is_finished"`
	OutputLen  int                 `json:"output_len"`
	Op         *protocol.Operation `json:"op"`
	Data       Payload             `json:"data"`
}

// GetInfo returns a rich snapshot of the task and emits TASK_INFO with
// {taskId, info}.
func (t *Task) GetInfo() Info {
	t.mu.Lock()
	info := Info{
		ID:         t.id,
		Name:       t.name,
		StartTime:  t.startTime,
		IsPaused:   t.isPaused,
		IsFinished: t.isFinished,
		OutputLen:  len(t.output),
		Op:         t.op,
		Data:       t.data,
	}
	t.mu.Unlock()

	if t.bus != nil {
		t.bus.Emit(protocol.EventTaskInfo, map[string]any{"taskId": t.id, "info": info})
	}
	return info
}

// SetFinished marks the task finished and emits TASK_FINISHED. Idempotent:
// a second call is a no-op and does not re-emit.
func (t *Task) SetFinished() {
	t.mu.Lock()
	if t.isFinished {
		t.mu.Unlock()
		return
	}
	t.isFinished = true
	t.mu.Unlock()

	if t.bus != nil {
		t.bus.Emit(protocol.EventTaskFinished, t.id)
	}
}

// Kill cancels the task's job and finalizes it. Idempotent.
func (t *Task) Kill() {
	t.mu.Lock()
	alreadyFinished := t.isFinished
	t.mu.Unlock()
	if alreadyFinished {
		return
	}
	if t.cancel != nil {
		t.cancel()
	}
	t.SetFinished()
}

// ModifyData replaces the operation's kwargs, forwards them to the
// payload's MapOptions, and emits TASK_MODIFIED.
func (t *Task) ModifyData(kwargs map[string]string) {
	t.mu.Lock()
	t.op.Kwargs = kwargs
	data := t.data
	t.mu.Unlock()

	if data != nil {
		data.MapOptions(nil, kwargs)
	}

	if t.bus != nil {
		t.bus.Emit(protocol.EventTaskModified, map[string]any{"taskId": t.id})
	}
}

// Snapshot is everything needed to resume a Task across a save/load cycle.
// Data is a non-empty interface, so json.Unmarshal cannot decode straight
// into it (there is no concrete type to construct). UnmarshalJSON instead
// captures the raw "data" bytes into dataRaw; callers that know the job's
// name resolve its Factory.NewPayload and call DecodeData to finish the job.
type Snapshot struct {
	ID         uint32              `json:"id"`
	Name       string              `json:"name"`
	IsFinished bool                `json:"is_finished"`
	IsPaused   bool                `json:"is_paused"`
	Output     []LogLine           `json:"output"`
	Op         *protocol.Operation `json:"op"`
	StartTime  time.Time           `json:"start_time"`
	Data       Payload             `json:"data"`

	dataRaw json.RawMessage
}

// snapshotAlias is Snapshot stripped of its UnmarshalJSON method, used to
// decode every field except Data without recursing.
type snapshotAlias Snapshot

// UnmarshalJSON decodes every Snapshot field normally except Data, which is
// captured verbatim as dataRaw for a later DecodeData call.
func (s *Snapshot) UnmarshalJSON(data []byte) error {
	aux := &struct {
		*snapshotAlias
		Data json.RawMessage `json:"data"`
	}{snapshotAlias: (*snapshotAlias)(s)}
	if err := json.Unmarshal(data, aux); err != nil {
		return err
	}
	s.Data = nil
	s.dataRaw = aux.Data
	return nil
}

// DecodeData decodes the snapshot's captured payload bytes into a concrete
// Payload built by newPayload (a job's Factory.NewPayload, resolved by the
// caller from Name), and sets Data to it. A snapshot that never went through
// JSON (an in-memory Snapshot/Restore round trip) or whose task never
// initialized Data has no captured bytes and is left untouched.
func (s *Snapshot) DecodeData(newPayload func() Payload) error {
	if len(s.dataRaw) == 0 || string(s.dataRaw) == "null" || newPayload == nil {
		return nil
	}
	p := newPayload()
	if err := json.Unmarshal(s.dataRaw, p); err != nil {
		return err
	}
	s.Data = p
	return nil
}

// ToSnapshot captures everything a restored Task needs to resume.
func (t *Task) ToSnapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	return Snapshot{
		ID:         t.id,
		Name:       t.name,
		IsFinished: t.isFinished,
		IsPaused:   t.isPaused,
		Output:     append([]LogLine(nil), t.output...),
		Op:         t.op,
		StartTime:  t.startTime,
		Data:       t.data,
	}
}
