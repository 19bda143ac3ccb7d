package task

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/wpolak/cbotgo/internal/eventbus"
	"github.com/wpolak/cbotgo/pkg/protocol"
)

func newTestOp() *protocol.Operation {
	return protocol.New("ping", []string{"3"}, map[string]string{})
}

func TestOutputCapAndFIFOEviction(t *testing.T) {
	bus := eventbus.New()
	jobDone := make(chan struct{})
	tk := New(context.Background(), 1, "ping", newTestOp(), bus, func(ctx context.Context, tk *Task) {
		for i := 0; i < MaxOutputLines+1; i++ {
			tk.Printer("line", i)
		}
		tk.SetFinished()
		close(jobDone)
	}, nil)

	select {
	case <-jobDone:
	case <-time.After(2 * time.Second):
		t.Fatal("job did not finish")
	}

	out := tk.GetOutput(0)
	if len(out) != MaxOutputLines {
		t.Fatalf("output length = %d, want %d", len(out), MaxOutputLines)
	}
	if out[0].Msg != "line 1" {
		t.Fatalf("oldest retained line = %q, want the one after the first eviction", out[0].Msg)
	}
}

func TestKillIsIdempotent(t *testing.T) {
	bus := eventbus.New()
	started := make(chan struct{})
	tk := New(context.Background(), 2, "ping", newTestOp(), bus, func(ctx context.Context, tk *Task) {
		close(started)
		<-ctx.Done()
		tk.SetFinished()
	}, nil)
	<-started
	tk.Kill()
	time.Sleep(20 * time.Millisecond)
	if !tk.IsFinished() {
		t.Fatal("expected task finished after kill")
	}
	tk.Kill() // second call must not panic or re-finalize
	if !tk.IsFinished() {
		t.Fatal("task should remain finished")
	}
}

func TestPauseToggles(t *testing.T) {
	bus := eventbus.New()
	tk := New(context.Background(), 3, "ping", newTestOp(), bus, func(ctx context.Context, tk *Task) {
		<-ctx.Done()
		tk.SetFinished()
	}, nil)
	defer tk.Kill()

	if tk.IsPaused() {
		t.Fatal("new task should not start paused")
	}
	tk.Pause()
	if !tk.IsPaused() {
		t.Fatal("expected paused after first Pause()")
	}
	tk.Pause()
	if tk.IsPaused() {
		t.Fatal("expected unpaused after second Pause()")
	}
}

func TestModifyDataForwardsToPayload(t *testing.T) {
	bus := eventbus.New()
	tk := New(context.Background(), 4, "ping", newTestOp(), bus, func(ctx context.Context, tk *Task) {
		<-ctx.Done()
		tk.SetFinished()
	}, nil)
	defer tk.Kill()

	payload := &fakePayload{}
	tk.SetData(payload)
	tk.ModifyData(map[string]string{"interval": "5"})

	if payload.LastKwargs["interval"] != "5" {
		t.Fatalf("payload did not receive forwarded kwargs: %v", payload.LastKwargs)
	}
	if tk.Op().Kwargs["interval"] != "5" {
		t.Fatal("operation kwargs were not replaced")
	}
}

type fakePayload struct {
	LastKwargs map[string]string
}

func (p *fakePayload) MapOptions(args []string, kwargs map[string]string) {
	p.LastKwargs = kwargs
}

func TestRestoredFinishedTaskLaunchesNoJob(t *testing.T) {
	bus := eventbus.New()
	ran := false
	tk := New(context.Background(), 5, "ping", newTestOp(), bus, func(ctx context.Context, tk *Task) {
		ran = true
	}, &Snapshot{ID: 5, Name: "ping", IsFinished: true, Output: []LogLine{{Msg: "done"}}})

	time.Sleep(20 * time.Millisecond)
	if ran {
		t.Fatal("job function must not run for a restored, already-finished task")
	}
	if !tk.IsFinished() {
		t.Fatal("restored task should report finished")
	}
	if len(tk.GetOutput(0)) != 1 {
		t.Fatal("restored task should keep its prior output")
	}
}

// TestSnapshotJSONRoundTripDecodesPayload exercises the actual failure mode a
// snapshot save/load cycle hits: Data is a non-empty Payload interface, so
// json.Unmarshal cannot construct a concrete value for it on its own.
// UnmarshalJSON must capture the raw bytes, and DecodeData must turn them
// back into the caller's concrete payload type once the job name is known.
func TestSnapshotJSONRoundTripDecodesPayload(t *testing.T) {
	original := Snapshot{
		ID:   7,
		Name: "ping",
		Data: &fakePayload{LastKwargs: map[string]string{"interval": "5"}},
	}

	data, err := json.Marshal(original)
	if err != nil {
		t.Fatal(err)
	}

	var restored Snapshot
	if err := json.Unmarshal(data, &restored); err != nil {
		t.Fatal(err)
	}
	if restored.Data != nil {
		t.Fatalf("expected Data to stay nil until DecodeData runs, got %#v", restored.Data)
	}

	if err := restored.DecodeData(func() Payload { return &fakePayload{} }); err != nil {
		t.Fatal(err)
	}

	payload, ok := restored.Data.(*fakePayload)
	if !ok {
		t.Fatalf("expected *fakePayload after DecodeData, got %T", restored.Data)
	}
	if payload.LastKwargs["interval"] != "5" {
		t.Fatalf("payload fields did not survive the round trip: %+v", payload)
	}
}

func TestSnapshotDecodeDataIsNoOpWithoutCapturedBytes(t *testing.T) {
	snap := Snapshot{ID: 1, Name: "ping", Data: &fakePayload{LastKwargs: map[string]string{"a": "b"}}}
	if err := snap.DecodeData(func() Payload { return &fakePayload{} }); err != nil {
		t.Fatal(err)
	}
	payload, ok := snap.Data.(*fakePayload)
	if !ok || payload.LastKwargs["a"] != "b" {
		t.Fatalf("in-memory Data must survive untouched when there are no raw bytes, got %+v", snap.Data)
	}
}
