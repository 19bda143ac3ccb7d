package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/wpolak/cbotgo/internal/periodic"
	"github.com/wpolak/cbotgo/internal/task"
)

// PingData is the payload for the ping job: the spec's own worked example
// of a finite-or-indefinite periodic counter. Count <= 0 means run until
// killed; Count > 0 stops after that many lines.
type PingData struct {
	Count           int     `json:"count"`
	IntervalSeconds float64 `json:"interval"`
	Done            int     `json:"done"`
}

var pingKnownKwargs = map[string]bool{"interval": true}

func (d *PingData) MapOptions(args []string, kwargs map[string]string) {
	if len(args) > 0 {
		if n, err := strconv.Atoi(args[0]); err == nil {
			d.Count = n
		} else {
			slog.Warn("jobs: ping: ignoring non-integer count", "value", args[0])
		}
	}
	d.IntervalSeconds = floatKwarg(kwargs, "interval", d.IntervalSeconds)
	if d.IntervalSeconds <= 0 {
		d.IntervalSeconds = 1
	}
	logUnknownKwargs("ping", kwargs, pingKnownKwargs)
}

// Interval satisfies task.IntervalPayload; the ping job passes it to the
// periodic driver so the job func does not hardcode its cadence.
func (d *PingData) Interval() time.Duration {
	return time.Duration(d.IntervalSeconds * float64(time.Second))
}

func pingRun(deps Deps) task.JobFunc {
	return func(ctx context.Context, t *task.Task) {
		data, _ := t.Data().(*PingData)
		if data == nil {
			data = &PingData{Count: 0, IntervalSeconds: 1}
			data.MapOptions(t.Op().Args, t.Op().Kwargs)
			t.SetData(data)
		}

		driver := periodic.New(
			func(ctx context.Context) periodic.Status {
				data.Done++
				t.Printer(fmt.Sprintf("Ping #%d", data.Done))
				if data.Count > 0 && data.Done >= data.Count {
					return periodic.Done
				}
				return periodic.Continue
			},
			func() time.Duration { return data.Interval() },
			t.IsPaused,
		)
		driver.Start(ctx)
		driver.Wait()
		t.SetFinished()
	}
}
