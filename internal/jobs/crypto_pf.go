package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/wpolak/cbotgo/internal/periodic"
	"github.com/wpolak/cbotgo/internal/task"
)

// CryptoPFData is the payload for a periodic portfolio/balance snapshot job.
type CryptoPFData struct {
	Exchange string  `json:"exchange"`
	Interval float64 `json:"interval"`
}

var cryptoPFKnownKwargs = map[string]bool{"exchange": true, "interval": true}

func (d *CryptoPFData) MapOptions(args []string, kwargs map[string]string) {
	if len(args) > 0 {
		d.Exchange = args[0]
	}
	if v, ok := kwargs["exchange"]; ok {
		d.Exchange = v
	}
	d.Interval = floatKwarg(kwargs, "interval", d.Interval)
	if d.Interval <= 0 {
		d.Interval = 300
	}
	logUnknownKwargs("crypto_pf", kwargs, cryptoPFKnownKwargs)
}

func cryptoPFRun(deps Deps) task.JobFunc {
	return func(ctx context.Context, t *task.Task) {
		data, _ := t.Data().(*CryptoPFData)
		if data == nil {
			data = &CryptoPFData{}
			data.MapOptions(t.Op().Args, t.Op().Kwargs)
			t.SetData(data)
		}

		if data.Exchange == "" {
			t.PrinterError("crypto_pf requires an exchange")
			t.SetFinished()
			return
		}

		driver := periodic.New(func(ctx context.Context) periodic.Status {
			ex, err := deps.Exchanges.Get(data.Exchange)
			if err != nil {
				t.PrinterError(err.Error())
				return periodic.ErrorHard
			}
			balances, err := ex.FetchBalance(ctx)
			if err != nil {
				t.PrinterError(fmt.Sprintf("fetch balance failed: %v", err))
				return periodic.ErrorSoft
			}
			if deps.Store != nil {
				deps.Store.Add("portfolio:"+data.Exchange, balances)
			}
			for asset, bal := range balances {
				if bal.Total > 0 {
					t.Printer(fmt.Sprintf("%s: free=%.8f used=%.8f total=%.8f", asset, bal.Free, bal.Used, bal.Total))
				}
			}
			return periodic.Continue
		}, func() time.Duration { return time.Duration(data.Interval * float64(time.Second)) }, t.IsPaused)

		driver.Start(ctx)
		driver.Wait()
		t.SetFinished()
	}
}
