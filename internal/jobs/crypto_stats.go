package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/wpolak/cbotgo/internal/periodic"
	"github.com/wpolak/cbotgo/internal/task"
)

// CryptoStatsData is the payload for a periodic OHLCV statistics job.
type CryptoStatsData struct {
	Exchange  string  `json:"exchange"`
	Symbol    string  `json:"symbol"`
	Timeframe string  `json:"timeframe"`
	Interval  float64 `json:"interval"`
}

var cryptoStatsKnownKwargs = map[string]bool{"exchange": true, "timeframe": true, "interval": true}

func (d *CryptoStatsData) MapOptions(args []string, kwargs map[string]string) {
	if len(args) > 0 {
		d.Symbol = args[0]
	}
	if v, ok := kwargs["exchange"]; ok {
		d.Exchange = v
	}
	if v, ok := kwargs["timeframe"]; ok {
		d.Timeframe = v
	} else if d.Timeframe == "" {
		d.Timeframe = "1h"
	}
	d.Interval = floatKwarg(kwargs, "interval", d.Interval)
	if d.Interval <= 0 {
		d.Interval = 60
	}
	logUnknownKwargs("crypto_stats", kwargs, cryptoStatsKnownKwargs)
}

func cryptoStatsRun(deps Deps) task.JobFunc {
	return func(ctx context.Context, t *task.Task) {
		data, _ := t.Data().(*CryptoStatsData)
		if data == nil {
			data = &CryptoStatsData{}
			data.MapOptions(t.Op().Args, t.Op().Kwargs)
			t.SetData(data)
		}

		if data.Exchange == "" || data.Symbol == "" {
			t.PrinterError("crypto_stats requires an exchange and a symbol")
			t.SetFinished()
			return
		}

		driver := periodic.New(func(ctx context.Context) periodic.Status {
			ex, err := deps.Exchanges.Get(data.Exchange)
			if err != nil {
				t.PrinterError(err.Error())
				return periodic.ErrorHard
			}
			candles, err := ex.FetchOHLCV(ctx, data.Symbol, data.Timeframe, 1)
			if err != nil {
				t.PrinterError(fmt.Sprintf("fetch ohlcv failed: %v", err))
				return periodic.ErrorSoft
			}
			if len(candles) == 0 {
				t.PrinterWarning("no ohlcv candles returned")
				return periodic.ErrorSoft
			}
			latest := candles[len(candles)-1]
			if deps.Store != nil {
				deps.Store.AddOHLCV(data.Exchange, data.Symbol, latest)
			}
			t.Printer(fmt.Sprintf("%s %s close=%.8f", data.Symbol, data.Timeframe, latest[4]))
			return periodic.Continue
		}, func() time.Duration { return time.Duration(data.Interval * float64(time.Second)) }, t.IsPaused)

		driver.Start(ctx)
		driver.Wait()
		t.SetFinished()
	}
}
