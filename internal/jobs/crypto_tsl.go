package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/wpolak/cbotgo/internal/periodic"
	"github.com/wpolak/cbotgo/internal/task"
)

// CryptoTSLData is the payload for an indefinite periodic trailing-stop-loss
// loop: the spec's own canonical "indefinite periodic" job. Two tracking
// algorithms are supported, matching the original's std1/std2 split.
type CryptoTSLData struct {
	Exchange     string  `json:"exchange"`
	Symbol       string  `json:"symbol"`
	Amount       float64 `json:"amount"`
	TrailPercent float64 `json:"trail_percent"`
	Algo         string  `json:"algo"` // "std1" or "std2"
	Interval     float64 `json:"interval"`
	HighWater    float64 `json:"high_water"`
	Armed        bool    `json:"armed"`
}

var cryptoTSLKnownKwargs = map[string]bool{
	"exchange": true, "amount": true, "trail": true, "algo": true, "interval": true,
}

func (d *CryptoTSLData) MapOptions(args []string, kwargs map[string]string) {
	if len(args) > 0 {
		d.Symbol = args[0]
	}
	if v, ok := kwargs["exchange"]; ok {
		d.Exchange = v
	}
	d.Amount = floatKwarg(kwargs, "amount", d.Amount)
	d.TrailPercent = floatKwarg(kwargs, "trail", d.TrailPercent)
	if v, ok := kwargs["algo"]; ok {
		d.Algo = v
	} else if d.Algo == "" {
		d.Algo = "std1"
	}
	d.Interval = floatKwarg(kwargs, "interval", d.Interval)
	if d.Interval <= 0 {
		d.Interval = 5
	}
	logUnknownKwargs("crypto_tsl", kwargs, cryptoTSLKnownKwargs)
}

func cryptoTSLRun(deps Deps) task.JobFunc {
	return func(ctx context.Context, t *task.Task) {
		data, _ := t.Data().(*CryptoTSLData)
		if data == nil {
			data = &CryptoTSLData{}
			data.MapOptions(t.Op().Args, t.Op().Kwargs)
			t.SetData(data)
		}

		if data.Exchange == "" || data.Symbol == "" || data.Amount <= 0 || data.TrailPercent <= 0 {
			t.PrinterError("crypto_tsl requires exchange, symbol, amount and a positive trail percent")
			t.SetFinished()
			return
		}

		driver := periodic.New(func(ctx context.Context) periodic.Status {
			ex, err := deps.Exchanges.Get(data.Exchange)
			if err != nil {
				t.PrinterError(err.Error())
				return periodic.ErrorHard
			}
			ticker, err := ex.FetchTicker(ctx, data.Symbol)
			if err != nil {
				t.PrinterError(fmt.Sprintf("fetch ticker failed: %v", err))
				return periodic.ErrorSoft
			}
			last, _ := ticker["last"].(float64)
			if last <= 0 {
				t.PrinterWarning("ticker missing a usable last price")
				return periodic.ErrorSoft
			}
			if deps.Store != nil {
				deps.Store.AddTicker(data.Exchange, ticker)
			}

			if !data.Armed || last > data.HighWater {
				data.HighWater = last
				data.Armed = true
				t.Printer(fmt.Sprintf("new high water mark %s", ex.Price2Prec(data.Symbol, last)))
				return periodic.Continue
			}

			stopPrice := trailingStop(data.Algo, data.HighWater, data.TrailPercent)
			if last > stopPrice {
				return periodic.Continue
			}

			order, err := ex.CreateOrder(ctx, data.Symbol, "sell", "market", data.Amount, last)
			if err != nil {
				t.PrinterError(fmt.Sprintf("stop-loss sell failed: %v", err))
				return periodic.ErrorSoft
			}
			t.Printer(fmt.Sprintf("trailing stop triggered at %s, sold via order %s", ex.Price2Prec(data.Symbol, last), order.ID))
			recordFill(ctx, deps, t, &CryptoOrderData{Exchange: data.Exchange, Symbol: data.Symbol, Side: "sell", Type: "market", Amount: data.Amount, Price: last}, order.ID, false)
			return periodic.Done
		}, func() time.Duration { return time.Duration(data.Interval * float64(time.Second)) }, t.IsPaused)

		driver.Start(ctx)
		driver.Wait()
		t.SetFinished()
	}
}

// trailingStop computes the stop-loss trigger price for the given
// high-water mark. std1 is a simple percent-below-high trail; std2 widens
// the trail as the high-water mark rises, giving winners more room to run.
func trailingStop(algo string, highWater, trailPercent float64) float64 {
	switch algo {
	case "std2":
		widened := trailPercent * (1 + highWater/(highWater+1)/10)
		return highWater * (1 - widened/100)
	default:
		return highWater * (1 - trailPercent/100)
	}
}
