package jobs

import (
	"context"
	"fmt"

	"github.com/wpolak/cbotgo/internal/periodic"
	"github.com/wpolak/cbotgo/internal/task"
)

// CryptoTickerData is the payload for a one-shot multi-symbol ticker fetch.
type CryptoTickerData struct {
	Exchange string   `json:"exchange"`
	Symbols  []string `json:"symbols"`
}

var cryptoTickerKnownKwargs = map[string]bool{"exchange": true}

func (d *CryptoTickerData) MapOptions(args []string, kwargs map[string]string) {
	if len(args) > 0 {
		d.Symbols = args
	}
	if ex, ok := kwargs["exchange"]; ok {
		d.Exchange = ex
	}
	logUnknownKwargs("crypto_ticker", kwargs, cryptoTickerKnownKwargs)
}

func cryptoTickerRun(deps Deps) task.JobFunc {
	return func(ctx context.Context, t *task.Task) {
		data, _ := t.Data().(*CryptoTickerData)
		if data == nil {
			data = &CryptoTickerData{}
			data.MapOptions(t.Op().Args, t.Op().Kwargs)
			t.SetData(data)
		}

		if data.Exchange == "" || len(data.Symbols) == 0 {
			t.PrinterError("crypto_ticker requires an exchange and at least one symbol")
			t.SetFinished()
			return
		}

		driver := periodic.New(func(ctx context.Context) periodic.Status {
			ex, err := deps.Exchanges.Get(data.Exchange)
			if err != nil {
				t.PrinterError(err.Error())
				return periodic.ErrorHard
			}
			tickers, err := ex.FetchTickers(ctx, data.Symbols)
			if err != nil {
				t.PrinterError(fmt.Sprintf("fetch tickers failed: %v", err))
				return periodic.ErrorSoft
			}
			for symbol, ticker := range tickers {
				if deps.Store != nil {
					deps.Store.AddTicker(data.Exchange, ticker)
				}
				t.Printer(fmt.Sprintf("%s %v", symbol, ticker["last"]))
			}
			return periodic.Done
		}, nil, t.IsPaused)

		driver.Start(ctx)
		driver.Wait()
		t.SetFinished()
	}
}
