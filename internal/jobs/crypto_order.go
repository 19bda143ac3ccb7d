package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/wpolak/cbotgo/internal/ledger"
	"github.com/wpolak/cbotgo/internal/periodic"
	"github.com/wpolak/cbotgo/internal/task"
)

// CryptoOrderData is the payload for a one-shot order placement.
type CryptoOrderData struct {
	Exchange string  `json:"exchange"`
	Symbol   string  `json:"symbol"`
	Side     string  `json:"side"` // "buy" or "sell"
	Type     string  `json:"type"` // market, limit, stop_loss, stop_loss_limit, take_profit, take_profit_limit
	Amount   float64 `json:"amount"`
	Price    float64 `json:"price"`
	Simulate bool    `json:"simulate"`
}

var cryptoOrderKnownKwargs = map[string]bool{
	"exchange": true, "side": true, "type": true, "amount": true, "price": true,
	"simulate": true, "dry": true,
}

func (d *CryptoOrderData) MapOptions(args []string, kwargs map[string]string) {
	if len(args) > 0 {
		d.Symbol = args[0]
	}
	if v, ok := kwargs["exchange"]; ok {
		d.Exchange = v
	}
	if v, ok := kwargs["side"]; ok {
		d.Side = v
	}
	if v, ok := kwargs["type"]; ok {
		d.Type = v
	} else if d.Type == "" {
		d.Type = "market"
	}
	d.Amount = floatKwarg(kwargs, "amount", d.Amount)
	d.Price = floatKwarg(kwargs, "price", d.Price)
	d.Simulate = boolKwarg(kwargs, "simulate", d.Simulate) || hasFlag(args, "dry") || boolKwarg(kwargs, "dry", false)
	logUnknownKwargs("crypto_order", kwargs, cryptoOrderKnownKwargs)
}

func cryptoOrderRun(deps Deps) task.JobFunc {
	return func(ctx context.Context, t *task.Task) {
		data, _ := t.Data().(*CryptoOrderData)
		if data == nil {
			data = &CryptoOrderData{}
			data.MapOptions(t.Op().Args, t.Op().Kwargs)
			t.SetData(data)
		}

		if data.Exchange == "" || data.Symbol == "" || data.Side == "" || data.Amount <= 0 {
			t.PrinterError("crypto_order requires exchange, symbol, side and a positive amount")
			t.SetFinished()
			return
		}

		driver := periodic.New(func(ctx context.Context) periodic.Status {
			ex, err := deps.Exchanges.Get(data.Exchange)
			if err != nil {
				t.PrinterError(err.Error())
				return periodic.ErrorHard
			}

			if data.Simulate {
				t.Printer(fmt.Sprintf("SIMULATED %s %s %s amount=%s price=%s",
					data.Side, data.Type, data.Symbol,
					ex.Amount2Prec(data.Symbol, data.Amount), ex.Price2Prec(data.Symbol, data.Price)))
				recordFill(ctx, deps, t, data, "simulated", true)
				return periodic.Done
			}

			order, err := ex.CreateOrder(ctx, data.Symbol, data.Side, data.Type, data.Amount, data.Price)
			if err != nil {
				t.PrinterError(fmt.Sprintf("create order failed: %v", err))
				return periodic.ErrorSoft
			}
			t.Printer(fmt.Sprintf("order %s %s %s %s filled at %s", order.ID, order.Side, order.Symbol,
				ex.Amount2Prec(data.Symbol, order.Amount), ex.Price2Prec(data.Symbol, order.Price)))
			recordFill(ctx, deps, t, data, order.ID, false)

			if deps.Mail != nil {
				body := fmt.Sprintf("Order %s placed: %s %s %s @ %s", order.ID, order.Side, order.Symbol,
					ex.Amount2Prec(data.Symbol, order.Amount), ex.Price2Prec(data.Symbol, order.Price))
				if err := deps.Mail.Send("Order filled", body); err != nil {
					t.PrinterWarning(fmt.Sprintf("mail notification failed: %v", err))
				}
			}
			return periodic.Done
		}, nil, t.IsPaused)

		driver.Start(ctx)
		driver.Wait()
		t.SetFinished()
	}
}

func recordFill(ctx context.Context, deps Deps, t *task.Task, data *CryptoOrderData, id string, simulated bool) {
	if deps.Ledger == nil {
		return
	}
	fill := ledger.Fill{
		ID: fmt.Sprintf("%s-%d-%d", id, t.ID(), time.Now().UnixNano()),
		TaskID: t.ID(), Exchange: data.Exchange, Symbol: data.Symbol, Side: data.Side,
		Type: data.Type, Amount: data.Amount, Price: data.Price, Simulated: simulated, CreatedAt: time.Now(),
	}
	if err := deps.Ledger.RecordFill(ctx, fill); err != nil {
		t.PrinterWarning(fmt.Sprintf("ledger record failed: %v", err))
	}
}
