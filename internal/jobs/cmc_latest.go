package jobs

import (
	"context"
	"fmt"
	"sort"

	"github.com/wpolak/cbotgo/internal/periodic"
	"github.com/wpolak/cbotgo/internal/task"
)

// CMCLatestData is the payload for a one-shot top-movers fetch against a
// market-data aggregator, filtered against the symbols MemStore tracks for
// a given exchange. "keys" and "raw" are bare positional flags, not
// key=value pairs.
type CMCLatestData struct {
	Exchange string `json:"exchange"`
	Limit    int    `json:"limit"`
	Keys     bool   `json:"keys"`
	Raw      bool   `json:"raw"`
}

var cmcLatestKnownKwargs = map[string]bool{"exchange": true, "limit": true}

func (d *CMCLatestData) MapOptions(args []string, kwargs map[string]string) {
	d.Keys = hasFlag(args, "keys")
	d.Raw = hasFlag(args, "raw")
	if v, ok := kwargs["exchange"]; ok {
		d.Exchange = v
	}
	d.Limit = intKwarg(kwargs, "limit", d.Limit)
	if d.Limit <= 0 {
		d.Limit = 10
	}
	logUnknownKwargs("cmc_latest", kwargs, cmcLatestKnownKwargs)
}

// cmcLatestFeedKey is the MemStore key an external market-data fetcher (out
// of core scope, per the exchange/mail collaborator boundary) is expected
// to populate with the aggregator's latest top-movers payload: a slice of
// maps each carrying at least "symbol" and "percent_change".
const cmcLatestFeedKey = "cmc_latest_feed"

func cmcLatestRun(deps Deps) task.JobFunc {
	return func(ctx context.Context, t *task.Task) {
		data, _ := t.Data().(*CMCLatestData)
		if data == nil {
			data = &CMCLatestData{}
			data.MapOptions(t.Op().Args, t.Op().Kwargs)
			t.SetData(data)
		}

		driver := periodic.New(func(ctx context.Context) periodic.Status {
			if deps.Store == nil {
				t.PrinterError("cmc_latest requires a configured memstore")
				return periodic.ErrorHard
			}
			feed, _ := deps.Store.Get(cmcLatestFeedKey, nil).([]map[string]any)
			if feed == nil {
				t.PrinterWarning("no cmc_latest feed data available yet")
				return periodic.Done
			}

			known := map[string]bool{}
			if data.Exchange != "" {
				for _, s := range deps.Store.GetSymbols(data.Exchange) {
					known[s] = true
				}
			}

			filtered := make([]map[string]any, 0, len(feed))
			for _, entry := range feed {
				symbol, _ := entry["symbol"].(string)
				if len(known) > 0 && !known[symbol] {
					continue
				}
				filtered = append(filtered, entry)
			}
			sort.SliceStable(filtered, func(i, j int) bool {
				a, _ := filtered[i]["percent_change"].(float64)
				b, _ := filtered[j]["percent_change"].(float64)
				return a > b
			})
			if len(filtered) > data.Limit {
				filtered = filtered[:data.Limit]
			}

			for _, entry := range filtered {
				if data.Raw {
					t.Printer(fmt.Sprintf("%v", entry))
					continue
				}
				if data.Keys {
					t.Printer(fmt.Sprintf("%v", keysOf(entry)))
					continue
				}
				t.Printer(fmt.Sprintf("%v %v%%", entry["symbol"], entry["percent_change"]))
			}
			return periodic.Done
		}, nil, t.IsPaused)

		driver.Start(ctx)
		driver.Wait()
		t.SetFinished()
	}
}

func keysOf(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
