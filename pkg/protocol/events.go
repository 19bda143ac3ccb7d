package protocol

import (
	"bytes"
	"encoding/json"
	"strings"
)

// Event names published on the bus and, for the streaming channel, mirrored
// to every connected client. RESULT is not emitted on the bus; it is the
// stream's own wrapper for a request's response.
const (
	EventResult        = "RESULT"
	EventLogger        = "LOGGER"
	EventTaskInfo      = "TASK_INFO"
	EventTaskFinished  = "TASK_FINISHED"
	EventTaskModified  = "TASK_MODIFIED"
	EventTickerUpdate  = "TICKER_UPDATE"
	EventTaskManager   = "TASK_MANAGER"
	EventSavegame      = "SAVEGAME"
	EventAll           = "ALL"
)

// StreamFrame is the envelope pushed to WebSocket clients, both for a
// request's own result and for broadcast bus events.
type StreamFrame struct {
	Stream string `json:"stream"`
	Data   any    `json:"data"`
}

// NewResultFrame wraps a completed Operation for the streaming channel.
func NewResultFrame(op *Operation) *StreamFrame {
	return &StreamFrame{
		Stream: EventResult,
		Data: map[string]any{
			"cmd":       op.Cmd,
			"resp_code": op.RespCode,
			"output":    op.Output,
			"data":      op.Data,
		},
	}
}

// NewEventFrame wraps a bus event for broadcast to streaming clients.
func NewEventFrame(event string, payload any) *StreamFrame {
	return &StreamFrame{Stream: event, Data: payload}
}

// EncodeStreamFrame marshals f for the WebSocket channel with the §6 rule
// that fractional numbers ("Decimal" values in the original — prices,
// amounts, balances) are serialized as strings rather than JSON numbers, so
// clients never lose precision to float round-tripping. Whole-number
// values are left as JSON numbers. This is done by a generic round trip
// through json.Number rather than a typed Decimal, since nothing in the
// runtime's payloads carries a dedicated decimal type.
func EncodeStreamFrame(f *StreamFrame) ([]byte, error) {
	raw, err := json.Marshal(f)
	if err != nil {
		return nil, err
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var generic any
	if err := dec.Decode(&generic); err != nil {
		return nil, err
	}

	return json.Marshal(stringifyDecimals(generic))
}

func stringifyDecimals(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = stringifyDecimals(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = stringifyDecimals(val)
		}
		return out
	case json.Number:
		if strings.ContainsAny(string(t), ".eE") {
			return t.String()
		}
		return t
	default:
		return v
	}
}
