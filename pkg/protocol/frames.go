package protocol

import "encoding/json"

// RequestFrame is what a control client sends, either as a free-form line
// ("raw_input") or as an already-structured command.
type RequestFrame struct {
	RawInput *string           `json:"raw_input,omitempty"`
	Cmd      string            `json:"cmd,omitempty"`
	Args     []string          `json:"args,omitempty"`
	Kwargs   map[string]string `json:"kwargs,omitempty"`
}

// IsRawInput reports whether the frame carries free text rather than a
// structured command.
func (f *RequestFrame) IsRawInput() bool {
	return f.RawInput != nil
}

// ResponseFrame is the wire shape returned over the unary TCP channel.
type ResponseFrame struct {
	RespCode string `json:"resp_code"`
	Output   any    `json:"output"`
	Data     any    `json:"data"`
}

// FromOperation projects an Operation's response fields into a ResponseFrame.
func FromOperation(op *Operation) *ResponseFrame {
	return &ResponseFrame{RespCode: op.RespCode, Output: op.Output, Data: op.Data}
}

// ParseRequestFrame decodes a single line of JSON into a RequestFrame.
func ParseRequestFrame(line []byte) (*RequestFrame, error) {
	var f RequestFrame
	if err := json.Unmarshal(line, &f); err != nil {
		return nil, err
	}
	return &f, nil
}
