// Package protocol defines the wire shapes exchanged between control clients
// and the task runtime: the Operation envelope, request/response framing for
// the unary TCP channel, and the stream envelope for the WebSocket channel.
package protocol

import "strings"

// RespOK and RespErr are the two values Operation.RespCode ever takes.
const (
	RespOK  = "OK"
	RespErr = "ERR"
)

// Operation is the unit routed through the system: a command plus its
// response fields. The same struct carries a request on the way in and a
// response on the way out — resp_code/output/data are simply unset on a
// fresh request.
type Operation struct {
	Cmd      string            `json:"cmd"`
	Args     []string          `json:"args,omitempty"`
	Kwargs   map[string]string `json:"kwargs,omitempty"`
	RespCode string            `json:"resp_code,omitempty"`
	Output   any               `json:"output,omitempty"`
	Data     any               `json:"data,omitempty"`
}

// New returns an Operation with the command canonicalized to upper case.
func New(cmd string, args []string, kwargs map[string]string) *Operation {
	if kwargs == nil {
		kwargs = map[string]string{}
	}
	return &Operation{
		Cmd:    strings.ToUpper(strings.TrimSpace(cmd)),
		Args:   args,
		Kwargs: kwargs,
	}
}

// Kwarg returns the value for key and whether it was present, deleting
// nothing — callers that need to consume a kwarg call DeleteKwarg explicitly.
func (o *Operation) Kwarg(key string) (string, bool) {
	if o.Kwargs == nil {
		return "", false
	}
	v, ok := o.Kwargs[key]
	return v, ok
}

// DeleteKwarg removes key from Kwargs, returning its former value.
func (o *Operation) DeleteKwarg(key string) (string, bool) {
	v, ok := o.Kwarg(key)
	if ok {
		delete(o.Kwargs, key)
	}
	return v, ok
}

// Ok sets RespCode, Output and Data for a successful response and returns o
// for chaining.
func (o *Operation) Ok(output, data any) *Operation {
	o.RespCode = RespOK
	o.Output = output
	o.Data = data
	return o
}

// Err sets RespCode and Output for a failed response and returns o for
// chaining. Data is left as-is (typically nil).
func (o *Operation) Err(output any) *Operation {
	o.RespCode = RespErr
	o.Output = output
	return o
}

// Clone returns a deep-enough copy of o suitable for handing to a Task: Args
// and Kwargs are copied so later mutation (e.g. modify_data) does not alias
// the caller's slice/map.
func (o *Operation) Clone() *Operation {
	args := make([]string, len(o.Args))
	copy(args, o.Args)
	kwargs := make(map[string]string, len(o.Kwargs))
	for k, v := range o.Kwargs {
		kwargs[k] = v
	}
	return &Operation{Cmd: o.Cmd, Args: args, Kwargs: kwargs}
}
