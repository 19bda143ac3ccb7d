// Package cmdparse turns a control request — either free-form text or an
// already-structured command — into a protocol.Operation ready for the
// dispatcher.
package cmdparse

import (
	"fmt"
	"strings"

	"github.com/mattn/go-shellwords"

	"github.com/wpolak/cbotgo/pkg/protocol"
)

// ParseRaw tokenizes line with shell-style quoting (whitespace separates
// tokens; single and double quotes group; a backslash escapes the next
// character; an unmatched quote is an error) and splits it into an
// Operation. Each token containing "=" splits on the first "=" only into a
// kwarg; all other tokens are positional, and the first positional token is
// the command.
func ParseRaw(line string) (*protocol.Operation, error) {
	parser := shellwords.NewParser()
	tokens, err := parser.Parse(line)
	if err != nil {
		return nil, fmt.Errorf("ERR: %s", err)
	}

	var cmd string
	var args []string
	kwargs := map[string]string{}

	for _, tok := range tokens {
		if idx := strings.Index(tok, "="); idx >= 0 {
			key := strings.TrimSpace(tok[:idx])
			val := strings.TrimSpace(tok[idx+1:])
			kwargs[key] = val
			continue
		}
		if cmd == "" {
			cmd = tok
			continue
		}
		args = append(args, tok)
	}

	if cmd == "" {
		return nil, fmt.Errorf("ERR: empty command")
	}

	return protocol.New(cmd, args, kwargs), nil
}

// FromStructured builds an Operation from already-structured fields,
// lower/upper-casing cmd the same way ParseRaw does.
func FromStructured(cmd string, args []string, kwargs map[string]string) *protocol.Operation {
	return protocol.New(cmd, args, kwargs)
}

// FromRequestFrame builds an Operation from a wire RequestFrame, choosing
// ParseRaw or FromStructured based on which fields are populated. It also
// reports whether raw_input was used, since the TCP control server keeps `output`
// only for raw_input requests and nulls it for structured ones.
func FromRequestFrame(f *protocol.RequestFrame) (op *protocol.Operation, wasRaw bool, err error) {
	if f.IsRawInput() {
		op, err = ParseRaw(*f.RawInput)
		return op, true, err
	}
	return FromStructured(f.Cmd, f.Args, f.Kwargs), false, nil
}
