// Package condition evaluates IFTTT boolean expressions over the live
// ticker map using cel-go, a sandboxed expression environment with no
// side-effecting calls — the typed replacement for the original's raw
// eval(condition, {}, tickers).
package condition

import (
	"fmt"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
)

var env *cel.Env

func init() {
	var err error
	env, err = cel.NewEnv(cel.Variable("tickers", cel.DynType))
	if err != nil {
		panic(fmt.Sprintf("condition: failed to build cel environment: %v", err))
	}
}

// Compiled is a parsed, ready-to-evaluate condition expression.
type Compiled struct {
	program cel.Program
}

// Compile parses and type-checks expr and returns an error for an invalid
// expression. Conditions are not compiled when they are registered: Eval
// compiles on every call, so a bad clause surfaces as an evaluation error on
// its first scan and takes the same removal path as any other failure.
func Compile(expr string) (*Compiled, error) {
	ast, iss := env.Compile(expr)
	if iss != nil && iss.Err() != nil {
		return nil, fmt.Errorf("condition: compile %q: %w", expr, iss.Err())
	}
	prg, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("condition: program %q: %w", expr, err)
	}
	return &Compiled{program: prg}, nil
}

// Eval evaluates the condition against the current tickers map. Any
// compile or runtime failure (missing key, type mismatch, non-boolean
// result) is returned as an error; the caller treats it as condition-false
// and removes the entry.
func Eval(expr string, tickers map[string]map[string]any) (bool, error) {
	c, err := Compile(expr)
	if err != nil {
		return false, err
	}
	return c.Eval(tickers)
}

// Eval runs a precompiled expression against the current tickers map.
func (c *Compiled) Eval(tickers map[string]map[string]any) (bool, error) {
	out, _, err := c.program.Eval(map[string]any{"tickers": tickers})
	if err != nil {
		return false, fmt.Errorf("condition: eval: %w", err)
	}
	b, ok := out.Value().(bool)
	if !ok || out.Type() != types.BoolType {
		return false, fmt.Errorf("condition: result is not boolean: %v", out)
	}
	return b, nil
}
