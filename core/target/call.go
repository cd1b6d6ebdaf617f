package target

import (
	"context"
	"encoding/json"
	"fmt"

	"timebox/core/failure"
)

// Call carries the encoded arguments of one invocation.
type Call struct {
	Args   []json.RawMessage
	Kwargs map[string]json.RawMessage
}

func (c Call) NumArgs() int { return len(c.Args) }

// Arg decodes positional argument i into v.
func (c Call) Arg(i int, v any) error {
	if i < 0 || i >= len(c.Args) {
		return fmt.Errorf("missing positional argument %d (got %d)", i, len(c.Args))
	}
	if err := json.Unmarshal(c.Args[i], v); err != nil {
		return failure.Serialization("decode arg %d: %v", i, err)
	}
	return nil
}

// Kwarg decodes keyword argument name into v. It reports false when the
// argument was not passed.
func (c Call) Kwarg(name string, v any) (bool, error) {
	raw, ok := c.Kwargs[name]
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return true, failure.Serialization("decode kwarg %q: %v", name, err)
	}
	return true, nil
}

// Unary adapts a single-argument function into a Func.
func Unary[A, R any](fn func(A) (R, error)) Func {
	return func(ctx context.Context, call Call) (any, error) {
		_ = ctx
		if call.NumArgs() != 1 {
			return nil, fmt.Errorf("want 1 positional argument, got %d", call.NumArgs())
		}
		var a A
		if err := call.Arg(0, &a); err != nil {
			return nil, err
		}
		return fn(a)
	}
}
