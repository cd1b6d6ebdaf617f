package main

import (
	"context"
	"time"

	"timebox/core/failure"
	"timebox/core/target"
)

// Demonstration targets. They are registered in every timebox process so the
// worker side can resolve them by name.
func init() {
	target.Register("fib", target.Unary(func(n int) (int, error) { return fib(n), nil }))
	target.Register("fib_thrower", target.Unary(fibThrower))
	target.Register("spin", spin)
	target.Register("sleep", target.Unary(func(d string) (string, error) {
		dur, err := time.ParseDuration(d)
		if err != nil {
			return "", failure.New("value", err.Error())
		}
		time.Sleep(dur)
		return d, nil
	}))
	target.Register("echo", echo)
}

func fib(n int) int {
	if n <= 2 {
		return 1
	}
	return fib(n-1) + fib(n-2)
}

func fibThrower(n int) (int, error) {
	return 0, failure.Newf("value", "fib_thrower doesn't like the value %d!", n)
}

// spin never returns and never checks ctx; only a kill stops it.
func spin(ctx context.Context, call target.Call) (any, error) {
	for {
	}
}

func echo(ctx context.Context, call target.Call) (any, error) {
	out := map[string]any{"args": call.Args}
	if len(call.Kwargs) > 0 {
		out["kwargs"] = call.Kwargs
	}
	return out, nil
}
