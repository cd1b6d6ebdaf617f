package target

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"timebox/core/failure"
)

func TestRegistryLookup(t *testing.T) {
	reg := New()
	reg.Register("b", func(ctx context.Context, call Call) (any, error) { return "b", nil })
	reg.Register("a", func(ctx context.Context, call Call) (any, error) { return "a", nil })

	fn, err := reg.Lookup("a")
	require.NoError(t, err)
	got, err := fn(context.Background(), Call{})
	require.NoError(t, err)
	assert.Equal(t, "a", got)

	assert.Equal(t, []string{"a", "b"}, reg.Names())
	assert.True(t, reg.Has("b"))
	assert.False(t, reg.Has("c"))

	_, err = reg.Lookup("c")
	assert.Error(t, err)
}

func TestRegisterRejectsEmpty(t *testing.T) {
	assert.Panics(t, func() { New().Register("", nil) })
}

func TestUnary(t *testing.T) {
	double := Unary(func(n int) (int, error) { return n * 2, nil })

	got, err := double(context.Background(), Call{Args: []json.RawMessage{json.RawMessage("21")}})
	require.NoError(t, err)
	assert.Equal(t, 42, got)

	_, err = double(context.Background(), Call{})
	assert.Error(t, err)

	_, err = double(context.Background(), Call{Args: []json.RawMessage{json.RawMessage(`"x"`)}})
	assert.True(t, errors.Is(err, failure.ErrSerialization))
}

func TestKwarg(t *testing.T) {
	call := Call{Kwargs: map[string]json.RawMessage{"depth": json.RawMessage("3")}}

	var depth int
	ok, err := call.Kwarg("depth", &depth)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 3, depth)

	var other string
	ok, err = call.Kwarg("other", &other)
	require.NoError(t, err)
	assert.False(t, ok)
}
