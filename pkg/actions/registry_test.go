package actions

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mercator-hq/railguard/pkg/rails"
)

func echoAction(calls *atomic.Int32) *Func {
	schema := ObjectSchema(map[string]any{
		"text":  map[string]any{"type": "string"},
		"times": map[string]any{"type": "integer", "minimum": 1, "default": 1},
	}, "text")
	return NewFunc("echo", "Repeat text", schema, func(ctx context.Context, args Args) (any, error) {
		calls.Add(1)
		n, _ := args.Int("times")
		out := ""
		for i := 0; i < n; i++ {
			out += args.String("text")
		}
		return out, nil
	})
}

func TestRegistry_Register(t *testing.T) {
	r := NewRegistry(0, nil)
	var calls atomic.Int32

	require.NoError(t, r.Register(echoAction(&calls)))
	assert.True(t, r.Has("echo"))
	assert.Equal(t, 1, r.Len())

	err := r.Register(echoAction(&calls))
	require.Error(t, err)
	assert.ErrorIs(t, err, rails.ErrConfigurationInvalid)
	assert.Contains(t, err.Error(), "already registered")
}

func TestRegistry_RegisterInvalid(t *testing.T) {
	noop := func(ctx context.Context, args Args) (any, error) { return nil, nil }

	tests := []struct {
		name   string
		action Action
	}{
		{"nil action", nil},
		{"empty name", NewFunc(" ", "", nil, noop)},
		{"non-object schema", NewFunc("x", "", ArgSchema{"type": "string"}, noop)},
		{"malformed schema", NewFunc("x", "", ArgSchema{"type": "object", "properties": map[string]any{"a": map[string]any{"type": 42}}}, noop)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewRegistry(0, nil)
			err := r.Register(tt.action)
			require.Error(t, err)
			assert.ErrorIs(t, err, rails.ErrConfigurationInvalid)
		})
	}
}

func TestRegistry_Freeze(t *testing.T) {
	r := NewRegistry(0, nil)
	var calls atomic.Int32
	r.Freeze()

	err := r.Register(echoAction(&calls))
	assert.ErrorIs(t, err, rails.ErrConfigurationInvalid)
	assert.ErrorIs(t, r.SetTimeout("echo", time.Second), rails.ErrConfigurationInvalid)
}

func TestRegistry_InvokeValidation(t *testing.T) {
	var calls atomic.Int32
	r := NewRegistry(0, nil)
	r.MustRegister(echoAction(&calls))
	r.Freeze()

	tests := []struct {
		name string
		call Call
	}{
		{"unknown action", Call{Name: "nope", Arguments: Args{}}},
		{"missing required", Call{Name: "echo", Arguments: Args{}}},
		{"wrong kind", Call{Name: "echo", Arguments: Args{"text": 5}}},
		{"below minimum", Call{Name: "echo", Arguments: Args{"text": "a", "times": 0}}},
		{"unexpected argument", Call{Name: "echo", Arguments: Args{"text": "a", "extra": true}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := r.Invoke(context.Background(), tt.call)
			require.Error(t, err)
			assert.ErrorIs(t, err, rails.ErrInvalidArgument)
		})
	}

	assert.Zero(t, calls.Load(), "handler must never run on invalid arguments")
}

func TestRegistry_InvokeAppliesDefaults(t *testing.T) {
	var calls atomic.Int32
	r := NewRegistry(0, nil)
	r.MustRegister(echoAction(&calls))

	args := Args{"text": "hi"}
	res, err := r.Invoke(context.Background(), Call{ID: "c1", Name: "echo", Arguments: args})
	require.NoError(t, err)
	assert.Equal(t, "hi", res.Text())
	assert.Equal(t, "c1", res.Call.ID)
	assert.Equal(t, 1, res.Call.Arguments["times"])
	assert.NotContains(t, args, "times", "caller arguments must not be modified")

	res, err = r.Invoke(context.Background(), Call{Name: "echo", Arguments: Args{"text": "ab", "times": 3}})
	require.NoError(t, err)
	assert.Equal(t, "ababab", res.Value)
	assert.EqualValues(t, 2, calls.Load())
}

func TestRegistry_InvokeTimeout(t *testing.T) {
	r := NewRegistry(time.Second, nil)

	release := make(chan struct{})
	defer close(release)

	// Ignores ctx on purpose.
	r.MustRegister(NewFunc("stuck", "", nil, func(ctx context.Context, args Args) (any, error) {
		<-release
		return "late", nil
	}))
	require.NoError(t, r.SetTimeout("stuck", 50*time.Millisecond))

	start := time.Now()
	_, err := r.Invoke(context.Background(), Call{Name: "stuck"})
	require.Error(t, err)
	assert.ErrorIs(t, err, rails.ErrActionTimeout)
	assert.Less(t, time.Since(start), 900*time.Millisecond)
}

func TestRegistry_InvokeHandlerFailure(t *testing.T) {
	r := NewRegistry(0, nil)
	boom := errors.New("boom")

	r.MustRegister(NewFunc("fails", "", nil, func(ctx context.Context, args Args) (any, error) {
		return nil, boom
	}))
	r.MustRegister(NewFunc("panics", "", nil, func(ctx context.Context, args Args) (any, error) {
		panic("kaboom")
	}))

	_, err := r.Invoke(context.Background(), Call{Name: "fails"})
	assert.ErrorIs(t, err, rails.ErrActionExecutionFailed)
	assert.ErrorIs(t, err, boom)

	_, err = r.Invoke(context.Background(), Call{Name: "panics"})
	assert.ErrorIs(t, err, rails.ErrActionExecutionFailed)
	assert.Contains(t, err.Error(), "kaboom")
}

func TestRegistry_InvokeCancelled(t *testing.T) {
	r := NewRegistry(time.Second, nil)
	r.MustRegister(NewFunc("wait", "", nil, func(ctx context.Context, args Args) (any, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := r.Invoke(ctx, Call{Name: "wait"})
	assert.ErrorIs(t, err, rails.ErrActionExecutionFailed)
}

func TestRegistry_ConcurrentInvoke(t *testing.T) {
	var calls atomic.Int32
	r := NewRegistry(0, nil)
	r.MustRegister(echoAction(&calls))
	r.Freeze()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := r.Invoke(context.Background(), Call{Name: "echo", Arguments: Args{"text": "x", "times": 2}})
			assert.NoError(t, err)
			assert.Equal(t, "xx", res.Text())
		}()
	}
	wg.Wait()
	assert.EqualValues(t, 50, calls.Load())
}

func TestRegistry_Specs(t *testing.T) {
	var calls atomic.Int32
	r := NewRegistry(0, nil)
	r.MustRegister(NewFunc("zeta", "last", nil, func(ctx context.Context, args Args) (any, error) { return nil, nil }))
	r.MustRegister(echoAction(&calls))

	specs := r.Specs()
	require.Len(t, specs, 2)
	assert.Equal(t, "echo", specs[0].Name)
	assert.Equal(t, "Repeat text", specs[0].Description)
	assert.Equal(t, "object", specs[0].Parameters["type"])
	assert.Equal(t, "zeta", specs[1].Name)
}

func TestResult_Text(t *testing.T) {
	tests := []struct {
		name  string
		value any
		want  string
	}{
		{"string", "12:00:00", "12:00:00"},
		{"nil", nil, ""},
		{"map", map[string]any{"temp": 72}, `{"temp":72}`},
		{"number", 3.5, "3.5"},
		{"duration", 2 * time.Second, "2s"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Result{Value: tt.value}.Text())
		})
	}
}

func TestArgs(t *testing.T) {
	a := Args{"s": "x", "f": 2.0, "frac": 2.5, "b": true}

	assert.Equal(t, "x", a.String("s"))
	assert.Equal(t, "", a.String("missing"))

	n, ok := a.Int("f")
	assert.True(t, ok)
	assert.Equal(t, 2, n)

	_, ok = a.Int("frac")
	assert.False(t, ok)

	b, ok := a.Bool("b")
	assert.True(t, ok)
	assert.True(t, b)
}
