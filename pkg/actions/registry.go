package actions

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/xeipuuv/gojsonschema"

	"mercator-hq/railguard/pkg/rails"
)

// DefaultTimeout is the time budget of an action call.
const DefaultTimeout = 10 * time.Second

type registered struct {
	action   Action
	schema   *gojsonschema.Schema
	defaults map[string]any
	timeout  time.Duration
}

// Registry maps action names to implementations. Registration happens at
// configuration time; after Freeze the registry is read-only and safe for
// concurrent Invoke calls.
type Registry struct {
	mu      sync.RWMutex
	actions map[string]*registered
	timeout time.Duration
	frozen  bool
	logger  *slog.Logger
}

// NewRegistry creates an empty registry. A zero timeout means
// DefaultTimeout; a nil logger means slog.Default().
func NewRegistry(timeout time.Duration, logger *slog.Logger) *Registry {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		actions: make(map[string]*registered),
		timeout: timeout,
		logger:  logger,
	}
}

// Register adds an action. The schema is compiled here so malformed schemas
// are rejected before serving.
func (r *Registry) Register(a Action) error {
	const op = "actions.register"

	if a == nil {
		return rails.NewError(rails.ErrConfigurationInvalid, op, "nil action", nil)
	}
	name := strings.TrimSpace(a.Name())
	if name == "" {
		return rails.NewError(rails.ErrConfigurationInvalid, op, "action name is required", nil)
	}

	schemaDoc := a.Schema()
	if schemaDoc == nil {
		schemaDoc = EmptySchema()
	}
	if t, ok := schemaDoc["type"]; ok && t != "object" {
		return rails.NewError(rails.ErrConfigurationInvalid, op, fmt.Sprintf("action %q: argument schema must be an object schema", name), nil)
	}

	schema, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(map[string]any(schemaDoc)))
	if err != nil {
		return rails.NewError(rails.ErrConfigurationInvalid, op, fmt.Sprintf("action %q: invalid argument schema", name), err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.frozen {
		return rails.NewError(rails.ErrConfigurationInvalid, op, fmt.Sprintf("action %q: registry is frozen", name), nil)
	}
	if _, exists := r.actions[name]; exists {
		return rails.NewError(rails.ErrConfigurationInvalid, op, fmt.Sprintf("action %q already registered", name), nil)
	}

	r.actions[name] = &registered{
		action:   a,
		schema:   schema,
		defaults: schemaDefaults(schemaDoc),
		timeout:  r.timeout,
	}
	return nil
}

// MustRegister registers a and panics on error. It is meant for tests and
// static built-in sets.
func (r *Registry) MustRegister(a Action) {
	if err := r.Register(a); err != nil {
		panic(err)
	}
}

// SetTimeout overrides the time budget of one registered action.
func (r *Registry) SetTimeout(name string, timeout time.Duration) error {
	const op = "actions.set_timeout"

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.frozen {
		return rails.NewError(rails.ErrConfigurationInvalid, op, "registry is frozen", nil)
	}
	reg, ok := r.actions[name]
	if !ok {
		return rails.NewError(rails.ErrConfigurationInvalid, op, fmt.Sprintf("unknown action %q", name), nil)
	}
	if timeout <= 0 {
		return rails.NewError(rails.ErrConfigurationInvalid, op, fmt.Sprintf("action %q: timeout must be positive", name), nil)
	}
	reg.timeout = timeout
	return nil
}

// Freeze makes the registry read-only.
func (r *Registry) Freeze() {
	r.mu.Lock()
	r.frozen = true
	r.mu.Unlock()
}

// Has reports whether name is registered.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.actions[name]
	return ok
}

// Len returns the number of registered actions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.actions)
}

// Specs returns the advertised form of every action, sorted by name.
func (r *Registry) Specs() []Spec {
	r.mu.RLock()
	defer r.mu.RUnlock()

	specs := make([]Spec, 0, len(r.actions))
	for name, reg := range r.actions {
		schema := reg.action.Schema()
		if schema == nil {
			schema = EmptySchema()
		}
		specs = append(specs, Spec{Name: name, Description: reg.action.Description(), Parameters: schema})
	}
	sort.Slice(specs, func(i, j int) bool { return specs[i].Name < specs[j].Name })
	return specs
}

// Invoke validates the call's arguments and runs the action under its time
// budget. The handler is never called when validation fails.
//
// Errors are classified as rails.ErrInvalidArgument, rails.ErrActionTimeout
// or rails.ErrActionExecutionFailed.
func (r *Registry) Invoke(ctx context.Context, call Call) (Result, error) {
	const op = "actions.invoke"

	r.mu.RLock()
	reg, ok := r.actions[call.Name]
	r.mu.RUnlock()
	if !ok {
		return Result{}, rails.NewError(rails.ErrInvalidArgument, op, fmt.Sprintf("unknown action %q", call.Name), nil)
	}

	args := call.Arguments.clone()
	for k, v := range reg.defaults {
		if _, set := args[k]; !set {
			args[k] = v
		}
	}

	if err := validate(reg.schema, args); err != nil {
		r.logger.Warn("action arguments rejected",
			"action", call.Name,
			"call_id", call.ID,
			"error", err,
		)
		return Result{}, rails.NewError(rails.ErrInvalidArgument, op, fmt.Sprintf("action %q", call.Name), err)
	}

	start := time.Now()
	value, err := r.run(ctx, reg, args)
	duration := time.Since(start)

	if err != nil {
		r.logger.Warn("action failed",
			"action", call.Name,
			"call_id", call.ID,
			"duration", duration,
			"error", err,
		)
		return Result{}, err
	}

	r.logger.Debug("action completed",
		"action", call.Name,
		"call_id", call.ID,
		"duration", duration,
	)

	call.Arguments = args
	return Result{Call: call, Value: value, Duration: duration}, nil
}

type outcome struct {
	value any
	err   error
}

// run executes the handler in its own goroutine so a handler that ignores
// ctx cannot hold the request past its deadline.
func (r *Registry) run(ctx context.Context, reg *registered, args Args) (any, error) {
	const op = "actions.invoke"
	name := reg.action.Name()

	tctx, cancel := context.WithTimeout(ctx, reg.timeout)
	defer cancel()

	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				done <- outcome{err: fmt.Errorf("panic: %v", p)}
			}
		}()
		v, err := reg.action.Invoke(tctx, args)
		done <- outcome{value: v, err: err}
	}()

	select {
	case out := <-done:
		if errors.Is(tctx.Err(), context.DeadlineExceeded) {
			return nil, rails.NewError(rails.ErrActionTimeout, op, fmt.Sprintf("action %q exceeded %s", name, reg.timeout), tctx.Err())
		}
		if out.err != nil {
			if errors.Is(out.err, rails.ErrInvalidArgument) {
				return nil, rails.NewError(rails.ErrInvalidArgument, op, fmt.Sprintf("action %q", name), out.err)
			}
			return nil, rails.NewError(rails.ErrActionExecutionFailed, op, fmt.Sprintf("action %q", name), out.err)
		}
		return out.value, nil

	case <-tctx.Done():
		if errors.Is(tctx.Err(), context.DeadlineExceeded) {
			return nil, rails.NewError(rails.ErrActionTimeout, op, fmt.Sprintf("action %q exceeded %s", name, reg.timeout), tctx.Err())
		}
		return nil, rails.NewError(rails.ErrActionExecutionFailed, op, fmt.Sprintf("action %q cancelled", name), tctx.Err())
	}
}

func validate(schema *gojsonschema.Schema, args Args) error {
	result, err := schema.Validate(gojsonschema.NewGoLoader(map[string]any(args)))
	if err != nil {
		return fmt.Errorf("schema validation failed: %w", err)
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		return fmt.Errorf("schema validation errors: %s", strings.Join(msgs, "; "))
	}
	return nil
}

// schemaDefaults collects the "default" value of each top-level property.
func schemaDefaults(schema ArgSchema) map[string]any {
	props, ok := schema["properties"].(map[string]any)
	if !ok {
		return nil
	}
	defaults := make(map[string]any)
	for name, p := range props {
		prop, ok := p.(map[string]any)
		if !ok {
			continue
		}
		if v, ok := prop["default"]; ok {
			defaults[name] = v
		}
	}
	return defaults
}
