// Package builtin provides the demonstration actions shipped with railguard:
// get_current_time, get_current_date and get_weather.
package builtin

import (
	"context"
	"fmt"
	"sort"
	"time"

	"mercator-hq/railguard/pkg/actions"
)

// Action names.
const (
	CurrentTime = "get_current_time"
	CurrentDate = "get_current_date"
	Weather     = "get_weather"
)

// DefaultLocation is used by get_weather when no location is given.
const DefaultLocation = "Santa Clara"

// Clock returns the current time.
type Clock func() time.Time

// TimeAction reports the current time as HH:MM:SS.
func TimeAction(clock Clock) actions.Action {
	clock = orSystem(clock)
	return actions.NewFunc(CurrentTime, "Get the current time as HH:MM:SS.", nil,
		func(ctx context.Context, _ actions.Args) (any, error) {
			return clock().Format("15:04:05"), nil
		})
}

// DateAction reports the current date as YYYY-MM-DD.
func DateAction(clock Clock) actions.Action {
	clock = orSystem(clock)
	return actions.NewFunc(CurrentDate, "Get the current date as YYYY-MM-DD.", nil,
		func(ctx context.Context, _ actions.Args) (any, error) {
			return clock().Format("2006-01-02"), nil
		})
}

// WeatherAction returns a canned weather report for a location.
func WeatherAction() actions.Action {
	schema := actions.ObjectSchema(map[string]any{
		"location": map[string]any{
			"type":        "string",
			"description": "City to report the weather for.",
			"minLength":   1,
			"default":     DefaultLocation,
		},
	})
	return actions.NewFunc(Weather, "Get the current weather for a location.", schema,
		func(ctx context.Context, args actions.Args) (any, error) {
			location := args.String("location")
			if location == "" {
				location = DefaultLocation
			}
			return fmt.Sprintf("Sunny and 72°F in %s", location), nil
		})
}

// Catalog returns the built-in actions keyed by name.
func Catalog(clock Clock) map[string]actions.Action {
	return map[string]actions.Action{
		CurrentTime: TimeAction(clock),
		CurrentDate: DateAction(clock),
		Weather:     WeatherAction(),
	}
}

// Names returns the built-in action names in lexical order.
func Names() []string {
	names := make([]string, 0, 3)
	for name := range Catalog(nil) {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Lookup returns the built-in action with the given name.
func Lookup(name string, clock Clock) (actions.Action, bool) {
	a, ok := Catalog(clock)[name]
	return a, ok
}

// RegisterAll registers every built-in action with r.
func RegisterAll(r *actions.Registry, clock Clock) error {
	for _, name := range Names() {
		a, _ := Lookup(name, clock)
		if err := r.Register(a); err != nil {
			return err
		}
	}
	return nil
}

func orSystem(clock Clock) Clock {
	if clock == nil {
		return time.Now
	}
	return clock
}
