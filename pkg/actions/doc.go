// Package actions implements the action registry: named, schema-checked
// capabilities the model may request during a turn.
//
// Actions are registered explicitly against the Action interface, usually
// through NewFunc:
//
//	reg := actions.NewRegistry(5*time.Second, logger)
//	err := reg.Register(actions.NewFunc("get_weather", "Weather report",
//	    actions.ObjectSchema(map[string]any{
//	        "location": map[string]any{"type": "string"},
//	    }, "location"),
//	    func(ctx context.Context, args actions.Args) (any, error) {
//	        return "Sunny in " + args.String("location"), nil
//	    }))
//	reg.Freeze()
//
// Invoke validates arguments with JSON Schema before the handler runs and
// bounds the handler with a deadline. Failures are classified with the
// rails error kinds InvalidArgument, ActionTimeout and
// ActionExecutionFailed.
package actions
