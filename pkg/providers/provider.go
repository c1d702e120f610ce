package providers

import "context"

// Provider is a chat completion backend.
//
// Each Complete call is exactly one HTTP attempt. Retrying is the caller's
// decision so every attempt stays visible in logs and metrics.
//
// Example usage:
//
//	p, err := openai.NewProvider(providers.Config{
//	    Name:   "main",
//	    APIKey: apiKey,
//	})
//	if err != nil {
//	    return err
//	}
//	defer p.Close()
//
//	resp, err := p.Complete(ctx, &providers.CompletionRequest{
//	    Model:    "gpt-3.5-turbo-instruct",
//	    Messages: []providers.Message{{Role: providers.RoleUser, Content: "Hello!"}},
//	})
type Provider interface {
	// Complete sends one completion request.
	Complete(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error)

	// HealthCheck performs a lightweight reachability check.
	HealthCheck(ctx context.Context) error

	// Name returns the configured provider name.
	Name() string

	// Type returns the adapter type.
	Type() string

	// Config returns the provider configuration.
	Config() Config

	// Health returns the provider's request history.
	Health() Health

	// Close releases idle connections. The provider must not be used
	// afterwards.
	Close() error
}
