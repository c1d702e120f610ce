// Package openai implements the providers.Provider interface for the OpenAI
// chat completions API.
//
// NewProvider targets the hosted API and requires an API key. NewCompatible
// targets any server that speaks the same protocol (NIM, vLLM, Ollama) and
// treats the key as optional.
//
//	p, err := openai.NewProvider(providers.Config{
//	    Name:   "main",
//	    APIKey: apiKey,
//	})
//	if err != nil {
//	    return err
//	}
//	resp, err := p.Complete(ctx, &providers.CompletionRequest{
//	    Model:    "gpt-4o-mini",
//	    Messages: []providers.Message{{Role: "user", Content: "Hello!"}},
//	})
//
// Tools are sent in OpenAI function-calling format with tool_choice "auto";
// tool calls in the response are returned in CompletionResponse.ToolCalls.
package openai
