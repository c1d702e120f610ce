// Package providers defines the provider-agnostic chat completion interface
// and the HTTP base shared by the adapters in its subpackages.
//
// # Adapters
//
//   - openai: the hosted OpenAI API (credential required)
//   - generic: self-hosted OpenAI-compatible servers (URL required)
//
// # Errors
//
// Adapters return typed errors so callers can classify failures without
// string matching:
//
//   - *AuthError: HTTP 401 or 403
//   - *RateLimitError: HTTP 429, with RetryAfter when provided
//   - *TimeoutError: request deadline, client timeout, HTTP 408 or 504
//   - *ProviderError: transport failures and other non-2xx statuses
//   - *ParseError: undecodable responses
//   - *ValidationError: requests rejected before sending
//   - *ConfigError: invalid adapter configuration
//
// # Attempts
//
// HTTPProvider performs exactly one attempt per call. There is no hidden
// retry loop; callers that want retries wrap Complete explicitly.
//
// # Health
//
// Every request updates a Health snapshot. Three consecutive failures mark
// the provider unhealthy; the next success marks it healthy again.
package providers
