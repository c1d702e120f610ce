// Package generic adapts self-hosted OpenAI-compatible model servers.
//
// It reuses the openai adapter's wire format with two differences: the base
// URL is mandatory (there is no public default) and the API key is optional,
// since local deployments such as NIM on http://localhost:8000/v1 usually run
// without authentication.
package generic
