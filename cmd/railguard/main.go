// Railguard runs LLM conversations through guardrail pipelines.
//
// A rail bundle names a model endpoint and the ordered input and output
// stages every turn passes through: input sanitizing, jailbreak detection,
// topical restriction and fact verification, plus the local actions the
// model may call.
//
// Usage:
//
//	# Run a scripted demo against the hosted API (needs OPENAI_API_KEY)
//	railguard demo actions
//
//	# Run the same demo against a local NIM endpoint
//	railguard demo jailbreak --nim
//
//	# Chat interactively with a bundle
//	railguard chat --config configs/topical
//
//	# Serve a bundle over HTTP with hot reload
//	railguard serve --config configs/fact_checking --watch
//
//	# Check bundles without calling a model
//	railguard validate configs/* --skip-credentials
package main

func main() {
	Execute()
}
