// Package config loads and validates rail bundles.
//
// A bundle is a YAML file (conventionally railguard.yaml inside a bundle
// directory) that declares the model endpoint, the input and output stages
// with their parameters, the knowledge base used by fact checking, the
// actions the model may call, and the ambient settings of the process.
//
// # Loading
//
//	b, err := config.Load("configs/topical")
//
// A directory resolves to the railguard.yaml inside it. Loading applies, in
// order: the YAML file, defaults (defaults.go), RAILGUARD_* environment
// overrides, caller options, and validation. Load fails fast on an invalid
// bundle.
//
// # Environment Variable Overrides
//
//   - RAILGUARD_MODEL_KIND, RAILGUARD_MODEL_ENGINE, RAILGUARD_MODEL_NAME
//   - RAILGUARD_MODEL_BASE_URL, RAILGUARD_MODEL_API_KEY, RAILGUARD_MODEL_TIMEOUT
//   - RAILGUARD_ORCHESTRATOR_RETRIES
//   - RAILGUARD_LOG_LEVEL, RAILGUARD_LOG_FORMAT
//   - RAILGUARD_METRICS_ENABLED
//   - RAILGUARD_LISTEN_ADDRESS
//
// # Validation
//
// Validation reports every problem at once with its field path:
//
//	configuration validation failed with 2 errors:
//	  - models[0].parameters.api_key: API key is required for hosted models ...
//	  - rails.input[1]: unknown stage "profanity"
//
// The returned ValidationError matches rails.ErrConfigurationInvalid.
//
// # Example Bundle
//
//	models:
//	  - type: main
//	    engine: openai
//	    model: gpt-3.5-turbo-instruct
//
//	rails:
//	  input: [jailbreak_detection, topical]
//	  config:
//	    topical:
//	      allowed:
//	        - name: cooking
//	          keywords: [recipe, bake, cook]
//	      unmatched: allow
//
// A Bundle is not modified after Load returns; the engine swaps whole
// bundles on reload.
package config
