// Package stages implements the built-in policy stages.
//
//   - JailbreakDetector (input): weighted adversarial pattern scoring.
//   - TopicalFilter (input): allow/deny topic lists with an explicit
//     unmatched policy.
//   - InputSanitizer (input): strips control characters and injection
//     markers; rewrites, never blocks.
//   - FactVerifier (output): reconciles draft claims against a
//     knowledge base.
//
// Every stage is immutable after construction and safe for concurrent use.
package stages
