// Package llm provides the text generation boundary used by enrichment.
//
// # Entry Points
//
// Generator: the interface enrichment depends on (system + user prompt in,
// raw model text out).
// New: select an implementation from Config.Provider.
// Client: OpenRouter-compatible chat completions over plain HTTP, with
// HealthCheck for preflight.
// OpenAIClient: the official OpenAI SDK.
// DecodeLLMJSON: tolerant decoding of model output (code fences, prose
// around the JSON object).
// Classify: map a failure to a FailureKind whose Describe text is safe to
// store on a job.
//
// # Retry Behaviour
//
// Client retries on HTTP 408/429/5xx errors, empty completions, and network
// timeouts with exponential backoff (base 1s, max 10s, 3 attempts by default).
// Context cancellation aborts retries immediately.
package llm
