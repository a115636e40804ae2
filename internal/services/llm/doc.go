// Package llm provides chat-completion backends for episode content
// generation.
//
// Three providers implement Completer:
//
//   - Client: OpenRouter (or any OpenAI-shaped endpoint) over plain HTTP,
//     with OpenRouter attribution headers.
//   - OpenAICompleter: the official openai-go SDK.
//   - GeminiCompleter: the google.golang.org/genai SDK.
//
// New picks one from config.LLMConfig.Provider and returns ErrDisabled when
// the provider is "none" or no API key is set, in which case callers use the
// deterministic fallback content.
//
// # Retry Behaviour
//
// Client retries on HTTP 408/429/5xx errors, empty content, and network
// timeouts with exponential backoff (base 1s, max 10s, up to 5 attempts by
// default). Context cancellation aborts retries immediately. The SDK-backed
// completers rely on their SDK's own retry policy.
//
// DecodeLLMJSON tolerates code fences and prose around a JSON payload.
package llm
