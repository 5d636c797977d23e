// Package llm holds the Provider Registry (C2): an ordered list of LLM
// providers with priority-based failover, and the two concrete transport
// variants the registry dispatches to.
package llm

import "context"

// Message is a provider-agnostic chat message, the shape a Provider
// receives regardless of whether the underlying transport is an SDK or raw
// HTTP. Grounded on the capability interface in the teacher's
// llm-interface/provider.go, narrowed to this domain's needs (no tool
// calls — pet chat has none).
type Message struct {
	Role    string
	Content string
}

// Usage reports token accounting, when the upstream provides it.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// Response is a completed chat completion.
type Response struct {
	Content string
	Usage   Usage
}

// Options carries the per-call tuning knobs shared across providers
// (spec.md §4.2's max_tokens=150, temperature=0.8 defaults).
type Options struct {
	MaxTokens   int
	Temperature float64
}

// DefaultOptions returns the tuning defaults from spec.md §4.2.
func DefaultOptions() Options {
	return Options{MaxTokens: 150, Temperature: 0.8}
}

// StreamChunk is one content delta from a streaming completion.
type StreamChunk struct {
	Content string
	Done    bool
}

// Provider is the capability every transport kind implements.
type Provider interface {
	// ChatCompletion sends the full message array and returns the reply.
	ChatCompletion(ctx context.Context, model string, messages []Message, opts Options) (*Response, error)
	// ChatCompletionStream sends the full message array and streams content
	// deltas to the callback. When the upstream stream ends, the callback
	// receives one chunk with Done=true. A failure before or during the
	// stream is reported through the returned error, and in that case the
	// callback may not receive a Done chunk.
	ChatCompletionStream(ctx context.Context, model string, messages []Message, opts Options, yield func(StreamChunk)) error
}
