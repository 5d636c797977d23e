package llm

import (
	"context"

	"github.com/click-gz/deskpet-backend/apperr"
	"github.com/click-gz/deskpet-backend/log"
)

// Kind is the transport family a ProviderConfig uses.
type Kind string

const (
	KindOpenAICompatibleSDK Kind = "openai_compatible_sdk"
	KindDirectHTTP          Kind = "direct_http"
)

// ProviderConfig describes one entry in the registry (spec.md §4.2).
type ProviderConfig struct {
	Name     string
	Kind     Kind
	Model    string
	BaseURL  string
	APIKey   string
	Priority int // lower first
}

// DefaultPersonaPrompt is prepended as a system message when the caller does
// not supply one, matching original_source's AIProvider.SYSTEM_PROMPT intent.
const DefaultPersonaPrompt = "You are a playful desktop companion pet. Keep replies short, warm, and a little mischievous; light emoji use is welcome."

type registryEntry struct {
	cfg      ProviderConfig
	provider Provider
}

// Registry is the Provider Registry (C2): an ordered, priority-sorted list
// of providers tried in turn until one succeeds. It is a process-wide,
// read-only-after-construction singleton (spec.md §9's "Global state").
type Registry struct {
	entries []registryEntry

	onFailover func(providerName string, succeeded bool)
}

// NewRegistry sorts configs by priority and builds one concrete Provider
// per entry according to its Kind.
func NewRegistry(configs []ProviderConfig, onFailover func(providerName string, succeeded bool)) *Registry {
	sorted := make([]ProviderConfig, len(configs))
	copy(sorted, configs)
	for i := 1; i < len(sorted); i++ {
		for j := i; j > 0 && sorted[j].Priority < sorted[j-1].Priority; j-- {
			sorted[j], sorted[j-1] = sorted[j-1], sorted[j]
		}
	}

	entries := make([]registryEntry, 0, len(sorted))
	for _, cfg := range sorted {
		var p Provider
		switch cfg.Kind {
		case KindDirectHTTP:
			p = NewHTTPProvider(cfg.APIKey, cfg.BaseURL)
		default:
			p = NewOpenAIProvider(cfg.APIKey, cfg.BaseURL)
		}
		entries = append(entries, registryEntry{cfg: cfg, provider: p})
	}

	return &Registry{entries: entries, onFailover: onFailover}
}

// ensureSystemPrompt prepends the default persona when messages carries no
// system message (spec.md §4.2's message-window policy).
func ensureSystemPrompt(messages []Message) []Message {
	for _, m := range messages {
		if m.Role == "system" {
			return messages
		}
	}
	out := make([]Message, 0, len(messages)+1)
	out = append(out, Message{Role: "system", Content: DefaultPersonaPrompt})
	return append(out, messages...)
}

// Send implements the send(messages, options) contract of spec.md §4.2:
// iterate every configured provider in priority order on every call,
// normalize failures, and return the last normalized error if every
// provider fails. If no provider is configured, that error is returned
// directly rather than a nil response.
func (r *Registry) Send(ctx context.Context, messages []Message, opts Options) (*Response, error) {
	if len(r.entries) == 0 {
		return nil, apperr.New(apperr.Internal, "no AI provider configured")
	}

	messages = ensureSystemPrompt(messages)

	var lastErr error
	for _, e := range r.entries {
		resp, err := e.provider.ChatCompletion(ctx, e.cfg.Model, messages, opts)
		if err == nil {
			if r.onFailover != nil {
				r.onFailover(e.cfg.Name, true)
			}
			return resp, nil
		}
		log.Log.Warnf("[ProviderRegistry] provider %s failed, trying next: %v", e.cfg.Name, err)
		if r.onFailover != nil {
			r.onFailover(e.cfg.Name, false)
		}
		lastErr = err
	}
	return nil, lastErr
}

// Stream implements the streaming variant of spec.md §4.2: only the
// highest-priority provider is used, with no failover mid-stream.
func (r *Registry) Stream(ctx context.Context, messages []Message, opts Options, yield func(StreamChunk)) error {
	if len(r.entries) == 0 {
		return apperr.New(apperr.Internal, "no AI provider configured")
	}
	messages = ensureSystemPrompt(messages)
	primary := r.entries[0]
	return primary.provider.ChatCompletionStream(ctx, primary.cfg.Model, messages, opts, yield)
}

// ProviderInfo summarizes one configured provider for GET /health.
type ProviderInfo struct {
	Name  string `json:"name"`
	Model string `json:"model"`
}

// Providers returns the registry's configured providers in priority order.
func (r *Registry) Providers() []ProviderInfo {
	out := make([]ProviderInfo, len(r.entries))
	for i, e := range r.entries {
		out[i] = ProviderInfo{Name: e.cfg.Name, Model: e.cfg.Model}
	}
	return out
}
