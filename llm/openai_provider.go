package llm

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/click-gz/deskpet-backend/model"
)

// OpenAIProvider is the kind=openai_compatible_sdk transport, backed by the
// go-openai SDK the teacher already depends on for its own LLM calls.
type OpenAIProvider struct {
	client *openai.Client
}

// NewOpenAIProvider builds a provider for any OpenAI-compatible endpoint
// (OpenAI itself, or a compatible gateway reached via baseURL).
func NewOpenAIProvider(apiKey, baseURL string) *OpenAIProvider {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	cfg.HTTPClient = &http.Client{
		Transport: &userIDTransport{Transport: http.DefaultTransport},
		Timeout:   30 * time.Second,
	}
	return &OpenAIProvider{client: openai.NewClientWithConfig(cfg)}
}

func toOpenAIMessages(messages []Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, len(messages))
	for i, m := range messages {
		out[i] = openai.ChatCompletionMessage{Role: m.Role, Content: m.Content}
	}
	return out
}

func (p *OpenAIProvider) ChatCompletion(ctx context.Context, model string, messages []Message, opts Options) (*Response, error) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       model,
		Messages:    toOpenAIMessages(messages),
		MaxTokens:   opts.MaxTokens,
		Temperature: float32(opts.Temperature),
	})
	if err != nil {
		return nil, Normalize(err, statusFromOpenAIErr(err))
	}
	if len(resp.Choices) == 0 {
		return nil, Normalize(errEmptyChoices, 0)
	}
	return &Response{
		Content: resp.Choices[0].Message.Content,
		Usage: Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
	}, nil
}

func (p *OpenAIProvider) ChatCompletionStream(ctx context.Context, model string, messages []Message, opts Options, yield func(StreamChunk)) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	stream, err := p.client.CreateChatCompletionStream(ctx, openai.ChatCompletionRequest{
		Model:       model,
		Messages:    toOpenAIMessages(messages),
		MaxTokens:   opts.MaxTokens,
		Temperature: float32(opts.Temperature),
		Stream:      true,
	})
	if err != nil {
		return Normalize(err, statusFromOpenAIErr(err))
	}
	defer stream.Close()

	for {
		resp, err := stream.Recv()
		if err == io.EOF {
			yield(StreamChunk{Done: true})
			return nil
		}
		if err != nil {
			return Normalize(err, 0)
		}
		if len(resp.Choices) > 0 {
			yield(StreamChunk{Content: resp.Choices[0].Delta.Content})
		}
	}
}

func statusFromOpenAIErr(err error) int {
	if apiErr, ok := err.(*openai.APIError); ok {
		return apiErr.HTTPStatusCode
	}
	return 0
}

var errEmptyChoices = emptyChoicesErr{}

type emptyChoicesErr struct{}

func (emptyChoicesErr) Error() string { return "no choices in provider response" }

// userIDTransport injects the calling user's internal id as a header on
// every outbound LLM request, adapted from the teacher's
// HTTPClientWithUserIDHeader so upstream gateways can attribute usage
// per-user without every provider call threading the id explicitly.
type userIDTransport struct {
	Transport http.RoundTripper
}

func (t *userIDTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if userID, ok := model.GetUserIDFromContext(req.Context()); ok {
		req.Header.Set("X-User-ID", userID)
	}
	transport := t.Transport
	if transport == nil {
		transport = http.DefaultTransport
	}
	return transport.RoundTrip(req)
}
