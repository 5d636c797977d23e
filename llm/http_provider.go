package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/click-gz/deskpet-backend/model"
)

// HTTPProvider is the kind=direct_http transport: a raw JSON POST to
// {base_url}/chat/completions with Bearer auth, grounded on
// original_source's AIProvider._call_direct_api (the SiliconFlow path),
// used for any OpenAI-wire-compatible endpoint that doesn't warrant pulling
// in the full SDK.
type HTTPProvider struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewHTTPProvider builds a direct_http provider against baseURL.
func NewHTTPProvider(apiKey, baseURL string) *HTTPProvider {
	return &HTTPProvider{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client: &http.Client{
			Transport: &userIDTransport{Transport: http.DefaultTransport},
			Timeout:   30 * time.Second,
		},
	}
}

type chatRequestBody struct {
	Model       string        `json:"model"`
	Messages    []wireMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float64       `json:"temperature,omitempty"`
	Stream      bool          `json:"stream,omitempty"`
}

type wireMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponseBody struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func toWireMessages(messages []Message) []wireMessage {
	out := make([]wireMessage, len(messages))
	for i, m := range messages {
		out[i] = wireMessage{Role: m.Role, Content: m.Content}
	}
	return out
}

func (p *HTTPProvider) newRequest(ctx context.Context, body chatRequestBody) (*http.Request, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.apiKey)
	if userID, ok := model.GetUserIDFromContext(ctx); ok {
		req.Header.Set("X-User-ID", userID)
	}
	return req, nil
}

func (p *HTTPProvider) ChatCompletion(ctx context.Context, modelName string, messages []Message, opts Options) (*Response, error) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	req, err := p.newRequest(ctx, chatRequestBody{
		Model:       modelName,
		Messages:    toWireMessages(messages),
		MaxTokens:   opts.MaxTokens,
		Temperature: opts.Temperature,
	})
	if err != nil {
		return nil, Normalize(err, 0)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, Normalize(err, 0)
	}
	defer resp.Body.Close()

	var body chatResponseBody
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, Normalize(fmt.Errorf("decode response: %w", err), resp.StatusCode)
	}
	if body.Error != nil {
		return nil, Normalize(fmt.Errorf("%s", body.Error.Message), resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, Normalize(fmt.Errorf("http %d", resp.StatusCode), resp.StatusCode)
	}
	if len(body.Choices) == 0 {
		return nil, Normalize(errEmptyChoices, resp.StatusCode)
	}

	return &Response{
		Content: body.Choices[0].Message.Content,
		Usage: Usage{
			PromptTokens:     body.Usage.PromptTokens,
			CompletionTokens: body.Usage.CompletionTokens,
			TotalTokens:      body.Usage.TotalTokens,
		},
	}, nil
}

// sseChunk mirrors the OpenAI-wire streaming delta shape.
type sseChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
}

func (p *HTTPProvider) ChatCompletionStream(ctx context.Context, modelName string, messages []Message, opts Options, yield func(StreamChunk)) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	req, err := p.newRequest(ctx, chatRequestBody{
		Model:       modelName,
		Messages:    toWireMessages(messages),
		MaxTokens:   opts.MaxTokens,
		Temperature: opts.Temperature,
		Stream:      true,
	})
	if err != nil {
		return Normalize(err, 0)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return Normalize(err, 0)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Normalize(fmt.Errorf("http %d", resp.StatusCode), resp.StatusCode)
	}

	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if payload == "[DONE]" {
			yield(StreamChunk{Done: true})
			return nil
		}
		var chunk sseChunk
		if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
			continue
		}
		if len(chunk.Choices) > 0 {
			yield(StreamChunk{Content: chunk.Choices[0].Delta.Content})
		}
	}
	yield(StreamChunk{Done: true})
	return scanner.Err()
}
