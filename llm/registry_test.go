package llm

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func okServer(t *testing.T, content string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"choices":[{"message":{"content":"` + content + `"}}],"usage":{"prompt_tokens":1,"completion_tokens":1,"total_tokens":2}}`))
	}))
}

func failServer(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error":{"message":"boom"}}`))
	}))
}

func TestSendFailsOverToNextProvider(t *testing.T) {
	bad := failServer(t)
	defer bad.Close()
	good := okServer(t, "hi there")
	defer good.Close()

	registry := NewRegistry([]ProviderConfig{
		{Name: "primary", Kind: KindDirectHTTP, Model: "m1", BaseURL: bad.URL, Priority: 1},
		{Name: "secondary", Kind: KindDirectHTTP, Model: "m2", BaseURL: good.URL, Priority: 2},
	}, nil)

	resp, err := registry.Send(context.Background(), []Message{{Role: "user", Content: "hello"}}, DefaultOptions())
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if resp.Content != "hi there" {
		t.Fatalf("expected response from secondary provider, got %q", resp.Content)
	}
}

func TestSendReturnsLastErrorWhenAllProvidersFail(t *testing.T) {
	bad1 := failServer(t)
	defer bad1.Close()
	bad2 := failServer(t)
	defer bad2.Close()

	registry := NewRegistry([]ProviderConfig{
		{Name: "primary", Kind: KindDirectHTTP, Model: "m1", BaseURL: bad1.URL, Priority: 1},
		{Name: "secondary", Kind: KindDirectHTTP, Model: "m2", BaseURL: bad2.URL, Priority: 2},
	}, nil)

	_, err := registry.Send(context.Background(), []Message{{Role: "user", Content: "hello"}}, DefaultOptions())
	if err == nil {
		t.Fatalf("expected an error when every provider fails")
	}
}

func TestSendWithNoProvidersReturnsErrorNotNilResponse(t *testing.T) {
	registry := NewRegistry(nil, nil)

	resp, err := registry.Send(context.Background(), []Message{{Role: "user", Content: "hello"}}, DefaultOptions())
	if err == nil {
		t.Fatalf("expected an error when no provider is configured")
	}
	if resp != nil {
		t.Fatalf("expected a nil response alongside the error, got %+v", resp)
	}
}

func TestSendRetriesFailedProviderOnEveryCall(t *testing.T) {
	bad := failServer(t)
	defer bad.Close()
	good := okServer(t, "ok")
	defer good.Close()

	registry := NewRegistry([]ProviderConfig{
		{Name: "primary", Kind: KindDirectHTTP, Model: "m1", BaseURL: bad.URL, Priority: 1},
		{Name: "secondary", Kind: KindDirectHTTP, Model: "m2", BaseURL: good.URL, Priority: 2},
	}, nil)

	for i := 0; i < 2; i++ {
		resp, err := registry.Send(context.Background(), []Message{{Role: "user", Content: "hello"}}, DefaultOptions())
		if err != nil {
			t.Fatalf("Send call %d: %v", i, err)
		}
		if resp.Content != "ok" {
			t.Fatalf("Send call %d: expected fallback content, got %q", i, resp.Content)
		}
	}
}

func TestNewRegistrySortsByPriority(t *testing.T) {
	registry := NewRegistry([]ProviderConfig{
		{Name: "low", Kind: KindDirectHTTP, Model: "m1", Priority: 5},
		{Name: "high", Kind: KindDirectHTTP, Model: "m2", Priority: 1},
	}, nil)

	providers := registry.Providers()
	if len(providers) != 2 || providers[0].Name != "high" || providers[1].Name != "low" {
		t.Fatalf("expected priority-sorted providers, got %+v", providers)
	}
}
