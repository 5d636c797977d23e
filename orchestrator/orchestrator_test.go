package orchestrator

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/click-gz/deskpet-backend/contextassembler"
	"github.com/click-gz/deskpet-backend/kv"
	"github.com/click-gz/deskpet-backend/llm"
	"github.com/click-gz/deskpet-backend/model"
	"github.com/click-gz/deskpet-backend/profile"
	"github.com/click-gz/deskpet-backend/session"
)

func newTestOrchestrator(t *testing.T) (*Orchestrator, func()) {
	t.Helper()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"choices":[{"message":{"content":"hi there, new friend"}}],"usage":{"prompt_tokens":1,"completion_tokens":1,"total_tokens":2}}`))
	}))

	store := kv.NewMemoryStore()
	profiles := profile.New(store)
	sessions := session.New(store)
	assembler := contextassembler.New(store, profiles, sessions)
	registry := llm.NewRegistry([]llm.ProviderConfig{
		{Name: "test", Kind: llm.KindDirectHTTP, Model: "m1", BaseURL: ts.URL, Priority: 1},
	}, nil)

	return New(profiles, sessions, assembler, registry), ts.Close
}

func TestChatFirstContact(t *testing.T) {
	orch, closeServer := newTestOrchestrator(t)
	defer closeServer()
	ctx := context.Background()

	reply, err := orch.Chat(ctx, "newuser", "hello there")
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if reply.Content == "" {
		t.Fatalf("expected a non-empty reply")
	}
	if reply.SessionID == "" {
		t.Fatalf("expected a session id to be assigned")
	}

	userID := model.DeriveUserID("newuser")
	p, err := orch.profiles.GetProfile(ctx, userID)
	if err != nil {
		t.Fatalf("GetProfile: %v", err)
	}
	if p.RelationshipLevel != model.Stranger {
		t.Fatalf("expected stranger relationship on first contact, got %q", p.RelationshipLevel)
	}
	if p.IntimacyScore != intimacyPerTurn {
		t.Fatalf("expected intimacy score %d after first turn, got %d", intimacyPerTurn, p.IntimacyScore)
	}

	sess, err := orch.sessions.Get(ctx, reply.SessionID)
	if err != nil {
		t.Fatalf("Get session: %v", err)
	}
	if sess.MessageCount != 2 {
		t.Fatalf("expected 2 messages (user + assistant) after first turn, got %d", sess.MessageCount)
	}
}

func TestChatRejectsEmptyMessage(t *testing.T) {
	orch, closeServer := newTestOrchestrator(t)
	defer closeServer()

	if _, err := orch.Chat(context.Background(), "u1", "   "); err == nil {
		t.Fatalf("expected validation error for empty message")
	}
}
