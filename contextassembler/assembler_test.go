package contextassembler

import (
	"context"
	"testing"

	"github.com/click-gz/deskpet-backend/kv"
	"github.com/click-gz/deskpet-backend/llm"
	"github.com/click-gz/deskpet-backend/profile"
	"github.com/click-gz/deskpet-backend/session"
)

func TestAssembleSystemMessagesPrecedeUserMessage(t *testing.T) {
	store := kv.NewMemoryStore()
	profiles := profile.New(store)
	sessions := session.New(store)
	asm := New(store, profiles, sessions)
	ctx := context.Background()

	if _, err := profiles.InitUser(ctx, "u1"); err != nil {
		t.Fatalf("InitUser: %v", err)
	}
	sess, err := sessions.GetOrCreate(ctx, "u1")
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	for i := 0; i < 3; i++ {
		if err := sessions.AppendMessage(ctx, sess.SessionID, "user", "hi"); err != nil {
			t.Fatalf("AppendMessage: %v", err)
		}
		if err := sessions.AppendMessage(ctx, sess.SessionID, "assistant", "hello"); err != nil {
			t.Fatalf("AppendMessage: %v", err)
		}
	}
	// Assemble is always called after the caller has already appended the
	// current user message to the session, as the orchestrator does.
	if err := sessions.AppendMessage(ctx, sess.SessionID, "user", "how are you?"); err != nil {
		t.Fatalf("AppendMessage: %v", err)
	}

	messages, err := asm.Assemble(ctx, "u1", sess.SessionID, "how are you?")
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}

	sawNonSystem := false
	for _, m := range messages {
		if m.Role == "system" && sawNonSystem {
			t.Fatalf("system message found after a non-system message: %+v", messages)
		}
		if m.Role != "system" {
			sawNonSystem = true
		}
	}
	if len(messages) == 0 || messages[len(messages)-1].Role != "user" {
		t.Fatalf("expected last message to be the user message, got %+v", messages)
	}
	if messages[len(messages)-1].Content != "how are you?" {
		t.Fatalf("unexpected final message content: %q", messages[len(messages)-1].Content)
	}
}

func TestAssembleTrimsToMostRecentNonSystemMessages(t *testing.T) {
	store := kv.NewMemoryStore()
	profiles := profile.New(store)
	sessions := session.New(store)
	asm := New(store, profiles, sessions)
	ctx := context.Background()

	if _, err := profiles.InitUser(ctx, "u1"); err != nil {
		t.Fatalf("InitUser: %v", err)
	}
	sess, err := sessions.GetOrCreate(ctx, "u1")
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	for i := 0; i < 20; i++ {
		if err := sessions.AppendMessage(ctx, sess.SessionID, "user", "msg"); err != nil {
			t.Fatalf("AppendMessage: %v", err)
		}
	}
	if err := sessions.AppendMessage(ctx, sess.SessionID, "user", "final"); err != nil {
		t.Fatalf("AppendMessage: %v", err)
	}

	messages, err := asm.Assemble(ctx, "u1", sess.SessionID, "final")
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}

	nonSystem := 0
	for _, m := range messages {
		if m.Role != "system" {
			nonSystem++
		}
	}
	if nonSystem != recentNonSystem {
		t.Fatalf("expected %d non-system messages after trim, got %d", recentNonSystem, nonSystem)
	}
}

func TestAssembleDoesNotDuplicateCurrentTurn(t *testing.T) {
	store := kv.NewMemoryStore()
	profiles := profile.New(store)
	sessions := session.New(store)
	asm := New(store, profiles, sessions)
	ctx := context.Background()

	if _, err := profiles.InitUser(ctx, "u1"); err != nil {
		t.Fatalf("InitUser: %v", err)
	}
	sess, err := sessions.GetOrCreate(ctx, "u1")
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	if err := sessions.AppendMessage(ctx, sess.SessionID, "user", "only message"); err != nil {
		t.Fatalf("AppendMessage: %v", err)
	}

	messages, err := asm.Assemble(ctx, "u1", sess.SessionID, "only message")
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}

	occurrences := 0
	for _, m := range messages {
		if m.Role == "user" && m.Content == "only message" {
			occurrences++
		}
	}
	if occurrences != 1 {
		t.Fatalf("expected the current turn's message to appear exactly once, got %d occurrences in %+v", occurrences, messages)
	}
}

func TestTrimNonSystemPreservesAllSystemMessages(t *testing.T) {
	messages := []llm.Message{
		{Role: "system", Content: "persona"},
		{Role: "system", Content: "profile"},
	}
	for i := 0; i < 15; i++ {
		messages = append(messages, llm.Message{Role: "user", Content: "msg"})
	}

	out := trimNonSystem(messages, recentNonSystem)

	systemCount := 0
	for _, m := range out {
		if m.Role == "system" {
			systemCount++
		}
	}
	if systemCount != 2 {
		t.Fatalf("expected both system messages preserved, got %d", systemCount)
	}
}
