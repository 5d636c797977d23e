package session

import (
	"context"
	"testing"
	"time"

	"github.com/click-gz/deskpet-backend/kv"
	"github.com/click-gz/deskpet-backend/model"
)

func newTestStore() *Store {
	return New(kv.NewMemoryStore())
}

func TestMessageCountMatchesContextLength(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()

	sess, err := s.GetOrCreate(ctx, "u1")
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}

	for i := 0; i < 7; i++ {
		if err := s.AppendMessage(ctx, sess.SessionID, "user", "hi"); err != nil {
			t.Fatalf("AppendMessage: %v", err)
		}
	}

	got, err := s.Get(ctx, sess.SessionID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	full, err := s.GetFullContext(ctx, sess.SessionID)
	if err != nil {
		t.Fatalf("GetFullContext: %v", err)
	}
	if int(got.MessageCount) != len(full) {
		t.Fatalf("message_count (%d) != len(context) (%d)", got.MessageCount, len(full))
	}
}

func TestIdleRolloverBoundary(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()

	first, err := s.GetOrCreate(ctx, "u1")
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}

	// Just under the idle threshold: same session.
	backdate(t, s, first.SessionID, idleTimeout-time.Second)
	again, err := s.GetOrCreate(ctx, "u1")
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	if again.SessionID != first.SessionID {
		t.Fatalf("expected same session just under idle threshold, got new session")
	}

	// Just over the idle threshold: new session, old one ended.
	backdate(t, s, first.SessionID, idleTimeout+time.Second)
	rolled, err := s.GetOrCreate(ctx, "u1")
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	if rolled.SessionID == first.SessionID {
		t.Fatalf("expected new session over idle threshold, got same session")
	}
	ended, err := s.Get(ctx, first.SessionID)
	if err != nil {
		t.Fatalf("Get original session: %v", err)
	}
	if ended.Status != "ended" {
		t.Fatalf("expected original session ended, got status %q", ended.Status)
	}
}

func backdate(t *testing.T, s *Store, sessionID string, age time.Duration) {
	t.Helper()
	last := time.Now().UTC().Add(-age)
	if err := s.kv.HashSet(context.Background(), metaKey(sessionID), map[string]string{
		"last_active": last.Format(time.RFC3339),
	}); err != nil {
		t.Fatalf("backdate session: %v", err)
	}
}

func TestShouldTriggerSummaryExactMultiplesOfTen(t *testing.T) {
	for count := int64(0); count <= 31; count++ {
		want := count > 0 && count%10 == 0
		if got := ShouldTriggerSummary(count); got != want {
			t.Errorf("ShouldTriggerSummary(%d) = %v, want %v", count, got, want)
		}
	}
}

func TestMarkForSummaryDeduplicates(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()

	if err := s.MarkForSummary(ctx, "sess1"); err != nil {
		t.Fatalf("MarkForSummary: %v", err)
	}
	if err := s.MarkForSummary(ctx, "sess1"); err != nil {
		t.Fatalf("MarkForSummary: %v", err)
	}

	tasks, err := s.GetSessionsToSummarize(ctx)
	if err != nil {
		t.Fatalf("GetSessionsToSummarize: %v", err)
	}
	if len(tasks) != 1 {
		t.Fatalf("expected 1 queued task, got %d", len(tasks))
	}
}

func TestGetNewContextAfterSaveSummary(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()

	sess, err := s.GetOrCreate(ctx, "u1")
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	for i := 0; i < 5; i++ {
		if err := s.AppendMessage(ctx, sess.SessionID, "user", "hi"); err != nil {
			t.Fatalf("AppendMessage: %v", err)
		}
	}

	sess, err = s.Get(ctx, sess.SessionID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	newCtx, err := s.GetNewContext(ctx, sess)
	if err != nil {
		t.Fatalf("GetNewContext: %v", err)
	}
	if len(newCtx) != 5 {
		t.Fatalf("expected 5 new messages before any summary, got %d", len(newCtx))
	}

	if err := s.SaveSummary(ctx, sess.SessionID, model.Summary{}, len(newCtx)); err != nil {
		t.Fatalf("SaveSummary: %v", err)
	}

	for i := 0; i < 3; i++ {
		if err := s.AppendMessage(ctx, sess.SessionID, "user", "more"); err != nil {
			t.Fatalf("AppendMessage: %v", err)
		}
	}
	sess, err = s.Get(ctx, sess.SessionID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	afterSave, err := s.GetNewContext(ctx, sess)
	if err != nil {
		t.Fatalf("GetNewContext after save: %v", err)
	}
	if len(afterSave) != 3 {
		t.Fatalf("expected only the 3 post-summary messages, got %d", len(afterSave))
	}
}
