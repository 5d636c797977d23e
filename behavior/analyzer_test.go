package behavior

import (
	"testing"
	"time"

	"github.com/click-gz/deskpet-backend/model"
)

func TestAnalyzeInteractionPatternsEmpty(t *testing.T) {
	got := AnalyzeInteractionPatterns(nil)
	if got != (InteractionPatterns{}) {
		t.Fatalf("expected zero-value patterns for no events, got %+v", got)
	}
}

func TestAnalyzeInteractionPatternsRatiosAndStyle(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	events := []model.BehaviorEvent{
		{Type: "chat_session", Timestamp: now},
		{Type: "chat_session", Timestamp: now.Add(time.Minute)},
		{Type: "chat_session", Timestamp: now.Add(2 * time.Minute)},
		{Type: "pet_click", Timestamp: now.Add(3 * time.Minute)},
		{Type: "pet_drag", Timestamp: now.Add(4 * time.Minute)},
	}

	got := AnalyzeInteractionPatterns(events)
	if got.TotalInteractions != 5 {
		t.Fatalf("expected 5 total interactions, got %d", got.TotalInteractions)
	}
	if got.ChatCount != 3 || got.ClickCount != 1 || got.DragCount != 1 {
		t.Fatalf("unexpected counts: %+v", got)
	}
	if got.ChatRatio != 0.6 {
		t.Fatalf("expected chat ratio 0.6, got %v", got.ChatRatio)
	}
	if got.InteractionStyle != "聊天型" {
		t.Fatalf("expected 聊天型 style for chat-dominant events, got %q", got.InteractionStyle)
	}
}

func TestAnalyzeInteractionPatternsControlStyle(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	events := []model.BehaviorEvent{
		{Type: "pet_drag", Timestamp: now},
		{Type: "pet_drag", Timestamp: now.Add(time.Minute)},
		{Type: "pet_drag", Timestamp: now.Add(2 * time.Minute)},
		{Type: "pet_drag", Timestamp: now.Add(3 * time.Minute)},
		{Type: "state_change", Timestamp: now.Add(4 * time.Minute)},
	}
	got := AnalyzeInteractionPatterns(events)
	if got.InteractionStyle != "操控型" {
		t.Fatalf("expected 操控型 style for drag-dominant events, got %q", got.InteractionStyle)
	}
}

func TestCalculateEngagementScoreEmpty(t *testing.T) {
	got := CalculateEngagementScore(nil)
	if got.Level != "无" || got.Score != 0 || got.Breakdown != nil {
		t.Fatalf("expected empty-level zero engagement for no events, got %+v", got)
	}
}

func TestGenerateBehaviorSummaryNonEmptyForEvents(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	events := []model.BehaviorEvent{
		{Type: "chat_session", Timestamp: now},
		{Type: "pet_click", Timestamp: now.Add(time.Hour)},
	}
	summary := GenerateBehaviorSummary(events)
	if summary.TotalBehaviors != 2 {
		t.Fatalf("expected total_behaviors 2, got %d", summary.TotalBehaviors)
	}
	if summary.InteractionPatterns.TotalInteractions != 2 {
		t.Fatalf("expected interaction patterns populated, got %+v", summary.InteractionPatterns)
	}
}
