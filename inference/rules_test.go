package inference

import (
	"testing"

	"github.com/click-gz/deskpet-backend/model"
)

func scenarioMessages() []model.ChatMessage {
	return []model.ChatMessage{
		{Role: "user", Content: "我在写代码"},
		{Role: "user", Content: "又遇到一个bug"},
		{Role: "user", Content: "github上找到了参考"},
	}
}

func TestInferFromMessagesIsDeterministic(t *testing.T) {
	a := InferFromMessages(scenarioMessages())
	b := InferFromMessages(scenarioMessages())
	if a.Occupation != b.Occupation {
		t.Fatalf("occupation inference not deterministic: %+v vs %+v", a.Occupation, b.Occupation)
	}
	if a.Occupation.Value != "程序员" {
		t.Fatalf("expected occupation 程序员, got %+v", a.Occupation)
	}
	if a.Occupation.Confidence <= 0 {
		t.Fatalf("expected positive confidence, got %v", a.Occupation.Confidence)
	}
}

func TestInferFromMessagesEmptyIsNoOp(t *testing.T) {
	result := InferFromMessages(nil)
	if result.Occupation.Value != "" || result.Occupation.Confidence != 0 {
		t.Fatalf("expected zero-value occupation for empty input, got %+v", result.Occupation)
	}
	if result.AgeRange.Value != "" {
		t.Fatalf("expected zero-value age range for empty input, got %+v", result.AgeRange)
	}
	if len(result.Interests) != 0 {
		t.Fatalf("expected no interests for empty input, got %+v", result.Interests)
	}
	if result.CommunicationStyle != (CommunicationStyle{}) {
		t.Fatalf("expected zero-value communication style, got %+v", result.CommunicationStyle)
	}
	if result.EmotionalPattern != (EmotionalPattern{}) {
		t.Fatalf("expected zero-value emotional pattern, got %+v", result.EmotionalPattern)
	}
}

func TestExtractInterestsDeterministicOrdering(t *testing.T) {
	messages := []model.ChatMessage{
		{Role: "user", Content: "我喜欢打游戏, 玩王者"},
		{Role: "user", Content: "也喜欢听音乐和演唱会"},
	}
	a := InferFromMessages(messages)
	b := InferFromMessages(messages)
	if len(a.Interests) != len(b.Interests) {
		t.Fatalf("interest count not deterministic: %d vs %d", len(a.Interests), len(b.Interests))
	}
	for i := range a.Interests {
		if a.Interests[i] != b.Interests[i] {
			t.Fatalf("interest ordering not deterministic at index %d: %+v vs %+v", i, a.Interests[i], b.Interests[i])
		}
	}
}

func TestBestOfDeterministicTiebreak(t *testing.T) {
	scores := map[string]int{"b": 5, "a": 5, "c": 1}
	key, score := bestOf(scores)
	if key != "a" || score != 5 {
		t.Fatalf("expected tie broken alphabetically to %q, got %q (score %d)", "a", key, score)
	}
}
