package profile

import (
	"context"
	"testing"

	"github.com/click-gz/deskpet-backend/kv"
	"github.com/click-gz/deskpet-backend/model"
)

func newTestStore() *Store {
	return New(kv.NewMemoryStore())
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	p := model.NewProfile("u1")
	p.Interests = []string{"music", "games"}
	p.PersonalityTraits = map[string]string{"occupation": "programmer"}
	p.Preferences = map[string]string{"theme": "dark"}
	p.IntimacyScore = 42
	p.RelationshipLevel = model.Familiar
	p.CurrentMood = "happy"
	p.Motivations = map[string]float64{"companionship": 0.8}

	fields, err := encodeProfile(p)
	if err != nil {
		t.Fatalf("encodeProfile: %v", err)
	}
	got := decodeProfile(fields)

	if got.UserID != p.UserID || got.IntimacyScore != p.IntimacyScore ||
		got.RelationshipLevel != p.RelationshipLevel || got.CurrentMood != p.CurrentMood {
		t.Fatalf("round-trip mismatch: got %+v, want %+v", got, p)
	}
	if len(got.Interests) != 2 || got.Interests[0] != "music" {
		t.Fatalf("interests round-trip failed: %+v", got.Interests)
	}
	if got.PersonalityTraits["occupation"] != "programmer" {
		t.Fatalf("personality traits round-trip failed: %+v", got.PersonalityTraits)
	}
	if got.Motivations["companionship"] != 0.8 {
		t.Fatalf("motivations round-trip failed: %+v", got.Motivations)
	}
}

func TestGetOrCreateUserIDIdempotent(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()

	id1, err := s.GetOrCreateUserID(ctx, "alice")
	if err != nil {
		t.Fatalf("GetOrCreateUserID: %v", err)
	}
	id2, err := s.GetOrCreateUserID(ctx, "alice")
	if err != nil {
		t.Fatalf("GetOrCreateUserID: %v", err)
	}
	if id1 != id2 {
		t.Fatalf("GetOrCreateUserID not idempotent: %q != %q", id1, id2)
	}
	if id1 != model.DeriveUserID("alice") {
		t.Fatalf("expected derived id %q, got %q", model.DeriveUserID("alice"), id1)
	}
}

func TestAddInterestTagsDeduplicates(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()
	if _, err := s.InitUser(ctx, "u1"); err != nil {
		t.Fatalf("InitUser: %v", err)
	}

	if err := s.AddInterestTags(ctx, "u1", []string{"music", "games", "music"}); err != nil {
		t.Fatalf("AddInterestTags: %v", err)
	}
	if err := s.AddInterestTags(ctx, "u1", []string{"music", "books"}); err != nil {
		t.Fatalf("AddInterestTags: %v", err)
	}

	p, err := s.GetProfile(ctx, "u1")
	if err != nil {
		t.Fatalf("GetProfile: %v", err)
	}

	seen := map[string]int{}
	for _, tag := range p.Interests {
		seen[tag]++
	}
	for tag, count := range seen {
		if count > 1 {
			t.Fatalf("interest %q duplicated %d times: %+v", tag, count, p.Interests)
		}
	}
	if len(p.Interests) != 3 {
		t.Fatalf("expected 3 distinct interests, got %+v", p.Interests)
	}
}

func TestUpdateIntimacyMatchesBand(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()
	if _, err := s.InitUser(ctx, "u1"); err != nil {
		t.Fatalf("InitUser: %v", err)
	}

	deltas := []int64{5, 10, 20, -3, 50}
	var score int64
	for _, d := range deltas {
		newScore, level, err := s.UpdateIntimacy(ctx, "u1", d)
		if err != nil {
			t.Fatalf("UpdateIntimacy: %v", err)
		}
		score += d
		if newScore != score {
			t.Fatalf("intimacy score mismatch: got %d, want %d", newScore, score)
		}
		if level != model.BandOf(int(score)) {
			t.Fatalf("relationship level mismatch at score %d: got %q, want %q", score, level, model.BandOf(int(score)))
		}
	}

	p, err := s.GetProfile(ctx, "u1")
	if err != nil {
		t.Fatalf("GetProfile: %v", err)
	}
	if p.RelationshipLevel != model.BandOf(int(score)) {
		t.Fatalf("persisted relationship level mismatch: got %q, want %q", p.RelationshipLevel, model.BandOf(int(score)))
	}
}

func TestGetProfileNotFound(t *testing.T) {
	s := newTestStore()
	if _, err := s.GetProfile(context.Background(), "ghost"); err == nil {
		t.Fatalf("expected not-found error for missing profile")
	}
}

func TestUpdateFromRuleInferenceGatesOnConfidence(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()
	if _, err := s.InitUser(ctx, "u1"); err != nil {
		t.Fatalf("InitUser: %v", err)
	}

	// Below every threshold: nothing should be written.
	if err := s.UpdateFromRuleInference(ctx, "u1",
		model.InferenceField{Value: "程序员", Confidence: 0.3},
		model.InferenceField{Value: "25-30", Confidence: 0.2},
		model.InferenceField{Value: "male", Confidence: 0.4},
		nil, nil); err != nil {
		t.Fatalf("UpdateFromRuleInference: %v", err)
	}
	p, err := s.GetProfile(ctx, "u1")
	if err != nil {
		t.Fatalf("GetProfile: %v", err)
	}
	if p.OccupationData != nil || p.AgeData != nil || p.GenderData != nil {
		t.Fatalf("expected no demographic fields below threshold, got %+v", p)
	}

	// Above threshold: all three should be written.
	if err := s.UpdateFromRuleInference(ctx, "u1",
		model.InferenceField{Value: "程序员", Confidence: 0.9},
		model.InferenceField{Value: "25-30", Confidence: 0.6},
		model.InferenceField{Value: "male", Confidence: 0.7},
		nil, nil); err != nil {
		t.Fatalf("UpdateFromRuleInference: %v", err)
	}
	p, err = s.GetProfile(ctx, "u1")
	if err != nil {
		t.Fatalf("GetProfile: %v", err)
	}
	if p.OccupationData == nil || p.OccupationData.Value != "程序员" {
		t.Fatalf("expected occupation_data written, got %+v", p.OccupationData)
	}
	if p.AgeData == nil || p.AgeData.Value != "25-30" {
		t.Fatalf("expected age_data written, got %+v", p.AgeData)
	}
	if p.GenderData == nil || p.GenderData.Value != "male" {
		t.Fatalf("expected gender_data written, got %+v", p.GenderData)
	}
}

func TestUpdateFromRuleInferenceOccupationRequiresHigherBarToOverwrite(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()
	if _, err := s.InitUser(ctx, "u1"); err != nil {
		t.Fatalf("InitUser: %v", err)
	}

	if err := s.UpdateFromRuleInference(ctx, "u1",
		model.InferenceField{Value: "程序员", Confidence: 0.9}, model.InferenceField{}, model.InferenceField{}, nil, nil); err != nil {
		t.Fatalf("UpdateFromRuleInference: %v", err)
	}

	// A second observation clears the basic gate (>0.5) but not the
	// overwrite bar (>0.6); the existing value must survive unchanged.
	if err := s.UpdateFromRuleInference(ctx, "u1",
		model.InferenceField{Value: "设计师", Confidence: 0.55}, model.InferenceField{}, model.InferenceField{}, nil, nil); err != nil {
		t.Fatalf("UpdateFromRuleInference: %v", err)
	}

	p, err := s.GetProfile(ctx, "u1")
	if err != nil {
		t.Fatalf("GetProfile: %v", err)
	}
	if p.OccupationData.Value != "程序员" {
		t.Fatalf("expected occupation unchanged below overwrite bar, got %+v", p.OccupationData)
	}
}

func TestUpdateFromRuleInferencePersistsStyleAndPattern(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()
	if _, err := s.InitUser(ctx, "u1"); err != nil {
		t.Fatalf("InitUser: %v", err)
	}

	style := map[string]string{"formality": "casual"}
	pattern := map[string]string{"stress_level": "low"}
	if err := s.UpdateFromRuleInference(ctx, "u1", model.InferenceField{}, model.InferenceField{}, model.InferenceField{}, style, pattern); err != nil {
		t.Fatalf("UpdateFromRuleInference: %v", err)
	}

	p, err := s.GetProfile(ctx, "u1")
	if err != nil {
		t.Fatalf("GetProfile: %v", err)
	}
	if p.CommunicationStyle["formality"] != "casual" {
		t.Fatalf("expected communication style persisted, got %+v", p.CommunicationStyle)
	}
	if p.EmotionalPattern["stress_level"] != "low" {
		t.Fatalf("expected emotional pattern persisted, got %+v", p.EmotionalPattern)
	}
}

func TestChatHistoryCap(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()
	if _, err := s.InitUser(ctx, "u1"); err != nil {
		t.Fatalf("InitUser: %v", err)
	}
	for i := 0; i < chatHistoryCap+50; i++ {
		if err := s.SaveChatMessage(ctx, "u1", "user", "hi"); err != nil {
			t.Fatalf("SaveChatMessage: %v", err)
		}
	}
	history, err := s.GetChatHistory(ctx, "u1", 0)
	if err != nil {
		t.Fatalf("GetChatHistory: %v", err)
	}
	if len(history) != chatHistoryCap {
		t.Fatalf("expected history capped at %d, got %d", chatHistoryCap, len(history))
	}
}
