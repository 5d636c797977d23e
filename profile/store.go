// Package profile implements the Profile Store (C4): the long-term
// per-user record and its mutation operations, backed by the KV
// abstraction.
package profile

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/click-gz/deskpet-backend/apperr"
	"github.com/click-gz/deskpet-backend/kv"
	"github.com/click-gz/deskpet-backend/model"
)

const (
	chatHistoryCap = 500
	behaviorCap    = 200
	topInterests   = 5
	topTraits      = 3

	// Confidence gates for the rule-derived demographic fields, matching
	// original_source's UserProfileService._update_from_rules.
	occupationConfidenceThreshold = 0.5
	occupationOverwriteThreshold  = 0.6
	ageConfidenceThreshold        = 0.4
	genderConfidenceThreshold     = 0.5
)

func mappingKey(rawID string) string     { return "user:" + rawID + ":mapping" }
func profileKey(uid string) string       { return "user:" + uid + ":profile" }
func chatHistoryKey(uid string) string   { return "user:" + uid + ":chat_history" }
func behaviorsKey(uid string) string     { return "user:" + uid + ":behaviors" }
func lastUpdateKey(uid string) string    { return "user:" + uid + ":last_profile_update" }

// Store is the Profile Store (C4).
type Store struct {
	kv kv.Store
}

// New builds a Profile Store over the given KV backend.
func New(store kv.Store) *Store {
	return &Store{kv: store}
}

// GetOrCreateUserID implements spec.md §3/§4.4's idempotent raw-id →
// internal-id mapping, fixed per SPEC_FULL.md §C.4 to derive the internal
// id deterministically from rawID so concurrent first calls converge.
func (s *Store) GetOrCreateUserID(ctx context.Context, rawID string) (string, error) {
	existing, found, err := s.kv.GetString(ctx, mappingKey(rawID))
	if err != nil {
		return "", apperr.Wrap(apperr.Internal, "lookup user mapping", err)
	}
	if found {
		return existing, nil
	}
	derived := model.DeriveUserID(rawID)
	// SetStringIfAbsent: if another request already raced us to persist the
	// mapping, that write wins and this one is a no-op read-back.
	if _, err := s.kv.SetStringIfAbsent(ctx, mappingKey(rawID), derived, 0); err != nil {
		return "", apperr.Wrap(apperr.Internal, "persist user mapping", err)
	}
	winner, _, err := s.kv.GetString(ctx, mappingKey(rawID))
	if err != nil {
		return "", apperr.Wrap(apperr.Internal, "read back user mapping", err)
	}
	return winner, nil
}

func encodeProfile(p *model.Profile) (map[string]string, error) {
	interests, err := json.Marshal(p.Interests)
	if err != nil {
		return nil, err
	}
	traits, err := json.Marshal(p.PersonalityTraits)
	if err != nil {
		return nil, err
	}
	prefs, err := json.Marshal(p.Preferences)
	if err != nil {
		return nil, err
	}
	occ, _ := json.Marshal(p.OccupationData)
	age, _ := json.Marshal(p.AgeData)
	gender, _ := json.Marshal(p.GenderData)
	commStyle, _ := json.Marshal(p.CommunicationStyle)
	emoPattern, _ := json.Marshal(p.EmotionalPattern)
	motivations, _ := json.Marshal(p.Motivations)

	return map[string]string{
		"user_id":             p.UserID,
		"created_at":          p.CreatedAt.Format(time.RFC3339),
		"last_seen":           p.LastSeen.Format(time.RFC3339),
		"total_interactions":  fmt.Sprintf("%d", p.TotalInteractions),
		"intimacy_score":      fmt.Sprintf("%d", p.IntimacyScore),
		"relationship_level":  string(p.RelationshipLevel),
		"interests":           string(interests),
		"personality_traits":  string(traits),
		"preferences":         string(prefs),
		"occupation_data":     string(occ),
		"age_data":            string(age),
		"gender_data":         string(gender),
		"communication_style": string(commStyle),
		"emotional_pattern":   string(emoPattern),
		"current_mood":        p.CurrentMood,
		"motivations":         string(motivations),
	}, nil
}

func decodeProfile(h map[string]string) *model.Profile {
	if len(h) == 0 {
		return nil
	}
	p := &model.Profile{
		UserID:            h["user_id"],
		RelationshipLevel: model.RelationshipLevel(h["relationship_level"]),
		CurrentMood:       h["current_mood"],
	}
	p.CreatedAt, _ = time.Parse(time.RFC3339, h["created_at"])
	p.LastSeen, _ = time.Parse(time.RFC3339, h["last_seen"])
	fmt.Sscanf(h["total_interactions"], "%d", &p.TotalInteractions)
	fmt.Sscanf(h["intimacy_score"], "%d", &p.IntimacyScore)

	_ = json.Unmarshal([]byte(h["interests"]), &p.Interests)
	if p.Interests == nil {
		p.Interests = []string{}
	}
	_ = json.Unmarshal([]byte(h["personality_traits"]), &p.PersonalityTraits)
	if p.PersonalityTraits == nil {
		p.PersonalityTraits = map[string]string{}
	}
	_ = json.Unmarshal([]byte(h["preferences"]), &p.Preferences)
	if p.Preferences == nil {
		p.Preferences = map[string]string{}
	}
	_ = json.Unmarshal([]byte(h["occupation_data"]), &p.OccupationData)
	_ = json.Unmarshal([]byte(h["age_data"]), &p.AgeData)
	_ = json.Unmarshal([]byte(h["gender_data"]), &p.GenderData)
	_ = json.Unmarshal([]byte(h["communication_style"]), &p.CommunicationStyle)
	_ = json.Unmarshal([]byte(h["emotional_pattern"]), &p.EmotionalPattern)
	_ = json.Unmarshal([]byte(h["motivations"]), &p.Motivations)

	return p
}

// InitUser implements spec.md §4.4's init_user: writes the initial profile
// record atomically if absent.
func (s *Store) InitUser(ctx context.Context, userID string) (*model.Profile, error) {
	exists, err := s.kv.Exists(ctx, profileKey(userID))
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "check profile existence", err)
	}
	if exists {
		return s.GetProfile(ctx, userID)
	}
	p := model.NewProfile(userID)
	if err := s.put(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *Store) put(ctx context.Context, p *model.Profile) error {
	fields, err := encodeProfile(p)
	if err != nil {
		return apperr.Wrap(apperr.Internal, "encode profile", err)
	}
	if err := s.kv.HashSet(ctx, profileKey(p.UserID), fields); err != nil {
		return apperr.Wrap(apperr.Internal, "save profile", err)
	}
	return nil
}

// GetProfile implements spec.md §4.4's get_profile.
func (s *Store) GetProfile(ctx context.Context, userID string) (*model.Profile, error) {
	h, err := s.kv.HashGetAll(ctx, profileKey(userID))
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "get profile", err)
	}
	p := decodeProfile(h)
	if p == nil {
		return nil, apperr.New(apperr.NotFound, "profile not found: "+userID)
	}
	return p, nil
}

// SaveChatMessage appends to the long-term ring buffer (cap 500).
func (s *Store) SaveChatMessage(ctx context.Context, userID, role, content string) error {
	msg := model.ChatMessage{Role: role, Content: content, Timestamp: time.Now().UTC()}
	payload, err := json.Marshal(msg)
	if err != nil {
		return apperr.Wrap(apperr.Internal, "encode chat message", err)
	}
	if err := s.kv.ListPushRight(ctx, chatHistoryKey(userID), string(payload)); err != nil {
		return apperr.Wrap(apperr.Internal, "append chat history", err)
	}
	return s.kv.ListTrim(ctx, chatHistoryKey(userID), -chatHistoryCap, -1)
}

// GetChatHistory returns the last limit messages (0 = all, capped at 500).
func (s *Store) GetChatHistory(ctx context.Context, userID string, limit int) ([]model.ChatMessage, error) {
	start := int64(0)
	if limit > 0 {
		start = int64(-limit)
	} else {
		start = -chatHistoryCap
	}
	raw, err := s.kv.ListRange(ctx, chatHistoryKey(userID), start, -1)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "get chat history", err)
	}
	out := make([]model.ChatMessage, 0, len(raw))
	for _, r := range raw {
		var m model.ChatMessage
		if err := json.Unmarshal([]byte(r), &m); err == nil {
			out = append(out, m)
		}
	}
	return out, nil
}

// RecordBehavior appends to the behavior ring (cap 200).
func (s *Store) RecordBehavior(ctx context.Context, userID, eventType string, metadata map[string]interface{}) error {
	ev := model.BehaviorEvent{Type: eventType, Timestamp: time.Now().UTC(), Metadata: metadata}
	payload, err := json.Marshal(ev)
	if err != nil {
		return apperr.Wrap(apperr.Internal, "encode behavior event", err)
	}
	if err := s.kv.ListPushRight(ctx, behaviorsKey(userID), string(payload)); err != nil {
		return apperr.Wrap(apperr.Internal, "append behavior", err)
	}
	return s.kv.ListTrim(ctx, behaviorsKey(userID), -behaviorCap, -1)
}

// GetBehaviors returns all recorded behavior events for userID.
func (s *Store) GetBehaviors(ctx context.Context, userID string) ([]model.BehaviorEvent, error) {
	raw, err := s.kv.ListRange(ctx, behaviorsKey(userID), 0, -1)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "get behaviors", err)
	}
	out := make([]model.BehaviorEvent, 0, len(raw))
	for _, r := range raw {
		var ev model.BehaviorEvent
		if err := json.Unmarshal([]byte(r), &ev); err == nil {
			out = append(out, ev)
		}
	}
	return out, nil
}

// UpdateLastSeen touches last_seen.
func (s *Store) UpdateLastSeen(ctx context.Context, userID string) error {
	return s.kv.HashSet(ctx, profileKey(userID), map[string]string{
		"last_seen": time.Now().UTC().Format(time.RFC3339),
	})
}

// IncrementInteraction bumps total_interactions (strictly nondecreasing).
func (s *Store) IncrementInteraction(ctx context.Context, userID string) error {
	_, err := s.kv.HashIncrBy(ctx, profileKey(userID), "total_interactions", 1)
	if err != nil {
		return apperr.Wrap(apperr.Internal, "increment interaction", err)
	}
	return nil
}

// AddInterestTags set-unions tags into the existing interests.
func (s *Store) AddInterestTags(ctx context.Context, userID string, tags []string) error {
	if len(tags) == 0 {
		return nil
	}
	p, err := s.GetProfile(ctx, userID)
	if err != nil {
		return err
	}
	seen := make(map[string]struct{}, len(p.Interests))
	for _, t := range p.Interests {
		seen[t] = struct{}{}
	}
	changed := false
	for _, t := range tags {
		if _, ok := seen[t]; !ok {
			seen[t] = struct{}{}
			p.Interests = append(p.Interests, t)
			changed = true
		}
	}
	if !changed {
		return nil
	}
	encoded, err := json.Marshal(p.Interests)
	if err != nil {
		return apperr.Wrap(apperr.Internal, "encode interests", err)
	}
	return s.kv.HashSet(ctx, profileKey(userID), map[string]string{"interests": string(encoded)})
}

// UpdateIntimacy implements spec.md §4.4's update_intimacy: atomic add to
// the counter, then recompute and store relationship_level.
func (s *Store) UpdateIntimacy(ctx context.Context, userID string, delta int64) (int64, model.RelationshipLevel, error) {
	newScore, err := s.kv.HashIncrBy(ctx, profileKey(userID), "intimacy_score", delta)
	if err != nil {
		return 0, "", apperr.Wrap(apperr.Internal, "update intimacy", err)
	}
	level := model.BandOf(int(newScore))
	if err := s.kv.HashSet(ctx, profileKey(userID), map[string]string{"relationship_level": string(level)}); err != nil {
		return 0, "", apperr.Wrap(apperr.Internal, "store relationship level", err)
	}
	return newScore, level, nil
}

// UpdatePersonalityTraits dictionary-merges mapping into the profile (new
// keys win).
func (s *Store) UpdatePersonalityTraits(ctx context.Context, userID string, mapping map[string]string) error {
	if len(mapping) == 0 {
		return nil
	}
	p, err := s.GetProfile(ctx, userID)
	if err != nil {
		return err
	}
	if p.PersonalityTraits == nil {
		p.PersonalityTraits = map[string]string{}
	}
	for k, v := range mapping {
		p.PersonalityTraits[k] = v
	}
	encoded, err := json.Marshal(p.PersonalityTraits)
	if err != nil {
		return apperr.Wrap(apperr.Internal, "encode traits", err)
	}
	return s.kv.HashSet(ctx, profileKey(userID), map[string]string{"personality_traits": string(encoded)})
}

// UpdateFromRuleInference implements original_source's _update_from_rules:
// the occupation/age/gender demographic fields are only overwritten when
// their confidence clears a per-field gate (occupation additionally
// requires clearing a higher bar to replace an already-stored value), and
// the rule-derived communication style and emotional pattern are persisted
// unconditionally whenever the caller has computed them.
func (s *Store) UpdateFromRuleInference(ctx context.Context, userID string, occupation, ageRange, gender model.InferenceField, communicationStyle, emotionalPattern map[string]string) error {
	update := map[string]string{}

	if occupation.Value != "" && occupation.Confidence > occupationConfidenceThreshold {
		p, err := s.GetProfile(ctx, userID)
		if err != nil {
			return err
		}
		if p.OccupationData == nil || occupation.Confidence > occupationOverwriteThreshold {
			encoded, err := json.Marshal(occupation)
			if err != nil {
				return apperr.Wrap(apperr.Internal, "encode occupation data", err)
			}
			update["occupation_data"] = string(encoded)
		}
	}
	if ageRange.Value != "" && ageRange.Confidence > ageConfidenceThreshold {
		encoded, err := json.Marshal(ageRange)
		if err != nil {
			return apperr.Wrap(apperr.Internal, "encode age data", err)
		}
		update["age_data"] = string(encoded)
	}
	if gender.Value != "" && gender.Value != "unknown" && gender.Confidence > genderConfidenceThreshold {
		encoded, err := json.Marshal(gender)
		if err != nil {
			return apperr.Wrap(apperr.Internal, "encode gender data", err)
		}
		update["gender_data"] = string(encoded)
	}
	if len(communicationStyle) > 0 {
		encoded, err := json.Marshal(communicationStyle)
		if err != nil {
			return apperr.Wrap(apperr.Internal, "encode communication style", err)
		}
		update["communication_style"] = string(encoded)
	}
	if len(emotionalPattern) > 0 {
		encoded, err := json.Marshal(emotionalPattern)
		if err != nil {
			return apperr.Wrap(apperr.Internal, "encode emotional pattern", err)
		}
		update["emotional_pattern"] = string(encoded)
	}

	if len(update) == 0 {
		return nil
	}
	return s.kv.HashSet(ctx, profileKey(userID), update)
}

// UpdateFromLLMAnalysis conditionally applies interests, personality, and
// preferences from a §4.7(b) payload; only non-empty fields are applied.
func (s *Store) UpdateFromLLMAnalysis(ctx context.Context, userID string, analysis model.ProfileAnalysis) error {
	var interests []string
	for tag := range analysis.InterestTags {
		interests = append(interests, tag)
	}
	sort.Strings(interests)
	if len(interests) > 0 {
		if err := s.AddInterestTags(ctx, userID, interests); err != nil {
			return err
		}
	}

	traits := map[string]string{}
	if analysis.Personality != (model.Personality{}) {
		traits["openness"] = fmt.Sprintf("%.2f", analysis.Personality.Openness)
		traits["conscientiousness"] = fmt.Sprintf("%.2f", analysis.Personality.Conscientiousness)
		traits["extraversion"] = fmt.Sprintf("%.2f", analysis.Personality.Extraversion)
		traits["agreeableness"] = fmt.Sprintf("%.2f", analysis.Personality.Agreeableness)
		traits["neuroticism"] = fmt.Sprintf("%.2f", analysis.Personality.Neuroticism)
	}
	if len(traits) > 0 {
		if err := s.UpdatePersonalityTraits(ctx, userID, traits); err != nil {
			return err
		}
	}

	update := map[string]string{}
	if analysis.CurrentMood != "" {
		update["current_mood"] = analysis.CurrentMood
	}
	if len(analysis.CommunicationStyle) > 0 {
		encoded, err := json.Marshal(analysis.CommunicationStyle)
		if err != nil {
			return apperr.Wrap(apperr.Internal, "encode communication style", err)
		}
		update["communication_style"] = string(encoded)
	}
	if analysis.Motivations != (model.Motivations{}) {
		encoded, err := json.Marshal(map[string]float64{
			"companionship":     analysis.Motivations.Companionship,
			"productivity":      analysis.Motivations.Productivity,
			"entertainment":     analysis.Motivations.Entertainment,
			"learning":          analysis.Motivations.Learning,
			"emotional_support": analysis.Motivations.EmotionalSupport,
		})
		if err != nil {
			return apperr.Wrap(apperr.Internal, "encode motivations", err)
		}
		update["motivations"] = string(encoded)
	}
	if len(update) == 0 {
		return nil
	}
	return s.kv.HashSet(ctx, profileKey(userID), update)
}

// BuildContextPrompt implements spec.md §4.4's build_context_prompt: a
// short system-style string embedding relationship level, top interests,
// top traits, and an intimacy hint.
func (s *Store) BuildContextPrompt(ctx context.Context, userID string) (string, error) {
	p, err := s.GetProfile(ctx, userID)
	if err != nil {
		if apperr.KindOf(err) == apperr.NotFound {
			return "", nil
		}
		return "", err
	}

	prompt := fmt.Sprintf("relationship level: %s.", p.RelationshipLevel)

	if n := len(p.Interests); n > 0 {
		interests := append([]string(nil), p.Interests...)
		sort.Strings(interests)
		if n > topInterests {
			interests = interests[:topInterests]
		}
		prompt += " known interests: " + joinComma(interests) + "."
	}

	if len(p.PersonalityTraits) > 0 {
		keys := make([]string, 0, len(p.PersonalityTraits))
		for k := range p.PersonalityTraits {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		if len(keys) > topTraits {
			keys = keys[:topTraits]
		}
		parts := make([]string, len(keys))
		for i, k := range keys {
			parts[i] = fmt.Sprintf("%s=%s", k, p.PersonalityTraits[k])
		}
		prompt += " personality: " + joinComma(parts) + "."
	}

	if p.IntimacyScore > 50 {
		prompt += " you have a close, established bond with this user; feel free to be more personal."
	}

	return prompt, nil
}

func joinComma(items []string) string {
	out := ""
	for i, it := range items {
		if i > 0 {
			out += ", "
		}
		out += it
	}
	return out
}

// MarkProfileUpdated records last_profile_update with a 10-minute TTL
// (spec.md §4.8). The worker skips a refresh while this timestamp is less
// than 180 seconds old; once the key has expired or been deleted, the next
// sweep refreshes the profile again.
func (s *Store) MarkProfileUpdated(ctx context.Context, userID string) error {
	return s.kv.SetString(ctx, lastUpdateKey(userID), time.Now().UTC().Format(time.RFC3339), 10*time.Minute)
}

// LastProfileUpdate returns the last recorded refresh time, if any.
func (s *Store) LastProfileUpdate(ctx context.Context, userID string) (time.Time, bool, error) {
	v, found, err := s.kv.GetString(ctx, lastUpdateKey(userID))
	if err != nil {
		return time.Time{}, false, apperr.Wrap(apperr.Internal, "get last profile update", err)
	}
	if !found {
		return time.Time{}, false, nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return time.Time{}, false, nil
	}
	return t, true, nil
}

// AllUserIDs lists every internal user id that has a profile, used by the
// background worker's profile-refresh sweep.
func (s *Store) AllUserIDs(ctx context.Context) ([]string, error) {
	keys, err := s.kv.KeysMatching(ctx, "user:*:profile")
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "list profile keys", err)
	}
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		// user:{uid}:profile -> {uid}
		if len(k) > len("user:")+len(":profile") {
			out = append(out, k[len("user:"):len(k)-len(":profile")])
		}
	}
	return out, nil
}
