// Package model defines the data records persisted in the KV store and the
// structures passed between components. Nested fields are JSON-encoded at
// the KV boundary by the session/profile stores; callers work with these
// typed structs.
package model

import "time"

// InferenceField is a value paired with a confidence score in [0,1], the
// shape used for every demographic field the rule/LLM inference pipelines
// may or may not be sure about.
type InferenceField struct {
	Value      string  `json:"value"`
	Confidence float64 `json:"confidence"`
}

// RelationshipLevel is the qualitative label derived from IntimacyScore.
type RelationshipLevel string

const (
	Stranger     RelationshipLevel = "stranger"
	Acquaintance RelationshipLevel = "acquaintance"
	Familiar     RelationshipLevel = "familiar"
	Friend       RelationshipLevel = "friend"
	CloseFriend  RelationshipLevel = "close_friend"
	Confidant    RelationshipLevel = "confidant"
)

// BandOf derives the relationship level from an intimacy score using the
// fixed bands in spec.md §3: 0/10/30/60/100/200.
func BandOf(intimacyScore int) RelationshipLevel {
	switch {
	case intimacyScore >= 200:
		return Confidant
	case intimacyScore >= 100:
		return CloseFriend
	case intimacyScore >= 60:
		return Friend
	case intimacyScore >= 30:
		return Familiar
	case intimacyScore >= 10:
		return Acquaintance
	default:
		return Stranger
	}
}

// Profile is the long-lived per-user record (one per internal user id).
type Profile struct {
	UserID             string            `json:"user_id"`
	CreatedAt          time.Time         `json:"created_at"`
	LastSeen           time.Time         `json:"last_seen"`
	TotalInteractions  int64             `json:"total_interactions"`
	IntimacyScore      int64             `json:"intimacy_score"`
	RelationshipLevel  RelationshipLevel `json:"relationship_level"`
	Interests          []string          `json:"interests"`
	PersonalityTraits  map[string]string `json:"personality_traits"`
	Preferences        map[string]string `json:"preferences"`
	OccupationData     *InferenceField   `json:"occupation_data,omitempty"`
	AgeData            *InferenceField   `json:"age_data,omitempty"`
	GenderData         *InferenceField   `json:"gender_data,omitempty"`
	CommunicationStyle map[string]string `json:"communication_style,omitempty"`
	EmotionalPattern   map[string]string `json:"emotional_pattern,omitempty"`
	CurrentMood        string             `json:"current_mood,omitempty"`
	Motivations        map[string]float64 `json:"motivations,omitempty"`
}

// NewProfile creates a freshly initialized profile for user id uid.
func NewProfile(uid string) *Profile {
	now := time.Now().UTC()
	return &Profile{
		UserID:            uid,
		CreatedAt:         now,
		LastSeen:          now,
		IntimacyScore:     0,
		RelationshipLevel: Stranger,
		Interests:         []string{},
		PersonalityTraits: map[string]string{},
		Preferences:       map[string]string{},
	}
}

// ProfileView is a read-only projection over Profile with derived fields
// that are never persisted (SPEC_FULL.md §C.1).
type ProfileView struct {
	Profile
	TrustLevel        float64 `json:"trust_level"`
	InteractionComfort float64 `json:"interaction_comfort"`
}

// Summarize builds the derived read-model view for p.
func Summarize(p *Profile) ProfileView {
	trust := float64(p.IntimacyScore) / 200.0
	if trust > 1.0 {
		trust = 1.0
	}
	comfort := float64(p.IntimacyScore) / 150.0
	if comfort > 1.0 {
		comfort = 1.0
	}
	return ProfileView{Profile: *p, TrustLevel: trust, InteractionComfort: comfort}
}

// ChatMessage is one turn persisted in a user's long-term chat history
// ring buffer (cap 500) or a session's context list.
type ChatMessage struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// BehaviorEvent is an append-only interaction event (cap 200 per user).
type BehaviorEvent struct {
	Type      string                 `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// SessionStatus is the lifecycle state of a Session.
type SessionStatus string

const (
	SessionActive     SessionStatus = "active"
	SessionEnded      SessionStatus = "ended"
	SessionSummarized SessionStatus = "summarized"
)

// Session is the ephemeral per-conversation record (24h TTL).
type Session struct {
	SessionID          string        `json:"session_id"`
	UserID             string        `json:"user_id"`
	StartTime          time.Time     `json:"start_time"`
	LastActive         time.Time     `json:"last_active"`
	EndTime            time.Time     `json:"end_time,omitempty"`
	MessageCount       int64         `json:"message_count"`
	Status             SessionStatus `json:"status"`
	LastSummarizedIndex int          `json:"last_summarized_index"`
}

// Summary is the structured extract persisted once a session has been
// summarized (retained 30 days).
type Summary struct {
	InterestsMentioned   []string  `json:"interests_mentioned"`
	PersonalityHints     string    `json:"personality_hints"`
	RelationshipProgress string    `json:"relationship_progress"`
	TopicsDiscussed      []string  `json:"topics_discussed"`
	EmotionalTone        string    `json:"emotional_tone"`
	RawAnalysis          string    `json:"raw_analysis,omitempty"`
	ContentFlag          string    `json:"content_flag,omitempty"`
	GeneratedAt          time.Time `json:"generated_at"`
}

// SummaryTask is a record in the session:summary_queue set, deduplicated by
// SessionID.
type SummaryTask struct {
	SessionID string    `json:"session_id"`
	QueuedAt  time.Time `json:"queued_at"`
	Status    string    `json:"status"`
}

// ProfileAnalysis is the deep LLM profile-analyzer payload (§4.7(b) / SPEC_FULL.md §C.3).
type ProfileAnalysis struct {
	Demographics       Demographics       `json:"demographics"`
	InterestTags       map[string]float64 `json:"interest_tags"`
	Personality        Personality        `json:"personality"`
	CurrentMood        string             `json:"current_mood"`
	CommunicationStyle map[string]string  `json:"communication_style"`
	Motivations        Motivations        `json:"motivations"`
	Advisory           string             `json:"advisory,omitempty"`
}

// Demographics holds the inferred basic-attribute guesses from the deep
// profile analyzer. Each value is advisory text, not confidence-gated like
// the rule-inference InferenceField.
type Demographics struct {
	AgeRange      string `json:"age_range"`
	Gender        string `json:"gender"`
	Occupation    string `json:"occupation"`
	Education     string `json:"education"`
	LocationHints string `json:"location_hints"`
}

// Personality is the five-factor (OCEAN) score set, each in [0,1].
type Personality struct {
	Openness          float64 `json:"openness"`
	Conscientiousness float64 `json:"conscientiousness"`
	Extraversion      float64 `json:"extraversion"`
	Agreeableness     float64 `json:"agreeableness"`
	Neuroticism       float64 `json:"neuroticism"`
}

// Motivations is the need/motivation score set, each in [0,1].
type Motivations struct {
	Companionship    float64 `json:"companionship"`
	Productivity     float64 `json:"productivity"`
	Entertainment    float64 `json:"entertainment"`
	Learning         float64 `json:"learning"`
	EmotionalSupport float64 `json:"emotional_support"`
}
