// Package contextassembler implements the Context Assembler (C5): it
// composes the ordered message array sent to the LLM for one chat turn.
package contextassembler

import (
	"context"

	"github.com/click-gz/deskpet-backend/kv"
	"github.com/click-gz/deskpet-backend/llm"
	"github.com/click-gz/deskpet-backend/profile"
	"github.com/click-gz/deskpet-backend/session"
)

const (
	historyWindow  = 20
	recentNonSystem = 11
)

// defaults are used whenever a pet:config:* key is unset (spec.md §6's
// key layout, "with documented defaults").
var defaults = map[string]string{
	"name":           "Mochi",
	"system_prompt":  "You are a playful desktop companion pet who lives on the user's screen.",
	"personality":    "cheerful, curious, a little mischievous",
	"greeting":       "Hi, I missed you!",
	"avatar_style":   "chibi",
	"voice_enabled":  "false",
}

// Assembler is the Context Assembler (C5).
type Assembler struct {
	kv       kv.Store
	profiles *profile.Store
	sessions *session.Store
}

// New builds a Context Assembler over the given stores.
func New(store kv.Store, profiles *profile.Store, sessions *session.Store) *Assembler {
	return &Assembler{kv: store, profiles: profiles, sessions: sessions}
}

func petConfigKey(field string) string { return "pet:config:" + field }

func (a *Assembler) petConfigField(ctx context.Context, field string) (string, error) {
	v, found, err := a.kv.GetString(ctx, petConfigKey(field))
	if err != nil {
		return "", err
	}
	if !found || v == "" {
		return defaults[field], nil
	}
	return v, nil
}

// Assemble implements spec.md §4.5's compose procedure.
func (a *Assembler) Assemble(ctx context.Context, userID, sessionID, userMessage string) ([]llm.Message, error) {
	petName, err := a.petConfigField(ctx, "name")
	if err != nil {
		return nil, err
	}
	systemPrompt, err := a.petConfigField(ctx, "system_prompt")
	if err != nil {
		return nil, err
	}

	profilePrompt, err := a.profiles.BuildContextPrompt(ctx, userID)
	if err != nil {
		return nil, err
	}

	history, err := a.sessions.GetContext(ctx, sessionID, historyWindow)
	if err != nil {
		return nil, err
	}
	// The caller already appended userMessage to the session before calling
	// Assemble, so the fetched history ends with it; drop that trailing
	// entry here to avoid sending the current turn twice.
	if n := len(history); n > 0 {
		history = history[:n-1]
	}

	messages := make([]llm.Message, 0, len(history)+3)
	messages = append(messages, llm.Message{
		Role:    "system",
		Content: systemPrompt + "\n\nyour name is: " + petName,
	})
	if profilePrompt != "" {
		messages = append(messages, llm.Message{
			Role:    "system",
			Content: "[user profile reference]\n" + profilePrompt,
		})
	}
	for _, m := range history {
		messages = append(messages, llm.Message{Role: m.Role, Content: m.Content})
	}
	messages = append(messages, llm.Message{Role: "user", Content: userMessage})

	return trimNonSystem(messages, recentNonSystem), nil
}

// trimNonSystem keeps every system message and the most recent `limit`
// non-system messages, preserving relative order, per spec.md §4.5's
// ordering contract.
func trimNonSystem(messages []llm.Message, limit int) []llm.Message {
	nonSystemCount := 0
	for _, m := range messages {
		if m.Role != "system" {
			nonSystemCount++
		}
	}
	if nonSystemCount <= limit {
		return messages
	}

	drop := nonSystemCount - limit
	out := make([]llm.Message, 0, len(messages))
	for _, m := range messages {
		if m.Role != "system" && drop > 0 {
			drop--
			continue
		}
		out = append(out, m)
	}
	return out
}
