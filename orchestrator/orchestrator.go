// Package orchestrator implements the Chat Orchestrator (C9): the
// per-turn procedure tying together the Profile Store, Session Store,
// Context Assembler, and Provider Registry.
package orchestrator

import (
	"context"
	"strings"
	"time"

	"github.com/click-gz/deskpet-backend/apperr"
	"github.com/click-gz/deskpet-backend/contextassembler"
	"github.com/click-gz/deskpet-backend/llm"
	"github.com/click-gz/deskpet-backend/log"
	"github.com/click-gz/deskpet-backend/model"
	"github.com/click-gz/deskpet-backend/profile"
	"github.com/click-gz/deskpet-backend/session"
)

const intimacyPerTurn = 1

// Orchestrator is the Chat Orchestrator (C9).
type Orchestrator struct {
	profiles  *profile.Store
	sessions  *session.Store
	assembler *contextassembler.Assembler
	registry  *llm.Registry
}

// New builds a Chat Orchestrator over the given collaborators.
func New(profiles *profile.Store, sessions *session.Store, assembler *contextassembler.Assembler, registry *llm.Registry) *Orchestrator {
	return &Orchestrator{profiles: profiles, sessions: sessions, assembler: assembler, registry: registry}
}

// Reply is the result of a chat turn.
type Reply struct {
	SessionID string    `json:"session_id"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Chat implements spec.md §4.9's 13-step procedure. rawUserID is the
// caller-supplied (external) identifier; it is resolved to an internal
// user id before anything else.
func (o *Orchestrator) Chat(ctx context.Context, rawUserID, userMessage string) (*Reply, error) {
	if strings.TrimSpace(userMessage) == "" {
		return nil, apperr.New(apperr.Validation, "message must not be empty")
	}

	userID, err := o.profiles.GetOrCreateUserID(ctx, rawUserID)
	if err != nil {
		return nil, err
	}
	if _, err := o.profiles.InitUser(ctx, userID); err != nil {
		return nil, err
	}

	sess, err := o.sessions.GetOrCreate(ctx, userID)
	if err != nil {
		return nil, err
	}

	if err := o.sessions.AppendMessage(ctx, sess.SessionID, "user", userMessage); err != nil {
		return nil, err
	}

	messages, err := o.assembler.Assemble(ctx, userID, sess.SessionID, userMessage)
	if err != nil {
		return nil, err
	}

	resp, err := o.registry.Send(model.WithUserID(ctx, userID), messages, llm.DefaultOptions())
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()

	// Everything from here is best-effort (spec.md §4.9): failures are
	// logged, never propagated, so the reply above is always delivered.
	o.finishTurn(ctx, userID, sess.SessionID, userMessage, resp.Content)

	return &Reply{SessionID: sess.SessionID, Content: resp.Content, Timestamp: now}, nil
}

func (o *Orchestrator) finishTurn(ctx context.Context, userID, sessionID, userMessage, reply string) {
	if err := o.sessions.AppendMessage(ctx, sessionID, "assistant", reply); err != nil {
		log.Log.Warnf("[Orchestrator] append assistant reply: %v", err)
	}

	if err := o.profiles.SaveChatMessage(ctx, userID, "user", userMessage); err != nil {
		log.Log.Warnf("[Orchestrator] mirror user message to profile history: %v", err)
	}
	if err := o.profiles.SaveChatMessage(ctx, userID, "assistant", reply); err != nil {
		log.Log.Warnf("[Orchestrator] mirror assistant message to profile history: %v", err)
	}

	if err := o.profiles.RecordBehavior(ctx, userID, "chat", map[string]interface{}{
		"message_length": len([]rune(userMessage)),
	}); err != nil {
		log.Log.Warnf("[Orchestrator] record chat behavior: %v", err)
	}

	if err := o.profiles.UpdateLastSeen(ctx, userID); err != nil {
		log.Log.Warnf("[Orchestrator] touch last_seen: %v", err)
	}
	if err := o.profiles.IncrementInteraction(ctx, userID); err != nil {
		log.Log.Warnf("[Orchestrator] increment interaction: %v", err)
	}

	sess, err := o.sessions.Get(ctx, sessionID)
	if err != nil {
		log.Log.Warnf("[Orchestrator] reload session for summary check: %v", err)
	} else if session.ShouldTriggerSummary(sess.MessageCount) {
		if err := o.sessions.MarkForSummary(ctx, sessionID); err != nil {
			log.Log.Warnf("[Orchestrator] mark session for summary: %v", err)
		}
	}

	if _, _, err := o.profiles.UpdateIntimacy(ctx, userID, intimacyPerTurn); err != nil {
		log.Log.Warnf("[Orchestrator] update intimacy: %v", err)
	}
}

// Stream implements the streaming variant: same setup as Chat, but the
// reply is delivered incrementally via yield and only the highest
// priority provider is used (no failover mid-stream, spec.md §4.2).
func (o *Orchestrator) Stream(ctx context.Context, rawUserID, userMessage string, yield func(llm.StreamChunk)) error {
	if strings.TrimSpace(userMessage) == "" {
		return apperr.New(apperr.Validation, "message must not be empty")
	}

	userID, err := o.profiles.GetOrCreateUserID(ctx, rawUserID)
	if err != nil {
		return err
	}
	if _, err := o.profiles.InitUser(ctx, userID); err != nil {
		return err
	}

	sess, err := o.sessions.GetOrCreate(ctx, userID)
	if err != nil {
		return err
	}

	if err := o.sessions.AppendMessage(ctx, sess.SessionID, "user", userMessage); err != nil {
		return err
	}

	messages, err := o.assembler.Assemble(ctx, userID, sess.SessionID, userMessage)
	if err != nil {
		return err
	}

	var full strings.Builder
	err = o.registry.Stream(model.WithUserID(ctx, userID), messages, llm.DefaultOptions(), func(chunk llm.StreamChunk) {
		if chunk.Content != "" {
			full.WriteString(chunk.Content)
		}
		yield(chunk)
	})
	if err != nil {
		return err
	}

	o.finishTurn(ctx, userID, sess.SessionID, userMessage, full.String())
	return nil
}
