// Package session implements the Session Store (C3): per-session
// metadata, rolling context, and summarization bookkeeping, backed by the
// KV abstraction.
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/click-gz/deskpet-backend/apperr"
	"github.com/click-gz/deskpet-backend/kv"
	"github.com/click-gz/deskpet-backend/model"
)

const (
	idleTimeout  = 30 * time.Minute
	sessionTTL   = 24 * time.Hour
	summaryTTL   = 30 * 24 * time.Hour
	defaultLimit = 20
)

func metaKey(sid string) string    { return "session:" + sid }
func contextKey(sid string) string { return "session:" + sid + ":context" }
func summaryKey(sid string) string { return "session:" + sid + ":summary" }
func activeKey(uid string) string  { return "user:" + uid + ":active_session" }

const queueKey = "session:summary_queue"

// Store is the Session Store (C3).
type Store struct {
	kv kv.Store
}

// New builds a Session Store over the given KV backend.
func New(store kv.Store) *Store {
	return &Store{kv: store}
}

func encodeSession(s *model.Session) map[string]string {
	return map[string]string{
		"session_id":            s.SessionID,
		"user_id":               s.UserID,
		"start_time":            s.StartTime.Format(time.RFC3339),
		"last_active":           s.LastActive.Format(time.RFC3339),
		"end_time":              formatOptionalTime(s.EndTime),
		"message_count":         fmt.Sprintf("%d", s.MessageCount),
		"status":                string(s.Status),
		"last_summarized_index": fmt.Sprintf("%d", s.LastSummarizedIndex),
	}
}

func formatOptionalTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(time.RFC3339)
}

func parseOptionalTime(v string) time.Time {
	if v == "" {
		return time.Time{}
	}
	t, _ := time.Parse(time.RFC3339, v)
	return t
}

func decodeSession(h map[string]string) *model.Session {
	if len(h) == 0 {
		return nil
	}
	var msgCount, lastIdx int64
	fmt.Sscanf(h["message_count"], "%d", &msgCount)
	fmt.Sscanf(h["last_summarized_index"], "%d", &lastIdx)
	startTime, _ := time.Parse(time.RFC3339, h["start_time"])
	lastActive, _ := time.Parse(time.RFC3339, h["last_active"])
	return &model.Session{
		SessionID:           h["session_id"],
		UserID:              h["user_id"],
		StartTime:           startTime,
		LastActive:          lastActive,
		EndTime:             parseOptionalTime(h["end_time"]),
		MessageCount:        msgCount,
		Status:              model.SessionStatus(h["status"]),
		LastSummarizedIndex: int(lastIdx),
	}
}

// Get loads a session by id, returning an apperr.NotFound error if it does
// not exist.
func (s *Store) Get(ctx context.Context, sessionID string) (*model.Session, error) {
	h, err := s.kv.HashGetAll(ctx, metaKey(sessionID))
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "get session", err)
	}
	sess := decodeSession(h)
	if sess == nil {
		return nil, apperr.New(apperr.NotFound, "session not found: "+sessionID)
	}
	return sess, nil
}

// GetOrCreate implements spec.md §4.3's get_or_create(user_id) procedure.
func (s *Store) GetOrCreate(ctx context.Context, userID string) (*model.Session, error) {
	activeID, found, err := s.kv.GetString(ctx, activeKey(userID))
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "lookup active session", err)
	}
	if found {
		sess, err := s.Get(ctx, activeID)
		if err == nil {
			if time.Since(sess.LastActive) < idleTimeout {
				return sess, nil
			}
			if err := s.End(ctx, sess.SessionID); err != nil {
				return nil, err
			}
		}
	}
	return s.create(ctx, userID)
}

func (s *Store) create(ctx context.Context, userID string) (*model.Session, error) {
	now := time.Now().UTC()
	sess := &model.Session{
		SessionID:  model.NewInternalID(),
		UserID:     userID,
		StartTime:  now,
		LastActive: now,
		Status:     model.SessionActive,
	}
	if err := s.kv.HashSet(ctx, metaKey(sess.SessionID), encodeSession(sess)); err != nil {
		return nil, apperr.Wrap(apperr.Internal, "create session", err)
	}
	if err := s.kv.Expire(ctx, metaKey(sess.SessionID), sessionTTL); err != nil {
		return nil, apperr.Wrap(apperr.Internal, "set session ttl", err)
	}
	if err := s.kv.SetString(ctx, activeKey(userID), sess.SessionID, sessionTTL); err != nil {
		return nil, apperr.Wrap(apperr.Internal, "set active pointer", err)
	}
	return sess, nil
}

// AppendMessage implements spec.md §4.3's append_message.
func (s *Store) AppendMessage(ctx context.Context, sessionID, role, content string) error {
	msg := model.ChatMessage{Role: role, Content: content, Timestamp: time.Now().UTC()}
	payload, err := json.Marshal(msg)
	if err != nil {
		return apperr.Wrap(apperr.Internal, "encode message", err)
	}
	if err := s.kv.ListPushRight(ctx, contextKey(sessionID), string(payload)); err != nil {
		return apperr.Wrap(apperr.Internal, "append context", err)
	}
	if err := s.kv.Expire(ctx, contextKey(sessionID), sessionTTL); err != nil {
		return apperr.Wrap(apperr.Internal, "refresh context ttl", err)
	}
	count, err := s.kv.HashIncrBy(ctx, metaKey(sessionID), "message_count", 1)
	if err != nil {
		return apperr.Wrap(apperr.Internal, "bump message count", err)
	}
	if err := s.kv.HashSet(ctx, metaKey(sessionID), map[string]string{
		"last_active":   time.Now().UTC().Format(time.RFC3339),
		"message_count": fmt.Sprintf("%d", count),
	}); err != nil {
		return apperr.Wrap(apperr.Internal, "touch session", err)
	}
	return s.kv.Expire(ctx, metaKey(sessionID), sessionTTL)
}

func decodeContext(raw []string) []model.ChatMessage {
	out := make([]model.ChatMessage, 0, len(raw))
	for _, r := range raw {
		var m model.ChatMessage
		if err := json.Unmarshal([]byte(r), &m); err == nil {
			out = append(out, m)
		}
	}
	return out
}

// GetContext returns the tail `limit` items (default 20 if limit <= 0).
func (s *Store) GetContext(ctx context.Context, sessionID string, limit int) ([]model.ChatMessage, error) {
	if limit <= 0 {
		limit = defaultLimit
	}
	raw, err := s.kv.ListRange(ctx, contextKey(sessionID), int64(-limit), -1)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "get context", err)
	}
	return decodeContext(raw), nil
}

// GetFullContext returns the entire context list.
func (s *Store) GetFullContext(ctx context.Context, sessionID string) ([]model.ChatMessage, error) {
	raw, err := s.kv.ListRange(ctx, contextKey(sessionID), 0, -1)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "get full context", err)
	}
	return decodeContext(raw), nil
}

// GetNewContext returns context items appended since the last successful
// summary (spec.md §4.3's get_new_context), using LastSummarizedIndex.
func (s *Store) GetNewContext(ctx context.Context, sess *model.Session) ([]model.ChatMessage, error) {
	full, err := s.GetFullContext(ctx, sess.SessionID)
	if err != nil {
		return nil, err
	}
	if sess.LastSummarizedIndex >= len(full) {
		return nil, nil
	}
	return full[sess.LastSummarizedIndex:], nil
}

// End implements spec.md §4.3's end(session_id).
func (s *Store) End(ctx context.Context, sessionID string) error {
	sess, err := s.Get(ctx, sessionID)
	if err != nil {
		return err
	}
	if err := s.kv.HashSet(ctx, metaKey(sessionID), map[string]string{
		"status":   string(model.SessionEnded),
		"end_time": time.Now().UTC().Format(time.RFC3339),
	}); err != nil {
		return apperr.Wrap(apperr.Internal, "end session", err)
	}
	return s.kv.Del(ctx, activeKey(sess.UserID))
}

// ShouldTriggerSummary implements spec.md §4.3: every 10 messages.
func ShouldTriggerSummary(messageCount int64) bool {
	return messageCount > 0 && messageCount%10 == 0
}

// MarkForSummary adds sessionID to the summary queue, deduplicated by id.
func (s *Store) MarkForSummary(ctx context.Context, sessionID string) error {
	task := model.SummaryTask{SessionID: sessionID, QueuedAt: time.Now().UTC(), Status: "queued"}
	existing, err := s.kv.SetMembers(ctx, queueKey)
	if err != nil {
		return apperr.Wrap(apperr.Internal, "list summary queue", err)
	}
	for _, raw := range existing {
		var t model.SummaryTask
		if err := json.Unmarshal([]byte(raw), &t); err == nil && t.SessionID == sessionID {
			return nil // already queued
		}
	}
	payload, err := json.Marshal(task)
	if err != nil {
		return apperr.Wrap(apperr.Internal, "encode summary task", err)
	}
	return s.kv.SetAdd(ctx, queueKey, string(payload))
}

// GetSessionsToSummarize returns the queued summary tasks.
func (s *Store) GetSessionsToSummarize(ctx context.Context) ([]model.SummaryTask, error) {
	raw, err := s.kv.SetMembers(ctx, queueKey)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "list summary queue", err)
	}
	out := make([]model.SummaryTask, 0, len(raw))
	for _, r := range raw {
		var t model.SummaryTask
		if err := json.Unmarshal([]byte(r), &t); err == nil {
			out = append(out, t)
		}
	}
	return out, nil
}

// RemoveFromSummaryQueue removes the task for sessionID, if present.
func (s *Store) RemoveFromSummaryQueue(ctx context.Context, sessionID string) error {
	raw, err := s.kv.SetMembers(ctx, queueKey)
	if err != nil {
		return apperr.Wrap(apperr.Internal, "list summary queue", err)
	}
	for _, r := range raw {
		var t model.SummaryTask
		if err := json.Unmarshal([]byte(r), &t); err == nil && t.SessionID == sessionID {
			return s.kv.SetRemove(ctx, queueKey, r)
		}
	}
	return nil
}

// SaveSummary persists the summary hash, sets status summarized, a 30-day
// TTL, and records last_summarized_index, implementing spec.md §4.3's
// save_summary.
func (s *Store) SaveSummary(ctx context.Context, sessionID string, summary model.Summary, newIndex int) error {
	payload, err := json.Marshal(summary)
	if err != nil {
		return apperr.Wrap(apperr.Internal, "encode summary", err)
	}
	if err := s.kv.HashSet(ctx, summaryKey(sessionID), map[string]string{"summary": string(payload)}); err != nil {
		return apperr.Wrap(apperr.Internal, "save summary", err)
	}
	if err := s.kv.Expire(ctx, summaryKey(sessionID), summaryTTL); err != nil {
		return apperr.Wrap(apperr.Internal, "set summary ttl", err)
	}
	return s.kv.HashSet(ctx, metaKey(sessionID), map[string]string{
		"status":                string(model.SessionSummarized),
		"last_summarized_index": fmt.Sprintf("%d", newIndex),
	})
}

// GetSummary returns the persisted summary for a session, or ok=false if
// none exists yet.
func (s *Store) GetSummary(ctx context.Context, sessionID string) (*model.Summary, bool, error) {
	raw, ok, err := s.kv.HashGet(ctx, summaryKey(sessionID), "summary")
	if err != nil {
		return nil, false, apperr.Wrap(apperr.Internal, "get summary", err)
	}
	if !ok {
		return nil, false, nil
	}
	var summary model.Summary
	if err := json.Unmarshal([]byte(raw), &summary); err != nil {
		return nil, false, apperr.Wrap(apperr.Internal, "decode summary", err)
	}
	return &summary, true, nil
}
