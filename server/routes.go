// Package server wires the Chat Orchestrator, Session Store, Profile
// Store, and Behavior Analyzer onto the HTTP surface in spec.md §6.
package server

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/click-gz/deskpet-backend/apperr"
	"github.com/click-gz/deskpet-backend/behavior"
	"github.com/click-gz/deskpet-backend/kv"
	"github.com/click-gz/deskpet-backend/llm"
	"github.com/click-gz/deskpet-backend/log"
	"github.com/click-gz/deskpet-backend/orchestrator"
	"github.com/click-gz/deskpet-backend/profile"
	"github.com/click-gz/deskpet-backend/session"
)

const recentMessagesOnCurrent = 10

// Server holds the collaborators the HTTP handlers delegate to.
type Server struct {
	kv           kv.Store
	orchestrator *orchestrator.Orchestrator
	sessions     *session.Store
	profiles     *profile.Store
	registry     *llm.Registry
}

// New builds a Server over the given collaborators.
func New(store kv.Store, orch *orchestrator.Orchestrator, sessions *session.Store, profiles *profile.Store, registry *llm.Registry) *Server {
	return &Server{kv: store, orchestrator: orch, sessions: sessions, profiles: profiles, registry: registry}
}

// RegisterRoutes registers every route in spec.md §6 on router.
func (s *Server) RegisterRoutes(router *gin.Engine) {
	router.POST("/api/chat/message", s.handleChatMessage)
	router.POST("/api/chat/stream", s.handleChatStream)
	router.GET("/api/session/:user_id/current", s.handleSessionCurrent)
	router.POST("/api/session/:session_id/end", s.handleSessionEnd)
	router.GET("/api/session/:session_id/summary", s.handleSessionSummary)
	router.POST("/api/behavior", s.handleRecordBehavior)
	router.POST("/api/behaviors/batch", s.handleRecordBehaviorsBatch)
	router.GET("/api/behavior/analysis/:user_id", s.handleBehaviorAnalysis)
	router.GET("/api/behavior/stats/:user_id", s.handleBehaviorStats)
	router.GET("/health", s.handleHealth)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
}

func statusFor(err error) int {
	switch apperr.KindOf(err) {
	case apperr.Validation:
		return http.StatusBadRequest
	case apperr.NotFound:
		return http.StatusNotFound
	case apperr.AuthConfig:
		return http.StatusUnauthorized
	case apperr.RateLimited:
		return http.StatusTooManyRequests
	case apperr.Network, apperr.UpstreamBadResponse:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) fail(c *gin.Context, err error) {
	c.JSON(statusFor(err), gin.H{"success": false, "error": err.Error()})
}

type chatRequest struct {
	Message string `json:"message" binding:"required"`
	UserID  string `json:"user_id"`
}

func (r chatRequest) resolvedUserID() string {
	if r.UserID == "" {
		return "anonymous"
	}
	return r.UserID
}

func (s *Server) handleChatMessage(c *gin.Context) {
	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
		return
	}

	reply, err := s.orchestrator.Chat(c.Request.Context(), req.resolvedUserID(), req.Message)
	if err != nil {
		s.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":   true,
		"reply":     reply.Content,
		"timestamp": reply.Timestamp,
	})
}

func (s *Server) handleChatStream(c *gin.Context) {
	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")

	flusher, canFlush := c.Writer.(http.Flusher)

	err := s.orchestrator.Stream(c.Request.Context(), req.resolvedUserID(), req.Message, func(chunk llm.StreamChunk) {
		if chunk.Content != "" {
			fmt.Fprintf(c.Writer, "data: {\"chunk\": %q}\n\n", chunk.Content)
			if canFlush {
				flusher.Flush()
			}
		}
	})
	if err != nil {
		log.Log.Warnf("[Server] chat stream failed: %v", err)
		fmt.Fprintf(c.Writer, "data: {\"error\": %q}\n\n", err.Error())
		if canFlush {
			flusher.Flush()
		}
		return
	}

	fmt.Fprint(c.Writer, "data: [DONE]\n\n")
	if canFlush {
		flusher.Flush()
	}
}

func (s *Server) handleSessionCurrent(c *gin.Context) {
	userID := c.Param("user_id")

	sess, err := s.sessions.GetOrCreate(c.Request.Context(), userID)
	if err != nil {
		s.fail(c, err)
		return
	}

	messages, err := s.sessions.GetContext(c.Request.Context(), sess.SessionID, recentMessagesOnCurrent)
	if err != nil {
		s.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"session_id":     sess.SessionID,
		"status":         sess.Status,
		"start_time":     sess.StartTime,
		"last_active":    sess.LastActive,
		"message_count":  sess.MessageCount,
		"recent_messages": messages,
	})
}

func (s *Server) handleSessionEnd(c *gin.Context) {
	sessionID := c.Param("session_id")

	if err := s.sessions.End(c.Request.Context(), sessionID); err != nil {
		s.fail(c, err)
		return
	}
	if err := s.sessions.MarkForSummary(c.Request.Context(), sessionID); err != nil {
		log.Log.Warnf("[Server] queue session %s for summary: %v", sessionID, err)
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "status": "ended", "queued_for_summary": true})
}

func (s *Server) handleSessionSummary(c *gin.Context) {
	sessionID := c.Param("session_id")

	summary, ok, err := s.sessions.GetSummary(c.Request.Context(), sessionID)
	if err != nil {
		s.fail(c, err)
		return
	}
	if !ok {
		c.JSON(http.StatusOK, gin.H{"ready": false, "message": "not yet summarized"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"ready": true, "summary": summary})
}

type behaviorRequest struct {
	UserID       string                 `json:"user_id" binding:"required"`
	BehaviorType string                 `json:"behavior_type" binding:"required"`
	Metadata     map[string]interface{} `json:"metadata"`
}

func (s *Server) handleRecordBehavior(c *gin.Context) {
	var req behaviorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
		return
	}

	if err := s.profiles.RecordBehavior(c.Request.Context(), req.UserID, req.BehaviorType, req.Metadata); err != nil {
		s.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}

type behaviorBatchRequest struct {
	Behaviors []behaviorRequest `json:"behaviors" binding:"required"`
}

func (s *Server) handleRecordBehaviorsBatch(c *gin.Context) {
	var req behaviorBatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
		return
	}

	recorded := 0
	for _, ev := range req.Behaviors {
		if err := s.profiles.RecordBehavior(c.Request.Context(), ev.UserID, ev.BehaviorType, ev.Metadata); err != nil {
			log.Log.Warnf("[Server] record batched behavior for %s: %v", ev.UserID, err)
			continue
		}
		recorded++
	}

	c.JSON(http.StatusOK, gin.H{"recorded": recorded, "total": len(req.Behaviors)})
}

func (s *Server) handleBehaviorAnalysis(c *gin.Context) {
	userID := c.Param("user_id")

	events, err := s.profiles.GetBehaviors(c.Request.Context(), userID)
	if err != nil {
		s.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, behavior.GenerateBehaviorSummary(events))
}

func (s *Server) handleBehaviorStats(c *gin.Context) {
	userID := c.Param("user_id")

	events, err := s.profiles.GetBehaviors(c.Request.Context(), userID)
	if err != nil {
		s.fail(c, err)
		return
	}

	counts := map[string]int{}
	for _, e := range events {
		counts[e.Type]++
	}

	patterns := behavior.AnalyzeInteractionPatterns(events)
	c.JSON(http.StatusOK, gin.H{
		"total":   len(events),
		"counts":  counts,
		"top5":    topFiveTypes(counts),
		"summary": patterns,
	})
}

func topFiveTypes(counts map[string]int) []string {
	type kv struct {
		key   string
		count int
	}
	entries := make([]kv, 0, len(counts))
	for k, v := range counts {
		entries = append(entries, kv{k, v})
	}
	for i := 1; i < len(entries); i++ {
		for j := i; j > 0 && (entries[j].count > entries[j-1].count ||
			(entries[j].count == entries[j-1].count && entries[j].key < entries[j-1].key)); j-- {
			entries[j], entries[j-1] = entries[j-1], entries[j]
		}
	}
	if len(entries) > 5 {
		entries = entries[:5]
	}
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.key
	}
	return out
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"providers": s.registry.Providers(),
		"kv":        s.kv.Info(c.Request.Context()),
	})
}
