// Package worker implements the Background Worker (C8): a single
// cooperative ticker loop that drains the summary queue and refreshes
// stale profiles.
package worker

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/click-gz/deskpet-backend/inference"
	"github.com/click-gz/deskpet-backend/log"
	"github.com/click-gz/deskpet-backend/metrics"
	"github.com/click-gz/deskpet-backend/profile"
	"github.com/click-gz/deskpet-backend/session"
)

const (
	tickInterval           = 30 * time.Second
	minNewMessagesToSummarize = 3
	profileRefreshThrottle = 180 * time.Second
	minMessagesForDeepAnalysis = 8
	minMessagesForRuleInference = 2
	profileBatchSize       = 10
	intimacyProgressBonus  = 2
	stopJoinTimeout        = 5 * time.Second
)

// progressKeywords mirrors background_tasks.py's relationship_progress
// check ("进展" or "信任" present triggers an intimacy bonus).
var progressKeywords = []string{"进展", "信任"}

// Worker is the Background Worker (C8).
type Worker struct {
	sessions *session.Store
	profiles *profile.Store
	analyzer *inference.Analyzer

	mu       sync.Mutex
	running  bool
	stopChan chan struct{}
	doneChan chan struct{}
}

// New builds a Worker over the given stores and inference analyzer.
func New(sessions *session.Store, profiles *profile.Store, analyzer *inference.Analyzer) *Worker {
	return &Worker{sessions: sessions, profiles: profiles, analyzer: analyzer}
}

// Start launches the tick loop in a background goroutine. Calling Start
// on an already-running worker is a no-op.
func (w *Worker) Start(ctx context.Context) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		log.Log.Warnf("[Worker] already running")
		return
	}
	w.running = true
	w.stopChan = make(chan struct{})
	w.doneChan = make(chan struct{})
	go w.run(ctx)
	log.Log.Infof("[Worker] started | tick interval: %v", tickInterval)
}

// Stop cooperatively signals the loop to exit and waits up to 5 seconds
// for it to finish.
func (w *Worker) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	close(w.stopChan)
	w.running = false
	done := w.doneChan
	w.mu.Unlock()

	select {
	case <-done:
	case <-time.After(stopJoinTimeout):
		log.Log.Warnf("[Worker] stop timed out waiting for tick to finish")
	}
	log.Log.Infof("[Worker] stopped")
}

func (w *Worker) isStopping() bool {
	select {
	case <-w.stopChan:
		return true
	default:
		return false
	}
}

func (w *Worker) run(ctx context.Context) {
	defer close(w.doneChan)

	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			w.tick(ctx)
		case <-w.stopChan:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (w *Worker) tick(ctx context.Context) {
	start := time.Now()
	defer func() { metrics.WorkerTickDuration.Observe(time.Since(start).Seconds()) }()

	w.drainSummaryQueue(ctx)
	if w.isStopping() {
		return
	}
	w.refreshProfiles(ctx)
}

func (w *Worker) drainSummaryQueue(ctx context.Context) {
	tasks, err := w.sessions.GetSessionsToSummarize(ctx)
	if err != nil {
		log.Log.Errorf("[Worker] list summary queue: %v", err)
		return
	}

	for _, task := range tasks {
		if w.isStopping() {
			return
		}
		if err := w.summarizeOne(ctx, task.SessionID); err != nil {
			log.Log.Warnf("[Worker] summarize session %s failed, leaving in queue: %v", task.SessionID, err)
			metrics.SummariesProcessed.WithLabelValues("failed").Inc()
		}
	}
}

func (w *Worker) summarizeOne(ctx context.Context, sessionID string) error {
	sess, err := w.sessions.Get(ctx, sessionID)
	if err != nil {
		// Session is gone (expired); nothing to summarize.
		metrics.SummariesProcessed.WithLabelValues("skipped").Inc()
		return w.sessions.RemoveFromSummaryQueue(ctx, sessionID)
	}

	newContext, err := w.sessions.GetNewContext(ctx, sess)
	if err != nil {
		return err
	}
	if len(newContext) < minNewMessagesToSummarize {
		metrics.SummariesProcessed.WithLabelValues("skipped").Inc()
		return w.sessions.RemoveFromSummaryQueue(ctx, sessionID)
	}

	var previousContext string
	if prev, ok, err := w.sessions.GetSummary(ctx, sessionID); err == nil && ok {
		previousContext = prev.RelationshipProgress + " " + prev.PersonalityHints
	}

	summary := w.analyzer.SummarizeSession(ctx, newContext, strings.TrimSpace(previousContext))
	summary.GeneratedAt = time.Now().UTC()

	if len(summary.InterestsMentioned) > 0 {
		if err := w.profiles.AddInterestTags(ctx, sess.UserID, summary.InterestsMentioned); err != nil {
			log.Log.Warnf("[Worker] merge interests for %s: %v", sess.UserID, err)
		}
	}
	if hasProgressLanguage(summary.RelationshipProgress) {
		if _, _, err := w.profiles.UpdateIntimacy(ctx, sess.UserID, intimacyProgressBonus); err != nil {
			log.Log.Warnf("[Worker] intimacy bonus for %s: %v", sess.UserID, err)
		}
	}
	if summary.ContentFlag != "" {
		if err := w.profiles.RecordBehavior(ctx, sess.UserID, "content_flag", map[string]interface{}{
			"flag":       summary.ContentFlag,
			"session_id": sessionID,
		}); err != nil {
			log.Log.Warnf("[Worker] record content flag for %s: %v", sess.UserID, err)
		}
	}

	newIndex := sess.LastSummarizedIndex + len(newContext)
	if err := w.sessions.SaveSummary(ctx, sessionID, summary, newIndex); err != nil {
		return err
	}
	metrics.SummariesProcessed.WithLabelValues("summarized").Inc()
	return w.sessions.RemoveFromSummaryQueue(ctx, sessionID)
}

func hasProgressLanguage(text string) bool {
	for _, kw := range progressKeywords {
		if strings.Contains(text, kw) {
			return true
		}
	}
	return false
}

func (w *Worker) refreshProfiles(ctx context.Context) {
	userIDs, err := w.profiles.AllUserIDs(ctx)
	if err != nil {
		log.Log.Errorf("[Worker] list profile keys: %v", err)
		return
	}
	if len(userIDs) > profileBatchSize {
		userIDs = userIDs[:profileBatchSize]
	}

	for _, userID := range userIDs {
		if w.isStopping() {
			return
		}
		w.refreshOne(ctx, userID)
	}
}

func (w *Worker) refreshOne(ctx context.Context, userID string) {
	if last, found, err := w.profiles.LastProfileUpdate(ctx, userID); err == nil && found {
		if time.Since(last) < profileRefreshThrottle {
			return
		}
	}

	history, err := w.profiles.GetChatHistory(ctx, userID, 0)
	if err != nil {
		log.Log.Warnf("[Worker] get chat history for %s: %v", userID, err)
		return
	}
	if len(history) < minMessagesForRuleInference {
		if err := w.profiles.MarkProfileUpdated(ctx, userID); err != nil {
			log.Log.Warnf("[Worker] mark profile updated for %s: %v", userID, err)
		}
		return
	}

	result := inference.InferFromMessages(history)
	w.applyRuleResult(ctx, userID, result)

	if len(history) >= minMessagesForDeepAnalysis {
		behaviors, err := w.profiles.GetBehaviors(ctx, userID)
		if err != nil {
			log.Log.Warnf("[Worker] get behaviors for %s: %v", userID, err)
			behaviors = nil
		}
		analysis := w.analyzer.AnalyzeProfile(ctx, history, behaviors)
		if err := w.profiles.UpdateFromLLMAnalysis(ctx, userID, analysis); err != nil {
			log.Log.Warnf("[Worker] apply deep analysis for %s: %v", userID, err)
		}
	}

	if err := w.profiles.MarkProfileUpdated(ctx, userID); err != nil {
		log.Log.Warnf("[Worker] mark profile updated for %s: %v", userID, err)
	}
	metrics.ProfilesRefreshed.WithLabelValues("refreshed").Inc()
}

func (w *Worker) applyRuleResult(ctx context.Context, userID string, result inference.RuleResult) {
	if result.Education.Value != "" {
		if err := w.profiles.UpdatePersonalityTraits(ctx, userID, map[string]string{"education": result.Education.Value}); err != nil {
			log.Log.Warnf("[Worker] apply rule education trait for %s: %v", userID, err)
		}
	}

	var commStyle, emotionalPattern map[string]string
	if result.CommunicationStyle != (inference.CommunicationStyle{}) {
		commStyle = result.CommunicationStyle.ToMap()
	}
	if result.EmotionalPattern != (inference.EmotionalPattern{}) {
		emotionalPattern = result.EmotionalPattern.ToMap()
	}
	if err := w.profiles.UpdateFromRuleInference(ctx, userID, result.Occupation, result.AgeRange, result.Gender, commStyle, emotionalPattern); err != nil {
		log.Log.Warnf("[Worker] apply rule demographics for %s: %v", userID, err)
	}

	if len(result.Interests) > 0 {
		tags := make([]string, len(result.Interests))
		for i, in := range result.Interests {
			tags[i] = in.Label
		}
		if err := w.profiles.AddInterestTags(ctx, userID, tags); err != nil {
			log.Log.Warnf("[Worker] apply rule interests for %s: %v", userID, err)
		}
	}
}
