// Package behavior implements the Behavior Analyzer (C10): pure
// statistical analysis over a user's recorded BehaviorEvent ring buffer.
package behavior

import (
	"sort"
	"time"

	"github.com/click-gz/deskpet-backend/model"
)

// InteractionPatterns summarizes how a user interacts with the pet.
type InteractionPatterns struct {
	TotalInteractions int     `json:"total_interactions"`
	ClickCount        int     `json:"click_count"`
	DragCount         int     `json:"drag_count"`
	ChatCount         int     `json:"chat_count"`
	StateChangeCount  int     `json:"state_change_count"`
	ClickRatio        float64 `json:"click_ratio"`
	DragRatio         float64 `json:"drag_ratio"`
	ChatRatio         float64 `json:"chat_ratio"`
	InteractionLevel  string  `json:"interaction_level"`
	InteractionStyle  string  `json:"interaction_style"`
}

// AnalyzeInteractionPatterns implements spec.md §4.10's
// analyze_interaction_patterns.
func AnalyzeInteractionPatterns(events []model.BehaviorEvent) InteractionPatterns {
	if len(events) == 0 {
		return InteractionPatterns{}
	}

	clicks := countType(events, "pet_click")
	drags := countType(events, "pet_drag")
	chats := countType(events, "chat_session")
	stateChanges := countType(events, "state_change")

	total := len(events)
	clickRatio := float64(clicks) / float64(total)
	dragRatio := float64(drags) / float64(total)
	chatRatio := float64(chats) / float64(total)

	return InteractionPatterns{
		TotalInteractions: total,
		ClickCount:        clicks,
		DragCount:         drags,
		ChatCount:         chats,
		StateChangeCount:  stateChanges,
		ClickRatio:        round2(clickRatio),
		DragRatio:         round2(dragRatio),
		ChatRatio:         round2(chatRatio),
		InteractionLevel:  interactionLevel(total, events),
		InteractionStyle:  interactionStyle(clickRatio, dragRatio, chatRatio),
	}
}

func countType(events []model.BehaviorEvent, t string) int {
	n := 0
	for _, e := range events {
		if e.Type == t {
			n++
		}
	}
	return n
}

func interactionLevel(total int, events []model.BehaviorEvent) string {
	timestamps := eventTimestamps(events)
	if len(timestamps) < 2 {
		if total < 10 {
			return "低"
		}
		return "中"
	}

	spanHours := timestamps[len(timestamps)-1].Sub(timestamps[0]).Hours()
	if spanHours == 0 {
		spanHours = 1
	}
	perHour := float64(total) / spanHours

	switch {
	case perHour > 10:
		return "极高"
	case perHour > 5:
		return "高"
	case perHour > 2:
		return "中"
	case perHour > 0.5:
		return "低"
	default:
		return "极低"
	}
}

func interactionStyle(clickRatio, dragRatio, chatRatio float64) string {
	switch {
	case chatRatio > 0.4:
		return "聊天型"
	case dragRatio > 0.3:
		return "操控型"
	case clickRatio > 0.5:
		return "互动型"
	default:
		return "观察型"
	}
}

func eventTimestamps(events []model.BehaviorEvent) []time.Time {
	var ts []time.Time
	for _, e := range events {
		if !e.Timestamp.IsZero() {
			ts = append(ts, e.Timestamp)
		}
	}
	sort.Slice(ts, func(i, j int) bool { return ts[i].Before(ts[j]) })
	return ts
}

// PersonalityFromBehavior is the behavior-derived qualitative trait set.
type PersonalityFromBehavior struct {
	Extraversion  string `json:"外向性"`
	ControlDesire string `json:"控制欲"`
	SocialNeed    string `json:"社交需求"`
	Patience      string `json:"耐心程度"`
	Engagement    string `json:"参与度"`
	UsageHabit    string `json:"使用习惯"`
	ChatPreference string `json:"聊天偏好"`
}

func metadataFloat(m map[string]interface{}, key string) float64 {
	if m == nil {
		return 0
	}
	switch v := m[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	}
	return 0
}

// InferPersonalityFromBehavior implements spec.md §4.10's
// infer_personality_from_behavior.
func InferPersonalityFromBehavior(events []model.BehaviorEvent) PersonalityFromBehavior {
	if len(events) == 0 {
		return PersonalityFromBehavior{}
	}

	dragEvents := filterType(events, "pet_drag")
	chatEvents := filterType(events, "chat_session")
	distinctTypes := distinctTypeCount(events)

	spanDays := timeSpanDays(events)

	interactionsPerDay := float64(len(events)) / spanDays
	extraversion := mapToLevel(interactionsPerDay, [3]float64{2, 5, 10})

	dragFreq := float64(len(dragEvents)) / float64(len(events))
	controlDesire := mapToLevel(dragFreq, [3]float64{0.1, 0.2, 0.4})

	chatFreq := float64(len(chatEvents)) / spanDays
	socialNeed := mapToLevel(chatFreq, [3]float64{0.5, 1, 2})

	var avgChatDuration float64
	var totalChatMessages float64
	if len(chatEvents) > 0 {
		var totalDuration float64
		for _, e := range chatEvents {
			totalDuration += metadataFloat(e.Metadata, "duration")
			totalChatMessages += metadataFloat(e.Metadata, "message_count")
		}
		avgChatDuration = totalDuration / float64(len(chatEvents)) / 1000
	}

	patience := mapToLevel(avgChatDuration, [3]float64{60, 180, 600})
	engagement := mapToLevel(float64(distinctTypes), [3]float64{2, 4, 6})

	return PersonalityFromBehavior{
		Extraversion:   extraversion,
		ControlDesire:  controlDesire,
		SocialNeed:     socialNeed,
		Patience:       patience,
		Engagement:     engagement,
		UsageHabit:     usageHabit(len(events), spanDays),
		ChatPreference: chatPreference(avgChatDuration, totalChatMessages),
	}
}

func filterType(events []model.BehaviorEvent, t string) []model.BehaviorEvent {
	var out []model.BehaviorEvent
	for _, e := range events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

func distinctTypeCount(events []model.BehaviorEvent) int {
	seen := map[string]struct{}{}
	for _, e := range events {
		seen[e.Type] = struct{}{}
	}
	return len(seen)
}

func timeSpanDays(events []model.BehaviorEvent) float64 {
	ts := eventTimestamps(events)
	if len(ts) < 2 {
		return 1.0
	}
	days := ts[len(ts)-1].Sub(ts[0]).Hours() / 24
	if days < 1.0 {
		return 1.0
	}
	return days
}

func mapToLevel(value float64, thresholds [3]float64) string {
	switch {
	case value >= thresholds[2]:
		return "高"
	case value >= thresholds[1]:
		return "中"
	case value >= thresholds[0]:
		return "低"
	default:
		return "极低"
	}
}

func usageHabit(totalEvents int, spanDays float64) string {
	perDay := float64(totalEvents) / spanDays
	switch {
	case perDay > 20:
		return "重度用户"
	case perDay > 10:
		return "活跃用户"
	case perDay > 5:
		return "中度用户"
	case perDay > 1:
		return "轻度用户"
	default:
		return "偶尔使用"
	}
}

func chatPreference(avgDuration, totalMessages float64) string {
	switch {
	case avgDuration > 600:
		return "深度交流型"
	case avgDuration > 300:
		return "正常交流型"
	case avgDuration > 60:
		return "快速交流型"
	case totalMessages > 0:
		return "简短交流型"
	default:
		return "很少聊天"
	}
}

// TimePatterns summarizes when a user tends to interact.
type TimePatterns struct {
	PeakHours         []int          `json:"peak_hours"`
	PeakDays          []string       `json:"peak_days"`
	TimePattern       string         `json:"time_pattern"`
	TotalActiveHours  int            `json:"total_active_hours"`
	MostActiveHour    *int           `json:"most_active_hour,omitempty"`
	HourDistribution  map[int]int    `json:"hour_distribution"`
}

var dayNames = [7]string{"周一", "周二", "周三", "周四", "周五", "周六", "周日"}

// AnalyzeActiveTimePatterns implements spec.md §4.10's
// analyze_active_time_patterns.
func AnalyzeActiveTimePatterns(events []model.BehaviorEvent) TimePatterns {
	var hours []int
	var weekdays []int
	for _, e := range events {
		if e.Timestamp.IsZero() {
			continue
		}
		hours = append(hours, e.Timestamp.Hour())
		// Go's Weekday: Sunday=0..Saturday=6; convert to Monday=0..Sunday=6.
		wd := (int(e.Timestamp.Weekday()) + 6) % 7
		weekdays = append(weekdays, wd)
	}
	if len(hours) == 0 {
		return TimePatterns{}
	}

	hourCounts := counter(hours)
	dayCounts := counter(weekdays)

	peakHours := topN(hourCounts, 3)
	peakDayIdx := topN(dayCounts, 3)
	peakDays := make([]string, 0, len(peakDayIdx))
	for _, d := range peakDayIdx {
		if d >= 0 && d < 7 {
			peakDays = append(peakDays, dayNames[d])
		}
	}

	distinctHours := map[int]struct{}{}
	for _, h := range hours {
		distinctHours[h] = struct{}{}
	}

	mostActive := topN(hourCounts, 1)
	var mostActivePtr *int
	if len(mostActive) > 0 {
		h := mostActive[0]
		mostActivePtr = &h
	}

	return TimePatterns{
		PeakHours:        peakHours,
		PeakDays:         peakDays,
		TimePattern:      inferTimePattern(hours),
		TotalActiveHours: len(distinctHours),
		MostActiveHour:   mostActivePtr,
		HourDistribution: hourCounts,
	}
}

func counter(values []int) map[int]int {
	m := map[int]int{}
	for _, v := range values {
		m[v]++
	}
	return m
}

// topN returns the n keys with the highest counts, ties broken by key
// ascending for determinism (Counter.most_common ties are insertion-order
// in Python; a fixed deterministic order is used here instead).
func topN(counts map[int]int, n int) []int {
	keys := make([]int, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if counts[keys[i]] != counts[keys[j]] {
			return counts[keys[i]] > counts[keys[j]]
		}
		return keys[i] < keys[j]
	})
	if len(keys) > n {
		keys = keys[:n]
	}
	return keys
}

func inferTimePattern(hours []int) string {
	if len(hours) == 0 {
		return "未知"
	}
	var morning, afternoon, evening, night int
	for _, h := range hours {
		switch {
		case h >= 6 && h < 12:
			morning++
		case h >= 12 && h < 18:
			afternoon++
		case h >= 18 && h < 24:
			evening++
		default:
			night++
		}
	}
	total := float64(len(hours))
	switch {
	case float64(evening)/total > 0.4:
		return "夜猫子型"
	case float64(morning)/total > 0.4:
		return "早起型"
	case float64(afternoon)/total > 0.4:
		return "白天型"
	case float64(night)/total > 0.3:
		return "深夜型"
	default:
		return "全天分散型"
	}
}

// StatePreferences summarizes pet-state transition behavior.
type StatePreferences struct {
	TotalStateChanges     int            `json:"total_state_changes"`
	FavoriteState         string         `json:"favorite_state,omitempty"`
	StatePreferenceCounts map[string]int `json:"state_preferences"`
	StateChangeFrequency  float64        `json:"state_change_frequency"`
}

// AnalyzeStatePreferences implements spec.md §4.10's
// analyze_state_preferences.
func AnalyzeStatePreferences(events []model.BehaviorEvent) StatePreferences {
	changes := filterType(events, "state_change")
	if len(changes) == 0 {
		return StatePreferences{}
	}

	toCounts := map[string]int{}
	for _, e := range changes {
		if to, ok := e.Metadata["to_state"].(string); ok && to != "" {
			toCounts[to]++
		}
	}

	favorite := ""
	best := -1
	keys := make([]string, 0, len(toCounts))
	for k := range toCounts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if toCounts[k] > best {
			favorite, best = k, toCounts[k]
		}
	}

	return StatePreferences{
		TotalStateChanges:     len(changes),
		FavoriteState:         favorite,
		StatePreferenceCounts: toCounts,
		StateChangeFrequency:  round2(float64(len(changes)) / float64(len(events))),
	}
}

// Engagement is the weighted four-component engagement score.
type Engagement struct {
	Score     float64            `json:"score"`
	Level     string             `json:"level"`
	Breakdown map[string]float64 `json:"breakdown"`
}

// CalculateEngagementScore implements spec.md §4.10's
// calculate_engagement_score.
func CalculateEngagementScore(events []model.BehaviorEvent) Engagement {
	if len(events) == 0 {
		return Engagement{Level: "无"}
	}

	interactionScore := min1(float64(len(events))/100) * 30

	distinctTypes := distinctTypeCount(events)
	diversityScore := min1(float64(distinctTypes)/8) * 20

	spanDays := timeSpanDays(events)
	timeScore := min1(spanDays/30) * 20

	chatEvents := filterType(events, "chat_session")
	var chatScore float64
	if len(chatEvents) > 0 {
		var totalMessages float64
		for _, e := range chatEvents {
			totalMessages += metadataFloat(e.Metadata, "message_count")
		}
		chatScore = min1(totalMessages/50) * 30
	}

	total := interactionScore + diversityScore + timeScore + chatScore

	level := "极低"
	switch {
	case total >= 80:
		level = "极高"
	case total >= 60:
		level = "高"
	case total >= 40:
		level = "中"
	case total >= 20:
		level = "低"
	}

	return Engagement{
		Score: round2(total),
		Level: level,
		Breakdown: map[string]float64{
			"interaction": round2(interactionScore),
			"diversity":   round2(diversityScore),
			"time_span":   round2(timeScore),
			"chat_depth":  round2(chatScore),
		},
	}
}

func min1(v float64) float64 {
	if v > 1.0 {
		return 1.0
	}
	return v
}

// Summary is the full per-user behavior analysis bundle (spec.md §4.10's
// generate_behavior_summary).
type Summary struct {
	TotalBehaviors      int                     `json:"total_behaviors"`
	InteractionPatterns InteractionPatterns     `json:"interaction_patterns"`
	PersonalityTraits   PersonalityFromBehavior `json:"personality_traits"`
	TimePatterns        TimePatterns            `json:"time_patterns"`
	StatePreferences    StatePreferences        `json:"state_preferences"`
	Engagement          Engagement              `json:"engagement"`
}

// GenerateBehaviorSummary composes the full analysis bundle.
func GenerateBehaviorSummary(events []model.BehaviorEvent) Summary {
	if len(events) == 0 {
		return Summary{}
	}
	return Summary{
		TotalBehaviors:      len(events),
		InteractionPatterns: AnalyzeInteractionPatterns(events),
		PersonalityTraits:   InferPersonalityFromBehavior(events),
		TimePatterns:        AnalyzeActiveTimePatterns(events),
		StatePreferences:    AnalyzeStatePreferences(events),
		Engagement:          CalculateEngagementScore(events),
	}
}

func round2(v float64) float64 {
	return float64(int(v*100+0.5)) / 100
}
