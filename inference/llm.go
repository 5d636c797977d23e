package inference

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/click-gz/deskpet-backend/llm"
	"github.com/click-gz/deskpet-backend/log"
	"github.com/click-gz/deskpet-backend/model"
)

const rawAnalysisCap = 500

// Analyzer is the LLM Inference pipeline (C7): the two prompt templates
// against the Provider Registry, each defensively parsed.
type Analyzer struct {
	registry *llm.Registry
}

// NewAnalyzer builds an Analyzer over the given provider registry.
func NewAnalyzer(registry *llm.Registry) *Analyzer {
	return &Analyzer{registry: registry}
}

func extractJSONObject(text string) (string, bool) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return "", false
	}
	return text[start : end+1], true
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

func formatConversation(messages []model.ChatMessage) string {
	var b strings.Builder
	for _, m := range messages {
		role := "AI助手"
		if m.Role == "user" {
			role = "用户"
		}
		fmt.Fprintf(&b, "%s: %s\n", role, m.Content)
	}
	return b.String()
}

// SummarizeSession implements spec.md §4.7(a): the incremental session
// summarizer. previousSummaryContext may be empty for a first-ever call.
func (a *Analyzer) SummarizeSession(ctx context.Context, messages []model.ChatMessage, previousSummaryContext string) model.Summary {
	var contextSection string
	if previousSummaryContext != "" {
		contextSection = fmt.Sprintf(
			"【之前的对话总结】\n%s\n\n注意：以上是之前对话的总结，请参考这些信息来理解本次对话的连贯性。\n\n",
			previousSummaryContext,
		)
	}

	prompt := fmt.Sprintf(`%s请分析以下对话（本次新增内容），提取用户的关键信息：

%s
请以JSON格式输出分析结果，包含以下字段：
1. interests_mentioned: 对话中提到的用户兴趣爱好（列表，只包含本次新提到的）
2. personality_hints: 用户性格特点的线索
3. relationship_progress: 关系进展情况描述
4. topics_discussed: 讨论的主要话题（列表，只包含本次讨论的）
5. emotional_tone: 对话的情感基调
6. content_flag: 如果对话中出现辱骂、骚扰或其他不当内容，填写简短原因；否则留空字符串

重要：只需分析本次新增的对话内容，但可以参考之前的总结理解上下文连贯性。
仅输出JSON，不要其他说明。`, contextSection, formatConversation(messages))

	resp, err := a.registry.Send(ctx, []llm.Message{{Role: "user", Content: prompt}}, llm.DefaultOptions())
	if err != nil {
		log.Log.Warnf("[Inference] session summarizer call failed: %v", err)
		return model.Summary{}
	}

	var parsed struct {
		InterestsMentioned   []string `json:"interests_mentioned"`
		PersonalityHints     string   `json:"personality_hints"`
		RelationshipProgress string   `json:"relationship_progress"`
		TopicsDiscussed      []string `json:"topics_discussed"`
		EmotionalTone        string   `json:"emotional_tone"`
		ContentFlag          string   `json:"content_flag"`
	}

	jsonStr, found := extractJSONObject(resp.Content)
	if !found {
		return model.Summary{RawAnalysis: truncate(resp.Content, rawAnalysisCap)}
	}
	if err := json.Unmarshal([]byte(jsonStr), &parsed); err != nil {
		log.Log.Warnf("[Inference] session summarizer returned invalid JSON: %v", err)
		return model.Summary{RawAnalysis: truncate(resp.Content, rawAnalysisCap)}
	}

	return model.Summary{
		InterestsMentioned:   parsed.InterestsMentioned,
		PersonalityHints:     parsed.PersonalityHints,
		RelationshipProgress: parsed.RelationshipProgress,
		TopicsDiscussed:      parsed.TopicsDiscussed,
		EmotionalTone:        parsed.EmotionalTone,
		ContentFlag:          parsed.ContentFlag,
	}
}

func formatBehaviors(events []model.BehaviorEvent) string {
	var b strings.Builder
	limit := events
	if len(limit) > 20 {
		limit = limit[len(limit)-20:]
	}
	for _, e := range limit {
		fmt.Fprintf(&b, "- %s: %v\n", e.Type, e.Metadata)
	}
	return b.String()
}

// AnalyzeProfile implements spec.md §4.7(b): the deep profile analyzer.
func (a *Analyzer) AnalyzeProfile(ctx context.Context, history []model.ChatMessage, behaviors []model.BehaviorEvent) model.ProfileAnalysis {
	recent := history
	if len(recent) > 50 {
		recent = recent[len(recent)-50:]
	}

	var conv strings.Builder
	for _, m := range recent {
		role := "AI"
		if m.Role == "user" {
			role = "用户"
		}
		content := truncate(m.Content, 100)
		fmt.Fprintf(&conv, "%s: %s...\n", role, content)
	}

	prompt := fmt.Sprintf(`基于以下用户数据，进行深度画像分析：

【最近对话】
%s
【用户行为】
%s
请以JSON格式输出分析结果：
{
    "demographics": {"age_range": "", "gender": "", "occupation": "", "education": "", "location_hints": ""},
    "interest_tags": {"标签": 0.0},
    "personality": {"openness": 0.0, "conscientiousness": 0.0, "extraversion": 0.0, "agreeableness": 0.0, "neuroticism": 0.0},
    "current_mood": "",
    "communication_style": {"聊天风格": "描述", "话题偏好": "描述"},
    "motivations": {"companionship": 0.0, "productivity": 0.0, "entertainment": 0.0, "learning": 0.0, "emotional_support": 0.0},
    "advisory": "总体画像描述"
}

仅输出JSON，不要其他说明。`, conv.String(), formatBehaviors(behaviors))

	resp, err := a.registry.Send(ctx, []llm.Message{{Role: "user", Content: prompt}}, llm.DefaultOptions())
	if err != nil {
		log.Log.Warnf("[Inference] profile analyzer call failed: %v", err)
		return model.ProfileAnalysis{}
	}

	jsonStr, found := extractJSONObject(resp.Content)
	if !found {
		return model.ProfileAnalysis{Advisory: "", CommunicationStyle: map[string]string{"raw_analysis": truncate(resp.Content, rawAnalysisCap)}}
	}

	var analysis model.ProfileAnalysis
	if err := json.Unmarshal([]byte(jsonStr), &analysis); err != nil {
		log.Log.Warnf("[Inference] profile analyzer returned invalid JSON: %v", err)
		return model.ProfileAnalysis{CommunicationStyle: map[string]string{"raw_analysis": truncate(resp.Content, rawAnalysisCap)}}
	}

	return analysis
}
