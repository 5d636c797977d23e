// Package inference implements the Rule Inference (C6) and LLM Inference
// (C7) pipelines: deterministic keyword scoring over chat text, and the
// two defensive LLM prompt templates.
package inference

import (
	"sort"
	"strconv"
	"strings"

	"github.com/click-gz/deskpet-backend/model"
)

var occupationKeywords = map[string][]string{
	"程序员":  {"编程", "代码", "bug", "调试", "开发", "算法", "github", "python", "java"},
	"学生":   {"作业", "考试", "老师", "同学", "课程", "学校", "论文", "考研"},
	"设计师":  {"设计", "UI", "UX", "配色", "排版", "ps", "ai", "figma"},
	"产品经理": {"需求", "产品", "用户体验", "功能", "迭代", "PRD"},
	"教师":   {"学生", "教学", "课堂", "备课", "教案", "家长"},
	"医生":   {"患者", "病历", "诊断", "治疗", "医院", "科室"},
	"销售":   {"客户", "业绩", "销售", "订单", "市场", "推广"},
	"自媒体":  {"粉丝", "流量", "视频", "文章", "up主", "博主"},
	"运营":   {"用户运营", "活动", "增长", "拉新", "留存", "转化"},
}

var interestKeywords = map[string][]string{
	"科技": {"科技", "AI", "人工智能", "机器学习", "编程", "数码", "电子产品"},
	"游戏": {"游戏", "打游戏", "王者", "吃鸡", "英雄联盟", "原神", "steam"},
	"动漫": {"动漫", "番剧", "二次元", "B站", "追番", "漫画", "cos"},
	"音乐": {"音乐", "歌曲", "听歌", "音乐会", "演唱会", "乐队"},
	"阅读": {"读书", "小说", "书籍", "阅读", "看书", "文学"},
	"运动": {"运动", "健身", "跑步", "篮球", "足球", "游泳", "瑜伽"},
	"旅游": {"旅游", "旅行", "景点", "度假", "出国", "打卡"},
	"美食": {"美食", "吃货", "火锅", "烧烤", "餐厅", "做饭", "烹饪"},
	"电影": {"电影", "影院", "看电影", "影视", "导演", "演员"},
	"摄影": {"摄影", "拍照", "相机", "镜头", "照片", "后期"},
}

var ageIndicators = map[string][]string{
	"18-24": {"大学", "考研", "毕业", "校园", "室友", "宿舍", "社团"},
	"25-30": {"工作", "加班", "同事", "跳槽", "职场", "升职"},
	"31-40": {"结婚", "孩子", "房贷", "车贷", "家庭", "父母"},
	"40+":   {"养生", "健康", "退休", "保健", "儿女"},
}

var genderIndicators = map[string][]string{
	"male":   {"哥们", "兄弟", "老铁", "篮球", "足球", "游戏", "码农"},
	"female": {"姐妹", "小姐姐", "护肤", "化妆", "逛街", "包包", "美甲"},
}

var educationKeywords = []struct {
	label    string
	keywords []string
}{
	{"博士", []string{"博士", "PhD", "读博", "博导"}},
	{"硕士", []string{"硕士", "研究生", "考研", "导师"}},
	{"本科", []string{"本科", "大学", "学士", "大学生"}},
	{"专科", []string{"专科", "大专"}},
}

var formalIndicators = []string{"请问", "您好", "谢谢", "麻烦", "不好意思"}
var casualIndicators = []string{"哈哈", "嘿嘿", "啊", "呀", "哦", "嗯"}

var positiveWords = []string{"开心", "高兴", "快乐", "哈哈", "喜欢", "爱", "棒", "好", "赞", "不错", "太好了"}
var negativeWords = []string{"难过", "伤心", "生气", "烦", "累", "讨厌", "糟糕", "不好", "失望"}
var anxiousWords = []string{"焦虑", "紧张", "担心", "害怕", "不安", "压力"}

// RuleResult is the full output of the rule-inference pass over a message
// batch (spec.md §4.6).
type RuleResult struct {
	Occupation         model.InferenceField
	AgeRange           model.InferenceField
	Gender             model.InferenceField
	Interests          []WeightedInterest
	Education          model.InferenceField
	CommunicationStyle CommunicationStyle
	EmotionalPattern   EmotionalPattern
}

// WeightedInterest is one extracted interest tag with its weight in [0,1].
type WeightedInterest struct {
	Label  string
	Weight float64
}

// CommunicationStyle captures spec.md §4.6's style metrics.
type CommunicationStyle struct {
	AvgMessageLength          int
	EmojiFrequency            string
	QuestionTendency          float64
	ExcitementLevel           float64
	Formality                 string
	ResponseLengthPreference  string
}

// EmotionalPattern captures spec.md §4.6's emotional metrics.
type EmotionalPattern struct {
	PositiveRatio       float64
	EmotionalStability  float64
	StressLevel         string
	AnxietyIndicators    int
}

// ToMap renders the style for persistence as the profile's
// communication_style field (original_source's analyze_communication_style
// result, flattened to strings for the profile's map[string]string shape).
func (cs CommunicationStyle) ToMap() map[string]string {
	return map[string]string{
		"avg_message_length":         strconv.Itoa(cs.AvgMessageLength),
		"emoji_frequency":            cs.EmojiFrequency,
		"question_tendency":          strconv.FormatFloat(cs.QuestionTendency, 'f', 2, 64),
		"excitement_level":           strconv.FormatFloat(cs.ExcitementLevel, 'f', 2, 64),
		"formality":                  cs.Formality,
		"response_length_preference": cs.ResponseLengthPreference,
	}
}

// ToMap renders the pattern for persistence as the profile's
// emotional_pattern field (original_source's analyze_emotional_patterns).
func (ep EmotionalPattern) ToMap() map[string]string {
	return map[string]string{
		"positive_ratio":      strconv.FormatFloat(ep.PositiveRatio, 'f', 2, 64),
		"emotional_stability": strconv.FormatFloat(ep.EmotionalStability, 'f', 2, 64),
		"stress_level":        ep.StressLevel,
		"anxiety_indicators":  strconv.Itoa(ep.AnxietyIndicators),
	}
}

func userTexts(messages []model.ChatMessage) []string {
	var out []string
	for _, m := range messages {
		if m.Role == "user" {
			out = append(out, m.Content)
		}
	}
	return out
}

// InferFromMessages runs the full rule-inference pipeline (spec.md §4.6).
func InferFromMessages(messages []model.ChatMessage) RuleResult {
	texts := userTexts(messages)
	combined := strings.Join(texts, " ")

	return RuleResult{
		Occupation:         inferOccupation(combined),
		AgeRange:           inferAgeRange(combined),
		Gender:             inferGender(combined),
		Interests:          extractInterests(combined),
		Education:          inferEducation(combined),
		CommunicationStyle: analyzeCommunicationStyle(texts),
		EmotionalPattern:   analyzeEmotionalPattern(texts),
	}
}

func countOccurrences(text, keyword string) int {
	if keyword == "" {
		return 0
	}
	return strings.Count(text, keyword)
}

func inferOccupation(text string) model.InferenceField {
	scores := make(map[string]int, len(occupationKeywords))
	total := 0
	for occ, keywords := range occupationKeywords {
		score := 0
		for _, kw := range keywords {
			score += countOccurrences(text, kw)
		}
		scores[occ] = score
		total += score
	}
	best, bestScore := bestOf(scores)
	if bestScore < 3 {
		return model.InferenceField{}
	}
	confidence := float64(bestScore) / float64(total)
	if confidence > 0.9 {
		confidence = 0.9
	}
	return model.InferenceField{Value: best, Confidence: confidence}
}

func inferAgeRange(text string) model.InferenceField {
	scores := make(map[string]int, len(ageIndicators))
	for band, keywords := range ageIndicators {
		hits := 0
		for _, kw := range keywords {
			if strings.Contains(text, kw) {
				hits++
			}
		}
		scores[band] = hits
	}
	best, bestScore := bestOf(scores)
	if bestScore < 2 {
		return model.InferenceField{}
	}
	confidence := float64(bestScore) * 0.2
	if confidence > 0.8 {
		confidence = 0.8
	}
	return model.InferenceField{Value: best, Confidence: confidence}
}

func inferGender(text string) model.InferenceField {
	male := 0
	for _, kw := range genderIndicators["male"] {
		if strings.Contains(text, kw) {
			male++
		}
	}
	female := 0
	for _, kw := range genderIndicators["female"] {
		if strings.Contains(text, kw) {
			female++
		}
	}
	if male == 0 && female == 0 {
		return model.InferenceField{Value: "unknown"}
	}
	if male == female {
		return model.InferenceField{Value: "unknown"}
	}
	if male > female {
		conf := float64(male) / float64(male+female)
		if conf > 0.7 {
			conf = 0.7
		}
		return model.InferenceField{Value: "male", Confidence: conf}
	}
	conf := float64(female) / float64(male+female)
	if conf > 0.7 {
		conf = 0.7
	}
	return model.InferenceField{Value: "female", Confidence: conf}
}

func extractInterests(text string) []WeightedInterest {
	var out []WeightedInterest
	for label, keywords := range interestKeywords {
		hits := 0
		for _, kw := range keywords {
			if strings.Contains(text, kw) {
				hits++
			}
		}
		if hits >= 2 {
			weight := float64(hits) * 0.1
			if weight > 1.0 {
				weight = 1.0
			}
			out = append(out, WeightedInterest{Label: label, Weight: weight})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Weight != out[j].Weight {
			return out[i].Weight > out[j].Weight
		}
		return out[i].Label < out[j].Label // deterministic tiebreak
	})
	if len(out) > 5 {
		out = out[:5]
	}
	return out
}

func inferEducation(text string) model.InferenceField {
	for _, e := range educationKeywords {
		for _, kw := range e.keywords {
			if strings.Contains(text, kw) {
				return model.InferenceField{Value: e.label, Confidence: 0.7}
			}
		}
	}
	return model.InferenceField{}
}

func bestOf(scores map[string]int) (string, int) {
	keys := make([]string, 0, len(scores))
	for k := range scores {
		keys = append(keys, k)
	}
	sort.Strings(keys) // deterministic iteration before picking max
	best := ""
	bestScore := -1
	for _, k := range keys {
		if scores[k] > bestScore {
			best, bestScore = k, scores[k]
		}
	}
	return best, bestScore
}

func analyzeCommunicationStyle(texts []string) CommunicationStyle {
	if len(texts) == 0 {
		return CommunicationStyle{}
	}
	n := float64(len(texts))

	totalLen := 0
	questionMarks := 0
	exclamationMarks := 0
	formalCount := 0
	casualCount := 0
	emojiCount := 0

	for _, t := range texts {
		totalLen += runeLen(t)
		questionMarks += strings.Count(t, "?") + strings.Count(t, "？")
		exclamationMarks += strings.Count(t, "!") + strings.Count(t, "！")
		for _, w := range formalIndicators {
			formalCount += strings.Count(t, w)
		}
		for _, w := range casualIndicators {
			casualCount += strings.Count(t, w)
		}
		emojiCount += countEmoji(t)
	}

	avgLength := float64(totalLen) / n
	emojiRatio := float64(emojiCount) / n

	emojiFreq := "low"
	switch {
	case emojiRatio > 0.5:
		emojiFreq = "high"
	case emojiRatio > 0.2:
		emojiFreq = "medium"
	}

	formality := "casual"
	if formalCount > casualCount {
		formality = "formal"
	}

	lengthPref := "short"
	switch {
	case avgLength > 50:
		lengthPref = "detailed"
	case avgLength > 20:
		lengthPref = "medium"
	}

	return CommunicationStyle{
		AvgMessageLength:         int(avgLength),
		EmojiFrequency:           emojiFreq,
		QuestionTendency:         float64(questionMarks) / n,
		ExcitementLevel:          float64(exclamationMarks) / n,
		Formality:                formality,
		ResponseLengthPreference: lengthPref,
	}
}

func analyzeEmotionalPattern(texts []string) EmotionalPattern {
	if len(texts) == 0 {
		return EmotionalPattern{}
	}
	n := float64(len(texts))

	positive, negative, anxious := 0, 0, 0
	for _, t := range texts {
		for _, w := range positiveWords {
			positive += strings.Count(t, w)
		}
		for _, w := range negativeWords {
			negative += strings.Count(t, w)
		}
		for _, w := range anxiousWords {
			anxious += strings.Count(t, w)
		}
	}

	total := positive + negative + anxious
	if total == 0 {
		return EmotionalPattern{
			PositiveRatio:      0.5,
			EmotionalStability: round2(1 - float64(negative)/n),
			StressLevel:        "low",
			AnxietyIndicators:  anxious,
		}
	}

	positiveRatio := float64(positive) / float64(total)
	anxietyRate := float64(anxious) / n
	stress := "low"
	switch {
	case anxietyRate > 0.5:
		stress = "high"
	case anxietyRate > 0.2:
		stress = "medium"
	}

	return EmotionalPattern{
		PositiveRatio:      round2(positiveRatio),
		EmotionalStability: round2(1 - float64(negative)/n),
		StressLevel:        stress,
		AnxietyIndicators:  anxious,
	}
}

func round2(v float64) float64 {
	return float64(int(v*100+0.5)) / 100
}

func runeLen(s string) int {
	return len([]rune(s))
}

// countEmoji counts runes falling in the common pictographic/emoji blocks,
// matching original_source's emoji regex ranges.
func countEmoji(s string) int {
	count := 0
	for _, r := range s {
		switch {
		case r >= 0x1F600 && r <= 0x1F64F, // emoticons
			r >= 0x1F300 && r <= 0x1F5FF, // symbols & pictographs
			r >= 0x1F680 && r <= 0x1F6FF, // transport & map
			r >= 0x1F1E0 && r <= 0x1F1FF: // flags
			count++
		}
	}
	return count
}
