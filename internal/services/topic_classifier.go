package services

import (
	"regexp"
	"strings"

	"github.com/studybuddy/tutor-backend/internal/models"
)

// topicPattern 话题关键词表项，顺序决定平分时的优先级
type topicPattern struct {
	Topic    string
	Keywords []string
}

var topicPatterns = []topicPattern{
	{Topic: "Algebra", Keywords: []string{"equation", "solve", "x", "y", "variable", "algebra", "=", "unknown"}},
	{Topic: "Geometry", Keywords: []string{"angle", "triangle", "area", "perimeter", "shape", "circle", "rectangle"}},
	{Topic: "Fractions", Keywords: []string{"fraction", "decimal", "percentage", "/", "percent", "ratio"}},
	{Topic: "Number Operations", Keywords: []string{"add", "subtract", "multiply", "divide", "division", "multiplication", "times", "plus", "minus"}},
	{Topic: "Indices", Keywords: []string{"power", "exponent", "square", "cube", "^", "index", "indices"}},
	{Topic: "Statistics", Keywords: []string{"data", "graph", "mean", "median", "average", "mode", "range"}},
	{Topic: "Number Theory", Keywords: []string{"prime", "factor", "multiple", "divisible", "remainder"}},
}

var followUpPatterns = []*regexp.Regexp{
	regexp.MustCompile(`^\d+$`),
	regexp.MustCompile(`^(yes|no|ok|right|correct|wrong)$`),
	regexp.MustCompile(`^(we|do|can|should|will|then|next|now|it|this|that)`),
	regexp.MustCompile(`^[+\-*/=().\d\s]+$`),
}

var (
	homeworkHelpPhrases = []string{"help with homework", "homework help", "need help with", "stuck on homework"}
	offTopicMarkers     = []string{"religion", "politics", "dating", "video games", "movies", "do my homework for me"}
	mathKeywords        = []string{
		"math", "equation", "solve", "calculate", "find", "answer", "result",
		"x", "y", "z", "n", "+", "-", "=", "*", "/", "^",
		"formula", "problem", "number", "digit", "value", "solution",
		"add", "subtract", "multiply", "divide", "division", "multiplication", "addition", "subtraction",
		"fraction", "decimal", "percent", "ratio", "proportion", "area", "perimeter", "angle",
		"triangle", "square", "circle", "graph", "plot", "data", "mean", "median", "mode",
		"algebra", "geometry", "statistics", "probability", "factor", "multiple", "prime",
		"how", "what", "why", "when", "where", "which", "can you", "help",
		"stuck", "confused", "understand", "explain", "show", "work out",
	}
	shortFollowUpWords = []string{"it", "this", "that", "we", "do", "can", "should", "will", "then", "next", "now"}

	mathSymbolPattern = regexp.MustCompile(`[\d+\-*/=^()]`)
)

// TopicClassifier 数学话题分类器，无状态
type TopicClassifier struct{}

// NewTopicClassifier 创建话题分类器
func NewTopicClassifier() *TopicClassifier {
	return &TopicClassifier{}
}

// Classify 对消息打分并返回得分最高的话题；延续性消息保留上一个话题
func (c *TopicClassifier) Classify(message, priorTopic string) string {
	if IsLikelyContinuation(message, priorTopic) {
		return priorTopic
	}

	msg := strings.ToLower(message)
	best := models.DefaultTopic
	bestScore := 0
	for _, p := range topicPatterns {
		score := 0
		for _, k := range p.Keywords {
			if strings.Contains(msg, k) {
				score++
			}
		}
		if score > bestScore {
			bestScore = score
			best = p.Topic
		}
	}
	return best
}

// IsLikelyContinuation 判断消息是否是对上一个话题的简短跟进
func IsLikelyContinuation(message, priorTopic string) bool {
	if priorTopic == "" || priorTopic == models.DefaultTopic {
		return false
	}

	msg := strings.ToLower(message)
	if len(msg) < 15 {
		return true
	}

	trimmed := strings.TrimSpace(msg)
	for _, re := range followUpPatterns {
		if re.MatchString(trimmed) {
			return true
		}
	}
	return false
}

// IsOnTopic 宽松的数学相关性判断
func (c *TopicClassifier) IsOnTopic(message string) bool {
	msg := strings.ToLower(message)

	if containsAny(msg, homeworkHelpPhrases) {
		return true
	}
	// 数字和运算符号优先于屏蔽词
	if mathSymbolPattern.MatchString(msg) {
		return true
	}
	if containsAny(msg, offTopicMarkers) {
		return false
	}
	if containsAny(msg, mathKeywords) {
		return true
	}
	if len(msg) < 20 && containsAny(msg, shortFollowUpWords) {
		return true
	}
	return false
}

func containsAny(s string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}
