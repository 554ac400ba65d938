package services

import (
	"fmt"
	"sort"
	"strings"

	"github.com/studybuddy/tutor-backend/internal/curriculum"
)

const maxScaffolds = 3

// ScaffoldPriority 脚手架匹配优先级
type ScaffoldPriority int

const (
	PriorityLow ScaffoldPriority = iota + 1
	PriorityMedium
	PriorityHigh
)

func (p ScaffoldPriority) String() string {
	switch p {
	case PriorityHigh:
		return "HIGH"
	case PriorityMedium:
		return "MEDIUM"
	case PriorityLow:
		return "LOW"
	default:
		return "NONE"
	}
}

// PromptRequest 系统提示构建参数
type PromptRequest struct {
	Topic          string
	YearLevel      int
	Curriculum     string
	SelectedTopics []string
	Message        string
}

// ScaffoldMatch 命中的脚手架
type ScaffoldMatch struct {
	Scaffold curriculum.Scaffold
	TopicID  string
	Priority ScaffoldPriority
	order    int
}

// PromptBuilder 组装苏格拉底式系统提示
type PromptBuilder struct {
	table *curriculum.Table
}

// NewPromptBuilder 创建提示构建器
func NewPromptBuilder(table *curriculum.Table) *PromptBuilder {
	return &PromptBuilder{table: table}
}

// Build 生成系统提示
func (b *PromptBuilder) Build(req PromptRequest) string {
	var sb strings.Builder
	sb.WriteString(basePolicy(req))

	topics := b.focusTopics(req)
	if len(topics) > 0 {
		sb.WriteString("\n\nCURRICULUM FOCUS:")
		for _, t := range topics {
			fmt.Fprintf(&sb, "\n- %s: %s", t.Name, t.Description)
			if len(t.Subtopics) > 0 {
				fmt.Fprintf(&sb, "\n  Scope: %s", strings.Join(t.Subtopics, ", "))
			}
			if len(t.Misconceptions) > 0 {
				fmt.Fprintf(&sb, "\n  Watch for these misconceptions: %s", strings.Join(t.Misconceptions, " "))
			}
		}
	}

	for _, m := range b.MatchScaffolds(req) {
		fmt.Fprintf(&sb, "\n\nGUIDED STEPS (%s):", m.Scaffold.Name)
		for i, step := range m.Scaffold.Steps {
			fmt.Fprintf(&sb, "\n%d. %s", i+1, step)
		}
		sb.WriteString("\nMove through these steps one per turn, in order. Never skip ahead; wait for the student's answer before the next step.")
	}

	return sb.String()
}

// focusTopics 显式选择的话题优先，否则按分类标签映射
func (b *PromptBuilder) focusTopics(req PromptRequest) []curriculum.Topic {
	if b.table == nil {
		return nil
	}
	if len(req.SelectedTopics) > 0 {
		var out []curriculum.Topic
		seen := make(map[string]bool)
		for _, sel := range req.SelectedTopics {
			if t, ok := b.table.Lookup(sel); ok && !seen[t.ID] {
				seen[t.ID] = true
				out = append(out, t)
			}
		}
		return out
	}
	return b.table.ForLabel(req.Topic)
}

// MatchScaffolds 按优先级选出最多三个脚手架
func (b *PromptBuilder) MatchScaffolds(req PromptRequest) []ScaffoldMatch {
	if b.table == nil {
		return nil
	}

	msg := strings.ToLower(req.Message)
	selected := make(map[string]bool)
	for _, sel := range req.SelectedTopics {
		if t, ok := b.table.Lookup(sel); ok {
			selected[t.ID] = true
		}
	}

	best := make(map[string]ScaffoldMatch)
	order := 0
	for _, topic := range b.table.Topics {
		topicMatched := hasLabel(topic, req.Topic) || mentionsSubtopic(topic, msg)
		for _, s := range topic.Scaffolds {
			order++
			var p ScaffoldPriority
			switch {
			case msg != "" && containsAny(msg, lowerAll(s.Keywords)):
				p = PriorityHigh
			case selected[topic.ID]:
				p = PriorityMedium
			case topicMatched:
				p = PriorityLow
			default:
				continue
			}
			if cur, ok := best[s.Key]; !ok || p > cur.Priority {
				best[s.Key] = ScaffoldMatch{Scaffold: s, TopicID: topic.ID, Priority: p, order: order}
			}
		}
	}

	matches := make([]ScaffoldMatch, 0, len(best))
	for _, m := range best {
		matches = append(matches, m)
	}
	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Priority != matches[j].Priority {
			return matches[i].Priority > matches[j].Priority
		}
		return matches[i].order < matches[j].order
	})
	if len(matches) > maxScaffolds {
		matches = matches[:maxScaffolds]
	}
	return matches
}

func hasLabel(t curriculum.Topic, label string) bool {
	for _, l := range t.Labels {
		if strings.EqualFold(l, label) {
			return true
		}
	}
	return false
}

func mentionsSubtopic(t curriculum.Topic, msg string) bool {
	if msg == "" {
		return false
	}
	for _, s := range t.Subtopics {
		if strings.Contains(msg, strings.ToLower(s)) {
			return true
		}
	}
	return false
}

func lowerAll(in []string) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = strings.ToLower(s)
	}
	return out
}

func basePolicy(req PromptRequest) string {
	return fmt.Sprintf(`You are StudyBuddy, a %s Year %d mathematics tutor specializing in %s.

CORE PRINCIPLES:
- Use the Socratic method exclusively - NEVER give direct answers
- Ask guiding questions like "What do you notice?", "What happens if...?", "Can you tell me what this part means?"
- Break complex problems into tiny, manageable steps
- Wait for student responses before moving to the next step
- If student is stuck, give the tiniest hint possible, then ask another question
- Praise effort and thinking process, not just correct answers
- Keep responses under 80 words
- Stay focused on mathematics only
- Remember previous parts of our conversation to build understanding

CONVERSATION STYLE:
- Speak like you're explaining to a friend who's learning
- Use simple, clear language
- Be encouraging and patient
- Ask one question at a time
- Help them discover the answer themselves
- Use phrases like "What do you think?", "Can you spot a pattern?", "What would happen if...?"

EXAMPLE RESPONSES:
Instead of: "To solve 2x + 5 = 15, subtract 5 from both sides"
Say: "I see you have 2x + 5 = 15. What do you think we could do to get x by itself? What's the first step that comes to mind?"

Instead of: "The area of a circle is πr²"
Say: "Great question about circles! If you had a circle with radius 3, what do you think we'd need to know to find how much space it takes up?"

You maintain context of our entire conversation to guide learning progressively.`, req.Curriculum, req.YearLevel, req.Topic)
}
