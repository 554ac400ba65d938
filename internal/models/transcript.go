package models

import "time"

// TranscriptMetadata 学习记录元数据
type TranscriptMetadata struct {
	Subject         string `json:"subject"`
	DetectedTopic   string `json:"detectedTopic"`
	YearLevel       int    `json:"yearLevel"`
	Curriculum      string `json:"curriculum"`
	TokensUsed      int    `json:"tokensUsed"`
	ConversationKey string `json:"conversationKey"`
}

// TranscriptEntry 学习记录（只追加，不修改）
type TranscriptEntry struct {
	ID        string             `json:"id"`
	UserID    string             `json:"userId"`
	Timestamp time.Time          `json:"timestamp"`
	Message   string             `json:"message"`
	Response  string             `json:"response"`
	Metadata  TranscriptMetadata `json:"metadata"`
}

// TranscriptStats 学习记录统计
type TranscriptStats struct {
	TotalTranscripts int            `json:"totalTranscripts"`
	Last7DaysCount   int            `json:"last7DaysCount"`
	SubjectCounts    map[string]int `json:"subjectCounts"`
	TopicCounts      map[string]int `json:"topicCounts"`
}
