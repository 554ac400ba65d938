package controllers

import (
	"time"

	"github.com/studybuddy/tutor-backend/internal/config"
	"github.com/studybuddy/tutor-backend/internal/services"
)

const healthMessage = "AI Tutor Backend is running!"

// SystemController 健康检查、调试信息与指标
type SystemController struct {
	BaseController

	Config        *config.Config
	Generator     *services.GuardedGenerator
	Conversations *services.ConversationStore
	Transcripts   *services.TranscriptStore
	Worksheets    *services.WorksheetService
	Metrics       *services.MetricsService
}

// Index GET /
func (c *SystemController) Index() {
	c.OK(map[string]interface{}{
		"message":             healthMessage,
		"generatorConfigured": c.Generator.Configured(),
		"timestamp":           time.Now().UTC().Format(time.RFC3339),
		"activeConversations": c.Conversations.Len(),
	})
}

// Debug GET /debug
func (c *SystemController) Debug() {
	stats := c.Conversations.Stats()
	body := map[string]interface{}{
		"generator": map[string]interface{}{
			"configured": c.Generator.Configured(),
			"model":      c.Generator.Model(),
			"breaker":    c.Generator.Breaker().GetStats(),
		},
		"features": map[string]bool{
			"socraticMethod":     true,
			"topicDetection":     true,
			"contextCompaction":  true,
			"curriculumScaffold": true,
			"worksheetGenerator": c.Worksheets.Enabled(),
			"latex":              true,
			"docx":               true,
			"pdf":                true,
		},
		"conversations": map[string]interface{}{
			"active":        stats.TotalConversations,
			"totalMessages": stats.TotalMessages,
			"totalTokens":   stats.TotalTokens,
			"subjects":      stats.Subjects,
		},
		"transcriptUsers": c.Transcripts.Users(),
	}
	if c.Config != nil {
		body["env"] = c.Config.App.Env
		body["port"] = c.Config.Server.Port
		body["integrations"] = map[string]bool{
			"redis":   c.Config.Redis.Enabled,
			"kafka":   c.Config.Kafka.Enabled,
			"metrics": c.Config.Metrics.Enabled,
		}
	}
	if c.Errors != nil {
		body["topErrors"] = c.Errors.Monitor().GetTopErrors(5)
	}
	c.OK(body)
}

// Scrape GET /metrics
func (c *SystemController) Scrape() {
	c.Metrics.ServeHTTP(c.Ctx.ResponseWriter, c.Ctx.Request)
}
