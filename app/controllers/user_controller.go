package controllers

import (
	"github.com/studybuddy/tutor-backend/internal/services"
)

const (
	defaultTranscriptLimit = 20
	maxTranscriptLimit     = 100
)

// UserController 用量与学习记录
type UserController struct {
	BaseController

	Meter       *services.TokenMeter
	Transcripts *services.TranscriptStore
}

// Tokens GET /api/user/:userId/tokens
func (c *UserController) Tokens() {
	usage := c.Meter.GetUsage(c.Ctx.Input.Param(":userId"))
	c.OK(map[string]interface{}{
		"tokensUsed":  usage.Used,
		"tokensLimit": usage.Limit,
		"percentage":  usage.Percentage(),
	})
}

// TranscriptList GET /api/user/:userId/transcripts
func (c *UserController) TranscriptList() {
	limit, err := c.GetInt("limit", defaultTranscriptLimit)
	if err != nil || limit <= 0 {
		limit = defaultTranscriptLimit
	}
	if limit > maxTranscriptLimit {
		limit = maxTranscriptLimit
	}
	offset, err := c.GetInt("offset", 0)
	if err != nil || offset < 0 {
		offset = 0
	}

	entries, total := c.Transcripts.List(c.Ctx.Input.Param(":userId"), limit, offset)
	c.OK(map[string]interface{}{
		"transcripts": entries,
		"total":       total,
		"limit":       limit,
		"offset":      offset,
	})
}

// TranscriptStats GET /api/user/:userId/transcript-stats
func (c *UserController) TranscriptStats() {
	c.OK(c.Transcripts.Stats(c.Ctx.Input.Param(":userId")))
}
