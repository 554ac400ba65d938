package controllers

import (
	"time"

	"github.com/studybuddy/tutor-backend/internal/services"
)

const (
	resetMessage    = "Conversation context reset - ready for a fresh start!"
	notFoundMessage = "No existing conversation found"
)

type chatPayload struct {
	Message        string   `json:"message"`
	Subject        string   `json:"subject" validate:"max=100"`
	YearLevel      int      `json:"yearLevel" validate:"min=0,max=12"`
	Curriculum     string   `json:"curriculum" validate:"max=50"`
	UserID         string   `json:"userId" validate:"max=128"`
	SelectedTopics []string `json:"selectedTopics" validate:"max=20,dive,max=100"`
	ResetContext   bool     `json:"resetContext"`
}

type resetPayload struct {
	UserID    string `json:"userId" validate:"max=128"`
	Subject   string `json:"subject" validate:"max=100"`
	YearLevel int    `json:"yearLevel" validate:"min=0,max=12"`
}

// ConversationSummary 会话状态条目
type ConversationSummary struct {
	ID           string    `json:"id"`
	Subject      string    `json:"subject"`
	YearLevel    int       `json:"yearLevel"`
	Curriculum   string    `json:"curriculum"`
	MessageCount int       `json:"messageCount"`
	TotalTokens  int       `json:"totalTokens"`
	CreatedAt    time.Time `json:"createdAt"`
	LastActive   time.Time `json:"lastActive"`
	AgeInMinutes int       `json:"ageInMinutes"`
}

// ChatController 对话接口
type ChatController struct {
	BaseController

	Orchestrator  *services.ChatOrchestrator
	Resolver      *services.SessionResolver
	Conversations *services.ConversationStore
	Now           func() time.Time
}

// Chat POST /api/chat
func (c *ChatController) Chat() {
	var payload chatPayload
	if err := c.bindAndValidate(&payload); err != nil {
		c.Fail(err)
		return
	}

	resp, err := c.Orchestrator.Handle(c.Ctx.Request.Context(), services.ChatRequest{
		Message:        payload.Message,
		Subject:        payload.Subject,
		YearLevel:      payload.YearLevel,
		Curriculum:     payload.Curriculum,
		UserID:         payload.UserID,
		SelectedTopics: payload.SelectedTopics,
		ResetContext:   payload.ResetContext,
	})
	if err != nil {
		c.Fail(err)
		return
	}
	c.OK(resp)
}

// Reset POST /api/chat/reset
func (c *ChatController) Reset() {
	var payload resetPayload
	if err := c.bindAndValidate(&payload); err != nil {
		c.Fail(err)
		return
	}

	defaults := c.Orchestrator.Defaults()
	if payload.UserID == "" {
		payload.UserID = defaults.UserID
	}
	if payload.Subject == "" {
		payload.Subject = defaults.Subject
	}
	if payload.YearLevel <= 0 {
		payload.YearLevel = defaults.YearLevel
	}

	key, existed := c.Resolver.Reset(payload.UserID, payload.Subject, payload.YearLevel)
	message := notFoundMessage
	if existed {
		message = resetMessage
	}
	c.OK(map[string]interface{}{
		"success":        true,
		"message":        message,
		"conversationId": key.String(),
	})
}

// Status GET /api/chat/status/:userId
func (c *ChatController) Status() {
	userID := c.Ctx.Input.Param(":userId")
	now := time.Now()
	if c.Now != nil {
		now = c.Now()
	}

	records := c.Conversations.ListByUser(userID)
	list := make([]ConversationSummary, 0, len(records))
	for _, rec := range records {
		list = append(list, ConversationSummary{
			ID:           rec.Key.String(),
			Subject:      rec.Topic,
			YearLevel:    rec.YearLevel,
			Curriculum:   rec.Curriculum,
			MessageCount: len(rec.Messages),
			TotalTokens:  rec.TotalTokensUsed,
			CreatedAt:    rec.CreatedAt,
			LastActive:   rec.LastActiveAt,
			AgeInMinutes: rec.AgeMinutes(now),
		})
	}

	c.OK(map[string]interface{}{
		"conversations":            list,
		"totalConversations":       len(list),
		"totalActiveConversations": c.Conversations.Len(),
	})
}
