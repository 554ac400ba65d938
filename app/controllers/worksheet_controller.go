package controllers

import (
	"fmt"

	"github.com/studybuddy/tutor-backend/internal/services"
)

type worksheetPayload struct {
	Topic         string `json:"topic" validate:"max=100"`
	Difficulty    string `json:"difficulty" validate:"omitempty,oneof=easy medium hard"`
	QuestionCount int    `json:"questionCount" validate:"min=0,max=50"`
	YearLevel     int    `json:"yearLevel" validate:"min=0,max=12"`
	Format        string `json:"format"`
}

func (p worksheetPayload) request() services.WorksheetRequest {
	return services.WorksheetRequest{
		Topic:         p.Topic,
		Difficulty:    p.Difficulty,
		QuestionCount: p.QuestionCount,
		YearLevel:     p.YearLevel,
		Format:        p.Format,
	}
}

// WorksheetController 工作表生成
type WorksheetController struct {
	BaseController

	Worksheets *services.WorksheetService
}

// Preview POST /api/generate-worksheet
func (c *WorksheetController) Preview() {
	var payload worksheetPayload
	if err := c.bindAndValidate(&payload); err != nil {
		c.Fail(err)
		return
	}

	preview, err := c.Worksheets.Preview(c.Ctx.Request.Context(), payload.request())
	if err != nil {
		c.Fail(err)
		return
	}
	c.OK(preview)
}

// Download POST /api/generate-worksheet-file
func (c *WorksheetController) Download() {
	var payload worksheetPayload
	if err := c.bindAndValidate(&payload); err != nil {
		c.Fail(err)
		return
	}

	file, err := c.Worksheets.File(c.Ctx.Request.Context(), payload.request())
	if err != nil {
		c.Fail(err)
		return
	}

	c.Ctx.Output.Header("Content-Type", file.ContentType)
	c.Ctx.Output.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, file.Filename))
	_ = c.Ctx.Output.Body(file.Content)
}
