package controllers

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/beego/beego/v2/server/web"
	"github.com/go-playground/validator/v10"

	apperrors "github.com/studybuddy/tutor-backend/internal/errors"
)

var defaultValidator = validator.New()

// BaseController provides helpers for consistent JSON responses.
// Dependencies live in exported fields so beego copies them into each request's controller.
type BaseController struct {
	web.Controller

	Errors    *apperrors.ErrorHandler
	Validator *validator.Validate
}

// Prepare 只输出JSON，不渲染模板
func (c *BaseController) Prepare() {
	c.EnableRender = false
}

// JSON writes a JSON response with the supplied HTTP status code.
func (c *BaseController) JSON(status int, payload interface{}) {
	c.Ctx.Output.SetStatus(status)
	c.Data["json"] = payload
	_ = c.ServeJSON()
}

// OK writes a 200 JSON response.
func (c *BaseController) OK(payload interface{}) {
	c.JSON(http.StatusOK, payload)
}

// Fail 交给错误处理器输出统一的错误响应
func (c *BaseController) Fail(err error) {
	if c.Errors == nil {
		c.Errors = apperrors.NewErrorHandler(nil, nil)
	}
	c.Errors.Handle(c.Ctx, err)
}

// bindAndValidate 解析请求体并校验，空请求体视为 {}
func (c *BaseController) bindAndValidate(dst interface{}) error {
	body := c.Ctx.Input.RequestBody
	if len(body) == 0 && c.Ctx.Request.Body != nil {
		data, err := io.ReadAll(c.Ctx.Request.Body)
		if err != nil {
			return apperrors.NewValidationError("Failed to read request body").WithCause(err)
		}
		body = data
	}
	if len(body) > 0 {
		if err := json.Unmarshal(body, dst); err != nil {
			return err
		}
	}

	v := c.Validator
	if v == nil {
		v = defaultValidator
	}
	return v.Struct(dst)
}
