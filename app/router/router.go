package router

import (
	"github.com/beego/beego/v2/server/web"
	"github.com/go-playground/validator/v10"

	"github.com/studybuddy/tutor-backend/app/controllers"
	"github.com/studybuddy/tutor-backend/internal/di"
)

// Build 构建全部路由
func Build(c *di.Components) *RouteGroup {
	base := controllers.BaseController{
		Errors:    c.ErrorHandler,
		Validator: validator.New(),
	}

	system := &controllers.SystemController{
		BaseController: base,
		Config:         c.Config,
		Generator:      c.Generator,
		Conversations:  c.Conversations,
		Transcripts:    c.Transcripts,
		Worksheets:     c.Worksheets,
		Metrics:        c.Metrics,
	}
	chat := &controllers.ChatController{
		BaseController: base,
		Orchestrator:   c.Orchestrator,
		Resolver:       c.Resolver,
		Conversations:  c.Conversations,
	}
	user := &controllers.UserController{
		BaseController: base,
		Meter:          c.Meter,
		Transcripts:    c.Transcripts,
	}
	worksheet := &controllers.WorksheetController{
		BaseController: base,
		Worksheets:     c.Worksheets,
	}
	account := &controllers.AccountController{BaseController: base}

	root := NewRouteGroup("")
	root.GET("/", system, "Index", "health check")
	root.GET("/debug", system, "Debug", "generator, breaker and conversation stats")
	if c.Config.Metrics.Enabled {
		root.GET(c.Config.Metrics.Path, system, "Scrape", "prometheus exposition")
	}

	api := root.Group("/api")
	api.POST("/chat", chat, "Chat", "socratic tutoring turn")
	api.POST("/chat/reset", chat, "Reset", "delete one conversation")
	api.GET("/chat/status/:userId", chat, "Status", "list a user's conversations")

	api.GET("/user/:userId/tokens", user, "Tokens")
	api.GET("/user/:userId/transcripts", user, "TranscriptList")
	api.GET("/user/:userId/transcript-stats", user, "TranscriptStats")

	api.POST("/generate-worksheet", worksheet, "Preview", "HTML and LaTeX preview")
	api.POST("/generate-worksheet-file", worksheet, "Download", "DOCX or PDF download")

	api.POST("/login", account, "Login")
	api.POST("/register", account, "Register")
	api.GET("/user", account, "Profile")

	return root
}

// Register 在服务器上注册全部路由
func Register(srv *web.HttpServer, c *di.Components) *RouteGroup {
	routes := Build(c)
	routes.Register(srv)
	return routes
}
