package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/beego/beego/v2/server/web"
	beecontext "github.com/beego/beego/v2/server/web/context"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/studybuddy/tutor-backend/internal/errors"
	"github.com/studybuddy/tutor-backend/internal/services"
)

const (
	requestIDHeader = "X-Request-Id"
	requestStartKey = "request_start"
	routePatternKey = "RouterPattern"
)

// Options 中间件配置
type Options struct {
	CORSOrigins []string
	// RateLimit 每分钟每个IP的请求数，0表示不限流
	RateLimit int
	Metrics   bool
}

// MiddlewareManager 中间件管理器
type MiddlewareManager struct {
	logger       *zap.Logger
	errorHandler *errors.ErrorHandler
	options      Options
	limiter      *RateLimiter
}

// NewMiddlewareManager 创建中间件管理器
func NewMiddlewareManager(logger *zap.Logger, errorHandler *errors.ErrorHandler, options Options) *MiddlewareManager {
	if logger == nil {
		logger = zap.NewNop()
	}
	mm := &MiddlewareManager{
		logger:       logger,
		errorHandler: errorHandler,
		options:      options,
	}
	if options.RateLimit > 0 {
		mm.limiter = NewRateLimiter(options.RateLimit, time.Minute)
	}
	return mm
}

// Apply 在服务器上注册所有过滤器
func (mm *MiddlewareManager) Apply(srv *web.HttpServer) {
	srv.InsertFilter("/*", web.BeforeRouter, mm.requestIDMiddleware())
	srv.InsertFilter("/*", web.BeforeRouter, SecurityHeaders())
	srv.InsertFilter("/*", web.BeforeRouter, CORSMiddleware(mm.options.CORSOrigins))
	if mm.limiter != nil {
		srv.InsertFilter("/api/*", web.BeforeRouter, mm.limiter.Filter(mm.errorHandler))
	}
	srv.InsertFilter("/*", web.FinishRouter, mm.completionMiddleware(), web.WithReturnOnOutput(false))
}

// RecoverFunc beego panic恢复回调
func (mm *MiddlewareManager) RecoverFunc(ctx *beecontext.Context, _ *web.Config) {
	if recovered := recover(); recovered != nil {
		if recovered == web.ErrAbort {
			return
		}
		mm.errorHandler.HandlePanic(ctx, recovered)
	}
}

// requestIDMiddleware 请求ID与开始时间
func (mm *MiddlewareManager) requestIDMiddleware() web.FilterFunc {
	return func(ctx *beecontext.Context) {
		requestID := ctx.Input.Header(requestIDHeader)
		if requestID == "" || len(requestID) > 64 {
			requestID = uuid.NewString()
		}
		ctx.Input.SetData(errors.RequestIDKey, requestID)
		ctx.Input.SetData(requestStartKey, time.Now())
		ctx.Output.Header(requestIDHeader, requestID)
	}
}

// completionMiddleware 请求完成日志与指标
func (mm *MiddlewareManager) completionMiddleware() web.FilterFunc {
	return func(ctx *beecontext.Context) {
		var elapsed time.Duration
		if start, ok := ctx.Input.GetData(requestStartKey).(time.Time); ok {
			elapsed = time.Since(start)
		}

		status := ctx.ResponseWriter.Status
		if status == 0 {
			status = http.StatusOK
		}
		route := RouteLabel(ctx)

		if mm.options.Metrics {
			services.ObserveHTTPRequest(ctx.Input.Method(), route, status, elapsed)
		}

		fields := []zap.Field{
			zap.String("method", ctx.Input.Method()),
			zap.String("path", ctx.Input.URL()),
			zap.String("route", route),
			zap.Int("status", status),
			zap.Duration("duration", elapsed),
			zap.String("remote_addr", remoteIP(ctx)),
		}
		if requestID, ok := ctx.Input.GetData(errors.RequestIDKey).(string); ok {
			fields = append(fields, zap.String("request_id", requestID))
		}

		switch {
		case status >= http.StatusInternalServerError:
			mm.logger.Error("Request completed", fields...)
		case status >= http.StatusBadRequest:
			mm.logger.Warn("Request completed", fields...)
		default:
			mm.logger.Info("Request completed", fields...)
		}
	}
}

// RouteLabel 指标使用的路由模板，避免把用户ID写入标签
func RouteLabel(ctx *beecontext.Context) string {
	if pattern, ok := ctx.Input.GetData(routePatternKey).(string); ok && pattern != "" {
		return pattern
	}
	return normalizePath(ctx.Input.URL())
}

func normalizePath(path string) string {
	switch {
	case strings.HasPrefix(path, "/api/chat/status/"):
		return "/api/chat/status/:userId"
	case strings.HasPrefix(path, "/api/user/") && strings.HasSuffix(path, "/tokens"):
		return "/api/user/:userId/tokens"
	case strings.HasPrefix(path, "/api/user/") && strings.HasSuffix(path, "/transcripts"):
		return "/api/user/:userId/transcripts"
	case strings.HasPrefix(path, "/api/user/") && strings.HasSuffix(path, "/transcript-stats"):
		return "/api/user/:userId/transcript-stats"
	}
	for _, known := range knownRoutes {
		if path == known {
			return path
		}
	}
	return "unmatched"
}

var knownRoutes = []string{
	"/", "/debug", "/metrics",
	"/api/chat", "/api/chat/reset",
	"/api/generate-worksheet", "/api/generate-worksheet-file",
	"/api/login", "/api/register", "/api/user",
}
