package errors

import (
	"fmt"
	"runtime/debug"

	beecontext "github.com/beego/beego/v2/server/web/context"
	"go.uber.org/zap"
)

// RequestIDKey 请求ID在beego上下文中的存储键
const RequestIDKey = "request_id"

// ErrorHandler 错误处理器
type ErrorHandler struct {
	logger     *zap.Logger
	monitor    *ErrorMonitor
	translator *ErrorTranslator
}

// NewErrorHandler 创建错误处理器
func NewErrorHandler(logger *zap.Logger, monitor *ErrorMonitor) *ErrorHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if monitor == nil {
		monitor = NewErrorMonitor()
	}
	return &ErrorHandler{
		logger:     logger,
		monitor:    monitor,
		translator: NewErrorTranslator(),
	}
}

// Monitor 返回错误监控器
func (h *ErrorHandler) Monitor() *ErrorMonitor {
	return h.monitor
}

// Handle 处理错误并写出JSON响应
func (h *ErrorHandler) Handle(ctx *beecontext.Context, err error) *AppError {
	appErr := h.translator.Translate(err)
	if appErr == nil {
		return nil
	}
	if appErr.RequestID == "" {
		if id, ok := ctx.Input.GetData(RequestIDKey).(string); ok {
			appErr.RequestID = id
		}
	}

	endpoint := ctx.Input.URL()
	h.monitor.RecordError(appErr, endpoint)
	h.logError(ctx, appErr)

	ctx.Output.SetStatus(appErr.HTTPCode)
	if jsonErr := ctx.Output.JSON(ResponseBody(appErr), false, false); jsonErr != nil {
		h.logger.Error("Failed to write error response", zap.Error(jsonErr))
	}
	return appErr
}

// HandlePanic 处理panic并转换为500响应
func (h *ErrorHandler) HandlePanic(ctx *beecontext.Context, recovered interface{}) {
	err := fmt.Errorf("panic recovered: %v", recovered)
	h.logger.Error("Panic recovered",
		zap.Error(err),
		zap.ByteString("stack", debug.Stack()),
	)
	h.Handle(ctx, NewSystemError(ErrCodeInternalServer, "Internal server error").WithCause(err))
}

// ResponseBody 构建统一的错误响应体
func ResponseBody(appErr *AppError) map[string]interface{} {
	body := map[string]interface{}{
		"error":   true,
		"code":    string(appErr.Code),
		"message": appErr.Message,
	}
	if appErr.Details != nil && shouldIncludeDetails(appErr) {
		body["details"] = appErr.Details
	}
	if appErr.RequestID != "" {
		body["requestId"] = appErr.RequestID
	}
	return body
}

// logError 记录错误日志
func (h *ErrorHandler) logError(ctx *beecontext.Context, appErr *AppError) {
	fields := []zap.Field{
		zap.String("error_code", string(appErr.Code)),
		zap.String("error_type", appErr.Type.String()),
		zap.Int("http_code", appErr.HTTPCode),
		zap.String("method", ctx.Input.Method()),
		zap.String("path", ctx.Input.URL()),
		zap.String("remote_addr", ctx.Input.IP()),
	}
	if appErr.RequestID != "" {
		fields = append(fields, zap.String("request_id", appErr.RequestID))
	}
	if appErr.Cause != nil {
		fields = append(fields, zap.NamedError("cause", appErr.Cause))
	}

	// 根据错误类型选择日志级别
	switch appErr.Type {
	case ErrorTypeSystem:
		h.logger.Error("System error occurred", fields...)
	case ErrorTypeBusiness, ErrorTypeExternal:
		h.logger.Warn("Business error occurred", fields...)
	case ErrorTypeValidation:
		h.logger.Info("Validation error occurred", fields...)
	default:
		h.logger.Error("Unknown error type occurred", fields...)
	}
}

// shouldIncludeDetails 系统错误和外部错误不暴露详情
func shouldIncludeDetails(appErr *AppError) bool {
	switch appErr.Type {
	case ErrorTypeValidation, ErrorTypeBusiness:
		return true
	default:
		return false
	}
}
