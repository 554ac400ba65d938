package middleware

import (
	"strings"
	"sync"
	"time"

	"github.com/beego/beego/v2/server/web"
	beecontext "github.com/beego/beego/v2/server/web/context"

	"github.com/studybuddy/tutor-backend/internal/errors"
)

// SecurityHeaders 安全头中间件
func SecurityHeaders() web.FilterFunc {
	headers := map[string]string{
		"X-Content-Type-Options": "nosniff",
		"X-Frame-Options":        "DENY",
		"Referrer-Policy":        "strict-origin-when-cross-origin",
	}
	return func(ctx *beecontext.Context) {
		for key, value := range headers {
			ctx.Output.Header(key, value)
		}
	}
}

const maxTrackedClients = 10000

// RateLimiter 按客户端IP的滑动窗口限流器
type RateLimiter struct {
	requests int
	window   time.Duration
	now      func() time.Time

	mu      sync.Mutex
	clients map[string][]time.Time
}

// NewRateLimiter 创建限流器
func NewRateLimiter(requests int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		requests: requests,
		window:   window,
		now:      time.Now,
		clients:  make(map[string][]time.Time),
	}
}

// Allow 检查是否允许请求
func (rl *RateLimiter) Allow(clientIP string) bool {
	now := rl.now()
	windowStart := now.Add(-rl.window)

	rl.mu.Lock()
	defer rl.mu.Unlock()

	if len(rl.clients) >= maxTrackedClients {
		rl.cleanupLocked(windowStart)
	}

	valid := rl.clients[clientIP][:0]
	for _, reqTime := range rl.clients[clientIP] {
		if reqTime.After(windowStart) {
			valid = append(valid, reqTime)
		}
	}

	if len(valid) >= rl.requests {
		rl.clients[clientIP] = valid
		return false
	}
	rl.clients[clientIP] = append(valid, now)
	return true
}

// Cleanup 删除窗口外没有请求的客户端
func (rl *RateLimiter) Cleanup() int {
	windowStart := rl.now().Add(-rl.window)

	rl.mu.Lock()
	defer rl.mu.Unlock()
	return rl.cleanupLocked(windowStart)
}

func (rl *RateLimiter) cleanupLocked(windowStart time.Time) int {
	removed := 0
	for clientIP, requests := range rl.clients {
		if len(requests) == 0 || !requests[len(requests)-1].After(windowStart) {
			delete(rl.clients, clientIP)
			removed++
		}
	}
	return removed
}

// Filter 超出限制时返回429
func (rl *RateLimiter) Filter(handler *errors.ErrorHandler) web.FilterFunc {
	return func(ctx *beecontext.Context) {
		if ctx.Input.Method() == "OPTIONS" {
			return
		}
		if rl.Allow(remoteIP(ctx)) {
			return
		}
		handler.Handle(ctx, errors.NewBusinessError(errors.ErrCodeTooManyRequests, "Too many requests, please slow down"))
	}
}

// remoteIP 获取客户端真实IP地址
func remoteIP(ctx *beecontext.Context) string {
	if xff := ctx.Input.Header("X-Forwarded-For"); xff != "" {
		return strings.TrimSpace(strings.Split(xff, ",")[0])
	}
	if xri := ctx.Input.Header("X-Real-IP"); xri != "" {
		return xri
	}
	return ctx.Input.IP()
}
