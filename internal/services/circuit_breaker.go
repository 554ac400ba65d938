package services

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

// CircuitBreakerState 熔断器状态
type CircuitBreakerState int32

const (
	StateClosed CircuitBreakerState = iota
	StateOpen
	StateHalfOpen
)

// ErrCircuitOpen 熔断器打开时直接拒绝调用
var ErrCircuitOpen = errors.New("circuit breaker is open")

// CircuitBreaker 熔断器，保护回复生成调用
type CircuitBreaker struct {
	name string

	failureThreshold int
	successThreshold int
	timeout          time.Duration
	now              func() time.Time

	state           int32
	failureCount    int32
	successCount    int32
	lastFailureTime time.Time
	mutex           sync.RWMutex
}

// NewCircuitBreaker 创建熔断器
func NewCircuitBreaker(name string, failureThreshold int, successThreshold int, timeout time.Duration) *CircuitBreaker {
	if failureThreshold <= 0 {
		failureThreshold = 5
	}
	if successThreshold <= 0 {
		successThreshold = 3
	}
	if timeout <= 0 {
		timeout = time.Minute
	}
	return &CircuitBreaker{
		name:             name,
		failureThreshold: failureThreshold,
		successThreshold: successThreshold,
		timeout:          timeout,
		now:              time.Now,
		state:            int32(StateClosed),
	}
}

// Call 执行函数调用（带熔断保护）
func (cb *CircuitBreaker) Call(fn func() error) error {
	if !cb.canExecute() {
		return &CircuitBreakerError{
			Name:  cb.name,
			State: cb.getState(),
			Err:   ErrCircuitOpen,
		}
	}

	err := fn()
	cb.recordResult(err == nil)

	if err != nil {
		return &CircuitBreakerError{
			Name:  cb.name,
			State: cb.getState(),
			Err:   err,
		}
	}
	return nil
}

// canExecute 检查是否可以执行请求
func (cb *CircuitBreaker) canExecute() bool {
	switch cb.getState() {
	case StateClosed, StateHalfOpen:
		return true
	case StateOpen:
		cb.mutex.RLock()
		canHalfOpen := cb.now().Sub(cb.lastFailureTime) >= cb.timeout
		cb.mutex.RUnlock()

		if canHalfOpen && atomic.CompareAndSwapInt32(&cb.state, int32(StateOpen), int32(StateHalfOpen)) {
			atomic.StoreInt32(&cb.successCount, 0)
		}
		return canHalfOpen
	default:
		return false
	}
}

// recordResult 记录执行结果
func (cb *CircuitBreaker) recordResult(success bool) {
	if success {
		cb.recordSuccess()
	} else {
		cb.recordFailure()
	}
}

// recordSuccess 记录成功
func (cb *CircuitBreaker) recordSuccess() {
	switch cb.getState() {
	case StateHalfOpen:
		count := atomic.AddInt32(&cb.successCount, 1)
		if int(count) >= cb.successThreshold {
			atomic.StoreInt32(&cb.state, int32(StateClosed))
			atomic.StoreInt32(&cb.failureCount, 0)
		}
	case StateClosed:
		atomic.StoreInt32(&cb.failureCount, 0)
	}
}

// recordFailure 记录失败
func (cb *CircuitBreaker) recordFailure() {
	cb.mutex.Lock()
	cb.lastFailureTime = cb.now()
	cb.mutex.Unlock()

	switch cb.getState() {
	case StateHalfOpen:
		// 半开状态下失败，直接打开熔断器
		atomic.StoreInt32(&cb.state, int32(StateOpen))
		atomic.StoreInt32(&cb.successCount, 0)
	case StateClosed:
		count := atomic.AddInt32(&cb.failureCount, 1)
		if int(count) >= cb.failureThreshold {
			atomic.StoreInt32(&cb.state, int32(StateOpen))
		}
	}
}

func (cb *CircuitBreaker) getState() CircuitBreakerState {
	return CircuitBreakerState(atomic.LoadInt32(&cb.state))
}

// GetState 获取当前状态
func (cb *CircuitBreaker) GetState() CircuitBreakerState {
	return cb.getState()
}

// GetStats 获取统计信息，/debug 使用
func (cb *CircuitBreaker) GetStats() map[string]interface{} {
	cb.mutex.RLock()
	defer cb.mutex.RUnlock()

	stats := map[string]interface{}{
		"name":             cb.name,
		"state":            cb.getState().String(),
		"failureCount":     atomic.LoadInt32(&cb.failureCount),
		"successCount":     atomic.LoadInt32(&cb.successCount),
		"failureThreshold": cb.failureThreshold,
		"successThreshold": cb.successThreshold,
		"timeout":          cb.timeout.String(),
	}
	if !cb.lastFailureTime.IsZero() {
		stats["lastFailureTime"] = cb.lastFailureTime
	}
	return stats
}

// String 返回状态字符串
func (s CircuitBreakerState) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// CircuitBreakerError 熔断器错误
type CircuitBreakerError struct {
	Name  string
	State CircuitBreakerState
	Err   error
}

func (e *CircuitBreakerError) Error() string {
	return e.Name + ": " + e.Err.Error()
}

func (e *CircuitBreakerError) Unwrap() error {
	return e.Err
}
