// MockAdvisor 能力顾问的测试模拟实现。
//
// 按请求类型配置固定响应、错误与延迟，并记录每次调用。
package mocks

import (
	"context"
	"sync"
	"time"

	"github.com/BaSui01/collabengine/advisor"
)

// AdvisorCall 一次顾问调用记录
type AdvisorCall struct {
	Kind    advisor.RequestKind
	Payload map[string]any
}

// MockAdvisor 是 advisor.Advisor 的模拟实现
type MockAdvisor struct {
	mu        sync.Mutex
	responses map[advisor.RequestKind]map[string]any
	errs      map[advisor.RequestKind]error
	delay     time.Duration
	calls     []AdvisorCall
}

var _ advisor.Advisor = (*MockAdvisor)(nil)

// NewMockAdvisor 创建模拟顾问，未配置的请求类型返回空响应
func NewMockAdvisor() *MockAdvisor {
	return &MockAdvisor{
		responses: make(map[advisor.RequestKind]map[string]any),
		errs:      make(map[advisor.RequestKind]error),
	}
}

// WithResponse 设置某类请求的响应
func (m *MockAdvisor) WithResponse(kind advisor.RequestKind, resp map[string]any) *MockAdvisor {
	m.mu.Lock()
	m.responses[kind] = resp
	m.mu.Unlock()
	return m
}

// WithError 让某类请求始终失败
func (m *MockAdvisor) WithError(kind advisor.RequestKind, err error) *MockAdvisor {
	m.mu.Lock()
	m.errs[kind] = err
	m.mu.Unlock()
	return m
}

// WithDelay 每次调用前等待，context 到期时返回其错误
func (m *MockAdvisor) WithDelay(d time.Duration) *MockAdvisor {
	m.mu.Lock()
	m.delay = d
	m.mu.Unlock()
	return m
}

// Advise 实现 advisor.Advisor
func (m *MockAdvisor) Advise(ctx context.Context, kind advisor.RequestKind, payload map[string]any) (map[string]any, error) {
	m.mu.Lock()
	m.calls = append(m.calls, AdvisorCall{Kind: kind, Payload: payload})
	delay := m.delay
	resp, err := m.responses[kind], m.errs[kind]
	m.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	out := make(map[string]any, len(resp))
	for k, v := range resp {
		out[k] = v
	}
	return out, nil
}

// Calls 返回调用记录副本
func (m *MockAdvisor) Calls() []AdvisorCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]AdvisorCall(nil), m.calls...)
}

// CallCount 返回某类请求的调用次数
func (m *MockAdvisor) CallCount(kind advisor.RequestKind) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.calls {
		if c.Kind == kind {
			n++
		}
	}
	return n
}
