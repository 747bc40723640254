package collaboration

import (
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"
)

// AgentProfile Agent 的声明能力
type AgentProfile struct {
	ID           string   `json:"id"`
	Type         string   `json:"type"`
	Capabilities []string `json:"capabilities"`
	Availability float64  `json:"availability"` // [0,1]
}

// Directory 按 ID 查询 Agent 能力
type Directory interface {
	Lookup(agentID string) (AgentProfile, bool)
}

// genericProfile 目录中不存在的 Agent 按无能力、完全可用处理
func genericProfile(agentID string) AgentProfile {
	return AgentProfile{ID: agentID, Type: "generic", Availability: 1}
}

// Registry 内存 Agent 目录
type Registry struct {
	mu       sync.RWMutex
	profiles map[string]AgentProfile
	logger   *zap.Logger
}

// NewRegistry 创建 Agent 目录
func NewRegistry(logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		profiles: make(map[string]AgentProfile),
		logger:   logger.With(zap.String("component", "agent_registry")),
	}
}

// Register 注册或覆盖 Agent 能力声明
func (r *Registry) Register(p AgentProfile) error {
	if p.ID == "" {
		return fmt.Errorf("agent profile requires an id")
	}
	if p.Type == "" {
		p.Type = "generic"
	}
	if p.Availability < 0 || p.Availability > 1 {
		return fmt.Errorf("agent %s availability %.2f out of range [0,1]", p.ID, p.Availability)
	}
	p.Capabilities = append([]string(nil), p.Capabilities...)

	r.mu.Lock()
	r.profiles[p.ID] = p
	r.mu.Unlock()

	r.logger.Debug("agent profile registered",
		zap.String("agent_id", p.ID),
		zap.Strings("capabilities", p.Capabilities),
	)
	return nil
}

// Unregister 移除 Agent
func (r *Registry) Unregister(agentID string) {
	r.mu.Lock()
	delete(r.profiles, agentID)
	r.mu.Unlock()
}

// Lookup 实现 Directory
func (r *Registry) Lookup(agentID string) (AgentProfile, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.profiles[agentID]
	if !ok {
		return AgentProfile{}, false
	}
	p.Capabilities = append([]string(nil), p.Capabilities...)
	return p, true
}

// List 按 ID 排序返回全部 Agent
func (r *Registry) List() []AgentProfile {
	r.mu.RLock()
	out := make([]AgentProfile, 0, len(r.profiles))
	for _, p := range r.profiles {
		out = append(out, p)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
