package advisor

import "context"

// RequestKind 咨询请求类型
type RequestKind string

const (
	// KindCollaborationStructure 协作结构建议（拓扑、协议）
	KindCollaborationStructure RequestKind = "collaboration_structure"
	// KindConflictElaboration 冲突处理说明与补充跟进项
	KindConflictElaboration RequestKind = "conflict_elaboration"
	// KindNegotiationAlternatives 谈判僵局或超时时的备选方案
	KindNegotiationAlternatives RequestKind = "negotiation_alternatives"
)

// Advisor 外部能力顾问。
// 返回的内容只用于充实计划，不参与任何控制流判断。
type Advisor interface {
	Advise(ctx context.Context, kind RequestKind, payload map[string]any) (map[string]any, error)
}

// Func 函数适配器
type Func func(ctx context.Context, kind RequestKind, payload map[string]any) (map[string]any, error)

// Advise 实现 Advisor
func (f Func) Advise(ctx context.Context, kind RequestKind, payload map[string]any) (map[string]any, error) {
	return f(ctx, kind, payload)
}

// Static 对每种请求返回固定响应的 Advisor，未配置的类型返回空响应
type Static map[RequestKind]map[string]any

// Advise 实现 Advisor
func (s Static) Advise(ctx context.Context, kind RequestKind, payload map[string]any) (map[string]any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	resp, ok := s[kind]
	if !ok {
		return map[string]any{}, nil
	}
	out := make(map[string]any, len(resp))
	for k, v := range resp {
		out[k] = v
	}
	return out, nil
}
