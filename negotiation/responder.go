package negotiation

import (
	"context"
	"fmt"
)

// RoundRequest 请求 Agent 对领先提案表态
type RoundRequest struct {
	NegotiationID string
	Round         int
	AgentID       string
	Interest      StakeholderInterest
	Threshold     float64
	Leading       Proposal

	// Current 该 Agent 当前的提案，可能为 nil
	Current *Proposal
}

// Responder 获取 Agent 在一轮中的回应。
// 返回的 Counter 只需填写 Terms 与 Rationale，其余字段由协调者补全。
type Responder interface {
	Respond(ctx context.Context, req RoundRequest) (Response, error)
}

// ResponderFunc 函数适配器
type ResponderFunc func(ctx context.Context, req RoundRequest) (Response, error)

// Respond 实现 Responder
func (f ResponderFunc) Respond(ctx context.Context, req RoundRequest) (Response, error) {
	return f(ctx, req)
}

// InterestResponder 按利益诉求自动表态：满意度达到阈值即接受，
// 否则按 Flexibility 向领先提案让步并提出反提案，无法让步时拒绝。
type InterestResponder struct{}

// Respond 实现 Responder
func (InterestResponder) Respond(ctx context.Context, req RoundRequest) (Response, error) {
	if err := ctx.Err(); err != nil {
		return Response{}, err
	}
	sat := Satisfaction(req.Interest, req.Leading.Terms)
	resp := Response{AgentID: req.AgentID, Satisfaction: sat}
	if sat+scoreEpsilon >= req.Threshold {
		resp.Stance = StanceAccept
		return resp, nil
	}

	base := req.Interest.Preferred
	if req.Current != nil && len(req.Current.Terms) > 0 {
		base = req.Current.Terms
	}
	if req.Interest.Flexibility <= 0 || len(base) == 0 {
		resp.Stance = StanceReject
		resp.Reason = fmt.Sprintf("satisfaction %.2f below %.2f and no room to concede", sat, req.Threshold)
		return resp, nil
	}

	next := concede(base, req.Leading.Terms, req.Interest.Flexibility)
	if termsEqual(next, base) {
		resp.Stance = StanceReject
		resp.Reason = "position already at concession limit"
		return resp, nil
	}
	resp.Stance = StanceCounter
	resp.Counter = &Proposal{
		Terms:     next,
		Rationale: fmt.Sprintf("concede %.0f%% toward leading proposal", req.Interest.Flexibility*100),
	}
	return resp, nil
}
