package negotiation

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/BaSui01/collabengine/advisor"
	"github.com/BaSui01/collabengine/types"
)

// Config 谈判协调配置
type Config struct {
	// RoundsLimit 全局轮次上限，与每次谈判的 max_rounds 取较小值
	RoundsLimit int

	// RoundTimeout 单个 Agent 回应的等待上限
	RoundTimeout time.Duration

	// ConsensusThreshold 未设置 tolerance 的 Agent 的接受阈值
	ConsensusThreshold float64
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{RoundsLimit: 10, RoundTimeout: time.Minute, ConsensusThreshold: 0.75}
}

const triggerMinSatisfaction = "min_satisfaction:"

// Facilitator 多轮谈判协调者
type Facilitator struct {
	responder Responder
	advisor   *advisor.Client
	cfg       Config
	logger    *zap.Logger
	now       func() time.Time
}

// NewFacilitator 创建谈判协调者，responder 为 nil 时使用 InterestResponder
func NewFacilitator(responder Responder, adv *advisor.Client, cfg Config, logger *zap.Logger) *Facilitator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if responder == nil {
		responder = InterestResponder{}
	}
	def := DefaultConfig()
	if cfg.RoundsLimit <= 0 {
		cfg.RoundsLimit = def.RoundsLimit
	}
	if cfg.RoundTimeout <= 0 {
		cfg.RoundTimeout = def.RoundTimeout
	}
	if cfg.ConsensusThreshold <= 0 || cfg.ConsensusThreshold > 1 {
		cfg.ConsensusThreshold = def.ConsensusThreshold
	}
	return &Facilitator{
		responder: responder,
		advisor:   adv,
		cfg:       cfg,
		logger:    logger.With(zap.String("component", "negotiation_facilitator")),
		now:       time.Now,
	}
}

// session 一次谈判的运行状态
type session struct {
	neg        AgentNegotiation
	interests  map[string]StakeholderInterest
	thresholds map[string]float64
	// reference 满意度计分基准：有初始提案时取其条款，否则取偏好条款
	reference  map[string]StakeholderInterest

	// active 各 Agent 当前有效的提案，按提出顺序
	active    []Proposal
	put       map[string][]Proposal
	positions map[string]string
	last      map[string]Response
}

// Facilitate 运行谈判直到达成一致、僵局或超时。
// 只有结构性错误返回 error，未达成一致属于正常结果。
func (f *Facilitator) Facilitate(ctx context.Context, neg AgentNegotiation) (*Result, error) {
	started := f.now()
	if err := Validate(neg); err != nil {
		return nil, err
	}
	s := f.newSession(neg)

	maxRounds := neg.Parameters.MaxRounds
	if maxRounds <= 0 || maxRounds > f.cfg.RoundsLimit {
		maxRounds = f.cfg.RoundsLimit
	}
	runCtx, cancel := context.WithTimeout(ctx, f.wallClock(neg.Parameters))
	defer cancel()

	log := f.logger.With(zap.String("negotiation_id", neg.ID))
	log.Info("negotiation started",
		zap.Int("agents", len(neg.ParticipatingAgents)),
		zap.Int("max_rounds", maxRounds),
	)

	result := &Result{
		ID:                   uuid.NewString(),
		NegotiationID:        neg.ID,
		History:              []Round{},
		AlternativeSolutions: []AlternativeSolution{},
		StartedAt:            started,
	}

	var leading Proposal
	unchanged := 0
	for n := 1; n <= maxRounds && result.OutcomeStatus == ""; n++ {
		if runCtx.Err() != nil {
			result.OutcomeStatus = OutcomeTimeout
			break
		}
		leading = s.leading()
		round := f.runRound(runCtx, s, n, leading)
		result.History = append(result.History, round)
		log.Debug("negotiation round completed",
			zap.Int("round", n),
			zap.String("leading", leading.ID),
			zap.Bool("changed", round.PositionChanged),
		)

		switch {
		case allAccepted(round):
			result.OutcomeStatus = OutcomeAgreement
			agreed := leading.clone()
			result.FinalAgreement = &agreed
		case runCtx.Err() != nil:
			result.OutcomeStatus = OutcomeTimeout
		default:
			if round.PositionChanged {
				unchanged = 0
			} else {
				unchanged++
			}
			if unchanged >= 2 {
				result.OutcomeStatus = OutcomeDeadlock
			}
		}
	}
	if result.OutcomeStatus == "" {
		result.OutcomeStatus = OutcomeTimeout
	}

	result.SatisfactionScores = s.satisfaction(result.FinalAgreement, leading)

	switch result.OutcomeStatus {
	case OutcomeDeadlock, OutcomeTimeout:
		result.EscalationRequired = true
		result.EscalationReason = fmt.Sprintf("negotiation ended in %s after %d rounds", result.OutcomeStatus, len(result.History))
		if ctx.Err() == nil {
			result.AlternativeSolutions, result.AdvisorUsed = f.alternatives(ctx, s, result)
		}
	case OutcomeAgreement:
		if reason, ok := s.triggered(result.SatisfactionScores); ok {
			result.OutcomeStatus = OutcomeEscalated
			result.EscalationRequired = true
			result.EscalationReason = reason
		}
	}
	result.CompletedAt = f.now()

	log.Info("negotiation completed",
		zap.String("outcome", string(result.OutcomeStatus)),
		zap.Int("rounds", len(result.History)),
		zap.Bool("escalation_required", result.EscalationRequired),
		zap.Duration("duration", result.CompletedAt.Sub(started)),
	)
	return result, nil
}

// TimedOut 在第一轮开始前就已超时（如等待并发槽位）时构造 timeout 结果。
// 结构错误仍然返回 error。
func (f *Facilitator) TimedOut(neg AgentNegotiation, reason string) (*Result, error) {
	now := f.now()
	if err := Validate(neg); err != nil {
		return nil, err
	}
	s := f.newSession(neg)
	f.logger.Warn("negotiation timed out before the first round",
		zap.String("negotiation_id", neg.ID),
		zap.String("reason", reason),
	)
	return &Result{
		ID:                   uuid.NewString(),
		NegotiationID:        neg.ID,
		OutcomeStatus:        OutcomeTimeout,
		History:              []Round{},
		SatisfactionScores:   s.satisfaction(nil, s.leading()),
		EscalationRequired:   true,
		EscalationReason:     reason,
		AlternativeSolutions: []AlternativeSolution{},
		StartedAt:            now,
		CompletedAt:          now,
	}, nil
}

func (f *Facilitator) wallClock(p Parameters) time.Duration {
	bound := time.Duration(f.cfg.RoundsLimit) * f.cfg.RoundTimeout
	if p.TimeoutMinutes > 0 {
		if d := time.Duration(p.TimeoutMinutes * float64(time.Minute)); d < bound {
			return d
		}
	}
	return bound
}

// Validate 检查谈判请求的结构
func Validate(neg AgentNegotiation) error {
	invalid := func(format string, args ...any) error {
		return types.Errorf(types.ErrInvalidInput, format, args...)
	}
	if strings.TrimSpace(neg.ID) == "" {
		return invalid("negotiation id is required")
	}
	seen := make(map[string]bool, len(neg.ParticipatingAgents))
	for _, a := range neg.ParticipatingAgents {
		if strings.TrimSpace(a) == "" {
			return invalid("participating agent id must not be empty")
		}
		if seen[a] {
			return invalid("agent %q listed more than once", a)
		}
		seen[a] = true
	}
	if len(seen) < 2 {
		return invalid("negotiation requires at least two participating agents")
	}
	if neg.Parameters.MaxRounds < 0 {
		return invalid("max_rounds must not be negative")
	}
	if neg.Parameters.TimeoutMinutes < 0 {
		return invalid("timeout_minutes must not be negative")
	}
	for id, in := range neg.Context.Interests {
		if !seen[id] {
			return invalid("stakeholder interest for unknown agent %q", id)
		}
		if in.Tolerance < 0 || in.Tolerance > 1 || in.Flexibility < 0 || in.Flexibility > 1 {
			return invalid("tolerance and flexibility of %q must be within [0,1]", id)
		}
	}
	if len(neg.InitialProposals) == 0 {
		return invalid("at least one initial proposal is required")
	}
	ids := make(map[string]bool, len(neg.InitialProposals))
	for i, p := range neg.InitialProposals {
		if !seen[p.ProposerID] {
			return invalid("initial proposal %d has unknown proposer %q", i, p.ProposerID)
		}
		if len(p.Terms) == 0 {
			return invalid("initial proposal %d has no terms", i)
		}
		if p.ID != "" {
			if ids[p.ID] {
				return invalid("duplicate proposal id %q", p.ID)
			}
			ids[p.ID] = true
		}
	}
	for _, t := range neg.Parameters.EscalationTriggers {
		if strings.HasPrefix(t, triggerMinSatisfaction) {
			if _, err := strconv.ParseFloat(strings.TrimPrefix(t, triggerMinSatisfaction), 64); err != nil {
				return invalid("malformed escalation trigger %q", t)
			}
		}
	}
	return nil
}

func (f *Facilitator) newSession(neg AgentNegotiation) *session {
	s := &session{
		neg:        neg,
		interests:  make(map[string]StakeholderInterest, len(neg.ParticipatingAgents)),
		thresholds: make(map[string]float64, len(neg.ParticipatingAgents)),
		reference:  make(map[string]StakeholderInterest, len(neg.ParticipatingAgents)),
		put:        make(map[string][]Proposal),
		positions:  make(map[string]string, len(neg.ParticipatingAgents)),
		last:       make(map[string]Response),
	}
	for i, p := range neg.InitialProposals {
		p = p.clone()
		if p.ID == "" {
			p.ID = fmt.Sprintf("%s-p%d", neg.ID, i+1)
		}
		p.Round = 0
		s.active = append(s.active, p)
		s.put[p.ProposerID] = append(s.put[p.ProposerID], p)
		s.positions[p.ProposerID] = "propose:" + canonicalTerms(p.Terms)
	}
	for _, a := range neg.ParticipatingAgents {
		in := neg.Context.Interests[a]
		ref := in
		if own := s.put[a]; len(own) > 0 {
			ref.Preferred = own[0].Terms
			if len(in.Preferred) == 0 {
				in.Preferred = own[0].Terms
			}
		}
		s.interests[a] = in
		s.reference[a] = ref
		s.thresholds[a] = AcceptanceThreshold(in, f.cfg.ConsensusThreshold)
	}
	return s
}

// leading 选出最低满意度最高的提案，其次比较平均满意度，再按提出顺序
func (s *session) leading() Proposal {
	best := -1
	var bestMin, bestMean float64
	for i, p := range s.active {
		lo, sum := 1.0, 0.0
		for _, a := range s.neg.ParticipatingAgents {
			v := Satisfaction(s.interests[a], p.Terms)
			sum += v
			if v < lo {
				lo = v
			}
		}
		mean := sum / float64(len(s.neg.ParticipatingAgents))
		if best < 0 || lo > bestMin+scoreEpsilon || (lo > bestMin-scoreEpsilon && mean > bestMean+scoreEpsilon) {
			best, bestMin, bestMean = i, lo, mean
		}
	}
	return s.active[best]
}

func (f *Facilitator) runRound(ctx context.Context, s *session, n int, leading Proposal) Round {
	round := Round{Number: n, LeadingProposal: leading.clone(), StartedAt: f.now()}
	var counters []Proposal

	for _, a := range s.neg.ParticipatingAgents {
		if a == leading.ProposerID {
			continue
		}
		req := RoundRequest{
			NegotiationID: s.neg.ID,
			Round:         n,
			AgentID:       a,
			Interest:      s.interests[a],
			Threshold:     s.thresholds[a],
			Leading:       leading.clone(),
		}
		if own := s.put[a]; len(own) > 0 {
			cur := own[len(own)-1].clone()
			req.Current = &cur
		}

		resp, err := f.respond(ctx, req)
		if err != nil {
			f.logger.Warn("agent response unavailable, keeping previous position",
				zap.String("negotiation_id", s.neg.ID),
				zap.String("agent_id", a),
				zap.Int("round", n),
				zap.Error(err),
			)
			resp = s.carry(a, leading)
		}
		resp.AgentID = a
		if resp.Stance == StanceCounter && (resp.Counter == nil || len(resp.Counter.Terms) == 0) {
			resp.Stance = StanceReject
			resp.Counter = nil
		}
		if resp.Stance == StanceCounter && !resp.Carried {
			c := resp.Counter.clone()
			c.ID = fmt.Sprintf("%s-r%d-%s", s.neg.ID, n, a)
			c.ProposerID = a
			c.ParentID = leading.ID
			c.Round = n
			resp.Counter = &c
			counters = append(counters, c)
		}

		if !resp.Carried {
			if pos := position(resp, leading); pos != s.positions[a] {
				round.PositionChanged = true
				s.positions[a] = pos
			}
			s.last[a] = resp
		}
		round.Responses = append(round.Responses, resp)
	}

	for _, c := range counters {
		s.replace(c)
	}
	round.CompletedAt = f.now()
	return round
}

func (f *Facilitator) respond(ctx context.Context, req RoundRequest) (Response, error) {
	if err := ctx.Err(); err != nil {
		return Response{}, err
	}
	callCtx, cancel := context.WithTimeout(ctx, f.cfg.RoundTimeout)
	defer cancel()
	resp, err := f.responder.Respond(callCtx, req)
	if err != nil {
		return Response{}, err
	}
	switch resp.Stance {
	case StanceAccept, StanceCounter, StanceReject:
	default:
		return Response{}, fmt.Errorf("unknown stance %q", resp.Stance)
	}
	resp.Satisfaction = Satisfaction(req.Interest, req.Leading.Terms)
	return resp, nil
}

// carry 沿用 Agent 上一轮的立场；没有历史时视为拒绝
func (s *session) carry(agent string, leading Proposal) Response {
	prev, ok := s.last[agent]
	if !ok {
		prev = Response{Stance: StanceReject, Reason: "no response"}
	}
	prev.Carried = true
	prev.Satisfaction = Satisfaction(s.interests[agent], leading.Terms)
	if prev.Stance == StanceAccept {
		prev.Stance = StanceReject
		prev.Reason = "no response"
	}
	return prev
}

// replace 用新的反提案替换该 Agent 之前的有效提案
func (s *session) replace(c Proposal) {
	kept := s.active[:0]
	for _, p := range s.active {
		if p.ProposerID != c.ProposerID {
			kept = append(kept, p)
		}
	}
	s.active = append(kept, c)
	s.put[c.ProposerID] = append(s.put[c.ProposerID], c)
}

func position(resp Response, leading Proposal) string {
	switch resp.Stance {
	case StanceAccept:
		return "accept:" + canonicalTerms(leading.Terms)
	case StanceCounter:
		if resp.Counter != nil {
			return "propose:" + canonicalTerms(resp.Counter.Terms)
		}
	}
	return "reject"
}

func allAccepted(r Round) bool {
	if len(r.Responses) == 0 {
		return false
	}
	for _, resp := range r.Responses {
		if resp.Stance != StanceAccept {
			return false
		}
	}
	return true
}

// satisfaction 以 Agent 的初始提案为基准计分（没有初始提案时用偏好条款）。
// 达成一致时按最终协议计分；否则取该 Agent 提出过的最佳提案，
// 未提出过提案的 Agent 按最后的领先提案计分
func (s *session) satisfaction(final *Proposal, leading Proposal) map[string]float64 {
	scores := make(map[string]float64, len(s.neg.ParticipatingAgents))
	for _, a := range s.neg.ParticipatingAgents {
		in := s.reference[a]
		if final != nil {
			scores[a] = Satisfaction(in, final.Terms)
			continue
		}
		own := s.put[a]
		if len(own) == 0 {
			scores[a] = Satisfaction(in, leading.Terms)
			continue
		}
		best := 0.0
		for _, p := range own {
			if v := Satisfaction(in, p.Terms); v > best {
				best = v
			}
		}
		scores[a] = best
	}
	return scores
}

// triggered 检查协议是否命中升级触发条件
func (s *session) triggered(scores map[string]float64) (string, bool) {
	for _, t := range s.neg.Parameters.EscalationTriggers {
		if !strings.HasPrefix(t, triggerMinSatisfaction) {
			continue
		}
		floor, err := strconv.ParseFloat(strings.TrimPrefix(t, triggerMinSatisfaction), 64)
		if err != nil {
			continue
		}
		for _, a := range s.neg.ParticipatingAgents {
			if scores[a] < floor {
				return fmt.Sprintf("agent %s satisfaction %.2f below %.2f", a, scores[a], floor), true
			}
		}
	}
	return "", false
}

func (f *Facilitator) alternatives(ctx context.Context, s *session, result *Result) ([]AlternativeSolution, bool) {
	proposals := make([]any, 0, len(s.active))
	for _, p := range s.active {
		proposals = append(proposals, map[string]any{
			"id":       p.ID,
			"proposer": p.ProposerID,
			"terms":    advisor.TermsPayload(p.Terms),
		})
	}
	hint, ok := f.advisor.Alternatives(ctx, map[string]any{
		"negotiation_id": s.neg.ID,
		"subject":        s.neg.Context.Subject,
		"agents":         s.neg.ParticipatingAgents,
		"outcome":        string(result.OutcomeStatus),
		"rounds":         len(result.History),
		"proposals":      proposals,
	})
	if !ok {
		return []AlternativeSolution{}, false
	}
	out := make([]AlternativeSolution, 0, len(hint.Alternatives))
	for _, alt := range hint.Alternatives {
		sol := AlternativeSolution{Description: alt.Description, Terms: alt.Terms}
		if len(alt.Terms) > 0 {
			sol.Satisfaction = make(map[string]float64, len(s.neg.ParticipatingAgents))
			for _, a := range s.neg.ParticipatingAgents {
				sol.Satisfaction[a] = Satisfaction(s.interests[a], alt.Terms)
			}
		}
		out = append(out, sol)
	}
	return out, true
}
