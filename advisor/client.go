package advisor

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/collabengine/internal/circuitbreaker"
	"github.com/BaSui01/collabengine/internal/retry"
	"github.com/BaSui01/collabengine/types"
)

// Config 顾问客户端配置
type Config struct {
	Timeout             time.Duration `yaml:"timeout" json:"timeout"`
	MaxRetries          int           `yaml:"max_retries" json:"max_retries"`
	InitialBackoff      time.Duration `yaml:"initial_backoff" json:"initial_backoff"`
	BreakerThreshold    int           `yaml:"breaker_threshold" json:"breaker_threshold"`
	BreakerResetTimeout time.Duration `yaml:"breaker_reset_timeout" json:"breaker_reset_timeout"`
}

// DefaultConfig 返回默认配置：单次 10s 超时，失败重试一次
func DefaultConfig() Config {
	return Config{
		Timeout:             10 * time.Second,
		MaxRetries:          1,
		InitialBackoff:      200 * time.Millisecond,
		BreakerThreshold:    5,
		BreakerResetTimeout: 30 * time.Second,
	}
}

// Client 为 Advisor 提供超时、重试与熔断保护。
// 所有失败都被吸收，调用方通过返回的 ok 决定是否使用确定性兜底。
type Client struct {
	advisor Advisor
	cfg     Config
	breaker *circuitbreaker.Breaker
	logger  *zap.Logger
}

// NewClient 创建顾问客户端，advisor 为 nil 时客户端始终不可用
func NewClient(a Advisor, cfg Config, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	def := DefaultConfig()
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = def.InitialBackoff
	}
	logger = logger.With(zap.String("component", "advisor"))
	return &Client{
		advisor: a,
		cfg:     cfg,
		logger:  logger,
		breaker: circuitbreaker.New(circuitbreaker.Config{
			Threshold:    cfg.BreakerThreshold,
			ResetTimeout: cfg.BreakerResetTimeout,
			OnStateChange: func(from, to circuitbreaker.State) {
				logger.Info("advisor breaker state changed",
					zap.String("from", from.String()),
					zap.String("to", to.String()),
				)
			},
		}, logger),
	}
}

// Available 顾问已配置且熔断器未打开
func (c *Client) Available() bool {
	return c != nil && c.advisor != nil && c.breaker.State() != circuitbreaker.StateOpen
}

// Advise 发起一次受保护的咨询，失败返回 ADVISOR_UNAVAILABLE
func (c *Client) Advise(ctx context.Context, kind RequestKind, payload map[string]any) (map[string]any, error) {
	if c == nil || c.advisor == nil {
		return nil, types.NewError(types.ErrAdvisorUnavailable, "no advisor configured")
	}

	policy := retry.Policy{
		MaxRetries:   c.cfg.MaxRetries,
		InitialDelay: c.cfg.InitialBackoff,
		MaxDelay:     c.cfg.InitialBackoff * 8,
		Multiplier:   2,
		Jitter:       true,
	}

	resp, err := circuitbreaker.Execute(ctx, c.breaker, func(ctx context.Context) (map[string]any, error) {
		return retry.Do(ctx, policy, c.logger, func(ctx context.Context) (map[string]any, error) {
			callCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
			defer cancel()
			return c.advisor.Advise(callCtx, kind, payload)
		})
	})
	if err != nil {
		return nil, types.NewError(types.ErrAdvisorUnavailable, "advisor request failed").
			WithCause(err).
			WithRetryable(true).
			WithDetail("kind", string(kind))
	}
	if resp == nil {
		resp = map[string]any{}
	}
	return resp, nil
}

func (c *Client) consult(ctx context.Context, kind RequestKind, payload map[string]any) (map[string]any, bool) {
	resp, err := c.Advise(ctx, kind, payload)
	if err != nil {
		if c != nil && c.advisor != nil {
			c.logger.Warn("advisor unavailable, using deterministic fallback",
				zap.String("kind", string(kind)),
				zap.Error(err),
			)
		}
		return nil, false
	}
	return resp, true
}

// Structure 请求协作结构建议
func (c *Client) Structure(ctx context.Context, payload map[string]any) (StructureHint, bool) {
	resp, ok := c.consult(ctx, KindCollaborationStructure, payload)
	if !ok {
		return StructureHint{}, false
	}
	return DecodeStructureHint(resp), true
}

// Elaborate 请求冲突处理说明
func (c *Client) Elaborate(ctx context.Context, payload map[string]any) (ElaborationHint, bool) {
	resp, ok := c.consult(ctx, KindConflictElaboration, payload)
	if !ok {
		return ElaborationHint{}, false
	}
	return DecodeElaborationHint(resp), true
}

// Alternatives 请求谈判备选方案
func (c *Client) Alternatives(ctx context.Context, payload map[string]any) (AlternativesHint, bool) {
	resp, ok := c.consult(ctx, KindNegotiationAlternatives, payload)
	if !ok {
		return AlternativesHint{}, false
	}
	return DecodeAlternativesHint(resp), true
}
