package broadcast

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/BaSui01/collabengine/internal/retry"
	"github.com/BaSui01/collabengine/types"
)

// Config 广播投递配置
type Config struct {
	MaxAttempts    int           `yaml:"max_attempts" json:"max_attempts"`
	InitialBackoff time.Duration `yaml:"initial_backoff" json:"initial_backoff"`
	MaxBackoff     time.Duration `yaml:"max_backoff" json:"max_backoff"`
	AckTimeout     time.Duration `yaml:"ack_timeout" json:"ack_timeout"`
	MaxFanout      int           `yaml:"max_fanout" json:"max_fanout"`
}

// DefaultConfig 默认每个收件人最多 3 次尝试
func DefaultConfig() Config {
	return Config{
		MaxAttempts:    3,
		InitialBackoff: 500 * time.Millisecond,
		MaxBackoff:     10 * time.Second,
		AckTimeout:     30 * time.Second,
		MaxFanout:      32,
	}
}

// inflight 正在投递中的广播，用于路由确认与已读回执
type inflight struct {
	mu    sync.Mutex
	acks  map[string]chan struct{}
	reads map[string]time.Time
}

// Dispatcher 广播分发器
type Dispatcher struct {
	deliverer Deliverer
	ledger    Ledger
	cfg       Config
	policy    retry.Policy
	logger    *zap.Logger
	now       func() time.Time

	mu       sync.Mutex
	inflight map[string]*inflight
}

// NewDispatcher 创建广播分发器，ledger 为 nil 时使用内存台账
func NewDispatcher(deliverer Deliverer, ledger Ledger, cfg Config, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if ledger == nil {
		ledger = NewMemoryLedger()
	}
	def := DefaultConfig()
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = def.InitialBackoff
	}
	if cfg.MaxBackoff < cfg.InitialBackoff {
		cfg.MaxBackoff = cfg.InitialBackoff
	}
	if cfg.AckTimeout <= 0 {
		cfg.AckTimeout = def.AckTimeout
	}
	if cfg.MaxFanout <= 0 {
		cfg.MaxFanout = def.MaxFanout
	}
	return &Dispatcher{
		deliverer: deliverer,
		ledger:    ledger,
		cfg:       cfg,
		policy: retry.Policy{
			MaxRetries:   cfg.MaxAttempts - 1,
			InitialDelay: cfg.InitialBackoff,
			MaxDelay:     cfg.MaxBackoff,
			Multiplier:   2,
		},
		logger:   logger.With(zap.String("component", "broadcast_dispatcher")),
		now:      time.Now,
		inflight: make(map[string]*inflight),
	}
}

// Ledger 返回台账
func (d *Dispatcher) Ledger() Ledger { return d.ledger }

// Broadcast 向所有收件人投递消息，所有收件人进入终态后返回结果。
// 单个收件人失败不会中断其他收件人，取消 ctx 会使未完成的收件人失败。
func (d *Dispatcher) Broadcast(ctx context.Context, msg SystemMessage) (*Result, error) {
	started := d.now()
	recipients, err := d.validate(msg, started)
	if err != nil {
		return nil, err
	}
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}

	state := &inflight{acks: make(map[string]chan struct{}, len(recipients)), reads: make(map[string]time.Time)}
	for _, r := range recipients {
		state.acks[r] = make(chan struct{}, 1)
	}
	d.mu.Lock()
	if _, busy := d.inflight[msg.ID]; busy {
		d.mu.Unlock()
		return nil, types.Errorf(types.ErrInvalidInput, "message %q is already being broadcast", msg.ID)
	}
	d.inflight[msg.ID] = state
	d.mu.Unlock()
	defer func() {
		d.mu.Lock()
		delete(d.inflight, msg.ID)
		d.mu.Unlock()
	}()

	broadcastID := uuid.NewString()
	if err := d.ledger.Begin(ctx, LedgerRecord{
		BroadcastID: broadcastID,
		MessageID:   msg.ID,
		SenderID:    msg.SenderID,
		Recipients:  recipients,
		AckRequired: msg.Delivery.AcknowledgmentRequired,
		ExpiresAt:   msg.Delivery.ExpirationTime,
		CreatedAt:   started,
	}); err != nil {
		d.logger.Warn("ledger begin failed", zap.String("message_id", msg.ID), zap.Error(err))
	}

	outcomes := make([]RecipientOutcome, len(recipients))
	g := new(errgroup.Group)
	g.SetLimit(d.cfg.MaxFanout)
	for i, r := range recipients {
		env := Envelope{
			BroadcastID: broadcastID,
			MessageID:   msg.ID,
			Recipient:   r,
			SenderID:    msg.SenderID,
			Type:        msg.Type,
			Content:     msg.Content,
			Priority:    msg.Priority.OrDefault(),
			AckRequired: msg.Delivery.AcknowledgmentRequired,
			ExpiresAt:   msg.Delivery.ExpirationTime,
		}
		ackCh := state.acks[r]
		g.Go(func() error {
			outcomes[i] = d.deliverTo(ctx, env, ackCh)
			if err := d.ledger.Update(context.WithoutCancel(ctx), env.MessageID, outcomes[i]); err != nil {
				d.logger.Warn("ledger update failed", zap.String("recipient", r), zap.Error(err))
			}
			return nil
		})
	}
	_ = g.Wait()

	result := &Result{
		BroadcastID:             broadcastID,
		MessageID:               msg.ID,
		RecipientsReached:       []string{},
		AcknowledgmentsReceived: []string{},
		FailedDeliveries:        []string{},
		ReadReceipts:            []string{},
		Outcomes:                outcomes,
		StartedAt:               started,
	}
	state.mu.Lock()
	for i := range outcomes {
		if at, ok := state.reads[outcomes[i].Recipient]; ok {
			outcomes[i].ReadAt = at
		}
	}
	state.mu.Unlock()
	for _, o := range outcomes {
		if o.Reached() {
			result.RecipientsReached = append(result.RecipientsReached, o.Recipient)
		}
		switch o.Status {
		case StatusAcknowledged:
			result.AcknowledgmentsReceived = append(result.AcknowledgmentsReceived, o.Recipient)
		case StatusFailed:
			result.FailedDeliveries = append(result.FailedDeliveries, o.Recipient)
		}
		if !o.ReadAt.IsZero() {
			result.ReadReceipts = append(result.ReadReceipts, o.Recipient)
		}
	}
	result.RetryStrategy = RetryStrategy{
		MaxAttempts:    d.cfg.MaxAttempts,
		InitialBackoff: d.cfg.InitialBackoff,
		MaxBackoff:     d.cfg.MaxBackoff,
		Multiplier:     d.policy.Multiplier,
		AckTimeout:     d.cfg.AckTimeout,
		Recommendation: "none",
	}
	if len(result.FailedDeliveries) > 0 {
		result.RetryStrategy.Recommendation = "redeliver_failed_recipients"
	}
	result.CompletedAt = d.now()

	if err := d.ledger.Finish(context.WithoutCancel(ctx), msg.ID); err != nil {
		d.logger.Warn("ledger finish failed", zap.String("message_id", msg.ID), zap.Error(err))
	}

	d.logger.Info("broadcast completed",
		zap.String("message_id", msg.ID),
		zap.Int("recipients", len(recipients)),
		zap.Int("reached", len(result.RecipientsReached)),
		zap.Int("acknowledged", len(result.AcknowledgmentsReceived)),
		zap.Int("failed", len(result.FailedDeliveries)),
	)
	return result, nil
}

func (d *Dispatcher) validate(msg SystemMessage, now time.Time) ([]string, error) {
	exp := msg.Delivery.ExpirationTime
	if !exp.IsZero() && !exp.After(now) {
		return nil, types.Errorf(types.ErrMessageExpired, "message expired at %s", exp.Format(time.RFC3339))
	}
	if strings.TrimSpace(msg.SenderID) == "" {
		return nil, types.NewError(types.ErrInvalidInput, "sender id is required")
	}
	if len(msg.Recipients) == 0 {
		return nil, types.NewError(types.ErrInvalidInput, "at least one recipient is required")
	}
	seen := make(map[string]bool, len(msg.Recipients))
	recipients := make([]string, 0, len(msg.Recipients))
	for _, r := range msg.Recipients {
		if strings.TrimSpace(r) == "" {
			return nil, types.NewError(types.ErrInvalidInput, "recipient id must not be empty")
		}
		if seen[r] {
			continue
		}
		seen[r] = true
		recipients = append(recipients, r)
	}
	return recipients, nil
}

// deliverTo 在重试预算内投递并等待确认
func (d *Dispatcher) deliverTo(ctx context.Context, env Envelope, ackCh <-chan struct{}) RecipientOutcome {
	out := RecipientOutcome{Recipient: env.Recipient, Status: StatusPending}
	acked := func() bool {
		select {
		case <-ackCh:
			out.Status = StatusAcknowledged
			out.AcknowledgedAt = d.now()
			return true
		default:
			return false
		}
	}

	for attempt := 1; attempt <= d.cfg.MaxAttempts; attempt++ {
		if attempt > 1 {
			if err := retry.Sleep(ctx, d.policy.Backoff(attempt-1)); err != nil {
				out.LastError = err.Error()
				break
			}
		}
		if env.AckRequired && out.Reached() && acked() {
			out.LastError = ""
			return out
		}
		if ctx.Err() != nil {
			out.LastError = ctx.Err().Error()
			break
		}
		if !env.ExpiresAt.IsZero() && !env.ExpiresAt.After(d.now()) {
			out.LastError = "message expired"
			break
		}

		out.Attempts = attempt
		env.Attempt = attempt
		env.SentAt = d.now()
		sendCtx, cancel := d.deadlineCtx(ctx, env.ExpiresAt)
		err := d.deliverer.Deliver(sendCtx, env)
		cancel()
		if err != nil {
			out.LastError = err.Error()
			d.logger.Debug("delivery attempt failed",
				zap.String("message_id", env.MessageID),
				zap.String("recipient", env.Recipient),
				zap.Int("attempt", attempt),
				zap.Error(err),
			)
			continue
		}
		if !out.Reached() {
			out.DeliveredAt = d.now()
		}
		if !env.AckRequired {
			out.Status = StatusDelivered
			out.LastError = ""
			return out
		}

		wait := d.cfg.AckTimeout
		if !env.ExpiresAt.IsZero() {
			if remaining := env.ExpiresAt.Sub(d.now()); remaining < wait {
				wait = remaining
			}
		}
		timer := time.NewTimer(wait)
		select {
		case <-ackCh:
			timer.Stop()
			out.Status = StatusAcknowledged
			out.AcknowledgedAt = d.now()
			out.LastError = ""
			return out
		case <-timer.C:
			out.LastError = "acknowledgment timeout"
		case <-ctx.Done():
			timer.Stop()
			out.LastError = ctx.Err().Error()
		}
		if ctx.Err() != nil {
			break
		}
	}

	if env.AckRequired && out.Reached() && acked() {
		out.LastError = ""
		return out
	}
	out.Status = StatusFailed
	return out
}

func (d *Dispatcher) deadlineCtx(ctx context.Context, expiresAt time.Time) (context.Context, context.CancelFunc) {
	if expiresAt.IsZero() {
		return context.WithCancel(ctx)
	}
	return context.WithDeadline(ctx, expiresAt)
}

// Acknowledge 记录收件人对消息的确认。
// 广播进行中时唤醒等待；已结束的广播只更新台账。
func (d *Dispatcher) Acknowledge(ctx context.Context, messageID, recipient string) error {
	d.mu.Lock()
	state, ok := d.inflight[messageID]
	d.mu.Unlock()

	if ok {
		if ch, found := state.acks[recipient]; found {
			select {
			case ch <- struct{}{}:
			default:
			}
			return nil
		}
		return types.Errorf(types.ErrNotFound, "%q is not a recipient of message %q", recipient, messageID)
	}

	rec, err := d.ledger.Get(ctx, messageID)
	if err != nil {
		return err
	}
	o, found := rec.Outcomes[recipient]
	if !found {
		return types.Errorf(types.ErrNotFound, "%q is not a recipient of message %q", recipient, messageID)
	}
	if o.Reached() && o.AcknowledgedAt.IsZero() {
		o.AcknowledgedAt = d.now()
		d.logger.Info("late acknowledgment recorded",
			zap.String("message_id", messageID),
			zap.String("recipient", recipient),
		)
		return d.ledger.Update(ctx, messageID, o)
	}
	return nil
}

// RecordReadReceipt 记录已读回执
func (d *Dispatcher) RecordReadReceipt(ctx context.Context, messageID, recipient string) error {
	d.mu.Lock()
	state, ok := d.inflight[messageID]
	d.mu.Unlock()

	if ok {
		if _, found := state.acks[recipient]; !found {
			return types.Errorf(types.ErrNotFound, "%q is not a recipient of message %q", recipient, messageID)
		}
		state.mu.Lock()
		if _, seen := state.reads[recipient]; !seen {
			state.reads[recipient] = d.now()
		}
		state.mu.Unlock()
		return nil
	}

	rec, err := d.ledger.Get(ctx, messageID)
	if err != nil {
		return err
	}
	o, found := rec.Outcomes[recipient]
	if !found {
		return types.Errorf(types.ErrNotFound, "%q is not a recipient of message %q", recipient, messageID)
	}
	if o.ReadAt.IsZero() {
		o.ReadAt = d.now()
		return d.ledger.Update(ctx, messageID, o)
	}
	return nil
}
