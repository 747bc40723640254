package mocks

import (
	"context"
	"errors"
	"sync"

	"github.com/BaSui01/collabengine/broadcast"
)

// ErrDeliveryRefused 注入的投递失败
var ErrDeliveryRefused = errors.New("delivery refused")

// RecordingDeliverer 记录所有投递，可按收件人注入失败，并在投递后回调
type RecordingDeliverer struct {
	mu        sync.Mutex
	envelopes []broadcast.Envelope
	failing   map[string]bool
	onDeliver func(env broadcast.Envelope)
}

var _ broadcast.Deliverer = (*RecordingDeliverer)(nil)

// NewRecordingDeliverer 创建记录型投递器
func NewRecordingDeliverer() *RecordingDeliverer {
	return &RecordingDeliverer{failing: make(map[string]bool)}
}

// FailFor 让发往这些收件人的投递始终失败
func (d *RecordingDeliverer) FailFor(recipients ...string) *RecordingDeliverer {
	d.mu.Lock()
	for _, r := range recipients {
		d.failing[r] = true
	}
	d.mu.Unlock()
	return d
}

// OnDeliver 设置成功投递后的回调，回调在独立 goroutine 中执行
func (d *RecordingDeliverer) OnDeliver(fn func(env broadcast.Envelope)) *RecordingDeliverer {
	d.mu.Lock()
	d.onDeliver = fn
	d.mu.Unlock()
	return d
}

// Deliver 实现 broadcast.Deliverer
func (d *RecordingDeliverer) Deliver(ctx context.Context, env broadcast.Envelope) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	d.mu.Lock()
	d.envelopes = append(d.envelopes, env)
	fail := d.failing[env.Recipient]
	fn := d.onDeliver
	d.mu.Unlock()

	if fail {
		return ErrDeliveryRefused
	}
	if fn != nil {
		go fn(env)
	}
	return nil
}

// Envelopes 返回投递记录副本
func (d *RecordingDeliverer) Envelopes() []broadcast.Envelope {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]broadcast.Envelope(nil), d.envelopes...)
}
