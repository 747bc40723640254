package broadcast

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/collabengine/testutil"
	"github.com/BaSui01/collabengine/types"
)

func fastConfig() Config {
	return Config{
		MaxAttempts:    2,
		InitialBackoff: 5 * time.Millisecond,
		MaxBackoff:     10 * time.Millisecond,
		AckTimeout:     50 * time.Millisecond,
		MaxFanout:      8,
	}
}

func message(recipients ...string) SystemMessage {
	return SystemMessage{
		ID:         "msg-1",
		SenderID:   "ops",
		Recipients: recipients,
		Type:       MessageDirective,
		Content:    Content{Subject: "rotate keys", Body: "rotate before midnight"},
		Priority:   types.PriorityHigh,
	}
}

func TestDispatcher_AckRequired_OneRecipientSilent(t *testing.T) {
	var d *Dispatcher
	d = NewDispatcher(DelivererFunc(func(ctx context.Context, env Envelope) error {
		if env.Recipient != "agent-3" {
			go func() { _ = d.Acknowledge(context.Background(), env.MessageID, env.Recipient) }()
		}
		return nil
	}), nil, fastConfig(), zap.NewNop())

	msg := message("agent-1", "agent-2", "agent-3", "agent-4", "agent-5")
	msg.Delivery.AcknowledgmentRequired = true

	res, err := d.Broadcast(context.Background(), msg)
	require.NoError(t, err)

	assert.Equal(t, []string{"agent-1", "agent-2", "agent-3", "agent-4", "agent-5"}, res.RecipientsReached)
	assert.Equal(t, []string{"agent-1", "agent-2", "agent-4", "agent-5"}, res.AcknowledgmentsReceived)
	assert.Equal(t, []string{"agent-3"}, res.FailedDeliveries)
	assert.NotContains(t, res.AcknowledgmentsReceived, "agent-3")
	assert.Equal(t, "redeliver_failed_recipients", res.RetryStrategy.Recommendation)

	silent := res.Outcomes[2]
	assert.Equal(t, "agent-3", silent.Recipient)
	assert.Equal(t, StatusFailed, silent.Status)
	assert.Equal(t, 2, silent.Attempts)
	assert.Equal(t, "acknowledgment timeout", silent.LastError)

	rec, err := d.Ledger().Get(context.Background(), "msg-1")
	require.NoError(t, err)
	assert.True(t, rec.Finished)
	assert.Equal(t, StatusAcknowledged, rec.Outcomes["agent-1"].Status)
	assert.Equal(t, StatusFailed, rec.Outcomes["agent-3"].Status)
}

func TestDispatcher_NoAckRequired(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	d := NewDispatcher(DelivererFunc(func(ctx context.Context, env Envelope) error {
		calls.Add(1)
		return nil
	}), nil, fastConfig(), nil)

	res, err := d.Broadcast(context.Background(), message("a", "b", "a", "c"))
	require.NoError(t, err)

	assert.EqualValues(t, 3, calls.Load())
	assert.Equal(t, []string{"a", "b", "c"}, res.RecipientsReached)
	assert.Empty(t, res.AcknowledgmentsReceived)
	assert.Empty(t, res.FailedDeliveries)
	assert.Equal(t, "none", res.RetryStrategy.Recommendation)
	for _, o := range res.Outcomes {
		assert.Equal(t, StatusDelivered, o.Status)
		assert.Equal(t, 1, o.Attempts)
	}
}

func TestDispatcher_RetriesTransientFailure(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	attempts := map[string]int{}
	d := NewDispatcher(DelivererFunc(func(ctx context.Context, env Envelope) error {
		mu.Lock()
		defer mu.Unlock()
		attempts[env.Recipient]++
		if env.Recipient == "flaky" && attempts[env.Recipient] == 1 {
			return ErrMailboxFull
		}
		return nil
	}), nil, fastConfig(), nil)

	res, err := d.Broadcast(context.Background(), message("steady", "flaky"))
	require.NoError(t, err)
	assert.Empty(t, res.FailedDeliveries)
	assert.Equal(t, 2, res.Outcomes[1].Attempts)
	assert.Equal(t, StatusDelivered, res.Outcomes[1].Status)
	assert.Empty(t, res.Outcomes[1].LastError)
}

func TestDispatcher_PermanentFailureDoesNotAffectOthers(t *testing.T) {
	t.Parallel()

	d := NewDispatcher(DelivererFunc(func(ctx context.Context, env Envelope) error {
		if env.Recipient == "gone" {
			return ErrUnknownRecipient
		}
		return nil
	}), nil, fastConfig(), nil)

	res, err := d.Broadcast(context.Background(), message("gone", "here"))
	require.NoError(t, err)
	assert.Equal(t, []string{"here"}, res.RecipientsReached)
	assert.Equal(t, []string{"gone"}, res.FailedDeliveries)
	assert.Equal(t, 2, res.Outcomes[0].Attempts)
	assert.Contains(t, res.Outcomes[0].LastError, "no mailbox")
}

func TestDispatcher_Validation(t *testing.T) {
	t.Parallel()

	d := NewDispatcher(DelivererFunc(func(context.Context, Envelope) error { return nil }), nil, fastConfig(), nil)

	expired := message("a")
	expired.Delivery.ExpirationTime = time.Now().Add(-time.Minute)
	_, err := d.Broadcast(context.Background(), expired)
	assert.True(t, types.IsErrorCode(err, types.ErrMessageExpired))

	_, err = d.Broadcast(context.Background(), message())
	assert.True(t, types.IsErrorCode(err, types.ErrInvalidInput))

	noSender := message("a")
	noSender.SenderID = " "
	_, err = d.Broadcast(context.Background(), noSender)
	assert.True(t, types.IsErrorCode(err, types.ErrInvalidInput))

	_, err = d.Broadcast(context.Background(), message("a", ""))
	assert.True(t, types.IsErrorCode(err, types.ErrInvalidInput))
}

func TestDispatcher_GeneratesMessageID(t *testing.T) {
	t.Parallel()

	d := NewDispatcher(DelivererFunc(func(context.Context, Envelope) error { return nil }), nil, fastConfig(), nil)
	msg := message("a")
	msg.ID = ""
	res, err := d.Broadcast(context.Background(), msg)
	require.NoError(t, err)
	assert.NotEmpty(t, res.MessageID)
	assert.NotEmpty(t, res.BroadcastID)
}

func TestDispatcher_Cancellation(t *testing.T) {
	t.Parallel()

	d := NewDispatcher(DelivererFunc(func(ctx context.Context, env Envelope) error {
		<-ctx.Done()
		return ctx.Err()
	}), nil, fastConfig(), nil)

	res, err := d.Broadcast(testutil.TestContextWithTimeout(t, 20*time.Millisecond), message("a", "b"))
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, res.FailedDeliveries)
	assert.Empty(t, res.RecipientsReached)
}

func TestDispatcher_RejectsConcurrentDuplicateID(t *testing.T) {
	t.Parallel()

	started := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	d := NewDispatcher(DelivererFunc(func(ctx context.Context, env Envelope) error {
		once.Do(func() { close(started) })
		<-release
		return nil
	}), nil, fastConfig(), nil)

	done := make(chan error, 1)
	go func() {
		_, err := d.Broadcast(context.Background(), message("a"))
		done <- err
	}()
	<-started

	_, err := d.Broadcast(context.Background(), message("b"))
	assert.True(t, types.IsErrorCode(err, types.ErrInvalidInput))

	close(release)
	require.NoError(t, <-done)
}

func TestDispatcher_LateAcknowledgeAndReadReceipt(t *testing.T) {
	t.Parallel()

	d := NewDispatcher(DelivererFunc(func(context.Context, Envelope) error { return nil }), nil, fastConfig(), nil)
	msg := message("slow")
	msg.Delivery.AcknowledgmentRequired = true

	res, err := d.Broadcast(context.Background(), msg)
	require.NoError(t, err)
	require.Equal(t, []string{"slow"}, res.FailedDeliveries)

	ctx := context.Background()
	require.NoError(t, d.Acknowledge(ctx, "msg-1", "slow"))
	require.NoError(t, d.RecordReadReceipt(ctx, "msg-1", "slow"))

	rec, err := d.Ledger().Get(ctx, "msg-1")
	require.NoError(t, err)
	assert.False(t, rec.Outcomes["slow"].AcknowledgedAt.IsZero())
	assert.False(t, rec.Outcomes["slow"].ReadAt.IsZero())

	err = d.Acknowledge(ctx, "msg-1", "stranger")
	assert.True(t, types.IsErrorCode(err, types.ErrNotFound))
	err = d.Acknowledge(ctx, "unknown", "slow")
	assert.True(t, types.IsErrorCode(err, types.ErrNotFound))
}

func TestDispatcher_ReadReceiptDuringBroadcast(t *testing.T) {
	t.Parallel()

	var d *Dispatcher
	d = NewDispatcher(DelivererFunc(func(ctx context.Context, env Envelope) error {
		assert.NoError(t, d.RecordReadReceipt(ctx, env.MessageID, env.Recipient))
		return d.Acknowledge(ctx, env.MessageID, env.Recipient)
	}), nil, fastConfig(), nil)

	msg := message("reader")
	msg.Delivery.AcknowledgmentRequired = true
	msg.Delivery.ReadReceipt = true

	res, err := d.Broadcast(context.Background(), msg)
	require.NoError(t, err)
	assert.Equal(t, []string{"reader"}, res.AcknowledgmentsReceived)
	assert.Equal(t, []string{"reader"}, res.ReadReceipts)
}

func TestDispatcher_LedgerFailureIsNotFatal(t *testing.T) {
	t.Parallel()

	d := NewDispatcher(DelivererFunc(func(context.Context, Envelope) error { return nil }), failingLedger{}, fastConfig(), nil)
	res, err := d.Broadcast(context.Background(), message("a"))
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, res.RecipientsReached)
}

type failingLedger struct{}

var errLedgerDown = errors.New("ledger down")

func (failingLedger) Begin(context.Context, LedgerRecord) error { return errLedgerDown }
func (failingLedger) Update(context.Context, string, RecipientOutcome) error { return errLedgerDown }
func (failingLedger) Finish(context.Context, string) error { return errLedgerDown }
func (failingLedger) Get(context.Context, string) (*LedgerRecord, error) { return nil, errLedgerDown }
func (failingLedger) Pending(context.Context) ([]string, error) { return nil, errLedgerDown }
