package broadcast

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWriter struct {
	mu     sync.Mutex
	msgs   []kafka.Message
	err    error
	closed bool
}

func (w *fakeWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

type fakeReader struct {
	msgs chan kafka.Message
}

func (r *fakeReader) ReadMessage(ctx context.Context) (kafka.Message, error) {
	select {
	case m := <-r.msgs:
		return m, nil
	case <-ctx.Done():
		return kafka.Message{}, ctx.Err()
	}
}

func (r *fakeReader) Close() error { return nil }

type recordingAcks struct {
	mu    sync.Mutex
	acks  []string
	reads []string
	done  chan struct{}
	want  int
}

func (h *recordingAcks) Acknowledge(_ context.Context, messageID, recipient string) error {
	h.record(&h.acks, messageID+"/"+recipient)
	return nil
}

func (h *recordingAcks) RecordReadReceipt(_ context.Context, messageID, recipient string) error {
	h.record(&h.reads, messageID+"/"+recipient)
	return nil
}

func (h *recordingAcks) record(dst *[]string, v string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	*dst = append(*dst, v)
	if len(h.acks)+len(h.reads) == h.want {
		close(h.done)
	}
}

func TestKafkaDeliverer_WritesPerRecipientTopic(t *testing.T) {
	t.Parallel()

	w := &fakeWriter{}
	cfg := DefaultKafkaConfig()
	d := newKafkaDeliverer(w, cfg, nil)

	env := Envelope{MessageID: "m-1", Recipient: "agent-7", Type: MessageAlert, Priority: "high", Attempt: 2, SentAt: time.Now()}
	require.NoError(t, d.Deliver(context.Background(), env))

	require.Len(t, w.msgs, 1)
	msg := w.msgs[0]
	assert.Equal(t, "collab.agent.agent-7", msg.Topic)
	assert.Equal(t, "m-1", string(msg.Key))

	var decoded Envelope
	require.NoError(t, json.Unmarshal(msg.Value, &decoded))
	assert.Equal(t, "agent-7", decoded.Recipient)
	assert.Equal(t, 2, decoded.Attempt)

	headers := map[string]string{}
	for _, h := range msg.Headers {
		headers[h.Key] = string(h.Value)
	}
	assert.Equal(t, "alert", headers["message_type"])
	assert.Equal(t, "2", headers["attempt"])

	require.NoError(t, d.Close())
	assert.True(t, w.closed)
}

func TestKafkaDeliverer_WriteErrorIsRetriedByDispatcher(t *testing.T) {
	t.Parallel()

	w := &fakeWriter{err: errors.New("leader not available")}
	d := NewDispatcher(newKafkaDeliverer(w, DefaultKafkaConfig(), nil), nil, fastConfig(), nil)

	res, err := d.Broadcast(context.Background(), message("a"))
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, res.FailedDeliveries)
	assert.Contains(t, res.Outcomes[0].LastError, "leader not available")
	assert.Equal(t, 2, res.Outcomes[0].Attempts)
}

func TestKafkaDeliverer_RateLimited(t *testing.T) {
	t.Parallel()

	cfg := DefaultKafkaConfig()
	cfg.RatePerSecond = 0.5
	d := newKafkaDeliverer(&fakeWriter{}, cfg, nil)
	require.NotNil(t, d.limiter)

	require.NoError(t, d.Deliver(context.Background(), Envelope{Recipient: "a"}))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.Error(t, d.Deliver(ctx, Envelope{Recipient: "a"}))
}

func TestNewKafkaDeliverer_RequiresBrokers(t *testing.T) {
	t.Parallel()

	_, err := NewKafkaDeliverer(KafkaConfig{}, nil)
	assert.Error(t, err)

	d, err := NewKafkaDeliverer(DefaultKafkaConfig(), nil)
	require.NoError(t, err)
	assert.Equal(t, "collab.agent.x", d.Topic("x"))
}

func TestNewKafkaDeliverer_TLSTransport(t *testing.T) {
	t.Parallel()

	cfg := DefaultKafkaConfig()
	d, err := NewKafkaDeliverer(cfg, nil)
	require.NoError(t, err)
	w, ok := d.writer.(*kafka.Writer)
	require.True(t, ok)
	assert.Nil(t, w.Transport)

	cfg.TLS = &tls.Config{MinVersion: tls.VersionTLS12, ServerName: "localhost"}
	d, err = NewKafkaDeliverer(cfg, nil)
	require.NoError(t, err)
	w = d.writer.(*kafka.Writer)
	tr, ok := w.Transport.(*kafka.Transport)
	require.True(t, ok)
	assert.Same(t, cfg.TLS, tr.TLS)
}

func TestAckListener_RoutesFrames(t *testing.T) {
	t.Parallel()

	r := &fakeReader{msgs: make(chan kafka.Message, 4)}
	h := &recordingAcks{done: make(chan struct{}), want: 2}
	l := newAckListener(r, h, nil)

	encode := func(f AckFrame) []byte {
		b, _ := json.Marshal(f)
		return b
	}
	r.msgs <- kafka.Message{Value: []byte("{not json")}
	r.msgs <- kafka.Message{Value: encode(AckFrame{Kind: AckKindAcknowledge, MessageID: "m", Recipient: "a"})}
	r.msgs <- kafka.Message{Value: encode(AckFrame{Kind: "bogus", MessageID: "m", Recipient: "a"})}
	r.msgs <- kafka.Message{Value: encode(AckFrame{Kind: AckKindRead, MessageID: "m", Recipient: "b"})}

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- l.Run(ctx) }()

	select {
	case <-h.done:
	case <-time.After(2 * time.Second):
		t.Fatal("ack frames not routed")
	}
	cancel()
	require.NoError(t, <-errCh)
	require.NoError(t, l.Close())

	assert.Equal(t, []string{"m/a"}, h.acks)
	assert.Equal(t, []string{"m/b"}, h.reads)
}

func TestAckFrame_Apply(t *testing.T) {
	t.Parallel()

	h := &recordingAcks{done: make(chan struct{}), want: -1}
	assert.Error(t, AckFrame{MessageID: "", Recipient: "a"}.Apply(context.Background(), h))
	require.NoError(t, AckFrame{MessageID: "m", Recipient: "a"}.Apply(context.Background(), h))
	assert.Equal(t, []string{"m/a"}, h.acks)
}
