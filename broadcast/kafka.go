package broadcast

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// KafkaConfig Kafka 投递配置
type KafkaConfig struct {
	Brokers      []string      `yaml:"brokers" json:"brokers"`
	TopicPrefix  string        `yaml:"topic_prefix" json:"topic_prefix"`
	AckTopic     string        `yaml:"ack_topic" json:"ack_topic"`
	GroupID      string        `yaml:"group_id" json:"group_id"`
	BatchTimeout time.Duration `yaml:"batch_timeout" json:"batch_timeout"`

	// RatePerSecond 每秒最多写入的信封数，0 表示不限速
	RatePerSecond float64 `yaml:"rate_per_second" json:"rate_per_second"`

	// TLS 非空时 writer 与 reader 均走 TLS
	TLS *tls.Config `yaml:"-" json:"-"`
}

// DefaultKafkaConfig 默认 Kafka 配置
func DefaultKafkaConfig() KafkaConfig {
	return KafkaConfig{
		Brokers:      []string{"localhost:9092"},
		TopicPrefix:  "collab.agent.",
		AckTopic:     "collab.acks",
		GroupID:      "collabengine",
		BatchTimeout: 10 * time.Millisecond,
	}
}

// kafkaWriter kafka.Writer 的最小接口
type kafkaWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaDeliverer 每个收件人一个 topic，以消息 ID 作为 key
type KafkaDeliverer struct {
	writer  kafkaWriter
	prefix  string
	limiter *rate.Limiter
	logger  *zap.Logger
}

// NewKafkaDeliverer 创建 Kafka 投递器
func NewKafkaDeliverer(cfg KafkaConfig, logger *zap.Logger) (*KafkaDeliverer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("kafka: at least one broker is required")
	}
	w := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		BatchTimeout:           cfg.BatchTimeout,
		AllowAutoTopicCreation: true,
	}
	if cfg.TLS != nil {
		w.Transport = &kafka.Transport{TLS: cfg.TLS}
	}
	return newKafkaDeliverer(w, cfg, logger), nil
}

func newKafkaDeliverer(w kafkaWriter, cfg KafkaConfig, logger *zap.Logger) *KafkaDeliverer {
	if logger == nil {
		logger = zap.NewNop()
	}
	d := &KafkaDeliverer{
		writer: w,
		prefix: cfg.TopicPrefix,
		logger: logger.With(zap.String("component", "kafka_deliverer")),
	}
	if cfg.RatePerSecond > 0 {
		burst := int(cfg.RatePerSecond)
		if burst < 1 {
			burst = 1
		}
		d.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSecond), burst)
	}
	return d
}

// Topic 收件人对应的 topic
func (d *KafkaDeliverer) Topic(recipient string) string {
	return d.prefix + recipient
}

// Deliver 实现 Deliverer
func (d *KafkaDeliverer) Deliver(ctx context.Context, env Envelope) error {
	if d.limiter != nil {
		if err := d.limiter.Wait(ctx); err != nil {
			return err
		}
	}
	value, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("encode envelope: %w", err)
	}
	msg := kafka.Message{
		Topic: d.Topic(env.Recipient),
		Key:   []byte(env.MessageID),
		Value: value,
		Headers: []kafka.Header{
			{Key: "message_type", Value: []byte(env.Type)},
			{Key: "priority", Value: []byte(env.Priority)},
			{Key: "attempt", Value: []byte(fmt.Sprint(env.Attempt))},
		},
		Time: env.SentAt,
	}
	if err := d.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("kafka write to %s: %w", msg.Topic, err)
	}
	return nil
}

// Close 关闭底层 writer
func (d *KafkaDeliverer) Close() error {
	return d.writer.Close()
}

// AckKind 回执类型
type AckKind string

const (
	AckKindAcknowledge AckKind = "ack"
	AckKindRead        AckKind = "read"
)

// AckFrame Agent 回传的确认或已读回执
type AckFrame struct {
	Kind      AckKind `json:"kind"`
	MessageID string  `json:"message_id"`
	Recipient string  `json:"recipient"`
}

// AckHandler 接收回执，Dispatcher 实现该接口
type AckHandler interface {
	Acknowledge(ctx context.Context, messageID, recipient string) error
	RecordReadReceipt(ctx context.Context, messageID, recipient string) error
}

// Apply 将回执转交给 handler
func (f AckFrame) Apply(ctx context.Context, h AckHandler) error {
	if strings.TrimSpace(f.MessageID) == "" || strings.TrimSpace(f.Recipient) == "" {
		return errors.New("ack frame requires message_id and recipient")
	}
	switch f.Kind {
	case AckKindRead:
		return h.RecordReadReceipt(ctx, f.MessageID, f.Recipient)
	case AckKindAcknowledge, "":
		return h.Acknowledge(ctx, f.MessageID, f.Recipient)
	default:
		return fmt.Errorf("unknown ack kind %q", f.Kind)
	}
}

// kafkaReader kafka.Reader 的最小接口
type kafkaReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

// AckListener 从回执 topic 消费 AckFrame
type AckListener struct {
	reader  kafkaReader
	handler AckHandler
	logger  *zap.Logger
}

// NewAckListener 创建回执监听器
func NewAckListener(cfg KafkaConfig, handler AckHandler, logger *zap.Logger) *AckListener {
	rc := kafka.ReaderConfig{
		Brokers:  cfg.Brokers,
		Topic:    cfg.AckTopic,
		GroupID:  cfg.GroupID,
		MinBytes: 1,
		MaxBytes: 10e6,
	}
	if cfg.TLS != nil {
		rc.Dialer = &kafka.Dialer{Timeout: 10 * time.Second, DualStack: true, TLS: cfg.TLS}
	}
	r := kafka.NewReader(rc)
	return newAckListener(r, handler, logger)
}

func newAckListener(r kafkaReader, handler AckHandler, logger *zap.Logger) *AckListener {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AckListener{
		reader:  r,
		handler: handler,
		logger:  logger.With(zap.String("component", "ack_listener")),
	}
}

// Run 持续消费直到 ctx 取消
func (l *AckListener) Run(ctx context.Context) error {
	for {
		msg, err := l.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, io.EOF) {
				return nil
			}
			l.logger.Warn("ack read error", zap.Error(err))
			continue
		}
		var frame AckFrame
		if err := json.Unmarshal(msg.Value, &frame); err != nil {
			l.logger.Warn("malformed ack frame", zap.ByteString("key", msg.Key), zap.Error(err))
			continue
		}
		if err := frame.Apply(ctx, l.handler); err != nil {
			l.logger.Warn("ack rejected",
				zap.String("message_id", frame.MessageID),
				zap.String("recipient", frame.Recipient),
				zap.Error(err),
			)
		}
	}
}

// Close 关闭 reader
func (l *AckListener) Close() error {
	return l.reader.Close()
}
