package broadcast

import (
	"time"

	"github.com/BaSui01/collabengine/types"
)

// MessageType 系统消息类型
type MessageType string

const (
	MessageAnnouncement MessageType = "announcement"
	MessageDirective    MessageType = "directive"
	MessageAlert        MessageType = "alert"
	MessageStatusUpdate MessageType = "status_update"
	MessageCoordination MessageType = "coordination"
)

// Content 消息内容
type Content struct {
	Subject string            `json:"subject"`
	Body    string            `json:"body"`
	Payload map[string]string `json:"payload,omitempty"`
}

// DeliveryRequirements 投递要求
type DeliveryRequirements struct {
	AcknowledgmentRequired bool      `json:"acknowledgment_required"`
	ReadReceipt            bool      `json:"read_receipt"`
	ExpirationTime         time.Time `json:"expiration_time,omitempty"`
}

// SystemMessage 待广播的系统消息
type SystemMessage struct {
	ID         string               `json:"id"`
	SenderID   string               `json:"sender_id"`
	Recipients []string             `json:"recipients"`
	Type       MessageType          `json:"type"`
	Content    Content              `json:"content"`
	Priority   types.Priority       `json:"priority,omitempty"`
	Delivery   DeliveryRequirements `json:"delivery_requirements"`
}

// Envelope 单个收件人的投递单元
type Envelope struct {
	BroadcastID string         `json:"broadcast_id"`
	MessageID   string         `json:"message_id"`
	Recipient   string         `json:"recipient"`
	SenderID    string         `json:"sender_id"`
	Type        MessageType    `json:"type"`
	Content     Content        `json:"content"`
	Priority    types.Priority `json:"priority"`
	AckRequired bool           `json:"ack_required"`
	ExpiresAt   time.Time      `json:"expires_at,omitempty"`
	Attempt     int            `json:"attempt"`
	SentAt      time.Time      `json:"sent_at"`
}

// DeliveryStatus 收件人投递状态
type DeliveryStatus string

const (
	StatusPending      DeliveryStatus = "pending"
	StatusDelivered    DeliveryStatus = "delivered"
	StatusAcknowledged DeliveryStatus = "acknowledged"
	StatusFailed       DeliveryStatus = "failed"
)

// Terminal 是否为终态
func (s DeliveryStatus) Terminal() bool {
	return s == StatusDelivered || s == StatusAcknowledged || s == StatusFailed
}

// RecipientOutcome 单个收件人的投递结果
type RecipientOutcome struct {
	Recipient      string         `json:"recipient"`
	Status         DeliveryStatus `json:"status"`
	Attempts       int            `json:"attempts"`
	LastError      string         `json:"last_error,omitempty"`
	DeliveredAt    time.Time      `json:"delivered_at,omitempty"`
	AcknowledgedAt time.Time      `json:"acknowledged_at,omitempty"`
	ReadAt         time.Time      `json:"read_at,omitempty"`
}

// Reached 消息至少送达过一次
func (o RecipientOutcome) Reached() bool { return !o.DeliveredAt.IsZero() }

// RetryStrategy 本次广播使用的重试策略及后续建议
type RetryStrategy struct {
	MaxAttempts    int           `json:"max_attempts"`
	InitialBackoff time.Duration `json:"initial_backoff"`
	MaxBackoff     time.Duration `json:"max_backoff"`
	Multiplier     float64       `json:"multiplier"`
	AckTimeout     time.Duration `json:"ack_timeout"`
	Recommendation string        `json:"recommendation"`
}

// Result 广播结果，所有收件人进入终态后生成
type Result struct {
	BroadcastID             string             `json:"broadcast_id"`
	MessageID               string             `json:"message_id"`
	RecipientsReached       []string           `json:"recipients_reached"`
	AcknowledgmentsReceived []string           `json:"acknowledgments_received"`
	FailedDeliveries        []string           `json:"failed_deliveries"`
	ReadReceipts            []string           `json:"read_receipts"`
	Outcomes                []RecipientOutcome `json:"outcomes"`
	RetryStrategy           RetryStrategy      `json:"retry_strategy"`
	StartedAt               time.Time          `json:"started_at"`
	CompletedAt             time.Time          `json:"completed_at"`
}
