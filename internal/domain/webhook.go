package domain

import (
	"time"

	"gorm.io/datatypes"
)

// WebhookEventType Webhook 事件类型
type WebhookEventType string

const (
	EventPostCreated   WebhookEventType = "post.created"   // 帖子创建
	EventPostScheduled WebhookEventType = "post.scheduled" // 帖子排期
	EventPostPublished WebhookEventType = "post.published" // 帖子发布
	EventPostFailed    WebhookEventType = "post.failed"    // 帖子发布失败
)

// AllEventTypes 全部可订阅事件
var AllEventTypes = []WebhookEventType{
	EventPostCreated,
	EventPostScheduled,
	EventPostPublished,
	EventPostFailed,
}

// ParseEventType 校验并转换事件类型字符串
func ParseEventType(s string) (WebhookEventType, bool) {
	for _, e := range AllEventTypes {
		if string(e) == s {
			return e, true
		}
	}
	return "", false
}

// Webhook 订阅配置
//
// Events 为空表示订阅全部事件。Secret 需要明文保存以便投递时签名，
// 只在创建时返回给调用方。
type Webhook struct {
	ID        string             `json:"id" gorm:"primaryKey;type:varchar(36)"`
	AppID     string             `json:"app_id" gorm:"type:varchar(36);index;not null"`
	URL       string             `json:"url" gorm:"type:varchar(500);not null"`
	Events    []WebhookEventType `json:"events" gorm:"serializer:json;type:json"`
	Secret    string             `json:"-" gorm:"type:varchar(64);not null"`
	Enabled   bool               `json:"enabled" gorm:"not null;default:true"`
	CreatedAt time.Time          `json:"created_at"`
	UpdatedAt time.Time          `json:"updated_at"`
}

// Subscribes 判断订阅是否接收该事件
func (w *Webhook) Subscribes(event WebhookEventType) bool {
	if len(w.Events) == 0 {
		return true
	}
	for _, e := range w.Events {
		if e == event {
			return true
		}
	}
	return false
}

// DeliveryStatus 投递状态
type DeliveryStatus string

const (
	DeliveryPending DeliveryStatus = "pending"
	DeliverySuccess DeliveryStatus = "success"
	DeliveryFailed  DeliveryStatus = "failed"
)

// WebhookDelivery 投递记录
//
// 在发起网络请求前以 pending 状态创建，每次尝试后更新一次。
type WebhookDelivery struct {
	ID             string           `json:"id" gorm:"primaryKey;type:varchar(36)"`
	WebhookID      string           `json:"webhook_id" gorm:"type:varchar(36);index;not null"`
	EventID        string           `json:"event_id" gorm:"type:varchar(64);not null"`
	EventType      WebhookEventType `json:"event_type" gorm:"type:varchar(50);not null"`
	Payload        datatypes.JSON   `json:"payload"`
	Status         DeliveryStatus   `json:"status" gorm:"type:varchar(20);index;not null"`
	Attempts       int              `json:"attempts" gorm:"not null;default:0"`
	ResponseStatus int              `json:"response_status,omitempty"`
	LastError      string           `json:"last_error,omitempty" gorm:"type:text"`
	LastAttemptAt  *time.Time       `json:"last_attempt_at,omitempty"`
	NextRetryAt    *time.Time       `json:"next_retry_at,omitempty" gorm:"index"`
	CreatedAt      time.Time        `json:"created_at"`
}

// DeliveryAttempt 一次投递尝试的结果
type DeliveryAttempt struct {
	Status         DeliveryStatus
	ResponseStatus int
	Error          string
	AttemptedAt    time.Time
	NextRetryAt    *time.Time
}

// Envelope 投递给订阅方的事件信封
type Envelope struct {
	ID        string           `json:"id"`
	Type      WebhookEventType `json:"type"`
	CreatedAt time.Time        `json:"created_at"`
	Data      interface{}      `json:"data"`
}
