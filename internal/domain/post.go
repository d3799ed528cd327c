package domain

import (
	"time"

	"gorm.io/datatypes"
)

// PostStatus 帖子状态
type PostStatus string

const (
	PostDraft     PostStatus = "draft"
	PostScheduled PostStatus = "scheduled"
	PostPublished PostStatus = "published"
	PostFailed    PostStatus = "failed"
)

// ParsePostStatus 校验并转换帖子状态
func ParsePostStatus(s string) (PostStatus, bool) {
	switch PostStatus(s) {
	case PostDraft, PostScheduled, PostPublished, PostFailed:
		return PostStatus(s), true
	}
	return "", false
}

// Post 应用发布的帖子
type Post struct {
	ID          string         `json:"id" gorm:"primaryKey;type:varchar(36)"`
	AppID       string         `json:"app_id" gorm:"type:varchar(36);index;not null"`
	Content     string         `json:"content" gorm:"type:text;not null"`
	Platforms   []string       `json:"platforms" gorm:"serializer:json;type:json"`
	Status      PostStatus     `json:"status" gorm:"type:varchar(20);index;not null"`
	Metadata    datatypes.JSON `json:"metadata,omitempty"`
	ScheduledAt *time.Time     `json:"scheduled_at,omitempty"`
	PublishedAt *time.Time     `json:"published_at,omitempty"`
	CreatedAt   time.Time      `json:"created_at" gorm:"index"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// Editable 只有草稿和排期中的帖子允许修改
func (p *Post) Editable() bool {
	return p.Status == PostDraft || p.Status == PostScheduled
}

// PostFilter 帖子列表查询条件
type PostFilter struct {
	AppID  string
	Status PostStatus
	// Cursor 上一页最后一条记录的 ID
	Cursor string
	Limit  int
}

// PostStats 按状态统计的帖子数量
type PostStats struct {
	Total     int `json:"total"`
	Draft     int `json:"draft"`
	Scheduled int `json:"scheduled"`
	Published int `json:"published"`
	Failed    int `json:"failed"`
}
