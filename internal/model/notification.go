package model

import "time"

// 通知类型
const (
	NotificationRequestSent     = "request_sent"
	NotificationRequestAccepted = "request_accepted"
	NotificationRequestRejected = "request_rejected"
	NotificationEmailConfirm    = "email_confirm"
)

// 通知投递结果
const (
	NotificationStatusSent    = "sent"
	NotificationStatusFailed  = "failed"
	NotificationStatusSkipped = "skipped"
)

// Notification 通知投递记录表，对应 notifications
type Notification struct {
	NotificationID   string    `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"notification_id"`
	RequestID        *string   `gorm:"type:uuid"                                      json:"request_id,omitempty"`
	RecipientUserID  string    `gorm:"type:uuid;not null"                             json:"recipient_user_id"`
	RecipientAddress string    `gorm:"type:varchar(255);not null"                     json:"recipient_address"`
	Kind             string    `gorm:"type:varchar(40);not null"                      json:"kind"`
	Subject          string    `gorm:"type:varchar(200);not null"                     json:"subject"`
	Status           string    `gorm:"type:varchar(20);not null"                      json:"status"`
	MessageID        *string   `gorm:"type:varchar(100)"                              json:"message_id,omitempty"`
	Error            *string   `gorm:"type:text"                                      json:"error,omitempty"`
	CreatedAt        time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"             json:"created_at"`
}

// TableName 指定表名
func (Notification) TableName() string { return "notifications" }

// NotificationPreference 通知偏好表，对应 notification_preferences（与 users 1:1）
type NotificationPreference struct {
	UserID     string `gorm:"type:uuid;primaryKey"  json:"user_id"`
	SwapEmails bool   `gorm:"not null"              json:"swap_emails"`
	BaseModel
}

// TableName 指定表名
func (NotificationPreference) TableName() string { return "notification_preferences" }
