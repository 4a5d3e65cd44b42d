package model

import "time"

// 换技能申请状态：pending → accepted | rejected，终态不可再变更
const (
	SwapStatusPending  = "pending"
	SwapStatusAccepted = "accepted"
	SwapStatusRejected = "rejected"
)

// SwapRequest 换技能申请表，对应 swap_requests
type SwapRequest struct {
	ID           string     `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	FromUserID   string     `gorm:"type:uuid;not null"                             json:"from_user_id"`
	FromUserName string     `gorm:"type:varchar(100);not null"                     json:"from_user_name"`
	ToUserID     string     `gorm:"type:uuid;not null"                             json:"to_user_id"`
	ToUserName   string     `gorm:"type:varchar(100);not null"                     json:"to_user_name"`
	Message      string     `gorm:"type:varchar(500);not null"                     json:"message"`
	Status       string     `gorm:"type:varchar(20);not null;default:'pending'"    json:"status"`
	RespondedAt  *time.Time `json:"responded_at,omitempty"`
	BaseModel
}

// TableName 指定表名
func (SwapRequest) TableName() string { return "swap_requests" }

// IsPending 是否处于待处理状态
func (r *SwapRequest) IsPending() bool { return r.Status == SwapStatusPending }

// Involves 判断用户是否为申请的任一方
func (r *SwapRequest) Involves(userID string) bool {
	return r.FromUserID == userID || r.ToUserID == userID
}
