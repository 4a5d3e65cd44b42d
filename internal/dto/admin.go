package dto

// ── 管理端 DTO ──

// AdminListRequestsRequest 管理端申请列表
type AdminListRequestsRequest struct {
	PaginationRequest
	Status string `form:"status"  binding:"omitempty,oneof=pending accepted rejected"`
	UserID string `form:"user_id" binding:"omitempty,uuid"`
}

// AdminListNotificationsRequest 通知记录列表
type AdminListNotificationsRequest struct {
	PaginationRequest
	RequestID string `form:"request_id" binding:"omitempty,uuid"`
}

// TriggerNotificationRequest 手动触发通知
type TriggerNotificationRequest struct {
	Kind string `json:"kind" binding:"required,oneof=request_sent request_accepted request_rejected"`
}

// OverviewResponse 平台概览
type OverviewResponse struct {
	Users          int64 `json:"users"`
	PublicProfiles int64 `json:"public_profiles"`
	TotalRequests  int64 `json:"total_requests"`
	Pending        int64 `json:"pending"`
	Accepted       int64 `json:"accepted"`
	Rejected       int64 `json:"rejected"`
}

// NotificationResponse 通知投递记录
type NotificationResponse struct {
	ID               string  `json:"id"`
	RequestID        *string `json:"request_id,omitempty"`
	RecipientUserID  string  `json:"recipient_user_id"`
	RecipientAddress string  `json:"recipient_address"`
	Kind             string  `json:"kind"`
	Subject          string  `json:"subject"`
	Status           string  `json:"status"`
	MessageID        *string `json:"message_id,omitempty"`
	Error            *string `json:"error,omitempty"`
	CreatedAt        string  `json:"created_at"`
}

// DispatchResultResponse 手动触发的投递结果
type DispatchResultResponse struct {
	Status    string `json:"status"`
	Address   string `json:"address,omitempty"`
	Subject   string `json:"subject,omitempty"`
	MessageID string `json:"message_id,omitempty"`
	Error     string `json:"error,omitempty"`
}
