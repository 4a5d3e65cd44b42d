package dto

// ── 换技能申请 DTO ──

// CreateSwapRequestRequest 发起申请
type CreateSwapRequestRequest struct {
	ToUserID string `json:"to_user_id" binding:"required,uuid"`
	Message  string `json:"message"` // 为空时使用默认问候语
}

// RespondSwapRequestRequest 接收方处理申请
type RespondSwapRequestRequest struct {
	Status string `json:"status" binding:"required"` // accepted | rejected
}

// SwapRequestResponse 申请详情
type SwapRequestResponse struct {
	ID           string  `json:"id"`
	FromUserID   string  `json:"from_user_id"`
	FromUserName string  `json:"from_user_name"`
	ToUserID     string  `json:"to_user_id"`
	ToUserName   string  `json:"to_user_name"`
	Message      string  `json:"message"`
	Status       string  `json:"status"`
	CreatedAt    string  `json:"created_at"`
	UpdatedAt    string  `json:"updated_at"`
	RespondedAt  *string `json:"responded_at,omitempty"`
}

// SwapRequestListResponse 当前用户的申请（发出 / 收到）
type SwapRequestListResponse struct {
	Sent     []SwapRequestResponse `json:"sent"`
	Received []SwapRequestResponse `json:"received"`
}

// PendingRecipientsResponse 已发出待处理申请的接收方
type PendingRecipientsResponse struct {
	UserIDs []string `json:"user_ids"`
}
