// Package notify 负责把换技能申请的生命周期事件转换成邮件通知并投递。
package notify

import (
	"errors"

	"skill-swap/backend/internal/model"
)

var (
	// ErrRecipientUnresolved 找不到收件地址，本次通知被跳过
	ErrRecipientUnresolved = errors.New("无法解析收件人邮箱")
	// ErrDispatch 邮件服务返回失败
	ErrDispatch = errors.New("通知投递失败")
	// ErrUnknownKind 不支持的通知类型
	ErrUnknownKind = errors.New("未知的通知类型")
)

// Event 一次待投递的通知（不落库，投递结果写入 notifications）
type Event struct {
	RequestID        string
	Kind             string
	RecipientUserID  string
	RecipientAddress string // 为空时由 Dispatcher 解析
	FromUserName     string
	ToUserName       string
	Message          string
}

// EventFor 根据申请与通知类型构造事件
// request_sent 发给接收方，accepted / rejected 发给发起方
func EventFor(req *model.SwapRequest, kind string) Event {
	recipient := req.FromUserID
	if kind == model.NotificationRequestSent {
		recipient = req.ToUserID
	}
	return Event{
		RequestID:       req.ID,
		Kind:            kind,
		RecipientUserID: recipient,
		FromUserName:    req.FromUserName,
		ToUserName:      req.ToUserName,
		Message:         req.Message,
	}
}

// KindForStatus 申请终态对应的通知类型
func KindForStatus(status string) string {
	switch status {
	case model.SwapStatusAccepted:
		return model.NotificationRequestAccepted
	case model.SwapStatusRejected:
		return model.NotificationRequestRejected
	default:
		return model.NotificationRequestSent
	}
}
