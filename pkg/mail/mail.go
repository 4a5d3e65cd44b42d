// Package mail 封装外部邮件投递：Resend HTTP API、SMTP 以及仅写日志的开发模式。
package mail

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"skill-swap/backend/config"
)

// ErrSendFailed 邮件服务返回非成功响应
var ErrSendFailed = errors.New("邮件发送失败")

// Message 一封待发送的 HTML 邮件
type Message struct {
	To      string
	Subject string
	HTML    string
	Tags    map[string]string // 投递方标签（Resend 支持，SMTP 忽略）
}

// Sender 邮件投递接口：send(to, subject, html) → messageID
type Sender interface {
	Send(ctx context.Context, msg *Message) (string, error)
}

// New 按配置创建 Sender
func New(cfg *config.MailConfig, logger *zap.Logger) (Sender, error) {
	switch cfg.Provider {
	case "resend":
		return NewResendSender(cfg.From, cfg.Resend)
	case "smtp":
		return NewSMTPSender(cfg.From, cfg.SMTP), nil
	case "log", "":
		return NewLogSender(logger), nil
	default:
		return nil, fmt.Errorf("未知的邮件服务: %s", cfg.Provider)
	}
}
