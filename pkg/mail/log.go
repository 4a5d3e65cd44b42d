package mail

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// LogSender 不真正投递，只记录日志（本地开发使用）
type LogSender struct {
	logger *zap.Logger
}

// NewLogSender 创建 LogSender
func NewLogSender(logger *zap.Logger) *LogSender {
	return &LogSender{logger: logger}
}

func (s *LogSender) Send(_ context.Context, msg *Message) (string, error) {
	id := "log-" + uuid.NewString()
	s.logger.Info("邮件（仅日志）",
		zap.String("message_id", id),
		zap.String("to", msg.To),
		zap.String("subject", msg.Subject),
		zap.Int("html_bytes", len(msg.HTML)),
	)
	return id, nil
}
