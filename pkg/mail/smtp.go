package mail

import (
	"bytes"
	"context"
	"fmt"
	"mime"
	"net"
	"net/mail"
	"net/smtp"
	"strconv"
	"time"

	"github.com/google/uuid"

	"skill-swap/backend/config"
)

// SMTPSender 通过 SMTP 投递邮件
type SMTPSender struct {
	from string
	cfg  config.SMTPConfig
	send func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

// NewSMTPSender 创建 SMTPSender
func NewSMTPSender(from string, cfg config.SMTPConfig) *SMTPSender {
	return &SMTPSender{from: from, cfg: cfg, send: smtp.SendMail}
}

func (s *SMTPSender) Send(ctx context.Context, msg *Message) (string, error) {
	fromAddr, err := mail.ParseAddress(s.from)
	if err != nil {
		return "", fmt.Errorf("无效的发件人地址: %w", err)
	}

	messageID := uuid.NewString()
	body := buildMIME(s.from, msg, messageID+"@"+domainOf(fromAddr.Address))

	var auth smtp.Auth
	if s.cfg.Username != "" {
		auth = smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)
	}
	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))

	// net/smtp 不支持 context，放到 goroutine 中以便遵守调用方超时
	done := make(chan error, 1)
	go func() {
		done <- s.send(addr, auth, fromAddr.Address, []string{msg.To}, body)
	}()

	select {
	case err := <-done:
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrSendFailed, err)
		}
		return messageID, nil
	case <-ctx.Done():
		return "", fmt.Errorf("%w: %v", ErrSendFailed, ctx.Err())
	}
}

func buildMIME(from string, msg *Message, messageID string) []byte {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "From: %s\r\n", from)
	fmt.Fprintf(&buf, "To: %s\r\n", msg.To)
	fmt.Fprintf(&buf, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", msg.Subject))
	fmt.Fprintf(&buf, "Date: %s\r\n", time.Now().Format(time.RFC1123Z))
	fmt.Fprintf(&buf, "Message-ID: <%s>\r\n", messageID)
	buf.WriteString("MIME-Version: 1.0\r\n")
	buf.WriteString("Content-Type: text/html; charset=\"utf-8\"\r\n")
	buf.WriteString("\r\n")
	buf.WriteString(msg.HTML)
	return buf.Bytes()
}

func domainOf(addr string) string {
	for i := len(addr) - 1; i >= 0; i-- {
		if addr[i] == '@' {
			return addr[i+1:]
		}
	}
	return "localhost"
}
