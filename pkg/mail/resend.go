package mail

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strings"

	"github.com/resend/resend-go/v2"

	"skill-swap/backend/config"
)

// ResendSender 通过 Resend HTTP API 投递邮件（Bearer 鉴权）
type ResendSender struct {
	client *resend.Client
	from   string
}

// NewResendSender 创建 ResendSender
func NewResendSender(from string, cfg config.ResendConfig) (*ResendSender, error) {
	client := resend.NewClient(cfg.APIKey)
	if cfg.BaseURL != "" {
		u, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/") + "/")
		if err != nil {
			return nil, fmt.Errorf("无效的 Resend 地址: %w", err)
		}
		client.BaseURL = u
	}
	return &ResendSender{client: client, from: from}, nil
}

func (s *ResendSender) Send(ctx context.Context, msg *Message) (string, error) {
	req := &resend.SendEmailRequest{
		From:    s.from,
		To:      []string{msg.To},
		Subject: msg.Subject,
		Html:    msg.HTML,
		Tags:    resendTags(msg.Tags),
	}

	sent, err := s.client.Emails.SendWithContext(ctx, req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrSendFailed, err)
	}
	return sent.Id, nil
}

func resendTags(tags map[string]string) []resend.Tag {
	if len(tags) == 0 {
		return nil
	}
	names := make([]string, 0, len(tags))
	for name := range tags {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]resend.Tag, 0, len(names))
	for _, name := range names {
		out = append(out, resend.Tag{Name: name, Value: tags[name]})
	}
	return out
}
