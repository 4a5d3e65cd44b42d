package mail

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/smtp"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"skill-swap/backend/config"
)

func TestResendSender_Send(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/emails", r.URL.Path)
		assert.Equal(t, "Bearer re_test", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"msg_123"}`))
	}))
	defer srv.Close()

	s, err := NewResendSender("SkillSwap <noreply@skillswap.com>", config.ResendConfig{APIKey: "re_test", BaseURL: srv.URL})
	require.NoError(t, err)

	id, err := s.Send(context.Background(), &Message{
		To:      "bob@example.com",
		Subject: "Hello",
		HTML:    "<p>hi</p>",
		Tags:    map[string]string{"type": "request_sent", "category": "skill-swap"},
	})
	require.NoError(t, err)
	assert.Equal(t, "msg_123", id)

	assert.Equal(t, "SkillSwap <noreply@skillswap.com>", got["from"])
	assert.Equal(t, []any{"bob@example.com"}, got["to"])
	assert.Equal(t, "<p>hi</p>", got["html"])
	tags, ok := got["tags"].([]any)
	require.True(t, ok)
	require.Len(t, tags, 2)
	assert.Equal(t, "category", tags[0].(map[string]any)["name"])
}

func TestResendSender_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"statusCode":422,"name":"validation_error","message":"invalid from"}`))
	}))
	defer srv.Close()

	s, err := NewResendSender("bad", config.ResendConfig{APIKey: "re_test", BaseURL: srv.URL})
	require.NoError(t, err)

	_, err = s.Send(context.Background(), &Message{To: "bob@example.com", Subject: "x", HTML: "x"})
	assert.True(t, errors.Is(err, ErrSendFailed))
}

func TestSMTPSender_Send(t *testing.T) {
	s := NewSMTPSender("SkillSwap <noreply@skillswap.com>", config.SMTPConfig{Host: "smtp.example.com", Port: 587, Username: "u", Password: "p"})

	var gotAddr, gotFrom string
	var gotBody []byte
	s.send = func(addr string, _ smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr, gotFrom, gotBody = addr, from, msg
		assert.Equal(t, []string{"bob@example.com"}, to)
		return nil
	}

	id, err := s.Send(context.Background(), &Message{To: "bob@example.com", Subject: "Hi there", HTML: "<b>x</b>"})
	require.NoError(t, err)
	assert.NotEmpty(t, id)
	assert.Equal(t, "smtp.example.com:587", gotAddr)
	assert.Equal(t, "noreply@skillswap.com", gotFrom)

	body := string(gotBody)
	assert.Contains(t, body, "Content-Type: text/html")
	assert.Contains(t, body, "Message-ID: <"+id+"@skillswap.com>")
	assert.True(t, strings.HasSuffix(body, "<b>x</b>"))
}

func TestSMTPSender_Timeout(t *testing.T) {
	s := NewSMTPSender("noreply@skillswap.com", config.SMTPConfig{Host: "smtp.example.com", Port: 25})
	release := make(chan struct{})
	defer close(release)
	s.send = func(string, smtp.Auth, string, []string, []byte) error {
		<-release
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := s.Send(ctx, &Message{To: "bob@example.com"})
	assert.ErrorIs(t, err, ErrSendFailed)
}

func TestNew_Providers(t *testing.T) {
	logger := zap.NewNop()

	s, err := New(&config.MailConfig{Provider: "log"}, logger)
	require.NoError(t, err)
	assert.IsType(t, &LogSender{}, s)

	s, err = New(&config.MailConfig{Provider: "smtp", SMTP: config.SMTPConfig{Host: "h"}}, logger)
	require.NoError(t, err)
	assert.IsType(t, &SMTPSender{}, s)

	s, err = New(&config.MailConfig{Provider: "resend", Resend: config.ResendConfig{APIKey: "k"}}, logger)
	require.NoError(t, err)
	assert.IsType(t, &ResendSender{}, s)

	_, err = New(&config.MailConfig{Provider: "carrier-pigeon"}, logger)
	assert.Error(t, err)
}

func TestLogSender(t *testing.T) {
	id, err := NewLogSender(zap.NewNop()).Send(context.Background(), &Message{To: "a@b.c"})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(id, "log-"))
}
