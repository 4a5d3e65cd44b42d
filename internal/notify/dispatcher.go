package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"skill-swap/backend/internal/model"
	"skill-swap/backend/internal/repository"
	"skill-swap/backend/pkg/mail"
	"skill-swap/backend/pkg/metrics"
)

// Result 一次投递的结果
type Result struct {
	Status    string // sent | failed | skipped
	Address   string
	Subject   string
	MessageID string
}

// Dispatcher 通知投递接口
type Dispatcher interface {
	Dispatch(ctx context.Context, ev Event) (*Result, error)
}

type dispatcher struct {
	repo     *repository.Repository
	sender   mail.Sender
	renderer *Renderer
	logger   *zap.Logger
}

// NewDispatcher 创建 Dispatcher
func NewDispatcher(repo *repository.Repository, sender mail.Sender, renderer *Renderer, logger *zap.Logger) Dispatcher {
	return &dispatcher{repo: repo, sender: sender, renderer: renderer, logger: logger}
}

// Dispatch 偏好检查 → 解析收件地址 → 渲染 → 发送 → 记录
// 返回的错误仅用于日志，调用方不应据此回滚业务状态
func (d *dispatcher) Dispatch(ctx context.Context, ev Event) (*Result, error) {
	start := time.Now()
	res, err := d.dispatch(ctx, ev)

	metrics.NotificationDispatches.WithLabelValues(ev.Kind, res.Status).Inc()
	metrics.NotificationLatency.WithLabelValues(ev.Kind).Observe(time.Since(start).Seconds())

	fields := []zap.Field{
		zap.String("kind", ev.Kind),
		zap.String("request_id", ev.RequestID),
		zap.String("recipient", ev.RecipientUserID),
		zap.String("status", res.Status),
	}
	switch {
	case err == nil && res.Status == model.NotificationStatusSent:
		d.logger.Info("通知已发送", append(fields, zap.String("message_id", res.MessageID))...)
	case err == nil || errors.Is(err, ErrRecipientUnresolved):
		d.logger.Info("通知已跳过", append(fields, zap.Error(err))...)
	default:
		d.logger.Warn("通知投递失败", append(fields, zap.Error(err))...)
	}

	d.record(ctx, ev, res, err)
	return res, err
}

func (d *dispatcher) dispatch(ctx context.Context, ev Event) (*Result, error) {
	res := &Result{Status: model.NotificationStatusSkipped}

	pref, err := d.repo.Preference.Get(ctx, ev.RecipientUserID)
	if err != nil {
		d.logger.Warn("读取通知偏好失败，按默认开启处理", zap.Error(err))
	} else if !pref.SwapEmails {
		return res, nil
	}

	addr := strings.TrimSpace(ev.RecipientAddress)
	if addr == "" {
		addr, err = d.resolveAddress(ctx, ev.RecipientUserID)
		if err != nil {
			return res, err
		}
	}
	res.Address = addr

	subject, html, err := d.renderer.Render(ev)
	if err != nil {
		res.Status = model.NotificationStatusFailed
		return res, err
	}
	res.Subject = subject

	id, err := d.sender.Send(ctx, &mail.Message{
		To:      addr,
		Subject: subject,
		HTML:    html,
		Tags:    map[string]string{"category": "skill-swap", "type": ev.Kind},
	})
	if err != nil {
		res.Status = model.NotificationStatusFailed
		return res, fmt.Errorf("%w: %w", ErrDispatch, err)
	}

	res.Status = model.NotificationStatusSent
	res.MessageID = id
	return res, nil
}

// resolveAddress 优先使用档案中的邮箱，其次账号邮箱
func (d *dispatcher) resolveAddress(ctx context.Context, userID string) (string, error) {
	profile, err := d.repo.Profile.Get(ctx, userID)
	if err == nil && strings.TrimSpace(profile.Email) != "" {
		return strings.TrimSpace(profile.Email), nil
	}
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return "", fmt.Errorf("%w: %w", ErrRecipientUnresolved, err)
	}

	user, err := d.repo.User.GetByID(ctx, userID)
	if err != nil || strings.TrimSpace(user.Email) == "" {
		return "", ErrRecipientUnresolved
	}
	return strings.TrimSpace(user.Email), nil
}

// record 写入投递日志；失败只记日志
func (d *dispatcher) record(ctx context.Context, ev Event, res *Result, dispatchErr error) {
	n := &model.Notification{
		RecipientUserID:  ev.RecipientUserID,
		RecipientAddress: res.Address,
		Kind:             ev.Kind,
		Subject:          res.Subject,
		Status:           res.Status,
	}
	if ev.RequestID != "" {
		n.RequestID = &ev.RequestID
	}
	if res.MessageID != "" {
		n.MessageID = &res.MessageID
	}
	if dispatchErr != nil {
		msg := dispatchErr.Error()
		n.Error = &msg
	}

	if err := d.repo.Notification.Create(ctx, n); err != nil {
		d.logger.Error("写入通知记录失败", zap.String("kind", ev.Kind), zap.Error(err))
	}
}
