package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"skill-swap/backend/config"
	"skill-swap/backend/internal/model"
	"skill-swap/backend/internal/notify"
	"skill-swap/backend/internal/realtime"
	"skill-swap/backend/internal/repository"
	"skill-swap/backend/pkg/jwt"
	"skill-swap/backend/pkg/mail"
)

// 跨模块通用错误
var (
	// ErrValidation 输入不合法，具体原因包装在错误信息中
	ErrValidation = errors.New("参数校验失败")
	// ErrStore 存储层异常
	ErrStore = errors.New("数据存储异常")
	// ErrAdminOnly 仅管理员可执行
	ErrAdminOnly = errors.New("仅管理员可执行该操作")
)

// EventNotifier 事务提交后的通知投递入口（异步，结果不影响业务）
type EventNotifier interface {
	Notify(ev notify.Event)
}

// TokenBlacklist 已注销 Token 的存储（Redis），未配置时为 nil
type TokenBlacklist interface {
	BlacklistToken(ctx context.Context, jti string, ttl time.Duration) error
	IsBlacklisted(ctx context.Context, jti string) (bool, error)
}

// Service 所有 Service 的聚合入口
type Service struct {
	Auth    AuthService
	Profile ProfileService
	Swap    SwapService
	Admin   AdminService
	Export  ExportService
}

// Deps 构造 Service 所需的外部依赖
type Deps struct {
	Config     *config.Config
	Repo       *repository.Repository
	JWT        *jwt.Manager
	Blacklist  TokenBlacklist
	Mail       mail.Sender
	Renderer   *notify.Renderer
	Dispatcher notify.Dispatcher
	Notifier   EventNotifier
	Publisher  realtime.Publisher
	Logger     *zap.Logger
}

// NewService 创建 Service 聚合
func NewService(d Deps) *Service {
	swap := NewSwapService(&d.Config.Feature, d.Repo, d.Notifier, d.Publisher, d.Logger)
	return &Service{
		Auth:    NewAuthService(d.Config, d.Repo, d.JWT, d.Blacklist, d.Mail, d.Renderer, d.Logger),
		Profile: NewProfileService(d.Repo, d.Publisher, d.Logger),
		Swap:    swap,
		Admin:   NewAdminService(d.Repo, swap, d.Dispatcher, d.Publisher, d.Logger),
		Export:  NewExportService(d.Repo, d.Logger),
	}
}

// Identity 已认证的调用方
type Identity struct {
	UserID string
	Name   string
	Email  string
	Role   string
}

// IsAdmin 是否管理员
func (i Identity) IsAdmin() bool { return i.Role == model.RoleAdmin }

// IsAnonymous 未登录（公开接口）
func (i Identity) IsAnonymous() bool { return i.UserID == "" }

// publish 发布变更事件；未配置 Publisher 时忽略
func publish(ctx context.Context, p realtime.Publisher, ev realtime.ChangeEvent) {
	if p == nil {
		return
	}
	p.Publish(ctx, ev)
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

// storeError 包装存储层错误，保留原始错误链
func storeError(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrStore, op, err)
}
