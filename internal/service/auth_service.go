package service

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"time"

	"github.com/lib/pq"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"skill-swap/backend/config"
	"skill-swap/backend/internal/dto"
	"skill-swap/backend/internal/model"
	"skill-swap/backend/internal/notify"
	"skill-swap/backend/internal/repository"
	"skill-swap/backend/pkg/jwt"
	"skill-swap/backend/pkg/mail"
)

var (
	ErrInvalidCredentials = errors.New("邮箱或密码错误")
	ErrEmailTaken         = errors.New("该邮箱已注册")
	ErrEmailNotConfirmed  = errors.New("邮箱尚未确认，请先查收确认邮件")
	ErrUserNotFound       = errors.New("用户不存在")
	ErrInvalidToken       = errors.New("链接或 Token 无效或已过期")
)

// AuthService 认证业务接口
type AuthService interface {
	SignUp(ctx context.Context, req *dto.SignUpRequest) (*dto.SignUpResponse, error)
	ConfirmEmail(ctx context.Context, token string) error
	ResendConfirmation(ctx context.Context, email string) error
	SignIn(ctx context.Context, req *dto.SignInRequest) (*dto.TokenResponse, error)
	SignOut(ctx context.Context, jti string, expiresAt time.Time) error
	Refresh(ctx context.Context, refreshToken string) (*dto.TokenResponse, error)
	CurrentUser(ctx context.Context, userID string) (*dto.UserResponse, error)
}

type authService struct {
	cfg       *config.Config
	repo      *repository.Repository
	jwtMgr    *jwt.Manager
	blacklist TokenBlacklist
	sender    mail.Sender
	renderer  *notify.Renderer
	logger    *zap.Logger
}

// NewAuthService 创建 AuthService 实例
func NewAuthService(
	cfg *config.Config,
	repo *repository.Repository,
	jwtMgr *jwt.Manager,
	blacklist TokenBlacklist,
	sender mail.Sender,
	renderer *notify.Renderer,
	logger *zap.Logger,
) AuthService {
	return &authService{
		cfg:       cfg,
		repo:      repo,
		jwtMgr:    jwtMgr,
		blacklist: blacklist,
		sender:    sender,
		renderer:  renderer,
		logger:    logger,
	}
}

// ═══════════════════════════════════════════════════════════
// SignUp 注册账号并创建默认公开档案
// ═══════════════════════════════════════════════════════════

func (s *authService) SignUp(ctx context.Context, req *dto.SignUpRequest) (*dto.SignUpResponse, error) {
	email := normalizeEmail(req.Email)
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, ErrProfileNameRequired
	}

	// 1. 邮箱唯一
	if _, err := s.repo.User.GetByEmail(ctx, email); err == nil {
		return nil, ErrEmailTaken
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		s.logger.Error("查询用户失败", zap.Error(err))
		return nil, storeError("查询用户", err)
	}

	// 2. 密码哈希
	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		s.logger.Error("密码哈希失败", zap.Error(err))
		return nil, err
	}

	user := &model.User{
		Email:        email,
		Name:         name,
		PasswordHash: string(hash),
		Role:         s.roleFor(email),
	}
	needConfirm := s.cfg.Auth.RequireEmailConfirmation
	if !needConfirm {
		now := time.Now().UTC()
		user.EmailConfirmedAt = &now
	}

	// 3. 账号与档案同一事务写入
	err = s.repo.Transaction(ctx, func(tx *repository.Repository) error {
		if err := tx.User.Create(ctx, user); err != nil {
			return err
		}
		return tx.Profile.Upsert(ctx, &model.Profile{
			UserID:        user.UserID,
			Email:         email,
			Name:          name,
			SkillsOffered: pq.StringArray{},
			SkillsWanted:  pq.StringArray{},
			Availability:  pq.StringArray{},
			IsPublic:      true,
		})
	})
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, ErrEmailTaken
		}
		s.logger.Error("创建账号失败", zap.Error(err))
		return nil, storeError("创建账号", err)
	}

	// 4. 确认邮件（失败不影响注册结果，可重新发送）
	if needConfirm {
		s.sendConfirmation(ctx, user)
	}

	s.logger.Info("用户注册成功", zap.String("user_id", user.UserID), zap.Bool("confirmation_required", needConfirm))
	return &dto.SignUpResponse{
		ID:                   user.UserID,
		Name:                 user.Name,
		Email:                user.Email,
		ConfirmationRequired: needConfirm,
	}, nil
}

func (s *authService) roleFor(email string) string {
	for _, admin := range s.cfg.Auth.AdminEmails {
		if normalizeEmail(admin) == email {
			return model.RoleAdmin
		}
	}
	return model.RoleUser
}

// sendConfirmation 同步发送确认邮件并记录投递结果
func (s *authService) sendConfirmation(ctx context.Context, user *model.User) {
	token, err := s.jwtMgr.GenerateConfirmToken(subjectOf(user))
	if err != nil {
		s.logger.Error("生成确认 Token 失败", zap.Error(err))
		return
	}
	link := strings.TrimRight(s.cfg.Server.BaseURL, "/") + "/api/v1/auth/confirm?token=" + url.QueryEscape(token)

	subject, html, err := s.renderer.RenderConfirmation(user.Name, link)
	if err != nil {
		s.logger.Error("渲染确认邮件失败", zap.Error(err))
		return
	}

	sendCtx, cancel := context.WithTimeout(ctx, s.cfg.Mail.Timeout)
	defer cancel()

	record := &model.Notification{
		RecipientUserID:  user.UserID,
		RecipientAddress: user.Email,
		Kind:             model.NotificationEmailConfirm,
		Subject:          subject,
		Status:           model.NotificationStatusSent,
	}
	id, err := s.sender.Send(sendCtx, &mail.Message{
		To:      user.Email,
		Subject: subject,
		HTML:    html,
		Tags:    map[string]string{"category": "skill-swap", "type": model.NotificationEmailConfirm},
	})
	if err != nil {
		s.logger.Warn("确认邮件发送失败", zap.String("user_id", user.UserID), zap.Error(err))
		msg := err.Error()
		record.Status = model.NotificationStatusFailed
		record.Error = &msg
	} else {
		record.MessageID = &id
	}

	if err := s.repo.Notification.Create(ctx, record); err != nil {
		s.logger.Error("写入通知记录失败", zap.Error(err))
	}
}

// ═══════════════════════════════════════════════════════════
// 邮箱确认
// ═══════════════════════════════════════════════════════════

func (s *authService) ConfirmEmail(ctx context.Context, token string) error {
	claims, err := s.jwtMgr.ParseTokenOfType(token, jwt.TokenTypeConfirm)
	if err != nil {
		return ErrInvalidToken
	}

	user, err := s.repo.User.GetByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrInvalidToken
		}
		return storeError("查询用户", err)
	}
	if user.IsConfirmed() {
		return nil
	}

	if err := s.repo.User.MarkEmailConfirmed(ctx, user.UserID, time.Now().UTC()); err != nil {
		s.logger.Error("确认邮箱失败", zap.Error(err))
		return storeError("确认邮箱", err)
	}
	s.logger.Info("邮箱已确认", zap.String("user_id", user.UserID))
	return nil
}

// ResendConfirmation 对未知邮箱同样返回成功，避免暴露注册状态
func (s *authService) ResendConfirmation(ctx context.Context, email string) error {
	user, err := s.repo.User.GetByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		return storeError("查询用户", err)
	}
	if !user.IsConfirmed() {
		s.sendConfirmation(ctx, user)
	}
	return nil
}

// ═══════════════════════════════════════════════════════════
// 会话
// ═══════════════════════════════════════════════════════════

func (s *authService) SignIn(ctx context.Context, req *dto.SignInRequest) (*dto.TokenResponse, error) {
	// 1. 查询用户
	user, err := s.repo.User.GetByEmail(ctx, normalizeEmail(req.Email))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvalidCredentials
		}
		s.logger.Error("查询用户失败", zap.Error(err))
		return nil, storeError("查询用户", err)
	}

	// 2. 验证密码 (bcrypt)
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	// 3. 未确认邮箱不可登录
	if s.cfg.Auth.RequireEmailConfirmation && !user.IsConfirmed() {
		return nil, ErrEmailNotConfirmed
	}

	return s.issueTokens(user, req.RememberMe)
}

// SignOut 将 Access Token 加入黑名单；未配置 Redis 时仅依赖 Token 自然过期
func (s *authService) SignOut(ctx context.Context, jti string, expiresAt time.Time) error {
	if s.blacklist == nil || jti == "" {
		return nil
	}
	if err := s.blacklist.BlacklistToken(ctx, jti, time.Until(expiresAt)); err != nil {
		s.logger.Warn("写入 Token 黑名单失败", zap.Error(err))
		return err
	}
	return nil
}

// Refresh 使用 Refresh Token 换取新的 Token 对，旧 Refresh Token 作废
func (s *authService) Refresh(ctx context.Context, refreshToken string) (*dto.TokenResponse, error) {
	claims, err := s.jwtMgr.ParseTokenOfType(refreshToken, jwt.TokenTypeRefresh)
	if err != nil {
		return nil, ErrInvalidToken
	}

	if s.blacklist != nil {
		revoked, err := s.blacklist.IsBlacklisted(ctx, claims.ID)
		if err != nil {
			s.logger.Warn("查询 Token 黑名单失败", zap.Error(err))
		} else if revoked {
			return nil, ErrInvalidToken
		}
	}

	user, err := s.repo.User.GetByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvalidToken
		}
		return nil, storeError("查询用户", err)
	}

	resp, err := s.issueTokens(user, claims.RememberMe)
	if err != nil {
		return nil, err
	}
	if claims.ExpiresAt != nil {
		_ = s.SignOut(ctx, claims.ID, claims.ExpiresAt.Time)
	}
	return resp, nil
}

func (s *authService) CurrentUser(ctx context.Context, userID string) (*dto.UserResponse, error) {
	user, err := s.repo.User.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, storeError("查询用户", err)
	}
	resp := toUserResponse(user)
	resp.CreatedAt = formatTime(user.CreatedAt)
	return &resp, nil
}

func (s *authService) issueTokens(user *model.User, rememberMe bool) (*dto.TokenResponse, error) {
	sub := subjectOf(user)
	accessToken, err := s.jwtMgr.GenerateAccessToken(sub)
	if err != nil {
		s.logger.Error("生成 AccessToken 失败", zap.Error(err))
		return nil, err
	}
	refreshToken, err := s.jwtMgr.GenerateRefreshToken(sub, rememberMe)
	if err != nil {
		s.logger.Error("生成 RefreshToken 失败", zap.Error(err))
		return nil, err
	}

	return &dto.TokenResponse{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresIn:    int(s.jwtMgr.AccessTokenTTL().Seconds()),
		User:         toUserResponse(user),
	}, nil
}

func subjectOf(user *model.User) jwt.Subject {
	return jwt.Subject{UserID: user.UserID, Role: user.Role, Name: user.Name, Email: user.Email}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func toUserResponse(user *model.User) dto.UserResponse {
	return dto.UserResponse{
		ID:             user.UserID,
		Name:           user.Name,
		Email:          user.Email,
		Role:           user.Role,
		EmailConfirmed: user.IsConfirmed(),
	}
}
