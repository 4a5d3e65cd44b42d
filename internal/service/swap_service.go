package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"skill-swap/backend/config"
	"skill-swap/backend/internal/dto"
	"skill-swap/backend/internal/model"
	"skill-swap/backend/internal/notify"
	"skill-swap/backend/internal/realtime"
	"skill-swap/backend/internal/repository"
	pkgerrors "skill-swap/backend/pkg/errors"
	"skill-swap/backend/pkg/metrics"
)

// ── 换技能申请业务错误 ──

var (
	ErrSelfRequest            = fmt.Errorf("%w: 不能向自己发起换技能申请", ErrValidation)
	ErrMessageTooLong         = fmt.Errorf("%w: 留言不能超过 %d 个字符", ErrValidation, MaxMessageLength)
	ErrInvalidDecision        = fmt.Errorf("%w: 处理结果只能是 accepted 或 rejected", ErrValidation)
	ErrSwapRequestNotFound    = errors.New("换技能申请不存在")
	ErrUnauthorizedTransition = errors.New("无权操作该申请")
	ErrInvalidState           = errors.New("申请已处理，无法再次变更")
	ErrDuplicateRequest       = errors.New("已向该用户发出待处理的申请")
)

// MaxMessageLength 留言最大长度（按字符计）
const MaxMessageLength = 500

// SwapService 换技能申请业务接口
//
// 状态机：pending → accepted | rejected，终态不可变；
// 仅发起方可撤回 pending 申请，管理员可删除任意申请。
type SwapService interface {
	Create(ctx context.Context, sender Identity, req *dto.CreateSwapRequestRequest) (*dto.SwapRequestResponse, error)
	Respond(ctx context.Context, id string, responder Identity, decision string) (*dto.SwapRequestResponse, error)
	Withdraw(ctx context.Context, id string, requester Identity) error
	ListFor(ctx context.Context, me Identity) (*dto.SwapRequestListResponse, error)
	PendingRecipients(ctx context.Context, me Identity) ([]string, error)
	Get(ctx context.Context, id string, viewer Identity) (*dto.SwapRequestResponse, error)
}

type swapService struct {
	feature   *config.FeatureConfig
	repo      *repository.Repository
	notifier  EventNotifier
	publisher realtime.Publisher
	logger    *zap.Logger
}

// NewSwapService 创建 SwapService 实例
func NewSwapService(
	feature *config.FeatureConfig,
	repo *repository.Repository,
	notifier EventNotifier,
	publisher realtime.Publisher,
	logger *zap.Logger,
) SwapService {
	return &swapService{
		feature:   feature,
		repo:      repo,
		notifier:  notifier,
		publisher: publisher,
		logger:    logger,
	}
}

// ═══════════════════════════════════════════════════════════
// Create 发起申请
// ═══════════════════════════════════════════════════════════

func (s *swapService) Create(ctx context.Context, sender Identity, req *dto.CreateSwapRequestRequest) (*dto.SwapRequestResponse, error) {
	// 1. 基础校验
	if sender.UserID == req.ToUserID {
		return nil, ErrSelfRequest
	}
	message := strings.TrimSpace(req.Message)
	if utf8.RuneCountInString(message) > MaxMessageLength {
		return nil, ErrMessageTooLong
	}

	// 2. 接收方档案必须存在且公开
	recipient, err := s.repo.Profile.Get(ctx, req.ToUserID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrProfileNotFound
		}
		s.logger.Error("查询接收方档案失败", zap.Error(err))
		return nil, storeError("查询接收方档案", err)
	}
	if !recipient.IsPublic {
		return nil, ErrProfileNotFound
	}

	// 3. 重复申请校验
	if s.feature.DuplicateRequestGuard {
		exists, err := s.repo.SwapRequest.ExistsPending(ctx, sender.UserID, req.ToUserID)
		if err != nil {
			s.logger.Error("查询待处理申请失败", zap.Error(err))
			return nil, storeError("查询待处理申请", err)
		}
		if exists {
			return nil, ErrDuplicateRequest
		}
	}

	if message == "" {
		message = fmt.Sprintf("Hi %s! I'd love to connect for a skill exchange.", recipient.Name)
	}

	// 4. 写入
	sr := &model.SwapRequest{
		FromUserID:   sender.UserID,
		FromUserName: s.senderName(ctx, sender),
		ToUserID:     recipient.UserID,
		ToUserName:   recipient.Name,
		Message:      message,
		Status:       model.SwapStatusPending,
	}
	if err := s.repo.SwapRequest.Create(ctx, sr); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, ErrDuplicateRequest
		}
		s.logger.Error("创建换技能申请失败", zap.Error(err))
		return nil, storeError("创建换技能申请", err)
	}

	// 5. 提交后：变更事件 + 异步通知接收方
	metrics.SwapTransitions.WithLabelValues("created").Inc()
	s.publish(ctx, realtime.ChangeInsert, sr)
	s.notify(notify.EventFor(sr, model.NotificationRequestSent))

	s.logger.Info("换技能申请已创建",
		zap.String("request_id", sr.ID),
		zap.String("from", sr.FromUserID),
		zap.String("to", sr.ToUserID),
	)
	return toSwapRequestResponse(sr), nil
}

// senderName 档案姓名 → 账号姓名 → "User"
func (s *swapService) senderName(ctx context.Context, sender Identity) string {
	if p, err := s.repo.Profile.Get(ctx, sender.UserID); err == nil && strings.TrimSpace(p.Name) != "" {
		return strings.TrimSpace(p.Name)
	}
	if name := strings.TrimSpace(sender.Name); name != "" {
		return name
	}
	return "User"
}

// ═══════════════════════════════════════════════════════════
// Respond 接收方接受或拒绝
// ═══════════════════════════════════════════════════════════

func (s *swapService) Respond(ctx context.Context, id string, responder Identity, decision string) (*dto.SwapRequestResponse, error) {
	if decision != model.SwapStatusAccepted && decision != model.SwapStatusRejected {
		return nil, ErrInvalidDecision
	}

	sr, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if sr.ToUserID != responder.UserID {
		return nil, ErrUnauthorizedTransition
	}
	if !sr.IsPending() {
		return nil, ErrInvalidState
	}

	// 条件更新：仅当仍为 pending 且接收方匹配时生效，并发处理时先提交者胜出
	now := time.Now().UTC()
	if err := s.repo.SwapRequest.Transition(ctx, id, responder.UserID, decision, now); err != nil {
		if errors.Is(err, pkgerrors.ErrStaleState) {
			return nil, ErrInvalidState
		}
		s.logger.Error("更新申请状态失败", zap.String("request_id", id), zap.Error(err))
		return nil, storeError("更新申请状态", err)
	}
	sr.Status = decision
	sr.RespondedAt = &now
	sr.UpdatedAt = now

	metrics.SwapTransitions.WithLabelValues(decision).Inc()
	s.publish(ctx, realtime.ChangeUpdate, sr)
	s.notify(notify.EventFor(sr, notify.KindForStatus(decision)))

	s.logger.Info("换技能申请已处理", zap.String("request_id", id), zap.String("status", decision))
	return toSwapRequestResponse(sr), nil
}

// ═══════════════════════════════════════════════════════════
// Withdraw 发起方撤回 / 管理员删除
// ═══════════════════════════════════════════════════════════

func (s *swapService) Withdraw(ctx context.Context, id string, requester Identity) error {
	sr, err := s.load(ctx, id)
	if err != nil {
		return err
	}

	if requester.IsAdmin() {
		if err := s.repo.SwapRequest.Delete(ctx, id); err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrSwapRequestNotFound
			}
			s.logger.Error("删除申请失败", zap.String("request_id", id), zap.Error(err))
			return storeError("删除申请", err)
		}
	} else {
		if sr.FromUserID != requester.UserID {
			return ErrUnauthorizedTransition
		}
		if !sr.IsPending() {
			return ErrInvalidState
		}
		if err := s.repo.SwapRequest.DeletePending(ctx, id, requester.UserID); err != nil {
			if errors.Is(err, pkgerrors.ErrStaleState) {
				return ErrInvalidState
			}
			s.logger.Error("撤回申请失败", zap.String("request_id", id), zap.Error(err))
			return storeError("撤回申请", err)
		}
	}

	metrics.SwapTransitions.WithLabelValues("withdrawn").Inc()
	s.publish(ctx, realtime.ChangeDelete, sr)
	s.logger.Info("换技能申请已删除", zap.String("request_id", id), zap.String("by", requester.UserID))
	return nil
}

// ═══════════════════════════════════════════════════════════
// 查询
// ═══════════════════════════════════════════════════════════

// ListFor 每次调用都重新查询存储，不缓存
func (s *swapService) ListFor(ctx context.Context, me Identity) (*dto.SwapRequestListResponse, error) {
	list, err := s.repo.SwapRequest.ListForUser(ctx, me.UserID)
	if err != nil {
		s.logger.Error("查询申请列表失败", zap.Error(err))
		return nil, storeError("查询申请列表", err)
	}

	resp := &dto.SwapRequestListResponse{
		Sent:     make([]dto.SwapRequestResponse, 0),
		Received: make([]dto.SwapRequestResponse, 0),
	}
	for i := range list {
		item := *toSwapRequestResponse(&list[i])
		if list[i].FromUserID == me.UserID {
			resp.Sent = append(resp.Sent, item)
		} else {
			resp.Received = append(resp.Received, item)
		}
	}
	return resp, nil
}

func (s *swapService) PendingRecipients(ctx context.Context, me Identity) ([]string, error) {
	ids, err := s.repo.SwapRequest.PendingRecipients(ctx, me.UserID)
	if err != nil {
		s.logger.Error("查询待处理接收方失败", zap.Error(err))
		return nil, storeError("查询待处理接收方", err)
	}
	if ids == nil {
		ids = []string{}
	}
	return ids, nil
}

// Get 仅双方与管理员可见，其他人视为不存在
func (s *swapService) Get(ctx context.Context, id string, viewer Identity) (*dto.SwapRequestResponse, error) {
	sr, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !viewer.IsAdmin() && !sr.Involves(viewer.UserID) {
		return nil, ErrSwapRequestNotFound
	}
	return toSwapRequestResponse(sr), nil
}

func (s *swapService) load(ctx context.Context, id string) (*model.SwapRequest, error) {
	sr, err := s.repo.SwapRequest.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSwapRequestNotFound
		}
		s.logger.Error("查询申请失败", zap.String("request_id", id), zap.Error(err))
		return nil, storeError("查询申请", err)
	}
	return sr, nil
}

func (s *swapService) publish(ctx context.Context, typ realtime.ChangeType, sr *model.SwapRequest) {
	publish(ctx, s.publisher, realtime.ChangeEvent{
		Table:    realtime.TableSwapRequests,
		Type:     typ,
		RecordID: sr.ID,
		UserIDs:  []string{sr.FromUserID, sr.ToUserID},
	})
}

func (s *swapService) notify(ev notify.Event) {
	if s.notifier == nil {
		return
	}
	s.notifier.Notify(ev)
}

// ── 转换 ──

func toSwapRequestResponse(sr *model.SwapRequest) *dto.SwapRequestResponse {
	resp := &dto.SwapRequestResponse{
		ID:           sr.ID,
		FromUserID:   sr.FromUserID,
		FromUserName: sr.FromUserName,
		ToUserID:     sr.ToUserID,
		ToUserName:   sr.ToUserName,
		Message:      sr.Message,
		Status:       sr.Status,
		CreatedAt:    formatTime(sr.CreatedAt),
		UpdatedAt:    formatTime(sr.UpdatedAt),
	}
	if sr.RespondedAt != nil {
		at := formatTime(*sr.RespondedAt)
		resp.RespondedAt = &at
	}
	return resp
}
