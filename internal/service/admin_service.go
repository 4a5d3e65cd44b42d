package service

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"skill-swap/backend/internal/dto"
	"skill-swap/backend/internal/model"
	"skill-swap/backend/internal/notify"
	"skill-swap/backend/internal/realtime"
	"skill-swap/backend/internal/repository"
	"skill-swap/backend/pkg/metrics"
)

var ErrInvalidNotificationKind = fmt.Errorf("%w: 不支持的通知类型", ErrValidation)

// AdminService 管理端业务接口
type AdminService interface {
	Overview(ctx context.Context) (*dto.OverviewResponse, error)
	ListProfiles(ctx context.Context, req *dto.PaginationRequest) (*dto.PageResponse[dto.AdminProfileResponse], error)
	ListRequests(ctx context.Context, req *dto.AdminListRequestsRequest) (*dto.PageResponse[dto.SwapRequestResponse], error)
	// DeleteProfile 同时删除该用户参与的全部待处理申请
	DeleteProfile(ctx context.Context, admin Identity, userID string) error
	DeleteRequest(ctx context.Context, admin Identity, id string) error
	// TriggerNotification 同步重发一次通知，用于排查投递问题
	TriggerNotification(ctx context.Context, admin Identity, id, kind string) (*dto.DispatchResultResponse, error)
	ListNotifications(ctx context.Context, req *dto.AdminListNotificationsRequest) (*dto.PageResponse[dto.NotificationResponse], error)
}

type adminService struct {
	repo       *repository.Repository
	swap       SwapService
	dispatcher notify.Dispatcher
	publisher  realtime.Publisher
	logger     *zap.Logger
}

// NewAdminService 创建 AdminService 实例
func NewAdminService(
	repo *repository.Repository,
	swap SwapService,
	dispatcher notify.Dispatcher,
	publisher realtime.Publisher,
	logger *zap.Logger,
) AdminService {
	return &adminService{
		repo:       repo,
		swap:       swap,
		dispatcher: dispatcher,
		publisher:  publisher,
		logger:     logger,
	}
}

func (s *adminService) Overview(ctx context.Context) (*dto.OverviewResponse, error) {
	users, err := s.repo.User.Count(ctx)
	if err != nil {
		return nil, storeError("统计用户", err)
	}
	public, err := s.repo.Profile.CountPublic(ctx)
	if err != nil {
		return nil, storeError("统计公开档案", err)
	}
	byStatus, err := s.repo.SwapRequest.CountByStatus(ctx)
	if err != nil {
		return nil, storeError("统计申请", err)
	}

	resp := &dto.OverviewResponse{
		Users:          users,
		PublicProfiles: public,
		Pending:        byStatus[model.SwapStatusPending],
		Accepted:       byStatus[model.SwapStatusAccepted],
		Rejected:       byStatus[model.SwapStatusRejected],
	}
	resp.TotalRequests = resp.Pending + resp.Accepted + resp.Rejected
	return resp, nil
}

func (s *adminService) ListProfiles(ctx context.Context, req *dto.PaginationRequest) (*dto.PageResponse[dto.AdminProfileResponse], error) {
	list, total, err := s.repo.Profile.ListAll(ctx, req.GetOffset(), req.GetPageSize())
	if err != nil {
		s.logger.Error("查询档案列表失败", zap.Error(err))
		return nil, storeError("查询档案列表", err)
	}

	items := make([]dto.AdminProfileResponse, 0, len(list))
	for i := range list {
		items = append(items, dto.AdminProfileResponse{
			ProfileResponse: *toProfileResponse(&list[i]),
			Email:           list[i].Email,
		})
	}
	return &dto.PageResponse[dto.AdminProfileResponse]{
		List: items, Total: total, Page: req.GetPage(), PageSize: req.GetPageSize(),
	}, nil
}

func (s *adminService) ListRequests(ctx context.Context, req *dto.AdminListRequestsRequest) (*dto.PageResponse[dto.SwapRequestResponse], error) {
	filter := &repository.SwapRequestFilter{Status: req.Status, UserID: req.UserID}
	list, total, err := s.repo.SwapRequest.List(ctx, filter, req.GetOffset(), req.GetPageSize())
	if err != nil {
		s.logger.Error("查询申请列表失败", zap.Error(err))
		return nil, storeError("查询申请列表", err)
	}

	items := make([]dto.SwapRequestResponse, 0, len(list))
	for i := range list {
		items = append(items, *toSwapRequestResponse(&list[i]))
	}
	return &dto.PageResponse[dto.SwapRequestResponse]{
		List: items, Total: total, Page: req.GetPage(), PageSize: req.GetPageSize(),
	}, nil
}

// ═══════════════════════════════════════════════════════════
// 内容治理
// ═══════════════════════════════════════════════════════════

func (s *adminService) DeleteProfile(ctx context.Context, admin Identity, userID string) error {
	if !admin.IsAdmin() {
		return ErrAdminOnly
	}

	var removed []model.SwapRequest
	err := s.repo.Transaction(ctx, func(tx *repository.Repository) error {
		var err error
		if removed, err = tx.SwapRequest.DeletePendingByUser(ctx, userID); err != nil {
			return err
		}
		return tx.Profile.Delete(ctx, userID)
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrProfileNotFound
		}
		s.logger.Error("删除档案失败", zap.String("user_id", userID), zap.Error(err))
		return storeError("删除档案", err)
	}

	for i := range removed {
		metrics.SwapTransitions.WithLabelValues("withdrawn").Inc()
		publish(ctx, s.publisher, realtime.ChangeEvent{
			Table:    realtime.TableSwapRequests,
			Type:     realtime.ChangeDelete,
			RecordID: removed[i].ID,
			UserIDs:  []string{removed[i].FromUserID, removed[i].ToUserID},
		})
	}
	publish(ctx, s.publisher, realtime.ChangeEvent{
		Table:    realtime.TableProfiles,
		Type:     realtime.ChangeDelete,
		RecordID: userID,
	})

	s.logger.Info("管理员删除档案",
		zap.String("admin", admin.UserID),
		zap.String("user_id", userID),
		zap.Int("pending_removed", len(removed)),
	)
	return nil
}

func (s *adminService) DeleteRequest(ctx context.Context, admin Identity, id string) error {
	if !admin.IsAdmin() {
		return ErrAdminOnly
	}
	return s.swap.Withdraw(ctx, id, admin)
}

func (s *adminService) TriggerNotification(ctx context.Context, admin Identity, id, kind string) (*dto.DispatchResultResponse, error) {
	if !admin.IsAdmin() {
		return nil, ErrAdminOnly
	}
	switch kind {
	case model.NotificationRequestSent, model.NotificationRequestAccepted, model.NotificationRequestRejected:
	default:
		return nil, ErrInvalidNotificationKind
	}

	sr, err := s.repo.SwapRequest.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSwapRequestNotFound
		}
		return nil, storeError("查询申请", err)
	}

	res, dispatchErr := s.dispatcher.Dispatch(ctx, notify.EventFor(sr, kind))
	resp := &dto.DispatchResultResponse{
		Status:    res.Status,
		Address:   res.Address,
		Subject:   res.Subject,
		MessageID: res.MessageID,
	}
	if dispatchErr != nil {
		resp.Error = dispatchErr.Error()
	}
	return resp, nil
}

func (s *adminService) ListNotifications(ctx context.Context, req *dto.AdminListNotificationsRequest) (*dto.PageResponse[dto.NotificationResponse], error) {
	list, total, err := s.repo.Notification.List(ctx, req.RequestID, req.GetOffset(), req.GetPageSize())
	if err != nil {
		s.logger.Error("查询通知记录失败", zap.Error(err))
		return nil, storeError("查询通知记录", err)
	}

	items := make([]dto.NotificationResponse, 0, len(list))
	for _, n := range list {
		items = append(items, dto.NotificationResponse{
			ID:               n.NotificationID,
			RequestID:        n.RequestID,
			RecipientUserID:  n.RecipientUserID,
			RecipientAddress: n.RecipientAddress,
			Kind:             n.Kind,
			Subject:          n.Subject,
			Status:           n.Status,
			MessageID:        n.MessageID,
			Error:            n.Error,
			CreatedAt:        formatTime(n.CreatedAt),
		})
	}
	return &dto.PageResponse[dto.NotificationResponse]{
		List: items, Total: total, Page: req.GetPage(), PageSize: req.GetPageSize(),
	}, nil
}
