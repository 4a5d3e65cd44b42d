package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"skill-swap/backend/internal/model"
	pkgerrors "skill-swap/backend/pkg/errors"
)

// SwapRequestFilter 管理端申请列表筛选
type SwapRequestFilter struct {
	Status string
	UserID string // 任一方
}

// SwapRequestRepository 换技能申请数据访问接口
type SwapRequestRepository interface {
	Create(ctx context.Context, req *model.SwapRequest) error
	GetByID(ctx context.Context, id string) (*model.SwapRequest, error)
	// ListForUser 返回用户作为发起方或接收方的全部申请，按创建时间倒序
	ListForUser(ctx context.Context, userID string) ([]model.SwapRequest, error)
	List(ctx context.Context, filter *SwapRequestFilter, offset, limit int) ([]model.SwapRequest, int64, error)
	ExistsPending(ctx context.Context, fromUserID, toUserID string) (bool, error)
	PendingRecipients(ctx context.Context, fromUserID string) ([]string, error)
	// Transition 条件更新：仅当申请仍为 pending 且接收方匹配时生效，否则返回 ErrStaleState
	Transition(ctx context.Context, id, toUserID, status string, at time.Time) error
	// DeletePending 条件删除：仅当申请仍为 pending 且发起方匹配时生效，否则返回 ErrStaleState
	DeletePending(ctx context.Context, id, fromUserID string) error
	Delete(ctx context.Context, id string) error
	// DeletePendingByUser 删除用户参与的全部待处理申请，返回被删除的记录
	DeletePendingByUser(ctx context.Context, userID string) ([]model.SwapRequest, error)
	CountByStatus(ctx context.Context) (map[string]int64, error)
}

type swapRequestRepo struct {
	db *gorm.DB
}

// NewSwapRequestRepo 创建 SwapRequestRepository 实例
func NewSwapRequestRepo(db *gorm.DB) SwapRequestRepository {
	return &swapRequestRepo{db: db}
}

func (r *swapRequestRepo) Create(ctx context.Context, req *model.SwapRequest) error {
	return r.db.WithContext(ctx).Create(req).Error
}

func (r *swapRequestRepo) GetByID(ctx context.Context, id string) (*model.SwapRequest, error) {
	var req model.SwapRequest
	err := r.db.WithContext(ctx).
		Where("id = ?", id).
		First(&req).Error
	if err != nil {
		return nil, err
	}
	return &req, nil
}

func (r *swapRequestRepo) ListForUser(ctx context.Context, userID string) ([]model.SwapRequest, error) {
	var reqs []model.SwapRequest
	err := r.db.WithContext(ctx).
		Where("from_user_id = ? OR to_user_id = ?", userID, userID).
		Order("created_at DESC").
		Find(&reqs).Error
	if err != nil {
		return nil, err
	}
	return reqs, nil
}

func (r *swapRequestRepo) List(ctx context.Context, filter *SwapRequestFilter, offset, limit int) ([]model.SwapRequest, int64, error) {
	db := r.db.WithContext(ctx).Model(&model.SwapRequest{})
	if filter != nil {
		if filter.Status != "" {
			db = db.Where("status = ?", filter.Status)
		}
		if filter.UserID != "" {
			db = db.Where("(from_user_id = ? OR to_user_id = ?)", filter.UserID, filter.UserID)
		}
	}

	var total int64
	if err := db.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var reqs []model.SwapRequest
	q := db.Order("created_at DESC").Offset(offset)
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&reqs).Error; err != nil {
		return nil, 0, err
	}
	return reqs, total, nil
}

func (r *swapRequestRepo) ExistsPending(ctx context.Context, fromUserID, toUserID string) (bool, error) {
	var n int64
	err := r.db.WithContext(ctx).
		Model(&model.SwapRequest{}).
		Where("from_user_id = ? AND to_user_id = ? AND status = ?", fromUserID, toUserID, model.SwapStatusPending).
		Count(&n).Error
	return n > 0, err
}

func (r *swapRequestRepo) PendingRecipients(ctx context.Context, fromUserID string) ([]string, error) {
	var ids []string
	err := r.db.WithContext(ctx).
		Model(&model.SwapRequest{}).
		Where("from_user_id = ? AND status = ?", fromUserID, model.SwapStatusPending).
		Distinct().
		Pluck("to_user_id", &ids).Error
	return ids, err
}

func (r *swapRequestRepo) Transition(ctx context.Context, id, toUserID, status string, at time.Time) error {
	result := r.db.WithContext(ctx).
		Model(&model.SwapRequest{}).
		Where("id = ? AND to_user_id = ? AND status = ?", id, toUserID, model.SwapStatusPending).
		Updates(map[string]interface{}{
			"status":       status,
			"responded_at": at,
			"updated_at":   at,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return pkgerrors.ErrStaleState
	}
	return nil
}

func (r *swapRequestRepo) DeletePending(ctx context.Context, id, fromUserID string) error {
	result := r.db.WithContext(ctx).
		Where("id = ? AND from_user_id = ? AND status = ?", id, fromUserID, model.SwapStatusPending).
		Delete(&model.SwapRequest{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return pkgerrors.ErrStaleState
	}
	return nil
}

func (r *swapRequestRepo) Delete(ctx context.Context, id string) error {
	result := r.db.WithContext(ctx).
		Where("id = ?", id).
		Delete(&model.SwapRequest{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *swapRequestRepo) DeletePendingByUser(ctx context.Context, userID string) ([]model.SwapRequest, error) {
	var deleted []model.SwapRequest
	err := r.db.WithContext(ctx).
		Where("(from_user_id = ? OR to_user_id = ?) AND status = ?", userID, userID, model.SwapStatusPending).
		Find(&deleted).Error
	if err != nil {
		return nil, err
	}
	if len(deleted) == 0 {
		return nil, nil
	}

	ids := make([]string, len(deleted))
	for i := range deleted {
		ids[i] = deleted[i].ID
	}
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Delete(&model.SwapRequest{}).Error; err != nil {
		return nil, err
	}
	return deleted, nil
}

func (r *swapRequestRepo) CountByStatus(ctx context.Context) (map[string]int64, error) {
	var rows []struct {
		Status string
		Total  int64
	}
	err := r.db.WithContext(ctx).
		Model(&model.SwapRequest{}).
		Select("status, COUNT(*) AS total").
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	counts := map[string]int64{
		model.SwapStatusPending:  0,
		model.SwapStatusAccepted: 0,
		model.SwapStatusRejected: 0,
	}
	for _, row := range rows {
		counts[row.Status] = row.Total
	}
	return counts, nil
}
