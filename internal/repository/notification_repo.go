package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"skill-swap/backend/internal/model"
)

// NotificationRepository 通知投递记录数据访问接口
type NotificationRepository interface {
	Create(ctx context.Context, n *model.Notification) error
	List(ctx context.Context, requestID string, offset, limit int) ([]model.Notification, int64, error)
}

type notificationRepo struct {
	db *gorm.DB
}

// NewNotificationRepo 创建 NotificationRepository 实例
func NewNotificationRepo(db *gorm.DB) NotificationRepository {
	return &notificationRepo{db: db}
}

func (r *notificationRepo) Create(ctx context.Context, n *model.Notification) error {
	return r.db.WithContext(ctx).Create(n).Error
}

func (r *notificationRepo) List(ctx context.Context, requestID string, offset, limit int) ([]model.Notification, int64, error) {
	db := r.db.WithContext(ctx).Model(&model.Notification{})
	if requestID != "" {
		db = db.Where("request_id = ?", requestID)
	}

	var total int64
	if err := db.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var list []model.Notification
	if err := db.Order("created_at DESC").Offset(offset).Limit(limit).Find(&list).Error; err != nil {
		return nil, 0, err
	}
	return list, total, nil
}

// PreferenceRepository 通知偏好数据访问接口
type PreferenceRepository interface {
	// Get 未设置过偏好时返回默认值（全部开启）
	Get(ctx context.Context, userID string) (*model.NotificationPreference, error)
	Upsert(ctx context.Context, pref *model.NotificationPreference) error
}

type preferenceRepo struct {
	db *gorm.DB
}

// NewPreferenceRepo 创建 PreferenceRepository 实例
func NewPreferenceRepo(db *gorm.DB) PreferenceRepository {
	return &preferenceRepo{db: db}
}

func (r *preferenceRepo) Get(ctx context.Context, userID string) (*model.NotificationPreference, error) {
	var pref model.NotificationPreference
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&pref).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &model.NotificationPreference{UserID: userID, SwapEmails: true}, nil
	}
	if err != nil {
		return nil, err
	}
	return &pref, nil
}

func (r *preferenceRepo) Upsert(ctx context.Context, pref *model.NotificationPreference) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"swap_emails", "updated_at"}),
		}).
		Create(pref).Error
}
