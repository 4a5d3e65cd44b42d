package repository

import (
	"context"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"skill-swap/backend/internal/model"
)

// ProfileFilter 公开档案查询条件
type ProfileFilter struct {
	ExcludeUserID string // 浏览时排除当前用户
	Keyword       string // 匹配姓名、地点或任一技能（不区分大小写）
	Availability  string // 匹配任一空闲时段（子串）
}

// ProfileRepository 技能档案数据访问接口
type ProfileRepository interface {
	Get(ctx context.Context, userID string) (*model.Profile, error)
	Upsert(ctx context.Context, profile *model.Profile) error
	UpdatePicture(ctx context.Context, userID string, picture *string) error
	Delete(ctx context.Context, userID string) error
	ListPublic(ctx context.Context, filter *ProfileFilter) ([]model.Profile, error)
	ListAll(ctx context.Context, offset, limit int) ([]model.Profile, int64, error)
	CountPublic(ctx context.Context) (int64, error)
}

type profileRepo struct {
	db *gorm.DB
}

// NewProfileRepo 创建 ProfileRepository 实例
func NewProfileRepo(db *gorm.DB) ProfileRepository {
	return &profileRepo{db: db}
}

func (r *profileRepo) Get(ctx context.Context, userID string) (*model.Profile, error) {
	var p model.Profile
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		First(&p).Error
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// Upsert 以 user_id 为键插入或覆盖档案（头像单独维护，不在此覆盖）
func (r *profileRepo) Upsert(ctx context.Context, profile *model.Profile) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "user_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"email", "name", "location", "skills_offered", "skills_wanted",
				"availability", "is_public", "updated_at",
			}),
		}).
		Omit("profile_picture").
		Create(profile).Error
}

func (r *profileRepo) UpdatePicture(ctx context.Context, userID string, picture *string) error {
	result := r.db.WithContext(ctx).
		Model(&model.Profile{}).
		Where("user_id = ?", userID).
		Updates(map[string]interface{}{
			"profile_picture": picture,
			"updated_at":      time.Now().UTC(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *profileRepo) Delete(ctx context.Context, userID string) error {
	result := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Delete(&model.Profile{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *profileRepo) ListPublic(ctx context.Context, filter *ProfileFilter) ([]model.Profile, error) {
	db := r.db.WithContext(ctx).Where("is_public = ?", true)

	if filter != nil {
		if filter.ExcludeUserID != "" {
			db = db.Where("user_id <> ?", filter.ExcludeUserID)
		}
		if kw := strings.TrimSpace(filter.Keyword); kw != "" {
			like := "%" + escapeLike(kw) + "%"
			db = db.Where(
				"(name ILIKE ? OR location ILIKE ? "+
					"OR EXISTS (SELECT 1 FROM unnest(skills_offered) s WHERE s ILIKE ?) "+
					"OR EXISTS (SELECT 1 FROM unnest(skills_wanted) s WHERE s ILIKE ?))",
				like, like, like, like,
			)
		}
		if av := strings.TrimSpace(filter.Availability); av != "" {
			db = db.Where("EXISTS (SELECT 1 FROM unnest(availability) a WHERE a ILIKE ?)", "%"+escapeLike(av)+"%")
		}
	}

	var profiles []model.Profile
	if err := db.Order("created_at DESC").Find(&profiles).Error; err != nil {
		return nil, err
	}
	return profiles, nil
}

func (r *profileRepo) ListAll(ctx context.Context, offset, limit int) ([]model.Profile, int64, error) {
	var profiles []model.Profile
	var total int64

	db := r.db.WithContext(ctx).Model(&model.Profile{})
	if err := db.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	if err := db.Offset(offset).Limit(limit).
		Order("created_at DESC").
		Find(&profiles).Error; err != nil {
		return nil, 0, err
	}
	return profiles, total, nil
}

func (r *profileRepo) CountPublic(ctx context.Context) (int64, error) {
	var total int64
	err := r.db.WithContext(ctx).Model(&model.Profile{}).Where("is_public = ?", true).Count(&total).Error
	return total, err
}

// escapeLike 转义 LIKE 通配符
func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
