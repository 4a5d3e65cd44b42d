package service

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/lib/pq"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"skill-swap/backend/internal/dto"
	"skill-swap/backend/internal/model"
	"skill-swap/backend/internal/realtime"
	"skill-swap/backend/internal/repository"
)

// ── 技能档案业务错误 ──

var (
	ErrProfileNotFound     = errors.New("用户档案不存在")
	ErrProfileNameRequired = fmt.Errorf("%w: 姓名不能为空", ErrValidation)
	ErrInvalidAvailability = fmt.Errorf("%w: 无效的空闲时段", ErrValidation)
	ErrPictureTooLarge     = fmt.Errorf("%w: 头像不能超过 2MB", ErrValidation)
	ErrPictureNotImage     = fmt.Errorf("%w: 头像必须是 PNG、JPEG、GIF 或 WebP 图片", ErrValidation)
)

// MaxPictureSize 头像大小上限
const MaxPictureSize = 2 << 20

var allowedPictureTypes = []string{"image/png", "image/jpeg", "image/gif", "image/webp"}

// ProfileService 技能档案业务接口
type ProfileService interface {
	// Get 公开档案任何人可见，非公开档案仅本人与管理员可见
	Get(ctx context.Context, viewer Identity, userID string) (*dto.ProfileResponse, error)
	GetMine(ctx context.Context, me Identity) (*dto.ProfileResponse, error)
	Upsert(ctx context.Context, me Identity, req *dto.UpsertProfileRequest) (*dto.ProfileResponse, error)
	ListPublic(ctx context.Context, viewer Identity, req *dto.ListProfilesRequest) ([]dto.ProfileResponse, error)
	SetPicture(ctx context.Context, me Identity, data []byte) (*dto.ProfileResponse, error)
	ClearPicture(ctx context.Context, me Identity) error
	GetPreference(ctx context.Context, me Identity) (*dto.PreferenceResponse, error)
	UpdatePreference(ctx context.Context, me Identity, req *dto.PreferenceRequest) (*dto.PreferenceResponse, error)
}

type profileService struct {
	repo      *repository.Repository
	publisher realtime.Publisher
	logger    *zap.Logger
}

// NewProfileService 创建 ProfileService 实例
func NewProfileService(repo *repository.Repository, publisher realtime.Publisher, logger *zap.Logger) ProfileService {
	return &profileService{repo: repo, publisher: publisher, logger: logger}
}

func (s *profileService) Get(ctx context.Context, viewer Identity, userID string) (*dto.ProfileResponse, error) {
	p, err := s.load(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !p.IsPublic && viewer.UserID != userID && !viewer.IsAdmin() {
		return nil, ErrProfileNotFound
	}

	resp := toProfileResponse(p)
	if !viewer.IsAnonymous() && viewer.UserID != userID {
		exists, err := s.repo.SwapRequest.ExistsPending(ctx, viewer.UserID, userID)
		if err != nil {
			s.logger.Warn("查询待处理申请失败", zap.Error(err))
		}
		resp.RequestPending = exists
	}
	return resp, nil
}

func (s *profileService) GetMine(ctx context.Context, me Identity) (*dto.ProfileResponse, error) {
	p, err := s.load(ctx, me.UserID)
	if err != nil {
		return nil, err
	}
	return toProfileResponse(p), nil
}

// Upsert 以调用方身份为键创建或覆盖档案（头像单独维护）
func (s *profileService) Upsert(ctx context.Context, me Identity, req *dto.UpsertProfileRequest) (*dto.ProfileResponse, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, ErrProfileNameRequired
	}
	availability, err := normalizeAvailability(req.Availability)
	if err != nil {
		return nil, err
	}

	isPublic := true
	if req.IsPublic != nil {
		isPublic = *req.IsPublic
	}

	p := &model.Profile{
		UserID:        me.UserID,
		Email:         me.Email,
		Name:          name,
		Location:      strings.TrimSpace(req.Location),
		SkillsOffered: pq.StringArray(normalizeSet(req.SkillsOffered)),
		SkillsWanted:  pq.StringArray(normalizeSet(req.SkillsWanted)),
		Availability:  pq.StringArray(availability),
		IsPublic:      isPublic,
	}
	if err := s.repo.Profile.Upsert(ctx, p); err != nil {
		s.logger.Error("保存档案失败", zap.String("user_id", me.UserID), zap.Error(err))
		return nil, storeError("保存档案", err)
	}

	s.publish(ctx, realtime.ChangeUpdate, me.UserID)
	return s.GetMine(ctx, me)
}

func (s *profileService) ListPublic(ctx context.Context, viewer Identity, req *dto.ListProfilesRequest) ([]dto.ProfileResponse, error) {
	list, err := s.repo.Profile.ListPublic(ctx, &repository.ProfileFilter{
		ExcludeUserID: viewer.UserID,
		Keyword:       strings.TrimSpace(req.Search),
		Availability:  strings.TrimSpace(req.Availability),
	})
	if err != nil {
		s.logger.Error("查询公开档案失败", zap.Error(err))
		return nil, storeError("查询公开档案", err)
	}

	pending := make(map[string]bool)
	if !viewer.IsAnonymous() {
		ids, err := s.repo.SwapRequest.PendingRecipients(ctx, viewer.UserID)
		if err != nil {
			s.logger.Warn("查询待处理接收方失败", zap.Error(err))
		}
		for _, id := range ids {
			pending[id] = true
		}
	}

	result := make([]dto.ProfileResponse, 0, len(list))
	for i := range list {
		item := toProfileResponse(&list[i])
		item.RequestPending = pending[item.UserID]
		result = append(result, *item)
	}
	return result, nil
}

// ── 头像 ──

// SetPicture 按内容识别图片类型，以 data URI 形式保存
func (s *profileService) SetPicture(ctx context.Context, me Identity, data []byte) (*dto.ProfileResponse, error) {
	if len(data) > MaxPictureSize {
		return nil, ErrPictureTooLarge
	}
	mt := mimetype.Detect(data)
	if !mimetype.EqualsAny(mt.String(), allowedPictureTypes...) {
		return nil, ErrPictureNotImage
	}

	if _, err := s.load(ctx, me.UserID); err != nil {
		return nil, err
	}

	uri := "data:" + mt.String() + ";base64," + base64.StdEncoding.EncodeToString(data)
	if err := s.repo.Profile.UpdatePicture(ctx, me.UserID, &uri); err != nil {
		s.logger.Error("保存头像失败", zap.String("user_id", me.UserID), zap.Error(err))
		return nil, storeError("保存头像", err)
	}

	s.publish(ctx, realtime.ChangeUpdate, me.UserID)
	return s.GetMine(ctx, me)
}

func (s *profileService) ClearPicture(ctx context.Context, me Identity) error {
	if _, err := s.load(ctx, me.UserID); err != nil {
		return err
	}
	if err := s.repo.Profile.UpdatePicture(ctx, me.UserID, nil); err != nil {
		s.logger.Error("清除头像失败", zap.String("user_id", me.UserID), zap.Error(err))
		return storeError("清除头像", err)
	}
	s.publish(ctx, realtime.ChangeUpdate, me.UserID)
	return nil
}

// ── 通知偏好 ──

func (s *profileService) GetPreference(ctx context.Context, me Identity) (*dto.PreferenceResponse, error) {
	pref, err := s.repo.Preference.Get(ctx, me.UserID)
	if err != nil {
		s.logger.Error("查询通知偏好失败", zap.Error(err))
		return nil, storeError("查询通知偏好", err)
	}
	return &dto.PreferenceResponse{SwapEmails: pref.SwapEmails}, nil
}

func (s *profileService) UpdatePreference(ctx context.Context, me Identity, req *dto.PreferenceRequest) (*dto.PreferenceResponse, error) {
	if req.SwapEmails == nil {
		return nil, fmt.Errorf("%w: swap_emails 不能为空", ErrValidation)
	}
	pref := &model.NotificationPreference{UserID: me.UserID, SwapEmails: *req.SwapEmails}
	if err := s.repo.Preference.Upsert(ctx, pref); err != nil {
		s.logger.Error("保存通知偏好失败", zap.Error(err))
		return nil, storeError("保存通知偏好", err)
	}
	return &dto.PreferenceResponse{SwapEmails: pref.SwapEmails}, nil
}

func (s *profileService) load(ctx context.Context, userID string) (*model.Profile, error) {
	p, err := s.repo.Profile.Get(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrProfileNotFound
		}
		s.logger.Error("查询档案失败", zap.String("user_id", userID), zap.Error(err))
		return nil, storeError("查询档案", err)
	}
	return p, nil
}

func (s *profileService) publish(ctx context.Context, typ realtime.ChangeType, userID string) {
	publish(ctx, s.publisher, realtime.ChangeEvent{
		Table:    realtime.TableProfiles,
		Type:     typ,
		RecordID: userID,
	})
}

// ── 规范化 ──

// normalizeSet 去除首尾空白，忽略大小写去重，保留首次出现的顺序与写法
func normalizeSet(values []string) []string {
	out := make([]string, 0, len(values))
	seen := make(map[string]bool, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		key := strings.ToLower(v)
		if v == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, v)
	}
	return out
}

// normalizeAvailability 校验并统一为标准写法
func normalizeAvailability(values []string) ([]string, error) {
	set := normalizeSet(values)
	for i, v := range set {
		canonical := ""
		for _, opt := range model.AvailabilityOptions {
			if strings.EqualFold(opt, v) {
				canonical = opt
				break
			}
		}
		if canonical == "" {
			return nil, fmt.Errorf("%w: %s", ErrInvalidAvailability, v)
		}
		set[i] = canonical
	}
	return set, nil
}

// ── 转换 ──

func toProfileResponse(p *model.Profile) *dto.ProfileResponse {
	return &dto.ProfileResponse{
		UserID:         p.UserID,
		Name:           p.Name,
		Location:       p.Location,
		SkillsOffered:  nonNil(p.SkillsOffered),
		SkillsWanted:   nonNil(p.SkillsWanted),
		Availability:   nonNil(p.Availability),
		IsPublic:       p.IsPublic,
		ProfilePicture: p.ProfilePicture,
		CreatedAt:      formatTime(p.CreatedAt),
		UpdatedAt:      formatTime(p.UpdatedAt),
	}
}

func nonNil(a pq.StringArray) []string {
	if a == nil {
		return []string{}
	}
	return []string(a)
}
