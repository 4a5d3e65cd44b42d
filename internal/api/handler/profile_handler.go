package handler

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"skill-swap/backend/internal/dto"
	"skill-swap/backend/internal/service"
	"skill-swap/backend/pkg/response"
)

// ProfileHandler 技能档案 HTTP 处理器
type ProfileHandler struct {
	profileSvc service.ProfileService
}

// NewProfileHandler 创建 ProfileHandler
func NewProfileHandler(profileSvc service.ProfileService) *ProfileHandler {
	return &ProfileHandler{profileSvc: profileSvc}
}

// List 浏览公开档案（匿名可访问，登录后标注已发出的待处理申请）
// GET /api/v1/profiles
func (h *ProfileHandler) List(c *gin.Context) {
	var req dto.ListProfilesRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		bindFailed(c, err)
		return
	}

	list, err := h.profileSvc.ListPublic(c.Request.Context(), OptionalIdentity(c), &req)
	if err != nil {
		handleServiceError(c, err)
		return
	}
	response.OK(c, list)
}

// Get 查看指定用户档案
// GET /api/v1/profiles/:id
func (h *ProfileHandler) Get(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	result, err := h.profileSvc.Get(c.Request.Context(), OptionalIdentity(c), id)
	if err != nil {
		handleServiceError(c, err)
		return
	}
	response.OK(c, result)
}

// GetMine 查看本人档案
// GET /api/v1/profile
func (h *ProfileHandler) GetMine(c *gin.Context) {
	me, ok := MustGetIdentity(c)
	if !ok {
		return
	}

	result, err := h.profileSvc.GetMine(c.Request.Context(), me)
	if err != nil {
		handleServiceError(c, err)
		return
	}
	response.OK(c, result)
}

// Upsert 创建或更新本人档案
// PUT /api/v1/profile
func (h *ProfileHandler) Upsert(c *gin.Context) {
	me, ok := MustGetIdentity(c)
	if !ok {
		return
	}

	var req dto.UpsertProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindFailed(c, err)
		return
	}

	result, err := h.profileSvc.Upsert(c.Request.Context(), me, &req)
	if err != nil {
		handleServiceError(c, err)
		return
	}
	response.OK(c, result)
}

// UploadPicture 上传头像（multipart 字段 file）
// PUT /api/v1/profile/picture
func (h *ProfileHandler) UploadPicture(c *gin.Context) {
	me, ok := MustGetIdentity(c)
	if !ok {
		return
	}

	fh, err := c.FormFile("file")
	if err != nil {
		bindFailed(c, err)
		return
	}
	if fh.Size > service.MaxPictureSize {
		handleServiceError(c, service.ErrPictureTooLarge)
		return
	}

	f, err := fh.Open()
	if err != nil {
		response.InternalError(c)
		return
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, service.MaxPictureSize+1))
	if err != nil {
		response.InternalError(c)
		return
	}

	result, err := h.profileSvc.SetPicture(c.Request.Context(), me, data)
	if err != nil {
		handleServiceError(c, err)
		return
	}
	response.OK(c, result)
}

// DeletePicture 清除头像
// DELETE /api/v1/profile/picture
func (h *ProfileHandler) DeletePicture(c *gin.Context) {
	me, ok := MustGetIdentity(c)
	if !ok {
		return
	}

	if err := h.profileSvc.ClearPicture(c.Request.Context(), me); err != nil {
		handleServiceError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// GetPreferences 查看通知偏好
// GET /api/v1/profile/preferences
func (h *ProfileHandler) GetPreferences(c *gin.Context) {
	me, ok := MustGetIdentity(c)
	if !ok {
		return
	}

	result, err := h.profileSvc.GetPreference(c.Request.Context(), me)
	if err != nil {
		handleServiceError(c, err)
		return
	}
	response.OK(c, result)
}

// UpdatePreferences 更新通知偏好
// PUT /api/v1/profile/preferences
func (h *ProfileHandler) UpdatePreferences(c *gin.Context) {
	me, ok := MustGetIdentity(c)
	if !ok {
		return
	}

	var req dto.PreferenceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindFailed(c, err)
		return
	}

	result, err := h.profileSvc.UpdatePreference(c.Request.Context(), me, &req)
	if err != nil {
		handleServiceError(c, err)
		return
	}
	response.OK(c, result)
}
