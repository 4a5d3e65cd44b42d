package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"skill-swap/backend/internal/dto"
	"skill-swap/backend/internal/service"
	"skill-swap/backend/pkg/response"
)

// AdminHandler 管理端 HTTP 处理器（路由层已限定 admin 角色）
type AdminHandler struct {
	adminSvc service.AdminService
}

// NewAdminHandler 创建 AdminHandler
func NewAdminHandler(adminSvc service.AdminService) *AdminHandler {
	return &AdminHandler{adminSvc: adminSvc}
}

// Overview 平台概览
// GET /api/v1/admin/overview
func (h *AdminHandler) Overview(c *gin.Context) {
	result, err := h.adminSvc.Overview(c.Request.Context())
	if err != nil {
		handleServiceError(c, err)
		return
	}
	response.OK(c, result)
}

// Profiles 全部档案（含非公开）
// GET /api/v1/admin/profiles
func (h *AdminHandler) Profiles(c *gin.Context) {
	var req dto.PaginationRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		bindFailed(c, err)
		return
	}

	result, err := h.adminSvc.ListProfiles(c.Request.Context(), &req)
	if err != nil {
		handleServiceError(c, err)
		return
	}
	response.OK(c, result)
}

// DeleteProfile 删除档案及其参与的待处理申请
// DELETE /api/v1/admin/profiles/:id
func (h *AdminHandler) DeleteProfile(c *gin.Context) {
	admin, ok := MustGetIdentity(c)
	if !ok {
		return
	}
	id, ok := pathID(c)
	if !ok {
		return
	}

	if err := h.adminSvc.DeleteProfile(c.Request.Context(), admin, id); err != nil {
		handleServiceError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Requests 全部换技能申请
// GET /api/v1/admin/requests?status=&user_id=
func (h *AdminHandler) Requests(c *gin.Context) {
	var req dto.AdminListRequestsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		bindFailed(c, err)
		return
	}

	result, err := h.adminSvc.ListRequests(c.Request.Context(), &req)
	if err != nil {
		handleServiceError(c, err)
		return
	}
	response.OK(c, result)
}

// DeleteRequest 删除任意申请
// DELETE /api/v1/admin/requests/:id
func (h *AdminHandler) DeleteRequest(c *gin.Context) {
	admin, ok := MustGetIdentity(c)
	if !ok {
		return
	}
	id, ok := pathID(c)
	if !ok {
		return
	}

	if err := h.adminSvc.DeleteRequest(c.Request.Context(), admin, id); err != nil {
		handleServiceError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// TriggerNotification 手动重发一次通知，投递失败体现在响应的 error 字段
// POST /api/v1/admin/requests/:id/notify
func (h *AdminHandler) TriggerNotification(c *gin.Context) {
	admin, ok := MustGetIdentity(c)
	if !ok {
		return
	}
	id, ok := pathID(c)
	if !ok {
		return
	}

	var req dto.TriggerNotificationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindFailed(c, err)
		return
	}

	result, err := h.adminSvc.TriggerNotification(c.Request.Context(), admin, id, req.Kind)
	if err != nil {
		handleServiceError(c, err)
		return
	}
	response.OK(c, result)
}

// Notifications 通知投递记录
// GET /api/v1/admin/notifications?request_id=
func (h *AdminHandler) Notifications(c *gin.Context) {
	var req dto.AdminListNotificationsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		bindFailed(c, err)
		return
	}

	result, err := h.adminSvc.ListNotifications(c.Request.Context(), &req)
	if err != nil {
		handleServiceError(c, err)
		return
	}
	response.OK(c, result)
}
