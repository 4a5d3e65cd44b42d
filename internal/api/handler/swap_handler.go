package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"skill-swap/backend/internal/dto"
	"skill-swap/backend/internal/service"
	"skill-swap/backend/pkg/response"
)

// SwapHandler 换技能申请 HTTP 处理器
type SwapHandler struct {
	swapSvc service.SwapService
}

// NewSwapHandler 创建 SwapHandler
func NewSwapHandler(swapSvc service.SwapService) *SwapHandler {
	return &SwapHandler{swapSvc: swapSvc}
}

// List 当前用户发出与收到的申请
// GET /api/v1/swap-requests
func (h *SwapHandler) List(c *gin.Context) {
	me, ok := MustGetIdentity(c)
	if !ok {
		return
	}

	result, err := h.swapSvc.ListFor(c.Request.Context(), me)
	if err != nil {
		handleServiceError(c, err)
		return
	}
	response.OK(c, result)
}

// Create 发起换技能申请
// POST /api/v1/swap-requests
func (h *SwapHandler) Create(c *gin.Context) {
	me, ok := MustGetIdentity(c)
	if !ok {
		return
	}

	var req dto.CreateSwapRequestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindFailed(c, err)
		return
	}

	result, err := h.swapSvc.Create(c.Request.Context(), me, &req)
	if err != nil {
		handleServiceError(c, err)
		return
	}
	response.Created(c, result)
}

// Get 查看申请详情（仅双方与管理员）
// GET /api/v1/swap-requests/:id
func (h *SwapHandler) Get(c *gin.Context) {
	me, ok := MustGetIdentity(c)
	if !ok {
		return
	}
	id, ok := pathID(c)
	if !ok {
		return
	}

	result, err := h.swapSvc.Get(c.Request.Context(), id, me)
	if err != nil {
		handleServiceError(c, err)
		return
	}
	response.OK(c, result)
}

// Respond 接收方接受或拒绝
// PATCH /api/v1/swap-requests/:id
func (h *SwapHandler) Respond(c *gin.Context) {
	me, ok := MustGetIdentity(c)
	if !ok {
		return
	}
	id, ok := pathID(c)
	if !ok {
		return
	}

	var req dto.RespondSwapRequestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindFailed(c, err)
		return
	}

	result, err := h.swapSvc.Respond(c.Request.Context(), id, me, req.Status)
	if err != nil {
		handleServiceError(c, err)
		return
	}
	response.OK(c, result)
}

// Withdraw 发起方撤回待处理申请
// DELETE /api/v1/swap-requests/:id
func (h *SwapHandler) Withdraw(c *gin.Context) {
	me, ok := MustGetIdentity(c)
	if !ok {
		return
	}
	id, ok := pathID(c)
	if !ok {
		return
	}

	if err := h.swapSvc.Withdraw(c.Request.Context(), id, me); err != nil {
		handleServiceError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// PendingRecipients 已发出待处理申请的接收方 ID，用于浏览页按钮状态
// GET /api/v1/swap-requests/pending-recipients
func (h *SwapHandler) PendingRecipients(c *gin.Context) {
	me, ok := MustGetIdentity(c)
	if !ok {
		return
	}

	ids, err := h.swapSvc.PendingRecipients(c.Request.Context(), me)
	if err != nil {
		handleServiceError(c, err)
		return
	}
	response.OK(c, dto.PendingRecipientsResponse{UserIDs: ids})
}
