package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"skill-swap/backend/internal/service"
	"skill-swap/backend/pkg/response"
)

// handleServiceError 将 Service 层错误映射为 HTTP 响应
//
// 错误码约定：
//
//	10xxx 通用（参数、认证、权限、请求体）
//	11xxx 账号与认证
//	30xxx 档案与换技能申请
//	50000 服务端内部错误
func handleServiceError(c *gin.Context, err error) {
	var maxBytesErr *http.MaxBytesError
	switch {
	case errors.As(err, &maxBytesErr):
		response.Error(c, http.StatusRequestEntityTooLarge, 10005, "请求体过大")
	case errors.Is(err, service.ErrValidation):
		response.BadRequest(c, 10001, err.Error())
	case errors.Is(err, service.ErrAdminOnly):
		response.Forbidden(c, 10003, err.Error())
	case errors.Is(err, service.ErrInvalidCredentials):
		response.Unauthorized(c, 11001, err.Error())
	case errors.Is(err, service.ErrEmailNotConfirmed):
		response.Forbidden(c, 11002, err.Error())
	case errors.Is(err, service.ErrEmailTaken):
		response.Conflict(c, 11003, err.Error())
	case errors.Is(err, service.ErrInvalidToken):
		response.Unauthorized(c, 11004, err.Error())
	case errors.Is(err, service.ErrProfileNotFound),
		errors.Is(err, service.ErrSwapRequestNotFound),
		errors.Is(err, service.ErrUserNotFound):
		response.NotFound(c, 30001, err.Error())
	case errors.Is(err, service.ErrUnauthorizedTransition):
		response.Forbidden(c, 30003, err.Error())
	case errors.Is(err, service.ErrInvalidState):
		response.Conflict(c, 30004, err.Error())
	case errors.Is(err, service.ErrDuplicateRequest):
		response.Conflict(c, 30005, err.Error())
	case errors.Is(err, service.ErrExportGenerateFail):
		response.Error(c, http.StatusInternalServerError, 50001, err.Error())
	default:
		response.InternalError(c)
	}
}

// bindFailed 参数绑定失败；请求体超限时返回 413
func bindFailed(c *gin.Context, err error) {
	var maxBytesErr *http.MaxBytesError
	if errors.As(err, &maxBytesErr) {
		response.Error(c, http.StatusRequestEntityTooLarge, 10005, "请求体过大")
		return
	}
	response.BadRequest(c, 10001, "参数校验失败")
}
