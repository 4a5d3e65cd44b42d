package handler

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"skill-swap/backend/internal/api/middleware"
	"skill-swap/backend/internal/dto"
	"skill-swap/backend/internal/service"
	"skill-swap/backend/pkg/response"
)

// AuthHandler 认证模块 HTTP 处理器
type AuthHandler struct {
	authSvc service.AuthService
	siteURL string
}

// NewAuthHandler 创建 AuthHandler
func NewAuthHandler(authSvc service.AuthService, siteURL string) *AuthHandler {
	return &AuthHandler{authSvc: authSvc, siteURL: strings.TrimRight(siteURL, "/")}
}

// SignUp 邮箱注册
// POST /api/v1/auth/signup
func (h *AuthHandler) SignUp(c *gin.Context) {
	var req dto.SignUpRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindFailed(c, err)
		return
	}

	result, err := h.authSvc.SignUp(c.Request.Context(), &req)
	if err != nil {
		handleServiceError(c, err)
		return
	}
	response.Created(c, result)
}

// SignIn 邮箱密码登录
// POST /api/v1/auth/signin
func (h *AuthHandler) SignIn(c *gin.Context) {
	var req dto.SignInRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindFailed(c, err)
		return
	}

	result, err := h.authSvc.SignIn(c.Request.Context(), &req)
	if err != nil {
		handleServiceError(c, err)
		return
	}
	response.OK(c, result)
}

// SignOut 注销当前 Access Token
// POST /api/v1/auth/signout
func (h *AuthHandler) SignOut(c *gin.Context) {
	jti := c.GetString(middleware.CtxTokenJTI)
	exp := c.GetTime(middleware.CtxTokenExp)
	if exp.IsZero() {
		exp = time.Now()
	}

	if err := h.authSvc.SignOut(c.Request.Context(), jti, exp); err != nil {
		handleServiceError(c, err)
		return
	}
	response.OK(c, nil)
}

// Refresh 使用 Refresh Token 换取新的 Token 对
// POST /api/v1/auth/refresh
func (h *AuthHandler) Refresh(c *gin.Context) {
	var req dto.RefreshTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindFailed(c, err)
		return
	}

	result, err := h.authSvc.Refresh(c.Request.Context(), req.RefreshToken)
	if err != nil {
		handleServiceError(c, err)
		return
	}
	response.OK(c, result)
}

// Confirm 邮件中的确认链接，处理后跳转回前端登录页
// GET /api/v1/auth/confirm?token=
func (h *AuthHandler) Confirm(c *gin.Context) {
	var req dto.ConfirmEmailRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.Redirect(http.StatusFound, h.siteURL+"/login?confirm_error=1")
		return
	}

	if err := h.authSvc.ConfirmEmail(c.Request.Context(), req.Token); err != nil {
		c.Redirect(http.StatusFound, h.siteURL+"/login?confirm_error=1")
		return
	}
	c.Redirect(http.StatusFound, h.siteURL+"/login?confirmed=1")
}

// ResendConfirmation 重新发送确认邮件
// POST /api/v1/auth/resend
func (h *AuthHandler) ResendConfirmation(c *gin.Context) {
	var req dto.ResendConfirmationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindFailed(c, err)
		return
	}

	// 不暴露邮箱是否存在
	if err := h.authSvc.ResendConfirmation(c.Request.Context(), req.Email); err != nil {
		handleServiceError(c, err)
		return
	}
	response.OK(c, nil)
}

// Me 获取当前登录用户
// GET /api/v1/auth/me
func (h *AuthHandler) Me(c *gin.Context) {
	me, ok := MustGetIdentity(c)
	if !ok {
		return
	}

	result, err := h.authSvc.CurrentUser(c.Request.Context(), me.UserID)
	if err != nil {
		handleServiceError(c, err)
		return
	}
	response.OK(c, result)
}
