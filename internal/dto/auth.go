package dto

// ── 认证模块 DTO ──

// SignUpRequest 注册请求
type SignUpRequest struct {
	Email    string `json:"email"    binding:"required,email,max=255"`
	Password string `json:"password" binding:"required,min=6,max=72"`
	Name     string `json:"name"     binding:"required,max=100"`
}

// SignInRequest 登录请求
type SignInRequest struct {
	Email      string `json:"email"    binding:"required,email"`
	Password   string `json:"password" binding:"required"`
	RememberMe bool   `json:"remember_me"`
}

// RefreshTokenRequest 刷新 Token 请求
type RefreshTokenRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

// ConfirmEmailRequest 邮箱确认（GET /auth/confirm?token=）
type ConfirmEmailRequest struct {
	Token string `form:"token" binding:"required"`
}

// ResendConfirmationRequest 重新发送确认邮件
type ResendConfirmationRequest struct {
	Email string `json:"email" binding:"required,email"`
}
