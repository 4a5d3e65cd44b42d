package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"skill-swap/backend/internal/api/middleware"
	"skill-swap/backend/internal/service"
	"skill-swap/backend/pkg/response"
)

// MustGetIdentity 从 Gin 上下文中安全提取当前用户身份。
// 如果 JWT 中间件未正确注入 user_id，返回 false 并写入 401 响应。
// 调用方应在 ok=false 时直接 return。
func MustGetIdentity(c *gin.Context) (service.Identity, bool) {
	id := OptionalIdentity(c)
	if id.IsAnonymous() {
		response.Unauthorized(c, 10002, "未认证")
		return service.Identity{}, false
	}
	return id, true
}

// OptionalIdentity 提取身份，未登录时返回匿名身份
func OptionalIdentity(c *gin.Context) service.Identity {
	return service.Identity{
		UserID: c.GetString(middleware.CtxUserID),
		Name:   c.GetString(middleware.CtxName),
		Email:  c.GetString(middleware.CtxEmail),
		Role:   c.GetString(middleware.CtxRole),
	}
}

// pathID 读取路径中的 UUID 参数；格式非法时按记录不存在处理
func pathID(c *gin.Context) (string, bool) {
	id := c.Param("id")
	if uuid.Validate(id) != nil {
		response.NotFound(c, 30001, "记录不存在")
		return "", false
	}
	return id, true
}
