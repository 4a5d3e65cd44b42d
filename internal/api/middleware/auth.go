package middleware

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"skill-swap/backend/pkg/jwt"
	"skill-swap/backend/pkg/response"
)

// 上下文中的身份字段
const (
	CtxUserID   = "user_id"
	CtxRole     = "role"
	CtxName     = "name"
	CtxEmail    = "email"
	CtxTokenJTI = "token_jti"
	CtxTokenExp = "token_exp"
)

// TokenChecker 查询 Token 是否已注销（Redis 黑名单）
type TokenChecker interface {
	IsBlacklisted(ctx context.Context, jti string) (bool, error)
}

// JWTAuth JWT 认证中间件
// 从 Authorization: Bearer <token> 中提取并验证 Access Token；
// WebSocket 握手无法携带自定义头，允许通过 ?access_token= 传递。
// checker 为 nil 时跳过黑名单检查
func JWTAuth(jwtMgr *jwt.Manager, checker TokenChecker, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := extractToken(c)
		if !ok {
			response.Unauthorized(c, 10002, "缺少认证信息")
			c.Abort()
			return
		}

		claims, ok := verify(c, jwtMgr, checker, logger, token)
		if !ok {
			c.Abort()
			return
		}

		setIdentity(c, claims)
		c.Next()
	}
}

// OptionalAuth 携带有效 Token 时注入身份，否则按匿名访问继续
func OptionalAuth(jwtMgr *jwt.Manager, checker TokenChecker, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := extractToken(c)
		if !ok {
			c.Next()
			return
		}
		claims, ok := verify(c, jwtMgr, checker, logger, token)
		if !ok {
			c.Abort()
			return
		}
		setIdentity(c, claims)
		c.Next()
	}
}

func extractToken(c *gin.Context) (string, bool) {
	authHeader := c.GetHeader("Authorization")
	if authHeader != "" {
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
			return "", false
		}
		return parts[1], true
	}
	if strings.EqualFold(c.GetHeader("Upgrade"), "websocket") {
		if t := c.Query("access_token"); t != "" {
			return t, true
		}
	}
	return "", false
}

func verify(c *gin.Context, jwtMgr *jwt.Manager, checker TokenChecker, logger *zap.Logger, token string) (*jwt.Claims, bool) {
	claims, err := jwtMgr.ParseTokenOfType(token, jwt.TokenTypeAccess)
	if err != nil {
		response.Unauthorized(c, 10002, "Token 无效或已过期")
		return nil, false
	}

	if checker != nil {
		revoked, err := checker.IsBlacklisted(c.Request.Context(), claims.ID)
		if err != nil {
			// Redis 异常时降级放行
			logger.Warn("查询 Token 黑名单失败", zap.Error(err))
		} else if revoked {
			response.Unauthorized(c, 10002, "Token 已注销")
			return nil, false
		}
	}
	return claims, true
}

func setIdentity(c *gin.Context, claims *jwt.Claims) {
	c.Set(CtxUserID, claims.UserID)
	c.Set(CtxRole, claims.Role)
	c.Set(CtxName, claims.Name)
	c.Set(CtxEmail, claims.Email)
	c.Set(CtxTokenJTI, claims.ID)
	if claims.ExpiresAt != nil {
		c.Set(CtxTokenExp, claims.ExpiresAt.Time)
	}
}

// RoleAuth 角色权限中间件
// 检查当前用户是否具有指定角色之一
func RoleAuth(allowedRoles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		userRole := c.GetString(CtxRole)
		if userRole == "" {
			response.Unauthorized(c, 10002, "未认证")
			c.Abort()
			return
		}

		for _, r := range allowedRoles {
			if userRole == r {
				c.Next()
				return
			}
		}

		response.Forbidden(c, 10003, "无权限访问")
		c.Abort()
	}
}
