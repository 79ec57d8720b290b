package auth

import (
	"net/http"
	"slices"
	"time"

	"aiwriter/internal/ai/aierr"
	"aiwriter/internal/logger"

	"github.com/gin-gonic/gin"
)

const (
	// UserContextKey 用户上下文键
	UserContextKey = "user"
	// UserIDKey 用户 ID 键，供限流等中间件读取
	UserIDKey = "user_id"
	// RoleAdmin 管理员角色
	RoleAdmin = "admin"
)

const (
	codeUnauthenticated aierr.Code = "UNAUTHENTICATED"
	codeForbidden       aierr.Code = "FORBIDDEN"
	codeSuspended       aierr.Code = "ACCOUNT_SUSPENDED"
)

// UserContext 用户上下文
type UserContext struct {
	UserID    string   `json:"userId"`
	Roles     []string `json:"roles"`
	Suspended bool     `json:"suspended"`
}

// HasRole 是否拥有任一角色
func (u *UserContext) HasRole(roles ...string) bool {
	for _, r := range roles {
		if slices.Contains(u.Roles, r) {
			return true
		}
	}
	return false
}

func abort(c *gin.Context, status int, code aierr.Code, msg string) {
	c.AbortWithStatusJSON(status, aierr.ErrorResponse{
		Success: false,
		Error:   aierr.ErrorBody{Code: code, Message: msg, Timestamp: time.Now().UTC()},
	})
}

// AuthMiddleware JWT 认证中间件
func AuthMiddleware(jwtService *JWTService) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			abort(c, http.StatusUnauthorized, codeUnauthenticated, "缺少认证令牌")
			return
		}

		token := ExtractTokenFromBearer(authHeader)
		if token == "" {
			abort(c, http.StatusUnauthorized, codeUnauthenticated, "无效的令牌格式")
			return
		}

		claims, err := jwtService.ValidateToken(c.Request.Context(), token)
		if err != nil {
			abort(c, http.StatusUnauthorized, codeUnauthenticated, "令牌验证失败")
			return
		}
		if claims.TokenType != TokenTypeAccess {
			abort(c, http.StatusUnauthorized, codeUnauthenticated, "令牌类型错误")
			return
		}

		c.Set(UserContextKey, &UserContext{
			UserID:    claims.UserID,
			Roles:     claims.Roles,
			Suspended: claims.Suspended,
		})
		c.Set(UserIDKey, claims.UserID)
		c.Request = c.Request.WithContext(logger.WithUserID(c.Request.Context(), claims.UserID))

		c.Next()
	}
}

// RequireActiveUser 拒绝已停用账号
func RequireActiveUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		userCtx, ok := GetUserContext(c)
		if !ok {
			abort(c, http.StatusUnauthorized, codeUnauthenticated, "未认证")
			return
		}
		if userCtx.Suspended {
			abort(c, http.StatusForbidden, codeSuspended, "账号已停用")
			return
		}
		c.Next()
	}
}

// RequireRole 角色检查中间件
func RequireRole(requiredRoles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		userCtx, ok := GetUserContext(c)
		if !ok {
			abort(c, http.StatusUnauthorized, codeUnauthenticated, "未认证")
			return
		}
		if !userCtx.HasRole(requiredRoles...) {
			abort(c, http.StatusForbidden, codeForbidden, "角色权限不足")
			return
		}
		c.Next()
	}
}

// GetUserContext 从 Gin Context 获取用户上下文
func GetUserContext(c *gin.Context) (*UserContext, bool) {
	v, exists := c.Get(UserContextKey)
	if !exists {
		return nil, false
	}
	userCtx, ok := v.(*UserContext)
	return userCtx, ok
}
