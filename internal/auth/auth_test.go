package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"aiwriter/internal/logger"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestJWTService_ValidateToken(t *testing.T) {
	svc := NewJWTService("secret", "aiwriter", nil)
	ctx := context.Background()

	t.Run("合法令牌", func(t *testing.T) {
		token, err := svc.GenerateAccessToken("user-1", []string{RoleAdmin}, true)
		require.NoError(t, err)

		claims, err := svc.ValidateToken(ctx, token)
		require.NoError(t, err)
		assert.Equal(t, "user-1", claims.UserID)
		assert.Equal(t, []string{RoleAdmin}, claims.Roles)
		assert.True(t, claims.Suspended)
		assert.Equal(t, TokenTypeAccess, claims.TokenType)
	})

	t.Run("签名密钥不同", func(t *testing.T) {
		token, err := NewJWTService("other", "aiwriter", nil).GenerateAccessToken("user-1", nil, false)
		require.NoError(t, err)

		_, err = svc.ValidateToken(ctx, token)
		assert.Error(t, err)
	})

	t.Run("签发方不同", func(t *testing.T) {
		token, err := NewJWTService("secret", "someone-else", nil).GenerateAccessToken("user-1", nil, false)
		require.NoError(t, err)

		_, err = svc.ValidateToken(ctx, token)
		assert.Error(t, err)
	})

	t.Run("已过期", func(t *testing.T) {
		claims := &TokenClaims{
			UserID:    "user-1",
			TokenType: TokenTypeAccess,
			RegisteredClaims: jwt.RegisteredClaims{
				Issuer:    "aiwriter",
				ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
			},
		}
		token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("secret"))
		require.NoError(t, err)

		_, err = svc.ValidateToken(ctx, token)
		assert.ErrorIs(t, err, jwt.ErrTokenExpired)
	})

	t.Run("拒绝非 HS256 算法", func(t *testing.T) {
		claims := &TokenClaims{UserID: "user-1", TokenType: TokenTypeAccess, RegisteredClaims: jwt.RegisteredClaims{Issuer: "aiwriter"}}
		token, err := jwt.NewWithClaims(jwt.SigningMethodHS512, claims).SignedString([]byte("secret"))
		require.NoError(t, err)

		_, err = svc.ValidateToken(ctx, token)
		assert.Error(t, err)
	})

	t.Run("无 Redis 时注销为空操作", func(t *testing.T) {
		token, err := svc.GenerateAccessToken("user-1", nil, false)
		require.NoError(t, err)
		assert.NoError(t, svc.InvalidateToken(ctx, token))
		assert.False(t, svc.IsTokenBlacklisted(ctx, token))
	})
}

func TestExtractTokenFromBearer(t *testing.T) {
	assert.Equal(t, "abc", ExtractTokenFromBearer("Bearer abc"))
	assert.Equal(t, "abc", ExtractTokenFromBearer("bearer abc"))
	assert.Equal(t, "abc", ExtractTokenFromBearer("abc"))
	assert.Equal(t, "", ExtractTokenFromBearer(""))
}

func newAuthRouter(svc *JWTService, extra ...gin.HandlerFunc) *gin.Engine {
	router := gin.New()
	handlers := append([]gin.HandlerFunc{AuthMiddleware(svc)}, extra...)
	handlers = append(handlers, func(c *gin.Context) {
		userCtx, _ := GetUserContext(c)
		c.JSON(http.StatusOK, gin.H{
			"userId":    userCtx.UserID,
			"ctxUserId": logger.GetUserID(c.Request.Context()),
			"keyUserId": c.GetString(UserIDKey),
		})
	})
	router.GET("/me", handlers...)
	return router
}

func doGet(router *gin.Engine, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body.Error.Code
}

func TestAuthMiddleware(t *testing.T) {
	svc := NewJWTService("secret", "aiwriter", nil)

	t.Run("缺少令牌", func(t *testing.T) {
		w := doGet(newAuthRouter(svc), "")
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Equal(t, "UNAUTHENTICATED", errorCode(t, w))
	})

	t.Run("令牌无效", func(t *testing.T) {
		w := doGet(newAuthRouter(svc), "not-a-jwt")
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("注入用户信息", func(t *testing.T) {
		token, err := svc.GenerateAccessToken("user-7", nil, false)
		require.NoError(t, err)

		w := doGet(newAuthRouter(svc), token)
		require.Equal(t, http.StatusOK, w.Code)
		var body map[string]string
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.Equal(t, "user-7", body["userId"])
		assert.Equal(t, "user-7", body["ctxUserId"])
		assert.Equal(t, "user-7", body["keyUserId"])
	})

	t.Run("停用账号被拒绝", func(t *testing.T) {
		token, err := svc.GenerateAccessToken("user-8", nil, true)
		require.NoError(t, err)

		w := doGet(newAuthRouter(svc, RequireActiveUser()), token)
		assert.Equal(t, http.StatusForbidden, w.Code)
		assert.Equal(t, "ACCOUNT_SUSPENDED", errorCode(t, w))
	})

	t.Run("管理员角色", func(t *testing.T) {
		userToken, err := svc.GenerateAccessToken("user-9", []string{"writer"}, false)
		require.NoError(t, err)
		adminToken, err := svc.GenerateAccessToken("admin-1", []string{RoleAdmin}, false)
		require.NoError(t, err)
		router := newAuthRouter(svc, RequireRole(RoleAdmin))

		w := doGet(router, userToken)
		assert.Equal(t, http.StatusForbidden, w.Code)
		assert.Equal(t, "FORBIDDEN", errorCode(t, w))

		w = doGet(router, adminToken)
		assert.Equal(t, http.StatusOK, w.Code)
	})
}
