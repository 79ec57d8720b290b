package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/redis/go-redis/v9"
)

// 令牌类型
const (
	TokenTypeAccess = "access"
)

var (
	// ErrTokenRevoked 令牌已注销
	ErrTokenRevoked = errors.New("令牌已失效")
	// ErrInvalidToken 令牌无效
	ErrInvalidToken = errors.New("无效的令牌")
)

// JWTService JWT 令牌服务，仅负责校验上游签发的访问令牌
type JWTService struct {
	secretKey    []byte
	issuer       string
	accessExpiry time.Duration
	redisClient  redis.UniversalClient // 黑名单，可为 nil
}

// NewJWTService 创建 JWT 服务
func NewJWTService(secretKey, issuer string, redisClient redis.UniversalClient) *JWTService {
	return &JWTService{
		secretKey:    []byte(secretKey),
		issuer:       issuer,
		accessExpiry: 2 * time.Hour,
		redisClient:  redisClient,
	}
}

// TokenClaims JWT 声明
type TokenClaims struct {
	UserID    string   `json:"uid"`
	Roles     []string `json:"roles,omitempty"`
	Suspended bool     `json:"suspended,omitempty"`
	TokenType string   `json:"token_type"`
	jwt.RegisteredClaims
}

// GenerateAccessToken 签发访问令牌（开发与测试使用，生产环境由认证服务签发）
func (s *JWTService) GenerateAccessToken(userID string, roles []string, suspended bool) (string, error) {
	now := time.Now()
	claims := &TokenClaims{
		UserID:    userID,
		Roles:     roles,
		Suspended: suspended,
		TokenType: TokenTypeAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.accessExpiry)),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(s.secretKey)
	if err != nil {
		return "", fmt.Errorf("签名令牌失败: %w", err)
	}
	return tokenString, nil
}

// ValidateToken 验证并解析 JWT 令牌
func (s *JWTService) ValidateToken(ctx context.Context, tokenString string) (*TokenClaims, error) {
	if s.IsTokenBlacklisted(ctx, tokenString) {
		return nil, ErrTokenRevoked
	}

	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if s.issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.issuer))
	}
	token, err := jwt.ParseWithClaims(tokenString, &TokenClaims{}, func(token *jwt.Token) (any, error) {
		return s.secretKey, nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("解析令牌失败: %w", err)
	}

	claims, ok := token.Claims.(*TokenClaims)
	if !ok || !token.Valid || claims.UserID == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// InvalidateToken 使令牌失效（加入黑名单直到原过期时间）
func (s *JWTService) InvalidateToken(ctx context.Context, tokenString string) error {
	if s.redisClient == nil {
		return nil
	}

	token, _, err := jwt.NewParser().ParseUnverified(tokenString, &TokenClaims{})
	if err != nil {
		return fmt.Errorf("解析令牌失败: %w", err)
	}
	claims, ok := token.Claims.(*TokenClaims)
	if !ok || claims.ExpiresAt == nil {
		return ErrInvalidToken
	}

	ttl := time.Until(claims.ExpiresAt.Time)
	if ttl <= 0 {
		return nil
	}
	if err := s.redisClient.Set(ctx, blacklistKey(tokenString), "revoked", ttl).Err(); err != nil {
		return fmt.Errorf("加入黑名单失败: %w", err)
	}
	return nil
}

// IsTokenBlacklisted 检查令牌是否在黑名单中，Redis 故障时放行
func (s *JWTService) IsTokenBlacklisted(ctx context.Context, tokenString string) bool {
	if s.redisClient == nil {
		return false
	}
	exists, err := s.redisClient.Exists(ctx, blacklistKey(tokenString)).Result()
	if err != nil {
		return false
	}
	return exists > 0
}

func blacklistKey(tokenString string) string {
	sum := sha256.Sum256([]byte(tokenString))
	return "blacklist:token:" + hex.EncodeToString(sum[:])
}

// ExtractTokenFromBearer 从 Bearer 令牌中提取纯令牌字符串
func ExtractTokenFromBearer(bearerToken string) string {
	const prefix = "Bearer "
	if len(bearerToken) > len(prefix) && strings.EqualFold(bearerToken[:len(prefix)], prefix) {
		return strings.TrimSpace(bearerToken[len(prefix):])
	}
	return strings.TrimSpace(bearerToken)
}
