package handler

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gSa1fe/isusP-sub000/internal/service"

	"github.com/golang-jwt/jwt/v5"
)

const (
	RoleUser    = "user"
	RoleAdmin   = "admin"
	RoleService = "service" // 内部服务调用（内容服务扣款）
)

// Claims 由账号服务签发，sub 为用户ID
type Claims struct {
	jwt.RegisteredClaims
	Role string `json:"role"`
}

// IssueToken 签发 HS256 token
func IssueToken(secret, issuer string, userID int64, role string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(userID, 10),
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Role: role,
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

// ParseToken 校验签名、过期时间和签发方，返回调用方身份
func ParseToken(authHeader, secret, issuer string) (service.Actor, string, error) {
	tokenStr := strings.TrimSpace(authHeader)
	if len(tokenStr) > 7 && strings.EqualFold(tokenStr[:7], "bearer ") {
		tokenStr = strings.TrimSpace(tokenStr[7:])
	}
	if tokenStr == "" {
		return service.Actor{}, "", errors.New("缺少 token")
	}

	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired()}
	if issuer != "" {
		opts = append(opts, jwt.WithIssuer(issuer))
	}

	claims := &Claims{}
	_, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	}, opts...)
	if err != nil {
		return service.Actor{}, "", err
	}

	userID, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil || userID <= 0 {
		return service.Actor{}, "", fmt.Errorf("token sub 不合法: %q", claims.Subject)
	}

	return service.Actor{UserID: userID, IsAdmin: claims.Role == RoleAdmin}, claims.Role, nil
}
