package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gSa1fe/isusP-sub000/internal/service"
	"github.com/gSa1fe/isusP-sub000/pkg/response"

	"github.com/gin-gonic/gin"
)

const (
	ctxKeyActor = "actor"
	ctxKeyRole  = "role"
)

// LoggerMiddleware 日志中间件
func LoggerMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		if query != "" {
			path = path + "?" + query
		}

		attrs := []any{
			"status", c.Writer.Status(),
			"latency", time.Since(start),
			"ip", c.ClientIP(),
			"method", c.Request.Method,
			"path", path,
		}
		if a, ok := c.Get(ctxKeyActor); ok {
			attrs = append(attrs, "user_id", a.(service.Actor).UserID)
		}
		slog.Info("[HTTP]", attrs...)
	}
}

// RecoveryMiddleware 恢复中间件，防止 panic 导致服务崩溃
func RecoveryMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				slog.Error("[PANIC]", "err", err, "path", c.Request.URL.Path)
				response.Abort(c, http.StatusInternalServerError, response.CodeServerError, "服务器内部错误")
			}
		}()
		c.Next()
	}
}

// CORSMiddleware 跨域中间件
func CORSMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Authorization, X-Request-ID")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}

// AuthMiddleware 解析 Bearer token，把调用方身份放进上下文
func AuthMiddleware(secret, issuer string) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, role, err := ParseToken(c.GetHeader("Authorization"), secret, issuer)
		if err != nil {
			response.Abort(c, http.StatusUnauthorized, response.CodeUnauthorized, "未登录或登录已过期")
			return
		}
		c.Set(ctxKeyActor, actor)
		c.Set(ctxKeyRole, role)
		c.Next()
	}
}

// RoleRequired 只允许指定角色访问
func RoleRequired(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		role := c.GetString(ctxKeyRole)
		for _, r := range roles {
			if role == r {
				c.Next()
				return
			}
		}
		response.Abort(c, http.StatusForbidden, response.CodeForbidden, "无权限访问")
	}
}

func currentActor(c *gin.Context) service.Actor {
	if a, ok := c.Get(ctxKeyActor); ok {
		return a.(service.Actor)
	}
	return service.Actor{}
}
