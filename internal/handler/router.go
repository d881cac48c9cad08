package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gSa1fe/isusP-sub000/internal/config"

	"github.com/gin-gonic/gin"
)

// HealthCheck 依赖探活，返回 nil 表示正常
type HealthCheck func(ctx context.Context) error

// SetupRouter 配置路由
func SetupRouter(cfg *config.Config, h *Handler, checks map[string]HealthCheck) *gin.Engine {
	if cfg.Server.Mode != "" {
		gin.SetMode(cfg.Server.Mode)
	}

	r := gin.New()

	r.Use(RecoveryMiddleware())
	r.Use(LoggerMiddleware())
	r.Use(CORSMiddleware())

	api := r.Group("/api/v1")
	api.GET("/coin-packages", h.ListPackages)

	authed := api.Group("", AuthMiddleware(cfg.Auth.JWTSecret, cfg.Auth.Issuer))
	{
		topups := authed.Group("/topups")
		{
			topups.POST("", h.SubmitTopup)
			topups.GET("", h.ListMyTopups)
			topups.GET("/:topup_no", h.GetTopup)
			topups.POST("/:topup_no/cancel", h.CancelTopup)
		}

		wallet := authed.Group("/wallet")
		{
			wallet.GET("", h.GetWallet)
			wallet.GET("/transactions", h.ListTransactions)
		}

		// 内容服务扣款
		authed.POST("/ledger/purchase", RoleRequired(RoleService, RoleAdmin), h.Purchase)

		admin := authed.Group("/admin", RoleRequired(RoleAdmin))
		{
			admin.GET("/topups", h.ListAllTopups)
			admin.POST("/topups/:topup_no/approve", h.ApproveTopup)
			admin.POST("/topups/:topup_no/reject", h.RejectTopup)
			admin.POST("/ledger/adjust", h.AdjustLedger)
			admin.GET("/wallets/:user_id/verify", h.VerifyWallet)
		}
	}

	// 健康检查
	r.GET("/health", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		status := gin.H{}
		healthy := true
		for name, check := range checks {
			if err := check(ctx); err != nil {
				status[name] = err.Error()
				healthy = false
				continue
			}
			status[name] = "ok"
		}

		if !healthy {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "checks": status})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok", "checks": status})
	})

	return r
}
