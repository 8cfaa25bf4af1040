package handlers

import (
	"net/http"
	"strings"
	"sync/atomic"

	config "smartassist-api/configs"
	"smartassist-api/pkg/services"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// AdminHandler は管理者向け操作のハンドラです。
type AdminHandler struct {
	AdminUsername string
	AdminPassword string

	maintenance atomic.Bool
	monitoring  *services.MonitoringService
	logger      zerolog.Logger
}

// NewAdminHandler は新しいAdminHandlerを生成します。
func NewAdminHandler(cfg *config.Config, monitoring *services.MonitoringService, logger zerolog.Logger) *AdminHandler {
	return &AdminHandler{
		AdminUsername: cfg.AdminUsername,
		AdminPassword: cfg.AdminPassword,
		monitoring:    monitoring,
		logger:        logger.With().Str("component", "admin").Logger(),
	}
}

// AdminCredentials は管理者認証のためのリクエストボディです。
type AdminCredentials struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// InMaintenance reports the current maintenance flag.
func (h *AdminHandler) InMaintenance() bool {
	return h.maintenance.Load()
}

// StartMaintenance はメンテナンスモードを開始します。
func (h *AdminHandler) StartMaintenance(c *gin.Context) {
	h.setMaintenance(c, true)
}

// StopMaintenance はメンテナンスモードを停止します。
func (h *AdminHandler) StopMaintenance(c *gin.Context) {
	h.setMaintenance(c, false)
}

func (h *AdminHandler) setMaintenance(c *gin.Context, on bool) {
	var input AdminCredentials
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Username and password are required"})
		return
	}
	// パスワード未設定の場合は管理操作を無効にする
	if h.AdminPassword == "" || input.Username != h.AdminUsername || input.Password != h.AdminPassword {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
		return
	}

	h.maintenance.Store(on)
	if h.monitoring != nil {
		h.monitoring.SetMaintenance(on)
	}
	msg := "Maintenance mode stopped"
	if on {
		msg = "Maintenance mode started"
	}
	h.logger.Info().Bool("maintenance", on).Str("user", input.Username).Msg(msg)
	c.JSON(http.StatusOK, gin.H{"message": msg})
}

// GetHealthStatus は現在のサーバーの状態を返します。
func (h *AdminHandler) GetHealthStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"isMaintenanceMode": h.maintenance.Load()})
}

// HealthCheck は外部のヘルスチェッカー（例: ロードバランサー）からのリクエストに応答します。
func (h *AdminHandler) HealthCheck(c *gin.Context) {
	if h.maintenance.Load() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "message": "Server is in maintenance mode"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// MaintenanceMiddleware rejects API calls other than admin ones while in
// maintenance mode.
func (h *AdminHandler) MaintenanceMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if h.maintenance.Load() && !strings.HasPrefix(c.Request.URL.Path, "/api/v1/admin") {
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "Server is in maintenance mode"})
			return
		}
		c.Next()
	}
}
