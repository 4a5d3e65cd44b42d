package handler

import (
	"go.uber.org/zap"

	"skill-swap/backend/config"
	"skill-swap/backend/internal/realtime"
	"skill-swap/backend/internal/service"
)

// Handler 所有 Handler 的聚合入口
type Handler struct {
	Auth     *AuthHandler
	Profile  *ProfileHandler
	Swap     *SwapHandler
	Admin    *AdminHandler
	Export   *ExportHandler
	Realtime *RealtimeHandler
}

// NewHandler 创建 Handler 聚合
func NewHandler(cfg *config.Config, svc *service.Service, broker *realtime.Broker, logger *zap.Logger) *Handler {
	return &Handler{
		Auth:     NewAuthHandler(svc.Auth, cfg.Server.SiteURL),
		Profile:  NewProfileHandler(svc.Profile),
		Swap:     NewSwapHandler(svc.Swap),
		Admin:    NewAdminHandler(svc.Admin),
		Export:   NewExportHandler(svc.Export),
		Realtime: NewRealtimeHandler(broker, cfg.Server.CORS.AllowOrigins, logger),
	}
}
