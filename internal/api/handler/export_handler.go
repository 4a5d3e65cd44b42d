package handler

import (
	"net/http"
	"net/url"

	"github.com/gin-gonic/gin"

	"skill-swap/backend/internal/service"
	"skill-swap/backend/pkg/response"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// ExportHandler 导出模块 HTTP 处理器
type ExportHandler struct {
	exportSvc service.ExportService
}

// NewExportHandler 创建 ExportHandler
func NewExportHandler(exportSvc service.ExportService) *ExportHandler {
	return &ExportHandler{exportSvc: exportSvc}
}

// ExportRequests 导出换技能申请
// GET /api/v1/admin/export/requests?status=pending
func (h *ExportHandler) ExportRequests(c *gin.Context) {
	status := c.Query("status")
	switch status {
	case "", "pending", "accepted", "rejected":
	default:
		response.BadRequest(c, 10001, "status 只能是 pending、accepted 或 rejected")
		return
	}

	buf, filename, err := h.exportSvc.ExportRequests(c.Request.Context(), status)
	if err != nil {
		handleServiceError(c, err)
		return
	}

	// 设置下载响应头
	encodedFilename := url.QueryEscape(filename)
	c.Header("Content-Description", "File Transfer")
	c.Header("Content-Disposition", "attachment; filename*=UTF-8''"+encodedFilename)
	c.Data(http.StatusOK, xlsxContentType, buf.Bytes())
}
