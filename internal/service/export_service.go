package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"skill-swap/backend/internal/model"
	"skill-swap/backend/internal/repository"
)

// ── 导出模块业务错误 ──

var ErrExportGenerateFail = errors.New("生成 Excel 文件失败")

// ExportService 导出业务接口
//
// 导出以 bytes.Buffer 返回，由 Handler 层设置 HTTP 响应头后写入 Response。
// 工作簿包含两个 Sheet：申请明细、按状态汇总。
type ExportService interface {
	// ExportRequests 导出换技能申请，status 为空表示全部
	ExportRequests(ctx context.Context, status string) (*bytes.Buffer, string, error)
}

type exportService struct {
	repo   *repository.Repository
	logger *zap.Logger
}

// NewExportService 创建 ExportService 实例
func NewExportService(repo *repository.Repository, logger *zap.Logger) ExportService {
	return &exportService{repo: repo, logger: logger}
}

const exportBatchSize = 500

var statusNames = map[string]string{
	model.SwapStatusPending:  "待处理",
	model.SwapStatusAccepted: "已接受",
	model.SwapStatusRejected: "已拒绝",
}

func (s *exportService) ExportRequests(ctx context.Context, status string) (*bytes.Buffer, string, error) {
	// 1. 分批读取
	filter := &repository.SwapRequestFilter{Status: status}
	var all []model.SwapRequest
	for offset := 0; ; offset += exportBatchSize {
		batch, total, err := s.repo.SwapRequest.List(ctx, filter, offset, exportBatchSize)
		if err != nil {
			s.logger.Error("查询申请失败", zap.Error(err))
			return nil, "", storeError("查询申请", err)
		}
		all = append(all, batch...)
		if len(batch) < exportBatchSize || int64(len(all)) >= total {
			break
		}
	}

	// 2. 生成 Excel
	f := excelize.NewFile()
	defer f.Close()

	const sheet = "申请明细"
	idx, _ := f.NewSheet(sheet)
	f.SetActiveSheet(idx)
	f.DeleteSheet("Sheet1")

	headerStyle, _ := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 11, Color: "#FFFFFF"},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#4472C4"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})

	headers := []string{"申请ID", "发起人", "接收人", "留言", "状态", "创建时间", "处理时间"}
	widths := []float64{38, 18, 18, 50, 10, 22, 22}
	for i, h := range headers {
		col, _ := excelize.ColumnNumberToName(i + 1)
		f.SetColWidth(sheet, col, col, widths[i])
		f.SetCellValue(sheet, cell(col, 1), h)
	}
	last, _ := excelize.ColumnNumberToName(len(headers))
	f.SetCellStyle(sheet, "A1", cell(last, 1), headerStyle)

	counts := make(map[string]int)
	for i, sr := range all {
		row := i + 2
		responded := "-"
		if sr.RespondedAt != nil {
			responded = sr.RespondedAt.UTC().Format("2006-01-02 15:04:05")
		}
		values := []any{
			sr.ID,
			sr.FromUserName,
			sr.ToUserName,
			sr.Message,
			statusNames[sr.Status],
			sr.CreatedAt.UTC().Format("2006-01-02 15:04:05"),
			responded,
		}
		for j, v := range values {
			col, _ := excelize.ColumnNumberToName(j + 1)
			f.SetCellValue(sheet, cell(col, row), v)
		}
		counts[sr.Status]++
	}

	// 汇总
	const summary = "汇总"
	f.NewSheet(summary)
	f.SetColWidth(summary, "A", "A", 14)
	f.SetCellValue(summary, "A1", "状态")
	f.SetCellValue(summary, "B1", "数量")
	f.SetCellStyle(summary, "A1", "B1", headerStyle)
	row := 2
	for _, st := range []string{model.SwapStatusPending, model.SwapStatusAccepted, model.SwapStatusRejected} {
		f.SetCellValue(summary, cell("A", row), statusNames[st])
		f.SetCellValue(summary, cell("B", row), counts[st])
		row++
	}
	f.SetCellValue(summary, cell("A", row), "合计")
	f.SetCellValue(summary, cell("B", row), len(all))

	// 写入 buffer
	buf := new(bytes.Buffer)
	if err := f.Write(buf); err != nil {
		s.logger.Error("写入 Excel 失败", zap.Error(err))
		return nil, "", ErrExportGenerateFail
	}

	filename := fmt.Sprintf("swap_requests_%s.xlsx", time.Now().UTC().Format("20060102"))
	return buf, filename, nil
}

func cell(col string, row int) string {
	return fmt.Sprintf("%s%d", col, row)
}
