package audit

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"campusperks/pkg/types"
)

// ExportFormat 导出格式
type ExportFormat string

const (
	FormatCSV  ExportFormat = "csv"
	FormatJSON ExportFormat = "json"
)

// ErrInvalidExportFormat 不支持的导出格式
var ErrInvalidExportFormat = errors.New("导出格式无效，仅支持 csv 或 json")

// defaultExportMaxRows 单次导出的默认上限
const defaultExportMaxRows = 5000

// ParseExportFormat 解析导出格式参数，空值按 JSON 处理
func ParseExportFormat(s string) (ExportFormat, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "json":
		return FormatJSON, nil
	case "csv":
		return FormatCSV, nil
	default:
		return "", ErrInvalidExportFormat
	}
}

// ExportResult 导出结果
type ExportResult struct {
	Data        []byte `json:"data,omitempty"`
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	TotalCount  int    `json:"total_count"`
}

// Exporter 审计日志导出器
type Exporter struct {
	service *Service
	maxRows int
}

// NewExporter 创建导出器，maxRows 不大于 0 时取默认上限
func NewExporter(service *Service, maxRows int) *Exporter {
	if maxRows <= 0 {
		maxRows = defaultExportMaxRows
	}
	return &Exporter{service: service, maxRows: maxRows}
}

// Export 按筛选条件导出审计日志，条数受上限约束
func (e *Exporter) Export(ctx context.Context, filter Filter, format ExportFormat) (*ExportResult, error) {
	views, err := e.service.listForExport(ctx, filter, e.maxRows)
	if err != nil {
		return nil, fmt.Errorf("查询待导出记录失败: %w", err)
	}

	timestamp := time.Now().Format("20060102_150405")

	switch format {
	case FormatCSV:
		return exportCSV(views, timestamp)
	case FormatJSON:
		return exportJSON(views, timestamp)
	default:
		return nil, ErrInvalidExportFormat
	}
}

// listForExport 一次性取前 limit 条，最新在前
func (s *Service) listForExport(ctx context.Context, filter Filter, limit int) ([]types.AuditEntryView, error) {
	entries, _, err := s.store.List(ctx, ListQuery{
		Filter:   filter,
		Page:     1,
		PageSize: limit,
	})
	if err != nil {
		return nil, err
	}
	return s.projectViews(ctx, entries)
}

// exportCSV 导出为 CSV
func exportCSV(views []types.AuditEntryView, timestamp string) (*ExportResult, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	header := []string{"ID", "事件", "业务表", "记录标识", "操作者ID", "操作者邮箱", "IP地址", "发生时间", "旧值", "新值"}
	if err := writer.Write(header); err != nil {
		return nil, err
	}

	for _, view := range views {
		actorID, actorEmail := "", ""
		if view.Actor != nil {
			actorID = view.Actor.ID
			actorEmail = view.Actor.Email
		}

		row := []string{
			view.ID,
			view.Action,
			view.TableName,
			view.RecordID,
			actorID,
			actorEmail,
			view.IPAddress,
			view.CreatedAt.Format(time.RFC3339),
			marshalValues(view.OldValues),
			marshalValues(view.NewValues),
		}
		if err := writer.Write(row); err != nil {
			return nil, err
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, err
	}

	return &ExportResult{
		Data:        buf.Bytes(),
		Filename:    fmt.Sprintf("audit_entries_%s.csv", timestamp),
		ContentType: "text/csv; charset=utf-8",
		TotalCount:  len(views),
	}, nil
}

// exportJSON 导出为 JSON
func exportJSON(views []types.AuditEntryView, timestamp string) (*ExportResult, error) {
	wrapper := struct {
		ExportedAt string                 `json:"exported_at"`
		TotalCount int                    `json:"total_count"`
		Entries    []types.AuditEntryView `json:"entries"`
	}{
		ExportedAt: time.Now().Format(time.RFC3339),
		TotalCount: len(views),
		Entries:    views,
	}

	data, err := json.MarshalIndent(wrapper, "", "  ")
	if err != nil {
		return nil, err
	}

	return &ExportResult{
		Data:        data,
		Filename:    fmt.Sprintf("audit_entries_%s.json", timestamp),
		ContentType: "application/json; charset=utf-8",
		TotalCount:  len(views),
	}, nil
}

// marshalValues 把快照转成单元格文本
func marshalValues(values map[string]any) string {
	if len(values) == 0 {
		return ""
	}
	data, err := json.Marshal(values)
	if err != nil {
		return ""
	}
	return string(data)
}
