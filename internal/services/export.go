package services

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/dogparkjp/parkgate/internal/models"
	"github.com/dogparkjp/parkgate/internal/store"
	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"
)

// ExportService renders a user's access history as an xlsx workbook.
type ExportService struct {
	logs  store.AccessLogStore
	locks store.LockStore
}

func NewExportService(logs store.AccessLogStore, locks store.LockStore) *ExportService {
	return &ExportService{
		logs:  logs,
		locks: locks,
	}
}

var exportHeaders = []string{"発行日時", "施設", "種別", "ステータス", "使用日時", "滞在時間"}

// ExportAccessLogs builds an xlsx of the user's recent access logs,
// newest first, one row per record.
func (s *ExportService) ExportAccessLogs(ctx context.Context, userID int64, lockID *uuid.UUID) (*bytes.Buffer, error) {
	logs, err := s.logs.ListRecent(ctx, userID, lockID)
	if err != nil {
		return nil, err
	}

	f := excelize.NewFile()
	defer f.Close()

	const sheet = "AccessLogs"
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return nil, err
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"E5E7EB"}, Pattern: 1},
	})
	if err != nil {
		return nil, err
	}

	for i, h := range exportHeaders {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(sheet, cell, h); err != nil {
			return nil, err
		}
		if err := f.SetCellStyle(sheet, cell, cell, headerStyle); err != nil {
			return nil, err
		}
	}

	lockNames := map[uuid.UUID]string{}

	for row, l := range logs {
		name, ok := lockNames[l.LockID]
		if !ok {
			if lock, err := s.locks.Get(ctx, l.LockID); err == nil {
				name = lock.Name
				if lock.ParkName != "" {
					name = fmt.Sprintf("%s (%s)", lock.ParkName, lock.Name)
				}
			}
			lockNames[l.LockID] = name
		}

		usedAt := ""
		if l.UsedAt != nil {
			usedAt = l.UsedAt.Format("2006-01-02 15:04:05")
		}
		duration := ""
		if l.DurationMs != nil {
			duration = formatDuration(time.Duration(*l.DurationMs) * time.Millisecond)
		}

		display, _ := models.DisplayFor(l.Status)
		values := []interface{}{
			l.IssuedAt.Format("2006-01-02 15:04:05"),
			name,
			pinTypeLabel(l.PinType),
			display.Label,
			usedAt,
			duration,
		}
		for col, v := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row+2)
			if err := f.SetCellValue(sheet, cell, v); err != nil {
				return nil, err
			}
		}
	}

	if err := f.SetColWidth(sheet, "A", "F", 22); err != nil {
		return nil, err
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to render workbook: %w", err)
	}
	return buf, nil
}

func pinTypeLabel(pinType string) string {
	switch pinType {
	case models.PinTypeEntry:
		return "入場"
	case models.PinTypeExit:
		return "退場"
	default:
		return pinType
	}
}
