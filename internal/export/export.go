package export

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"bloomsync/internal/models"

	"github.com/xuri/excelize/v2"
)

// QueueReport writes an xlsx snapshot of the queue (one sheet for pending
// mutations, one for dead-lettered ones) into dir and returns the file path.
// Intended for support diagnostics when a user reports stuck syncs.
func QueueReport(dir string, pending, deadLetter []models.PendingMutation) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("error creating export directory: %w", err)
	}

	f := excelize.NewFile()
	defer f.Close()

	if err := writeSheet(f, "Pending", pending); err != nil {
		return "", err
	}
	if err := writeSheet(f, "Dead Letter", deadLetter); err != nil {
		return "", err
	}

	_ = f.DeleteSheet("Sheet1")

	fileName := fmt.Sprintf("queue_report_%s.xlsx", time.Now().Format("2006-01-02_150405"))
	path := filepath.Join(dir, fileName)
	if err := f.SaveAs(path); err != nil {
		return "", fmt.Errorf("error saving export file: %w", err)
	}
	return path, nil
}

func writeSheet(f *excelize.File, name string, items []models.PendingMutation) error {
	index, err := f.NewSheet(name)
	if err != nil {
		return fmt.Errorf("error creating sheet %s: %w", name, err)
	}
	f.SetActiveSheet(index)

	headers := []string{"ID", "Kind", "Operation", "Created At", "Attempts", "Last Error", "Payload"}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(name, cell, h)
	}

	headerStyle, _ := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
	})
	_ = f.SetCellStyle(name, "A1", "G1", headerStyle)

	for row, m := range items {
		lastErr := ""
		if m.LastError != nil {
			lastErr = *m.LastError
		}
		values := []interface{}{
			m.ID,
			string(m.Kind),
			string(m.Operation),
			m.CreatedAt.Format(time.RFC3339),
			m.Attempts,
			lastErr,
			string(m.Payload),
		}
		for col, v := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row+2)
			_ = f.SetCellValue(name, cell, v)
		}
	}

	_ = f.SetColWidth(name, "A", "A", 38)
	_ = f.SetColWidth(name, "B", "F", 20)
	_ = f.SetColWidth(name, "G", "G", 60)

	return nil
}
