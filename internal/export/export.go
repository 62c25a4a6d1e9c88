package export

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"stoyanka/internal/domain"

	"github.com/rs/zerolog"
	"github.com/xuri/excelize/v2"
)

// Exporter выгружает бронирования за период в Excel-файл.
type Exporter struct {
	repo   domain.Repository
	path   string
	logger zerolog.Logger
}

func New(repo domain.Repository, path string, logger *zerolog.Logger) *Exporter {
	if path == "" {
		path = "exports"
	}
	var l zerolog.Logger
	if logger != nil {
		l = logger.With().Str("component", "export").Logger()
	}
	return &Exporter{repo: repo, path: path, logger: l}
}

var headers = []string{
	"ID", "Space", "Buyer", "Provider", "Start", "End",
	"Status", "Payment", "Price", "Discount %", "Refund %", "Comment",
}

// Reservations создает xlsx-файл с заявками периода и возвращает путь.
func (e *Exporter) Reservations(ctx context.Context, startDate, endDate time.Time) (string, error) {
	// Создаем папку для экспорта, если не существует
	if err := os.MkdirAll(e.path, 0o755); err != nil {
		return "", fmt.Errorf("error creating export directory: %w", err)
	}

	reservations, err := e.repo.GetReservationsByDateRange(ctx, startDate, endDate)
	if err != nil {
		return "", fmt.Errorf("error getting reservations: %w", err)
	}

	f := excelize.NewFile()
	defer f.Close()

	sheetName := "Reservations"
	index, err := f.NewSheet(sheetName)
	if err != nil {
		return "", fmt.Errorf("error creating sheet: %w", err)
	}
	f.SetActiveSheet(index)

	// Заголовок периода
	_ = f.SetCellValue(sheetName, "A1", fmt.Sprintf("Period: %s - %s",
		startDate.Format("02.01.2006"), endDate.Format("02.01.2006")))
	_ = f.MergeCell(sheetName, "A1", "L1")
	titleStyle, _ := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 14},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	_ = f.SetCellStyle(sheetName, "A1", "A1", titleStyle)

	headerStyle, _ := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 2)
		_ = f.SetCellValue(sheetName, cell, h)
		_ = f.SetCellStyle(sheetName, cell, cell, headerStyle)
	}

	for row, r := range reservations {
		values := []any{
			r.ID,
			r.SpaceID,
			r.BuyerID,
			r.ProviderID,
			r.StartTime.Format("02.01.2006 15:04"),
			r.EndTime.Format("02.01.2006 15:04"),
			r.Status,
			r.PaymentStatus,
			float64(r.PriceCents) / 100,
			r.DiscountPercent,
			r.RefundPercent,
			r.Comment,
		}
		for col, v := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row+3)
			_ = f.SetCellValue(sheetName, cell, v)
		}
	}

	_ = f.SetColWidth(sheetName, "A", "A", 38)
	_ = f.SetColWidth(sheetName, "B", "L", 18)
	_ = f.DeleteSheet("Sheet1")

	fileName := fmt.Sprintf("reservations_%s_to_%s.xlsx",
		startDate.Format("2006-01-02"), endDate.Format("2006-01-02"))
	fullPath := filepath.Join(e.path, fileName)

	if err := f.SaveAs(fullPath); err != nil {
		return "", fmt.Errorf("error saving export file: %w", err)
	}

	e.logger.Info().Str("file", fullPath).Int("rows", len(reservations)).Msg("export completed")
	return fullPath, nil
}
