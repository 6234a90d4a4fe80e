package export

import (
	"context"
	"fmt"
	"time"

	"github.com/garyjia/offer-lifecycle/internal/application/port"
	"github.com/garyjia/offer-lifecycle/internal/domain/entity"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
)

const (
	sheetName  = "Offers"
	dateLayout = "2006-01-02 15:04"
)

var headers = []interface{}{
	"Offer ID", "Client ID", "Status", "Created By", "Assigned To",
	"Total Amount", "Discount", "Expires At", "Approved By", "Version",
	"Created At", "Updated At",
}

// ExcelExporter writes offers to a single-sheet xlsx workbook
type ExcelExporter struct {
	logger *zap.Logger
}

// NewExcelExporter creates a new Excel exporter
func NewExcelExporter(logger *zap.Logger) *ExcelExporter {
	return &ExcelExporter{logger: logger}
}

// Export renders one header row plus one row per offer
func (e *ExcelExporter) Export(ctx context.Context, offers []*entity.Offer) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), sheetName); err != nil {
		return nil, fmt.Errorf("failed to name sheet: %w", err)
	}

	if err := f.SetSheetRow(sheetName, "A1", &headers); err != nil {
		return nil, fmt.Errorf("failed to write header: %w", err)
	}
	if style, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}}); err == nil {
		_ = f.SetRowStyle(sheetName, 1, 1, style)
	}

	for i, o := range offers {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return nil, fmt.Errorf("failed to address row %d: %w", i+2, err)
		}
		row := offerRow(o)
		if err := f.SetSheetRow(sheetName, cell, &row); err != nil {
			return nil, fmt.Errorf("failed to write offer %s: %w", o.ID, err)
		}
	}

	if err := f.SetColWidth(sheetName, "A", "A", 38); err != nil {
		e.logger.Warn("Failed to set column width", zap.Error(err))
	}
	if err := f.SetColWidth(sheetName, "B", "L", 16); err != nil {
		e.logger.Warn("Failed to set column width", zap.Error(err))
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to write workbook: %w", err)
	}

	e.logger.Info("Offers exported", zap.Int("rows", len(offers)))
	return buf.Bytes(), nil
}

// ContentType returns the xlsx MIME type
func (e *ExcelExporter) ContentType() string {
	return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
}

// FileExtension returns the extension including the dot
func (e *ExcelExporter) FileExtension() string {
	return ".xlsx"
}

func offerRow(o *entity.Offer) []interface{} {
	approvedBy := ""
	if o.Approved() {
		approvedBy = o.Approval.ApprovedBy
	}

	return []interface{}{
		o.ID,
		o.ClientID,
		string(o.Status),
		o.CreatedBy,
		o.AssignedTo,
		o.TotalAmount,
		o.DiscountAmount,
		formatTime(o.ExpiresAt()),
		approvedBy,
		o.Version,
		o.CreatedAt.UTC().Format(dateLayout),
		o.UpdatedAt.UTC().Format(dateLayout),
	}
}

func formatTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(dateLayout)
}

var _ port.OfferExporter = (*ExcelExporter)(nil)
