package xlsxGenerator

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/mkarpushin/papertrade/internal/model"
	"github.com/mkarpushin/papertrade/utils"
	"github.com/xuri/excelize/v2"
)

const sheetName = "History"

type XLSXGenerator struct{}

func New() *XLSXGenerator {
	return &XLSXGenerator{}
}

// Generate renders the transaction history as an .xlsx workbook.
func (g *XLSXGenerator) Generate(ctx context.Context, transactions []model.Transaction) (fileBytes []byte, fileExtension string, err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "XLSXGenerator.Generate"

	slog.Debug("Generate start", slog.String("rqID", rqID), slog.String("op", op))

	f := excelize.NewFile()
	defer func() {
		if err := f.Close(); err != nil {
			slog.Error("got error while closing file", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		}
	}()

	if err := f.SetSheetName("Sheet1", sheetName); err != nil {
		return nil, "", err
	}

	styleID, err := f.NewStyle(&excelize.Style{
		Alignment: &excelize.Alignment{
			Horizontal: "center",
			Vertical:   "center",
		},
		Font: &excelize.Font{
			Bold: true,
			Size: 11,
		},
		Fill: excelize.Fill{
			Type:    "pattern",
			Pattern: 1,
			Color:   []string{"#cfe2f3"},
		},
	})
	if err != nil {
		return nil, "", err
	}

	headers := []string{"Symbol", "Name", "Type", "Shares", "Price", "Total", "Date"}
	for i, header := range headers {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return nil, "", err
		}
		_ = f.SetCellStr(sheetName, cell, header)
	}

	if err := f.SetCellStyle(sheetName, "A1", "G1", styleID); err != nil {
		return nil, "", err
	}

	for i, txn := range transactions {
		row := i + 2
		_ = f.SetCellStr(sheetName, fmt.Sprintf("A%d", row), txn.Symbol)
		_ = f.SetCellStr(sheetName, fmt.Sprintf("B%d", row), txn.Name)
		_ = f.SetCellStr(sheetName, fmt.Sprintf("C%d", row), txn.OpType)
		_ = f.SetCellInt(sheetName, fmt.Sprintf("D%d", row), int(txn.Shares))
		_ = f.SetCellValue(sheetName, fmt.Sprintf("E%d", row), txn.Price.InexactFloat64())
		_ = f.SetCellValue(sheetName, fmt.Sprintf("F%d", row), txn.Total().InexactFloat64())
		_ = f.SetCellValue(sheetName, fmt.Sprintf("G%d", row), txn.CreatedAt)
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		slog.Error("got error while Saving file to bytes buffer", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		return nil, "", err
	}

	slog.Debug("Generate completed", slog.String("rqID", rqID), slog.String("op", op))

	return buf.Bytes(), ".xlsx", nil
}
