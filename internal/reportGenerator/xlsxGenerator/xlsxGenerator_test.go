package xlsxGenerator

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/mkarpushin/papertrade/internal/model"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func TestGenerate(t *testing.T) {
	transactions := []model.Transaction{
		{
			Symbol:    "NET",
			Name:      "Cloudflare",
			Shares:    10,
			Price:     decimal.RequireFromString("25.00"),
			OpType:    model.OpTypeBuy,
			CreatedAt: time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC),
		},
		{
			Symbol:    "NET",
			Name:      "Cloudflare",
			Shares:    -4,
			Price:     decimal.RequireFromString("30.00"),
			OpType:    model.OpTypeSell,
			CreatedAt: time.Date(2026, 8, 2, 12, 0, 0, 0, time.UTC),
		},
	}

	fileBytes, fileExtension, err := New().Generate(context.Background(), transactions)
	require.NoError(t, err)
	assert.Equal(t, ".xlsx", fileExtension)

	f, err := excelize.OpenReader(bytes.NewReader(fileBytes))
	require.NoError(t, err)
	defer f.Close()

	header, err := f.GetCellValue(sheetName, "A1")
	require.NoError(t, err)
	assert.Equal(t, "Symbol", header)

	symbol, err := f.GetCellValue(sheetName, "A2")
	require.NoError(t, err)
	assert.Equal(t, "NET", symbol)

	opType, err := f.GetCellValue(sheetName, "C3")
	require.NoError(t, err)
	assert.Equal(t, model.OpTypeSell, opType)

	shares, err := f.GetCellValue(sheetName, "D3")
	require.NoError(t, err)
	assert.Equal(t, "-4", shares)
}

func TestGenerate_EmptyHistory(t *testing.T) {
	fileBytes, fileExtension, err := New().Generate(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, ".xlsx", fileExtension)
	assert.NotEmpty(t, fileBytes)
}
