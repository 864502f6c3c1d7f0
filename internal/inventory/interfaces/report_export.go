package interfaces

import (
	"bytes"
	"fmt"
	"time"

	"github.com/jung-kurt/gofpdf"
	"github.com/xuri/excelize/v2"

	"fuel-ledger/internal/inventory/application"
	inventory "fuel-ledger/internal/inventory/domain"
)

// StockReport is the data behind a stock export.
type StockReport struct {
	GeneratedAt time.Time
	From        time.Time
	To          time.Time
	Units       []application.UnitStock
	Lots        []inventory.FuelLot
}

// NewStockReport summarizes lots for export.
func NewStockReport(lots []inventory.FuelLot, from, to, generatedAt time.Time) StockReport {
	return StockReport{
		GeneratedAt: generatedAt,
		From:        from,
		To:          to,
		Units:       application.SummarizeStock(lots),
		Lots:        lots,
	}
}

func (r StockReport) period() string {
	from, to := "-", "-"
	if !r.From.IsZero() {
		from = r.From.Format("2006-01-02")
	}
	if !r.To.IsZero() {
		to = r.To.Format("2006-01-02")
	}
	return from + " .. " + to
}

// BuildStockPDF renders a stock report as PDF.
func BuildStockPDF(report StockReport) ([]byte, error) {
	pdf := gofpdf.New("L", "mm", "A4", "")
	pdf.SetFont("Arial", "", 12)
	pdf.AddPage()

	pdf.Cell(0, 8, "Fuel Stock Report")
	pdf.Ln(10)
	pdf.SetFont("Arial", "", 10)
	pdf.Cell(0, 6, fmt.Sprintf("Load dates: %s", report.period()))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Generated: %s", report.GeneratedAt.Format(time.RFC3339)))
	pdf.Ln(8)

	pdf.SetFont("Arial", "B", 10)
	pdf.CellFormat(30, 6, "Unit", "1", 0, "C", false, 0, "")
	pdf.CellFormat(30, 6, "Open lots", "1", 0, "C", false, 0, "")
	pdf.CellFormat(30, 6, "Sold lots", "1", 0, "C", false, 0, "")
	pdf.CellFormat(40, 6, "Loaded (L)", "1", 0, "C", false, 0, "")
	pdf.CellFormat(40, 6, "Used (L)", "1", 0, "C", false, 0, "")
	pdf.CellFormat(40, 6, "Remaining (L)", "1", 0, "C", false, 0, "")
	pdf.Ln(-1)
	pdf.SetFont("Arial", "", 10)
	for _, unit := range report.Units {
		pdf.CellFormat(30, 6, unit.UnitCode, "1", 0, "L", false, 0, "")
		pdf.CellFormat(30, 6, fmt.Sprintf("%d", unit.OpenLots), "1", 0, "R", false, 0, "")
		pdf.CellFormat(30, 6, fmt.Sprintf("%d", unit.SoldLots), "1", 0, "R", false, 0, "")
		pdf.CellFormat(40, 6, fmt.Sprintf("%d", unit.LoadedLiters), "1", 0, "R", false, 0, "")
		pdf.CellFormat(40, 6, fmt.Sprintf("%d", unit.UsedLiters), "1", 0, "R", false, 0, "")
		pdf.CellFormat(40, 6, fmt.Sprintf("%d", unit.RemainingLiters), "1", 0, "R", false, 0, "")
		pdf.Ln(-1)
	}

	pdf.Ln(6)
	pdf.SetFont("Arial", "B", 10)
	pdf.CellFormat(60, 6, "Lot code", "1", 0, "C", false, 0, "")
	pdf.CellFormat(25, 6, "Unit", "1", 0, "C", false, 0, "")
	pdf.CellFormat(30, 6, "Load date", "1", 0, "C", false, 0, "")
	pdf.CellFormat(30, 6, "Loaded (L)", "1", 0, "C", false, 0, "")
	pdf.CellFormat(30, 6, "Used (L)", "1", 0, "C", false, 0, "")
	pdf.CellFormat(25, 6, "Status", "1", 0, "C", false, 0, "")
	pdf.CellFormat(25, 6, "Origin", "1", 0, "C", false, 0, "")
	pdf.Ln(-1)
	pdf.SetFont("Arial", "", 9)
	for _, lot := range report.Lots {
		pdf.CellFormat(60, 6, lot.LotCode, "1", 0, "L", false, 0, "")
		pdf.CellFormat(25, 6, lot.UnitCode, "1", 0, "L", false, 0, "")
		pdf.CellFormat(30, 6, lot.LoadDate.Format("2006-01-02"), "1", 0, "C", false, 0, "")
		pdf.CellFormat(30, 6, fmt.Sprintf("%d", lot.LoadedLiters), "1", 0, "R", false, 0, "")
		pdf.CellFormat(30, 6, fmt.Sprintf("%d", lot.UsedLiters), "1", 0, "R", false, 0, "")
		pdf.CellFormat(25, 6, string(lot.StockStatus), "1", 0, "C", false, 0, "")
		pdf.CellFormat(25, 6, string(lot.Origin), "1", 0, "C", false, 0, "")
		pdf.Ln(-1)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// BuildStockXLSX renders a stock report as XLSX with a units and a lots sheet.
func BuildStockXLSX(report StockReport) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()
	unitsSheet := "units"
	lotsSheet := "lots"
	if err := f.SetSheetName("Sheet1", unitsSheet); err != nil {
		return nil, err
	}
	if _, err := f.NewSheet(lotsSheet); err != nil {
		return nil, err
	}

	_ = f.SetCellValue(unitsSheet, "A1", "Fuel Stock Report")
	_ = f.SetCellValue(unitsSheet, "A2", "Load dates")
	_ = f.SetCellValue(unitsSheet, "B2", report.period())
	_ = f.SetCellValue(unitsSheet, "A3", "Generated")
	_ = f.SetCellValue(unitsSheet, "B3", report.GeneratedAt.Format(time.RFC3339))

	header := []string{"Unit", "Unit ID", "Open lots", "Sold lots", "Loaded (L)", "Used (L)", "Remaining (L)"}
	for i, title := range header {
		cell, _ := excelize.CoordinatesToCellName(i+1, 5)
		_ = f.SetCellValue(unitsSheet, cell, title)
	}
	for i, unit := range report.Units {
		row := i + 6
		_ = f.SetCellValue(unitsSheet, fmt.Sprintf("A%d", row), unit.UnitCode)
		_ = f.SetCellValue(unitsSheet, fmt.Sprintf("B%d", row), unit.UnitID)
		_ = f.SetCellValue(unitsSheet, fmt.Sprintf("C%d", row), unit.OpenLots)
		_ = f.SetCellValue(unitsSheet, fmt.Sprintf("D%d", row), unit.SoldLots)
		_ = f.SetCellValue(unitsSheet, fmt.Sprintf("E%d", row), unit.LoadedLiters)
		_ = f.SetCellValue(unitsSheet, fmt.Sprintf("F%d", row), unit.UsedLiters)
		_ = f.SetCellValue(unitsSheet, fmt.Sprintf("G%d", row), unit.RemainingLiters)
	}

	lotHeader := []string{"Lot code", "Unit", "Load date", "Seq", "Loaded (L)", "Used (L)", "Remaining (L)", "Status", "Origin"}
	for i, title := range lotHeader {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(lotsSheet, cell, title)
	}
	for i, lot := range report.Lots {
		row := i + 2
		_ = f.SetCellValue(lotsSheet, fmt.Sprintf("A%d", row), lot.LotCode)
		_ = f.SetCellValue(lotsSheet, fmt.Sprintf("B%d", row), lot.UnitCode)
		_ = f.SetCellValue(lotsSheet, fmt.Sprintf("C%d", row), lot.LoadDate.Format("2006-01-02"))
		_ = f.SetCellValue(lotsSheet, fmt.Sprintf("D%d", row), lot.SeqLetters)
		_ = f.SetCellValue(lotsSheet, fmt.Sprintf("E%d", row), lot.LoadedLiters)
		_ = f.SetCellValue(lotsSheet, fmt.Sprintf("F%d", row), lot.UsedLiters)
		_ = f.SetCellValue(lotsSheet, fmt.Sprintf("G%d", row), lot.RemainingLiters())
		_ = f.SetCellValue(lotsSheet, fmt.Sprintf("H%d", row), string(lot.StockStatus))
		_ = f.SetCellValue(lotsSheet, fmt.Sprintf("I%d", row), string(lot.Origin))
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
