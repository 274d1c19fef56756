package staffing

import (
	"bytes"
	"fmt"

	"github.com/xuri/excelize/v2"
)

const exportSheet = "Dimensionamento"

type exportRow struct {
	label string
	value interface{}
}

func exportRows(r *Result) []exportRow {
	p := r.Parameters
	occupancy := interface{}("")
	if p.OccupancyRate != nil {
		occupancy = *p.OccupancyRate
	}
	restricted := "nao"
	if p.Restricted {
		restricted = "sim"
	}
	return []exportRow{
		{"Nurse", p.NurseName},
		{"Registration number", p.RegistrationNumber},
		{"Beds", p.Beds},
		{"Occupancy rate (%)", occupancy},
		{"Days per week", p.DaysPerWeek},
		{"Technical safety index (%)", p.SafetyIndex},
		{"Staff restriction", restricted},
		{"Minimal care patients", p.Counts.Minimal},
		{"Intermediate care patients", p.Counts.Intermediate},
		{"High dependency patients", p.Counts.HighDependency},
		{"Semi-intensive patients", p.Counts.SemiIntensive},
		{"Intensive patients", p.Counts.Intensive},
		{"Total nursing hours (THE)", r.THE},
		{"Safety constant", r.SafetyConstant},
		{"QP real", r.QPReal},
		{"QP", r.QP},
		{"Nurse share (%)", r.NurseShare},
		{"Technician share (%)", r.TechnicianShare},
		{"Nurse quota", r.NurseQuota},
		{"Technician quota", r.TechnicianQuota},
		{"Computed at", r.ComputedAt.Format("2006-01-02 15:04:05")},
	}
}

// ExportXLSX renders a result as a one-sheet workbook.
func ExportXLSX(r *Result) ([]byte, error) {
	if r == nil {
		return nil, fmt.Errorf("no result to export")
	}
	f := excelize.NewFile()
	defer f.Close()

	index, err := f.NewSheet(exportSheet)
	if err != nil {
		return nil, fmt.Errorf("failed to create sheet: %w", err)
	}
	f.SetActiveSheet(index)
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return nil, fmt.Errorf("failed to delete default sheet: %w", err)
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#E6F3FF"}, Pattern: 1},
		Border: []excelize.Border{
			{Type: "left", Color: "000000", Style: 1},
			{Type: "top", Color: "000000", Style: 1},
			{Type: "bottom", Color: "000000", Style: 1},
			{Type: "right", Color: "000000", Style: 1},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create header style: %w", err)
	}

	if err := f.SetSheetRow(exportSheet, "A1", &[]interface{}{"Item", "Value"}); err != nil {
		return nil, fmt.Errorf("failed to write header: %w", err)
	}
	if err := f.SetCellStyle(exportSheet, "A1", "B1", headerStyle); err != nil {
		return nil, fmt.Errorf("failed to set header style: %w", err)
	}
	for i, row := range exportRows(r) {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return nil, fmt.Errorf("failed to convert coordinates: %w", err)
		}
		if err := f.SetSheetRow(exportSheet, cell, &[]interface{}{row.label, row.value}); err != nil {
			return nil, fmt.Errorf("failed to write row %d: %w", i+2, err)
		}
	}
	if err := f.SetColWidth(exportSheet, "A", "A", 32); err != nil {
		return nil, fmt.Errorf("failed to set column width: %w", err)
	}
	if err := f.SetColWidth(exportSheet, "B", "B", 24); err != nil {
		return nil, fmt.Errorf("failed to set column width: %w", err)
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, fmt.Errorf("failed to write workbook: %w", err)
	}
	return buf.Bytes(), nil
}
