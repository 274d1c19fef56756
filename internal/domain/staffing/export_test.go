package staffing

import (
	"bytes"
	"testing"

	"github.com/xuri/excelize/v2"
)

func TestExportXLSX(t *testing.T) {
	r, err := newTestEngine().Compute(scenarioC())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	data, err := ExportXLSX(r)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("open workbook: %v", err)
	}
	defer f.Close()

	if sheets := f.GetSheetList(); len(sheets) != 1 || sheets[0] != exportSheet {
		t.Fatalf("expected only sheet %s, got %v", exportSheet, sheets)
	}
	rows, err := f.GetRows(exportSheet)
	if err != nil {
		t.Fatalf("read rows: %v", err)
	}
	values := make(map[string]string, len(rows))
	for _, row := range rows[1:] {
		if len(row) == 2 {
			values[row[0]] = row[1]
		}
	}
	if values["Nurse"] != "Ana Lima" {
		t.Errorf("expected nurse name, got %q", values["Nurse"])
	}
	if values["Staff restriction"] != "nao" {
		t.Errorf("expected restriction nao, got %q", values["Staff restriction"])
	}
	if values["Nurse quota"] != "5.17" || values["Technician quota"] != "10.48" {
		t.Errorf("unexpected quotas %q / %q", values["Nurse quota"], values["Technician quota"])
	}
}

func TestExportXLSX_Nil(t *testing.T) {
	if _, err := ExportXLSX(nil); err == nil {
		t.Error("expected error for nil result")
	}
}
