package export

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/fmuoria/ranksense/internal/models"
)

func sampleReport() *models.BatchReport {
	return &models.BatchReport{
		BatchID:   "b-1",
		JobTitle:  "Software Engineer",
		Status:    models.StatusDone,
		CreatedAt: time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC),
		Candidates: []models.CandidateResult{
			{
				Profile: models.Profile{Name: "Alice"},
				Rank:    1, Topsis: 1, Total: 92.5, Grade: "A+",
				Sections: []models.SectionScore{
					{Name: "Skills", Score: 95, Level: models.LevelExcellent, Feedback: "Extensive skill set"},
					{Name: "Education", Score: 90, Level: models.LevelExcellent, Feedback: "Strong academics"},
				},
				CVPath: "uploads/Alice_CV.pdf",
				CLPath: "uploads/Alice_CoverLetter.pdf",
			},
			{
				Profile: models.Profile{Name: "Bob"},
				Rank:    2, Topsis: 0, Total: 45, Grade: "C",
				Sections: []models.SectionScore{
					{Name: "Skills", Score: 45, Level: models.LevelPoor},
					{Name: "Education", Score: 45, Level: models.LevelPoor},
				},
			},
		},
	}
}

func TestExportToExcel_EnsuresXlsxExtension(t *testing.T) {
	tmpDir := t.TempDir()

	outputPath := filepath.Join(tmpDir, "test_report")
	if err := ExportToExcel(sampleReport(), outputPath); err != nil {
		t.Fatalf("ExportToExcel() failed: %v", err)
	}

	if _, err := os.Stat(outputPath + ".xlsx"); os.IsNotExist(err) {
		t.Errorf("Expected file at %s.xlsx but it doesn't exist", outputPath)
	}
}

func TestExportToExcel_HandlesExistingXlsxExtension(t *testing.T) {
	tmpDir := t.TempDir()

	outputPath := filepath.Join(tmpDir, "test_report.XLSX")
	if err := ExportToExcel(sampleReport(), outputPath); err != nil {
		t.Fatalf("ExportToExcel() failed: %v", err)
	}
	if _, err := os.Stat(outputPath); os.IsNotExist(err) {
		t.Errorf("Expected file at %s but it doesn't exist", outputPath)
	}
	if _, err := os.Stat(outputPath + ".xlsx"); err == nil {
		t.Error("Should not have double .xlsx extension")
	}
}

func TestExportToExcel_EmptyResults(t *testing.T) {
	outputPath := filepath.Join(t.TempDir(), "empty_report.xlsx")
	report := &models.BatchReport{JobTitle: "Test Job"}

	if err := ExportToExcel(report, outputPath); err != nil {
		t.Fatalf("ExportToExcel() should handle empty results: %v", err)
	}
	if _, err := os.Stat(outputPath); os.IsNotExist(err) {
		t.Errorf("Expected file at %s but it doesn't exist", outputPath)
	}
}

func TestExportToExcel_NilReport(t *testing.T) {
	if err := ExportToExcel(nil, filepath.Join(t.TempDir(), "x.xlsx")); err == nil {
		t.Error("ExportToExcel(nil) should fail")
	}
}

func TestWriteExcel_Contents(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteExcel(sampleReport(), &buf); err != nil {
		t.Fatalf("WriteExcel() failed: %v", err)
	}

	f, err := excelize.OpenReader(&buf)
	if err != nil {
		t.Fatalf("workbook unreadable: %v", err)
	}
	defer f.Close()

	want := []string{summarySheet, candidatesSheet, feedbackSheet}
	if got := f.GetSheetList(); strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("sheets = %v, want %v", got, want)
	}

	rows, err := f.GetRows(candidatesSheet)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 3 {
		t.Fatalf("ranked sheet has %d rows, want 3", len(rows))
	}
	header := strings.Join(rows[0], "|")
	if header != "Rank|Candidate|TOPSIS|Total Score|Grade|Skills|Education|CV Link|CL Link" {
		t.Errorf("header = %s", header)
	}
	if rows[1][1] != "Alice" || rows[1][4] != "A+" || rows[1][7] != "Open CV" {
		t.Errorf("first row = %v", rows[1])
	}
	if rows[2][1] != "Bob" || rows[2][5] != "45" {
		t.Errorf("second row = %v", rows[2])
	}

	ok, target, err := f.GetCellHyperLink(candidatesSheet, "I2")
	if err != nil || !ok || !strings.HasPrefix(target, "file:///") || !strings.HasSuffix(target, "Alice_CoverLetter.pdf") {
		t.Errorf("cover letter link = %v %q %v", ok, target, err)
	}

	feedback, err := f.GetRows(feedbackSheet)
	if err != nil {
		t.Fatal(err)
	}
	if len(feedback) != 5 {
		t.Errorf("feedback sheet has %d rows, want 5", len(feedback))
	}
	if feedback[1][2] != "Skills" || feedback[1][5] != "Extensive skill set" {
		t.Errorf("feedback row = %v", feedback[1])
	}

	title, _ := f.GetCellValue(summarySheet, "B3")
	if title != "Software Engineer" {
		t.Errorf("summary job title = %q", title)
	}
}

func TestBandIndex(t *testing.T) {
	tests := []struct {
		total float64
		want  int
	}{
		{100, 0}, {90, 0}, {89.9, 1}, {70, 1}, {50, 2}, {49.9, 3}, {0, 3},
	}
	for _, tt := range tests {
		if got := bandIndex(tt.total); got != tt.want {
			t.Errorf("bandIndex(%v) = %d, want %d", tt.total, got, tt.want)
		}
	}
}
