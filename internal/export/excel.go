package export

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/fmuoria/ranksense/internal/models"
)

const (
	summarySheet    = "Summary"
	candidatesSheet = "Ranked Candidates"
	feedbackSheet   = "Section Feedback"
)

// fixed leading columns of the ranked sheet; one column per section follows
var rankedHeaders = []string{"Rank", "Candidate", "TOPSIS", "Total Score", "Grade"}

var thinBorder = []excelize.Border{
	{Type: "left", Color: "000000", Style: 1},
	{Type: "right", Color: "000000", Style: 1},
	{Type: "top", Color: "000000", Style: 1},
	{Type: "bottom", Color: "000000", Style: 1},
}

var headerFill = excelize.Fill{Type: "pattern", Color: []string{"4472C4"}, Pattern: 1}

// band groups totals for colour-coding and the summary counts.
type band struct {
	label string
	min   float64
	fill  string
}

var bands = []band{
	{"Excellent (90-100)", 90, "C6EFCE"},
	{"Good (70-89)", 70, "FFEB9C"},
	{"Fair (50-69)", 50, "FFC7CE"},
	{"Poor (<50)", -1, "FF9999"},
}

func bandIndex(total float64) int {
	for i, b := range bands {
		if total >= b.min {
			return i
		}
	}
	return len(bands) - 1
}

// ExportToExcel writes the batch report as an .xlsx workbook to outputPath,
// appending the extension when missing.
func ExportToExcel(report *models.BatchReport, outputPath string) error {
	if !strings.HasSuffix(strings.ToLower(outputPath), ".xlsx") {
		outputPath = outputPath + ".xlsx"
	}
	outputPath = filepath.Clean(outputPath)

	f, err := buildWorkbook(report, time.Now())
	if err != nil {
		return err
	}
	defer f.Close()

	if err := f.SaveAs(outputPath); err != nil {
		// fall back to a buffered write
		var buf bytes.Buffer
		if writeErr := f.Write(&buf); writeErr != nil {
			return fmt.Errorf("failed to save Excel file: direct save failed (%v), buffer write also failed: %w", err, writeErr)
		}
		if fileErr := os.WriteFile(outputPath, buf.Bytes(), 0o644); fileErr != nil {
			return fmt.Errorf("failed to save Excel file: direct save failed (%v), file write failed: %w", err, fileErr)
		}
	}
	return nil
}

// WriteExcel streams the workbook to w.
func WriteExcel(report *models.BatchReport, w io.Writer) error {
	f, err := buildWorkbook(report, time.Now())
	if err != nil {
		return err
	}
	defer f.Close()

	if err := f.Write(w); err != nil {
		return fmt.Errorf("failed to write Excel workbook: %w", err)
	}
	return nil
}

func buildWorkbook(report *models.BatchReport, generated time.Time) (*excelize.File, error) {
	if report == nil {
		return nil, fmt.Errorf("nil report")
	}

	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", summarySheet); err != nil {
		f.Close()
		return nil, err
	}
	for _, name := range []string{candidatesSheet, feedbackSheet} {
		if _, err := f.NewSheet(name); err != nil {
			f.Close()
			return nil, err
		}
	}

	steps := []struct {
		what string
		fn   func() error
	}{
		{"summary", func() error { return createSummarySheet(f, report, generated) }},
		{"ranked candidates", func() error { return createRankedCandidatesSheet(f, report.Candidates) }},
		{"section feedback", func() error { return createFeedbackSheet(f, report.Candidates) }},
	}
	for _, s := range steps {
		if err := s.fn(); err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to create %s sheet: %w", s.what, err)
		}
	}
	return f, nil
}

// sheetWriter collects the first error of a run of cell writes.
type sheetWriter struct {
	f     *excelize.File
	sheet string
	err   error
}

func (w *sheetWriter) set(cell string, v any) {
	if w.err == nil {
		w.err = w.f.SetCellValue(w.sheet, cell, v)
	}
}

func (w *sheetWriter) style(from, to string, id int) {
	if w.err == nil {
		w.err = w.f.SetCellStyle(w.sheet, from, to, id)
	}
}

func (w *sheetWriter) width(col string, width float64) {
	if w.err == nil {
		w.err = w.f.SetColWidth(w.sheet, col, col, width)
	}
}

func cell(col, row int) string {
	name, _ := excelize.CoordinatesToCellName(col, row)
	return name
}

// createSummarySheet writes job details and score statistics
func createSummarySheet(f *excelize.File, report *models.BatchReport, generated time.Time) error {
	w := &sheetWriter{f: f, sheet: summarySheet}
	w.width("A", 32)
	w.width("B", 50)

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 14, Color: "FFFFFF"},
		Fill:      headerFill,
		Alignment: &excelize.Alignment{Horizontal: "left", Vertical: "center"},
	})
	if err != nil {
		return err
	}
	labelStyle, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return err
	}

	row := 1
	heading := func(text string) {
		w.set(cell(1, row), text)
		w.style(cell(1, row), cell(2, row), headerStyle)
		if w.err == nil {
			w.err = f.MergeCell(summarySheet, cell(1, row), cell(2, row))
		}
		row++
	}
	line := func(label string, v any) {
		w.set(cell(1, row), label)
		w.style(cell(1, row), cell(1, row), labelStyle)
		w.set(cell(2, row), v)
		row++
	}

	heading("Candidate Ranking Report")
	row++
	line("Job Title:", report.JobTitle)
	line("Batch:", report.BatchID)
	if !report.CreatedAt.IsZero() {
		line("Analysed:", report.CreatedAt.Format("2006-01-02 15:04:05"))
	}
	line("Generated:", generated.Format("2006-01-02 15:04:05"))
	line("Total Candidates Ranked:", len(report.Candidates))
	line("Note:", "Files without extractable text (scanned images, unsupported formats) are skipped, "+
		"so fewer candidates than uploaded files may appear. Pair files as Name_CV.pdf / Name_CoverLetter.pdf.")
	row++

	cands := report.Candidates
	if len(cands) == 0 {
		return w.err
	}

	heading("Statistics:")
	counts := make([]int, len(bands))
	for _, c := range cands {
		counts[bandIndex(c.Total)]++
	}
	for i, b := range bands {
		line(b.label+":", counts[i])
	}
	row++

	var sumTotal, sumTopsis float64
	minTotal, maxTotal := cands[0].Total, cands[0].Total
	minTopsis, maxTopsis := cands[0].Topsis, cands[0].Topsis
	withCL := 0
	for _, c := range cands {
		sumTotal += c.Total
		sumTopsis += c.Topsis
		minTotal, maxTotal = min(minTotal, c.Total), max(maxTotal, c.Total)
		minTopsis, maxTopsis = min(minTopsis, c.Topsis), max(maxTopsis, c.Topsis)
		if c.CLPath != "" {
			withCL++
		}
	}
	n := float64(len(cands))

	heading("Score Distribution Details:")
	line("Average Total Score:", fmt.Sprintf("%.2f", sumTotal/n))
	line("Highest Total Score:", fmt.Sprintf("%.2f", maxTotal))
	line("Lowest Total Score:", fmt.Sprintf("%.2f", minTotal))
	line("Average TOPSIS:", fmt.Sprintf("%.4f", sumTopsis/n))
	line("Highest TOPSIS:", fmt.Sprintf("%.4f", maxTopsis))
	line("Lowest TOPSIS:", fmt.Sprintf("%.4f", minTopsis))
	row++
	line("Candidates with Cover Letter:", withCL)
	line("Candidates without Cover Letter:", len(cands)-withCL)

	return w.err
}

// sectionNames returns section names in first-seen order across candidates.
func sectionNames(cands []models.CandidateResult) []string {
	var names []string
	seen := make(map[string]bool)
	for _, c := range cands {
		for _, s := range c.Sections {
			if !seen[s.Name] {
				seen[s.Name] = true
				names = append(names, s.Name)
			}
		}
	}
	return names
}

// createRankedCandidatesSheet writes one colour-coded row per candidate
func createRankedCandidatesSheet(f *excelize.File, cands []models.CandidateResult) error {
	w := &sheetWriter{f: f, sheet: candidatesSheet}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Color: "FFFFFF"},
		Fill:      headerFill,
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center", WrapText: true},
		Border:    thinBorder,
	})
	if err != nil {
		return err
	}

	rowStyles := make([]int, len(bands))
	linkStyles := make([]int, len(bands))
	for i, b := range bands {
		fill := excelize.Fill{Type: "pattern", Color: []string{b.fill}, Pattern: 1}
		if rowStyles[i], err = f.NewStyle(&excelize.Style{Fill: fill, Border: thinBorder}); err != nil {
			return err
		}
		if linkStyles[i], err = f.NewStyle(&excelize.Style{
			Font:   &excelize.Font{Color: "0563C1", Underline: "single"},
			Fill:   fill,
			Border: thinBorder,
		}); err != nil {
			return err
		}
	}

	sections := sectionNames(cands)
	headers := append(append([]string{}, rankedHeaders...), sections...)
	headers = append(headers, "CV Link", "CL Link")
	lastCol := len(headers)
	cvCol, clCol := lastCol-1, lastCol

	for col, h := range headers {
		c := cell(col+1, 1)
		w.set(c, h)
		w.style(c, c, headerStyle)
		name, _ := excelize.ColumnNumberToName(col + 1)
		switch {
		case col == 1:
			w.width(name, 25)
		case col < len(rankedHeaders):
			w.width(name, 10)
		default:
			w.width(name, 14)
		}
	}

	for i, c := range cands {
		row := i + 2
		w.set(cell(1, row), c.Rank)
		w.set(cell(2, row), c.Name)
		w.set(cell(3, row), c.Topsis)
		w.set(cell(4, row), c.Total)
		w.set(cell(5, row), c.Grade)

		scores := make(map[string]float64, len(c.Sections))
		for _, s := range c.Sections {
			scores[s.Name] = s.Score
		}
		for j, name := range sections {
			if v, ok := scores[name]; ok {
				w.set(cell(len(rankedHeaders)+j+1, row), v)
			}
		}

		b := bandIndex(c.Total)
		w.style(cell(1, row), cell(lastCol, row), rowStyles[b])
		link(w, cell(cvCol, row), "Open CV", c.CVPath, linkStyles[b])
		link(w, cell(clCol, row), "Open CL", c.CLPath, linkStyles[b])
	}

	if len(cands) > 0 && w.err == nil {
		w.err = f.AutoFilter(candidatesSheet, cell(1, 1)+":"+cell(lastCol, len(cands)+1), nil)
	}
	if w.err == nil {
		w.err = f.SetPanes(candidatesSheet, &excelize.Panes{
			Freeze:      true,
			YSplit:      1,
			TopLeftCell: "A2",
			ActivePane:  "bottomLeft",
		})
	}
	return w.err
}

// link writes a file:// hyperlink to path, or leaves the cell empty.
func link(w *sheetWriter, c, label, path string, style int) {
	if path == "" || w.err != nil {
		return
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	w.set(c, label)
	if w.err == nil {
		w.err = w.f.SetCellHyperLink(w.sheet, c, "file:///"+strings.TrimPrefix(strings.ReplaceAll(abs, "\\", "/"), "/"), "External")
	}
	w.style(c, c, style)
}

// createFeedbackSheet writes one row per candidate section with its feedback
func createFeedbackSheet(f *excelize.File, cands []models.CandidateResult) error {
	w := &sheetWriter{f: f, sheet: feedbackSheet}
	for col, width := range map[string]float64{"A": 8, "B": 25, "C": 20, "D": 10, "E": 12, "F": 60} {
		w.width(col, width)
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Color: "FFFFFF"},
		Fill:      headerFill,
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
		Border:    thinBorder,
	})
	if err != nil {
		return err
	}
	wrapStyle, err := f.NewStyle(&excelize.Style{
		Alignment: &excelize.Alignment{WrapText: true, Vertical: "top"},
		Border:    thinBorder,
	})
	if err != nil {
		return err
	}

	for col, h := range []string{"Rank", "Candidate", "Section", "Score", "Level", "Feedback"} {
		c := cell(col+1, 1)
		w.set(c, h)
		w.style(c, c, headerStyle)
	}

	row := 2
	for _, c := range cands {
		for _, s := range c.Sections {
			w.set(cell(1, row), c.Rank)
			w.set(cell(2, row), c.Name)
			w.set(cell(3, row), s.Name)
			w.set(cell(4, row), s.Score)
			w.set(cell(5, row), string(s.Level))
			w.set(cell(6, row), s.Feedback)
			w.style(cell(1, row), cell(6, row), wrapStyle)
			row++
		}
	}

	if w.err == nil {
		w.err = f.SetPanes(feedbackSheet, &excelize.Panes{
			Freeze:      true,
			YSplit:      1,
			TopLeftCell: "A2",
			ActivePane:  "bottomLeft",
		})
	}
	return w.err
}
