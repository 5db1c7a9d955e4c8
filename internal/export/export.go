// Package export writes a generated worksheet as an .xlsx workbook: a
// summary sheet followed by one sheet per question type.
package export

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/pavelanni/worksheetgen/internal/model"
)

// SummarySheet is the name of the first sheet.
const SummarySheet = "Summary"

const notAvailable = "N/A"

// Counter hands out question numbers. One counter is shared by all sheets
// of a workbook so numbering continues from sheet to sheet.
type Counter interface {
	Next() int
}

// Sequence is a Counter starting at 1.
type Sequence struct {
	n int
}

// Next returns the next number.
func (s *Sequence) Next() int {
	s.n++
	return s.n
}

var optionPrefix = regexp.MustCompile(`^[A-F]\.\s*`)

// Build assembles the workbook. The caller must Close the returned file.
func Build(ws *model.Worksheet, counter Counter) (*excelize.File, error) {
	if ws == nil {
		return nil, fmt.Errorf("build workbook: no worksheet")
	}
	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", SummarySheet); err != nil {
		f.Close()
		return nil, fmt.Errorf("name summary sheet: %w", err)
	}
	if err := writeSummary(f, ws); err != nil {
		f.Close()
		return nil, err
	}
	for _, qt := range model.QuestionTypes {
		questions := ws.QuestionsOf(qt)
		if len(questions) == 0 {
			continue
		}
		if err := writeQuestionSheet(f, qt, questions, counter); err != nil {
			f.Close()
			return nil, err
		}
	}
	f.SetActiveSheet(0)
	return f, nil
}

// Write builds the workbook with fresh numbering and writes it to w.
func Write(w io.Writer, ws *model.Worksheet) error {
	f, err := Build(ws, &Sequence{})
	if err != nil {
		return err
	}
	defer f.Close()
	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

// Save writes the workbook into dir under FileName and returns its path.
func Save(dir string, ws *model.Worksheet, now time.Time) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}
	path := filepath.Join(dir, FileName(ws, now))
	f, err := Build(ws, &Sequence{})
	if err != nil {
		return "", err
	}
	defer f.Close()
	if err := f.SaveAs(path); err != nil {
		return "", fmt.Errorf("save workbook: %w", err)
	}
	return path, nil
}

// FileName returns Worksheet_{subject}_{topic}_{unix millis}.xlsx, with
// "Unknown" and "General" standing in for a missing subject or topic.
func FileName(ws *model.Worksheet, now time.Time) string {
	subject, topic := "Unknown", "General"
	if ws != nil {
		if name := model.NameOf(ws.Subject); name != "" {
			subject = name
		}
		if ws.Topic != "" {
			topic = ws.Topic
		}
	}
	return fmt.Sprintf("Worksheet_%s_%s_%d.xlsx", safeName(subject), safeName(topic), now.UnixMilli())
}

func safeName(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r < 0x20, strings.ContainsRune(`/\:*?"<>|`, r):
			return '_'
		}
		return r
	}, s)
}

func orNA(s string) string {
	if s == "" {
		return notAvailable
	}
	return s
}

func writeSummary(f *excelize.File, ws *model.Worksheet) error {
	rows := [][]any{
		{"Worksheet Information"},
		nil,
		{"Board", orNA(model.NameOf(ws.Board))},
		{"Grade", orNA(model.NameOf(ws.Grade))},
		{"Subject", orNA(model.NameOf(ws.Subject))},
		{"Topic", orNA(ws.Topic)},
		{"Section", orNA(ws.Section)},
		{"Total Questions", ws.NumberOfQuestions},
		{"Status", orNA(ws.Status)},
		{"Worksheet ID", orNA(ws.ID.String())},
		nil,
		{"Question Distribution by Type"},
		{"Question Type", "Count"},
	}
	for _, qt := range summaryTypes(ws) {
		if n := len(ws.QuestionsOf(qt)); n > 0 {
			rows = append(rows, []any{qt.Humanize(), n})
		}
	}
	if err := writeRows(f, SummarySheet, rows); err != nil {
		return err
	}
	return setWidths(f, SummarySheet, []float64{25, 30})
}

// summaryTypes lists the canonical types followed by any other type keys
// the worksheet carries, sorted.
func summaryTypes(ws *model.Worksheet) []model.QuestionType {
	types := slices.Clone(model.QuestionTypes)
	if ws.Questions == nil {
		return types
	}
	var extra []model.QuestionType
	for qt := range ws.Questions.ByType {
		if !slices.Contains(model.QuestionTypes, qt) {
			extra = append(extra, qt)
		}
	}
	slices.Sort(extra)
	return append(types, extra...)
}

func writeQuestionSheet(f *excelize.File, qt model.QuestionType, questions []model.Question, counter Counter) error {
	sc, ok := schemas[qt]
	if !ok {
		return nil
	}
	if _, err := f.NewSheet(sc.sheet); err != nil {
		return fmt.Errorf("create sheet %q: %w", sc.sheet, err)
	}

	rows := make([][]any, 0, len(questions)+1)
	header := make([]any, len(sc.columns))
	for i, c := range sc.columns {
		header[i] = c
	}
	rows = append(rows, header)
	for _, q := range questions {
		rows = append(rows, sc.row(counter.Next(), q))
	}

	if err := writeRows(f, sc.sheet, rows); err != nil {
		return err
	}
	return setWidths(f, sc.sheet, sc.widths)
}

func writeRows(f *excelize.File, sheet string, rows [][]any) error {
	for i, row := range rows {
		if len(row) == 0 {
			continue
		}
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("write %s row %d: %w", sheet, i+1, err)
		}
	}
	return nil
}

func setWidths(f *excelize.File, sheet string, widths []float64) error {
	for i, w := range widths {
		col, err := excelize.ColumnNumberToName(i + 1)
		if err != nil {
			return err
		}
		if err := f.SetColWidth(sheet, col, col, w); err != nil {
			return fmt.Errorf("set %s column %s width: %w", sheet, col, err)
		}
	}
	return nil
}
