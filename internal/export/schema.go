package export

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/pavelanni/worksheetgen/internal/model"
)

// schema is the column layout of one question type's sheet.
type schema struct {
	sheet        string
	options      int
	matchColumns bool
	explanations bool
	answerWidth  float64
	optionWidth  float64
	columns      []string
	widths       []float64
}

var (
	tagColumns         = []string{"Learning Objectives", "Bloom Taxonomy", "Difficulty"}
	tagWidths          = []float64{40, 15, 12}
	explanationColumns = []string{"Learning Objective Explanation", "Explanation", "Key Concepts", "Common Mistakes", "Real World Application"}
	explanationWidths  = []float64{80, 80, 20, 80, 80}
)

var schemas = map[model.QuestionType]schema{
	model.MCQSingleAnswer:   newSchema(schema{sheet: "MCQ Single Answer", options: 4, optionWidth: 40, answerWidth: 10, explanations: true}),
	model.MCQMultipleAnswer: newSchema(schema{sheet: "MCQ Multiple Answer", options: 6, optionWidth: 35, answerWidth: 15}),
	model.TrueFalse:         newSchema(schema{sheet: "True False", answerWidth: 50}),
	model.FillInTheBlanks:   newSchema(schema{sheet: "Fill in the Blanks", answerWidth: 50}),
	model.VeryShortAnswer:   newSchema(schema{sheet: "Very Short Answer", answerWidth: 50}),
	model.ShortAnswer:       newSchema(schema{sheet: "Short Answer", answerWidth: 50}),
	model.LongAnswer:        newSchema(schema{sheet: "Long Answer", answerWidth: 50}),
	model.MatchTheColumn:    newSchema(schema{sheet: "Match the Column", matchColumns: true, answerWidth: 20}),
}

// newSchema derives the column names and widths from the layout flags.
func newSchema(s schema) schema {
	s.columns = []string{"Question No.", "Question"}
	s.widths = []float64{12, 60}
	for i := range s.options {
		s.columns = append(s.columns, "Option "+string(rune('A'+i)))
		s.widths = append(s.widths, s.optionWidth)
	}
	if s.matchColumns {
		s.columns = append(s.columns, "Column A", "Column B")
		s.widths = append(s.widths, 30, 30)
	}
	s.columns = append(s.columns, "Answer")
	s.widths = append(s.widths, s.answerWidth)
	s.columns = append(s.columns, tagColumns...)
	s.widths = append(s.widths, tagWidths...)
	if s.explanations {
		s.columns = append(s.columns, explanationColumns...)
		s.widths = append(s.widths, explanationWidths...)
	}
	return s
}

// row renders one question. Missing fields become empty cells.
func (s schema) row(number int, q model.Question) []any {
	row := make([]any, 0, len(s.columns))
	row = append(row, number, q.Question)

	for i := range s.options {
		opt := ""
		if i < len(q.Options) {
			opt = optionPrefix.ReplaceAllString(q.Options[i], "")
		}
		row = append(row, opt)
	}
	if s.matchColumns {
		row = append(row, rawText(q.ColumnA), rawText(q.ColumnB))
	}

	row = append(row, q.Answer.String())
	if q.Tags != nil {
		row = append(row, q.Tags.LearningObjectives.String(), q.Tags.Bloom.String(), q.Tags.Difficulty.String())
	} else {
		row = append(row, "", "", "")
	}

	if s.explanations && len(q.Explanations) > 0 {
		e := q.Explanations[0]
		var concepts strings.Builder
		for _, c := range e.KeyConcepts.Values {
			concepts.WriteString(c)
			concepts.WriteString(",\n")
		}
		row = append(row,
			e.LearningObjective.String(),
			e.Explanation.String(),
			concepts.String(),
			e.CommonMistakes.String(),
			e.RealWorldApplication.String(),
		)
	}
	return row
}

// rawText renders a match-the-column side as compact JSON.
func rawText(raw json.RawMessage) string {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || string(trimmed) == "null" {
		return ""
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, trimmed); err != nil {
		return string(trimmed)
	}
	return buf.String()
}
