package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

// QuestionType is a worksheet question category key.
type QuestionType string

const (
	MCQSingleAnswer   QuestionType = "mcq_single_answer"
	MCQMultipleAnswer QuestionType = "mcq_multiple_answer"
	TrueFalse         QuestionType = "true_false"
	FillInTheBlanks   QuestionType = "fill_in_the_blanks"
	VeryShortAnswer   QuestionType = "very_short_answer"
	ShortAnswer       QuestionType = "short_answer"
	LongAnswer        QuestionType = "long_answer"
	MatchTheColumn    QuestionType = "match_the_column"
)

// QuestionTypes lists every question type in canonical order.
var QuestionTypes = []QuestionType{
	MCQSingleAnswer,
	MCQMultipleAnswer,
	TrueFalse,
	FillInTheBlanks,
	VeryShortAnswer,
	ShortAnswer,
	LongAnswer,
	MatchTheColumn,
}

// Humanize turns "fill_in_the_blanks" into "Fill In The Blanks".
func (t QuestionType) Humanize() string {
	words := strings.Split(string(t), "_")
	for i, w := range words {
		if w == "" {
			continue
		}
		r := []rune(w)
		r[0] = unicode.ToUpper(r[0])
		words[i] = string(r)
	}
	return strings.Join(words, " ")
}

// Worksheet is the final generated artifact.
type Worksheet struct {
	ID                ID           `json:"id,omitempty"`
	Status            string       `json:"status,omitempty"`
	Board             *CatalogItem `json:"board,omitempty"`
	Grade             *CatalogItem `json:"grade,omitempty"`
	Subject           *CatalogItem `json:"subject,omitempty"`
	Topic             string       `json:"topic,omitempty"`
	Section           string       `json:"section,omitempty"`
	NumberOfQuestions int          `json:"number_of_questions,omitempty"`
	Questions         *QuestionSet `json:"questions,omitempty"`
}

// HasQuestions reports whether the worksheet carries a question set that is
// not the "no questions generated" placeholder.
func (w *Worksheet) HasQuestions() bool {
	return w != nil && w.Questions != nil && w.Questions.Message != NoQuestionsGenerated
}

// QuestionsOf returns the questions of one type, or nil.
func (w *Worksheet) QuestionsOf(t QuestionType) []Question {
	if w == nil || w.Questions == nil {
		return nil
	}
	return w.Questions.ByType[t]
}

// QuestionSet is the "questions" object of a worksheet. The API sends either
// a map of type key to question list or an object with a single "msg".
type QuestionSet struct {
	ByType  map[QuestionType][]Question
	Message string
}

func (qs *QuestionSet) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return fmt.Errorf("decode questions: %w", err)
	}
	qs.ByType = make(map[QuestionType][]Question, len(fields))
	for key, raw := range fields {
		trimmed := bytes.TrimSpace(raw)
		if key == "msg" && len(trimmed) > 0 && trimmed[0] == '"' {
			if err := json.Unmarshal(trimmed, &qs.Message); err != nil {
				return fmt.Errorf("decode questions msg: %w", err)
			}
			continue
		}
		if len(trimmed) > 0 && trimmed[0] != '[' {
			continue
		}
		var list []Question
		if err := json.Unmarshal(trimmed, &list); err != nil {
			return fmt.Errorf("decode %s questions: %w", key, err)
		}
		qs.ByType[QuestionType(key)] = list
	}
	return nil
}

func (qs QuestionSet) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(qs.ByType)+1)
	for t, list := range qs.ByType {
		out[string(t)] = list
	}
	if qs.Message != "" {
		out["msg"] = qs.Message
	}
	return json.Marshal(out)
}

// Question is one generated question.
type Question struct {
	Question     string          `json:"question"`
	Options      []string        `json:"options,omitempty"`
	Answer       TextList        `json:"answer,omitzero"`
	Tags         *Tags           `json:"tags,omitempty"`
	Explanations []Explanation   `json:"explanations,omitempty"`
	ColumnA      json.RawMessage `json:"columnA,omitempty"`
	ColumnB      json.RawMessage `json:"columnB,omitempty"`
}

// Tags classify a question.
type Tags struct {
	LearningObjectives TextList `json:"learning_objectives,omitzero"`
	Bloom              TextList `json:"bloom,omitzero"`
	Difficulty         TextList `json:"difficulty,omitzero"`
}

// Explanation is one explanation record attached to a question.
type Explanation struct {
	LearningObjective    TextList `json:"learning_objective,omitzero"`
	Explanation          TextList `json:"explanation,omitzero"`
	KeyConcepts          TextList `json:"key_concepts,omitzero"`
	CommonMistakes       TextList `json:"common_mistakes,omitzero"`
	RealWorldApplication TextList `json:"real_world_application,omitzero"`
}

// TextList is a field the API sends either as a scalar or as a list.
// Scalars become a one-element list; numbers and booleans keep their JSON text.
type TextList struct {
	Values []string
	list   bool
}

// Text returns a TextList holding a single string.
func Text(s string) TextList { return TextList{Values: []string{s}} }

// List returns a TextList that marshals back as a JSON array.
func List(values ...string) TextList { return TextList{Values: values, list: true} }

// String joins the values with ", ".
func (t TextList) String() string { return strings.Join(t.Values, ", ") }

// IsZero reports whether the list holds no values.
func (t TextList) IsZero() bool { return len(t.Values) == 0 }

func (t *TextList) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || string(trimmed) == "null" {
		*t = TextList{}
		return nil
	}
	if trimmed[0] == '[' {
		var raw []json.RawMessage
		if err := json.Unmarshal(trimmed, &raw); err != nil {
			return err
		}
		out := TextList{Values: make([]string, 0, len(raw)), list: true}
		for _, r := range raw {
			s, err := scalarText(r)
			if err != nil {
				return err
			}
			out.Values = append(out.Values, s)
		}
		*t = out
		return nil
	}
	s, err := scalarText(trimmed)
	if err != nil {
		return err
	}
	*t = TextList{Values: []string{s}}
	return nil
}

func (t TextList) MarshalJSON() ([]byte, error) {
	if t.list || len(t.Values) > 1 {
		return json.Marshal(t.Values)
	}
	if len(t.Values) == 0 {
		return []byte("null"), nil
	}
	return json.Marshal(t.Values[0])
}

func scalarText(raw json.RawMessage) (string, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || string(trimmed) == "null" {
		return "", nil
	}
	switch trimmed[0] {
	case '"':
		var s string
		err := json.Unmarshal(trimmed, &s)
		return s, err
	case '{', '[':
		return string(trimmed), nil
	case 't', 'f':
		b, err := strconv.ParseBool(string(trimmed))
		if err != nil {
			return "", fmt.Errorf("decode text value %s: %w", trimmed, err)
		}
		return strconv.FormatBool(b), nil
	default:
		return string(trimmed), nil
	}
}
