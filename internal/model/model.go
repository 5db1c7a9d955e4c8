package model

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// Step is a wizard stage.
type Step int

const (
	StepLogin Step = iota + 1
	StepConfigure
	StepReviewMetadata
	StepReviewQuestions
	StepComplete
)

var stepNames = map[Step]string{
	StepLogin:           "login",
	StepConfigure:       "configure",
	StepReviewMetadata:  "review-metadata",
	StepReviewQuestions: "review-questions",
	StepComplete:        "complete",
}

func (s Step) String() string {
	if name, ok := stepNames[s]; ok {
		return name
	}
	return "step(" + strconv.Itoa(int(s)) + ")"
}

// Valid reports whether s is one of the five wizard steps.
func (s Step) Valid() bool {
	_, ok := stepNames[s]
	return ok
}

// ID is an identifier the remote API may send either as a JSON string or a number.
type ID string

// UnmarshalJSON accepts strings, numbers and null.
func (id *ID) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	if s == "null" {
		*id = ""
		return nil
	}
	if strings.HasPrefix(s, `"`) {
		var str string
		if err := json.Unmarshal(data, &str); err != nil {
			return err
		}
		*id = ID(str)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*id = ID(n.String())
	return nil
}

func (id ID) String() string { return string(id) }

// CatalogItem is a board, grade or subject entry.
type CatalogItem struct {
	ID   ID     `json:"id"`
	Name string `json:"name"`
}

// NameOf returns the item name, or "" for a nil item.
func NameOf(c *CatalogItem) string {
	if c == nil {
		return ""
	}
	return c.Name
}

// JobKind names one of the asynchronous remote jobs. The value is the
// endpoint segment under /worksheet/v1.
type JobKind string

const (
	JobMetadata       JobKind = "metadata"
	JobQuestionConfig JobKind = "question-config"
	JobWorksheet      JobKind = "generate-worksheet"
)

// Remote job status values.
const (
	JobStatusInProgress = "In Progress"
	JobStatusCompleted  = "Completed"
)

// NoQuestionsGenerated is the message the API returns in place of the
// question map when a worksheet job finished without output.
const NoQuestionsGenerated = "No questions generated."

// Metadata is the AI-generated worksheet metadata reviewed at step 3.
type Metadata struct {
	ID                ID              `json:"id,omitempty"`
	Status            string          `json:"status,omitempty"`
	Board             *CatalogItem    `json:"board,omitempty"`
	Grade             *CatalogItem    `json:"grade,omitempty"`
	Subject           *CatalogItem    `json:"subject,omitempty"`
	Topic             string          `json:"topic,omitempty"`
	Section           string          `json:"section,omitempty"`
	NumberOfQuestions int             `json:"number_of_questions,omitempty"`
	SubjectMatter     json.RawMessage `json:"subject_matter,omitempty"`
	LearningStandards json.RawMessage `json:"learning_standards,omitempty"`
}

// TypeCount is one entry of a question configuration's type summary.
type TypeCount struct {
	Type  string `json:"question_type"`
	Count int    `json:"count"`
}

// SummarizeQuestionConfig decodes the question_type_summary of a raw
// question configuration and returns it with the total question count.
// A configuration without a summary yields an empty result.
func SummarizeQuestionConfig(raw json.RawMessage) ([]TypeCount, int) {
	if len(raw) == 0 {
		return nil, 0
	}
	var cfg struct {
		Summary []TypeCount `json:"question_type_summary"`
	}
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, 0
	}
	total := 0
	for _, tc := range cfg.Summary {
		total += tc.Count
	}
	return cfg.Summary, total
}

// SessionTTL is the token window, counted from token acquisition.
const SessionTTL = 30 * time.Minute

// Session is the persisted wizard state.
type Session struct {
	Token          string          `json:"token"`
	TokenExpiry    time.Time       `json:"tokenExpiry"`
	Step           Step            `json:"step"`
	Form           FormData        `json:"formData"`
	WorksheetID    string          `json:"worksheetId,omitempty"`
	Metadata       *Metadata       `json:"metadata,omitempty"`
	QuestionConfig json.RawMessage `json:"questionConfig,omitempty"`
	Worksheet      *Worksheet      `json:"worksheet,omitempty"`
	Boards         []CatalogItem   `json:"boards,omitempty"`
	Grades         []CatalogItem   `json:"grades,omitempty"`
	Subjects       []CatalogItem   `json:"subjects,omitempty"`
}

// Expired reports whether the session has no token or its token window has closed.
func (s *Session) Expired(now time.Time) bool {
	return s == nil || s.Token == "" || !now.Before(s.TokenExpiry)
}

// ExportRecord is one workbook written by the exporter.
type ExportRecord struct {
	ID          int64     `json:"id"`
	WorksheetID string    `json:"worksheet_id"`
	Filename    string    `json:"filename"`
	CreatedAt   time.Time `json:"created_at"`
}
