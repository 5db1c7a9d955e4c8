package wizard

import (
	"time"

	"github.com/pavelanni/worksheetgen/internal/model"
)

// View is a read-only snapshot of the wizard.
type View struct {
	Step        model.Step `json:"step"`
	StepName    string     `json:"stepName"`
	LoggedIn    bool       `json:"loggedIn"`
	TokenExpiry time.Time  `json:"tokenExpiry,omitzero"`
	Busy        bool       `json:"busy"`
	Slow        bool       `json:"slow"`
	Error       *Message   `json:"error,omitempty"`
	Notice      *Message   `json:"notice,omitempty"`

	Form            model.FormData `json:"form"`
	DifficultyTotal int            `json:"difficultyTotal"`
	BloomTotal      int            `json:"bloomTotal"`
	QuestionTotal   int            `json:"questionTotal"`

	Boards   []model.CatalogItem `json:"boards"`
	Grades   []model.CatalogItem `json:"grades"`
	Subjects []model.CatalogItem `json:"subjects"`

	WorksheetID     string            `json:"worksheetId,omitempty"`
	Metadata        *model.Metadata   `json:"metadata,omitempty"`
	QuestionSummary []model.TypeCount `json:"questionSummary,omitempty"`
	ConfiguredTotal int               `json:"configuredTotal,omitempty"`
	HasWorksheet    bool              `json:"hasWorksheet"`
}

// State returns the current snapshot. An expired token is detected here too.
func (c *Controller) State() View {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sess.Token != "" && c.sess.Expired(c.now()) {
		c.expireLocked(c.sess.Token)
	}

	s := &c.sess
	v := View{
		Step:            s.Step,
		StepName:        s.Step.String(),
		LoggedIn:        s.Token != "",
		TokenExpiry:     s.TokenExpiry,
		Busy:            c.busy,
		Slow:            c.slow,
		Error:           c.errMsg,
		Notice:          c.notice,
		Form:            s.Form,
		DifficultyTotal: s.Form.DifficultyTotal(),
		BloomTotal:      s.Form.BloomTotal(),
		QuestionTotal:   s.Form.QuestionTotal(),
		Boards:          s.Boards,
		Grades:          s.Grades,
		Subjects:        s.Subjects,
		WorksheetID:     s.WorksheetID,
		Metadata:        s.Metadata,
		HasWorksheet:    s.Worksheet.HasQuestions(),
	}
	v.QuestionSummary, v.ConfiguredTotal = model.SummarizeQuestionConfig(s.QuestionConfig)
	return v
}

// Worksheet returns the generated worksheet once the wizard is complete.
func (c *Controller) Worksheet() (*model.Worksheet, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.requireLocked(model.StepComplete); err != nil {
		return nil, err
	}
	return c.sess.Worksheet, nil
}
