package wizard

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/pavelanni/worksheetgen/internal/api"
	"github.com/pavelanni/worksheetgen/internal/model"
)

// Login exchanges credentials for a token, moves to the configure step and
// loads the board catalog.
func (c *Controller) Login(ctx context.Context, username, password string) error {
	c.mu.Lock()
	if c.sess.Token != "" || c.sess.Step != model.StepLogin {
		c.mu.Unlock()
		return ErrInvalidTransition
	}
	if c.busy {
		c.mu.Unlock()
		return ErrBusy
	}
	c.busy = true
	c.errMsg, c.notice = nil, nil
	gen := c.gen
	c.mu.Unlock()

	token, err := c.api.Login(ctx, username, password)

	c.mu.Lock()
	if c.gen != gen {
		c.mu.Unlock()
		return staleErr(err)
	}
	c.busy = false
	if err != nil {
		defer c.mu.Unlock()
		slog.Info("login failed", "user", username, "error", err)
		return c.failLocked("", MsgLoginFailed, err)
	}
	c.sess = freshSession()
	c.sess.Token = token
	c.sess.TokenExpiry = c.now().Add(model.SessionTTL)
	if err := c.moveLocked(model.StepConfigure); err != nil {
		c.mu.Unlock()
		return err
	}
	c.notice = &Message{ID: MsgLoginSuccessful}
	c.persistLocked()
	c.mu.Unlock()

	slog.Info("logged in", "user", username)
	return c.loadBoards(ctx, token, gen)
}

func (c *Controller) loadBoards(ctx context.Context, token string, gen uint64) error {
	boards, err := c.api.ListBoards(ctx, token)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.staleLocked(token, gen) {
		return staleErr(err)
	}
	if err != nil {
		return c.failLocked(token, MsgCatalogFailed, err)
	}
	c.sess.Boards = boards
	c.persistLocked()
	return nil
}

// Logout drops the session and cancels any running poll.
func (c *Controller) Logout(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sess.Token != "" {
		slog.Info("logging out")
	}
	c.resetLocked()
	return nil
}

// LoadGrades selects a board and loads its grades. Changing the board clears
// the grade and subject selections.
func (c *Controller) LoadGrades(ctx context.Context, boardID string) ([]model.CatalogItem, error) {
	c.mu.Lock()
	if err := c.requireLocked(model.StepConfigure); err != nil {
		c.mu.Unlock()
		return nil, err
	}
	token, gen := c.sess.Token, c.gen
	c.mu.Unlock()

	grades, err := c.api.ListGrades(ctx, token, boardID)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.staleLocked(token, gen) {
		return nil, staleErr(err)
	}
	if err != nil {
		return nil, c.failLocked(token, MsgCatalogFailed, err)
	}
	if c.sess.Form.Board != boardID {
		c.sess.Form.Board = boardID
		c.sess.Form.Grade = ""
		c.sess.Form.Subject = ""
	}
	c.sess.Grades = grades
	c.sess.Subjects = nil
	c.persistLocked()
	return grades, nil
}

// LoadSubjects selects a board and grade and loads the grade's subjects.
func (c *Controller) LoadSubjects(ctx context.Context, boardID, gradeID string) ([]model.CatalogItem, error) {
	c.mu.Lock()
	if err := c.requireLocked(model.StepConfigure); err != nil {
		c.mu.Unlock()
		return nil, err
	}
	token, gen := c.sess.Token, c.gen
	c.mu.Unlock()

	subjects, err := c.api.ListSubjects(ctx, token, boardID, gradeID)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.staleLocked(token, gen) {
		return nil, staleErr(err)
	}
	if err != nil {
		return nil, c.failLocked(token, MsgCatalogFailed, err)
	}
	if c.sess.Form.Board != boardID || c.sess.Form.Grade != gradeID {
		if c.sess.Form.Board != boardID {
			c.sess.Grades = nil
		}
		c.sess.Form.Board = boardID
		c.sess.Form.Grade = gradeID
		c.sess.Form.Subject = ""
	}
	c.sess.Subjects = subjects
	c.persistLocked()
	return subjects, nil
}

// UpdateForm replaces the generation parameters. A board change clears the
// grade and subject unless they change too; a grade change clears the subject.
func (c *Controller) UpdateForm(form model.FormData) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.requireLocked(model.StepConfigure); err != nil {
		return err
	}
	old := c.sess.Form
	if form.Board != old.Board {
		if form.Grade == old.Grade {
			form.Grade = ""
		}
		c.sess.Grades = nil
		c.sess.Subjects = nil
	}
	if form.Grade != old.Grade {
		if form.Subject == old.Subject {
			form.Subject = ""
		}
		c.sess.Subjects = nil
	}
	c.sess.Form = form.Normalized()
	c.errMsg = nil
	c.persistLocked()
	return nil
}

// SubmitConfiguration starts the metadata job. Percentage totals that do not
// add up to 100 are logged but do not block submission.
func (c *Controller) SubmitConfiguration(ctx context.Context) error {
	c.mu.Lock()
	if err := c.requireLocked(model.StepConfigure); err != nil {
		c.mu.Unlock()
		return err
	}
	form := c.sess.Form.Normalized()
	if !form.Complete() {
		c.errMsg = &Message{ID: MsgIncompleteForm}
		c.mu.Unlock()
		return ErrIncompleteForm
	}
	if d, b := form.DifficultyTotal(), form.BloomTotal(); d != 100 || b != 100 {
		slog.Warn("distribution totals are not 100%", "difficulty", d, "bloom", b)
	}
	token, gen := c.sess.Token, c.gen
	c.busy = true
	c.errMsg = nil
	c.notice = &Message{ID: MsgMetadataStarted}
	c.mu.Unlock()

	jobID, err := c.api.SubmitMetadataJob(ctx, token, form)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.staleLocked(token, gen) {
		return staleErr(err)
	}
	if err != nil {
		c.busy = false
		c.notice = nil
		return c.failLocked(token, MsgMetadataFailed, err)
	}
	slog.Info("metadata job submitted", "job_id", jobID)
	c.sess.WorksheetID = jobID
	c.sess.Metadata = nil
	c.sess.QuestionConfig = nil
	c.sess.Worksheet = nil
	c.persistLocked()

	startPollLocked(c, token, model.JobMetadata, jobID, api.DecodeMetadata, MsgMetadataFailed,
		func(md *model.Metadata) error {
			c.sess.Metadata = md
			return c.moveLocked(model.StepReviewMetadata)
		})
	return nil
}

// ConfirmMetadata accepts the reviewed metadata and starts the
// question-config job.
func (c *Controller) ConfirmMetadata(ctx context.Context) error {
	c.mu.Lock()
	if err := c.requireLocked(model.StepReviewMetadata); err != nil {
		c.mu.Unlock()
		return err
	}
	md := c.sess.Metadata
	if md == nil || c.sess.WorksheetID == "" {
		c.mu.Unlock()
		return ErrInvalidTransition
	}
	token, gen, jobID := c.sess.Token, c.gen, c.sess.WorksheetID
	c.busy = true
	c.errMsg = nil
	c.notice = &Message{ID: MsgQuestionConfigSubmitted}
	c.mu.Unlock()

	err := c.api.SubmitQuestionConfigJob(ctx, token, jobID, md.SubjectMatter, md.LearningStandards)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.staleLocked(token, gen) {
		return staleErr(err)
	}
	if err != nil {
		c.busy = false
		c.notice = nil
		return c.failLocked(token, MsgQuestionConfigFailed, err)
	}
	slog.Info("question config job submitted", "job_id", jobID)

	startPollLocked(c, token, model.JobQuestionConfig, jobID, api.DecodeQuestionConfig, MsgQuestionConfigFailed,
		func(cfg json.RawMessage) error {
			c.sess.QuestionConfig = cfg
			return c.moveLocked(model.StepReviewQuestions)
		})
	return nil
}

// GenerateWorksheet sends the reviewed question configuration and starts
// the worksheet job.
func (c *Controller) GenerateWorksheet(ctx context.Context) error {
	c.mu.Lock()
	if err := c.requireLocked(model.StepReviewQuestions); err != nil {
		c.mu.Unlock()
		return err
	}
	if len(c.sess.QuestionConfig) == 0 || c.sess.WorksheetID == "" {
		c.mu.Unlock()
		return ErrInvalidTransition
	}
	token, gen, jobID := c.sess.Token, c.gen, c.sess.WorksheetID
	cfg := c.sess.QuestionConfig
	c.busy = true
	c.errMsg = nil
	c.notice = &Message{ID: MsgWorksheetStarted}
	c.mu.Unlock()

	err := c.api.SubmitWorksheetJob(ctx, token, jobID, cfg)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.staleLocked(token, gen) {
		return staleErr(err)
	}
	if err != nil {
		c.busy = false
		c.notice = nil
		return c.failLocked(token, MsgWorksheetFailed, err)
	}
	slog.Info("worksheet job submitted", "job_id", jobID)

	startPollLocked(c, token, model.JobWorksheet, jobID, api.DecodeWorksheet, MsgWorksheetFailed,
		func(ws *model.Worksheet) error {
			c.sess.Worksheet = ws
			if err := c.moveLocked(model.StepComplete); err != nil {
				return err
			}
			c.notice = &Message{ID: MsgWorksheetReady}
			return nil
		})
	return nil
}

// CreateAnother starts a new configuration from the complete step. The form,
// login and catalogs are kept; job results are dropped. The token is checked
// again here and an expired one ends the session instead.
func (c *Controller) CreateAnother(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.requireLocked(model.StepComplete); err != nil {
		return err
	}
	c.cancelPollLocked()
	c.gen++
	c.sess.WorksheetID = ""
	c.sess.Metadata = nil
	c.sess.QuestionConfig = nil
	c.sess.Worksheet = nil
	if err := c.moveLocked(model.StepConfigure); err != nil {
		return err
	}
	c.errMsg, c.notice = nil, nil
	c.persistLocked()
	return nil
}

// Restore loads the persisted session. Without a usable session the wizard
// stays at the login step. Boards are reloaded when the saved list is empty.
func (c *Controller) Restore(ctx context.Context) error {
	sess, err := c.store.RestoreSession(ctx)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.cancelPollLocked()
	c.gen++
	c.busy, c.slow = false, false
	c.errMsg, c.notice = nil, nil
	if sess == nil || sess.Expired(c.now()) {
		c.sess = freshSession()
		c.mu.Unlock()
		return nil
	}
	c.sess = *sess
	c.sess.Form = c.sess.Form.Normalized()
	c.sess.Step = settledStep(&c.sess)
	token, gen := c.sess.Token, c.gen
	needBoards := len(c.sess.Boards) == 0
	c.mu.Unlock()

	slog.Info("session restored", "step", sess.Step, "expires_at", sess.TokenExpiry)
	if needBoards {
		return c.loadBoards(ctx, token, gen)
	}
	return nil
}

// settledStep returns the furthest step the session's data supports. A job
// that was running when the session was saved is not resumed.
func settledStep(s *model.Session) model.Step {
	step := s.Step
	if step < model.StepConfigure {
		step = model.StepConfigure
	}
	if step >= model.StepComplete && !s.Worksheet.HasQuestions() {
		step = model.StepReviewQuestions
	}
	if step >= model.StepReviewQuestions && len(s.QuestionConfig) == 0 {
		step = model.StepReviewMetadata
	}
	if step >= model.StepReviewMetadata && s.Metadata == nil {
		step = model.StepConfigure
	}
	return step
}

// staleErr is returned by calls whose session was superseded while they
// waited on the API.
func staleErr(err error) error {
	if err != nil {
		return err
	}
	return context.Canceled
}
