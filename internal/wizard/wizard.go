// Package wizard drives the five-step worksheet generation workflow against
// the remote API and keeps the session store in sync with it.
package wizard

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/pavelanni/worksheetgen/internal/api"
	"github.com/pavelanni/worksheetgen/internal/model"
	"github.com/pavelanni/worksheetgen/internal/poller"
)

var (
	ErrInvalidTransition = errors.New("action not allowed at this step")
	ErrNotLoggedIn       = errors.New("not logged in")
	ErrBusy              = errors.New("a job is already running")
	ErrIncompleteForm    = errors.New("board, grade and subject are required")
)

// API is the part of the remote client the wizard uses.
type API interface {
	Login(ctx context.Context, username, password string) (string, error)
	ListBoards(ctx context.Context, token string) ([]model.CatalogItem, error)
	ListGrades(ctx context.Context, token, boardID string) ([]model.CatalogItem, error)
	ListSubjects(ctx context.Context, token, boardID, gradeID string) ([]model.CatalogItem, error)
	SubmitMetadataJob(ctx context.Context, token string, form model.FormData) (string, error)
	SubmitQuestionConfigJob(ctx context.Context, token, jobID string, subjectMatter, learningStandards json.RawMessage) error
	SubmitWorksheetJob(ctx context.Context, token, jobID string, questionConfig json.RawMessage) error
	FetchJobStatus(ctx context.Context, token string, kind model.JobKind, jobID string) (*api.JobResult, error)
}

// SessionStore persists the wizard session.
type SessionStore interface {
	SaveSession(ctx context.Context, sess *model.Session) error
	RestoreSession(ctx context.Context) (*model.Session, error)
	ClearSession(ctx context.Context) error
}

// transitions lists the allowed step changes. Returning to login is allowed
// from every step and handled separately.
var transitions = map[model.Step][]model.Step{
	model.StepLogin:           {model.StepConfigure},
	model.StepConfigure:       {model.StepReviewMetadata},
	model.StepReviewMetadata:  {model.StepReviewQuestions},
	model.StepReviewQuestions: {model.StepComplete},
	model.StepComplete:        {model.StepConfigure},
}

// CanTransition reports whether the wizard may move from one step to another.
func CanTransition(from, to model.Step) bool {
	if to == model.StepLogin {
		return true
	}
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Option configures a Controller.
type Option func(*Controller)

// WithPollConfig overrides the polling schedule of one job kind.
func WithPollConfig(kind model.JobKind, cfg poller.Config) Option {
	return func(c *Controller) { c.polls[kind] = cfg }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) { c.now = now }
}

// Controller owns the wizard session. All methods are safe for concurrent use.
type Controller struct {
	api   API
	store SessionStore
	polls map[model.JobKind]poller.Config
	now   func() time.Time

	baseCtx context.Context
	stop    context.CancelFunc
	wg      sync.WaitGroup

	mu     sync.Mutex
	sess   model.Session
	busy   bool
	slow   bool
	errMsg *Message
	notice *Message
	// gen is bumped whenever in-flight work becomes stale: logout, expiry,
	// create-another. Poll results carrying an older generation are dropped.
	gen        uint64
	cancelPoll context.CancelFunc
}

// New creates a controller at the login step.
func New(client API, store SessionStore, opts ...Option) *Controller {
	ctx, stop := context.WithCancel(context.Background())
	c := &Controller{
		api:   client,
		store: store,
		polls: map[model.JobKind]poller.Config{
			model.JobMetadata:       poller.DefaultConfig(model.JobMetadata),
			model.JobQuestionConfig: poller.DefaultConfig(model.JobQuestionConfig),
			model.JobWorksheet:      poller.DefaultConfig(model.JobWorksheet),
		},
		now:     time.Now,
		baseCtx: ctx,
		stop:    stop,
		sess:    freshSession(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func freshSession() model.Session {
	return model.Session{Step: model.StepLogin, Form: model.DefaultFormData()}
}

// Close cancels running polls and waits for them to return.
func (c *Controller) Close() {
	c.stop()
	c.wg.Wait()
}

// Wait blocks until no poll is running.
func (c *Controller) Wait() {
	c.wg.Wait()
}

// Expire tears the session down if token is still the current one. It is
// meant to be registered as the API client's expiry hook and must not be
// called with c.mu held.
func (c *Controller) Expire(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.expireLocked(token)
}

// expireLocked resets to the login step. Only the first call for a token
// has an effect.
func (c *Controller) expireLocked(token string) {
	if token == "" || token != c.sess.Token {
		return
	}
	slog.Info("session expired, returning to login", "step", c.sess.Step)
	c.resetLocked()
	c.errMsg = &Message{ID: MsgSessionExpired}
}

// resetLocked drops the session, cancels polls and clears the store.
func (c *Controller) resetLocked() {
	c.cancelPollLocked()
	c.gen++
	c.sess = freshSession()
	c.busy = false
	c.slow = false
	c.errMsg = nil
	c.notice = nil
	if err := c.store.ClearSession(context.Background()); err != nil {
		slog.Error("failed to clear session", "error", err)
	}
}

func (c *Controller) cancelPollLocked() {
	if c.cancelPoll != nil {
		c.cancelPoll()
		c.cancelPoll = nil
	}
}

// moveLocked validates and applies a step change.
func (c *Controller) moveLocked(to model.Step) error {
	if !CanTransition(c.sess.Step, to) {
		return ErrInvalidTransition
	}
	slog.Debug("wizard step", "from", c.sess.Step, "to", to)
	c.sess.Step = to
	return nil
}

// requireLocked checks that the wizard is logged in, idle, unexpired and at
// one of the given steps.
func (c *Controller) requireLocked(steps ...model.Step) error {
	if c.sess.Token == "" {
		return ErrNotLoggedIn
	}
	if c.sess.Expired(c.now()) {
		c.expireLocked(c.sess.Token)
		return api.ErrAuthExpired
	}
	if c.busy {
		return ErrBusy
	}
	for _, s := range steps {
		if c.sess.Step == s {
			return nil
		}
	}
	return ErrInvalidTransition
}

func (c *Controller) persistLocked() {
	if err := c.store.SaveSession(context.Background(), &c.sess); err != nil {
		slog.Error("failed to save session", "error", err)
	}
}

// failLocked records err as the current error message and returns it.
// Auth expiry tears the session down.
func (c *Controller) failLocked(token, msgID string, err error) error {
	var ve *api.ValidationError
	switch {
	case errors.Is(err, api.ErrAuthExpired):
		c.expireLocked(token)
	case errors.Is(err, api.ErrNetwork):
		c.errMsg = &Message{ID: MsgNetworkError}
	case errors.As(err, &ve):
		c.errMsg = &Message{ID: msgID, Detail: ve.Message}
	case errors.Is(err, context.Canceled):
	default:
		c.errMsg = &Message{ID: msgID, Detail: err.Error()}
	}
	return err
}

// stale reports whether work started under token and gen has been
// superseded by a logout, expiry or restart.
func (c *Controller) staleLocked(token string, gen uint64) bool {
	return c.gen != gen || c.sess.Token != token
}
