package wizard

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pavelanni/worksheetgen/internal/api"
	"github.com/pavelanni/worksheetgen/internal/model"
	"github.com/pavelanni/worksheetgen/internal/poller"
	"github.com/pavelanni/worksheetgen/internal/store"
)

// fakeAPI answers like the remote service. Job statuses come from
// statusFn; expired makes every authenticated call fail with a 401.
type fakeAPI struct {
	mu       sync.Mutex
	fetches  map[model.JobKind]int
	statusFn func(kind model.JobKind, n int) (*api.JobResult, error)
	expired  atomic.Bool
	// gradesGate, when set, blocks ListGrades until it is closed.
	gradesGate    chan struct{}
	gradesEntered sync.WaitGroup
	loginErr      error
	submitted     []model.FormData
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{fetches: map[model.JobKind]int{}}
}

func (f *fakeAPI) Login(ctx context.Context, username, password string) (string, error) {
	if f.loginErr != nil {
		return "", f.loginErr
	}
	return "tok-" + username, nil
}

func (f *fakeAPI) ListBoards(ctx context.Context, token string) ([]model.CatalogItem, error) {
	if f.expired.Load() {
		return nil, api.ErrAuthExpired
	}
	return []model.CatalogItem{{ID: "1", Name: "CBSE"}}, nil
}

func (f *fakeAPI) ListGrades(ctx context.Context, token, boardID string) ([]model.CatalogItem, error) {
	if f.gradesGate != nil {
		f.gradesEntered.Done()
		<-f.gradesGate
	}
	if f.expired.Load() {
		return nil, api.ErrAuthExpired
	}
	return []model.CatalogItem{{ID: "7", Name: "Grade 7"}}, nil
}

func (f *fakeAPI) ListSubjects(ctx context.Context, token, boardID, gradeID string) ([]model.CatalogItem, error) {
	if f.expired.Load() {
		return nil, api.ErrAuthExpired
	}
	return []model.CatalogItem{{ID: "3", Name: "Science"}}, nil
}

func (f *fakeAPI) SubmitMetadataJob(ctx context.Context, token string, form model.FormData) (string, error) {
	if f.expired.Load() {
		return "", api.ErrAuthExpired
	}
	f.mu.Lock()
	f.submitted = append(f.submitted, form)
	f.mu.Unlock()
	return "job-1", nil
}

func (f *fakeAPI) SubmitQuestionConfigJob(ctx context.Context, token, jobID string, sm, ls json.RawMessage) error {
	if f.expired.Load() {
		return api.ErrAuthExpired
	}
	return nil
}

func (f *fakeAPI) SubmitWorksheetJob(ctx context.Context, token, jobID string, cfg json.RawMessage) error {
	if f.expired.Load() {
		return api.ErrAuthExpired
	}
	return nil
}

func (f *fakeAPI) FetchJobStatus(ctx context.Context, token string, kind model.JobKind, jobID string) (*api.JobResult, error) {
	if f.expired.Load() {
		return nil, api.ErrAuthExpired
	}
	f.mu.Lock()
	f.fetches[kind]++
	n := f.fetches[kind]
	fn := f.statusFn
	f.mu.Unlock()
	if fn == nil {
		return completed(kind), nil
	}
	return fn(kind, n)
}

func (f *fakeAPI) fetchCount(kind model.JobKind) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fetches[kind]
}

func jobResult(kind model.JobKind, status, data string) *api.JobResult {
	return &api.JobResult{Kind: kind, Status: status, Data: json.RawMessage(data)}
}

func completed(kind model.JobKind) *api.JobResult {
	switch kind {
	case model.JobMetadata:
		return jobResult(kind, model.JobStatusCompleted,
			`{"status":"Completed","topic":"Plants","subject":{"id":3,"name":"Science"},"subject_matter":{"unit":"Plants"}}`)
	case model.JobQuestionConfig:
		return jobResult(kind, model.JobStatusCompleted,
			`{"status":"Completed","question_configuration":{"question_type_summary":[{"question_type":"short_answer","count":2}]}}`)
	default:
		return jobResult(kind, model.JobStatusCompleted,
			`{"status":"Completed","topic":"Plants","questions":{"short_answer":[{"question":"Why?","answer":"Light"}]}}`)
	}
}

// memStore is an in-memory SessionStore that counts clears.
type memStore struct {
	mu     sync.Mutex
	sess   *model.Session
	saves  int
	clears int
}

func (m *memStore) SaveSession(ctx context.Context, s *model.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s.Token == "" {
		return nil
	}
	data, _ := json.Marshal(s)
	var cp model.Session
	json.Unmarshal(data, &cp)
	m.sess = &cp
	m.saves++
	return nil
}

func (m *memStore) RestoreSession(ctx context.Context) (*model.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sess, nil
}

func (m *memStore) ClearSession(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sess = nil
	m.clears++
	return nil
}

func (m *memStore) saved() *model.Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sess
}

func (m *memStore) clearCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.clears
}

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func fastPolls(maxAttempts int) []Option {
	cfg := poller.Config{
		InitialDelay: time.Millisecond,
		Interval:     time.Millisecond,
		MaxInterval:  2 * time.Millisecond,
		Multiplier:   1.5,
		MaxAttempts:  maxAttempts,
		SlowAfter:    3,
	}
	return []Option{
		WithPollConfig(model.JobMetadata, cfg),
		WithPollConfig(model.JobQuestionConfig, cfg),
		WithPollConfig(model.JobWorksheet, cfg),
	}
}

func newTestController(t *testing.T, f *fakeAPI, st SessionStore, opts ...Option) (*Controller, *testClock) {
	t.Helper()
	clock := &testClock{t: time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)}
	opts = append(append(fastPolls(20), WithClock(clock.now)), opts...)
	c := New(f, st, opts...)
	t.Cleanup(c.Close)
	return c, clock
}

// configured logs in and fills the form so the metadata job can be submitted.
func configured(t *testing.T, c *Controller) {
	t.Helper()
	ctx := context.Background()
	if err := c.Login(ctx, "alice", "pw"); err != nil {
		t.Fatalf("Login: %v", err)
	}
	if _, err := c.LoadGrades(ctx, "1"); err != nil {
		t.Fatalf("LoadGrades: %v", err)
	}
	if _, err := c.LoadSubjects(ctx, "1", "7"); err != nil {
		t.Fatalf("LoadSubjects: %v", err)
	}
	form := c.State().Form
	form.Subject = "3"
	form.Topic = "Plants"
	if err := c.UpdateForm(form); err != nil {
		t.Fatalf("UpdateForm: %v", err)
	}
}

func TestTransitionTable(t *testing.T) {
	tests := []struct {
		from, to model.Step
		want     bool
	}{
		{model.StepLogin, model.StepConfigure, true},
		{model.StepConfigure, model.StepReviewMetadata, true},
		{model.StepReviewMetadata, model.StepReviewQuestions, true},
		{model.StepReviewQuestions, model.StepComplete, true},
		{model.StepComplete, model.StepConfigure, true},
		{model.StepReviewQuestions, model.StepLogin, true},
		{model.StepConfigure, model.StepReviewQuestions, false},
		{model.StepReviewMetadata, model.StepConfigure, false},
		{model.StepLogin, model.StepComplete, false},
		{model.StepComplete, model.StepReviewMetadata, false},
	}
	for _, tt := range tests {
		t.Run(tt.from.String()+"->"+tt.to.String(), func(t *testing.T) {
			if got := CanTransition(tt.from, tt.to); got != tt.want {
				t.Errorf("CanTransition(%v, %v) = %v, want %v", tt.from, tt.to, got, tt.want)
			}
		})
	}
}

func TestFullWorkflow(t *testing.T) {
	ctx := context.Background()
	f := newFakeAPI()
	st := &memStore{}
	c, _ := newTestController(t, f, st)

	configured(t, c)
	v := c.State()
	if v.Step != model.StepConfigure || len(v.Boards) != 1 || len(v.Subjects) != 1 {
		t.Fatalf("unexpected state after configure: %+v", v)
	}
	if v.Notice == nil || v.Notice.ID != MsgLoginSuccessful {
		t.Errorf("notice = %+v", v.Notice)
	}

	if err := c.SubmitConfiguration(ctx); err != nil {
		t.Fatalf("SubmitConfiguration: %v", err)
	}
	c.Wait()
	v = c.State()
	if v.Step != model.StepReviewMetadata || v.Metadata == nil || v.Metadata.Topic != "Plants" {
		t.Fatalf("expected metadata review, got step %v metadata %+v", v.Step, v.Metadata)
	}

	if err := c.ConfirmMetadata(ctx); err != nil {
		t.Fatalf("ConfirmMetadata: %v", err)
	}
	c.Wait()
	v = c.State()
	if v.Step != model.StepReviewQuestions || v.ConfiguredTotal != 2 {
		t.Fatalf("expected question review, got step %v total %d", v.Step, v.ConfiguredTotal)
	}

	if err := c.GenerateWorksheet(ctx); err != nil {
		t.Fatalf("GenerateWorksheet: %v", err)
	}
	c.Wait()
	v = c.State()
	if v.Step != model.StepComplete || !v.HasWorksheet {
		t.Fatalf("expected complete, got step %v", v.Step)
	}
	ws, err := c.Worksheet()
	if err != nil {
		t.Fatalf("Worksheet: %v", err)
	}
	if len(ws.QuestionsOf(model.ShortAnswer)) != 1 {
		t.Errorf("worksheet questions = %+v", ws.Questions)
	}
	if saved := st.saved(); saved == nil || saved.Step != model.StepComplete {
		t.Errorf("store not updated after completion: %+v", saved)
	}

	if err := c.CreateAnother(ctx); err != nil {
		t.Fatalf("CreateAnother: %v", err)
	}
	v = c.State()
	if v.Step != model.StepConfigure {
		t.Errorf("step = %v, want configure", v.Step)
	}
	if v.Form.Topic != "Plants" || v.Form.Subject != "3" {
		t.Errorf("form should be kept, got %+v", v.Form)
	}
	if v.Metadata != nil || v.HasWorksheet || v.WorksheetID != "" {
		t.Error("job results should be cleared")
	}
	if !v.LoggedIn || len(v.Boards) != 1 {
		t.Error("login and catalogs should be kept")
	}
}

func TestRestoreExpiredSessionStaysAtLogin(t *testing.T) {
	ctx := context.Background()
	st, err := store.New(":memory:")
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	defer st.Close()
	clock := &testClock{t: time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)}
	st.SetClock(clock.now)

	sess := &model.Session{
		Token:       "tok-old",
		TokenExpiry: clock.now().Add(model.SessionTTL),
		Step:        model.StepReviewMetadata,
		Form:        model.DefaultFormData(),
		Metadata:    &model.Metadata{Topic: "Plants"},
	}
	if err := st.SaveSession(ctx, sess); err != nil {
		t.Fatalf("SaveSession: %v", err)
	}
	clock.advance(model.SessionTTL)

	c := New(newFakeAPI(), st, WithClock(clock.now))
	defer c.Close()
	if err := c.Restore(ctx); err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if v := c.State(); v.Step != model.StepLogin || v.LoggedIn {
		t.Errorf("expected login step, got %+v", v)
	}
	has, err := st.HasSession(ctx)
	if err != nil {
		t.Fatalf("HasSession: %v", err)
	}
	if has {
		t.Error("expired session should be cleared from storage")
	}
}

func TestRestoreReloadsBoards(t *testing.T) {
	ctx := context.Background()
	st := &memStore{}
	c, clock := newTestController(t, newFakeAPI(), st)
	st.sess = &model.Session{
		Token:       "tok-a",
		TokenExpiry: clock.now().Add(10 * time.Minute),
		Step:        model.StepReviewQuestions,
		Form:        model.DefaultFormData(),
		Metadata:    &model.Metadata{Topic: "Plants"},
		WorksheetID: "job-1",
	}

	if err := c.Restore(ctx); err != nil {
		t.Fatalf("Restore: %v", err)
	}
	v := c.State()
	if len(v.Boards) != 1 {
		t.Errorf("boards should be reloaded, got %+v", v.Boards)
	}
	// No question config was saved, so the wizard settles on metadata review.
	if v.Step != model.StepReviewMetadata {
		t.Errorf("step = %v, want review-metadata", v.Step)
	}
}

func TestInProgressNeverAdvances(t *testing.T) {
	ctx := context.Background()
	f := newFakeAPI()
	f.statusFn = func(kind model.JobKind, n int) (*api.JobResult, error) {
		return jobResult(kind, model.JobStatusInProgress, `{"status":"In Progress"}`), nil
	}
	c, _ := newTestController(t, f, &memStore{}, fastPolls(8)...)
	configured(t, c)

	if err := c.SubmitConfiguration(ctx); err != nil {
		t.Fatalf("SubmitConfiguration: %v", err)
	}
	if v := c.State(); !v.Busy {
		t.Error("wizard should be busy while polling")
	}
	c.Wait()

	v := c.State()
	if v.Step != model.StepConfigure {
		t.Errorf("step = %v, want configure", v.Step)
	}
	if got := f.fetchCount(model.JobMetadata); got != 8 {
		t.Errorf("status checks = %d, want 8", got)
	}
	if v.Busy {
		t.Error("wizard should be idle after giving up")
	}
	if v.Error == nil || v.Error.ID != MsgPollGaveUp {
		t.Errorf("error = %+v, want %s", v.Error, MsgPollGaveUp)
	}
}

func TestSlowJobIsFlagged(t *testing.T) {
	ctx := context.Background()
	f := newFakeAPI()
	slowSeen := make(chan View, 1)
	var c *Controller
	f.statusFn = func(kind model.JobKind, n int) (*api.JobResult, error) {
		if n == 5 {
			// Past SlowAfter; the flag is set and still visible.
			slowSeen <- c.State()
			return completed(kind), nil
		}
		return jobResult(kind, model.JobStatusInProgress, `{"status":"In Progress"}`), nil
	}
	c, _ = newTestController(t, f, &memStore{})
	configured(t, c)

	if err := c.SubmitConfiguration(ctx); err != nil {
		t.Fatalf("SubmitConfiguration: %v", err)
	}
	c.Wait()
	v := <-slowSeen
	if !v.Slow || v.Notice == nil || v.Notice.ID != MsgStillProcessing {
		t.Errorf("expected slow notice while polling, got slow=%v notice=%+v", v.Slow, v.Notice)
	}
	if after := c.State(); after.Slow || after.Step != model.StepReviewMetadata {
		t.Errorf("after completion: slow=%v step=%v", after.Slow, after.Step)
	}
}

func TestConcurrentAuthExpiryTearsDownOnce(t *testing.T) {
	ctx := context.Background()
	f := newFakeAPI()
	st := &memStore{}
	c, _ := newTestController(t, f, st)
	if err := c.Login(ctx, "alice", "pw"); err != nil {
		t.Fatalf("Login: %v", err)
	}

	const callers = 5
	f.gradesGate = make(chan struct{})
	f.gradesEntered.Add(callers)
	f.expired.Store(true)

	errs := make(chan error, callers)
	for range callers {
		go func() {
			_, err := c.LoadGrades(ctx, "1")
			errs <- err
		}()
	}
	f.gradesEntered.Wait()
	close(f.gradesGate)

	for range callers {
		if err := <-errs; !errors.Is(err, api.ErrAuthExpired) {
			t.Errorf("expected ErrAuthExpired, got %v", err)
		}
	}
	if got := st.clearCount(); got != 1 {
		t.Errorf("session cleared %d times, want 1", got)
	}
	v := c.State()
	if v.Step != model.StepLogin || v.LoggedIn {
		t.Errorf("expected login step, got %+v", v)
	}
	if v.Error == nil || v.Error.ID != MsgSessionExpired {
		t.Errorf("error = %+v, want %s", v.Error, MsgSessionExpired)
	}

	// The client hook arriving late for the same token is a no-op.
	c.Expire("tok-alice")
	if got := st.clearCount(); got != 1 {
		t.Errorf("late expiry cleared again: %d", got)
	}
}

func TestAuthExpiryDuringPoll(t *testing.T) {
	ctx := context.Background()
	f := newFakeAPI()
	st := &memStore{}
	f.statusFn = func(kind model.JobKind, n int) (*api.JobResult, error) {
		if n == 2 {
			f.expired.Store(true)
		}
		return jobResult(kind, model.JobStatusInProgress, `{"status":"In Progress"}`), nil
	}
	c, _ := newTestController(t, f, st)
	configured(t, c)

	if err := c.SubmitConfiguration(ctx); err != nil {
		t.Fatalf("SubmitConfiguration: %v", err)
	}
	c.Wait()

	v := c.State()
	if v.Step != model.StepLogin || v.Busy {
		t.Errorf("expected idle login step, got step %v busy %v", v.Step, v.Busy)
	}
	if st.saved() != nil {
		t.Error("store should be cleared")
	}
	if got := f.fetchCount(model.JobMetadata); got != 2 {
		t.Errorf("polling should stop at the 401, checks = %d", got)
	}
}

func TestLogoutCancelsPoll(t *testing.T) {
	ctx := context.Background()
	f := newFakeAPI()
	f.statusFn = func(kind model.JobKind, n int) (*api.JobResult, error) {
		return jobResult(kind, model.JobStatusInProgress, `{"status":"In Progress"}`), nil
	}
	slow := poller.Config{InitialDelay: time.Hour, Interval: time.Hour, Multiplier: 1, MaxAttempts: 1}
	c, _ := newTestController(t, f, &memStore{}, WithPollConfig(model.JobMetadata, slow))
	configured(t, c)

	if err := c.SubmitConfiguration(ctx); err != nil {
		t.Fatalf("SubmitConfiguration: %v", err)
	}
	if err := c.Logout(ctx); err != nil {
		t.Fatalf("Logout: %v", err)
	}

	done := make(chan struct{})
	go func() {
		c.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("poll was not cancelled by logout")
	}

	v := c.State()
	if v.Step != model.StepLogin || v.Busy || v.Error != nil {
		t.Errorf("unexpected state after logout: %+v", v)
	}
	if got := f.fetchCount(model.JobMetadata); got != 0 {
		t.Errorf("cancelled poll still checked %d times", got)
	}
}

func TestStalePollResultIsDropped(t *testing.T) {
	ctx := context.Background()
	f := newFakeAPI()
	release := make(chan struct{})
	entered := make(chan struct{})
	f.statusFn = func(kind model.JobKind, n int) (*api.JobResult, error) {
		close(entered)
		<-release
		return completed(kind), nil
	}
	c, _ := newTestController(t, f, &memStore{})
	configured(t, c)

	if err := c.SubmitConfiguration(ctx); err != nil {
		t.Fatalf("SubmitConfiguration: %v", err)
	}
	<-entered
	if err := c.Logout(ctx); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	if err := c.Login(ctx, "bob", "pw"); err != nil {
		t.Fatalf("Login: %v", err)
	}
	close(release)
	c.Wait()

	v := c.State()
	if v.Step != model.StepConfigure || v.Metadata != nil {
		t.Errorf("late result from the old session was applied: step %v metadata %+v", v.Step, v.Metadata)
	}
}

func TestInvalidTransitions(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestController(t, newFakeAPI(), &memStore{})

	if err := c.SubmitConfiguration(ctx); !errors.Is(err, ErrNotLoggedIn) {
		t.Errorf("SubmitConfiguration before login: %v", err)
	}
	configured(t, c)

	tests := []struct {
		name string
		fn   func() error
	}{
		{"confirm metadata at configure", func() error { return c.ConfirmMetadata(ctx) }},
		{"generate at configure", func() error { return c.GenerateWorksheet(ctx) }},
		{"create another at configure", func() error { return c.CreateAnother(ctx) }},
		{"login twice", func() error { return c.Login(ctx, "alice", "pw") }},
		{"worksheet before complete", func() error { _, err := c.Worksheet(); return err }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.fn(); !errors.Is(err, ErrInvalidTransition) {
				t.Errorf("expected ErrInvalidTransition, got %v", err)
			}
		})
	}
	if v := c.State(); v.Step != model.StepConfigure {
		t.Errorf("invalid actions changed the step to %v", v.Step)
	}
}

func TestDistributionTotalsDoNotBlockSubmission(t *testing.T) {
	ctx := context.Background()
	f := newFakeAPI()
	c, _ := newTestController(t, f, &memStore{})
	configured(t, c)

	form := c.State().Form
	form.DifficultyDist = map[string]int{"easy": 10, "medium": 10, "hard": 10}
	form.BloomDist = map[string]int{"remember": 150}
	if err := c.UpdateForm(form); err != nil {
		t.Fatalf("UpdateForm: %v", err)
	}
	v := c.State()
	if v.DifficultyTotal != 30 || v.BloomTotal != 150 {
		t.Errorf("totals = %d/%d, want 30/150", v.DifficultyTotal, v.BloomTotal)
	}

	if err := c.SubmitConfiguration(ctx); err != nil {
		t.Fatalf("SubmitConfiguration: %v", err)
	}
	c.Wait()
	if len(f.submitted) != 1 || f.submitted[0].DifficultyDist["easy"] != 10 {
		t.Errorf("submitted = %+v", f.submitted)
	}
	if v := c.State(); v.Step != model.StepReviewMetadata {
		t.Errorf("step = %v, want review-metadata", v.Step)
	}
}

func TestIncompleteFormIsRejected(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestController(t, newFakeAPI(), &memStore{})
	if err := c.Login(ctx, "alice", "pw"); err != nil {
		t.Fatalf("Login: %v", err)
	}
	if err := c.SubmitConfiguration(ctx); !errors.Is(err, ErrIncompleteForm) {
		t.Fatalf("expected ErrIncompleteForm, got %v", err)
	}
	if v := c.State(); v.Error == nil || v.Error.ID != MsgIncompleteForm {
		t.Errorf("error = %+v", v.Error)
	}
}

func TestUpdateFormClearsDependentSelections(t *testing.T) {
	c, _ := newTestController(t, newFakeAPI(), &memStore{})
	configured(t, c)

	form := c.State().Form
	form.Board = "2"
	if err := c.UpdateForm(form); err != nil {
		t.Fatalf("UpdateForm: %v", err)
	}
	v := c.State()
	if v.Form.Grade != "" || v.Form.Subject != "" {
		t.Errorf("grade and subject should be cleared, got %+v", v.Form)
	}
	if len(v.Grades) != 0 || len(v.Subjects) != 0 {
		t.Error("dependent catalogs should be cleared")
	}
}

func TestWorksheetPlaceholderKeepsPolling(t *testing.T) {
	ctx := context.Background()
	f := newFakeAPI()
	f.statusFn = func(kind model.JobKind, n int) (*api.JobResult, error) {
		if kind == model.JobWorksheet && n == 1 {
			return jobResult(kind, model.JobStatusCompleted,
				`{"status":"Completed","questions":{"msg":"No questions generated."}}`), nil
		}
		return completed(kind), nil
	}
	c, _ := newTestController(t, f, &memStore{})
	configured(t, c)

	for _, step := range []func(context.Context) error{c.SubmitConfiguration, c.ConfirmMetadata, c.GenerateWorksheet} {
		if err := step(ctx); err != nil {
			t.Fatalf("step: %v", err)
		}
		c.Wait()
	}
	if v := c.State(); v.Step != model.StepComplete {
		t.Fatalf("step = %v, want complete", v.Step)
	}
	if got := f.fetchCount(model.JobWorksheet); got != 2 {
		t.Errorf("worksheet checks = %d, want 2", got)
	}
}

func TestCreateAnotherWithExpiredToken(t *testing.T) {
	ctx := context.Background()
	st := &memStore{}
	c, clock := newTestController(t, newFakeAPI(), st)
	configured(t, c)
	for _, step := range []func(context.Context) error{c.SubmitConfiguration, c.ConfirmMetadata, c.GenerateWorksheet} {
		if err := step(ctx); err != nil {
			t.Fatalf("step: %v", err)
		}
		c.Wait()
	}

	clock.advance(model.SessionTTL + time.Second)
	if err := c.CreateAnother(ctx); !errors.Is(err, api.ErrAuthExpired) {
		t.Fatalf("expected ErrAuthExpired, got %v", err)
	}
	v := c.State()
	if v.Step != model.StepLogin || v.Error == nil || v.Error.ID != MsgSessionExpired {
		t.Errorf("expected teardown, got step %v error %+v", v.Step, v.Error)
	}
	if st.saved() != nil {
		t.Error("store should be cleared")
	}
}

func TestLoginFailure(t *testing.T) {
	ctx := context.Background()
	f := newFakeAPI()
	f.loginErr = &api.ValidationError{Op: "login", Status: 401, Message: "Incorrect username or password"}
	c, _ := newTestController(t, f, &memStore{})

	if err := c.Login(ctx, "alice", "bad"); err == nil {
		t.Fatal("expected login error")
	}
	v := c.State()
	if v.Step != model.StepLogin || v.Busy {
		t.Errorf("unexpected state %+v", v)
	}
	if v.Error == nil || v.Error.ID != MsgLoginFailed || v.Error.Detail != "Incorrect username or password" {
		t.Errorf("error = %+v", v.Error)
	}

	f.loginErr = api.ErrNetwork
	c.Login(ctx, "alice", "pw")
	if v := c.State(); v.Error == nil || v.Error.ID != MsgNetworkError {
		t.Errorf("error = %+v, want %s", v.Error, MsgNetworkError)
	}
}
