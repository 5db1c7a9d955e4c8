package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/pavelanni/worksheetgen/internal/api"
	appI18n "github.com/pavelanni/worksheetgen/internal/i18n"
	"github.com/pavelanni/worksheetgen/internal/model"
	"github.com/pavelanni/worksheetgen/internal/wizard"
)

// ExportLog records written workbooks.
type ExportLog interface {
	RecordExport(ctx context.Context, worksheetID, filename string) (int64, error)
	ListExports(ctx context.Context) ([]model.ExportRecord, error)
}

// Handler exposes the wizard as a JSON API.
type Handler struct {
	wizard     *wizard.Controller
	exports    ExportLog
	now        func() time.Time
	accessHash []byte
}

// Option configures a Handler.
type Option func(*Handler)

// WithAccessPassword requires every request to carry the password matching
// the given bcrypt hash.
func WithAccessPassword(hash []byte) Option {
	return func(h *Handler) { h.accessHash = hash }
}

// WithClock replaces time.Now for export file names.
func WithClock(now func() time.Time) Option {
	return func(h *Handler) { h.now = now }
}

// New creates a new Handler.
func New(w *wizard.Controller, exports ExportLog, opts ...Option) *Handler {
	h := &Handler{wizard: w, exports: exports, now: time.Now}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Routes registers all HTTP routes.
func (h *Handler) Routes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Use(h.requireAccess)
		r.Get("/state", h.handleState)
		r.Post("/login", h.handleLogin)
		r.Post("/logout", h.handleLogout)
		r.Get("/catalog/grades", h.handleGrades)
		r.Get("/catalog/subjects", h.handleSubjects)
		r.Put("/form", h.handleForm)
		r.Post("/metadata", h.handleSubmitConfiguration)
		r.Post("/question-config", h.handleConfirmMetadata)
		r.Post("/worksheet", h.handleGenerateWorksheet)
		r.Post("/restart", h.handleCreateAnother)
		r.Get("/export", h.handleExport)
		r.Get("/exports", h.handleExportHistory)
	})
}

type stateResponse struct {
	wizard.View
	ErrorText  string `json:"errorText,omitempty"`
	NoticeText string `json:"noticeText,omitempty"`
}

func (h *Handler) state(ctx context.Context) stateResponse {
	resp := stateResponse{View: h.wizard.State()}
	if m := resp.Error; m != nil {
		resp.ErrorText = appI18n.Message(ctx, m.ID, m.Detail)
	}
	if m := resp.Notice; m != nil {
		resp.NoticeText = appI18n.Message(ctx, m.ID, m.Detail)
	}
	return resp
}

func (h *Handler) handleState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.state(r.Context()))
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var creds struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&creds); err != nil || creds.Username == "" || creds.Password == "" {
		writeError(w, r, http.StatusBadRequest, wizard.MsgLoginFailed, "")
		return
	}
	if err := h.wizard.Login(r.Context(), creds.Username, creds.Password); err != nil {
		h.fail(w, r, err, wizard.MsgLoginFailed)
		return
	}
	writeJSON(w, http.StatusOK, h.state(r.Context()))
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	if err := h.wizard.Logout(r.Context()); err != nil {
		h.fail(w, r, err, "InternalError")
		return
	}
	writeJSON(w, http.StatusOK, h.state(r.Context()))
}

func (h *Handler) handleGrades(w http.ResponseWriter, r *http.Request) {
	board := r.URL.Query().Get("board")
	if board == "" {
		writeError(w, r, http.StatusBadRequest, wizard.MsgIncompleteForm, "")
		return
	}
	grades, err := h.wizard.LoadGrades(r.Context(), board)
	if err != nil {
		h.fail(w, r, err, wizard.MsgCatalogFailed)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(grades))
}

func (h *Handler) handleSubjects(w http.ResponseWriter, r *http.Request) {
	board, grade := r.URL.Query().Get("board"), r.URL.Query().Get("grade")
	if board == "" || grade == "" {
		writeError(w, r, http.StatusBadRequest, wizard.MsgIncompleteForm, "")
		return
	}
	subjects, err := h.wizard.LoadSubjects(r.Context(), board, grade)
	if err != nil {
		h.fail(w, r, err, wizard.MsgCatalogFailed)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(subjects))
}

func (h *Handler) handleForm(w http.ResponseWriter, r *http.Request) {
	var form model.FormData
	if err := json.NewDecoder(r.Body).Decode(&form); err != nil {
		writeError(w, r, http.StatusBadRequest, wizard.MsgIncompleteForm, err.Error())
		return
	}
	if err := h.wizard.UpdateForm(form); err != nil {
		h.fail(w, r, err, "InternalError")
		return
	}
	writeJSON(w, http.StatusOK, h.state(r.Context()))
}

func (h *Handler) handleSubmitConfiguration(w http.ResponseWriter, r *http.Request) {
	h.startJob(w, r, h.wizard.SubmitConfiguration, wizard.MsgMetadataFailed)
}

func (h *Handler) handleConfirmMetadata(w http.ResponseWriter, r *http.Request) {
	h.startJob(w, r, h.wizard.ConfirmMetadata, wizard.MsgQuestionConfigFailed)
}

func (h *Handler) handleGenerateWorksheet(w http.ResponseWriter, r *http.Request) {
	h.startJob(w, r, h.wizard.GenerateWorksheet, wizard.MsgWorksheetFailed)
}

// startJob runs an action that submits a remote job. The job is polled in
// the background; clients follow it through /api/state.
func (h *Handler) startJob(w http.ResponseWriter, r *http.Request, action func(context.Context) error, failID string) {
	if err := action(r.Context()); err != nil {
		h.fail(w, r, err, failID)
		return
	}
	writeJSON(w, http.StatusAccepted, h.state(r.Context()))
}

func (h *Handler) handleCreateAnother(w http.ResponseWriter, r *http.Request) {
	if err := h.wizard.CreateAnother(r.Context()); err != nil {
		h.fail(w, r, err, "InternalError")
		return
	}
	writeJSON(w, http.StatusOK, h.state(r.Context()))
}

// fail maps a wizard or API error to a status code and a localized message.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error, fallbackID string) {
	var ve *api.ValidationError
	switch {
	case errors.Is(err, api.ErrAuthExpired):
		writeError(w, r, http.StatusUnauthorized, wizard.MsgSessionExpired, "")
	case errors.Is(err, wizard.ErrNotLoggedIn):
		writeError(w, r, http.StatusUnauthorized, "NotLoggedIn", "")
	case errors.Is(err, wizard.ErrInvalidTransition), errors.Is(err, context.Canceled):
		writeError(w, r, http.StatusConflict, "InvalidTransition", "")
	case errors.Is(err, wizard.ErrBusy):
		writeError(w, r, http.StatusConflict, "Busy", "")
	case errors.Is(err, wizard.ErrIncompleteForm):
		writeError(w, r, http.StatusBadRequest, wizard.MsgIncompleteForm, "")
	case errors.Is(err, api.ErrNetwork):
		writeError(w, r, http.StatusBadGateway, wizard.MsgNetworkError, "")
	case errors.As(err, &ve):
		writeError(w, r, http.StatusBadRequest, fallbackID, ve.Message)
	default:
		slog.Error("request failed", "path", r.URL.Path, "error", err)
		writeError(w, r, http.StatusInternalServerError, fallbackID, "")
	}
}

func writeError(w http.ResponseWriter, r *http.Request, status int, msgID, detail string) {
	writeJSON(w, status, map[string]string{
		"error": appI18n.Message(r.Context(), msgID, detail),
		"code":  msgID,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encode response", "error", err)
	}
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
