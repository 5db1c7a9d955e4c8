package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"

	"github.com/pavelanni/worksheetgen/internal/model"
)

// SubmitMetadataJob starts metadata generation and returns the job id.
func (c *Client) SubmitMetadataJob(ctx context.Context, token string, form model.FormData) (string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	fields := []struct{ name, value string }{
		{"board", form.Board},
		{"grade", form.Grade},
		{"subject", form.Subject},
		{"number_of_questions", strconv.Itoa(form.NumQuestions)},
	}
	for _, d := range []struct {
		name string
		dist map[string]int
	}{
		{"question_distribution", form.QuestionDist},
		{"difficulty_level_distribution", form.DifficultyDist},
		{"bloom_taxonomy_distribution", form.BloomDist},
	} {
		data, err := json.Marshal(d.dist)
		if err != nil {
			return "", fmt.Errorf("encode %s: %w", d.name, err)
		}
		fields = append(fields, struct{ name, value string }{d.name, string(data)})
	}
	if form.Section != "" {
		fields = append(fields, struct{ name, value string }{"section", form.Section})
	}
	if form.Topic != "" {
		fields = append(fields, struct{ name, value string }{"topic", form.Topic})
	}
	for _, f := range fields {
		if err := mw.WriteField(f.name, f.value); err != nil {
			return "", fmt.Errorf("write field %s: %w", f.name, err)
		}
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("close multipart body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/worksheet/v1/metadata", &buf)
	if err != nil {
		return "", fmt.Errorf("build metadata request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, raw, err := c.do(req, token)
	if err != nil {
		return "", err
	}
	if !ok(resp) {
		return "", &ValidationError{Op: "generate metadata", Status: resp.StatusCode, Message: errorMessage(raw)}
	}

	var body struct {
		Detail []struct {
			ID model.ID `json:"id"`
		} `json:"detail"`
	}
	if err := json.Unmarshal(raw, &body); err != nil || len(body.Detail) == 0 || body.Detail[0].ID == "" {
		// A 2xx without an id is treated like a rejected submission.
		return "", &ValidationError{Op: "generate metadata", Status: resp.StatusCode, Message: errorMessage(raw)}
	}
	return body.Detail[0].ID.String(), nil
}

// JobResult is one status check of a remote job.
type JobResult struct {
	Kind   model.JobKind
	Status string
	Data   json.RawMessage
}

// FetchJobStatus reads the current state of a job. A 404 is reported as
// ErrJobNotFound; a body without "data" yields a result with no status.
func (c *Client) FetchJobStatus(ctx context.Context, token string, kind model.JobKind, jobID string) (*JobResult, error) {
	path := "/worksheet/v1/" + string(kind) + "/" + url.PathEscape(jobID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("build %s status request: %w", kind, err)
	}
	resp, raw, err := c.do(req, token)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("%w: %s %s", ErrJobNotFound, kind, jobID)
	}
	if !ok(resp) {
		return nil, &ValidationError{Op: string(kind) + " status", Status: resp.StatusCode, Message: errorMessage(raw)}
	}

	var body struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		return nil, fmt.Errorf("%w: %s status: %v", ErrMalformedResponse, kind, err)
	}
	res := &JobResult{Kind: kind, Data: body.Data}
	if len(body.Data) > 0 && string(body.Data) != "null" {
		var st struct {
			Status string `json:"status"`
		}
		if err := json.Unmarshal(body.Data, &st); err != nil {
			return nil, fmt.Errorf("%w: %s status: %v", ErrMalformedResponse, kind, err)
		}
		res.Status = st.Status
	}
	return res, nil
}

// checkStatus classifies the status of a result: (true, nil) when completed,
// (false, nil) when in progress, ErrUnknownJobState otherwise.
func checkStatus(res *JobResult) (bool, error) {
	switch res.Status {
	case model.JobStatusCompleted:
		return true, nil
	case model.JobStatusInProgress:
		return false, nil
	default:
		return false, fmt.Errorf("%w: %s reported %q", ErrUnknownJobState, res.Kind, res.Status)
	}
}

// DecodeMetadata returns the metadata of a completed metadata job.
// Completion is the only requirement.
func DecodeMetadata(res *JobResult) (*model.Metadata, bool, error) {
	done, err := checkStatus(res)
	if !done || err != nil {
		return nil, false, err
	}
	var md model.Metadata
	if err := json.Unmarshal(res.Data, &md); err != nil {
		return nil, false, fmt.Errorf("%w: metadata: %v", ErrMalformedResponse, err)
	}
	return &md, true, nil
}

// DecodeQuestionConfig returns the question configuration of a completed
// question-config job. A completed job without a configuration is not done yet.
func DecodeQuestionConfig(res *JobResult) (json.RawMessage, bool, error) {
	done, err := checkStatus(res)
	if !done || err != nil {
		return nil, false, err
	}
	var body struct {
		QuestionConfiguration json.RawMessage `json:"question_configuration"`
	}
	if err := json.Unmarshal(res.Data, &body); err != nil {
		return nil, false, fmt.Errorf("%w: question config: %v", ErrMalformedResponse, err)
	}
	cfg := bytes.TrimSpace(body.QuestionConfiguration)
	if len(cfg) == 0 || string(cfg) == "null" {
		return nil, false, nil
	}
	return json.RawMessage(cfg), true, nil
}

// DecodeWorksheet returns the worksheet of a completed generation job. A
// completed job whose questions are missing or the "no questions generated"
// placeholder is not done yet.
func DecodeWorksheet(res *JobResult) (*model.Worksheet, bool, error) {
	done, err := checkStatus(res)
	if !done || err != nil {
		return nil, false, err
	}
	var ws model.Worksheet
	if err := json.Unmarshal(res.Data, &ws); err != nil {
		return nil, false, fmt.Errorf("%w: worksheet: %v", ErrMalformedResponse, err)
	}
	if !ws.HasQuestions() {
		return nil, false, nil
	}
	return &ws, true, nil
}
