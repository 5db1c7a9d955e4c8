package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNetwork means the request never completed: no response was received
	// or its body could not be read.
	ErrNetwork = errors.New("network error")
	// ErrAuthExpired means the API answered 401 to an authenticated call.
	ErrAuthExpired = errors.New("session expired")
	// ErrJobNotFound means a job status endpoint answered 404.
	ErrJobNotFound = errors.New("job not found")
	// ErrUnknownJobState means a job reported a status other than
	// in-progress or completed.
	ErrUnknownJobState = errors.New("unknown job state")
	// ErrMalformedResponse means a 2xx body did not have the expected shape.
	ErrMalformedResponse = errors.New("malformed response")
)

// ValidationError is a non-success, non-401 answer. Message is the
// server-provided text, empty when the body carried none.
type ValidationError struct {
	Op      string
	Status  int
	Message string
}

func (e *ValidationError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}
	return fmt.Sprintf("%s failed (%d)", e.Op, e.Status)
}

// errorBody covers the two error shapes the API uses:
// {"message": "..."} and {"detail": [{"msg": "..."}]} (or a plain detail string).
type errorBody struct {
	Message string          `json:"message"`
	Detail  json.RawMessage `json:"detail"`
}

func errorMessage(raw []byte) string {
	var body errorBody
	if err := json.Unmarshal(raw, &body); err != nil {
		return ""
	}
	if msg := strings.TrimSpace(body.Message); msg != "" {
		return msg
	}
	if len(body.Detail) == 0 {
		return ""
	}
	var details []struct {
		Msg string `json:"msg"`
	}
	if err := json.Unmarshal(body.Detail, &details); err == nil {
		if len(details) > 0 {
			return strings.TrimSpace(details[0].Msg)
		}
		return ""
	}
	var detail string
	if err := json.Unmarshal(body.Detail, &detail); err == nil {
		return strings.TrimSpace(detail)
	}
	return ""
}
