package tools

import (
	"encoding/json"
	"errors"
)

// Status tags a tool result.
type Status string

const (
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

// Result is the outcome of one tool call. It is always produced.
type Result struct {
	Tool    string
	Status  Status
	Payload any
	Error   string
	// Hint is a "did you mean" suggestion for unknown tool names.
	Hint string
	// Err is the typed cause behind Error, for errors.As checks.
	Err error
}

// Success builds a success result.
func Success(tool string, payload any) Result {
	return Result{Tool: tool, Status: StatusSuccess, Payload: payload}
}

// Failure builds an error result from err.
func Failure(tool string, err error) Result {
	return Result{Tool: tool, Status: StatusError, Error: err.Error(), Err: err}
}

// OK reports whether the call succeeded.
func (r Result) OK() bool { return r.Status == StatusSuccess }

// MarshalJSON renders the wire shape the model sees:
// {"status":"success","result":...} or {"status":"error","error":...}.
func (r Result) MarshalJSON() ([]byte, error) {
	if r.Status == StatusSuccess {
		return json.Marshal(struct {
			Status Status `json:"status"`
			Result any    `json:"result"`
		}{r.Status, r.Payload})
	}
	return json.Marshal(struct {
		Status Status `json:"status"`
		Error  string `json:"error"`
		Hint   string `json:"hint,omitempty"`
	}{StatusError, r.Error, r.Hint})
}

// UnmarshalJSON restores a result persisted with MarshalJSON. Tool and Err
// are not part of the wire shape.
func (r *Result) UnmarshalJSON(b []byte) error {
	var wire struct {
		Status Status          `json:"status"`
		Result json.RawMessage `json:"result"`
		Error  string          `json:"error"`
		Hint   string          `json:"hint"`
	}
	if err := json.Unmarshal(b, &wire); err != nil {
		return err
	}
	r.Status, r.Error, r.Hint = wire.Status, wire.Error, wire.Hint
	r.Payload = nil
	if len(wire.Result) > 0 {
		if err := json.Unmarshal(wire.Result, &r.Payload); err != nil {
			return err
		}
	}
	if r.Status == StatusError && r.Error != "" {
		r.Err = errors.New(r.Error)
	}
	return nil
}
