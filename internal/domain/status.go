package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// StatusKind tags a JobStatus.
type StatusKind int

const (
	StatusUnknown StatusKind = iota
	StatusPending
	StatusProcessing
	StatusReady
	StatusFailed
)

func (k StatusKind) String() string {
	switch k {
	case StatusPending:
		return "pending"
	case StatusProcessing:
		return "processing"
	case StatusReady:
		return "ready"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether polling stops on this kind.
func (k StatusKind) Terminal() bool {
	return k == StatusReady || k == StatusFailed
}

// JobStatus is one interpretation of a poll response. ResultURL is set for
// StatusReady, Reason for StatusFailed and Raw always carries the status
// string exactly as received.
type JobStatus struct {
	Kind      StatusKind
	Raw       string
	ResultURL string
	Reason    string
}

var statusVocabulary = map[string]StatusKind{
	"ready":             StatusReady,
	"succeeded":         StatusReady,
	"failed":            StatusFailed,
	"error":             StatusFailed,
	"content moderated": StatusFailed,
	"request moderated": StatusFailed,
	"pending":           StatusPending,
	"queued":            StatusPending,
	"task not found":    StatusPending,
	"processing":        StatusProcessing,
	"running":           StatusProcessing,
}

// ParseStatus interprets a poll response body. Only a body that is not a JSON
// object is an error; unrecognised or missing status strings yield
// StatusUnknown so the caller keeps polling.
func ParseStatus(body []byte) (JobStatus, error) {
	fields, err := decodeObject(body)
	if err != nil {
		return JobStatus{}, err
	}
	raw := textField(fields, "status")
	status := JobStatus{Kind: statusVocabulary[strings.ToLower(strings.TrimSpace(raw))], Raw: raw}
	switch status.Kind {
	case StatusReady:
		status.ResultURL = resultLocation(fields)
		if status.ResultURL == "" {
			status.Kind = StatusUnknown
		}
	case StatusFailed:
		status.Reason = firstNonEmpty(textField(fields, "error"), textField(fields, "details"), raw)
	}
	return status, nil
}

// Submission is the interpreted submit response.
type Submission struct {
	ID           string
	PollingURL   string
	DirectResult string
}

// Handle returns the reference to poll, preferring the polling URL.
func (s Submission) Handle() JobHandle {
	if s.PollingURL != "" {
		return HandleFromURL(s.PollingURL)
	}
	return HandleFromID(s.ID)
}

// ParseSubmission interprets a submit response body. A body with neither a
// job reference nor a direct result is malformed.
func ParseSubmission(body []byte) (Submission, error) {
	fields, err := decodeObject(body)
	if err != nil {
		return Submission{}, err
	}
	sub := Submission{
		ID:           textField(fields, "id"),
		PollingURL:   textField(fields, "polling_url"),
		DirectResult: resultLocation(fields),
	}
	if sub.ID == "" && sub.PollingURL == "" && sub.DirectResult == "" {
		return Submission{}, fmt.Errorf("%w: submit response has no job reference", ErrMalformedResponse)
	}
	return sub, nil
}

// ErrorMessage extracts the "error" member of a JSON body, used for proxy
// error envelopes and upstream error payloads.
func ErrorMessage(body []byte) string {
	fields, err := decodeObject(body)
	if err != nil {
		return ""
	}
	return firstNonEmpty(textField(fields, "error"), textField(fields, "detail"), textField(fields, "message"))
}

func decodeObject(body []byte) (map[string]json.RawMessage, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, fmt.Errorf("%w: body is not a JSON object", ErrMalformedResponse)
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &fields); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	return fields, nil
}

func resultLocation(fields map[string]json.RawMessage) string {
	if raw, ok := fields["result"]; ok {
		var nested map[string]json.RawMessage
		if err := json.Unmarshal(raw, &nested); err == nil {
			if sample := textField(nested, "sample"); sample != "" {
				return sample
			}
		}
	}
	if out := textField(fields, "output_url"); out != "" {
		return out
	}
	if raw, ok := fields["output"]; ok {
		var list []string
		if err := json.Unmarshal(raw, &list); err == nil {
			for _, item := range list {
				if item = strings.TrimSpace(item); item != "" {
					return item
				}
			}
			return ""
		}
		return textField(fields, "output")
	}
	return ""
}

// textField renders a member as text: strings verbatim, objects through their
// "message" member when present, anything else as compact JSON.
func textField(fields map[string]json.RawMessage, key string) string {
	raw, ok := fields[key]
	if !ok {
		return ""
	}
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err == nil {
		if msg := textField(obj, "message"); msg != "" {
			return msg
		}
	}
	var compact bytes.Buffer
	if err := json.Compact(&compact, raw); err != nil {
		return string(raw)
	}
	return compact.String()
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
