package domain

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Query parameter names understood by the poll proxy.
const (
	QueryJobID      = "id"
	QueryPollingURL = "polling_url"
)

// JobHandle references a submitted job either by identifier or by the full
// polling URL the provider returned. The zero value is not a usable handle.
type JobHandle struct {
	id         string
	pollingURL string
}

// HandleFromID wraps an opaque job identifier.
func HandleFromID(id string) JobHandle {
	return JobHandle{id: strings.TrimSpace(id)}
}

// HandleFromURL wraps a provider polling URL.
func HandleFromURL(pollingURL string) JobHandle {
	return JobHandle{pollingURL: strings.TrimSpace(pollingURL)}
}

// IsZero reports whether the handle references nothing.
func (h JobHandle) IsZero() bool {
	return h.id == "" && h.pollingURL == ""
}

// ID returns the job identifier, empty for URL handles.
func (h JobHandle) ID() string { return h.id }

// PollingURL returns the polling URL, empty for id handles.
func (h JobHandle) PollingURL() string { return h.pollingURL }

// String is used in log lines.
func (h JobHandle) String() string {
	if h.pollingURL != "" {
		return h.pollingURL
	}
	return h.id
}

// Query encodes the handle as poll proxy query parameters.
func (h JobHandle) Query() url.Values {
	values := url.Values{}
	switch {
	case h.pollingURL != "":
		values.Set(QueryPollingURL, h.pollingURL)
	case h.id != "":
		values.Set(QueryJobID, h.id)
	}
	return values
}

// StatusURL resolves the upstream status-check URL. Identifier handles are
// expanded against baseURL; URL handles are returned as-is.
func (h JobHandle) StatusURL(baseURL string) (string, error) {
	switch {
	case h.pollingURL != "":
		return h.pollingURL, nil
	case h.id != "":
		base := strings.TrimRight(strings.TrimSpace(baseURL), "/")
		if base == "" {
			return "", errors.New("job handle: base url is required")
		}
		return fmt.Sprintf("%s/v1/get_result?id=%s", base, url.QueryEscape(h.id)), nil
	default:
		return "", errors.New("job handle: empty")
	}
}

// HandleFromQuery reads a handle from poll proxy parameters. The polling URL
// wins when both are present; taskId and pollUrl are accepted as aliases.
func HandleFromQuery(values url.Values) (JobHandle, bool) {
	for _, key := range []string{QueryPollingURL, "pollUrl"} {
		if v := strings.TrimSpace(values.Get(key)); v != "" {
			return HandleFromURL(v), true
		}
	}
	for _, key := range []string{QueryJobID, "taskId"} {
		if v := strings.TrimSpace(values.Get(key)); v != "" {
			return HandleFromID(v), true
		}
	}
	return JobHandle{}, false
}
