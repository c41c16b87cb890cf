package gitlab

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// APIError is a non-2xx response from the GitLab API. The status code drives
// the caller's classification: 403 on a tier-gated endpoint is a capability
// gap, 404 on a lookup is plain absence, anything else is fatal.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("gitlab API returned %d: %s", e.Status, e.Message)
}

// ErrAlreadyMember reports that a membership already exists. Callers treat
// it as reuse, not failure.
var ErrAlreadyMember = errors.New("user is already a member")

// IsNotFound reports whether err is a 404 from the API.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound
}

// IsForbidden reports whether err is a 403 from the API.
func IsForbidden(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusForbidden
}

// IsConflict reports whether err is a 409 from the API.
func IsConflict(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusConflict
}

// newAPIError builds an APIError from a response body, extracting GitLab's
// "message" or "error" field when present.
func newAPIError(status int, body []byte) *APIError {
	var payload struct {
		Message json.RawMessage `json:"message"`
		Error   string          `json:"error"`
	}
	msg := string(body)
	if err := json.Unmarshal(body, &payload); err == nil {
		switch {
		case len(payload.Message) > 0:
			msg = messageString(payload.Message)
		case payload.Error != "":
			msg = payload.Error
		}
	}
	return &APIError{Status: status, Message: msg}
}

// messageString flattens GitLab's "message" field, which may be a string,
// an array, or an object depending on the endpoint.
func messageString(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var list []string
	if err := json.Unmarshal(raw, &list); err == nil && len(list) > 0 {
		return list[0]
	}
	return string(raw)
}
