package cluster

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrMalformedResponse is wrapped by errors for bodies that cannot be decoded.
var ErrMalformedResponse = errors.New("malformed cluster response")

// ResponseError is a non-2xx answer from the cluster.
type ResponseError struct {
	StatusCode int
	Type       string
	Reason     string
	Body       string
}

func (e *ResponseError) Error() string {
	if e.Type != "" {
		return fmt.Sprintf("%s: %s (status %d)", e.Type, e.Reason, e.StatusCode)
	}
	if e.Reason != "" {
		return fmt.Sprintf("%s (status %d)", e.Reason, e.StatusCode)
	}
	return fmt.Sprintf("http %d: %s", e.StatusCode, strings.TrimSpace(e.Body))
}

// Temporary reports whether retrying the same request may succeed.
func (e *ResponseError) Temporary() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// IsIndexNotFound reports whether err is the cluster saying an index does not exist.
func IsIndexNotFound(err error) bool {
	var re *ResponseError
	if !errors.As(err, &re) {
		return false
	}
	return re.StatusCode == http.StatusNotFound && re.Type == "index_not_found_exception"
}

// parseResponseError decodes the {"error": {...}, "status": n} envelope.
// Older clusters and proxies send a plain string or no JSON at all.
func parseResponseError(status int, body []byte) *ResponseError {
	re := &ResponseError{StatusCode: status, Body: string(body)}

	var envelope struct {
		Error json.RawMessage `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil || len(envelope.Error) == 0 {
		return re
	}

	var detail struct {
		Type   string `json:"type"`
		Reason string `json:"reason"`
	}
	if err := json.Unmarshal(envelope.Error, &detail); err == nil {
		re.Type = detail.Type
		re.Reason = detail.Reason
		return re
	}

	var reason string
	if err := json.Unmarshal(envelope.Error, &reason); err == nil {
		re.Reason = reason
	}
	return re
}
