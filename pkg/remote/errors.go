package remote

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// APIError represents an error response from the panel.
type APIError struct {
	StatusCode int    `json:"-"`
	Code       string `json:"code,omitempty"`
	Message    string `json:"message"`
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	if e.Message == "" {
		return fmt.Sprintf("panel returned HTTP %d", e.StatusCode)
	}
	return e.Message
}

// IsAuthError returns true if the panel rejected the supplied credentials.
func (e *APIError) IsAuthError() bool {
	switch e.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound:
		return true
	}
	return e.Code == "UNAUTHORIZED" || e.Code == "FORBIDDEN"
}

// panelErrors is the JSON:API style envelope the panel uses for failures.
type panelErrors struct {
	Errors []struct {
		Code   string `json:"code"`
		Status string `json:"status"`
		Detail string `json:"detail"`
	} `json:"errors"`
}

func parseAPIError(status int, body []byte) *APIError {
	var envelope panelErrors
	if json.Unmarshal(body, &envelope) == nil && len(envelope.Errors) > 0 {
		first := envelope.Errors[0]
		return &APIError{StatusCode: status, Code: first.Code, Message: first.Detail}
	}

	var apiErr APIError
	if json.Unmarshal(body, &apiErr) == nil && apiErr.Message != "" {
		apiErr.StatusCode = status
		return &apiErr
	}

	return &APIError{
		StatusCode: status,
		Message:    strings.TrimSpace(string(body)),
	}
}
