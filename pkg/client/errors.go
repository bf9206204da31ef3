package client

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrMalformedResponse is returned when a successful response does not carry a scan result.
var ErrMalformedResponse = errors.New("malformed response")

// HTTPError is returned when the service answers with a non-success status.
type HTTPError struct {
	Code   int
	Status string
	// Detail is the service supplied message, if any.
	Detail string
	Body   string
}

func (e HTTPError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%d: %s", e.Code, e.Detail)
	}
	return fmt.Sprintf("%d: %s", e.Code, e.Status)
}

const maxErrorBody = 1024

func newHTTPError(code int, status string, body []byte) HTTPError {
	e := HTTPError{
		Code:   code,
		Status: status,
		Detail: extractDetail(body),
	}
	if len(body) > maxErrorBody {
		body = body[:maxErrorBody]
	}
	e.Body = string(body)
	return e
}

// extractDetail returns the "detail" field of an error body when it is a string.
func extractDetail(body []byte) string {
	var payload struct {
		Detail any `json:"detail"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return ""
	}
	detail, ok := payload.Detail.(string)
	if !ok {
		return ""
	}
	return detail
}
