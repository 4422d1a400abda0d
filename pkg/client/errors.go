package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strings"

	"github.com/go-resty/resty/v2"
)

// APIError is a non-2xx response. Validation failures carry the
// field-keyed messages of the response body in Fields; every other error
// carries the server's detail message.
type APIError struct {
	StatusCode int
	Fields     map[string][]string
	Detail     string
}

func (e *APIError) Error() string {
	if len(e.Fields) > 0 {
		keys := make([]string, 0, len(e.Fields))
		for k := range e.Fields {
			keys = append(keys, k)
		}
		slices.Sort(keys)
		parts := make([]string, 0, len(keys))
		for _, k := range keys {
			parts = append(parts, k+": "+strings.Join(e.Fields[k], ", "))
		}
		return fmt.Sprintf("api error %d: %s", e.StatusCode, strings.Join(parts, "; "))
	}
	if e.Detail != "" {
		return fmt.Sprintf("api error %d: %s", e.StatusCode, e.Detail)
	}
	return fmt.Sprintf("api error %d", e.StatusCode)
}

func newAPIError(resp *resty.Response) *APIError {
	e := &APIError{StatusCode: resp.StatusCode()}

	var body map[string]json.RawMessage
	if err := json.Unmarshal(resp.Body(), &body); err != nil {
		e.Detail = strings.TrimSpace(string(resp.Body()))
		if e.Detail == "" {
			e.Detail = http.StatusText(e.StatusCode)
		}
		return e
	}

	if raw, ok := body["detail"]; ok {
		_ = json.Unmarshal(raw, &e.Detail)
		delete(body, "detail")
	}
	for field, raw := range body {
		var msgs []string
		if err := json.Unmarshal(raw, &msgs); err != nil {
			var msg string
			if json.Unmarshal(raw, &msg) != nil {
				continue
			}
			msgs = []string{msg}
		}
		if e.Fields == nil {
			e.Fields = make(map[string][]string)
		}
		e.Fields[field] = msgs
	}
	return e
}

func statusOf(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}

// IsNotFound reports whether err is a 404 response.
func IsNotFound(err error) bool { return statusOf(err) == http.StatusNotFound }

// IsValidation reports whether err is a 400 response.
func IsValidation(err error) bool { return statusOf(err) == http.StatusBadRequest }

// IsUnauthorized reports whether err is a 401 response.
func IsUnauthorized(err error) bool { return statusOf(err) == http.StatusUnauthorized }

// FieldErrors returns the field-keyed validation messages of err, if any.
func FieldErrors(err error) map[string][]string {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Fields
	}
	return nil
}
