package apiclient

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	clienterrors "github.com/jrsteele09/festmatch-client/internal/errors"
)

// maxErrorBody caps how much of an error response is kept
const maxErrorBody = 64 << 10

// StatusError is a non-2xx response from the backend. Err classifies it
// (ErrUnauthorized, ErrNotFound, ErrInternal, or one of the refresh errors)
// so callers can use errors.Is.
type StatusError struct {
	Method     string
	Path       string
	StatusCode int
	Code       string
	Message    string
	Body       []byte
	Err        error
}

func (e *StatusError) Error() string {
	msg := fmt.Sprintf("%s %s: status %d", e.Method, e.Path, e.StatusCode)
	if e.Code != "" {
		msg += fmt.Sprintf(" [%s]", e.Code)
	}
	if e.Message != "" {
		msg += " " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *StatusError) Unwrap() error {
	return e.Err
}

// newStatusError reads the response body. The caller still closes it.
func newStatusError(resp *http.Response) *StatusError {
	e := &StatusError{StatusCode: resp.StatusCode}
	if resp.Request != nil {
		e.Method = resp.Request.Method
		e.Path = resp.Request.URL.Path
	}

	e.Body, _ = io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	var errResp struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(e.Body, &errResp); err == nil {
		e.Code = errResp.Code
		e.Message = errResp.Message
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		e.Err = clienterrors.ErrUnauthorized
	case resp.StatusCode == http.StatusNotFound:
		e.Err = clienterrors.ErrNotFound
	case resp.StatusCode >= 500:
		e.Err = clienterrors.ErrInternal
	}
	return e
}

// ParseResponse closes resp. A non-2xx status is returned as *StatusError;
// otherwise a non-empty body is decoded into target when target is non-nil.
func ParseResponse(resp *http.Response, target any) error {
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return newStatusError(resp)
	}
	if target == nil {
		return nil
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return clienterrors.Wrapf(err, "apiclient: read response")
	}
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, target); err != nil {
		return clienterrors.Wrapf(err, "apiclient: parse response")
	}
	return nil
}
