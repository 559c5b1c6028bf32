package odata

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
)

// Error is a non-success response from the OData service.
type Error struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *Error) Error() string {
	if e.Code == "" && e.Message == "" {
		return fmt.Sprintf("odata: %d %s", e.StatusCode, http.StatusText(e.StatusCode))
	}
	return fmt.Sprintf("odata: %d %s: %s", e.StatusCode, e.Code, e.Message)
}

// IsNotFound reports whether err is an OData 404 response.
func IsNotFound(err error) bool {
	var odataErr *Error
	return errors.As(err, &odataErr) && odataErr.StatusCode == http.StatusNotFound
}

// errorBody is the JSON error format of OData v4.
type errorBody struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// newError reads an error response. Bodies that are not OData JSON leave Code and Message empty.
func newError(resp *http.Response) *Error {
	e := &Error{StatusCode: resp.StatusCode}

	data, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil || len(data) == 0 {
		return e
	}

	var body errorBody
	if json.Unmarshal(data, &body) == nil {
		e.Code = body.Error.Code
		e.Message = body.Error.Message
	}
	return e
}
