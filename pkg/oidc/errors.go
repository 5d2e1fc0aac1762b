package oidc

import (
	"errors"
	"fmt"
	"net/http"

	"golang.org/x/oauth2"
)

// Error is an OAuth 2.0 error response (RFC 6749 section 5.2) or an error
// returned to the redirect URI.
type Error struct {
	StatusCode  int    `json:"-"`
	Code        string `json:"error"`
	Description string `json:"error_description,omitempty"`
}

func (e *Error) Error() string {
	if e.Description == "" {
		return "oidc: " + e.Code
	}
	return fmt.Sprintf("oidc: %s: %s", e.Code, e.Description)
}

// fromRetrieveError maps a failed token endpoint response onto an *Error,
// or returns nil when err did not come from the endpoint.
func fromRetrieveError(err error) *Error {
	var rerr *oauth2.RetrieveError
	if !errors.As(err, &rerr) {
		return nil
	}
	status := 0
	if rerr.Response != nil {
		status = rerr.Response.StatusCode
	}
	if rerr.ErrorCode != "" {
		return &Error{StatusCode: status, Code: rerr.ErrorCode, Description: rerr.ErrorDescription}
	}
	return &Error{
		StatusCode:  status,
		Code:        "server_error",
		Description: fmt.Sprintf("HTTP %d: %s", status, http.StatusText(status)),
	}
}
