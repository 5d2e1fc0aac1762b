package webapi

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
)

var (
	// ErrAuthenticationFailed means a call required a credential and the
	// TokenProvider had none. No request was sent.
	ErrAuthenticationFailed = errors.New("webapi: no credential available")

	// ErrUnauthorized means the remote service rejected the credential we
	// supplied.
	ErrUnauthorized = errors.New("webapi: unauthorized")

	// ErrDecode wraps JSON decoding failures of a response body. The
	// underlying json error stays reachable through errors.As.
	ErrDecode = errors.New("webapi: decode response")
)

// ConsentRequiredError is returned when the remote service answers 401 with
// a need-consent challenge. ConsentURL is the challenge parameter verbatim.
type ConsentRequiredError struct {
	ConsentURL string
}

func (e *ConsentRequiredError) Error() string {
	return "webapi: consent required, visit " + e.ConsentURL
}

// ServiceError reports a failing status from the remote service.
type ServiceError struct {
	StatusCode int
	Reason     string
}

func (e *ServiceError) Error() string {
	return fmt.Sprintf("webapi: service error %d: %s", e.StatusCode, e.Reason)
}

// reasonPhrase returns the reason phrase of resp.Status ("404 Not Found" ->
// "Not Found"), falling back to the standard text for the code.
func reasonPhrase(resp *http.Response) string {
	code := strconv.Itoa(resp.StatusCode)
	if reason, ok := strings.CutPrefix(resp.Status, code); ok {
		if reason = strings.TrimSpace(reason); reason != "" {
			return reason
		}
	}
	return http.StatusText(resp.StatusCode)
}
