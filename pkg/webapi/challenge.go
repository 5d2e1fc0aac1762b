package webapi

import (
	"net/http"
	"strings"
)

// ConsentScheme is the WWW-Authenticate scheme a remote service uses to ask
// for user consent.
const ConsentScheme = "need-consent"

// interpret maps the response conventions shared by every call to typed
// errors. A nil return hands the response to the caller untouched.
func interpret(resp *http.Response) error {
	switch resp.StatusCode {
	case http.StatusUnauthorized:
		if url, ok := consentURL(resp.Header.Values("WWW-Authenticate")); ok {
			return &ConsentRequiredError{ConsentURL: url}
		}
	case http.StatusNotFound, http.StatusInternalServerError:
		return &ServiceError{StatusCode: resp.StatusCode, Reason: reasonPhrase(resp)}
	}
	return nil
}

// consentURL finds a need-consent challenge among the header values and
// returns its parameter. One header value may list several challenges
// separated by commas.
func consentURL(values []string) (string, bool) {
	for _, v := range values {
		for _, c := range splitChallenges(v) {
			scheme, rest, _ := strings.Cut(c, " ")
			if !strings.EqualFold(scheme, ConsentScheme) {
				continue
			}
			return challengeParam(strings.TrimSpace(rest)), true
		}
	}
	return "", false
}

// splitChallenges breaks a WWW-Authenticate value into its challenges. A
// comma-separated element starts a new challenge when its first word is a
// bare scheme; otherwise it is another auth-param of the current one.
func splitChallenges(v string) []string {
	var out []string
	for _, el := range splitTopLevel(v) {
		word, _, _ := strings.Cut(el, " ")
		if len(out) == 0 || !strings.Contains(word, "=") {
			out = append(out, el)
			continue
		}
		out[len(out)-1] += ", " + el
	}
	return out
}

// splitTopLevel splits on commas outside quoted strings and drops empty
// elements.
func splitTopLevel(v string) []string {
	var (
		out     []string
		start   int
		quoted  bool
		escaped bool
	)
	flush := func(end int) {
		if el := strings.TrimSpace(v[start:end]); el != "" {
			out = append(out, el)
		}
		start = end + 1
	}
	for i := 0; i < len(v); i++ {
		switch c := v[i]; {
		case escaped:
			escaped = false
		case quoted && c == '\\':
			escaped = true
		case c == '"':
			quoted = !quoted
		case c == ',' && !quoted:
			flush(i)
		}
	}
	flush(len(v))
	return out
}

// challengeParam extracts the value of the first auth-param
// (name="value" or name=value) and falls back to the raw parameter string
// for token68 style challenges.
func challengeParam(s string) string {
	name, value, ok := strings.Cut(s, "=")
	if !ok || name == "" || strings.ContainsAny(name, " \t,/:") {
		return s
	}

	if strings.HasPrefix(value, `"`) {
		var b strings.Builder
		escaped := false
		for _, r := range value[1:] {
			switch {
			case escaped:
				b.WriteRune(r)
				escaped = false
			case r == '\\':
				escaped = true
			case r == '"':
				return b.String()
			default:
				b.WriteRune(r)
			}
		}
		// Unterminated quote, keep what we have.
		return b.String()
	}

	// token68 padding ("abc==") rather than name=value.
	if value == "" || strings.HasPrefix(value, "=") {
		return s
	}

	value, _, _ = strings.Cut(value, ",")
	return strings.TrimSpace(value)
}
