package oidctest

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/aussiebroadwan/webauth/internal/webapp/domain"
)

// API is a protected resource accepting the IdP's "at-<sub>" tokens. It
// serves GET /me and GET /me/privileges.
type API struct {
	Server *httptest.Server

	mu         sync.Mutex
	privileges map[string][]string
	consentURL string
	failWith   int

	PrivilegeCalls atomic.Int32
}

func NewAPI(t testing.TB) *API {
	t.Helper()

	a := &API{privileges: make(map[string][]string)}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /me", a.profile)
	mux.HandleFunc("GET /me/privileges", a.privilegesHandler)
	a.Server = httptest.NewServer(mux)
	t.Cleanup(a.Server.Close)
	return a
}

// Grant sets the roles of subject. Every role doubles as a permission
// suffixed with ":read".
func (a *API) Grant(subject string, roles ...string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.privileges[subject] = roles
}

// RequireConsent makes every call answer 401 with a need-consent challenge
// pointing at consentURL. Empty clears it.
func (a *API) RequireConsent(consentURL string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.consentURL = consentURL
}

// FailWith makes every call answer with status. Zero clears it.
func (a *API) FailWith(status int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.failWith = status
}

// authorize returns the subject of the bearer token, or "" after writing
// the failure.
func (a *API) authorize(w http.ResponseWriter, r *http.Request) string {
	a.mu.Lock()
	consent, fail := a.consentURL, a.failWith
	a.mu.Unlock()

	if fail != 0 {
		w.WriteHeader(fail)
		return ""
	}

	tok, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	sub, valid := strings.CutPrefix(tok, "at-")
	if !ok || !valid || sub == "" {
		w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token"`)
		w.WriteHeader(http.StatusUnauthorized)
		return ""
	}
	if consent != "" {
		w.Header().Set("WWW-Authenticate", `need-consent param="`+consent+`"`)
		w.WriteHeader(http.StatusUnauthorized)
		return ""
	}
	return sub
}

func (a *API) profile(w http.ResponseWriter, r *http.Request) {
	sub := a.authorize(w, r)
	if sub == "" {
		return
	}
	writeJSON(w, http.StatusOK, domain.Profile{
		ID:                sub,
		DisplayName:       strings.ToUpper(sub[:1]) + sub[1:],
		UserPrincipalName: sub + "@example.com",
	})
}

func (a *API) privilegesHandler(w http.ResponseWriter, r *http.Request) {
	a.PrivilegeCalls.Add(1)
	sub := a.authorize(w, r)
	if sub == "" {
		return
	}

	a.mu.Lock()
	roles, ok := a.privileges[sub]
	a.mu.Unlock()
	if !ok {
		http.Error(w, "unknown subject", http.StatusNotFound)
		return
	}

	perms := make([]string, 0, len(roles))
	for _, r := range roles {
		perms = append(perms, r+":read")
	}
	writeJSON(w, http.StatusOK, map[string][]string{
		"roles":       roles,
		"permissions": perms,
	})
}
