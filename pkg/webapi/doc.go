// Package webapi calls a protected remote API on behalf of the signed-in
// user.
//
// A Client pulls a bearer credential from a TokenProvider before each call
// that requires authentication and keeps one underlying *http.Client bound
// to that credential. The bound client (and its keep-alive connections) is
// reused while the credential stays the same and rebuilt as soon as it
// changes, so a request never goes out with a stale Authorization header.
//
// Every response is interpreted before it reaches the caller:
//
//   - 401 with a "need-consent" WWW-Authenticate challenge becomes a
//     *ConsentRequiredError carrying the URL the user has to visit,
//   - 404 and 500 become a *ServiceError carrying the reason phrase,
//   - anything else is returned unchanged.
//
// The typed helpers (GetJSON, PostJSON, PutJSON and friends) additionally
// map a remaining 401 to ErrUnauthorized and decode successful JSON bodies.
// Methods cannot carry type parameters, so the typed layer is a set of
// package functions taking the Client:
//
//	profile, err := webapi.GetJSON[Profile](ctx, client, "me", true)
//	var consent *webapi.ConsentRequiredError
//	switch {
//	case errors.As(err, &consent):
//		http.Redirect(w, r, consent.ConsentURL, http.StatusFound)
//	case errors.Is(err, webapi.ErrAuthenticationFailed):
//		// no cached credential, sign in again
//	}
package webapi
