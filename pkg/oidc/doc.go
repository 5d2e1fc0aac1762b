// Package oidc is a small OpenID Connect relying-party client: provider
// discovery, the authorization code flow with PKCE and form_post responses,
// code redemption and RP-initiated logout. The OAuth 2.0 legs run on
// golang.org/x/oauth2.
//
// Typical flow:
//
//	md, _ := oidc.Discover(ctx, hc, "https://login.example.com/common/v2.0")
//	c := &oidc.Client{Metadata: md, ClientID: "webapp", RedirectURL: "https://app/signin-oidc"}
//
//	verifier := oidc.NewVerifier()
//	http.Redirect(w, r, c.AuthorizeURL(state, nonce, verifier, nil), http.StatusFound)
//
//	// later, on the callback
//	tok, err := c.Exchange(ctx, r.PostFormValue("code"), verifier)
package oidc
