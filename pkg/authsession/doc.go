// Package authsession decides, once per request, whether a web session's
// cached authentication and privilege data can still be trusted.
//
// A Coordinator combines three signals:
//
//   - the transport-level authentication flag carried on the request's
//     Principal (for example a verified ID token cookie),
//   - a CacheChecker reporting whether a persisted credential cache entry still
//     exists for the principal's subject, and
//   - a PrivilegeClient that knows how to build, validate and reload the
//     caller-defined privilege record T.
//
// A principal that claims to be signed in while its credential cache entry
// has been lost (session eviction, server restart) is treated as signed out.
// Cached privileges are dropped in that case so nothing leaks across a
// sign-out or cache loss.
//
// Typical usage inside an HTTP handler:
//
//	coord, err := authsession.New(ctx, authsession.Config[Privileges]{
//		Principal: authsession.PrincipalFromContext(ctx),
//		State:     sess,
//		Cache:     credentials,
//		Client:    privilegeClient,
//	})
//	if err != nil {
//		return err
//	}
//	if err := coord.LoadAuthAndPrivileges(ctx); err != nil {
//		return err
//	}
//	privs, err := coord.Privileges()
package authsession
