// Package oauth implements the OAuth 2.1 authorization code flow with PKCE
// that a streamable HTTP MCP client uses to obtain and refresh access
// tokens, per SPEC_FULL.md §4.6. It carries the client through
// Uninitiated -> Discovered -> Registered -> AuthorizationPending ->
// Authorized <-> Refreshing, grounded on
// conduit/auth/client/{primitives,services,models} from the original
// Python source: PKCE generation (primitives/pkce.py), protected-resource
// and authorization-server discovery (models/discovery.py, RFC 9728 and
// RFC 8414), dynamic client registration (services/registration.py,
// RFC 7591), and token exchange/refresh (services/tokens.py, RFC 6749).
//
// The token exchange and refresh requests themselves are issued through
// golang.org/x/oauth2, the ecosystem's standard OAuth2 client, rather
// than hand-rolled HTTP calls; PKCE and resource-indicator parameters are
// threaded through oauth2.Config's extension-parameter hooks. Token
// expiry is read from the token response's expires_in field, falling
// back to decoding the access token as a JWT and reading its exp claim
// via github.com/golang-jwt/jwt/v5 when the server omits expires_in, the
// same fallback conduit's TokenState comment describes.
package oauth
