package oauth

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// PKCEParameters is a verifier/challenge pair for RFC 7636 Proof Key for
// Code Exchange, grounded on conduit/auth/client/models/security.py's
// frozen PKCEParameters dataclass: MCP requires the S256 method and a
// verifier of 43-128 characters, never the deprecated "plain" method.
type PKCEParameters struct {
	CodeVerifier        string
	CodeChallenge       string
	CodeChallengeMethod string
}

func (p PKCEParameters) validate() error {
	if len(p.CodeVerifier) < 43 || len(p.CodeVerifier) > 128 {
		return fmt.Errorf("code verifier must be 43-128 characters, got %d", len(p.CodeVerifier))
	}
	if p.CodeChallengeMethod != "S256" {
		return fmt.Errorf("unsupported code challenge method %q, only S256 is allowed", p.CodeChallengeMethod)
	}
	return nil
}

// ClientMetadata is the RFC 7591 dynamic client registration request
// body, grounded on conduit/auth/client/models/registration.py's
// ClientMetadata. MCP clients register as public clients: no client
// secret, PKCE-only token exchange.
type ClientMetadata struct {
	RedirectURIs            []string `json:"redirect_uris"`
	TokenEndpointAuthMethod string   `json:"token_endpoint_auth_method"`
	GrantTypes              []string `json:"grant_types"`
	ResponseTypes           []string `json:"response_types"`
	ClientName              *string  `json:"client_name,omitempty"`
	ClientURI               *string  `json:"client_uri,omitempty"`
	Scope                   *string  `json:"scope,omitempty"`
}

// NewClientMetadata builds the metadata a public MCP client registers
// with: token_endpoint_auth_method "none", authorization_code grant only.
func NewClientMetadata(redirectURI, clientName string) ClientMetadata {
	return ClientMetadata{
		RedirectURIs:            []string{redirectURI},
		TokenEndpointAuthMethod: "none",
		GrantTypes:              []string{"authorization_code", "refresh_token"},
		ResponseTypes:           []string{"code"},
		ClientName:              &clientName,
	}
}

// validateRedirectURI enforces conduit's rule: redirect URIs must be
// HTTPS, or use a loopback host (any scheme), matching
// services/security.py's validate_redirect_uri.
func validateRedirectURI(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("malformed redirect_uri: %w", err)
	}
	if u.Scheme == "https" {
		return nil
	}
	host := u.Hostname()
	if host == "localhost" || host == "127.0.0.1" || host == "::1" {
		return nil
	}
	return fmt.Errorf("redirect_uri %q must be HTTPS, or use a localhost host", raw)
}

// ClientCredentials is what a registration response hands back: the
// issued client_id and, for confidential clients, a client_secret with
// an expiry. MCP's public clients normally carry no secret.
type ClientCredentials struct {
	ClientID              string
	ClientSecret          *string
	ClientIDIssuedAt      *time.Time
	ClientSecretExpiresAt *time.Time
}

// IsExpired reports whether the client secret (if any) has expired.
// A client with no secret, or one that never expires (ExpiresAt nil or
// zero per RFC 7591), is never considered expired.
func (c ClientCredentials) IsExpired() bool {
	if c.ClientSecretExpiresAt == nil || c.ClientSecretExpiresAt.IsZero() {
		return false
	}
	return time.Now().After(*c.ClientSecretExpiresAt)
}

// ClientRegistration bundles the metadata a client registered with and
// the credentials the authorization server issued in response.
type ClientRegistration struct {
	Metadata    ClientMetadata
	Credentials ClientCredentials
}

// ProtectedResourceMetadata is the RFC 9728 document a resource server
// publishes at /.well-known/oauth-protected-resource, naming the
// authorization server(s) that may issue tokens for it.
type ProtectedResourceMetadata struct {
	Resource             string   `json:"resource"`
	AuthorizationServers []string `json:"authorization_servers"`
	ScopesSupported      []string `json:"scopes_supported,omitempty"`
}

// AuthorizationServerMetadata is the RFC 8414 document an authorization
// server publishes at /.well-known/oauth-authorization-server.
type AuthorizationServerMetadata struct {
	Issuer                        string   `json:"issuer"`
	AuthorizationEndpoint         string   `json:"authorization_endpoint"`
	TokenEndpoint                 string   `json:"token_endpoint"`
	RegistrationEndpoint          *string  `json:"registration_endpoint,omitempty"`
	ScopesSupported               []string `json:"scopes_supported,omitempty"`
	CodeChallengeMethodsSupported []string `json:"code_challenge_methods_supported,omitempty"`
}

// validate enforces conduit's AuthorizationServerMetadata invariant: a
// server that does not advertise S256 cannot serve an MCP client, which
// never falls back to the plain PKCE method.
func (m AuthorizationServerMetadata) validate() error {
	for _, method := range m.CodeChallengeMethodsSupported {
		if method == "S256" {
			return nil
		}
	}
	return fmt.Errorf("authorization server %s does not advertise S256 code_challenge_methods_supported", m.Issuer)
}

// DiscoveryResult bundles the outcome of the two-stage discovery chain:
// an optional protected-resource document (absent when the server only
// publishes authorization-server metadata) and the authorization server
// metadata every flow needs, grounded on
// conduit/auth/client/models/discovery.py's DiscoveryResult.
type DiscoveryResult struct {
	Resource   *ProtectedResourceMetadata
	AuthServer AuthorizationServerMetadata
}

// ShouldIncludeResourceParam reports whether token and authorization
// requests must carry the RFC 8707 resource parameter: true whenever a
// protected-resource document was found, per conduit's
// should_include_resource_param.
func (d DiscoveryResult) ShouldIncludeResourceParam() bool {
	return d.Resource != nil
}

// ResourceURL returns the canonical resource identifier (RFC 3986 §6:
// lower-cased scheme/host, default ports stripped, no fragment) to send
// as the resource parameter, falling back to the protected-resource
// document's own declared resource value when present.
func (d DiscoveryResult) ResourceURL(serverURL string) (string, error) {
	if d.Resource != nil && d.Resource.Resource != "" {
		serverURL = d.Resource.Resource
	}
	u, err := url.Parse(serverURL)
	if err != nil {
		return "", fmt.Errorf("malformed resource url: %w", err)
	}
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""
	switch {
	case u.Scheme == "https" && u.Port() == "443":
		u.Host = u.Hostname()
	case u.Scheme == "http" && u.Port() == "80":
		u.Host = u.Hostname()
	}
	if len(u.Path) > 1 {
		u.Path = strings.TrimSuffix(u.Path, "/")
	}
	return u.String(), nil
}

// TokenState is the client's view of its current credential, grounded
// on conduit/auth/client/models/tokens.py's TokenState.
type TokenState struct {
	AccessToken  string
	TokenType    string
	RefreshToken *string
	ExpiresAt    *time.Time
	Scope        *string
}

// defaultExpiryBuffer mirrors TokenState.is_valid's default
// buffer_seconds=30.0: a token within this margin of expiry is treated
// as already expired, so a request never races a server-side cutoff.
const defaultExpiryBuffer = 30 * time.Second

// IsValid reports whether the access token can still be used, with
// buffer as the expiry safety margin (pass 0 for the 30s default).
func (t TokenState) IsValid(buffer time.Duration) bool {
	if t.AccessToken == "" {
		return false
	}
	if t.ExpiresAt == nil {
		return true
	}
	if buffer <= 0 {
		buffer = defaultExpiryBuffer
	}
	return time.Now().Add(buffer).Before(*t.ExpiresAt)
}

// CanRefresh reports whether a refresh token is available.
func (t TokenState) CanRefresh() bool {
	return t.RefreshToken != nil && *t.RefreshToken != ""
}
