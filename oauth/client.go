package oauth

import (
	"context"
	"crypto/subtle"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	mcp "github.com/Lab11HQ/conduit-mcp-sub001"
	"github.com/Lab11HQ/conduit-mcp-sub001/transport"
	"golang.org/x/oauth2"
)

// State names a position in the OAuth 2.1 client's bootstrap state
// machine, per SPEC_FULL.md §4.6.
type State int

const (
	StateUninitiated State = iota
	StateDiscovered
	StateRegistered
	StateAuthorizationPending
	StateAuthorized
	StateRefreshing
)

// Client drives one MCP server connection's OAuth 2.1 authorization code
// flow with PKCE, from discovery through token refresh. It generalizes
// conduit.auth.client's discovery/registration/flow/tokens services
// (independent Python modules, one instance each per server connection)
// into a single stateful Go type, since a streamable HTTP transport
// needs one coherent object to consult for "is this connection
// authorized, and if not, how do I get there."
type Client struct {
	serverURL   string
	redirectURI string
	clientName  string
	scopes      []string
	httpClient  *http.Client
	logger      func(msg string, args ...any)

	mu           sync.Mutex
	state        State
	discovery    *DiscoveryResult
	registration *ClientRegistration
	pkce         PKCEParameters
	authState    string
	tokens       TokenState
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient overrides the http.Client used for discovery,
// registration and token requests.
func WithHTTPClient(c *http.Client) ClientOption {
	return func(cl *Client) { cl.httpClient = c }
}

// WithScopes sets the scopes requested during authorization.
func WithScopes(scopes ...string) ClientOption {
	return func(cl *Client) { cl.scopes = scopes }
}

// NewClient constructs a Client for one MCP server at serverURL, using
// redirectURI as the OAuth redirect target once registered.
func NewClient(serverURL, redirectURI, clientName string, opts ...ClientOption) *Client {
	c := &Client{
		serverURL:   serverURL,
		redirectURI: redirectURI,
		clientName:  clientName,
		httpClient:  http.DefaultClient,
		state:       StateUninitiated,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// State reports the client's current position in the bootstrap flow.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Bootstrap runs discovery (using resourceMetadataURL parsed from a 401
// response's WWW-Authenticate header, or "" to discover directly against
// serverURL) followed by dynamic client registration, advancing the
// client from Uninitiated to Registered in one call.
func (c *Client) Bootstrap(ctx context.Context, resourceMetadataURL string) error {
	result, err := Discover(ctx, c.httpClient, c.serverURL, resourceMetadataURL)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.discovery = result
	c.state = StateDiscovered
	c.mu.Unlock()

	if result.AuthServer.RegistrationEndpoint == nil {
		return &mcp.OAuthError{Kind: mcp.OAuthErrorRegistration, Msg: "authorization server does not support dynamic client registration"}
	}
	reg, err := Register(ctx, c.httpClient, *result.AuthServer.RegistrationEndpoint, NewClientMetadata(c.redirectURI, c.clientName))
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.registration = reg
	c.state = StateRegistered
	c.mu.Unlock()
	return nil
}

// StartAuthorization generates fresh PKCE parameters and a CSRF state
// value, and returns the authorization URL the user's browser should be
// sent to. It must be called after Bootstrap.
func (c *Client) StartAuthorization(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.discovery == nil || c.registration == nil {
		return "", &mcp.OAuthError{Kind: mcp.OAuthErrorAuthorization, Msg: "StartAuthorization called before Bootstrap completed"}
	}
	pkce, err := GeneratePKCE()
	if err != nil {
		return "", &mcp.OAuthError{Kind: mcp.OAuthErrorPKCE, Msg: "generating PKCE parameters", Err: err}
	}
	state, err := generateState()
	if err != nil {
		return "", &mcp.OAuthError{Kind: mcp.OAuthErrorAuthorization, Msg: "generating state parameter", Err: err}
	}
	c.pkce = pkce
	c.authState = state
	c.state = StateAuthorizationPending

	cfg := c.oauth2Config()
	opts := []oauth2.AuthCodeOption{
		oauth2.SetAuthURLParam("code_challenge", pkce.CodeChallenge),
		oauth2.SetAuthURLParam("code_challenge_method", pkce.CodeChallengeMethod),
	}
	if c.discovery.ShouldIncludeResourceParam() {
		if resource, err := c.discovery.ResourceURL(c.serverURL); err == nil {
			opts = append(opts, oauth2.SetAuthURLParam("resource", resource))
		}
	}
	return cfg.AuthCodeURL(state, opts...), nil
}

// HandleCallback parses the redirect URI the authorization server sent
// the user's browser back to, validates its state parameter in constant
// time against the one StartAuthorization generated, and exchanges the
// authorization code for a token, per
// OAuth2FlowManager.handle_authorization_callback and
// services/security.py's validate_state.
func (c *Client) HandleCallback(ctx context.Context, callbackURL string) error {
	u, err := url.Parse(callbackURL)
	if err != nil {
		return &mcp.OAuthError{Kind: mcp.OAuthErrorAuthorizationCallback, Msg: "malformed callback url", Err: err}
	}
	q := u.Query()
	if errCode := q.Get("error"); errCode != "" {
		return &mcp.OAuthError{Kind: mcp.OAuthErrorAuthorization, Msg: fmt.Sprintf("authorization denied: %s: %s", errCode, q.Get("error_description"))}
	}
	code := q.Get("code")
	respState := q.Get("state")
	if code == "" || respState == "" {
		return &mcp.OAuthError{Kind: mcp.OAuthErrorAuthorizationCallback, Msg: "callback is missing code or state"}
	}

	c.mu.Lock()
	expectedState := c.authState
	pkce := c.pkce
	c.mu.Unlock()

	if subtle.ConstantTimeCompare([]byte(respState), []byte(expectedState)) != 1 {
		return &mcp.OAuthError{Kind: mcp.OAuthErrorStateValidation, Msg: "state parameter mismatch, possible CSRF"}
	}

	cfg := c.oauth2Config()
	exchangeOpts := []oauth2.AuthCodeOption{oauth2.SetAuthURLParam("code_verifier", pkce.CodeVerifier)}
	c.mu.Lock()
	if c.discovery.ShouldIncludeResourceParam() {
		if resource, rerr := c.discovery.ResourceURL(c.serverURL); rerr == nil {
			exchangeOpts = append(exchangeOpts, oauth2.SetAuthURLParam("resource", resource))
		}
	}
	c.mu.Unlock()

	tok, err := cfg.Exchange(ctx, code, exchangeOpts...)
	if err != nil {
		return &mcp.OAuthError{Kind: mcp.OAuthErrorTokenExchange, Msg: "exchanging authorization code", Err: err}
	}
	c.mu.Lock()
	c.tokens = tokenStateFromOAuth2(tok)
	c.state = StateAuthorized
	c.mu.Unlock()
	return nil
}

// Token returns a valid access token, refreshing it first if it is
// expired (or within its expiry buffer) and a refresh token is
// available. It is the method a streamable HTTP transport calls before
// every request once authorization has completed.
func (c *Client) Token(ctx context.Context) (string, error) {
	c.mu.Lock()
	tokens := c.tokens
	c.mu.Unlock()

	if tokens.IsValid(0) {
		return tokens.AccessToken, nil
	}
	if !tokens.CanRefresh() {
		return "", &mcp.OAuthError{Kind: mcp.OAuthErrorTokenRefresh, Msg: "access token expired and no refresh token is available"}
	}
	if err := c.refresh(ctx); err != nil {
		return "", err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tokens.AccessToken, nil
}

func (c *Client) refresh(ctx context.Context) error {
	c.mu.Lock()
	c.state = StateRefreshing
	refreshToken := *c.tokens.RefreshToken
	c.mu.Unlock()

	cfg := c.oauth2Config()
	src := cfg.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken})
	tok, err := src.Token()
	if err != nil {
		c.mu.Lock()
		c.state = StateUninitiated
		c.tokens = TokenState{}
		c.mu.Unlock()
		return &mcp.OAuthError{Kind: mcp.OAuthErrorTokenRefresh, Msg: "refreshing access token", Err: err}
	}

	c.mu.Lock()
	defer func() { c.state = StateAuthorized; c.mu.Unlock() }()
	next := tokenStateFromOAuth2(tok)
	if next.RefreshToken == nil {
		// Servers are not required to rotate the refresh token; keep
		// the old one if the response omitted a new one.
		next.RefreshToken = c.tokens.RefreshToken
	}
	c.tokens = next
	return nil
}

// TokenSource adapts Client to golang.org/x/oauth2's TokenSource
// interface, so it can be handed directly to anything (like the
// streamable HTTP client transport) that expects one.
func (c *Client) TokenSource(ctx context.Context) oauth2.TokenSource {
	return oauth2.ReuseTokenSource(nil, clientTokenSource{ctx: ctx, client: c})
}

type clientTokenSource struct {
	ctx    context.Context
	client *Client
}

func (s clientTokenSource) Token() (*oauth2.Token, error) {
	access, err := s.client.Token(s.ctx)
	if err != nil {
		return nil, err
	}
	s.client.mu.Lock()
	defer s.client.mu.Unlock()
	tok := &oauth2.Token{AccessToken: access, TokenType: "Bearer"}
	if s.client.tokens.ExpiresAt != nil {
		tok.Expiry = *s.client.tokens.ExpiresAt
	}
	return tok, nil
}

// UnauthorizedHandler adapts Client into a transport.UnauthorizedHandler:
// the hook a StreamableHTTPClient calls on a 401 response, per
// SPEC_FULL.md §4.5. A client still Uninitiated runs Bootstrap against
// the resource_metadata URL parsed from the challenge and reports that
// interactive authorization (StartAuthorization/HandleCallback) is
// required before the retry can succeed; a client already through that
// flow returns Token's (refreshed if necessary) access token, which the
// transport uses for its single retry of the original request.
func (c *Client) UnauthorizedHandler() transport.UnauthorizedHandler {
	return func(ctx context.Context, wwwAuthenticate string) (string, error) {
		if c.State() == StateUninitiated {
			resourceMetadataURL, _ := ParseWWWAuthenticate(wwwAuthenticate)
			if err := c.Bootstrap(ctx, resourceMetadataURL); err != nil {
				return "", err
			}
			return "", &mcp.OAuthError{Kind: mcp.OAuthErrorAuthorization, Msg: "authorization required: complete StartAuthorization/HandleCallback before the request can be retried"}
		}
		return c.Token(ctx)
	}
}

func (c *Client) oauth2Config() oauth2.Config {
	c.mu.Lock()
	defer c.mu.Unlock()
	cfg := oauth2.Config{
		ClientID:    c.registration.Credentials.ClientID,
		RedirectURL: c.redirectURI,
		Scopes:      c.scopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:  c.discovery.AuthServer.AuthorizationEndpoint,
			TokenURL: c.discovery.AuthServer.TokenEndpoint,
		},
	}
	if c.registration.Credentials.ClientSecret != nil {
		cfg.ClientSecret = *c.registration.Credentials.ClientSecret
	}
	return cfg
}

// tokenStateFromOAuth2 converts an exchanged/refreshed oauth2.Token into
// TokenState, falling back to decoding the access token as a JWT and
// reading its exp claim when the token response carried no expires_in,
// matching TokenResponse.calculate_expires_at's described fallback.
func tokenStateFromOAuth2(tok *oauth2.Token) TokenState {
	ts := TokenState{AccessToken: tok.AccessToken, TokenType: tok.TokenType}
	if tok.RefreshToken != "" {
		rt := tok.RefreshToken
		ts.RefreshToken = &rt
	}
	if !tok.Expiry.IsZero() {
		exp := tok.Expiry
		ts.ExpiresAt = &exp
		return ts
	}
	if exp, ok := jwtExpiry(tok.AccessToken); ok {
		ts.ExpiresAt = &exp
	}
	return ts
}

// jwtExpiry decodes accessToken as a JWT without verifying its signature
// (the authorization server, not this client, is the one who must trust
// it) purely to read the advisory exp claim.
func jwtExpiry(accessToken string) (time.Time, bool) {
	parser := jwt.NewParser()
	claims := jwt.MapClaims{}
	_, _, err := parser.ParseUnverified(accessToken, claims)
	if err != nil {
		return time.Time{}, false
	}
	expFloat, ok := claims["exp"].(float64)
	if !ok {
		return time.Time{}, false
	}
	return time.Unix(int64(expFloat), 0), true
}
