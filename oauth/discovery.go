package oauth

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	mcp "github.com/Lab11HQ/conduit-mcp-sub001"
	json "github.com/segmentio/encoding/json"
)

// discoverResourceMetadata fetches the RFC 9728 protected-resource
// document. metadataURL is either parsed from a 401 response's
// WWW-Authenticate header (ParseWWWAuthenticate) or derived from
// serverURL's well-known path when the server never sent that
// challenge, grounded on conduit's DiscoveryService (models/discovery.py)
// and AuthManager.handle_unauthorized's two-step fetch.
func discoverResourceMetadata(ctx context.Context, client *http.Client, metadataURL string) (*ProtectedResourceMetadata, error) {
	var meta ProtectedResourceMetadata
	if err := fetchJSON(ctx, client, metadataURL, &meta); err != nil {
		return nil, &mcp.OAuthError{Kind: mcp.OAuthErrorDiscovery, Msg: "fetching protected resource metadata", Err: err}
	}
	if len(meta.AuthorizationServers) == 0 {
		return nil, &mcp.OAuthError{Kind: mcp.OAuthErrorDiscovery, Msg: "protected resource metadata names no authorization servers"}
	}
	return &meta, nil
}

// discoverAuthorizationServerMetadata fetches the RFC 8414 document for
// authServerURL, preferring its well-known endpoint over bare issuer
// discovery since MCP authorization servers are not guaranteed to
// support OpenID Connect discovery.
func discoverAuthorizationServerMetadata(ctx context.Context, client *http.Client, authServerURL string) (*AuthorizationServerMetadata, error) {
	wellKnown, err := wellKnownURL(authServerURL, "oauth-authorization-server")
	if err != nil {
		return nil, &mcp.OAuthError{Kind: mcp.OAuthErrorDiscovery, Msg: "building authorization server metadata url", Err: err}
	}
	var meta AuthorizationServerMetadata
	if err := fetchJSON(ctx, client, wellKnown, &meta); err != nil {
		return nil, &mcp.OAuthError{Kind: mcp.OAuthErrorDiscovery, Msg: "fetching authorization server metadata", Err: err}
	}
	if err := meta.validate(); err != nil {
		return nil, &mcp.OAuthError{Kind: mcp.OAuthErrorDiscovery, Msg: "validating authorization server metadata", Err: err}
	}
	return &meta, nil
}

// Discover runs the full chain: protected-resource metadata (if
// resourceMetadataURL is non-empty) followed by authorization-server
// metadata for the first server the resource document names, or for
// serverURL itself when no protected-resource document exists.
func Discover(ctx context.Context, client *http.Client, serverURL, resourceMetadataURL string) (*DiscoveryResult, error) {
	var resource *ProtectedResourceMetadata
	authServerURL := serverURL
	if resourceMetadataURL != "" {
		var err error
		resource, err = discoverResourceMetadata(ctx, client, resourceMetadataURL)
		if err != nil {
			return nil, err
		}
		authServerURL = resource.AuthorizationServers[0]
	}
	authMeta, err := discoverAuthorizationServerMetadata(ctx, client, authServerURL)
	if err != nil {
		return nil, err
	}
	return &DiscoveryResult{Resource: resource, AuthServer: *authMeta}, nil
}

// ParseWWWAuthenticate extracts the resource_metadata parameter from a
// 401 response's WWW-Authenticate header, per RFC 9728 §5.1.
func ParseWWWAuthenticate(header string) (resourceMetadataURL string, ok bool) {
	const key = "resource_metadata="
	idx := strings.Index(header, key)
	if idx < 0 {
		return "", false
	}
	rest := header[idx+len(key):]
	rest = strings.TrimPrefix(rest, `"`)
	if end := strings.IndexAny(rest, `", `); end >= 0 {
		rest = rest[:end]
	}
	if rest == "" {
		return "", false
	}
	return rest, true
}

// wellKnownURL builds https://host/.well-known/<name> for an issuer URL
// that may itself carry a path, preserving that path per RFC 8414 §3.1's
// path-insertion rule (the well-known segment goes before the issuer's
// own path, not appended after it).
func wellKnownURL(issuer, name string) (string, error) {
	u, err := url.Parse(issuer)
	if err != nil {
		return "", err
	}
	path := strings.TrimSuffix(u.Path, "/")
	u.Path = "/.well-known/" + name + path
	return u.String(), nil
}

func fetchJSON(ctx context.Context, client *http.Client, rawURL string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d fetching %s", resp.StatusCode, rawURL)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
