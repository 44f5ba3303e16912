package oauth

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"time"

	mcp "github.com/Lab11HQ/conduit-mcp-sub001"
	json "github.com/segmentio/encoding/json"
)

// registrationResponse is the RFC 7591 response body: the request's own
// metadata fields echoed back, plus the issued credentials.
type registrationResponse struct {
	ClientID              string  `json:"client_id"`
	ClientSecret          *string `json:"client_secret,omitempty"`
	ClientIDIssuedAt       *int64 `json:"client_id_issued_at,omitempty"`
	ClientSecretExpiresAt *int64  `json:"client_secret_expires_at,omitempty"`
}

// registrationError is the RFC 7591 §3.2.2 error body.
type registrationError struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

// Register performs RFC 7591 dynamic client registration against
// registrationEndpoint, grounded on
// conduit/auth/client/services/registration.py's
// OAuth2Registration.register_client and its per-error-code handling in
// _handle_registration_error.
func Register(ctx context.Context, client *http.Client, registrationEndpoint string, metadata ClientMetadata) (*ClientRegistration, error) {
	for _, ru := range metadata.RedirectURIs {
		if err := validateRedirectURI(ru); err != nil {
			return nil, &mcp.OAuthError{Kind: mcp.OAuthErrorRegistration, Msg: "invalid redirect_uri", Err: err}
		}
	}

	body, err := json.Marshal(metadata)
	if err != nil {
		return nil, &mcp.OAuthError{Kind: mcp.OAuthErrorRegistration, Msg: "encoding registration request", Err: err}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, registrationEndpoint, bytes.NewReader(body))
	if err != nil {
		return nil, &mcp.OAuthError{Kind: mcp.OAuthErrorRegistration, Msg: "building registration request", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, &mcp.OAuthError{Kind: mcp.OAuthErrorRegistration, Msg: "registration request failed", Err: err}
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated:
		var out registrationResponse
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			return nil, &mcp.OAuthError{Kind: mcp.OAuthErrorRegistration, Msg: "decoding registration response", Err: err}
		}
		return &ClientRegistration{
			Metadata:    metadata,
			Credentials: credentialsFromResponse(out),
		}, nil
	case http.StatusUnauthorized:
		return nil, &mcp.OAuthError{Kind: mcp.OAuthErrorRegistration, Msg: "registration requires an initial access token (401)"}
	case http.StatusForbidden:
		return nil, &mcp.OAuthError{Kind: mcp.OAuthErrorRegistration, Msg: "registration forbidden (403)"}
	default:
		var regErr registrationError
		_ = json.NewDecoder(resp.Body).Decode(&regErr)
		switch regErr.Error {
		case "invalid_client_metadata", "invalid_redirect_uri", "invalid_client_uri":
			return nil, &mcp.OAuthError{Kind: mcp.OAuthErrorRegistration, Msg: fmt.Sprintf("%s: %s", regErr.Error, regErr.ErrorDescription)}
		default:
			return nil, &mcp.OAuthError{Kind: mcp.OAuthErrorRegistration, Msg: fmt.Sprintf("registration failed with status %d", resp.StatusCode)}
		}
	}
}

func credentialsFromResponse(r registrationResponse) ClientCredentials {
	c := ClientCredentials{ClientID: r.ClientID, ClientSecret: r.ClientSecret}
	if r.ClientIDIssuedAt != nil {
		t := time.Unix(*r.ClientIDIssuedAt, 0)
		c.ClientIDIssuedAt = &t
	}
	if r.ClientSecretExpiresAt != nil && *r.ClientSecretExpiresAt != 0 {
		t := time.Unix(*r.ClientSecretExpiresAt, 0)
		c.ClientSecretExpiresAt = &t
	}
	return c
}
