package oauth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"
)

// TestClientFullBootstrapFlow covers SPEC_FULL.md §8 scenario 5's
// discovery → registration → authorize → callback → token-exchange
// chain against a fake authorization server.
func TestClientFullBootstrapFlow(t *testing.T) {
	var srvURL string
	mux := http.NewServeMux()
	mux.HandleFunc("/.well-known/oauth-authorization-server", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(AuthorizationServerMetadata{
			Issuer:                        srvURL,
			AuthorizationEndpoint:         srvURL + "/authorize",
			TokenEndpoint:                 srvURL + "/token",
			RegistrationEndpoint:          strPtr(srvURL + "/register"),
			CodeChallengeMethodsSupported: []string{"S256"},
		})
	})
	mux.HandleFunc("/register", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(registrationResponse{ClientID: "dyn-client-1"})
	})
	var gotCodeVerifier, gotCodeChallenge string
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Fatalf("parse token request form: %v", err)
		}
		gotCodeVerifier = r.Form.Get("code_verifier")
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"access_token":  "access-xyz",
			"token_type":    "Bearer",
			"expires_in":    3600,
			"refresh_token": "refresh-xyz",
		})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()
	srvURL = srv.URL

	client := NewClient(srv.URL, "https://app.example.com/callback", "test-client", WithHTTPClient(srv.Client()))
	if err := client.Bootstrap(context.Background(), ""); err != nil {
		t.Fatalf("Bootstrap: %v", err)
	}
	if client.State() != StateRegistered {
		t.Fatalf("state after Bootstrap = %v, want StateRegistered", client.State())
	}

	authURL, err := client.StartAuthorization(context.Background())
	if err != nil {
		t.Fatalf("StartAuthorization: %v", err)
	}
	parsed, err := url.Parse(authURL)
	if err != nil {
		t.Fatalf("parse auth url: %v", err)
	}
	q := parsed.Query()
	if q.Get("response_type") != "code" {
		t.Errorf("response_type = %q, want code", q.Get("response_type"))
	}
	if q.Get("code_challenge_method") != "S256" {
		t.Errorf("code_challenge_method = %q, want S256", q.Get("code_challenge_method"))
	}
	if q.Get("client_id") != "dyn-client-1" {
		t.Errorf("client_id = %q, want dyn-client-1", q.Get("client_id"))
	}
	state := q.Get("state")
	gotCodeChallenge = q.Get("code_challenge")
	if state == "" || gotCodeChallenge == "" {
		t.Fatal("expected non-empty state and code_challenge in the authorization URL")
	}

	callback := "https://app.example.com/callback?code=auth-code-1&state=" + state
	if err := client.HandleCallback(context.Background(), callback); err != nil {
		t.Fatalf("HandleCallback: %v", err)
	}
	if client.State() != StateAuthorized {
		t.Fatalf("state after HandleCallback = %v, want StateAuthorized", client.State())
	}

	access, err := client.Token(context.Background())
	if err != nil {
		t.Fatalf("Token: %v", err)
	}
	if access != "access-xyz" {
		t.Fatalf("access token = %q", access)
	}
	if gotCodeVerifier == "" {
		t.Fatal("expected the token request to carry the PKCE code_verifier")
	}
}

func TestClientHandleCallbackRejectsStateMismatch(t *testing.T) {
	client := NewClient("https://server.example.com", "https://app.example.com/callback", "test-client")
	client.authState = "expected-state"
	client.discovery = &DiscoveryResult{}
	client.registration = &ClientRegistration{}

	err := client.HandleCallback(context.Background(), "https://app.example.com/callback?code=abc&state=wrong-state")
	if err == nil {
		t.Fatal("expected an error for a mismatched state parameter")
	}
	if !strings.Contains(err.Error(), "state") {
		t.Fatalf("expected a state-related error, got %v", err)
	}
}

func TestClientHandleCallbackDistinguishesAuthServerError(t *testing.T) {
	client := NewClient("https://server.example.com", "https://app.example.com/callback", "test-client")
	err := client.HandleCallback(context.Background(), "https://app.example.com/callback?error=access_denied&error_description=user+declined")
	if err == nil {
		t.Fatal("expected an error")
	}
	if !strings.Contains(err.Error(), "access_denied") {
		t.Fatalf("expected the authorization-server error to be surfaced, got %v", err)
	}
}

// TestClientRefreshFailureResetsToUninitiated covers SPEC_FULL.md
// §4.6's "Authorized → Refreshing → Authorized" transition's failure
// branch: "On failure, transition back to Uninitiated so the next send
// triggers full rediscovery/re-authorization." A client stuck retrying
// a dead refresh token forever (rather than rediscovering) would never
// recover once its refresh token is revoked server-side.
func TestClientRefreshFailureResetsToUninitiated(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]any{"error": "invalid_grant"})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	client := NewClient(srv.URL, "https://app.example.com/callback", "test-client", WithHTTPClient(srv.Client()))
	client.mu.Lock()
	client.state = StateAuthorized
	client.discovery = &DiscoveryResult{AuthServer: AuthorizationServerMetadata{
		AuthorizationEndpoint: srv.URL + "/authorize",
		TokenEndpoint:         srv.URL + "/token",
	}}
	client.registration = &ClientRegistration{Credentials: ClientCredentials{ClientID: "test-client"}}
	expired := time.Now().Add(-time.Hour)
	refreshToken := "dead-refresh-token"
	client.tokens = TokenState{AccessToken: "stale-access", ExpiresAt: &expired, RefreshToken: &refreshToken}
	client.mu.Unlock()

	if _, err := client.Token(context.Background()); err == nil {
		t.Fatal("expected Token to surface the refresh failure, got nil error")
	}

	if got := client.State(); got != StateUninitiated {
		t.Fatalf("state after failed refresh = %v, want StateUninitiated", got)
	}
	client.mu.Lock()
	tokens := client.tokens
	client.mu.Unlock()
	if tokens.AccessToken != "" || tokens.RefreshToken != nil {
		t.Fatalf("tokens after failed refresh = %+v, want zero value", tokens)
	}

	// A second Token() call must not loop forever retrying the dead
	// refresh token: with tokens cleared, CanRefresh() is false and it
	// fails fast instead of calling refresh() again.
	if _, err := client.Token(context.Background()); err == nil {
		t.Fatal("expected a second Token call to still fail without looping")
	}
}

func strPtr(s string) *string { return &s }
