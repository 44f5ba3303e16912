package oauth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestParseWWWAuthenticateExtractsResourceMetadata(t *testing.T) {
	header := `Bearer resource_metadata="https://rs.example.com/.well-known/oauth-protected-resource"`
	got, ok := ParseWWWAuthenticate(header)
	if !ok {
		t.Fatal("expected to find resource_metadata")
	}
	if got != "https://rs.example.com/.well-known/oauth-protected-resource" {
		t.Fatalf("got %q", got)
	}
}

func TestParseWWWAuthenticateMissingParameter(t *testing.T) {
	if _, ok := ParseWWWAuthenticate(`Bearer realm="x"`); ok {
		t.Fatal("expected no resource_metadata to be found")
	}
}

func TestDiscoverFullChain(t *testing.T) {
	var srvURL string
	mux := http.NewServeMux()
	mux.HandleFunc("/.well-known/oauth-protected-resource", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(ProtectedResourceMetadata{
			Resource:             srvURL,
			AuthorizationServers: []string{srvURL},
		})
	})
	mux.HandleFunc("/.well-known/oauth-authorization-server", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(AuthorizationServerMetadata{
			Issuer:                        srvURL,
			AuthorizationEndpoint:         srvURL + "/authorize",
			TokenEndpoint:                 srvURL + "/token",
			CodeChallengeMethodsSupported: []string{"S256"},
		})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()
	srvURL = srv.URL

	result, err := Discover(context.Background(), srv.Client(), srv.URL, srv.URL+"/.well-known/oauth-protected-resource")
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if result.Resource == nil {
		t.Fatal("expected a protected resource document")
	}
	if result.AuthServer.TokenEndpoint != srv.URL+"/token" {
		t.Fatalf("token endpoint = %q", result.AuthServer.TokenEndpoint)
	}
	if !result.ShouldIncludeResourceParam() {
		t.Error("expected resource param to be required once a PRM document is discovered")
	}
}

func TestDiscoverRejectsMissingS256(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/.well-known/oauth-authorization-server", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(AuthorizationServerMetadata{
			Issuer:                        "issuer",
			AuthorizationEndpoint:         "issuer/authorize",
			TokenEndpoint:                 "issuer/token",
			CodeChallengeMethodsSupported: []string{"plain"},
		})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	_, err := Discover(context.Background(), srv.Client(), srv.URL, "")
	if err == nil {
		t.Fatal("expected an error when the authorization server does not support S256")
	}
}
