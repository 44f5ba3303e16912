package oauth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestRegisterSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var got ClientMetadata
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Fatalf("decode request body: %v", err)
		}
		if got.TokenEndpointAuthMethod != "none" {
			t.Errorf("token_endpoint_auth_method = %q, want none", got.TokenEndpointAuthMethod)
		}
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(registrationResponse{ClientID: "client-123"})
	}))
	defer srv.Close()

	reg, err := Register(context.Background(), srv.Client(), srv.URL, NewClientMetadata("https://app.example.com/cb", "test-client"))
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if reg.Credentials.ClientID != "client-123" {
		t.Fatalf("client id = %q", reg.Credentials.ClientID)
	}
}

func TestRegisterRejectsInvalidRedirectURI(t *testing.T) {
	_, err := Register(context.Background(), http.DefaultClient, "https://as.example.com/register", ClientMetadata{
		RedirectURIs: []string{"http://not-localhost.example.com/cb"},
	})
	if err == nil {
		t.Fatal("expected an error for a non-HTTPS, non-localhost redirect_uri")
	}
}

func TestRegister4xxSurfacesTypedError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(registrationError{Error: "invalid_client_metadata", ErrorDescription: "bad redirect_uris"})
	}))
	defer srv.Close()

	_, err := Register(context.Background(), srv.Client(), srv.URL, NewClientMetadata("https://app.example.com/cb", "test-client"))
	if err == nil {
		t.Fatal("expected an error on a 4xx registration response")
	}
}
