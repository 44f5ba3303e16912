package oauth

import (
	"testing"
	"time"
)

func TestValidateRedirectURIAcceptsHTTPSAndLocalhost(t *testing.T) {
	good := []string{
		"https://app.example.com/callback",
		"http://localhost:8080/callback",
		"http://127.0.0.1:9000/cb",
	}
	for _, uri := range good {
		if err := validateRedirectURI(uri); err != nil {
			t.Errorf("validateRedirectURI(%q): unexpected error %v", uri, err)
		}
	}
}

func TestValidateRedirectURIRejectsPlainHTTP(t *testing.T) {
	bad := []string{
		"http://example.com/callback",
		"ftp://example.com/callback",
		"not a url",
	}
	for _, uri := range bad {
		if err := validateRedirectURI(uri); err == nil {
			t.Errorf("validateRedirectURI(%q): expected error", uri)
		}
	}
}

func TestResourceURLCanonicalizationIsIdempotent(t *testing.T) {
	d := DiscoveryResult{}
	first, err := d.ResourceURL("HTTPS://Example.COM:443/Path/")
	if err != nil {
		t.Fatalf("ResourceURL: %v", err)
	}
	second, err := d.ResourceURL(first)
	if err != nil {
		t.Fatalf("ResourceURL (second pass): %v", err)
	}
	if first != second {
		t.Fatalf("canonicalization not idempotent: %q != %q", first, second)
	}
	if first != "https://example.com/Path" {
		t.Fatalf("got %q, want lowercase scheme/host, default port stripped, trailing slash stripped, path case preserved", first)
	}
}

func TestResourceURLPrefersProtectedResourceDocument(t *testing.T) {
	d := DiscoveryResult{Resource: &ProtectedResourceMetadata{Resource: "https://rs.example.com/mcp"}}
	got, err := d.ResourceURL("https://ignored.example.com")
	if err != nil {
		t.Fatalf("ResourceURL: %v", err)
	}
	if got != "https://rs.example.com/mcp" {
		t.Fatalf("got %q, want the protected resource document's declared resource", got)
	}
}

func TestShouldIncludeResourceParam(t *testing.T) {
	withResource := DiscoveryResult{Resource: &ProtectedResourceMetadata{}}
	withoutResource := DiscoveryResult{}
	if !withResource.ShouldIncludeResourceParam() {
		t.Error("expected true when a protected-resource document was discovered")
	}
	if withoutResource.ShouldIncludeResourceParam() {
		t.Error("expected false when no protected-resource document exists")
	}
}

func TestTokenStateIsValid(t *testing.T) {
	future := time.Now().Add(time.Hour)
	past := time.Now().Add(-time.Hour)
	soon := time.Now().Add(10 * time.Second)

	cases := []struct {
		name  string
		state TokenState
		want  bool
	}{
		{"no token", TokenState{}, false},
		{"no expiry", TokenState{AccessToken: "a"}, true},
		{"future expiry", TokenState{AccessToken: "a", ExpiresAt: &future}, true},
		{"past expiry", TokenState{AccessToken: "a", ExpiresAt: &past}, false},
		{"within buffer", TokenState{AccessToken: "a", ExpiresAt: &soon}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.state.IsValid(0); got != tc.want {
				t.Errorf("IsValid() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestTokenStateCanRefresh(t *testing.T) {
	rt := "refresh-token"
	withRefresh := TokenState{RefreshToken: &rt}
	withoutRefresh := TokenState{}
	if !withRefresh.CanRefresh() {
		t.Error("expected CanRefresh true when a refresh token is set")
	}
	if withoutRefresh.CanRefresh() {
		t.Error("expected CanRefresh false with no refresh token")
	}
}

func TestClientCredentialsIsExpired(t *testing.T) {
	past := time.Now().Add(-time.Hour)
	future := time.Now().Add(time.Hour)
	if (ClientCredentials{ClientSecretExpiresAt: &past}).IsExpired() != true {
		t.Error("expected expired credentials to report true")
	}
	if (ClientCredentials{ClientSecretExpiresAt: &future}).IsExpired() != false {
		t.Error("expected non-expired credentials to report false")
	}
	if (ClientCredentials{}).IsExpired() != false {
		t.Error("expected credentials with no expiry to never be considered expired")
	}
}
