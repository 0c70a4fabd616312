package identity

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/vylinhq/vylin/internal/config"
	"go.uber.org/zap"
)

func newTestResolver(verifier Verifier, secret string) *Resolver {
	return NewResolver(ResolverParam{
		Log:      zap.NewNop(),
		Cfg:      config.Config{IdentitySecret: secret},
		Verifier: verifier,
	})
}

func TestResolveVerifiedBearer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/auth/v1/user" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer tok-123" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"user-abc"}`))
	}))
	defer srv.Close()

	client := NewAuthClient(config.Config{AuthBaseURL: srv.URL, AuthAnonKey: "anon-key"})
	resolver := newTestResolver(client, "secret")

	id := resolver.Resolve(context.Background(), "Bearer tok-123", "1.2.3.4")
	if !id.Authenticated || id.Subject != "user-abc" {
		t.Fatalf("expected verified identity, got %+v", id)
	}
}

func TestResolveRejectedTokenFallsBackToAnon(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	client := NewAuthClient(config.Config{AuthBaseURL: srv.URL})
	resolver := newTestResolver(client, "secret")

	id := resolver.Resolve(context.Background(), "Bearer bad-token", "1.2.3.4")
	if id.Authenticated {
		t.Fatal("rejected token must not authenticate")
	}
	if !strings.HasPrefix(id.Subject, "anon:") {
		t.Fatalf("expected pseudonymous subject, got %q", id.Subject)
	}
}

func TestResolveWithoutAuthHeader(t *testing.T) {
	resolver := newTestResolver(nil, "secret")

	id := resolver.Resolve(context.Background(), "", "1.2.3.4")
	if id.Authenticated {
		t.Fatal("missing header must not authenticate")
	}
	if !strings.HasPrefix(id.Subject, "anon:") {
		t.Fatalf("expected pseudonymous subject, got %q", id.Subject)
	}
}

func TestAnonTokenStableAndDistinct(t *testing.T) {
	resolver := newTestResolver(nil, "secret")

	a1 := resolver.AnonToken("1.2.3.4")
	a2 := resolver.AnonToken("1.2.3.4")
	b := resolver.AnonToken("5.6.7.8")

	if a1 != a2 {
		t.Fatalf("token must be stable per address: %q vs %q", a1, a2)
	}
	if a1 == b {
		t.Fatal("distinct addresses must produce distinct tokens")
	}
	if strings.Contains(a1, "1.2.3.4") {
		t.Fatal("token must not expose the raw address")
	}
}

func TestAnonTokenDependsOnSecret(t *testing.T) {
	first := newTestResolver(nil, "secret-one").AnonToken("1.2.3.4")
	second := newTestResolver(nil, "secret-two").AnonToken("1.2.3.4")
	if first == second {
		t.Fatal("different keys must produce different tokens")
	}
}
