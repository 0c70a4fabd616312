// Package identity resolves the charging identity for a request: the
// verified subject of a bearer token when one is presented, otherwise a
// stable pseudonymous token derived from the client address.
package identity

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/vylinhq/vylin/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"golang.org/x/crypto/blake2b"
)

const anonPrefix = "anon:"

// Identity is the resolved charging subject.
type Identity struct {
	Subject       string
	Authenticated bool
}

// Verifier validates a bearer token and returns the stable user id.
type Verifier interface {
	Verify(ctx context.Context, token string) (string, error)
}

// AuthClient verifies bearer tokens against the auth service's user
// endpoint. Any failure reads as "not authenticated", never as a request
// error.
type AuthClient struct {
	baseURL string
	anonKey string
	http    *http.Client
}

func NewAuthClient(cfg config.Config) *AuthClient {
	if cfg.AuthBaseURL == "" {
		return nil
	}
	return &AuthClient{
		baseURL: strings.TrimRight(cfg.AuthBaseURL, "/"),
		anonKey: cfg.AuthAnonKey,
		http:    &http.Client{Timeout: 5 * time.Second},
	}
}

var errUnauthorized = errors.New("token rejected")

func (c *AuthClient) Verify(ctx context.Context, token string) (string, error) {
	if c == nil {
		return "", errUnauthorized
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/auth/v1/user", nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if c.anonKey != "" {
		req.Header.Set("apikey", c.anonKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: status %d", errUnauthorized, resp.StatusCode)
	}

	var user struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&user); err != nil {
		return "", err
	}
	if user.ID == "" {
		return "", errUnauthorized
	}
	return user.ID, nil
}

// Resolver maps an inbound request to its charging identity.
type Resolver struct {
	log      *zap.Logger
	verifier Verifier
	secret   []byte
}

type ResolverParam struct {
	fx.In

	Log      *zap.Logger
	Cfg      config.Config
	Verifier Verifier `optional:"true"`
}

func NewResolver(p ResolverParam) *Resolver {
	return &Resolver{
		log:      p.Log.Named("identity"),
		verifier: p.Verifier,
		secret:   []byte(p.Cfg.IdentitySecret),
	}
}

// Resolve returns the identity for the given Authorization header value and
// client address. Token verification failures degrade to the pseudonymous
// identity; they never block the request.
func (r *Resolver) Resolve(ctx context.Context, authorization, clientIP string) Identity {
	if token := bearerToken(authorization); token != "" && r.verifier != nil {
		subject, err := r.verifier.Verify(ctx, token)
		if err == nil {
			return Identity{Subject: subject, Authenticated: true}
		}
		r.log.Debug("bearer token verification failed", zap.Error(err))
	}
	return Identity{Subject: r.AnonToken(clientIP)}
}

// AnonToken derives a stable pseudonymous subject from the client address.
// Keying the hash keeps raw addresses out of the ledger and logs.
func (r *Resolver) AnonToken(clientIP string) string {
	key := r.secret
	if len(key) > blake2b.Size {
		sum := blake2b.Sum256(key)
		key = sum[:]
	}
	h, err := blake2b.New256(key)
	if err != nil {
		sum := blake2b.Sum256([]byte(clientIP))
		return anonPrefix + hex.EncodeToString(sum[:16])
	}
	_, _ = h.Write([]byte(clientIP))
	return anonPrefix + hex.EncodeToString(h.Sum(nil)[:16])
}

func bearerToken(authorization string) string {
	const prefix = "bearer "
	if len(authorization) <= len(prefix) {
		return ""
	}
	if !strings.EqualFold(authorization[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(authorization[len(prefix):])
}

var Module = fx.Module("identity",
	fx.Provide(
		fx.Annotate(NewAuthClient, fx.As(new(Verifier))),
		NewResolver,
	),
)
