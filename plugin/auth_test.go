package plugin

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/freekieb7/mortar/http"
)

func authContext(method http.Method, path string, headers map[string]string, query map[string]string) *http.Context {
	if query == nil {
		query = map[string]string{}
	}
	req := &http.Request{Method: method, Path: path, Query: query}
	for name, value := range headers {
		req.Headers.Set(name, value)
	}
	return http.NewContext(req, http.NewResponse())
}

func runAuth(p *AuthPlugin, ctx *http.Context) bool {
	passed := false
	p.middleware(ctx, func() { passed = true })
	return passed
}

func TestAuthUnprotectedPathPasses(t *testing.T) {
	p := NewAuthPlugin(DefaultAuthConfig("tok"))

	ctx := authContext(http.MethodGet, "/index.html", nil, nil)
	if !runAuth(p, ctx) {
		t.Error("Expected unprotected path to pass through")
	}
}

func TestAuthMissingTokenDenied(t *testing.T) {
	p := NewAuthPlugin(DefaultAuthConfig("tok"))

	ctx := authContext(http.MethodGet, "/api/status", nil, nil)
	if runAuth(p, ctx) {
		t.Error("Expected request without credentials to be denied")
	}
	if ctx.Response.StatusCode != http.StatusUnauthorized {
		t.Errorf("Expected 401, got %d", ctx.Response.StatusCode)
	}
	if string(ctx.Response.Body) != `{"error":"Unauthorized"}` {
		t.Errorf("Expected JSON error body, got %s", ctx.Response.Body)
	}
}

func TestAuthBearerToken(t *testing.T) {
	p := NewAuthPlugin(DefaultAuthConfig("tok"))

	ctx := authContext(http.MethodGet, "/api/status", map[string]string{"Authorization": "Bearer tok"}, nil)
	if !runAuth(p, ctx) {
		t.Error("Expected valid bearer token to pass")
	}

	ctx = authContext(http.MethodGet, "/api/status", map[string]string{"Authorization": "Bearer wrong"}, nil)
	if runAuth(p, ctx) {
		t.Error("Expected wrong token to be denied")
	}

	ctx = authContext(http.MethodGet, "/api/status", map[string]string{"Authorization": "Basic dXNlcg=="}, nil)
	if runAuth(p, ctx) {
		t.Error("Expected non-bearer scheme to be denied")
	}
}

func TestAuthQueryTokenForStream(t *testing.T) {
	p := NewAuthPlugin(DefaultAuthConfig("tok"))

	ctx := authContext(http.MethodGet, "/stream", nil, map[string]string{"token": "tok"})
	if !runAuth(p, ctx) {
		t.Error("Expected query parameter token to pass")
	}

	ctx = authContext(http.MethodGet, "/stream", nil, map[string]string{"token": "bad"})
	if runAuth(p, ctx) {
		t.Error("Expected wrong query token to be denied")
	}
}

func TestAuthJWTMode(t *testing.T) {
	secret := "jwt_secret_key"
	p := NewAuthPlugin(AuthConfig{
		JWTSecret:         secret,
		ProtectedPrefixes: []string{"/api/"},
	})

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "operator",
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		t.Fatal(err)
	}

	ctx := authContext(http.MethodGet, "/api/status", map[string]string{"Authorization": "Bearer " + signed}, nil)
	if !runAuth(p, ctx) {
		t.Fatal("Expected valid JWT to pass")
	}

	claims, found := http.Get[jwt.MapClaims](ctx, "user")
	if !found {
		t.Fatal("Expected claims stored in context state")
	}
	if claims["sub"] != "operator" {
		t.Errorf("Expected sub operator, got %v", claims["sub"])
	}

	// Token signed with a different secret is rejected.
	forged, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "x"}).
		SignedString([]byte("other_secret"))
	ctx = authContext(http.MethodGet, "/api/status", map[string]string{"Authorization": "Bearer " + forged}, nil)
	if runAuth(p, ctx) {
		t.Error("Expected forged JWT to be denied")
	}
}

func TestAuthInitializeRequiresSecret(t *testing.T) {
	p := NewAuthPlugin(AuthConfig{ProtectedPrefixes: []string{"/api/"}})
	if err := p.Initialize(nil); err == nil {
		t.Error("Expected init failure without token or secret")
	}
}
