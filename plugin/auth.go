package plugin

import (
	"crypto/subtle"
	"fmt"
	"log/slog"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/freekieb7/mortar/http"
)

// AuthConfig configures the auth plugin. With a JWTSecret the bearer token
// is validated as an HS256 JWT and its claims are stored in the context
// state under "user"; otherwise the token is compared against the static
// Token.
type AuthConfig struct {
	// Token is the shared secret for static-token mode.
	Token string

	// JWTSecret switches the plugin to JWT validation when non-empty.
	JWTSecret string

	// ProtectedPrefixes lists path prefixes that require authentication.
	// An exact path is its own prefix.
	ProtectedPrefixes []string
}

func DefaultAuthConfig(token string) AuthConfig {
	return AuthConfig{
		Token:             token,
		ProtectedPrefixes: []string{"/api/", "/stream", "/upload"},
	}
}

// AuthPlugin guards configured path prefixes with a bearer token. The
// token travels in the Authorization header, or in the "token" query
// parameter for clients that cannot set headers (an <img> pointed at the
// stream endpoint).
type AuthPlugin struct {
	http.PluginBase

	config AuthConfig
	logger *slog.Logger
}

func NewAuthPlugin(config AuthConfig) *AuthPlugin {
	return &AuthPlugin{config: config, logger: slog.Default()}
}

func (p *AuthPlugin) Name() string        { return "Auth" }
func (p *AuthPlugin) Description() string { return "Bearer token / JWT guard for protected routes" }
func (p *AuthPlugin) Author() string      { return "mortar" }

// Security runs after CORS, before business plugins.
func (p *AuthPlugin) Priority() int { return 200 }

func (p *AuthPlugin) Initialize(server *http.Server) error {
	if p.config.Token == "" && p.config.JWTSecret == "" {
		return fmt.Errorf("auth: no token and no JWT secret configured")
	}
	return nil
}

func (p *AuthPlugin) RegisterMiddleware(server *http.Server) {
	server.Use(p.middleware)
}

func (p *AuthPlugin) middleware(ctx *http.Context, next http.Next) {
	if !p.protected(ctx.Request.Path) {
		next()
		return
	}

	token := p.extractToken(ctx)
	if token == "" {
		p.deny(ctx, "missing credentials")
		return
	}

	if p.config.JWTSecret != "" {
		claims, err := p.validateJWT(token)
		if err != nil {
			p.deny(ctx, err.Error())
			return
		}
		ctx.Set("user", claims)
	} else if subtle.ConstantTimeCompare([]byte(token), []byte(p.config.Token)) != 1 {
		p.deny(ctx, "invalid token")
		return
	}

	next()
}

func (p *AuthPlugin) protected(path string) bool {
	for _, prefix := range p.config.ProtectedPrefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

func (p *AuthPlugin) extractToken(ctx *http.Context) string {
	if auth, found := ctx.Header("Authorization"); found {
		parts := strings.SplitN(auth, " ", 2)
		if len(parts) == 2 && parts[0] == "Bearer" {
			return parts[1]
		}
		return ""
	}
	token, _ := ctx.Query("token")
	return token
}

func (p *AuthPlugin) validateJWT(tokenString string) (jwt.MapClaims, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (any, error) {
		if token.Method.Alg() != "HS256" {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(p.config.JWTSecret), nil
	})
	if err != nil {
		return nil, fmt.Errorf("invalid token")
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid claims")
	}
	return claims, nil
}

func (p *AuthPlugin) deny(ctx *http.Context, reason string) {
	p.logger.Warn("unauthorized access attempt", "path", ctx.Request.Path, "reason", reason)
	ctx.Status(http.StatusUnauthorized).JSON(`{"error":"Unauthorized"}`)
}
