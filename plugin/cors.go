package plugin

import (
	"github.com/freekieb7/mortar/http"
)

// CORSConfig controls the headers the CORS plugin attaches.
type CORSConfig struct {
	AllowOrigin  string
	AllowMethods string
	AllowHeaders string
}

func DefaultCORSConfig() CORSConfig {
	return CORSConfig{
		AllowOrigin:  "*",
		AllowMethods: "GET, POST, OPTIONS",
		AllowHeaders: "Authorization, Content-Type",
	}
}

// CORSPlugin stamps Access-Control-Allow-Origin on every response and
// short-circuits OPTIONS preflight requests with 204, adding the
// Access-Control-Allow-Methods and Access-Control-Allow-Headers headers.
type CORSPlugin struct {
	http.PluginBase

	config CORSConfig
}

func NewCORSPlugin(config CORSConfig) *CORSPlugin {
	return &CORSPlugin{config: config}
}

func (p *CORSPlugin) Name() string        { return "CORS" }
func (p *CORSPlugin) Description() string { return "Cross-origin resource sharing headers" }
func (p *CORSPlugin) Author() string      { return "mortar" }

// Run before security and business middleware.
func (p *CORSPlugin) Priority() int { return 100 }

func (p *CORSPlugin) RegisterMiddleware(server *http.Server) {
	server.Use(p.middleware)
}

func (p *CORSPlugin) middleware(ctx *http.Context, next http.Next) {
	ctx.SetHeader("Access-Control-Allow-Origin", p.config.AllowOrigin)

	if ctx.Request.Method == http.MethodOptions {
		ctx.Status(http.StatusNoContent).
			SetHeader("Access-Control-Allow-Methods", p.config.AllowMethods).
			SetHeader("Access-Control-Allow-Headers", p.config.AllowHeaders)
		return
	}
	next()
}
