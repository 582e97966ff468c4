package http

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Next advances the pipeline by one step. A middleware that returns
// without calling it short-circuits the chain.
type Next func()

// Middleware runs around the rest of the pipeline. Code before next() runs
// on the way in, code after next() runs once everything downstream
// (including the router) has completed.
type Middleware func(ctx *Context, next Next)

// runChain executes middlewares in registration order, then terminal.
// Calling next() twice from the same middleware is a hard error.
func runChain(ctx *Context, middlewares []Middleware, terminal func(*Context)) {
	var advance func(index int)
	advance = func(index int) {
		if index >= len(middlewares) {
			terminal(ctx)
			return
		}
		called := false
		middlewares[index](ctx, func() {
			if called {
				panic(fmt.Sprintf("http: middleware %d called next() twice", index))
			}
			called = true
			advance(index + 1)
		})
	}
	advance(0)
}

// RecoverMiddleware converts a handler panic into a 500 response.
func RecoverMiddleware(logger *slog.Logger) Middleware {
	return func(ctx *Context, next Next) {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("handler panic", "path", ctx.Request.Path, "panic", r)
				ctx.Status(StatusInternalServerError).JSON(`{"error":"internal server error"}`)
			}
		}()
		next()
	}
}

// AccessLogMiddleware logs method, path, status and duration for every
// request after the downstream pipeline completes.
func AccessLogMiddleware(logger *slog.Logger) Middleware {
	return func(ctx *Context, next Next) {
		start := time.Now()
		next()
		logger.Info("request",
			"method", ctx.Request.Method.String(),
			"path", ctx.Request.Path,
			"status", ctx.Response.StatusCode,
			"duration", time.Since(start),
		)
	}
}

// RequestIDMiddleware tags each request with a v4 UUID, exposed to
// downstream handlers via the context state and to clients via the
// X-Request-Id header.
func RequestIDMiddleware() Middleware {
	return func(ctx *Context, next Next) {
		id := uuid.NewString()
		ctx.Set("request_id", id)
		ctx.SetHeader("X-Request-Id", id)
		next()
	}
}
