package http

import (
	"fmt"
	"log/slog"
	"regexp"
	"strings"
)

// CatchAllParam is the parameter name a trailing "*" captures under.
const CatchAllParam = "*"

// Router compiles path templates and dispatches by (method, path). Routes
// match in insertion order; the first registered route wins.
//
// Template syntax: literal segments separated by "/"; a segment beginning
// with ":" captures one segment; a trailing "*" (or "/*") captures the
// remaining path, slashes included.
type Router struct {
	prefix string
	root   *Router // nil on the root router
	routes []Route
	logger *slog.Logger
}

func NewRouter() *Router {
	return &Router{logger: slog.Default()}
}

// Group returns a child router that prepends prefix to every template
// registered through it. Groups compose; nested prefixes concatenate.
func (r *Router) Group(prefix string) *Router {
	return &Router{prefix: r.prefix + prefix, root: r.rootRouter()}
}

func (r *Router) rootRouter() *Router {
	if r.root != nil {
		return r.root
	}
	return r
}

// Register compiles template and appends the route. Compilation errors are
// surfaced here, never at match time.
func (r *Router) Register(method Method, template string, handler Handler) error {
	full := r.prefix + template

	pattern, paramNames, err := compileTemplate(full)
	if err != nil {
		return err
	}

	root := r.rootRouter()
	for i := range root.routes {
		if root.routes[i].Method == method && root.routes[i].Template == full {
			root.logger.Debug("route shadowed by earlier registration",
				"method", method.String(), "template", full)
		}
	}

	root.routes = append(root.routes, Route{
		Method:     method,
		Template:   full,
		Handler:    handler,
		pattern:    pattern,
		paramNames: paramNames,
	})
	return nil
}

func (r *Router) Get(template string, handler Handler) error {
	return r.Register(MethodGet, template, handler)
}

func (r *Router) Post(template string, handler Handler) error {
	return r.Register(MethodPost, template, handler)
}

func (r *Router) Put(template string, handler Handler) error {
	return r.Register(MethodPut, template, handler)
}

func (r *Router) Delete(template string, handler Handler) error {
	return r.Register(MethodDelete, template, handler)
}

func (r *Router) Patch(template string, handler Handler) error {
	return r.Register(MethodPatch, template, handler)
}

func (r *Router) Options(template string, handler Handler) error {
	return r.Register(MethodOptions, template, handler)
}

func (r *Router) Head(template string, handler Handler) error {
	return r.Register(MethodHead, template, handler)
}

// Match tests routes in insertion order against the context's request. On
// the first hit it extracts parameters in template order and invokes the
// handler exactly once. Returns false when no route matched.
func (r *Router) Match(ctx *Context) bool {
	root := r.rootRouter()
	method := ctx.Request.Method
	path := ctx.Request.Path

	for i := range root.routes {
		route := &root.routes[i]
		if route.Method != method {
			continue
		}
		captures := route.pattern.FindStringSubmatch(path)
		if captures == nil {
			continue
		}
		for j, name := range route.paramNames {
			ctx.setParam(name, captures[j+1])
		}
		route.Handler(ctx)
		return true
	}
	return false
}

// Allowed lists the methods of routes whose template matches path,
// regardless of method. Used for 405 responses.
func (r *Router) Allowed(path string) []Method {
	root := r.rootRouter()
	var methods []Method
	for i := range root.routes {
		if root.routes[i].pattern.MatchString(path) {
			methods = append(methods, root.routes[i].Method)
		}
	}
	return methods
}

// Routes returns the current table size.
func (r *Router) Routes() int {
	return len(r.rootRouter().routes)
}

// compileTemplate turns a path template into an anchored regexp plus the
// capture names in template order. Regex metacharacters in literal
// segments are escaped.
func compileTemplate(template string) (*regexp.Regexp, []string, error) {
	var paramNames []string
	var b strings.Builder
	b.WriteByte('^')

	pos := 0
	for pos < len(template) {
		switch {
		case template[pos] == ':':
			end := strings.IndexByte(template[pos:], '/')
			if end < 0 {
				end = len(template)
			} else {
				end += pos
			}
			name := template[pos+1 : end]
			if name == "" {
				return nil, nil, fmt.Errorf("http: empty parameter name in template %q", template)
			}
			paramNames = append(paramNames, name)
			b.WriteString("([^/]+)")
			pos = end
		case template[pos] == '*' && pos == len(template)-1:
			paramNames = append(paramNames, CatchAllParam)
			b.WriteString("(.*)")
			pos++
		default:
			b.WriteString(regexp.QuoteMeta(string(template[pos])))
			pos++
		}
	}
	b.WriteByte('$')

	pattern, err := regexp.Compile(b.String())
	if err != nil {
		return nil, nil, fmt.Errorf("http: invalid route template %q: %w", template, err)
	}
	return pattern, paramNames, nil
}
