package http

import (
	"github.com/goccy/go-json"
)

// Context bundles one request with the response being built for it, the
// extracted path parameters, and a scratch map middleware uses to pass
// values downstream. A context lives for exactly one worker task.
type Context struct {
	Request  *Request
	Response *Response

	params map[string]string
	state  map[string]any
	stream StreamFunc
}

func NewContext(req *Request, resp *Response) *Context {
	return &Context{Request: req, Response: resp}
}

// Param returns a path parameter captured by the matched route template.
func (c *Context) Param(name string) (string, bool) {
	v, found := c.params[name]
	return v, found
}

func (c *Context) setParam(name, value string) {
	if c.params == nil {
		c.params = make(map[string]string)
	}
	c.params[name] = value
}

func (c *Context) Query(name string) (string, bool) {
	return c.Request.QueryParam(name)
}

// Header returns a request header by case-insensitive name.
func (c *Context) Header(name string) (string, bool) {
	return c.Request.Header(name)
}

// ========== RESPONSE BUILDERS ==========

func (c *Context) Status(code int) *Context {
	c.Response.SetStatus(code)
	return c
}

func (c *Context) SetHeader(name, value string) *Context {
	c.Response.SetHeader(name, value)
	return c
}

func (c *Context) AddHeader(name, value string) *Context {
	c.Response.AddHeader(name, value)
	return c
}

func (c *Context) Body(body []byte) *Context {
	c.Response.SetBody(body)
	return c
}

// JSON encodes payload and sets the content type. A string or []byte
// payload is written verbatim.
func (c *Context) JSON(payload any) *Context {
	c.Response.SetHeader("Content-Type", "application/json")
	switch v := payload.(type) {
	case string:
		c.Response.SetBody([]byte(v))
	case []byte:
		c.Response.SetBody(v)
	default:
		data, err := json.Marshal(payload)
		if err != nil {
			c.Response.SetStatus(StatusInternalServerError)
			c.Response.SetBody([]byte(`{"error":"encoding failed"}`))
			return c
		}
		c.Response.SetBody(data)
	}
	return c
}

func (c *Context) HTML(content string) *Context {
	c.Response.SetHeader("Content-Type", "text/html")
	c.Response.SetBody([]byte(content))
	return c
}

func (c *Context) Text(content string) *Context {
	c.Response.SetHeader("Content-Type", "text/plain")
	c.Response.SetBody([]byte(content))
	return c
}

// Redirect points the client at url. The code defaults to 302.
func (c *Context) Redirect(url string, code ...int) *Context {
	status := StatusFound
	if len(code) > 0 {
		status = code[0]
	}
	c.Response.SetStatus(status)
	c.Response.SetHeader("Location", url)
	return c
}

// ========== STATE ==========

// Set stores a value for downstream middleware and handlers.
func (c *Context) Set(key string, value any) {
	if c.state == nil {
		c.state = make(map[string]any)
	}
	c.state[key] = value
}

// Get retrieves a stored value. The second return is false when the key is
// absent or holds a different type.
func Get[T any](c *Context, key string) (T, bool) {
	var zero T
	if c.state == nil {
		return zero, false
	}
	v, found := c.state[key]
	if !found {
		return zero, false
	}
	typed, ok := v.(T)
	if !ok {
		return zero, false
	}
	return typed, true
}

// ========== STREAMING ==========

// Stream switches the response to the stream continuation kind: the worker
// skips buffered serialization and hands the socket plus the server's
// shutdown signal to fn.
func (c *Context) Stream(fn StreamFunc) {
	c.stream = fn
}

// StreamFunc returns the installed continuation, nil for buffered
// responses.
func (c *Context) StreamFunc() StreamFunc {
	return c.stream
}
