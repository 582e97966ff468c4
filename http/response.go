package http

import (
	"strconv"
	"strings"
)

// Response accumulates a status line, headers and body during the build
// phase. Build produces the immutable wire form.
type Response struct {
	StatusCode   int
	StatusReason string // empty derives from StatusCode
	Headers      Headers
	Body         []byte
}

func NewResponse() *Response {
	return &Response{StatusCode: StatusOK}
}

func (r *Response) SetStatus(code int) *Response {
	r.StatusCode = code
	r.StatusReason = ""
	return r
}

func (r *Response) SetHeader(name, value string) *Response {
	r.Headers.Set(name, value)
	return r
}

func (r *Response) AddHeader(name, value string) *Response {
	r.Headers.Add(name, value)
	return r
}

func (r *Response) SetBody(body []byte) *Response {
	r.Body = body
	return r
}

func (r *Response) Reason() string {
	if r.StatusReason != "" {
		return r.StatusReason
	}
	if text := StatusText(r.StatusCode); text != "" {
		return text
	}
	return "Unknown"
}

// Build serializes the response. Content-Length is added when absent and
// Connection defaults to close; the server does not honor keep-alive.
func (r *Response) Build() []byte {
	if !r.Headers.Has("Content-Length") {
		r.Headers.Set("Content-Length", strconv.Itoa(len(r.Body)))
	}
	if !r.Headers.Has("Connection") {
		r.Headers.Set("Connection", "close")
	}

	var b strings.Builder
	b.Grow(64 + r.Headers.Len()*32 + len(r.Body))

	b.WriteString("HTTP/1.1 ")
	b.WriteString(strconv.Itoa(r.StatusCode))
	b.WriteByte(' ')
	b.WriteString(r.Reason())
	b.WriteString("\r\n")

	r.Headers.Each(func(name, value string) {
		b.WriteString(name)
		b.WriteString(": ")
		b.WriteString(value)
		b.WriteString("\r\n")
	})

	b.WriteString("\r\n")
	b.Write(r.Body)

	return []byte(b.String())
}
