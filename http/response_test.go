package http

import (
	"bytes"
	"strings"
	"testing"
)

func TestResponseBuildExactWireFormat(t *testing.T) {
	resp := NewResponse()
	resp.SetHeader("Content-Type", "text/plain")
	resp.SetBody([]byte("world"))

	expected := "HTTP/1.1 200 OK\r\nContent-Type: text/plain\r\nContent-Length: 5\r\nConnection: close\r\n\r\nworld"
	got := string(resp.Build())

	if got != expected {
		t.Errorf("Expected %q, got %q", expected, got)
	}
}

func TestResponseBuildSingleContentLength(t *testing.T) {
	resp := NewResponse()
	resp.SetBody([]byte("abcdef"))

	wire := string(resp.Build())
	if strings.Count(wire, "Content-Length:") != 1 {
		t.Errorf("Expected exactly one Content-Length header, got %q", wire)
	}
	if !strings.Contains(wire, "Content-Length: 6\r\n") {
		t.Errorf("Expected Content-Length: 6, got %q", wire)
	}

	// An explicit Content-Length is not duplicated.
	resp = NewResponse()
	resp.SetHeader("Content-Length", "6")
	resp.SetBody([]byte("abcdef"))
	wire = string(resp.Build())
	if strings.Count(wire, "Content-Length:") != 1 {
		t.Errorf("Expected exactly one Content-Length header, got %q", wire)
	}
}

func TestResponseBuildEmptyBody(t *testing.T) {
	resp := NewResponse()
	wire := resp.Build()

	if !bytes.Contains(wire, []byte("Content-Length: 0\r\n")) {
		t.Errorf("Expected Content-Length: 0, got %q", wire)
	}
	if !bytes.HasSuffix(wire, []byte("\r\n\r\n")) {
		t.Errorf("Expected header terminator at end, got %q", wire)
	}
}

func TestResponseReasonDerivedFromCode(t *testing.T) {
	cases := []struct {
		code   int
		reason string
	}{
		{200, "OK"},
		{404, "Not Found"},
		{503, "Service Unavailable"},
		{599, "Unknown"},
	}

	for _, tc := range cases {
		resp := NewResponse()
		resp.SetStatus(tc.code)
		if resp.Reason() != tc.reason {
			t.Errorf("Expected %s for %d, got %s", tc.reason, tc.code, resp.Reason())
		}
	}
}

func TestResponseCustomReason(t *testing.T) {
	resp := NewResponse()
	resp.StatusCode = 204
	resp.StatusReason = "No Content Here"

	if !bytes.HasPrefix(resp.Build(), []byte("HTTP/1.1 204 No Content Here\r\n")) {
		t.Errorf("Expected custom reason in status line, got %q", resp.Build())
	}
}

func TestResponseHeaderOrderPreserved(t *testing.T) {
	resp := NewResponse()
	resp.SetHeader("X-First", "1")
	resp.SetHeader("X-Second", "2")
	resp.SetHeader("X-First", "replaced")

	wire := string(resp.Build())
	first := strings.Index(wire, "X-First: replaced")
	second := strings.Index(wire, "X-Second: 2")
	if first < 0 || second < 0 {
		t.Fatalf("headers missing from %q", wire)
	}
	if first > second {
		t.Error("Expected X-First to keep its original position")
	}
}

func TestResponseAddHeaderAppends(t *testing.T) {
	resp := NewResponse()
	resp.AddHeader("Set-Cookie", "a=1")
	resp.AddHeader("Set-Cookie", "b=2")

	wire := string(resp.Build())
	if strings.Count(wire, "Set-Cookie:") != 2 {
		t.Errorf("Expected two Set-Cookie headers, got %q", wire)
	}
}

func TestHeadersCanonicalCasing(t *testing.T) {
	var h Headers
	h.Set("content-type", "text/html")

	h.Each(func(name, value string) {
		if name != "Content-Type" {
			t.Errorf("Expected Content-Type, got %s", name)
		}
	})
}

func TestHeadersGetLastWins(t *testing.T) {
	var h Headers
	h.Add("X-Tag", "one")
	h.Add("x-tag", "two")

	v, found := h.Get("X-TAG")
	if !found || v != "two" {
		t.Errorf("Expected two, got %s found=%v", v, found)
	}
}
