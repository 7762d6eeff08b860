// Package httpclient is the thin HTTP/1.1 layer on top of the TCP
// engine: it builds a minimal GET request, drives one connection to
// completion, and parses the response well enough to hand the caller a
// status code and a body.
package httpclient

import (
	"fmt"
	"net/url"
	"strings"
)

// newline is the wire line terminator HTTP/1.1 requires.
const newline = "\r\n"

// Request is a single outgoing HTTP/1.1 request. Only GET is ever issued
// by this client, but Build keeps the same initial-line/header/body
// split the original Python client used, so adding another method later
// is a matter of setting Method to a different verb before calling Build.
type Request struct {
	Method  string
	URL     *url.URL
	Headers map[string]string
	Body    string
}

// NewGetRequest parses rawURL and builds a Request for it with no body.
func NewGetRequest(rawURL string) (*Request, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse URL %q: %w", rawURL, err)
	}
	if u.Scheme != "" && u.Scheme != "http" {
		return nil, fmt.Errorf("unsupported scheme %q (only http is supported)", u.Scheme)
	}

	return &Request{
		Method:  "GET",
		URL:     u,
		Headers: map[string]string{},
	}, nil
}

// Host returns the request's target host, without a port.
func (r *Request) Host() string {
	return r.URL.Hostname()
}

// Port returns the request's target port, defaulting to 80.
func (r *Request) Port() uint16 {
	if p := r.URL.Port(); p != "" {
		var port uint16
		fmt.Sscanf(p, "%d", &port)
		if port != 0 {
			return port
		}
	}
	return 80
}

// Path returns the request path, defaulting to "/".
func (r *Request) Path() string {
	if r.URL.Path == "" {
		return "/"
	}
	return r.URL.Path
}

// buildInitial renders the request line.
func (r *Request) buildInitial() string {
	return fmt.Sprintf("%s %s HTTP/1.1%s", r.Method, r.Path(), newline)
}

// buildHeader renders the header block, injecting connection and
// content-length the way the engine always needs them, plus Host.
func (r *Request) buildHeader() string {
	headers := make(map[string]string, len(r.Headers)+3)
	for k, v := range r.Headers {
		headers[k] = v
	}
	headers["Host"] = r.URL.Host
	headers["connection"] = "keep-alive"
	headers["content-length"] = fmt.Sprintf("%d", len(r.Body))

	var b strings.Builder
	// Host first for readability; order otherwise doesn't matter to a
	// conforming server.
	fmt.Fprintf(&b, "Host: %s%s", headers["Host"], newline)
	delete(headers, "Host")
	for h, v := range headers {
		fmt.Fprintf(&b, "%s: %s%s", h, v, newline)
	}
	return b.String()
}

// Build renders the full wire form of the request.
func (r *Request) Build() []byte {
	return []byte(r.buildInitial() + r.buildHeader() + newline + r.Body)
}
