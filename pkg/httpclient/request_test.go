package httpclient

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBuildGetRequest(t *testing.T) {
	req, err := NewGetRequest("http://example.com/foo/bar.txt")
	require.NoError(t, err)

	raw := string(req.Build())
	require.True(t, strings.HasPrefix(raw, "GET /foo/bar.txt HTTP/1.1\r\n"))
	require.Contains(t, raw, "Host: example.com\r\n")
	require.Contains(t, raw, "connection: keep-alive\r\n")
	require.Contains(t, raw, "content-length: 0\r\n")
	require.True(t, strings.HasSuffix(raw, "\r\n\r\n"))
}

func TestRequestDefaultsPathAndPort(t *testing.T) {
	req, err := NewGetRequest("http://example.com")
	require.NoError(t, err)

	require.Equal(t, "/", req.Path())
	require.Equal(t, uint16(80), req.Port())
}

func TestRequestRejectsNonHTTPScheme(t *testing.T) {
	_, err := NewGetRequest("https://example.com")
	require.Error(t, err)
}
