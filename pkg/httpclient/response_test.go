package httpclient

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseResponsePlainBody(t *testing.T) {
	raw := []byte("HTTP/1.1 200 OK\r\nContent-Length: 5\r\n\r\nhello")
	resp, err := ParseResponse(raw)
	require.NoError(t, err)
	require.Equal(t, []byte("hello"), resp.Body)
}

func TestParseResponseRejectsNon200(t *testing.T) {
	raw := []byte("HTTP/1.1 404 Not Found\r\n\r\n")
	_, err := ParseResponse(raw)
	require.ErrorIs(t, err, ErrNon200)
}

func TestParseResponseChunked(t *testing.T) {
	raw := []byte("HTTP/1.1 200 OK\r\nTransfer-Encoding: chunked\r\n\r\n" +
		"4\r\nWiki\r\n5\r\npedia\r\nE\r\n in\r\n\r\nchunks.\r\n0\r\n\r\n")
	resp, err := ParseResponse(raw)
	require.NoError(t, err)
	require.Equal(t, "Wikipedia in\r\n\r\nchunks.", string(resp.Body))
}

func TestDecodeChunkedRejectsTruncated(t *testing.T) {
	_, err := decodeChunked([]byte("a\r\ntoo short\r\n"))
	require.ErrorIs(t, err, ErrBadChunked)
}
