// CLAUDE:SUMMARY MCP JSON-RPC over a single QUIC stream: ALPN, magic preamble, QUIC and client TLS settings.
package mcpquic

import (
	"bytes"
	"crypto/tls"
	"fmt"
	"io"
	"time"

	"github.com/quic-go/quic-go"
)

const (
	// ALPNProtocolMCP selects MCP on a QUIC connection shared with HTTP/3.
	ALPNProtocolMCP = "secop-mcp-v1"
	// MagicBytesMCP opens the first client stream.
	MagicBytesMCP = "SMC1"

	MaxMessageSize     = 10 * 1024 * 1024
	DefaultIdleTimeout = 5 * time.Minute
	DefaultKeepAlive   = 30 * time.Second
)

// QUICConfig returns the transport settings used by both ends.
func QUICConfig() *quic.Config {
	return &quic.Config{
		MaxStreamReceiveWindow:     MaxMessageSize,
		MaxConnectionReceiveWindow: 5 * MaxMessageSize,
		MaxIdleTimeout:             DefaultIdleTimeout,
		KeepAlivePeriod:            DefaultKeepAlive,
	}
}

// ClientTLSConfig returns a TLS 1.3 client config offering only the MCP
// protocol. insecure skips certificate verification for self-signed servers.
func ClientTLSConfig(insecure bool) *tls.Config {
	return &tls.Config{
		NextProtos:         []string{ALPNProtocolMCP},
		MinVersion:         tls.VersionTLS13,
		InsecureSkipVerify: insecure,
	}
}

// ValidateMagicBytes reads the stream preamble and checks it.
func ValidateMagicBytes(r io.Reader) error {
	magic := make([]byte, len(MagicBytesMCP))
	if _, err := io.ReadFull(r, magic); err != nil {
		return fmt.Errorf("read magic bytes: %w", err)
	}
	if !bytes.Equal(magic, []byte(MagicBytesMCP)) {
		return fmt.Errorf("%w: got %q", ErrInvalidMagicBytes, magic)
	}
	return nil
}

// SendMagicBytes writes the stream preamble. Clients send it right after
// opening the stream.
func SendMagicBytes(w io.Writer) error {
	if _, err := io.WriteString(w, MagicBytesMCP); err != nil {
		return fmt.Errorf("write magic bytes: %w", err)
	}
	return nil
}
