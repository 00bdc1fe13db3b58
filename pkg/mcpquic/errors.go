package mcpquic

import (
	"errors"

	"github.com/quic-go/quic-go"
)

// Stream error codes.
const (
	StreamErrorNoError           quic.StreamErrorCode = 0x00
	StreamErrorProtocolConfusion quic.StreamErrorCode = 0x02
)

// Connection error codes.
const (
	ConnErrorNoError           quic.ApplicationErrorCode = 0x00
	ConnErrorUnsupportedALPN   quic.ApplicationErrorCode = 0x01
	ConnErrorProtocolViolation quic.ApplicationErrorCode = 0x03
	ConnErrorMCPDisabled       quic.ApplicationErrorCode = 0x10
)

var (
	ErrInvalidMagicBytes = errors.New("invalid magic bytes")
	ErrUnsupportedALPN   = errors.New("ALPN negotiation failed: " + ALPNProtocolMCP + " not selected")
	ErrNotConnected      = errors.New("mcp client not connected")
)
