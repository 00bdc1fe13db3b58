package mcpquic

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"time"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/quic-go/quic-go"
)

// Client calls dashboard tools on a remote server over QUIC.
type Client struct {
	addr   string
	tlsCfg *tls.Config
	conn   *quic.Conn
	stream *quic.Stream
	mcp    *client.Client
}

// NewClient creates a client for addr. A nil tlsCfg trusts any certificate,
// which suits the self-signed development chassis.
func NewClient(addr string, tlsCfg *tls.Config) *Client {
	if tlsCfg == nil {
		tlsCfg = ClientTLSConfig(true)
	}
	return &Client{addr: addr, tlsCfg: tlsCfg}
}

// Connect dials, sends the preamble and runs the MCP initialize handshake.
func (c *Client) Connect(ctx context.Context) error {
	conn, err := quic.DialAddr(ctx, c.addr, c.tlsCfg, QUICConfig())
	if err != nil {
		return fmt.Errorf("quic dial %s: %w", c.addr, err)
	}
	if alpn := conn.ConnectionState().TLS.NegotiatedProtocol; alpn != ALPNProtocolMCP {
		conn.CloseWithError(ConnErrorUnsupportedALPN, "bad ALPN")
		return fmt.Errorf("%w: got %q", ErrUnsupportedALPN, alpn)
	}

	stream, err := conn.OpenStreamSync(ctx)
	if err != nil {
		conn.CloseWithError(ConnErrorProtocolViolation, "stream open failed")
		return fmt.Errorf("open stream: %w", err)
	}
	if err := SendMagicBytes(stream); err != nil {
		stream.Close()
		conn.CloseWithError(ConnErrorProtocolViolation, "preamble failed")
		return err
	}
	c.conn, c.stream = conn, stream

	mc := client.NewClient(transport.NewIO(stream, stream, io.NopCloser(eofReader{})))
	if err := mc.Start(ctx); err != nil {
		c.closeTransport()
		return fmt.Errorf("mcp start: %w", err)
	}

	init := mcp.InitializeRequest{}
	init.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	init.Params.ClientInfo = mcp.Implementation{Name: "secop-dashboard-call", Version: "1.0.0"}

	initCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if _, err := mc.Initialize(initCtx, init); err != nil {
		c.closeTransport()
		return fmt.Errorf("mcp initialize: %w", err)
	}
	c.mcp = mc
	return nil
}

// ListTools returns the tools the server exposes.
func (c *Client) ListTools(ctx context.Context) (*mcp.ListToolsResult, error) {
	if c.mcp == nil {
		return nil, ErrNotConnected
	}
	return c.mcp.ListTools(ctx, mcp.ListToolsRequest{})
}

// CallTool invokes one tool with args.
func (c *Client) CallTool(ctx context.Context, name string, args map[string]any) (*mcp.CallToolResult, error) {
	if c.mcp == nil {
		return nil, ErrNotConnected
	}
	req := mcp.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args
	return c.mcp.CallTool(ctx, req)
}

// Close ends the session and the connection.
func (c *Client) Close() error {
	if c.mcp != nil {
		c.mcp.Close()
		c.mcp = nil
	}
	return c.closeTransport()
}

func (c *Client) closeTransport() error {
	if c.stream != nil {
		c.stream.Close()
	}
	if c.conn != nil {
		return c.conn.CloseWithError(ConnErrorNoError, "client closing")
	}
	return nil
}

// eofReader stands in for the stderr stream the IO transport expects.
type eofReader struct{}

func (eofReader) Read([]byte) (int, error) { return 0, io.EOF }
