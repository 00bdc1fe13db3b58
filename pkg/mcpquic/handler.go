package mcpquic

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/quic-go/quic-go"

	"github.com/hazyhaar/secop-dashboard/pkg/kit"
)

// Handler serves MCP sessions on accepted QUIC connections. It owns no
// listener; the chassis hands it connections negotiated with ALPNProtocolMCP.
type Handler struct {
	mcpServer *server.MCPServer
	logger    *slog.Logger
}

// NewHandler creates a Handler dispatching to mcpSrv.
func NewHandler(mcpSrv *server.MCPServer, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{mcpServer: mcpSrv, logger: logger}
}

// ServeConn runs one MCP session: newline-delimited JSON-RPC on the first
// client stream, after the magic preamble. It returns when the stream ends.
func (h *Handler) ServeConn(ctx context.Context, conn *quic.Conn) {
	remote := conn.RemoteAddr().String()

	stream, err := conn.AcceptStream(ctx)
	if err != nil {
		h.logger.Warn("mcp accept stream", "remote", remote, "error", err)
		conn.CloseWithError(ConnErrorProtocolViolation, "stream accept failed")
		return
	}
	if err := ValidateMagicBytes(stream); err != nil {
		h.logger.Warn("mcp preamble rejected", "remote", remote, "error", err)
		stream.CancelWrite(StreamErrorProtocolConfusion)
		stream.CancelRead(StreamErrorProtocolConfusion)
		conn.CloseWithError(ConnErrorProtocolViolation, "invalid magic bytes")
		return
	}

	sess := newSession("quic_"+uuid.NewString(), stream)
	if err := h.mcpServer.RegisterSession(ctx, sess); err != nil {
		h.logger.Error("mcp session register", "session", sess.id, "error", err)
		stream.Close()
		return
	}
	defer h.mcpServer.UnregisterSession(ctx, sess.id)
	h.logger.Info("mcp session started", "session", sess.id, "remote", remote)

	ctx, cancel := context.WithCancel(kit.WithTransport(ctx, "mcp_quic"))
	defer cancel()
	ctx = h.mcpServer.WithContext(ctx, sess)
	go sess.forwardNotifications(ctx)

	reader := bufio.NewReaderSize(stream, 64*1024)
	for {
		line, err := reader.ReadBytes('\n')
		if err != nil {
			if !errors.Is(err, io.EOF) && ctx.Err() == nil {
				h.logger.Warn("mcp read", "session", sess.id, "error", err)
			}
			break
		}
		if len(line) > MaxMessageSize {
			h.logger.Warn("mcp message too large", "session", sess.id, "bytes", len(line))
			break
		}
		line = line[:len(line)-1]
		if len(line) == 0 {
			continue
		}

		resp := h.mcpServer.HandleMessage(ctx, json.RawMessage(line))
		if resp == nil {
			continue
		}
		if err := sess.write(resp); err != nil {
			h.logger.Warn("mcp write", "session", sess.id, "error", err)
			break
		}
	}
	stream.Close()
	h.logger.Info("mcp session ended", "session", sess.id)
}

// session implements server.ClientSession for one QUIC stream.
type session struct {
	id            string
	notifications chan mcp.JSONRPCNotification
	initialized   atomic.Bool

	mu sync.Mutex // serializes writes to w
	w  io.Writer
}

func newSession(id string, w io.Writer) *session {
	return &session{
		id:            id,
		notifications: make(chan mcp.JSONRPCNotification, 100),
		w:             w,
	}
}

func (s *session) SessionID() string                                   { return s.id }
func (s *session) NotificationChannel() chan<- mcp.JSONRPCNotification { return s.notifications }
func (s *session) Initialize()                                         { s.initialized.Store(true) }
func (s *session) Initialized() bool                                   { return s.initialized.Load() }

func (s *session) write(msg any) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	data = append(data, '\n')
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err = s.w.Write(data)
	return err
}

func (s *session) forwardNotifications(ctx context.Context) {
	for {
		select {
		case n := <-s.notifications:
			_ = s.write(n)
		case <-ctx.Done():
			return
		}
	}
}
