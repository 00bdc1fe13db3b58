// CLAUDE:SUMMARY TLS chassis: HTTP/1.1+HTTP/2 on TCP and QUIC on UDP (same port), ALPN demux between HTTP/3 and MCP.
//
// Package chassis serves the dashboard over TLS. Two listeners share a port:
//   - TCP: HTTP/1.1 and HTTP/2 for the REST API
//   - UDP: QUIC, demuxed by ALPN into HTTP/3 (same handler) or MCP
//
// HTTP responses advertise HTTP/3 through Alt-Svc.
package chassis

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/mark3labs/mcp-go/server"
	"github.com/quic-go/quic-go"
	"github.com/quic-go/quic-go/http3"

	"github.com/hazyhaar/secop-dashboard/pkg/mcpquic"
)

// Config configures a Server.
type Config struct {
	Addr      string            // TCP and UDP listen address
	TLS       *tls.Config       // nil: TLSConfig(CertFile, KeyFile)
	CertFile  string            // empty with KeyFile: self-signed
	KeyFile   string
	Handler   http.Handler
	MCPServer *server.MCPServer // nil disables MCP over QUIC
	Logger    *slog.Logger
}

// Server runs both listeners.
type Server struct {
	addr       string
	logger     *slog.Logger
	tlsCfg     *tls.Config
	handler    http.Handler
	mcpHandler *mcpquic.Handler

	mu        sync.Mutex
	tcpServer *http.Server
	h3Server  *http3.Server
	quicLn    *quic.Listener
	tcpLn     net.Listener
	ready     chan struct{}
	closed    atomic.Bool
}

// New prepares a Server; nothing listens until Start.
func New(cfg Config) (*Server, error) {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Handler == nil {
		return nil, errors.New("chassis: nil handler")
	}
	tlsCfg := cfg.TLS
	if tlsCfg == nil {
		var err error
		if tlsCfg, err = TLSConfig(cfg.CertFile, cfg.KeyFile); err != nil {
			return nil, err
		}
		if cfg.CertFile == "" {
			cfg.Logger.Warn("TLS: using a self-signed development certificate")
		}
	}

	s := &Server{
		addr:    cfg.Addr,
		logger:  cfg.Logger,
		tlsCfg:  tlsCfg,
		handler: cfg.Handler,
		ready:   make(chan struct{}),
	}
	if cfg.MCPServer != nil {
		s.mcpHandler = mcpquic.NewHandler(cfg.MCPServer, cfg.Logger)
	}
	return s, nil
}

func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
		next.ServeHTTP(w, r)
	})
}

func altSvc(port string, next http.Handler) http.Handler {
	value := fmt.Sprintf(`h3=":%s"; ma=86400`, port)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Alt-Svc", value)
		next.ServeHTTP(w, r)
	})
}

// Start listens on TCP and UDP and serves until ctx is cancelled or a
// listener fails. Call Stop to release the listeners.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()

	// UDP first so a ":0" address resolves to a concrete port for TCP too.
	quicTLS := s.tlsCfg.Clone()
	quicTLS.NextProtos = serverProtos
	ln, err := quic.ListenAddr(s.addr, quicTLS, mcpquic.QUICConfig())
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("quic listen: %w", err)
	}
	s.quicLn = ln
	_, port, _ := net.SplitHostPort(ln.Addr().String())
	host, _, _ := net.SplitHostPort(s.addr)

	tcpTLS := s.tlsCfg.Clone()
	tcpTLS.NextProtos = []string{"h2", "http/1.1"}
	tcpLn, err := tls.Listen("tcp", net.JoinHostPort(host, port), tcpTLS)
	if err != nil {
		ln.Close()
		s.mu.Unlock()
		return fmt.Errorf("tcp listen: %w", err)
	}
	s.tcpLn = tcpLn

	handler := securityHeaders(altSvc(port, s.handler))
	s.tcpServer = &http.Server{Handler: handler, TLSConfig: tcpTLS}
	s.h3Server = &http3.Server{Handler: handler}
	close(s.ready)
	s.mu.Unlock()

	s.logger.Info("chassis started", "addr", tcpLn.Addr().String(), "tcp", "HTTP/1.1+HTTP/2", "udp", "HTTP/3+MCP", "mcp", s.mcpHandler != nil)

	errCh := make(chan error, 2)
	go func() {
		if err := s.tcpServer.Serve(tcpLn); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("tcp: %w", err)
		}
	}()
	go func() {
		for {
			conn, err := ln.Accept(ctx)
			if err != nil {
				if ctx.Err() == nil && !s.closed.Load() {
					errCh <- fmt.Errorf("quic accept: %w", err)
				}
				return
			}
			go s.dispatch(ctx, conn)
		}
	}()

	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		return err
	}
}

func (s *Server) dispatch(ctx context.Context, conn *quic.Conn) {
	switch alpn := conn.ConnectionState().TLS.NegotiatedProtocol; alpn {
	case "h3":
		if err := s.h3Server.ServeQUICConn(conn); err != nil {
			s.logger.Debug("http3 conn done", "remote", conn.RemoteAddr(), "error", err)
		}
	case mcpquic.ALPNProtocolMCP:
		if s.mcpHandler == nil {
			conn.CloseWithError(mcpquic.ConnErrorMCPDisabled, "MCP not enabled")
			return
		}
		s.mcpHandler.ServeConn(ctx, conn)
	default:
		s.logger.Warn("unknown ALPN, closing", "alpn", alpn, "remote", conn.RemoteAddr())
		conn.CloseWithError(mcpquic.ConnErrorUnsupportedALPN, "unsupported ALPN: "+alpn)
	}
}

// Addr returns the bound address once Start has opened the listeners.
func (s *Server) Addr(ctx context.Context) (string, error) {
	select {
	case <-s.ready:
		return s.tcpLn.Addr().String(), nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Stop shuts down both listeners.
func (s *Server) Stop(ctx context.Context) error {
	s.closed.Store(true)
	s.mu.Lock()
	defer s.mu.Unlock()

	var errs []error
	if s.tcpServer != nil {
		errs = append(errs, s.tcpServer.Shutdown(ctx))
	}
	if s.h3Server != nil {
		errs = append(errs, s.h3Server.Close())
	}
	if s.quicLn != nil {
		errs = append(errs, s.quicLn.Close())
	}
	s.logger.Info("chassis stopped")
	return errors.Join(errs...)
}
