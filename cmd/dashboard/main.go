package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/hazyhaar/secop-dashboard/pkg/api"
	"github.com/hazyhaar/secop-dashboard/pkg/chassis"
	"github.com/hazyhaar/secop-dashboard/pkg/clean"
	"github.com/hazyhaar/secop-dashboard/pkg/dashboard"
	"github.com/hazyhaar/secop-dashboard/pkg/mcpquic"
	"github.com/hazyhaar/secop-dashboard/pkg/population"
	"github.com/hazyhaar/secop-dashboard/pkg/secop"
	"github.com/hazyhaar/secop-dashboard/pkg/sources"
)

const version = "0.1.0"

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "serve":
		cmdServe(os.Args[2:])
	case "mcp":
		cmdMCP(os.Args[2:])
	case "report":
		cmdReport(os.Args[2:])
	case "sources":
		cmdSources(os.Args[2:])
	case "call":
		cmdCall(os.Args[2:])
	default:
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, `Usage: secop-dashboard <command>

Commands:
  serve     Start the HTTP server
  mcp       Serve the MCP tools on stdio
  report    Load once and print every view
  sources   List catalogued data sources
  call      Call an MCP tool on a TLS server over QUIC
`)
}

// app is the wiring shared by every command.
type app struct {
	cfg     config
	logger  *slog.Logger
	db      *sources.DB
	service *dashboard.Service
}

func setup(cfgPath string) *app {
	boot := slog.New(slog.NewTextHandler(os.Stderr, nil))
	cfg, err := loadConfig(cfgPath, boot)
	if err != nil {
		boot.Error("config", "error", err)
		os.Exit(1)
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: parseLevel(cfg.LogLevel)}))

	a, err := newApp(cfg, logger)
	if err != nil {
		logger.Error("startup failed", "error", err)
		os.Exit(1)
	}
	return a
}

func newApp(cfg config, logger *slog.Logger) (*app, error) {
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("data dir: %w", err)
	}
	db, err := sources.Open(filepath.Join(cfg.DataDir, "sources.db"))
	if err != nil {
		return nil, err
	}
	if err := db.Seed(catalog(cfg)); err != nil {
		db.Close()
		return nil, err
	}

	popSources := make([]population.Source, 0, len(cfg.Population.Sources))
	for _, sc := range cfg.Population.Sources {
		src, err := population.NewSource(sc, cfg.DataDir, nil)
		if err != nil {
			db.Close()
			return nil, err
		}
		popSources = append(popSources, src)
	}

	client := secop.NewClient(cfg.Secop.URL, cfg.Secop.Timeout, secop.WithLogger(logger))
	svc := dashboard.NewService(client, clean.New(cfg.Schema, logger), cfg.options(),
		dashboard.WithLogger(logger),
		dashboard.WithRecorder(db),
		dashboard.WithPopulation(population.NewLoader(cfg.Population.Columns, logger), popSources...),
	)
	return &app{cfg: cfg, logger: logger, db: db, service: svc}, nil
}

// catalog lists the configured sources for the data_sources table.
func catalog(cfg config) []sources.Definition {
	defs := []sources.Definition{{
		ID:          dashboard.SourceID,
		Kind:        sources.KindAPI,
		Description: "SECOP Integrado public procurement contracts (datos.gov.co)",
		Location:    cfg.Secop.URL,
		License:     cfg.Secop.License,
	}}
	for _, sc := range cfg.Population.Sources {
		defs = append(defs, sources.Definition{
			ID:          sc.ID,
			Kind:        sources.KindPopulation,
			Description: "Population projections by department",
			Location:    sc.Location,
			License:     sc.License,
		})
	}
	return defs
}

func cmdServe(args []string) {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	cfgPath := fs.String("config", "config.yaml", "path to config file")
	loadOnStart := fs.Bool("load", false, "load contracts before accepting requests")
	fs.Parse(args)

	a := setup(*cfgPath)
	defer a.db.Close()
	logger := a.logger

	// SIGINT/SIGTERM: graceful shutdown.
	// SIGHUP: reread the population sources.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if *loadOnStart {
		if _, err := a.service.Load(ctx, 0); err != nil {
			logger.Error("initial load failed", "error", err)
		}
	}

	if a.cfg.CheckInterval > 0 {
		go sources.NewChecker(a.db, logger, a.cfg.CheckInterval).Start(ctx)
	}

	sighup := make(chan os.Signal, 1)
	signal.Notify(sighup, syscall.SIGHUP)
	go func() {
		for range sighup {
			logger.Info("SIGHUP received, reloading population")
			if err := a.service.ReloadPopulation(ctx); err != nil {
				logger.Error("reload failed", "error", err)
			}
		}
	}()

	router := api.NewRouter(a.service, a.db, logger)
	if a.cfg.TLS.Enabled {
		serveTLS(ctx, a, router)
		return
	}

	srv := &http.Server{
		Addr:    a.cfg.Addr,
		Handler: router,
	}
	go func() {
		logger.Info("secop-dashboard listening", "addr", a.cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")
	srv.Shutdown(context.Background())
}

// serveTLS runs the router and the MCP tools on the TLS chassis until ctx ends.
func serveTLS(ctx context.Context, a *app, router http.Handler) {
	mcpSrv := server.NewMCPServer("secop-dashboard", version, server.WithToolCapabilities(false))
	api.RegisterMCPTools(mcpSrv, a.service, a.logger)

	ch, err := chassis.New(chassis.Config{
		Addr:      a.cfg.Addr,
		CertFile:  a.cfg.TLS.CertFile,
		KeyFile:   a.cfg.TLS.KeyFile,
		Handler:   router,
		MCPServer: mcpSrv,
		Logger:    a.logger,
	})
	if err != nil {
		a.logger.Error("chassis", "error", err)
		os.Exit(1)
	}
	if err := ch.Start(ctx); err != nil {
		a.logger.Error("chassis error", "error", err)
	}
	a.logger.Info("shutting down")
	stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	ch.Stop(stopCtx)
}

func cmdMCP(args []string) {
	fs := flag.NewFlagSet("mcp", flag.ExitOnError)
	cfgPath := fs.String("config", "config.yaml", "path to config file")
	fs.Parse(args)

	a := setup(*cfgPath)
	defer a.db.Close()

	srv := server.NewMCPServer("secop-dashboard", version, server.WithToolCapabilities(false))
	api.RegisterMCPTools(srv, a.service, a.logger)
	if err := server.ServeStdio(srv); err != nil {
		a.logger.Error("mcp stdio", "error", err)
		os.Exit(1)
	}
}

func cmdReport(args []string) {
	fs := flag.NewFlagSet("report", flag.ExitOnError)
	cfgPath := fs.String("config", "config.yaml", "path to config file")
	limit := fs.Int("limit", 0, "records requested (default: configured limit)")
	fs.Parse(args)

	a := setup(*cfgPath)
	defer a.db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	snap, err := a.service.Load(ctx, *limit)
	if err != nil {
		a.logger.Error("load failed", "error", err)
		os.Exit(1)
	}
	views, err := a.service.Views(ctx)
	if err != nil {
		a.logger.Error("views", "error", err)
		os.Exit(1)
	}
	if err := writeReport(os.Stdout, snap, views); err != nil {
		a.logger.Error("write report", "error", err)
		os.Exit(1)
	}
}

func cmdSources(args []string) {
	fs := flag.NewFlagSet("sources", flag.ExitOnError)
	cfgPath := fs.String("config", "config.yaml", "path to config file")
	check := fs.Bool("check", false, "check availability before listing")
	history := fs.Int("history", 0, "also print the last N loads of the contracts API")
	fs.Parse(args)

	a := setup(*cfgPath)
	defer a.db.Close()

	ctx := context.Background()
	if *check {
		sources.NewChecker(a.db, a.logger, a.cfg.CheckInterval).CheckAll(ctx)
	}

	list, err := a.db.List()
	if err != nil {
		a.logger.Error("list sources", "error", err)
		os.Exit(1)
	}
	var loads []sources.Load
	if *history > 0 {
		if loads, err = a.db.Loads(ctx, dashboard.SourceID, *history); err != nil {
			a.logger.Error("load history", "error", err)
			os.Exit(1)
		}
	}
	if err := writeSources(os.Stdout, list, loads); err != nil {
		a.logger.Error("write sources", "error", err)
		os.Exit(1)
	}
}

func cmdCall(args []string) {
	fs := flag.NewFlagSet("call", flag.ExitOnError)
	addr := fs.String("addr", "localhost:8421", "server address (UDP)")
	insecure := fs.Bool("insecure", true, "skip certificate verification")
	timeout := fs.Duration("timeout", 2*time.Minute, "call timeout")
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: secop-dashboard call [flags] [tool [name=value ...]]\n\nWithout a tool, lists the available tools.\n\n")
		fs.PrintDefaults()
	}
	fs.Parse(args)

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	c := mcpquic.NewClient(*addr, mcpquic.ClientTLSConfig(*insecure))
	if err := c.Connect(ctx); err != nil {
		logger.Error("connect", "addr", *addr, "error", err)
		os.Exit(1)
	}
	defer c.Close()

	if fs.NArg() == 0 {
		tools, err := c.ListTools(ctx)
		if err != nil {
			logger.Error("list tools", "error", err)
			os.Exit(1)
		}
		for _, t := range tools.Tools {
			fmt.Printf("%-24s %s\n", t.Name, t.Description)
		}
		return
	}

	toolArgs, err := parseToolArgs(fs.Args()[1:])
	if err != nil {
		logger.Error("arguments", "error", err)
		os.Exit(1)
	}
	res, err := c.CallTool(ctx, fs.Arg(0), toolArgs)
	if err != nil {
		logger.Error("call", "tool", fs.Arg(0), "error", err)
		os.Exit(1)
	}
	for _, content := range res.Content {
		if text, ok := content.(mcp.TextContent); ok {
			fmt.Println(text.Text)
		}
	}
	if res.IsError {
		os.Exit(1)
	}
}

// parseToolArgs turns name=value pairs into tool arguments. Values stay
// strings; the tools parse integers themselves.
func parseToolArgs(pairs []string) (map[string]any, error) {
	out := make(map[string]any, len(pairs))
	for _, p := range pairs {
		name, value, ok := strings.Cut(p, "=")
		if !ok || name == "" {
			return nil, fmt.Errorf("argument %q: want name=value", p)
		}
		out[name] = value
	}
	return out, nil
}
