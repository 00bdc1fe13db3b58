package kit

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
)

func TestChain_Order(t *testing.T) {
	var trace []string
	mark := func(name string) Middleware {
		return func(next Endpoint) Endpoint {
			return func(ctx context.Context, req any) (any, error) {
				trace = append(trace, name)
				return next(ctx, req)
			}
		}
	}
	ep := Chain(mark("a"), mark("b"), mark("c"))(func(context.Context, any) (any, error) {
		trace = append(trace, "endpoint")
		return nil, nil
	})
	ep(context.Background(), nil)

	if got := strings.Join(trace, ","); got != "a,b,c,endpoint" {
		t.Errorf("order = %s", got)
	}
}

func TestRequestID(t *testing.T) {
	var seen string
	ep := RequestID()(func(ctx context.Context, _ any) (any, error) {
		seen = GetRequestID(ctx)
		return nil, nil
	})

	ep(context.Background(), nil)
	if len(seen) != 36 {
		t.Errorf("generated id = %q, want uuid", seen)
	}

	ep(WithRequestID(context.Background(), "fixed"), nil)
	if seen != "fixed" {
		t.Errorf("existing id overwritten: %q", seen)
	}
}

func TestLogging(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	ok := Chain(RequestID(), Logging(logger, "per_capita_rate"))(func(context.Context, any) (any, error) {
		return "ok", nil
	})
	if resp, err := ok(WithTransport(context.Background(), "mcp"), nil); err != nil || resp != "ok" {
		t.Fatalf("resp = %v, %v", resp, err)
	}
	if !strings.Contains(buf.String(), "endpoint=per_capita_rate") || !strings.Contains(buf.String(), "transport=mcp") {
		t.Errorf("log = %s", buf.String())
	}

	buf.Reset()
	failing := Logging(logger, "load_contracts")(func(context.Context, any) (any, error) {
		return nil, errors.New("boom")
	})
	if _, err := failing(context.Background(), nil); err == nil {
		t.Fatal("error swallowed")
	}
	if !strings.Contains(buf.String(), "level=WARN") || !strings.Contains(buf.String(), "boom") {
		t.Errorf("log = %s", buf.String())
	}
}

func TestGetTransport_Default(t *testing.T) {
	if got := GetTransport(context.Background()); got != "http" {
		t.Errorf("default transport = %q", got)
	}
}
