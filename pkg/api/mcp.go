package api

import (
	"fmt"
	"log/slog"
	"strconv"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/hazyhaar/secop-dashboard/pkg/dashboard"
	"github.com/hazyhaar/secop-dashboard/pkg/kit"
)

// RegisterMCPTools registers the dashboard MCP tools on the server.
func RegisterMCPTools(srv *server.MCPServer, svc *dashboard.Service, logger *slog.Logger) {
	eps := newEndpoints(svc, nil, logger)

	kit.RegisterMCPTool(srv, mcp.NewTool("load_contracts",
		mcp.WithDescription("Fetch up to limit SECOP Integrado procurement contracts from datos.gov.co, clean them and make them the current record set."),
		mcp.WithNumber("limit", mcp.Description("Maximum number of records requested (default: configured limit)")),
	), eps.load, func(req mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		limit, err := intArg(req.GetArguments(), "limit")
		if err != nil {
			return nil, err
		}
		return &kit.MCPDecodeResult{Request: &loadReq{Limit: limit}}, nil
	})

	kit.RegisterMCPTool(srv, mcp.NewTool("per_capita_rate",
		mcp.WithDescription("Rank departments by contracts per 1,000 inhabitants. Departments without population data have a null rate."),
		mcp.WithNumber("year", mcp.Description("Population year (default: most recent)")),
		mcp.WithNumber("top_n", mcp.Description("Number of departments returned (default 10)")),
	), eps.perCapita, func(req mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		args := req.GetArguments()
		year, err := intArg(args, "year")
		if err != nil {
			return nil, err
		}
		top, err := intArg(args, "top_n")
		if err != nil {
			return nil, err
		}
		return &kit.MCPDecodeResult{Request: &perCapitaReq{Year: year, TopN: top}}, nil
	})

	kit.RegisterMCPTool(srv, mcp.NewTool("population_correlation",
		mcp.WithDescription("Pearson correlation between department population and number of contracts for one population year."),
		mcp.WithNumber("year", mcp.Description("Population year (default 2035)")),
	), eps.correlation, func(req mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		year, err := intArg(req.GetArguments(), "year")
		if err != nil {
			return nil, err
		}
		return &kit.MCPDecodeResult{Request: &correlationReq{Year: year}}, nil
	})

	kit.RegisterMCPTool(srv, mcp.NewTool("monthly_value_by_type",
		mcp.WithDescription("Total contracted value per month and contract type, from execution start dates."),
		mcp.WithNumber("since", mcp.Description("First year kept (default 2018, negative for all years)")),
	), eps.monthly, func(req mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		since, err := intArg(req.GetArguments(), "since")
		if err != nil {
			return nil, err
		}
		return &kit.MCPDecodeResult{Request: &monthlyReq{Since: since}}, nil
	})
}

// intArg reads an optional integer argument; absent means 0.
func intArg(args map[string]any, name string) (int, error) {
	switch v := args[name].(type) {
	case nil:
		return 0, nil
	case float64:
		if v != float64(int(v)) {
			return 0, fmt.Errorf("%s must be an integer", name)
		}
		return int(v), nil
	case int:
		return v, nil
	case string:
		if v == "" {
			return 0, nil
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return 0, fmt.Errorf("%s must be an integer", name)
		}
		return n, nil
	default:
		return 0, fmt.Errorf("%s must be an integer", name)
	}
}
