package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kalambet/offerjourney/internal/comparison"
	"github.com/kalambet/offerjourney/internal/journey"
)

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Service         *comparison.Service
	DefaultCustomer int64
}

// NewMCPServer creates an MCP server with the journey tools and resources registered.
func NewMCPServer(deps MCPDeps, version string) *server.MCPServer {
	s := server.NewMCPServer(
		"offerjourney",
		version,
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("offerjourney compares rule-based and transformer offer journeys for bank customers."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("list_customers",
			mcp.WithDescription("List the loan IDs of all customers in the interaction table and the default one."),
		),
		mcpListCustomers(deps),
	)

	s.AddTool(
		mcp.NewTool("build_journey",
			mcp.WithDescription("Build the offer journey of one customer under one strategy."),
			mcp.WithNumber("customer", mcp.Description("Customer loan ID"), mcp.Required()),
			mcp.WithString("strategy", mcp.Description("rule_based or transformer"), mcp.Required()),
		),
		mcpBuildJourney(deps),
	)

	s.AddTool(
		mcp.NewTool("compare_journeys",
			mcp.WithDescription("Compare conversions of the rule-based and transformer journeys of a customer."),
			mcp.WithNumber("customer", mcp.Description("Customer loan ID (default customer if omitted)")),
		),
		mcpCompareJourneys(deps),
	)

	s.AddTool(
		mcp.NewTool("journey_step",
			mcp.WithDescription("Show what both journeys present to a customer at one step."),
			mcp.WithNumber("customer", mcp.Description("Customer loan ID"), mcp.Required()),
			mcp.WithNumber("step", mcp.Description("Zero-based step index"), mcp.Required()),
		),
		mcpJourneyStep(deps),
	)

	s.AddResource(
		mcp.NewResource(
			"journeys://customers",
			"Customers",
			mcp.WithResourceDescription("Loan IDs available in the interaction table"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceCustomers(deps),
	)

	return s
}

func mcpListCustomers(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		keys, err := deps.Service.CustomerKeys(ctx)
		if err != nil {
			return mcpError(fmt.Sprintf("listing customers failed: %v", err)), nil
		}
		def, err := deps.Service.DefaultCustomer(ctx, deps.DefaultCustomer)
		if err != nil {
			return mcpError(fmt.Sprintf("resolving default customer failed: %v", err)), nil
		}
		if keys == nil {
			keys = []int64{}
		}
		return mcpJSON(customerListResponse{Customers: keys, Default: def})
	}
}

func mcpBuildJourney(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		key, err := req.RequireInt("customer")
		if err != nil {
			return mcpError("customer is required"), nil
		}
		name, err := req.RequireString("strategy")
		if err != nil {
			return mcpError("strategy is required"), nil
		}
		strategy, err := journey.ParseStrategy(name)
		if err != nil {
			return mcpError(err.Error()), nil
		}

		j, err := deps.Service.Journey(ctx, int64(key), strategy)
		if err != nil {
			return mcpError(fmt.Sprintf("building journey failed: %v", err)), nil
		}
		return mcpJSON(j)
	}
}

func mcpCompareJourneys(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		key := int64(req.GetInt("customer", 0))
		if key == 0 {
			def, err := deps.Service.DefaultCustomer(ctx, deps.DefaultCustomer)
			if err != nil {
				return mcpError(fmt.Sprintf("resolving default customer failed: %v", err)), nil
			}
			key = def
		}

		sess, err := deps.Service.Session(ctx, key)
		if err != nil {
			return mcpError(fmt.Sprintf("comparing journeys failed: %v", err)), nil
		}
		return mcpJSON(struct {
			Customer int64 `json:"customer"`
			journey.Comparison
			MaxStep int `json:"max_step"`
		}{key, sess.Comparison, sess.MaxStep})
	}
}

func mcpJourneyStep(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		key, err := req.RequireInt("customer")
		if err != nil {
			return mcpError("customer is required"), nil
		}
		step, err := req.RequireInt("step")
		if err != nil {
			return mcpError("step is required"), nil
		}

		sess, err := deps.Service.Session(ctx, int64(key))
		if err != nil {
			return mcpError(fmt.Sprintf("building journeys failed: %v", err)), nil
		}
		frame, err := sess.Frame(step)
		if errors.Is(err, journey.ErrStepOutOfRange) {
			return mcpError(err.Error()), nil
		}
		if err != nil {
			return mcpError(fmt.Sprintf("reading step failed: %v", err)), nil
		}
		return mcpJSON(frame)
	}
}

func mcpResourceCustomers(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		keys, err := deps.Service.CustomerKeys(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list customers: %w", err)
		}
		if keys == nil {
			keys = []int64{}
		}

		b, err := json.Marshal(keys)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal customers: %w", err)
		}

		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
	}
}

func mcpJSON(v any) (*mcp.CallToolResult, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return mcpError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcpText(string(b)), nil
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
