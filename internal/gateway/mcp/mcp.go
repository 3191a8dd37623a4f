// Package mcp exposes the assistant and its commerce tools as an MCP server.
// Catalog tools run directly against the tool registry. Order tools run
// through the pipeline so cancellations always pass the policy guard and
// replies never carry the customer's email.
package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/jkaninda/duka/internal/domain"
	"github.com/jkaninda/duka/internal/pipeline"
	"github.com/jkaninda/duka/internal/tools"
)

const (
	defaultServerName = "duka"

	// AssistTool runs a free-form message through the whole pipeline.
	AssistTool = "assist"
)

// Assistant is the pipeline surface the MCP server needs.
type Assistant interface {
	Run(ctx context.Context, req pipeline.Request) *pipeline.Result
	RunPlan(ctx context.Context, req pipeline.Request, intent domain.Intent, plan pipeline.Plan) *pipeline.Result
	Registry() *tools.Registry
}

// Server hosts the MCP server.
type Server struct {
	mcpServer *server.MCPServer
	assistant Assistant
	logger    *slog.Logger
}

// AssistInput is the input of the assist tool.
type AssistInput struct {
	Message string `json:"message"`
	Now     string `json:"now,omitempty"`
}

// AssistOutput is the structured result of the assist and order tools.
type AssistOutput struct {
	RequestID string                `json:"request_id"`
	Reply     string                `json:"reply"`
	Trace     pipeline.Trace        `json:"trace"`
	Errors    []pipeline.StageError `json:"errors,omitempty"`
}

// New creates an MCP server backed by a. An empty name advertises "duka".
func New(a Assistant, name, version string, logger *slog.Logger) (*Server, error) {
	if name == "" {
		name = defaultServerName
	}
	s := &Server{
		mcpServer: server.NewMCPServer(name, version,
			server.WithToolCapabilities(false),
			server.WithRecovery(),
		),
		assistant: a,
		logger:    logger,
	}

	s.mcpServer.AddTool(assistTool(), s.handleAssist)
	for _, t := range a.Registry().All() {
		tool, err := registryTool(t)
		if err != nil {
			return nil, err
		}
		switch t.Name() {
		case tools.OrderLookup, tools.OrderCancel:
			s.mcpServer.AddTool(tool, s.orderHandler(t.Name()))
		default:
			s.mcpServer.AddTool(tool, s.catalogHandler(t.Name()))
		}
	}
	return s, nil
}

// Serve runs the server over in/out until ctx is canceled or in closes.
func (s *Server) Serve(ctx context.Context, in io.Reader, out io.Writer) error {
	if s == nil || s.mcpServer == nil {
		return errors.New("MCP server is not configured")
	}
	s.logger.Info("mcp server listening on stdio", slog.Int("tools", len(s.mcpServer.ListTools())))
	if err := server.NewStdioServer(s.mcpServer).Listen(ctx, in, out); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("serve MCP: %w", err)
	}
	return nil
}

func assistTool() mcp.Tool {
	return mcp.NewTool(AssistTool,
		mcp.WithDescription("Answer a shopper's message: product questions, order status and cancellations."),
		mcp.WithString("message",
			mcp.Required(),
			mcp.Description("The customer's message"),
			mcp.MaxLength(2000),
		),
		mcp.WithString("now",
			mcp.Description("Reference time, RFC 3339. Defaults to the current time."),
		),
	)
}

// registryTool describes a registry tool with its own JSON schema.
func registryTool(t tools.Tool) (mcp.Tool, error) {
	schema, err := json.Marshal(t.InputSchema())
	if err != nil {
		return mcp.Tool{}, fmt.Errorf("encoding schema of %s: %w", t.Name(), err)
	}
	return mcp.NewToolWithRawSchema(t.Name(), t.Description(), schema), nil
}

func (s *Server) handleAssist(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var input AssistInput
	if err := request.BindArguments(&input); err != nil {
		return mcp.NewToolResultErrorFromErr("invalid assist arguments", err), nil
	}
	if input.Message == "" {
		return mcp.NewToolResultError("message is required"), nil
	}
	req := pipeline.Request{Message: input.Message}
	if input.Now != "" {
		now, err := time.Parse(time.RFC3339, input.Now)
		if err != nil {
			return mcp.NewToolResultError("now must be an RFC 3339 timestamp"), nil
		}
		req.Now = now.UTC()
	}

	res := s.assistant.Run(ctx, req)
	s.logger.Info("mcp assist",
		slog.String("request_id", res.RequestID),
		slog.String("intent", string(res.Trace.Intent)),
	)
	return assistResult(res), nil
}

// catalogHandler runs a read-only registry tool and returns its data.
func (s *Server) catalogHandler(name string) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		res, err := s.assistant.Registry().Run(ctx, name, request.GetArguments())
		if err != nil {
			s.logger.Warn("mcp tool failed", slog.String("tool", name), slog.String("error", err.Error()))
			return mcp.NewToolResultErrorFromErr(name+" failed", err), nil
		}
		if res.Data == nil {
			return mcp.NewToolResultText(res.Output), nil
		}
		return mcp.NewToolResultStructured(res.Data, res.Output), nil
	}
}

// orderHandler runs order_lookup, and order_cancel after it, through the
// pipeline under order_help.
func (s *Server) orderHandler(name string) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := request.GetArguments()
		if err := s.assistant.Registry().Get(name).Validate(args); err != nil {
			return mcp.NewToolResultErrorFromErr("invalid "+name+" arguments", err), nil
		}

		req := pipeline.Request{}
		if now, ok, _ := tools.TimeParam(args, "now"); ok {
			req.Now = now
		}
		creds := map[string]any{"order_id": args["order_id"], "email": args["email"]}
		plan := pipeline.Plan{{Tool: tools.OrderLookup, Params: creds}}
		if name == tools.OrderCancel {
			plan = append(plan, pipeline.Step{Tool: tools.OrderCancel, Params: args})
		}

		res := s.assistant.RunPlan(ctx, req, domain.IntentOrderHelp, plan)
		s.logger.Info("mcp order tool",
			slog.String("tool", name),
			slog.String("request_id", res.RequestID),
		)
		return assistResult(res), nil
	}
}

func assistResult(res *pipeline.Result) *mcp.CallToolResult {
	return mcp.NewToolResultStructured(AssistOutput{
		RequestID: res.RequestID,
		Reply:     res.Trace.FinalMessage,
		Trace:     res.Trace,
		Errors:    res.Errors,
	}, res.Trace.FinalMessage)
}
