// Package mcpserver implements the tool-invocation service adapter: every
// registered flow is exposed as a callable MCP tool whose descriptor comes
// from the flow's ToolCall, and invoking the tool runs the async flow and
// returns response.answer.
package mcpserver

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/flowllm-go/flowllm/pkg/svcctx"
	"github.com/flowllm-go/flowllm/pkg/toolcall"
)

// Server wraps an MCP server exposing every flow registered on a
// ServiceContext as a callable tool.
type Server struct {
	sc     *svcctx.ServiceContext
	mcp    *server.MCPServer
	logger *slog.Logger
}

// Option configures a Server at construction.
type Option func(*Server)

func WithLogger(l *slog.Logger) Option { return func(s *Server) { s.logger = l } }

// New builds an MCP server and registers every flow name known to sc's flow
// registry as a tool.
func New(name, version string, sc *svcctx.ServiceContext, opts ...Option) (*Server, error) {
	s := &Server{sc: sc, mcp: server.NewMCPServer(name, version), logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}

	for _, flowName := range sc.Flows.Names() {
		if err := s.registerFlowTool(flowName); err != nil {
			return nil, fmt.Errorf("mcpserver: register flow %q: %w", flowName, err)
		}
	}
	return s, nil
}

// registerFlowTool instantiates flowName once (to read its ToolCall
// descriptor) and wires an MCP tool handler that re-invokes the flow
// asynchronously for every call.
func (s *Server) registerFlowTool(flowName string) error {
	f, err := s.sc.Flow(flowName, nil)
	if err != nil {
		return err
	}

	tc := f.ToolCall()
	toolOpts := []mcp.ToolOption{mcp.WithDescription(describeOrDefault(tc, flowName))}
	if tc != nil {
		for _, paramName := range tc.InputSchema.Names() {
			attrs, _ := tc.InputSchema.Get(paramName)
			toolOpts = append(toolOpts, propertyOption(attrs, paramName))
		}
	}

	tool := mcp.NewTool(flowName, toolOpts...)
	s.mcp.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := req.GetArguments()
		resp, err := f.AsyncCall(ctx, args)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		if !resp.Success {
			errMsg, _ := resp.Metadata["error"].(string)
			return mcp.NewToolResultError(errMsg), nil
		}
		return mcp.NewToolResultText(resp.Answer), nil
	})
	return nil
}

func describeOrDefault(tc *toolcall.ToolCall, flowName string) string {
	if tc != nil && tc.Description != "" {
		return tc.Description
	}
	return "invokes the " + flowName + " flow"
}

// propertyOption maps one ToolCall input parameter to the matching mcp-go
// property builder by declared type.
func propertyOption(attrs toolcall.ParamAttrs, name string) mcp.ToolOption {
	var propOpts []mcp.PropertyOption
	if attrs.Description != "" {
		propOpts = append(propOpts, mcp.Description(attrs.Description))
	}
	if attrs.Required {
		propOpts = append(propOpts, mcp.Required())
	}

	switch attrs.Type {
	case "integer", "number":
		return mcp.WithNumber(name, propOpts...)
	case "boolean":
		return mcp.WithBoolean(name, propOpts...)
	default:
		return mcp.WithString(name, propOpts...)
	}
}

// ServeStdio runs the MCP server over stdio, blocking until the process is
// signalled to stop.
func ServeStdio(s *Server) error {
	return server.ServeStdio(s.mcp)
}

// NewStreamableHTTPHandler exposes the MCP server as an http.Handler for
// callers that want to mount it alongside the HTTP adapter instead of
// running it over stdio.
func NewStreamableHTTPHandler(s *Server) *server.StreamableHTTPServer {
	return server.NewStreamableHTTPServer(s.mcp)
}
