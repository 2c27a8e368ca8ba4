// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes the scientific preprocessor as tools via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/scimark/internal/apperr"
	"github.com/starford/scimark/internal/service"
	"github.com/starford/scimark/internal/storage"
)

const syntaxURI = "scimark://markup-syntax"

// Server wraps the MCP server with scimark tools.
type Server struct {
	mcp     *server.MCPServer
	svc     *service.Service
	sources storage.Provider
}

// New creates a new MCP server with all tools registered. sources is the
// directory external block bodies are loaded from; nil hides the upload tool.
func New(svc *service.Service, sources storage.Provider, version string) *Server {
	s := &Server{svc: svc, sources: sources}

	s.mcp = server.NewMCPServer(
		"scimark",
		version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("render_fragment",
		mcp.WithDescription("Render one equation or figure body to SVG and return the file name and "+
			"the HTML markup the preprocessor would emit. Read the markup syntax first via "+
			"get_markup_syntax or the "+syntaxURI+" resource."),
		mcp.WithString("kind", mcp.Required(), mcp.Description("equation, latex, gnuplot or gnuplotonly")),
		mcp.WithString("body", mcp.Required(), mcp.Description("Fragment body, e.g. LaTeX math for an equation")),
		mcp.WithNumber("zoom", mcp.Description("Scale factor; defaults to 1.6 for equations and 1.0 for figures")),
	), s.renderFragment)

	s.mcp.AddTool(mcp.NewTool("resolve_reference",
		mcp.WithDescription("Resolve a label of the last build to its display text."),
		mcp.WithString("type", mcp.Required(), mcp.Description("fig, equ or bib")),
		mcp.WithString("label", mcp.Required(), mcp.Description("Label as written in the block header")),
	), s.resolveReference)

	s.mcp.AddTool(mcp.NewTool("search_references",
		mcp.WithDescription("Search labels of the last build by name or display text."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Search query string")),
	), s.searchReferences)

	s.mcp.AddTool(mcp.NewTool("list_fragments",
		mcp.WithDescription("List cached fragments, most recently used first."),
		mcp.WithString("kind", mcp.Description("Optional kind filter")),
		mcp.WithNumber("limit", mcp.Description("Page size (default 50)")),
	), s.listFragments)

	s.mcp.AddTool(mcp.NewTool("build_book",
		mcp.WithDescription("Run the preprocessor over the configured book and report the result."),
	), s.buildBook)

	s.mcp.AddTool(mcp.NewTool("get_markup_syntax",
		mcp.WithDescription("Returns the block, inline and reference syntax the preprocessor understands. "+
			"Call this before writing chapters."),
	), s.getMarkupSyntax)

	if sources != nil {
		s.mcp.AddTool(mcp.NewTool("upload_block_source",
			mcp.WithDescription("Store a LaTeX body for a figure block that is written without one. "+
				"Returns the header line to paste into the chapter."),
			mcp.WithString("content", mcp.Description("LaTeX source text")),
			mcp.WithString("url", mcp.Description("base64 data URI or http(s) URL of the source, used when content is empty")),
			mcp.WithString("filename", mcp.Description("Target file name; .tex is enforced")),
		), s.uploadBlockSource)
	}

	s.mcp.AddResource(
		mcp.NewResource(syntaxURI, "Markup Syntax",
			mcp.WithResourceDescription("Scientific markup understood by the preprocessor."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readSyntaxResource,
	)

	return s
}

// Listen serves MCP over in and out until ctx is done or in is closed.
// Transport errors go to logger.
func (s *Server) Listen(ctx context.Context, in io.Reader, out io.Writer, logger *slog.Logger) error {
	stdio := server.NewStdioServer(s.mcp)
	stdio.SetErrorLogger(slog.NewLogLogger(logger.Handler(), slog.LevelError))
	return stdio.Listen(ctx, in, out)
}

func jsonResult(v any) *mcp.CallToolResult {
	out, _ := json.MarshalIndent(v, "", "  ")
	return mcp.NewToolResultText(string(out))
}

// errorResult reports err to the model along with its class.
func errorResult(err error) *mcp.CallToolResult {
	return mcp.NewToolResultError(fmt.Sprintf("%s: %v", apperr.Classify(err), err))
}

func (s *Server) renderFragment(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	kind, err := req.RequireString("kind")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	body, err := req.RequireString("body")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	sn, err := s.svc.RenderSnippet(ctx, kind, body, req.GetFloat("zoom", 0))
	if err != nil {
		return errorResult(err), nil
	}
	return jsonResult(sn), nil
}

func (s *Server) resolveReference(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ns, err := req.RequireString("type")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	label, err := req.RequireString("label")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	l, err := s.svc.Resolve(ctx, ns, label)
	if errors.Is(err, apperr.ErrNotFound) {
		return mcp.NewToolResultError(fmt.Sprintf("no label %s:%s; run build_book first or check the header", ns, label)), nil
	}
	if err != nil {
		return errorResult(err), nil
	}
	return jsonResult(l), nil
}

func (s *Server) searchReferences(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	labels, err := s.svc.SearchLabels(ctx, query, 20)
	if err != nil {
		return errorResult(err), nil
	}
	if len(labels) == 0 {
		return mcp.NewToolResultText("no labels found"), nil
	}
	return jsonResult(labels), nil
}

func (s *Server) listFragments(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	items, total, err := s.svc.Fragments(ctx, req.GetInt("limit", 50), 0, req.GetString("kind", ""))
	if err != nil {
		return errorResult(err), nil
	}
	return jsonResult(map[string]any{"fragments": items, "total": total}), nil
}

func (s *Server) buildBook(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	st, err := s.svc.Build(ctx)
	if err != nil {
		res := jsonResult(st)
		res.IsError = true
		return res, nil
	}
	return jsonResult(st), nil
}

func (s *Server) getMarkupSyntax(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(MarkupSyntax), nil
}

func (s *Server) readSyntaxResource(_ context.Context, _ mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      syntaxURI,
			MIMEType: "text/markdown",
			Text:     MarkupSyntax,
		},
	}, nil
}
