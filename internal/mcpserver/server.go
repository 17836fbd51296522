// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes the render engine to LLM clients via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/mdxengine/internal/apperr"
	"github.com/starford/mdxengine/internal/models"
	"github.com/starford/mdxengine/internal/registry"
	"github.com/starford/mdxengine/internal/render"
	"github.com/starford/mdxengine/internal/watcher"
)

const guideURI = "mdx://authoring-guide"

// Engine is the render surface the tools need.
type Engine interface {
	Render(ctx context.Context, req *models.Request) (*models.BatchResult, error)
	Components() []registry.Definition
}

// Server wraps the MCP server with the render tools.
type Server struct {
	mcp    *server.MCPServer
	engine Engine
	site   *watcher.Builder
}

// Option configures a Server.
type Option func(*Server)

// WithSite adds the sync_site tool backed by b.
func WithSite(b *watcher.Builder) Option {
	return func(s *Server) { s.site = b }
}

// New creates a new MCP server with all tools registered.
func New(engine Engine, opts ...Option) *Server {
	s := &Server{engine: engine}
	for _, opt := range opts {
		opt(s)
	}

	s.mcp = server.NewMCPServer(
		"mdxengine",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("render_documents",
		mcp.WithDescription("Render a batch of MDX documents. Each document gets its own outcome; "+
			"one failing document does not affect the others. Read the authoring guide first via "+
			"get_authoring_guide or the "+guideURI+" resource."),
		mcp.WithObject("documents", mcp.Required(), mcp.Description("Map of document name to MDX text")),
		mcp.WithString("output", mcp.Description("Output format"),
			mcp.Enum(models.OutputHTML, models.OutputJavaScript, models.OutputSchema, models.OutputJSON)),
		mcp.WithBoolean("minify", mcp.Description("Minify output (default true)")),
		mcp.WithString("engine", mcp.Description("Component lookup mode"),
			mcp.Enum(models.EngineBase, models.EngineCustom)),
		mcp.WithArray("components", mcp.Description("Allow-list of component names"),
			mcp.Items(map[string]any{"type": "string"})),
		mcp.WithArray("directives", mcp.Description("Attribute prefixes treated as directives"),
			mcp.Items(map[string]any{"type": "string"})),
		mcp.WithString("utils", mcp.Description("Module whose default export is exposed to components as utils")),
		mcp.WithBoolean("strict", mcp.Description("Fail documents that use unknown components")),
		mcp.WithObject("componentDefinitions", mcp.Description("Map of component name to {code, docs}")),
	), s.renderDocuments)

	s.mcp.AddTool(mcp.NewTool("inspect_document",
		mcp.WithDescription("List the components and directive attributes a document uses without rendering it."),
		mcp.WithString("text", mcp.Required(), mcp.Description("MDX text")),
		mcp.WithString("document", mcp.Description("Document name used in errors")),
		mcp.WithArray("directives", mcp.Description("Attribute prefixes treated as directives"),
			mcp.Items(map[string]any{"type": "string"})),
		mcp.WithArray("components", mcp.Description("Allow-list used to report unresolved components"),
			mcp.Items(map[string]any{"type": "string"})),
	), s.inspectDocument)

	s.mcp.AddTool(mcp.NewTool("list_components",
		mcp.WithDescription("List the built-in components with their documentation."),
	), s.listComponents)

	s.mcp.AddTool(mcp.NewTool("get_authoring_guide",
		mcp.WithDescription("Returns the MDX authoring guide. "+
			"Call this before writing documents or component definitions."),
	), s.getAuthoringGuide)

	if s.site != nil {
		s.mcp.AddTool(mcp.NewTool("sync_site",
			mcp.WithDescription("Re-render changed documents of the content directory into the output directory."),
		), s.syncSite)
	}

	s.mcp.AddResource(
		mcp.NewResource(guideURI, "MDX Authoring Guide",
			mcp.WithResourceDescription("The MDX dialect, component contract and output formats."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readGuideResource,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(out)), nil
}

// requestFromArgs reshapes flat tool arguments into a batch request and
// decodes it through the same path as the HTTP API.
func requestFromArgs(args map[string]any) (*models.Request, error) {
	settings := map[string]any{}
	for _, key := range []string{"output", "minify", "engine", "components", "directives", "utils", "strict"} {
		if v, ok := args[key]; ok {
			settings[key] = v
		}
	}
	body := map[string]any{
		"settings":  settings,
		"documents": args["documents"],
	}
	if defs, ok := args["componentDefinitions"]; ok {
		body["componentDefinitions"] = defs
	}
	raw, err := json.Marshal(body)
	if err != nil {
		return nil, apperr.Wrap(apperr.ErrInvalidRequest, err)
	}
	var req models.Request
	if err := json.Unmarshal(raw, &req); err != nil {
		if errors.Is(err, apperr.ErrInvalidRequest) {
			return nil, err
		}
		return nil, apperr.Wrap(apperr.ErrInvalidRequest, err)
	}
	return &req, nil
}

func (s *Server) renderDocuments(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	if _, ok := args["documents"].(map[string]any); !ok {
		return mcp.NewToolResultError("documents must be an object of name to text"), nil
	}
	batch, err := requestFromArgs(args)
	if err != nil {
		return mcp.NewToolResultError(apperr.Detail(err)), nil
	}
	res, err := s.engine.Render(ctx, batch)
	if err != nil {
		return mcp.NewToolResultError(apperr.Detail(err)), nil
	}
	return jsonResult(res)
}

func (s *Server) inspectDocument(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	text, err := req.RequireString("text")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	name := req.GetString("document", "document.mdx")
	directives := req.GetStringSlice("directives", nil)
	allow := req.GetStringSlice("components", nil)

	ins, err := render.Inspect(name, text, directives, registry.New(registry.ModeBase, allow, nil))
	if err != nil {
		return mcp.NewToolResultError(apperr.Detail(err)), nil
	}
	return jsonResult(ins)
}

type componentInfo struct {
	Name string `json:"name"`
	Docs string `json:"docs,omitempty"`
	Args any    `json:"args,omitempty"`
}

func (s *Server) listComponents(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	defs := s.engine.Components()
	out := make([]componentInfo, 0, len(defs))
	for _, d := range defs {
		out = append(out, componentInfo{Name: d.Name, Docs: d.Docs, Args: d.Args})
	}
	return jsonResult(out)
}

func (s *Server) getAuthoringGuide(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(AuthoringGuide), nil
}

func (s *Server) syncSite(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	report, err := s.site.Sync(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(report)
}

func (s *Server) readGuideResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      guideURI,
			MIMEType: "text/markdown",
			Text:     AuthoringGuide,
		},
	}, nil
}
