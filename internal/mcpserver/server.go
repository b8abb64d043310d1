// Package mcpserver provides an MCP (Model Context Protocol) server that
// exposes the note compiler and link catalog to LLM clients over stdio.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/bookzettel/internal/analysis"
	"github.com/starford/bookzettel/internal/apperr"
	"github.com/starford/bookzettel/internal/index"
	"github.com/starford/bookzettel/internal/moc"
	"github.com/starford/bookzettel/internal/noteservice"
)

const contractURI = "bookzettel://concept-format"

// Server wraps the MCP server with bookzettel tools.
type Server struct {
	mcp *server.MCPServer
	svc *noteservice.Service
}

// New creates a new MCP server with all tools registered.
func New(svc *noteservice.Service, version string) *Server {
	s := &Server{svc: svc}

	s.mcp = server.NewMCPServer(
		"bookzettel",
		version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("compile_concepts",
		mcp.WithDescription("Compile concept records into atomic notes. Records are a JSON array of "+
			"{title, summary, tags, examples?} objects; read get_concept_contract first."),
		mcp.WithString("records", mcp.Required(), mcp.Description("JSON array of concept records")),
		mcp.WithString("chapter", mcp.Description("Chapter label recorded in every note")),
		mcp.WithBoolean("overwrite", mcp.DefaultBool(false), mcp.Description("Replace existing notes instead of skipping them")),
		mcp.WithBoolean("build_moc", mcp.DefaultBool(true), mcp.Description("Regenerate the book's map of content")),
		mcp.WithBoolean("build_chapter_index", mcp.DefaultBool(false), mcp.Description("Regenerate the chapter's index note")),
	), s.compileConcepts)

	s.mcp.AddTool(mcp.NewTool("read_note",
		mcp.WithDescription("Read a note by its canonical id (the title, without extension)."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Canonical note id, e.g. Random Walk Theory")),
		mcp.WithString("format", mcp.Enum("markdown", "html"), mcp.DefaultString("markdown"), mcp.Description("Output format")),
	), s.readNote)

	s.mcp.AddTool(mcp.NewTool("list_notes",
		mcp.WithDescription("List note ids, optionally filtered by tag, chapter or kind."),
		mcp.WithString("tag", mcp.Description("Only notes carrying this tag")),
		mcp.WithString("chapter", mcp.Description("Only notes of this chapter")),
		mcp.WithString("kind", mcp.Enum(index.KindNote, moc.TypeMapOfContent, moc.TypeChapterIndex), mcp.Description("Only notes of this kind")),
		mcp.WithNumber("limit", mcp.Description("Maximum number of ids (default 200)")),
	), s.listNotes)

	s.mcp.AddTool(mcp.NewTool("search_notes",
		mcp.WithDescription("Full-text search through note titles, bodies and tags."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Search query string")),
	), s.searchNotes)

	s.mcp.AddTool(mcp.NewTool("get_backlinks",
		mcp.WithDescription("Find all notes that link to the specified note."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Canonical id of the linked note")),
	), s.getBacklinks)

	s.mcp.AddTool(mcp.NewTool("list_dangling_links",
		mcp.WithDescription("List [[links]] whose target concept has no note yet. Useful for deciding which concepts to write next."),
	), s.listDangling)

	s.mcp.AddTool(mcp.NewTool("rebuild_moc",
		mcp.WithDescription("Regenerate the map of content from the notes on disk, and the chapter index when a chapter is given."),
		mcp.WithString("chapter", mcp.Description("Chapter whose index note should be rebuilt")),
	), s.rebuildMOC)

	s.mcp.AddTool(mcp.NewTool("get_concept_contract",
		mcp.WithDescription("Returns the concept record format accepted by compile_concepts and the note it produces."),
	), s.getConceptContract)

	s.mcp.AddResource(
		mcp.NewResource(contractURI, "Concept Record Contract",
			mcp.WithResourceDescription("Concept record format accepted by compile_concepts."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readContractResource,
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

func (s *Server) compileConcepts(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	raw, err := req.RequireString("records")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	records, err := analysis.DecodeRecords(raw)
	if err != nil {
		return mcp.NewToolResultErrorf("invalid records: %v", err), nil
	}
	summary, err := s.svc.Compile(ctx, noteservice.CompileRequest{
		Records:           records,
		Chapter:           req.GetString("chapter", ""),
		Overwrite:         req.GetBool("overwrite", false),
		BuildMOC:          req.GetBool("build_moc", true),
		BuildChapterIndex: req.GetBool("build_chapter_index", false),
	})
	if err != nil {
		if summary != nil {
			return mcp.NewToolResultErrorf("run %s aborted after %d notes: %v", summary.RunID, summary.Written+summary.Overwritten, err), nil
		}
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(summary)
}

func (s *Server) readNote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if req.GetString("format", "markdown") == "html" {
		note, err := s.svc.RenderHTML(ctx, id, "")
		if err != nil {
			return notFoundOr(id, err), nil
		}
		return mcp.NewToolResultText(note.HTML), nil
	}
	note, err := s.svc.GetNote(ctx, id)
	if err != nil {
		return notFoundOr(id, err), nil
	}
	return mcp.NewToolResultText(note.Content), nil
}

func notFoundOr(id string, err error) *mcp.CallToolResult {
	if errors.Is(err, apperr.ErrNotFound) {
		return mcp.NewToolResultError(fmt.Sprintf("not found: %s", id))
	}
	return mcp.NewToolResultError(err.Error())
}

func (s *Server) listNotes(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	items, _, err := s.svc.ListNotes(ctx, index.ListQuery{
		Limit:   req.GetInt("limit", 200),
		Tag:     req.GetString("tag", ""),
		Chapter: req.GetString("chapter", ""),
		Kind:    req.GetString("kind", ""),
	})
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if len(items) == 0 {
		return mcp.NewToolResultText("no notes found"), nil
	}
	ids := make([]string, len(items))
	for i, it := range items {
		ids[i] = it.ID
	}
	return mcp.NewToolResultText(strings.Join(ids, "\n")), nil
}

func (s *Server) searchNotes(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	results, err := s.svc.Search(ctx, query, 20)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(results)
}

func (s *Server) getBacklinks(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	bl, err := s.svc.Backlinks(ctx, id)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if len(bl) == 0 {
		return mcp.NewToolResultText("no backlinks found"), nil
	}
	return mcp.NewToolResultText(strings.Join(bl, "\n")), nil
}

func (s *Server) listDangling(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	links, err := s.svc.Dangling(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if len(links) == 0 {
		return mcp.NewToolResultText("no dangling links"), nil
	}
	lines := make([]string, len(links))
	for i, l := range links {
		lines[i] = l.Source + " -> " + l.Target
	}
	return mcp.NewToolResultText(strings.Join(lines, "\n")), nil
}

func (s *Server) rebuildMOC(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	summary, err := s.svc.Rebuild(ctx, req.GetString("chapter", ""))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(summary)
}

func (s *Server) getConceptContract(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(ConceptContract), nil
}

func (s *Server) readContractResource(_ context.Context, _ mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      contractURI,
			MIMEType: "text/markdown",
			Text:     ConceptContract,
		},
	}, nil
}
