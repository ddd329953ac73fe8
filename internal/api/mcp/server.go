package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/agentrecall/recall/internal/engine"
	"github.com/agentrecall/recall/internal/storage"
	"github.com/agentrecall/recall/pkg/types"
)

const (
	serverName      = "recall"
	serverVersion   = "1.0.0"
	protocolVersion = "2024-11-05"
)

// Server dispatches JSON-RPC 2.0 requests to the memory engine.
type Server struct {
	engine *engine.Engine
}

// NewServer wraps the engine in an MCP request handler.
func NewServer(eng *engine.Engine) *Server {
	return &Server{engine: eng}
}

// HandleRequest processes one JSON-RPC 2.0 request and returns the encoded
// response. It is the single entry point used by the transport.
func (s *Server) HandleRequest(ctx context.Context, requestJSON []byte) ([]byte, error) {
	var req JSONRPCRequest
	if err := json.Unmarshal(requestJSON, &req); err != nil {
		return s.errorResponse(nil, ErrCodeParseError, "parse error", err)
	}
	if req.JSONRPC != "2.0" {
		return s.errorResponse(req.ID, ErrCodeInvalidRequest, "invalid JSON-RPC version", nil)
	}

	var result interface{}
	var err error

	switch req.Method {
	case "initialize":
		result = MCPInitializeResult{
			ProtocolVersion: protocolVersion,
			Capabilities:    MCPServerCapabilities{Tools: &MCPToolsCapability{}},
			ServerInfo:      MCPServerInfo{Name: serverName, Version: serverVersion},
		}
	case "initialized", "notifications/initialized":
		// Notification, no response body required.
		result = map[string]interface{}{}
	case "tools/list":
		result = MCPToolsListResult{Tools: buildToolsList()}
	case "tools/call":
		result, err = s.handleToolsCall(ctx, req.Params)
	default:
		// Direct method calls, mirroring the tool names.
		result, err = s.callTool(ctx, req.Method, req.Params)
		if errors.Is(err, errUnknownTool) {
			return s.errorResponse(req.ID, ErrCodeMethodNotFound, fmt.Sprintf("method not found: %s", req.Method), nil)
		}
	}

	if err != nil {
		return s.errorResponse(req.ID, ErrCodeServerError, err.Error(), nil)
	}
	return s.successResponse(req.ID, result)
}

// handleToolsCall dispatches tools/call to the named tool and wraps the
// result in the MCP content envelope. Tool failures become isError results,
// not protocol errors, so clients can surface them to the model.
func (s *Server) handleToolsCall(ctx context.Context, params interface{}) (interface{}, error) {
	var p MCPToolCallParams
	if err := unmarshalParams(params, &p); err != nil {
		return nil, err
	}

	result, err := s.callTool(ctx, p.Name, p.Arguments)
	if errors.Is(err, errUnknownTool) {
		return &MCPToolCallResult{
			Content: []MCPToolCallContent{{Type: "text", Text: fmt.Sprintf("unknown tool: %s", p.Name)}},
			IsError: true,
		}, nil
	}
	if err != nil {
		return &MCPToolCallResult{
			Content: []MCPToolCallContent{{Type: "text", Text: err.Error()}},
			IsError: true,
		}, nil
	}

	text, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("marshal result: %w", err)
	}
	return &MCPToolCallResult{
		Content: []MCPToolCallContent{{Type: "text", Text: string(text)}},
	}, nil
}

var errUnknownTool = errors.New("unknown tool")

func (s *Server) callTool(ctx context.Context, name string, params interface{}) (interface{}, error) {
	switch name {
	case "store_memory":
		return s.handleStoreMemory(ctx, params)
	case "store_memories":
		return s.handleStoreMemories(ctx, params)
	case "search_memory":
		return s.handleSearchMemory(ctx, params)
	case "find_related":
		return s.handleFindRelated(ctx, params)
	case "list_recent":
		return s.handleListRecent(ctx, params)
	case "update_memory":
		return s.handleUpdateMemory(ctx, params)
	case "delete_memory":
		return s.handleDeleteMemory(ctx, params)
	case "memory_stats":
		return s.engine.Stats(ctx)
	}
	return nil, errUnknownTool
}

func (s *Server) handleStoreMemory(ctx context.Context, params interface{}) (interface{}, error) {
	var args StoreMemoryArgs
	if err := unmarshalParams(params, &args); err != nil {
		return nil, err
	}
	mem, err := s.engine.Store(ctx, types.StoreRequest{
		Content:  args.Content,
		Category: types.Category(args.Category),
		Tags:     args.Tags,
	})
	if err != nil {
		return nil, err
	}
	return mem, nil
}

func (s *Server) handleStoreMemories(ctx context.Context, params interface{}) (interface{}, error) {
	var args StoreMemoriesArgs
	if err := unmarshalParams(params, &args); err != nil {
		return nil, err
	}
	reqs := make([]types.StoreRequest, 0, len(args.Memories))
	for _, m := range args.Memories {
		reqs = append(reqs, types.StoreRequest{
			Content:  m.Content,
			Category: types.Category(m.Category),
			Tags:     m.Tags,
		})
	}
	stored, err := s.engine.StoreBatch(ctx, reqs)
	if err != nil {
		return nil, err
	}
	ids := make([]string, len(stored))
	for i, m := range stored {
		ids[i] = m.ID
	}
	return &StoreMemoriesResult{
		IDs:     ids,
		Message: fmt.Sprintf("stored %d memories", len(ids)),
	}, nil
}

func (s *Server) handleSearchMemory(ctx context.Context, params interface{}) (interface{}, error) {
	var args SearchMemoryArgs
	if err := unmarshalParams(params, &args); err != nil {
		return nil, err
	}
	if strings.TrimSpace(args.Query) == "" {
		return nil, fmt.Errorf("%w: query is required", storage.ErrInvalidInput)
	}
	mode := types.SearchMode(args.Mode)
	if args.Mode != "" && !types.IsValidSearchMode(mode) {
		return nil, fmt.Errorf("%w: unknown search mode %q", storage.ErrInvalidInput, args.Mode)
	}
	results, err := s.engine.Search(ctx, args.Query, mode, types.SearchFilters{
		Category: types.Category(args.Category),
		Tags:     args.Tags,
		After:    args.After,
		Before:   args.Before,
		Limit:    args.Limit,
	})
	if err != nil {
		return nil, err
	}
	return &SearchMemoryResult{Results: results, Count: len(results)}, nil
}

func (s *Server) handleFindRelated(ctx context.Context, params interface{}) (interface{}, error) {
	var args FindRelatedArgs
	if err := unmarshalParams(params, &args); err != nil {
		return nil, err
	}
	if args.ID == "" {
		return nil, fmt.Errorf("%w: id is required", storage.ErrInvalidInput)
	}
	results, err := s.engine.FindRelated(ctx, args.ID, args.Limit)
	if err != nil {
		return nil, err
	}
	return &SearchMemoryResult{Results: results, Count: len(results)}, nil
}

func (s *Server) handleListRecent(ctx context.Context, params interface{}) (interface{}, error) {
	var args ListRecentArgs
	if err := unmarshalParams(params, &args); err != nil {
		return nil, err
	}
	memories, err := s.engine.ListRecent(ctx, args.Limit, types.Category(args.Category))
	if err != nil {
		return nil, err
	}
	return &ListRecentResult{Memories: memories, Count: len(memories)}, nil
}

func (s *Server) handleUpdateMemory(ctx context.Context, params interface{}) (interface{}, error) {
	var args UpdateMemoryArgs
	if err := unmarshalParams(params, &args); err != nil {
		return nil, err
	}
	if args.ID == "" {
		return nil, fmt.Errorf("%w: id is required", storage.ErrInvalidInput)
	}
	upd := types.UpdateRequest{Content: args.Content}
	if args.Category != nil {
		cat := types.Category(*args.Category)
		upd.Category = &cat
	}
	if args.Tags != nil {
		tags := []string(*args.Tags)
		upd.Tags = &tags
	}
	mem, err := s.engine.Update(ctx, args.ID, upd)
	if err != nil {
		return nil, err
	}
	return mem, nil
}

func (s *Server) handleDeleteMemory(ctx context.Context, params interface{}) (interface{}, error) {
	var args DeleteMemoryArgs
	if err := unmarshalParams(params, &args); err != nil {
		return nil, err
	}
	if args.ID == "" {
		return nil, fmt.Errorf("%w: id is required", storage.ErrInvalidInput)
	}
	if err := s.engine.Delete(ctx, args.ID); err != nil {
		return nil, err
	}
	return &DeleteMemoryResult{ID: args.ID, Message: "memory deleted"}, nil
}

// unmarshalParams converts the loosely typed params value into a concrete
// args struct by re-marshalling through JSON.
func unmarshalParams(params, dest interface{}) error {
	if params == nil {
		return nil
	}
	data, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("marshal params: %w", err)
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return fmt.Errorf("invalid params: %w", err)
	}
	return nil
}

func (s *Server) successResponse(id, result interface{}) ([]byte, error) {
	return json.Marshal(JSONRPCResponse{JSONRPC: "2.0", Result: result, ID: id})
}

func (s *Server) errorResponse(id interface{}, code int, message string, err error) ([]byte, error) {
	rpcErr := &JSONRPCError{Code: code, Message: message}
	if err != nil {
		rpcErr.Data = err.Error()
	}
	return json.Marshal(JSONRPCResponse{JSONRPC: "2.0", Error: rpcErr, ID: id})
}

func strSchema(desc string) map[string]interface{} {
	return map[string]interface{}{"type": "string", "description": desc}
}

func intSchema(desc string) map[string]interface{} {
	return map[string]interface{}{"type": "integer", "description": desc}
}

func tagsSchema(desc string) map[string]interface{} {
	return map[string]interface{}{
		"type":        "array",
		"items":       map[string]interface{}{"type": "string"},
		"description": desc,
	}
}

// buildToolsList returns the canonical tool definitions for tools/list.
func buildToolsList() []MCPTool {
	categoryDesc := "Category: one of " + categoryList()
	return []MCPTool{
		{
			Name:        "store_memory",
			Description: "Store a new memory with a category and optional tags. The content is embedded for later semantic retrieval.",
			InputSchema: map[string]interface{}{
				"type":     "object",
				"required": []string{"content", "category"},
				"properties": map[string]interface{}{
					"content":  strSchema("The memory content to store (required)"),
					"category": strSchema(categoryDesc),
					"tags":     tagsSchema("Optional tags. Tag a memory 'evergreen' or 'never-forget' to exempt it from temporal decay."),
				},
			},
		},
		{
			Name:        "store_memories",
			Description: "Store several memories in one call. Embeddings are computed in a single batch.",
			InputSchema: map[string]interface{}{
				"type":     "object",
				"required": []string{"memories"},
				"properties": map[string]interface{}{
					"memories": map[string]interface{}{
						"type":        "array",
						"description": "Memories to store; each needs content and category.",
						"items": map[string]interface{}{
							"type":     "object",
							"required": []string{"content", "category"},
							"properties": map[string]interface{}{
								"content":  strSchema("Memory content"),
								"category": strSchema(categoryDesc),
								"tags":     tagsSchema("Optional tags"),
							},
						},
					},
				},
			},
		},
		{
			Name: "search_memory",
			Description: "Search stored memories. Modes: hybrid (default, semantic + keyword fused), " +
				"semantic (embedding similarity), keyword (full-text match). " +
				"Results are rescored by recency unless tagged evergreen.",
			InputSchema: map[string]interface{}{
				"type":     "object",
				"required": []string{"query"},
				"properties": map[string]interface{}{
					"query":    strSchema("Natural-language search query (required)"),
					"mode":     strSchema("Search mode: semantic, keyword, or hybrid (default)"),
					"category": strSchema("Restrict results to one category"),
					"tags":     tagsSchema("Keep only results carrying at least one of these tags"),
					"after":    strSchema("ISO-8601 inclusive lower bound on creation time"),
					"before":   strSchema("ISO-8601 inclusive upper bound on creation time"),
					"limit":    intSchema("Max results (default 10)"),
				},
			},
		},
		{
			Name:        "find_related",
			Description: "Find memories semantically similar to an existing memory, excluding the memory itself.",
			InputSchema: map[string]interface{}{
				"type":     "object",
				"required": []string{"id"},
				"properties": map[string]interface{}{
					"id":    strSchema("ID of the reference memory (required)"),
					"limit": intSchema("Max results (default 10)"),
				},
			},
		},
		{
			Name:        "list_recent",
			Description: "List memories newest first, optionally filtered by category.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"limit":    intSchema("Max results (default 10)"),
					"category": strSchema("Restrict to one category"),
				},
			},
		},
		{
			Name:        "update_memory",
			Description: "Update a memory's content, category, or tags. Omitted fields are unchanged; new content is re-embedded.",
			InputSchema: map[string]interface{}{
				"type":     "object",
				"required": []string{"id"},
				"properties": map[string]interface{}{
					"id":       strSchema("ID of the memory to update (required)"),
					"content":  strSchema("Replacement content"),
					"category": strSchema(categoryDesc),
					"tags":     tagsSchema("Replacement tag list (replaces all existing tags)"),
				},
			},
		},
		{
			Name:        "delete_memory",
			Description: "Permanently delete a memory by ID.",
			InputSchema: map[string]interface{}{
				"type":     "object",
				"required": []string{"id"},
				"properties": map[string]interface{}{
					"id": strSchema("ID of the memory to delete (required)"),
				},
			},
		},
		{
			Name:        "memory_stats",
			Description: "Report memory counts, per-category breakdown, and the oldest and newest timestamps.",
			InputSchema: map[string]interface{}{
				"type":       "object",
				"properties": map[string]interface{}{},
			},
		},
	}
}

func categoryList() string {
	names := make([]string, len(types.Categories))
	for i, c := range types.Categories {
		names[i] = string(c)
	}
	return strings.Join(names, ", ")
}
