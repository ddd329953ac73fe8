// Package mcp exposes the recall engine over the Model Context Protocol:
// JSON-RPC 2.0 tools for storing, searching, and managing memories.
package mcp

import (
	"encoding/json"
	"strings"

	"github.com/agentrecall/recall/pkg/types"
)

// flexTags accepts a tags field as a JSON array, a JSON-encoded array string,
// or a comma-separated string. Some MCP clients serialise array arguments as
// strings, so all three forms are tolerated.
type flexTags []string

func (t *flexTags) UnmarshalJSON(data []byte) error {
	var tags []string
	if err := json.Unmarshal(data, &tags); err == nil {
		*t = tags
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return nil // ignore unrecognised tag formats rather than failing
	}
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "[") {
		_ = json.Unmarshal([]byte(s), &tags)
		*t = tags
		return nil
	}
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			*t = append(*t, part)
		}
	}
	return nil
}

// StoreMemoryArgs contains arguments for the store_memory tool.
type StoreMemoryArgs struct {
	Content  string   `json:"content"`
	Category string   `json:"category"`
	Tags     flexTags `json:"tags,omitempty"`
}

// StoreMemoriesArgs contains arguments for the store_memories batch tool.
type StoreMemoriesArgs struct {
	Memories []StoreMemoryArgs `json:"memories"`
}

// StoreMemoriesResult reports the stored batch.
type StoreMemoriesResult struct {
	IDs     []string `json:"ids"`
	Message string   `json:"message"`
}

// SearchMemoryArgs contains arguments for the search_memory tool.
type SearchMemoryArgs struct {
	Query    string   `json:"query"`
	Mode     string   `json:"mode,omitempty"` // semantic, keyword, or hybrid (default)
	Category string   `json:"category,omitempty"`
	Tags     flexTags `json:"tags,omitempty"`
	After    string   `json:"after,omitempty"`
	Before   string   `json:"before,omitempty"`
	Limit    int      `json:"limit,omitempty"`
}

// SearchMemoryResult carries the ranked matches.
type SearchMemoryResult struct {
	Results []types.SearchResult `json:"results"`
	Count   int                  `json:"count"`
}

// FindRelatedArgs contains arguments for the find_related tool.
type FindRelatedArgs struct {
	ID    string `json:"id"`
	Limit int    `json:"limit,omitempty"`
}

// ListRecentArgs contains arguments for the list_recent tool.
type ListRecentArgs struct {
	Limit    int    `json:"limit,omitempty"`
	Category string `json:"category,omitempty"`
}

// ListRecentResult carries memories newest-first.
type ListRecentResult struct {
	Memories []types.Memory `json:"memories"`
	Count    int            `json:"count"`
}

// UpdateMemoryArgs contains arguments for the update_memory tool.
// Omitted fields are left unchanged.
type UpdateMemoryArgs struct {
	ID       string    `json:"id"`
	Content  *string   `json:"content,omitempty"`
	Category *string   `json:"category,omitempty"`
	Tags     *flexTags `json:"tags,omitempty"`
}

// DeleteMemoryArgs contains arguments for the delete_memory tool.
type DeleteMemoryArgs struct {
	ID string `json:"id"`
}

// DeleteMemoryResult confirms a deletion.
type DeleteMemoryResult struct {
	ID      string `json:"id"`
	Message string `json:"message"`
}

// JSONRPCRequest represents a JSON-RPC 2.0 request.
type JSONRPCRequest struct {
	JSONRPC string      `json:"jsonrpc"` // must be "2.0"
	Method  string      `json:"method"`
	Params  interface{} `json:"params"`
	ID      interface{} `json:"id"` // string, number, or null
}

// JSONRPCResponse represents a JSON-RPC 2.0 response.
type JSONRPCResponse struct {
	JSONRPC string        `json:"jsonrpc"`
	Result  interface{}   `json:"result,omitempty"`
	Error   *JSONRPCError `json:"error,omitempty"`
	ID      interface{}   `json:"id"`
}

// JSONRPCError represents a JSON-RPC 2.0 error.
type JSONRPCError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// JSON-RPC error codes
const (
	ErrCodeParseError     = -32700
	ErrCodeInvalidRequest = -32600
	ErrCodeMethodNotFound = -32601
	ErrCodeInvalidParams  = -32602
	ErrCodeInternalError  = -32603
	ErrCodeServerError    = -32000
)

// MCPServerInfo identifies this MCP server.
type MCPServerInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// MCPServerCapabilities describes what this server supports.
type MCPServerCapabilities struct {
	Tools *MCPToolsCapability `json:"tools,omitempty"`
}

// MCPToolsCapability signals that the server exposes tools.
type MCPToolsCapability struct{}

// MCPInitializeResult is the response to the initialize request.
type MCPInitializeResult struct {
	ProtocolVersion string                `json:"protocolVersion"`
	Capabilities    MCPServerCapabilities `json:"capabilities"`
	ServerInfo      MCPServerInfo         `json:"serverInfo"`
}

// MCPTool describes a single tool exposed via tools/list.
type MCPTool struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	InputSchema map[string]interface{} `json:"inputSchema"`
}

// MCPToolsListResult is the response to the tools/list request.
type MCPToolsListResult struct {
	Tools []MCPTool `json:"tools"`
}

// MCPToolCallParams holds the parameters of a tools/call request.
type MCPToolCallParams struct {
	Name      string                 `json:"name"`
	Arguments map[string]interface{} `json:"arguments"`
}

// MCPToolCallContent is a single content block in a tool call response.
type MCPToolCallContent struct {
	Type string `json:"type"` // always "text"
	Text string `json:"text"`
}

// MCPToolCallResult is the response to a tools/call request.
type MCPToolCallResult struct {
	Content []MCPToolCallContent `json:"content"`
	IsError bool                 `json:"isError,omitempty"`
}
