package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentrecall/recall/internal/embedding/embedtest"
	"github.com/agentrecall/recall/internal/engine"
	"github.com/agentrecall/recall/internal/storage/sqlite"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	store, err := sqlite.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return NewServer(engine.New(store, embedtest.New(16)))
}

// call sends a raw JSON-RPC request and decodes the response.
func call(t *testing.T, srv *Server, request string) JSONRPCResponse {
	t.Helper()
	raw, err := srv.HandleRequest(context.Background(), []byte(request))
	require.NoError(t, err)

	var resp JSONRPCResponse
	require.NoError(t, json.Unmarshal(raw, &resp))
	assert.Equal(t, "2.0", resp.JSONRPC)
	return resp
}

// callTool invokes a tool via tools/call and returns the decoded text payload.
func callTool(t *testing.T, srv *Server, name string, args interface{}) (string, bool) {
	t.Helper()
	argsJSON, err := json.Marshal(args)
	require.NoError(t, err)

	req := fmt.Sprintf(`{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":%q,"arguments":%s}}`, name, argsJSON)
	resp := call(t, srv, req)
	require.Nil(t, resp.Error, "tools/call must not produce a protocol error")

	resultJSON, err := json.Marshal(resp.Result)
	require.NoError(t, err)
	var result MCPToolCallResult
	require.NoError(t, json.Unmarshal(resultJSON, &result))
	require.NotEmpty(t, result.Content)
	return result.Content[0].Text, result.IsError
}

func TestInitializeHandshake(t *testing.T) {
	srv := newTestServer(t)

	resp := call(t, srv, `{"jsonrpc":"2.0","id":1,"method":"initialize","params":{}}`)
	require.Nil(t, resp.Error)

	data, _ := json.Marshal(resp.Result)
	var result MCPInitializeResult
	require.NoError(t, json.Unmarshal(data, &result))
	assert.Equal(t, "recall", result.ServerInfo.Name)
	assert.NotNil(t, result.Capabilities.Tools)
}

func TestToolsListExposesAllTools(t *testing.T) {
	srv := newTestServer(t)

	resp := call(t, srv, `{"jsonrpc":"2.0","id":2,"method":"tools/list"}`)
	require.Nil(t, resp.Error)

	data, _ := json.Marshal(resp.Result)
	var result MCPToolsListResult
	require.NoError(t, json.Unmarshal(data, &result))

	names := map[string]bool{}
	for _, tool := range result.Tools {
		names[tool.Name] = true
		assert.NotEmpty(t, tool.Description)
		assert.NotNil(t, tool.InputSchema)
	}
	for _, want := range []string{
		"store_memory", "store_memories", "search_memory", "find_related",
		"list_recent", "update_memory", "delete_memory", "memory_stats",
	} {
		assert.True(t, names[want], "missing tool %s", want)
	}
}

func TestStoreSearchDeleteRoundTrip(t *testing.T) {
	srv := newTestServer(t)

	text, isErr := callTool(t, srv, "store_memory", map[string]interface{}{
		"content":  "the staging cluster lives in eu-west-1",
		"category": "fact",
		"tags":     []string{"infra"},
	})
	require.False(t, isErr, "store failed: %s", text)

	var stored struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal([]byte(text), &stored))
	require.NotEmpty(t, stored.ID)

	text, isErr = callTool(t, srv, "search_memory", map[string]interface{}{
		"query": "staging cluster region",
		"mode":  "semantic",
	})
	require.False(t, isErr, "search failed: %s", text)

	var search SearchMemoryResult
	require.NoError(t, json.Unmarshal([]byte(text), &search))
	require.Equal(t, 1, search.Count)
	assert.Equal(t, stored.ID, search.Results[0].Memory.ID)

	text, isErr = callTool(t, srv, "delete_memory", map[string]interface{}{"id": stored.ID})
	require.False(t, isErr, "delete failed: %s", text)

	text, _ = callTool(t, srv, "search_memory", map[string]interface{}{
		"query": "staging cluster region",
		"mode":  "semantic",
	})
	require.NoError(t, json.Unmarshal([]byte(text), &search))
	assert.Zero(t, search.Count)
}

func TestStoreMemoriesBatch(t *testing.T) {
	srv := newTestServer(t)

	text, isErr := callTool(t, srv, "store_memories", map[string]interface{}{
		"memories": []map[string]interface{}{
			{"content": "first", "category": "fact"},
			{"content": "second", "category": "idea"},
		},
	})
	require.False(t, isErr, "batch store failed: %s", text)

	var result StoreMemoriesResult
	require.NoError(t, json.Unmarshal([]byte(text), &result))
	assert.Len(t, result.IDs, 2)
}

func TestToolErrorsAreIsErrorResults(t *testing.T) {
	srv := newTestServer(t)

	// Invalid category is a tool failure, not a JSON-RPC protocol error.
	text, isErr := callTool(t, srv, "store_memory", map[string]interface{}{
		"content":  "something",
		"category": "diary",
	})
	assert.True(t, isErr)
	assert.Contains(t, text, "category")

	// Missing query.
	_, isErr = callTool(t, srv, "search_memory", map[string]interface{}{})
	assert.True(t, isErr)

	// Unknown tool.
	text, isErr = callTool(t, srv, "summon_memory", map[string]interface{}{})
	assert.True(t, isErr)
	assert.Contains(t, text, "unknown tool")
}

func TestTagsAcceptedAsStringifiedArray(t *testing.T) {
	srv := newTestServer(t)

	// Some clients serialise array arguments as JSON strings.
	text, isErr := callTool(t, srv, "store_memory", map[string]interface{}{
		"content":  "tag tolerance",
		"category": "fact",
		"tags":     `["one","two"]`,
	})
	require.False(t, isErr, "store failed: %s", text)

	var stored struct {
		Tags []string `json:"tags"`
	}
	require.NoError(t, json.Unmarshal([]byte(text), &stored))
	assert.Equal(t, []string{"one", "two"}, stored.Tags)

	text, isErr = callTool(t, srv, "store_memory", map[string]interface{}{
		"content":  "comma tolerance",
		"category": "fact",
		"tags":     "alpha, beta",
	})
	require.False(t, isErr, "store failed: %s", text)
	require.NoError(t, json.Unmarshal([]byte(text), &stored))
	assert.Equal(t, []string{"alpha", "beta"}, stored.Tags)
}

func TestUpdateMemoryTool(t *testing.T) {
	srv := newTestServer(t)

	text, _ := callTool(t, srv, "store_memory", map[string]interface{}{
		"content":  "original content",
		"category": "fact",
	})
	var stored struct {
		ID        string `json:"id"`
		CreatedAt string `json:"created_at"`
	}
	require.NoError(t, json.Unmarshal([]byte(text), &stored))

	text, isErr := callTool(t, srv, "update_memory", map[string]interface{}{
		"id":       stored.ID,
		"content":  "revised content",
		"category": "decision",
	})
	require.False(t, isErr, "update failed: %s", text)

	var updated struct {
		Content   string `json:"content"`
		Category  string `json:"category"`
		CreatedAt string `json:"created_at"`
	}
	require.NoError(t, json.Unmarshal([]byte(text), &updated))
	assert.Equal(t, "revised content", updated.Content)
	assert.Equal(t, "decision", updated.Category)
	assert.Equal(t, stored.CreatedAt, updated.CreatedAt)
}

func TestProtocolErrors(t *testing.T) {
	srv := newTestServer(t)

	resp := call(t, srv, `{"jsonrpc":"1.0","id":1,"method":"tools/list"}`)
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeInvalidRequest, resp.Error.Code)

	resp = call(t, srv, `{"jsonrpc":"2.0","id":2,"method":"no_such_method"}`)
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeMethodNotFound, resp.Error.Code)

	raw, err := srv.HandleRequest(context.Background(), []byte(`{not json`))
	require.NoError(t, err)
	var parsed JSONRPCResponse
	require.NoError(t, json.Unmarshal(raw, &parsed))
	require.NotNil(t, parsed.Error)
	assert.Equal(t, ErrCodeParseError, parsed.Error.Code)
}

func TestDirectMethodDispatch(t *testing.T) {
	srv := newTestServer(t)

	resp := call(t, srv, `{"jsonrpc":"2.0","id":1,"method":"memory_stats","params":{}}`)
	require.Nil(t, resp.Error)

	data, _ := json.Marshal(resp.Result)
	assert.Contains(t, string(data), "total_memories")
}
