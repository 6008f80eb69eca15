package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewServer(t *testing.T) {
	server := NewServer("test-server", "1.0.0")
	assert.NotNil(t, server)
	assert.Equal(t, "test-server", server.name)
	assert.Equal(t, "1.0.0", server.version)
}

func TestRegisterTool(t *testing.T) {
	server := NewServer("test-server", "1.0.0")

	tool := &Tool{
		Name:        "test_tool",
		Description: "A test tool",
		InputSchema: BuildInputSchema(
			map[string]interface{}{
				"param1": StringProperty("A string parameter"),
			},
			[]string{"param1"},
		),
		Handler: func(ctx context.Context, params map[string]interface{}) (*ToolResult, error) {
			return TextResult("success"), nil
		},
	}

	server.RegisterTool(tool)

	server.mu.RLock()
	defer server.mu.RUnlock()
	assert.Contains(t, server.tools, "test_tool")
}

func TestHandleInitialize(t *testing.T) {
	server := NewServer("test-server", "1.0.0")

	req := &Request{
		JSONRPC: "2.0",
		ID:      1,
		Method:  "initialize",
	}

	resp := server.handleRequest(context.Background(), req)
	require.NotNil(t, resp)

	assert.Equal(t, "2.0", resp.JSONRPC)
	assert.Equal(t, 1, resp.ID)
	assert.Nil(t, resp.Error)

	result, ok := resp.Result.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "2024-11-05", result["protocolVersion"])
}

func TestHandleToolsList(t *testing.T) {
	server := NewServer("test-server", "1.0.0")

	tool := &Tool{
		Name:        "test_tool",
		Description: "A test tool",
		InputSchema: BuildInputSchema(
			map[string]interface{}{
				"param1": StringProperty("A string parameter"),
			},
			[]string{"param1"},
		),
		Handler: func(ctx context.Context, params map[string]interface{}) (*ToolResult, error) {
			return TextResult("success"), nil
		},
	}
	server.RegisterTool(tool)

	req := &Request{
		JSONRPC: "2.0",
		ID:      2,
		Method:  "tools/list",
	}

	resp := server.handleRequest(context.Background(), req)
	require.NotNil(t, resp)
	assert.Nil(t, resp.Error)

	result, ok := resp.Result.(map[string]interface{})
	require.True(t, ok)

	tools, ok := result["tools"].([]map[string]interface{})
	require.True(t, ok)
	assert.Len(t, tools, 1)
	assert.Equal(t, "test_tool", tools[0]["name"])
}

func TestHandleToolsCall(t *testing.T) {
	server := NewServer("test-server", "1.0.0")

	tool := &Tool{
		Name:        "echo",
		Description: "Echo back the input",
		InputSchema: BuildInputSchema(
			map[string]interface{}{
				"message": StringProperty("Message to echo"),
			},
			[]string{"message"},
		),
		Handler: func(ctx context.Context, params map[string]interface{}) (*ToolResult, error) {
			msg, _ := GetStringParam(params, "message", true)
			return TextResult("Echo: " + msg), nil
		},
	}
	server.RegisterTool(tool)

	params, _ := json.Marshal(map[string]interface{}{
		"name":      "echo",
		"arguments": map[string]interface{}{"message": "hello"},
	})

	req := &Request{
		JSONRPC: "2.0",
		ID:      3,
		Method:  "tools/call",
		Params:  params,
	}

	resp := server.handleRequest(context.Background(), req)
	require.NotNil(t, resp)
	assert.Nil(t, resp.Error)

	result, ok := resp.Result.(*ToolResult)
	require.True(t, ok)
	assert.Equal(t, "Echo: hello", result.Content[0].Text)
	assert.False(t, result.IsError)
}

func TestHandleToolsCallHandlerError(t *testing.T) {
	server := NewServer("test-server", "1.0.0")

	server.RegisterTool(&Tool{
		Name:        "broken",
		Description: "Always fails",
		InputSchema: BuildInputSchema(map[string]interface{}{}, nil),
		Handler: func(ctx context.Context, params map[string]interface{}) (*ToolResult, error) {
			return nil, errors.New("boom")
		},
	})

	params, _ := json.Marshal(map[string]interface{}{
		"name":      "broken",
		"arguments": map[string]interface{}{},
	})

	resp := server.handleRequest(context.Background(), &Request{
		JSONRPC: "2.0",
		ID:      4,
		Method:  "tools/call",
		Params:  params,
	})
	require.NotNil(t, resp)
	assert.Nil(t, resp.Error)

	result, ok := resp.Result.(*ToolResult)
	require.True(t, ok)
	assert.True(t, result.IsError)
	assert.Equal(t, "boom", result.Content[0].Text)
}

func TestHandleUnknownMethod(t *testing.T) {
	server := NewServer("test-server", "1.0.0")

	resp := server.handleRequest(context.Background(), &Request{
		JSONRPC: "2.0",
		ID:      5,
		Method:  "bogus/method",
	})
	require.NotNil(t, resp)
	require.NotNil(t, resp.Error)
	assert.Equal(t, -32601, resp.Error.Code)
}

func TestHandleNotificationHasNoResponse(t *testing.T) {
	server := NewServer("test-server", "1.0.0")

	resp := server.handleRequest(context.Background(), &Request{
		JSONRPC: "2.0",
		Method:  "notifications/initialized",
	})
	assert.Nil(t, resp)
}

func TestRunStdio(t *testing.T) {
	var output bytes.Buffer
	server := NewServer("test-server", "1.0.0")

	input := `{"jsonrpc":"2.0","id":1,"method":"initialize"}` + "\n" +
		`not json` + "\n" +
		`{"jsonrpc":"2.0","id":2,"method":"tools/list"}` + "\n"
	server.SetIO(strings.NewReader(input), &output)

	err := server.Run(context.Background())
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(output.String()), "\n")
	require.Len(t, lines, 3)

	var first Response
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &first))
	assert.Equal(t, float64(1), first.ID)
	assert.Nil(t, first.Error)

	var second Response
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &second))
	require.NotNil(t, second.Error)
	assert.Equal(t, -32700, second.Error.Code)

	var third Response
	require.NoError(t, json.Unmarshal([]byte(lines[2]), &third))
	assert.Equal(t, float64(2), third.ID)
	assert.Nil(t, third.Error)
}

func TestHandleHTTP(t *testing.T) {
	server := NewServer("test-server", "1.0.0")
	ts := httptest.NewServer(http.HandlerFunc(server.handleHTTP))
	defer ts.Close()

	body := strings.NewReader(`{"jsonrpc":"2.0","id":7,"method":"initialize"}`)
	resp, err := http.Post(ts.URL, "application/json", body)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var rpcResp Response
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&rpcResp))
	assert.Equal(t, float64(7), rpcResp.ID)
	assert.Nil(t, rpcResp.Error)

	getResp, err := http.Get(ts.URL)
	require.NoError(t, err)
	getResp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, getResp.StatusCode)
}

func TestTextResult(t *testing.T) {
	result := TextResult("test message")
	assert.Len(t, result.Content, 1)
	assert.Equal(t, "text", result.Content[0].Type)
	assert.Equal(t, "test message", result.Content[0].Text)
	assert.False(t, result.IsError)
}

func TestJSONResult(t *testing.T) {
	data := map[string]interface{}{
		"key": "value",
		"num": 42,
	}

	result, err := JSONResult(data)
	require.NoError(t, err)
	assert.Len(t, result.Content, 1)
	assert.Contains(t, result.Content[0].Text, "key")
	assert.Contains(t, result.Content[0].Text, "value")
}

func TestErrorResult(t *testing.T) {
	result := ErrorResult(assert.AnError)
	assert.True(t, result.IsError)
	assert.Len(t, result.Content, 1)
}

func TestBuildInputSchema(t *testing.T) {
	schema := BuildInputSchema(
		map[string]interface{}{
			"name": StringProperty("User name"),
			"age":  IntProperty("User age"),
		},
		[]string{"name"},
	)

	assert.Equal(t, "object", schema["type"])
	assert.Contains(t, schema["required"], "name")

	props, ok := schema["properties"].(map[string]interface{})
	require.True(t, ok)
	assert.Contains(t, props, "name")
	assert.Contains(t, props, "age")
}
