package mcp_test

import (
	"context"
	"encoding/json"
	"iter"
	"testing"
	"time"

	"github.com/haldor-dev/go-mcp"
)

func newInitializedSessionPair(t *testing.T, opts ...mcp.ServerSessionOption) (*mcp.ClientSession, *mcp.ServerSession) {
	t.Helper()
	a, b := mcp.NewLoopbackPair()

	server := mcp.NewServerSession(mcp.Implementation{Name: "test-server", Version: "1.0"}, b, opts...)
	client := mcp.NewClientSession(mcp.Implementation{Name: "test-client", Version: "1.0"}, a)

	ctx := context.Background()
	if err := server.Start(ctx); err != nil {
		t.Fatalf("server.Start() error = %v", err)
	}
	if err := client.Start(ctx); err != nil {
		t.Fatalf("client.Start() error = %v", err)
	}
	if err := client.Initialize(ctx); err != nil {
		t.Fatalf("client.Initialize() error = %v", err)
	}
	return client, server
}

func TestSession_InitializeNegotiatesCapabilities(t *testing.T) {
	a, b := mcp.NewLoopbackPair()
	server := mcp.NewServerSession(mcp.Implementation{Name: "test-server", Version: "1.0"}, b,
		mcp.WithInstructions("hello"), mcp.WithToolsListChanged())
	server.RegisterTool(mcp.Tool{Name: "noop"}, func(_ context.Context, _ json.RawMessage) (mcp.CallToolResult, error) {
		return mcp.CallToolResult{}, nil
	})
	client := mcp.NewClientSession(mcp.Implementation{Name: "test-client", Version: "1.0"}, a)

	ctx := context.Background()
	if err := server.Start(ctx); err != nil {
		t.Fatalf("server.Start() error = %v", err)
	}
	if err := client.Start(ctx); err != nil {
		t.Fatalf("client.Start() error = %v", err)
	}
	if err := client.Initialize(ctx); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
	defer client.Close()
	defer server.Close()

	if client.ServerInfo().Name != "test-server" {
		t.Errorf("ServerInfo().Name = %q, want test-server", client.ServerInfo().Name)
	}
	caps := client.ServerCapabilities()
	if caps.Tools == nil || !caps.Tools.ListChanged {
		t.Errorf("ServerCapabilities().Tools = %+v, want non-nil with ListChanged", caps.Tools)
	}
	if caps.Prompts != nil {
		t.Errorf("ServerCapabilities().Prompts = %+v, want nil (no prompts registered)", caps.Prompts)
	}
}

func TestSession_ToolsListAndCall(t *testing.T) {
	client, server := newInitializedSessionPair(t)
	defer client.Close()
	defer server.Close()

	server.RegisterTool(mcp.Tool{Name: "echo", Description: "echoes"}, func(_ context.Context, arguments json.RawMessage) (mcp.CallToolResult, error) {
		var args struct {
			Message string `json:"message"`
		}
		if err := json.Unmarshal(arguments, &args); err != nil {
			return mcp.CallToolResult{}, &mcp.ToolFailure{Reason: "bad args"}
		}
		return mcp.CallToolResult{Content: []mcp.ContentBlock{mcp.TextContent(args.Message)}}, nil
	})

	ctx := context.Background()
	tools, err := client.ListTools(ctx)
	if err != nil {
		t.Fatalf("ListTools() error = %v", err)
	}
	if len(tools) != 1 || tools[0].Name != "echo" {
		t.Fatalf("ListTools() = %+v, want one tool named echo", tools)
	}

	args, _ := json.Marshal(map[string]string{"message": "hi"})
	result, err := client.CallTool(ctx, "echo", args)
	if err != nil {
		t.Fatalf("CallTool() error = %v", err)
	}
	if result.IsError {
		t.Fatalf("CallTool() IsError = true, content = %+v", result.Content)
	}
	if len(result.Content) != 1 || result.Content[0].Text != "hi" {
		t.Errorf("CallTool() content = %+v, want [hi]", result.Content)
	}
}

func TestSession_ToolFailureBecomesIsErrorResult(t *testing.T) {
	client, server := newInitializedSessionPair(t)
	defer client.Close()
	defer server.Close()

	server.RegisterTool(mcp.Tool{Name: "fail"}, func(_ context.Context, _ json.RawMessage) (mcp.CallToolResult, error) {
		return mcp.CallToolResult{}, &mcp.ToolFailure{Reason: "nope"}
	})

	result, err := client.CallTool(context.Background(), "fail", nil)
	if err != nil {
		t.Fatalf("CallTool() error = %v, want a successful IsError result", err)
	}
	if !result.IsError {
		t.Error("CallTool() IsError = false, want true")
	}
	if len(result.Content) != 1 || result.Content[0].Text != "nope" {
		t.Errorf("CallTool() content = %+v, want [nope]", result.Content)
	}
}

func TestSession_UnknownToolIsMethodNotFound(t *testing.T) {
	client, server := newInitializedSessionPair(t)
	defer client.Close()
	defer server.Close()

	_, err := client.CallTool(context.Background(), "missing", nil)
	rpcErr := mcp.AsRPCError(err)
	if rpcErr.Code != mcp.CodeMethodNotFound {
		t.Errorf("CallTool() error code = %d, want %d", rpcErr.Code, mcp.CodeMethodNotFound)
	}
}

func TestSession_CallToolMissingNameIsInvalidParams(t *testing.T) {
	// CallTool always supplies a name, so this boundary case (params
	// present but missing the required "name" field, as opposed to a
	// name that just isn't registered) is exercised below the
	// ClientSession wrapper, over the raw transport.
	raw, b := mcp.NewLoopbackPair()
	server := mcp.NewServerSession(mcp.Implementation{Name: "test-server", Version: "1.0"}, b)

	ctx := context.Background()
	if err := server.Start(ctx); err != nil {
		t.Fatalf("server.Start() error = %v", err)
	}
	defer server.Close()

	responses := make(chan json.RawMessage, 2)
	raw.OnMessage(func(msg json.RawMessage) { responses <- msg })
	if err := raw.Start(ctx); err != nil {
		t.Fatalf("raw.Start() error = %v", err)
	}

	initReq, _ := mcp.MakeRequest(mcp.NewID("0"), mcp.MethodInitialize, map[string]any{
		"protocolVersion": "2024-11-05",
	})
	if err := raw.Send(ctx, initReq); err != nil {
		t.Fatalf("Send(initialize) error = %v", err)
	}
	if err := waitForResponse(t, responses); err != nil {
		t.Fatalf("initialize failed: %v", err)
	}

	req, _ := mcp.MakeRequest(mcp.NewID("1"), mcp.MethodToolsCall, map[string]any{})
	if err := raw.Send(ctx, req); err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	err := waitForResponse(t, responses)
	rpcErr := mcp.AsRPCError(err)
	if rpcErr == nil || rpcErr.Code != mcp.CodeInvalidParams {
		t.Errorf("tools/call with no name: error = %v, want code %d", err, mcp.CodeInvalidParams)
	}
}

// waitForResponse reads the next raw response off ch and returns its
// RPCError, or nil if the response carried a result instead.
func waitForResponse(t *testing.T, ch <-chan json.RawMessage) error {
	t.Helper()
	select {
	case got := <-ch:
		var m mcp.Message
		if err := json.Unmarshal(got, &m); err != nil {
			t.Fatalf("Unmarshal() error = %v", err)
		}
		if m.Error != nil {
			return m.Error
		}
		return nil
	case <-time.After(time.Second):
		t.Fatal("response not received in time")
		return nil
	}
}

func TestSession_StreamingToolAggregatesChunks(t *testing.T) {
	client, server := newInitializedSessionPair(t)
	defer client.Close()
	defer server.Close()

	server.RegisterStreamingTool(mcp.Tool{Name: "countdown"}, func(_ context.Context, arguments json.RawMessage) iter.Seq[mcp.ContentBlock] {
		var args struct{ From int }
		_ = json.Unmarshal(arguments, &args)
		return func(yield func(mcp.ContentBlock) bool) {
			for n := args.From; n >= 0; n-- {
				if !yield(mcp.TextContent(itoa(n))) {
					return
				}
			}
		}
	}, false)

	args, _ := json.Marshal(map[string]int{"From": 2})
	result, err := client.CallTool(context.Background(), "countdown", args)
	if err != nil {
		t.Fatalf("CallTool() error = %v", err)
	}
	want := []string{"2", "1", "0"}
	if len(result.Content) != len(want) {
		t.Fatalf("CallTool() content len = %d, want %d", len(result.Content), len(want))
	}
	for i, block := range result.Content {
		if block.Text != want[i] {
			t.Errorf("content[%d] = %q, want %q", i, block.Text, want[i])
		}
	}
}

func itoa(n int) string {
	b, _ := json.Marshal(n)
	return string(b)
}

func TestSession_PromptsListAndGet(t *testing.T) {
	client, server := newInitializedSessionPair(t)
	defer client.Close()
	defer server.Close()

	server.RegisterPrompt(mcp.Prompt{Name: "greet"}, func(_ context.Context, arguments map[string]string) (mcp.GetPromptResult, error) {
		return mcp.GetPromptResult{
			Messages: []mcp.PromptMessage{
				{Role: mcp.RoleUser, Content: []mcp.ContentBlock{mcp.TextContent("hi " + arguments["name"])}},
			},
		}, nil
	})

	ctx := context.Background()
	prompts, err := client.ListPrompts(ctx)
	if err != nil {
		t.Fatalf("ListPrompts() error = %v", err)
	}
	if len(prompts) != 1 || prompts[0].Name != "greet" {
		t.Fatalf("ListPrompts() = %+v", prompts)
	}

	result, err := client.GetPrompt(ctx, "greet", map[string]string{"name": "bob"})
	if err != nil {
		t.Fatalf("GetPrompt() error = %v", err)
	}
	if len(result.Messages) != 1 || result.Messages[0].Content[0].Text != "hi bob" {
		t.Errorf("GetPrompt() = %+v", result)
	}
}

func TestSession_ResourcesListAndRead(t *testing.T) {
	client, server := newInitializedSessionPair(t)
	defer client.Close()
	defer server.Close()

	server.RegisterResource(mcp.Resource{URI: "memory://note", Name: "note"}, func(_ context.Context, uri string) (mcp.ReadResourceResult, error) {
		return mcp.ReadResourceResult{Contents: []mcp.ResourceContent{{URI: uri, Text: "hello"}}}, nil
	})

	ctx := context.Background()
	resources, err := client.ListResources(ctx)
	if err != nil {
		t.Fatalf("ListResources() error = %v", err)
	}
	if len(resources) != 1 || resources[0].URI != "memory://note" {
		t.Fatalf("ListResources() = %+v", resources)
	}

	contents, err := client.ReadResource(ctx, "memory://note")
	if err != nil {
		t.Fatalf("ReadResource() error = %v", err)
	}
	if len(contents) != 1 || contents[0].Text != "hello" {
		t.Errorf("ReadResource() = %+v", contents)
	}
}

func TestSession_CallToolsParallel(t *testing.T) {
	client, server := newInitializedSessionPair(t)
	defer client.Close()
	defer server.Close()

	server.RegisterTool(mcp.Tool{Name: "double"}, func(_ context.Context, arguments json.RawMessage) (mcp.CallToolResult, error) {
		var args struct{ N int }
		_ = json.Unmarshal(arguments, &args)
		return mcp.CallToolResult{Content: []mcp.ContentBlock{mcp.TextContent(itoa(args.N * 2))}}, nil
	})

	calls := make([]mcp.ToolCall, 3)
	for i := range calls {
		args, _ := json.Marshal(map[string]int{"N": i})
		calls[i] = mcp.ToolCall{Name: "double", Arguments: args}
	}

	outcomes, err := client.CallToolsParallel(context.Background(), calls, false)
	if err != nil {
		t.Fatalf("CallToolsParallel() error = %v", err)
	}
	if len(outcomes) != 3 {
		t.Fatalf("CallToolsParallel() len = %d, want 3", len(outcomes))
	}
	for i, o := range outcomes {
		if o.Err != nil {
			t.Errorf("outcome[%d].Err = %v", i, o.Err)
			continue
		}
		want := itoa(i * 2)
		if o.Result.Content[0].Text != want {
			t.Errorf("outcome[%d].Result = %+v, want %q", i, o.Result, want)
		}
	}
}

func TestSession_CallBeforeInitializeFails(t *testing.T) {
	a, _ := mcp.NewLoopbackPair()
	client := mcp.NewClientSession(mcp.Implementation{Name: "c", Version: "1"}, a)
	if err := client.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer client.Close()

	if _, err := client.ListTools(context.Background()); err != mcp.ErrNotInitialized {
		t.Errorf("ListTools() error = %v, want ErrNotInitialized", err)
	}
}
