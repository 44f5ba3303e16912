// Command mcp-example-server runs a minimal MCP server over stdio,
// backed by the in-memory reference managers in the mcp package. It
// exists so the coordinator, dispatcher and streaming stdio transport
// are exercised end to end by a runnable program, the way the teacher's
// example/agent ships a demo agent with no real model behind it.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"time"

	mcp "github.com/Lab11HQ/conduit-mcp-sub001"
	"github.com/Lab11HQ/conduit-mcp-sub001/transport"
)

func main() {
	logLevel := flag.String("log-level", "info", "minimum log level: debug, info, warn, error")
	flag.Parse()

	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(*logLevel)); err != nil {
		fmt.Fprintf(os.Stderr, "invalid -log-level %q: %v\n", *logLevel, err)
		os.Exit(1)
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	managers := buildManagers()
	instructions := "Reference MCP server exposing a handful of illustrative tools, prompts and resources."
	session := mcp.NewServerSession(
		mcp.Implementation{Name: "mcp-example-server", Version: "0.1.0"},
		managers,
		&instructions,
		mcp.WithLogger(logger),
	)

	tr := transport.NewStdio(os.Stdout, os.Stdin, logger)
	if err := session.Serve(ctx, tr); err != nil {
		fmt.Fprintf(os.Stderr, "serve: %v\n", err)
		os.Exit(1)
	}

	select {
	case <-tr.Done():
	case <-ctx.Done():
	}
	session.Stop()
	_ = tr.Close()
}

func buildManagers() mcp.ServerManagers {
	tools := mcp.NewMemoryToolManager(callTool)
	tools.Register(mcp.Tool{
		Name:        "echo",
		Description: strPtr("Echoes back its input argument."),
		InputSchema: map[string]any{
			"type":       "object",
			"properties": map[string]any{"text": map[string]any{"type": "string"}},
			"required":   []string{"text"},
		},
	})
	tools.Register(mcp.Tool{
		Name:        "time",
		Description: strPtr("Reports the server's current time."),
		InputSchema: map[string]any{"type": "object"},
	})

	prompts := mcp.NewMemoryPromptManager(renderPrompt)
	prompts.Register(mcp.Prompt{
		Name:        "greeting",
		Description: strPtr("A friendly greeting for the named recipient."),
		Arguments:   []mcp.PromptArgument{{Name: "name", Required: true}},
	})

	resources := mcp.NewMemoryResourceManager()
	resources.Register(
		mcp.Resource{URI: "memory://readme", Name: "readme", MimeType: strPtr("text/plain")},
		mcp.ReadResourceContents{Text: &mcp.TextResourceContents{
			URI:      "memory://readme",
			MimeType: strPtr("text/plain"),
			Text:     "This is a reference MCP server used to exercise the session coordinator end to end.",
		}},
	)

	completions := mcp.NewMemoryCompletionManager()
	completions.Register(mcp.CompletionReference{Prompt: &mcp.PromptReference{Type: "ref/prompt", Name: "greeting"}}, "name", "Ada", "Alan", "Grace")

	return mcp.ServerManagers{
		Tools:       tools,
		Prompts:     prompts,
		Resources:   resources,
		Logging:     mcp.NewMemoryLoggingManager(),
		Completions: completions,
	}
}

func callTool(_ context.Context, clientID string, req *mcp.CallToolRequest) (*mcp.CallToolResult, *mcp.Error) {
	switch req.Name {
	case "echo":
		text, _ := req.Arguments["text"].(string)
		return &mcp.CallToolResult{Content: []mcp.ContentBlock{{Text: &mcp.TextContent{Type: "text", Text: text}}}}, nil
	case "time":
		return &mcp.CallToolResult{Content: []mcp.ContentBlock{{Text: &mcp.TextContent{
			Type: "text",
			Text: time.Now().UTC().Format(time.RFC3339),
		}}}}, nil
	default:
		return nil, mcp.NewMethodNotFound("tools/call:" + req.Name)
	}
}

func renderPrompt(name string, args map[string]string) ([]mcp.PromptMessage, *mcp.Error) {
	if name != "greeting" {
		return nil, mcp.NewMethodNotFound("prompts/get:" + name)
	}
	recipient := args["name"]
	if recipient == "" {
		recipient = "friend"
	}
	return []mcp.PromptMessage{{
		Role:    mcp.RoleUser,
		Content: mcp.ContentBlock{Text: &mcp.TextContent{Type: "text", Text: "Say hello to " + recipient + "."}},
	}}, nil
}

func strPtr(s string) *string { return &s }
