// Command mcp-example-client connects a ClientSession to an MCP server
// over stdio — by default spawning the sibling mcp-example-server
// binary via "go run", or any program named on the command line — and
// walks through initialize, tools/list, tools/call, prompts/get,
// resources/read and completion/complete, the way the teacher's
// example/client program exercises an agent end to end.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"runtime"
	"time"

	mcp "github.com/Lab11HQ/conduit-mcp-sub001"
	"github.com/Lab11HQ/conduit-mcp-sub001/transport"
)

const serverPeerID = "stdio"

func main() {
	timeout := flag.Duration("timeout", 10*time.Second, "per-request timeout")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	cmd, stdin, stdout, err := spawnServer(ctx, flag.Args())
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to start server: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		if cmd.Process != nil {
			_ = cmd.Process.Kill()
		}
	}()

	client := mcp.NewClientSession(
		mcp.Implementation{Name: "mcp-example-client", Version: "0.1.0"},
		mcp.ClientManagers{
			Roots:       mcp.NewMemoryRootsManager(mcp.Root{URI: "file://" + mustCwd()}),
			Sampling:    mcp.NewMemorySamplingManager(nil),
			Elicitation: mcp.NewMemoryElicitationManager(nil),
		},
		mcp.WithLogger(logger),
	)

	tr := transport.NewStdio(stdin, stdout, logger)
	initRes, ierr := client.Connect(ctx, serverPeerID, tr, *timeout)
	if ierr != nil {
		fatal("initialize", ierr)
	}
	fmt.Printf("connected to %s v%s (protocol %s)\n", initRes.ServerInfo.Name, initRes.ServerInfo.Version, initRes.ProtocolVersion)

	tools, terr := client.ListTools(ctx, serverPeerID, nil, *timeout)
	if terr != nil {
		fatal("tools/list", terr)
	}
	for _, t := range tools.Tools {
		fmt.Printf("tool: %s\n", t.Name)
	}

	if hasTool(tools, "echo") {
		res, cerr := client.CallTool(ctx, serverPeerID, &mcp.CallToolRequest{
			Name:      "echo",
			Arguments: map[string]any{"text": "hello from the example client"},
		}, *timeout)
		if cerr != nil {
			fatal("tools/call", cerr)
		}
		for _, c := range res.Content {
			if c.Text != nil {
				fmt.Printf("echo: %s\n", c.Text.Text)
			}
		}
	}

	if prompts, perr := client.ListPrompts(ctx, serverPeerID, nil, *timeout); perr == nil && len(prompts.Prompts) > 0 {
		got, gerr := client.GetPrompt(ctx, serverPeerID, &mcp.GetPromptRequest{
			Name:      prompts.Prompts[0].Name,
			Arguments: map[string]string{"name": "Ada"},
		}, *timeout)
		if gerr == nil {
			for _, msg := range got.Messages {
				if msg.Content.Text != nil {
					fmt.Printf("prompt: %s\n", msg.Content.Text.Text)
				}
			}
		}
	}

	if resources, rerr := client.ListResources(ctx, serverPeerID, nil, *timeout); rerr == nil && len(resources.Resources) > 0 {
		read, rrerr := client.ReadResource(ctx, serverPeerID, resources.Resources[0].URI, *timeout)
		if rrerr == nil {
			for _, c := range read.Contents {
				if c.Text != nil {
					fmt.Printf("resource %s: %s\n", c.Text.URI, c.Text.Text)
				}
			}
		}
	}

	completion, comperr := client.Complete(ctx, serverPeerID, &mcp.CompleteRequest{
		Ref:      mcp.CompletionReference{Prompt: &mcp.PromptReference{Type: "ref/prompt", Name: "greeting"}},
		Argument: mcp.CompletionArgument{Name: "name", Value: "A"},
	}, *timeout)
	if comperr == nil {
		fmt.Printf("completions: %v\n", completion.Completion.Values)
	}

	if err := client.Disconnect(serverPeerID); err != nil {
		fmt.Fprintf(os.Stderr, "disconnect: %v\n", err)
	}
}

// spawnServer starts the MCP server as a subprocess, either the program
// named in args or, by default, the sibling mcp-example-server package
// run via "go run", and returns its stdin/stdout pipes wired for the
// stdio transport.
func spawnServer(ctx context.Context, args []string) (cmd *exec.Cmd, stdin io.WriteCloser, stdout io.ReadCloser, err error) {
	if len(args) > 0 {
		cmd = exec.CommandContext(ctx, args[0], args[1:]...)
	} else {
		_, filename, _, ok := runtime.Caller(0)
		if !ok {
			return nil, nil, nil, fmt.Errorf("failed to determine current file location")
		}
		serverPath := filepath.Join(filepath.Dir(filename), "..", "mcp-example-server")
		cmd = exec.CommandContext(ctx, "go", "run", serverPath)
	}
	cmd.Stderr = os.Stderr
	stdin, err = cmd.StdinPipe()
	if err != nil {
		return nil, nil, nil, err
	}
	stdout, err = cmd.StdoutPipe()
	if err != nil {
		return nil, nil, nil, err
	}
	if err := cmd.Start(); err != nil {
		return nil, nil, nil, err
	}
	return cmd, stdin, stdout, nil
}

func hasTool(tools *mcp.ListToolsResult, name string) bool {
	for _, t := range tools.Tools {
		if t.Name == name {
			return true
		}
	}
	return false
}

func mustCwd() string {
	wd, err := os.Getwd()
	if err != nil {
		return "."
	}
	return wd
}

func fatal(op string, err *mcp.Error) {
	fmt.Fprintf(os.Stderr, "%s: %+v\n", op, err)
	os.Exit(1)
}
