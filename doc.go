// Package mcp implements the session-coordination layer of the Model
// Context Protocol: a bidirectional JSON-RPC 2.0 protocol between an LLM
// host (client) and one or more servers exposing tools, prompts,
// resources, roots, sampling and elicitation capabilities.
//
// The package owns the parts of MCP that are peer-agnostic: parsing and
// framing JSON-RPC envelopes, correlating requests to responses, tracking
// per-peer state, and dispatching to feature managers. Transports (stdio,
// streamable HTTP) live in the transport subpackage; OAuth 2.1 client
// support lives in the oauth subpackage.
package mcp
