// Package toolserver implements the lifecycle and line-delimited JSON-RPC
// 2.0 stdio transport for external tool-server child processes (spec
// §4.G). It is grounded on original_source/llama-agent/src/mcp.rs for the
// wire protocol (spawn-with-piped-stdio, initialize →
// notifications/initialized → tools/list sequencing, per-server
// serialization, graceful shutdown) and on the teacher's
// internal/infrastructure/tool/mcp_manager.go for the multi-server registry
// shape, adapted here from HTTP to stdio transport.
package toolserver

import "encoding/json"

const protocolVersion = "2024-11-05"

type rpcRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      uint64          `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      uint64          `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type initializeParams struct {
	ProtocolVersion string       `json:"protocolVersion"`
	Capabilities    capabilities `json:"capabilities"`
	ClientInfo      clientInfo   `json:"clientInfo"`
}

type capabilities struct {
	Tools struct{} `json:"tools"`
}

type clientInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

type toolsListResult struct {
	Tools []remoteToolDef `json:"tools"`
}

type remoteToolDef struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"inputSchema"`
}

type toolsCallParams struct {
	Name      string      `json:"name"`
	Arguments interface{} `json:"arguments"`
}
