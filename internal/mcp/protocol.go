package mcp

import "encoding/json"

// InitializeParams contains parameters for the initialize method. The
// server does not reject an initialize call over a mismatched
// protocolVersion or capabilities; it exists for MCP clients that expect
// the field, not as the result of local validation.
type InitializeParams struct {
	ProtocolVersion string             `json:"protocolVersion"`
	ClientInfo      ClientInfo         `json:"clientInfo"`
	Capabilities    ClientCapabilities `json:"capabilities,omitempty"`
}

// ClientInfo contains metadata about the MCP client.
type ClientInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// ClientCapabilities describes what the client supports. The server
// never inspects these fields; they round-trip for completeness only.
type ClientCapabilities struct {
	Roots    *RootsCapability    `json:"roots,omitempty"`
	Sampling *SamplingCapability `json:"sampling,omitempty"`
}

// RootsCapability indicates workspace-roots support.
type RootsCapability struct {
	ListChanged bool `json:"listChanged,omitempty"`
}

// SamplingCapability indicates sampling support.
type SamplingCapability struct{}

// InitializeResult is the result of the initialize method (§4.6).
type InitializeResult struct {
	ProtocolVersion string             `json:"protocolVersion"`
	ServerInfo      ServerInfoResponse `json:"serverInfo"`
	Capabilities    Capabilities       `json:"capabilities"`
	Instructions    string             `json:"instructions"`
}

// ServerInfoResponse contains metadata about the MCP server.
type ServerInfoResponse struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// Capabilities describes what this MCP server supports.
type Capabilities struct {
	Tools     *ToolsCapability     `json:"tools,omitempty"`
	Resources *ResourcesCapability `json:"resources,omitempty"`
	Prompts   *PromptsCapability   `json:"prompts,omitempty"`
}

// ToolsCapability indicates tools support. ListChanged is advertised as
// true even though this implementation never emits the corresponding
// notification — see DESIGN.md's open-question resolution.
type ToolsCapability struct {
	ListChanged bool `json:"listChanged,omitempty"`
}

// ResourcesCapability indicates resources support.
type ResourcesCapability struct {
	Subscribe   bool `json:"subscribe,omitempty"`
	ListChanged bool `json:"listChanged,omitempty"`
}

// PromptsCapability indicates prompts support.
type PromptsCapability struct {
	ListChanged bool `json:"listChanged,omitempty"`
}

// ToolsCallParams contains parameters for the tools/call method.
type ToolsCallParams struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}
