// Package mcp implements a transport-agnostic engine for the Model Context
// Protocol (MCP): a JSON-RPC 2.0 framing between a host application and
// capability servers exposing tools, prompts, and resources. This
// implementation follows the official specification from
// https://spec.modelcontextprotocol.io/specification/.
//
// The package separates three concerns: a Transport abstraction for moving
// opaque JSON messages across a connection, an Endpoint that correlates
// requests with responses and manages cancellation, and a Session layer
// (ClientSession / ServerSession) that speaks the MCP method vocabulary on
// top of the endpoint.
package mcp
