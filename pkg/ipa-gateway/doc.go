// Package ipagateway serves the FreeIPA tools to MCP clients. One mcp.Server
// is shared by a Streamable HTTP endpoint and a legacy SSE endpoint, and the
// same mux answers /health and /connection-status so orchestrators can watch
// the process and the FreeIPA session without speaking MCP.
package ipagateway
