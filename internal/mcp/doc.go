// Package mcp exposes cross-repository search as MCP tools.
//
// This implementation uses the MCP SDK (github.com/modelcontextprotocol/go-sdk/mcp)
// and registers two tools:
//
//   - search_repos: search a pattern across many repositories
//   - search_commit: search one repository at a known commit
//
// Tool failures are returned as tool errors whose text starts with the
// failure kind, e.g. "network: searching acme/api: transport: ...".
package mcp
