// Package dojo assembles the pattern store, relationship graph, privilege
// gate and training arena into one System backed by SQLite.
//
// Open builds every component from a config.Config and restores persisted
// state before returning. The System methods are the ingestion, query and
// control boundary shared by the CLI and the MCP tools: each takes the
// caller's privilege level and consults the gate before acting.
package dojo
