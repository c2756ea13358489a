// Package logging provides file-based structured logging with rotation
// for kdex. Logs are JSON lines written under <config>/kdex/logs/ so that
// MCP mode never touches stdout or stderr; CLI commands opt into stderr
// echo with --debug.
package logging
