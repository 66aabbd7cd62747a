// Package logging configures structured slog output for sayln.
//
// Logs are JSON lines written to a size-rotated file under ~/.sayln/logs/
// and, unless the process speaks a protocol on stdio, mirrored to stderr.
// The same files are read back by the `sayln logs` command.
package logging
