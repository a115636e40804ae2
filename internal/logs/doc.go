// Package logs reads the persistent podpublish log for the "logs" command.
//
// Tail prints the last lines of the file, optionally filtered to one run ID,
// and in follow mode keeps polling for appended lines until the context is
// cancelled. A file that shrinks is treated as rotated and read from the
// start.
package logs
