// Package notifications delivers run outcomes via ntfy.
//
// NewService publishes to the topic configured in config.toml and degrades
// to a no-op when no topic is set. Events cover run outcomes and the
// approval request; progress events are accepted but suppressed so callers
// can publish unconditionally.
package notifications
