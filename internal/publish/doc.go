// Package publish drives the host dashboard through the episode publish
// sequence.
//
// The workflow is a linear state machine. Required steps (login, episode
// creation, audio upload, publish) stop the run on failure; optional steps
// (metadata, episode type, ad options, cover, publish confirmation) record a
// warning and let the run continue. Every UI interaction goes through a
// ui.Executor so selector fallback, retries, and diagnostics behave the same
// way everywhere.
package publish
