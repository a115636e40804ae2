// Package services defines shared utilities consumed by the publish workflow
// and its external integrations.
//
// Key responsibilities:
//   - Context helpers that stamp run IDs, step names, and tracking-store record
//     IDs for logging and tracing.
//   - Structured error markers plus the Wrap helper that translate failures
//     into consistent run outcomes (failed vs needs review).
//
// Use these helpers when wiring new adapters so operational behaviour (error
// handling, observability) stays uniform across a run.
package services
