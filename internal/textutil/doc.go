// Package textutil provides text helpers shared by content generation, the
// publish workflow, and file handling.
//
// The primary use cases are:
//   - Normalizing LLM-produced titles (NFC, whitespace, wrapping quotes, rune limits)
//   - Parsing and formatting episode-number prefixes such as "EP123 - "
//   - Fingerprinting short titles so near-duplicate candidates can be dropped
//   - Sanitizing filenames and path segments for safe filesystem use
//
// Fingerprints are term-frequency vectors. Latin text is split into lowercase
// words, while CJK runs contribute overlapping character bigrams, so titles
// in either script compare meaningfully.
package textutil
