// Package ui drives single steps against a web page through an ordered list
// of selector candidates.
//
// A Step names what to act on (Candidates), what to do (Action), how long to
// keep looking (Timeout), and whether a miss should stop the caller
// (Required). Executor.Perform polls the candidates in order until one is
// visible, applies the action under a RetryPolicy, waits a settle interval,
// and returns a StepResult. Required misses invoke the DiagnosticHook once so
// the page state can be inspected afterwards.
//
// Selectors are a tagged union (SelectorSpec) compiled by a single resolver
// into either a CSS query or an XPath. The default SoundOn catalog ships
// embedded in selectors.yaml and can be overridden per key from a file.
package ui
