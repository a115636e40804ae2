// Package preflight provides readiness checks for the services, binaries
// and filesystem paths a publish run depends on.
//
// The "podpublish doctor" command runs RunAll and renders the results. Each
// check is gated by its config section: a disabled provider is skipped
// rather than reported as a failure.
package preflight
