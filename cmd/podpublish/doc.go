// Package main hosts the podpublish CLI entrypoint and command graph.
//
// The Cobra command tree resolves configuration and logging once, then hands
// off to the runner for publish runs, the scheduler for cron mode, the
// trigger server for webhook-driven runs, and the preflight checks behind
// "doctor". Keep this package lean: new behaviour belongs in internal
// packages and is surfaced here through a command or flag.
package main
