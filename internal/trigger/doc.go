// Package trigger exposes the HTTP endpoints automation tools call to start
// publish runs: immediate runs, test runs and delayed runs that can be
// listed and cancelled before they fire.
package trigger
