// Package browser owns the Chrome session used to drive the podcast host.
//
// Manager.Open takes an exclusive lock on the persistent profile directory,
// starts Chrome through chromedp with that profile, and dismisses the
// "restore pages" prompt when it appears. Session implements ui.Page so the
// publish workflow never touches chromedp directly. Manager.Close is safe on
// nil and half-built sessions and must be called on every exit path.
package browser
