// Package runner assembles one publish run out of the collaborators and
// drives it to a recorded outcome.
//
// RunOnce pulls the newest tracking record, generates titles (falling back
// to deterministic ones), fetches the audio and cover, opens a browser
// session, and runs the publish workflow. The session is closed and the
// downloaded files are removed on every path. Status sinks and the ntfy
// notifier learn the outcome last; their failures are logged and never
// change it.
//
// Scheduler, Cleanup, and the trigger server in internal/trigger build on
// RunOnce for the scheduled, cleanup, and webhook modes.
package runner
