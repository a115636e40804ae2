// Package approval runs the human title-selection checkpoint.
//
// A Rendezvous starts a short-lived HTTP listener, sends one notification
// carrying a selection link per candidate, and waits for whichever comes
// first: a click on one of those links, the request deadline, or context
// cancellation. When nobody answers in time the recommended candidate wins.
package approval
