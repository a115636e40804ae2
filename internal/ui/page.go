package ui

import "context"

// Page is the browser surface the executor and workflow drive. Selectors are
// resolved through SelectorSpec.Query; implementations act on the first match.
type Page interface {
	// Present reports whether sel currently matches an element. With visible set
	// the element must also be rendered and not hidden.
	Present(ctx context.Context, sel SelectorSpec, visible bool) (bool, error)
	Click(ctx context.Context, sel SelectorSpec) error
	Fill(ctx context.Context, sel SelectorSpec, value string) error
	AttachFile(ctx context.Context, sel SelectorSpec, path string) error
	Navigate(ctx context.Context, url string) error
	URL(ctx context.Context) (string, error)
	Text(ctx context.Context, sel SelectorSpec) (string, error)
	Screenshot(ctx context.Context, path string) error
}

// DiagnosticHook captures page state after a fatal step failure and returns
// the artifact path.
type DiagnosticHook interface {
	Capture(ctx context.Context, page Page, step string) (string, error)
}

// DiagnosticFunc adapts a function to DiagnosticHook.
type DiagnosticFunc func(ctx context.Context, page Page, step string) (string, error)

// Capture calls f.
func (f DiagnosticFunc) Capture(ctx context.Context, page Page, step string) (string, error) {
	return f(ctx, page, step)
}
