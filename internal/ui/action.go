package ui

import (
	"context"
	"fmt"
)

// ActionKind discriminates Action variants.
type ActionKind string

const (
	ActionClick          ActionKind = "click"
	ActionFill           ActionKind = "fill"
	ActionAttachFile     ActionKind = "attachFile"
	ActionWaitForVisible ActionKind = "waitForVisible"
)

// Action is what a step does once a candidate matches.
type Action struct {
	Kind  ActionKind
	Value string
	Path  string
}

// Click clicks the matched element.
func Click() Action { return Action{Kind: ActionClick} }

// Fill replaces the matched element's value.
func Fill(value string) Action { return Action{Kind: ActionFill, Value: value} }

// AttachFile sets path on the matched file input.
func AttachFile(path string) Action { return Action{Kind: ActionAttachFile, Path: path} }

// WaitForVisible succeeds as soon as a candidate is visible.
func WaitForVisible() Action { return Action{Kind: ActionWaitForVisible} }

// needsVisibility reports whether candidates must be visible rather than
// merely present. Hidden file inputs are the norm in upload widgets.
func (a Action) needsVisibility() bool {
	return a.Kind != ActionAttachFile
}

func (a Action) apply(ctx context.Context, page Page, sel SelectorSpec) error {
	switch a.Kind {
	case ActionClick:
		return page.Click(ctx, sel)
	case ActionFill:
		return page.Fill(ctx, sel, a.Value)
	case ActionAttachFile:
		return page.AttachFile(ctx, sel, a.Path)
	case ActionWaitForVisible:
		return nil
	default:
		return fmt.Errorf("unknown action %q", a.Kind)
	}
}
