package history

import (
	"strings"
	"time"
)

// Status is the lifecycle state of a run row.
type Status string

const (
	StatusRunning     Status = "running"
	StatusPublished   Status = "published"
	StatusWarning     Status = "published_with_warning"
	StatusDraft       Status = "draft"
	StatusFailed      Status = "failed"
	StatusNeedsReview Status = "needs_review"
	StatusSkipped     Status = "skipped"
)

var allStatuses = []Status{
	StatusRunning,
	StatusPublished,
	StatusWarning,
	StatusDraft,
	StatusFailed,
	StatusNeedsReview,
	StatusSkipped,
}

var statusSet = func() map[Status]struct{} {
	set := make(map[Status]struct{}, len(allStatuses))
	for _, status := range allStatuses {
		set[status] = struct{}{}
	}
	return set
}()

// ParseStatus converts a string into a Status.
func ParseStatus(value string) (Status, bool) {
	normalized := Status(strings.ToLower(strings.TrimSpace(value)))
	_, ok := statusSet[normalized]
	return normalized, ok
}

// AllStatuses returns every status in display order.
func AllStatuses() []Status {
	out := make([]Status, len(allStatuses))
	copy(out, allStatuses)
	return out
}

// IsPublished reports whether the run put the episode live.
func (s Status) IsPublished() bool {
	return s == StatusPublished || s == StatusWarning
}

// Run is one pipeline execution.
type Run struct {
	ID             string
	RecordID       string
	Mode           string
	Status         Status
	Title          string
	EpisodeNumber  int
	Warning        string
	ErrorMessage   string
	DiagnosticPath string
	StartedAt      time.Time
	FinishedAt     time.Time
}

// Duration returns the run's wall time, or zero while it is running.
func (r Run) Duration() time.Duration {
	if r.FinishedAt.IsZero() || r.StartedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// Step is one recorded workflow step.
type Step struct {
	Seq            int
	Name           string
	Succeeded      bool
	Fatal          bool
	Matched        string
	Attempted      []string
	ErrorMessage   string
	DiagnosticPath string
}
