package publish

import (
	"errors"
	"strings"
	"time"
)

// EpisodeDraft carries everything the workflow needs to create one episode.
type EpisodeDraft struct {
	RecordID         string
	TitleCandidates  []string
	RecommendedIndex int
	SelectedTitle    string
	Description      string
	AudioFilePath    string
	CoverFilePath    string
	EpisodeNumber    int
}

// Metadata is what status sinks record about a finished run.
type Metadata struct {
	RunID          string
	Title          string
	EpisodeNumber  int
	Warning        string
	DiagnosticPath string
	// Draft marks a run that saved a draft instead of publishing.
	Draft       bool
	CompletedAt time.Time
}

// MetadataFromResult summarizes a workflow result.
func MetadataFromResult(runID string, res Result, at time.Time) Metadata {
	return Metadata{
		RunID:          runID,
		Title:          res.Title,
		EpisodeNumber:  res.EpisodeNumber,
		Warning:        res.Warning,
		DiagnosticPath: res.DiagnosticPath,
		Draft:          res.Draft,
		CompletedAt:    at,
	}
}

var errTitleAlreadySelected = errors.New("title already selected")

// Recommended returns the recommended candidate, clamping an out-of-range
// index to the first candidate.
func (d *EpisodeDraft) Recommended() string {
	if d == nil || len(d.TitleCandidates) == 0 {
		return ""
	}
	idx := d.RecommendedIndex
	if idx < 0 || idx >= len(d.TitleCandidates) {
		idx = 0
	}
	return d.TitleCandidates[idx]
}

// SelectTitle records the chosen candidate. It succeeds once per draft.
func (d *EpisodeDraft) SelectTitle(index int) error {
	if d.SelectedTitle != "" {
		return errTitleAlreadySelected
	}
	if index < 0 || index >= len(d.TitleCandidates) {
		return errors.New("title index out of range")
	}
	title := strings.TrimSpace(d.TitleCandidates[index])
	if title == "" {
		return errors.New("selected title is empty")
	}
	d.SelectedTitle = title
	return nil
}
