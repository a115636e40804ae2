package runner

import (
	"context"
	"time"

	"podpublish/internal/approval"
	"podpublish/internal/publish"
)

// Approver is the part of approval.Rendezvous the runner needs.
type Approver interface {
	RequestApproval(ctx context.Context, req approval.Request) (approval.Resolution, error)
}

// ApprovalSelector asks a human to pick the title through an approval round.
type ApprovalSelector struct {
	Approver Approver
	Timeout  time.Duration
}

var _ publish.TitleSelector = ApprovalSelector{}

// ChooseTitle runs one approval round over the prefixed candidates. A round
// that ends without a human selection still yields the recommended index.
func (s ApprovalSelector) ChooseTitle(ctx context.Context, draft publish.EpisodeDraft) (int, error) {
	if s.Approver == nil {
		return draft.RecommendedIndex, nil
	}
	res, err := s.Approver.RequestApproval(ctx, approval.Request{
		Candidates:       draft.TitleCandidates,
		RecommendedIndex: draft.RecommendedIndex,
		Description:      draft.Description,
		Timeout:          s.Timeout,
		EpisodeNumber:    draft.EpisodeNumber,
	})
	return res.SelectedIndex, err
}
