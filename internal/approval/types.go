package approval

import (
	"context"
	"log/slog"
	"time"

	"podpublish/internal/logging"
)

// Request describes one approval round.
type Request struct {
	Candidates       []string
	RecommendedIndex int
	Description      string
	Timeout          time.Duration
	EpisodeNumber    int
}

// Resolution is the outcome of a round. TimedOut is set whenever the
// recommended candidate was chosen without a human selection.
type Resolution struct {
	SelectedIndex int
	TimedOut      bool
}

// Link is the selection URL for one candidate.
type Link struct {
	Index int
	Title string
	URL   string
}

// Notice is what a Notifier delivers to the approver.
type Notice struct {
	Candidates       []string
	Description      string
	CallbackBaseURL  string
	Links            []Link
	Deadline         time.Time
	EpisodeNumber    int
	RecommendedIndex int
}

// Notifier delivers the selection links to a human.
type Notifier interface {
	SendApprovalRequest(ctx context.Context, notice Notice) error
}

// LogNotifier writes the selection links to the log. It is used when no mail
// provider is configured.
type LogNotifier struct {
	Logger *slog.Logger
}

// SendApprovalRequest logs one line per candidate link.
func (n LogNotifier) SendApprovalRequest(ctx context.Context, notice Notice) error {
	logger := logging.WithContext(ctx, logging.NewComponentLogger(n.Logger, "approval"))
	logger.Info("title approval links",
		logging.Int("episode_number", notice.EpisodeNumber),
		logging.Int("recommended_index", notice.RecommendedIndex),
		logging.String("deadline", notice.Deadline.Format(time.RFC3339)),
	)
	for _, link := range notice.Links {
		logger.Info("title candidate",
			logging.Int("index", link.Index),
			logging.String("title", link.Title),
			logging.String("link", link.URL),
		)
	}
	return nil
}
