package approval

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"podpublish/internal/config"
	"podpublish/internal/logging"
	"podpublish/internal/services"
)

const shutdownTimeout = 2 * time.Second

// Options configures the selection listener.
type Options struct {
	BindHost       string
	Port           int
	PortScanLimit  int
	// PublicURL replaces http://localhost:<port> in selection links.
	PublicURL string
}

// OptionsFromConfig maps the approval config section.
func OptionsFromConfig(cfg *config.Config) Options {
	if cfg == nil {
		return Options{}
	}
	return Options{
		BindHost:       cfg.Approval.BindHost,
		Port:           cfg.Approval.Port,
		PortScanLimit:  cfg.Approval.PortScanLimit,
		PublicURL:      cfg.Approval.PublicURL,
	}
}

// Rendezvous runs approval rounds. Rounds must not overlap.
type Rendezvous struct {
	opts     Options
	notifier Notifier
	logger   *slog.Logger

	after  func(time.Duration) <-chan time.Time
	listen func(network, address string) (net.Listener, error)
	now    func() time.Time
}

// New constructs a Rendezvous. A nil notifier logs the links instead.
func New(opts Options, notifier Notifier, logger *slog.Logger) *Rendezvous {
	if notifier == nil {
		notifier = LogNotifier{Logger: logger}
	}
	if opts.PortScanLimit <= 0 {
		opts.PortScanLimit = 1
	}
	return &Rendezvous{
		opts:     opts,
		notifier: notifier,
		logger:   logging.NewComponentLogger(logger, "approval"),
		after:    time.After,
		listen:   net.Listen,
		now:      time.Now,
	}
}

// round is the state of one approval request. resolved guards the single
// resolution: whichever of a selection, the deadline, or cancellation claims
// it first wins, and everything after is ignored.
type round struct {
	mu         sync.Mutex
	resolved   bool
	selections chan int
	candidates []string
	port       int
}

func newRound(candidates []string) *round {
	return &round{selections: make(chan int, 1), candidates: candidates}
}

// choose records a human selection. It reports false when the round was
// already resolved.
func (r *round) choose(index int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.resolved {
		return false
	}
	r.resolved = true
	r.selections <- index
	return true
}

// expire resolves the round without a selection. It reports false when a
// selection got there first.
func (r *round) expire() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.resolved {
		return false
	}
	r.resolved = true
	return true
}

func (r *round) isResolved() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.resolved
}

// RequestApproval asks a human to pick one of req.Candidates and waits until
// req.Timeout. The listener is always stopped before it returns.
func (r *Rendezvous) RequestApproval(ctx context.Context, req Request) (Resolution, error) {
	logger := logging.WithContext(ctx, r.logger)
	fallback := Resolution{SelectedIndex: req.RecommendedIndex, TimedOut: true}
	if req.Timeout <= 0 {
		logger.Info("approval skipped", logging.Args(logging.DecisionAttrs("title_approval", "recommended", "timeout disabled")...)...)
		return fallback, nil
	}
	if len(req.Candidates) == 0 {
		return fallback, services.Wrap(services.ErrValidation, "approval", "request", "no title candidates", nil)
	}
	if req.RecommendedIndex < 0 || req.RecommendedIndex >= len(req.Candidates) {
		fallback.SelectedIndex = 0
	}

	rd := newRound(req.Candidates)
	listener, err := r.bind()
	if err != nil {
		logging.WarnWithContext(logger, "approval listener unavailable", "approval_listener_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "free approval.port or raise approval.port_scan_limit"),
			logging.String(logging.FieldImpact, "recommended title used without approval"),
		)
		return fallback, nil
	}
	if addr, ok := listener.Addr().(*net.TCPAddr); ok {
		rd.port = addr.Port
	}

	server := &http.Server{
		Handler:           r.routes(rd),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
	}
	serveDone := make(chan struct{})
	go func() {
		defer close(serveDone)
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("approval listener error", logging.Error(err))
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			_ = server.Close()
		}
		<-serveDone
		logger.Debug("approval listener stopped", logging.Int("port", rd.port))
	}()

	deadline := r.now().Add(req.Timeout)
	notice := r.buildNotice(req, rd.port, deadline)
	logger.Info("waiting for title approval",
		logging.Int("port", rd.port),
		logging.Duration("timeout", req.Timeout),
		logging.Int("episode_number", req.EpisodeNumber),
	)

	notifyCtx, cancelNotify := context.WithCancel(ctx)
	defer cancelNotify()
	go func() {
		if err := r.notifier.SendApprovalRequest(notifyCtx, notice); err != nil {
			logging.WarnWithContext(logger, "approval notification failed", "approval_notify_failed",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check mail settings and token file"),
				logging.String(logging.FieldImpact, "recommended title used unless someone opens the link"),
			)
		}
	}()

	timer := r.after(req.Timeout)
	select {
	case index := <-rd.selections:
		return r.selected(logger, index), nil
	case <-timer:
		if !rd.expire() {
			return r.selected(logger, <-rd.selections), nil
		}
		logger.Info("title approval timed out",
			logging.Args(append(logging.DecisionAttrs("title_approval", "recommended", "deadline reached"),
				logging.Int("selected_index", fallback.SelectedIndex),
				logging.Bool("timed_out", true),
			)...)...,
		)
		return fallback, nil
	case <-ctx.Done():
		if !rd.expire() {
			return r.selected(logger, <-rd.selections), nil
		}
		return fallback, ctx.Err()
	}
}

func (r *Rendezvous) selected(logger *slog.Logger, index int) Resolution {
	logger.Info("title approved",
		logging.Args(append(logging.DecisionAttrs("title_approval", "human", "selection received"),
			logging.Int("selected_index", index),
			logging.Bool("timed_out", false),
		)...)...,
	)
	return Resolution{SelectedIndex: index}
}

// bind listens on the configured port, moving to the next port while the
// address is in use. Port 0 picks an ephemeral port.
func (r *Rendezvous) bind() (net.Listener, error) {
	host := strings.TrimSpace(r.opts.BindHost)
	attempts := r.opts.PortScanLimit
	if r.opts.Port == 0 {
		attempts = 1
	}
	var lastErr error
	for i := 0; i < attempts; i++ {
		port := r.opts.Port + i
		if r.opts.Port != 0 && port > 65535 {
			break
		}
		listener, err := r.listen("tcp", net.JoinHostPort(host, strconv.Itoa(port)))
		if err == nil {
			return listener, nil
		}
		lastErr = err
		if !errors.Is(err, syscall.EADDRINUSE) {
			return nil, err
		}
		r.logger.Debug("approval port in use", logging.Int("port", port))
	}
	if lastErr == nil {
		lastErr = errors.New("no port available")
	}
	return nil, fmt.Errorf("no free port from %d after %d attempts: %w", r.opts.Port, attempts, lastErr)
}

func (r *Rendezvous) buildNotice(req Request, port int, deadline time.Time) Notice {
	base := strings.TrimRight(strings.TrimSpace(r.opts.PublicURL), "/")
	if base == "" {
		base = fmt.Sprintf("http://localhost:%d", port)
	}
	links := make([]Link, len(req.Candidates))
	for i, title := range req.Candidates {
		links[i] = Link{Index: i, Title: title, URL: fmt.Sprintf("%s/select?index=%d", base, i)}
	}
	return Notice{
		Candidates:       append([]string(nil), req.Candidates...),
		Description:      req.Description,
		CallbackBaseURL:  base,
		Links:            links,
		Deadline:         deadline,
		EpisodeNumber:    req.EpisodeNumber,
		RecommendedIndex: req.RecommendedIndex,
	}
}
