package trigger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"podpublish/internal/config"
	"podpublish/internal/logging"
	"podpublish/internal/runner"
)

const defaultDelayMinutes = 10

// maxDelayMinutes caps delayed runs at one week.
const maxDelayMinutes = 7 * 24 * 60

// Runner is the publish run the endpoints start.
type Runner interface {
	RunOnce(ctx context.Context, opts runner.RunOptions) runner.Outcome
}

// Server serves the trigger endpoints.
type Server struct {
	bind   string
	token  string
	runner Runner
	logger *slog.Logger

	tasks   *taskSet
	started time.Time
	now     func() time.Time
	// minute scales delayMinutes.
	minute time.Duration

	// runCtx outlives individual requests so a disconnecting client does not
	// abort a publish half way.
	runCtx context.Context
	runs   sync.WaitGroup

	mux      *http.ServeMux
	listener net.Listener
	server   *http.Server
}

// New builds a server from the trigger config section.
func New(cfg config.Trigger, r Runner, logger *slog.Logger) *Server {
	s := &Server{
		bind:    strings.TrimSpace(cfg.Bind),
		token:   strings.TrimSpace(cfg.Token),
		runner:  r,
		logger:  logging.NewComponentLogger(logger, "trigger"),
		tasks:   newTaskSet(),
		started: time.Now(),
		now:     time.Now,
		minute:  time.Minute,
		runCtx:  context.Background(),
	}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("POST /upload/immediate", authMiddleware(s.token, s.handleImmediate))
	mux.HandleFunc("POST /upload/test", authMiddleware(s.token, s.handleTest))
	mux.HandleFunc("POST /upload/delayed", authMiddleware(s.token, s.handleDelayed))
	mux.HandleFunc("DELETE /upload/delayed/{taskId}", authMiddleware(s.token, s.handleCancel))
	mux.HandleFunc("GET /tasks", authMiddleware(s.token, s.handleTasks))
	mux.HandleFunc("/", s.handleNotFound)
	s.mux = mux
	return s
}

// Handler returns the routing handler.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Run listens on the configured address until ctx is cancelled. Pending
// delayed tasks are dropped on shutdown and in-flight runs are awaited.
func (s *Server) Run(ctx context.Context) error {
	if s.bind == "" {
		return errors.New("trigger bind address is empty")
	}
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("trigger listen: %w", err)
	}
	s.listener = listener
	s.runCtx = ctx
	s.server = &http.Server{
		Handler:           s.mux,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- s.server.Serve(listener)
	}()
	s.logger.Info("trigger server listening",
		logging.String(logging.FieldEventType, "trigger_listen"),
		logging.String("address", listener.Addr().String()),
		logging.Bool("auth", s.token != ""),
	)

	select {
	case err := <-serveErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("trigger serve: %w", err)
		}
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = s.server.Shutdown(shutdownCtx)
	if dropped := s.tasks.cancelAll(); dropped > 0 {
		s.logger.Warn("pending delayed runs dropped", logging.Int("count", dropped))
	}
	s.runs.Wait()
	return nil
}

// Addr returns the bound address once Run is listening.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

type healthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Uptime    float64   `json:"uptime"`
	Tasks     int       `json:"tasks"`
}

type runResponse struct {
	Success   bool      `json:"success"`
	Message   string    `json:"message"`
	Episode   string    `json:"episode,omitempty"`
	RunID     string    `json:"runId,omitempty"`
	Outcome   string    `json:"outcome,omitempty"`
	Warning   string    `json:"warning,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

type delayedRequest struct {
	DelayMinutes *float64 `json:"delayMinutes"`
	TaskID       string   `json:"taskId"`
}

type delayedResponse struct {
	Success   bool      `json:"success"`
	Message   string    `json:"message"`
	TaskID    string    `json:"taskId"`
	ExecuteAt time.Time `json:"executeAt"`
	Timestamp time.Time `json:"timestamp"`
}

type tasksResponse struct {
	Success   bool      `json:"success"`
	Tasks     []Task    `json:"tasks"`
	Count     int       `json:"count"`
	Timestamp time.Time `json:"timestamp"`
}

type messageResponse struct {
	Success   bool      `json:"success"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	now := s.now()
	s.writeJSON(w, http.StatusOK, healthResponse{
		Status:    "healthy",
		Timestamp: now.UTC(),
		Uptime:    now.Sub(s.started).Seconds(),
		Tasks:     s.tasks.len(),
	})
}

func (s *Server) handleImmediate(w http.ResponseWriter, _ *http.Request) {
	s.logger.Info("immediate run requested", logging.String(logging.FieldEventType, "trigger_immediate"))
	out := s.execute(runner.ModeOnce)
	status := http.StatusOK
	if out.Fatal() {
		status = http.StatusBadRequest
	}
	s.writeJSON(w, status, s.runBody(out, "上傳成功", "上傳失敗"))
}

func (s *Server) handleTest(w http.ResponseWriter, _ *http.Request) {
	s.logger.Info("test run requested", logging.String(logging.FieldEventType, "trigger_test"))
	out := s.execute(runner.ModeTest)
	status := http.StatusOK
	if out.Fatal() {
		status = http.StatusBadRequest
	}
	s.writeJSON(w, status, s.runBody(out, "測試完成", "測試失敗"))
}

func (s *Server) handleDelayed(w http.ResponseWriter, r *http.Request) {
	var req delayedRequest
	body, err := io.ReadAll(io.LimitReader(r.Body, 64<<10))
	if err != nil {
		s.writeMessage(w, http.StatusBadRequest, "無法讀取請求")
		return
	}
	if len(strings.TrimSpace(string(body))) > 0 {
		if err := json.Unmarshal(body, &req); err != nil {
			s.writeMessage(w, http.StatusBadRequest, "JSON 格式錯誤")
			return
		}
	}
	minutes := float64(defaultDelayMinutes)
	if req.DelayMinutes != nil {
		minutes = *req.DelayMinutes
	}
	if minutes < 0 {
		s.writeMessage(w, http.StatusBadRequest, "delayMinutes 不可為負數")
		return
	}
	if minutes > maxDelayMinutes {
		s.writeMessage(w, http.StatusBadRequest, fmt.Sprintf("delayMinutes 不可超過 %d", maxDelayMinutes))
		return
	}
	now := s.now()
	id := strings.TrimSpace(req.TaskID)
	if id == "" {
		id = "task_" + strconv.FormatInt(now.UnixMilli(), 10)
	}

	delay := time.Duration(minutes * float64(s.minute))
	task, ok := s.tasks.schedule(id, now, delay, func() { s.fireDelayed(id) })
	if !ok {
		s.writeMessage(w, http.StatusConflict, fmt.Sprintf("任務 %s 已存在", id))
		return
	}
	s.logger.Info("delayed run scheduled",
		logging.String(logging.FieldEventType, "trigger_delayed"),
		logging.String("task_id", id),
		logging.Duration("delay", delay),
	)
	s.writeJSON(w, http.StatusOK, delayedResponse{
		Success:   true,
		Message:   fmt.Sprintf("已安排 %s 分鐘後執行上傳", strconv.FormatFloat(minutes, 'f', -1, 64)),
		TaskID:    id,
		ExecuteAt: task.ExecuteAt.UTC(),
		Timestamp: now.UTC(),
	})
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("taskId")
	if !s.tasks.cancel(id) {
		s.writeMessage(w, http.StatusNotFound, fmt.Sprintf("找不到任務 %s", id))
		return
	}
	s.logger.Info("delayed run cancelled", logging.String("task_id", id))
	s.writeMessage(w, http.StatusOK, fmt.Sprintf("任務 %s 已取消", id))
}

func (s *Server) handleTasks(w http.ResponseWriter, _ *http.Request) {
	tasks := s.tasks.list()
	s.writeJSON(w, http.StatusOK, tasksResponse{
		Success:   true,
		Tasks:     tasks,
		Count:     len(tasks),
		Timestamp: s.now().UTC(),
	})
}

func (s *Server) handleNotFound(w http.ResponseWriter, _ *http.Request) {
	s.writeMessage(w, http.StatusNotFound, "API 端點不存在")
}

func (s *Server) fireDelayed(id string) {
	s.logger.Info("delayed run starting", logging.String("task_id", id))
	out := s.execute(runner.ModeOnce)
	if out.Fatal() {
		logging.ErrorWithContext(s.logger, "delayed run failed", "trigger_delayed_failed",
			logging.String("task_id", id),
			logging.String("run_id", out.RunID),
			logging.String(logging.FieldErrorHint, out.Message),
			logging.String(logging.FieldDiagnosticPath, out.DiagnosticPath),
		)
		return
	}
	s.logger.Info("delayed run finished",
		logging.String("task_id", id),
		logging.String("run_id", out.RunID),
		logging.String("title", out.Title),
	)
}

func (s *Server) execute(mode runner.Mode) runner.Outcome {
	s.runs.Add(1)
	defer s.runs.Done()
	return s.runner.RunOnce(s.runCtx, runner.RunOptions{Mode: mode})
}

func (s *Server) runBody(out runner.Outcome, okMessage, failMessage string) runResponse {
	resp := runResponse{
		Success:   !out.Fatal(),
		Episode:   out.Title,
		RunID:     out.RunID,
		Outcome:   string(out.Kind),
		Timestamp: s.now().UTC(),
	}
	switch {
	case out.Fatal():
		resp.Message = failMessage
		if out.Message != "" {
			resp.Message = out.Message
		}
	case out.Skipped:
		resp.Message = out.Message
	default:
		resp.Message = okMessage
		if out.Kind == runner.OutcomeSuccessWithWarning {
			resp.Warning = out.Message
		}
	}
	return resp
}

func (s *Server) writeMessage(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, messageResponse{
		Success:   status < http.StatusBadRequest,
		Message:   message,
		Timestamp: s.now().UTC(),
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("failed to encode response", logging.Error(err))
	}
}
