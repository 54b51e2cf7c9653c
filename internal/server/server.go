package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/emirlan/dailydigest/internal/message"
	"github.com/emirlan/dailydigest/internal/store"
)

// TriggerFunc starts one digest run.
type TriggerFunc func(ctx context.Context) error

// DashboardData holds all data passed to the status page template.
type DashboardData struct {
	Runs      []store.Run
	Stats     store.Stats
	HasDigest bool
	DigestRun string
	Running   bool
	Uptime    string
}

// Server serves the digest preview and status page and provides API endpoints
// for live updates.
type Server struct {
	store     *store.Store
	srv       *http.Server
	tmpl      *template.Template
	startedAt time.Time

	trigger TriggerFunc
	running atomic.Bool

	// Manual runs derive from runCtx and are tracked by runs until Shutdown.
	runCtx     context.Context
	cancelRuns context.CancelFunc
	runs       sync.WaitGroup
}

// Option configures a Server.
type Option func(*Server)

// WithTrigger enables POST /api/run.
func WithTrigger(fn TriggerFunc) Option {
	return func(s *Server) {
		s.trigger = fn
	}
}

// Template helper functions.
var funcMap = template.FuncMap{
	"timeAgo":     timeAgo,
	"sourceColor": sourceColor,
}

// New creates a new Server with the given store and port.
// If port is 0, it defaults to 8080.
func New(st *store.Store, port int, opts ...Option) *Server {
	if port == 0 {
		port = 8080
	}

	s := &Server{
		store:     st,
		startedAt: time.Now(),
		tmpl:      template.Must(template.New("dashboard").Funcs(funcMap).Parse(dashboardPage)),
	}
	s.runCtx, s.cancelRuns = context.WithCancel(context.Background())
	for _, opt := range opts {
		opt(s)
	}

	s.srv = &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      s.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Handler returns the routing table of the server.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /", s.handleDashboard)
	mux.HandleFunc("GET /digest", s.handleDigestHTML)
	mux.HandleFunc("GET /digest.txt", s.handleDigestText)
	mux.HandleFunc("GET /api/runs", s.handleRuns)
	mux.HandleFunc("GET /api/runs/{id}", s.handleRun)
	mux.HandleFunc("GET /api/stats", s.handleStats)
	mux.HandleFunc("POST /api/run", s.handleTrigger)
	mux.HandleFunc("GET /sse", s.handleSSE)
	return mux
}

// Start starts the HTTP server in a background goroutine.
func (s *Server) Start() error {
	slog.Info("Starting preview server", "addr", s.srv.Addr)
	go func() {
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Preview server error", "error", err)
		}
	}()
	return nil
}

// Shutdown gracefully shuts down the HTTP server and waits for a manual run
// in flight. If ctx expires first the run is cancelled, and Shutdown still
// waits for it to return.
func (s *Server) Shutdown(ctx context.Context) error {
	slog.Info("Shutting down preview server")
	err := s.srv.Shutdown(ctx)

	done := make(chan struct{})
	go func() {
		s.runs.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		slog.Warn("Cancelling manual run still in progress")
		s.cancelRuns()
		<-done
	}
	s.cancelRuns()
	return err
}

// --- HTTP Handlers ---

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	_, runID, ok := s.store.LatestDigest()
	data := DashboardData{
		Runs:      s.store.GetRecentRuns(20),
		Stats:     s.store.GetStats(),
		HasDigest: ok,
		DigestRun: runID,
		Running:   s.running.Load(),
		Uptime:    timeAgo(s.startedAt),
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := s.tmpl.Execute(w, data); err != nil {
		slog.Error("Failed to render dashboard template", "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
	}
}

func (s *Server) handleDigestHTML(w http.ResponseWriter, r *http.Request) {
	d, _, ok := s.store.LatestDigest()
	if !ok {
		http.Error(w, "No digest generated yet", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprint(w, d.HTML)
}

func (s *Server) handleDigestText(w http.ResponseWriter, r *http.Request) {
	d, _, ok := s.store.LatestDigest()
	if !ok {
		http.Error(w, "No digest generated yet", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	fmt.Fprint(w, d.PlainText)
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}
	writeJSON(w, http.StatusOK, s.store.GetRecentRuns(limit))
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	run, ok := s.store.GetRun(r.PathValue("id"))
	if !ok {
		http.Error(w, "run not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.store.GetStats())
}

func (s *Server) handleTrigger(w http.ResponseWriter, r *http.Request) {
	if s.trigger == nil {
		http.Error(w, "manual runs are disabled", http.StatusNotImplemented)
		return
	}
	if !s.running.CompareAndSwap(false, true) {
		http.Error(w, "a run is already in progress", http.StatusConflict)
		return
	}

	// The run outlives the request but not the server.
	s.runs.Add(1)
	go func() {
		defer s.runs.Done()
		defer s.running.Store(false)
		if err := s.trigger(s.runCtx); err != nil {
			slog.Error("Manual run failed", "error", err)
		}
	}()

	writeJSON(w, http.StatusAccepted, map[string]string{"status": "started"})
}

func (s *Server) handleSSE(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}

	// Disable write deadline for this long-lived SSE connection.
	rc := http.NewResponseController(w)
	_ = rc.SetWriteDeadline(time.Time{})

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ch := s.store.Subscribe()
	defer s.store.Unsubscribe(ch)

	fmt.Fprintf(w, ": connected\n\n")
	flusher.Flush()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-ch:
			if !ok {
				return
			}
			fmt.Fprintf(w, "data: %s\n\n", event)
			flusher.Flush()
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

// --- Template Helper Functions ---

// timeAgo returns a human-readable relative time string.
func timeAgo(v any) string {
	var t time.Time
	switch val := v.(type) {
	case time.Time:
		t = val
	case *time.Time:
		if val == nil {
			return "never"
		}
		t = *val
	default:
		return "unknown"
	}

	d := time.Since(t)
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%ds ago", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	}
}

// sourceColor returns a CSS class name for the given message source.
func sourceColor(s message.Source) string {
	switch s {
	case message.SourceWhatsApp:
		return "whatsapp"
	case message.SourceTelegram:
		return "telegram"
	case message.SourceSlack:
		return "slack"
	case message.SourceGmail:
		return "gmail"
	default:
		return "other"
	}
}

const dashboardPage = `<!DOCTYPE html>
<html>
<head>
  <meta charset="UTF-8">
  <title>Daily Digest</title>
  <style>
    body { font-family: Arial, sans-serif; max-width: 900px; margin: 0 auto; padding: 20px; color: #333; }
    .stats { display: flex; gap: 12px; margin-bottom: 20px; }
    .stat-card { flex: 1; background: #f5f5f5; border-radius: 5px; padding: 12px; text-align: center; }
    .stat-value { font-size: 24px; font-weight: bold; }
    .stat-label { color: #666; font-size: 12px; }
    .run-item { border-bottom: 1px solid #eee; padding: 10px 0; }
    .run-item.failed { border-left: 3px solid #c00; padding-left: 8px; }
    .run-meta { color: #666; font-size: 12px; }
    .dot { display: inline-block; width: 8px; height: 8px; border-radius: 50%; margin-right: 4px; }
    .dot.slack { background: #4A154B; }
    .dot.gmail { background: #EA4335; }
    .dot.whatsapp { background: #25D366; }
    .dot.telegram { background: #229ED9; }
    .dot.other { background: #999; }
    .collector.failed { color: #c00; }
    .empty-state { color: #999; font-style: italic; padding: 20px 0; }
  </style>
</head>
<body>
  <h1>Daily Digest</h1>
  <p class="run-meta">Up {{.Uptime}}{{if .Running}} &middot; run in progress{{end}}</p>

  <div class="stats">
    <div class="stat-card"><div class="stat-value">{{.Stats.TotalRuns}}</div><div class="stat-label">Runs</div></div>
    <div class="stat-card"><div class="stat-value">{{.Stats.FailedRuns}}</div><div class="stat-label">Failed</div></div>
    <div class="stat-card"><div class="stat-value">{{.Stats.DigestsSent}}</div><div class="stat-label">Sent</div></div>
    <div class="stat-card">
      <div class="stat-value">{{.Stats.TotalMessages}}</div>
      <div class="stat-label">Messages</div>
      <div>{{range $source, $count := .Stats.BySource}}<span><span class="dot {{sourceColor $source}}"></span>{{$count}}</span> {{end}}</div>
    </div>
  </div>

  {{if .HasDigest}}
  <p>Latest digest (run {{.DigestRun}}): <a href="/digest">HTML</a> &middot; <a href="/digest.txt">plain text</a></p>
  {{else}}
  <div class="empty-state">No digest generated yet</div>
  {{end}}

  <h2>Recent runs</h2>
  {{range .Runs}}
  <div class="run-item{{if .Failed}} failed{{end}}">
    <div><strong>{{.Total}}</strong> messages &middot; {{if .Delivered}}delivered{{else if .DryRun}}dry run{{else}}not delivered{{end}}</div>
    <div class="run-meta">{{.RunID}} &middot; {{timeAgo .FinishedAt}}</div>
    {{if .Err}}<div class="collector failed">{{.Err}}</div>{{end}}
    {{range .Collectors}}
    <div class="collector{{if .Failed}} failed{{end}}">{{.Name}}: {{.Count}}{{if .Dropped}} ({{.Dropped}} dropped){{end}}{{if .Err}} - {{.Err}}{{end}}</div>
    {{end}}
  </div>
  {{else}}
  <div class="empty-state">No runs yet</div>
  {{end}}

  <script>
    new EventSource("/sse").onmessage = function () { window.location.reload(); };
  </script>
</body>
</html>
`
