package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"path"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/caffeineduck/browserbox/coordinator"
	"github.com/caffeineduck/browserbox/history"
	"github.com/caffeineduck/browserbox/internal/metrics"
	"github.com/caffeineduck/browserbox/materialize"
	"github.com/caffeineduck/browserbox/session"
	"github.com/caffeineduck/browserbox/workspace"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start HTTP server for workspaces and runs",
	Long: `Start an HTTP server that exposes workspaces over REST.

Endpoints:
  POST   /sessions                       Create session, returns {"id":"..."}
  GET    /sessions                       List sessions
  DELETE /sessions/{id}                  Close session
  GET    /sessions/{id}/state            Run state and staged files
  GET    /sessions/{id}/files            List staged files
  POST   /sessions/{id}/files            Stage files (multipart)
  PUT    /sessions/{id}/files/{name}     Stage one file (raw body)
  GET    /sessions/{id}/files/{name}     Download or preview a file
  DELETE /sessions/{id}/files/{name}     Unstage a file
  POST   /sessions/{id}/run              Run {"script","requirements"}; SSE when
                                         Accept lists text/event-stream
  GET    /runs                           Run history (?session=&status=&limit=)
  GET    /runs/{id}                      One run with output
  GET    /health                         Health check
  GET    /metrics                        Prometheus metrics`,
	Run: runServe,
}

func init() {
	serveCmd.Flags().IntP("port", "p", 0, "Port to listen on (default: config server.port)")
	serveCmd.Flags().Duration("session-ttl", 0, "Idle session expiry (default: config server.session_ttl)")
	addSessionFlags(serveCmd)
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) {
	cfg := loadConfig(cmd)
	if cmd.Flags().Changed("port") {
		cfg.Server.Port, _ = cmd.Flags().GetInt("port")
	}
	if cmd.Flags().Changed("session-ttl") {
		cfg.Server.SessionTTL, _ = cmd.Flags().GetDuration("session-ttl")
	}
	log := newLogger(cfg)

	st, err := openStack(cfg, log, true)
	if err != nil {
		exitWithError(err)
	}
	defer st.Close()

	sessions := st.newManager()
	defer sessions.Close()

	srv := &server{
		sessions:  sessions,
		history:   st.history,
		maxUpload: cfg.Server.MaxUploadMemory,
		log:       log,
	}
	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           srv.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signalContext()
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("server listening", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		sessions.Janitor(ctx, cfg.Server.SessionTTL, time.Minute)
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		exitWithError(err)
	}
}

type server struct {
	sessions  *session.Manager
	history   *history.Store
	maxUpload int64
	log       *slog.Logger
}

func (s *server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /sessions", s.handleCreateSession)
	mux.HandleFunc("GET /sessions", s.handleListSessions)
	mux.HandleFunc("DELETE /sessions/{id}", s.handleDeleteSession)
	mux.HandleFunc("GET /sessions/{id}/state", s.handleState)
	mux.HandleFunc("GET /sessions/{id}/files", s.handleListFiles)
	mux.HandleFunc("POST /sessions/{id}/files", s.handleUpload)
	mux.HandleFunc("PUT /sessions/{id}/files/{name...}", s.handlePutFile)
	mux.HandleFunc("GET /sessions/{id}/files/{name...}", s.handleGetFile)
	mux.HandleFunc("DELETE /sessions/{id}/files/{name...}", s.handleDeleteFile)
	mux.HandleFunc("POST /sessions/{id}/run", s.handleRun)
	mux.HandleFunc("GET /runs", s.handleListRuns)
	mux.HandleFunc("GET /runs/{id}", s.handleGetRun)
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.Handle("GET /metrics", promhttp.Handler())
	return metrics.Middleware(mux)
}

type errorResponse struct {
	Error  string `json:"error"`
	Reason string `json:"reason,omitempty"`
}

type fileInfo struct {
	Name        string         `json:"name"`
	Kind        workspace.Kind `json:"kind"`
	Size        int            `json:"size"`
	Previewable bool           `json:"previewable"`
}

type sessionState struct {
	ID        string            `json:"id"`
	State     coordinator.State `json:"state"`
	Files     int               `json:"files"`
	Scripts   []string          `json:"scripts"`
	CreatedAt time.Time         `json:"created_at"`
	LastUsed  time.Time         `json:"last_used"`
}

type runRequest struct {
	Script       string   `json:"script,omitempty"`
	Requirements []string `json:"requirements,omitempty"`
}

type runResponse struct {
	ID         string             `json:"id"`
	Script     string             `json:"script"`
	Status     coordinator.Status `json:"status"`
	ExitCode   int                `json:"exit_code"`
	Stdout     string             `json:"stdout"`
	Stderr     string             `json:"stderr"`
	Error      string             `json:"error,omitempty"`
	Warnings   []string           `json:"warnings,omitempty"`
	Report     materialize.Report `json:"report"`
	Files      []fileInfo         `json:"files"`
	DurationMs int64              `json:"duration_ms"`
}

type stateEvent struct {
	From coordinator.State `json:"from"`
	To   coordinator.State `json:"to"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

func newFileInfo(f workspace.StagedFile) fileInfo {
	return fileInfo{
		Name:        f.Name,
		Kind:        f.Kind,
		Size:        f.Size(),
		Previewable: f.Kind.Previewable(),
	}
}

func newSessionState(sess *session.Session) sessionState {
	scripts := sess.Workspace().Scripts()
	if scripts == nil {
		scripts = []string{}
	}
	return sessionState{
		ID:        sess.ID(),
		State:     sess.State(),
		Files:     sess.Workspace().Len(),
		Scripts:   scripts,
		CreatedAt: sess.CreatedAt(),
		LastUsed:  sess.LastUsed(),
	}
}

func newRunResponse(res coordinator.Result) runResponse {
	resp := runResponse{
		ID:         res.ID,
		Script:     res.Script,
		Status:     res.Status,
		ExitCode:   res.ExitCode,
		Stdout:     res.Stdout,
		Stderr:     res.Stderr,
		Warnings:   res.Warnings,
		Report:     res.Report,
		Files:      make([]fileInfo, 0, len(res.Produced)),
		DurationMs: res.Duration.Milliseconds(),
	}
	if res.Error != nil {
		resp.Error = res.Error.Error()
	}
	for _, f := range res.Produced {
		resp.Files = append(resp.Files, newFileInfo(f))
	}
	return resp
}

// rejectionStatus maps a rejected run to its HTTP status.
func rejectionStatus(err error) int {
	switch {
	case errors.Is(err, coordinator.ErrRunInProgress):
		return http.StatusConflict
	case errors.Is(err, workspace.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, session.ErrClosed):
		return http.StatusGone
	default:
		return http.StatusBadRequest
	}
}

func (s *server) session(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	sess, err := s.sessions.Get(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return nil, false
	}
	return sess, true
}

func (s *server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.sessions.Create()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusCreated, newSessionState(sess))
}

func (s *server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	list := s.sessions.List()
	out := make([]sessionState, 0, len(list))
	for _, sess := range list {
		out = append(out, newSessionState(sess))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := s.sessions.Delete(r.PathValue("id")); err != nil {
		if errors.Is(err, session.ErrNotFound) {
			writeError(w, http.StatusNotFound, err)
			return
		}
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) handleState(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, newSessionState(sess))
}

func (s *server) handleListFiles(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	files := make([]fileInfo, 0, sess.Workspace().Len())
	for f := range sess.Workspace().List() {
		files = append(files, newFileInfo(f))
	}
	writeJSON(w, http.StatusOK, files)
}

func (s *server) handleUpload(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	if err := r.ParseMultipartForm(s.maxUpload); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("parse upload: %w", err))
		return
	}
	defer r.MultipartForm.RemoveAll()

	fields := make([]string, 0, len(r.MultipartForm.File))
	for field := range r.MultipartForm.File {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	staged := make([]fileInfo, 0)
	for _, field := range fields {
		for _, fh := range r.MultipartForm.File[field] {
			f, err := fh.Open()
			if err != nil {
				writeError(w, http.StatusBadRequest, err)
				return
			}
			data, err := io.ReadAll(f)
			f.Close()
			if err != nil {
				writeError(w, http.StatusBadRequest, err)
				return
			}
			sf, err := sess.Workspace().Add(path.Base(fh.Filename), data)
			if err != nil {
				writeError(w, http.StatusBadRequest, err)
				return
			}
			staged = append(staged, newFileInfo(sf))
		}
	}
	writeJSON(w, http.StatusCreated, staged)
}

func (s *server) handlePutFile(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	data, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	sf, err := sess.Workspace().Add(r.PathValue("name"), data)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusCreated, newFileInfo(sf))
}

func (s *server) handleGetFile(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	f, err := sess.Workspace().Get(r.PathValue("name"))
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}

	w.Header().Set("Content-Type", materialize.ContentType(f.Kind))
	w.Header().Set("Content-Length", strconv.Itoa(f.Size()))
	disposition := "inline"
	if !f.Kind.Previewable() {
		disposition = "attachment"
	}
	w.Header().Set("Content-Disposition", fmt.Sprintf("%s; filename=%q", disposition, path.Base(f.Name)))
	w.Write(f.Content)
}

func (s *server) handleDeleteFile(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	name := r.PathValue("name")
	if !sess.Workspace().Remove(name) {
		writeError(w, http.StatusNotFound, &workspace.NotFoundError{Name: name})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) handleRun(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}

	var req runRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && err != io.EOF {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid json: %w", err))
		return
	}

	opts := []coordinator.RunOption{coordinator.WithRequirements(req.Requirements...)}

	var stream *sseWriter
	if wantsEventStream(r) {
		stream = newSSEWriter(w)
		opts = append(opts,
			coordinator.WithRunStateListener(func(from, to coordinator.State) {
				stream.event("state", stateEvent{From: from, To: to})
			}),
			coordinator.WithOutput(func(c coordinator.Chunk) {
				stream.event("chunk", c)
			}),
		)
	}

	res := sess.Run(r.Context(), req.Script, opts...)
	if res.Rejected() || errors.Is(res.Error, session.ErrClosed) {
		s.log.Debug("run rejected", "session", sess.ID(), "reason", session.RejectReason(res.Error))
		if stream == nil || !stream.started() {
			writeJSON(w, rejectionStatus(res.Error), errorResponse{
				Error:  res.Error.Error(),
				Reason: session.RejectReason(res.Error),
			})
			return
		}
	}

	resp := newRunResponse(res)
	if stream == nil {
		writeJSON(w, http.StatusOK, resp)
		return
	}
	for _, f := range resp.Files {
		stream.event("file", f)
	}
	stream.event("result", resp)
}

func (s *server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeError(w, http.StatusNotFound, errors.New("run history is disabled"))
		return
	}
	q := r.URL.Query()
	f := history.Filter{
		Session: q.Get("session"),
		Status:  q.Get("status"),
		Limit:   100,
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, fmt.Errorf("invalid limit %q", v))
			return
		}
		f.Limit = n
	}
	runs, err := s.history.List(r.Context(), f)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, runs)
}

func (s *server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeError(w, http.StatusNotFound, errors.New("run history is disabled"))
		return
	}
	run, err := s.history.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		if errors.Is(err, history.ErrNotFound) {
			writeError(w, http.StatusNotFound, err)
			return
		}
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

// wantsEventStream reports whether any Accept entry names text/event-stream
// with a non-zero quality.
func wantsEventStream(r *http.Request) bool {
	for _, value := range r.Header.Values("Accept") {
		for _, part := range strings.Split(value, ",") {
			mediaType, params, err := mime.ParseMediaType(strings.TrimSpace(part))
			if err != nil || mediaType != "text/event-stream" {
				continue
			}
			if q, ok := params["q"]; ok {
				if v, err := strconv.ParseFloat(q, 64); err == nil && v == 0 {
					continue
				}
			}
			return true
		}
	}
	return false
}

// sseWriter writes server-sent events. Headers are sent with the first
// event, so a run rejected before it starts can still get an error status.
type sseWriter struct {
	w  http.ResponseWriter
	rc *http.ResponseController

	mu     sync.Mutex
	began  bool
	failed bool
}

func newSSEWriter(w http.ResponseWriter) *sseWriter {
	return &sseWriter{w: w, rc: http.NewResponseController(w)}
}

func (s *sseWriter) started() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.began
}

// event sends one event. After a write error (client gone) further events
// are dropped; the run itself is cancelled through the request context.
func (s *sseWriter) event(name string, v any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failed {
		return
	}
	if !s.began {
		s.w.Header().Set("Content-Type", "text/event-stream")
		s.w.Header().Set("Cache-Control", "no-cache")
		s.w.Header().Set("Connection", "keep-alive")
		s.w.WriteHeader(http.StatusOK)
		s.began = true
	}

	data, err := json.Marshal(v)
	if err != nil {
		s.failed = true
		return
	}
	if _, err := fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", name, data); err != nil {
		s.failed = true
		return
	}
	if err := s.rc.Flush(); err != nil {
		s.failed = true
	}
}
