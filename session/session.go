// Package session ties one workspace to one runtime and its coordinator.
//
// A Session is what a user interacts with: files are dropped into its
// workspace, runs go through its coordinator, and finished runs are counted
// in metrics and written to the history log. A Manager holds many sessions
// keyed by ID and expires the idle ones.
package session

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/caffeineduck/browserbox/coordinator"
	"github.com/caffeineduck/browserbox/history"
	"github.com/caffeineduck/browserbox/internal/metrics"
	"github.com/caffeineduck/browserbox/workspace"
	"github.com/google/uuid"
)

// ErrClosed is returned when a closed session is used.
var ErrClosed = errors.New("session closed")

// Runtime is the interpreter a session owns. executor.Session satisfies it.
type Runtime interface {
	coordinator.Runtime
	io.Closer
}

// Session is one user's workspace plus the machinery to run scripts on it.
type Session struct {
	id      string
	ws      *workspace.Workspace
	rt      Runtime
	coord   *coordinator.Coordinator
	history *history.Store
	log     *slog.Logger
	created time.Time

	mu       sync.Mutex
	lastUsed time.Time
	closed   bool
}

// Option configures a Session.
type Option func(*options)

type options struct {
	id           string
	history      *history.Store
	logger       *slog.Logger
	inferInstall bool
	listener     func(from, to coordinator.State)
}

// WithID sets the session ID. A random one is generated otherwise.
func WithID(id string) Option {
	return func(o *options) { o.id = id }
}

// WithHistory records every finished run in st.
func WithHistory(st *history.Store) Option {
	return func(o *options) { o.history = st }
}

// WithLogger sets the logger for the session and its coordinator.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithInferredInstall controls installing packages found in script imports.
func WithInferredInstall(enabled bool) Option {
	return func(o *options) { o.inferInstall = enabled }
}

// WithStateListener observes coordinator state transitions.
func WithStateListener(fn func(from, to coordinator.State)) Option {
	return func(o *options) { o.listener = fn }
}

// New creates a session with an empty workspace that runs scripts on rt.
// The session owns rt and closes it on Close.
func New(rt Runtime, opts ...Option) *Session {
	o := options{
		logger:       slog.New(slog.NewTextHandler(io.Discard, nil)),
		inferInstall: true,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.id == "" {
		o.id = uuid.NewString()
	}

	log := o.logger.With("session", o.id)
	copts := []coordinator.Option{
		coordinator.WithLogger(log),
		coordinator.WithInferredInstall(o.inferInstall),
	}
	if o.listener != nil {
		copts = append(copts, coordinator.WithStateListener(o.listener))
	}

	now := time.Now()
	metrics.SessionsActive.Inc()
	return &Session{
		id:       o.id,
		ws:       workspace.New(),
		rt:       rt,
		coord:    coordinator.New(rt, copts...),
		history:  o.history,
		log:      log,
		created:  now,
		lastUsed: now,
	}
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// Workspace returns the session's staged files.
func (s *Session) Workspace() *workspace.Workspace { return s.ws }

// State returns the coordinator's lifecycle state.
func (s *Session) State() coordinator.State { return s.coord.State() }

// CreatedAt returns when the session was opened.
func (s *Session) CreatedAt() time.Time { return s.created }

// LastUsed returns the time of the last Touch or Run.
func (s *Session) LastUsed() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastUsed
}

// Touch marks the session as in use.
func (s *Session) Touch() {
	s.mu.Lock()
	s.lastUsed = time.Now()
	s.mu.Unlock()
}

// Closed reports whether Close has been called.
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Run runs script against the workspace. See coordinator.Coordinator.Run.
func (s *Session) Run(ctx context.Context, script string, opts ...coordinator.RunOption) coordinator.Result {
	if s.Closed() {
		return coordinator.Result{Script: script, Status: coordinator.StatusError, Error: ErrClosed}
	}
	s.Touch()
	defer s.Touch()

	res := s.coord.Run(ctx, s.ws, script, opts...)
	s.observe(ctx, res)
	return res
}

func (s *Session) observe(ctx context.Context, res coordinator.Result) {
	if res.Rejected() {
		metrics.RunRejections.WithLabelValues(RejectReason(res.Error)).Inc()
		return
	}

	metrics.RunsTotal.WithLabelValues(string(res.Status)).Inc()
	metrics.RunDuration.Observe(res.Duration.Seconds())
	for _, f := range res.Produced {
		metrics.MaterializedFiles.WithLabelValues(f.Kind.String()).Inc()
	}

	if s.history == nil {
		return
	}
	// The run context may already be cancelled; the record should still land.
	if err := s.history.Record(context.WithoutCancel(ctx), Record(s.id, res)); err != nil {
		s.log.Warn("record run", "run_id", res.ID, "error", err)
	}
}

// Close releases the runtime. The workspace is discarded with the session.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	metrics.SessionsActive.Dec()
	s.log.Debug("session closed")
	return s.rt.Close()
}

// Record converts a finished run into its history entry.
func Record(sessionID string, res coordinator.Result) *history.Run {
	r := &history.Run{
		ID:        res.ID,
		Session:   sessionID,
		Script:    res.Script,
		Status:    string(res.Status),
		ExitCode:  res.ExitCode,
		Stdout:    res.Stdout,
		Stderr:    res.Stderr,
		Warnings:  res.Warnings,
		StartedAt: res.StartedAt,
		Duration:  res.Duration,
	}
	if res.Error != nil {
		r.Error = res.Error.Error()
	}
	for _, f := range res.Produced {
		r.Produced = append(r.Produced, f.Name)
	}
	return r
}

// RejectReason names why a run was rejected, for metrics and API errors.
func RejectReason(err error) string {
	switch {
	case errors.Is(err, coordinator.ErrRunInProgress):
		return "in_progress"
	case errors.Is(err, coordinator.ErrNoScript):
		return "no_script"
	case errors.Is(err, coordinator.ErrAmbiguousScript):
		return "ambiguous_script"
	case errors.Is(err, workspace.ErrNotFound):
		return "not_found"
	default:
		return "other"
	}
}
