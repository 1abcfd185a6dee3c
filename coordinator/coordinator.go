// Package coordinator runs one script at a time against a workspace.
//
// A run moves through Preparing (stage files, install packages), Running
// (stream output) and Collecting (diff the filesystem, copy outputs back),
// then returns to Idle. Failures pass through Failed on the way back to
// Idle. Collecting always runs once a script has started, so files written
// before a crash are kept.
//
//	c := coordinator.New(rt)
//	res := c.Run(ctx, ws, "analysis.py",
//	    coordinator.WithOutput(func(ch coordinator.Chunk) { fmt.Print(ch.Text) }))
//	if res.Error != nil {
//	    // errors.Is(res.Error, coordinator.ErrScriptExecution) ...
//	}
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/caffeineduck/browserbox/deps"
	"github.com/caffeineduck/browserbox/materialize"
	"github.com/caffeineduck/browserbox/workspace"
	"github.com/google/uuid"
)

// Request is an immutable run description captured at submit time.
type Request struct {
	Script       string
	Inputs       []workspace.StagedFile
	Requirements []string
	Meta         workspace.ScriptMeta
}

// Result describes a finished (or rejected) run.
type Result struct {
	ID        string
	Script    string
	Status    Status
	ExitCode  int
	Stdout    string
	Stderr    string
	Chunks    []Chunk
	Produced  []workspace.StagedFile
	Report    materialize.Report
	Warnings  []string
	Error     error
	StartedAt time.Time
	Duration  time.Duration
}

// Rejected reports whether the run never left Idle.
func (r Result) Rejected() bool {
	return IsRejection(r.Error)
}

// IsRejection reports whether err rejected a run before it started.
func IsRejection(err error) bool {
	return errors.Is(err, ErrRunInProgress) ||
		errors.Is(err, workspace.ErrNotFound) ||
		errors.Is(err, ErrNoScript) ||
		errors.Is(err, ErrAmbiguousScript)
}

// Coordinator owns the run state machine for one runtime.
type Coordinator struct {
	rt  Runtime
	cfg config
	log *slog.Logger

	mu      sync.Mutex
	state   State
	onState func(from, to State) // listener of the active run
}

// New creates an idle Coordinator driving rt.
func New(rt Runtime, opts ...Option) *Coordinator {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Coordinator{
		rt:  rt,
		cfg: cfg,
		log: cfg.logger,
	}
}

// State returns the current lifecycle state.
func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Run executes script from ws and copies its outputs back into ws. An empty
// script name selects the only staged script. Run blocks until the run has
// returned to Idle; callers that need to stay responsive call it from a
// goroutine. No deadline is imposed beyond ctx.
func (c *Coordinator) Run(ctx context.Context, ws *workspace.Workspace, script string, opts ...RunOption) (result Result) {
	start := time.Now()

	var rc runConfig
	for _, opt := range opts {
		opt(&rc)
	}

	result = Result{
		ID:        uuid.NewString(),
		Script:    script,
		Status:    StatusError,
		StartedAt: start,
	}

	req, err := c.begin(ws, script, rc)
	if err != nil {
		result.Error = err
		c.log.Info("run rejected", "script", script, "error", err)
		return result
	}
	result.Script = req.Script

	log := c.log.With("run_id", result.ID, "script", req.Script)
	log.Info("run started", "inputs", len(req.Inputs), "requirements", len(req.Requirements))

	out := &output{sink: rc.sink}
	defer func() {
		result.Stdout, result.Stderr, result.Chunks = out.snapshot()
		result.Duration = time.Since(start)
		log.Info("run finished",
			"status", result.Status,
			"exit_code", result.ExitCode,
			"produced", len(result.Produced),
			"duration", result.Duration)
	}()

	before, err := c.prepare(ctx, req, out, &result, log)
	if err != nil {
		result.Error = err
		out.emit(StreamSystem, "error: "+err.Error()+"\n")
		log.Warn("prepare failed", "error", err)
		c.transition(Failed)
		c.transition(Idle)
		return result
	}

	c.transition(Running)
	code, runErr := c.rt.Run(ctx, req.Script, out.writer(StreamStdout), out.writer(StreamStderr))
	result.ExitCode = code

	var execErr error
	if runErr != nil || code != 0 {
		_, stderr, _ := out.snapshot()
		se := &ScriptExecutionError{
			Message:   lastLine(stderr),
			Traceback: stderr,
			ExitCode:  code,
			Err:       runErr,
		}
		if runErr != nil && (se.Message == "" || errors.Is(runErr, context.Canceled) || errors.Is(runErr, context.DeadlineExceeded)) {
			se.Message = runErr.Error()
		}
		execErr = se
	}

	c.transition(Collecting)
	if err := c.collect(ws, req, before, &result, out); err != nil {
		log.Warn("collect failed", "error", err)
		if execErr == nil {
			execErr = err
		}
	}

	if execErr != nil {
		result.Error = execErr
		c.transition(Failed)
	} else {
		result.Status = StatusOK
	}
	c.transition(Idle)
	return result
}

// begin claims the coordinator and captures the request snapshot. It fails
// without changing state if a run is active or the script cannot run.
func (c *Coordinator) begin(ws *workspace.Workspace, script string, rc runConfig) (Request, error) {
	c.mu.Lock()
	if c.state != Idle {
		c.mu.Unlock()
		return Request{}, ErrRunInProgress
	}

	f, err := ws.SelectScript(script)
	if err != nil {
		c.mu.Unlock()
		return Request{}, err
	}

	meta := workspace.ParseMeta(f.Content)
	if missing := ws.MissingInputs(meta); len(missing) > 0 {
		c.mu.Unlock()
		return Request{}, fmt.Errorf("missing inputs for %s: %w", f.Name,
			&workspace.NotFoundError{Name: strings.Join(missing, ", ")})
	}

	req := Request{
		Script:       f.Name,
		Inputs:       ws.Snapshot(),
		Requirements: append([]string(nil), rc.requirements...),
		Meta:         meta,
	}

	from := c.state
	c.state = Preparing
	c.onState = rc.onState
	c.mu.Unlock()

	c.notify(from, Preparing, rc.onState)
	return req, nil
}

func (c *Coordinator) transition(to State) {
	c.mu.Lock()
	from := c.state
	c.state = to
	onState := c.onState
	if to == Idle {
		c.onState = nil
	}
	c.mu.Unlock()

	c.notify(from, to, onState)
}

func (c *Coordinator) notify(from, to State, onState func(from, to State)) {
	c.log.Debug("state transition", "from", from, "to", to)
	if c.cfg.listener != nil {
		c.cfg.listener(from, to)
	}
	if onState != nil {
		onState(from, to)
	}
}

// prepare stages the inputs and installs packages. It returns the
// fingerprints of the runtime filesystem as the script will first see it.
func (c *Coordinator) prepare(ctx context.Context, req Request, out *output, result *Result, log *slog.Logger) (fingerprints, error) {
	if r, ok := c.rt.(Resetter); ok {
		if err := r.Reset(); err != nil {
			return nil, fmt.Errorf("reset runtime: %w", err)
		}
	}

	var source []byte
	for _, f := range req.Inputs {
		if err := c.rt.WriteFile(f.Name, f.Content); err != nil {
			return nil, fmt.Errorf("stage %s: %w", f.Name, err)
		}
		if f.Name == req.Script {
			source = f.Content
		}
	}

	declared := make(map[string]bool)
	for _, pkg := range req.Requirements {
		declared[requirementName(pkg)] = true
		log.Debug("installing declared package", "package", pkg)
		if err := c.rt.InstallPackages(ctx, []string{pkg}); err != nil {
			return nil, &PackageLoadError{Package: pkg, Declared: true, Err: err}
		}
	}

	if c.cfg.inferInstall {
		local := localModules(req.Inputs)
		for _, pkg := range deps.Requirements(deps.Scan(string(source)), local) {
			if declared[pkg] {
				continue
			}
			log.Debug("installing inferred package", "package", pkg)
			if err := c.rt.InstallPackages(ctx, []string{pkg}); err != nil {
				perr := &PackageLoadError{Package: pkg, Err: err}
				result.Warnings = append(result.Warnings, perr.Error())
				out.emit(StreamSystem, "warning: "+perr.Error()+"\n")
				log.Warn("inferred package not loaded", "package", pkg, "error", err)
			}
		}
	}

	return c.fingerprint()
}

// collect diffs the runtime filesystem against before and materializes new
// or changed files into ws.
func (c *Coordinator) collect(ws *workspace.Workspace, req Request, before fingerprints, result *Result, out *output) error {
	changed, contents, err := c.changedSince(before)
	if err != nil {
		return fmt.Errorf("collect outputs: %w", err)
	}

	for _, p := range changed {
		if !workspace.ValidName(p) {
			continue
		}
		result.Produced = append(result.Produced, workspace.StagedFile{
			Name:    p,
			Content: contents[p],
			Kind:    workspace.Classify(p),
		})
	}
	result.Report = materialize.Apply(ws, result.Produced)

	for _, name := range req.Meta.ProcessFiles {
		if !producedName(result.Produced, name) {
			msg := "expected output not produced: " + name
			result.Warnings = append(result.Warnings, msg)
			out.emit(StreamSystem, "warning: "+msg+"\n")
		}
	}
	return nil
}

func producedName(files []workspace.StagedFile, name string) bool {
	for _, f := range files {
		if f.Name == name {
			return true
		}
	}
	return false
}

// localModules reports module names provided by staged files rather than
// by installed packages.
func localModules(inputs []workspace.StagedFile) func(string) bool {
	mods := make(map[string]bool)
	for _, f := range inputs {
		name := f.Name
		if top, _, ok := strings.Cut(name, "/"); ok {
			mods[top] = true
			continue
		}
		if workspace.IsScript(name) {
			mods[name[:len(name)-len(".py")]] = true
		}
	}
	return func(mod string) bool { return mods[mod] }
}

// requirementName strips extras and version specifiers from a requirement.
func requirementName(req string) string {
	name := strings.TrimSpace(req)
	if i := strings.IndexAny(name, "[<>=!~ ;"); i >= 0 {
		name = name[:i]
	}
	return strings.ToLower(name)
}
