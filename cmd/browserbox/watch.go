package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caffeineduck/browserbox/coordinator"
	"github.com/caffeineduck/browserbox/session"
	"github.com/caffeineduck/browserbox/workspace"
	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
)

var watchCmd = &cobra.Command{
	Use:   "watch <dir>",
	Short: "Watch a drop folder and re-run on changes",
	Long: `Watch a directory as a drop folder. Every file in it is staged; files
created or written are staged again and trigger a re-run, removed files are
unstaged. Produced files are saved to --out (default: <dir>/output).

Examples:
  browserbox watch ./inbox
  browserbox watch ./inbox --script report.py --debounce 1s`,
	Args: cobra.ExactArgs(1),
	Run:  runWatch,
}

func init() {
	watchCmd.Flags().StringP("script", "s", "", "Script to run when several are staged")
	watchCmd.Flags().StringP("out", "o", "", "Directory produced files are saved to")
	watchCmd.Flags().Duration("debounce", 300*time.Millisecond, "Wait time after changes before re-running")
	addSessionFlags(watchCmd)
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) {
	dir := args[0]
	script, _ := cmd.Flags().GetString("script")
	outDir, _ := cmd.Flags().GetString("out")
	debounce, _ := cmd.Flags().GetDuration("debounce")
	requirements, _ := cmd.Flags().GetStringSlice("requirement")
	if outDir == "" {
		outDir = filepath.Join(dir, "output")
	}

	info, err := os.Stat(dir)
	if err != nil {
		exitWithError(err)
	}
	if !info.IsDir() {
		exitWithError(fmt.Errorf("%s is not a directory", dir))
	}

	cfg := loadConfig(cmd)
	log := newLogger(cfg)

	st, err := openStack(cfg, log, true)
	if err != nil {
		exitWithError(err)
	}
	defer st.Close()

	sess, err := st.newSession()
	if err != nil {
		exitWithError(err)
	}
	defer sess.Close()

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		exitWithError(fmt.Errorf("create file watcher: %w", err))
	}
	defer watcher.Close()
	if err := watcher.Add(dir); err != nil {
		exitWithError(fmt.Errorf("watch %s: %w", dir, err))
	}

	ctx, stop := signalContext()
	defer stop()

	df := &dropFolder{
		dir:          dir,
		outDir:       outDir,
		script:       script,
		requirements: requirements,
		sess:         sess,
		stdout:       os.Stdout,
		stderr:       os.Stderr,
		log:          log,
	}
	if err := df.load(); err != nil {
		exitWithError(err)
	}
	fmt.Fprintf(os.Stderr, "Watching %s (%d file(s) staged). Press Ctrl+C to stop.\n", dir, sess.Workspace().Len())
	if len(sess.Workspace().Scripts()) > 0 {
		df.run(ctx)
	}

	timer := time.NewTimer(debounce)
	timer.Stop()
	for {
		select {
		case <-ctx.Done():
			fmt.Fprintln(os.Stderr, "\nStopped watching.")
			return
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if df.handle(event) {
				timer.Reset(debounce)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			log.Warn("watch error", "error", err)
		case <-timer.C:
			df.run(ctx)
		}
	}
}

// dropFolder mirrors a directory into a session workspace.
type dropFolder struct {
	dir          string
	outDir       string
	script       string
	requirements []string
	sess         *session.Session
	stdout       io.Writer
	stderr       io.Writer
	log          *slog.Logger
}

func (d *dropFolder) load() error {
	_, err := workspace.LoadDir(d.sess.Workspace(), d.dir, "*")
	return err
}

// ignored filters editor swap files and hidden files.
func ignored(name string) bool {
	return strings.HasPrefix(name, ".") || strings.HasSuffix(name, "~") || strings.HasSuffix(name, ".swp")
}

// handle applies one filesystem event to the workspace and reports whether
// a file was staged.
func (d *dropFolder) handle(event fsnotify.Event) bool {
	name := filepath.Base(event.Name)
	if ignored(name) {
		return false
	}
	ws := d.sess.Workspace()

	if event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
		if ws.Remove(name) {
			d.log.Debug("unstaged", "file", name)
		}
		return false
	}
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
		return false
	}

	info, err := os.Stat(event.Name)
	if err != nil || !info.Mode().IsRegular() {
		return false
	}
	data, err := os.ReadFile(event.Name)
	if err != nil {
		d.log.Warn("read dropped file", "file", name, "error", err)
		return false
	}
	if _, err := ws.Add(name, data); err != nil {
		d.log.Warn("stage dropped file", "file", name, "error", err)
		return false
	}
	d.log.Debug("staged", "file", name, "size", len(data))
	return true
}

func (d *dropFolder) run(ctx context.Context) {
	fmt.Fprintf(d.stderr, "\n--- %s ---\n", time.Now().Format("15:04:05"))
	res := d.sess.Run(ctx, d.script,
		coordinator.WithOutput(chunkPrinter(d.stdout, d.stderr)),
		coordinator.WithRequirements(d.requirements...))
	if res.Rejected() {
		fmt.Fprintf(d.stderr, "Error: %v\n", res.Error)
		return
	}

	printReport(d.stderr, res)
	if len(res.Produced) > 0 {
		if err := saveFiles(d.outDir, res.Produced); err != nil {
			fmt.Fprintf(d.stderr, "Error: %v\n", err)
		}
	}
	if res.Error != nil && !errorShown(res) {
		fmt.Fprintf(d.stderr, "Error: %v\n", res.Error)
	}
}
