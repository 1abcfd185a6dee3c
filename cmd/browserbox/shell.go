package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/caffeineduck/browserbox/coordinator"
	"github.com/caffeineduck/browserbox/materialize"
	"github.com/caffeineduck/browserbox/session"
	"github.com/caffeineduck/browserbox/workspace"
	"github.com/chzyer/readline"
	"github.com/spf13/cobra"
)

var shellCmd = &cobra.Command{
	Use:   "shell [files...]",
	Short: "Interactive workspace shell",
	Long: `Start an interactive shell over one workspace. Files stay staged between
runs and produced files are added to the workspace.

Commands:
  add <path>...          stage files or directories
  rm <name>...           unstage files
  ls                     list staged files
  cat <name>             print a staged file
  meta [script]          show a script's user_files / process_files
  require <pkg>...       declare packages for following runs
  run [script]           run a script (Ctrl+C interrupts it)
  save <name|all> [dir]  write staged files to disk
  state                  show the run state
  exit, quit             leave the shell

Features:
  - Command history (up/down arrows)
  - History search (Ctrl+R)`,
	Args: cobra.ArbitraryArgs,
	Run:  runShell,
}

func init() {
	addSessionFlags(shellCmd)
	shellCmd.Flags().String("history-file", "", "Shell history file (default: ~/.browserbox_history)")
	rootCmd.AddCommand(shellCmd)
}

func runShell(cmd *cobra.Command, args []string) {
	historyFile, _ := cmd.Flags().GetString("history-file")
	requirements, _ := cmd.Flags().GetStringSlice("requirement")
	if historyFile == "" {
		home, _ := os.UserHomeDir()
		historyFile = filepath.Join(home, ".browserbox_history")
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

	if err := stagePaths(sess.Workspace(), args); err != nil {
		exitWithError(err)
	}

	rl, err := readline.NewEx(&readline.Config{
		Prompt:            "browserbox> ",
		HistoryFile:       historyFile,
		HistoryLimit:      1000,
		InterruptPrompt:   "^C",
		EOFPrompt:         "exit",
		HistorySearchFold: true,
	})
	if err != nil {
		exitWithError(fmt.Errorf("initialize readline: %w", err))
	}
	defer rl.Close()

	sh := &shell{
		sess:         sess,
		stdout:       rl.Stdout(),
		stderr:       rl.Stderr(),
		requirements: requirements,
		runContext:   signalContext,
	}
	fmt.Fprintf(os.Stderr, "browserbox shell, %d file(s) staged (type 'exit' to quit, Ctrl+D to exit)\n", sess.Workspace().Len())

	for {
		line, err := rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt {
				continue
			}
			if err == io.EOF {
				fmt.Println()
			} else {
				fmt.Fprintf(os.Stderr, "Error reading input: %v\n", err)
			}
			return
		}
		if sh.exec(line) {
			return
		}
	}
}

// shell executes workspace commands against one session.
type shell struct {
	sess         *session.Session
	stdout       io.Writer
	stderr       io.Writer
	requirements []string
	runContext   func() (context.Context, context.CancelFunc)
}

// exec runs one command line and reports whether the shell should exit.
func (sh *shell) exec(line string) bool {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false
	}
	name, args := fields[0], fields[1:]
	ws := sh.sess.Workspace()

	var err error
	switch name {
	case "exit", "quit":
		return true
	case "help":
		fmt.Fprintln(sh.stdout, "commands: add rm ls cat meta require run save state exit")
	case "add":
		err = sh.add(args)
	case "rm":
		for _, n := range args {
			if !ws.Remove(n) {
				fmt.Fprintf(sh.stderr, "not staged: %s\n", n)
			}
		}
	case "ls":
		sh.list()
	case "cat":
		err = sh.cat(args)
	case "meta":
		err = sh.meta(args)
	case "require":
		sh.requirements = append(sh.requirements, args...)
		fmt.Fprintf(sh.stdout, "requirements: %s\n", strings.Join(sh.requirements, ", "))
	case "run":
		sh.run(args)
	case "save":
		err = sh.save(args)
	case "state":
		fmt.Fprintf(sh.stdout, "%s, %d file(s) staged, scripts: %s\n",
			sh.sess.State(), ws.Len(), strings.Join(ws.Scripts(), ", "))
	default:
		err = fmt.Errorf("unknown command %q (type 'help')", name)
	}
	if err != nil {
		fmt.Fprintf(sh.stderr, "Error: %v\n", err)
	}
	return false
}

func (sh *shell) add(args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: add <path>...")
	}
	before := sh.sess.Workspace().Len()
	if err := stagePaths(sh.sess.Workspace(), args); err != nil {
		return err
	}
	fmt.Fprintf(sh.stdout, "%d file(s) staged\n", sh.sess.Workspace().Len()-before)
	return nil
}

func (sh *shell) list() {
	for f := range sh.sess.Workspace().List() {
		mode := "download"
		if materialize.Previewable(f.Name) {
			mode = "preview"
		}
		fmt.Fprintf(sh.stdout, "%-8s %-8s %8d  %s\n", f.Kind, mode, f.Size(), f.Name)
	}
}

func (sh *shell) cat(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: cat <name>")
	}
	f, err := sh.sess.Workspace().Get(args[0])
	if err != nil {
		return err
	}
	sh.stdout.Write(f.Content)
	if len(f.Content) > 0 && f.Content[len(f.Content)-1] != '\n' {
		fmt.Fprintln(sh.stdout)
	}
	return nil
}

func (sh *shell) meta(args []string) error {
	var name string
	if len(args) > 0 {
		name = args[0]
	}
	f, err := sh.sess.Workspace().SelectScript(name)
	if err != nil {
		return err
	}
	meta := workspace.ParseMeta(f.Content)
	fmt.Fprintf(sh.stdout, "%s\n  user_files:    %s\n  process_files: %s\n",
		f.Name, strings.Join(meta.UserFiles, ", "), strings.Join(meta.ProcessFiles, ", "))
	if missing := sh.sess.Workspace().MissingInputs(meta); len(missing) > 0 {
		fmt.Fprintf(sh.stdout, "  missing:       %s\n", strings.Join(missing, ", "))
	}
	return nil
}

func (sh *shell) run(args []string) {
	var script string
	if len(args) > 0 {
		script = args[0]
	}

	ctx, cancel := sh.runContext()
	defer cancel()

	res := sh.sess.Run(ctx, script,
		coordinator.WithOutput(chunkPrinter(sh.stdout, sh.stderr)),
		coordinator.WithRequirements(sh.requirements...))
	if res.Rejected() {
		fmt.Fprintf(sh.stderr, "Error: %v\n", res.Error)
		return
	}
	printReport(sh.stdout, res)
	if res.Error != nil && !errorShown(res) {
		fmt.Fprintf(sh.stderr, "Error: %v\n", res.Error)
	}
}

func (sh *shell) save(args []string) error {
	if len(args) == 0 || len(args) > 2 {
		return fmt.Errorf("usage: save <name|all> [dir]")
	}
	dir := "."
	if len(args) == 2 {
		dir = args[1]
	}

	ws := sh.sess.Workspace()
	var files []workspace.StagedFile
	if args[0] == "all" {
		files = ws.Snapshot()
	} else {
		f, err := ws.Get(args[0])
		if err != nil {
			return err
		}
		files = append(files, f)
	}
	if err := saveFiles(dir, files); err != nil {
		return err
	}
	fmt.Fprintf(sh.stdout, "saved %d file(s) to %s\n", len(files), dir)
	return nil
}
