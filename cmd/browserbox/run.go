package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/caffeineduck/browserbox/coordinator"
	"github.com/spf13/cobra"
)

// inlineScript is the name code from -c or stdin is staged under.
const inlineScript = "main.py"

var runCmd = &cobra.Command{
	Use:   "run [files...]",
	Short: "Stage files and run a script once",
	Long: `Stage the given files (or every file in the given directories) and run
the Python script among them. Files the script writes are saved to --out
(default: ./output), so inputs rewritten in place never overwrite the
originals.

The script can be provided via:
  - File argument: browserbox run sales.csv analysis.py
  - Inline flag:   browserbox run sales.csv -c 'import csv; ...'
  - Stdin:         cat analysis.py | browserbox run sales.csv

With more than one script staged, pick one with --script.`,
	Args: cobra.ArbitraryArgs,
	Run:  runRun,
}

func init() {
	addRunFlags(runCmd)
	rootCmd.AddCommand(runCmd)
}

func addRunFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("code", "c", "", "Code to run, staged as "+inlineScript)
	cmd.Flags().StringP("script", "s", "", "Script to run when several are staged")
	cmd.Flags().StringP("out", "o", "output", "Directory produced files are saved to")
	cmd.Flags().Bool("no-save", false, "Do not save produced files")
	addSessionFlags(cmd)
}

func addSessionFlags(cmd *cobra.Command) {
	cmd.Flags().StringSliceP("requirement", "r", nil, "Package the script needs (repeatable)")
	cmd.Flags().Duration("timeout", 0, "Run timeout (default: none)")
	cmd.Flags().Bool("no-install", false, "Do not install packages inferred from imports")
	cmd.Flags().StringSlice("mount", nil, "Mount host directory guest:host[:ro|rw] (repeatable)")
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func runRun(cmd *cobra.Command, args []string) {
	code, _ := cmd.Flags().GetString("code")
	script, _ := cmd.Flags().GetString("script")
	outDir, _ := cmd.Flags().GetString("out")
	noSave, _ := cmd.Flags().GetBool("no-save")
	requirements, _ := cmd.Flags().GetStringSlice("requirement")

	if code == "" && len(args) == 0 {
		// Check if stdin has data (not a terminal)
		stat, _ := os.Stdin.Stat()
		if (stat.Mode() & os.ModeCharDevice) != 0 {
			cmd.Help()
			return
		}
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			exitWithError(err)
		}
		if len(data) == 0 {
			cmd.Help()
			return
		}
		code = string(data)
	}

	cfg := loadConfig(cmd)
	log := newLogger(cfg)

	st, err := openStack(cfg, log, false)
	if err != nil {
		exitWithError(err)
	}
	defer st.Close()

	sess, err := st.newSession()
	if err != nil {
		exitWithError(err)
	}
	defer sess.Close()

	ws := sess.Workspace()
	if err := stagePaths(ws, args); err != nil {
		exitWithError(err)
	}
	if code != "" {
		if _, err := ws.Add(inlineScript, []byte(code)); err != nil {
			exitWithError(err)
		}
		if script == "" {
			script = inlineScript
		}
	}

	ctx, stop := signalContext()
	defer stop()

	res := sess.Run(ctx, script,
		coordinator.WithOutput(chunkPrinter(os.Stdout, os.Stderr)),
		coordinator.WithRequirements(requirements...))

	if res.Rejected() {
		exitWithError(res.Error)
	}

	printReport(os.Stderr, res)
	if !noSave && len(res.Produced) > 0 {
		if err := saveFiles(outDir, res.Produced); err != nil {
			exitWithError(err)
		}
	}

	if res.Error != nil {
		if !errorShown(res) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", res.Error)
		}
		// Deferred closes do not run past os.Exit.
		sess.Close()
		st.Close()
		os.Exit(exitCode(res))
	}
	log.Debug("run complete", "run_id", res.ID, "duration", res.Duration.Round(time.Millisecond))
}
