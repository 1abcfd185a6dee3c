package main

import (
	"errors"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/caffeineduck/browserbox/history"
	"github.com/spf13/cobra"
)

var historyCmd = &cobra.Command{
	Use:   "history [run-id]",
	Short: "Show past runs",
	Long: `List recent runs from the history log, or show one run with its output.

Examples:
  browserbox history
  browserbox history --status error --limit 5
  browserbox history 3f2a...`,
	Args: cobra.MaximumNArgs(1),
	Run:  runHistory,
}

var historyPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete old runs",
	Run:   runHistoryPrune,
}

func init() {
	historyCmd.Flags().String("status", "", "Only runs with this status (ok, error)")
	historyCmd.Flags().String("session", "", "Only runs from this session")
	historyCmd.Flags().IntP("limit", "n", 20, "Maximum runs to list")
	historyPruneCmd.Flags().Duration("older-than", 30*24*time.Hour, "Delete runs older than this")
	historyCmd.AddCommand(historyPruneCmd)
	rootCmd.AddCommand(historyCmd)
}

func openHistory(cmd *cobra.Command) *history.Store {
	cfg := loadConfig(cmd)
	if !cfg.History.Enabled {
		exitWithError(errors.New("run history is disabled"))
	}
	st, err := history.Open(cfg.History.Path)
	if err != nil {
		exitWithError(err)
	}
	return st
}

func runHistory(cmd *cobra.Command, args []string) {
	st := openHistory(cmd)
	defer st.Close()

	if len(args) == 1 {
		run, err := st.Get(cmd.Context(), args[0])
		if err != nil {
			exitWithError(err)
		}
		printRun(run)
		return
	}

	status, _ := cmd.Flags().GetString("status")
	sessionID, _ := cmd.Flags().GetString("session")
	limit, _ := cmd.Flags().GetInt("limit")

	runs, err := st.List(cmd.Context(), history.Filter{Session: sessionID, Status: status, Limit: limit})
	if err != nil {
		exitWithError(err)
	}
	if len(runs) == 0 {
		fmt.Println("No runs recorded.")
		return
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSCRIPT\tSTATUS\tEXIT\tDURATION\tSTARTED\tFILES")
	for _, r := range runs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\t%s\t%d\n",
			r.ID, r.Script, r.Status, r.ExitCode,
			r.Duration.Round(time.Millisecond), r.StartedAt.Format(time.DateTime), len(r.Produced))
	}
	tw.Flush()
}

func printRun(r *history.Run) {
	fmt.Printf("Run:      %s\n", r.ID)
	fmt.Printf("Session:  %s\n", r.Session)
	fmt.Printf("Script:   %s\n", r.Script)
	fmt.Printf("Status:   %s (exit %d)\n", r.Status, r.ExitCode)
	fmt.Printf("Started:  %s\n", r.StartedAt.Format(time.DateTime))
	fmt.Printf("Duration: %s\n", r.Duration.Round(time.Millisecond))
	if r.Error != "" {
		fmt.Printf("Error:    %s\n", r.Error)
	}
	for _, w := range r.Warnings {
		fmt.Printf("Warning:  %s\n", w)
	}
	for _, p := range r.Produced {
		fmt.Printf("Produced: %s\n", p)
	}
	if r.Stdout != "" {
		fmt.Printf("\n--- stdout ---\n%s", r.Stdout)
	}
	if r.Stderr != "" {
		fmt.Printf("\n--- stderr ---\n%s", r.Stderr)
	}
}

func runHistoryPrune(cmd *cobra.Command, args []string) {
	olderThan, _ := cmd.Flags().GetDuration("older-than")
	st := openHistory(cmd)
	defer st.Close()

	n, err := st.Prune(cmd.Context(), olderThan)
	if err != nil {
		exitWithError(err)
	}
	fmt.Printf("Deleted %d run(s).\n", n)
}
