package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caffeineduck/browserbox/coordinator"
	"github.com/caffeineduck/browserbox/workspace"
)

// chunkPrinter streams run output to the terminal in arrival order.
func chunkPrinter(stdout, stderr io.Writer) func(coordinator.Chunk) {
	return func(c coordinator.Chunk) {
		if c.Stream == coordinator.StreamStdout {
			fmt.Fprint(stdout, c.Text)
			return
		}
		fmt.Fprint(stderr, c.Text)
	}
}

// printReport lists the files a run produced.
func printReport(w io.Writer, res coordinator.Result) {
	if res.Report.Len() == 0 {
		return
	}
	fmt.Fprintf(w, "\n%d file(s) produced in %s\n", res.Report.Len(), res.Duration.Round(time.Millisecond))
	for _, name := range res.Report.Previewable {
		fmt.Fprintf(w, "  preview   %s\n", name)
	}
	for _, name := range res.Report.DownloadOnly {
		fmt.Fprintf(w, "  download  %s\n", name)
	}
}

// errorShown reports whether the run's error already reached the terminal,
// either as a streamed traceback or as a system chunk.
func errorShown(res coordinator.Result) bool {
	var se *coordinator.ScriptExecutionError
	if errors.As(res.Error, &se) && se.Err == nil && se.Traceback != "" {
		return true
	}
	msg := "error: " + res.Error.Error()
	for _, c := range res.Chunks {
		if c.Stream == coordinator.StreamSystem && strings.TrimSpace(c.Text) == msg {
			return true
		}
	}
	return false
}

// exitCode maps a failed run to a process exit status.
func exitCode(res coordinator.Result) int {
	if res.ExitCode > 0 {
		return res.ExitCode
	}
	return 1
}

// saveFiles writes files under dir, creating subdirectories as needed.
func saveFiles(dir string, files []workspace.StagedFile) error {
	for _, f := range files {
		if !workspace.ValidName(f.Name) {
			continue
		}
		p := filepath.Join(dir, filepath.FromSlash(f.Name))
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			return fmt.Errorf("save %s: %w", f.Name, err)
		}
		if err := os.WriteFile(p, f.Content, 0o644); err != nil {
			return fmt.Errorf("save %s: %w", f.Name, err)
		}
	}
	return nil
}

// stagePaths adds files and the top-level files of directories to ws.
func stagePaths(ws *workspace.Workspace, paths []string) error {
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return err
		}
		if info.IsDir() {
			if _, err := workspace.LoadDir(ws, p, "*"); err != nil {
				return err
			}
			continue
		}
		data, err := os.ReadFile(p)
		if err != nil {
			return err
		}
		if _, err := ws.Add(filepath.Base(p), data); err != nil {
			return err
		}
	}
	return nil
}
