package main

import (
	"fmt"
	"os"

	"github.com/caffeineduck/browserbox/internal/config"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "browserbox [files...]",
	Short: "Drop files, run a Python script on them, collect the results",
	Long: `browserbox - a local sandbox for data scripts.

Files given on the command line are staged into a workspace. The Python
script among them runs inside a WebAssembly interpreter, sees the staged
files in its working directory, and any file it writes comes back into the
workspace as a result. Packages the script imports are fetched from PyPI
(pure Python wheels only).

Running without a subcommand is the same as 'browserbox run'.`,
	Args: cobra.ArbitraryArgs,
	Run:  runRun, // Default to run command behavior
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	addConfigFlags(rootCmd)
	addRunFlags(rootCmd)
}

// addConfigFlags registers the flags loadConfig layers over the config file.
func addConfigFlags(cmd *cobra.Command) {
	flags := cmd.PersistentFlags()
	flags.String("config", "", "Config file (default: $BROWSERBOX_CONFIG or ./browserbox.yaml)")
	flags.String("python", "", "Path to the Python WASI module")
	flags.String("log-level", "", "Log level: debug, info, warn, error")
	flags.String("log-format", "", "Log format: text, json")
	flags.Bool("no-cache", false, "Disable compilation cache")
	flags.Bool("no-history", false, "Do not record runs in the history log")
}

// loadConfig layers explicitly set flags over the loaded configuration.
func loadConfig(cmd *cobra.Command) config.Config {
	flags := cmd.Flags()
	path, _ := flags.GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		exitWithError(err)
	}

	if flags.Changed("python") {
		cfg.Runtime.WasmPath, _ = flags.GetString("python")
	}
	if flags.Changed("log-level") {
		cfg.Log.Level, _ = flags.GetString("log-level")
	}
	if flags.Changed("log-format") {
		cfg.Log.Format, _ = flags.GetString("log-format")
	}
	if noCache, _ := flags.GetBool("no-cache"); noCache {
		cfg.Runtime.DiskCache = false
	}
	if noHistory, _ := flags.GetBool("no-history"); noHistory {
		cfg.History.Enabled = false
	}
	if flags.Lookup("timeout") != nil && flags.Changed("timeout") {
		cfg.Runtime.Timeout, _ = flags.GetDuration("timeout")
	}
	if flags.Lookup("no-install") != nil {
		if noInstall, _ := flags.GetBool("no-install"); noInstall {
			cfg.Packages.Install = false
		}
	}
	if flags.Lookup("mount") != nil {
		specs, _ := flags.GetStringSlice("mount")
		for _, spec := range specs {
			m, err := parseMount(spec)
			if err != nil {
				exitWithError(err)
			}
			cfg.Runtime.Mounts = append(cfg.Runtime.Mounts, m)
		}
	}

	if err := cfg.Validate(); err != nil {
		exitWithError(err)
	}
	return *cfg
}

func exitWithError(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}
