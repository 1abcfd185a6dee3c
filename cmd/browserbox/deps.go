package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/caffeineduck/browserbox/deps"
	"github.com/caffeineduck/browserbox/pypi"
	"github.com/spf13/cobra"
)

var depsCmd = &cobra.Command{
	Use:   "deps",
	Short: "Manage Python packages for scripts",
	Long: `Install and manage Python packages that scripts can import.

Packages are downloaded directly from PyPI (no pip required).
Only pure Python wheels are supported - packages with C extensions won't work.
Runs install the packages a script imports on their own; use these commands
to prepare a package directory ahead of time or to inspect it.`,
}

var depsInstallCmd = &cobra.Command{
	Use:   "install [packages...]",
	Short: "Install packages from PyPI",
	Args:  cobra.MinimumNArgs(1),
	Run:   runDepsInstall,
}

var depsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List installed packages",
	Run:   runDepsList,
}

var depsRemoveCmd = &cobra.Command{
	Use:   "remove [packages...]",
	Short: "Remove packages",
	Args:  cobra.MinimumNArgs(1),
	Run:   runDepsRemove,
}

var depsScanCmd = &cobra.Command{
	Use:   "scan [scripts...]",
	Short: "Show the packages a script would install",
	Args:  cobra.MinimumNArgs(1),
	Run:   runDepsScan,
}

var depsCacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Cache management commands",
}

var depsCacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Clear wheel download cache",
	Run:   runDepsCacheClear,
}

func init() {
	depsCmd.PersistentFlags().String("dir", "", "Package directory (default: config packages.dir)")

	depsCacheCmd.AddCommand(depsCacheClearCmd)
	depsCmd.AddCommand(depsInstallCmd, depsListCmd, depsRemoveCmd, depsScanCmd, depsCacheCmd)
	rootCmd.AddCommand(depsCmd)
}

// depsInstaller builds the package installer without loading the interpreter.
func depsInstaller(cmd *cobra.Command) *pypi.Installer {
	cfg := loadConfig(cmd)
	if dir, _ := cmd.Flags().GetString("dir"); dir != "" {
		cfg.Packages.Dir = dir
	}
	return newInstaller(cfg, newLogger(cfg))
}

func runDepsInstall(cmd *cobra.Command, args []string) {
	inst := depsInstaller(cmd)

	ctx, stop := signalContext()
	defer stop()

	if err := inst.Install(ctx, args...); err != nil {
		exitWithError(err)
	}
	for _, raw := range args {
		spec, err := pypi.ParseSpec(raw)
		if err != nil {
			continue
		}
		if pkg, ok := inst.Installed(spec.Name); ok {
			fmt.Printf("  %s %s\n", pkg.Name, pkg.Version)
		}
	}
	fmt.Println("Done.")
}

func runDepsList(cmd *cobra.Command, args []string) {
	inst := depsInstaller(cmd)

	pkgs, err := inst.List()
	if err != nil {
		exitWithError(err)
	}
	if len(pkgs) == 0 {
		fmt.Println("No packages installed.")
		return
	}

	fmt.Printf("Packages in %s:\n", inst.Dir())
	for _, p := range pkgs {
		fmt.Printf("  %-30s %s\n", p.Name, p.Version)
	}
}

func runDepsRemove(cmd *cobra.Command, args []string) {
	inst := depsInstaller(cmd)

	for _, pkg := range args {
		if err := inst.Remove(pkg); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
			continue
		}
		fmt.Printf("Removed %s\n", pkg)
	}
}

func runDepsScan(cmd *cobra.Command, args []string) {
	local := make(map[string]bool)
	for _, p := range args {
		local[strings.TrimSuffix(filepath.Base(p), ".py")] = true
	}

	for _, p := range args {
		src, err := os.ReadFile(p)
		if err != nil {
			exitWithError(err)
		}
		modules := deps.Scan(string(src))
		reqs := deps.Requirements(modules, func(m string) bool { return local[m] })

		fmt.Printf("%s\n", p)
		fmt.Printf("  imports:  %s\n", joinOrNone(modules))
		fmt.Printf("  installs: %s\n", joinOrNone(reqs))
	}
}

func runDepsCacheClear(cmd *cobra.Command, args []string) {
	inst := depsInstaller(cmd)

	if err := inst.ClearCache(); err != nil {
		exitWithError(fmt.Errorf("clear cache: %w", err))
	}
	fmt.Println("Cache cleared.")
}

func joinOrNone(items []string) string {
	if len(items) == 0 {
		return "(none)"
	}
	return strings.Join(items, ", ")
}
