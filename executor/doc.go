// Package executor runs scripts inside WebAssembly interpreters.
//
// # Overview
//
// An [Executor] owns the wazero runtime and caches compiled interpreter
// modules. A [Session] pairs an interpreter with a private working
// filesystem: files written with [Session.WriteFile] are visible to the
// script at the same path under "/", and files the script writes can be
// read back with [Session.ReadFile] and [Session.ListFiles].
//
//	exec, err := executor.New(executor.WithDiskCache())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer exec.Close()
//
//	sess, err := exec.NewSession(lang)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer sess.Close()
//
//	sess.WriteFile("main.py", []byte(`open("out.txt", "w").write("hi")`))
//	code, err := sess.Run(ctx, "main.py", os.Stdout, os.Stderr)
//
// Every Run instantiates a fresh module, so interpreter state does not
// leak between runs; only the filesystem persists.
//
// # Capabilities
//
// Scripts see only the session root, the package directory (read-only, at
// [PackagesPath]) and any extra mounts. There is no network access.
//
//	sess, _ := exec.NewSession(lang,
//	    executor.WithInstaller(installer),
//	    executor.WithMount("/data", "./input", true),
//	)
//
// # Language Interface
//
// To run another interpreter, implement the [Language] interface.
// See [github.com/caffeineduck/browserbox/language/python] for an example.
package executor
