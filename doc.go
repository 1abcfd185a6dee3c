// Package browserbox runs user Python scripts against dropped-in data files
// inside a WebAssembly sandbox.
//
// # Overview
//
// Files are staged in a [workspace.Workspace]. A [coordinator.Coordinator]
// copies them into a sandboxed interpreter, installs the packages the script
// declares or imports, runs it with live output, then copies every new or
// changed file back into the workspace. Nothing but the staged files and the
// package directory is visible to the script.
//
// # Basic Usage
//
//	exec, _ := executor.New(executor.WithDiskCache())
//	defer exec.Close()
//
//	lang, _ := python.Load(python.DefaultPath())
//	rt, _ := exec.NewSession(lang, executor.WithInstaller(pypi.New(pypi.Config{})))
//
//	sess := session.New(rt, session.WithInferredInstall(true))
//	defer sess.Close()
//
//	sess.Workspace().Add("sales.csv", data)
//	sess.Workspace().Add("analysis.py", script)
//	res := sess.Run(ctx, "", coordinator.WithOutput(func(c coordinator.Chunk) {
//	    fmt.Print(c.Text)
//	}))
//	for _, f := range res.Produced {
//	    fmt.Println(f.Name, f.Kind)
//	}
//
// See the [session], [coordinator], [workspace], [deps] and [materialize]
// packages for detailed API documentation, and cmd/browserbox for the CLI
// and HTTP server.
package browserbox
