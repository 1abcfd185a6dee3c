package session

import "github.com/caffeineduck/browserbox/executor"

// ExecutorRuntimes returns a factory that gives every session its own
// executor session, all sharing exec's compiled interpreter.
func ExecutorRuntimes(exec *executor.Executor, lang executor.Language, opts ...executor.SessionOption) RuntimeFactory {
	return func(string) (Runtime, error) {
		return exec.NewSession(lang, opts...)
	}
}

var _ Runtime = (*executor.Session)(nil)
