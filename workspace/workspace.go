// Package workspace holds the files a user has staged for a session.
//
// A Workspace is an ordered set of uniquely named files. Adding a file whose
// name already exists replaces its content in place; new names are appended.
// Every mutation is reported synchronously to subscribers.
package workspace

import (
	"bytes"
	"iter"
	"path"
	"slices"
	"strings"
	"sync"
)

// StagedFile is a file held by a Workspace. Content must be treated as
// read-only once staged.
type StagedFile struct {
	Name    string
	Content []byte
	Kind    Kind
}

// Size returns the content length in bytes.
func (f StagedFile) Size() int {
	return len(f.Content)
}

// Op identifies the mutation reported in an Event.
type Op int

const (
	OpAdd Op = iota
	OpUpdate
	OpRemove
)

func (o Op) String() string {
	switch o {
	case OpAdd:
		return "add"
	case OpUpdate:
		return "update"
	case OpRemove:
		return "remove"
	default:
		return "unknown"
	}
}

// Event describes one workspace mutation.
type Event struct {
	Op   Op
	File StagedFile
}

// Workspace is safe for concurrent use. Subscribers see events in the
// order mutations were applied.
type Workspace struct {
	// writeMu serializes each mutation together with its notification.
	writeMu sync.Mutex

	mu    sync.RWMutex
	files []StagedFile
	index map[string]int

	subMu  sync.Mutex
	subs   map[int]func(Event)
	nextID int
}

// New returns an empty Workspace.
func New() *Workspace {
	return &Workspace{
		index: make(map[string]int),
		subs:  make(map[int]func(Event)),
	}
}

// ValidName reports whether name can be staged: a non-empty relative
// slash-separated path without ".." segments.
func ValidName(name string) bool {
	if name == "" || strings.HasPrefix(name, "/") || strings.Contains(name, "\\") {
		return false
	}
	if path.Clean(name) != name {
		return false
	}
	for _, seg := range strings.Split(name, "/") {
		if seg == ".." || seg == "." || seg == "" {
			return false
		}
	}
	return true
}

// Add stages a file, overwriting any file with the same name while keeping
// its position.
func (w *Workspace) Add(name string, content []byte) (StagedFile, error) {
	if !ValidName(name) {
		return StagedFile{}, &invalidNameError{name: name}
	}

	f := StagedFile{
		Name:    name,
		Content: bytes.Clone(content),
		Kind:    Classify(name),
	}
	if f.Content == nil {
		f.Content = []byte{}
	}

	w.writeMu.Lock()
	defer w.writeMu.Unlock()

	w.mu.Lock()
	op := OpAdd
	if i, ok := w.index[name]; ok {
		w.files[i] = f
		op = OpUpdate
	} else {
		w.index[name] = len(w.files)
		w.files = append(w.files, f)
	}
	w.mu.Unlock()

	w.notify(Event{Op: op, File: f})
	return f, nil
}

// Remove deletes the named file. It reports whether a file was removed.
func (w *Workspace) Remove(name string) bool {
	w.writeMu.Lock()
	defer w.writeMu.Unlock()

	w.mu.Lock()
	i, ok := w.index[name]
	if !ok {
		w.mu.Unlock()
		return false
	}
	f := w.files[i]
	w.files = append(w.files[:i], w.files[i+1:]...)
	delete(w.index, name)
	for j := i; j < len(w.files); j++ {
		w.index[w.files[j].Name] = j
	}
	w.mu.Unlock()

	w.notify(Event{Op: OpRemove, File: f})
	return true
}

// Get returns the named file or a *NotFoundError.
func (w *Workspace) Get(name string) (StagedFile, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()

	i, ok := w.index[name]
	if !ok {
		return StagedFile{}, &NotFoundError{Name: name}
	}
	return w.files[i], nil
}

// Has reports whether a file with the given name is staged.
func (w *Workspace) Has(name string) bool {
	w.mu.RLock()
	_, ok := w.index[name]
	w.mu.RUnlock()
	return ok
}

// List returns the staged files in insertion order. The sequence is lazy and
// may be iterated any number of times; each iteration sees the workspace as
// it was when that iteration started.
func (w *Workspace) List() iter.Seq[StagedFile] {
	return func(yield func(StagedFile) bool) {
		for _, f := range w.Snapshot() {
			if !yield(f) {
				return
			}
		}
	}
}

// Snapshot returns a copy of the staged files in insertion order.
func (w *Workspace) Snapshot() []StagedFile {
	w.mu.RLock()
	defer w.mu.RUnlock()

	out := make([]StagedFile, len(w.files))
	copy(out, w.files)
	return out
}

// Names returns the staged file names in insertion order.
func (w *Workspace) Names() []string {
	w.mu.RLock()
	defer w.mu.RUnlock()

	names := make([]string, len(w.files))
	for i, f := range w.files {
		names[i] = f.Name
	}
	return names
}

// Len returns the number of staged files.
func (w *Workspace) Len() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return len(w.files)
}

// Subscribe registers fn to be called after every mutation. fn may read the
// workspace but must not mutate it. The returned function removes the
// subscription.
func (w *Workspace) Subscribe(fn func(Event)) (unsubscribe func()) {
	w.subMu.Lock()
	id := w.nextID
	w.nextID++
	w.subs[id] = fn
	w.subMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			w.subMu.Lock()
			delete(w.subs, id)
			w.subMu.Unlock()
		})
	}
}

func (w *Workspace) notify(ev Event) {
	w.subMu.Lock()
	ids := make([]int, 0, len(w.subs))
	for id := range w.subs {
		ids = append(ids, id)
	}
	fns := make([]func(Event), 0, len(ids))
	slices.Sort(ids)
	for _, id := range ids {
		fns = append(fns, w.subs[id])
	}
	w.subMu.Unlock()

	for _, fn := range fns {
		fn(ev)
	}
}

type invalidNameError struct {
	name string
}

func (e *invalidNameError) Error() string {
	return "invalid file name: " + e.name
}

func (e *invalidNameError) Is(target error) bool {
	return target == ErrInvalidName
}
