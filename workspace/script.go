package workspace

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
)

// ScriptMeta is the file contract a script declares in magic comments:
//
//	# user_files: sales.csv, regions.json
//	# process_files: report.html
type ScriptMeta struct {
	UserFiles    []string // inputs the user must stage before running
	ProcessFiles []string // outputs the script is expected to write
}

var (
	userFilesRe    = regexp.MustCompile(`(?im)#[ \t]*user_files:[ \t]*(.*)`)
	processFilesRe = regexp.MustCompile(`(?im)#[ \t]*process_files:[ \t]*(.*)`)
)

// ParseMeta extracts the user_files and process_files declarations from a
// script. Only the first occurrence of each is used.
func ParseMeta(script []byte) ScriptMeta {
	return ScriptMeta{
		UserFiles:    parseFileList(userFilesRe, script),
		ProcessFiles: parseFileList(processFilesRe, script),
	}
}

func parseFileList(re *regexp.Regexp, script []byte) []string {
	m := re.FindSubmatch(script)
	if m == nil {
		return nil
	}
	var files []string
	for _, f := range strings.Split(string(m[1]), ",") {
		if f = strings.TrimSpace(f); f != "" {
			files = append(files, f)
		}
	}
	return files
}

// Scripts returns the names of staged Python scripts in insertion order.
func (w *Workspace) Scripts() []string {
	var scripts []string
	for f := range w.List() {
		if IsScript(f.Name) {
			scripts = append(scripts, f.Name)
		}
	}
	return scripts
}

// SelectScript resolves the script a run should execute. A non-empty name
// must be staged. An empty name selects the only staged script; with none
// staged it fails with ErrNoScript, with several with ErrAmbiguousScript.
func (w *Workspace) SelectScript(name string) (StagedFile, error) {
	if name != "" {
		return w.Get(name)
	}

	scripts := w.Scripts()
	switch len(scripts) {
	case 0:
		return StagedFile{}, ErrNoScript
	case 1:
		return w.Get(scripts[0])
	default:
		return StagedFile{}, fmt.Errorf("%w: %s", ErrAmbiguousScript, strings.Join(scripts, ", "))
	}
}

// MissingInputs returns the declared user_files of meta that are not staged.
func (w *Workspace) MissingInputs(meta ScriptMeta) []string {
	var missing []string
	for _, name := range meta.UserFiles {
		if !w.Has(name) {
			missing = append(missing, name)
		}
	}
	return missing
}

// LoadDir stages every file in dir matching pattern (for example "*.py"),
// in name order. Files whose name is already staged are skipped. It returns
// the names that were added.
func LoadDir(w *Workspace, dir, pattern string) ([]string, error) {
	if pattern == "" {
		pattern = "*"
	}
	matches, err := filepath.Glob(filepath.Join(dir, pattern))
	if err != nil {
		return nil, fmt.Errorf("glob %s: %w", pattern, err)
	}
	sort.Strings(matches)

	var added []string
	for _, p := range matches {
		info, err := os.Stat(p)
		if err != nil || !info.Mode().IsRegular() {
			continue
		}
		name := filepath.Base(p)
		if w.Has(name) {
			continue
		}
		data, err := os.ReadFile(p)
		if err != nil {
			return added, fmt.Errorf("read %s: %w", name, err)
		}
		if _, err := w.Add(name, data); err != nil {
			return added, err
		}
		added = append(added, name)
	}
	return added, nil
}
