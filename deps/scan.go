// Package deps finds the packages a Python script needs before it runs.
//
// Scanning is lexical, not a parse: it looks for top-level import statements
// line by line, so a syntax error anywhere else in the script never stops it.
// The result is a best-effort preload list; anything it misses surfaces later
// as an import error from the interpreter itself.
package deps

import (
	"regexp"
	"sort"
	"strings"
)

var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Scan returns the sorted, de-duplicated top-level module names imported by
// script. Handled forms:
//
//	import X
//	import X as Y
//	import X.sub, Y
//	from X import ...
//
// Only statements starting in column 0 count; indented imports are
// conditional or lazy and are left to the runtime. Relative imports are
// skipped. The returned slice is never nil.
func Scan(script string) []string {
	seen := make(map[string]struct{})
	var lx lexer

	for _, line := range strings.Split(script, "\n") {
		line = strings.TrimSuffix(line, "\r")
		continued := lx.inString()
		stmts := lx.statements(line)

		if continued || line == "" || line[0] == ' ' || line[0] == '\t' {
			continue
		}
		for _, stmt := range stmts {
			for _, mod := range importedModules(stmt) {
				seen[mod] = struct{}{}
			}
		}
	}

	out := make([]string, 0, len(seen))
	for mod := range seen {
		out = append(out, mod)
	}
	sort.Strings(out)
	return out
}

// importedModules returns the top-level module names imported by a single
// statement, or nil if it is not an import.
func importedModules(stmt string) []string {
	fields := strings.Fields(stmt)
	if len(fields) < 2 {
		return nil
	}

	switch fields[0] {
	case "import":
		rest := strings.TrimSpace(stmt)[len("import"):]
		var mods []string
		for _, part := range strings.Split(rest, ",") {
			pf := strings.Fields(part)
			if len(pf) == 0 {
				continue
			}
			if mod := topLevel(pf[0]); mod != "" {
				mods = append(mods, mod)
			}
		}
		return mods

	case "from":
		if len(fields) < 3 || fields[2] != "import" {
			return nil
		}
		if strings.HasPrefix(fields[1], ".") {
			return nil
		}
		if mod := topLevel(fields[1]); mod != "" {
			return []string{mod}
		}
	}
	return nil
}

func topLevel(dotted string) string {
	name, _, _ := strings.Cut(dotted, ".")
	if !identRe.MatchString(name) {
		return ""
	}
	return name
}

// lexer tracks string state across lines so imports inside docstrings and
// string literals are not picked up.
type lexer struct {
	triple string // open triple-quote delimiter, empty outside one
}

func (l *lexer) inString() bool {
	return l.triple != ""
}

// statements strips comments and string contents from line and splits it on
// semicolons.
func (l *lexer) statements(line string) []string {
	var stmts []string
	var cur strings.Builder

	for i := 0; i < len(line); {
		if l.triple != "" {
			if strings.HasPrefix(line[i:], l.triple) {
				i += 3
				l.triple = ""
				continue
			}
			if line[i] == '\\' {
				i++
			}
			i++
			continue
		}

		c := line[i]
		switch c {
		case '#':
			i = len(line)
		case '"', '\'':
			if q := strings.Repeat(string(c), 3); strings.HasPrefix(line[i:], q) {
				l.triple = q
				cur.WriteByte(' ')
				i += 3
				continue
			}
			j := i + 1
			for j < len(line) && line[j] != c {
				if line[j] == '\\' {
					j++
				}
				j++
			}
			cur.WriteByte(' ')
			i = j + 1
		case ';':
			stmts = append(stmts, cur.String())
			cur.Reset()
			i++
		default:
			cur.WriteByte(c)
			i++
		}
	}
	return append(stmts, cur.String())
}
