package pypi

import (
	"regexp"
	"strings"
)

var (
	nameRe      = regexp.MustCompile(`^([A-Za-z0-9]|[A-Za-z0-9][A-Za-z0-9._-]*[A-Za-z0-9])$`)
	separatorRe = regexp.MustCompile(`[-_.]+`)
)

// Spec is a parsed requirement such as "requests[socks]==2.32.0".
type Spec struct {
	Name    string
	Extras  []string
	Version string // exact pin from "==", empty for latest
}

// ParseSpec parses a requirement. Version ranges other than an exact "=="
// pin resolve to the latest release.
func ParseSpec(spec string) (Spec, error) {
	s := strings.TrimSpace(spec)
	if i := strings.IndexByte(s, ';'); i >= 0 {
		s = strings.TrimSpace(s[:i])
	}

	var out Spec
	rest := s
	if i := strings.IndexAny(s, "[<>=!~ "); i >= 0 {
		out.Name, rest = s[:i], s[i:]
	} else {
		out.Name, rest = s, ""
	}

	if !nameRe.MatchString(out.Name) {
		return Spec{}, ErrInvalidName
	}

	rest = strings.TrimSpace(rest)
	if strings.HasPrefix(rest, "[") {
		end := strings.IndexByte(rest, ']')
		if end < 0 {
			return Spec{}, ErrInvalidName
		}
		for _, e := range strings.Split(rest[1:end], ",") {
			if e = strings.TrimSpace(e); e != "" {
				out.Extras = append(out.Extras, e)
			}
		}
		rest = strings.TrimSpace(rest[end+1:])
	}

	if rest != "" && !strings.ContainsAny(rest[:1], "<>=!~") {
		return Spec{}, ErrInvalidName
	}
	if v, ok := strings.CutPrefix(rest, "=="); ok {
		v = strings.TrimSpace(v)
		if strings.ContainsAny(v, ",;|&$`*") || v == "" {
			return Spec{}, ErrInvalidName
		}
		out.Version = v
	}
	return out, nil
}

// Normalize returns the canonical form of a distribution name: lowercase
// with runs of "-", "_" and "." collapsed to "-".
func Normalize(name string) string {
	return separatorRe.ReplaceAllString(strings.ToLower(name), "-")
}

// ValidName reports whether name is a well-formed distribution name.
func ValidName(name string) bool {
	return nameRe.MatchString(name)
}
