package workspace

import (
	"path"
	"strings"
)

// Kind is the file type of a staged file, derived from its name.
type Kind int

const (
	KindOther Kind = iota
	KindHTML
	KindCSV
	KindParquet
	KindJSON
)

var kindNames = map[Kind]string{
	KindOther:   "other",
	KindHTML:    "html",
	KindCSV:     "csv",
	KindParquet: "parquet",
	KindJSON:    "json",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "other"
}

// Previewable reports whether files of this kind can be rendered inline.
// Everything else is download-only.
func (k Kind) Previewable() bool {
	return k != KindOther
}

// MarshalText encodes the kind by name.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText decodes a kind name. Unknown names decode as KindOther.
func (k *Kind) UnmarshalText(b []byte) error {
	*k = KindOther
	for kind, name := range kindNames {
		if name == string(b) {
			*k = kind
		}
	}
	return nil
}

// Classify derives the kind from the file name extension. Content is never
// inspected, so the same name always yields the same kind.
func Classify(name string) Kind {
	switch strings.ToLower(path.Ext(name)) {
	case ".html":
		return KindHTML
	case ".csv":
		return KindCSV
	case ".parquet":
		return KindParquet
	case ".json":
		return KindJSON
	default:
		return KindOther
	}
}

// IsScript reports whether name is a Python script.
func IsScript(name string) bool {
	return strings.EqualFold(path.Ext(name), ".py")
}
