package pypi

import (
	"archive/zip"
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
)

var nativeSuffixes = []string{".so", ".pyd", ".dylib", ".dll"}

// extractWheel unpacks a wheel archive into dir. Archives carrying native
// code or entries that would land outside dir are rejected before anything
// is written.
func extractWheel(data []byte, dir string) error {
	r, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if errors.Is(err, zip.ErrInsecurePath) {
		return fmt.Errorf("unsafe path in wheel: %w", err)
	}
	if err != nil {
		return fmt.Errorf("open wheel: %w", err)
	}

	for _, f := range r.File {
		name := strings.ToLower(f.Name)
		for _, suffix := range nativeSuffixes {
			if strings.HasSuffix(name, suffix) {
				return fmt.Errorf("%w: %s", ErrNativeCode, path.Base(f.Name))
			}
		}
		if !safeEntry(f.Name) {
			return fmt.Errorf("unsafe path in wheel: %s", f.Name)
		}
	}

	for _, f := range r.File {
		dest := filepath.Join(dir, filepath.FromSlash(f.Name))

		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(dest, 0o755); err != nil {
				return err
			}
			continue
		}

		if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
			return err
		}
		if err := writeEntry(f, dest); err != nil {
			return fmt.Errorf("extract %s: %w", f.Name, err)
		}
	}
	return nil
}

func writeEntry(f *zip.File, dest string) error {
	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()

	out, err := os.Create(dest)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, rc); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

func safeEntry(name string) bool {
	if name == "" || strings.HasPrefix(name, "/") || strings.Contains(name, "\\") {
		return false
	}
	for _, seg := range strings.Split(name, "/") {
		if seg == ".." {
			return false
		}
	}
	return true
}

// parseDistInfo recognises "<name>-<version>.dist-info" directory names.
func parseDistInfo(dir string) (Package, bool) {
	base, ok := strings.CutSuffix(dir, ".dist-info")
	if !ok {
		return Package{}, false
	}
	i := strings.LastIndexByte(base, '-')
	if i <= 0 || i == len(base)-1 {
		return Package{}, false
	}
	return Package{Name: base[:i], Version: base[i+1:], distInfo: dir}, true
}

// topLevel returns the importable names a distribution installed.
func topLevel(distInfo, name string) []string {
	if data, err := os.ReadFile(filepath.Join(distInfo, "top_level.txt")); err == nil {
		var names []string
		sc := bufio.NewScanner(bytes.NewReader(data))
		for sc.Scan() {
			if l := strings.TrimSpace(sc.Text()); l != "" && safeEntry(l) {
				names = append(names, l)
			}
		}
		if len(names) > 0 {
			return names
		}
	}

	if data, err := os.ReadFile(filepath.Join(distInfo, "RECORD")); err == nil {
		seen := make(map[string]bool)
		var names []string
		sc := bufio.NewScanner(bytes.NewReader(data))
		for sc.Scan() {
			p, _, _ := strings.Cut(sc.Text(), ",")
			top, _, _ := strings.Cut(p, "/")
			top = strings.TrimSuffix(top, ".py")
			if top == "" || strings.HasSuffix(top, ".dist-info") || !safeEntry(top) || seen[top] {
				continue
			}
			seen[top] = true
			names = append(names, top)
		}
		if len(names) > 0 {
			return names
		}
	}

	return []string{strings.ReplaceAll(Normalize(name), "-", "_")}
}
