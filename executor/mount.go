package executor

import (
	"errors"
	"path/filepath"
	"strings"
)

var (
	// ErrPathEscape is returned for paths that resolve outside the session root.
	ErrPathEscape = errors.New("permission denied: path escape attempt")
	// ErrReservedPath is returned for paths under a guest mount point.
	ErrReservedPath = errors.New("permission denied: path is a mount point")
)

// Mount represents a host directory exposed to scripts at a guest path.
type Mount struct {
	GuestPath string // Path as seen by scripts (e.g., "/data")
	HostPath  string // Actual path on host filesystem
	ReadOnly  bool
}

func normalizeMounts(mounts []Mount) []Mount {
	normalized := make([]Mount, 0, len(mounts))
	for _, m := range mounts {
		gp := "/" + strings.Trim(m.GuestPath, "/")
		if gp == "/" {
			continue
		}
		hp, err := filepath.Abs(m.HostPath)
		if err != nil {
			continue
		}
		normalized = append(normalized, Mount{GuestPath: gp, HostPath: hp, ReadOnly: m.ReadOnly})
	}
	return normalized
}

// resolve maps a session-relative path onto the host root. Leading slashes
// are ignored so "/main.py" and "main.py" name the same file.
func resolve(root, name string, mounts []Mount) (string, error) {
	clean := filepath.Clean("/" + strings.TrimPrefix(filepath.ToSlash(name), "/"))
	if clean == "/" {
		return "", errors.New("invalid path: " + name)
	}

	for _, m := range mounts {
		if clean == m.GuestPath || strings.HasPrefix(clean, m.GuestPath+"/") {
			return "", ErrReservedPath
		}
	}

	hostPath := filepath.Join(root, filepath.FromSlash(clean))
	abs, err := filepath.Abs(hostPath)
	if err != nil {
		return "", errors.New("invalid path")
	}
	if !strings.HasPrefix(abs, root+string(filepath.Separator)) {
		return "", ErrPathEscape
	}
	return abs, nil
}
