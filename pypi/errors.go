package pypi

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidName    = errors.New("invalid package name")
	ErrNotAllowed     = errors.New("package not allowed")
	ErrBlocked        = errors.New("package not supported in WASM")
	ErrNotFound       = errors.New("package not found")
	ErrNoWheel        = errors.New("no compatible wheel found (pure Python wheel required)")
	ErrNativeCode     = errors.New("package contains native extensions")
	ErrHostNotAllowed = errors.New("host not allowed")
	ErrTooLarge       = errors.New("response exceeds max size")
)

// BlockedError reports a package that is known not to work in the sandbox.
type BlockedError struct {
	Package string
	Reason  string
}

func (e *BlockedError) Error() string {
	return fmt.Sprintf("%s is not supported in WASM (%s)", e.Package, e.Reason)
}

func (e *BlockedError) Is(target error) bool {
	return target == ErrBlocked
}

// blockedPackages won't work in WASM: they need C extensions or sockets.
var blockedPackages = map[string]string{
	"numpy":         "requires C extensions",
	"pandas":        "requires C extensions (numpy)",
	"pyarrow":       "requires C extensions",
	"scipy":         "requires C extensions",
	"tensorflow":    "requires C extensions",
	"torch":         "requires C extensions",
	"scikit-learn":  "requires C extensions",
	"matplotlib":    "requires C extensions",
	"pillow":        "requires C extensions",
	"opencv-python": "requires C extensions",
	"psycopg2":      "requires C extensions",
	"mysqlclient":   "requires C extensions",
	"cryptography":  "requires C extensions",
	"bcrypt":        "requires C extensions",
	"lxml":          "requires C extensions",
	"grpcio":        "requires C extensions",
	"requests":      "uses sockets",
	"httpx":         "uses sockets",
	"urllib3":       "uses sockets",
	"aiohttp":       "uses async sockets",
	"flask":         "requires sockets (web framework not supported)",
	"django":        "requires sockets (web framework not supported)",
	"fastapi":       "requires sockets (web framework not supported)",
	"uvicorn":       "requires sockets (ASGI server not supported)",
	"gunicorn":      "requires sockets (WSGI server not supported)",
}

// Blocked returns the reason name cannot be installed, if any.
func Blocked(name string) (string, bool) {
	reason, ok := blockedPackages[Normalize(name)]
	return reason, ok
}
