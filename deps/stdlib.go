package deps

import "strings"

// IsStdlib reports whether module is part of the Python standard library and
// therefore never needs installing.
func IsStdlib(module string) bool {
	_, ok := stdlib[module]
	return ok
}

// Distribution maps an import name to the PyPI distribution that provides
// it. Names without a known mapping are returned lowercased.
func Distribution(module string) string {
	if dist, ok := distributions[module]; ok {
		return dist
	}
	return strings.ToLower(module)
}

// Requirements filters scanned module names down to the distributions that
// must be installed: stdlib modules and names in local are dropped.
func Requirements(modules []string, local func(string) bool) []string {
	var out []string
	seen := make(map[string]bool)
	for _, mod := range modules {
		if IsStdlib(mod) || (local != nil && local(mod)) {
			continue
		}
		dist := Distribution(mod)
		if seen[dist] {
			continue
		}
		seen[dist] = true
		out = append(out, dist)
	}
	return out
}

var distributions = map[string]string{
	"PIL":      "pillow",
	"bs4":      "beautifulsoup4",
	"cv2":      "opencv-python",
	"dateutil": "python-dateutil",
	"docx":     "python-docx",
	"dotenv":   "python-dotenv",
	"git":      "gitpython",
	"jwt":      "pyjwt",
	"magic":    "python-magic",
	"pptx":     "python-pptx",
	"serial":   "pyserial",
	"skimage":  "scikit-image",
	"sklearn":  "scikit-learn",
	"usb":      "pyusb",
	"yaml":     "pyyaml",
	"attr":     "attrs",
	"toml":     "toml",
	"tabulate": "tabulate",
}

var stdlib = setOf(
	"__future__", "_thread", "abc", "aifc", "argparse", "array", "ast",
	"asynchat", "asyncio", "asyncore", "atexit", "audioop", "base64", "bdb",
	"binascii", "bisect", "builtins", "bz2", "cProfile", "calendar", "cgi",
	"cgitb", "chunk", "cmath", "cmd", "code", "codecs", "codeop",
	"collections", "colorsys", "compileall", "concurrent", "configparser",
	"contextlib", "contextvars", "copy", "copyreg", "crypt", "csv", "ctypes",
	"curses", "dataclasses", "datetime", "dbm", "decimal", "difflib", "dis",
	"distutils", "doctest", "email", "encodings", "enum", "errno",
	"faulthandler", "fcntl", "filecmp", "fileinput", "fnmatch", "fractions",
	"ftplib", "functools", "gc", "getopt", "getpass", "gettext", "glob",
	"graphlib", "grp", "gzip", "hashlib", "heapq", "hmac", "html", "http",
	"idlelib", "imaplib", "imghdr", "imp", "importlib", "inspect", "io",
	"ipaddress", "itertools", "json", "keyword", "lib2to3", "linecache",
	"locale", "logging", "lzma", "mailbox", "mailcap", "marshal", "math",
	"mimetypes", "mmap", "modulefinder", "msvcrt", "multiprocessing", "netrc",
	"nis", "nntplib", "ntpath", "numbers", "operator", "optparse", "os",
	"ossaudiodev", "pathlib", "pdb", "pickle", "pickletools", "pipes",
	"pkgutil", "platform", "plistlib", "poplib", "posix", "posixpath",
	"pprint", "profile", "pstats", "pty", "pwd", "py_compile", "pyclbr",
	"pydoc", "queue", "quopri", "random", "re", "readline", "reprlib",
	"resource", "rlcompleter", "runpy", "sched", "secrets", "select",
	"selectors", "shelve", "shlex", "shutil", "signal", "site", "smtpd",
	"smtplib", "sndhdr", "socket", "socketserver", "spwd", "sqlite3", "ssl",
	"stat", "statistics", "string", "stringprep", "struct", "subprocess",
	"sunau", "symtable", "sys", "sysconfig", "syslog", "tabnanny", "tarfile",
	"telnetlib", "tempfile", "termios", "test", "textwrap", "threading",
	"time", "timeit", "tkinter", "token", "tokenize", "tomllib", "trace",
	"traceback", "tracemalloc", "tty", "turtle", "turtledemo", "types",
	"typing", "unicodedata", "unittest", "urllib", "uu", "uuid", "venv",
	"warnings", "wave", "weakref", "webbrowser", "winreg", "winsound",
	"wsgiref", "xdrlib", "xml", "xmlrpc", "zipapp", "zipfile", "zipimport",
	"zlib", "zoneinfo",
)

func setOf(names ...string) map[string]struct{} {
	m := make(map[string]struct{}, len(names))
	for _, n := range names {
		m[n] = struct{}{}
	}
	return m
}
