package deps

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestScan(t *testing.T) {
	tests := []struct {
		name   string
		script string
		want   []string
	}{
		{"aliased and plain", "import numpy as np\nimport pandas", []string{"numpy", "pandas"}},
		{"no imports", "x = 1", []string{}},
		{"broken tail", "import os  # comment\n<<<broken", []string{"os"}},
		{"empty", "", []string{}},
		{"from import", "from collections import OrderedDict\nfrom matplotlib.pyplot import plot", []string{"collections", "matplotlib"}},
		{"dotted", "import os.path\nimport xml.etree.ElementTree as ET", []string{"os", "xml"}},
		{"comma list", "import json, csv as c,  requests", []string{"csv", "json", "requests"}},
		{"semicolons", "import a; import b\nx = 1; from c import d", []string{"a", "b", "c"}},
		{"relative skipped", "from . import sibling\nfrom .pkg import thing\nfrom ..up import x", []string{}},
		{"indented skipped", "def f():\n    import lazy\nif True:\n\timport cond", []string{}},
		{"duplicates", "import a\nimport a\nfrom a import b", []string{"a"}},
		{"comment line", "# import fake\nimport real", []string{"real"}},
		{
			"docstring",
			"\"\"\"Module doc.\n\nimport notreal\n\"\"\"\nimport real\n",
			[]string{"real"},
		},
		{
			"single quoted triple",
			"x = '''\nimport notreal\n'''\nimport real",
			[]string{"real"},
		},
		{"string literal with semicolon", "s = \"a; import fake\"\nimport real", []string{"real"}},
		{"crlf", "import a\r\nimport b\r\n", []string{"a", "b"}},
		{"garbage module names", "import 3d\nfrom - import x\nimport", []string{}},
		{"from without import keyword", "from x", []string{}},
		{"syntax error elsewhere", "import yaml\ndef broken(:\n  pass\nimport bs4", []string{"bs4", "yaml"}},
		{"identifier prefix not keyword", "imports = 1\nfromage = 2", []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Scan(tt.script)
			if got == nil {
				t.Fatal("Scan returned nil slice")
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Scan(%q) (-want +got):\n%s", tt.script, diff)
			}
		})
	}
}

func TestRequirements(t *testing.T) {
	mods := []string{"os", "yaml", "helper", "bs4", "PIL", "numpy", "json"}
	local := func(m string) bool { return m == "helper" }

	got := Requirements(mods, local)
	want := []string{"pyyaml", "beautifulsoup4", "pillow", "numpy"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}
}

func TestDistribution(t *testing.T) {
	tests := map[string]string{
		"sklearn":  "scikit-learn",
		"yaml":     "pyyaml",
		"Requests": "requests",
		"tabulate": "tabulate",
	}
	for mod, want := range tests {
		if got := Distribution(mod); got != want {
			t.Errorf("Distribution(%q) = %q, want %q", mod, got, want)
		}
	}
}

func TestIsStdlib(t *testing.T) {
	for _, m := range []string{"os", "sys", "json", "__future__", "zoneinfo"} {
		if !IsStdlib(m) {
			t.Errorf("%s should be stdlib", m)
		}
	}
	for _, m := range []string{"numpy", "pandas", "requests"} {
		if IsStdlib(m) {
			t.Errorf("%s should not be stdlib", m)
		}
	}
}
