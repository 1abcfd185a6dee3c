package materialize

import (
	"testing"

	"github.com/caffeineduck/browserbox/workspace"
	"github.com/google/go-cmp/cmp"
)

func files(names ...string) []workspace.StagedFile {
	out := make([]workspace.StagedFile, len(names))
	for i, n := range names {
		out[i] = workspace.StagedFile{Name: n, Content: []byte(n)}
	}
	return out
}

func TestApplyClassifies(t *testing.T) {
	want := Report{
		Previewable:  []string{"a.csv", "c.json"},
		DownloadOnly: []string{"b.bin"},
	}

	for i := 0; i < 3; i++ {
		ws := workspace.New()
		got := Apply(ws, files("a.csv", "b.bin", "c.json"))
		if diff := cmp.Diff(want, got); diff != "" {
			t.Fatalf("call %d (-want +got):\n%s", i, diff)
		}
	}
}

func TestApplyOverwritesExisting(t *testing.T) {
	ws := workspace.New()
	ws.Add("input.csv", []byte("in"))
	ws.Add("result.json", []byte("old"))

	Apply(ws, []workspace.StagedFile{
		{Name: "result.json", Content: []byte("new")},
		{Name: "plot.png", Content: []byte("png")},
	})

	if diff := cmp.Diff([]string{"input.csv", "result.json", "plot.png"}, ws.Names()); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}
	f, _ := ws.Get("result.json")
	if string(f.Content) != "new" {
		t.Errorf("expected overwritten content, got %q", f.Content)
	}
}

func TestApplySkipsInvalidNames(t *testing.T) {
	ws := workspace.New()
	r := Apply(ws, files("../escape.csv", "ok.html"))
	if r.Len() != 1 || ws.Len() != 1 {
		t.Errorf("expected only ok.html, report=%+v len=%d", r, ws.Len())
	}
}

func TestPreviewableSet(t *testing.T) {
	for _, name := range []string{"x.html", "x.csv", "x.parquet", "x.json"} {
		if !Previewable(name) {
			t.Errorf("%s should be previewable", name)
		}
	}
	for _, name := range []string{"x.png", "x.txt", "x.htm", "x"} {
		if Previewable(name) {
			t.Errorf("%s should be download-only", name)
		}
	}
}

func TestContentType(t *testing.T) {
	if got := ContentType(workspace.KindOther); got != "application/octet-stream" {
		t.Errorf("unexpected content type %q", got)
	}
	if got := ContentType(workspace.KindCSV); got != "text/csv; charset=utf-8" {
		t.Errorf("unexpected content type %q", got)
	}
}
