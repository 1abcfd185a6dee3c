package workspace

import (
	"errors"
	"math/rand/v2"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func names(ws *Workspace) []string {
	var out []string
	for f := range ws.List() {
		out = append(out, f.Name)
	}
	return out
}

func TestAddPreservesInsertionOrder(t *testing.T) {
	ws := New()
	for _, n := range []string{"b.csv", "a.py", "c.json"} {
		if _, err := ws.Add(n, []byte(n)); err != nil {
			t.Fatalf("add %s: %v", n, err)
		}
	}

	if diff := cmp.Diff([]string{"b.csv", "a.py", "c.json"}, names(ws)); diff != "" {
		t.Errorf("order mismatch (-want +got):\n%s", diff)
	}
}

func TestAddOverwritesInPlace(t *testing.T) {
	ws := New()
	ws.Add("first.txt", []byte("1"))
	ws.Add("plot.png", []byte("old"))
	ws.Add("last.txt", []byte("3"))

	f, err := ws.Add("plot.png", []byte("new"))
	if err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	if string(f.Content) != "new" {
		t.Errorf("expected new content, got %q", f.Content)
	}

	if diff := cmp.Diff([]string{"first.txt", "plot.png", "last.txt"}, names(ws)); diff != "" {
		t.Errorf("overwrite moved or duplicated entry (-want +got):\n%s", diff)
	}

	got, err := ws.Get("plot.png")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if string(got.Content) != "new" {
		t.Errorf("expected stored content %q, got %q", "new", got.Content)
	}
	if ws.Len() != 3 {
		t.Errorf("expected 3 files, got %d", ws.Len())
	}
}

func TestAddCopiesContent(t *testing.T) {
	ws := New()
	buf := []byte("abc")
	ws.Add("a.txt", buf)
	buf[0] = 'X'

	f, _ := ws.Get("a.txt")
	if string(f.Content) != "abc" {
		t.Errorf("staged content aliased caller buffer: %q", f.Content)
	}
}

func TestRemove(t *testing.T) {
	ws := New()
	ws.Add("a", nil)
	ws.Add("b", nil)
	ws.Add("c", nil)

	if !ws.Remove("b") {
		t.Error("expected remove to report true")
	}
	if ws.Remove("b") {
		t.Error("second remove should be a no-op")
	}
	if ws.Remove("missing") {
		t.Error("removing an absent name should be a no-op")
	}

	if diff := cmp.Diff([]string{"a", "c"}, names(ws)); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}

	// Index must stay consistent after a removal shifts positions.
	ws.Add("c", []byte("updated"))
	if diff := cmp.Diff([]string{"a", "c"}, names(ws)); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}
}

func TestGetNotFound(t *testing.T) {
	ws := New()
	_, err := ws.Get("nope.py")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	var nf *NotFoundError
	if !errors.As(err, &nf) || nf.Name != "nope.py" {
		t.Errorf("expected NotFoundError for nope.py, got %v", err)
	}
}

func TestAddInvalidName(t *testing.T) {
	ws := New()
	for _, name := range []string{"", "/abs", "../up", "a/../b", "a//b", `win\path`, "./x"} {
		if _, err := ws.Add(name, nil); !errors.Is(err, ErrInvalidName) {
			t.Errorf("Add(%q): expected ErrInvalidName, got %v", name, err)
		}
	}
	if _, err := ws.Add("out/plot.png", nil); err != nil {
		t.Errorf("nested relative names should be accepted: %v", err)
	}
}

func TestKindDerivedOnAdd(t *testing.T) {
	ws := New()
	f, _ := ws.Add("Report.HTML", nil)
	if f.Kind != KindHTML {
		t.Errorf("expected html, got %s", f.Kind)
	}
	f, _ = ws.Add("Report.HTML", []byte("<p>"))
	if f.Kind != KindHTML {
		t.Errorf("kind changed on overwrite: %s", f.Kind)
	}
}

func TestListIsRestartable(t *testing.T) {
	ws := New()
	ws.Add("a", nil)
	ws.Add("b", nil)

	seq := ws.List()
	var first []string
	for f := range seq {
		first = append(first, f.Name)
	}

	ws.Add("c", nil)

	var second []string
	for f := range seq {
		second = append(second, f.Name)
	}

	if diff := cmp.Diff([]string{"a", "b"}, first); diff != "" {
		t.Errorf("first pass (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"a", "b", "c"}, second); diff != "" {
		t.Errorf("second pass should observe later adds (-want +got):\n%s", diff)
	}
}

func TestListEarlyBreak(t *testing.T) {
	ws := New()
	ws.Add("a", nil)
	ws.Add("b", nil)

	count := 0
	for range ws.List() {
		count++
		break
	}
	if count != 1 {
		t.Errorf("expected 1 iteration, got %d", count)
	}
}

// TestRandomOperationsMatchModel applies random add/remove sequences and
// compares List against a simple ordered model.
func TestRandomOperationsMatchModel(t *testing.T) {
	r := rand.New(rand.NewPCG(1, 2))
	pool := []string{"a.py", "b.csv", "c.json", "d.bin", "e.html", "f.parquet"}

	for round := 0; round < 50; round++ {
		ws := New()
		var model []string
		contents := map[string]string{}

		for step := 0; step < 40; step++ {
			name := pool[r.IntN(len(pool))]
			if r.IntN(3) == 0 {
				ws.Remove(name)
				model = slices.DeleteFunc(model, func(n string) bool { return n == name })
				delete(contents, name)
				continue
			}
			content := string(rune('A' + step%26))
			ws.Add(name, []byte(content))
			if !slices.Contains(model, name) {
				model = append(model, name)
			}
			contents[name] = content
		}

		if diff := cmp.Diff(model, names(ws), cmp.Comparer(func(a, b []string) bool {
			return slices.Equal(a, b) || (len(a) == 0 && len(b) == 0)
		})); diff != "" {
			t.Fatalf("round %d: (-model +got):\n%s", round, diff)
		}
		for name, want := range contents {
			f, err := ws.Get(name)
			if err != nil || string(f.Content) != want {
				t.Fatalf("round %d: %s = %q, %v; want %q", round, name, f.Content, err, want)
			}
		}
	}
}

func TestSubscribeNotifiesEveryMutation(t *testing.T) {
	ws := New()
	var events []string
	unsubscribe := ws.Subscribe(func(ev Event) {
		events = append(events, ev.Op.String()+":"+ev.File.Name)
	})

	ws.Add("a.csv", []byte("1"))
	ws.Add("a.csv", []byte("2"))
	ws.Remove("a.csv")
	ws.Remove("a.csv")

	want := []string{"add:a.csv", "update:a.csv", "remove:a.csv"}
	if diff := cmp.Diff(want, events); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}

	unsubscribe()
	unsubscribe()
	ws.Add("b.csv", nil)
	if len(events) != len(want) {
		t.Errorf("event delivered after unsubscribe: %v", events)
	}
}

func TestSubscriberCanReadWorkspace(t *testing.T) {
	ws := New()
	var seen int
	ws.Subscribe(func(ev Event) {
		seen = ws.Len()
	})
	ws.Add("a", nil)
	if seen != 1 {
		t.Errorf("subscriber saw %d files, want 1", seen)
	}
}

func TestConcurrentEventsFollowApplyOrder(t *testing.T) {
	ws := New()
	var events []Event
	ws.Subscribe(func(ev Event) {
		events = append(events, ev)
	})

	const writers = 50
	var wg sync.WaitGroup
	for i := range writers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ws.Add("shared.csv", []byte(strconv.Itoa(i)))
		}()
	}
	wg.Wait()

	if len(events) != writers {
		t.Fatalf("got %d events, want %d", len(events), writers)
	}
	if events[0].Op != OpAdd {
		t.Errorf("first event = %v, want add", events[0].Op)
	}
	for _, ev := range events[1:] {
		if ev.Op != OpUpdate {
			t.Errorf("later event = %v, want update", ev.Op)
		}
	}
	f, err := ws.Get("shared.csv")
	if err != nil {
		t.Fatal(err)
	}
	if last := events[len(events)-1]; string(last.File.Content) != string(f.Content) {
		t.Errorf("last event content %q, workspace holds %q", last.File.Content, f.Content)
	}
}

func TestLoadDir(t *testing.T) {
	dir := t.TempDir()
	for name, content := range map[string]string{
		"b.py":     "print('b')",
		"a.py":     "print('a')",
		"data.csv": "x\n1",
	} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.Mkdir(filepath.Join(dir, "sub.py"), 0755); err != nil {
		t.Fatal(err)
	}

	ws := New()
	ws.Add("b.py", []byte("mine"))

	added, err := LoadDir(ws, dir, "*.py")
	if err != nil {
		t.Fatalf("LoadDir: %v", err)
	}
	if diff := cmp.Diff([]string{"a.py"}, added); diff != "" {
		t.Errorf("added (-want +got):\n%s", diff)
	}

	f, _ := ws.Get("b.py")
	if string(f.Content) != "mine" {
		t.Errorf("existing file should not be replaced, got %q", f.Content)
	}
}
