package history

import (
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	st, err := Open(filepath.Join(t.TempDir(), "nested", "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func TestRecordAndGet(t *testing.T) {
	st := openTestStore(t)
	started := time.Unix(1700000000, 123456789)
	run := &Run{
		ID:        "run-1",
		Session:   "sess-a",
		Script:    "analysis.py",
		Status:    "error",
		ExitCode:  1,
		Error:     "ValueError: bad",
		Stdout:    strings.Repeat("row\n", 500),
		Stderr:    "Traceback (most recent call last):\nValueError: bad\n",
		Warnings:  []string{"package pyyaml failed to load"},
		Produced:  []string{"out.csv"},
		StartedAt: started,
		Duration:  1500 * time.Millisecond,
	}
	require.NoError(t, st.Record(t.Context(), run))

	got, err := st.Get(t.Context(), "run-1")
	require.NoError(t, err)
	assert.Equal(t, run.Stdout, got.Stdout)
	assert.Equal(t, run.Stderr, got.Stderr)
	assert.Equal(t, run.Warnings, got.Warnings)
	assert.Equal(t, run.Produced, got.Produced)
	assert.Equal(t, 1, got.ExitCode)
	assert.Equal(t, "ValueError: bad", got.Error)
	assert.True(t, started.Equal(got.StartedAt))
	assert.Equal(t, run.Duration, got.Duration)
}

func TestRecordEmptyOutput(t *testing.T) {
	st := openTestStore(t)
	require.NoError(t, st.Record(t.Context(), &Run{ID: "quiet", Script: "a.py", Status: "ok", StartedAt: time.Now()}))

	got, err := st.Get(t.Context(), "quiet")
	require.NoError(t, err)
	assert.Empty(t, got.Stdout)
	assert.Empty(t, got.Stderr)
	assert.Nil(t, got.Warnings)
}

func TestGetNotFound(t *testing.T) {
	st := openTestStore(t)
	_, err := st.Get(t.Context(), "missing")
	require.ErrorIs(t, err, ErrNotFound)

	var nf *NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "missing", nf.ID)
}

func TestListNewestFirst(t *testing.T) {
	st := openTestStore(t)
	base := time.Now().Add(-time.Hour)
	for i, id := range []string{"r1", "r2", "r3"} {
		status := "ok"
		if i == 1 {
			status = "error"
		}
		session := "a"
		if i == 2 {
			session = "b"
		}
		require.NoError(t, st.Record(t.Context(), &Run{
			ID:        id,
			Session:   session,
			Script:    "main.py",
			Status:    status,
			Stdout:    "hidden from list",
			StartedAt: base.Add(time.Duration(i) * time.Minute),
		}))
	}

	runs, err := st.List(t.Context(), Filter{})
	require.NoError(t, err)
	require.Len(t, runs, 3)
	assert.Equal(t, []string{"r3", "r2", "r1"}, []string{runs[0].ID, runs[1].ID, runs[2].ID})
	assert.Empty(t, runs[0].Stdout)

	runs, err = st.List(t.Context(), Filter{Session: "a"})
	require.NoError(t, err)
	assert.Len(t, runs, 2)

	runs, err = st.List(t.Context(), Filter{Status: "error"})
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "r2", runs[0].ID)

	runs, err = st.List(t.Context(), Filter{Limit: 1})
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "r3", runs[0].ID)
}

func TestListEmpty(t *testing.T) {
	st := openTestStore(t)
	runs, err := st.List(t.Context(), Filter{})
	require.NoError(t, err)
	assert.NotNil(t, runs)
	assert.Empty(t, runs)
}

func TestRecordReplaces(t *testing.T) {
	st := openTestStore(t)
	require.NoError(t, st.Record(t.Context(), &Run{ID: "r", Script: "a.py", Status: "error", StartedAt: time.Now()}))
	require.NoError(t, st.Record(t.Context(), &Run{ID: "r", Script: "a.py", Status: "ok", StartedAt: time.Now()}))

	got, err := st.Get(t.Context(), "r")
	require.NoError(t, err)
	assert.Equal(t, "ok", got.Status)
}

func TestPrune(t *testing.T) {
	st := openTestStore(t)
	require.NoError(t, st.Record(t.Context(), &Run{ID: "old", Script: "a.py", Status: "ok", StartedAt: time.Now().Add(-48 * time.Hour)}))
	require.NoError(t, st.Record(t.Context(), &Run{ID: "new", Script: "a.py", Status: "ok", StartedAt: time.Now()}))

	n, err := st.Prune(t.Context(), 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, err = st.Get(t.Context(), "old")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = st.Get(t.Context(), "new")
	assert.NoError(t, err)
}

func TestReopenKeepsRuns(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	st, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, st.Record(t.Context(), &Run{ID: "persist", Script: "a.py", Status: "ok", StartedAt: time.Now()}))
	require.NoError(t, st.Close())

	st, err = Open(path)
	require.NoError(t, err)
	defer st.Close()
	_, err = st.Get(t.Context(), "persist")
	assert.NoError(t, err)
}

func TestCompressRoundTrip(t *testing.T) {
	in := strings.Repeat("hello lz4 ", 1000)
	b, err := compress(in)
	require.NoError(t, err)
	assert.Less(t, len(b), len(in))

	out, err := decompress(b)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}
