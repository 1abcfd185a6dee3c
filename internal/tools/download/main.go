// Command download fetches the Python interpreter for go:generate.
//
//	download <url> <output>
//
// An existing output is left alone. The file is written next to the output
// and renamed into place once it is complete and looks like a WASM module,
// so an interrupted download never leaves a truncated interpreter behind.
// Set BROWSERBOX_PYTHON_SHA256 to verify the download.
package main

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
)

var wasmMagic = []byte{0x00, 'a', 's', 'm'}

func main() {
	if len(os.Args) != 3 {
		fmt.Fprintln(os.Stderr, "usage: download <url> <output>")
		os.Exit(1)
	}

	url, output := os.Args[1], os.Args[2]
	if url == "" {
		fmt.Fprintln(os.Stderr, "download: empty url (set BROWSERBOX_PYTHON_URL)")
		os.Exit(1)
	}

	if _, err := os.Stat(output); err == nil {
		return
	}

	want := strings.ToLower(os.Getenv("BROWSERBOX_PYTHON_SHA256"))
	if err := fetch(url, output, want); err != nil {
		fmt.Fprintf(os.Stderr, "download %s: %v\n", url, err)
		os.Exit(1)
	}
}

func fetch(url, output, wantSum string) error {
	client := &http.Client{Timeout: 10 * time.Minute}
	resp, err := client.Get(url)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %s", resp.Status)
	}

	tmp, err := os.CreateTemp(filepath.Dir(output), ".download-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	h := sha256.New()
	var head bytes.Buffer
	w := io.MultiWriter(tmp, h, &limitedBuffer{buf: &head, n: len(wasmMagic)})
	if _, err := io.Copy(w, resp.Body); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	if !bytes.Equal(head.Bytes(), wasmMagic) {
		return errors.New("response is not a wasm module")
	}
	if sum := hex.EncodeToString(h.Sum(nil)); wantSum != "" && sum != wantSum {
		return fmt.Errorf("sha256 mismatch: got %s, want %s", sum, wantSum)
	}
	return os.Rename(tmp.Name(), output)
}

// limitedBuffer keeps the first n bytes written to it.
type limitedBuffer struct {
	buf *bytes.Buffer
	n   int
}

func (l *limitedBuffer) Write(p []byte) (int, error) {
	if rest := l.n - l.buf.Len(); rest > 0 {
		l.buf.Write(p[:min(rest, len(p))])
	}
	return len(p), nil
}
