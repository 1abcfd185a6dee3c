package coordinator

import (
	"strings"
	"sync"
)

// Stream identifies where a chunk of output came from.
type Stream string

const (
	StreamStdout Stream = "stdout"
	StreamStderr Stream = "stderr"
	// StreamSystem carries coordinator messages such as package warnings.
	StreamSystem Stream = "system"
)

// Chunk is one piece of run output, in arrival order across all streams.
type Chunk struct {
	Seq    int    `json:"seq"`
	Stream Stream `json:"stream"`
	Text   string `json:"text"`
}

// output collects interleaved chunks and forwards each one to the sink as it
// arrives.
type output struct {
	mu     sync.Mutex
	chunks []Chunk
	stdout strings.Builder
	stderr strings.Builder
	sink   func(Chunk)
}

func (o *output) emit(stream Stream, text string) {
	if text == "" {
		return
	}

	o.mu.Lock()
	c := Chunk{Seq: len(o.chunks), Stream: stream, Text: text}
	o.chunks = append(o.chunks, c)
	switch stream {
	case StreamStdout:
		o.stdout.WriteString(text)
	case StreamStderr:
		o.stderr.WriteString(text)
	}
	sink := o.sink
	o.mu.Unlock()

	if sink != nil {
		sink(c)
	}
}

func (o *output) writer(stream Stream) *streamWriter {
	return &streamWriter{out: o, stream: stream}
}

func (o *output) snapshot() (stdout, stderr string, chunks []Chunk) {
	o.mu.Lock()
	defer o.mu.Unlock()
	chunks = make([]Chunk, len(o.chunks))
	copy(chunks, o.chunks)
	return o.stdout.String(), o.stderr.String(), chunks
}

type streamWriter struct {
	out    *output
	stream Stream
}

func (w *streamWriter) Write(p []byte) (int, error) {
	w.out.emit(w.stream, string(p))
	return len(p), nil
}

// lastLine returns the last non-empty line of s.
func lastLine(s string) string {
	lines := strings.Split(strings.TrimRight(s, "\r\n\t "), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if l := strings.TrimSpace(lines[i]); l != "" {
			return l
		}
	}
	return ""
}
