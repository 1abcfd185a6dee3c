package history

import (
	"bytes"
	"fmt"
	"io"

	"github.com/pierrec/lz4/v4"
)

// compress packs run output for storage. Empty output stays empty.
func compress(s string) ([]byte, error) {
	if s == "" {
		return nil, nil
	}
	var buf bytes.Buffer
	zw := lz4.NewWriter(&buf)
	if err := zw.Apply(lz4.CompressionLevelOption(lz4.Fast)); err != nil {
		return nil, err
	}
	if _, err := io.WriteString(zw, s); err != nil {
		return nil, fmt.Errorf("compress output: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("compress output: %w", err)
	}
	return buf.Bytes(), nil
}

func decompress(b []byte) (string, error) {
	if len(b) == 0 {
		return "", nil
	}
	data, err := io.ReadAll(lz4.NewReader(bytes.NewReader(b)))
	if err != nil {
		return "", fmt.Errorf("decompress output: %w", err)
	}
	return string(data), nil
}
