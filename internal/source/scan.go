package source

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
)

// maxLineBytes bounds a single NDJSON line. User-agent strings make log
// events long but nowhere near this.
const maxLineBytes = 4 * 1024 * 1024

// streamLines scans r line by line and sends non-blank lines to out.
// The line buffer is copied; callers may retain Line.Data.
func streamLines(ctx context.Context, path string, r io.Reader, out chan<- Line) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), maxLineBytes)

	lineNo := 0
	for sc.Scan() {
		lineNo++
		data := bytes.TrimSpace(sc.Bytes())
		if len(data) == 0 {
			continue
		}

		line := Line{Path: path, Number: lineNo, Data: append([]byte(nil), data...)}
		select {
		case out <- line:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("scan %s: %w", path, err)
	}
	return nil
}
