package logs

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"
)

const readBufferSize = 64 * 1024

// Last returns up to n trailing lines of path and the offset just past them.
// A missing file yields no lines and offset 0.
func Last(path string, n int) ([]string, int64, error) {
	file, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, 0, nil
	}
	if err != nil {
		return nil, 0, fmt.Errorf("open log file: %w", err)
	}
	defer file.Close()

	if n <= 0 {
		end, err := file.Seek(0, io.SeekEnd)
		if err != nil {
			return nil, 0, fmt.Errorf("seek log file: %w", err)
		}
		return nil, end, nil
	}

	ring := make([]string, 0, n)
	next := 0
	offset, err := scanLines(file, func(line string) {
		if len(ring) < n {
			ring = append(ring, line)
			return
		}
		ring[next] = line
		next = (next + 1) % n
	})
	if err != nil {
		return nil, 0, err
	}
	if len(ring) < n {
		return ring, offset, nil
	}
	return append(ring[next:], ring[:next]...), offset, nil
}

// Follow emits complete lines appended to path after offset until ctx ends.
// The file is reopened on every poll so a replaced or truncated log restarts
// from its beginning.
func Follow(ctx context.Context, path string, offset int64, interval time.Duration, emit func(string)) error {
	if interval <= 0 {
		interval = 250 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		next, err := readFrom(path, offset, emit)
		if err != nil {
			return err
		}
		offset = next
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func readFrom(path string, offset int64, emit func(string)) (int64, error) {
	file, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return offset, fmt.Errorf("open log file: %w", err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return offset, fmt.Errorf("stat log file: %w", err)
	}
	if info.Size() < offset {
		offset = 0
	}
	if _, err := file.Seek(offset, io.SeekStart); err != nil {
		return offset, fmt.Errorf("seek log file: %w", err)
	}
	consumed, err := scanLines(file, emit)
	if err != nil {
		return offset, err
	}
	return offset + consumed, nil
}

// scanLines emits each newline-terminated line from r and returns the number
// of bytes consumed. A trailing partial line is left for the next read.
func scanLines(r io.Reader, emit func(string)) (int64, error) {
	reader := bufio.NewReaderSize(r, readBufferSize)
	var consumed int64
	for {
		line, err := reader.ReadSlice('\n')
		if err == nil {
			consumed += int64(len(line))
			emit(string(trimEOL(line)))
			continue
		}
		if errors.Is(err, bufio.ErrBufferFull) {
			// Overlong line: keep the first buffer's worth and drop the rest.
			head := string(line)
			n, drainErr := drainLine(reader, int64(len(line)))
			if drainErr != nil {
				return consumed, drainErr
			}
			if n < 0 {
				return consumed, nil
			}
			consumed += n
			emit(head)
			continue
		}
		if errors.Is(err, io.EOF) {
			return consumed, nil
		}
		return consumed, fmt.Errorf("read log file: %w", err)
	}
}

// drainLine discards the remainder of an overlong line. It returns -1 when the
// line is not yet terminated.
func drainLine(reader *bufio.Reader, seen int64) (int64, error) {
	for {
		chunk, err := reader.ReadSlice('\n')
		seen += int64(len(chunk))
		switch {
		case err == nil:
			return seen, nil
		case errors.Is(err, bufio.ErrBufferFull):
			continue
		case errors.Is(err, io.EOF):
			return -1, nil
		default:
			return 0, fmt.Errorf("read log file: %w", err)
		}
	}
}

func trimEOL(line []byte) []byte {
	line = line[:len(line)-1]
	if n := len(line); n > 0 && line[n-1] == '\r' {
		line = line[:n-1]
	}
	return line
}
