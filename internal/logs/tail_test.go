package logs_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"tally/internal/logs"
)

func writeLog(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tally.log")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write log: %v", err)
	}
	return path
}

func appendLog(t *testing.T, path, content string) {
	t.Helper()
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatalf("open append: %v", err)
	}
	defer f.Close()
	if _, err := f.WriteString(content); err != nil {
		t.Fatalf("append log: %v", err)
	}
}

func TestLastReturnsTrailingLines(t *testing.T) {
	path := writeLog(t, "a\nb\r\nc\nd\npartial")

	lines, offset, err := logs.Last(path, 2)
	if err != nil {
		t.Fatalf("Last: %v", err)
	}
	if strings.Join(lines, ",") != "c,d" {
		t.Fatalf("unexpected lines: %#v", lines)
	}
	if want := int64(len("a\nb\r\nc\nd\n")); offset != want {
		t.Fatalf("offset = %d, want %d", offset, want)
	}

	lines, _, err = logs.Last(path, 10)
	if err != nil {
		t.Fatalf("Last: %v", err)
	}
	if strings.Join(lines, ",") != "a,b,c,d" {
		t.Fatalf("unexpected lines: %#v", lines)
	}
}

func TestLastMissingFile(t *testing.T) {
	lines, offset, err := logs.Last(filepath.Join(t.TempDir(), "absent.log"), 5)
	if err != nil {
		t.Fatalf("Last: %v", err)
	}
	if len(lines) != 0 || offset != 0 {
		t.Fatalf("expected nothing, got %#v at %d", lines, offset)
	}
}

func TestLastZeroSkipsToEnd(t *testing.T) {
	path := writeLog(t, "one\ntwo\n")
	lines, offset, err := logs.Last(path, 0)
	if err != nil {
		t.Fatalf("Last: %v", err)
	}
	if len(lines) != 0 || offset != 8 {
		t.Fatalf("expected end offset, got %#v at %d", lines, offset)
	}
}

type collector struct {
	mu    sync.Mutex
	lines []string
}

func (c *collector) add(line string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lines = append(c.lines, line)
}

func (c *collector) snapshot() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.lines...)
}

func waitFor(t *testing.T, c *collector, want string) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if strings.Join(c.snapshot(), ",") == want {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("followed lines = %#v, want %s", c.snapshot(), want)
}

func TestFollowEmitsAppendedLines(t *testing.T) {
	path := writeLog(t, "start\n")
	_, offset, err := logs.Last(path, 1)
	if err != nil {
		t.Fatalf("Last: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	got := &collector{}
	done := make(chan error, 1)
	go func() {
		done <- logs.Follow(ctx, path, offset, 10*time.Millisecond, got.add)
	}()

	appendLog(t, path, "later\nhalf")
	waitFor(t, got, "later")
	appendLog(t, path, "-done\n")
	waitFor(t, got, "later,half-done")

	cancel()
	select {
	case err := <-done:
		if err != context.Canceled {
			t.Fatalf("Follow returned %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Follow did not return after cancel")
	}
}

func TestFollowRestartsAfterTruncation(t *testing.T) {
	path := writeLog(t, "first run line one\nfirst run line two\n")
	_, offset, err := logs.Last(path, 0)
	if err != nil {
		t.Fatalf("Last: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	got := &collector{}
	go func() {
		_ = logs.Follow(ctx, path, offset, 10*time.Millisecond, got.add)
	}()

	if err := os.WriteFile(path, []byte("second\n"), 0o644); err != nil {
		t.Fatalf("rewrite log: %v", err)
	}
	waitFor(t, got, "second")
}
