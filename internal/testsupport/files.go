package testsupport

import (
	"os"
	"path/filepath"
	"testing"
)

// WriteLedger creates a sparse file of size bytes with each record written at
// its offset. Unwritten regions read back as zero bytes.
func WriteLedger(t testing.TB, path string, size int64, records map[int64]string) {
	t.Helper()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create %s: %v", path, err)
	}
	defer f.Close()

	if err := f.Truncate(size); err != nil {
		t.Fatalf("truncate %s: %v", path, err)
	}
	for offset, record := range records {
		if offset+int64(len(record)) > size {
			t.Fatalf("record at %d overruns file size %d", offset, size)
		}
		if _, err := f.WriteAt([]byte(record), offset); err != nil {
			t.Fatalf("write %s: %v", path, err)
		}
	}
}

// WriteFile writes data to path, creating parent directories.
func WriteFile(t testing.TB, path string, data []byte) {
	t.Helper()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}
