package fileid

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// WindowSize is the length of each sampled window.
const WindowSize = 64 * 1024

// Identity fingerprints an input file.
type Identity struct {
	Digest       uint32 `json:"digest"`
	Size         int64  `json:"size"`
	ModTime      int64  `json:"mod_time"`
	Name         string `json:"name"`
	MetadataOnly bool   `json:"metadata_only,omitempty"`
}

// Key renders the identity as a stable store key.
func (id Identity) Key() string {
	if id.MetadataOnly {
		return fmt.Sprintf("meta-%d-%d-%s", id.Size, id.ModTime, id.Name)
	}
	return fmt.Sprintf("%08x-%d-%d-%s", id.Digest, id.Size, id.ModTime, id.Name)
}

// Equal reports whether two identities describe the same file.
func (id Identity) Equal(other Identity) bool {
	return id == other
}

// IsZero reports whether the identity is unset.
func (id Identity) IsZero() bool {
	return id == Identity{}
}

// Compute opens path and derives its identity. Only a failed stat is an error;
// read failures degrade to a metadata-only identity.
func Compute(ctx context.Context, path string) (Identity, error) {
	if err := ctx.Err(); err != nil {
		return Identity{}, err
	}
	info, err := os.Stat(path)
	if err != nil {
		return Identity{}, fmt.Errorf("stat input: %w", err)
	}
	if info.IsDir() {
		return Identity{}, fmt.Errorf("input %q is a directory", path)
	}
	name := filepath.Base(path)
	file, err := os.Open(path)
	if err != nil {
		return MetadataOnly(name, info.Size(), info.ModTime()), nil
	}
	defer file.Close()
	return FromReader(ctx, file, name, info.Size(), info.ModTime()), nil
}

// FromReader samples r, which must expose size bytes, and combines the sampled
// digest with the supplied metadata.
func FromReader(ctx context.Context, r io.ReaderAt, name string, size int64, modTime time.Time) Identity {
	digest, err := sampleDigest(ctx, r, size)
	if err != nil {
		return MetadataOnly(name, size, modTime)
	}
	digest = fold(digest, []byte(strconv.FormatInt(size, 10)))
	digest = fold(digest, []byte(strconv.FormatInt(modTime.UnixMilli(), 10)))
	digest = fold(digest, []byte(name))
	return Identity{
		Digest:  digest,
		Size:    size,
		ModTime: modTime.UnixMilli(),
		Name:    name,
	}
}

// MetadataOnly builds the fallback identity used when sampling fails.
func MetadataOnly(name string, size int64, modTime time.Time) Identity {
	return Identity{Size: size, ModTime: modTime.UnixMilli(), Name: name, MetadataOnly: true}
}

func sampleDigest(ctx context.Context, r io.ReaderAt, size int64) (uint32, error) {
	buf := make([]byte, WindowSize)
	var digest uint32
	for _, offset := range windowOffsets(size) {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		n := min(int64(WindowSize), size-offset)
		read, err := r.ReadAt(buf[:n], offset)
		if err != nil && !(errors.Is(err, io.EOF) && int64(read) == n) {
			return 0, fmt.Errorf("read window at %d: %w", offset, err)
		}
		digest = fold(digest, buf[:n])
	}
	return digest, nil
}

// windowOffsets returns the head, middle and tail window starts, collapsing
// to a single window for files no larger than one window.
func windowOffsets(size int64) []int64 {
	if size <= 0 {
		return nil
	}
	if size <= WindowSize {
		return []int64{0}
	}
	middle := max(size/2-WindowSize/2, 0)
	return []int64{0, middle, size - WindowSize}
}

// fold applies the rolling multiplicative hash h = h*31 + b with 32-bit wraparound.
func fold(h uint32, data []byte) uint32 {
	for _, b := range data {
		h = (h << 5) - h + uint32(b)
	}
	return h
}
