package engine

const (
	gib = int64(1) << 30
	mib = 1 << 20

	largeFileThreshold = 100 * gib
	hugeFileThreshold  = 500 * gib
	largeChunkSize     = 50 * mib
	hugeChunkSize      = 100 * mib
)

// chunkSizeFor returns the read size for a file of size bytes. Adaptive sizing
// only ever grows the configured base.
func chunkSizeFor(base int, adaptive bool, size int64) int {
	if base <= 0 {
		base = 10 * mib
	}
	if !adaptive {
		return base
	}
	switch {
	case size > hugeFileThreshold:
		return max(base, hugeChunkSize)
	case size > largeFileThreshold:
		return max(base, largeChunkSize)
	default:
		return base
	}
}
