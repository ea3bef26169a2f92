package engine

import "testing"

func TestChunkSizeFor(t *testing.T) {
	base := 10 * mib
	cases := []struct {
		name     string
		base     int
		adaptive bool
		size     int64
		want     int
	}{
		{"small file", base, true, 1 << 20, base},
		{"at large threshold", base, true, largeFileThreshold, base},
		{"large file", base, true, largeFileThreshold + 1, largeChunkSize},
		{"huge file", base, true, hugeFileThreshold + 1, hugeChunkSize},
		{"adaptive off", base, false, hugeFileThreshold + 1, base},
		{"base above adaptive", 200 * mib, true, largeFileThreshold + 1, 200 * mib},
		{"zero base", 0, false, 1, 10 * mib},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := chunkSizeFor(tc.base, tc.adaptive, tc.size); got != tc.want {
				t.Fatalf("chunkSizeFor(%d, %v, %d) = %d, want %d", tc.base, tc.adaptive, tc.size, got, tc.want)
			}
		})
	}
}
