// Package preflight validates the environment before a download run.
package preflight

import (
	"context"
	"fmt"

	"github.com/shirou/gopsutil/v4/disk"
)

// DefaultMinFreeBytes is the free-space floor applied to the output
// root before the per-record loop starts. A full curated RefSeq
// bacteria run lands in the tens of gigabytes once archives are
// decompressed.
const DefaultMinFreeBytes = 5 << 30

// FreeBytes reports the free space on the filesystem holding path.
// Detection can fail on unusual filesystems; callers should treat an
// error here as a warning, not a fatal condition.
func FreeBytes(ctx context.Context, path string) (uint64, error) {
	usage, err := disk.UsageWithContext(ctx, path)
	if err != nil {
		return 0, fmt.Errorf("query disk usage for %s: %w", path, err)
	}
	return usage.Free, nil
}
