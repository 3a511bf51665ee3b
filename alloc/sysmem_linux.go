//go:build linux

package alloc

import "golang.org/x/sys/unix"

// AvailablePhysicalMemory is zmem_available() from spec.md §4.1: a
// best-effort query of free physical memory, used once at startup to
// clamp max_memory. It returns 0 if the kernel call fails, which
// callers should treat as "unknown" rather than "zero bytes free."
func AvailablePhysicalMemory() int64 {
	var info unix.Sysinfo_t
	if err := unix.Sysinfo(&info); err != nil {
		return 0
	}
	return int64(info.Freeram) * int64(info.Unit)
}
