//go:build !linux

package alloc

// AvailablePhysicalMemory has no portable best-effort query outside
// Linux's sysinfo(2); callers treat 0 as "unknown" and skip clamping
// max_memory.
func AvailablePhysicalMemory() int64 { return 0 }
