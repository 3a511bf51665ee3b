//go:build !gibsondebug

// Package tag exposes a single compile-time flag, Debug, that gates the
// extra invariant assertions sprinkled through the trie and cache
// packages. Release builds compile with tag.go (Debug == false), which
// lets the compiler dead-code-eliminate the guarded branches; a debug
// build adds -tags gibsondebug to pull in tag_debug.go instead.
package tag

const Debug = false
