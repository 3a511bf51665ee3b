//go:build gibsondebug

package tag

const Debug = true
