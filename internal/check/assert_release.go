//go:build !debug

package check

// Assertf is a no-op unless the build carries the debug tag.
func Assertf(_ bool, _ string, _ ...any) {}
