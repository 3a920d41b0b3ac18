//go:build debug

package check

import "fmt"

// Assertf panics with a formatted message when cond is false. The check
// only exists in builds carrying the debug tag.
func Assertf(cond bool, format string, args ...any) {
	if !cond {
		panic("assertion failed: " + fmt.Sprintf(format, args...))
	}
}
