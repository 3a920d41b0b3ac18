package graph

import (
	"fmt"
	"strconv"
	"strings"
)

// MajorVersion extracts the leading component of an engine version string,
// so "5.26.0" gives 5.
func MajorVersion(version string) (int, error) {
	head, _, _ := strings.Cut(strings.TrimSpace(version), ".")
	major, err := strconv.Atoi(head)
	if err != nil {
		return 0, fmt.Errorf("parse engine version %q: %w", version, err)
	}
	return major, nil
}
