// Package idgen generates identifiers for simulation runs.
package idgen

import (
	"strings"

	"github.com/google/uuid"
)

const runPrefix = "run_"

// New returns a random UUID string.
func New() string {
	return uuid.NewString()
}

// RunID returns a fresh run identifier, e.g. "run_1b4e28ba-2fa1-11d2-883f-0016d3cca427".
func RunID() string {
	return runPrefix + uuid.NewString()
}

// ValidRunID reports whether s was produced by RunID.
func ValidRunID(s string) bool {
	rest, ok := strings.CutPrefix(s, runPrefix)
	if !ok {
		return false
	}
	_, err := uuid.Parse(rest)
	return err == nil
}
