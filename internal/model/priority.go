package model

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/beads-core/beads/internal/errs"
)

// MaxPriority is the lowest-urgency priority value accepted.
const MaxPriority = 4

// ParsePriority accepts either a bare digit ("0".."4") or a "P"-prefixed
// form ("P0".."P4", case-insensitive), surrounding whitespace tolerated.
// Returns -1 for anything out of range or unparseable.
func ParsePriority(input string) int {
	s := strings.TrimSpace(input)
	if s == "" {
		return -1
	}
	if len(s) > 1 && (s[0] == 'P' || s[0] == 'p') {
		s = s[1:]
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return -1
	}
	if n < 0 || n > MaxPriority {
		return -1
	}
	return n
}

// ValidatePriority parses input and returns an error describing why it
// was rejected, rather than a bare sentinel value.
func ValidatePriority(input string) (int, error) {
	n := ParsePriority(input)
	if n < 0 {
		return -1, fmt.Errorf("%w: %q is not a valid priority (expected 0-%d or P0-P%d)", errs.ErrInvalidPriority, input, MaxPriority, MaxPriority)
	}
	return n, nil
}
