package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParsePriority(t *testing.T) {
	tests := []struct {
		input    string
		expected int
	}{
		{"0", 0}, {"1", 1}, {"2", 2}, {"3", 3}, {"4", 4},
		{"P0", 0}, {"P1", 1}, {"P2", 2}, {"P3", 3}, {"P4", 4},
		{"p0", 0}, {"p1", 1}, {"p2", 2},
		{" 1 ", 1}, {" P1 ", 1},
		{"5", -1}, {"-1", -1}, {"P5", -1}, {"abc", -1}, {"P", -1}, {"PP1", -1},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.expected, ParsePriority(tt.input), "ParsePriority(%q)", tt.input)
	}
}

func TestValidatePriority(t *testing.T) {
	tests := []struct {
		input     string
		wantValue int
		wantError bool
	}{
		{"0", 0, false},
		{"2", 2, false},
		{"P1", 1, false},
		{"5", -1, true},
		{"abc", -1, true},
	}
	for _, tt := range tests {
		got, err := ValidatePriority(tt.input)
		if tt.wantError {
			assert.Error(t, err, "ValidatePriority(%q)", tt.input)
		} else {
			assert.NoError(t, err, "ValidatePriority(%q)", tt.input)
		}
		assert.Equal(t, tt.wantValue, got, "ValidatePriority(%q)", tt.input)
	}
}
