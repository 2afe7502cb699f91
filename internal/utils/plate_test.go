package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCleanPlateText(t *testing.T) {
	tests := map[string]string{
		"rab 123c":     "RAB123C",
		" R A B1 23C ": "RAB123C",
		"rab\t123\nc":  "RAB123C",
		"":             "",
	}
	for in, want := range tests {
		assert.Equal(t, want, CleanPlateText(in), "input %q", in)
	}
}
