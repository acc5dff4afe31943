package strings

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFold(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"already folded", "1892 1 pond", "1892 1 pond"},
		{"case", "1892 1 POND", "1892 1 pond"},
		{"outer whitespace", "  1 pond\n", "1 pond"},
		{"inner runs", "1965\t\tR1   Silver", "1965 r1 silver"},
		{"empty", "", ""},
		{"only whitespace", " \t ", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Fold(tt.input))
		})
	}
}

func TestDedupeFolded(t *testing.T) {
	tests := []struct {
		name     string
		input    []string
		expected []string
	}{
		{"nil input", nil, nil},
		{"empty input", []string{}, nil},
		{"case variants collapse", []string{"Kruger Pond", "KRUGER  pond"}, []string{"kruger pond"}},
		{"drops blanks", []string{"", "  ", "a"}, []string{"a"}},
		{"preserves order", []string{"b", "a", "b"}, []string{"b", "a"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, DedupeFolded(tt.input))
		})
	}
}
