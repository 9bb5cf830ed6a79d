package search

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFold(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Müller", "muller"},
		{"  José   García ", "jose garcia"},
		{"ＡＢＣ１２３", "abc123"},
		{"STRASSE", "strasse"},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Fold(tt.in), tt.in)
	}
}

func TestKeySkipsEmptyParts(t *testing.T) {
	assert.Equal(t, "doe jane 555-0100", Key("Doe", "", "Jane", "  ", "555-0100"))
}
