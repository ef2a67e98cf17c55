package enrich

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizePhone(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"formatted landline gains mobile prefix", "+55 (11) 1234-5678", "5511912345678"},
		{"missing country code", "11987654321", "5511987654321"},
		{"already canonical", "5511987654321", "5511987654321"},
		{"dots and commas", "55.11.98765,4321", "5511987654321"},
		{"8 digit subscriber without country code", "(21) 3456-7890", "5521934567890"},
		{"empty", "", ""},
		{"only punctuation", " ()-.+,", ""},
		{"slash separator", "11/98765-4321", "5511987654321"},
		{"tel uri", "tel:11987654321", "5511987654321"},
		{"letters and symbols only", "ext#*abc", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizePhone(tt.in))
		})
	}
}

func TestNormalizePhone_Idempotent(t *testing.T) {
	for _, in := range []string{"+55 (11) 1234-5678", "11987654321", "(21) 3456-7890", "tel:+55/11/98765-4321"} {
		once := NormalizePhone(in)
		assert.Equal(t, once, NormalizePhone(once), "input %q", in)
	}
}
