package escalation

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeDetails(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			"unix path",
			"attempted read of /etc/passwd/shadow entries",
			"attempted read of [PATH] entries",
		},
		{
			"windows path",
			`wrote to C:\Windows\System32\drivers`,
			"wrote to [PATH]",
		},
		{
			"ip address",
			"connection from 10.20.30.40 refused",
			"connection from [IP] refused",
		},
		{
			"email",
			"lookup for admin@example.com failed",
			"lookup for [EMAIL] failed",
		},
		{
			"bearer token",
			"authorization eyJhbGciOiJIUzI1NiIsInR5cCI6 rejected",
			"authorization [TOKEN] rejected",
		},
		{
			"clean text untouched",
			"sql_injection pattern matched in query string",
			"sql_injection pattern matched in query string",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SanitizeDetails(tt.input))
		})
	}
}

func TestSanitizeDetailsTruncates(t *testing.T) {
	out := SanitizeDetails("x " + strings.Repeat("word ", 100))
	assert.Len(t, out, maxDetailLength)
	assert.True(t, strings.HasSuffix(out, "..."))
}
