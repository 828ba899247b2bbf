package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTokenizeCode(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []string
	}{
		{
			name: "camelCase",
			text: "getUserById",
			want: []string{"get", "user", "by", "id"},
		},
		{
			name: "snake_case",
			text: "fetch_context_for_task",
			want: []string{"fetch", "context", "task"},
		},
		{
			name: "acronym run",
			text: "parseHTTPRequest",
			want: []string{"parse", "http", "request"},
		},
		{
			name: "punctuation stripped",
			text: "total = add(a, b);",
			want: []string{"total", "add"},
		},
		{
			name: "keywords filtered",
			text: "def greet(): return greeting",
			want: []string{"greet", "greeting"},
		},
		{
			name: "throwaway names filtered",
			text: "result := compute(data, tmp)",
			want: []string{"compute"},
		},
		{
			name: "short tokens dropped",
			text: "x y z ab",
			want: []string{"ab"},
		},
		{
			name: "empty",
			text: "",
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, TokenizeCode(tt.text))
		})
	}
}

func TestSplitCamelCase(t *testing.T) {
	assert.Equal(t, []string{"get", "User", "By", "Id"}, SplitCamelCase("getUserById"))
	assert.Equal(t, []string{"HTTP", "Handler"}, SplitCamelCase("HTTPHandler"))
	assert.Equal(t, []string{"plain"}, SplitCamelCase("plain"))
	assert.Nil(t, SplitCamelCase(""))
}
