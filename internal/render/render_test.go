package render

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResolveLinks(t *testing.T) {
	base := "https://example.com/docs/index.html"

	tests := []struct {
		name  string
		links []string
		want  []string
	}{
		{
			"absolute passthrough",
			[]string{"https://other.org/a.pdf"},
			[]string{"https://other.org/a.pdf"},
		},
		{
			"relative path",
			[]string{"guide.pdf"},
			[]string{"https://example.com/docs/guide.pdf"},
		},
		{
			"root relative",
			[]string{"/files/a.pdf"},
			[]string{"https://example.com/files/a.pdf"},
		},
		{
			"parent relative",
			[]string{"../a.pdf"},
			[]string{"https://example.com/a.pdf"},
		},
		{
			"protocol relative",
			[]string{"//cdn.example.com/a.pdf"},
			[]string{"https://cdn.example.com/a.pdf"},
		},
		{
			"blank and whitespace dropped",
			[]string{"", "   ", "a.pdf"},
			[]string{"https://example.com/docs/a.pdf"},
		},
		{
			"unparseable dropped",
			[]string{"http://%zz", "a.pdf"},
			[]string{"https://example.com/docs/a.pdf"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ResolveLinks(base, tt.links))
		})
	}
}

func TestResolveLinksBadBase(t *testing.T) {
	// With an unusable base, only absolute links survive.
	got := ResolveLinks("http://%zz", []string{"a.pdf", "https://example.com/b.pdf"})
	assert.Equal(t, []string{"https://example.com/b.pdf"}, got)
}
