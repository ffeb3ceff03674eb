package zipmap

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizePath(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"leading slash", "/etc/nginx", "etc/nginx"},
		{"directory entry", "docs/", "docs"},
		{"empty string", "", "."},
		{"root slash", "/", "."},
		{"dot", ".", "."},
		{"simple", "a.txt", "a.txt"},
		{"nested with trailing", "foo/bar/baz/", "foo/bar/baz"},
		{"only slashes", "///", "."},
		{"internal multiple slashes", "etc///nginx//conf", "etc/nginx/conf"},
		// Dot and dotdot segments are preserved (for fs.ValidPath to reject)
		{"dotdot in middle", "a/../b", "a/../b"},
		{"dotdot at start", "../etc", "../etc"},
		{"dot in middle", "a/./b", "a/./b"},
		{"nested directory entry", "bin/sub/", "bin/sub"},
		{"backslashes untouched", `dir\file.txt`, `dir\file.txt`},
		{"utf-8 name", "docs/résumé.txt", "docs/résumé.txt"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := NormalizePath(tt.input)
			assert.Equal(t, tt.want, got)
		})
	}
}
