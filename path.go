package zipmap

import "strings"

// NormalizePath maps an entry name or a caller's path to the form used for
// lookups: empty elements from leading, trailing or repeated slashes are
// dropped, and a path with no elements is ".". A ZIP directory entry
// "docs/" and the path "docs" therefore name the same thing.
//
// "." and ".." elements are kept as they are; fs.ValidPath rejects them
// later, so such entries are never reachable by name.
func NormalizePath(p string) string {
	parts := strings.FieldsFunc(p, func(r rune) bool { return r == '/' })
	if len(parts) == 0 {
		return "."
	}
	return strings.Join(parts, "/")
}
