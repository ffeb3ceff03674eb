package zipmap

import (
	"io/fs"
	"iter"
	"slices"
	"strings"
)

// nameIndex maps normalized entry names to central directory positions.
type nameIndex struct {
	byPath map[string]int
	paths  []string // sorted
}

// index returns the name index, building it on first use.
func (a *Archive) index() *nameIndex {
	a.indexOnce.Do(func() {
		a.idx = a.buildIndex()
	})
	return a.idx
}

func (a *Archive) buildIndex() *nameIndex {
	idx := &nameIndex{byPath: make(map[string]int, len(a.offsets))}
	for e := range a.Entries() {
		p := NormalizePath(e.Name())
		if p == "." || !fs.ValidPath(p) || strings.Contains(p, "\\") {
			a.log().Debug("entry not addressable by path", "entry", e.Name(), "index", e.Index())
			continue
		}
		if first, dup := idx.byPath[p]; dup {
			a.log().Debug("duplicate entry name", "entry", e.Name(), "index", e.Index(), "first", first)
			continue
		}
		idx.byPath[p] = e.Index()
		idx.paths = append(idx.paths, p)
	}
	slices.Sort(idx.paths)
	return idx
}

func (x *nameIndex) lookup(p string) (int, bool) {
	i, ok := x.byPath[p]
	return i, ok
}

// hasPrefix reports whether any indexed path starts with prefix.
func (x *nameIndex) hasPrefix(prefix string) bool {
	pos, _ := slices.BinarySearch(x.paths, prefix)
	return pos < len(x.paths) && strings.HasPrefix(x.paths[pos], prefix)
}

// withPrefix yields the indexed paths starting with prefix, in sorted
// order, with their entry positions.
func (x *nameIndex) withPrefix(prefix string) iter.Seq2[string, int] {
	return func(yield func(string, int) bool) {
		pos, _ := slices.BinarySearch(x.paths, prefix)
		for _, p := range x.paths[pos:] {
			if !strings.HasPrefix(p, prefix) {
				return
			}
			if !yield(p, x.byPath[p]) {
				return
			}
		}
	}
}
