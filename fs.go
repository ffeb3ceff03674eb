package zipmap

import (
	"bytes"
	"errors"
	"io"
	"io/fs"
	"path"
	"slices"
	"strings"

	"github.com/meigma/zipmap/internal/file"
)

// errIsDir is returned when file content is requested for a directory.
var errIsDir = errors.New("is a directory")

// Open implements fs.FS.
//
// Open returns an fs.File for reading the named file. Reads are verified
// against the entry's CRC-32: the final Read reports ErrChecksumMismatch
// instead of io.EOF when the content is corrupt. Directories, whether
// stored as entries or implied by nested names, can be listed with
// ReadDir.
func (a *Archive) Open(name string) (fs.File, error) {
	if !fs.ValidPath(name) {
		return nil, &fs.PathError{Op: "open", Path: name, Err: fs.ErrInvalid}
	}

	if e, ok := a.Lookup(name); ok && !e.IsDir() {
		rc, err := e.Open()
		if err != nil {
			return nil, err
		}
		return rc.(fs.File), nil //nolint:errcheck,forcetypeassert // Entry.Open returns *entryFile
	}
	if a.isDir(name) {
		return &openDir{a: a, name: name}, nil
	}
	return nil, &fs.PathError{Op: "open", Path: name, Err: fs.ErrNotExist}
}

// Stat implements fs.StatFS.
//
// Stat returns file info for the named file without reading its content.
// For directories that have no entry of their own, Stat returns synthetic
// directory info. The Sys method of a file's info returns its *Entry.
func (a *Archive) Stat(name string) (fs.FileInfo, error) {
	if !fs.ValidPath(name) {
		return nil, &fs.PathError{Op: "stat", Path: name, Err: fs.ErrInvalid}
	}

	if e, ok := a.Lookup(name); ok {
		return e.Stat(), nil
	}
	if a.isDir(name) {
		return file.NewDirInfo(path.Base(name)), nil
	}
	return nil, &fs.PathError{Op: "stat", Path: name, Err: fs.ErrNotExist}
}

// ReadFile implements fs.ReadFileFS.
//
// ReadFile extracts and verifies the named file. Concurrent calls for the
// same name are deduplicated so that the entry is decompressed once.
func (a *Archive) ReadFile(name string) ([]byte, error) {
	if !fs.ValidPath(name) {
		return nil, &fs.PathError{Op: "readfile", Path: name, Err: fs.ErrInvalid}
	}

	e, ok := a.Lookup(name)
	if !ok {
		return nil, &fs.PathError{Op: "readfile", Path: name, Err: fs.ErrNotExist}
	}
	if e.IsDir() {
		return nil, &fs.PathError{Op: "readfile", Path: name, Err: errIsDir}
	}

	result, err, shared := a.readGroup.Do(name, func() (any, error) {
		return e.ReadAll()
	})
	if err != nil {
		return nil, err
	}
	content := result.([]byte) //nolint:errcheck,forcetypeassert // ReadAll returns []byte
	if shared {
		// Every caller may modify its slice.
		content = bytes.Clone(content)
	}
	return content, nil
}

// ReadDir implements fs.ReadDirFS.
//
// ReadDir returns the entries of the named directory sorted by name.
// Directories that only appear as a prefix of other names are listed as
// synthetic directories.
func (a *Archive) ReadDir(name string) ([]fs.DirEntry, error) {
	if !fs.ValidPath(name) {
		return nil, &fs.PathError{Op: "readdir", Path: name, Err: fs.ErrInvalid}
	}
	if !a.isDir(name) {
		return nil, &fs.PathError{Op: "readdir", Path: name, Err: fs.ErrNotExist}
	}
	return a.listDir(name), nil
}

// Stat returns file info for the entry.
func (e *Entry) Stat() fs.FileInfo {
	name := path.Base(NormalizePath(e.Name()))
	if e.IsDir() {
		return file.NewInfo(name, 0, e.Mode()|fs.ModeDir, e.Modified(), e)
	}
	return file.NewInfo(name, int64(e.UncompressedSize()), e.Mode(), e.Modified(), e) //nolint:gosec // sizes are 32-bit
}

// isDir reports whether name is a directory: the root, a directory entry,
// or a prefix of other entry names.
func (a *Archive) isDir(name string) bool {
	if name == "." {
		return true
	}
	if e, ok := a.Lookup(name); ok && e.IsDir() {
		return true
	}
	return a.index().hasPrefix(name + "/")
}

// listDir returns the immediate children of the directory name.
func (a *Archive) listDir(name string) []fs.DirEntry {
	prefix := ""
	if name != "." {
		prefix = name + "/"
	}

	seen := make(map[string]struct{})
	var out []fs.DirEntry
	for p, i := range a.index().withPrefix(prefix) {
		child, _, isSubDir := strings.Cut(p[len(prefix):], "/")
		if _, dup := seen[child]; dup {
			continue
		}
		seen[child] = struct{}{}

		if isSubDir {
			out = append(out, file.NewDirEntry(file.NewDirInfo(child)))
			continue
		}
		e, err := a.entry(i)
		if err != nil {
			continue
		}
		out = append(out, file.NewDirEntry(e.Stat()))
	}
	slices.SortFunc(out, func(x, y fs.DirEntry) int {
		return strings.Compare(x.Name(), y.Name())
	})
	return out
}

// openDir implements fs.File and fs.ReadDirFile for directories.
type openDir struct {
	a       *Archive
	name    string
	entries []fs.DirEntry
	offset  int
	listed  bool
}

func (d *openDir) Read(_ []byte) (int, error) {
	return 0, &fs.PathError{Op: "read", Path: d.name, Err: errIsDir}
}

func (d *openDir) Stat() (fs.FileInfo, error) {
	return d.a.Stat(d.name)
}

func (d *openDir) Close() error {
	d.entries = nil
	return nil
}

func (d *openDir) ReadDir(n int) ([]fs.DirEntry, error) {
	if !d.listed {
		d.entries = d.a.listDir(d.name)
		d.listed = true
	}

	rest := d.entries[d.offset:]
	if n <= 0 {
		d.offset = len(d.entries)
		return rest, nil
	}
	if len(rest) == 0 {
		return nil, io.EOF
	}
	n = min(n, len(rest))
	d.offset += n
	return rest[:n], nil
}
