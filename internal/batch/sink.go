package batch

import (
	"io"
	"io/fs"
	"time"
)

// Entry is one archive member scheduled for extraction.
type Entry struct {
	// Path is the slash-separated destination path; it must satisfy
	// fs.ValidPath.
	Path    string
	Mode    fs.FileMode
	ModTime time.Time

	// Size is the declared uncompressed size, charged against the
	// in-flight byte budget.
	Size uint64

	// Copy streams the entry's verified content to w. It must only return
	// nil once the content was fully written and verified.
	Copy func(w io.Writer) error
}

// Sink receives extracted entries.
type Sink interface {
	// ShouldProcess returns false if this entry should be skipped, for
	// example because the destination already exists.
	ShouldProcess(entry *Entry) bool

	// Mkdir creates the directory for a directory entry.
	Mkdir(entry *Entry) error

	// Writer returns a writer for the entry's content. The returned
	// Committer must have Commit called after a successful copy, or
	// Discard called on any error.
	Writer(entry *Entry) (Committer, error)
}

// Committer is a writer that can be committed or discarded.
//
// Implementations stage writes until Commit is called. A file-based
// implementation writes to a temp file and renames it on Commit, or
// deletes it on Discard.
type Committer interface {
	io.Writer

	// Commit finalizes the write, making content available.
	Commit() error

	// Discard aborts the write and cleans up any temporary resources.
	Discard() error
}
