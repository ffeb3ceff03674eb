// Package file provides fs.FileInfo and fs.DirEntry implementations for
// archive members and the directories synthesized from their paths.
package file

import (
	"io/fs"
	"time"
)

// Info implements fs.FileInfo for archive members.
type Info struct {
	name    string
	size    int64
	mode    fs.FileMode
	modTime time.Time
	sys     any
}

// NewInfo creates an Info. sys is returned by Sys.
func NewInfo(name string, size int64, mode fs.FileMode, modTime time.Time, sys any) *Info {
	return &Info{name: name, size: size, mode: mode, modTime: modTime, sys: sys}
}

func (fi *Info) Name() string       { return fi.name }
func (fi *Info) Size() int64        { return fi.size }
func (fi *Info) Mode() fs.FileMode  { return fi.mode }
func (fi *Info) ModTime() time.Time { return fi.modTime }
func (fi *Info) IsDir() bool        { return fi.mode.IsDir() }
func (fi *Info) Sys() any           { return fi.sys }

// DirInfo implements fs.FileInfo for synthetic directories.
type DirInfo struct {
	name string
}

// NewDirInfo creates a DirInfo with the given name.
func NewDirInfo(name string) *DirInfo {
	return &DirInfo{name: name}
}

func (di *DirInfo) Name() string       { return di.name }
func (di *DirInfo) Size() int64        { return 0 }
func (di *DirInfo) Mode() fs.FileMode  { return fs.ModeDir | 0o755 }
func (di *DirInfo) ModTime() time.Time { return time.Time{} }
func (di *DirInfo) IsDir() bool        { return true }
func (di *DirInfo) Sys() any           { return nil }

// DirEntry implements fs.DirEntry by wrapping fs.FileInfo.
type DirEntry struct {
	info fs.FileInfo
}

// NewDirEntry creates a DirEntry wrapping the given FileInfo.
func NewDirEntry(info fs.FileInfo) *DirEntry {
	return &DirEntry{info: info}
}

func (de *DirEntry) Name() string               { return de.info.Name() }
func (de *DirEntry) IsDir() bool                { return de.info.IsDir() }
func (de *DirEntry) Type() fs.FileMode          { return de.info.Mode().Type() }
func (de *DirEntry) Info() (fs.FileInfo, error) { return de.info, nil }
func (de *DirEntry) String() string             { return fs.FormatDirEntry(de) }
