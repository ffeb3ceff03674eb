package zipfmt

import (
	"io/fs"
	"time"
)

// OS identifies the host system recorded in the upper byte of the
// "version made by" field.
type OS uint8

// Host systems from the ZIP application note.
const (
	OSMSDOS OS = iota
	OSAmiga
	OSOpenVMS
	OSUnix
	OSVMCMS
	OSAtariST
	OSOS2HPFS
	OSMacintosh
	OSZSystem
	OSCPM
	OSWindowsNTFS
	OSMVS
	OSVSE
	OSAcornRisc
	OSVFAT
	OSAlternateMVS
	OSBeOS
	OSTandem
	OSOS400
	OSDarwin
)

var osNames = [...]string{
	"ms-dos", "amiga", "openvms", "unix", "vm/cms", "atari st", "os/2 hpfs",
	"macintosh", "z-system", "cp/m", "windows ntfs", "mvs", "vse",
	"acorn risc", "vfat", "alternate mvs", "beos", "tandem", "os/400", "darwin",
}

func (o OS) String() string {
	if int(o) < len(osNames) {
		return osNames[o]
	}
	return "unused"
}

// CreatorOS returns the host system that wrote the record.
func (r *Record) CreatorOS() OS {
	return OS(r.CreatorVersion >> 8)
}

// Modified returns the entry's modification time. The extended timestamp
// extra field (0x5455) wins over the MS-DOS date and time when present;
// MS-DOS times carry no zone and are reported in UTC.
func (r *Record) Modified() time.Time {
	if body, ok := findExtra(r.Extra, extendedTimeID); ok && body.Len() >= 5 {
		b := body.Bytes()
		if b[0]&extendedTimeModBit != 0 {
			return time.Unix(int64(int32(le.Uint32(b[1:]))), 0).UTC()
		}
	}
	return DOSTime(r.ModifiedDate, r.ModifiedTime)
}

// DOSTime converts MS-DOS date and time fields.
func DOSTime(date, tm uint16) time.Time {
	if date == 0 && tm == 0 {
		return time.Time{}
	}
	return time.Date(
		int(date>>9)+1980,
		time.Month(date>>5&0xf),
		int(date&0x1f),
		int(tm>>11),
		int(tm>>5&0x3f),
		int(tm&0x1f)*2,
		0,
		time.UTC,
	)
}

// Unix and MS-DOS attribute bits.
const (
	unixTypeMask  = 0xf000
	unixSocket    = 0xc000
	unixSymlink   = 0xa000
	unixRegular   = 0x8000
	unixBlock     = 0x6000
	unixDir       = 0x4000
	unixChar      = 0x2000
	unixFIFO      = 0x1000
	unixSetuid    = 0x800
	unixSetgid    = 0x400
	unixSticky    = 0x200
	msdosDir      = 0x10
	msdosReadOnly = 0x01
)

// Mode derives the entry's file mode from its external attributes.
// Names ending in "/" are always directories.
func (r *Record) Mode() fs.FileMode {
	var mode fs.FileMode
	switch r.CreatorOS() {
	case OSUnix, OSDarwin:
		mode = unixMode(r.ExternalAttrs >> 16)
	case OSMSDOS, OSWindowsNTFS, OSVFAT:
		mode = msdosMode(r.ExternalAttrs)
	default:
		mode = 0o644
	}
	if name := r.Name.Bytes(); len(name) > 0 && name[len(name)-1] == '/' {
		mode |= fs.ModeDir
	}
	return mode
}

func unixMode(m uint32) fs.FileMode {
	mode := fs.FileMode(m & 0o777)
	switch m & unixTypeMask {
	case unixBlock:
		mode |= fs.ModeDevice
	case unixChar:
		mode |= fs.ModeDevice | fs.ModeCharDevice
	case unixDir:
		mode |= fs.ModeDir
	case unixFIFO:
		mode |= fs.ModeNamedPipe
	case unixSymlink:
		mode |= fs.ModeSymlink
	case unixSocket:
		mode |= fs.ModeSocket
	case unixRegular:
	}
	if m&unixSetuid != 0 {
		mode |= fs.ModeSetuid
	}
	if m&unixSetgid != 0 {
		mode |= fs.ModeSetgid
	}
	if m&unixSticky != 0 {
		mode |= fs.ModeSticky
	}
	return mode
}

func msdosMode(m uint32) fs.FileMode {
	var mode fs.FileMode
	if m&msdosDir != 0 {
		mode = fs.ModeDir | 0o777
	} else {
		mode = 0o666
	}
	if m&msdosReadOnly != 0 {
		mode &^= 0o222
	}
	return mode
}
