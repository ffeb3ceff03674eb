// Package zipmap reads ZIP archives directly out of a memory-mapped buffer.
//
// Parsing never copies archive bytes: entry names, comments and extra
// fields are slices of the mapped buffer, and stored entries are streamed
// as sub-slices of it. Compressed entries are decoded chunk by chunk under
// a size ceiling and an expansion-ratio limit, so a zip bomb fails with
// [ErrDecompressionBomb] instead of exhausting memory. Every entry's
// CRC-32 is verified once its last chunk has been produced.
//
// # Quick Start
//
//	af, err := zipmap.OpenFile("release.zip")
//	if err != nil {
//	    return err
//	}
//	defer af.Close()
//
//	for entry := range af.Entries() {
//	    for chunk, err := range entry.Extract() {
//	        if err != nil {
//	            return err
//	        }
//	        process(chunk) // valid until the next iteration
//	    }
//	}
//
// An [Archive] also implements [io/fs.FS], [io/fs.StatFS],
// [io/fs.ReadFileFS] and [io/fs.ReadDirFS], and [Archive.ExtractTo] writes
// the whole archive to an afero filesystem.
//
// ZIP64 and multi-disk archives are rejected with [ErrUnsupportedFormat].
package zipmap
