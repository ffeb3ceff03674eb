package batch

// ProcessStats contains statistics from a batch processing operation.
type ProcessStats struct {
	// Processed is the number of files successfully written to the sink.
	Processed int

	// Dirs is the number of directories created.
	Dirs int

	// Skipped is the number of entries skipped (ShouldProcess returned false).
	Skipped int

	// Failed is the number of entries that returned an error.
	Failed int

	// TotalBytes is the number of content bytes written.
	TotalBytes uint64
}

// add accumulates stats from another ProcessStats into this one.
func (s *ProcessStats) add(other ProcessStats) {
	s.Processed += other.Processed
	s.Dirs += other.Dirs
	s.Skipped += other.Skipped
	s.Failed += other.Failed
	s.TotalBytes += other.TotalBytes
}
