package main

import (
	"fmt"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/meigma/zipmap"
)

func newExtractCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "extract <archive> <dir>",
		Short: "Extract an archive into a directory",
		Long: `Extract every entry below dir. Files are written to a temporary name
and renamed once their CRC-32 has been verified. Entries with unsafe names
(absolute, containing "..", or using backslashes) are refused. A failing
entry does not stop the others; the command exits non-zero if any failed.

Example:
  zipmap extract release.zip ./out`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExtract(v, cmd, args[0], args[1])
		},
	}

	f := cmd.Flags()
	f.Bool(keyOverwrite, false, "overwrite existing files")
	f.Bool(keyPreserveMode, true, "apply permission bits from the archive")
	f.Bool(keyPreserveTimes, true, "apply modification times from the archive")
	f.Uint64(keyMaxInflight, 0, "cap on uncompressed bytes extracted at once (0 = unlimited)")
	return cmd
}

func runExtract(v *viper.Viper, cmd *cobra.Command, path, dir string) error {
	af, _, err := openArchive(v, cmd, path)
	if err != nil {
		return err
	}
	defer af.Close()

	stats, err := af.ExtractTo(cmd.Context(), afero.NewOsFs(), dir,
		zipmap.CopyWithOverwrite(v.GetBool(keyOverwrite)),
		zipmap.CopyWithPreserveMode(v.GetBool(keyPreserveMode)),
		zipmap.CopyWithPreserveTimes(v.GetBool(keyPreserveTimes)),
		zipmap.CopyWithWorkers(v.GetInt(keyWorkers)),
		zipmap.CopyWithMaxInflightBytes(v.GetUint64(keyMaxInflight)),
	)
	fmt.Fprintf(cmd.OutOrStdout(), "extracted %d files (%d bytes), %d directories, skipped %d, failed %d\n",
		stats.Processed, stats.TotalBytes, stats.Dirs, stats.Skipped, stats.Failed)
	if err != nil {
		return fmt.Errorf("extract %s: %w", path, err)
	}
	return nil
}
