package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func newListCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "list <archive>",
		Short: "List the entries of an archive",
		Long: `List every entry in central directory order with its method, sizes,
CRC-32 and modification time. Entries that cannot be extracted show why.

Example:
  zipmap list release.zip`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runList(v, cmd, args[0])
		},
	}
}

func runList(v *viper.Viper, cmd *cobra.Command, path string) error {
	af, _, err := openArchive(v, cmd, path)
	if err != nil {
		return err
	}
	defer af.Close()

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tMETHOD\tCOMPRESSED\tSIZE\tCRC32\tMODIFIED\tSTATUS")
	for e := range af.Entries() {
		status := "ok"
		if err := e.Err(); err != nil {
			status = err.Error()
		}
		modified := "-"
		if t := e.Modified(); !t.IsZero() {
			modified = t.Format(time.DateTime)
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%08x\t%s\t%s\n",
			e.Name(), e.Method(), e.CompressedSize(), e.UncompressedSize(), e.CRC32(), modified, status)
	}
	if comment := af.Comment(); len(comment) > 0 {
		fmt.Fprintf(tw, "\ncomment: %s\n", comment)
	}
	return tw.Flush()
}
