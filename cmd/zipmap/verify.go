package main

import (
	"context"
	"fmt"
	"runtime"
	"slices"

	digest "github.com/opencontainers/go-digest"
	concpool "github.com/sourcegraph/conc/pool"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/meigma/zipmap"
)

func newVerifyCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "verify <archive>",
		Short: "Decompress every entry and check its CRC-32",
		Long: `Stream every entry through the bounded decompressor, verify its CRC-32
and print the sha256 digest of its content. Exits non-zero if any entry
fails.

Example:
  zipmap verify release.zip`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runVerify(v, cmd, args[0])
		},
	}
}

type verifyResult struct {
	index  int
	name   string
	digest digest.Digest
	size   uint64
	err    error
}

func runVerify(v *viper.Viper, cmd *cobra.Command, path string) error {
	af, logger, err := openArchive(v, cmd, path)
	if err != nil {
		return err
	}
	defer af.Close()

	workers := v.GetInt(keyWorkers)
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	ctx := cmd.Context()
	pl := concpool.NewWithResults[verifyResult]().WithMaxGoroutines(workers)
	for e := range af.Entries() {
		if e.IsDir() {
			continue
		}
		pl.Go(func() verifyResult {
			return verifyEntry(ctx, e)
		})
	}
	results := pl.Wait()
	slices.SortFunc(results, func(a, b verifyResult) int {
		return a.index - b.index
	})

	failed := 0
	out := cmd.OutOrStdout()
	for _, r := range results {
		if r.err != nil {
			failed++
			fmt.Fprintf(out, "FAILED  %s: %v\n", r.name, r.err)
			continue
		}
		fmt.Fprintf(out, "%s  %10d  %s\n", r.digest, r.size, r.name)
	}
	logger.Info("verified archive", "path", path, "entries", len(results), "failed", failed)
	if failed > 0 {
		return fmt.Errorf("%d of %d entries failed verification", failed, len(results))
	}
	return nil
}

func verifyEntry(ctx context.Context, e *zipmap.Entry) verifyResult {
	r := verifyResult{index: e.Index(), name: e.Name()}
	d := digest.Canonical.Digester()
	for chunk, err := range e.Extract() {
		if err != nil {
			r.err = err
			return r
		}
		if err := ctx.Err(); err != nil {
			r.err = err
			return r
		}
		_, _ = d.Hash().Write(chunk) //nolint:errcheck // hash writes never fail
		r.size += uint64(len(chunk))
	}
	r.digest = d.Digest()
	return r
}
