package main

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/meigma/zipmap"
)

// Configuration keys. Each can be set by flag, by a ZIPMAP_ environment
// variable (dashes become underscores) or in the config file.
const (
	keySizeCeiling   = "size-ceiling"
	keyMaxRatio      = "max-ratio"
	keyStrict        = "strict"
	keyWorkers       = "workers"
	keyLogLevel      = "log-level"
	keyZstdMemory    = "zstd-max-memory"
	keyZstdLowmem    = "zstd-lowmem"
	keyZstdThreads   = "zstd-concurrency"
	keyOverwrite     = "overwrite"
	keyPreserveMode  = "preserve-mode"
	keyPreserveTimes = "preserve-times"
	keyMaxInflight   = "max-inflight"
)

func newRootCmd() *cobra.Command {
	v := viper.New()
	var configFile string

	root := &cobra.Command{
		Use:   "zipmap",
		Short: "Inspect and extract ZIP archives without copying them",
		Long: `zipmap reads ZIP archives through a read-only memory mapping.

Every entry is decompressed under a size ceiling and an expansion-ratio
limit, and its CRC-32 is verified once the last byte has been produced.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return loadConfig(v, cmd, configFile)
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&configFile, "config", "", "config file (yaml, toml or json)")
	pf.Uint64(keySizeCeiling, zipmap.DefaultSizeCeiling, "largest uncompressed entry size in bytes")
	pf.Float64(keyMaxRatio, zipmap.DefaultMaxExpansionRatio, "largest decompressed/compressed ratio (negative disables)")
	pf.Bool(keyStrict, true, "fail entries whose local header disagrees with the central directory")
	pf.Int(keyWorkers, 0, "entries processed concurrently (0 = GOMAXPROCS)")
	pf.String(keyLogLevel, "warn", "log level (debug, info, warn, error)")
	pf.Uint64(keyZstdMemory, 256<<20, "memory limit per zstd decoder in bytes (0 = unlimited)")
	pf.Bool(keyZstdLowmem, false, "decode zstd entries in low-memory mode")
	pf.Int(keyZstdThreads, 1, "goroutines per zstd decoder (0 = GOMAXPROCS)")

	root.AddCommand(newListCmd(v), newVerifyCmd(v), newExtractCmd(v))
	return root
}

// loadConfig layers flags, environment and the optional config file.
func loadConfig(v *viper.Viper, cmd *cobra.Command, configFile string) error {
	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return fmt.Errorf("bind flags: %w", err)
	}
	v.SetEnvPrefix("ZIPMAP")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("read config %s: %w", configFile, err)
		}
	}
	return nil
}

// newLogger builds the text logger for the configured level.
func newLogger(v *viper.Viper, cmd *cobra.Command) (*slog.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(v.GetString(keyLogLevel))); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", v.GetString(keyLogLevel), err)
	}
	return slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level})), nil
}

// openArchive maps path with the configured limits.
func openArchive(v *viper.Viper, cmd *cobra.Command, path string) (*zipmap.ArchiveFile, *slog.Logger, error) {
	logger, err := newLogger(v, cmd)
	if err != nil {
		return nil, nil, err
	}
	af, err := zipmap.OpenFile(path,
		zipmap.WithSizeCeiling(v.GetUint64(keySizeCeiling)),
		zipmap.WithMaxExpansionRatio(v.GetFloat64(keyMaxRatio)),
		zipmap.WithStrictLocalHeaderCheck(v.GetBool(keyStrict)),
		zipmap.WithDecompressor(zipmap.Zstd, zipmap.NewZstdDecompressor(v.GetUint64(keyZstdMemory),
			zipmap.ZstdWithLowmem(v.GetBool(keyZstdLowmem)),
			zipmap.ZstdWithConcurrency(v.GetInt(keyZstdThreads)),
		)),
		zipmap.WithLogger(logger),
	)
	if err != nil {
		return nil, nil, err
	}
	logger.Debug("opened archive", "path", path, "entries", af.Len())
	return af, logger, nil
}
