package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/aweris/cachebench"
)

var rootCmd = &cobra.Command{
	Use:   "cachebench",
	Short: "Blob cache vs. key-value disk cache micro-benchmark",
	Long: "Cache the same inputs in a fingerprint-keyed blob cache and a digest-keyed\n" +
		"key-value disk cache, time every put and get, and report the average latencies.",
	SilenceUsage: true,
}

func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	flags := rootCmd.PersistentFlags()
	flags.String("config", "", "config file (default: ~/.config/cachebench/config.yaml)")
	flags.String("cache-dir", "", "cache directory (default: ~/.local/share/cachebench)")
	flags.String("log-level", "info", "log level: debug, info, warn, error")
	flags.String("log-format", "text", "log format: text, json")
	flags.String("metrics", "none", "metrics exporter: stdout, otlp, none")
	flags.String("compression", "none", "key-value cache compression: none, zstd, lz4")
	flags.Int("compression-level", 2, "compression level: 1 fastest, 2 default, 3 best")
	flags.Int("max-entries", cachebench.DefaultMaxEntries, "entry limit of each cache")
	flags.Int64("max-bytes", cachebench.DefaultMaxBytes, "byte budget of each cache")
	flags.Int("schema-version", cachebench.DefaultVersion, "cache schema version; a change discards both caches")
	flags.Int("pool-size", cachebench.DefaultPoolSize, "number of pooled read buffers")
	flags.Int("buffer-size", cachebench.DefaultBufferSize, "size of each pooled read buffer")
	flags.Int64("payload-cache", 256<<20, "bytes of loaded payloads kept in memory")
	flags.StringSlice("suffix", nil, "input file suffixes (default: jpg)")
	flags.String("s3-endpoint", "", "S3 endpoint for s3:// sources (default: s3.amazonaws.com)")
	flags.Bool("s3-insecure", false, "use plain HTTP for the S3 endpoint")
	flags.String("s3-region", "", "S3 region")

	for _, name := range []string{
		"cache-dir", "log-level", "log-format", "metrics", "compression", "compression-level",
		"max-entries", "max-bytes", "schema-version", "pool-size", "buffer-size", "payload-cache",
		"suffix", "s3-endpoint", "s3-insecure", "s3-region",
	} {
		viper.BindPFlag(configKey(name), flags.Lookup(name))
	}
}

func initConfig() {
	if cfg := rootCmd.PersistentFlags().Lookup("config").Value.String(); cfg != "" {
		viper.SetConfigFile(cfg)
	} else {
		viper.AddConfigPath(configDir())
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("CACHEBENCH")
	viper.AutomaticEnv()
	viper.SetDefault("cache_dir", defaultCacheDir())

	viper.ReadInConfig()
}

// configKey maps a flag name to its config file and environment key.
func configKey(flag string) string {
	return strings.ReplaceAll(flag, "-", "_")
}

func configDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "cachebench")
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".config", "cachebench")
	}
	return ".cachebench"
}

func defaultCacheDir() string {
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "cachebench")
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".local", "share", "cachebench")
	}
	return ".cachebench"
}

func getCacheDir() string {
	return viper.GetString("cache_dir")
}

func newLogger() (*cachebench.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(viper.GetString("log_level"))); err != nil {
		return nil, fmt.Errorf("invalid log level: %w", err)
	}
	switch format := viper.GetString("log_format"); format {
	case "text", "":
		return cachebench.NewTextLogger(level), nil
	case "json":
		return cachebench.NewJSONLogger(level), nil
	default:
		return nil, fmt.Errorf("unknown log format: %q", format)
	}
}
