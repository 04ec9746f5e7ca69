// Package cli holds the collectord command tree.
package cli

import (
	"context"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"collectord/internal/config"
	"collectord/internal/httpapi"
	"collectord/internal/logging"
)

// Options are the global flags shared by every subcommand.
type Options struct {
	ConfigPath string
	LogLevel   string
	LogFormat  string

	stdout io.Writer
	stderr io.Writer
	lookup func(string) (string, bool)
}

// Actions, replaceable in tests.
var (
	fnServe   = runServe
	fnStream  = runStream
	fnMonitor = runMonitor
)

// Run executes the command tree with args.
func Run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	opts := &Options{stdout: stdout, stderr: stderr, lookup: os.LookupEnv}
	root := buildRootCmdWith(opts)
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	return root.ExecuteContext(ctx)
}

// buildRootCmdWith constructs the command tree bound to opts.
func buildRootCmdWith(opts *Options) *cobra.Command {
	root := &cobra.Command{
		Use:           "collectord",
		Short:         "Collect, synchronize and redistribute detector events",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "", "Config file (.yaml, .json or .toml)")
	root.PersistentFlags().StringVar(&opts.LogLevel, "log-level", "", "Log level: debug|info|warn|error (defaults COLLECTORD_LOG_LEVEL or info)")
	root.PersistentFlags().StringVar(&opts.LogFormat, "log-format", "", "Log format: auto|json|console")

	root.AddCommand(newServeCmd(opts), newStreamCmd(opts), newMonitorCmd(opts))
	return root
}

// resolve loads the config file, then applies env, then the flags the user set.
func (o *Options) resolve(cmd *cobra.Command) (config.Config, zerolog.Logger, error) {
	var cfg config.Config
	if o.ConfigPath != "" {
		loaded, err := config.Load(o.ConfigPath)
		if err != nil {
			return cfg, zerolog.Nop(), err
		}
		cfg = loaded
	}
	if err := config.ApplyEnv(&cfg, o.lookup); err != nil {
		return cfg, zerolog.Nop(), err
	}
	if o.LogLevel != "" {
		cfg.LogLevel = o.LogLevel
	}
	if o.LogFormat != "" {
		cfg.LogFormat = o.LogFormat
	}
	applyFlags(cmd, &cfg)
	config.ApplyDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return cfg, zerolog.Nop(), err
	}
	logger := logging.NewWithWriter(o.stderr, cfg.LogLevel, cfg.LogFormat)
	httpapi.SetLogger(logger)
	return cfg, logger, nil
}

// applyFlags copies explicitly set command flags onto cfg.
func applyFlags(cmd *cobra.Command, cfg *config.Config) {
	f := cmd.Flags()
	str := func(name string, dst *string) {
		if f.Changed(name) {
			*dst, _ = f.GetString(name)
		}
	}
	str("addr", &cfg.Addr)
	str("collector-name", &cfg.CollectorName)
	str("composite-type", &cfg.CompositeType)
	str("stream-target", &cfg.StreamTarget)
	str("backup-save-file", &cfg.BackupSaveFilePath)
	if f.Changed("sync") {
		cfg.SyncEnabled, _ = f.GetBool("sync")
	}
	if f.Changed("swagger") {
		cfg.Swagger, _ = f.GetBool("swagger")
	}
	if f.Changed("max-pending") {
		cfg.MaxPending, _ = f.GetInt("max-pending")
	}
	if f.Changed("straggler-timeout") {
		d, _ := f.GetDuration("straggler-timeout")
		cfg.StragglerTimeout = d.String()
		if d < 0 {
			cfg.StragglerTimeout = "off"
		}
	}
	if f.Changed("cors-origins") {
		v, _ := f.GetString("cors-origins")
		cfg.CORSOrigins = config.SplitCSV(v)
		cfg.CORSEnabled = len(cfg.CORSOrigins) > 0
	}
}

// endpoint joins a base URL and a path, turning http(s) into ws(s).
func endpoint(base, path string) string {
	base = strings.TrimRight(base, "/")
	switch {
	case strings.HasPrefix(base, "http://"):
		base = "ws://" + strings.TrimPrefix(base, "http://")
	case strings.HasPrefix(base, "https://"):
		base = "wss://" + strings.TrimPrefix(base, "https://")
	case !strings.Contains(base, "://"):
		base = "ws://" + base
	}
	return base + path
}

const dialTimeout = 5 * time.Second
