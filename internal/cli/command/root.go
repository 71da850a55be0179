package command

import (
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/urfave/cli/v2"

	"github.com/yndnr/docguard/internal/cli/config"
	"github.com/yndnr/docguard/internal/cli/output"
	"github.com/yndnr/docguard/internal/infra/buildinfo"
	"github.com/yndnr/docguard/internal/storage"
	"github.com/yndnr/docguard/internal/storage/codec"
	"github.com/yndnr/docguard/internal/telemetry/logger"
	"github.com/yndnr/docguard/internal/telemetry/metric"
)

const envKey = "env"

// App creates the CLI application.
func App() *cli.App {
	return &cli.App{
		Name:    "docguard",
		Usage:   "Durable local storage for a single JSON document",
		Version: buildinfo.String(),
		Flags:   globalFlags(),
		Commands: []*cli.Command{
			ShowCommand(),
			ImportCommand(),
			ExportCommand(),
			VerifyCommand(),
			SizeCommand(),
			ClearCommand(),
			BackupCommand(),
			MonitorCommand(),
			VersionCommand(),
		},
		Metadata: map[string]any{},
	}
}

// globalFlags returns the global CLI flags.
func globalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Usage:   "Path to the YAML configuration file",
			EnvVars: []string{"DOCGUARD_CONFIG"},
		},
		&cli.StringFlag{
			Name:  "backend",
			Usage: "Storage backend: fs, badger, sqlite",
		},
		&cli.StringFlag{
			Name:    "data-dir",
			Aliases: []string{"d"},
			Usage:   "Directory holding the document and backups",
		},
		&cli.StringFlag{
			Name:    "output",
			Aliases: []string{"o"},
			Usage:   "Output format: table, json, yaml",
			Value:   "table",
		},
		&cli.BoolFlag{
			Name:    "verbose",
			Aliases: []string{"V"},
			Usage:   "Enable debug logging",
		},
	}
}

// env is the per-invocation state shared by commands.
type env struct {
	cfgPath   string
	overrides map[string]any
	cfg       *config.Config
	logger    *slog.Logger
	formatter output.Formatter
}

// flagOverrides maps global flags that were set explicitly to config keys.
func flagOverrides(c *cli.Context) map[string]any {
	overrides := make(map[string]any)
	if c.IsSet("backend") {
		overrides["storage.backend"] = c.String("backend")
	}
	if c.IsSet("data-dir") {
		overrides["storage.data_dir"] = c.String("data-dir")
	}
	if c.Bool("verbose") {
		overrides["log.level"] = "debug"
	}
	return overrides
}

// loadEnv loads configuration once per invocation and attaches a logger
// tagged with the running command to c.Context.
func loadEnv(c *cli.Context) (*env, error) {
	if e, ok := c.App.Metadata[envKey].(*env); ok {
		return e, nil
	}

	format, err := output.ParseFormat(c.String("output"))
	if err != nil {
		return nil, err
	}

	e := &env{
		cfgPath:   c.String("config"),
		overrides: flagOverrides(c),
		formatter: output.NewFormatter(format),
	}
	e.cfg, err = config.Load(e.cfgPath, e.overrides)
	if err != nil {
		return nil, err
	}

	lc := e.cfg.LoggerConfig()
	lc.Output = errWriter(c)
	ctx := logger.WithLogger(c.Context, logger.New(lc))
	if c.Command != nil && c.Command.Name != "" {
		ctx = logger.WithOperation(ctx, c.Command.Name)
	}
	c.Context = ctx
	e.logger = logger.L(ctx)
	e.logger.Debug("configuration loaded", "config", config.Sanitize(e.cfg))

	c.App.Metadata[envKey] = e
	return e, nil
}

func errWriter(c *cli.Context) io.Writer {
	if c.App.ErrWriter != nil {
		return c.App.ErrWriter
	}
	return io.Discard
}

// openStore opens the configured backend and wraps it in a Store. A non-nil
// reg receives store and backend metrics.
func openStore(e *env, reg *metric.Registry) (*storage.Store, error) {
	sealer, err := e.cfg.Storage.Sealer()
	if err != nil {
		return nil, err
	}
	var opts []codec.Option
	if sealer != nil {
		opts = append(opts, codec.WithSealer(sealer))
	}
	if e.cfg.Storage.Compression {
		e.logger.Warn("storage.compression is reserved and has no effect")
	}

	b, err := storage.OpenBackend(e.cfg.BackendConfig(e.logger))
	if err != nil {
		return nil, err
	}

	if reg != nil {
		if mb, ok := b.(interface {
			RegisterMetrics(prometheus.Registerer) error
		}); ok {
			if err := mb.RegisterMetrics(reg.Registerer()); err != nil {
				_ = b.Close()
				return nil, fmt.Errorf("register backend metrics: %w", err)
			}
		}
	}

	s, err := storage.New(storage.Config{
		Backend:        b,
		Codec:          codec.New(opts...),
		DebounceWindow: e.cfg.Storage.DebounceWindow,
		Retention:      e.cfg.RetentionPolicy(),
		Logger:         e.logger,
		Metrics:        reg,
	})
	if err != nil {
		_ = b.Close()
		return nil, err
	}
	return s, nil
}

// withStore runs fn against a freshly opened store and closes it afterwards.
func withStore(c *cli.Context, fn func(e *env, s *storage.Store) error) error {
	e, err := loadEnv(c)
	if err != nil {
		return err
	}
	s, err := openStore(e, nil)
	if err != nil {
		return err
	}
	runErr := fn(e, s)
	closeErr := s.Close(c.Context)
	return errors.Join(runErr, closeErr)
}

// render writes data to the app's writer in the selected format.
func render(c *cli.Context, e *env, data any) error {
	return e.formatter.Format(c.App.Writer, data)
}

// VersionCommand prints build information.
func VersionCommand() *cli.Command {
	return &cli.Command{
		Name:  "version",
		Usage: "Show build information",
		Action: func(c *cli.Context) error {
			format, err := output.ParseFormat(c.String("output"))
			if err != nil {
				return err
			}
			return output.NewFormatter(format).Format(c.App.Writer, buildinfo.Get())
		},
	}
}
