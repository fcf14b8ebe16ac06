package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/archconv/archconv/internal/engine"
	"github.com/archconv/archconv/internal/engine/sinks"
	"github.com/archconv/archconv/pkg/archconv"
	"github.com/urfave/cli/v3"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var loggerDeferFunc func() error

func main() {
	app := &cli.Command{
		Name:  "archconv",
		Usage: "Convert archives between zip, tar.gz, tar.zst, tar and 7z",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    "debug",
				Aliases: []string{"d"},
				Usage:   "Enable debug logging",
			},
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Value:   "warn",
				Usage:   "Log Level (debug, info, warn, error, fatal)",
				Action: func(ctx context.Context, command *cli.Command, s string) error {
					if _, err := zapcore.ParseLevel(s); err != nil {
						return fmt.Errorf("invalid log level %s: %w", s, err)
					}
					return nil
				},
			},
			&cli.StringFlag{
				Name:    "spool-dir",
				Usage:   "Directory for temporary files (default: OS temp dir)",
				Sources: cli.EnvVars("ARCHCONV_SPOOL_DIR"),
			},
			&cli.StringFlag{
				Name:    "s3-region",
				Usage:   "Region for s3:// locations",
				Sources: cli.EnvVars("AWS_REGION"),
			},
			&cli.StringFlag{
				Name:    "s3-endpoint",
				Usage:   "Custom endpoint for S3-compatible storage",
				Sources: cli.EnvVars("ARCHCONV_S3_ENDPOINT"),
			},
			&cli.BoolFlag{
				Name:  "s3-force-path-style",
				Usage: "Use path-style S3 addressing (MinIO and similar)",
			},
		},
		Commands: []*cli.Command{
			transcodeCommand,
			probeCommand,
			listCommand,
			runCommand,
			validateCommand,
			versionCommand,
		},
		Before: func(ctx context.Context, command *cli.Command) (context.Context, error) {
			logger, err := createLogger(command.Bool("debug"), command.String("log-level"))
			if err != nil {
				return nil, err
			}

			logger.Debug("logger created", zap.String("log_level", command.String("log-level")))

			loggerDeferFunc = func() error {
				return logger.Sync()
			}

			ctx = withInteractive(ctx, isInteractiveEnvironment())
			return withLogger(ctx, logger), nil
		},
		ExitErrHandler: func(ctx context.Context, command *cli.Command, err error) {
			if err == nil {
				return
			}

			if logger := tryLogger(ctx); logger != nil {
				logger.Error("failed to run application", zap.Error(err))
			} else {
				log.Print(fmt.Errorf("failed to run application: %w", err))
			}
			os.Exit(1)
		},
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sig
		cancel()
	}()

	defer func() {
		if loggerDeferFunc != nil {
			_ = loggerDeferFunc()
		}
	}()

	_ = app.Run(ctx, os.Args)
}

// newEngine builds the engine from the global flags.
func newEngine(ctx context.Context, command *cli.Command) *archconv.Engine {
	return archconv.New(getLogger(ctx).Named("engine"), archconv.Config{
		Spool: engine.SpoolConfig{Dir: command.String("spool-dir")},
		S3: sinks.S3Config{
			Region:         command.String("s3-region"),
			Endpoint:       command.String("s3-endpoint"),
			ForcePathStyle: command.Bool("s3-force-path-style"),
		},
	})
}
