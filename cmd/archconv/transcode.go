package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/archconv/archconv/internal/engine"
	"github.com/archconv/archconv/pkg/archconv"
	"github.com/urfave/cli/v3"
	"go.uber.org/zap"
)

func parseFormatFlag(command *cli.Command, name string) (engine.Format, error) {
	value := command.String(name)
	if value == "" {
		return engine.FormatUnknown, nil
	}
	return engine.ParseFormat(value)
}

var transcodeCommand = &cli.Command{
	Name:      "transcode",
	Aliases:   []string{"convert"},
	Usage:     "Convert an archive into another format",
	ArgsUsage: "SOURCE [DESTINATION]",
	Description: "SOURCE is a path, - for stdin, or an http(s):// or s3:// URL. DESTINATION is a path,\n" +
		"- for stdout, or an s3:// URL. Without DESTINATION the output is written to --output-dir.",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:    "format",
			Aliases: []string{"f"},
			Usage:   "Output format (zip, tar.gz, tar.zst, tar, 7z); inferred from DESTINATION when omitted",
		},
		&cli.StringFlag{
			Name:  "from",
			Usage: "Expected source format; only checked against the sniffed signature",
		},
		&cli.StringFlag{
			Name:  "output-dir",
			Usage: "Directory for the output when DESTINATION is omitted",
			Value: ".",
		},
		&cli.StringFlag{
			Name:  "filter",
			Usage: `CEL expression selecting entries, e.g. 'kind == "file" && size < 1048576'`,
		},
		&cli.IntFlag{
			Name:  "level",
			Usage: "Compression level from 1 (fastest) to 9 (smallest)",
		},
		&cli.BoolFlag{
			Name:  "minimal-zip",
			Usage: "Write zip entries without unix modes and refuse symlinks",
		},
		&cli.BoolFlag{
			Name:  "json",
			Usage: "Print the result as JSON",
		},
	},
	Action: func(ctx context.Context, command *cli.Command) error {
		logger := getLogger(ctx)

		source := command.Args().Get(0)
		if source == "" {
			return fmt.Errorf("no source provided")
		}

		format, err := parseFormatFlag(command, "format")
		if err != nil {
			return err
		}
		hint, err := parseFormatFlag(command, "from")
		if err != nil {
			return err
		}

		destination := command.Args().Get(1)
		if destination == "" {
			if format == engine.FormatUnknown {
				return fmt.Errorf("--format is required when no destination is given")
			}
			destination = archconv.OutputPath(command.String("output-dir"), source, format)
		}

		if destination == "-" && command.Bool("json") {
			return fmt.Errorf("--json cannot be combined with output to stdout")
		}

		req := archconv.Request{
			Source:      source,
			Destination: destination,
			SourceHint:  hint,
			Format:      format,
			Filter:      command.String("filter"),
			Level:       command.Int("level"),
			MinimalZip:  command.Bool("minimal-zip"),
		}

		var progress *progressLine
		if isInteractive(ctx) && !command.Bool("json") {
			progress = newProgressLine(os.Stderr)
			req.Progress = func(p engine.Progress) {
				progress.report(source, p)
			}
		}

		logger.Debug("transcoding", zap.String("source", source), zap.String("destination", destination))
		result := newEngine(ctx, command).Transcode(ctx, req)
		if progress != nil {
			progress.done()
		}

		if command.Bool("json") {
			if err := json.NewEncoder(os.Stdout).Encode(result); err != nil {
				return fmt.Errorf("failed to encode result: %w", err)
			}
		} else {
			printResult(os.Stderr, fmt.Sprintf("%s → %s", source, destination), result)
		}

		if !result.Succeeded() {
			return fmt.Errorf("transcode %s: %w", result.Status, result.Err)
		}
		return nil
	},
}
