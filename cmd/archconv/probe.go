package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/archconv/archconv/internal/engine"
	"github.com/urfave/cli/v3"
)

var probeCommand = &cli.Command{
	Name:      "probe",
	Usage:     "Identify the container format of archives from their signature",
	ArgsUsage: "FILE...",
	Action: func(ctx context.Context, command *cli.Command) error {
		files := command.Args().Slice()
		if len(files) == 0 {
			return fmt.Errorf("no file provided")
		}

		e := newEngine(ctx, command)
		tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)

		var errs error
		for _, file := range files {
			format, err := e.Probe(ctx, file)
			switch {
			case errors.Is(err, engine.ErrUnsupportedFormat):
				fmt.Fprintf(tw, "%s\t%s\n", file, failColor.Sprint("unsupported"))
				errs = errors.Join(errs, fmt.Errorf("%s: %w", file, err))
			case err != nil:
				fmt.Fprintf(tw, "%s\t%s\n", file, failColor.Sprint("error"))
				errs = errors.Join(errs, fmt.Errorf("%s: %w", file, err))
			default:
				fmt.Fprintf(tw, "%s\t%s\n", file, format)
			}
		}
		if err := tw.Flush(); err != nil {
			return err
		}
		return errs
	},
}

var listCommand = &cli.Command{
	Name:      "list",
	Aliases:   []string{"ls"},
	Usage:     "List archive members with their sha256 digest",
	ArgsUsage: "FILE",
	Flags: []cli.Flag{
		&cli.BoolFlag{
			Name:  "json",
			Usage: "Print the listing as JSON",
		},
	},
	Arguments: []cli.Argument{
		&cli.StringArg{
			Name:      "file",
			UsageText: "The archive to list",
		},
	},
	Action: func(ctx context.Context, command *cli.Command) error {
		file := command.StringArg("file")
		if file == "" {
			return fmt.Errorf("no file provided")
		}

		listings, err := newEngine(ctx, command).List(ctx, file)
		if err != nil {
			return fmt.Errorf("failed to list %s: %w", file, err)
		}

		if command.Bool("json") {
			return json.NewEncoder(os.Stdout).Encode(listings)
		}

		tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		for _, l := range listings {
			if l.Skipped != "" {
				fmt.Fprintf(tw, "%s\t%s\t\t\t%s\n", warnColor.Sprint("skip"), l.Path, l.Skipped)
				continue
			}
			fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\n", l.Mode, l.Path, l.Size, l.ModTime.UTC().Format("2006-01-02 15:04:05"), l.Digest.Encoded())
		}
		return tw.Flush()
	},
}
