package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	v1 "github.com/archconv/archconv/apis/v1"
	"github.com/archconv/archconv/internal/engine"
	"github.com/archconv/archconv/internal/runner"
	"github.com/go-playground/validator/v10"
	"github.com/samber/lo"
	"github.com/urfave/cli/v3"
	"go.uber.org/zap"
)

func allowedEnvFlag() cli.Flag {
	return &cli.StringSliceFlag{
		Name:  "allowed-env",
		Usage: "Environment variables allowed in job configuration (can be repeated)",
	}
}

// readJobFile reads a job file, or stdin for "-".
func readJobFile(filename string) ([]byte, error) {
	if filename == "-" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(filename)
}

// loadJob parses, validates and expands a job file.
func loadJob(command *cli.Command) (v1.ConvertJob, error) {
	jobFilename := command.StringArg("job")
	if jobFilename == "" {
		return v1.ConvertJob{}, fmt.Errorf("no job file provided")
	}

	data, err := readJobFile(jobFilename)
	if err != nil {
		return v1.ConvertJob{}, fmt.Errorf("failed to read job file '%s': %w", jobFilename, err)
	}

	job, err := runner.ParseConvertJob(data)
	if err != nil {
		return v1.ConvertJob{}, formatValidationError(err)
	}

	variables, err := runner.BuildVariables(job, command.StringSlice("allowed-env"))
	if err != nil {
		return v1.ConvertJob{}, fmt.Errorf("failed to build variables: %w", err)
	}

	if err := runner.ExpandJob(&job, variables); err != nil {
		return v1.ConvertJob{}, fmt.Errorf("failed to expand templates: %w", err)
	}
	return job, nil
}

var runCommand = &cli.Command{
	Name:  "run",
	Usage: "Run a batch of conversions from a job file",
	Flags: []cli.Flag{
		allowedEnvFlag(),
		&cli.BoolFlag{
			Name:  "json",
			Usage: "Print the run report as JSON",
		},
	},
	Arguments: []cli.Argument{
		&cli.StringArg{
			Name:      "job",
			UsageText: "The job file to run, or - for stdin",
		},
	},
	Action: func(ctx context.Context, command *cli.Command) error {
		logger := getLogger(ctx)

		job, err := loadJob(command)
		if err != nil {
			return err
		}

		if job.Spec.SpoolDir == "" {
			job.Spec.SpoolDir = command.String("spool-dir")
		}
		if job.Spec.S3 == nil {
			job.Spec.S3 = &v1.S3Spec{
				Region:         lo.EmptyableToPtr(command.String("s3-region")),
				Endpoint:       lo.EmptyableToPtr(command.String("s3-endpoint")),
				ForcePathStyle: command.Bool("s3-force-path-style"),
			}
		}

		opts := runner.Options{}
		if isInteractive(ctx) && !command.Bool("json") {
			progress := newProgressLine(os.Stderr)
			opts.Progress = func(id string, p engine.Progress) {
				progress.report(id, p)
			}
			defer progress.done()
		}

		r, err := runner.New(logger.Named("runner"), job, opts)
		if err != nil {
			return fmt.Errorf("failed to create runner: %w", err)
		}

		report, runErr := r.Run(ctx)

		if command.Bool("json") {
			if err := json.NewEncoder(os.Stdout).Encode(report); err != nil {
				return fmt.Errorf("failed to encode report: %w", err)
			}
		} else {
			for _, res := range report.Results {
				printResult(os.Stderr, res.ID, res.Result)
			}
		}

		if runErr != nil {
			return fmt.Errorf("%d of %d conversions failed: %w", len(report.Failed()), len(report.Results), runErr)
		}
		logger.Info("job finished", zap.String("job_name", job.Metadata.Name), zap.Duration("duration", report.Duration))
		return nil
	},
}

var validateCommand = &cli.Command{
	Name:  "validate",
	Usage: "Validate a job file",
	Flags: []cli.Flag{
		allowedEnvFlag(),
	},
	Arguments: []cli.Argument{
		&cli.StringArg{
			Name:      "job",
			UsageText: "The job file to validate, or - for stdin",
		},
	},
	Action: func(ctx context.Context, command *cli.Command) error {
		logger := getLogger(ctx).With(zap.String("job_filename", command.StringArg("job")))
		logger.Debug("validating job file")

		job, err := loadJob(command)
		if err != nil {
			return err
		}

		fmt.Printf("%s Job '%s' is valid (%d conversions)\n", okColor.Sprint("✓"), job.Metadata.Name, len(job.Spec.Conversions))
		return nil
	},
}

func formatValidationError(err error) error {
	var validationErrs validator.ValidationErrors
	if !errors.As(err, &validationErrs) {
		return err
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "job file has %d validation error(s):", len(validationErrs))
	for _, fe := range validationErrs {
		fmt.Fprintf(&sb, "\n  • %s: failed '%s' validation", fe.Namespace(), fe.Tag())
		if fe.Param() != "" {
			fmt.Fprintf(&sb, " (param: %s)", fe.Param())
		}
	}
	return errors.New(sb.String())
}
