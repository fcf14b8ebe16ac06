package runner

import (
	"errors"
	"fmt"

	v1 "github.com/archconv/archconv/apis/v1"
	"github.com/archconv/archconv/internal/engine"
	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-yaml"
)

var defaultValidator = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("archive_format", func(fl validator.FieldLevel) bool {
		_, err := engine.ParseFormat(fl.Field().String())
		return err == nil
	})
	return v
}

// ParseConvertJob parses a YAML or JSON job file, fills conversion fields from the job
// defaults and validates the result.
func ParseConvertJob(data []byte) (v1.ConvertJob, error) {
	var job v1.ConvertJob
	if err := yaml.Unmarshal(data, &job); err != nil {
		return v1.ConvertJob{}, fmt.Errorf("failed to unmarshal job data: %w", err)
	}

	applyDefaults(&job)

	if err := defaultValidator.Struct(job); err != nil {
		return v1.ConvertJob{}, fmt.Errorf("failed to validate job: %w", err)
	}

	var errs error
	for _, c := range job.Spec.Conversions {
		if c.Destination == "" && c.Format == "" {
			errs = errors.Join(errs, fmt.Errorf("conversion %q: format is required with output_dir", c.ID))
		}
	}
	if errs != nil {
		return v1.ConvertJob{}, fmt.Errorf("failed to validate job: %w", errs)
	}

	return job, nil
}

func applyDefaults(job *v1.ConvertJob) {
	d := job.Spec.Defaults
	if d == nil {
		return
	}
	for i := range job.Spec.Conversions {
		c := &job.Spec.Conversions[i]
		if c.Destination == "" && c.OutputDir == "" {
			c.OutputDir = d.OutputDir
		}
		if c.Format == "" {
			c.Format = d.Format
		}
		if c.Level == nil {
			c.Level = d.Level
		}
		if c.Filter == "" {
			c.Filter = d.Filter
		}
		c.MinimalZip = c.MinimalZip || d.MinimalZip
	}
}
