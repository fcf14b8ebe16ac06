package runner

import (
	"errors"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseConvertJob(t *testing.T) {
	data := []byte(`
kind: ConvertJob
metadata:
  name: nightly
spec:
  concurrency: 2
  defaults:
    output_dir: /out
    format: tar.zst
    level: 9
  conversions:
    - id: logs
      source: /in/logs.zip
    - id: photos
      source: https://example.com/photos.7z
      source_format: 7z
      destination: /out/photos.zip
      filter: kind == "file"
      minimal_zip: true
`)

	job, err := ParseConvertJob(data)
	require.NoError(t, err)

	assert.Equal(t, "nightly", job.Metadata.Name)
	assert.Equal(t, 2, job.Spec.Concurrency)
	require.Len(t, job.Spec.Conversions, 2)

	logs := job.Spec.Conversions[0]
	assert.Equal(t, "/out", logs.OutputDir)
	assert.Equal(t, "tar.zst", logs.Format)
	require.NotNil(t, logs.Level)
	assert.Equal(t, 9, *logs.Level)

	photos := job.Spec.Conversions[1]
	assert.Equal(t, "/out/photos.zip", photos.Destination)
	assert.Empty(t, photos.OutputDir, "an explicit destination wins over the default output dir")
	assert.Equal(t, "7z", photos.SourceFormat)
	assert.True(t, photos.MinimalZip)
	assert.Equal(t, `kind == "file"`, photos.Filter)
}

func TestParseConvertJob_Invalid(t *testing.T) {
	tests := []struct {
		name       string
		data       string
		wantTag    string
		errContain string
	}{
		{
			name:       "not yaml",
			data:       "kind: [",
			errContain: "failed to unmarshal",
		},
		{
			name: "wrong kind",
			data: `
kind: CollectJob
metadata: {name: a}
spec:
  conversions: [{id: a, source: a.zip, destination: b.zip}]
`,
			wantTag: "eq",
		},
		{
			name: "no conversions",
			data: `
kind: ConvertJob
metadata: {name: a}
spec: {}
`,
			wantTag: "required",
		},
		{
			name: "no destination",
			data: `
kind: ConvertJob
metadata: {name: a}
spec:
  conversions: [{id: a, source: a.zip}]
`,
			wantTag: "required_without",
		},
		{
			name: "unknown format",
			data: `
kind: ConvertJob
metadata: {name: a}
spec:
  conversions: [{id: a, source: a.zip, destination: a.rar, format: rar}]
`,
			wantTag: "archive_format",
		},
		{
			name: "duplicate ids",
			data: `
kind: ConvertJob
metadata: {name: a}
spec:
  conversions:
    - {id: a, source: a.zip, destination: a.tar}
    - {id: a, source: b.zip, destination: b.tar}
`,
			wantTag: "unique",
		},
		{
			name: "level out of range",
			data: `
kind: ConvertJob
metadata: {name: a}
spec:
  conversions: [{id: a, source: a.zip, destination: a.tar.gz, level: 12}]
`,
			wantTag: "max",
		},
		{
			name: "output dir without format",
			data: `
kind: ConvertJob
metadata: {name: a}
spec:
  conversions: [{id: a, source: a.zip, output_dir: /out}]
`,
			errContain: "format is required with output_dir",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseConvertJob([]byte(tt.data))
			require.Error(t, err)

			if tt.wantTag != "" {
				var validationErrs validator.ValidationErrors
				require.True(t, errors.As(err, &validationErrs), "got %v", err)
				tags := make([]string, 0, len(validationErrs))
				for _, fe := range validationErrs {
					tags = append(tags, fe.Tag())
				}
				assert.Contains(t, tags, tt.wantTag)
			}
			if tt.errContain != "" {
				assert.Contains(t, err.Error(), tt.errContain)
			}
		})
	}
}
