package runner

import (
	"testing"
	"time"

	v1 "github.com/archconv/archconv/apis/v1"
	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildVariables(t *testing.T) {
	job := v1.ConvertJob{Metadata: v1.Metadata{Name: "nightly"}}

	t.Run("built-in variables", func(t *testing.T) {
		variables, err := BuildVariables(job, nil)
		require.NoError(t, err)

		assert.Equal(t, "nightly", variables["JOB_NAME"])
		_, err = time.Parse("20060102T150405Z", variables["JOB_DATE_ISO8601"])
		require.NoError(t, err)
		_, err = time.Parse(time.RFC3339, variables["JOB_DATE_RFC3339"])
		require.NoError(t, err)
	})

	t.Run("allowed env variables", func(t *testing.T) {
		t.Setenv("ARCHIVE_BUCKET", "backups")

		variables, err := BuildVariables(job, []string{"ARCHIVE_BUCKET"})
		require.NoError(t, err)
		assert.Equal(t, "backups", variables["ARCHIVE_BUCKET"])
	})

	t.Run("unset env variables are reported together", func(t *testing.T) {
		_, err := BuildVariables(job, []string{"ARCHCONV_UNSET_A", "ARCHCONV_UNSET_B"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "ARCHCONV_UNSET_A")
		assert.Contains(t, err.Error(), "ARCHCONV_UNSET_B")
	})
}

func TestVariables_With(t *testing.T) {
	base := Variables{"A": "1"}
	scoped := base.With("B", "2")

	assert.Equal(t, Variables{"A": "1", "B": "2"}, scoped)
	assert.Equal(t, Variables{"A": "1"}, base)
}

func TestExpand(t *testing.T) {
	variables := Variables{"JOB_NAME": "nightly", "STAMP": "20260124T103000Z"}

	tests := []struct {
		name    string
		value   string
		want    string
		wantErr string
	}{
		{name: "plain", value: "/data/in.zip", want: "/data/in.zip"},
		{name: "braced", value: "/out/${JOB_NAME}/", want: "/out/nightly/"},
		{name: "bare", value: "$JOB_NAME-$STAMP.zip", want: "nightly-20260124T103000Z.zip"},
		{name: "unknown", value: "${HOME}/in.zip", wantErr: `"HOME"`},
		{name: "several unknown", value: "${A}${B}", wantErr: `"B"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Expand(tt.value, variables)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestExpandTemplates(t *testing.T) {
	type inner struct {
		Path string `template:""`
	}
	type target struct {
		Tagged   string            `template:""`
		Untagged string
		Skipped  string            `template:"-"`
		Ptr      *string           `template:""`
		List     []string          `template:""`
		Headers  map[string]string
		Counts   map[string]int
		Nested   inner
		NestedP  *inner
		Items    []*inner
		NilPtr   *inner
	}

	shared := "${X}"
	in := target{
		Tagged:   "${X}",
		Untagged: "${X}",
		Skipped:  "${X}",
		Ptr:      &shared,
		List:     []string{"a-${X}", "b"},
		Headers:  map[string]string{"X-Job": "${X}"},
		Counts:   map[string]int{"k": 1},
		Nested:   inner{Path: "${X}"},
		NestedP:  &inner{Path: "${X}"},
		Items:    []*inner{{Path: "${X}"}, nil},
	}

	require.NoError(t, ExpandTemplates(&in, Variables{"X": "x"}))

	assert.Equal(t, "x", in.Tagged)
	assert.Equal(t, "${X}", in.Untagged)
	assert.Equal(t, "${X}", in.Skipped)
	assert.Equal(t, "x", *in.Ptr)
	assert.Equal(t, "${X}", shared, "pointed-to strings are replaced, not mutated")
	assert.Equal(t, []string{"a-x", "b"}, in.List)
	assert.Equal(t, map[string]string{"X-Job": "x"}, in.Headers)
	assert.Equal(t, map[string]int{"k": 1}, in.Counts)
	assert.Equal(t, "x", in.Nested.Path)
	assert.Equal(t, "x", in.NestedP.Path)
	assert.Equal(t, "x", in.Items[0].Path)
	assert.Nil(t, in.Items[1])
	assert.Nil(t, in.NilPtr)
}

func TestExpandTemplates_Errors(t *testing.T) {
	type target struct {
		A string `template:""`
		B string `template:""`
	}

	in := target{A: "${MISSING_A}", B: "${MISSING_B}"}
	err := ExpandTemplates(&in, Variables{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "MISSING_A")
	assert.Contains(t, err.Error(), "MISSING_B")

	var nilTarget *target
	require.NoError(t, ExpandTemplates(nilTarget, Variables{}))

	n := 3
	require.Error(t, ExpandTemplates(&n, Variables{}))
}

func TestExpandJob(t *testing.T) {
	job := v1.ConvertJob{
		Kind:     v1.ConvertJobKind,
		Metadata: v1.Metadata{Name: "nightly"},
		Spec: v1.ConvertJobSpec{
			SpoolDir: "/tmp/${JOB_NAME}",
			S3: &v1.S3Spec{
				Region:      lo.ToPtr("${REGION}"),
				Credentials: &v1.S3Credentials{AccessKeyID: "${KEY}", SecretAccessKey: "${SECRET}"},
			},
			HTTP: &v1.HTTPSpec{Headers: map[string]string{"Authorization": "Bearer ${TOKEN}"}},
			Conversions: []v1.Conversion{
				{
					ID:          "logs",
					Source:      "/in/${JOB_NAME}/logs.tar.gz",
					Destination: "/out/${SOURCE_STEM}-${CONVERSION_ID}.zip",
					Filter:      `path.startsWith("${JOB_NAME}")`,
				},
				{
					ID:        "remote",
					Source:    "https://example.com/dl/release.7z?token=${TOKEN}",
					OutputDir: "s3://bucket/${JOB_NAME}/${SOURCE_STEM}",
					Format:    "zip",
				},
			},
		},
	}
	variables := Variables{
		"JOB_NAME": "nightly",
		"REGION":   "eu-west-1",
		"KEY":      "AKIA",
		"SECRET":   "s3cr3t",
		"TOKEN":    "t0k",
	}

	require.NoError(t, ExpandJob(&job, variables))

	assert.Equal(t, "/tmp/nightly", job.Spec.SpoolDir)
	assert.Equal(t, "eu-west-1", *job.Spec.S3.Region)
	assert.Equal(t, "AKIA", job.Spec.S3.Credentials.AccessKeyID)
	assert.Equal(t, "Bearer t0k", job.Spec.HTTP.Headers["Authorization"])

	logs := job.Spec.Conversions[0]
	assert.Equal(t, "/in/nightly/logs.tar.gz", logs.Source)
	assert.Equal(t, "/out/logs-logs.zip", logs.Destination)
	assert.Equal(t, `path.startsWith("${JOB_NAME}")`, logs.Filter, "filters are CEL, not templates")

	remote := job.Spec.Conversions[1]
	assert.Equal(t, "https://example.com/dl/release.7z?token=t0k", remote.Source)
	assert.Equal(t, "s3://bucket/nightly/release", remote.OutputDir)
}

func TestExpandJob_UnknownVariable(t *testing.T) {
	job := v1.ConvertJob{
		Spec: v1.ConvertJobSpec{
			Conversions: []v1.Conversion{{ID: "a", Source: "/in.zip", Destination: "/${NOPE}.zip"}},
		},
	}

	err := ExpandJob(&job, Variables{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `conversion "a"`)
	assert.Contains(t, err.Error(), "NOPE")
}
