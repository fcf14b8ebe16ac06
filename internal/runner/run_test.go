package runner

import (
	"bytes"
	"io"
	"sync"
	"testing"

	v1 "github.com/archconv/archconv/apis/v1"
	"github.com/archconv/archconv/internal/engine"
	"github.com/archconv/archconv/internal/engine/readers"
	"github.com/klauspost/compress/zip"
	"github.com/samber/lo"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func writeZip(t *testing.T, fs afero.Fs, path string, files map[string]string) {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, name := range lo.Keys(files) {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = io.WriteString(w, files[name])
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	require.NoError(t, afero.WriteFile(fs, path, buf.Bytes(), 0o644))
}

func memberNames(t *testing.T, fs afero.Fs, path string, format engine.Format) []string {
	t.Helper()
	data, err := afero.ReadFile(fs, path)
	require.NoError(t, err)

	r, err := readers.Open(format, bytes.NewReader(data), int64(len(data)), zap.NewNop())
	require.NoError(t, err)
	defer r.Close()

	var names []string
	for entry, err := range r.Entries() {
		require.NoError(t, err)
		names = append(names, entry.Name())
	}
	return names
}

func TestRunner_Run(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeZip(t, fs, "/in/a.zip", map[string]string{"a.txt": "a"})
	writeZip(t, fs, "/in/b.zip", map[string]string{"b.txt": "b"})

	job := v1.ConvertJob{
		Kind:     v1.ConvertJobKind,
		Metadata: v1.Metadata{Name: "batch"},
		Spec: v1.ConvertJobSpec{
			Concurrency: 2,
			SpoolDir:    "/spool",
			Conversions: []v1.Conversion{
				{ID: "a", Source: "/in/a.zip", Destination: "/out/a.tar.gz"},
				{ID: "b", Source: "/in/b.zip", OutputDir: "/out", Format: "7z", Level: lo.ToPtr(1)},
				{ID: "missing", Source: "/in/missing.zip", Destination: "/out/missing.zip"},
			},
		},
	}

	var mu sync.Mutex
	progressed := map[string]int{}
	r, err := New(zap.NewNop(), job, Options{
		FS: fs,
		Progress: func(id string, p engine.Progress) {
			mu.Lock()
			defer mu.Unlock()
			progressed[id]++
		},
	})
	require.NoError(t, err)

	report, err := r.Run(t.Context())
	require.Error(t, err)
	assert.Contains(t, err.Error(), `conversion "missing"`)

	assert.Equal(t, "batch", report.Job)
	require.Len(t, report.Results, 3)
	assert.Equal(t, []string{"a", "b", "missing"}, lo.Map(report.Results, func(res ConversionResult, _ int) string { return res.ID }))
	assert.True(t, report.Results[0].Succeeded())
	assert.True(t, report.Results[1].Succeeded())
	assert.Equal(t, "/out/b.7z", report.Results[1].Destination)

	failed := report.Failed()
	require.Len(t, failed, 1)
	assert.Equal(t, "missing", failed[0].ID)

	assert.Equal(t, []string{"a.txt"}, memberNames(t, fs, "/out/a.tar.gz", engine.FormatTarGz))
	assert.Equal(t, []string{"b.txt"}, memberNames(t, fs, "/out/b.7z", engine.FormatSevenZ))
	assert.Equal(t, map[string]int{"a": 1, "b": 1}, progressed)
}

func TestNew_Errors(t *testing.T) {
	tests := []struct {
		name        string
		conversions []v1.Conversion
		errContain  string
	}{
		{
			name: "shared destination",
			conversions: []v1.Conversion{
				{ID: "a", Source: "/in/a.zip", Destination: "/out/x.zip"},
				{ID: "b", Source: "/in/b.tar", OutputDir: "/out", Format: "zip"},
				{ID: "c", Source: "/in/x.tar", OutputDir: "/out", Format: "zip"},
			},
			errContain: "/out/x.zip",
		},
		{
			name:        "bad format",
			conversions: []v1.Conversion{{ID: "a", Source: "/in/a.zip", Destination: "/out/a.bin", Format: "rar"}},
			errContain:  `conversion "a"`,
		},
		{
			name:        "bad source hint",
			conversions: []v1.Conversion{{ID: "a", Source: "/in/a.zip", Destination: "/out/a.zip", SourceFormat: "cab"}},
			errContain:  "cab",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			job := v1.ConvertJob{Spec: v1.ConvertJobSpec{Conversions: tt.conversions}}
			_, err := New(zap.NewNop(), job, Options{FS: afero.NewMemMapFs()})
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errContain)
		})
	}
}

func TestBuildConfig(t *testing.T) {
	job := v1.ConvertJob{Spec: v1.ConvertJobSpec{
		SpoolDir: "/var/spool/archconv",
		S3: &v1.S3Spec{
			Region:         lo.ToPtr("eu-west-1"),
			ForcePathStyle: true,
			Credentials:    &v1.S3Credentials{AccessKeyID: "key", SecretAccessKey: "secret"},
		},
		HTTP: &v1.HTTPSpec{
			Headers: map[string]string{"X-Token": "t"},
			Auth:    &v1.HTTPAuth{Basic: &v1.BasicAuth{Username: "u", Password: "p"}},
			Timeout: lo.ToPtr(30),
		},
	}}

	cfg := buildConfig(job, Options{})

	assert.Equal(t, "/var/spool/archconv", cfg.Spool.Dir)
	assert.Equal(t, "eu-west-1", cfg.S3.Region)
	assert.Empty(t, cfg.S3.Endpoint)
	assert.True(t, cfg.S3.ForcePathStyle)
	assert.Equal(t, "key", cfg.S3.AccessKeyID)
	assert.Equal(t, "secret", cfg.S3.SecretAccessKey)
	assert.Equal(t, map[string]string{"X-Token": "t"}, cfg.HTTP.Headers)
	require.NotNil(t, cfg.HTTP.Auth)
	assert.Equal(t, "u", cfg.HTTP.Auth.Username)
	assert.Equal(t, "30s", cfg.HTTP.Timeout.String())
}
