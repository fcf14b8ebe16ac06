package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type mockSource struct {
	location Location
}

func (m *mockSource) Name() string                        { return m.location.Raw }
func (m *mockSource) Kind() string                        { return "mock" }
func (m *mockSource) Open(context.Context) (Handle, error) { return nil, nil }

type mockSink struct{}

func (m *mockSink) Name() string                { return "mock" }
func (m *mockSink) Kind() string                { return "mock" }
func (m *mockSink) Close(context.Context) error { return nil }
func (m *mockSink) Create(context.Context, string, Format) (Destination, error) {
	return nil, nil
}

func TestRegistry_Sources(t *testing.T) {
	r := NewRegistry(zap.NewNop())
	r.RegisterSource(SchemeFile, func(_ context.Context, _ *zap.Logger, location Location) (Source, error) {
		return &mockSource{location: location}, nil
	})
	r.RegisterSource(SchemeHTTPS, func(_ context.Context, _ *zap.Logger, location Location) (Source, error) {
		return &mockSource{location: location}, nil
	})

	t.Run("registered scheme", func(t *testing.T) {
		loc, err := ParseLocation("/data/in.zip")
		require.NoError(t, err)

		src, err := r.CreateSource(t.Context(), loc)
		require.NoError(t, err)
		assert.Equal(t, "/data/in.zip", src.Name())
	})

	t.Run("unknown scheme lists the available ones", func(t *testing.T) {
		loc, err := ParseLocation("ftp://host/in.zip")
		require.NoError(t, err)

		_, err = r.CreateSource(t.Context(), loc)
		var unsupported *UnsupportedTypeError
		require.ErrorAs(t, err, &unsupported)
		assert.Equal(t, "source", unsupported.Category)
		assert.Equal(t, "ftp", unsupported.Kind)
		assert.Equal(t, []string{"file", "https"}, unsupported.Available)
		assert.ErrorContains(t, err, `unsupported source type "ftp"`)
	})

	assert.Equal(t, []string{"file", "https"}, r.AvailableSources())
}

func TestRegistry_Sinks(t *testing.T) {
	r := NewRegistry(zap.NewNop())

	_, err := r.CreateSink(t.Context(), Location{Scheme: SchemeS3})
	var unsupported *UnsupportedTypeError
	require.ErrorAs(t, err, &unsupported)
	assert.ErrorContains(t, err, "no sinks registered")

	r.RegisterSink(SchemeS3, func(context.Context, *zap.Logger, Location) (Sink, error) {
		return &mockSink{}, nil
	})
	sink, err := r.CreateSink(t.Context(), Location{Scheme: SchemeS3})
	require.NoError(t, err)
	assert.Equal(t, "mock", sink.Kind())
	assert.Equal(t, []string{"s3"}, r.AvailableSinks())
}

func TestParseLocation(t *testing.T) {
	tests := []struct {
		raw     string
		want    Location
		base    string
		wantErr bool
	}{
		{raw: "archive.zip", want: Location{Scheme: SchemeFile, Path: "archive.zip"}, base: "archive.zip"},
		{raw: "./out/../in.tar.gz", want: Location{Scheme: SchemeFile, Path: "in.tar.gz"}, base: "in.tar.gz"},
		{raw: "-", want: Location{Scheme: SchemeStdio}, base: "stdin"},
		{raw: "s3://bucket/releases/v1.zip", want: Location{Scheme: SchemeS3, Host: "bucket", Path: "releases/v1.zip"}, base: "v1.zip"},
		{raw: "https://example.com/dl/app.7z", want: Location{Scheme: SchemeHTTPS, Host: "example.com", Path: "/dl/app.7z"}, base: "app.7z"},
		{raw: "file:///tmp/x.tar", want: Location{Scheme: SchemeFile, Path: "/tmp/x.tar"}, base: "x.tar"},
		{raw: "s3:///key", wantErr: true},
		{raw: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, err := ParseLocation(tt.raw)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			tt.want.Raw = tt.raw
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.base, got.Base())
		})
	}
}
