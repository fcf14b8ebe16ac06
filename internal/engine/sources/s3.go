package sources

import (
	"context"
	"fmt"
	"io"

	"github.com/archconv/archconv/internal/engine"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3Downloader is the subset of manager.Downloader used by S3Source.
type S3Downloader interface {
	Download(ctx context.Context, w io.WriterAt, input *s3.GetObjectInput, opts ...func(*manager.Downloader)) (int64, error)
}

// S3Source downloads an object into the spool directory with concurrent ranged GETs.
type S3Source struct {
	bucket     string
	key        string
	downloader S3Downloader
	spool      engine.SpoolConfig
}

func NewS3Source(client *s3.Client, bucket, key string, spool engine.SpoolConfig) *S3Source {
	return NewS3SourceWithDownloader(bucket, key, manager.NewDownloader(client), spool)
}

func NewS3SourceWithDownloader(bucket, key string, downloader S3Downloader, spool engine.SpoolConfig) *S3Source {
	return &S3Source{bucket: bucket, key: key, downloader: downloader, spool: spool}
}

func (s *S3Source) Name() string {
	return fmt.Sprintf("s3://%s/%s", s.bucket, s.key)
}

func (s *S3Source) Kind() string {
	return engine.SchemeS3
}

func (s *S3Source) Open(ctx context.Context) (engine.Handle, error) {
	f, err := s.spool.Create()
	if err != nil {
		return nil, err
	}

	n, err := s.downloader.Download(ctx, f, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key),
	})
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("failed to download %s: %w", s.Name(), err)
	}
	return &spoolHandle{SpoolFile: f, size: n}, nil
}
