package report

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog/log"
)

// Publisher copies an exported file somewhere shared.
type Publisher interface {
	Publish(ctx context.Context, sessionID, localPath, contentType string) (string, error)
}

// S3Putter is the subset of the S3 client the publisher uses.
type S3Putter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Publisher uploads report files to <bucket>/<prefix>/<session>/<name>.
type S3Publisher struct {
	Client S3Putter
	Bucket string
	Prefix string
}

// Publish uploads localPath and returns its s3:// URI.
func (p *S3Publisher) Publish(ctx context.Context, sessionID, localPath, contentType string) (string, error) {
	key := path.Join(strings.Trim(p.Prefix, "/"), sessionID, filepath.Base(localPath))

	log.Debug().
		Str("bucket", p.Bucket).
		Str("key", key).
		Str("local_path", localPath).
		Msg("Uploading report to S3")

	f, err := os.Open(localPath)
	if err != nil {
		return "", fmt.Errorf("failed to open report file: %w", err)
	}
	defer f.Close()

	_, err = p.Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      &p.Bucket,
		Key:         &key,
		Body:        f,
		ContentType: &contentType,
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload report to S3: %w", err)
	}

	uri := fmt.Sprintf("s3://%s/%s", p.Bucket, key)
	log.Info().
		Str("uri", uri).
		Msg("Report uploaded to S3")
	return uri, nil
}
