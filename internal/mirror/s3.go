// Package mirror copies downloaded PDFs to S3-compatible object storage.
package mirror

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/aws/aws-sdk-go/service/s3/s3manager/s3manageriface"
	"github.com/rs/zerolog"

	"github.com/helixir/reference-service/internal/config"
	"github.com/helixir/reference-service/internal/domain"
)

// S3Mirror uploads acquired PDFs to a bucket.
type S3Mirror struct {
	uploader s3manageriface.UploaderAPI
	bucket   string
	prefix   string
	logger   zerolog.Logger
}

// Option configures an S3Mirror.
type Option func(*S3Mirror)

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(m *S3Mirror) { m.logger = l.With().Str("component", "mirror").Logger() }
}

// WithUploader replaces the s3manager uploader.
func WithUploader(u s3manageriface.UploaderAPI) Option {
	return func(m *S3Mirror) { m.uploader = u }
}

// NewS3Mirror creates a mirror for cfg. Static credentials are used when both
// keys are set, otherwise the default AWS credential chain applies.
func NewS3Mirror(cfg config.MirrorConfig, opts ...Option) (*S3Mirror, error) {
	if cfg.Bucket == "" {
		return nil, domain.NewConfigError("mirror.bucket", "bucket is required")
	}

	m := &S3Mirror{
		bucket: cfg.Bucket,
		prefix: strings.Trim(cfg.Prefix, "/"),
		logger: zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.uploader != nil {
		return m, nil
	}

	awsCfg := &aws.Config{Region: aws.String(cfg.Region)}
	if cfg.Endpoint != "" {
		awsCfg.Endpoint = aws.String(cfg.Endpoint)
		awsCfg.S3ForcePathStyle = aws.Bool(true)
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		awsCfg.Credentials = credentials.NewStaticCredentials(cfg.AccessKeyID, cfg.SecretAccessKey, "")
	}
	sess, err := session.NewSession(awsCfg)
	if err != nil {
		return nil, domain.NewConfigError("mirror", fmt.Sprintf("creating AWS session: %v", err))
	}
	m.uploader = s3manager.NewUploader(sess)
	return m, nil
}

// Key returns the object key for a paper's PDF.
func (m *S3Mirror) Key(p *domain.Paper) string {
	name := filepath.Base(p.LocalPath)
	if m.prefix == "" {
		return name
	}
	return path.Join(m.prefix, name)
}

// Upload copies the paper's local PDF and returns its s3:// location.
func (m *S3Mirror) Upload(ctx context.Context, p *domain.Paper) (string, error) {
	if p.LocalPath == "" {
		return "", domain.NewValidationError("local_path", "paper has no local file")
	}
	f, err := os.Open(p.LocalPath)
	if err != nil {
		return "", fmt.Errorf("opening %s: %w", p.LocalPath, err)
	}
	defer f.Close()

	metadata := map[string]*string{"paper-id": aws.String(p.ID.String())}
	if doi := p.DOI(); doi != "" {
		metadata["doi"] = aws.String(doi)
	}
	if p.ContentHash != "" {
		metadata["sha256"] = aws.String(p.ContentHash)
	}

	key := m.Key(p)
	_, err = m.uploader.UploadWithContext(ctx, &s3manager.UploadInput{
		Bucket:      aws.String(m.bucket),
		Key:         aws.String(key),
		Body:        f,
		ContentType: aws.String("application/pdf"),
		Metadata:    metadata,
	})
	if err != nil {
		return "", fmt.Errorf("uploading %s to s3://%s/%s: %w", p.LocalPath, m.bucket, key, err)
	}

	location := fmt.Sprintf("s3://%s/%s", m.bucket, key)
	m.logger.Debug().Str("paper_id", p.ID.String()).Str("location", location).Msg("pdf mirrored")
	return location, nil
}
