package docsync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/szaher/config-manager/internal/document"
	"github.com/szaher/config-manager/internal/telemetry"
)

const etagFile = ".s3-etags.json"

// S3API is the subset of the S3 client used by S3Source.
type S3API interface {
	ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, opts ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, opts ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3ClientConfig configures an S3 or S3-compatible endpoint.
type S3ClientConfig struct {
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	UsePathStyle    bool
}

// NewS3Client builds a client from the default AWS configuration chain,
// with static credentials and a custom endpoint when given.
func NewS3Client(ctx context.Context, cfg S3ClientConfig) (*s3.Client, error) {
	region := strings.TrimSpace(cfg.Region)
	if region == "" {
		region = "us-east-1"
	}
	loadOptions := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(region),
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		loadOptions = append(loadOptions, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOptions...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	endpoint := strings.TrimSpace(cfg.Endpoint)
	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
		if cfg.UsePathStyle {
			o.UsePathStyle = true
		}
	}), nil
}

// S3Source mirrors the documents directly under a bucket prefix into a
// local directory. Objects are re-downloaded only when their ETag changes.
type S3Source struct {
	client S3API
	bucket string
	prefix string
	dir    string
	exts   []string
	logger *slog.Logger
}

// NewS3Source creates an S3 source writing into dir.
func NewS3Source(client S3API, bucket, prefix, dir string, exts []string, logger *slog.Logger) *S3Source {
	prefix = strings.Trim(prefix, "/")
	if prefix != "" {
		prefix += "/"
	}
	if len(exts) == 0 {
		exts = document.DefaultExtensions
	}
	if logger == nil {
		logger = telemetry.DiscardLogger()
	}
	return &S3Source{client: client, bucket: bucket, prefix: prefix, dir: dir, exts: exts, logger: logger}
}

func (s *S3Source) Name() string { return "s3" }

// Sync downloads new and modified documents and removes local documents
// that no longer exist remotely.
func (s *S3Source) Sync(ctx context.Context) (bool, error) {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return false, fmt.Errorf("create document directory: %w", err)
	}
	seen, err := s.loadETags()
	if err != nil {
		s.logger.Warn("ignoring unreadable etag cache", "error", err)
		seen = map[string]string{}
	}

	remote := map[string]string{}
	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(s.prefix),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return false, fmt.Errorf("s3 list objects: %w", err)
		}
		for _, obj := range page.Contents {
			name := strings.TrimPrefix(aws.ToString(obj.Key), s.prefix)
			if name == "" || strings.Contains(name, "/") || strings.HasPrefix(name, ".") || !document.MatchesExtension(name, s.exts) {
				continue
			}
			remote[name] = aws.ToString(obj.ETag)
		}
	}

	changed := false
	names := make([]string, 0, len(remote))
	for name := range remote {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		local := filepath.Join(s.dir, name)
		if seen[name] == remote[name] {
			if _, err := os.Stat(local); err == nil {
				continue
			}
		}
		if err := s.download(ctx, name, local); err != nil {
			return changed, err
		}
		s.logger.Info("downloaded document", "key", s.prefix+name)
		changed = true
	}

	for name := range seen {
		if _, ok := remote[name]; ok {
			continue
		}
		if err := os.Remove(filepath.Join(s.dir, name)); err != nil && !errors.Is(err, os.ErrNotExist) {
			return changed, fmt.Errorf("remove stale document: %w", err)
		}
		s.logger.Info("removed document deleted from bucket", "name", name)
		changed = true
	}

	if err := s.saveETags(remote); err != nil {
		return changed, err
	}
	if !changed {
		s.logger.Info("bucket is up to date", "bucket", s.bucket, "prefix", s.prefix)
	}
	return changed, nil
}

func (s *S3Source) download(ctx context.Context, name, dest string) error {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.prefix + name),
	})
	if err != nil {
		return fmt.Errorf("s3 get object %s: %w", name, err)
	}
	defer out.Body.Close()

	return writeAtomic(dest, func(w io.Writer) error {
		_, err := io.Copy(w, out.Body)
		return err
	})
}

func (s *S3Source) loadETags() (map[string]string, error) {
	data, err := os.ReadFile(filepath.Join(s.dir, etagFile))
	if errors.Is(err, os.ErrNotExist) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, err
	}
	tags := map[string]string{}
	if err := json.Unmarshal(data, &tags); err != nil {
		return nil, err
	}
	return tags, nil
}

func (s *S3Source) saveETags(tags map[string]string) error {
	data, err := json.MarshalIndent(tags, "", "  ")
	if err != nil {
		return err
	}
	return writeAtomic(filepath.Join(s.dir, etagFile), func(w io.Writer) error {
		_, err := w.Write(append(data, '\n'))
		return err
	})
}

// writeAtomic writes through a hidden temp file in the destination
// directory and renames it into place.
func writeAtomic(dest string, fill func(io.Writer) error) error {
	tmp, err := os.CreateTemp(filepath.Dir(dest), "."+filepath.Base(dest)+".*.tmp")
	if err != nil {
		return err
	}
	name := tmp.Name()
	if err := fill(tmp); err != nil {
		tmp.Close()
		os.Remove(name)
		return fmt.Errorf("write %s: %w", dest, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(name)
		return err
	}
	if err := os.Chmod(name, 0o644); err != nil {
		os.Remove(name)
		return err
	}
	if err := os.Rename(name, dest); err != nil {
		os.Remove(name)
		return err
	}
	return nil
}
