package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awscfg "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/rs/zerolog/log"
)

// S3Options configures the S3 archive. Static keys are optional; without
// them the default AWS credential chain applies.
type S3Options struct {
	Bucket          string
	Prefix          string
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	Password        string
}

// S3Archive uploads portfolios to a bucket as versioned objects
// ({key}_v{N}) and promotes the newest version to the base key.
type S3Archive struct {
	client     *s3.Client
	uploader   *manager.Uploader
	downloader *manager.Downloader
	bucket     string
	prefix     string
	password   string
}

// NewS3Archive creates an S3 archive.
func NewS3Archive(ctx context.Context, opts S3Options) (*S3Archive, error) {
	if opts.Bucket == "" {
		return nil, fmt.Errorf("s3 archive: bucket is required")
	}
	var loaders []func(*awscfg.LoadOptions) error
	if opts.Region != "" {
		loaders = append(loaders, awscfg.WithRegion(opts.Region))
	}
	if opts.AccessKeyID != "" && opts.SecretAccessKey != "" {
		loaders = append(loaders, awscfg.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKeyID, opts.SecretAccessKey, "")))
	}
	cfg, err := awscfg.LoadDefaultConfig(ctx, loaders...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	cli := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
			o.UsePathStyle = true
		}
	})
	return &S3Archive{
		client:     cli,
		uploader:   manager.NewUploader(cli),
		downloader: manager.NewDownloader(cli),
		bucket:     opts.Bucket,
		prefix:     opts.Prefix,
		password:   opts.Password,
	}, nil
}

func (s *S3Archive) Backend() string { return "s3" }

// Ping checks that the bucket is reachable with the configured credentials.
func (s *S3Archive) Ping(ctx context.Context) error {
	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(s.bucket)})
	return err
}

func (s *S3Archive) Save(ctx context.Context, pdf []byte, meta Metadata) (string, error) {
	baseKey := Key(s.prefix, meta)
	version, err := s.NextVersion(ctx, baseKey)
	if err != nil {
		log.Warn().Err(err).Str("key", baseKey).Msg("listing versions failed, starting at v1")
	}
	key := fmt.Sprintf("%s_v%d", baseKey, version)

	body, contentType := pdf, "application/pdf"
	fields := meta.fields()
	fields["version"] = strconv.Itoa(version)
	if s.password != "" {
		enc, err := Encrypt(pdf, s.password)
		if err != nil {
			return "", fmt.Errorf("failed to encrypt portfolio: %w", err)
		}
		body, contentType = enc, "application/octet-stream"
		fields["encrypted"] = "true"
		fields["encryption-format"] = FormatGCM
	}

	out, err := s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String(contentType),
		Metadata:    fields,
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload to S3: %w", err)
	}
	log.Info().Str("key", key).Str("location", out.Location).Int("size", len(body)).Msg("archived portfolio to S3")

	fields["promoted_from"] = key
	if err := s.copyWithMetadata(ctx, key, baseKey, fields); err != nil {
		log.Warn().Err(err).Str("src", key).Str("dst", baseKey).Msg("failed to promote version to base key")
		return fmt.Sprintf("s3://%s/%s", s.bucket, key), nil
	}
	return fmt.Sprintf("s3://%s/%s", s.bucket, baseKey), nil
}

// NextVersion returns the next free N for keys of the form baseKey_v{N}.
func (s *S3Archive) NextVersion(ctx context.Context, baseKey string) (int, error) {
	prefix := baseKey + "_v"
	var keys []string
	p := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(prefix),
	})
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return 1, fmt.Errorf("list versions failed: %w", err)
		}
		for _, obj := range page.Contents {
			if obj.Key != nil {
				keys = append(keys, *obj.Key)
			}
		}
	}
	return nextVersion(prefix, keys), nil
}

func nextVersion(prefix string, keys []string) int {
	highest := 0
	for _, k := range keys {
		if !strings.HasPrefix(k, prefix) {
			continue
		}
		if n, err := strconv.Atoi(strings.TrimPrefix(k, prefix)); err == nil && n > highest {
			highest = n
		}
	}
	return highest + 1
}

func (s *S3Archive) copyWithMetadata(ctx context.Context, srcKey, dstKey string, meta map[string]string) error {
	_, err := s.client.CopyObject(ctx, &s3.CopyObjectInput{
		Bucket:            aws.String(s.bucket),
		Key:               aws.String(dstKey),
		CopySource:        aws.String(copySource(s.bucket, srcKey)),
		Metadata:          meta,
		MetadataDirective: s3types.MetadataDirectiveReplace,
	})
	if err != nil {
		return fmt.Errorf("copy object failed: %w", err)
	}
	return nil
}

// copySource is the URL-encoded bucket/key form CopyObject expects.
func copySource(bucket, key string) string {
	parts := strings.Split(key, "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return bucket + "/" + strings.Join(parts, "/")
}

// Open downloads the object behind an s3:// location returned by Save.
func (s *S3Archive) Open(ctx context.Context, location string) ([]byte, error) {
	key, ok := strings.CutPrefix(location, "s3://"+s.bucket+"/")
	if !ok || key == "" {
		return nil, fmt.Errorf("%w: %s is not in bucket %s", ErrNotArchived, location, s.bucket)
	}
	buf := manager.NewWriteAtBuffer(nil)
	_, err := s.downloader.Download(ctx, buf, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var missing *s3types.NoSuchKey
		if errors.As(err, &missing) {
			return nil, ErrNotArchived
		}
		return nil, fmt.Errorf("failed to download from S3: %w", err)
	}
	log.Debug().Str("key", key).Int("size", len(buf.Bytes())).Msg("read archived portfolio from S3")
	return openStored(buf.Bytes(), s.password)
}
