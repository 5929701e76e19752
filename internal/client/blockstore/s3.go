package blockstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/dmitrijs2005/vidloader/internal/logging"
	"golang.org/x/sync/errgroup"
)

// S3 rejects multipart parts smaller than this, except the last one.
const minS3PartSize = 5 * MiB

var (
	loadDefaultAWSConfig = config.LoadDefaultConfig

	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) *s3.Client {
		return s3.NewFromConfig(cfg, optFns...)
	}
)

type s3API interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	CreateMultipartUpload(ctx context.Context, in *s3.CreateMultipartUploadInput, optFns ...func(*s3.Options)) (*s3.CreateMultipartUploadOutput, error)
	UploadPart(ctx context.Context, in *s3.UploadPartInput, optFns ...func(*s3.Options)) (*s3.UploadPartOutput, error)
	CompleteMultipartUpload(ctx context.Context, in *s3.CompleteMultipartUploadInput, optFns ...func(*s3.Options)) (*s3.CompleteMultipartUploadOutput, error)
	AbortMultipartUpload(ctx context.Context, in *s3.AbortMultipartUploadInput, optFns ...func(*s3.Options)) (*s3.AbortMultipartUploadOutput, error)
}

type S3Config struct {
	Region    string
	Endpoint  string
	AccessKey string
	SecretKey string
}

// S3Multipart uploads to targets of the form s3://bucket/key.
type S3Multipart struct {
	api      s3API
	partSize int64
	workers  int
	log      logging.Logger
}

// NewS3Multipart builds an S3 client from cfg. Static credentials are used
// when both keys are set, otherwise the default AWS credential chain.
// A custom endpoint (MinIO and friends) switches to path-style addressing.
func NewS3Multipart(ctx context.Context, cfg S3Config, opts Options, log logging.Logger) (*S3Multipart, error) {
	loadOpts := []func(*config.LoadOptions) error{config.WithRegion(cfg.Region)}
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := loadDefaultAWSConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}

	client := newS3ClientFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	return newS3Multipart(client, opts, log), nil
}

func newS3Multipart(api s3API, opts Options, log logging.Logger) *S3Multipart {
	opts = opts.Normalized()
	return &S3Multipart{
		api:      api,
		partSize: max(opts.BlockSize, minS3PartSize),
		workers:  opts.Concurrency,
		log:      log.With("component", "s3"),
	}
}

func parseS3Target(target string) (bucket, key string, err error) {
	u, err := url.Parse(target)
	if err != nil {
		return "", "", err
	}
	key = strings.TrimPrefix(u.Path, "/")
	if u.Scheme != "s3" || u.Host == "" || key == "" {
		return "", "", fmt.Errorf("%w: %q", ErrUnsupportedTarget, target)
	}
	return u.Host, key, nil
}

func (m *S3Multipart) Upload(ctx context.Context, target string, src io.ReaderAt, size int64, contentType string, progress ProgressFunc) error {
	bucket, key, err := parseS3Target(target)
	if err != nil {
		return err
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	if size <= m.partSize {
		_, err := m.api.PutObject(ctx, &s3.PutObjectInput{
			Bucket:        aws.String(bucket),
			Key:           aws.String(key),
			Body:          io.NewSectionReader(src, 0, size),
			ContentLength: aws.Int64(size),
			ContentType:   aws.String(contentType),
		})
		if err != nil {
			return fmt.Errorf("failed to put s3://%s/%s: %w", bucket, key, err)
		}
		report(progress, size)
		return nil
	}

	created, err := m.api.CreateMultipartUpload(ctx, &s3.CreateMultipartUploadInput{
		Bucket:      aws.String(bucket),
		Key:         aws.String(key),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return fmt.Errorf("failed to create multipart upload: %w", err)
	}
	uploadID := created.UploadId

	parts, err := m.uploadParts(ctx, bucket, key, uploadID, src, size, progress)
	if err == nil {
		_, err = m.api.CompleteMultipartUpload(ctx, &s3.CompleteMultipartUploadInput{
			Bucket:          aws.String(bucket),
			Key:             aws.String(key),
			UploadId:        uploadID,
			MultipartUpload: &types.CompletedMultipartUpload{Parts: parts},
		})
		if err != nil {
			err = fmt.Errorf("failed to complete multipart upload: %w", err)
		}
	}
	if err != nil {
		// the caller's context may already be cancelled
		_, aerr := m.api.AbortMultipartUpload(context.WithoutCancel(ctx), &s3.AbortMultipartUploadInput{
			Bucket:   aws.String(bucket),
			Key:      aws.String(key),
			UploadId: uploadID,
		})
		if aerr != nil {
			m.log.Warn(ctx, "failed to abort multipart upload", "key", key, "error", aerr)
		}
		return err
	}

	m.log.Debug(ctx, "multipart upload completed", "key", key, "parts", len(parts))
	return nil
}

func (m *S3Multipart) uploadParts(ctx context.Context, bucket, key string, uploadID *string, src io.ReaderAt, size int64, progress ProgressFunc) ([]types.CompletedPart, error) {
	blocks := split(size, m.partSize)

	var (
		mu       sync.Mutex
		parts    = make([]types.CompletedPart, 0, len(blocks))
		uploaded atomic.Int64
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.workers)

	for _, blk := range blocks {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			num := aws.Int32(int32(blk.Index + 1))
			out, err := m.api.UploadPart(gctx, &s3.UploadPartInput{
				Bucket:        aws.String(bucket),
				Key:           aws.String(key),
				UploadId:      uploadID,
				PartNumber:    num,
				Body:          io.NewSectionReader(src, blk.Offset, blk.Length),
				ContentLength: aws.Int64(blk.Length),
			})
			if err != nil {
				return fmt.Errorf("failed to upload part %d: %w", *num, err)
			}

			mu.Lock()
			parts = append(parts, types.CompletedPart{ETag: out.ETag, PartNumber: num})
			mu.Unlock()

			report(progress, uploaded.Add(blk.Length))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(parts) != len(blocks) {
		return nil, errors.New("multipart upload is missing parts")
	}

	sort.Slice(parts, func(i, j int) bool { return *parts[i].PartNumber < *parts[j].PartNumber })
	return parts, nil
}
