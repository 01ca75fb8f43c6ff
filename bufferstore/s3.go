package bufferstore

import (
	"bytes"
	"context"
	stderrors "errors"
	"io"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"go.uber.org/zap"

	"github.com/wippyai/typestream/buffer"
	"github.com/wippyai/typestream/errors"
)

// S3Client is the part of the S3 API the store uses.
type S3Client interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3Options locate the objects of an S3 store.
type S3Options struct {
	Bucket string
	Prefix string
	// Endpoint overrides the service endpoint, for S3-compatible servers.
	// Path-style addressing is used with it.
	Endpoint string
	Region   string
}

// S3 stores each payload as an object under Prefix.
type S3 struct {
	client S3Client
	opts   S3Options
}

// NewS3 creates a store over an existing client.
func NewS3(client S3Client, opts S3Options) *S3 {
	return &S3{client: client, opts: opts}
}

// OpenS3 loads the AWS configuration from the environment and creates a
// client for opts.
func OpenS3(ctx context.Context, opts S3Options) (*S3, error) {
	var loadOpts []func(*config.LoadOptions) error
	if opts.Region != "" {
		loadOpts = append(loadOpts, config.WithRegion(opts.Region))
	}
	cfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseStore, errors.KindInvalidInput, err, "loading AWS config")
	}
	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
			o.UsePathStyle = true
		}
	})
	return NewS3(client, opts), nil
}

func (s *S3) objectKey(key string) string {
	return path.Join(s.opts.Prefix, key+bufferExt)
}

func (s *S3) StoreBuffer(ctx context.Context, meta buffer.Meta, payload []byte) error {
	obj, err := encodeObject(meta, payload)
	if err != nil {
		return err
	}
	key := s.objectKey(Key(meta))
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.opts.Bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(obj),
		ContentType: aws.String("application/octet-stream"),
	})
	if err != nil {
		return errors.Wrap(errors.PhaseStore, errors.KindInvalidData, err, "uploading "+key)
	}
	Logger().Debug("buffer uploaded",
		zap.String("bucket", s.opts.Bucket),
		zap.String("key", key),
		zap.Int("bytes", len(obj)))
	return nil
}

func (s *S3) CreateLoader(_ context.Context, meta buffer.Meta) (buffer.Loader, error) {
	return newLazyLoader(meta, s.fetch), nil
}

func (s *S3) fetch(ctx context.Context, key string) ([]byte, error) {
	objKey := s.objectKey(key)
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.opts.Bucket),
		Key:    aws.String(objKey),
	})
	var missing *types.NoSuchKey
	if stderrors.As(err, &missing) {
		return nil, errors.NotFound(errors.PhaseStore, "buffer", objKey)
	}
	if err != nil {
		return nil, errors.Wrap(errors.PhaseStore, errors.KindInvalidData, err, "downloading "+objKey)
	}
	defer out.Body.Close()
	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseStore, errors.KindInvalidData, err, "downloading "+objKey)
	}
	return data, nil
}

func (s *S3) Close() error { return nil }
