package storage

import (
	"bytes"
	"context"
	"strconv"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/pkg/errors"

	"github.com/rust-lang/docs.rs-sub002/internal/catalog"
)

// S3Backend stores blobs in an S3-compatible bucket. Its "no such key"
// translation checks the known AWS error-code set plus a 404 status, per
// §4.1's error taxonomy contract.
type S3Backend struct {
	bucket string
	client *s3.S3
}

func NewS3Backend(bucket, region, endpoint string) (*S3Backend, error) {
	cfg := aws.NewConfig().WithRegion(region)
	if endpoint != "" {
		cfg = cfg.WithEndpoint(endpoint).WithS3ForcePathStyle(true)
	}
	sess, err := session.NewSession(cfg)
	if err != nil {
		return nil, errors.Wrap(err, "open s3 session")
	}
	return &S3Backend{bucket: bucket, client: s3.New(sess)}, nil
}

func (b *S3Backend) Exists(ctx context.Context, path string) (bool, error) {
	_, err := b.client.HeadObjectWithContext(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(path),
	})
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, errors.Wrap(err, "s3 head")
	}
	return true, nil
}

// isNotFound translates the AWS SDK's "NotFound"/"NoSuchKey" error codes and
// 404 status into the sentinel callers match on, never the raw SDK error.
func isNotFound(err error) bool {
	var aerr awserr.Error
	if errors.As(err, &aerr) {
		switch aerr.Code() {
		case s3.ErrCodeNoSuchKey, "NotFound", "404":
			return true
		}
		if reqErr, ok := aerr.(awserr.RequestFailure); ok && reqErr.StatusCode() == 404 {
			return true
		}
	}
	return false
}

func (b *S3Backend) GetStream(ctx context.Context, path string, rng *Range) (*StreamingBlob, error) {
	in := &s3.GetObjectInput{Bucket: aws.String(b.bucket), Key: aws.String(path)}
	if rng != nil {
		in.Range = aws.String("bytes=" + strconv.FormatInt(rng.Start, 10) + "-" + strconv.FormatInt(rng.End, 10))
	}
	out, err := b.client.GetObjectWithContext(ctx, in)
	if err != nil {
		if isNotFound(err) {
			return nil, ErrPathNotFound
		}
		return nil, errors.Wrap(err, "s3 get object")
	}
	blob := &StreamingBlob{
		Path:          path,
		Mime:          aws.StringValue(out.ContentType),
		ContentLength: aws.Int64Value(out.ContentLength),
		Body:          out.Body,
	}
	if out.LastModified != nil {
		blob.DateUpdated = *out.LastModified
	}
	if out.ETag != nil {
		blob.ETag = strings.Trim(*out.ETag, `"`)
	}
	if out.Metadata != nil {
		if v, ok := out.Metadata["Compression"]; ok && v != nil {
			blob.Compression = parseCompression(*v)
		}
	}
	return blob, nil
}

func (b *S3Backend) StoreOne(ctx context.Context, path string, content []byte, mime string, compression catalog.CompressionAlgorithm) error {
	_, err := b.client.PutObjectWithContext(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(b.bucket),
		Key:         aws.String(path),
		Body:        bytes.NewReader(content),
		ContentType: aws.String(mime),
		Metadata:    map[string]*string{"Compression": aws.String(compression.String())},
	})
	if err != nil {
		return errors.Wrap(err, "s3 put object")
	}
	return nil
}

func (b *S3Backend) ListPrefix(ctx context.Context, prefix string) (<-chan string, <-chan error) {
	out := make(chan string)
	errs := make(chan error, 1)
	go func() {
		defer close(out)
		defer close(errs)
		err := b.client.ListObjectsV2PagesWithContext(ctx, &s3.ListObjectsV2Input{
			Bucket: aws.String(b.bucket),
			Prefix: aws.String(prefix),
		}, func(page *s3.ListObjectsV2Output, lastPage bool) bool {
			for _, obj := range page.Contents {
				select {
				case out <- aws.StringValue(obj.Key):
				case <-ctx.Done():
					return false
				}
			}
			return true
		})
		if err != nil {
			errs <- errors.Wrap(err, "s3 list objects")
		}
	}()
	return out, errs
}

func (b *S3Backend) DeletePrefix(ctx context.Context, prefix string) error {
	out, errs := b.ListPrefix(ctx, prefix)
	var keys []*s3.ObjectIdentifier
	for key := range out {
		k := key
		keys = append(keys, &s3.ObjectIdentifier{Key: aws.String(k)})
		if len(keys) == 1000 {
			if err := b.deleteBatch(ctx, keys); err != nil {
				return err
			}
			keys = nil
		}
	}
	if err := <-errs; err != nil {
		return err
	}
	if len(keys) > 0 {
		return b.deleteBatch(ctx, keys)
	}
	return nil
}

func (b *S3Backend) deleteBatch(ctx context.Context, keys []*s3.ObjectIdentifier) error {
	_, err := b.client.DeleteObjectsWithContext(ctx, &s3.DeleteObjectsInput{
		Bucket: aws.String(b.bucket),
		Delete: &s3.Delete{Objects: keys},
	})
	if err != nil {
		return errors.Wrap(err, "s3 delete objects batch")
	}
	return nil
}

func parseCompression(s string) catalog.CompressionAlgorithm {
	switch s {
	case "zstd":
		return catalog.CompressionZstd
	case "bzip2":
		return catalog.CompressionBzip2
	case "gzip":
		return catalog.CompressionGzip
	default:
		return catalog.CompressionNone
	}
}
