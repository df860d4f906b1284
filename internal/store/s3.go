package store

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"infergate/internal/apperrors"
)

// transientRetryAfter is the delay suggested to callers when the store
// reports a temporary condition.
const transientRetryAfter = 30 * time.Second

// S3 is the AWS S3 implementation of Store.
type S3 struct {
	client *s3.Client
}

// NewS3 creates an S3 store using the default credential chain.
func NewS3(ctx context.Context, region string) (*S3, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, apperrors.Internal("store.init", err)
	}
	return &S3{client: s3.NewFromConfig(cfg)}, nil
}

// NewS3FromClient wraps an existing client.
func NewS3FromClient(client *s3.Client) *S3 {
	return &S3{client: client}
}

func (s *S3) Put(ctx context.Context, bucket, key string, body []byte, contentType string) error {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return classify("store.put", err)
	}
	return nil
}

func (s *S3) Head(ctx context.Context, bucket, key string) (Object, error) {
	out, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return Object{}, nil
		}
		return Object{}, classify("store.head", err)
	}

	obj := Object{Exists: true}
	if out.LastModified != nil {
		obj.LastModified = *out.LastModified
	}
	if out.ContentLength != nil {
		obj.ContentLength = *out.ContentLength
	}
	if out.ETag != nil {
		obj.ETag = *out.ETag
	}
	return obj, nil
}

func (s *S3) Get(ctx context.Context, bucket, key string) ([]byte, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, classify("store.get", err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, apperrors.Transient("STORE_CONNECTION_ERROR",
			fmt.Sprintf("reading object body: %v", err), transientRetryAfter)
	}
	return data, nil
}

func (s *S3) Ready(ctx context.Context, bucket string) error {
	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(bucket),
	})
	if err != nil {
		return classify("store.ready", err)
	}
	return nil
}

// isNotFound reports whether the error means the object does not
// exist. Absence is a normal state for in-progress jobs, never an
// error.
func isNotFound(err error) bool {
	var notFound *s3types.NotFound
	var noSuchKey *s3types.NoSuchKey
	if errors.As(err, &notFound) || errors.As(err, &noSuchKey) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		code := apiErr.ErrorCode()
		return code == "NotFound" || code == "NoSuchKey" || code == "404"
	}
	return false
}

// classify maps a store error into the taxonomy. Access-control and
// naming problems are configuration errors: they will not resolve on
// retry. Throttling, timeouts, and connectivity failures are transient.
func classify(op string, err error) error {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		code := apiErr.ErrorCode()
		msg := apiErr.ErrorMessage()
		switch code {
		case "NoSuchBucket":
			return apperrors.Config("BUCKET_NOT_FOUND", "bucket does not exist: "+msg)
		case "AccessDenied", "Forbidden", "403":
			return apperrors.Config("ACCESS_DENIED", "access denied to object store: "+msg)
		case "InvalidBucketName", "InvalidObjectName":
			return apperrors.Config("INVALID_BUCKET_NAME", "invalid bucket or object name: "+msg)
		case "SlowDown", "ServiceUnavailable", "RequestTimeout", "InternalError",
			"Throttling", "ThrottlingException", "RequestLimitExceeded":
			return apperrors.Transient("STORE_UNAVAILABLE",
				"object store temporarily unavailable: "+msg, transientRetryAfter)
		default:
			return apperrors.Internal(op, err)
		}
	}
	// No service response at all: treat as connectivity failure.
	return apperrors.Transient("STORE_CONNECTION_ERROR",
		fmt.Sprintf("%s: %v", op, err), transientRetryAfter)
}

var _ Store = (*S3)(nil)
