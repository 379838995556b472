package clients

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/Semprini/data-products/ducklake-init/internal/config"
)

// ProvisioningError is returned when the bucket could not be confirmed or
// created. Op is "head" or "create".
type ProvisioningError struct {
	Bucket string
	Op     string
	Err    error
}

func (e *ProvisioningError) Error() string {
	return fmt.Sprintf("provisioning bucket %q: %s: %v", e.Bucket, e.Op, e.Err)
}

func (e *ProvisioningError) Unwrap() error { return e.Err }

// bucketAPI is the subset of *s3.Client used by BucketProvisioner.
type bucketAPI interface {
	HeadBucket(ctx context.Context, params *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
	CreateBucket(ctx context.Context, params *s3.CreateBucketInput, optFns ...func(*s3.Options)) (*s3.CreateBucketOutput, error)
}

// BucketProvisioner makes sure the lake bucket exists.
type BucketProvisioner struct {
	api    bucketAPI
	region string
}

// NewBucketProvisioner builds an S3 client for the configured endpoint with
// static credentials and path-style addressing, which MinIO requires.
func NewBucketProvisioner(ctx context.Context, cfg config.ObjectStoreConfig) (*BucketProvisioner, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, endpointOptions(cfg.EndpointURL))
	return &BucketProvisioner{api: client, region: cfg.Region}, nil
}

func endpointOptions(endpoint string) func(*s3.Options) {
	return func(o *s3.Options) {
		o.BaseEndpoint = aws.String(endpoint)
		o.UsePathStyle = true
	}
}

// Ensure creates bucket unless it already exists. Only a not-found answer
// from HeadBucket leads to a create; any other head error is returned as is
// so that permission or network problems are never mistaken for absence.
// A create that loses a race with another creator counts as success.
func (p *BucketProvisioner) Ensure(ctx context.Context, bucket string) error {
	_, err := p.api.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(bucket)})
	if err == nil {
		slog.InfoContext(ctx, "bucket exists", "bucket", bucket)
		return nil
	}
	if !isBucketNotFound(err) {
		return &ProvisioningError{Bucket: bucket, Op: "head", Err: err}
	}

	input := &s3.CreateBucketInput{Bucket: aws.String(bucket)}
	// us-east-1 is the implicit location and must not be sent explicitly.
	if p.region != "" && p.region != config.DefaultRegion {
		input.CreateBucketConfiguration = &types.CreateBucketConfiguration{
			LocationConstraint: types.BucketLocationConstraint(p.region),
		}
	}

	if _, err := p.api.CreateBucket(ctx, input); err != nil {
		if isBucketAlreadyExists(err) {
			slog.InfoContext(ctx, "bucket created concurrently", "bucket", bucket)
			return nil
		}
		return &ProvisioningError{Bucket: bucket, Op: "create", Err: err}
	}

	slog.InfoContext(ctx, "bucket created", "bucket", bucket, "region", p.region)
	return nil
}

func isBucketNotFound(err error) bool {
	var notFound *types.NotFound
	if errors.As(err, &notFound) {
		return true
	}
	var noSuchBucket *types.NoSuchBucket
	if errors.As(err, &noSuchBucket) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NotFound", "NoSuchBucket":
			return true
		}
	}
	// HeadBucket has no body, so some servers only give us the status code.
	var respErr *awshttp.ResponseError
	if errors.As(err, &respErr) && respErr.HTTPStatusCode() == http.StatusNotFound {
		return true
	}
	return false
}

func isBucketAlreadyExists(err error) bool {
	var owned *types.BucketAlreadyOwnedByYou
	if errors.As(err, &owned) {
		return true
	}
	var exists *types.BucketAlreadyExists
	if errors.As(err, &exists) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "BucketAlreadyOwnedByYou", "BucketAlreadyExists":
			return true
		}
	}
	return false
}
