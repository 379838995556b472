package clients

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	smithyhttp "github.com/aws/smithy-go/transport/http"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Semprini/data-products/ducklake-init/internal/config"
)

// fakeBuckets is an in-memory bucketAPI. headErr and createErr, when set,
// override the normal behaviour.
type fakeBuckets struct {
	mu        sync.Mutex
	buckets   map[string]bool
	headErr   error
	createErr error
	heads     int
	creates   []*s3.CreateBucketInput
}

func newFakeBuckets(existing ...string) *fakeBuckets {
	f := &fakeBuckets{buckets: map[string]bool{}}
	for _, b := range existing {
		f.buckets[b] = true
	}
	return f
}

func (f *fakeBuckets) HeadBucket(_ context.Context, in *s3.HeadBucketInput, _ ...func(*s3.Options)) (*s3.HeadBucketOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.heads++
	if f.headErr != nil {
		return nil, f.headErr
	}
	if !f.buckets[aws.ToString(in.Bucket)] {
		return nil, &types.NotFound{}
	}
	return &s3.HeadBucketOutput{}, nil
}

func (f *fakeBuckets) CreateBucket(_ context.Context, in *s3.CreateBucketInput, _ ...func(*s3.Options)) (*s3.CreateBucketOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.creates = append(f.creates, in)
	if f.createErr != nil {
		return nil, f.createErr
	}
	name := aws.ToString(in.Bucket)
	if f.buckets[name] {
		return nil, &types.BucketAlreadyOwnedByYou{Message: aws.String(name)}
	}
	f.buckets[name] = true
	return &s3.CreateBucketOutput{}, nil
}

// statusError builds the error shape the SDK returns when the server sends
// only a status code, as HeadBucket does.
func statusError(code int) error {
	return &smithy.OperationError{
		ServiceID:     "S3",
		OperationName: "HeadBucket",
		Err: &awshttp.ResponseError{
			ResponseError: &smithyhttp.ResponseError{
				Response: &smithyhttp.Response{Response: &http.Response{StatusCode: code}},
				Err:      errors.New("http response error"),
			},
		},
	}
}

func TestEnsure_CreatesMissingBucket(t *testing.T) {
	t.Parallel()

	api := newFakeBuckets()
	p := &BucketProvisioner{api: api, region: "us-east-1"}

	require.NoError(t, p.Ensure(context.Background(), "warehouse"))

	require.Len(t, api.creates, 1)
	assert.Equal(t, "warehouse", aws.ToString(api.creates[0].Bucket))
	assert.Nil(t, api.creates[0].CreateBucketConfiguration, "us-east-1 takes no location constraint")
}

func TestEnsure_ExistingBucketSkipsCreate(t *testing.T) {
	t.Parallel()

	api := newFakeBuckets("warehouse")
	p := &BucketProvisioner{api: api, region: "us-east-1"}

	require.NoError(t, p.Ensure(context.Background(), "warehouse"))

	assert.Equal(t, 1, api.heads)
	assert.Empty(t, api.creates)
}

func TestEnsure_Idempotent(t *testing.T) {
	t.Parallel()

	api := newFakeBuckets()
	p := &BucketProvisioner{api: api, region: "us-east-1"}

	require.NoError(t, p.Ensure(context.Background(), "warehouse"))
	require.NoError(t, p.Ensure(context.Background(), "warehouse"))

	assert.Len(t, api.creates, 1, "second call must find the bucket and not create")
	assert.Equal(t, 2, api.heads)
}

func TestEnsure_NotFoundShapes(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		headErr error
	}{
		{name: "typed NotFound", headErr: &types.NotFound{}},
		{name: "typed NoSuchBucket", headErr: &types.NoSuchBucket{}},
		{name: "generic API error code", headErr: &smithy.GenericAPIError{Code: "NoSuchBucket"}},
		{name: "bare 404 response", headErr: statusError(http.StatusNotFound)},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			api := newFakeBuckets()
			api.headErr = tc.headErr
			p := &BucketProvisioner{api: api, region: "us-east-1"}

			require.NoError(t, p.Ensure(context.Background(), "warehouse"))
			assert.Len(t, api.creates, 1)
		})
	}
}

func TestEnsure_HeadErrorIsFatalWithoutCreate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		headErr error
	}{
		{name: "forbidden", headErr: statusError(http.StatusForbidden)},
		{name: "server error", headErr: statusError(http.StatusInternalServerError)},
		{name: "network", headErr: errors.New("dial tcp: lookup minio: no such host")},
		{name: "access denied code", headErr: &smithy.GenericAPIError{Code: "AccessDenied"}},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			api := newFakeBuckets()
			api.headErr = tc.headErr
			p := &BucketProvisioner{api: api, region: "us-east-1"}

			err := p.Ensure(context.Background(), "warehouse")

			var provErr *ProvisioningError
			require.ErrorAs(t, err, &provErr)
			assert.Equal(t, "head", provErr.Op)
			assert.Equal(t, "warehouse", provErr.Bucket)
			assert.ErrorIs(t, err, tc.headErr)
			assert.Empty(t, api.creates, "a failed existence check must never lead to create")
		})
	}
}

func TestEnsure_CreateRaceIsSuccess(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		createErr error
	}{
		{name: "owned by you", createErr: &types.BucketAlreadyOwnedByYou{}},
		{name: "already exists", createErr: &types.BucketAlreadyExists{}},
		{name: "generic code", createErr: &smithy.GenericAPIError{Code: "BucketAlreadyOwnedByYou"}},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			api := newFakeBuckets()
			api.createErr = tc.createErr
			p := &BucketProvisioner{api: api, region: "us-east-1"}

			require.NoError(t, p.Ensure(context.Background(), "warehouse"))
		})
	}
}

func TestEnsure_CreateErrorIsFatal(t *testing.T) {
	t.Parallel()

	api := newFakeBuckets()
	api.createErr = &smithy.GenericAPIError{Code: "InvalidBucketName", Message: "bad name"}
	p := &BucketProvisioner{api: api, region: "us-east-1"}

	err := p.Ensure(context.Background(), "Not_A_Bucket")

	var provErr *ProvisioningError
	require.ErrorAs(t, err, &provErr)
	assert.Equal(t, "create", provErr.Op)
	assert.Contains(t, err.Error(), "InvalidBucketName")
}

func TestEnsure_LocationConstraintForOtherRegions(t *testing.T) {
	t.Parallel()

	api := newFakeBuckets()
	p := &BucketProvisioner{api: api, region: "eu-west-2"}

	require.NoError(t, p.Ensure(context.Background(), "warehouse"))

	require.Len(t, api.creates, 1)
	require.NotNil(t, api.creates[0].CreateBucketConfiguration)
	assert.Equal(t, types.BucketLocationConstraint("eu-west-2"),
		api.creates[0].CreateBucketConfiguration.LocationConstraint)
}

func TestNewBucketProvisioner(t *testing.T) {
	t.Parallel()

	p, err := NewBucketProvisioner(context.Background(), config.ObjectStoreConfig{
		EndpointURL:     "http://minio:9000",
		AccessKeyID:     "minioadmin",
		SecretAccessKey: "miniosecret",
		Region:          "us-east-1",
	})
	require.NoError(t, err)

	_, ok := p.api.(*s3.Client)
	assert.True(t, ok)
	assert.Equal(t, "us-east-1", p.region)
}

func TestEndpointOptions(t *testing.T) {
	t.Parallel()

	var opts s3.Options
	endpointOptions("http://minio:9000")(&opts)

	assert.True(t, opts.UsePathStyle, "MinIO needs path-style addressing")
	assert.Equal(t, "http://minio:9000", aws.ToString(opts.BaseEndpoint))
}
