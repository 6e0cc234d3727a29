package s3_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/jobhost/bindings/blobpath"
	"github.com/jobhost/bindings/storage"
	blobs3 "github.com/jobhost/bindings/storage/s3"
	"github.com/stretchr/testify/suite"
)

type (
	object struct {
		data        []byte
		contentType string
		modified    time.Time
	}

	fakeAPI struct {
		bucket  string
		objects map[string]object
		fail    error
	}
)

var _ storage.Blobs = (*blobs3.Blobs)(nil)

func (f *fakeAPI) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	if f.fail != nil {
		return nil, f.fail
	}
	if aws.ToString(in.Bucket) != f.bucket {
		return nil, &s3types.NoSuchBucket{}
	}
	obj, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &s3types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(obj.data))}, nil
}

func (f *fakeAPI) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.fail != nil {
		return nil, f.fail
	}
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.objects[aws.ToString(in.Key)] = object{data, aws.ToString(in.ContentType), time.Now().UTC()}
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeAPI) HeadObject(_ context.Context, in *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	obj, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &s3types.NotFound{}
	}
	return &s3.HeadObjectOutput{LastModified: aws.Time(obj.modified)}, nil
}

type S3TestSuite struct {
	suite.Suite
	ctx   context.Context
	api   *fakeAPI
	blobs *blobs3.Blobs
}

func (suite *S3TestSuite) SetupTest() {
	suite.ctx = context.Background()
	suite.api = &fakeAPI{bucket: "jobs", objects: map[string]object{}}
	suite.blobs = blobs3.New(suite.api, "jobs")
}

func (suite *S3TestSuite) TestBlobs() {
	path := blobpath.Path{Container: "input", Blob: "orders/1.json"}

	suite.Run("Missing", func() {
		found, err := suite.blobs.Exists(suite.ctx, path)
		suite.Nil(err)
		suite.False(found)
		_, found, err = suite.blobs.ReadText(suite.ctx, path)
		suite.Nil(err)
		suite.False(found)
		_, err = suite.blobs.OpenRead(suite.ctx, path)
		suite.True(errors.Is(err, storage.ErrNotFound))
	})

	suite.Run("WriteRead", func() {
		w, err := suite.blobs.OpenWrite(suite.ctx, path)
		suite.Require().Nil(err)
		_, _ = io.WriteString(w, `{"id":1}`)
		suite.Nil(w.Close())
		suite.Equal("application/json", suite.api.objects["input/orders/1.json"].contentType)

		text, found, err := suite.blobs.ReadText(suite.ctx, path)
		suite.Nil(err)
		suite.True(found)
		suite.Equal(`{"id":1}`, text)

		modified, found, err := suite.blobs.LastModified(suite.ctx, path)
		suite.Nil(err)
		suite.True(found)
		suite.WithinDuration(time.Now(), modified, time.Minute)
	})

	suite.Run("Failure", func() {
		suite.api.fail = errors.New("throttled")
		_, err := suite.blobs.OpenRead(suite.ctx, path)
		suite.ErrorContains(err, "GetObject failed for input/orders/1.json")
		suite.False(errors.Is(err, storage.ErrNotFound))
		suite.api.fail = nil
	})

	suite.Run("NoBucket", func() {
		_, err := blobs3.New(suite.api, "other").OpenRead(suite.ctx, path)
		suite.True(errors.Is(err, storage.ErrNotFound))
	})

	suite.Run("InvalidPath", func() {
		_, err := suite.blobs.OpenWrite(suite.ctx, blobpath.Path{Container: "x", Blob: "y"})
		suite.True(errors.Is(err, blobpath.ErrInvalidContainerName))
	})
}

func TestS3TestSuite(t *testing.T) {
	suite.Run(t, new(S3TestSuite))
}
