package blob

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"

	"github.com/buildbeaver/depchain/common/gerror"
	"github.com/buildbeaver/depchain/common/logger"
	"github.com/buildbeaver/depchain/common/models"
)

type S3BlobStoreConfig struct {
	BucketName      string
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	// Endpoint overrides the S3 endpoint, e.g. for an S3 compatible store such as MinIO.
	Endpoint string
}

type S3BlobStore struct {
	s3       *s3.S3
	uploader *s3manager.Uploader
	config   S3BlobStoreConfig
	log      logger.Log
}

func NewS3BlobStore(config S3BlobStoreConfig, logFactory logger.LogFactory) (*S3BlobStore, error) {
	if config.BucketName == "" {
		return nil, fmt.Errorf("error bucket name must be configured")
	}
	log := logFactory("AWSS3BlobStore")
	cfg := &aws.Config{}
	log.Infof("Using bucket: %s", config.BucketName)
	if config.Region != "" {
		log.Infof("Using region: %s", config.Region)
		cfg = cfg.WithRegion(config.Region)
	} else {
		log.Info("Using default region")
	}
	if config.Endpoint != "" {
		log.Infof("Using endpoint: %s", config.Endpoint)
		cfg = cfg.WithEndpoint(config.Endpoint).WithS3ForcePathStyle(true)
	}
	if config.AccessKeyID != "" && config.SecretAccessKey != "" {
		log.Infof("Using static credentials: %s", config.AccessKeyID)
		cfg = cfg.WithCredentials(credentials.NewStaticCredentials(config.AccessKeyID, config.SecretAccessKey, ""))
	} else {
		log.Infof("Using default credentials")
	}
	sess, err := session.NewSession(cfg)
	if err != nil {
		return nil, fmt.Errorf("error creating AWS session: %w", err)
	}
	return &S3BlobStore{
		s3:       s3.New(sess),
		uploader: s3manager.NewUploader(sess),
		config:   config,
		log:      log,
	}, nil
}

// PutBlob writes all data in the source reader to a blob identified by key.
// The caller is responsible for closing the reader.
func (s *S3BlobStore) PutBlob(ctx context.Context, key string, source io.Reader) error {
	if err := validateKey(key); err != nil {
		return err
	}
	input := &s3manager.UploadInput{
		Body:                 source,
		Bucket:               aws.String(s.config.BucketName),
		ContentType:          aws.String("application/octet-stream"),
		Key:                  aws.String(key),
		ServerSideEncryption: aws.String("AES256"),
	}
	// NOTE: This will use multipart uploads if it needs to. If the upload fails it will attempt to
	// clean up the parts, which can itself fail, so dead parts may accumulate in the bucket.
	out, err := s.uploader.UploadWithContext(ctx, input)
	if err != nil {
		return fmt.Errorf("error putting blob %s: %w", key, err)
	}
	s.log.WithField("bucket", s.config.BucketName).
		WithField("key", key).
		WithField("upload_id", out.UploadID).
		Infof("Uploaded object")
	return nil
}

// GetBlob returns a reader positioned at the beginning of the blob identified by key.
// The caller is responsible for closing the reader.
func (s *S3BlobStore) GetBlob(ctx context.Context, key string) (io.ReadCloser, error) {
	return s.GetBlobRange(ctx, key, 0, -1)
}

// GetBlobRange returns a reader positioned at the specified offset of the blob identified
// by key, which will read up to length bytes, or to the end of the blob if length is negative.
// The caller is responsible for closing the reader.
func (s *S3BlobStore) GetBlobRange(ctx context.Context, key string, offset, length int64) (io.ReadCloser, error) {
	if err := validateKey(key); err != nil {
		return nil, err
	}
	if length == 0 {
		return io.NopCloser(strings.NewReader("")), nil
	}
	input := &s3.GetObjectInput{
		Bucket: aws.String(s.config.BucketName),
		Key:    aws.String(key),
	}
	if length > 0 {
		input.Range = aws.String(fmt.Sprintf("bytes=%d-%d", offset, offset+length-1))
	} else if offset > 0 {
		input.Range = aws.String(fmt.Sprintf("bytes=%d-", offset))
	}
	output, err := s.s3.GetObjectWithContext(ctx, input)
	if err != nil {
		if aErr, ok := err.(awserr.Error); ok && aErr.Code() == s3.ErrCodeNoSuchKey {
			return nil, gerror.NewErrNotFound("Not Found").Wrap(err).IDetail("key", key)
		}
		return nil, fmt.Errorf("error getting blob %s: %w", key, err)
	}
	s.log.WithField("bucket", s.config.BucketName).
		WithField("key", key).
		WithField("range", aws.StringValue(input.Range)).
		Debugf("Read object")
	return output.Body, nil
}

// DeleteBlob deletes a blob. Returns nil if the blob does not exist.
func (s *S3BlobStore) DeleteBlob(ctx context.Context, key string) error {
	if err := validateKey(key); err != nil {
		return err
	}
	input := &s3.DeleteObjectInput{
		Bucket: aws.String(s.config.BucketName),
		Key:    aws.String(key),
	}
	_, err := s.s3.DeleteObjectWithContext(ctx, input)
	if err != nil {
		return fmt.Errorf("error deleting blob %s: %w", key, err)
	}
	s.log.WithField("bucket", s.config.BucketName).
		WithField("key", key).
		Infof("Deleted object")
	return nil
}

// ListBlobs lists up to limit blobs whose keys start with prefix, in key order, starting after marker.
func (s *S3BlobStore) ListBlobs(ctx context.Context, prefix string, marker string, limit int) ([]*models.BlobDescriptor, string, error) {
	if strings.HasPrefix(prefix, "/") {
		return nil, "", fmt.Errorf("error blob keys cannot begin with /")
	}
	if limit <= 0 {
		limit = models.DefaultPaginationLimit
	}
	input := &s3.ListObjectsInput{
		Bucket:  aws.String(s.config.BucketName),
		Marker:  aws.String(marker),
		MaxKeys: aws.Int64(int64(limit)),
		Prefix:  aws.String(prefix),
	}
	output, err := s.s3.ListObjectsWithContext(ctx, input)
	if err != nil {
		return nil, "", fmt.Errorf("error listing blobs prefix=%s marker=%s: %w", prefix, marker, err)
	}
	s.log.
		WithField("bucket", s.config.BucketName).
		WithField("marker", marker).
		WithField("prefix", prefix).
		WithField("results", len(output.Contents)).
		Debugf("Listed objects")
	var results []*models.BlobDescriptor
	for _, obj := range output.Contents {
		results = append(results, &models.BlobDescriptor{Key: aws.StringValue(obj.Key), SizeBytes: aws.Int64Value(obj.Size)})
	}
	var nextMarker string
	if aws.BoolValue(output.IsTruncated) && len(results) > 0 {
		nextMarker = results[len(results)-1].Key
	}
	return results, nextMarker, nil
}
