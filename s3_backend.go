package tftp

import (
	"bytes"
	"io"
	"io/fs"
	"log/slog"
	"math"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/credentials"
	awssession "github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/pkg/errors"
)

// S3 is the subset of the S3 API used by S3Backend.
type S3 interface {
	ListObjectsV2(input *s3.ListObjectsV2Input) (*s3.ListObjectsV2Output, error)
	PutObject(input *s3.PutObjectInput) (*s3.PutObjectOutput, error)
	GetObject(input *s3.GetObjectInput) (*s3.GetObjectOutput, error)
}

// S3Backend serves files from keys below a prefix of an S3 bucket.
//
// Uploads are buffered in memory and stored with a single PutObject when the transfer completes.
type S3Backend struct {
	s3       S3
	bucket   string
	prefix   string
	kmsKeyID *string
	lg       *slog.Logger
}

// NewS3Backend creates a new S3Backend with the AWS credentials and S3 parameters.
// bucket: name of S3 bucket
// prefix: key within the S3 bucket that all file names are confined to, if applicable
// awsAccessKeyID: when empty, the default AWS credential chain is used
// kmsKeyID: when nil, objects are stored with AES256 server side encryption
func NewS3Backend(
	bucket,
	prefix,
	region,
	awsAccessKeyID,
	awsSecretKey,
	awsToken string,
	kmsKeyID *string,
	lg *slog.Logger,
) (*S3Backend, error) {
	config := aws.NewConfig().WithRegion(region)
	if awsAccessKeyID != "" {
		config = config.WithCredentials(credentials.NewStaticCredentials(awsAccessKeyID, awsSecretKey, awsToken))
	}

	sess, err := awssession.NewSession(config)
	if err != nil {
		return nil, errors.Wrap(err, "creating aws session")
	}

	return newS3Backend(s3.New(sess), bucket, prefix, kmsKeyID, lg), nil
}

func newS3Backend(client S3, bucket, prefix string, kmsKeyID *string, lg *slog.Logger) *S3Backend {
	return &S3Backend{
		s3:       client,
		bucket:   bucket,
		prefix:   prefix,
		kmsKeyID: kmsKeyID,
		lg:       lg,
	}
}

type s3ReadFile struct {
	io.ReadCloser
	size int64
}

func (f *s3ReadFile) Size() int64 {
	return f.size
}

// OpenRead streams the object stored under name.
func (d *S3Backend) OpenRead(name string) (ReadFile, error) {
	key, err := TranslatePath(d.prefix, name)
	if err != nil {
		return nil, err
	}

	obj, err := d.s3.GetObject(&s3.GetObjectInput{
		Bucket: aws.String(d.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var aerr awserr.Error
		if errors.As(err, &aerr) && aerr.Code() == s3.ErrCodeNoSuchKey {
			return nil, &fs.PathError{Op: "get", Path: key, Err: fs.ErrNotExist}
		}
		return nil, errors.Wrapf(err, "s3 get %s", key)
	}

	size := aws.Int64Value(obj.ContentLength)

	if d.lg != nil {
		d.lg.Info("s3-get-file-success",
			"s3_bucket", d.bucket,
			"method", "GET",
			"path", key,
			"file_bytes_size", size,
		)
	}

	return &s3ReadFile{
		ReadCloser: obj.Body,
		size:       size,
	}, nil
}

// Exists reports whether an object is stored under exactly the key for name.
func (d *S3Backend) Exists(name string) (bool, error) {
	key, err := TranslatePath(d.prefix, name)
	if err != nil {
		return false, err
	}

	resp, err := d.s3.ListObjectsV2(&s3.ListObjectsV2Input{
		Bucket:  aws.String(d.bucket),
		Prefix:  aws.String(key),
		MaxKeys: aws.Int64(1),
	})
	if err != nil {
		return false, errors.Wrapf(err, "s3 list %s", key)
	}

	if aws.Int64Value(resp.KeyCount) == 0 || len(resp.Contents) == 0 {
		return false, nil
	}

	return aws.StringValue(resp.Contents[0].Key) == key, nil
}

// Create stores an empty object under name.
func (d *S3Backend) Create(name string) error {
	key, err := TranslatePath(d.prefix, name)
	if err != nil {
		return err
	}

	return d.put(key, nil)
}

// OpenWrite returns a writer that replaces the object under name when it is closed.
func (d *S3Backend) OpenWrite(name string) (io.WriteCloser, error) {
	key, err := TranslatePath(d.prefix, name)
	if err != nil {
		return nil, err
	}

	return &s3WriteFile{
		d:   d,
		key: key,
	}, nil
}

// FreeSpace is unlimited for object storage.
func (d *S3Backend) FreeSpace(name string) (int64, error) {
	return math.MaxInt64, nil
}

func (d *S3Backend) put(key string, data []byte) error {
	input := &s3.PutObjectInput{
		Bucket: aws.String(d.bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(data),
	}
	if d.kmsKeyID == nil {
		input.ServerSideEncryption = aws.String("AES256")
	} else {
		input.ServerSideEncryption = aws.String("aws:kms")
		input.SSEKMSKeyId = aws.String(*d.kmsKeyID)
	}

	if _, err := d.s3.PutObject(input); err != nil {
		return errors.Wrapf(err, "s3 put %s", key)
	}

	if d.lg != nil {
		d.lg.Info("s3-put-file-success",
			"s3_bucket", d.bucket,
			"method", "PUT",
			"path", key,
			"file_bytes_size", len(data),
		)
	}

	return nil
}

type s3WriteFile struct {
	d      *S3Backend
	key    string
	buf    bytes.Buffer
	closed bool
}

func (f *s3WriteFile) Write(b []byte) (int, error) {
	if f.closed {
		return 0, fs.ErrClosed
	}

	return f.buf.Write(b)
}

func (f *s3WriteFile) Close() error {
	if f.closed {
		return fs.ErrClosed
	}
	f.closed = true

	return f.d.put(f.key, f.buf.Bytes())
}

// Abort discards the buffered upload without storing it.
func (f *s3WriteFile) Abort() error {
	f.closed = true
	f.buf.Reset()
	return nil
}
