package s3

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
)

const (
	emptyAWSSessionToken                     = ""
	pathSeparator                            = '/'
	errFailedCreateAWSSessionFmt             = "failed to create AWS session: %w"
	errFailedPutObjectFmt                    = "failed to put object: %w"
	errFailedGeneratePresignedDownloadURLFmt = "failed to generate presigned download URL: %w"
	errFailedListObjectsFmt                  = "failed to list objects: %w"
)

type Config struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	Bucket          string
	// Endpoint overrides the AWS endpoint for S3 compatible stores.
	Endpoint string
}

type Object struct {
	Key          string    `json:"key"`
	Size         int64     `json:"size"`
	LastModified time.Time `json:"lastModified"`
}

// Client stores objects in a single bucket.
type Client struct {
	svc                s3iface.S3API
	bucketName         string
	presignedURLExpiry time.Duration
}

func NewClient(cfg Config, presignedURLExpiry time.Duration) (*Client, error) {
	awsCfg := &aws.Config{
		Region: aws.String(cfg.Region),
	}
	if cfg.AccessKeyID != "" {
		awsCfg.Credentials = credentials.NewStaticCredentials(
			cfg.AccessKeyID,
			cfg.SecretAccessKey,
			emptyAWSSessionToken,
		)
	}
	if cfg.Endpoint != "" {
		awsCfg.Endpoint = aws.String(cfg.Endpoint)
		awsCfg.S3ForcePathStyle = aws.Bool(true)
	}

	sess, err := session.NewSession(awsCfg)
	if err != nil {
		return nil, fmt.Errorf(errFailedCreateAWSSessionFmt, err)
	}

	return NewWithAPI(s3.New(sess), cfg.Bucket, presignedURLExpiry), nil
}

// NewWithAPI wraps an existing S3 API implementation.
func NewWithAPI(svc s3iface.S3API, bucketName string, presignedURLExpiry time.Duration) *Client {
	return &Client{
		svc:                svc,
		bucketName:         bucketName,
		presignedURLExpiry: presignedURLExpiry,
	}
}

func (c *Client) Bucket() string {
	return c.bucketName
}

func (c *Client) PutObject(ctx context.Context, objectKey string, body []byte, contentType string) error {
	_, err := c.svc.PutObjectWithContext(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(c.bucketName),
		Key:         aws.String(objectKey),
		Body:        bytes.NewReader(body),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return fmt.Errorf(errFailedPutObjectFmt, err)
	}
	return nil
}

func (c *Client) GeneratePresignedDownloadURL(ctx context.Context, objectKey string) (string, error) {
	req, _ := c.svc.GetObjectRequest(&s3.GetObjectInput{
		Bucket: aws.String(c.bucketName),
		Key:    aws.String(objectKey),
	})
	req.SetContext(ctx)

	url, err := req.Presign(c.presignedURLExpiry)
	if err != nil {
		return "", fmt.Errorf(errFailedGeneratePresignedDownloadURLFmt, err)
	}

	return url, nil
}

func (c *Client) ListObjects(ctx context.Context, prefix string, maxKeys int) ([]Object, error) {
	result, err := c.svc.ListObjectsV2WithContext(ctx, &s3.ListObjectsV2Input{
		Bucket:  aws.String(c.bucketName),
		Prefix:  aws.String(prefix),
		MaxKeys: aws.Int64(int64(maxKeys)),
	})
	if err != nil {
		return nil, fmt.Errorf(errFailedListObjectsFmt, err)
	}

	objects := make([]Object, 0, len(result.Contents))
	for _, obj := range result.Contents {
		objects = append(objects, Object{
			Key:          aws.StringValue(obj.Key),
			Size:         aws.Int64Value(obj.Size),
			LastModified: aws.TimeValue(obj.LastModified),
		})
	}
	return objects, nil
}

func BuildObjectKey(folderPath, filename string) string {
	if folderPath == "" {
		return filename
	}

	if folderPath[len(folderPath)-1] != pathSeparator {
		folderPath += "/"
	}

	return folderPath + filename
}
