package s3blob

import (
	"context"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// Writer uploads archive objects into the bucket. It implements
// domain.BlobWriter.
type Writer struct {
	client *s3.Client
	bucket string
}

// minPartSize is the smallest part S3 accepts in a multipart upload (5 MiB).
const minPartSize int64 = 5 * 1024 * 1024

func NewWriter(c *Client) *Writer {
	return &Writer{client: c.S3(), bucket: c.Bucket()}
}

// Put stores data with one PutObject call. Daily archive batches fit a
// single request; use PutMultipart for anything unbounded.
func (w *Writer) Put(ctx context.Context, path string, data io.Reader, contentType string) error {
	_, err := w.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(w.bucket),
		Key:         aws.String(path),
		Body:        data,
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return fmt.Errorf("s3blob: put object %s: %w", path, err)
	}
	return nil
}

// PutMultipart streams data through the SDK upload manager, which splits
// it into concurrent parts. A partSize under the S3 minimum is clamped up.
func (w *Writer) PutMultipart(ctx context.Context, path string, data io.Reader, partSize int64) error {
	if partSize < minPartSize {
		partSize = minPartSize
	}
	up := manager.NewUploader(w.client, func(u *manager.Uploader) { u.PartSize = partSize })

	_, err := up.Upload(ctx, &s3.PutObjectInput{
		Bucket: aws.String(w.bucket),
		Key:    aws.String(path),
		Body:   data,
	})
	if err != nil {
		return fmt.Errorf("s3blob: multipart upload %s: %w", path, err)
	}
	return nil
}
