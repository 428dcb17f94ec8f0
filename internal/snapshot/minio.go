package snapshot

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Object is a Writer backed by S3-compatible object storage. An
// operator selects this over Local via config when running the
// pipeline against shared/replicated storage instead of local disk.
type Object struct {
	client     *minio.Client
	bucket     string
	publicBase string
}

// NewObject connects to an S3-compatible endpoint and wraps bucket as a
// Writer. Bucket creation/lifecycle is out of scope: the bucket is
// assumed to already exist.
func NewObject(endpoint, accessKey, secretKey, bucket, publicBase string, useSSL bool) (*Object, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("snapshot: minio client: %w", err)
	}
	return &Object{client: client, bucket: bucket, publicBase: publicBase}, nil
}

func (o *Object) Write(ctx context.Context, cameraID, workerID string, at time.Time, jpeg []byte) (string, error) {
	key := fmt.Sprintf("violations/%s/%s_w%s_%s.jpg", cameraID, at.UTC().Format("20060102T150405Z"), workerID, randomSuffix())

	_, err := o.client.PutObject(ctx, o.bucket, key, bytes.NewReader(jpeg), int64(len(jpeg)),
		minio.PutObjectOptions{ContentType: "image/jpeg"})
	if err != nil {
		return "", fmt.Errorf("snapshot: put object: %w", err)
	}

	return fmt.Sprintf("%s/%s/%s", o.publicBase, o.bucket, key), nil
}
