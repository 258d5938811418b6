package minioctrl

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"localpiece/src/log"
)

// MinioService stores blog images in a single bucket and hands out
// public URLs of the form {domain}/{bucket}/{object}.
type MinioService struct {
	client *minio.Client
	bucket string
	domain string
}

func NewMinioService(endpoint, accessKeyID, secretAccessKey, bucket, domain string, useSSL bool) (*MinioService, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKeyID, secretAccessKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %v", err)
	}

	return &MinioService{
		client: client,
		bucket: bucket,
		domain: strings.TrimRight(domain, "/"),
	}, nil
}

func (s *MinioService) EnsureBucketExists(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("failed to check bucket existence: %v", err)
	}

	if !exists {
		err = s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{})
		if err != nil {
			return fmt.Errorf("failed to create bucket: %v", err)
		}
	}

	return nil
}

// UploadImage writes the image under a unique object name so concurrent
// jobs never collide, and returns the public URL of the object.
func (s *MinioService) UploadImage(ctx context.Context, data []byte, filename, contentType string) (string, error) {
	objectName := fmt.Sprintf("%s_%s", uuid.New().String(), path.Base(filename))

	reader := bytes.NewReader(data)
	_, err := s.client.PutObject(ctx, s.bucket, objectName, reader, int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", fmt.Errorf("failed to put object %s: %v", objectName, err)
	}

	return fmt.Sprintf("%s/%s/%s", s.domain, s.bucket, objectName), nil
}

// DeleteImageByURL removes the object addressed by a URL previously
// returned from UploadImage. A missing object is not an error.
func (s *MinioService) DeleteImageByURL(ctx context.Context, imageURL string) error {
	objectName := objectNameFromURL(imageURL)
	if objectName == "" {
		return fmt.Errorf("cannot derive object name from url: %s", imageURL)
	}

	err := s.client.RemoveObject(ctx, s.bucket, objectName, minio.RemoveObjectOptions{})
	if err != nil {
		if resp := minio.ToErrorResponse(err); resp.Code == "NoSuchKey" || resp.StatusCode == 404 {
			log.Warn("image already gone from object storage", "url", imageURL)
			return nil
		}
		return fmt.Errorf("failed to delete object %s: %v", objectName, err)
	}

	return nil
}

func objectNameFromURL(imageURL string) string {
	idx := strings.LastIndex(imageURL, "/")
	if idx < 0 || idx == len(imageURL)-1 {
		return ""
	}
	return imageURL[idx+1:]
}
