/*
Copyright 2024 Ledgerscan Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"

	"github.com/ledgerscan/ledgerscan/config"
)

// Service is the object-store contract the pipeline depends on. Implementations
// must treat paths as opaque keys; TTLs bound how long issued URLs stay valid.
type Service interface {
	PutObject(ctx context.Context, path string, data []byte, contentType string) error
	GetObject(ctx context.Context, path string) ([]byte, error)
	SignedDownloadURL(path string, ttl time.Duration) (string, error)
	SignedUploadURL(path string, ttl time.Duration) (string, error)
}

// S3Storage stores document artifacts in an S3-compatible bucket.
type S3Storage struct {
	client *s3.S3
	bucket string
}

// NewS3Storage creates an S3-backed storage service from configuration.
// A custom endpoint supports S3-compatible stores such as MinIO.
func NewS3Storage(cnf *config.Configuration) (*S3Storage, error) {
	awsCfg := &aws.Config{
		Region:      aws.String(cnf.Storage.Region),
		Credentials: credentials.NewStaticCredentials(cnf.Storage.AccessKeyID, cnf.Storage.SecretAccessKey, ""),
	}
	if cnf.Storage.Endpoint != "" {
		awsCfg.Endpoint = aws.String(cnf.Storage.Endpoint)
		awsCfg.S3ForcePathStyle = aws.Bool(true)
	}

	sess, err := session.NewSession(awsCfg)
	if err != nil {
		return nil, fmt.Errorf("error creating s3 session: %w", err)
	}

	return &S3Storage{client: s3.New(sess), bucket: cnf.Storage.Bucket}, nil
}

func (s *S3Storage) PutObject(ctx context.Context, path string, data []byte, contentType string) error {
	_, err := s.client.PutObjectWithContext(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(path),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	})
	return err
}

func (s *S3Storage) GetObject(ctx context.Context, path string) ([]byte, error) {
	out, err := s.client.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(path),
	})
	if err != nil {
		return nil, err
	}
	defer out.Body.Close()
	return io.ReadAll(out.Body)
}

// SignedDownloadURL issues a presigned GET URL for the object at path.
func (s *S3Storage) SignedDownloadURL(path string, ttl time.Duration) (string, error) {
	req, _ := s.client.GetObjectRequest(&s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(path),
	})
	return req.Presign(ttl)
}

// SignedUploadURL issues a presigned PUT URL so clients can upload directly.
func (s *S3Storage) SignedUploadURL(path string, ttl time.Duration) (string, error) {
	req, _ := s.client.PutObjectRequest(&s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(path),
	})
	return req.Presign(ttl)
}
