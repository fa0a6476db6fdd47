package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"path"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// S3Storage stores objects in a bucket under an optional key prefix. A
// single PutObject is atomic, which is all the LATEST pointer needs.
type S3Storage struct {
	client *s3.Client
	bucket string
	prefix string
}

func NewS3Storage(client *s3.Client, bucket, prefix string) *S3Storage {
	return &S3Storage{
		client: client,
		bucket: bucket,
		prefix: strings.Trim(prefix, "/"),
	}
}

func (s *S3Storage) key(p string) string {
	return strings.TrimPrefix(path.Join(s.prefix, p), "/")
}

func (s *S3Storage) Write(ctx context.Context, filepath string, data io.Reader) error {
	// PutObject needs a seekable body to compute the payload checksum.
	buf := new(bytes.Buffer)
	if _, err := io.Copy(buf, data); err != nil {
		return fmt.Errorf("copying data: %w", err)
	}

	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(filepath)),
		Body:   bytes.NewReader(buf.Bytes()),
	})
	if err != nil {
		return fmt.Errorf("putting object %s: %w", filepath, err)
	}
	return nil
}

func (s *S3Storage) Read(ctx context.Context, filepath string) (io.ReadCloser, error) {
	output, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(filepath)),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("getting object %s: %w", filepath, fs.ErrNotExist)
		}
		return nil, fmt.Errorf("getting object %s: %w", filepath, err)
	}
	return output.Body, nil
}

// List emulates a directory listing with a "/" delimiter: common prefixes
// become directories.
func (s *S3Storage) List(ctx context.Context, dir string) ([]Entry, error) {
	fullPrefix := s.key(dir) + "/"
	if fullPrefix == "/" {
		fullPrefix = ""
	}

	var entries []Entry
	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket:    aws.String(s.bucket),
		Prefix:    aws.String(fullPrefix),
		Delimiter: aws.String("/"),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("listing objects: %w", err)
		}
		for _, cp := range page.CommonPrefixes {
			name := strings.TrimSuffix(strings.TrimPrefix(aws.ToString(cp.Prefix), fullPrefix), "/")
			if name != "" {
				entries = append(entries, Entry{Name: name, IsDir: true})
			}
		}
		for _, obj := range page.Contents {
			name := strings.TrimPrefix(aws.ToString(obj.Key), fullPrefix)
			if name != "" {
				entries = append(entries, Entry{Name: name})
			}
		}
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("listing %s: %w", dir, fs.ErrNotExist)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	return entries, nil
}

func (s *S3Storage) Exists(ctx context.Context, filepath string) (bool, error) {
	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(filepath)),
	})
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("heading object %s: %w", filepath, err)
	}
	return true, nil
}

// DirExists reports whether any object lives under dir.
func (s *S3Storage) DirExists(ctx context.Context, dir string) (bool, error) {
	out, err := s.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket:  aws.String(s.bucket),
		Prefix:  aws.String(s.key(dir) + "/"),
		MaxKeys: aws.Int32(1),
	})
	if err != nil {
		return false, fmt.Errorf("listing objects: %w", err)
	}
	return len(out.Contents) > 0, nil
}

// MkdirAll is a no-op: S3 has no directories.
func (s *S3Storage) MkdirAll(ctx context.Context, dir string) error {
	return nil
}

func (s *S3Storage) Delete(ctx context.Context, filepath string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(filepath)),
	})
	if err != nil {
		return fmt.Errorf("deleting object %s: %w", filepath, err)
	}
	return nil
}

func (s *S3Storage) URI(filepath string) string {
	return "s3://" + s.bucket + "/" + s.key(filepath)
}

func isNotFound(err error) bool {
	var nsk *types.NoSuchKey
	var nf *types.NotFound
	return errors.As(err, &nsk) || errors.As(err, &nf)
}
