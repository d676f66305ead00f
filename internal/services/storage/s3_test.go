package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

type fakeS3 struct {
	mu        sync.Mutex
	puts      map[string][]byte
	parts     map[int32]int
	completed []types.CompletedPart
	aborted   bool
	failPart  int32
}

func newFakeS3() *fakeS3 {
	return &fakeS3{puts: make(map[string][]byte), parts: make(map[int32]int)}
}

func (f *fakeS3) PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, _ := io.ReadAll(params.Body)
	f.mu.Lock()
	f.puts[aws.ToString(params.Key)] = data
	f.mu.Unlock()
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) CreateMultipartUpload(ctx context.Context, params *s3.CreateMultipartUploadInput, optFns ...func(*s3.Options)) (*s3.CreateMultipartUploadOutput, error) {
	return &s3.CreateMultipartUploadOutput{UploadId: aws.String("upload-1")}, nil
}

func (f *fakeS3) UploadPart(ctx context.Context, params *s3.UploadPartInput, optFns ...func(*s3.Options)) (*s3.UploadPartOutput, error) {
	number := aws.ToInt32(params.PartNumber)
	if number == f.failPart {
		return nil, errors.New("part rejected")
	}
	data, _ := io.ReadAll(params.Body)
	f.mu.Lock()
	f.parts[number] = len(data)
	f.mu.Unlock()
	return &s3.UploadPartOutput{ETag: aws.String(fmt.Sprintf("etag-%d", number))}, nil
}

func (f *fakeS3) CompleteMultipartUpload(ctx context.Context, params *s3.CompleteMultipartUploadInput, optFns ...func(*s3.Options)) (*s3.CompleteMultipartUploadOutput, error) {
	f.completed = params.MultipartUpload.Parts
	return &s3.CompleteMultipartUploadOutput{}, nil
}

func (f *fakeS3) AbortMultipartUpload(ctx context.Context, params *s3.AbortMultipartUploadInput, optFns ...func(*s3.Options)) (*s3.AbortMultipartUploadOutput, error) {
	f.aborted = true
	return &s3.AbortMultipartUploadOutput{}, nil
}

func (f *fakeS3) HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	if _, ok := f.puts[aws.ToString(params.Key)]; ok {
		return &s3.HeadObjectOutput{}, nil
	}
	return nil, &types.NotFound{}
}

func (f *fakeS3) HeadBucket(ctx context.Context, params *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error) {
	return &s3.HeadBucketOutput{}, nil
}

func (f *fakeS3) DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	delete(f.puts, aws.ToString(params.Key))
	return &s3.DeleteObjectOutput{}, nil
}

func newTestStorage(client *fakeS3, partSize int) *S3Storage {
	return &S3Storage{client: client, bucketName: "bucket", partSize: partSize}
}

func TestUploadStreamSmallPayloadUsesPutObject(t *testing.T) {
	client := newFakeS3()
	s := newTestStorage(client, 1024)

	n, err := s.UploadStream(context.Background(), "a/b.mp4", bytes.NewReader(make([]byte, 100)), "video/mp4", nil)
	if err != nil {
		t.Fatalf("UploadStream() error = %v", err)
	}
	if n != 100 || len(client.puts["a/b.mp4"]) != 100 {
		t.Errorf("expected single 100 byte object, got n=%d stored=%d", n, len(client.puts["a/b.mp4"]))
	}
	if len(client.parts) != 0 {
		t.Errorf("expected no multipart parts, got %v", client.parts)
	}
}

func TestUploadStreamSplitsIntoParts(t *testing.T) {
	testCases := []struct {
		name     string
		size     int
		expected []int
	}{
		{name: "Exact multiple", size: 2048, expected: []int{1024, 1024}},
		{name: "Trailing part", size: 2500, expected: []int{1024, 1024, 452}},
		{name: "Single full part", size: 1024, expected: []int{1024}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			client := newFakeS3()
			s := newTestStorage(client, 1024)

			n, err := s.UploadStream(context.Background(), "k", bytes.NewReader(make([]byte, tc.size)), "video/mp4", nil)
			if err != nil {
				t.Fatalf("UploadStream() error = %v", err)
			}
			if n != int64(tc.size) {
				t.Errorf("expected %d bytes, got %d", tc.size, n)
			}
			if len(client.completed) != len(tc.expected) {
				t.Fatalf("expected %d completed parts, got %d", len(tc.expected), len(client.completed))
			}
			for i, want := range tc.expected {
				number := int32(i + 1)
				if client.parts[number] != want {
					t.Errorf("part %d = %d bytes, want %d", number, client.parts[number], want)
				}
				if aws.ToInt32(client.completed[i].PartNumber) != number {
					t.Errorf("completed part %d has number %d", i, aws.ToInt32(client.completed[i].PartNumber))
				}
			}
		})
	}
}

func TestUploadStreamAbortsOnPartFailure(t *testing.T) {
	client := newFakeS3()
	client.failPart = 2
	s := newTestStorage(client, 1024)

	if _, err := s.UploadStream(context.Background(), "k", bytes.NewReader(make([]byte, 3000)), "video/mp4", nil); err == nil {
		t.Fatal("expected error when a part fails")
	}
	if !client.aborted {
		t.Error("expected the multipart upload to be aborted")
	}
	if client.completed != nil {
		t.Error("upload must not be completed")
	}
}

func TestExists(t *testing.T) {
	client := newFakeS3()
	client.puts["present"] = []byte("x")
	s := newTestStorage(client, 1024)

	if ok, err := s.Exists(context.Background(), "present"); err != nil || !ok {
		t.Errorf("Exists(present) = %v, %v", ok, err)
	}
	if ok, err := s.Exists(context.Background(), "missing"); err != nil || ok {
		t.Errorf("Exists(missing) = %v, %v", ok, err)
	}
}
