package content

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/franz/bgdb/internal/util"
)

// fakeS3 is an in-memory bucket paging two keys at a time
type fakeS3 struct {
	mu      sync.Mutex
	objects map[string][]byte
	puts    int
}

func newFakeS3() *fakeS3 {
	return &fakeS3{objects: make(map[string][]byte)}
}

func (f *fakeS3) HeadObject(ctx context.Context, in *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &s3types.NotFound{}
	}
	return &s3.HeadObjectOutput{ContentLength: aws.Int64(int64(len(data)))}, nil
}

func (f *fakeS3) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	key := aws.ToString(in.Key)
	if _, ok := f.objects[key]; ok && aws.ToString(in.IfNoneMatch) == "*" {
		return nil, &smithy.GenericAPIError{Code: "PreconditionFailed", Message: "exists"}
	}
	f.objects[key] = data
	f.puts++
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) GetObject(ctx context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &s3types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func (f *fakeS3) ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var keys []string
	for k := range f.objects {
		if strings.HasPrefix(k, aws.ToString(in.Prefix)) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	start := 0
	if in.ContinuationToken != nil {
		start, _ = strconv.Atoi(*in.ContinuationToken)
	}
	end := min(start+2, len(keys))

	out := &s3.ListObjectsV2Output{IsTruncated: aws.Bool(end < len(keys))}
	for _, k := range keys[start:end] {
		out.Contents = append(out.Contents, s3types.Object{Key: aws.String(k)})
	}
	if end < len(keys) {
		out.NextContinuationToken = aws.String(strconv.Itoa(end))
	}
	return out, nil
}

func TestS3StoreWriteOnce(t *testing.T) {
	ctx := context.Background()
	fake := newFakeS3()
	s := newS3Store(fake, "bgdb", "/backgrounds/")

	written, err := s.Write(ctx, "11202_bg.jpg", []byte("first"))
	if err != nil || !written {
		t.Fatalf("first Write = %v, %v", written, err)
	}
	written, err = s.Write(ctx, "11202_bg.jpg", []byte("second"))
	if err != nil || written {
		t.Fatalf("second Write = %v, %v; expected no-op", written, err)
	}
	if fake.puts != 1 {
		t.Errorf("expected 1 put, got %d", fake.puts)
	}
	if _, ok := fake.objects["backgrounds/11202_bg.jpg"]; !ok {
		t.Errorf("object stored under unexpected key: %v", fake.objects)
	}

	data, err := s.Read(ctx, "11202_bg.jpg")
	if err != nil || string(data) != "first" {
		t.Errorf("Read = %q, %v", data, err)
	}
	if _, err := s.Read(ctx, "1_missing.jpg"); !errors.Is(err, util.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestS3StoreConditionalPutRace(t *testing.T) {
	ctx := context.Background()
	fake := newFakeS3()
	s := newS3Store(fake, "bgdb", "")

	// Another writer lands between our HeadObject and PutObject
	fake.objects["9_bg.jpg"] = []byte("theirs")
	written, err := s.Write(ctx, "9_bg.jpg", []byte("ours"))
	if err != nil || written {
		t.Errorf("Write = %v, %v; expected silent no-op", written, err)
	}
}

func TestS3StoreListPaginates(t *testing.T) {
	ctx := context.Background()
	fake := newFakeS3()
	s := newS3Store(fake, "bgdb", "bg")

	for _, id := range []string{"1_a.jpg", "2_b.jpg", "3_c.jpg", "4_d.jpg", "5_e.jpg"} {
		s.Write(ctx, id, []byte(id))
	}
	fake.objects["other/6_f.jpg"] = []byte("outside prefix")
	fake.objects["bg/readme.txt"] = []byte("not an identity")

	ids, err := s.List(ctx)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(ids) != 5 {
		t.Errorf("expected 5 identities across pages, got %v", ids)
	}
}
