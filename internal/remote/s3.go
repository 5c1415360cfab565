package remote

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"slices"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/aweris/cachebench/internal/media"
)

const DefaultS3Endpoint = "s3.amazonaws.com"

// S3Options locates the object store behind an s3:// source.
type S3Options struct {
	Endpoint string // host[:port], DefaultS3Endpoint when empty
	Insecure bool   // plain HTTP
	Region   string
	Auth     Authenticator
}

// S3Source serves the objects under a bucket prefix whose keys end in one of
// its suffixes. Identifiers are object keys.
type S3Source struct {
	client   *minio.Client
	bucket   string
	prefix   string
	suffixes []string
}

// NewS3Source parses rawURL of the form s3://bucket/prefix.
func NewS3Source(rawURL string, opts S3Options, suffixes ...string) (*S3Source, error) {
	u, err := url.Parse(rawURL)
	if err != nil || u.Scheme != "s3" || u.Host == "" {
		return nil, fmt.Errorf("invalid s3 url %q", rawURL)
	}
	if opts.Endpoint == "" {
		opts.Endpoint = DefaultS3Endpoint
	}
	if len(suffixes) == 0 {
		suffixes = media.DefaultSuffixes
	}

	creds := credentials.NewChainCredentials([]credentials.Provider{
		&credentials.EnvAWS{},
		&credentials.EnvMinio{},
	})
	if opts.Auth != nil {
		username, password, err := opts.Auth.Authenticate(opts.Endpoint)
		if err == nil && username != "" {
			creds = credentials.NewStaticV4(username, password, "")
		}
	}

	client, err := minio.New(opts.Endpoint, &minio.Options{
		Creds:  creds,
		Secure: !opts.Insecure,
		Region: opts.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("create s3 client: %w", err)
	}
	return &S3Source{
		client:   client,
		bucket:   u.Host,
		prefix:   strings.TrimPrefix(u.Path, "/"),
		suffixes: suffixes,
	}, nil
}

func (s *S3Source) String() string { return "s3://" + s.bucket + "/" + s.prefix }

func (s *S3Source) List(ctx context.Context) ([]string, error) {
	var ids []string
	for obj := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{
		Prefix:    s.prefix,
		Recursive: true,
	}) {
		if obj.Err != nil {
			return nil, fmt.Errorf("list %s: %w", s, obj.Err)
		}
		if matchSuffix(obj.Key, s.suffixes) {
			ids = append(ids, obj.Key)
		}
	}
	slices.Sort(ids)
	return ids, nil
}

func (s *S3Source) Load(ctx context.Context, id string) ([]byte, error) {
	data, err := retry(ctx, 3, func() ([]byte, error) {
		obj, err := s.client.GetObject(ctx, s.bucket, id, minio.GetObjectOptions{})
		if err != nil {
			return nil, err
		}
		defer obj.Close()
		return io.ReadAll(obj)
	})
	if err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return nil, fmt.Errorf("%w: %s in %s", media.ErrNotFound, id, s)
		}
		return nil, fmt.Errorf("get %s: %w", id, err)
	}
	return data, nil
}
