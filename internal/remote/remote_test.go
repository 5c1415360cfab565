package remote

import (
	"archive/tar"
	"bytes"
	"context"
	"errors"
	"io"
	"log"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/google/go-containerregistry/pkg/authn"
	"github.com/google/go-containerregistry/pkg/name"
	"github.com/google/go-containerregistry/pkg/registry"
	v1 "github.com/google/go-containerregistry/pkg/v1"
	"github.com/google/go-containerregistry/pkg/v1/empty"
	"github.com/google/go-containerregistry/pkg/v1/mutate"
	"github.com/google/go-containerregistry/pkg/v1/remote"
	"github.com/google/go-containerregistry/pkg/v1/tarball"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aweris/cachebench/internal/media"
)

type tarEntry struct {
	name string
	data string
}

func tarLayer(t *testing.T, entries ...tarEntry) v1.Layer {
	t.Helper()
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	for _, e := range entries {
		require.NoError(t, tw.WriteHeader(&tar.Header{
			Name:     e.name,
			Typeflag: tar.TypeReg,
			Mode:     0644,
			Size:     int64(len(e.data)),
		}))
		_, err := tw.Write([]byte(e.data))
		require.NoError(t, err)
	}
	require.NoError(t, tw.Close())

	data := buf.Bytes()
	layer, err := tarball.LayerFromOpener(func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(data)), nil
	})
	require.NoError(t, err)
	return layer
}

// pushImage serves an in-memory registry and pushes an image made of
// layers to it, returning the image reference.
func pushImage(t *testing.T, layers ...v1.Layer) string {
	t.Helper()
	srv := httptest.NewServer(registry.New(registry.Logger(log.New(io.Discard, "", 0))))
	t.Cleanup(srv.Close)

	u, err := url.Parse(srv.URL)
	require.NoError(t, err)
	ref := u.Host + "/bench/inputs:v1"

	img, err := mutate.AppendLayers(empty.Image, layers...)
	require.NoError(t, err)
	parsed, err := name.ParseReference(ref)
	require.NoError(t, err)
	require.NoError(t, remote.Write(parsed, img))
	return ref
}

func TestOCISource_ListAndLoad(t *testing.T) {
	t.Parallel()

	ref := pushImage(t,
		tarLayer(t,
			tarEntry{"photos/a.jpg", "a-v1"},
			tarEntry{"photos/b.jpg", "b"},
			tarEntry{"photos/readme.txt", "skip"},
			tarEntry{"old/c.jpg", "c"},
			tarEntry{"gone/d.JPG", "d"},
		),
		tarLayer(t,
			tarEntry{"photos/a.jpg", "a-v2"},
			tarEntry{"photos/.wh.b.jpg", ""},
			tarEntry{"old/.wh..opq", ""},
			tarEntry{"old/e.jpg", "e"},
			tarEntry{".wh.gone", ""},
		),
	)

	src, err := NewOCISource(ref, StaticAuthenticator{})
	require.NoError(t, err)
	src.SetConcurrency(2)

	ctx := context.Background()
	ids, err := src.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"/old/e.jpg", "/photos/a.jpg"}, ids)

	data, err := src.Load(ctx, "/photos/a.jpg")
	require.NoError(t, err)
	assert.Equal(t, "a-v2", string(data))

	_, err = src.Load(ctx, "/photos/b.jpg")
	assert.ErrorIs(t, err, media.ErrNotFound)
}

func TestOCISource_Suffixes(t *testing.T) {
	t.Parallel()

	ref := pushImage(t, tarLayer(t,
		tarEntry{"x/a.png", "png"},
		tarEntry{"x/b.jpg", "jpg"},
	))
	src, err := NewOCISource(ref, nil, ".png")
	require.NoError(t, err)

	ids, err := src.List(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"/x/a.png"}, ids)
}

func TestNewOCISource(t *testing.T) {
	t.Parallel()

	src, err := NewOCISource("ghcr.io/org/images", nil)
	require.NoError(t, err)
	assert.Equal(t, "ghcr.io/org/images:latest", src.String())
	assert.Equal(t, "ghcr.io", src.Registry())

	_, err = NewOCISource("Not A Ref", nil)
	assert.Error(t, err)
}

func TestFlatten(t *testing.T) {
	t.Parallel()

	files := flatten([]layerFiles{
		{files: map[string][]byte{
			"/a/1":   []byte("1"),
			"/a/2":   []byte("2"),
			"/ab/3":  []byte("3"),
			"/b/c/4": []byte("4"),
		}},
		{
			whiteouts: []string{"/a/1", "/b"},
			files:     map[string][]byte{"/b/5": []byte("5")},
		},
	})

	assert.Equal(t, map[string][]byte{
		"/a/2":  []byte("2"),
		"/ab/3": []byte("3"),
		"/b/5":  []byte("5"),
	}, files)
}

func TestMatchSuffix(t *testing.T) {
	t.Parallel()

	assert.True(t, matchSuffix("dir/IMG_1.JPG", []string{"jpg"}))
	assert.True(t, matchSuffix("a.png", []string{"jpg", ".PNG"}))
	assert.False(t, matchSuffix("jpg/readme", []string{"jpg"}))
	assert.False(t, matchSuffix("a.jpg", nil))
}

func TestRetry(t *testing.T) {
	t.Parallel()

	calls := 0
	got, err := retry(context.Background(), 3, func() (int, error) {
		calls++
		if calls < 2 {
			return 0, errors.New("transient")
		}
		return 42, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 42, got)
	assert.Equal(t, 2, calls)

	errPermanent := errors.New("permanent")
	_, err = retry(context.Background(), 1, func() (int, error) { return 0, errPermanent })
	assert.ErrorIs(t, err, errPermanent)
}

func TestRetry_Canceled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	_, err := retry(ctx, 5, func() (struct{}, error) { return struct{}{}, errors.New("down") })
	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), 400*time.Millisecond)
}

type fakeKeychain struct {
	cfg authn.AuthConfig
}

func (k fakeKeychain) Resolve(authn.Resource) (authn.Authenticator, error) {
	return authn.FromConfig(k.cfg), nil
}

func TestAuthenticators(t *testing.T) {
	t.Parallel()

	user, pass, err := StaticAuthenticator{Username: "u", Password: "p"}.Authenticate("any")
	require.NoError(t, err)
	assert.Equal(t, "u", user)
	assert.Equal(t, "p", pass)

	kc := &KeychainAuthenticator{Keychain: fakeKeychain{cfg: authn.AuthConfig{Username: "robot", Password: "secret"}}}
	user, pass, err = kc.Authenticate("registry.example.com")
	require.NoError(t, err)
	assert.Equal(t, "robot", user)
	assert.Equal(t, "secret", pass)
}

func TestNewS3Source(t *testing.T) {
	t.Parallel()

	src, err := NewS3Source("s3://bench-inputs/photos/2024", S3Options{Endpoint: "localhost:9000", Insecure: true})
	require.NoError(t, err)
	assert.Equal(t, "bench-inputs", src.bucket)
	assert.Equal(t, "photos/2024", src.prefix)
	assert.Equal(t, "s3://bench-inputs/photos/2024", src.String())
	assert.Equal(t, media.DefaultSuffixes, src.suffixes)

	src, err = NewS3Source("s3://bucket", S3Options{Auth: StaticAuthenticator{Username: "k", Password: "s"}}, "png")
	require.NoError(t, err)
	assert.Empty(t, src.prefix)
	assert.Equal(t, []string{"png"}, src.suffixes)

	for _, bad := range []string{"http://bucket/x", "s3:///x", "::"} {
		_, err := NewS3Source(bad, S3Options{})
		assert.Error(t, err, bad)
	}
}
