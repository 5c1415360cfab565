package remote

import (
	"archive/tar"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"slices"
	"strings"
	"sync"

	"github.com/google/go-containerregistry/pkg/authn"
	"github.com/google/go-containerregistry/pkg/name"
	v1 "github.com/google/go-containerregistry/pkg/v1"
	"github.com/google/go-containerregistry/pkg/v1/remote"
	"github.com/sourcegraph/conc/pool"

	"github.com/aweris/cachebench/internal/media"
)

const (
	whiteoutPrefix = ".wh."
	opaqueWhiteout = ".wh..opq"
)

// OCISource serves files from the flattened filesystem of an OCI image.
// The image is pulled on first use and held in memory; identifiers are the
// absolute paths of the files inside the image.
type OCISource struct {
	ref         name.Reference
	auth        Authenticator
	suffixes    []string
	concurrency int

	mu    sync.Mutex
	files map[string][]byte
	ids   []string
}

// NewOCISource creates a source from a standard Docker ref (e.g.,
// "ghcr.io/org/images:v1"). With no suffixes, media.DefaultSuffixes apply.
func NewOCISource(imageRef string, auth Authenticator, suffixes ...string) (*OCISource, error) {
	ref, err := name.ParseReference(imageRef, name.WithDefaultTag("latest"))
	if err != nil {
		return nil, fmt.Errorf("invalid image ref %q: %w", imageRef, err)
	}
	if len(suffixes) == 0 {
		suffixes = media.DefaultSuffixes
	}
	return &OCISource{ref: ref, auth: auth, suffixes: suffixes, concurrency: DefaultConcurrency}, nil
}

// SetConcurrency sets the number of layers read in parallel.
func (s *OCISource) SetConcurrency(n int) {
	if n > 0 {
		s.concurrency = n
	}
}

func (s *OCISource) String() string   { return s.ref.String() }
func (s *OCISource) Registry() string { return s.ref.Context().RegistryStr() }

func (s *OCISource) List(ctx context.Context) ([]string, error) {
	if err := s.pull(ctx); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.ids), nil
}

func (s *OCISource) Load(ctx context.Context, id string) ([]byte, error) {
	if err := s.pull(ctx); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.files[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s in %s", media.ErrNotFound, id, s.ref)
	}
	return data, nil
}

// layerFiles is what one layer contributes to the flattened filesystem.
type layerFiles struct {
	files     map[string][]byte
	whiteouts []string
}

func (s *OCISource) pull(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.files != nil {
		return nil
	}

	img, err := retry(ctx, 3, func() (v1.Image, error) {
		return remote.Image(s.ref, s.remoteOptions(ctx)...)
	})
	if err != nil {
		return fmt.Errorf("fetch image: %w", err)
	}
	layers, err := img.Layers()
	if err != nil {
		return fmt.Errorf("get layers: %w", err)
	}

	fmt.Fprintf(os.Stderr, "[pull] reading %d layers of %s\n", len(layers), s.ref)

	results := make([]layerFiles, len(layers))
	p := pool.New().WithMaxGoroutines(s.concurrency).WithContext(ctx).WithCancelOnError()
	for i, layer := range layers {
		p.Go(func(ctx context.Context) error {
			lf, err := s.readLayer(ctx, layer)
			if err != nil {
				return fmt.Errorf("layer %d: %w", i, err)
			}
			results[i] = lf
			return nil
		})
	}
	if err := p.Wait(); err != nil {
		return err
	}

	files := flatten(results)
	ids := make([]string, 0, len(files))
	for id := range files {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	s.files, s.ids = files, ids

	fmt.Fprintf(os.Stderr, "[pull] done, %d inputs\n", len(ids))
	return nil
}

func (s *OCISource) readLayer(ctx context.Context, layer v1.Layer) (lf layerFiles, err error) {
	rc, err := layer.Uncompressed()
	if err != nil {
		return lf, fmt.Errorf("read layer: %w", err)
	}
	defer func() {
		if cerr := rc.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close layer: %w", cerr)
		}
	}()

	lf.files = make(map[string][]byte)
	tr := tar.NewReader(rc)
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return lf, nil
		}
		if err != nil {
			return lf, fmt.Errorf("read tar: %w", err)
		}
		if err := ctx.Err(); err != nil {
			return lf, err
		}

		p := path.Clean("/" + hdr.Name)
		dir, base := path.Split(p)
		if base == opaqueWhiteout {
			lf.whiteouts = append(lf.whiteouts, path.Clean(dir))
			continue
		}
		if hidden, ok := strings.CutPrefix(base, whiteoutPrefix); ok {
			lf.whiteouts = append(lf.whiteouts, path.Join(dir, hidden))
			continue
		}
		if hdr.Typeflag != tar.TypeReg || !matchSuffix(p, s.suffixes) {
			continue
		}
		data, err := io.ReadAll(tr)
		if err != nil {
			return lf, fmt.Errorf("read %s: %w", p, err)
		}
		lf.files[p] = data
	}
}

// flatten applies layers bottom to top. A whiteout hides the path and
// everything below it in lower layers.
func flatten(layers []layerFiles) map[string][]byte {
	files := make(map[string][]byte)
	for _, lf := range layers {
		for _, w := range lf.whiteouts {
			for p := range files {
				if p == w || strings.HasPrefix(p, w+"/") {
					delete(files, p)
				}
			}
		}
		for p, data := range lf.files {
			files[p] = data
		}
	}
	return files
}

func (s *OCISource) remoteOptions(ctx context.Context) []remote.Option {
	opts := []remote.Option{remote.WithContext(ctx)}
	if s.auth != nil {
		username, password, err := s.auth.Authenticate(s.Registry())
		if err == nil && username != "" {
			return append(opts, remote.WithAuth(&authn.Basic{
				Username: username,
				Password: password,
			}))
		}
	}
	return append(opts, remote.WithAuthFromKeychain(authn.DefaultKeychain))
}
