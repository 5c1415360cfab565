package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/aweris/cachebench"
	"github.com/aweris/cachebench/internal/media"
	"github.com/aweris/cachebench/internal/observe"
	"github.com/aweris/cachebench/internal/remote"
	"github.com/aweris/cachebench/internal/store"
)

// openSource resolves a source argument: oci://<image ref>, s3://<bucket>/<prefix>
// or a local directory.
func openSource(arg string) (media.Source, error) {
	suffixes := viper.GetStringSlice("suffix")
	auth := registryAuth()

	switch {
	case strings.HasPrefix(arg, "oci://"):
		return remote.NewOCISource(strings.TrimPrefix(arg, "oci://"), auth, suffixes...)
	case strings.HasPrefix(arg, "s3://"):
		return remote.NewS3Source(arg, remote.S3Options{
			Endpoint: viper.GetString("s3_endpoint"),
			Insecure: viper.GetBool("s3_insecure"),
			Region:   viper.GetString("s3_region"),
			Auth:     auth,
		}, suffixes...)
	default:
		info, err := os.Stat(arg)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			return nil, fmt.Errorf("%s is not a directory", arg)
		}
		return media.NewDirSource(arg, suffixes...)
	}
}

// registryAuth prefers CACHEBENCH_REGISTRY_USERNAME/PASSWORD over the docker
// keychain.
func registryAuth() remote.Authenticator {
	if user := viper.GetString("registry_username"); user != "" {
		return remote.StaticAuthenticator{Username: user, Password: viper.GetString("registry_password")}
	}
	return remote.NewDefaultAuthenticator()
}

// session is an open harness fed from one source.
type session struct {
	harness  *cachebench.Harness
	source   media.Source
	payloads *store.Store
	logger   *cachebench.Logger
	meters   *sdkmetric.MeterProvider
}

func openSession(ctx context.Context, arg string, tc *media.Transcoder, extra ...cachebench.Option) (*session, error) {
	logger, err := newLogger()
	if err != nil {
		return nil, err
	}
	src, err := openSource(arg)
	if err != nil {
		return nil, err
	}
	if tc != nil {
		src = media.Transcoding(src, *tc)
	}

	reader, err := observe.NewMetricsReader(ctx, viper.GetString("metrics"))
	if err != nil {
		return nil, err
	}
	meters, recorder, err := observe.Setup(reader)
	if err != nil {
		return nil, err
	}

	payloads := store.New(src.Load, viper.GetInt64("payload_cache"))
	opts := []cachebench.Option{
		cachebench.WithMaxEntries(viper.GetInt("max_entries")),
		cachebench.WithMaxBytes(viper.GetInt64("max_bytes")),
		cachebench.WithVersion(viper.GetInt("schema_version")),
		cachebench.WithPool(viper.GetInt("pool_size"), viper.GetInt("buffer_size")),
		cachebench.WithCompression(viper.GetString("compression"), viper.GetInt("compression_level")),
		cachebench.WithLogger(logger),
		cachebench.WithRecorder(recorder),
	}
	h, err := cachebench.Open(getCacheDir(), payloads.Load, append(opts, extra...)...)
	if err != nil {
		return nil, errors.Join(err, meters.Shutdown(ctx))
	}
	return &session{harness: h, source: src, payloads: payloads, logger: logger, meters: meters}, nil
}

// inputs lists the source and points the engine at the result.
func (s *session) inputs(ctx context.Context) ([]string, error) {
	ids, err := s.source.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list inputs: %w", err)
	}
	if len(ids) == 0 {
		return nil, cachebench.ErrNoInputs
	}
	s.harness.Engine().SetInputs(ids)
	s.logger.InfoContext(ctx, "inputs listed", "count", len(ids))
	return ids, nil
}

func (s *session) Close() error {
	return errors.Join(s.harness.Close(), s.meters.Shutdown(context.Background()))
}
