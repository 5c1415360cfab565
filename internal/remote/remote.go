// Package remote serves benchmark inputs held in remote storage.
//
// OCISource pulls an OCI image and exposes the matching files of its
// flattened filesystem. S3Source lists and fetches objects from an
// S3-compatible bucket. Both implement media.Source.
package remote

import (
	"context"
	"path"
	"slices"
	"strings"
	"time"
)

const DefaultConcurrency = 4

func matchSuffix(name string, suffixes []string) bool {
	name = strings.ToLower(path.Base(name))
	return slices.ContainsFunc(suffixes, func(s string) bool {
		return strings.HasSuffix(name, strings.ToLower(s))
	})
}

func retry[T any](ctx context.Context, maxAttempts int, fn func() (T, error)) (T, error) {
	var zero T
	var lastErr error
	for i := range maxAttempts {
		result, err := fn()
		if err == nil {
			return result, nil
		}
		lastErr = err
		if i < maxAttempts-1 {
			delay := time.Duration(1<<i) * 500 * time.Millisecond // 500ms, 1s, 2s, 4s...
			select {
			case <-ctx.Done():
				return zero, ctx.Err()
			case <-time.After(delay):
			}
		}
	}
	return zero, lastErr
}
