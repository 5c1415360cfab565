// Package media supplies benchmark payloads: it lists and loads input images
// and optionally reshapes them before they are cached.
package media

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Load for an identifier the source never listed.
var ErrNotFound = errors.New("media: input not found")

// Source enumerates input identifiers and loads their bytes.
type Source interface {
	List(ctx context.Context) ([]string, error)
	Load(ctx context.Context, id string) ([]byte, error)
}

// DefaultSuffixes matches the inputs the harness was built around.
var DefaultSuffixes = []string{"jpg"}
