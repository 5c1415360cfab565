package media

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

// DirSource serves the files under a directory tree whose names end in one
// of its suffixes. Identifiers are absolute file paths.
type DirSource struct {
	root     string
	suffixes []string
}

// NewDirSource returns a source rooted at root. With no suffixes,
// DefaultSuffixes apply. Matching is case-insensitive.
func NewDirSource(root string, suffixes ...string) (*DirSource, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", root, err)
	}
	if len(suffixes) == 0 {
		suffixes = DefaultSuffixes
	}
	lower := make([]string, len(suffixes))
	for i, s := range suffixes {
		lower[i] = strings.ToLower(s)
	}
	return &DirSource{root: abs, suffixes: lower}, nil
}

func (s *DirSource) Root() string { return s.root }

// List walks the tree in lexical order.
func (s *DirSource) List(ctx context.Context) ([]string, error) {
	var ids []string
	err := filepath.WalkDir(s.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.Type().IsRegular() && s.match(d.Name()) {
			ids = append(ids, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", s.root, err)
	}
	return ids, nil
}

func (s *DirSource) match(name string) bool {
	name = strings.ToLower(name)
	return slices.ContainsFunc(s.suffixes, func(suffix string) bool {
		return strings.HasSuffix(name, suffix)
	})
}

func (s *DirSource) Load(ctx context.Context, id string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(id)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return data, err
}
