// Package source reads test and settings files by reference: a local path,
// an http(s) URL or a blob in an Azure storage container.
package source

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrNotFound is returned when a reference does not resolve to any file.
var ErrNotFound = errors.New("file not found")

// Reader returns the content behind a reference.
type Reader interface {
	Read(ctx context.Context, ref string) ([]byte, error)
}

// IsURL reports whether ref is an http or https URL.
func IsURL(ref string) bool {
	lower := strings.ToLower(ref)
	return strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://")
}

// Resolver picks a reader per reference: URLs go to HTTP, everything else to
// Blob when a container is configured, otherwise to Local.
type Resolver struct {
	Local Reader
	HTTP  Reader
	Blob  Reader // nil when no container is configured
}

// NewResolver creates a resolver for local files under baseDir and URLs.
func NewResolver(baseDir string) *Resolver {
	return &Resolver{
		Local: &Local{BaseDir: baseDir},
		HTTP:  NewHTTP(nil),
	}
}

// Read implements Reader.
func (r *Resolver) Read(ctx context.Context, ref string) ([]byte, error) {
	if IsURL(ref) {
		return r.HTTP.Read(ctx, ref)
	}
	if r.Blob != nil {
		return r.Blob.Read(ctx, ref)
	}
	return r.Local.Read(ctx, ref)
}

// Local reads files from disk. A reference that is not an existing file is
// retried as "<ref>.json", lowercased, and under "<BaseDir>/Tests/".
type Local struct {
	BaseDir string
}

// Candidates returns the paths tried for ref, in order.
func (l *Local) Candidates(ref string) []string {
	name := strings.TrimSuffix(ref, ".json")
	dir, base := filepath.Split(name)
	lower := dir + strings.ToLower(base)

	candidates := []string{ref, name + ".json"}
	if lower != name {
		candidates = append(candidates, lower+".json")
	}
	if l.BaseDir != "" {
		candidates = append(candidates,
			filepath.Join(l.BaseDir, "Tests", name+".json"),
			filepath.Join(l.BaseDir, "Tests", lower+".json"))
	}
	return candidates
}

// Read implements Reader.
func (l *Local) Read(_ context.Context, ref string) ([]byte, error) {
	if ref == "" {
		return nil, fmt.Errorf("empty file reference: %w", ErrNotFound)
	}
	for _, path := range l.Candidates(ref) {
		info, err := os.Stat(path)
		if err != nil || info.IsDir() {
			continue
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
		return data, nil
	}
	return nil, fmt.Errorf("unable to load file %s: %w", ref, ErrNotFound)
}
