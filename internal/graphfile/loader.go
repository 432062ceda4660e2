package graphfile

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultCacheSize is the number of parsed specs a Loader keeps.
const DefaultCacheSize = 64

// Loader parses graph files, caching parsed specs by content digest so an
// unchanged file is not decoded twice. It is safe for concurrent use.
type Loader struct {
	cache *lru.Cache[string, *Spec]

	mu      sync.Mutex
	digests map[string]string // path -> digest of the last Load
}

// NewLoader creates a Loader holding up to size parsed specs.
func NewLoader(size int) (*Loader, error) {
	if size <= 0 {
		size = DefaultCacheSize
	}
	cache, err := lru.New[string, *Spec](size)
	if err != nil {
		return nil, fmt.Errorf("graphfile: create cache: %w", err)
	}
	return &Loader{
		cache:   cache,
		digests: make(map[string]string),
	}, nil
}

// Load reads path and returns its spec, reusing a cached parse when the
// content was seen before. The returned spec must not be modified.
func (l *Loader) Load(path string) (*Spec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("graphfile: read %s: %w", path, err)
	}
	format, err := FormatOf(path)
	if err != nil {
		return nil, &ValidationError{SourceFile: path, Err: err}
	}

	sum := digest(data)
	key := string(format) + ":" + path + ":" + sum
	spec, ok := l.cache.Get(key)
	if !ok {
		spec, err = Parse(data, format, path)
		if err != nil {
			return nil, err
		}
		spec.Digest = sum
		l.cache.Add(key, spec)
	}

	l.mu.Lock()
	l.digests[path] = sum
	l.mu.Unlock()
	return spec, nil
}

// Changed reports whether path's content differs from what the last Load of
// path returned. A path never loaded counts as changed.
func (l *Loader) Changed(path string) (bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return false, fmt.Errorf("graphfile: read %s: %w", path, err)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	prev, ok := l.digests[path]
	return !ok || prev != digest(data), nil
}

// Cached returns how many parsed specs are held.
func (l *Loader) Cached() int {
	return l.cache.Len()
}

func digest(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
