package datasource

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"

	"llm-router/internal/apperr"
)

// Kind names a connector type in the routing file.
type Kind string

const (
	KindContent  Kind = "content"
	KindFile     Kind = "file"
	KindPostgres Kind = "postgres"
	KindRedis    Kind = "redis"
)

// contentFields are probed in order when a record has no obvious text value.
var contentFields = []string{"content", "text", "body", "message"}

// recordSeparator joins multiple records into one document.
const recordSeparator = "\n\n"

var ErrNotConnected = errors.New("store label is not connected")

// Source fetches raw content. The query syntax depends on the source type.
type Source interface {
	Fetch(ctx context.Context, query string) (string, error)
}

// Registry maps store labels to connected sources.
type Registry struct {
	mu      sync.RWMutex
	sources map[string]Source
}

func NewRegistry() *Registry {
	return &Registry{sources: make(map[string]Source)}
}

// Connect binds label to src, closing any source previously bound to it.
func (r *Registry) Connect(label string, src Source) error {
	if label == "" {
		return errors.New("store label required")
	}
	if src == nil {
		return fmt.Errorf("nil source for %q", label)
	}
	r.mu.Lock()
	old := r.sources[label]
	r.sources[label] = src
	r.mu.Unlock()
	if old != nil && old != src {
		return closeSource(old)
	}
	return nil
}

// Disconnect unbinds label and closes its source when it holds resources.
func (r *Registry) Disconnect(label string) error {
	r.mu.Lock()
	src, ok := r.sources[label]
	delete(r.sources, label)
	r.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotConnected, label)
	}
	return closeSource(src)
}

// Fetch reads content from the source bound to label. Every failure is a data_source error.
func (r *Registry) Fetch(ctx context.Context, label, query string) (string, error) {
	r.mu.RLock()
	src, ok := r.sources[label]
	r.mu.RUnlock()
	if !ok {
		return "", apperr.DataSource(label, ErrNotConnected)
	}
	content, err := src.Fetch(ctx, query)
	if err != nil {
		return "", apperr.DataSource(label, err)
	}
	return content, nil
}

func (r *Registry) Labels() []string {
	r.mu.RLock()
	out := make([]string, 0, len(r.sources))
	for label := range r.sources {
		out = append(out, label)
	}
	r.mu.RUnlock()
	sort.Strings(out)
	return out
}

// Close disconnects every source.
func (r *Registry) Close() error {
	r.mu.Lock()
	sources := r.sources
	r.sources = make(map[string]Source)
	r.mu.Unlock()
	var errs []error
	for _, src := range sources {
		if err := closeSource(src); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func closeSource(src Source) error {
	if c, ok := src.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// ContentSource treats the query itself as the content.
type ContentSource struct{}

func (ContentSource) Fetch(_ context.Context, query string) (string, error) {
	return query, nil
}
