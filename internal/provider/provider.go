package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"llm-router/internal/rules"
)

var (
	ErrTimeout        = errors.New("provider call timed out")
	ErrEmptyResponse  = errors.New("provider returned no content")
	ErrClientNotFound = errors.New("no client configured for provider")
	ErrAPIKeyRequired = errors.New("api key required")
)

const defaultTimeout = 60 * time.Second

// Client is the single interface every LLM vendor is invoked through.
type Client interface {
	Provider() rules.Provider
	// Invoke sends one prompt. On failure the returned Response still carries
	// whatever latency and usage the call consumed.
	Invoke(ctx context.Context, cfg rules.ModelConfig, prompt string) (Response, error)
}

// Response is the outcome of one provider call. Cost is in USD.
type Response struct {
	Text      string
	TokensIn  int
	TokensOut int
	LatencyMS int64
	Cost      float64
}

// Options configures a provider client.
type Options struct {
	APIKey     string
	BaseURL    string
	Timeout    time.Duration
	HTTPClient *http.Client
}

// Registry maps provider names to clients.
type Registry struct {
	mu      sync.RWMutex
	clients map[rules.Provider]Client
}

func NewRegistry(clients ...Client) *Registry {
	r := &Registry{clients: make(map[rules.Provider]Client)}
	for _, c := range clients {
		r.Register(c)
	}
	return r
}

// Register adds or replaces the client for c.Provider().
func (r *Registry) Register(c Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clients[c.Provider()] = c
}

func (r *Registry) Client(p rules.Provider) (Client, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.clients[p]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrClientNotFound, p)
	}
	return c, nil
}

// Providers lists the configured providers in name order.
func (r *Registry) Providers() []rules.Provider {
	r.mu.RLock()
	out := make([]rules.Provider, 0, len(r.clients))
	for p := range r.clients {
		out = append(out, p)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
