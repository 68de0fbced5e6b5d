package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"llm-router/internal/apperr"
	"llm-router/internal/chunker"
	"llm-router/internal/provider"
	"llm-router/internal/rules"
)

// Mode records how a batch was dispatched; latency accounting depends on it.
type Mode string

const (
	ModeConcurrent Mode = "concurrent"
	ModeSequential Mode = "sequential"
)

// Status is the outcome of one chunk call.
type Status string

const (
	StatusOK     Status = "ok"
	StatusFailed Status = "failed"
)

const (
	ReasonTimeout = "timeout"

	DefaultMaxInFlight = 4
	textPlaceholder    = "{text}"
)

// Metadata is the usage one chunk call consumed.
type Metadata struct {
	TokensIn  int     `json:"tokens_in"`
	TokensOut int     `json:"tokens_out"`
	LatencyMS int64   `json:"latency_ms"`
	Cost      float64 `json:"cost"`
}

// ChunkResult is the outcome of dispatching one chunk.
type ChunkResult struct {
	ChunkIndex int       `json:"chunk_index"`
	Value      string    `json:"value"`
	Metadata   Metadata  `json:"metadata"`
	Status     Status    `json:"status"`
	Reason     string    `json:"reason,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Err        error     `json:"-"`
}

// OK reports whether the chunk call succeeded.
func (r ChunkResult) OK() bool {
	return r.Status == StatusOK
}

// Batch holds results in chunk order.
type Batch struct {
	Results []ChunkResult
	Mode    Mode
}

// ClientSource resolves a provider client; provider.Registry satisfies it.
type ClientSource interface {
	Client(p rules.Provider) (provider.Client, error)
}

// Options bounds concurrent calls or forces one call at a time.
type Options struct {
	MaxInFlight int
	Sequential  bool
}

// Dispatcher sends each chunk of a batch to the rule's provider client.
type Dispatcher struct {
	clients ClientSource
	opts    Options
	log     *slog.Logger
}

// New returns a Dispatcher; MaxInFlight <= 0 means DefaultMaxInFlight.
func New(clients ClientSource, opts Options, log *slog.Logger) *Dispatcher {
	if opts.MaxInFlight <= 0 {
		opts.MaxInFlight = DefaultMaxInFlight
	}
	return &Dispatcher{clients: clients, opts: opts, log: log}
}

// Mode reports how batches are dispatched.
func (d *Dispatcher) Mode() Mode {
	if d.opts.Sequential {
		return ModeSequential
	}
	return ModeConcurrent
}

// Check reports a config error when no client serves cfg.Provider.
func (d *Dispatcher) Check(cfg rules.ModelConfig) error {
	_, err := d.client(cfg)
	return err
}

func (d *Dispatcher) client(cfg rules.ModelConfig) (provider.Client, error) {
	c, err := d.clients.Client(cfg.Provider)
	if err != nil {
		return nil, apperr.New(apperr.KindConfig, fmt.Sprintf("provider %q is not configured", cfg.Provider), err)
	}
	return c, nil
}

// Dispatch invokes the provider once per chunk. Individual failures become
// failed results; only a missing client or caller cancellation fail the batch.
func (d *Dispatcher) Dispatch(ctx context.Context, chunks []chunker.Chunk, cfg rules.ModelConfig, template string) (Batch, error) {
	client, err := d.client(cfg)
	if err != nil {
		return Batch{}, err
	}

	results := make([]ChunkResult, len(chunks))
	if d.opts.Sequential {
		for i, c := range chunks {
			if err := ctx.Err(); err != nil {
				return Batch{}, err
			}
			results[i] = d.invoke(ctx, client, c, cfg, template)
		}
	} else {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(d.opts.MaxInFlight)
		for i, c := range chunks {
			g.Go(func() error {
				if err := gctx.Err(); err != nil {
					return err
				}
				results[i] = d.invoke(gctx, client, c, cfg, template)
				return nil
			})
		}
		_ = g.Wait()
	}
	// Completed results are discarded on cancellation.
	if err := ctx.Err(); err != nil {
		return Batch{}, err
	}
	return Batch{Results: results, Mode: d.Mode()}, nil
}

func (d *Dispatcher) invoke(ctx context.Context, client provider.Client, c chunker.Chunk, cfg rules.ModelConfig, template string) ChunkResult {
	started := time.Now()
	resp, err := client.Invoke(ctx, cfg, RenderPrompt(template, c.Text))
	res := ChunkResult{
		ChunkIndex: c.Index,
		Value:      resp.Text,
		Metadata: Metadata{
			TokensIn:  resp.TokensIn,
			TokensOut: resp.TokensOut,
			LatencyMS: resp.LatencyMS,
			Cost:      resp.Cost,
		},
		Status:     StatusOK,
		StartedAt:  started,
		FinishedAt: time.Now(),
	}
	if res.Metadata.LatencyMS == 0 {
		res.Metadata.LatencyMS = res.FinishedAt.Sub(started).Milliseconds()
	}
	if err != nil {
		res.Status = StatusFailed
		res.Value = ""
		res.Reason = err.Error()
		if errors.Is(err, provider.ErrTimeout) || errors.Is(err, context.DeadlineExceeded) {
			res.Reason = ReasonTimeout
		}
		res.Err = apperr.New(apperr.KindChunkDispatch, fmt.Sprintf("chunk %d", c.Index), err)
		d.log.Warn("chunk call failed", "chunk_index", c.Index, "provider", cfg.Provider, "model", cfg.Model, "reason", res.Reason, "err", err)
	}
	return res
}

// RenderPrompt substitutes every {text} in template with text. A template
// without the placeholder gets the text appended after a blank line.
func RenderPrompt(template, text string) string {
	switch {
	case template == "":
		return text
	case strings.Contains(template, textPlaceholder):
		return strings.ReplaceAll(template, textPlaceholder, text)
	default:
		return template + "\n\n" + text
	}
}
