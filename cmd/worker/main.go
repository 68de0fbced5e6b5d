package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"llm-router/internal/app"
	"llm-router/internal/cache"
	"llm-router/internal/httputil"
	"llm-router/internal/queue"
	"llm-router/internal/router"
	"llm-router/internal/store"
)

func main() {
	deps, err := app.Build("worker")
	if err != nil {
		slog.Default().Error("failed to build dependencies", "err", err)
		os.Exit(1)
	}
	defer deps.Close()
	if deps.Store == nil || deps.Queue == nil {
		deps.Log.Error("worker requires STORE_PROVIDER and QUEUE_PROVIDER")
		os.Exit(1)
	}
	deps.Log.Info("route worker starting")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return deps.Queue.Worker(ctx, queue.TaskTypeRoute, func(ctx context.Context, task queue.Task) error {
			payload, err := queue.DecodeRoutePayload(task)
			if err != nil {
				return err
			}
			return handleRoute(ctx, deps, payload)
		})
	})

	// Run health check server
	g.Go(func() error {
		return httputil.ServeHealth(deps.Log, deps.Config.HealthPort, "worker")
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		deps.Log.Error("worker stopped", "err", err)
	}
}

// handleRoute runs one queued request and records its outcome. Routing
// failures complete the run as failed; only store errors and cancellation
// are returned so the queue redelivers the task.
func handleRoute(ctx context.Context, deps app.Deps, p queue.RoutePayload) error {
	log := deps.Log.With("run_id", p.RunID, "rule", p.Rule)

	if err := deps.Store.UpdateRunStatus(ctx, p.RunID, store.StatusRunning); err != nil {
		return err
	}

	// Prefer the rule the gateway resolved; this process's registry only
	// holds rules from the routing file.
	rt := deps.Router
	if p.RuleConfig != nil {
		rt = rt.WithRules(router.Snapshot{p.Rule: *p.RuleConfig})
	}
	resp, err := rt.Route(ctx, p.StoreLabel, p.Query, p.Rule, router.WithChunks())
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		log.Warn("run failed", "err", err)
		return deps.Store.FailRun(ctx, p.RunID, err.Error())
	}

	if err := deps.Store.CompleteRun(ctx, p.RunID, resp); err != nil {
		return err
	}
	log.Info("run completed",
		"chunks_total", resp.Metadata.ChunksTotal,
		"chunks_failed", resp.Metadata.ChunksFailed,
		"total_cost", resp.Metadata.TotalCost,
	)

	// Entries are keyed by the full rule, so one written for a rule the
	// gateway has since removed or replaced is never read.
	if deps.Cache != nil && p.RuleConfig != nil {
		cached := *resp
		cached.Chunks = nil
		key := cache.Key(*p.RuleConfig, p.StoreLabel, p.Query)
		if err := deps.Cache.SetResponse(ctx, key, &cached, deps.Config.CacheTTL); err != nil {
			log.Warn("failed to cache response", "err", err)
		}
	}
	return nil
}
