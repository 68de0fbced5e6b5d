package main

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"llm-router/internal/app"
	"llm-router/internal/cache"
	"llm-router/internal/httputil"
	"llm-router/internal/queue"
	"llm-router/internal/router"
	"llm-router/internal/rules"
	"llm-router/internal/store"
)

type routeRequest struct {
	StoreLabel    string `json:"store_label" validate:"required"`
	Query         string `json:"query"`
	Rule          string `json:"rule" validate:"required"`
	IncludeChunks bool   `json:"include_chunks"`
}

func main() {
	deps, err := app.Build("gateway")
	if err != nil {
		slog.Default().Error("failed to build dependencies", "err", err)
		os.Exit(1)
	}
	defer deps.Close()

	addr := fmt.Sprintf(":%d", deps.Config.Port)
	deps.Log.Info("gateway listening", "addr", addr)
	if err := http.ListenAndServe(addr, newServer(deps)); err != nil {
		deps.Log.Error("server failed", "err", err)
	}
}

func newServer(deps app.Deps) http.Handler {
	r := httputil.NewRouter(deps.Log, deps.Config.RequestTimeout)

	r.Post("/api/route", routeHandler(deps))
	r.Post("/api/route/async", routeAsyncHandler(deps))
	r.Get("/api/runs/{id}", runHandler(deps))

	r.Get("/api/rules", listRulesHandler(deps))
	r.Post("/api/rules", createRuleHandler(deps))
	r.Get("/api/rules/{name}", getRuleHandler(deps))
	r.Delete("/api/rules/{name}", deleteRuleHandler(deps))

	r.Get("/api/sources", func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteJSON(w, http.StatusOK, map[string]any{"sources": deps.Sources.Labels()})
	})
	r.Get("/api/providers", func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteJSON(w, http.StatusOK, map[string]any{"providers": deps.Providers.Providers()})
	})
	r.Get("/healthz", httputil.HealthHandler(deps.Log))

	return r
}

// decode reports whether the body was read and validated; on failure the
// response has already been written.
func decode(deps app.Deps, w http.ResponseWriter, r *http.Request, dst any) bool {
	err := httputil.DecodeJSON(w, r, deps.Config.MaxBodySize, dst)
	if err == nil {
		return true
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		httputil.ValidationError(deps.Log, w, err)
		return false
	}
	httputil.Fail(deps.Log, w, "invalid payload", err, http.StatusBadRequest)
	return false
}

func routeHandler(deps app.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req routeRequest
		if !decode(deps, w, r, &req) {
			return
		}
		ctx := r.Context()
		log := deps.Log.With("rule", req.Rule, "store_label", req.StoreLabel)

		rule, err := deps.Rules.Resolve(req.Rule)
		if err != nil {
			httputil.FailRouting(log, w, err)
			return
		}

		// Responses carrying per-chunk detail are never cached.
		useCache := !req.IncludeChunks
		key := cache.Key(rule, req.StoreLabel, req.Query)
		if useCache {
			if cached, err := deps.Cache.GetResponse(ctx, key); err == nil && cached != nil {
				log.Info("cache hit")
				w.Header().Set("X-Cache", "hit")
				httputil.WriteJSON(w, http.StatusOK, cached)
				return
			} else if err != nil {
				log.Warn("cache read failed", "err", err)
			}
		}

		var opts []router.RouteOption
		if req.IncludeChunks {
			opts = append(opts, router.WithChunks())
		}
		// Route with the rule resolved above so the cache key and the result agree.
		rt := deps.Router.WithRules(router.Snapshot{rule.Name: rule})
		resp, err := rt.Route(ctx, req.StoreLabel, req.Query, req.Rule, opts...)
		if err != nil {
			httputil.FailRouting(log, w, err)
			return
		}

		if useCache {
			if err := deps.Cache.SetResponse(ctx, key, resp, deps.Config.CacheTTL); err != nil {
				log.Warn("failed to cache response", "err", err)
			}
			w.Header().Set("X-Cache", "miss")
		}
		httputil.WriteJSON(w, http.StatusOK, resp)
	}
}

func routeAsyncHandler(deps app.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if deps.Store == nil || deps.Queue == nil {
			httputil.Fail(deps.Log, w, "async routing requires STORE_PROVIDER and QUEUE_PROVIDER", nil, http.StatusServiceUnavailable)
			return
		}
		var req routeRequest
		if !decode(deps, w, r, &req) {
			return
		}
		ctx := r.Context()

		// Unknown rules are rejected before a run is recorded; the resolved
		// rule travels with the task.
		rule, err := deps.Rules.Resolve(req.Rule)
		if err != nil {
			httputil.FailRouting(deps.Log, w, err)
			return
		}

		run, err := deps.Store.CreateRun(ctx, req.Rule, req.StoreLabel, req.Query)
		if err != nil {
			httputil.Fail(deps.Log, w, "failed to persist run", err, http.StatusInternalServerError)
			return
		}
		log := deps.Log.With("run_id", run.ID)

		task, err := queue.NewRouteTask(queue.RoutePayload{
			RunID:      run.ID,
			StoreLabel: req.StoreLabel,
			Query:      req.Query,
			Rule:       req.Rule,
			RuleConfig: &rule,
		})
		if err == nil {
			err = queue.EnqueueWithRetry(ctx, deps.Queue, task, 3, 200*time.Millisecond)
		}
		if err != nil {
			if upErr := deps.Store.FailRun(ctx, run.ID, "enqueue failed: "+err.Error()); upErr != nil {
				log.Error("failed to mark run failed", "err", upErr)
			}
			httputil.Fail(log, w, "failed to enqueue run; please retry", err, http.StatusInternalServerError)
			return
		}

		log.Info("run queued", "rule", req.Rule)
		httputil.WriteJSON(w, http.StatusAccepted, map[string]any{
			"run_id": run.ID.String(),
			"status": run.Status,
		})
	}
}

func runHandler(deps app.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if deps.Store == nil {
			httputil.Fail(deps.Log, w, "run store not configured", nil, http.StatusServiceUnavailable)
			return
		}
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			httputil.Fail(deps.Log, w, "invalid run id", err, http.StatusBadRequest)
			return
		}
		run, err := deps.Store.GetRun(r.Context(), id)
		if errors.Is(err, store.ErrRunNotFound) {
			httputil.Fail(deps.Log, w, "run not found", err, http.StatusNotFound)
			return
		}
		if err != nil {
			httputil.Fail(deps.Log, w, "failed to load run", err, http.StatusInternalServerError)
			return
		}
		httputil.WriteJSON(w, http.StatusOK, run)
	}
}

func listRulesHandler(deps app.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteJSON(w, http.StatusOK, map[string]any{"rules": deps.Rules.List()})
	}
}

func createRuleHandler(deps app.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rule := rules.Rule{Chunking: rules.DefaultChunking()}
		if !decode(deps, w, r, &rule) {
			return
		}
		err := deps.Rules.Register(rule)
		switch {
		case errors.Is(err, rules.ErrRuleExists):
			httputil.Fail(deps.Log, w, fmt.Sprintf("rule %q already exists", rule.Name), err, http.StatusConflict)
			return
		case err != nil:
			httputil.FailRouting(deps.Log, w, err)
			return
		}
		deps.Log.Info("rule registered", "rule", rule.Name, "provider", rule.Model.Provider)
		httputil.WriteJSON(w, http.StatusCreated, rule)
	}
}

func getRuleHandler(deps app.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rule, err := deps.Rules.Resolve(chi.URLParam(r, "name"))
		if err != nil {
			httputil.FailRouting(deps.Log, w, err)
			return
		}
		httputil.WriteJSON(w, http.StatusOK, rule)
	}
}

func deleteRuleHandler(deps app.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := chi.URLParam(r, "name")
		if err := deps.Rules.Remove(name); err != nil {
			httputil.FailRouting(deps.Log, w, err)
			return
		}
		if err := deps.Cache.InvalidateRule(r.Context(), name); err != nil {
			deps.Log.Warn("failed to invalidate cached responses", "rule", name, "err", err)
		}
		deps.Log.Info("rule removed", "rule", name)
		w.WriteHeader(http.StatusNoContent)
	}
}
