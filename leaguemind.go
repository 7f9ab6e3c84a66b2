// Package leaguemind wires the service together: configuration, the model
// backend, persistence, the agent pool, the orchestrator, and the WebSocket
// gateway, plus the observability surface around them.
package leaguemind

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/leaguemind-ai/leaguemind/internal/agent"
	"github.com/leaguemind-ai/leaguemind/internal/gateway"
	"github.com/leaguemind-ai/leaguemind/internal/llm"
	"github.com/leaguemind-ai/leaguemind/internal/memstore"
	"github.com/leaguemind-ai/leaguemind/internal/observability"
	"github.com/leaguemind-ai/leaguemind/internal/orchestrator"
	"github.com/leaguemind-ai/leaguemind/internal/persona"
	"github.com/leaguemind-ai/leaguemind/internal/pool"
	"github.com/leaguemind-ai/leaguemind/internal/ratelimit"
	"github.com/leaguemind-ai/leaguemind/internal/store"
	"github.com/leaguemind-ai/leaguemind/pkg/config"
	obs "github.com/leaguemind-ai/leaguemind/pkg/observability"
)

// Run starts the service with the given config file and blocks until ctx is
// cancelled, then shuts everything down in dependency order.
func Run(ctx context.Context, cfgPath string) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	if err := observability.InitFromEnv(); err != nil {
		log.Printf("[Leaguemind] tracing disabled: %v", err)
	}
	obs.InitMetrics()

	// Model backend with the outbound throttle in front.
	var invoker llm.Invoker = llm.NewThrottled(
		llm.NewOpenAIClient(cfg.OpenAIKey, cfg.Model),
		cfg.LLM.RequestsPerSecond, cfg.LLM.Burst,
	)

	memory := memstore.NewLocal(
		memstore.NewOpenAIEmbedder(cfg.OpenAIKey, cfg.EmbeddingModel), 0)

	// Persistence: Redis when configured, in-process otherwise.
	var (
		conversations agent.ConversationStore
		analyses      orchestrator.AnalysisStore
		records       gateway.RecordStore
		redisStore    *store.Redis
	)
	if cfg.Redis.Addr != "" {
		redisStore, err = store.NewRedis(store.RedisConfig{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			Prefix:   cfg.Redis.Prefix,
			TTL:      cfg.Redis.TTL.Std(),
		})
		if err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
		defer redisStore.Close()
		conversations, analyses, records = redisStore, redisStore, redisStore
		log.Printf("[Leaguemind] using redis store at %s", cfg.Redis.Addr)
	} else {
		mem := store.NewMemory()
		conversations, analyses, records = mem, mem, mem
		log.Printf("[Leaguemind] no redis configured, using in-process store")
	}

	agents := pool.New(func(kind persona.Kind, scope string) (*agent.Agent, error) {
		return agent.New(kind, scope, agent.Deps{
			Invoker:       invoker,
			Memory:        memory,
			Conversations: conversations,
		})
	})

	orch := orchestrator.New(agents, invoker, orchestrator.WithStore(analyses))

	hub := gateway.NewWSHub()
	gwOpts := []gateway.Option{
		gateway.WithRecords(records),
		gateway.WithOrchestrator(orch),
		gateway.WithLimits(
			ratelimit.Config{MaxRequests: cfg.Gateway.MessageLimit, Window: cfg.Gateway.MessageWindow.Std()},
			ratelimit.Config{MaxRequests: cfg.Gateway.SummonLimit, Window: cfg.Gateway.SummonWindow.Std()},
		),
		gateway.WithIdleThresholds(cfg.Gateway.IdleAfter.Std(), cfg.Gateway.ReapAfter.Std()),
	}
	if cfg.Gateway.Streaming {
		gwOpts = append(gwOpts, gateway.WithStreaming())
	}
	gw := gateway.New(agents, hub, gwOpts...)
	hub.SetGateway(gw)
	defer gw.Close()

	janitor, err := gateway.NewJanitor(gateway.JanitorConfig{}, gw, agents)
	if err != nil {
		return fmt.Errorf("schedule janitor: %w", err)
	}
	janitor.Start()
	defer janitor.Stop()

	// Warm the global scope so the first message does not pay construction
	// latency.
	if failures := agents.Preload(ctx, persona.ScopeGlobal, persona.AllKinds()); len(failures) > 0 {
		for kind, err := range failures {
			log.Printf("[Leaguemind] preload %s: %v", kind, err)
		}
	}

	checker := obs.NewHealthChecker()
	checker.Register("pool", func(context.Context) error {
		if agents.Size() == 0 {
			return fmt.Errorf("no agents pooled")
		}
		return nil
	})
	if redisStore != nil {
		checker.Register("redis", redisStore.Ping)
	}

	obsServer := obs.NewServer(cfg.Observability.MetricsAddr, checker)
	go func() {
		log.Printf("[Leaguemind] observability server on %s", cfg.Observability.MetricsAddr)
		if err := obsServer.Start(); err != nil && err != http.ErrServerClosed {
			log.Printf("[Leaguemind] observability server: %v", err)
		}
	}()

	wsServer := &http.Server{Addr: cfg.Gateway.ListenAddr, Handler: wsMux(hub)}
	errc := make(chan error, 1)
	go func() {
		log.Printf("[Leaguemind] gateway listening on %s", cfg.Gateway.ListenAddr)
		if err := wsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errc <- err
		}
	}()

	select {
	case err := <-errc:
		return fmt.Errorf("gateway server: %w", err)
	case <-ctx.Done():
	}

	log.Println("[Leaguemind] shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := wsServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("[Leaguemind] gateway shutdown: %v", err)
	}
	if err := obsServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("[Leaguemind] observability shutdown: %v", err)
	}
	if err := observability.Shutdown(shutdownCtx); err != nil {
		log.Printf("[Leaguemind] tracing shutdown: %v", err)
	}
	return nil
}

func wsMux(hub *gateway.WSHub) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/ws", hub)
	return mux
}
