package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/becomeliminal/nim-autopilot/actions"
	"github.com/becomeliminal/nim-autopilot/chain"
	"github.com/becomeliminal/nim-autopilot/config"
	"github.com/becomeliminal/nim-autopilot/core"
	"github.com/becomeliminal/nim-autopilot/credit"
	"github.com/becomeliminal/nim-autopilot/cycle"
	"github.com/becomeliminal/nim-autopilot/engine"
	"github.com/becomeliminal/nim-autopilot/market"
	"github.com/becomeliminal/nim-autopilot/memory"
	"github.com/becomeliminal/nim-autopilot/memory/embedder/hash"
	"github.com/becomeliminal/nim-autopilot/memory/store/chromem"
	"github.com/becomeliminal/nim-autopilot/metrics"
	"github.com/becomeliminal/nim-autopilot/payment"
	"github.com/becomeliminal/nim-autopilot/publisher"
	"github.com/becomeliminal/nim-autopilot/scheduler"
	"github.com/becomeliminal/nim-autopilot/state"
	"github.com/becomeliminal/nim-autopilot/summarizer"
	"github.com/becomeliminal/nim-autopilot/tools"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the agent until interrupted",
	RunE:  runAgent,
}

func init() {
	f := runCmd.Flags()
	f.Duration("interval", 0, "time between cycles (default 60s)")
	f.String("listen", "", "address for /health, /metrics and /ws (default :8080)")
	f.Bool("memory", false, "remember past phases and show them to the strategy phase")
	f.Int("max-rounds", 0, "tool-calling rounds per phase (default 10)")

	_ = v.BindPFlag("cycle_interval", f.Lookup("interval"))
	_ = v.BindPFlag("listen_addr", f.Lookup("listen"))
	_ = v.BindPFlag("memory_enabled", f.Lookup("memory"))
	_ = v.BindPFlag("max_rounds", f.Lookup("max-rounds"))
}

func runAgent(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(v)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Printf("=== autopilot %s starting ===", version)
	log.Printf("Chain: %s | Wallet: %s", cfg.ChainName, cfg.WalletAddress)
	log.Printf("Models: inventory=%s survival=%s strategy=%s summary=%s",
		cfg.ModelInventory, cfg.ModelSurvival, cfg.ModelStrategy, cfg.ModelSummary)
	log.Printf("Cycle interval: %s", cfg.CycleInterval)

	rec := metrics.New()

	// Inference is paid per request; receipts come back in response headers.
	tracker := payment.NewTracker()
	tracker.OnCapture = rec.ReceiptCaptured
	llmClient := &http.Client{Timeout: 2 * time.Minute}
	tracker.Install(llmClient)

	backend, err := newBackend(cfg, llmClient)
	if err != nil {
		return err
	}

	node := chain.NewRPCClient(cfg.RPCURLs...)
	wallet := chain.NewWalletReader(node, cfg.WalletAddress, cfg.ChainName)

	prices, err := actions.NewPriceCache()
	if err != nil {
		return fmt.Errorf("create price cache: %w", err)
	}
	defer prices.Close()

	deps := &actions.Deps{
		Node:          node,
		Signer:        chain.NewSignerClient(cfg.SignerURL, cfg.SignerToken),
		Prices:        prices,
		WalletAddress: cfg.WalletAddress,
		ChainName:     cfg.ChainName,
	}
	if cfg.MarketURL != "" {
		markets, err := market.NewClient(cfg.MarketURL, cfg.MarketAPIKey)
		if err != nil {
			return fmt.Errorf("create market client: %w", err)
		}
		defer markets.Close()
		deps.Markets = markets
	} else {
		deps.Markets = market.Unavailable{}
	}
	if cfg.CreditSubgraphURL != "" {
		deps.Streams = credit.NewStreamClient(cfg.CreditSubgraphURL)
	}

	registry := tools.NewRegistry()
	registry.Register(actions.CreateActions(deps)...)
	log.Printf("Registered actions: %v", registry.Names())

	journal, err := publisher.OpenJournal(cfg.JournalPath)
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}
	defer journal.Close()

	feed := publisher.NewFeed()
	defer feed.Close()

	sinks := publisher.Multi{journal, feed}
	if cfg.SinkURL != "" {
		sinks = append(sinks, publisher.NewHTTPSink(cfg.SinkURL,
			publisher.WithChannel(cfg.SinkChannel),
			publisher.WithToken(cfg.SinkToken),
		))
	} else {
		log.Printf("[PUBLISH] no sink URL configured, activities stay local")
	}

	opts := []cycle.Option{cycle.WithMetrics(rec)}
	if cfg.MemoryEnabled {
		store, err := chromem.New()
		if err != nil {
			return fmt.Errorf("create memory store: %w", err)
		}
		defer store.Close()
		opts = append(opts, cycle.WithMemory(memory.NewSimpleManager(store, hash.New(), &memory.Config{Enabled: true})))
		log.Printf("[MEMORY] phase memory enabled")
	}

	orchestrator := cycle.New(cycle.Deps{
		Loop:       engine.New(backend, registry, engine.WithMaxRounds(cfg.MaxRounds)),
		Wallet:     wallet,
		Tools:      registry,
		Summarizer: summarizer.New(backend),
		Publisher:  sinks,
		Receipts:   tracker,
		Models: cycle.Models{
			Inventory: cfg.ModelInventory,
			Survival:  cfg.ModelSurvival,
			Strategy:  cfg.ModelStrategy,
			Summary:   cfg.ModelSummary,
		},
		Thresholds: cycle.Thresholds{
			SurvivalUSDC:   cfg.SurvivalThresholdUSDC,
			IdleTargetUSDC: cfg.IdleTargetUSDC,
		},
	}, opts...)

	initial := core.NewAgentState(time.Now())
	schedOpts := []scheduler.Option{scheduler.WithMetrics(rec)}
	if cfg.RedisAddr != "" {
		store := state.NewRedisStore(cfg.RedisAddr)
		defer store.Close()
		initial = resume(ctx, store, initial)
		schedOpts = append(schedOpts, scheduler.WithCheckpoints(store))
	}
	sched := scheduler.New(orchestrator, cfg.CycleInterval, schedOpts...)

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           newMux(sched, rec, feed),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Printf("[HTTP] listening on %s", cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("[HTTP] server error: %v", err)
		}
	}()

	err = sched.Run(ctx, initial)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)

	if errors.Is(err, context.Canceled) {
		log.Printf("Shutdown complete")
		return nil
	}
	return err
}

func newBackend(cfg *config.Config, httpClient *http.Client) (engine.Backend, error) {
	switch cfg.LLMProvider {
	case "anthropic":
		return engine.NewAnthropicBackend(cfg.LLMAPIKey, cfg.LLMBaseURL, httpClient), nil
	case "openai":
		return engine.NewOpenAIBackend(cfg.LLMBaseURL, cfg.LLMAPIKey, httpClient), nil
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.LLMProvider)
	}
}

// resume continues from the last checkpoint when there is one.
func resume(ctx context.Context, store state.Store, fresh core.AgentState) core.AgentState {
	checkpoint, err := store.Load(ctx)
	switch {
	case errors.Is(err, state.ErrNotFound):
		log.Printf("[REDIS] no checkpoint, starting fresh")
		return fresh
	case err != nil:
		log.Printf("[REDIS] failed to load checkpoint, starting fresh: %v", err)
		return fresh
	}
	log.Printf("[REDIS] resuming from cycle %d", checkpoint.CycleCount)
	return state.Resume(checkpoint)
}

func newMux(sched *scheduler.Scheduler, rec *metrics.Recorder, feed *publisher.Feed) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		st := sched.State()
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"status":      "ok",
			"cycleCount":  st.CycleCount,
			"startedAt":   st.StartedAt,
			"wallet":      st.Wallet,
			"feedClients": feed.Clients(),
		})
	})
	mux.Handle("/metrics", rec.Handler())
	mux.Handle("/ws", feed)
	return mux
}
