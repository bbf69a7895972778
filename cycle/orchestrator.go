// Package cycle runs one agent cycle: snapshot, inventory, an optional
// survival or strategy phase, then summarize and publish.
package cycle

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/becomeliminal/nim-autopilot/actions"
	"github.com/becomeliminal/nim-autopilot/core"
	"github.com/becomeliminal/nim-autopilot/engine"
	"github.com/becomeliminal/nim-autopilot/memory"
	"github.com/becomeliminal/nim-autopilot/metrics"
	"github.com/becomeliminal/nim-autopilot/publisher"
)

// Loop runs one tool-calling loop.
type Loop interface {
	Run(ctx context.Context, input *engine.Input) (*core.LoopResult, error)
}

// WalletReader snapshots the agent's balances.
type WalletReader interface {
	Snapshot(ctx context.Context) (core.WalletSnapshot, error)
}

// ToolCatalog resolves action names to the definitions offered to a phase.
type ToolCatalog interface {
	Definitions(names ...string) []core.ToolDefinition
}

// Summarizer produces a phase digest. It must not fail.
type Summarizer interface {
	Summarize(ctx context.Context, model string, phaseType core.ActivityType, reasoning string, execs []core.ToolExecution) string
}

// ReceiptSource yields payment receipts captured since the last drain.
type ReceiptSource interface {
	Drain() []string
}

// Models selects the model used for each phase.
type Models struct {
	Inventory string
	Survival  string
	Strategy  string
	Summary   string
}

// Thresholds are the idle USDC levels the inventory phase judges against.
// IdleTargetUSDC is above SurvivalUSDC; the gap is an operating buffer.
type Thresholds struct {
	SurvivalUSDC   float64
	IdleTargetUSDC float64
}

// Deps holds the collaborators of an Orchestrator.
type Deps struct {
	Loop       Loop
	Wallet     WalletReader
	Tools      ToolCatalog
	Summarizer Summarizer
	Publisher  publisher.Publisher
	Receipts   ReceiptSource
	Models     Models
	Thresholds Thresholds
}

// Orchestrator runs cycles. It holds no state between cycles.
type Orchestrator struct {
	Deps

	memory  memory.Manager
	metrics *metrics.Recorder
	newID   func() string
	now     func() time.Time
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithMemory records published phases and feeds related past phases to
// the strategy prompt.
func WithMemory(m memory.Manager) Option {
	return func(o *Orchestrator) { o.memory = m }
}

// WithMetrics records phases and publish failures.
func WithMetrics(r *metrics.Recorder) Option {
	return func(o *Orchestrator) { o.metrics = r }
}

// WithIDGenerator replaces the cycle ID generator.
func WithIDGenerator(f func() string) Option {
	return func(o *Orchestrator) { o.newID = f }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// New creates an Orchestrator.
func New(deps Deps, opts ...Option) *Orchestrator {
	if deps.Publisher == nil {
		deps.Publisher = publisher.Discard{}
	}
	o := &Orchestrator{
		Deps:  deps,
		newID: func() string { return uuid.New().String() },
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// RunCycle runs one cycle from state and returns the next state.
//
// A snapshot failure is returned as an error and no phase runs. An
// inventory failure is published as an error activity and the cycle still
// counts. A survival or strategy failure becomes an error phase in its slot.
func (o *Orchestrator) RunCycle(ctx context.Context, state core.AgentState) (core.AgentState, error) {
	cycleID := o.newID()
	log.Printf("[CYCLE] --- Cycle %d (%s) ---", state.CycleCount+1, cycleID)

	snap, err := o.Wallet.Snapshot(ctx)
	if err != nil {
		return state, fmt.Errorf("snapshot: %w", err)
	}
	log.Printf("[CYCLE] %s | ETH: %s | USDC: %s | credit: %s",
		snap.Address, snap.NativeBalance, snap.StableBalance, snap.CreditBalance)

	now := o.now()
	inventory, err := o.runPhase(ctx, core.ActivityInventory, o.Models.Inventory,
		inventorySystemPrompt, inventoryPrompt(snap, state, o.Thresholds, now), actions.InventorySet)
	if err != nil {
		log.Printf("[CYCLE] inventory phase failed: %v", err)
		o.publishPhases(ctx, cycleID, snap.Address, []core.Phase{
			errorPhase(core.ActivityInventory, o.Models.Inventory, err),
		})
		return core.AgentState{
			CycleCount:    state.CycleCount + 1,
			Wallet:        snap,
			LastReasoning: nil,
			StartedAt:     state.StartedAt,
		}, nil
	}

	phases := []core.Phase{inventory}
	if trigger := ExtractTrigger(inventory.ToolExecutions); trigger != nil {
		log.Printf("[CYCLE] %s triggered: %v", trigger.Kind, trigger.Args)
		phases = append(phases, o.runConditional(ctx, *trigger, snap, state, now))
	} else {
		log.Printf("[CYCLE] no trigger, nothing else to do")
	}

	o.publishPhases(ctx, cycleID, snap.Address, phases)

	reasoning := phases[len(phases)-1].Reasoning
	return core.AgentState{
		CycleCount:    state.CycleCount + 1,
		Wallet:        snap,
		LastReasoning: &reasoning,
		StartedAt:     state.StartedAt,
	}, nil
}

func (o *Orchestrator) runConditional(ctx context.Context, trigger core.Trigger, snap core.WalletSnapshot, state core.AgentState, now time.Time) core.Phase {
	var (
		phase core.Phase
		err   error
		model string
	)
	switch trigger.Kind {
	case core.TriggerSurvival:
		model = o.Models.Survival
		phase, err = o.runPhase(ctx, core.ActivitySurvival, model,
			survivalSystemPrompt, survivalPrompt(trigger, snap, state, o.Thresholds, now), actions.SurvivalSet)
	default:
		model = o.Models.Strategy
		past := o.recall(ctx, snap.Address, trigger)
		phase, err = o.runPhase(ctx, core.ActivityStrategy, model,
			strategySystemPrompt, strategyPrompt(trigger, snap, state, o.Thresholds, now, past), actions.StrategySet)
	}
	if err != nil {
		log.Printf("[CYCLE] %s phase failed: %v", trigger.Kind, err)
		return errorPhase(core.ActivityType(trigger.Kind), model, err)
	}
	return phase
}

func (o *Orchestrator) runPhase(ctx context.Context, phaseType core.ActivityType, model, system, user string, subset []string) (core.Phase, error) {
	log.Printf("[CYCLE] %s phase (%s)", phaseType, model)
	result, err := o.Loop.Run(ctx, &engine.Input{
		Model:        model,
		SystemPrompt: system,
		UserPrompt:   user,
		Tools:        o.Tools.Definitions(subset...),
	})
	if err != nil {
		return core.Phase{}, err
	}
	return core.Phase{
		Type:           phaseType,
		Model:          model,
		Reasoning:      result.ResponseText,
		ToolExecutions: result.ToolExecutions,
		TxHashes:       result.TxHashes,
	}, nil
}

// recall returns related past phases for the strategy prompt, or "".
func (o *Orchestrator) recall(ctx context.Context, owner string, trigger core.Trigger) string {
	if o.memory == nil {
		return ""
	}
	query := fmt.Sprintf("strategy deploy %s USDC: %s", trigger.Args["availableUsdc"], trigger.Args["reason"])
	past, err := o.memory.Retrieve(ctx, owner, query)
	if err != nil {
		log.Printf("[MEMORY] retrieve failed: %v", err)
		return ""
	}
	return past
}

func errorPhase(failed core.ActivityType, model string, err error) core.Phase {
	return core.Phase{
		Type:      core.ActivityError,
		Model:     model,
		Reasoning: fmt.Sprintf("%s phase failed: %v", failed, err),
	}
}
