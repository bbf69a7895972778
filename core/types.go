package core

import (
	"time"
)

// ToolExecution records one invocation of an action inside a tool-calling loop.
// It is never mutated after creation.
type ToolExecution struct {
	Name   string            `json:"name"`
	Args   map[string]string `json:"args,omitempty"`
	Result string            `json:"result,omitempty"`
	TxHash string            `json:"txHash,omitempty"`
	Meta   map[string]string `json:"meta,omitempty"`
}

// LoopResult is the terminal output of one tool-calling loop run.
type LoopResult struct {
	// ResponseText is the backend's final answer.
	ResponseText string

	// ToolExecutions is the ordered execution ledger.
	ToolExecutions []ToolExecution

	// TxHashes holds every transaction hash found in tool results, in order.
	TxHashes []string
}

// TriggerKind selects the conditional phase of a cycle.
type TriggerKind string

const (
	TriggerSurvival TriggerKind = "survival"
	TriggerStrategy TriggerKind = "strategy"
)

// Trigger is extracted from the inventory phase's tool calls.
type Trigger struct {
	Kind TriggerKind
	Args map[string]string
}

// ActivityType is the type of a phase and of the activity published for it.
type ActivityType string

const (
	ActivityInventory ActivityType = "inventory"
	ActivitySurvival  ActivityType = "survival"
	ActivityStrategy  ActivityType = "strategy"
	ActivityError     ActivityType = "error"
)

// Phase is one segment of a cycle that actually ran.
type Phase struct {
	Type           ActivityType
	Model          string
	Reasoning      string
	ToolExecutions []ToolExecution
	TxHashes       []string
}

// Activity is the record sent to the public log for each phase.
type Activity struct {
	Summary  string          `json:"summary"`
	Model    string          `json:"model"`
	CycleID  string          `json:"cycleId"`
	Tools    []ToolExecution `json:"tools,omitempty"`
	TxHashes []string        `json:"txHashes,omitempty"`
}

// WalletSnapshot is the agent's resource state at the start of a cycle.
// Balances are human-readable decimal strings.
type WalletSnapshot struct {
	Address       string `json:"address"`
	ChainName     string `json:"chainName"`
	NativeBalance string `json:"ethBalance"`
	StableBalance string `json:"usdcBalance"`
	CreditBalance string `json:"creditBalance"`
}

// AgentState is the only state carried from one cycle to the next.
// Cycles return a new value instead of mutating the previous one.
type AgentState struct {
	CycleCount    int            `json:"cycleCount"`
	Wallet        WalletSnapshot `json:"wallet"`
	LastReasoning *string        `json:"lastReasoning"`
	StartedAt     time.Time      `json:"startedAt"`
}

// NewAgentState returns the state the first cycle starts from.
func NewAgentState(startedAt time.Time) AgentState {
	return AgentState{StartedAt: startedAt}
}
