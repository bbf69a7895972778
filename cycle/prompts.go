package cycle

import (
	"fmt"
	"strings"
	"time"

	"github.com/becomeliminal/nim-autopilot/actions"
	"github.com/becomeliminal/nim-autopilot/core"
)

const inventorySystemPrompt = `You are an autonomous agent that lives on the Base blockchain.
You manage your own wallet and pay for your own compute and inference.

This is the inventory step of your cycle. Check your resources with the tools available:
- Your compute credit balance and how many hours of compute it buys.
- Your idle USDC in the wallet and what is supplied to lending.

Then decide:
- If idle USDC is below the survival threshold, or compute credit will run out within 24 hours,
  call ` + actions.TriggerSurvival + ` with the reason and your idle USDC.
- Otherwise, if idle USDC is above the idle target, call ` + actions.TriggerStrategy + ` with the
  amount above the target as availableUsdc.
- Otherwise do nothing.

Call at most one trigger. Be concise.`

const survivalSystemPrompt = `You are an autonomous agent that lives on the Base blockchain, and you are in survival mode.
Your job in this step is to keep yourself alive:
- If compute credit is running low, swap a small amount of ETH to credit. Keep enough ETH for gas.
- If idle USDC is below the survival threshold, withdraw from your lending position to cover the gap.

Only act on what the reason below describes. Be concise and explain each action.`

const strategySystemPrompt = `You are an autonomous agent that lives on the Base blockchain, analyzing how to deploy spare capital.
You may supply USDC to lending for yield, or buy positions on prediction markets when a price looks clearly mispriced.
Never spend more than the available amount. Prefer lending when no market stands out.
Be concise and explain each decision.`

func statusBlock(snap core.WalletSnapshot, state core.AgentState, th Thresholds, now time.Time) string {
	var b strings.Builder
	b.WriteString("Current state:\n")
	fmt.Fprintf(&b, "- Wallet: %s\n", snap.Address)
	fmt.Fprintf(&b, "- Chain: %s\n", snap.ChainName)
	fmt.Fprintf(&b, "- ETH balance: %s\n", snap.NativeBalance)
	fmt.Fprintf(&b, "- USDC balance (idle): %s\n", snap.StableBalance)
	fmt.Fprintf(&b, "- Compute credit balance: %s\n", snap.CreditBalance)
	fmt.Fprintf(&b, "- Cycle: %d\n", state.CycleCount+1)
	fmt.Fprintf(&b, "- Uptime: %ds\n", int64(now.Sub(state.StartedAt).Seconds()))
	if state.LastReasoning != nil {
		b.WriteString("- Last reasoning: yes\n")
	} else {
		b.WriteString("- Last reasoning: first cycle\n")
	}
	b.WriteString("\nThresholds:\n")
	fmt.Fprintf(&b, "- Survival threshold: %g USDC\n", th.SurvivalUSDC)
	fmt.Fprintf(&b, "- Idle target: %g USDC\n", th.IdleTargetUSDC)
	return b.String()
}

func inventoryPrompt(snap core.WalletSnapshot, state core.AgentState, th Thresholds, now time.Time) string {
	return statusBlock(snap, state, th, now)
}

func survivalPrompt(trigger core.Trigger, snap core.WalletSnapshot, state core.AgentState, th Thresholds, now time.Time) string {
	var b strings.Builder
	b.WriteString("Survival mode triggered.\n")
	fmt.Fprintf(&b, "- Reason: %s\n", orUnknown(trigger.Args["reason"]))
	fmt.Fprintf(&b, "- Idle USDC reported: %s\n", orUnknown(trigger.Args["idleUsdc"]))
	if h := trigger.Args["hoursLeft"]; h != "" {
		fmt.Fprintf(&b, "- Hours of compute left: %s\n", h)
	}
	b.WriteString("\n")
	b.WriteString(statusBlock(snap, state, th, now))
	return b.String()
}

func strategyPrompt(trigger core.Trigger, snap core.WalletSnapshot, state core.AgentState, th Thresholds, now time.Time, past string) string {
	var b strings.Builder
	b.WriteString("Strategy analysis triggered.\n")
	fmt.Fprintf(&b, "- Available USDC for deployment: %s\n", orUnknown(trigger.Args["availableUsdc"]))
	fmt.Fprintf(&b, "- Reason: %s\n", orUnknown(trigger.Args["reason"]))
	b.WriteString("\n")
	b.WriteString(statusBlock(snap, state, th, now))
	if past != "" {
		b.WriteString("\n")
		b.WriteString(past)
	}
	return b.String()
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}
