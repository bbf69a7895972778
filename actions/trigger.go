package actions

import (
	"context"
	"encoding/json"

	"github.com/becomeliminal/nim-autopilot/core"
	"github.com/becomeliminal/nim-autopilot/tools"
)

// The triggers do nothing themselves. The cycle reads them from the
// inventory phase's execution ledger to choose the next phase.

func createTriggerSurvivalAction() core.Action {
	return tools.New(TriggerSurvival).
		Description("Call this when your compute credit is running low or idle USDC is below the survival threshold. " +
			"This starts a survival phase that tops up credit or frees funds.").
		Schema(tools.ObjectSchema(map[string]interface{}{
			"reason":    tools.StringProperty("Why survival mode is needed"),
			"idleUsdc":  tools.StringProperty("Idle USDC in the wallet"),
			"hoursLeft": tools.StringProperty("Estimated hours of compute left, if known"),
		}, "reason", "idleUsdc")).
		Handler(triggered).
		Build()
}

func createTriggerStrategyAction() core.Action {
	return tools.New(TriggerStrategy).
		Description("Call this when there is USDC available beyond the safety margin and you think it is worth analyzing " +
			"investment opportunities. This will trigger a deeper strategy analysis with a smarter model.").
		Schema(tools.ObjectSchema(map[string]interface{}{
			"availableUsdc": tools.StringProperty("Amount of USDC available for deployment (after safety margin)"),
			"reason":        tools.StringProperty("Why you think it is worth running strategy analysis right now"),
		}, "availableUsdc", "reason")).
		Handler(triggered).
		Build()
}

func triggered(_ context.Context, args json.RawMessage) (string, error) {
	var fields map[string]interface{}
	if err := json.Unmarshal(args, &fields); err != nil {
		return "", err
	}
	out := map[string]interface{}{"triggered": true}
	for k, v := range fields {
		out[k] = v
	}
	return toJSON(out)
}
