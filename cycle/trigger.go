package cycle

import (
	"github.com/becomeliminal/nim-autopilot/actions"
	"github.com/becomeliminal/nim-autopilot/core"
)

// ExtractTrigger finds the trigger call in an inventory ledger. A survival
// trigger anywhere in the ledger wins over any strategy trigger; among
// triggers of the same kind the first one counts. Returns nil when the
// ledger has no trigger call.
func ExtractTrigger(execs []core.ToolExecution) *core.Trigger {
	var strategy *core.Trigger
	for _, e := range execs {
		switch e.Name {
		case actions.TriggerSurvival:
			return &core.Trigger{Kind: core.TriggerSurvival, Args: argsOrEmpty(e.Args)}
		case actions.TriggerStrategy:
			if strategy == nil {
				strategy = &core.Trigger{Kind: core.TriggerStrategy, Args: argsOrEmpty(e.Args)}
			}
		}
	}
	return strategy
}

func argsOrEmpty(args map[string]string) map[string]string {
	if args == nil {
		return map[string]string{}
	}
	return args
}
