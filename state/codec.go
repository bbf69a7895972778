package state

import (
	"encoding/json"
	"fmt"

	"github.com/becomeliminal/nim-autopilot/core"
)

func marshal(st core.AgentState) ([]byte, error) {
	data, err := json.Marshal(st)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal state: %w", err)
	}
	return data, nil
}

func unmarshal(data []byte) (core.AgentState, error) {
	var st core.AgentState
	if err := json.Unmarshal(data, &st); err != nil {
		return core.AgentState{}, fmt.Errorf("failed to unmarshal state: %w", err)
	}
	return st, nil
}

// Resume returns the state a restarted agent continues from: the cycle
// count and start time of the checkpoint. The wallet is re-read by the
// next cycle and reasoning is not carried across restarts.
func Resume(checkpoint core.AgentState) core.AgentState {
	return core.AgentState{
		CycleCount: checkpoint.CycleCount,
		StartedAt:  checkpoint.StartedAt,
	}
}
