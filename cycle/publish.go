package cycle

import (
	"context"
	"log"

	"github.com/becomeliminal/nim-autopilot/core"
)

// publishPhases summarizes every phase, charges the cycle's payment
// receipts to the last one and publishes each independently.
func (o *Orchestrator) publishPhases(ctx context.Context, cycleID, owner string, phases []core.Phase) {
	summaries := make([]string, len(phases))
	for i, p := range phases {
		summaries[i] = o.Summarizer.Summarize(ctx, o.Models.Summary, p.Type, p.Reasoning, p.ToolExecutions)
	}

	// Drained after summarizing so receipts of the summary calls are
	// charged to this cycle as well.
	if o.Receipts != nil {
		if receipts := o.Receipts.Drain(); len(receipts) > 0 {
			last := &phases[len(phases)-1]
			last.TxHashes = mergeHashes(last.TxHashes, receipts)
			log.Printf("[CYCLE] %d payment receipts charged to %s phase", len(receipts), last.Type)
		}
	}

	for i, p := range phases {
		if o.metrics != nil {
			names := make([]string, 0, len(p.ToolExecutions))
			for _, e := range p.ToolExecutions {
				names = append(names, e.Name)
			}
			o.metrics.ObservePhase(string(p.Type), names)
		}

		activity := &core.Activity{
			Summary:  summaries[i],
			Model:    p.Model,
			CycleID:  cycleID,
			Tools:    p.ToolExecutions,
			TxHashes: p.TxHashes,
		}
		if err := o.Publisher.Publish(ctx, p.Type, activity); err != nil {
			log.Printf("[PUBLISH] failed to publish %s: %v", p.Type, err)
			if o.metrics != nil {
				o.metrics.PublishFailed()
			}
		}

		if o.memory != nil {
			if err := o.memory.RecordPhase(ctx, owner, p.Type, activity); err != nil {
				log.Printf("[MEMORY] failed to record %s phase: %v", p.Type, err)
			}
		}
	}
}

// mergeHashes appends extra to hashes, skipping ones already present.
func mergeHashes(hashes, extra []string) []string {
	seen := make(map[string]bool, len(hashes)+len(extra))
	out := make([]string, 0, len(hashes)+len(extra))
	for _, h := range hashes {
		seen[h] = true
		out = append(out, h)
	}
	for _, h := range extra {
		if !seen[h] {
			seen[h] = true
			out = append(out, h)
		}
	}
	return out
}
