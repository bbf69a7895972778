package actions

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/becomeliminal/nim-autopilot/core"
	"github.com/becomeliminal/nim-autopilot/tools"
)

// ────────────────────────────────────────────────────────────────────────────
// get_wallet_state
// ────────────────────────────────────────────────────────────────────────────

func createGetWalletStateAction(deps *Deps) core.Action {
	return tools.New(GetWalletState).
		Description("Get your wallet address, chain and current ETH, USDC and compute credit (ALEPH) balances.").
		Schema(tools.EmptySchema()).
		Handler(func(ctx context.Context, _ json.RawMessage) (string, error) {
			snap, err := deps.wallet().Snapshot(ctx)
			if err != nil {
				return fmt.Sprintf("Error reading wallet state: %v", err), nil
			}
			return toJSON(map[string]string{
				"address":       snap.Address,
				"chain":         snap.ChainName,
				"eth_balance":   snap.NativeBalance,
				"usdc_balance":  snap.StableBalance,
				"aleph_balance": snap.CreditBalance,
			})
		}).
		Build()
}
