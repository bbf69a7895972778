package actions

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"math/big"
	"strings"

	"github.com/becomeliminal/nim-autopilot/chain"
	"github.com/becomeliminal/nim-autopilot/core"
	"github.com/becomeliminal/nim-autopilot/tools"
)

// ────────────────────────────────────────────────────────────────────────────
// lending_get_portfolio
// ────────────────────────────────────────────────────────────────────────────

func createLendingGetPortfolioAction(deps *Deps) core.Action {
	return tools.New(LendingGetPortfolio).
		Description("Get your Compound USDC position: USDC supplied to the market (earns supply APY) and idle USDC in the wallet.").
		Schema(tools.EmptySchema()).
		Handler(func(ctx context.Context, _ json.RawMessage) (string, error) {
			w := deps.wallet()
			supplied, err := w.BalanceOf(ctx, chain.CometUSDC, deps.WalletAddress)
			if err != nil {
				return fmt.Sprintf("Error getting portfolio: %v", err), nil
			}
			idle, err := w.TokenBalance(ctx, chain.USDC)
			if err != nil {
				return fmt.Sprintf("Error getting portfolio: %v", err), nil
			}

			var b strings.Builder
			b.WriteString("# Portfolio Details\n\n")
			b.WriteString("## Base Asset Supply\n\n")
			if supplied.Sign() > 0 {
				fmt.Fprintf(&b, "- **USDC supplied:** %s\n\n", chain.FormatUnits(supplied, chain.USDCDecimals))
			} else {
				b.WriteString("No base asset supplied.\n\n")
			}
			b.WriteString("## Wallet\n\n")
			fmt.Fprintf(&b, "- **Idle USDC:** %s\n", chain.FormatUnits(idle, chain.USDCDecimals))
			total := new(big.Int).Add(supplied, idle)
			fmt.Fprintf(&b, "\n### Total USDC: %s\n", chain.FormatUnits(total, chain.USDCDecimals))
			return b.String(), nil
		}).
		Build()
}

// ────────────────────────────────────────────────────────────────────────────
// lending_supply
// ────────────────────────────────────────────────────────────────────────────

func createLendingSupplyAction(deps *Deps) core.Action {
	return tools.New(LendingSupply).
		Description("Supply idle USDC to the Compound USDC market to earn yield. Approves the market first. amount is human-readable USDC.").
		Schema(tools.BuildSchemaWithThought(map[string]interface{}{
			"amount": tools.DecimalProperty("USDC amount to supply (e.g., '5.00')"),
		}, true, "amount")).
		Handler(func(ctx context.Context, args json.RawMessage) (string, error) {
			var input struct {
				core.BaseInput
				Amount string `json:"amount"`
			}
			if err := json.Unmarshal(args, &input); err != nil {
				return "", err
			}
			noteThought(LendingSupply, input.BaseInput)
			amount, err := chain.ParseUnits(input.Amount, chain.USDCDecimals)
			if err != nil {
				return "", err
			}

			idle, err := deps.wallet().TokenBalance(ctx, chain.USDC)
			if err != nil {
				return fmt.Sprintf("Error supplying to Compound: %v", err), nil
			}
			if idle.Cmp(amount) < 0 {
				return fmt.Sprintf("Error: Insufficient balance. You have %s, but trying to supply %s",
					chain.FormatUnits(idle, chain.USDCDecimals), input.Amount), nil
			}

			approveHash, err := sendAndWait(ctx, deps, chain.Tx{To: chain.USDC, Data: chain.EncodeApprove(chain.CometUSDC, amount)})
			if err != nil {
				return fmt.Sprintf("Error approving token: %v", err), nil
			}
			// Supply hash first: it becomes the execution's TxHash.
			txHash, err := sendAndWait(ctx, deps, chain.Tx{To: chain.CometUSDC, Data: chain.EncodeCometSupply(chain.USDC, amount)})
			if err != nil {
				return fmt.Sprintf("Error supplying to Compound: %v\nApprove hash: %s", err, approveHash), nil
			}
			return fmt.Sprintf("Supplied %s USDC to Compound.\nTransaction hash: %s\nApprove hash: %s", input.Amount, txHash, approveHash), nil
		}).
		Build()
}

// ────────────────────────────────────────────────────────────────────────────
// lending_withdraw
// ────────────────────────────────────────────────────────────────────────────

func createLendingWithdrawAction(deps *Deps) core.Action {
	return tools.New(LendingWithdraw).
		Description("Withdraw USDC from the Compound USDC market back to the wallet. amount is human-readable USDC.").
		Schema(tools.BuildSchemaWithThought(map[string]interface{}{
			"amount": tools.DecimalProperty("USDC amount to withdraw (e.g., '5.00')"),
		}, true, "amount")).
		Handler(func(ctx context.Context, args json.RawMessage) (string, error) {
			var input struct {
				core.BaseInput
				Amount string `json:"amount"`
			}
			if err := json.Unmarshal(args, &input); err != nil {
				return "", err
			}
			noteThought(LendingWithdraw, input.BaseInput)
			amount, err := chain.ParseUnits(input.Amount, chain.USDCDecimals)
			if err != nil {
				return "", err
			}

			supplied, err := deps.wallet().BalanceOf(ctx, chain.CometUSDC, deps.WalletAddress)
			if err != nil {
				return fmt.Sprintf("Error withdrawing from Compound: %v", err), nil
			}
			if amount.Cmp(supplied) > 0 {
				return fmt.Sprintf("Error: Insufficient balance. Trying to withdraw %s, but only have %s supplied",
					input.Amount, chain.FormatUnits(supplied, chain.USDCDecimals)), nil
			}

			txHash, err := sendAndWait(ctx, deps, chain.Tx{To: chain.CometUSDC, Data: chain.EncodeCometWithdraw(chain.USDC, amount)})
			if err != nil {
				return fmt.Sprintf("Error withdrawing from Compound: %v", err), nil
			}
			return fmt.Sprintf("Withdrawn %s USDC from Compound.\nTransaction hash: %s", input.Amount, txHash), nil
		}).
		Build()
}

// sendAndWait broadcasts tx and waits until it is mined. A reverted
// transaction is an error.
func sendAndWait(ctx context.Context, deps *Deps, tx chain.Tx) (string, error) {
	txHash, err := deps.Signer.SendTransaction(ctx, tx)
	if err != nil {
		return "", err
	}
	receipt, err := deps.Node.WaitForReceipt(ctx, txHash)
	if err != nil {
		return "", fmt.Errorf("waiting for %s: %w", txHash, err)
	}
	if !receipt.Succeeded() {
		return "", fmt.Errorf("transaction %s reverted", txHash)
	}
	log.Printf("[WALLET] %s mined in block %s", txHash, receipt.BlockNumber)
	return txHash, nil
}
