package actions

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/becomeliminal/nim-autopilot/chain"
	"github.com/becomeliminal/nim-autopilot/core"
	"github.com/becomeliminal/nim-autopilot/market"
	"github.com/becomeliminal/nim-autopilot/tools"
)

// ────────────────────────────────────────────────────────────────────────────
// market_list
// ────────────────────────────────────────────────────────────────────────────

func createMarketListAction(deps *Deps) core.Action {
	return tools.New(MarketList).
		Description("List active prediction markets with their YES/NO prices. Optionally filter by category (e.g. 'crypto').").
		Schema(tools.ObjectSchema(map[string]interface{}{
			"category": tools.StringProperty("Optional market category"),
		})).
		Handler(func(ctx context.Context, args json.RawMessage) (string, error) {
			var input struct {
				Category string `json:"category"`
			}
			if err := json.Unmarshal(args, &input); err != nil {
				return "", err
			}
			markets, err := deps.Markets.ListMarkets(ctx, input.Category)
			if err != nil {
				return fmt.Sprintf("Error listing markets: %v", err), nil
			}
			if len(markets) == 0 {
				return "No active markets.", nil
			}
			return toJSON(markets)
		}).
		Build()
}

// ────────────────────────────────────────────────────────────────────────────
// market_buy
// ────────────────────────────────────────────────────────────────────────────

func createMarketBuyAction(deps *Deps) core.Action {
	return tools.New(MarketBuy).
		Description("Buy YES or NO shares on a prediction market with a fill-or-kill market order. Spends amountUsdc from the wallet.").
		Schema(tools.BuildSchemaWithThought(map[string]interface{}{
			"marketSlug": tools.StringProperty("Slug of the market, from market_list"),
			"side":       tools.StringEnumProperty("Outcome to buy", "YES", "NO"),
			"amountUsdc": tools.DecimalProperty("USDC to spend (e.g., '2.00')"),
		}, true, "marketSlug", "side", "amountUsdc")).
		Handler(func(ctx context.Context, args json.RawMessage) (string, error) {
			var input struct {
				core.BaseInput
				MarketSlug string `json:"marketSlug"`
				Side       string `json:"side"`
				AmountUSDC string `json:"amountUsdc"`
			}
			if err := json.Unmarshal(args, &input); err != nil {
				return "", err
			}
			noteThought(MarketBuy, input.BaseInput)
			amount, err := chain.ParseUnits(input.AmountUSDC, chain.USDCDecimals)
			if err != nil {
				return "", err
			}

			idle, err := deps.wallet().TokenBalance(ctx, chain.USDC)
			if err != nil {
				return fmt.Sprintf("Error placing order: %v", err), nil
			}
			if idle.Cmp(amount) < 0 {
				return fmt.Sprintf("Error: Insufficient balance. You have %s USDC, but trying to spend %s",
					chain.FormatUnits(idle, chain.USDCDecimals), input.AmountUSDC), nil
			}

			order, err := deps.Markets.BuyMarketOrder(ctx, input.MarketSlug, input.Side, input.AmountUSDC)
			if err != nil {
				var apiErr *market.APIError
				if errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound {
					return fmt.Sprintf("Error: unknown market %q", input.MarketSlug), nil
				}
				return fmt.Sprintf("Error placing order: %v", err), nil
			}

			var b strings.Builder
			fmt.Fprintf(&b, "Order %s %s: bought %s on %s for %.2f USDC (%.4f shares).",
				order.ID, strings.ToLower(order.Status), strings.ToUpper(input.Side), input.MarketSlug, order.Filled, order.Shares)
			if order.TxHash != "" {
				fmt.Fprintf(&b, " Settlement hash: %s", order.TxHash)
			}
			return b.String(), nil
		}).
		Build()
}

// ────────────────────────────────────────────────────────────────────────────
// market_positions
// ────────────────────────────────────────────────────────────────────────────

func createMarketPositionsAction(deps *Deps) core.Action {
	return tools.New(MarketPositions).
		Description("Get your open prediction market positions with their current value.").
		Schema(tools.EmptySchema()).
		Handler(func(ctx context.Context, _ json.RawMessage) (string, error) {
			positions, err := deps.Markets.Positions(ctx)
			if err != nil {
				return fmt.Sprintf("Error getting positions: %v", err), nil
			}
			if len(positions) == 0 {
				return "No open positions.", nil
			}
			return toJSON(positions)
		}).
		Build()
}
