// Package actions defines the capabilities the agent can invoke: balance
// and credit reads, compute-credit top-ups, lending moves, prediction
// market orders and the phase triggers.
package actions

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"math/big"

	"github.com/dgraph-io/ristretto"

	"github.com/becomeliminal/nim-autopilot/chain"
	"github.com/becomeliminal/nim-autopilot/core"
	"github.com/becomeliminal/nim-autopilot/market"
)

// Action names.
const (
	GetWalletState       = "get_wallet_state"
	GetComputeCreditInfo = "get_compute_credit_info"
	SwapETHToCredit      = "swap_eth_to_credit"
	LendingGetPortfolio  = "lending_get_portfolio"
	LendingSupply        = "lending_supply"
	LendingWithdraw      = "lending_withdraw"
	MarketList           = "market_list"
	MarketBuy            = "market_buy"
	MarketPositions      = "market_positions"
	TriggerSurvival      = "trigger_survival"
	TriggerStrategy      = "trigger_strategy"
)

// Action subsets offered to each phase.
var (
	InventorySet = []string{GetWalletState, GetComputeCreditInfo, LendingGetPortfolio, TriggerSurvival, TriggerStrategy}
	SurvivalSet  = []string{GetComputeCreditInfo, SwapETHToCredit, LendingGetPortfolio, LendingWithdraw}
	StrategySet  = []string{MarketList, MarketBuy, MarketPositions, LendingGetPortfolio, LendingSupply}
)

// Node is the chain endpoint the actions read from and wait on.
type Node interface {
	chain.Node
	WaitForReceipt(ctx context.Context, txHash string) (*chain.Receipt, error)
}

// Signer broadcasts transactions on the agent's behalf.
type Signer interface {
	SendTransaction(ctx context.Context, tx chain.Tx) (string, error)
}

// Markets is the prediction market venue.
type Markets interface {
	ListMarkets(ctx context.Context, category string) ([]market.Market, error)
	BuyMarketOrder(ctx context.Context, slug, side, amountUSDC string) (*market.Order, error)
	Positions(ctx context.Context) ([]market.Position, error)
}

// Streams reports the rate at which compute credit is being spent.
type Streams interface {
	OutflowRate(ctx context.Context, account, symbol string) (*big.Int, error)
}

// Deps holds shared dependencies for all actions.
type Deps struct {
	Node          Node
	Signer        Signer
	Markets       Markets
	Streams       Streams // optional
	Prices        *ristretto.Cache
	WalletAddress string
	ChainName     string
}

// CreateActions returns every action.
func CreateActions(deps *Deps) []core.Action {
	return []core.Action{
		createGetWalletStateAction(deps),
		createGetComputeCreditInfoAction(deps),
		createSwapETHToCreditAction(deps),
		createLendingGetPortfolioAction(deps),
		createLendingSupplyAction(deps),
		createLendingWithdrawAction(deps),
		createMarketListAction(deps),
		createMarketBuyAction(deps),
		createMarketPositionsAction(deps),
		createTriggerSurvivalAction(),
		createTriggerStrategyAction(),
	}
}

// NewPriceCache creates the cache used for pool prices.
func NewPriceCache() (*ristretto.Cache, error) {
	return ristretto.NewCache(&ristretto.Config{
		NumCounters: 1e3,
		MaxCost:     1 << 10,
		BufferItems: 64,
	})
}

func (d *Deps) wallet() *chain.WalletReader {
	return chain.NewWalletReader(d.Node, d.WalletAddress, d.ChainName)
}

// noteThought logs the reasoning a state-changing action was called with.
func noteThought(action string, in core.BaseInput) {
	if in.Thought != "" {
		log.Printf("[TOOL] %s thought: %s", action, in.Thought)
	}
}

func toJSON(v interface{}) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encode result: %w", err)
	}
	return string(b), nil
}
