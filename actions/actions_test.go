package actions_test

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/big"
	"strings"
	"testing"

	"github.com/becomeliminal/nim-autopilot/actions"
	"github.com/becomeliminal/nim-autopilot/chain"
	"github.com/becomeliminal/nim-autopilot/market"
	"github.com/becomeliminal/nim-autopilot/tools"
)

const agent = "0x1111111111111111111111111111111111111111"

// fakeNode serves balances from memory.
type fakeNode struct {
	eth      *big.Int
	usdc     *big.Int
	aleph    *big.Int
	supplied *big.Int
	slot0    *big.Int
	reverted map[string]bool
	dropped  map[string]bool
}

func (n *fakeNode) EthCall(ctx context.Context, to string, calldata []byte) ([]byte, error) {
	word := make([]byte, 32)
	switch {
	case to == chain.ALEPHWETHPool:
		n.slot0.FillBytes(word)
		return append(word, make([]byte, 6*32)...), nil
	case hex.EncodeToString(calldata[:4]) != "70a08231":
		return nil, fmt.Errorf("unexpected call to %s", to)
	case to == chain.USDC:
		n.usdc.FillBytes(word)
	case to == chain.ALEPH:
		n.aleph.FillBytes(word)
	case to == chain.CometUSDC:
		n.supplied.FillBytes(word)
	default:
		return nil, fmt.Errorf("unknown contract %s", to)
	}
	return word, nil
}

func (n *fakeNode) GetBalance(ctx context.Context, address string) (*big.Int, error) {
	return n.eth, nil
}

func (n *fakeNode) WaitForReceipt(ctx context.Context, txHash string) (*chain.Receipt, error) {
	if n.dropped[txHash] {
		return nil, fmt.Errorf("%w: %s after 3m0s", chain.ErrReceiptTimeout, txHash)
	}
	status := "0x1"
	if n.reverted[txHash] {
		status = "0x0"
	}
	return &chain.Receipt{TransactionHash: txHash, Status: status, BlockNumber: "0x10"}, nil
}

type fakeSigner struct {
	sent []chain.Tx
}

func (s *fakeSigner) SendTransaction(ctx context.Context, tx chain.Tx) (string, error) {
	s.sent = append(s.sent, tx)
	return fmt.Sprintf("0x%064x", len(s.sent)), nil
}

type fakeMarkets struct {
	bought []string
}

func (m *fakeMarkets) ListMarkets(ctx context.Context, category string) ([]market.Market, error) {
	return []market.Market{{Slug: "eth-5k", Title: "ETH above 5k?", YesPrice: 0.3, NoPrice: 0.7}}, nil
}

func (m *fakeMarkets) BuyMarketOrder(ctx context.Context, slug, side, amount string) (*market.Order, error) {
	if slug == "missing" {
		return nil, fmt.Errorf("buy: %w", &market.APIError{Status: 404, Message: "not found"})
	}
	m.bought = append(m.bought, slug+":"+side+":"+amount)
	return &market.Order{ID: "o-9", Status: "FILLED", Filled: 2, Shares: 6.6}, nil
}

func (m *fakeMarkets) Positions(ctx context.Context) ([]market.Position, error) {
	return nil, nil
}

type fakeStreams struct{ rate *big.Int }

func (s fakeStreams) OutflowRate(ctx context.Context, account, symbol string) (*big.Int, error) {
	return s.rate, nil
}

func usdc(n int64) *big.Int { return big.NewInt(n * 1_000_000) }

func ether(milli int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(milli), big.NewInt(1e15))
}

type fixture struct {
	node    *fakeNode
	signer  *fakeSigner
	markets *fakeMarkets
	reg     *tools.Registry
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		node: &fakeNode{
			eth:      ether(50),
			usdc:     usdc(12),
			aleph:    new(big.Int).Mul(big.NewInt(100), big.NewInt(1e18)),
			supplied: usdc(3),
			slot0:    new(big.Int).Lsh(big.NewInt(100), 96),
			reverted: map[string]bool{},
			dropped:  map[string]bool{},
		},
		signer:  &fakeSigner{},
		markets: &fakeMarkets{},
		reg:     tools.NewRegistry(),
	}
	cache, err := actions.NewPriceCache()
	if err != nil {
		t.Fatalf("NewPriceCache() error = %v", err)
	}
	t.Cleanup(cache.Close)

	f.reg.Register(actions.CreateActions(&actions.Deps{
		Node:          f.node,
		Signer:        f.signer,
		Markets:       f.markets,
		Streams:       fakeStreams{rate: big.NewInt(1_000_000_000_000_000_000 / 3600)}, // ~1 ALEPH per hour
		Prices:        cache,
		WalletAddress: agent,
		ChainName:     "base",
	})...)
	return f
}

func TestCreateActions_CoversEverySubset(t *testing.T) {
	f := newFixture(t)
	for _, set := range [][]string{actions.InventorySet, actions.SurvivalSet, actions.StrategySet} {
		if defs := f.reg.Definitions(set...); len(defs) != len(set) {
			t.Errorf("subset %v resolved to %d definitions", set, len(defs))
		}
	}
}

func TestGetWalletState(t *testing.T) {
	f := newFixture(t)

	var got map[string]string
	out := f.reg.Invoke(context.Background(), actions.GetWalletState, "{}")
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("result is not JSON: %q", out)
	}
	if got["usdc_balance"] != "12" || got["eth_balance"] != "0.05" || got["aleph_balance"] != "100" {
		t.Errorf("wallet state = %v", got)
	}
}

func TestGetComputeCreditInfo(t *testing.T) {
	f := newFixture(t)

	var got struct {
		Balance   float64 `json:"aleph_balance"`
		PerHour   float64 `json:"aleph_consumed_per_hour"`
		HoursLeft int64   `json:"hours_left_until_death"`
		Price     float64 `json:"aleph_per_eth"`
	}
	out := f.reg.Invoke(context.Background(), actions.GetComputeCreditInfo, "{}")
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("result is not JSON: %q", out)
	}
	if got.Balance != 100 || got.PerHour != 1 || got.HoursLeft != 100 {
		t.Errorf("credit info = %+v", got)
	}
	if got.Price != 10000 {
		t.Errorf("aleph_per_eth = %v, want 10000", got.Price)
	}
}

func TestSwapETHToCredit(t *testing.T) {
	f := newFixture(t)

	out := f.reg.Invoke(context.Background(), actions.SwapETHToCredit, `{"ethAmount":"0.01","thought":"credit is low"}`)
	if !strings.HasPrefix(out, "Swap transaction sent. Hash: 0x") {
		t.Fatalf("result = %q", out)
	}
	if len(f.signer.sent) != 1 {
		t.Fatalf("sent %d transactions, want 1", len(f.signer.sent))
	}
	tx := f.signer.sent[0]
	if tx.To != chain.SwapRouter02 || tx.Value.Cmp(ether(10)) != 0 {
		t.Errorf("tx = %+v", tx)
	}
}

func TestSwapETHToCredit_InsufficientBalance(t *testing.T) {
	f := newFixture(t)

	out := f.reg.Invoke(context.Background(), actions.SwapETHToCredit, `{"ethAmount":"1","thought":"all in"}`)
	if !strings.HasPrefix(out, "Error: Insufficient ETH balance") {
		t.Fatalf("result = %q", out)
	}
	if len(f.signer.sent) != 0 {
		t.Errorf("transaction sent despite insufficient balance")
	}
}

func TestLendingSupply_ApprovesThenSupplies(t *testing.T) {
	f := newFixture(t)

	out := f.reg.Invoke(context.Background(), actions.LendingSupply, `{"amount":"5","thought":"idle above target"}`)
	if !strings.Contains(out, "Supplied 5 USDC to Compound.") || !strings.Contains(out, "Transaction hash: 0x") {
		t.Fatalf("result = %q", out)
	}
	if len(f.signer.sent) != 2 {
		t.Fatalf("sent %d transactions, want approve + supply", len(f.signer.sent))
	}
	if f.signer.sent[0].To != chain.USDC || f.signer.sent[1].To != chain.CometUSDC {
		t.Errorf("transaction targets = %s, %s", f.signer.sent[0].To, f.signer.sent[1].To)
	}
	supplyHash, approveHash := fmt.Sprintf("0x%064x", 2), fmt.Sprintf("0x%064x", 1)
	if !strings.Contains(out, "Transaction hash: "+supplyHash) || !strings.Contains(out, "Approve hash: "+approveHash) {
		t.Errorf("expected supply and approve hashes in %q", out)
	}
	if strings.Index(out, supplyHash) > strings.Index(out, approveHash) {
		t.Errorf("supply hash should come first: %q", out)
	}
}

func TestLendingWithdraw_DroppedTransaction(t *testing.T) {
	f := newFixture(t)
	f.node.dropped[fmt.Sprintf("0x%064x", 1)] = true

	out := f.reg.Invoke(context.Background(), actions.LendingWithdraw, `{"amount":"2","thought":"need funds"}`)
	if !strings.HasPrefix(out, "Error withdrawing from Compound:") || !strings.Contains(out, "not mined in time") {
		t.Fatalf("result = %q", out)
	}
}

func TestLendingSupply_RevertedApproval(t *testing.T) {
	f := newFixture(t)
	f.node.reverted[fmt.Sprintf("0x%064x", 1)] = true

	out := f.reg.Invoke(context.Background(), actions.LendingSupply, `{"amount":"5","thought":"deploy"}`)
	if !strings.HasPrefix(out, "Error approving token") {
		t.Fatalf("result = %q", out)
	}
	if len(f.signer.sent) != 1 {
		t.Errorf("supply sent after failed approval")
	}
}

func TestLendingWithdraw_MoreThanSupplied(t *testing.T) {
	f := newFixture(t)

	out := f.reg.Invoke(context.Background(), actions.LendingWithdraw, `{"amount":"4","thought":"need funds"}`)
	if !strings.HasPrefix(out, "Error: Insufficient balance. Trying to withdraw 4, but only have 3 supplied") {
		t.Fatalf("result = %q", out)
	}
}

func TestLendingGetPortfolio(t *testing.T) {
	f := newFixture(t)

	out := f.reg.Invoke(context.Background(), actions.LendingGetPortfolio, `{}`)
	if !strings.Contains(out, "USDC supplied:** 3") || !strings.Contains(out, "Total USDC: 15") {
		t.Errorf("portfolio = %q", out)
	}
}

func TestMarketBuy(t *testing.T) {
	f := newFixture(t)

	out := f.reg.Invoke(context.Background(), actions.MarketBuy, `{"marketSlug":"eth-5k","side":"NO","amountUsdc":"2","thought":"mispriced"}`)
	if !strings.HasPrefix(out, "Order o-9 filled") {
		t.Fatalf("result = %q", out)
	}
	if len(f.markets.bought) != 1 || f.markets.bought[0] != "eth-5k:NO:2" {
		t.Errorf("orders = %v", f.markets.bought)
	}

	out = f.reg.Invoke(context.Background(), actions.MarketBuy, `{"marketSlug":"missing","side":"YES","amountUsdc":"1","thought":"x"}`)
	if out != `Error: unknown market "missing"` {
		t.Errorf("result = %q", out)
	}

	out = f.reg.Invoke(context.Background(), actions.MarketBuy, `{"marketSlug":"eth-5k","side":"MAYBE","amountUsdc":"1","thought":"x"}`)
	if !strings.HasPrefix(out, "Error executing market_buy") {
		t.Errorf("invalid side accepted: %q", out)
	}
}

func TestTriggers_EchoArguments(t *testing.T) {
	f := newFixture(t)

	out := f.reg.Invoke(context.Background(), actions.TriggerSurvival, `{"reason":"idle below threshold","idleUsdc":"2"}`)
	var got map[string]interface{}
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("result is not JSON: %q", out)
	}
	if got["triggered"] != true || got["reason"] != "idle below threshold" || got["idleUsdc"] != "2" {
		t.Errorf("trigger result = %v", got)
	}
}
