package chain

import (
	"context"
	"fmt"
	"log"
	"math/big"

	"golang.org/x/sync/errgroup"

	"github.com/becomeliminal/nim-autopilot/core"
)

// Node is the read side of a chain endpoint. *RPCClient implements it.
type Node interface {
	EthCall(ctx context.Context, to string, calldata []byte) ([]byte, error)
	GetBalance(ctx context.Context, address string) (*big.Int, error)
}

// WalletReader reads the agent's balances.
type WalletReader struct {
	rpc       Node
	address   string
	chainName string
}

// NewWalletReader creates a reader for the wallet at address.
func NewWalletReader(rpc Node, address, chainName string) *WalletReader {
	return &WalletReader{rpc: rpc, address: address, chainName: chainName}
}

// Address returns the wallet address.
func (w *WalletReader) Address() string {
	return w.address
}

// TokenBalance returns the ERC20 balance of the wallet in base units.
func (w *WalletReader) TokenBalance(ctx context.Context, token string) (*big.Int, error) {
	return w.BalanceOf(ctx, token, w.address)
}

// BalanceOf calls balanceOf(account) on contract.
func (w *WalletReader) BalanceOf(ctx context.Context, contract, account string) (*big.Int, error) {
	result, err := w.rpc.EthCall(ctx, contract, EncodeBalanceOf(account))
	if err != nil {
		return nil, fmt.Errorf("balanceOf on %s: %w", contract, err)
	}
	return DecodeUint256(result)
}

// NativeBalance returns the wallet's gas token balance in wei.
func (w *WalletReader) NativeBalance(ctx context.Context) (*big.Int, error) {
	return w.rpc.GetBalance(ctx, w.address)
}

// Snapshot reads gas, stable and credit balances concurrently. Any
// failed read fails the snapshot.
func (w *WalletReader) Snapshot(ctx context.Context) (core.WalletSnapshot, error) {
	var native, stable, credit *big.Int

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		native, err = w.NativeBalance(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		stable, err = w.TokenBalance(gctx, USDC)
		return err
	})
	g.Go(func() error {
		var err error
		credit, err = w.TokenBalance(gctx, ALEPH)
		return err
	})
	if err := g.Wait(); err != nil {
		return core.WalletSnapshot{}, fmt.Errorf("read balances: %w", err)
	}

	snap := core.WalletSnapshot{
		Address:       w.address,
		ChainName:     w.chainName,
		NativeBalance: FormatUnits(native, NativeDecimals),
		StableBalance: FormatUnits(stable, USDCDecimals),
		CreditBalance: FormatUnits(credit, ALEPHDecimals),
	}
	log.Printf("[WALLET] %s ETH: %s | USDC: %s | ALEPH: %s", snap.Address, snap.NativeBalance, snap.StableBalance, snap.CreditBalance)
	return snap, nil
}
