package actions

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"math"
	"math/big"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/becomeliminal/nim-autopilot/chain"
	"github.com/becomeliminal/nim-autopilot/core"
	"github.com/becomeliminal/nim-autopilot/tools"
)

const (
	priceTTL = 30 * time.Second

	// noConsumptionHours is reported when no credit stream is running.
	noConsumptionHours = 1000000
)

// ────────────────────────────────────────────────────────────────────────────
// get_compute_credit_info
// ────────────────────────────────────────────────────────────────────────────

func createGetComputeCreditInfoAction(deps *Deps) core.Action {
	return tools.New(GetComputeCreditInfo).
		Description("Get your compute credit (ALEPH) balance, hourly consumption, estimated hours of compute left, " +
			"ETH balance and the ALEPH/ETH price. Use this to decide whether you need to buy more credit.").
		Schema(tools.EmptySchema()).
		Handler(func(ctx context.Context, _ json.RawMessage) (string, error) {
			info, err := creditInfo(ctx, deps)
			if err != nil {
				return fmt.Sprintf("Error getting compute credit info: %v", err), nil
			}
			return toJSON(info)
		}).
		Build()
}

type creditInfoResult struct {
	AlephBalance     float64 `json:"aleph_balance"`
	AlephPerHour     float64 `json:"aleph_consumed_per_hour"`
	HoursLeft        int64   `json:"hours_left_until_death"`
	ETHBalance       float64 `json:"eth_balance"`
	AlephPerETH      float64 `json:"aleph_per_eth"`
	StreamsAvailable bool    `json:"streams_available"`
}

func creditInfo(ctx context.Context, deps *Deps) (*creditInfoResult, error) {
	w := deps.wallet()

	var (
		alephRaw, ethRaw, flowRate *big.Int
		price                      float64
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		alephRaw, err = w.TokenBalance(gctx, chain.ALEPH)
		return err
	})
	g.Go(func() error {
		var err error
		ethRaw, err = w.NativeBalance(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		price, err = alephPerETH(gctx, deps)
		return err
	})
	if deps.Streams != nil {
		g.Go(func() error {
			rate, err := deps.Streams.OutflowRate(gctx, deps.WalletAddress, "aleph")
			if err != nil {
				// Balances are still reported without consumption data.
				log.Printf("[CREDIT] stream query failed: %v", err)
				return nil
			}
			flowRate = rate
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	balance := toFloat(alephRaw, chain.ALEPHDecimals)
	perHour := 0.0
	if flowRate != nil {
		perHour = toFloat(new(big.Int).Mul(flowRate, big.NewInt(3600)), chain.ALEPHDecimals)
	}
	hoursLeft := int64(noConsumptionHours)
	if perHour > 0 {
		hoursLeft = int64(math.Round(balance / perHour))
	}

	return &creditInfoResult{
		AlephBalance:     round(balance, 3),
		AlephPerHour:     round(perHour, 3),
		HoursLeft:        hoursLeft,
		ETHBalance:       round(toFloat(ethRaw, chain.NativeDecimals), 4),
		AlephPerETH:      round(price, 2),
		StreamsAvailable: flowRate != nil,
	}, nil
}

// alephPerETH reads the pool price, served from cache when fresh.
func alephPerETH(ctx context.Context, deps *Deps) (float64, error) {
	const key = "aleph_per_eth"
	if deps.Prices != nil {
		if v, ok := deps.Prices.Get(key); ok {
			if p, ok := v.(float64); ok {
				return p, nil
			}
		}
	}

	result, err := deps.Node.EthCall(ctx, chain.ALEPHWETHPool, chain.EncodeSlot0())
	if err != nil {
		return 0, fmt.Errorf("read pool price: %w", err)
	}
	price, err := chain.PriceFromSlot0(result)
	if err != nil {
		return 0, fmt.Errorf("decode pool price: %w", err)
	}
	p, _ := price.Float64()

	if deps.Prices != nil {
		deps.Prices.SetWithTTL(key, p, 1, priceTTL)
	}
	return p, nil
}

// ────────────────────────────────────────────────────────────────────────────
// swap_eth_to_credit
// ────────────────────────────────────────────────────────────────────────────

func createSwapETHToCreditAction(deps *Deps) core.Action {
	return tools.New(SwapETHToCredit).
		Description("Swap ETH to ALEPH via Uniswap V3 to pay for your compute. Provide the amount of ETH to swap.").
		Schema(tools.BuildSchemaWithThought(map[string]interface{}{
			"ethAmount": tools.DecimalProperty("Amount of ETH to swap, e.g. '0.01'"),
		}, true, "ethAmount")).
		Handler(func(ctx context.Context, args json.RawMessage) (string, error) {
			var input struct {
				core.BaseInput
				ETHAmount string `json:"ethAmount"`
			}
			if err := json.Unmarshal(args, &input); err != nil {
				return "", err
			}
			noteThought(SwapETHToCredit, input.BaseInput)

			amountWei, err := chain.ParseUnits(input.ETHAmount, chain.NativeDecimals)
			if err != nil {
				return "", err
			}
			if amountWei.Sign() == 0 {
				return "Error: ethAmount must be greater than zero", nil
			}

			balance, err := deps.Node.GetBalance(ctx, deps.WalletAddress)
			if err != nil {
				return fmt.Sprintf("Error swapping ETH to ALEPH: %v", err), nil
			}
			if balance.Cmp(amountWei) < 0 {
				return fmt.Sprintf("Error: Insufficient ETH balance. You have %s, but trying to swap %s",
					chain.FormatUnits(balance, chain.NativeDecimals), input.ETHAmount), nil
			}

			data := chain.EncodeExactInputSingle(chain.ExactInputSingleParams{
				TokenIn:   chain.WETH,
				TokenOut:  chain.ALEPH,
				Fee:       chain.ALEPHPoolFee,
				Recipient: deps.WalletAddress,
				AmountIn:  amountWei,
			})
			txHash, err := deps.Signer.SendTransaction(ctx, chain.Tx{
				To:    chain.SwapRouter02,
				Data:  data,
				Value: amountWei,
			})
			if err != nil {
				return fmt.Sprintf("Error swapping ETH to ALEPH: %v", err), nil
			}
			return fmt.Sprintf("Swap transaction sent. Hash: %s", txHash), nil
		}).
		Build()
}

func toFloat(n *big.Int, decimals int) float64 {
	if n == nil {
		return 0
	}
	f, _ := new(big.Float).Quo(
		new(big.Float).SetInt(n),
		new(big.Float).SetInt(new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)),
	).Float64()
	return f
}

func round(f float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(f*p) / p
}
