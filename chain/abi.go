package chain

import (
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"
)

// Pre-computed function selectors (first 4 bytes of keccak256 of signature).
var (
	// ERC20
	SelectorBalanceOf = mustDecodeHex("70a08231") // balanceOf(address)
	SelectorApprove   = mustDecodeHex("095ea7b3") // approve(address,uint256)

	// Compound III Comet
	SelectorCometSupply   = mustDecodeHex("f2b9fdb8") // supply(address,uint256)
	SelectorCometWithdraw = mustDecodeHex("f3fef3a3") // withdraw(address,uint256)

	// Uniswap V3
	SelectorExactInputSingle = mustDecodeHex("04e45aaf") // exactInputSingle((address,address,uint24,address,uint256,uint256,uint160))
	SelectorSlot0            = mustDecodeHex("3850c7bd") // slot0()
)

func mustDecodeHex(s string) []byte {
	b, err := hex.DecodeString(s)
	if err != nil {
		panic(fmt.Sprintf("invalid hex: %s", s))
	}
	return b
}

// encodeAddress pads a 20-byte Ethereum address to 32 bytes (left-padded with zeros).
func encodeAddress(addr string) []byte {
	addr = strings.TrimPrefix(addr, "0x")
	b, _ := hex.DecodeString(addr)
	padded := make([]byte, 32)
	copy(padded[32-len(b):], b)
	return padded
}

// encodeUint256 encodes a big.Int as a 32-byte left-padded value.
func encodeUint256(n *big.Int) []byte {
	padded := make([]byte, 32)
	if n == nil {
		return padded
	}
	b := n.Bytes()
	copy(padded[32-len(b):], b)
	return padded
}

// DecodeUint256 decodes the first 32-byte big-endian word of data.
func DecodeUint256(data []byte) (*big.Int, error) {
	if len(data) < 32 {
		return nil, fmt.Errorf("short result: %d bytes", len(data))
	}
	return new(big.Int).SetBytes(data[:32]), nil
}

// EncodeBalanceOf builds calldata for balanceOf(address). Works for ERC20
// tokens and for a Comet market's base-asset balance.
func EncodeBalanceOf(account string) []byte {
	data := make([]byte, 0, 4+32)
	data = append(data, SelectorBalanceOf...)
	data = append(data, encodeAddress(account)...)
	return data
}

// EncodeApprove builds calldata for ERC20.approve(spender, amount).
func EncodeApprove(spender string, amount *big.Int) []byte {
	data := make([]byte, 0, 4+64)
	data = append(data, SelectorApprove...)
	data = append(data, encodeAddress(spender)...)
	data = append(data, encodeUint256(amount)...)
	return data
}

// EncodeCometSupply builds calldata for Comet.supply(asset, amount).
func EncodeCometSupply(asset string, amount *big.Int) []byte {
	data := make([]byte, 0, 4+64)
	data = append(data, SelectorCometSupply...)
	data = append(data, encodeAddress(asset)...)
	data = append(data, encodeUint256(amount)...)
	return data
}

// EncodeCometWithdraw builds calldata for Comet.withdraw(asset, amount).
func EncodeCometWithdraw(asset string, amount *big.Int) []byte {
	data := make([]byte, 0, 4+64)
	data = append(data, SelectorCometWithdraw...)
	data = append(data, encodeAddress(asset)...)
	data = append(data, encodeUint256(amount)...)
	return data
}

// ExactInputSingleParams mirrors SwapRouter02's ExactInputSingleParams.
type ExactInputSingleParams struct {
	TokenIn           string
	TokenOut          string
	Fee               uint32
	Recipient         string
	AmountIn          *big.Int
	AmountOutMinimum  *big.Int
	SqrtPriceLimitX96 *big.Int
}

// EncodeExactInputSingle builds calldata for SwapRouter02.exactInputSingle.
// The params tuple is static so it is encoded inline.
func EncodeExactInputSingle(p ExactInputSingleParams) []byte {
	data := make([]byte, 0, 4+7*32)
	data = append(data, SelectorExactInputSingle...)
	data = append(data, encodeAddress(p.TokenIn)...)
	data = append(data, encodeAddress(p.TokenOut)...)
	data = append(data, encodeUint256(big.NewInt(int64(p.Fee)))...)
	data = append(data, encodeAddress(p.Recipient)...)
	data = append(data, encodeUint256(p.AmountIn)...)
	data = append(data, encodeUint256(p.AmountOutMinimum)...)
	data = append(data, encodeUint256(p.SqrtPriceLimitX96)...)
	return data
}

// EncodeSlot0 builds calldata for UniswapV3Pool.slot0().
func EncodeSlot0() []byte {
	return append([]byte(nil), SelectorSlot0...)
}

// PriceFromSlot0 converts a slot0 result into token1 per token0:
// (sqrtPriceX96 / 2^96)^2.
func PriceFromSlot0(result []byte) (*big.Float, error) {
	sqrtPrice, err := DecodeUint256(result)
	if err != nil {
		return nil, err
	}
	q96 := new(big.Float).SetInt(new(big.Int).Lsh(big.NewInt(1), 96))
	ratio := new(big.Float).Quo(new(big.Float).SetInt(sqrtPrice), q96)
	return new(big.Float).Mul(ratio, ratio), nil
}

// HexEncode returns 0x-prefixed hex encoding of data.
func HexEncode(data []byte) string {
	return "0x" + hex.EncodeToString(data)
}
