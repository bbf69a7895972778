package chain

// Base mainnet contract addresses and constants.
const (
	ChainIDBase = 8453

	// Tokens on Base
	USDC  = "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913" // Native USDC (Circle)
	WETH  = "0x4200000000000000000000000000000000000006"
	ALEPH = "0xc0Fbc4967259786C743361a5885ef49380473dCF" // compute credit token

	// Compound III (Comet) USDC market
	CometUSDC = "0xb125E6687d4313864e53df431d5425969c15Eb2F"

	// Uniswap V3
	SwapRouter02  = "0x2626664c2603336E57B271c5C0b26F421741e481"
	ALEPHWETHPool = "0xe11C66b25F0e9a9eBEf1616B43424CC6E2168FC8"
	ALEPHPoolFee  = 10000

	USDCDecimals   = 6
	NativeDecimals = 18
	ALEPHDecimals  = 18

	BaseRPC = "https://mainnet.base.org"
)
