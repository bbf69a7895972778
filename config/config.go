// Package config loads the agent's settings from .env files, the
// environment and command-line flags.
package config

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/becomeliminal/nim-autopilot/chain"
)

// EnvPrefix prefixes every environment variable, e.g. AUTOPILOT_MAX_ROUNDS.
const EnvPrefix = "AUTOPILOT"

// EnvFiles are loaded in order; later files override earlier ones.
var EnvFiles = []string{".env", ".env.local", ".env.prod"}

// Config is the full agent configuration.
type Config struct {
	CycleInterval time.Duration `mapstructure:"cycle_interval"`
	MaxRounds     int           `mapstructure:"max_rounds"`

	LLMProvider    string `mapstructure:"llm_provider"` // anthropic | openai
	LLMAPIKey      string `mapstructure:"llm_api_key"`
	LLMBaseURL     string `mapstructure:"llm_base_url"`
	ModelInventory string `mapstructure:"model_inventory"`
	ModelSurvival  string `mapstructure:"model_survival"`
	ModelStrategy  string `mapstructure:"model_strategy"`
	ModelSummary   string `mapstructure:"model_summary"`

	SurvivalThresholdUSDC float64 `mapstructure:"survival_threshold_usdc"`
	IdleTargetUSDC        float64 `mapstructure:"idle_target_usdc"`

	WalletAddress string   `mapstructure:"wallet_address"`
	ChainName     string   `mapstructure:"chain_name"`
	RPCURLs       []string `mapstructure:"rpc_urls"`
	SignerURL     string   `mapstructure:"signer_url"`
	SignerToken   string   `mapstructure:"signer_token"`

	MarketURL         string `mapstructure:"market_url"`
	MarketAPIKey      string `mapstructure:"market_api_key"`
	CreditSubgraphURL string `mapstructure:"credit_subgraph_url"`

	SinkURL     string `mapstructure:"sink_url"`
	SinkChannel string `mapstructure:"sink_channel"`
	SinkToken   string `mapstructure:"sink_token"`
	JournalPath string `mapstructure:"journal_path"`
	RedisAddr   string `mapstructure:"redis_addr"`
	ListenAddr  string `mapstructure:"listen_addr"`

	MemoryEnabled bool `mapstructure:"memory_enabled"`
}

// defaults registers every key so environment variables are seen by
// Unmarshal even when no config file mentions them.
var defaults = map[string]interface{}{
	"cycle_interval":          "60s",
	"max_rounds":              10,
	"llm_provider":            "anthropic",
	"llm_api_key":             "",
	"llm_base_url":            "",
	"model_inventory":         "claude-haiku-4-5",
	"model_survival":          "claude-haiku-4-5",
	"model_strategy":          "claude-sonnet-4-5",
	"model_summary":           "claude-haiku-4-5",
	"survival_threshold_usdc": 3.0,
	"idle_target_usdc":        10.0,
	"wallet_address":          "",
	"chain_name":              "base",
	"rpc_urls":                []string{chain.BaseRPC},
	"signer_url":              "",
	"signer_token":            "",
	"market_url":              "",
	"market_api_key":          "",
	"credit_subgraph_url":     "",
	"sink_url":                "",
	"sink_channel":            "",
	"sink_token":              "",
	"journal_path":            "autopilot.db",
	"redis_addr":              "",
	"listen_addr":             ":8080",
	"memory_enabled":          false,
}

// LoadEnvFiles loads EnvFiles from dir, skipping files that do not exist.
func LoadEnvFiles(dir string) error {
	for _, name := range EnvFiles {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err != nil {
			continue
		}
		if err := godotenv.Overload(path); err != nil {
			return fmt.Errorf("load %s: %w", name, err)
		}
		log.Printf("[CONFIG] loaded %s", name)
	}
	return nil
}

// NewViper returns a viper instance with defaults and environment binding.
func NewViper() *viper.Viper {
	v := viper.New()
	for k, val := range defaults {
		v.SetDefault(k, val)
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	return v
}

// Load unmarshals v into a Config.
func Load(v *viper.Viper) (*Config, error) {
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.RPCURLs = splitList(cfg.RPCURLs)
	return cfg, nil
}

// splitList flattens comma-separated entries and drops blanks.
func splitList(in []string) []string {
	var out []string
	for _, item := range in {
		for _, part := range strings.Split(item, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.WalletAddress == "" {
		return fmt.Errorf("wallet address is required")
	}
	if c.LLMAPIKey == "" {
		return fmt.Errorf("LLM API key is required")
	}
	switch c.LLMProvider {
	case "anthropic", "openai":
	default:
		return fmt.Errorf("invalid llm provider: %s (must be anthropic or openai)", c.LLMProvider)
	}
	if c.LLMProvider == "openai" && c.LLMBaseURL == "" {
		return fmt.Errorf("llm base url is required for the openai provider")
	}
	if c.CycleInterval <= 0 {
		return fmt.Errorf("cycle interval must be positive, got %s", c.CycleInterval)
	}
	if c.MaxRounds <= 0 {
		return fmt.Errorf("max rounds must be positive, got %d", c.MaxRounds)
	}
	if c.IdleTargetUSDC <= c.SurvivalThresholdUSDC {
		return fmt.Errorf("idle target (%g) must be above the survival threshold (%g)",
			c.IdleTargetUSDC, c.SurvivalThresholdUSDC)
	}
	if len(c.RPCURLs) == 0 {
		return fmt.Errorf("at least one RPC URL is required")
	}
	return nil
}
