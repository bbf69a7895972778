package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/becomeliminal/nim-autopilot/config"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := config.Load(config.NewViper())
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.CycleInterval != 60*time.Second {
		t.Errorf("CycleInterval = %v, want 60s", cfg.CycleInterval)
	}
	if cfg.MaxRounds != 10 {
		t.Errorf("MaxRounds = %d, want 10", cfg.MaxRounds)
	}
	if cfg.SurvivalThresholdUSDC != 3 || cfg.IdleTargetUSDC != 10 {
		t.Errorf("thresholds = %v / %v", cfg.SurvivalThresholdUSDC, cfg.IdleTargetUSDC)
	}
	if cfg.ListenAddr != ":8080" || len(cfg.RPCURLs) != 1 {
		t.Errorf("cfg = %+v", cfg)
	}
}

func TestLoad_Environment(t *testing.T) {
	t.Setenv("AUTOPILOT_CYCLE_INTERVAL", "5m")
	t.Setenv("AUTOPILOT_MAX_ROUNDS", "4")
	t.Setenv("AUTOPILOT_RPC_URLS", "https://a.example, https://b.example")
	t.Setenv("AUTOPILOT_MEMORY_ENABLED", "true")
	t.Setenv("AUTOPILOT_IDLE_TARGET_USDC", "25.5")

	cfg, err := config.Load(config.NewViper())
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.CycleInterval != 5*time.Minute {
		t.Errorf("CycleInterval = %v", cfg.CycleInterval)
	}
	if cfg.MaxRounds != 4 {
		t.Errorf("MaxRounds = %d", cfg.MaxRounds)
	}
	if len(cfg.RPCURLs) != 2 || cfg.RPCURLs[1] != "https://b.example" {
		t.Errorf("RPCURLs = %q", cfg.RPCURLs)
	}
	if !cfg.MemoryEnabled {
		t.Error("MemoryEnabled = false")
	}
	if cfg.IdleTargetUSDC != 25.5 {
		t.Errorf("IdleTargetUSDC = %v", cfg.IdleTargetUSDC)
	}
}

func TestLoadEnvFiles_LaterOverrides(t *testing.T) {
	dir := t.TempDir()
	write := func(name, content string) {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o600); err != nil {
			t.Fatal(err)
		}
	}
	write(".env", "AUTOPILOT_CHAIN_NAME=base-sepolia\nAUTOPILOT_SINK_CHANNEL=base\n")
	write(".env.prod", "AUTOPILOT_CHAIN_NAME=base\n")

	// Registered with t.Setenv so the values are restored after the test.
	t.Setenv("AUTOPILOT_CHAIN_NAME", "")
	t.Setenv("AUTOPILOT_SINK_CHANNEL", "")

	if err := config.LoadEnvFiles(dir); err != nil {
		t.Fatalf("LoadEnvFiles() error = %v", err)
	}
	cfg, err := config.Load(config.NewViper())
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.ChainName != "base" {
		t.Errorf("ChainName = %q, want .env.prod to win", cfg.ChainName)
	}
	if cfg.SinkChannel != "base" {
		t.Errorf("SinkChannel = %q", cfg.SinkChannel)
	}
}

func valid() *config.Config {
	return &config.Config{
		CycleInterval:         time.Minute,
		MaxRounds:             10,
		LLMProvider:           "anthropic",
		LLMAPIKey:             "key",
		SurvivalThresholdUSDC: 3,
		IdleTargetUSDC:        10,
		WalletAddress:         "0x1111111111111111111111111111111111111111",
		RPCURLs:               []string{"https://rpc.example"},
	}
}

func TestValidate(t *testing.T) {
	if err := valid().Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*config.Config)
		want   string
	}{
		{"missing wallet", func(c *config.Config) { c.WalletAddress = "" }, "wallet address"},
		{"missing key", func(c *config.Config) { c.LLMAPIKey = "" }, "API key"},
		{"bad provider", func(c *config.Config) { c.LLMProvider = "gemini" }, "invalid llm provider"},
		{"openai without base url", func(c *config.Config) { c.LLMProvider = "openai" }, "base url"},
		{"zero interval", func(c *config.Config) { c.CycleInterval = 0 }, "cycle interval"},
		{"target not above threshold", func(c *config.Config) { c.IdleTargetUSDC = 3 }, "idle target"},
		{"no rpc", func(c *config.Config) { c.RPCURLs = nil }, "RPC URL"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(c)
			err := c.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Validate() error = %v, want containing %q", err, tt.want)
			}
		})
	}
}
