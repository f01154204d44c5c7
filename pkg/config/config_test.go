package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

const minimalConfig = `
symbol: BTCUSDT
feed:
  source: websocket
  websocket_url: wss://example.test
`

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalConfig))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 8080 {
		t.Fatalf("default port: got %d", cfg.Server.Port)
	}
	if cfg.Psi.Window != 20 || cfg.Psi.Threshold != 0.7 {
		t.Fatalf("psi defaults: %+v", cfg.Psi)
	}
	if cfg.Features.VectorSize != 57 {
		t.Fatalf("vector size default: got %d", cfg.Features.VectorSize)
	}
	if cfg.Trading.Mode != "paper" {
		t.Fatalf("trading mode default: got %q", cfg.Trading.Mode)
	}
	if cfg.Inference.Timeout != 3*time.Second {
		t.Fatalf("inference timeout default: got %v", cfg.Inference.Timeout)
	}
	if cfg.BaseTimeframeMinutes() != 1 {
		t.Fatalf("base timeframe default: got %d", cfg.BaseTimeframeMinutes())
	}
}

func TestLoadRequiresSymbol(t *testing.T) {
	if _, err := Load(writeConfig(t, "environment: dev\n")); err == nil {
		t.Fatalf("expected validation error for missing symbol")
	}
}

func TestValidateRejectsNonMultipleTimeframes(t *testing.T) {
	body := minimalConfig + "timeframes: [5, 7]\n"
	if _, err := Load(writeConfig(t, body)); err == nil {
		t.Fatalf("expected error for 7m not multiple of 5m base")
	}
}

func TestValidateKafkaFeedNeedsBrokers(t *testing.T) {
	body := `
symbol: BTCUSDT
feed:
  source: kafka
`
	if _, err := Load(writeConfig(t, body)); err == nil {
		t.Fatalf("expected error for kafka feed without brokers")
	}
}

func TestLoadWithEnvOverrides(t *testing.T) {
	t.Setenv("SYMBOL", "ETHUSDT")
	t.Setenv("PSI_SENSITIVITY", "2.5")
	t.Setenv("TIMEFRAMES", "1,5,15")

	cfg, err := LoadWithEnv(writeConfig(t, minimalConfig))
	if err != nil {
		t.Fatalf("LoadWithEnv: %v", err)
	}
	if cfg.Symbol != "ETHUSDT" {
		t.Fatalf("symbol override: got %q", cfg.Symbol)
	}
	if cfg.Psi.Sensitivity != 2.5 {
		t.Fatalf("sensitivity override: got %v", cfg.Psi.Sensitivity)
	}
	if len(cfg.TimeframeMinutes) != 3 || cfg.TimeframeMinutes[2] != 15 {
		t.Fatalf("timeframes override: %v", cfg.TimeframeMinutes)
	}
}
