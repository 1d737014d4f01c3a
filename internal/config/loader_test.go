package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "mtwatch.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadExpandsEnvironmentVariables(t *testing.T) {
	t.Setenv("METAAPI_TOKEN", "secret-token")
	path := writeConfig(t, `
api:
  token: ${METAAPI_TOKEN}
account:
  id: acc-1
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.API.Token != "secret-token" {
		t.Errorf("Token = %q, want expanded env value", cfg.API.Token)
	}
}

func TestLoadWithDefaults(t *testing.T) {
	path := writeConfig(t, `
api:
  token: t
account:
  id: acc-1
`)

	cfg, err := LoadWithDefaults(path)
	if err != nil {
		t.Fatalf("LoadWithDefaults: %v", err)
	}
	if cfg.API.Domain != "agiliumtrade.agiliumtrade.ai" {
		t.Errorf("Domain = %q, want default", cfg.API.Domain)
	}
	if cfg.API.Application != "MetaApi" {
		t.Errorf("Application = %q, want MetaApi", cfg.API.Application)
	}
	if cfg.API.RequestTimeout != 60*time.Second {
		t.Errorf("RequestTimeout = %v, want 60s", cfg.API.RequestTimeout)
	}
}

func TestLoadAndValidateRequiresToken(t *testing.T) {
	path := writeConfig(t, `
account:
  id: acc-1
`)
	if _, err := LoadAndValidate(path); err == nil {
		t.Error("expected validation error for missing token")
	}
}

func TestLoadAndValidateRequiresAccount(t *testing.T) {
	path := writeConfig(t, `
api:
  token: t
`)
	if _, err := LoadAndValidate(path); err == nil {
		t.Error("expected validation error for missing account id")
	}
}

func TestLoadParsesFullConfig(t *testing.T) {
	path := writeConfig(t, `
api:
  token: t
  domain: custom.domain.ai
  application: TradingBot
  request_timeout: 30s
account:
  id: acc-1
  symbols: [EURUSD, GBPUSD]
packet_log:
  enabled: true
  file_number_limit: 6
  log_file_size_in_hours: 2
  compress_prices: false
state:
  update_position_profits: false
`)

	cfg, err := LoadAndValidate(path)
	if err != nil {
		t.Fatalf("LoadAndValidate: %v", err)
	}
	if cfg.API.Domain != "custom.domain.ai" || cfg.API.Application != "TradingBot" {
		t.Errorf("api = %+v", cfg.API)
	}
	if len(cfg.Account.Symbols) != 2 {
		t.Errorf("symbols = %v, want 2", cfg.Account.Symbols)
	}
	if !cfg.PacketLog.Enabled || cfg.PacketLog.FileNumberLimit != 6 {
		t.Errorf("packet_log = %+v", cfg.PacketLog)
	}
	if cfg.PacketLog.CompressPrices == nil || *cfg.PacketLog.CompressPrices {
		t.Error("compress_prices should parse as explicit false")
	}
	if cfg.State.UpdatePositionProfits == nil || *cfg.State.UpdatePositionProfits {
		t.Error("update_position_profits should parse as explicit false")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}
