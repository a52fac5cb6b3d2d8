package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	for _, k := range []string{"CACHE_DURATION", "DEBOUNCE_WINDOW", "POLL_INTERVAL", "HOUSE_EDGE", "CHAIN_ID", "SETTLE_DELAY"} {
		t.Setenv(k, "")
	}

	cfg := Load()

	if cfg.CacheDuration != 3*time.Second {
		t.Fatalf("кэш по умолчанию 3s, получили %v", cfg.CacheDuration)
	}
	if cfg.DebounceWindow != 300*time.Millisecond {
		t.Fatalf("debounce по умолчанию 300ms, получили %v", cfg.DebounceWindow)
	}
	if cfg.PollInterval != 5*time.Second || cfg.SettleDelay != 2*time.Second {
		t.Fatalf("неверные интервалы: poll=%v settle=%v", cfg.PollInterval, cfg.SettleDelay)
	}
	if cfg.HouseEdge != 0.99 {
		t.Fatalf("house edge по умолчанию 0.99, получили %v", cfg.HouseEdge)
	}
	if cfg.ChainID != 1114 {
		t.Fatalf("chain id по умолчанию 1114, получили %d", cfg.ChainID)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("CACHE_DURATION", "1500")
	t.Setenv("DEBOUNCE_WINDOW", "50ms")
	t.Setenv("HOUSE_EDGE", "0.97")
	t.Setenv("SIMULATE", "true")
	t.Setenv("SIM_BALANCE", "12.5")
	t.Setenv("LOG_FORMAT", "JSON")

	cfg := Load()

	if cfg.CacheDuration != 1500*time.Millisecond {
		t.Fatalf("число трактуется как миллисекунды, получили %v", cfg.CacheDuration)
	}
	if cfg.DebounceWindow != 50*time.Millisecond {
		t.Fatalf("ожидали 50ms, получили %v", cfg.DebounceWindow)
	}
	if cfg.HouseEdge != 0.97 || !cfg.Simulate {
		t.Fatalf("переопределения не применились: %+v", cfg)
	}
	if cfg.SimBalance.String() != "12.5" {
		t.Fatalf("ожидали баланс 12.5, получили %s", cfg.SimBalance)
	}
	if !cfg.JSONLogs() {
		t.Fatal("LOG_FORMAT=JSON должен включать json логи")
	}
}

func TestValidate(t *testing.T) {
	t.Setenv("SIMULATE", "true")
	cfg := Load()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("конфиг симулятора по умолчанию валиден: %v", err)
	}

	cfg.HouseEdge = 1.5
	cfg.PollInterval = 0
	err := cfg.Validate()
	if err == nil {
		t.Fatal("ожидали ошибку валидации")
	}
	if !strings.Contains(err.Error(), "HOUSE_EDGE") || !strings.Contains(err.Error(), "POLL_INTERVAL") {
		t.Fatalf("ошибка должна перечислять все проблемы: %v", err)
	}

	cfg = Load()
	cfg.Simulate = false
	cfg.ContractAddress = ""
	if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), "CONTRACT_ADDRESS") {
		t.Fatalf("без симулятора нужен адрес контракта: %v", err)
	}
}
