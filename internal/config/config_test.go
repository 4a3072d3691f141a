package config

import (
	"os"
	"testing"
)

func TestDefault(t *testing.T) {
	cfg := Default("/tmp/data")

	if cfg.LogLevel != "info" {
		t.Errorf("LogLevel = %s, want info", cfg.LogLevel)
	}
	if cfg.API.Port != 9001 {
		t.Errorf("API.Port = %d, want 9001", cfg.API.Port)
	}
	if len(cfg.Currencies) != 1 || cfg.Currencies[0].Symbol != "BTC" {
		t.Errorf("Currencies = %+v", cfg.Currencies)
	}
	if len(cfg.Pairs) != 1 {
		t.Fatalf("Pairs = %+v", cfg.Pairs)
	}

	pair := cfg.Pairs[0]
	if pair.PairID() != "BTC/BTC" {
		t.Errorf("PairID() = %s, want BTC/BTC", pair.PairID())
	}
	if pair.Rate != 1 || pair.Fee != 0.5 || pair.TimeoutDelta != 1440 {
		t.Errorf("default pair = %+v", pair)
	}
	if pair.MinSwapAmount != 10_000 || pair.MaxSwapAmount != 4_294_967 {
		t.Errorf("default limits = %d/%d", pair.MinSwapAmount, pair.MaxSwapAmount)
	}
}

func TestLoadWritesDefaultsOnFirstRun(t *testing.T) {
	dir, err := os.MkdirTemp("", "lightbridge-config-test")
	if err != nil {
		t.Fatalf("MkdirTemp() error = %v", err)
	}
	defer os.RemoveAll(dir)

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("LogLevel = %s, want info", cfg.LogLevel)
	}

	if _, err := os.Stat(Path(dir)); err != nil {
		t.Errorf("config file not written: %v", err)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	dir, err := os.MkdirTemp("", "lightbridge-config-test")
	if err != nil {
		t.Fatalf("MkdirTemp() error = %v", err)
	}
	defer os.RemoveAll(dir)

	cfg := Default(dir)
	cfg.LogLevel = "debug"
	cfg.PrepayMinerFee = true
	cfg.SwapWitnessAddress = true
	cfg.Pairs = append(cfg.Pairs, PairConfig{
		Base:          "LTC",
		Quote:         "BTC",
		Fee:           1,
		TimeoutDelta:  400,
		MinSwapAmount: 100_000,
		MaxSwapAmount: 100_000_000,
	})

	if err := Save(cfg); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	loaded, err := Load(dir)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if loaded.LogLevel != "debug" || !loaded.PrepayMinerFee || !loaded.SwapWitnessAddress {
		t.Errorf("loaded = %+v", loaded)
	}
	if len(loaded.Pairs) != 2 {
		t.Fatalf("loaded pairs = %+v", loaded.Pairs)
	}

	ltc := loaded.Pairs[1]
	if ltc.PairID() != "LTC/BTC" || ltc.TimeoutDelta != 400 {
		t.Errorf("loaded LTC pair = %+v", ltc)
	}
	// An unpinned rate stays zero so the data provider is consulted.
	if ltc.Rate != 0 {
		t.Errorf("Rate = %v, want 0", ltc.Rate)
	}
}
