// Package config provides the daemon configuration. All tunables
// (currencies, pairs, fee percentages, timeout deltas, runtime flags)
// are defined here and loaded from a YAML file in the data directory.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// ConfigFileName is the config file inside the data directory.
const ConfigFileName = "config.yaml"

// Config holds all daemon configuration.
type Config struct {
	DataDir  string `yaml:"datadir"`
	LogLevel string `yaml:"loglevel"`

	// PrepayMinerFee enables the secondary miner-fee invoice on
	// reverse swaps.
	PrepayMinerFee bool `yaml:"prepayminerfee"`

	// SwapWitnessAddress selects P2WSH lockup addresses instead of
	// nested P2SH-P2WSH.
	SwapWitnessAddress bool `yaml:"swapwitnessaddress"`

	// RetryInterval in seconds for pending invoice payments.
	RetryInterval int `yaml:"retryinterval"`

	API   APIConfig   `yaml:"api"`
	Rates RatesConfig `yaml:"rates"`

	Currencies []CurrencyConfig `yaml:"currencies"`
	Pairs      []PairConfig     `yaml:"pairs"`
}

// APIConfig is the JSON-RPC listen address.
type APIConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// RatesConfig controls the rate refresh loop.
type RatesConfig struct {
	// Interval in seconds between rate updates.
	Interval int `yaml:"interval"`
}

// CurrencyConfig describes one configured currency.
type CurrencyConfig struct {
	Symbol string `yaml:"symbol"`

	// Kind is one of "bitcoinLike", "ether" or "erc20".
	Kind string `yaml:"kind"`

	// Network is "mainnet", "testnet" or "regtest" for UTXO chains.
	Network string `yaml:"network"`

	// MaxZeroConfAmount is the largest unconfirmed lockup accepted as
	// final, in the chain's smallest unit. Zero disables zero-conf.
	MaxZeroConfAmount uint64 `yaml:"maxZeroConfAmount"`

	// TokenDecimals for ERC20 currencies.
	TokenDecimals uint8 `yaml:"tokenDecimals,omitempty"`
}

// PairConfig describes one trading pair.
type PairConfig struct {
	Base  string `yaml:"base"`
	Quote string `yaml:"quote"`

	// Rate pins the pair rate; zero means the rate is pulled from the
	// data provider on refresh.
	Rate float64 `yaml:"rate,omitempty"`

	// Fee is the percentage fee charged on swaps of this pair.
	Fee float64 `yaml:"fee"`

	// TimeoutDelta is the on-chain timeout in minutes.
	TimeoutDelta uint32 `yaml:"timeoutDelta"`

	// Swap limits in base units.
	MinSwapAmount uint64 `yaml:"minSwapAmount"`
	MaxSwapAmount uint64 `yaml:"maxSwapAmount"`
}

// PairID returns the canonical pair identifier.
func (p *PairConfig) PairID() string {
	return p.Base + "/" + p.Quote
}

// Default returns the default configuration.
func Default(dataDir string) *Config {
	return &Config{
		DataDir:            dataDir,
		LogLevel:           "info",
		PrepayMinerFee:     false,
		SwapWitnessAddress: false,
		RetryInterval:      15,
		API: APIConfig{
			Host: "127.0.0.1",
			Port: 9001,
		},
		Rates: RatesConfig{
			Interval: 60,
		},
		Currencies: []CurrencyConfig{
			{
				Symbol:            "BTC",
				Kind:              "bitcoinLike",
				Network:           "mainnet",
				MaxZeroConfAmount: 200_000,
			},
		},
		Pairs: []PairConfig{
			{
				Base:          "BTC",
				Quote:         "BTC",
				Rate:          1,
				Fee:           0.5,
				TimeoutDelta:  1440,
				MinSwapAmount: 10_000,
				MaxSwapAmount: 4_294_967,
			},
		},
	}
}

// Path returns the config file path for a data directory.
func Path(dataDir string) string {
	return filepath.Join(dataDir, ConfigFileName)
}

// Load reads the config from the data directory, writing the defaults
// on first run.
func Load(dataDir string) (*Config, error) {
	path := Path(dataDir)

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		cfg := Default(dataDir)
		if err := Save(cfg); err != nil {
			return nil, err
		}
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	cfg := Default(dataDir)
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	return cfg, nil
}

// Save writes the config to its data directory.
func Save(cfg *Config) error {
	if err := os.MkdirAll(cfg.DataDir, 0700); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	return os.WriteFile(Path(cfg.DataDir), data, 0600)
}
