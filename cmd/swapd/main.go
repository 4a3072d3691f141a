// Package main provides the swapd daemon - the atomic swap service.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/lightningnetwork/lnd/clock"
	"github.com/lightningnetwork/lnd/ticker"

	"github.com/lightbridge-exchange/lightbridge/internal/config"
	"github.com/lightbridge-exchange/lightbridge/internal/currency"
	"github.com/lightbridge-exchange/lightbridge/internal/event"
	"github.com/lightbridge-exchange/lightbridge/internal/rates"
	"github.com/lightbridge-exchange/lightbridge/internal/referral"
	"github.com/lightbridge-exchange/lightbridge/internal/rpc"
	"github.com/lightbridge-exchange/lightbridge/internal/service"
	"github.com/lightbridge-exchange/lightbridge/internal/storage"
	"github.com/lightbridge-exchange/lightbridge/internal/timeout"
	"github.com/lightbridge-exchange/lightbridge/internal/wallet"
	"github.com/lightbridge-exchange/lightbridge/pkg/logging"
)

var (
	version = "0.1.0-dev"
	commit  = "unknown"
)

const seedFileName = "seed.dat"

func main() {
	var (
		dataDir     = flag.String("data-dir", "~/.lightbridge", "Data directory")
		apiAddr     = flag.String("api", "", "JSON-RPC API address, overrides config")
		logLevel    = flag.String("log-level", "", "Log level (debug, info, warn, error)")
		showVersion = flag.Bool("version", false, "Show version and exit")
	)
	flag.Parse()

	log := logging.New(&logging.Config{
		Level:      "info",
		TimeFormat: time.TimeOnly,
	})
	logging.SetDefault(log)

	if *showVersion {
		log.Infof("swapd %s (commit: %s)", version, commit)
		os.Exit(0)
	}

	dataPath := expandPath(*dataDir)
	cfg, err := config.Load(dataPath)
	if err != nil {
		log.Fatal("Failed to load config", "error", err)
	}
	cfg.DataDir = dataPath

	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}

	log = logging.New(&logging.Config{
		Level:      cfg.LogLevel,
		TimeFormat: time.TimeOnly,
	})
	logging.SetDefault(log)

	log.Info("Config loaded", "path", config.Path(dataPath))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, err := storage.New(&storage.Config{DataDir: dataPath})
	if err != nil {
		log.Fatal("Failed to open storage", "error", err)
	}
	defer store.Close()

	mnemonic, err := loadOrCreateSeed(dataPath)
	if err != nil {
		log.Fatal("Failed to load wallet seed", "error", err)
	}

	currencies, err := buildCurrencies(cfg, store, mnemonic)
	if err != nil {
		log.Fatal("Failed to build currencies", "error", err)
	}

	getCurrency := func(symbol string) (*currency.Currency, error) {
		cur, ok := currencies[symbol]
		if !ok {
			return nil, fmt.Errorf("could not find currency: %s", symbol)
		}
		return cur, nil
	}

	hub := event.NewHub()
	defer hub.Stop()

	feeProvider := rates.NewFeeProvider(getCurrency)
	seedMinerFees(cfg, feeProvider)

	rateProvider := rates.NewProvider(
		feeProvider,
		rates.NewStaticDataProvider(),
		ticker.New(time.Duration(cfg.Rates.Interval)*time.Second),
	)

	timeouts := timeout.NewDeltaProvider(clock.NewDefaultClock())
	referrals := referral.NewRegistry(store)

	manager := service.NewManager(store, hub, nil, getCurrency, cfg.SwapWitnessAddress)

	svc := service.New(
		cfg, currencies, store, hub, manager,
		rateProvider, feeProvider, timeouts, referrals,
		nil, clock.NewDefaultClock(),
	)

	if err := svc.Init(ctx); err != nil {
		log.Fatal("Failed to initialize service", "error", err)
	}

	rateProvider.Start()
	defer rateProvider.Stop()

	server := rpc.NewServer(svc)

	addr := *apiAddr
	if addr == "" {
		addr = fmt.Sprintf("%s:%d", cfg.API.Host, cfg.API.Port)
	}
	if err := server.Start(addr); err != nil {
		log.Fatal("Failed to start RPC server", "error", err)
	}
	defer server.Stop()

	log.Info("swapd started", "version", version, "datadir", dataPath)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Info("Shutting down")
}

// buildCurrencies constructs the configured currencies. Chain and
// Lightning clients are wired by deployment-specific adapters; the
// daemon starts with wallets and network parameters only, and the
// service reports the missing capabilities per operation.
func buildCurrencies(cfg *config.Config, store *storage.Storage, mnemonic string) (map[string]*currency.Currency, error) {
	currencies := make(map[string]*currency.Currency, len(cfg.Currencies))

	for _, cc := range cfg.Currencies {
		cur := &currency.Currency{
			Symbol:      cc.Symbol,
			Bip21Prefix: bip21Prefix(cc.Symbol),
		}

		switch strings.ToLower(cc.Kind) {
		case "ether":
			cur.Kind = currency.KindEther
		case "erc20":
			cur.Kind = currency.KindERC20
			cur.TokenDecimals = cc.TokenDecimals
		default:
			cur.Kind = currency.KindBitcoinLike

			params, err := networkParams(cc.Network)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", cc.Symbol, err)
			}
			cur.Network = params

			w, err := wallet.NewHDWallet(cc.Symbol, mnemonic, "", params, store, nil)
			if err != nil {
				return nil, fmt.Errorf("failed to create %s wallet: %w", cc.Symbol, err)
			}
			cur.Wallet = w
		}

		currencies[cc.Symbol] = cur
	}

	return currencies, nil
}

// seedMinerFees installs conservative default quotes so the pair table
// can be built before the first fee estimation succeeds.
func seedMinerFees(cfg *config.Config, fees *rates.FeeProvider) {
	for _, cc := range cfg.Currencies {
		fees.SetMinerFees(cc.Symbol, rates.MinerFees{
			Normal:        340,
			ReverseLockup: 306,
			ReverseClaim:  276,
		})
	}
}

func networkParams(network string) (*chaincfg.Params, error) {
	switch strings.ToLower(network) {
	case "", "mainnet":
		return &chaincfg.MainNetParams, nil
	case "testnet":
		return &chaincfg.TestNet3Params, nil
	case "regtest":
		return &chaincfg.RegressionNetParams, nil
	default:
		return nil, fmt.Errorf("unknown network: %s", network)
	}
}

func bip21Prefix(symbol string) string {
	switch symbol {
	case "LTC":
		return "litecoin"
	default:
		return "bitcoin"
	}
}

// loadOrCreateSeed reads the wallet mnemonic, generating one on first
// run.
func loadOrCreateSeed(dataDir string) (string, error) {
	path := filepath.Join(dataDir, seedFileName)

	data, err := os.ReadFile(path)
	if err == nil {
		return strings.TrimSpace(string(data)), nil
	}
	if !os.IsNotExist(err) {
		return "", err
	}

	mnemonic, err := wallet.GenerateMnemonic()
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(path, []byte(mnemonic+"\n"), 0600); err != nil {
		return "", err
	}

	return mnemonic, nil
}

// expandPath expands a leading ~ to the home directory.
func expandPath(path string) string {
	if strings.HasPrefix(path, "~") {
		home, err := os.UserHomeDir()
		if err == nil {
			return filepath.Join(home, strings.TrimPrefix(path, "~"))
		}
	}
	return path
}
