// Package service implements the swap orchestrator: it validates
// requests, computes fee and timeout structures across chains,
// reconciles cross-currency amounts, and delegates record construction
// to the swap manager. All cross-cutting policy lives here.
package service

import (
	"bytes"
	"context"
	"encoding/hex"
	"fmt"
	"sync/atomic"

	"github.com/btcsuite/btcd/wire"
	"github.com/lightningnetwork/lnd/clock"

	"github.com/lightbridge-exchange/lightbridge/internal/chain"
	"github.com/lightbridge-exchange/lightbridge/internal/config"
	"github.com/lightbridge-exchange/lightbridge/internal/currency"
	"github.com/lightbridge-exchange/lightbridge/internal/event"
	"github.com/lightbridge-exchange/lightbridge/internal/lightning"
	"github.com/lightbridge-exchange/lightbridge/internal/rates"
	"github.com/lightbridge-exchange/lightbridge/internal/referral"
	"github.com/lightbridge-exchange/lightbridge/internal/storage"
	"github.com/lightbridge-exchange/lightbridge/internal/timeout"
	"github.com/lightbridge-exchange/lightbridge/internal/wallet"
	"github.com/lightbridge-exchange/lightbridge/pkg/logging"
)

// Version reported by getInfo.
const Version = "1.0.0"

// Inbound liquidity bounds for channel creations, in percent.
const (
	MinInboundLiquidity = 10
	MaxInboundLiquidity = 50

	defaultInboundLiquidity = 25
)

// Default confirmation target for fee estimations.
const defaultFeeEstimationBlocks = 2

// Service is the swap orchestrator.
type Service struct {
	log *logging.Logger

	cfg        *config.Config
	currencies map[string]*currency.Currency

	store     *storage.Storage
	hub       *event.Hub
	manager   *Manager
	pairs     *PairRegistry
	rates     *rates.Provider
	fees      *rates.FeeProvider
	timeouts  *timeout.DeltaProvider
	referrals *referral.Registry
	account   *chain.AccountManager
	clock     clock.Clock

	nodes map[string]NodeURIs

	// Runtime flags, togglable while requests are in flight.
	allowReverseSwaps atomic.Bool
	prepayMinerFee    atomic.Bool
}

// New creates the orchestrator. Init must be called before serving
// requests.
func New(
	cfg *config.Config,
	currencies map[string]*currency.Currency,
	store *storage.Storage,
	hub *event.Hub,
	manager *Manager,
	rateProvider *rates.Provider,
	feeProvider *rates.FeeProvider,
	timeouts *timeout.DeltaProvider,
	referrals *referral.Registry,
	account *chain.AccountManager,
	c clock.Clock,
) *Service {
	s := &Service{
		log:        logging.GetDefault().Component("service"),
		cfg:        cfg,
		currencies: currencies,
		store:      store,
		hub:        hub,
		manager:    manager,
		pairs:      NewPairRegistry(),
		rates:      rateProvider,
		fees:       feeProvider,
		timeouts:   timeouts,
		referrals:  referrals,
		account:    account,
		clock:      c,
		nodes:      make(map[string]NodeURIs),
	}

	s.allowReverseSwaps.Store(true)
	s.prepayMinerFee.Store(cfg.PrepayMinerFee)

	return s
}

// Init verifies the configured pairs, initializes the providers and
// snapshots the Lightning node identities.
func (s *Service) Init(ctx context.Context) error {
	for _, pair := range s.cfg.Pairs {
		for _, symbol := range []string{pair.Base, pair.Quote} {
			if _, ok := s.currencies[symbol]; !ok {
				return errCurrencyNotFound(symbol)
			}
		}
		s.pairs.Upsert(pair)
	}

	for symbol, cur := range s.currencies {
		s.timeouts.RegisterCurrency(symbol, cur.Kind)
	}
	if err := s.timeouts.Init(s.cfg.Pairs); err != nil {
		return err
	}

	if err := s.rates.Init(ctx, s.cfg.Pairs, s.cfg.Currencies); err != nil {
		return err
	}

	s.nodes = snapshotNodeURIs(ctx, s.currencies)

	s.log.Info("Initialized service",
		"pairs", len(s.cfg.Pairs),
		"currencies", len(s.currencies),
	)

	return nil
}

// Hub returns the event hub for lifecycle subscriptions.
func (s *Service) Hub() *event.Hub {
	return s.hub
}

func (s *Service) getCurrency(symbol string) (*currency.Currency, error) {
	cur, ok := s.currencies[symbol]
	if !ok {
		return nil, errCurrencyNotFound(symbol)
	}
	return cur, nil
}

// getPair resolves a pair id to its configuration and current snapshot.
func (s *Service) getPair(pairID string) (base, quote string, cfg config.PairConfig, pair rates.Pair, err error) {
	base, quote, err = currency.SplitPairID(pairID)
	if err != nil {
		return "", "", cfg, pair, errPairNotFound(pairID)
	}

	cfg, ok := s.pairs.Get(pairID)
	if !ok {
		return "", "", cfg, pair, errPairNotFound(pairID)
	}

	pair, err = s.rates.GetPair(pairID)
	if err != nil {
		return "", "", cfg, pair, errPairNotFound(pairID)
	}

	return base, quote, cfg, pair, nil
}

// ---------------------------------------------------------------------
// Info and read-only projections
// ---------------------------------------------------------------------

// ChainStatus is a chain daemon probe result.
type ChainStatus struct {
	Version       int    `json:"version"`
	Connections   int    `json:"connections"`
	Blocks        uint32 `json:"blocks"`
	ScannedBlocks uint32 `json:"scannedBlocks"`
	Error         string `json:"error,omitempty"`
}

// ChannelCounts summarizes a Lightning node's channels.
type ChannelCounts struct {
	Active   int `json:"active"`
	Inactive int `json:"inactive"`
	Pending  int `json:"pending"`
}

// LightningStatus is a Lightning node probe result.
type LightningStatus struct {
	Version     string        `json:"version"`
	BlockHeight uint32        `json:"blockHeight"`
	Channels    ChannelCounts `json:"channels"`
	Error       string        `json:"error,omitempty"`
}

// CurrencyInfo combines the probes of one currency.
type CurrencyInfo struct {
	Chain     *ChainStatus     `json:"chain,omitempty"`
	Lightning *LightningStatus `json:"lightning,omitempty"`
}

// InfoResponse is the getInfo projection.
type InfoResponse struct {
	Version string                   `json:"version"`
	Chains  map[string]*CurrencyInfo `json:"chains"`
}

// GetInfo probes every currency's chain and Lightning collaborators.
// Collaborator failures are captured per entry and never propagate.
func (s *Service) GetInfo(ctx context.Context) *InfoResponse {
	response := &InfoResponse{
		Version: Version,
		Chains:  make(map[string]*CurrencyInfo, len(s.currencies)),
	}

	for symbol, cur := range s.currencies {
		info := &CurrencyInfo{}

		switch {
		case cur.Kind.IsAccountBased() && cur.Provider != nil:
			status := &ChainStatus{}
			if height, err := cur.Provider.GetBlockNumber(ctx); err != nil {
				status.Error = err.Error()
			} else {
				status.Blocks = uint32(height)
				status.ScannedBlocks = uint32(height)
			}
			info.Chain = status

		case cur.Chain != nil:
			status := &ChainStatus{}
			if network, err := cur.Chain.GetNetworkInfo(ctx); err != nil {
				status.Error = err.Error()
			} else {
				status.Version = network.Version
				status.Connections = network.Connections
			}
			if blockchain, err := cur.Chain.GetBlockchainInfo(ctx); err != nil {
				// Keep the first probe failure.
				if status.Error == "" {
					status.Error = err.Error()
				}
			} else {
				status.Blocks = blockchain.Blocks
				status.ScannedBlocks = blockchain.ScannedBlocks
			}
			info.Chain = status
		}

		if cur.Lightning != nil {
			status := &LightningStatus{}
			if node, err := cur.Lightning.GetInfo(ctx); err != nil {
				status.Error = err.Error()
			} else {
				status.Version = node.Version
				status.BlockHeight = node.BlockHeight
				status.Channels = ChannelCounts{
					Active:   node.NumActiveChannels,
					Inactive: node.NumInactiveChannels,
					Pending:  node.NumPendingChannels,
				}
			}
			info.Lightning = status
		}

		response.Chains[symbol] = info
	}

	return response
}

// LightningBalance sums channel balances of a node.
type LightningBalance struct {
	LocalBalance  uint64 `json:"localBalance"`
	RemoteBalance uint64 `json:"remoteBalance"`
}

// Balances combines the wallet and Lightning balances of a currency.
type Balances struct {
	WalletBalance    *wallet.Balance   `json:"walletBalance"`
	LightningBalance *LightningBalance `json:"lightningBalance,omitempty"`
}

// GetBalance returns the balances of every wallet-backed currency.
func (s *Service) GetBalance(ctx context.Context) (map[string]*Balances, error) {
	balances := make(map[string]*Balances)

	for symbol, cur := range s.currencies {
		if cur.Wallet == nil {
			continue
		}

		walletBalance, err := cur.Wallet.GetBalance(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to get %s balance: %w", symbol, err)
		}

		entry := &Balances{WalletBalance: walletBalance}

		if cur.Lightning != nil {
			channels, err := cur.Lightning.ListChannels(ctx)
			if err != nil {
				return nil, fmt.Errorf("failed to list %s channels: %w", symbol, err)
			}

			lightningBalance := &LightningBalance{}
			for _, channel := range channels {
				lightningBalance.LocalBalance += channel.LocalBalance
				lightningBalance.RemoteBalance += channel.RemoteBalance
			}
			entry.LightningBalance = lightningBalance
		}

		balances[symbol] = entry
	}

	return balances, nil
}

// Informational flags surfaced by getPairs.
const (
	InfoPrepayMinerFee          = "prepay.minerfee"
	WarningReverseSwapsDisabled = "reverse.swaps.disabled"
)

// PairsResponse is the getPairs projection.
type PairsResponse struct {
	Info     []string              `json:"info"`
	Warnings []string              `json:"warnings"`
	Pairs    map[string]rates.Pair `json:"pairs"`
}

// GetPairs returns the current pair table with runtime flags.
func (s *Service) GetPairs() *PairsResponse {
	response := &PairsResponse{
		Info:     []string{},
		Warnings: []string{},
		Pairs:    s.rates.Pairs(),
	}

	if s.prepayMinerFee.Load() {
		response.Info = append(response.Info, InfoPrepayMinerFee)
	}
	if !s.allowReverseSwaps.Load() {
		response.Warnings = append(response.Warnings, WarningReverseSwapsDisabled)
	}

	return response
}

// GetNodes returns the Lightning node identities snapshotted at init.
func (s *Service) GetNodes() map[string]NodeURIs {
	return s.nodes
}

// GetRoutingHints returns hints for invoices routing through a node.
func (s *Service) GetRoutingHints(ctx context.Context, symbol, routingNode string) ([][]lightning.HopHint, error) {
	cur, err := s.getCurrency(symbol)
	if err != nil {
		return nil, err
	}
	if cur.Lightning == nil {
		return nil, errNoLightningClient(symbol)
	}

	return cur.Lightning.GetRoutingHints(ctx, routingNode)
}

// GetTimeouts returns the timeout block deltas of all pairs.
func (s *Service) GetTimeouts() map[string]timeout.PairDeltas {
	return s.timeouts.GetTimeouts()
}

// GetContracts returns the account chain deployment.
func (s *Service) GetContracts() (*chain.Contracts, error) {
	if s.account == nil {
		return nil, ErrEthereumNotEnabled
	}
	return s.account.Contracts(), nil
}

// GetTransaction fetches a raw transaction from a UTXO chain.
func (s *Service) GetTransaction(ctx context.Context, symbol, transactionID string) (string, error) {
	cur, err := s.getCurrency(symbol)
	if err != nil {
		return "", err
	}
	if cur.Chain == nil {
		return "", errNotSupportedBySymbol(symbol)
	}

	return cur.Chain.GetRawTransaction(ctx, transactionID)
}

// SwapTransactionResponse is the lockup transaction of a swap together
// with its refund timeline.
type SwapTransactionResponse struct {
	TransactionHex     string `json:"transactionHex"`
	TimeoutBlockHeight uint32 `json:"timeoutBlockHeight"`
	TimeoutEta         int64  `json:"timeoutEta,omitempty"`
}

// GetSwapTransaction fetches the lockup transaction of a swap. The eta
// is included only while the timeout has not been reached.
func (s *Service) GetSwapTransaction(ctx context.Context, id string) (*SwapTransactionResponse, error) {
	swap, err := s.store.GetSwap(id)
	if err != nil {
		return nil, errSwapNotFound(id)
	}
	if swap.LockupTransactionID == "" {
		return nil, ErrSwapNoLockup
	}

	base, quote, err := currency.SplitPairID(swap.Pair)
	if err != nil {
		return nil, err
	}
	chainSymbol := currency.GetChainCurrency(base, quote, currency.OrderSide(swap.OrderSide), false)

	cur, err := s.getCurrency(chainSymbol)
	if err != nil {
		return nil, err
	}
	if cur.Chain == nil {
		return nil, errNotSupportedBySymbol(chainSymbol)
	}

	transactionHex, err := cur.Chain.GetRawTransaction(ctx, swap.LockupTransactionID)
	if err != nil {
		return nil, err
	}

	response := &SwapTransactionResponse{
		TransactionHex:     transactionHex,
		TimeoutBlockHeight: swap.TimeoutBlockHeight,
	}

	info, err := cur.Chain.GetBlockchainInfo(ctx)
	if err != nil {
		return nil, err
	}
	if swap.TimeoutBlockHeight > info.Blocks {
		eta, err := s.timeouts.TimeoutDate(chainSymbol, swap.TimeoutBlockHeight-info.Blocks)
		if err != nil {
			return nil, err
		}
		response.TimeoutEta = eta
	}

	return response, nil
}

// SwapRatesResponse quotes the invoice amount a funded swap supports.
type SwapRatesResponse struct {
	OnchainAmount uint64 `json:"onchainAmount"`
	SubmarineSwap struct {
		InvoiceAmount uint64 `json:"invoiceAmount"`
	} `json:"submarineSwap"`
}

// GetSwapRates back-computes the invoice amount of a swap that was
// funded before its invoice was set.
func (s *Service) GetSwapRates(id string) (*SwapRatesResponse, error) {
	swap, err := s.store.GetSwap(id)
	if err != nil {
		return nil, errSwapNotFound(id)
	}
	if swap.OnchainAmount == 0 {
		return nil, ErrSwapNoLockup
	}

	base, quote, _, pair, err := s.getPair(swap.Pair)
	if err != nil {
		return nil, err
	}

	side := currency.OrderSide(swap.OrderSide)
	chainSymbol := currency.GetChainCurrency(base, quote, side, false)

	baseFee, err := s.fees.GetBaseFee(chainSymbol, rates.FeeTypeNormalClaim)
	if err != nil {
		return nil, err
	}
	feePercent := s.fees.GetPercentageFee(swap.Pair)

	response := &SwapRatesResponse{OnchainAmount: swap.OnchainAmount}
	response.SubmarineSwap.InvoiceAmount = calculateInvoiceAmount(
		side, pair.Rate, swap.OnchainAmount, baseFee, feePercent,
	)

	return response, nil
}

// PrematureRefundError is returned when a refund broadcast is rejected
// because the HTLC timeout has not been reached.
type PrematureRefundError struct {
	Reason             string `json:"error"`
	TimeoutBlockHeight uint32 `json:"timeoutBlockHeight"`
	TimeoutEta         int64  `json:"timeoutEta"`
}

func (e *PrematureRefundError) Error() string {
	return e.Reason
}

// BroadcastTransaction submits a raw transaction to a UTXO chain. When
// the chain rejects a premature refund, the inputs are matched against
// unfinished swaps so the caller learns when the refund becomes valid;
// unrelated rejections propagate verbatim.
func (s *Service) BroadcastTransaction(ctx context.Context, symbol, transactionHex string) (string, error) {
	cur, err := s.getCurrency(symbol)
	if err != nil {
		return "", err
	}
	if cur.Chain == nil {
		return "", errNotSupportedBySymbol(symbol)
	}

	transactionID, err := cur.Chain.SendRawTransaction(ctx, transactionHex)
	if err == nil {
		return transactionID, nil
	}
	if !chain.IsPrematureRefund(err) {
		return "", err
	}

	raw, decodeErr := hex.DecodeString(transactionHex)
	if decodeErr != nil {
		return "", err
	}
	var transaction wire.MsgTx
	if deserializeErr := transaction.Deserialize(bytes.NewReader(raw)); deserializeErr != nil {
		return "", err
	}

	for _, input := range transaction.TxIn {
		swap, lookupErr := s.store.GetUnfinishedSwapByLockupTransactionID(
			input.PreviousOutPoint.Hash.String(),
		)
		if lookupErr != nil {
			continue
		}

		info, infoErr := cur.Chain.GetBlockchainInfo(ctx)
		if infoErr != nil {
			return "", infoErr
		}

		var blocksMissing uint32
		if swap.TimeoutBlockHeight > info.Blocks {
			blocksMissing = swap.TimeoutBlockHeight - info.Blocks
		}
		eta, etaErr := s.timeouts.TimeoutDate(symbol, blocksMissing)
		if etaErr != nil {
			return "", etaErr
		}

		return "", &PrematureRefundError{
			Reason:             err.Error(),
			TimeoutBlockHeight: swap.TimeoutBlockHeight,
			TimeoutEta:         eta,
		}
	}

	return "", err
}

// DerivedKeys is a keypair in wire encoding.
type DerivedKeys struct {
	PublicKey  string `json:"publicKey"`
	PrivateKey string `json:"privateKey"`
}

// DeriveKeys derives the keypair at an HD index of a wallet.
func (s *Service) DeriveKeys(symbol string, index uint32) (*DerivedKeys, error) {
	cur, err := s.getCurrency(symbol)
	if err != nil {
		return nil, err
	}
	if cur.Wallet == nil {
		return nil, errNotSupportedBySymbol(symbol)
	}

	keys, err := cur.Wallet.KeysByIndex(index)
	if err != nil {
		return nil, err
	}

	return &DerivedKeys{
		PublicKey:  hex.EncodeToString(keys.PublicKey.SerializeCompressed()),
		PrivateKey: hex.EncodeToString(keys.PrivateKey.Serialize()),
	}, nil
}

// GetAddress returns a fresh receive address of a wallet.
func (s *Service) GetAddress(ctx context.Context, symbol string) (string, error) {
	cur, err := s.getCurrency(symbol)
	if err != nil {
		return "", err
	}
	if cur.Wallet == nil {
		return "", errNotSupportedBySymbol(symbol)
	}

	return cur.Wallet.NewAddress(ctx)
}

// GetFeeEstimation estimates fees for one or all currencies: sat/vByte
// for UTXO chains, gwei for account chains. ERC20 currencies collapse
// into their native chain's entry.
func (s *Service) GetFeeEstimation(ctx context.Context, symbol string, blocks int) (map[string]uint64, error) {
	if blocks == 0 {
		blocks = defaultFeeEstimationBlocks
	}

	estimations := make(map[string]uint64)

	estimate := func(symbol string, cur *currency.Currency) error {
		if cur.Kind.IsAccountBased() {
			key := s.etherSymbol()
			if key == "" {
				key = symbol
			}
			if _, done := estimations[key]; done {
				return nil
			}
			if cur.Provider == nil {
				return errNotSupportedBySymbol(symbol)
			}

			gasPrice, err := cur.Provider.GetGasPrice(ctx)
			if err != nil {
				return err
			}

			gwei := gasPrice.Uint64() / chain.GweiDecimals.Uint64()
			if gwei == 0 {
				gwei = 1
			}
			estimations[key] = gwei
			return nil
		}

		if cur.Chain == nil {
			return errNotSupportedBySymbol(symbol)
		}
		satPerVbyte, err := cur.Chain.EstimateFee(ctx, blocks)
		if err != nil {
			return err
		}
		estimations[symbol] = satPerVbyte
		return nil
	}

	if symbol != "" {
		cur, err := s.getCurrency(symbol)
		if err != nil {
			return nil, err
		}
		if err := estimate(symbol, cur); err != nil {
			return nil, err
		}
		return estimations, nil
	}

	for symbol, cur := range s.currencies {
		if err := estimate(symbol, cur); err != nil {
			return nil, err
		}
	}

	return estimations, nil
}

// etherSymbol returns the native account chain symbol, empty when no
// Ether currency is configured.
func (s *Service) etherSymbol() string {
	for symbol, cur := range s.currencies {
		if cur.Kind == currency.KindEther {
			return symbol
		}
	}
	return ""
}

// AddReferral validates and persists a referral, returning its API
// credentials.
func (s *Service) AddReferral(id string, feeShare uint32, routingNode string) (*referral.Credentials, error) {
	return s.referrals.Add(id, feeShare, routingNode)
}

// ---------------------------------------------------------------------
// Admin toggles
// ---------------------------------------------------------------------

// SetReverseSwapsEnabled toggles reverse swap creation at runtime.
func (s *Service) SetReverseSwapsEnabled(enabled bool) {
	s.allowReverseSwaps.Store(enabled)
	s.log.Info("Toggled reverse swaps", "enabled", enabled)
}

// SetPrepayMinerFee toggles the global prepay miner fee flag.
func (s *Service) SetPrepayMinerFee(enabled bool) {
	s.prepayMinerFee.Store(enabled)
	s.log.Info("Toggled prepay miner fee", "enabled", enabled)
}

// UpdateTimeoutBlockDelta changes the timeout of a pair at runtime.
func (s *Service) UpdateTimeoutBlockDelta(pairID string, minutes uint32) error {
	return s.timeouts.UpdateTimeout(pairID, minutes)
}
