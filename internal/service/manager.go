package service

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/lightbridge-exchange/lightbridge/internal/chain"
	"github.com/lightbridge-exchange/lightbridge/internal/currency"
	"github.com/lightbridge-exchange/lightbridge/internal/event"
	"github.com/lightbridge-exchange/lightbridge/internal/htlc"
	"github.com/lightbridge-exchange/lightbridge/internal/lightning"
	"github.com/lightbridge-exchange/lightbridge/internal/storage"
	"github.com/lightbridge-exchange/lightbridge/pkg/logging"
)

// newSwapID generates an opaque swap identifier.
func newSwapID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:13]
}

// ChannelRequest asks for a channel to be opened before the invoice of
// a forward swap is paid.
type ChannelRequest struct {
	InboundLiquidity uint32 `json:"inboundLiquidity"`
	Private          bool   `json:"private"`
}

// CreateSwapArgs are the validated parameters of a forward swap.
type CreateSwapArgs struct {
	PairID    string
	OrderSide currency.OrderSide

	PreimageHash    []byte
	RefundPublicKey []byte
	ClaimAddress    string

	TimeoutBlockDelta uint32
	ReferralID        string
	Channel           *ChannelRequest
}

// CreatedSwap is the manager's result for a forward swap.
type CreatedSwap struct {
	ID                 string `json:"id"`
	Address            string `json:"address"`
	RedeemScript       string `json:"redeemScript,omitempty"`
	ClaimAddress       string `json:"claimAddress,omitempty"`
	TimeoutBlockHeight uint32 `json:"timeoutBlockHeight"`
}

// CreateReverseSwapArgs are the validated parameters of a reverse swap.
type CreateReverseSwapArgs struct {
	PairID    string
	OrderSide currency.OrderSide

	PreimageHash []byte

	HoldInvoiceAmount   uint64
	OnchainAmount       uint64
	PrepayInvoiceAmount uint64
	PrepayOnchainAmount uint64
	PercentageFee       uint64

	ClaimPublicKey []byte
	ClaimAddress   string

	OnchainTimeoutBlockDelta   uint32
	LightningTimeoutBlockDelta uint32

	ReferralID  string
	RoutingNode string
}

// CreatedReverseSwap is the manager's result for a reverse swap.
type CreatedReverseSwap struct {
	ID                 string `json:"id"`
	Invoice            string `json:"invoice"`
	MinerFeeInvoice    string `json:"minerFeeInvoice,omitempty"`
	RedeemScript       string `json:"redeemScript,omitempty"`
	LockupAddress      string `json:"lockupAddress"`
	TimeoutBlockHeight uint32 `json:"timeoutBlockHeight"`
}

// Manager builds HTLCs, binds invoices and persists swap records. The
// orchestrator validates and computes; the manager constructs.
type Manager struct {
	log *logging.Logger

	store   *storage.Storage
	hub     *event.Hub
	account *chain.AccountManager

	getCurrency func(symbol string) (*currency.Currency, error)

	// swapWitnessAddress selects native segwit lockup addresses for
	// forward swaps. Reverse lockups are always native segwit.
	swapWitnessAddress bool
}

// NewManager creates a swap manager.
func NewManager(
	store *storage.Storage,
	hub *event.Hub,
	account *chain.AccountManager,
	getCurrency func(symbol string) (*currency.Currency, error),
	swapWitnessAddress bool,
) *Manager {
	return &Manager{
		log:                logging.GetDefault().Component("swap"),
		store:              store,
		hub:                hub,
		account:            account,
		getCurrency:        getCurrency,
		swapWitnessAddress: swapWitnessAddress,
	}
}

// CreateSwap constructs the lockup of a forward swap and persists the
// record atomically. The HD index reserved for the claim keys is burned
// if the insert fails.
func (m *Manager) CreateSwap(ctx context.Context, args *CreateSwapArgs) (*CreatedSwap, error) {
	base, quote, err := currency.SplitPairID(args.PairID)
	if err != nil {
		return nil, err
	}

	chainSymbol := currency.GetChainCurrency(base, quote, args.OrderSide, false)
	cur, err := m.getCurrency(chainSymbol)
	if err != nil {
		return nil, err
	}

	height, err := m.blockHeight(ctx, cur)
	if err != nil {
		return nil, err
	}

	swap := &storage.Swap{
		ID:                 newSwapID(),
		Pair:               args.PairID,
		OrderSide:          int(args.OrderSide),
		PreimageHash:       hex.EncodeToString(args.PreimageHash),
		TimeoutBlockHeight: height + args.TimeoutBlockDelta,
		ReferralID:         args.ReferralID,
		Status:             string(event.StatusSwapCreated),
	}

	result := &CreatedSwap{
		ID:                 swap.ID,
		TimeoutBlockHeight: swap.TimeoutBlockHeight,
	}

	switch cur.Kind {
	case currency.KindBitcoinLike:
		index, err := m.store.NextKeyIndex(chainSymbol)
		if err != nil {
			return nil, err
		}

		keys, err := cur.Wallet.KeysByIndex(index)
		if err != nil {
			return nil, err
		}

		redeemScript, err := htlc.SwapScript(
			args.PreimageHash,
			keys.PublicKey.SerializeCompressed(),
			args.RefundPublicKey,
			swap.TimeoutBlockHeight,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to build redeem script: %w", err)
		}

		address, err := htlc.LockupAddress(redeemScript, cur.Network, m.swapWitnessAddress)
		if err != nil {
			return nil, err
		}

		swap.KeyIndex = index
		swap.RedeemScript = hex.EncodeToString(redeemScript)
		swap.RefundPublicKey = hex.EncodeToString(args.RefundPublicKey)
		swap.LockupAddress = address

		result.Address = address
		result.RedeemScript = swap.RedeemScript

	default:
		swap.ClaimAddress = args.ClaimAddress
		swap.LockupAddress = m.contractAddress(cur.Kind)

		result.Address = swap.LockupAddress
		result.ClaimAddress = args.ClaimAddress
	}

	if err := m.store.CreateSwap(swap); err != nil {
		if errors.Is(err, storage.ErrSwapExists) {
			return nil, ErrSwapWithPreimageExists
		}
		return nil, err
	}

	if args.Channel != nil {
		err := m.store.CreateChannelCreation(&storage.ChannelCreation{
			SwapID:           swap.ID,
			InboundLiquidity: args.Channel.InboundLiquidity,
			Private:          args.Channel.Private,
		})
		if err != nil {
			return nil, err
		}
	}

	m.log.Info("Created new swap",
		"id", swap.ID,
		"pair", swap.Pair,
		"address", swap.LockupAddress,
	)

	m.hub.Publish(event.SwapUpdate{
		ID:     swap.ID,
		Status: event.StatusSwapCreated,
	})

	return result, nil
}

// SetSwapInvoice binds an invoice to a swap. The binding is set-once;
// a second call for the same swap fails. onSet runs after the binding
// is persisted.
func (m *Manager) SetSwapInvoice(
	swap *storage.Swap,
	invoice string,
	expectedAmount uint64,
	percentageFee uint64,
	acceptZeroConf bool,
	rate float64,
	onSet func(),
) error {
	err := m.store.SetSwapInvoice(
		swap.ID, invoice,
		expectedAmount, percentageFee,
		acceptZeroConf, rate,
		string(event.StatusInvoiceSet),
	)
	switch {
	case errors.Is(err, storage.ErrSwapHasInvoice):
		return errSwapHasInvoiceAlready(swap.ID)
	case errors.Is(err, storage.ErrSwapInvoiceExists):
		return ErrSwapWithInvoiceExists
	case err != nil:
		return err
	}

	m.log.Info("Set invoice of swap",
		"id", swap.ID,
		"expectedAmount", expectedAmount,
		"acceptZeroConf", acceptZeroConf,
	)

	if onSet != nil {
		onSet()
	}

	return nil
}

// CreateReverseSwap creates the hold invoice, the optional prepay
// invoice and the lockup of a reverse swap, then persists the record.
func (m *Manager) CreateReverseSwap(ctx context.Context, args *CreateReverseSwapArgs) (*CreatedReverseSwap, error) {
	base, quote, err := currency.SplitPairID(args.PairID)
	if err != nil {
		return nil, err
	}

	sending, _ := currency.GetSendingReceivingCurrency(base, quote, args.OrderSide)
	lightningSymbol := currency.GetLightningCurrency(base, quote, args.OrderSide, true)

	lightningCur, err := m.getCurrency(lightningSymbol)
	if err != nil {
		return nil, err
	}
	if lightningCur.Lightning == nil {
		return nil, errNoLightningClient(lightningSymbol)
	}

	sendingCur, err := m.getCurrency(sending)
	if err != nil {
		return nil, err
	}

	invoice, err := lightningCur.Lightning.AddHoldInvoice(ctx, &lightning.HoldInvoiceRequest{
		PreimageHash: args.PreimageHash,
		Amount:       args.HoldInvoiceAmount,
		CltvExpiry:   args.LightningTimeoutBlockDelta,
		Memo:         fmt.Sprintf("Send to %s address", sending),
		RoutingNode:  args.RoutingNode,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to add hold invoice: %w", err)
	}

	// The hold invoice must not dangle at the node when a later step
	// aborts the swap.
	committed := false
	defer func() {
		if committed {
			return
		}
		if cancelErr := lightningCur.Lightning.CancelHoldInvoice(ctx, args.PreimageHash); cancelErr != nil {
			m.log.Warn("Failed to cancel hold invoice of aborted reverse swap",
				"error", cancelErr,
			)
		}
	}()

	var minerFeeInvoice string
	if args.PrepayInvoiceAmount > 0 {
		added, err := lightningCur.Lightning.AddInvoice(
			ctx,
			args.PrepayInvoiceAmount,
			fmt.Sprintf("Miner fee for sending to %s address", sending),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to add miner fee invoice: %w", err)
		}
		minerFeeInvoice = added.PaymentRequest
	}

	height, err := m.blockHeight(ctx, sendingCur)
	if err != nil {
		return nil, err
	}

	swap := &storage.ReverseSwap{
		ID:                 newSwapID(),
		Pair:               args.PairID,
		OrderSide:          int(args.OrderSide),
		PreimageHash:       hex.EncodeToString(args.PreimageHash),
		Invoice:            invoice,
		MinerFeeInvoice:    minerFeeInvoice,
		OnchainAmount:      args.OnchainAmount,
		InvoiceAmount:      args.HoldInvoiceAmount,
		PercentageFee:      args.PercentageFee,
		TimeoutBlockHeight: height + args.OnchainTimeoutBlockDelta,
		ReferralID:         args.ReferralID,
		Status:             string(event.StatusSwapCreated),
	}

	switch sendingCur.Kind {
	case currency.KindBitcoinLike:
		index, err := m.store.NextKeyIndex(sending)
		if err != nil {
			return nil, err
		}

		keys, err := sendingCur.Wallet.KeysByIndex(index)
		if err != nil {
			return nil, err
		}

		redeemScript, err := htlc.ReverseSwapScript(
			args.PreimageHash,
			args.ClaimPublicKey,
			keys.PublicKey.SerializeCompressed(),
			swap.TimeoutBlockHeight,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to build redeem script: %w", err)
		}

		address, err := htlc.WitnessScriptHashAddress(redeemScript, sendingCur.Network)
		if err != nil {
			return nil, err
		}

		swap.KeyIndex = index
		swap.RedeemScript = hex.EncodeToString(redeemScript)
		swap.ClaimPublicKey = hex.EncodeToString(args.ClaimPublicKey)
		swap.LockupAddress = address

	default:
		swap.ClaimAddress = args.ClaimAddress
		swap.LockupAddress = m.contractAddress(sendingCur.Kind)
	}

	swap.PrepayOnchainAmount = args.PrepayOnchainAmount

	if err := m.store.CreateReverseSwap(swap); err != nil {
		return nil, err
	}

	m.log.Info("Created new reverse swap",
		"id", swap.ID,
		"pair", swap.Pair,
		"onchainAmount", swap.OnchainAmount,
	)

	m.hub.Publish(event.SwapUpdate{
		ID:     swap.ID,
		Status: event.StatusSwapCreated,
	})

	committed = true

	return &CreatedReverseSwap{
		ID:                 swap.ID,
		Invoice:            invoice,
		MinerFeeInvoice:    minerFeeInvoice,
		RedeemScript:       swap.RedeemScript,
		LockupAddress:      swap.LockupAddress,
		TimeoutBlockHeight: swap.TimeoutBlockHeight,
	}, nil
}

// DestroySwap rolls back a swap created by a composed operation. The
// channel creation is destroyed first, then the swap record.
func (m *Manager) DestroySwap(id string) error {
	return m.store.DeleteSwap(id)
}

func (m *Manager) blockHeight(ctx context.Context, cur *currency.Currency) (uint32, error) {
	if cur.Kind.IsAccountBased() {
		if cur.Provider == nil {
			return 0, errNotSupportedBySymbol(cur.Symbol)
		}
		height, err := cur.Provider.GetBlockNumber(ctx)
		if err != nil {
			return 0, fmt.Errorf("failed to get block number of %s: %w", cur.Symbol, err)
		}
		return uint32(height), nil
	}

	if cur.Chain == nil {
		return 0, errNotSupportedBySymbol(cur.Symbol)
	}
	info, err := cur.Chain.GetBlockchainInfo(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to get blockchain info of %s: %w", cur.Symbol, err)
	}
	return info.Blocks, nil
}

// contractAddress returns the lockup contract for an account currency.
func (m *Manager) contractAddress(kind currency.Kind) string {
	if m.account == nil {
		return ""
	}
	if kind == currency.KindERC20 {
		return m.account.ERC20SwapContract.Hex()
	}
	return m.account.SwapContract.Hex()
}
