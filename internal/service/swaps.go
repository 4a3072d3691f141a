package service

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/lightbridge-exchange/lightbridge/internal/chain"
	"github.com/lightbridge-exchange/lightbridge/internal/currency"
	"github.com/lightbridge-exchange/lightbridge/internal/event"
	"github.com/lightbridge-exchange/lightbridge/internal/rates"
	"github.com/lightbridge-exchange/lightbridge/internal/storage"
	"github.com/lightbridge-exchange/lightbridge/internal/wallet"
)

// CreateSwapRequest are the raw arguments of a forward swap creation.
type CreateSwapRequest struct {
	PairID    string `json:"pairId"`
	OrderSide string `json:"orderSide"`

	PreimageHash    []byte `json:"preimageHash"`
	RefundPublicKey []byte `json:"refundPublicKey,omitempty"`
	ClaimAddress    string `json:"claimAddress,omitempty"`

	Channel    *ChannelRequest `json:"channel,omitempty"`
	ReferralID string          `json:"referralId,omitempty"`
}

// CreateSwap creates a forward swap without an invoice. The invoice is
// bound later through SetSwapInvoice.
func (s *Service) CreateSwap(ctx context.Context, req *CreateSwapRequest) (*CreatedSwap, error) {
	_, err := s.store.GetSwapByPreimageHash(hex.EncodeToString(req.PreimageHash))
	if err == nil {
		return nil, ErrSwapWithPreimageExists
	}
	if !errors.Is(err, storage.ErrSwapNotFound) {
		return nil, err
	}

	base, quote, _, _, err := s.getPair(req.PairID)
	if err != nil {
		return nil, err
	}

	side, ok := currency.ParseOrderSide(req.OrderSide)
	if !ok {
		return nil, errOrderSideNotFound(req.OrderSide)
	}

	chainSymbol := currency.GetChainCurrency(base, quote, side, false)
	chainCur, err := s.getCurrency(chainSymbol)
	if err != nil {
		return nil, err
	}

	claimAddress := ""
	if chainCur.Kind == currency.KindBitcoinLike {
		if len(req.RefundPublicKey) == 0 {
			return nil, errUndefinedParameter("refundPublicKey")
		}
	} else {
		claimAddress, err = canonicalEthereumAddress(req.ClaimAddress)
		if err != nil {
			return nil, err
		}
	}

	if req.Channel != nil {
		if req.Channel.InboundLiquidity == 0 {
			req.Channel.InboundLiquidity = defaultInboundLiquidity
		}
		if req.Channel.InboundLiquidity < MinInboundLiquidity {
			return nil, errBeneathMinInboundLiquidity(req.Channel.InboundLiquidity, MinInboundLiquidity)
		}
		if req.Channel.InboundLiquidity > MaxInboundLiquidity {
			return nil, errExceedsMaxInboundLiquidity(req.Channel.InboundLiquidity, MaxInboundLiquidity)
		}
	}

	timeoutBlockDelta, err := s.timeouts.GetTimeout(req.PairID, side, false)
	if err != nil {
		return nil, err
	}

	referralID, err := s.resolveReferral(req.ReferralID, "")
	if err != nil {
		return nil, err
	}

	return s.manager.CreateSwap(ctx, &CreateSwapArgs{
		PairID:            req.PairID,
		OrderSide:         side,
		PreimageHash:      req.PreimageHash,
		RefundPublicKey:   req.RefundPublicKey,
		ClaimAddress:      claimAddress,
		TimeoutBlockDelta: timeoutBlockDelta,
		ReferralID:        referralID,
		Channel:           req.Channel,
	})
}

// SwapInvoiceResponse is the setSwapInvoice result. All fields are
// empty when the lockup was already funded.
type SwapInvoiceResponse struct {
	ExpectedAmount uint64 `json:"expectedAmount,omitempty"`
	AcceptZeroConf bool   `json:"acceptZeroConf,omitempty"`
	Bip21          string `json:"bip21,omitempty"`
}

// SetSwapInvoice binds an invoice to a forward swap, locking rate and
// fees. pairHash, when given, must match the current pair snapshot.
func (s *Service) SetSwapInvoice(ctx context.Context, id, invoice string, pairHash *string) (*SwapInvoiceResponse, error) {
	swap, err := s.store.GetSwap(id)
	if err != nil {
		return nil, errSwapNotFound(id)
	}
	if swap.Invoice != "" {
		return nil, errSwapHasInvoiceAlready(id)
	}

	base, quote, _, pair, err := s.getPair(swap.Pair)
	if err != nil {
		return nil, err
	}
	if pairHash != nil && *pairHash != pair.Hash {
		return nil, ErrInvalidPairHash
	}

	side := currency.OrderSide(swap.OrderSide)
	chainSymbol := currency.GetChainCurrency(base, quote, side, false)
	lightningSymbol := currency.GetLightningCurrency(base, quote, side, false)

	chainCur, err := s.getCurrency(chainSymbol)
	if err != nil {
		return nil, err
	}
	lightningCur, err := s.getCurrency(lightningSymbol)
	if err != nil {
		return nil, err
	}
	if lightningCur.Lightning == nil {
		return nil, errNoLightningClient(lightningSymbol)
	}

	decoded, err := lightningCur.Lightning.DecodeInvoice(ctx, invoice)
	if err != nil {
		return nil, fmt.Errorf("failed to decode invoice: %w", err)
	}
	invoiceAmount := decoded.Amount

	rate := swap.Rate
	if rate == 0 {
		rate = currency.GetRate(pair.Rate, side, false)
	}

	if err := s.verifyAmount(pair, rate, invoiceAmount, side, false); err != nil {
		return nil, err
	}

	baseFee, percentageFee, err := s.fees.GetFees(
		swap.Pair, rate, chainSymbol, invoiceAmount, rates.FeeTypeNormalClaim,
	)
	if err != nil {
		return nil, err
	}

	expectedAmount := uint64(math.Floor(float64(invoiceAmount)*rate)) + baseFee + percentageFee

	if swap.OnchainAmount != 0 && expectedAmount > swap.OnchainAmount {
		maxInvoiceAmount := calculateInvoiceAmount(
			side, pair.Rate, swap.OnchainAmount, baseFee, s.fees.GetPercentageFee(swap.Pair),
		)
		return nil, errInvalidInvoiceAmount(maxInvoiceAmount)
	}

	acceptZeroConf := s.rates.AcceptZeroConf(chainSymbol, expectedAmount)

	err = s.manager.SetSwapInvoice(
		swap, invoice, expectedAmount, percentageFee, acceptZeroConf, rate,
		func() {
			s.hub.Publish(event.SwapUpdate{
				ID:               swap.ID,
				Status:           event.StatusInvoiceSet,
				ZeroConfAccepted: acceptZeroConf,
			})
		},
	)
	if err != nil {
		return nil, err
	}

	if swap.OnchainAmount != 0 {
		return &SwapInvoiceResponse{}, nil
	}

	bip21 := currency.EncodeBip21(
		chainCur.Bip21Prefix,
		swap.LockupAddress,
		expectedAmount,
		fmt.Sprintf("Send to %s lightning", lightningSymbol),
	)

	return &SwapInvoiceResponse{
		ExpectedAmount: expectedAmount,
		AcceptZeroConf: acceptZeroConf,
		Bip21:          bip21,
	}, nil
}

// SwapWithInvoiceResponse merges swap creation and invoice binding.
type SwapWithInvoiceResponse struct {
	CreatedSwap
	SwapInvoiceResponse
}

// CreateSwapWithInvoice runs CreateSwap followed by SetSwapInvoice. A
// failing invoice binding rolls the freshly created record back before
// the original error is returned.
func (s *Service) CreateSwapWithInvoice(
	ctx context.Context,
	req *CreateSwapRequest,
	invoice string,
	pairHash *string,
) (*SwapWithInvoiceResponse, error) {
	created, err := s.CreateSwap(ctx, req)
	if err != nil {
		return nil, err
	}

	invoiceResponse, err := s.SetSwapInvoice(ctx, created.ID, invoice, pairHash)
	if err != nil {
		if destroyErr := s.manager.DestroySwap(created.ID); destroyErr != nil {
			s.log.Error("Failed to roll back swap",
				"id", created.ID,
				"error", destroyErr,
			)
		}
		return nil, err
	}

	return &SwapWithInvoiceResponse{
		CreatedSwap:         *created,
		SwapInvoiceResponse: *invoiceResponse,
	}, nil
}

// CreateReverseSwapRequest are the raw arguments of a reverse swap.
// Exactly one of InvoiceAmount and OnchainAmount must be set; both are
// floats so fractional inputs can be rejected explicitly.
type CreateReverseSwapRequest struct {
	PairID    string `json:"pairId"`
	OrderSide string `json:"orderSide"`

	PreimageHash []byte `json:"preimageHash"`

	InvoiceAmount float64 `json:"invoiceAmount,omitempty"`
	OnchainAmount float64 `json:"onchainAmount,omitempty"`

	PairHash    *string `json:"pairHash,omitempty"`
	RoutingNode string  `json:"routingNode,omitempty"`
	ReferralID  string  `json:"referralId,omitempty"`

	ClaimPublicKey []byte `json:"claimPublicKey,omitempty"`
	ClaimAddress   string `json:"claimAddress,omitempty"`

	PrepayMinerFee bool `json:"prepayMinerFee,omitempty"`
}

// ReverseSwapResponse is the createReverseSwap result. OnchainAmount is
// set only when the invoice amount was the input; the prepay fields
// only when a prepay invoice was created.
type ReverseSwapResponse struct {
	ID                 string `json:"id"`
	Invoice            string `json:"invoice"`
	RedeemScript       string `json:"redeemScript,omitempty"`
	LockupAddress      string `json:"lockupAddress"`
	TimeoutBlockHeight uint32 `json:"timeoutBlockHeight"`

	OnchainAmount        uint64 `json:"onchainAmount,omitempty"`
	MinerFeeInvoice      string `json:"minerFeeInvoice,omitempty"`
	PrepayMinerFeeAmount uint64 `json:"prepayMinerFeeAmount,omitempty"`
}

// CreateReverseSwap creates a reverse swap: a hold invoice the user
// pays, and an on-chain lockup the user claims with the preimage.
func (s *Service) CreateReverseSwap(ctx context.Context, req *CreateReverseSwapRequest) (*ReverseSwapResponse, error) {
	if !s.allowReverseSwaps.Load() {
		return nil, ErrReverseSwapsDisabled
	}

	base, quote, _, pair, err := s.getPair(req.PairID)
	if err != nil {
		return nil, err
	}
	if req.PairHash != nil && *req.PairHash != pair.Hash {
		return nil, ErrInvalidPairHash
	}

	side, ok := currency.ParseOrderSide(req.OrderSide)
	if !ok {
		return nil, errOrderSideNotFound(req.OrderSide)
	}

	sending, receiving := currency.GetSendingReceivingCurrency(base, quote, side)
	sendingCur, err := s.getCurrency(sending)
	if err != nil {
		return nil, err
	}

	claimAddress := ""
	if sendingCur.Kind == currency.KindBitcoinLike {
		if len(req.ClaimPublicKey) == 0 {
			return nil, errUndefinedParameter("claimPublicKey")
		}
		if req.PrepayMinerFee {
			return nil, errUnsupportedParameter("prepayMinerFee")
		}
	} else {
		claimAddress, err = canonicalEthereumAddress(req.ClaimAddress)
		if err != nil {
			return nil, err
		}
	}

	onchainTimeoutBlockDelta, err := s.timeouts.GetTimeout(req.PairID, side, true)
	if err != nil {
		return nil, err
	}

	lightningTimeoutBlockDelta, err := s.timeouts.ConvertBlocks(sending, receiving, onchainTimeoutBlockDelta)
	if err != nil {
		return nil, err
	}
	// Buffer against the chains drifting apart while the hold invoice
	// is in flight.
	if sending == receiving {
		lightningTimeoutBlockDelta += 3
	} else {
		lightningTimeoutBlockDelta += uint32(math.Ceil(float64(lightningTimeoutBlockDelta) * 0.1))
	}

	if req.InvoiceAmount != 0 && req.OnchainAmount != 0 {
		return nil, ErrInvoiceAndOnchainAmount
	}
	if req.InvoiceAmount == 0 && req.OnchainAmount == 0 {
		return nil, ErrNoAmountSpecified
	}
	if req.InvoiceAmount != math.Trunc(req.InvoiceAmount) {
		return nil, errNotWholeNumber(req.InvoiceAmount)
	}
	if req.OnchainAmount != math.Trunc(req.OnchainAmount) {
		return nil, errNotWholeNumber(req.OnchainAmount)
	}

	rate := currency.GetRate(pair.Rate, side, true)
	feePercent := s.fees.GetPercentageFee(req.PairID)
	baseFee, err := s.fees.GetBaseFee(sending, rates.FeeTypeReverseLockup)
	if err != nil {
		return nil, err
	}

	var (
		holdInvoiceAmount uint64
		percentageFee     uint64

		// Signed so a quote the fees eat completely stays negative
		// instead of wrapping on the uint64 conversion.
		onchainAmount int64

		invoiceAmountGiven = req.InvoiceAmount != 0
	)

	if invoiceAmountGiven {
		invoiceAmount := uint64(req.InvoiceAmount)

		percentageFee = uint64(math.Ceil(feePercent * float64(invoiceAmount) * rate))
		holdInvoiceAmount = invoiceAmount
		onchainAmount = int64(math.Floor(
			float64(invoiceAmount)*rate - float64(percentageFee) - float64(baseFee),
		))
	} else {
		requested := uint64(req.OnchainAmount)

		holdInvoiceAmount = uint64(math.Ceil(
			((float64(requested) + float64(baseFee)) / rate) / (1 - feePercent),
		))
		percentageFee = uint64(math.Ceil(float64(holdInvoiceAmount) * rate * feePercent))
		onchainAmount = int64(requested)
	}

	if err := s.verifyAmount(pair, rate, holdInvoiceAmount, side, true); err != nil {
		return nil, err
	}

	var (
		prepayInvoiceAmount uint64
		prepayOnchainAmount uint64
	)
	prepayActive := s.prepayMinerFee.Load() ||
		(req.PrepayMinerFee && sendingCur.Kind.IsAccountBased())

	if prepayActive {
		if sendingCur.Kind.IsAccountBased() {
			if sendingCur.Provider == nil {
				return nil, errNotSupportedBySymbol(sending)
			}
			gasPrice, err := sendingCur.Provider.GetGasPrice(ctx)
			if err != nil {
				return nil, fmt.Errorf("failed to get gas price of %s: %w", sending, err)
			}

			cost := new(big.Int).Mul(gasPrice, big.NewInt(chain.PrepayMinerFeeGasLimit))
			prepayOnchainAmount = new(big.Int).Div(cost, chain.EtherDecimals).Uint64()
			prepayInvoiceAmount = uint64(math.Ceil(float64(prepayOnchainAmount) / rate))

			if invoiceAmountGiven {
				onchainAmount -= int64(prepayOnchainAmount)
				if holdInvoiceAmount <= prepayInvoiceAmount {
					return nil, ErrOnchainAmountTooLow
				}
				holdInvoiceAmount -= prepayInvoiceAmount
			}
		} else {
			prepayInvoiceAmount = uint64(math.Ceil(float64(baseFee) / rate))
			if holdInvoiceAmount <= prepayInvoiceAmount {
				return nil, ErrOnchainAmountTooLow
			}
			holdInvoiceAmount -= prepayInvoiceAmount
		}
	}

	if onchainAmount < 1 {
		return nil, ErrOnchainAmountTooLow
	}

	referralID, err := s.resolveReferral(req.ReferralID, req.RoutingNode)
	if err != nil {
		return nil, err
	}

	created, err := s.manager.CreateReverseSwap(ctx, &CreateReverseSwapArgs{
		PairID:                     req.PairID,
		OrderSide:                  side,
		PreimageHash:               req.PreimageHash,
		HoldInvoiceAmount:          holdInvoiceAmount,
		OnchainAmount:              uint64(onchainAmount),
		PrepayInvoiceAmount:        prepayInvoiceAmount,
		PrepayOnchainAmount:        prepayOnchainAmount,
		PercentageFee:              percentageFee,
		ClaimPublicKey:             req.ClaimPublicKey,
		ClaimAddress:               claimAddress,
		OnchainTimeoutBlockDelta:   onchainTimeoutBlockDelta,
		LightningTimeoutBlockDelta: lightningTimeoutBlockDelta,
		ReferralID:                 referralID,
		RoutingNode:                req.RoutingNode,
	})
	if err != nil {
		return nil, err
	}

	response := &ReverseSwapResponse{
		ID:                 created.ID,
		Invoice:            created.Invoice,
		RedeemScript:       created.RedeemScript,
		LockupAddress:      created.LockupAddress,
		TimeoutBlockHeight: created.TimeoutBlockHeight,
	}
	if invoiceAmountGiven {
		response.OnchainAmount = uint64(onchainAmount)
	}
	if prepayActive {
		response.MinerFeeInvoice = created.MinerFeeInvoice
		response.PrepayMinerFeeAmount = prepayInvoiceAmount
	}

	return response, nil
}

// SendCoinsRequest moves funds out of a wallet.
type SendCoinsRequest struct {
	Symbol  string `json:"symbol"`
	Address string `json:"address"`
	Amount  uint64 `json:"amount,omitempty"`
	SendAll bool   `json:"sendAll,omitempty"`
	Fee     uint64 `json:"fee,omitempty"`
}

// SendCoins sends from a wallet, sweeping it when SendAll is set.
func (s *Service) SendCoins(ctx context.Context, req *SendCoinsRequest) (*wallet.SendResult, error) {
	cur, err := s.getCurrency(req.Symbol)
	if err != nil {
		return nil, err
	}
	if cur.Wallet == nil {
		return nil, errNotSupportedBySymbol(req.Symbol)
	}

	if req.SendAll {
		return cur.Wallet.SweepWallet(ctx, req.Address, req.Fee)
	}
	return cur.Wallet.SendToAddress(ctx, req.Address, req.Amount, req.Fee)
}

// ---------------------------------------------------------------------
// Shared policy helpers
// ---------------------------------------------------------------------

// verifyAmount checks an amount against the pair limits, converting to
// base units when the side and direction require it.
func (s *Service) verifyAmount(pair rates.Pair, rate float64, amount uint64, side currency.OrderSide, isReverse bool) error {
	calculated := float64(amount)
	if (!isReverse && side == currency.OrderSideBuy) ||
		(isReverse && side == currency.OrderSideSell) {
		calculated = math.Floor(float64(amount) * rate)
	}

	if uint64(math.Floor(calculated)) > pair.Limits.Maximal {
		return errExceedsMaximalAmount(uint64(calculated), pair.Limits.Maximal)
	}
	if uint64(math.Ceil(calculated)) < pair.Limits.Minimal {
		return errBeneathMinimalAmount(uint64(calculated), pair.Limits.Minimal)
	}

	return nil
}

// calculateInvoiceAmount back-computes the largest invoice amount an
// on-chain amount can cover after fees.
func calculateInvoiceAmount(side currency.OrderSide, pairRate float64, onchainAmount, baseFee uint64, feePercent float64) uint64 {
	if onchainAmount <= baseFee {
		return 0
	}

	effectiveRate := pairRate
	if side == currency.OrderSideBuy {
		effectiveRate = 1 / pairRate
	}

	return uint64(math.Floor(
		(float64(onchainAmount-baseFee) * effectiveRate) / (1 + feePercent),
	))
}

// resolveReferral picks the referral of a swap: an explicit id wins,
// then the referral registered for the routing node, then none.
func (s *Service) resolveReferral(explicitID, routingNode string) (string, error) {
	if explicitID != "" {
		return explicitID, nil
	}
	if routingNode == "" {
		return "", nil
	}

	ref, err := s.referrals.ByRoutingNode(routingNode)
	if err != nil {
		return "", err
	}
	if ref == nil {
		return "", nil
	}
	return ref.ID, nil
}

// canonicalEthereumAddress validates an address and normalizes it to
// checksum form.
func canonicalEthereumAddress(address string) (string, error) {
	if address == "" {
		return "", errUndefinedParameter("claimAddress")
	}
	if !common.IsHexAddress(address) {
		return "", errInvalidEthereumAddress(address)
	}
	return common.HexToAddress(address).Hex(), nil
}
