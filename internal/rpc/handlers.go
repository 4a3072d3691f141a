package rpc

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/lightbridge-exchange/lightbridge/internal/service"
)

func decodeParams(params json.RawMessage, v interface{}) error {
	if len(params) == 0 {
		return fmt.Errorf("missing params")
	}
	return json.Unmarshal(params, v)
}

func decodeHex(field, value string) ([]byte, error) {
	decoded, err := hex.DecodeString(value)
	if err != nil {
		return nil, fmt.Errorf("invalid %s: %w", field, err)
	}
	return decoded, nil
}

// ---------------------------------------------------------------------
// Service queries
// ---------------------------------------------------------------------

func (s *Server) getInfo(ctx context.Context, _ json.RawMessage) (interface{}, error) {
	return s.service.GetInfo(ctx), nil
}

func (s *Server) getBalance(ctx context.Context, _ json.RawMessage) (interface{}, error) {
	return s.service.GetBalance(ctx)
}

func (s *Server) getPairs(_ context.Context, _ json.RawMessage) (interface{}, error) {
	return s.service.GetPairs(), nil
}

func (s *Server) getNodes(_ context.Context, _ json.RawMessage) (interface{}, error) {
	return s.service.GetNodes(), nil
}

func (s *Server) getTimeouts(_ context.Context, _ json.RawMessage) (interface{}, error) {
	return s.service.GetTimeouts(), nil
}

func (s *Server) getContracts(_ context.Context, _ json.RawMessage) (interface{}, error) {
	return s.service.GetContracts()
}

func (s *Server) getRoutingHints(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var req struct {
		Symbol      string `json:"symbol"`
		RoutingNode string `json:"routingNode"`
	}
	if err := decodeParams(params, &req); err != nil {
		return nil, err
	}
	return s.service.GetRoutingHints(ctx, req.Symbol, req.RoutingNode)
}

func (s *Server) getFeeEstimation(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var req struct {
		Symbol string `json:"symbol,omitempty"`
		Blocks int    `json:"blocks,omitempty"`
	}
	if len(params) > 0 {
		if err := json.Unmarshal(params, &req); err != nil {
			return nil, err
		}
	}
	return s.service.GetFeeEstimation(ctx, req.Symbol, req.Blocks)
}

// ---------------------------------------------------------------------
// Chain passthrough
// ---------------------------------------------------------------------

func (s *Server) getTransaction(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var req struct {
		Symbol        string `json:"symbol"`
		TransactionID string `json:"transactionId"`
	}
	if err := decodeParams(params, &req); err != nil {
		return nil, err
	}

	transactionHex, err := s.service.GetTransaction(ctx, req.Symbol, req.TransactionID)
	if err != nil {
		return nil, err
	}
	return map[string]string{"transactionHex": transactionHex}, nil
}

func (s *Server) broadcastTransaction(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var req struct {
		Symbol         string `json:"symbol"`
		TransactionHex string `json:"transactionHex"`
	}
	if err := decodeParams(params, &req); err != nil {
		return nil, err
	}

	transactionID, err := s.service.BroadcastTransaction(ctx, req.Symbol, req.TransactionHex)
	if err != nil {
		return nil, err
	}
	return map[string]string{"transactionId": transactionID}, nil
}

// ---------------------------------------------------------------------
// Wallet methods
// ---------------------------------------------------------------------

func (s *Server) deriveKeys(_ context.Context, params json.RawMessage) (interface{}, error) {
	var req struct {
		Symbol string `json:"symbol"`
		Index  uint32 `json:"index"`
	}
	if err := decodeParams(params, &req); err != nil {
		return nil, err
	}
	return s.service.DeriveKeys(req.Symbol, req.Index)
}

func (s *Server) getAddress(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var req struct {
		Symbol string `json:"symbol"`
	}
	if err := decodeParams(params, &req); err != nil {
		return nil, err
	}

	address, err := s.service.GetAddress(ctx, req.Symbol)
	if err != nil {
		return nil, err
	}
	return map[string]string{"address": address}, nil
}

func (s *Server) sendCoins(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var req service.SendCoinsRequest
	if err := decodeParams(params, &req); err != nil {
		return nil, err
	}
	return s.service.SendCoins(ctx, &req)
}

// ---------------------------------------------------------------------
// Swap methods
// ---------------------------------------------------------------------

// createSwapParams is the wire form of a forward swap creation.
type createSwapParams struct {
	PairID          string                  `json:"pairId"`
	OrderSide       string                  `json:"orderSide"`
	PreimageHash    string                  `json:"preimageHash"`
	RefundPublicKey string                  `json:"refundPublicKey,omitempty"`
	ClaimAddress    string                  `json:"claimAddress,omitempty"`
	Channel         *service.ChannelRequest `json:"channel,omitempty"`
	ReferralID      string                  `json:"referralId,omitempty"`
}

func (p *createSwapParams) toRequest() (*service.CreateSwapRequest, error) {
	preimageHash, err := decodeHex("preimageHash", p.PreimageHash)
	if err != nil {
		return nil, err
	}

	var refundPublicKey []byte
	if p.RefundPublicKey != "" {
		refundPublicKey, err = decodeHex("refundPublicKey", p.RefundPublicKey)
		if err != nil {
			return nil, err
		}
	}

	return &service.CreateSwapRequest{
		PairID:          p.PairID,
		OrderSide:       p.OrderSide,
		PreimageHash:    preimageHash,
		RefundPublicKey: refundPublicKey,
		ClaimAddress:    p.ClaimAddress,
		Channel:         p.Channel,
		ReferralID:      p.ReferralID,
	}, nil
}

func (s *Server) createSwap(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var p createSwapParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}

	req, err := p.toRequest()
	if err != nil {
		return nil, err
	}
	return s.service.CreateSwap(ctx, req)
}

func (s *Server) setSwapInvoice(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var req struct {
		ID       string  `json:"id"`
		Invoice  string  `json:"invoice"`
		PairHash *string `json:"pairHash,omitempty"`
	}
	if err := decodeParams(params, &req); err != nil {
		return nil, err
	}
	return s.service.SetSwapInvoice(ctx, req.ID, req.Invoice, req.PairHash)
}

func (s *Server) createSwapWithInvoice(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var p struct {
		createSwapParams
		Invoice  string  `json:"invoice"`
		PairHash *string `json:"pairHash,omitempty"`
	}
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}

	req, err := p.toRequest()
	if err != nil {
		return nil, err
	}
	return s.service.CreateSwapWithInvoice(ctx, req, p.Invoice, p.PairHash)
}

func (s *Server) createReverseSwap(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var p struct {
		PairID         string  `json:"pairId"`
		OrderSide      string  `json:"orderSide"`
		PreimageHash   string  `json:"preimageHash"`
		InvoiceAmount  float64 `json:"invoiceAmount,omitempty"`
		OnchainAmount  float64 `json:"onchainAmount,omitempty"`
		PairHash       *string `json:"pairHash,omitempty"`
		RoutingNode    string  `json:"routingNode,omitempty"`
		ReferralID     string  `json:"referralId,omitempty"`
		ClaimPublicKey string  `json:"claimPublicKey,omitempty"`
		ClaimAddress   string  `json:"claimAddress,omitempty"`
		PrepayMinerFee bool    `json:"prepayMinerFee,omitempty"`
	}
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}

	preimageHash, err := decodeHex("preimageHash", p.PreimageHash)
	if err != nil {
		return nil, err
	}

	var claimPublicKey []byte
	if p.ClaimPublicKey != "" {
		claimPublicKey, err = decodeHex("claimPublicKey", p.ClaimPublicKey)
		if err != nil {
			return nil, err
		}
	}

	return s.service.CreateReverseSwap(ctx, &service.CreateReverseSwapRequest{
		PairID:         p.PairID,
		OrderSide:      p.OrderSide,
		PreimageHash:   preimageHash,
		InvoiceAmount:  p.InvoiceAmount,
		OnchainAmount:  p.OnchainAmount,
		PairHash:       p.PairHash,
		RoutingNode:    p.RoutingNode,
		ReferralID:     p.ReferralID,
		ClaimPublicKey: claimPublicKey,
		ClaimAddress:   p.ClaimAddress,
		PrepayMinerFee: p.PrepayMinerFee,
	})
}

func (s *Server) getSwapTransaction(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var req struct {
		ID string `json:"id"`
	}
	if err := decodeParams(params, &req); err != nil {
		return nil, err
	}
	return s.service.GetSwapTransaction(ctx, req.ID)
}

func (s *Server) getSwapRates(_ context.Context, params json.RawMessage) (interface{}, error) {
	var req struct {
		ID string `json:"id"`
	}
	if err := decodeParams(params, &req); err != nil {
		return nil, err
	}
	return s.service.GetSwapRates(req.ID)
}

// ---------------------------------------------------------------------
// Admin methods
// ---------------------------------------------------------------------

func (s *Server) addReferral(_ context.Context, params json.RawMessage) (interface{}, error) {
	var req struct {
		ID          string `json:"id"`
		FeeShare    uint32 `json:"feeShare"`
		RoutingNode string `json:"routingNode,omitempty"`
	}
	if err := decodeParams(params, &req); err != nil {
		return nil, err
	}
	return s.service.AddReferral(req.ID, req.FeeShare, req.RoutingNode)
}

func (s *Server) setReverseSwaps(_ context.Context, params json.RawMessage) (interface{}, error) {
	var req struct {
		Enabled bool `json:"enabled"`
	}
	if err := decodeParams(params, &req); err != nil {
		return nil, err
	}

	s.service.SetReverseSwapsEnabled(req.Enabled)
	return map[string]bool{"enabled": req.Enabled}, nil
}

func (s *Server) setPrepayMinerFee(_ context.Context, params json.RawMessage) (interface{}, error) {
	var req struct {
		Enabled bool `json:"enabled"`
	}
	if err := decodeParams(params, &req); err != nil {
		return nil, err
	}

	s.service.SetPrepayMinerFee(req.Enabled)
	return map[string]bool{"enabled": req.Enabled}, nil
}

func (s *Server) updateTimeout(_ context.Context, params json.RawMessage) (interface{}, error) {
	var req struct {
		PairID  string `json:"pairId"`
		Minutes uint32 `json:"minutes"`
	}
	if err := decodeParams(params, &req); err != nil {
		return nil, err
	}

	if err := s.service.UpdateTimeoutBlockDelta(req.PairID, req.Minutes); err != nil {
		return nil, err
	}
	return s.service.GetTimeouts(), nil
}
