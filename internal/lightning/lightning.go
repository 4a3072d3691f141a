// Package lightning defines the contract the swap service consumes from
// Lightning node adapters. Invoice decoding, payment and routing-hint
// generation happen in the adapter; the orchestrator only coordinates.
package lightning

import (
	"context"
	"errors"
)

// Common errors
var (
	ErrInvoiceNotFound = errors.New("invoice not found")
	ErrPaymentTimeout  = errors.New("payment timed out")
)

// NodeInfo describes a Lightning node.
type NodeInfo struct {
	Version     string `json:"version"`
	BlockHeight uint32 `json:"blockHeight"`

	NumActiveChannels   int `json:"active"`
	NumInactiveChannels int `json:"inactive"`
	NumPendingChannels  int `json:"pending"`

	IdentityPubkey string   `json:"identityPubkey"`
	URIs           []string `json:"uris"`
}

// Channel is a single channel's balance view.
type Channel struct {
	LocalBalance  uint64 `json:"localBalance"`
	RemoteBalance uint64 `json:"remoteBalance"`
}

// Invoice is a decoded BOLT11 payment request.
type Invoice struct {
	// Amount in satoshis.
	Amount uint64

	PaymentHash []byte
	Destination string

	// MinFinalCltvExpiry in blocks.
	MinFinalCltvExpiry uint32
}

// Payment is the result of paying an invoice.
type Payment struct {
	PaymentHash     []byte
	PaymentPreimage []byte
	FeeMsat         uint64
}

// HopHint steers a payment through a specific routing node.
type HopHint struct {
	NodeID        string `json:"nodeId"`
	ChannelID     uint64 `json:"chanId"`
	FeeBaseMsat   uint32 `json:"feeBaseMsat"`
	FeeProportion uint32 `json:"feeProportionalMillionths"`
	CltvDelta     uint32 `json:"cltvExpiryDelta"`
}

// AddedInvoice is a freshly created invoice.
type AddedInvoice struct {
	PaymentRequest string
	PaymentHash    []byte
}

// HoldInvoiceRequest describes a hold invoice to create.
type HoldInvoiceRequest struct {
	PreimageHash []byte
	// Amount in satoshis.
	Amount uint64
	// CltvExpiry of the final hop in blocks.
	CltvExpiry uint32
	Memo       string
	// RoutingNode restricts hop hints to channels with this node.
	RoutingNode string
}

// Client is the Lightning node collaborator contract.
type Client interface {
	GetInfo(ctx context.Context) (*NodeInfo, error)
	ListChannels(ctx context.Context) ([]Channel, error)

	DecodeInvoice(ctx context.Context, invoice string) (*Invoice, error)
	SendPayment(ctx context.Context, invoice string) (*Payment, error)

	AddInvoice(ctx context.Context, amount uint64, memo string) (*AddedInvoice, error)
	AddHoldInvoice(ctx context.Context, req *HoldInvoiceRequest) (string, error)

	// CancelHoldInvoice cancels a hold invoice by its preimage hash.
	CancelHoldInvoice(ctx context.Context, preimageHash []byte) error

	// GetRoutingHints returns hints for invoices that should route
	// through the given node.
	GetRoutingHints(ctx context.Context, routingNode string) ([][]HopHint, error)
}
