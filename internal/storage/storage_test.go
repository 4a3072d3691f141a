package storage

import (
	"os"
	"testing"
)

func newTestStorage(t *testing.T) *Storage {
	t.Helper()

	dir, err := os.MkdirTemp("", "lightbridge-storage-test")
	if err != nil {
		t.Fatalf("MkdirTemp() error = %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(dir) })

	store, err := New(&Config{DataDir: dir})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { store.Close() })

	return store
}

func testSwap(id, preimageHash string) *Swap {
	return &Swap{
		ID:                 id,
		Pair:               "BTC/BTC",
		OrderSide:          0,
		PreimageHash:       preimageHash,
		LockupAddress:      "bc1q" + id,
		TimeoutBlockHeight: 800_144,
		RefundPublicKey:    "02abcdef",
		KeyIndex:           1,
		RedeemScript:       "a914",
		Status:             "swap.created",
	}
}

func TestSwapRoundTrip(t *testing.T) {
	store := newTestStorage(t)

	swap := testSwap("swap1", "hash1")
	if err := store.CreateSwap(swap); err != nil {
		t.Fatalf("CreateSwap() error = %v", err)
	}

	got, err := store.GetSwap("swap1")
	if err != nil {
		t.Fatalf("GetSwap() error = %v", err)
	}

	if got.Pair != "BTC/BTC" ||
		got.PreimageHash != "hash1" ||
		got.LockupAddress != "bc1qswap1" ||
		got.TimeoutBlockHeight != 800_144 ||
		got.RefundPublicKey != "02abcdef" ||
		got.Status != "swap.created" {
		t.Errorf("GetSwap() = %+v", got)
	}
	if got.Invoice != "" {
		t.Errorf("Invoice = %q, want empty", got.Invoice)
	}

	if _, err := store.GetSwap("missing"); err != ErrSwapNotFound {
		t.Errorf("GetSwap(missing) error = %v, want ErrSwapNotFound", err)
	}
}

func TestCreateSwapDuplicatePreimageHash(t *testing.T) {
	store := newTestStorage(t)

	if err := store.CreateSwap(testSwap("swap1", "hash1")); err != nil {
		t.Fatalf("CreateSwap() error = %v", err)
	}

	err := store.CreateSwap(testSwap("swap2", "hash1"))
	if err != ErrSwapExists {
		t.Errorf("CreateSwap() duplicate preimage error = %v, want ErrSwapExists", err)
	}
}

func TestSetSwapInvoice(t *testing.T) {
	store := newTestStorage(t)

	if err := store.CreateSwap(testSwap("swap1", "hash1")); err != nil {
		t.Fatalf("CreateSwap() error = %v", err)
	}

	err := store.SetSwapInvoice("swap1", "lnbc1", 100_002, 1, true, 1, "invoice.set")
	if err != nil {
		t.Fatalf("SetSwapInvoice() error = %v", err)
	}

	got, err := store.GetSwap("swap1")
	if err != nil {
		t.Fatalf("GetSwap() error = %v", err)
	}
	if got.Invoice != "lnbc1" || got.ExpectedAmount != 100_002 ||
		got.PercentageFee != 1 || !got.AcceptZeroConf ||
		got.Rate != 1 || got.Status != "invoice.set" {
		t.Errorf("swap after invoice = %+v", got)
	}

	// The invoice is set-once.
	err = store.SetSwapInvoice("swap1", "lnbc2", 1, 1, false, 1, "invoice.set")
	if err != ErrSwapHasInvoice {
		t.Errorf("second SetSwapInvoice() error = %v, want ErrSwapHasInvoice", err)
	}

	// The same invoice cannot bind to another swap.
	if err := store.CreateSwap(testSwap("swap2", "hash2")); err != nil {
		t.Fatalf("CreateSwap() error = %v", err)
	}
	err = store.SetSwapInvoice("swap2", "lnbc1", 1, 1, false, 1, "invoice.set")
	if err != ErrSwapInvoiceExists {
		t.Errorf("duplicate invoice error = %v, want ErrSwapInvoiceExists", err)
	}

	err = store.SetSwapInvoice("missing", "lnbc3", 1, 1, false, 1, "invoice.set")
	if err != ErrSwapHasInvoice {
		t.Errorf("SetSwapInvoice(missing) error = %v, want ErrSwapHasInvoice", err)
	}
}

func TestGetSwapByInvoice(t *testing.T) {
	store := newTestStorage(t)

	if err := store.CreateSwap(testSwap("swap1", "hash1")); err != nil {
		t.Fatalf("CreateSwap() error = %v", err)
	}
	if err := store.SetSwapInvoice("swap1", "lnbc1", 1, 1, false, 1, "invoice.set"); err != nil {
		t.Fatalf("SetSwapInvoice() error = %v", err)
	}

	got, err := store.GetSwapByInvoice("lnbc1")
	if err != nil {
		t.Fatalf("GetSwapByInvoice() error = %v", err)
	}
	if got.ID != "swap1" {
		t.Errorf("GetSwapByInvoice() id = %s, want swap1", got.ID)
	}

	if _, err := store.GetSwapByInvoice("lnbc999"); err != ErrSwapNotFound {
		t.Errorf("GetSwapByInvoice(unknown) error = %v, want ErrSwapNotFound", err)
	}
}

func TestGetUnfinishedSwapByLockupTransactionID(t *testing.T) {
	store := newTestStorage(t)

	if err := store.CreateSwap(testSwap("swap1", "hash1")); err != nil {
		t.Fatalf("CreateSwap() error = %v", err)
	}
	if err := store.SetSwapLockupTransaction("swap1", "txid1", 100_000); err != nil {
		t.Fatalf("SetSwapLockupTransaction() error = %v", err)
	}

	got, err := store.GetUnfinishedSwapByLockupTransactionID("txid1")
	if err != nil {
		t.Fatalf("GetUnfinishedSwapByLockupTransactionID() error = %v", err)
	}
	if got.ID != "swap1" || got.OnchainAmount != 100_000 {
		t.Errorf("unfinished swap = %+v", got)
	}

	// Settled swaps no longer match.
	if err := store.UpdateSwapStatus("swap1", "invoice.settled"); err != nil {
		t.Fatalf("UpdateSwapStatus() error = %v", err)
	}
	_, err = store.GetUnfinishedSwapByLockupTransactionID("txid1")
	if err != ErrSwapNotFound {
		t.Errorf("settled swap lookup error = %v, want ErrSwapNotFound", err)
	}
}

func TestDeleteSwapCascadesChannelCreation(t *testing.T) {
	store := newTestStorage(t)

	if err := store.CreateSwap(testSwap("swap1", "hash1")); err != nil {
		t.Fatalf("CreateSwap() error = %v", err)
	}
	err := store.CreateChannelCreation(&ChannelCreation{
		SwapID:           "swap1",
		InboundLiquidity: 25,
		Private:          true,
	})
	if err != nil {
		t.Fatalf("CreateChannelCreation() error = %v", err)
	}

	c, err := store.GetChannelCreation("swap1")
	if err != nil {
		t.Fatalf("GetChannelCreation() error = %v", err)
	}
	if c == nil || c.InboundLiquidity != 25 || !c.Private {
		t.Errorf("channel creation = %+v", c)
	}

	if err := store.DeleteSwap("swap1"); err != nil {
		t.Fatalf("DeleteSwap() error = %v", err)
	}

	if _, err := store.GetSwap("swap1"); err != ErrSwapNotFound {
		t.Errorf("GetSwap() after delete error = %v, want ErrSwapNotFound", err)
	}
	c, err = store.GetChannelCreation("swap1")
	if err != nil {
		t.Fatalf("GetChannelCreation() after delete error = %v", err)
	}
	if c != nil {
		t.Errorf("channel creation survived delete: %+v", c)
	}
}

func TestReverseSwapRoundTrip(t *testing.T) {
	store := newTestStorage(t)

	swap := &ReverseSwap{
		ID:                  "rswap1",
		Pair:                "BTC/BTC",
		OrderSide:           0,
		PreimageHash:        "hash1",
		Invoice:             "lnbc1",
		MinerFeeInvoice:     "lnbc2",
		OnchainAmount:       97_680,
		InvoiceAmount:       100_000,
		PercentageFee:       2_000,
		PrepayOnchainAmount: 320,
		LockupAddress:       "bc1qreverse",
		RedeemScript:        "a914",
		ClaimPublicKey:      "03abcdef",
		TimeoutBlockHeight:  800_144,
		KeyIndex:            2,
		Status:              "swap.created",
	}
	if err := store.CreateReverseSwap(swap); err != nil {
		t.Fatalf("CreateReverseSwap() error = %v", err)
	}

	got, err := store.GetReverseSwap("rswap1")
	if err != nil {
		t.Fatalf("GetReverseSwap() error = %v", err)
	}
	if got.OnchainAmount != 97_680 ||
		got.InvoiceAmount != 100_000 ||
		got.MinerFeeInvoice != "lnbc2" ||
		got.PrepayOnchainAmount != 320 ||
		got.ClaimPublicKey != "03abcdef" {
		t.Errorf("GetReverseSwap() = %+v", got)
	}

	if err := store.UpdateReverseSwapStatus("rswap1", "invoice.settled"); err != nil {
		t.Fatalf("UpdateReverseSwapStatus() error = %v", err)
	}
	got, err = store.GetReverseSwap("rswap1")
	if err != nil {
		t.Fatalf("GetReverseSwap() error = %v", err)
	}
	if got.Status != "invoice.settled" {
		t.Errorf("status = %s, want invoice.settled", got.Status)
	}

	if err := store.DeleteReverseSwap("rswap1"); err != nil {
		t.Fatalf("DeleteReverseSwap() error = %v", err)
	}
	if _, err := store.GetReverseSwap("rswap1"); err != ErrReverseSwapNotFound {
		t.Errorf("GetReverseSwap() after delete error = %v, want ErrReverseSwapNotFound", err)
	}
}

func TestNextKeyIndexMonotonicPerSymbol(t *testing.T) {
	store := newTestStorage(t)

	for want := uint32(0); want < 3; want++ {
		got, err := store.NextKeyIndex("BTC")
		if err != nil {
			t.Fatalf("NextKeyIndex() error = %v", err)
		}
		if got != want {
			t.Errorf("NextKeyIndex(BTC) = %d, want %d", got, want)
		}
	}

	// Counters are independent per symbol.
	got, err := store.NextKeyIndex("LTC")
	if err != nil {
		t.Fatalf("NextKeyIndex() error = %v", err)
	}
	if got != 0 {
		t.Errorf("NextKeyIndex(LTC) = %d, want 0", got)
	}
}

func TestReferralRoundTrip(t *testing.T) {
	store := newTestStorage(t)

	referral := &Referral{
		ID:          "partner",
		FeeShare:    20,
		RoutingNode: "03node",
		APIKey:      "key",
		APISecret:   "secret",
	}
	if err := store.CreateReferral(referral); err != nil {
		t.Fatalf("CreateReferral() error = %v", err)
	}

	got, err := store.GetReferral("partner")
	if err != nil {
		t.Fatalf("GetReferral() error = %v", err)
	}
	if got.FeeShare != 20 || got.RoutingNode != "03node" || got.APIKey != "key" {
		t.Errorf("GetReferral() = %+v", got)
	}

	got, err = store.GetReferralByRoutingNode("03node")
	if err != nil {
		t.Fatalf("GetReferralByRoutingNode() error = %v", err)
	}
	if got.ID != "partner" {
		t.Errorf("GetReferralByRoutingNode() id = %s, want partner", got.ID)
	}

	err = store.CreateReferral(&Referral{ID: "partner", FeeShare: 10, APIKey: "k", APISecret: "s"})
	if err != ErrReferralExists {
		t.Errorf("duplicate id error = %v, want ErrReferralExists", err)
	}

	err = store.CreateReferral(&Referral{ID: "other", FeeShare: 10, RoutingNode: "03node", APIKey: "k", APISecret: "s"})
	if err != ErrRoutingNodeConflict {
		t.Errorf("duplicate routing node error = %v, want ErrRoutingNodeConflict", err)
	}

	if _, err := store.GetReferral("missing"); err != ErrReferralNotFound {
		t.Errorf("GetReferral(missing) error = %v, want ErrReferralNotFound", err)
	}
}
