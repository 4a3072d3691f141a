package htlc

import (
	"bytes"
	"crypto/sha256"
	"strings"
	"testing"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"
)

var (
	testPreimage     = bytes.Repeat([]byte{0x01}, 32)
	testClaimPubKey  = append([]byte{0x03}, bytes.Repeat([]byte{0x02}, 32)...)
	testRefundPubKey = append([]byte{0x02}, bytes.Repeat([]byte{0x03}, 32)...)
)

func preimageHash() []byte {
	sum := sha256.Sum256(testPreimage)
	return sum[:]
}

func TestSwapScript(t *testing.T) {
	script, err := SwapScript(preimageHash(), testClaimPubKey, testRefundPubKey, 800_144)
	if err != nil {
		t.Fatalf("SwapScript() error = %v", err)
	}

	// Deterministic inputs build a deterministic script.
	again, err := SwapScript(preimageHash(), testClaimPubKey, testRefundPubKey, 800_144)
	if err != nil {
		t.Fatalf("SwapScript() error = %v", err)
	}
	if !bytes.Equal(script, again) {
		t.Error("script construction is not deterministic")
	}

	asm, err := txscript.DisasmString(script)
	if err != nil {
		t.Fatalf("DisasmString() error = %v", err)
	}
	for _, op := range []string{"OP_HASH160", "OP_IF", "OP_ELSE", "OP_CHECKLOCKTIMEVERIFY", "OP_CHECKSIG"} {
		if !strings.Contains(asm, op) {
			t.Errorf("script missing %s: %s", op, asm)
		}
	}

	// A different timeout produces a different script.
	other, err := SwapScript(preimageHash(), testClaimPubKey, testRefundPubKey, 800_145)
	if err != nil {
		t.Fatalf("SwapScript() error = %v", err)
	}
	if bytes.Equal(script, other) {
		t.Error("timeout height is not part of the script")
	}
}

func TestReverseSwapScriptPinsPreimageSize(t *testing.T) {
	script, err := ReverseSwapScript(preimageHash(), testClaimPubKey, testRefundPubKey, 800_144)
	if err != nil {
		t.Fatalf("ReverseSwapScript() error = %v", err)
	}

	asm, err := txscript.DisasmString(script)
	if err != nil {
		t.Fatalf("DisasmString() error = %v", err)
	}
	if !strings.Contains(asm, "OP_SIZE") {
		t.Errorf("reverse script missing OP_SIZE guard: %s", asm)
	}
	if !strings.Contains(asm, "OP_EQUALVERIFY") {
		t.Errorf("reverse script missing OP_EQUALVERIFY: %s", asm)
	}

	forward, err := SwapScript(preimageHash(), testClaimPubKey, testRefundPubKey, 800_144)
	if err != nil {
		t.Fatalf("SwapScript() error = %v", err)
	}
	if bytes.Equal(script, forward) {
		t.Error("forward and reverse scripts are identical")
	}
}

func TestLockupAddress(t *testing.T) {
	script, err := SwapScript(preimageHash(), testClaimPubKey, testRefundPubKey, 800_144)
	if err != nil {
		t.Fatalf("SwapScript() error = %v", err)
	}

	native, err := LockupAddress(script, &chaincfg.MainNetParams, true)
	if err != nil {
		t.Fatalf("LockupAddress(native) error = %v", err)
	}
	if !strings.HasPrefix(native, "bc1q") {
		t.Errorf("native address = %s, want bc1q prefix", native)
	}

	nested, err := LockupAddress(script, &chaincfg.MainNetParams, false)
	if err != nil {
		t.Fatalf("LockupAddress(nested) error = %v", err)
	}
	if !strings.HasPrefix(nested, "3") {
		t.Errorf("nested address = %s, want 3 prefix", nested)
	}

	// Regtest uses its own bech32 HRP.
	regtest, err := LockupAddress(script, &chaincfg.RegressionNetParams, true)
	if err != nil {
		t.Fatalf("LockupAddress(regtest) error = %v", err)
	}
	if !strings.HasPrefix(regtest, "bcrt1q") {
		t.Errorf("regtest address = %s, want bcrt1q prefix", regtest)
	}
}

func TestAddressCommitsToScript(t *testing.T) {
	scriptA, err := SwapScript(preimageHash(), testClaimPubKey, testRefundPubKey, 800_144)
	if err != nil {
		t.Fatalf("SwapScript() error = %v", err)
	}
	scriptB, err := ReverseSwapScript(preimageHash(), testClaimPubKey, testRefundPubKey, 800_144)
	if err != nil {
		t.Fatalf("ReverseSwapScript() error = %v", err)
	}

	addrA, err := WitnessScriptHashAddress(scriptA, &chaincfg.MainNetParams)
	if err != nil {
		t.Fatalf("WitnessScriptHashAddress() error = %v", err)
	}
	addrB, err := WitnessScriptHashAddress(scriptB, &chaincfg.MainNetParams)
	if err != nil {
		t.Fatalf("WitnessScriptHashAddress() error = %v", err)
	}
	if addrA == addrB {
		t.Error("different scripts derive the same address")
	}
}
