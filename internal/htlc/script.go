// Package htlc builds the redeem scripts and lockup addresses of
// on-chain swap HTLCs.
package htlc

import (
	"crypto/sha256"
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"
	"golang.org/x/crypto/ripemd160"
)

// SwapScript builds the redeem script of a forward swap. The claim
// branch requires the invoice preimage, the refund branch opens at the
// timeout block height.
//
//	OP_HASH160 <ripemd160(preimageHash)> OP_EQUAL
//	OP_IF
//	    <claimPublicKey>
//	OP_ELSE
//	    <timeoutBlockHeight> OP_CHECKLOCKTIMEVERIFY OP_DROP
//	    <refundPublicKey>
//	OP_ENDIF
//	OP_CHECKSIG
func SwapScript(preimageHash []byte, claimPublicKey, refundPublicKey []byte, timeoutBlockHeight uint32) ([]byte, error) {
	builder := txscript.NewScriptBuilder()

	builder.AddOp(txscript.OP_HASH160)
	builder.AddData(hashRipemd160(preimageHash))
	builder.AddOp(txscript.OP_EQUAL)

	builder.AddOp(txscript.OP_IF)
	builder.AddData(claimPublicKey)

	builder.AddOp(txscript.OP_ELSE)
	builder.AddInt64(int64(timeoutBlockHeight))
	builder.AddOp(txscript.OP_CHECKLOCKTIMEVERIFY)
	builder.AddOp(txscript.OP_DROP)
	builder.AddData(refundPublicKey)

	builder.AddOp(txscript.OP_ENDIF)
	builder.AddOp(txscript.OP_CHECKSIG)

	return builder.Script()
}

// ReverseSwapScript builds the redeem script of a reverse swap lockup.
// The size check pins the preimage to 32 bytes so a short preimage
// cannot settle the hold invoice without unlocking the claim branch.
//
//	OP_SIZE <32> OP_EQUAL
//	OP_IF
//	    OP_HASH160 <ripemd160(preimageHash)> OP_EQUALVERIFY
//	    <claimPublicKey>
//	OP_ELSE
//	    OP_DROP
//	    <timeoutBlockHeight> OP_CHECKLOCKTIMEVERIFY OP_DROP
//	    <refundPublicKey>
//	OP_ENDIF
//	OP_CHECKSIG
func ReverseSwapScript(preimageHash []byte, claimPublicKey, refundPublicKey []byte, timeoutBlockHeight uint32) ([]byte, error) {
	builder := txscript.NewScriptBuilder()

	builder.AddOp(txscript.OP_SIZE)
	builder.AddData([]byte{32})
	builder.AddOp(txscript.OP_EQUAL)

	builder.AddOp(txscript.OP_IF)
	builder.AddOp(txscript.OP_HASH160)
	builder.AddData(hashRipemd160(preimageHash))
	builder.AddOp(txscript.OP_EQUALVERIFY)
	builder.AddData(claimPublicKey)

	builder.AddOp(txscript.OP_ELSE)
	builder.AddOp(txscript.OP_DROP)
	builder.AddInt64(int64(timeoutBlockHeight))
	builder.AddOp(txscript.OP_CHECKLOCKTIMEVERIFY)
	builder.AddOp(txscript.OP_DROP)
	builder.AddData(refundPublicKey)

	builder.AddOp(txscript.OP_ENDIF)
	builder.AddOp(txscript.OP_CHECKSIG)

	return builder.Script()
}

// WitnessScriptHashAddress derives the native P2WSH lockup address of
// a redeem script.
func WitnessScriptHashAddress(redeemScript []byte, params *chaincfg.Params) (string, error) {
	witnessProgram, err := witnessScriptHash(redeemScript)
	if err != nil {
		return "", err
	}

	address, err := btcutil.NewAddressWitnessScriptHash(witnessProgram[2:], params)
	if err != nil {
		return "", fmt.Errorf("failed to encode P2WSH address: %w", err)
	}

	return address.EncodeAddress(), nil
}

// NestedScriptHashAddress derives the P2SH nested P2WSH lockup address
// of a redeem script, spendable by wallets without native segwit
// support.
func NestedScriptHashAddress(redeemScript []byte, params *chaincfg.Params) (string, error) {
	witnessProgram, err := witnessScriptHash(redeemScript)
	if err != nil {
		return "", err
	}

	address, err := btcutil.NewAddressScriptHash(witnessProgram, params)
	if err != nil {
		return "", fmt.Errorf("failed to encode P2SH address: %w", err)
	}

	return address.EncodeAddress(), nil
}

// LockupAddress derives the lockup address of a redeem script,
// selecting native or nested segwit.
func LockupAddress(redeemScript []byte, params *chaincfg.Params, nativeSegwit bool) (string, error) {
	if nativeSegwit {
		return WitnessScriptHashAddress(redeemScript, params)
	}
	return NestedScriptHashAddress(redeemScript, params)
}

// witnessScriptHash builds the v0 witness program of a redeem script:
// OP_0 <sha256(script)>.
func witnessScriptHash(redeemScript []byte) ([]byte, error) {
	builder := txscript.NewScriptBuilder()
	builder.AddOp(txscript.OP_0)
	builder.AddData(sha256Hash(redeemScript))
	return builder.Script()
}

func sha256Hash(data []byte) []byte {
	sum := sha256.Sum256(data)
	return sum[:]
}

func hashRipemd160(data []byte) []byte {
	h := ripemd160.New()
	h.Write(data)
	return h.Sum(nil)
}
