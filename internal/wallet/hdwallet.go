package wallet

import (
	"context"
	"fmt"
	"sync"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/tyler-smith/go-bip39"
)

// HDWallet derives keys from a BIP39 seed along m/44'/coin'/0'/0/index.
type HDWallet struct {
	symbol    string
	masterKey *hdkeychain.ExtendedKey
	params    *chaincfg.Params

	indexes KeyIndexSource
	funding Funding

	mu    sync.Mutex
	cache map[uint32]*hdkeychain.ExtendedKey
}

// GenerateMnemonic generates a new 24-word BIP39 mnemonic.
func GenerateMnemonic() (string, error) {
	entropy, err := bip39.NewEntropy(256)
	if err != nil {
		return "", fmt.Errorf("failed to generate entropy: %w", err)
	}
	return bip39.NewMnemonic(entropy)
}

// NewHDWallet creates a wallet from a BIP39 mnemonic.
func NewHDWallet(symbol, mnemonic, passphrase string, params *chaincfg.Params, indexes KeyIndexSource, funding Funding) (*HDWallet, error) {
	if !bip39.IsMnemonicValid(mnemonic) {
		return nil, fmt.Errorf("invalid mnemonic")
	}

	seed := bip39.NewSeed(mnemonic, passphrase)
	masterKey, err := hdkeychain.NewMaster(seed, params)
	if err != nil {
		return nil, fmt.Errorf("failed to create master key: %w", err)
	}

	return &HDWallet{
		symbol:    symbol,
		masterKey: masterKey,
		params:    params,
		indexes:   indexes,
		funding:   funding,
		cache:     make(map[uint32]*hdkeychain.ExtendedKey),
	}, nil
}

// Symbol returns the chain symbol this wallet serves.
func (w *HDWallet) Symbol() string {
	return w.symbol
}

func (w *HDWallet) derive(index uint32) (*hdkeychain.ExtendedKey, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if key, ok := w.cache[index]; ok {
		return key, nil
	}

	// m/44'/coin'/0'/0/index
	path := []uint32{
		44 + hdkeychain.HardenedKeyStart,
		w.params.HDCoinType + hdkeychain.HardenedKeyStart,
		hdkeychain.HardenedKeyStart,
		0,
		index,
	}

	key := w.masterKey
	var err error
	for _, child := range path {
		key, err = key.Derive(child)
		if err != nil {
			return nil, fmt.Errorf("failed to derive key at index %d: %w", index, err)
		}
	}

	w.cache[index] = key
	return key, nil
}

// KeysByIndex derives the keypair at the given HD index.
func (w *HDWallet) KeysByIndex(index uint32) (*Keys, error) {
	key, err := w.derive(index)
	if err != nil {
		return nil, err
	}

	privKey, err := key.ECPrivKey()
	if err != nil {
		return nil, fmt.Errorf("failed to extract private key: %w", err)
	}

	return &Keys{
		PublicKey:  privKey.PubKey(),
		PrivateKey: privKey,
		Index:      index,
	}, nil
}

// NewAddress reserves the next HD index and returns its P2WPKH address.
func (w *HDWallet) NewAddress(ctx context.Context) (string, error) {
	index, err := w.indexes.NextKeyIndex(w.symbol)
	if err != nil {
		return "", err
	}

	keys, err := w.KeysByIndex(index)
	if err != nil {
		return "", err
	}

	hash := btcutil.Hash160(keys.PublicKey.SerializeCompressed())
	addr, err := btcutil.NewAddressWitnessPubKeyHash(hash, w.params)
	if err != nil {
		return "", fmt.Errorf("failed to encode address: %w", err)
	}

	return addr.EncodeAddress(), nil
}

// GetBalance sums the wallet balance through the funding backend.
func (w *HDWallet) GetBalance(ctx context.Context) (*Balance, error) {
	if w.funding == nil {
		return nil, ErrNoFundingBackend
	}
	return w.funding.Balance(ctx)
}

// SendToAddress sends the given amount through the funding backend.
func (w *HDWallet) SendToAddress(ctx context.Context, address string, amount uint64, satPerVbyte uint64) (*SendResult, error) {
	if w.funding == nil {
		return nil, ErrNoFundingBackend
	}
	return w.funding.Send(ctx, address, amount, satPerVbyte)
}

// SweepWallet spends the entire balance to the given address.
func (w *HDWallet) SweepWallet(ctx context.Context, address string, satPerVbyte uint64) (*SendResult, error) {
	if w.funding == nil {
		return nil, ErrNoFundingBackend
	}
	return w.funding.Sweep(ctx, address, satPerVbyte)
}
