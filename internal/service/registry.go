package service

import (
	"context"
	"sync"

	"github.com/lightbridge-exchange/lightbridge/internal/config"
	"github.com/lightbridge-exchange/lightbridge/internal/currency"
)

// PairRegistry holds the static configuration of supported pairs.
// Pairs are inserted at init and never removed at runtime.
type PairRegistry struct {
	mu    sync.RWMutex
	pairs map[string]config.PairConfig
}

// NewPairRegistry creates an empty pair registry.
func NewPairRegistry() *PairRegistry {
	return &PairRegistry{pairs: make(map[string]config.PairConfig)}
}

// Upsert inserts a pair if it is absent.
func (r *PairRegistry) Upsert(pair config.PairConfig) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := pair.PairID()
	if _, ok := r.pairs[id]; !ok {
		r.pairs[id] = pair
	}
}

// Get returns a pair's configuration.
func (r *PairRegistry) Get(pairID string) (config.PairConfig, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	pair, ok := r.pairs[pairID]
	return pair, ok
}

// NodeURIs is a snapshot of one Lightning node's identity.
type NodeURIs struct {
	NodeKey string   `json:"nodeKey"`
	URIs    []string `json:"uris"`
}

// snapshotNodeURIs probes all Lightning-capable currencies once and
// records their public identities. Currencies whose node is down are
// skipped; getNodes serves whatever was reachable at init.
func snapshotNodeURIs(ctx context.Context, currencies map[string]*currency.Currency) map[string]NodeURIs {
	nodes := make(map[string]NodeURIs)

	for symbol, cur := range currencies {
		if cur.Lightning == nil {
			continue
		}

		info, err := cur.Lightning.GetInfo(ctx)
		if err != nil {
			continue
		}

		nodes[symbol] = NodeURIs{
			NodeKey: info.IdentityPubkey,
			URIs:    info.URIs,
		}
	}

	return nodes
}
