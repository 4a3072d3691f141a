// Package event fans out swap lifecycle updates to subscribers.
// Updates for one swap id are delivered in publish order; ordering
// across ids is unspecified.
package event

import (
	"sync"

	"github.com/lightningnetwork/lnd/queue"

	"github.com/lightbridge-exchange/lightbridge/pkg/logging"
)

// Status is a swap lifecycle status.
type Status string

const (
	StatusSwapCreated          Status = "swap.created"
	StatusInvoiceSet           Status = "invoice.set"
	StatusTransactionMempool   Status = "transaction.mempool"
	StatusTransactionConfirmed Status = "transaction.confirmed"
	StatusInvoicePaid          Status = "invoice.paid"
	StatusInvoicePending       Status = "invoice.pending"
	StatusInvoiceFailedToPay   Status = "invoice.failedToPay"
	StatusInvoiceSettled       Status = "invoice.settled"
	StatusSwapRefunded         Status = "swap.refunded"
	StatusSwapExpired          Status = "swap.expired"
)

// IsTerminal reports whether the status ends a swap's lifecycle.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusInvoiceSettled, StatusInvoiceFailedToPay, StatusSwapRefunded, StatusSwapExpired:
		return true
	default:
		return false
	}
}

// SwapUpdate is a single swap.update event.
type SwapUpdate struct {
	ID     string `json:"id"`
	Status Status `json:"status"`

	ZeroConfAccepted bool   `json:"zeroConfAccepted,omitempty"`
	TransactionID    string `json:"transactionId,omitempty"`
	FailureReason    string `json:"failureReason,omitempty"`
}

// Subscription receives swap updates until cancelled.
type Subscription struct {
	// swapID filters updates to one swap; empty receives everything.
	swapID string

	queue   *queue.ConcurrentQueue
	updates chan SwapUpdate
	quit    chan struct{}
	once    sync.Once
}

// Updates returns the subscriber's ordered update stream.
func (s *Subscription) Updates() <-chan SwapUpdate {
	return s.updates
}

func (s *Subscription) stop() {
	s.once.Do(func() {
		close(s.quit)
		s.queue.Stop()
	})
}

// Hub is the swap.update fan-out point.
type Hub struct {
	log *logging.Logger

	mu          sync.Mutex
	subscribers map[*Subscription]struct{}
	stopped     bool
}

// NewHub creates a new event hub.
func NewHub() *Hub {
	return &Hub{
		log:         logging.GetDefault().Component("events"),
		subscribers: make(map[*Subscription]struct{}),
	}
}

// Subscribe registers for all swap updates.
func (h *Hub) Subscribe() *Subscription {
	return h.subscribe("")
}

// SubscribeSwap registers for updates of a single swap id.
func (h *Hub) SubscribeSwap(swapID string) *Subscription {
	return h.subscribe(swapID)
}

func (h *Hub) subscribe(swapID string) *Subscription {
	sub := &Subscription{
		swapID:  swapID,
		queue:   queue.NewConcurrentQueue(16),
		updates: make(chan SwapUpdate),
		quit:    make(chan struct{}),
	}
	sub.queue.Start()

	// Drain the unbounded queue into the typed channel. The queue
	// decouples slow consumers from publishers without reordering.
	go func() {
		defer close(sub.updates)
		for {
			select {
			case item, ok := <-sub.queue.ChanOut():
				if !ok {
					return
				}
				select {
				case sub.updates <- item.(SwapUpdate):
				case <-sub.quit:
					return
				}
			case <-sub.quit:
				return
			}
		}
	}()

	h.mu.Lock()
	defer h.mu.Unlock()
	h.subscribers[sub] = struct{}{}

	return sub
}

// Unsubscribe cancels a subscription.
func (h *Hub) Unsubscribe(sub *Subscription) {
	h.mu.Lock()
	delete(h.subscribers, sub)
	h.mu.Unlock()

	sub.stop()
}

// Publish delivers an update to all matching subscribers. Delivery to
// each subscriber happens under the hub lock, which preserves per-id
// ordering across concurrent publishers.
func (h *Hub) Publish(update SwapUpdate) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.stopped {
		return
	}

	h.log.Debug("Publishing swap update", "id", update.ID, "status", update.Status)

	for sub := range h.subscribers {
		if sub.swapID != "" && sub.swapID != update.ID {
			continue
		}
		sub.queue.ChanIn() <- update
	}
}

// Stop cancels all subscriptions.
func (h *Hub) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.stopped {
		return
	}
	h.stopped = true

	for sub := range h.subscribers {
		sub.stop()
		delete(h.subscribers, sub)
	}
}
