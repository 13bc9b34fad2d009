// Package notify provides the best-effort status notification dispatchers.
//
// Notifications are fire-and-forget: a dispatch failure is logged by the
// caller and never rolls back the transition that triggered it.
package notify

import (
	"context"
	"log"

	"github.com/campo-vida/order-engine/orders"
)

// Log writes notifications to the process log. The default dispatcher when
// no brokers are configured.
type Log struct{}

func NewLog() *Log { return &Log{} }

func (l *Log) NotifyStatus(_ context.Context, o orders.Order, s orders.Status) error {
	log.Printf("[Notify] order %s -> %s (customer %s)", o.Number, s, o.CustomerID)
	return nil
}
